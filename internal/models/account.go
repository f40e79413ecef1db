package models

import (
	"strings"
	"time"
)

// NormalizeAddress case-folds a chain address. Every component that accepts
// an address passes it through here before comparing or storing it.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

type Account struct {
	ID        uint64    `json:"id"`
	Address   string    `json:"address"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ComputeNode struct {
	ID            uint64     `json:"id"`
	AccountID     uint64     `json:"account_id"`
	Address       string     `json:"address"`
	ComputePower  float64    `json:"compute_power"`
	Reputation    float64    `json:"reputation"`
	IsActive      bool       `json:"is_active"`
	TotalEarnings float64    `json:"total_earnings"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

const DefaultReputation = 100

type Earning struct {
	ID        uint64    `json:"id"`
	AccountID uint64    `json:"account_id"`
	JobID     uint64    `json:"job_id"`
	Amount    uint64    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// EarningDetail is an Earning joined with the title of its source job.
type EarningDetail struct {
	Earning
	JobTitle string `json:"job_title"`
}
