package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobActive    JobStatus = "ACTIVE"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

var AllJobStatuses = []JobStatus{JobPending, JobActive, JobCompleted, JobFailed}

func ParseJobStatus(s string) (JobStatus, error) {
	status := JobStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown job status: %q", s)
	}
	return status, nil
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobActive, JobCompleted, JobFailed:
		return true
	}
	return false
}

func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed:
		return true
	case JobPending, JobActive:
		return false
	}
	return false
}

// ExternalIdentity ties a local job to the chain event that created it.
// Block is the block the transaction hash was observed in, 0 when unknown.
type ExternalIdentity struct {
	JobID  uint64 `json:"job_id"`
	TxHash string `json:"tx_hash"`
	Block  uint64 `json:"block,omitempty"`
}

type Job struct {
	ID                 uint64            `json:"id"`
	Title              string            `json:"title"`
	Description        string            `json:"description,omitempty"`
	Reward             uint64            `json:"reward"`
	Status             JobStatus         `json:"status"`
	RequiredNodes      int               `json:"required_nodes"`
	Deadline           time.Time         `json:"deadline"`
	RequesterAccountID uint64            `json:"requester_account_id,omitempty"`
	External           *ExternalIdentity `json:"external,omitempty"`
	Workers            []uint64          `json:"workers,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

// Clone returns a deep copy so store callbacks can mutate freely.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.External != nil {
		ext := *j.External
		c.External = &ext
	}
	if j.Workers != nil {
		c.Workers = append([]uint64(nil), j.Workers...)
	}
	return &c
}

func (j *Job) HasWorker(accountID uint64) bool {
	for _, w := range j.Workers {
		if w == accountID {
			return true
		}
	}
	return false
}

func (j *Job) Validate() error {
	if j.Title == "" {
		return NewError(KindMissingFields, "job title is required")
	}
	if !j.Status.Valid() {
		return fmt.Errorf("job %d: invalid status %q", j.ID, j.Status)
	}
	if j.RequiredNodes <= 0 {
		return fmt.Errorf("job %d: required nodes must be positive", j.ID)
	}
	if j.Deadline.IsZero() {
		return fmt.Errorf("job %d: deadline is required", j.ID)
	}
	return nil
}

// JobCreatedEvent is one observed JobCreated log as handed to reconciliation.
// A nil ExternalJobID or empty field marks the event as malformed.
type JobCreatedEvent struct {
	ExternalJobID    *uint64 `json:"externalJobId"`
	RequesterAddress string  `json:"requesterAddress"`
	RewardAmount     string  `json:"rewardAmount"`
	TransactionHash  string  `json:"transactionHash"`
	BlockNumber      uint64  `json:"blockNumber,omitempty"`
}

// UnmarshalJSON also takes rewardAmount as a bare JSON number.
func (e *JobCreatedEvent) UnmarshalJSON(data []byte) error {
	type plain JobCreatedEvent
	aux := struct {
		*plain
		RewardAmount json.RawMessage `json:"rewardAmount"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	e.RewardAmount = ""
	raw := bytes.TrimSpace(aux.RewardAmount)
	switch {
	case len(raw) == 0 || string(raw) == "null":
	case raw[0] == '"':
		return json.Unmarshal(raw, &e.RewardAmount)
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("rewardAmount: %w", err)
		}
		e.RewardAmount = n.String()
	}
	return nil
}
