package conf

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	BackendLevelDB  = "leveldb"
	BackendPostgres = "postgres"
)

var config *MarketNode

// MarketNode is the market node config
type MarketNode struct {
	API    API
	DB     DB
	Redis  Redis
	Chain  Chain
	Policy Policy
}

type API struct {
	Port     int
	NodeName string
	CrtFile  string
	KeyFile  string
}

type DB struct {
	Backend        string
	Path           string
	PostgresUrl    string
	MaxConnections int
}

type Redis struct {
	Url          string
	Password     string
	LeaseSeconds int
}

type Chain struct {
	RpcUrl              string
	CoreContract        string
	RewardDecimals      int
	MaxBlockRange       uint64
	DefaultLookback     uint64
	RequestsPerSecond   float64
	PollIntervalSeconds int
}

// Policy holds the stand-in values for data a JobCreated event does not carry.
type Policy struct {
	ChainJobDeadlineHours int
	ChainJobRequiredNodes int
	EnforceNodeCapacity   bool
}

func (p Policy) ChainJobDeadline() time.Duration {
	return time.Duration(p.ChainJobDeadlineHours) * time.Hour
}

func InitConfig(repoPath string) error {
	configFile := filepath.Join(repoPath, "config.toml")

	cfg := DefaultConfig()
	metaData, err := toml.DecodeFile(configFile, cfg)
	if err != nil {
		return fmt.Errorf("failed load config file, path: %s, error: %w", configFile, err)
	}
	if err := requiredFieldsAreGiven(metaData); err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	if cfg.DB.Backend == BackendLevelDB && !filepath.IsAbs(cfg.DB.Path) {
		cfg.DB.Path = filepath.Join(repoPath, cfg.DB.Path)
	}
	config = cfg
	return nil
}

func GetConfig() *MarketNode {
	return config
}

// SetConfig replaces the global config, used by commands that build one in code.
func SetConfig(cfg *MarketNode) {
	config = cfg
}

func DefaultConfig() *MarketNode {
	return &MarketNode{
		API: API{Port: 8085},
		DB: DB{
			Backend:        BackendLevelDB,
			Path:           "ledger",
			MaxConnections: 10,
		},
		Redis: Redis{LeaseSeconds: 120},
		Chain: Chain{
			RewardDecimals:    18,
			MaxBlockRange:     5000,
			DefaultLookback:   5000,
			RequestsPerSecond: 5,
		},
		Policy: Policy{
			ChainJobDeadlineHours: 24,
			ChainJobRequiredNodes: 1,
		},
	}
}

func (c *MarketNode) validate() error {
	c.DB.Backend = strings.ToLower(strings.TrimSpace(c.DB.Backend))
	switch c.DB.Backend {
	case BackendLevelDB:
		if strings.TrimSpace(c.DB.Path) == "" {
			return fmt.Errorf("DB.Path is required for the %s backend", BackendLevelDB)
		}
	case BackendPostgres:
		if strings.TrimSpace(c.DB.PostgresUrl) == "" {
			return fmt.Errorf("DB.PostgresUrl is required for the %s backend", BackendPostgres)
		}
	default:
		return fmt.Errorf("unsupported DB.Backend: %q", c.DB.Backend)
	}
	if c.Policy.ChainJobDeadlineHours <= 0 {
		return fmt.Errorf("Policy.ChainJobDeadlineHours must be positive")
	}
	if c.Policy.ChainJobRequiredNodes <= 0 {
		return fmt.Errorf("Policy.ChainJobRequiredNodes must be positive")
	}
	if c.Chain.RewardDecimals < 0 {
		return fmt.Errorf("Chain.RewardDecimals must not be negative")
	}
	if c.Chain.MaxBlockRange == 0 {
		c.Chain.MaxBlockRange = 5000
	}
	return nil
}

// ChainEnabled reports whether a JobCore contract is configured to sync from.
func (c *MarketNode) ChainEnabled() bool {
	return strings.TrimSpace(c.Chain.RpcUrl) != "" && strings.TrimSpace(c.Chain.CoreContract) != ""
}

func requiredFieldsAreGiven(metaData toml.MetaData) error {
	requiredFields := [][]string{
		{"API"},
		{"DB"},

		{"API", "Port"},
		{"DB", "Backend"},
	}

	for _, v := range requiredFields {
		if !metaData.IsDefined(v...) {
			return fmt.Errorf("required field not given: %s", strings.Join(v, "."))
		}
	}
	return nil
}
