package seed

import (
	"context"
	"os"

	"github.com/filswan/go-swan-lib/logs"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/lagrangedao/go-computing-market/internal/computing"
	"github.com/lagrangedao/go-computing-market/internal/models"
	"github.com/lagrangedao/go-computing-market/internal/store"
)

const CurrentVersion = "1.0"

type File struct {
	Version  string    `yaml:"version"`
	Accounts []Account `yaml:"accounts"`
	Nodes    []Node    `yaml:"nodes"`
	Jobs     []Job     `yaml:"jobs"`
}

type Account struct {
	Address string `yaml:"address"`
}

type Node struct {
	Address      string  `yaml:"address"`
	ComputePower float64 `yaml:"computePower"`
}

type Job struct {
	Title         string  `yaml:"title"`
	Description   string  `yaml:"description"`
	Reward        uint64  `yaml:"reward"`
	RequiredNodes int     `yaml:"requiredNodes"`
	Deadline      string  `yaml:"deadline"`
	Requester     string  `yaml:"requester"`
	OnchainID     *uint64 `yaml:"onchainId"`
	OnchainTx     string  `yaml:"onchainTx"`
}

type Result struct {
	Accounts int
	Nodes    int
	Jobs     int
	Skipped  int
}

type version struct {
	Version string `yaml:"version"`
}

func Parse(data []byte) (*File, error) {
	var v version
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, xerrors.Errorf("failed to parse seed file: %w", err)
	}
	switch v.Version {
	case CurrentVersion:
	default:
		return nil, xerrors.Errorf("not support seed version: %q", v.Version)
	}

	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, xerrors.Errorf("failed to parse seed file: %w", err)
	}
	return &f, nil
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Apply writes the seed through the services, so every row passes the same
// validation as an API call. Jobs whose onchain id already exists are skipped,
// which makes re-running a seed of chain mirrored jobs harmless.
func Apply(ctx context.Context, f *File, s store.Store, lifecycle *computing.LifecycleService, nodes *computing.NodeService) (Result, error) {
	var res Result
	for _, a := range f.Accounts {
		if _, err := s.EnsureAccount(ctx, a.Address); err != nil {
			return res, xerrors.Errorf("seed account %s: %w", a.Address, err)
		}
		res.Accounts++
	}

	for _, n := range f.Nodes {
		if _, err := nodes.RegisterNode(ctx, n.Address, n.ComputePower); err != nil {
			return res, xerrors.Errorf("seed node %s: %w", n.Address, err)
		}
		res.Nodes++
	}

	for i, j := range f.Jobs {
		req := computing.CreateJobRequest{
			Title:            j.Title,
			Description:      j.Description,
			Reward:           j.Reward,
			RequiredNodes:    j.RequiredNodes,
			Deadline:         j.Deadline,
			RequesterAddress: j.Requester,
		}
		if j.OnchainID != nil {
			req.External = &models.ExternalIdentity{JobID: *j.OnchainID, TxHash: j.OnchainTx}
		}
		job, err := lifecycle.CreateJob(ctx, req)
		if models.KindOf(err) == models.KindDuplicateExternalID {
			logs.GetLogger().Warnf("seed job #%d skipped: %v", i, err)
			res.Skipped++
			continue
		}
		if err != nil {
			return res, xerrors.Errorf("seed job #%d %q: %w", i, j.Title, err)
		}
		logs.GetLogger().Debugf("seeded job %d: %s", job.ID, job.Title)
		res.Jobs++
	}
	return res, nil
}
