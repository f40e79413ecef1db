package computing

import (
	"context"
	"math"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"golang.org/x/xerrors"

	"github.com/lagrangedao/go-computing-market/internal/models"
	"github.com/lagrangedao/go-computing-market/internal/store"
)

// NodeService keeps the compute node registry.
type NodeService struct {
	store store.Store
	now   func() time.Time
}

func NewNodeService(s store.Store, opts ...Option) *NodeService {
	o := buildOptions(opts)
	return &NodeService{store: s, now: o.now}
}

// RegisterNode creates the node for address or updates its compute power in place.
func (s *NodeService) RegisterNode(ctx context.Context, address string, computePower float64) (*models.ComputeNode, error) {
	addr := models.NormalizeAddress(address)
	if addr == "" {
		return nil, models.NewError(models.KindMissingFields, "address is required")
	}
	if computePower <= 0 || math.IsNaN(computePower) || math.IsInf(computePower, 0) {
		return nil, models.NewError(models.KindInvalidComputePower, "compute power must be a positive number")
	}

	account, err := s.store.EnsureAccount(ctx, addr)
	if err != nil {
		return nil, xerrors.Errorf("resolve node account %s: %w", addr, err)
	}
	node, err := s.store.UpsertComputeNode(ctx, account.ID, addr, computePower)
	if err != nil {
		return nil, err
	}
	logs.GetLogger().Infof("compute node registered, address: %s, compute power: %.2f", node.Address, node.ComputePower)
	return node, nil
}

func (s *NodeService) NodeStats(ctx context.Context, address string) (*models.ComputeNode, error) {
	addr := models.NormalizeAddress(address)
	if addr == "" {
		return nil, models.NewError(models.KindMissingFields, "address is required")
	}
	return s.store.GetComputeNodeByAddress(ctx, addr)
}

func (s *NodeService) Heartbeat(ctx context.Context, address string) (*models.ComputeNode, error) {
	addr := models.NormalizeAddress(address)
	if addr == "" {
		return nil, models.NewError(models.KindMissingFields, "address is required")
	}
	return s.store.TouchComputeNode(ctx, addr, s.now())
}
