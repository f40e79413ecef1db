package computing

import (
	"context"

	"github.com/lagrangedao/go-computing-market/internal/models"
	"github.com/lagrangedao/go-computing-market/internal/store"
)

type NetworkStats struct {
	TotalNodes   int    `json:"totalNodes"`
	ActiveJobs   int    `json:"activeJobs"`
	TotalRewards uint64 `json:"totalRewards"`
}

type StatsService struct {
	store store.Store
}

func NewStatsService(s store.Store) *StatsService {
	return &StatsService{store: s}
}

// NetworkStats counts nodes, open jobs (PENDING or ACTIVE) and everything paid out.
func (s *StatsService) NetworkStats(ctx context.Context) (*NetworkStats, error) {
	nodes, err := s.store.CountComputeNodes(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.store.CountJobs(ctx, models.JobPending, models.JobActive)
	if err != nil {
		return nil, err
	}
	rewards, err := s.store.SumEarnings(ctx)
	if err != nil {
		return nil, err
	}
	return &NetworkStats{TotalNodes: nodes, ActiveJobs: active, TotalRewards: rewards}, nil
}

// Earnings lists an account's earnings newest first with the source job title.
func (s *StatsService) Earnings(ctx context.Context, address string, limit, offset int) ([]*models.EarningDetail, error) {
	addr := models.NormalizeAddress(address)
	if addr == "" {
		return nil, models.NewError(models.KindMissingFields, "address is required")
	}
	account, err := s.store.GetAccountByAddress(ctx, addr)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	earnings, err := s.store.ListEarnings(ctx, account.ID, clampLimit(limit), offset)
	if err != nil {
		return nil, err
	}

	titles := make(map[uint64]string)
	details := make([]*models.EarningDetail, 0, len(earnings))
	for _, e := range earnings {
		title, ok := titles[e.JobID]
		if !ok {
			job, err := s.store.GetJob(ctx, e.JobID)
			if err != nil {
				return nil, err
			}
			title = job.Title
			titles[e.JobID] = title
		}
		details = append(details, &models.EarningDetail{Earning: *e, JobTitle: title})
	}
	return details, nil
}
