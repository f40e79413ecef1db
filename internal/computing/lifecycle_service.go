package computing

import (
	"context"
	"strings"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"golang.org/x/xerrors"

	"github.com/lagrangedao/go-computing-market/constants"
	"github.com/lagrangedao/go-computing-market/internal/models"
	"github.com/lagrangedao/go-computing-market/internal/store"
)

type CreateJobRequest struct {
	Title            string
	Description      string
	Reward           uint64
	RequiredNodes    int
	Deadline         string
	RequesterAddress string
	External         *models.ExternalIdentity
}

// LifecycleService runs the locally requested job operations.
type LifecycleService struct {
	store  store.Store
	policy Policy
	now    func() time.Time
}

func NewLifecycleService(s store.Store, policy Policy, opts ...Option) *LifecycleService {
	o := buildOptions(opts)
	return &LifecycleService{store: s, policy: policy, now: o.now}
}

func (s *LifecycleService) CreateJob(ctx context.Context, req CreateJobRequest) (job *models.Job, err error) {
	defer func() { jobTransitions.WithLabelValues("create", outcome(err)).Inc() }()

	title := strings.TrimSpace(req.Title)
	requester := models.NormalizeAddress(req.RequesterAddress)
	if title == "" || req.RequiredNodes <= 0 || strings.TrimSpace(req.Deadline) == "" || requester == "" {
		return nil, models.NewError(models.KindMissingFields,
			"title, reward, requiredNodes, deadline and requesterAddress are required")
	}

	if req.External != nil {
		_, err := s.store.GetJobByExternalID(ctx, req.External.JobID)
		if err == nil {
			return nil, models.NewError(models.KindDuplicateExternalID, "job with external id %d already exists", req.External.JobID)
		}
		if models.KindOf(err) != models.KindNotFound {
			return nil, err
		}
	}

	now := s.now()
	deadline, err := ParseDeadline(req.Deadline, now)
	if err != nil {
		return nil, err
	}

	account, err := s.store.EnsureAccount(ctx, requester)
	if err != nil {
		return nil, xerrors.Errorf("resolve requester %s: %w", requester, err)
	}

	job, err = s.store.InsertJob(ctx, &models.Job{
		Title:              title,
		Description:        strings.TrimSpace(req.Description),
		Reward:             req.Reward,
		Status:             models.JobPending,
		RequiredNodes:      req.RequiredNodes,
		Deadline:           deadline,
		RequesterAccountID: account.ID,
		External:           req.External,
		CreatedAt:          now.UTC(),
	})
	if err != nil {
		return nil, err
	}
	logs.GetLogger().Infof("job created, job_id: %d, reward: %d %s, deadline: %s",
		job.ID, job.Reward, constants.REWARD_UNIT, job.Deadline.Format(time.RFC3339))
	return job, nil
}

func (s *LifecycleService) resolveWorker(ctx context.Context, workerAddress string) (*models.Account, error) {
	addr := models.NormalizeAddress(workerAddress)
	if addr == "" {
		return nil, models.NewError(models.KindMissingFields, "worker address is required")
	}
	account, err := s.store.EnsureAccount(ctx, addr)
	if err != nil {
		return nil, xerrors.Errorf("resolve worker %s: %w", addr, err)
	}
	return account, nil
}

// RequestJoin moves a PENDING job to ACTIVE, or keeps an ACTIVE job ACTIVE.
func (s *LifecycleService) RequestJoin(ctx context.Context, jobID uint64, workerAddress string) (job *models.Job, err error) {
	defer func() { jobTransitions.WithLabelValues("join", outcome(err)).Inc() }()

	worker, err := s.resolveWorker(ctx, workerAddress)
	if err != nil {
		return nil, err
	}
	job, err = s.store.UpdateJob(ctx, jobID, func(job *models.Job) error {
		return Join(job, worker.ID, s.now(), s.policy.EnforceNodeCapacity)
	})
	if err != nil {
		return nil, err
	}
	logs.GetLogger().Infof("worker %s joined job %d, status: %s", worker.Address, job.ID, job.Status)
	return job, nil
}

// RequestSubmit completes the job and records exactly one Earning for the worker.
func (s *LifecycleService) RequestSubmit(ctx context.Context, jobID uint64, workerAddress string) (job *models.Job, earning *models.Earning, err error) {
	defer func() { jobTransitions.WithLabelValues("submit", outcome(err)).Inc() }()

	worker, err := s.resolveWorker(ctx, workerAddress)
	if err != nil {
		return nil, nil, err
	}
	job, earning, err = s.store.CompleteJob(ctx, jobID, func(job *models.Job) (*models.Earning, error) {
		now := s.now()
		payout, err := Submit(job, now)
		if err != nil {
			return nil, err
		}
		return &models.Earning{AccountID: worker.ID, Amount: payout, CreatedAt: now.UTC()}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	payoutsIssued.Add(float64(earning.Amount))
	logs.GetLogger().Infof("worker %s submitted job %d, payout: %d %s", worker.Address, job.ID, earning.Amount, constants.REWARD_UNIT)
	return job, earning, nil
}

func (s *LifecycleService) GetJob(ctx context.Context, id uint64) (*models.Job, error) {
	return s.store.GetJob(ctx, id)
}

// ListJobs clamps the page size to MAX_LIST_LIMIT, defaulting to DEFAULT_LIST_LIMIT.
func (s *LifecycleService) ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.Job, error) {
	filter.Limit = clampLimit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.ListJobs(ctx, filter)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return constants.DEFAULT_LIST_LIMIT
	case limit > constants.MAX_LIST_LIMIT:
		return constants.MAX_LIST_LIMIT
	}
	return limit
}

func (s *LifecycleService) Now() time.Time {
	return s.now()
}
