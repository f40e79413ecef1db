package store

import (
	"context"
	"time"

	"github.com/lagrangedao/go-computing-market/internal/models"
)

// JobFilter selects jobs for ListJobs. Search matches title or description,
// case-insensitively. Statuses empty means any status.
type JobFilter struct {
	Search   string
	Statuses []models.JobStatus
	Limit    int
	Offset   int
}

// JobMutator edits a private copy of a job. Returning an error aborts the
// write and nothing is persisted.
type JobMutator func(job *models.Job) error

// ExternalJobMerger receives the job currently mirrored for an external id
// (nil when none exists) and returns the job to persist. It may be invoked
// more than once when a concurrent insert wins, so it must not have side effects.
type ExternalJobMerger func(existing *models.Job) (*models.Job, error)

// JobCompleter edits a private copy of a job and returns the Earning that must
// be written together with it.
type JobCompleter func(job *models.Job) (*models.Earning, error)

// Store is the durable Entity Store. Every read-modify-write method holds an
// exclusive per-row guard for the duration of the callback, so two writers
// touching the same job are serialised while different jobs proceed in parallel.
type Store interface {
	EnsureAccount(ctx context.Context, address string) (*models.Account, error)
	GetAccount(ctx context.Context, id uint64) (*models.Account, error)
	GetAccountByAddress(ctx context.Context, address string) (*models.Account, error)

	UpsertComputeNode(ctx context.Context, accountID uint64, address string, computePower float64) (*models.ComputeNode, error)
	GetComputeNodeByAddress(ctx context.Context, address string) (*models.ComputeNode, error)
	TouchComputeNode(ctx context.Context, address string, at time.Time) (*models.ComputeNode, error)
	CountComputeNodes(ctx context.Context) (int, error)

	GetJob(ctx context.Context, id uint64) (*models.Job, error)
	GetJobByExternalID(ctx context.Context, externalID uint64) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, error)
	CountJobs(ctx context.Context, statuses ...models.JobStatus) (int, error)
	InsertJob(ctx context.Context, job *models.Job) (*models.Job, error)
	UpdateJob(ctx context.Context, id uint64, fn JobMutator) (*models.Job, error)
	MergeExternalJob(ctx context.Context, externalID uint64, fn ExternalJobMerger) (job *models.Job, created bool, err error)
	CompleteJob(ctx context.Context, id uint64, fn JobCompleter) (*models.Job, *models.Earning, error)

	ListEarnings(ctx context.Context, accountID uint64, limit, offset int) ([]*models.Earning, error)
	SumEarnings(ctx context.Context) (uint64, error)

	LastSyncedBlock(ctx context.Context) (block uint64, ok bool, err error)
	AdvanceSyncedBlock(ctx context.Context, block uint64) error

	Close() error
}

func statusSet(statuses []models.JobStatus) map[models.JobStatus]bool {
	if len(statuses) == 0 {
		return nil
	}
	set := make(map[models.JobStatus]bool, len(statuses))
	for _, s := range statuses {
		set[s] = true
	}
	return set
}

func notFound(what string, key interface{}) error {
	return models.NewError(models.KindNotFound, "%s %v not found", what, key)
}

func duplicateExternalID(id uint64) error {
	return models.NewError(models.KindDuplicateExternalID, "job with external id %d already exists", id)
}
