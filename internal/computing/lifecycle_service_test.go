package computing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/lagrangedao/go-computing-market/internal/models"
	"github.com/lagrangedao/go-computing-market/internal/store"
)

func newLifecycle(t *testing.T, policy Policy) (*LifecycleService, store.Store, *testClock) {
	s := newMemStore(t)
	clock := newTestClock()
	return NewLifecycleService(s, policy, WithClock(clock.Now)), s, clock
}

func createRequest(title, deadline string) CreateJobRequest {
	return CreateJobRequest{
		Title:            title,
		Description:      "render frames",
		Reward:           10,
		RequiredNodes:    3,
		Deadline:         deadline,
		RequesterAddress: "0xRequester",
	}
}

func TestCreateJoinSubmitScenario(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newLifecycle(t, DefaultPolicy())

	job, err := svc.CreateJob(ctx, createRequest("Render", "in 1h"))
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.True(t, epoch.Add(time.Hour).Equal(job.Deadline))

	requester, err := s.GetAccountByAddress(ctx, "0xrequester")
	require.NoError(t, err)
	assert.Equal(t, requester.ID, job.RequesterAccountID)

	joined, err := svc.RequestJoin(ctx, job.ID, "0xWorker")
	require.NoError(t, err)
	assert.Equal(t, models.JobActive, joined.Status)

	done, earning, err := svc.RequestSubmit(ctx, job.ID, "0xworker")
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, done.Status)
	assert.Equal(t, uint64(3), earning.Amount)
	assert.Equal(t, job.ID, earning.JobID)

	worker, err := s.GetAccountByAddress(ctx, "0xWORKER")
	require.NoError(t, err)
	assert.Equal(t, worker.ID, earning.AccountID)

	earnings, err := s.ListEarnings(ctx, worker.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, earnings, 1)

	_, _, err = svc.RequestSubmit(ctx, job.ID, "0xworker")
	assert.ErrorIs(t, err, models.ErrNotSubmittable)
	earnings, err = s.ListEarnings(ctx, worker.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, earnings, 1)
}

func TestJoinAfterDeadline(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newLifecycle(t, DefaultPolicy())

	job, err := svc.CreateJob(ctx, createRequest("Short", "in 1m"))
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = svc.RequestJoin(ctx, job.ID, "0xWorker")
	assert.ErrorIs(t, err, models.ErrDeadlineExpired)

	got, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, got.Status)
}

func TestCreateJobValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newLifecycle(t, DefaultPolicy())

	missing := []CreateJobRequest{
		{Reward: 1, RequiredNodes: 1, Deadline: "in 1h", RequesterAddress: "0xa"},
		{Title: "t", Reward: 1, Deadline: "in 1h", RequesterAddress: "0xa"},
		{Title: "t", Reward: 1, RequiredNodes: 1, RequesterAddress: "0xa"},
		{Title: "t", Reward: 1, RequiredNodes: 1, Deadline: "in 1h", RequesterAddress: "  "},
	}
	for _, req := range missing {
		_, err := svc.CreateJob(ctx, req)
		assert.ErrorIs(t, err, models.ErrMissingFields)
	}

	_, err := svc.CreateJob(ctx, createRequest("bad", "next week"))
	assert.ErrorIs(t, err, models.ErrInvalidDeadline)

	free := createRequest("free", "in 1h")
	free.Reward = 0
	job, err := svc.CreateJob(ctx, free)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), job.Reward)
}

func TestCreateJobDuplicateExternalID(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newLifecycle(t, DefaultPolicy())

	req := createRequest("first", "in 1h")
	req.External = &models.ExternalIdentity{JobID: 9, TxHash: "0xaaa"}
	_, err := svc.CreateJob(ctx, req)
	require.NoError(t, err)

	req.Title = "second"
	_, err = svc.CreateJob(ctx, req)
	assert.ErrorIs(t, err, models.ErrDuplicateExternalID)
}

func TestJoinUnknownJob(t *testing.T) {
	svc, _, _ := newLifecycle(t, DefaultPolicy())

	_, err := svc.RequestJoin(context.Background(), 404, "0xWorker")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, _, err = svc.RequestSubmit(context.Background(), 404, "0xWorker")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestJoinCapacityPolicy(t *testing.T) {
	ctx := context.Background()
	policy := DefaultPolicy()
	policy.EnforceNodeCapacity = true
	svc, _, _ := newLifecycle(t, policy)

	req := createRequest("pair", "in 1h")
	req.RequiredNodes = 2
	job, err := svc.CreateJob(ctx, req)
	require.NoError(t, err)

	_, err = svc.RequestJoin(ctx, job.ID, "0xA")
	require.NoError(t, err)
	_, err = svc.RequestJoin(ctx, job.ID, "0xB")
	require.NoError(t, err)
	_, err = svc.RequestJoin(ctx, job.ID, "0xC")
	assert.ErrorIs(t, err, models.ErrCapacityReached)
}

func TestConcurrentSubmitsPayOnce(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newLifecycle(t, DefaultPolicy())

	job, err := svc.CreateJob(ctx, createRequest("race", "in 1h"))
	require.NoError(t, err)

	const workers = 8
	results := make([]error, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			_, _, results[i] = svc.RequestSubmit(ctx, job.ID, "0xWorker")
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok int
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, models.ErrNotSubmittable)
	}
	assert.Equal(t, 1, ok)

	total, err := s.SumEarnings(ctx)
	require.NoError(t, err)
	assert.Equal(t, Payout(10, 3), total)
}

func TestListJobsClampsLimit(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newLifecycle(t, DefaultPolicy())

	for i := 0; i < 12; i++ {
		_, err := svc.CreateJob(ctx, createRequest("batch", "in 1h"))
		require.NoError(t, err)
	}

	jobs, err := svc.ListJobs(ctx, store.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, jobs, 10)

	jobs, err = svc.ListJobs(ctx, store.JobFilter{Limit: 1000, Offset: -5})
	require.NoError(t, err)
	assert.Len(t, jobs, 12)
}
