package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/lagrangedao/go-computing-market/internal/models"
)

// runStoreSuite is the behaviour every Store backend must share. newStore must
// return an empty store.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("compute nodes", func(t *testing.T) { testComputeNodes(t, newStore(t)) })
	t.Run("insert and get job", func(t *testing.T) { testInsertJob(t, newStore(t)) })
	t.Run("list jobs", func(t *testing.T) { testListJobs(t, newStore(t)) })
	t.Run("update job", func(t *testing.T) { testUpdateJob(t, newStore(t)) })
	t.Run("merge external job", func(t *testing.T) { testMergeExternalJob(t, newStore(t)) })
	t.Run("complete job", func(t *testing.T) { testCompleteJob(t, newStore(t)) })
	t.Run("sync cursor", func(t *testing.T) { testSyncCursor(t, newStore(t)) })
	t.Run("concurrent updates", func(t *testing.T) { testConcurrentUpdates(t, newStore(t)) })
	t.Run("concurrent merges", func(t *testing.T) { testConcurrentMerges(t, newStore(t)) })
	t.Run("concurrent accounts", func(t *testing.T) { testConcurrentAccounts(t, newStore(t)) })
}

func sampleJob(title string, requester uint64) *models.Job {
	return &models.Job{
		Title:              title,
		Reward:             100,
		Status:             models.JobPending,
		RequiredNodes:      2,
		Deadline:           time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		RequesterAccountID: requester,
	}
}

func testAccounts(t *testing.T, s Store) {
	ctx := context.Background()

	a, err := s.EnsureAccount(ctx, "0xABCDEF")
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef", a.Address)

	b, err := s.EnsureAccount(ctx, "  0xabcdef ")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	got, err := s.GetAccountByAddress(ctx, "0xAbCdEf")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	got, err = s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef", got.Address)

	_, err = s.GetAccountByAddress(ctx, "0xmissing")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = s.EnsureAccount(ctx, "   ")
	assert.True(t, errors.Is(err, models.ErrMissingFields))
}

func testComputeNodes(t *testing.T, s Store) {
	ctx := context.Background()

	acct, err := s.EnsureAccount(ctx, "0xNODE")
	require.NoError(t, err)

	node, err := s.UpsertComputeNode(ctx, acct.ID, "0xNODE", 4)
	require.NoError(t, err)
	assert.Equal(t, 4.0, node.ComputePower)
	assert.Equal(t, float64(models.DefaultReputation), node.Reputation)
	assert.True(t, node.IsActive)
	assert.Nil(t, node.LastHeartbeat)

	again, err := s.UpsertComputeNode(ctx, acct.ID, "0xnode", 8)
	require.NoError(t, err)
	assert.Equal(t, node.ID, again.ID)
	assert.Equal(t, 8.0, again.ComputePower)

	n, err := s.CountComputeNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	touched, err := s.TouchComputeNode(ctx, "0xnode", at)
	require.NoError(t, err)
	require.NotNil(t, touched.LastHeartbeat)
	assert.True(t, at.Equal(*touched.LastHeartbeat))

	_, err = s.TouchComputeNode(ctx, "0xother", at)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	got, err := s.GetComputeNodeByAddress(ctx, "0xNode")
	require.NoError(t, err)
	assert.Equal(t, node.ID, got.ID)
}

func testInsertJob(t *testing.T, s Store) {
	ctx := context.Background()
	acct, err := s.EnsureAccount(ctx, "0xreq")
	require.NoError(t, err)

	job, err := s.InsertJob(ctx, sampleJob("render", acct.ID))
	require.NoError(t, err)
	assert.NotZero(t, job.ID)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "render", got.Title)
	assert.Equal(t, models.JobPending, got.Status)
	assert.Equal(t, uint64(100), got.Reward)
	assert.True(t, job.Deadline.Equal(got.Deadline))
	assert.Nil(t, got.External)

	ext := sampleJob("chain", acct.ID)
	ext.External = &models.ExternalIdentity{JobID: 42, TxHash: "0xaa", Block: 10}
	created, err := s.InsertJob(ctx, ext)
	require.NoError(t, err)

	byExt, err := s.GetJobByExternalID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byExt.ID)
	require.NotNil(t, byExt.External)
	assert.Equal(t, "0xaa", byExt.External.TxHash)
	assert.Equal(t, uint64(10), byExt.External.Block)

	dup := sampleJob("again", acct.ID)
	dup.External = &models.ExternalIdentity{JobID: 42, TxHash: "0xbb"}
	_, err = s.InsertJob(ctx, dup)
	assert.True(t, errors.Is(err, models.ErrDuplicateExternalID))

	_, err = s.InsertJob(ctx, sampleJob("", acct.ID))
	assert.True(t, errors.Is(err, models.ErrMissingFields))

	_, err = s.GetJob(ctx, 9999)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	_, err = s.GetJobByExternalID(ctx, 9999)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func testListJobs(t *testing.T, s Store) {
	ctx := context.Background()
	acct, err := s.EnsureAccount(ctx, "0xreq")
	require.NoError(t, err)

	titles := []string{"Render frames", "Train model", "render thumbnails", "Index chain"}
	for i, title := range titles {
		job := sampleJob(title, acct.ID)
		if i == 3 {
			job.Status = models.JobCompleted
			job.Description = "scan RENDER logs"
		}
		_, err := s.InsertJob(ctx, job)
		require.NoError(t, err)
	}

	all, err := s.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	found, err := s.ListJobs(ctx, JobFilter{Search: "render"})
	require.NoError(t, err)
	assert.Len(t, found, 3)

	pending, err := s.ListJobs(ctx, JobFilter{Search: "render", Statuses: []models.JobStatus{models.JobPending}})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	page, err := s.ListJobs(ctx, JobFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "Train model", page[0].Title)
	assert.Equal(t, "render thumbnails", page[1].Title)

	n, err := s.CountJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	n, err = s.CountJobs(ctx, models.JobPending, models.JobActive)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func testUpdateJob(t *testing.T, s Store) {
	ctx := context.Background()
	job, err := s.InsertJob(ctx, sampleJob("update me", 0))
	require.NoError(t, err)

	updated, err := s.UpdateJob(ctx, job.ID, func(j *models.Job) error {
		j.Status = models.JobActive
		j.Workers = append(j.Workers, 7)
		j.ID = 12345
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, job.ID, updated.ID)
	assert.Equal(t, models.JobActive, updated.Status)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobActive, got.Status)
	assert.Equal(t, []uint64{7}, got.Workers)

	boom := errors.New("boom")
	_, err = s.UpdateJob(ctx, job.ID, func(j *models.Job) error {
		j.Status = models.JobFailed
		return boom
	})
	assert.True(t, errors.Is(err, boom))
	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobActive, got.Status)

	_, err = s.UpdateJob(ctx, 9999, func(j *models.Job) error { return nil })
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func newExternalJob(extID uint64, tx string) *models.Job {
	job := sampleJob(fmt.Sprintf("Job #%d", extID), 0)
	job.External = &models.ExternalIdentity{JobID: extID, TxHash: tx}
	return job
}

func testMergeExternalJob(t *testing.T, s Store) {
	ctx := context.Background()

	job, created, err := s.MergeExternalJob(ctx, 5, func(existing *models.Job) (*models.Job, error) {
		assert.Nil(t, existing)
		return newExternalJob(5, "0x01"), nil
	})
	require.NoError(t, err)
	assert.True(t, created)

	merged, created, err := s.MergeExternalJob(ctx, 5, func(existing *models.Job) (*models.Job, error) {
		require.NotNil(t, existing)
		existing.External.TxHash = "0x02"
		return existing, nil
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, job.ID, merged.ID)

	got, err := s.GetJobByExternalID(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "0x02", got.External.TxHash)

	_, _, err = s.MergeExternalJob(ctx, 6, func(existing *models.Job) (*models.Job, error) {
		return newExternalJob(7, "0x03"), nil
	})
	assert.Error(t, err)
}

func testCompleteJob(t *testing.T, s Store) {
	ctx := context.Background()
	worker, err := s.EnsureAccount(ctx, "0xworker")
	require.NoError(t, err)
	_, err = s.UpsertComputeNode(ctx, worker.ID, "0xworker", 2)
	require.NoError(t, err)

	first, err := s.InsertJob(ctx, sampleJob("first", 0))
	require.NoError(t, err)
	second, err := s.InsertJob(ctx, sampleJob("second", 0))
	require.NoError(t, err)

	for _, id := range []uint64{first.ID, second.ID} {
		job, earning, err := s.CompleteJob(ctx, id, func(j *models.Job) (*models.Earning, error) {
			j.Status = models.JobCompleted
			return &models.Earning{AccountID: worker.ID, Amount: 50}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, models.JobCompleted, job.Status)
		assert.Equal(t, id, earning.JobID)
		assert.NotZero(t, earning.ID)
	}

	earnings, err := s.ListEarnings(ctx, worker.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, earnings, 2)
	assert.Equal(t, second.ID, earnings[0].JobID)
	assert.Equal(t, first.ID, earnings[1].JobID)

	page, err := s.ListEarnings(ctx, worker.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].JobID)

	total, err := s.SumEarnings(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), total)

	node, err := s.GetComputeNodeByAddress(ctx, "0xworker")
	require.NoError(t, err)
	assert.Equal(t, 100.0, node.TotalEarnings)

	rejected := models.NewError(models.KindNotSubmittable, "done")
	_, _, err = s.CompleteJob(ctx, first.ID, func(j *models.Job) (*models.Earning, error) {
		return nil, rejected
	})
	assert.True(t, errors.Is(err, models.ErrNotSubmittable))
	total, err = s.SumEarnings(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), total)
}

func testSyncCursor(t *testing.T, s Store) {
	ctx := context.Background()

	_, ok, err := s.LastSyncedBlock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AdvanceSyncedBlock(ctx, 100))
	require.NoError(t, s.AdvanceSyncedBlock(ctx, 50))

	block, ok, err := s.LastSyncedBlock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(100), block)

	require.NoError(t, s.AdvanceSyncedBlock(ctx, 150))
	block, _, err = s.LastSyncedBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), block)
}

func testConcurrentUpdates(t *testing.T, s Store) {
	ctx := context.Background()
	job, err := s.InsertJob(ctx, sampleJob("contended", 0))
	require.NoError(t, err)

	const writers = 16
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		worker := uint64(i + 1)
		g.Go(func() error {
			_, err := s.UpdateJob(ctx, job.ID, func(j *models.Job) error {
				j.Workers = append(j.Workers, worker)
				return nil
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, got.Workers, writers)
}

func testConcurrentMerges(t *testing.T, s Store) {
	ctx := context.Background()

	const writers = 8
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			_, _, err := s.MergeExternalJob(ctx, 77, func(existing *models.Job) (*models.Job, error) {
				if existing == nil {
					return newExternalJob(77, "0x77"), nil
				}
				return existing, nil
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	n, err := s.CountJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testConcurrentAccounts(t *testing.T, s Store) {
	ctx := context.Background()

	const callers = 8
	ids := make([]uint64, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			a, err := s.EnsureAccount(ctx, "0xSAME")
			if err != nil {
				return err
			}
			ids[i] = a.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}
