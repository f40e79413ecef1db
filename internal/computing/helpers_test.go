package computing

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lagrangedao/go-computing-market/internal/models"
	"github.com/lagrangedao/go-computing-market/internal/store"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: epoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newMemStore(t testing.TB) store.Store {
	s, err := store.OpenMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// allJobs returns every job ordered by external id, then local id.
func allJobs(t testing.TB, s store.Store) []*models.Job {
	jobs, err := s.ListJobs(context.Background(), store.JobFilter{})
	require.NoError(t, err)
	sort.Slice(jobs, func(i, j int) bool {
		a, b := jobs[i], jobs[j]
		if a.External != nil && b.External != nil && a.External.JobID != b.External.JobID {
			return a.External.JobID < b.External.JobID
		}
		return a.ID < b.ID
	})
	return jobs
}

func uint64p(v uint64) *uint64 {
	return &v
}

func jobCreatedEvent(id uint64, requester, reward, tx string, block uint64) models.JobCreatedEvent {
	return models.JobCreatedEvent{
		ExternalJobID:    uint64p(id),
		RequesterAddress: requester,
		RewardAmount:     reward,
		TransactionHash:  tx,
		BlockNumber:      block,
	}
}
