package computing

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"

	"github.com/lagrangedao/go-computing-market/internal/models"
	"github.com/lagrangedao/go-computing-market/internal/store"
)

func newEngine(t testing.TB) (*ReconcileEngine, store.Store, *testClock) {
	s := newMemStore(t)
	clock := newTestClock()
	return NewReconcileEngine(s, DefaultPolicy(), WithClock(clock.Now)), s, clock
}

func TestFloorRewardAmount(t *testing.T) {
	cases := map[string]uint64{
		"0":                    0,
		"10":                   10,
		"10.999":               10,
		" 7.5 ":                7,
		"0.0001":               0,
		"1e3":                  1000,
		"9223372036854775807":  math.MaxInt64,
	}
	for in, want := range cases {
		got, err := FloorRewardAmount(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "abc", "-1", "9223372036854775808", "18446744073709551615", "1/0x"} {
		_, err := FloorRewardAmount(in)
		assert.Error(t, err, in)
	}
}

func TestReconcileCreatesPendingJob(t *testing.T) {
	ctx := context.Background()
	engine, s, _ := newEngine(t)

	result, err := engine.Reconcile(ctx, []models.JobCreatedEvent{
		jobCreatedEvent(7, "0xRequester", "12.9", "0xtx1", 100),
	})
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Processed: 1, Created: 1}, result)

	job, err := s.GetJobByExternalID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Job #7", job.Title)
	assert.Equal(t, uint64(12), job.Reward)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, 1, job.RequiredNodes)
	assert.True(t, epoch.Add(24*time.Hour).Equal(job.Deadline))
	assert.Equal(t, "0xtx1", job.External.TxHash)
	assert.Equal(t, uint64(100), job.External.Block)

	requester, err := s.GetAccountByAddress(ctx, "0xrequester")
	require.NoError(t, err)
	assert.Equal(t, requester.ID, job.RequesterAccountID)
}

func TestReconcileStaleReplayKeepsReward(t *testing.T) {
	ctx := context.Background()
	engine, s, _ := newEngine(t)

	_, err := engine.Reconcile(ctx, []models.JobCreatedEvent{jobCreatedEvent(1, "0xA", "50", "0xold", 0)})
	require.NoError(t, err)
	result, err := engine.Reconcile(ctx, []models.JobCreatedEvent{jobCreatedEvent(1, "0xA", "999", "0xnew", 0)})
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Processed: 1}, result)

	jobs := allJobs(t, s)
	require.Len(t, jobs, 1)
	assert.Equal(t, uint64(50), jobs[0].Reward)
	assert.Equal(t, "0xnew", jobs[0].External.TxHash)
}

func TestReconcileDoesNotRegressStatus(t *testing.T) {
	ctx := context.Background()
	engine, s, clock := newEngine(t)
	lifecycle := NewLifecycleService(s, DefaultPolicy(), WithClock(clock.Now))

	ev := jobCreatedEvent(3, "0xA", "30", "0xtx", 10)
	_, err := engine.Reconcile(ctx, []models.JobCreatedEvent{ev})
	require.NoError(t, err)
	job, err := s.GetJobByExternalID(ctx, 3)
	require.NoError(t, err)

	_, _, err = lifecycle.RequestSubmit(ctx, job.ID, "0xWorker")
	require.NoError(t, err)

	_, err = engine.Reconcile(ctx, []models.JobCreatedEvent{ev, ev})
	require.NoError(t, err)
	job, err = s.GetJobByExternalID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.Status)
}

func TestReconcileMergesLocallyCreatedJob(t *testing.T) {
	ctx := context.Background()
	engine, s, clock := newEngine(t)
	lifecycle := NewLifecycleService(s, DefaultPolicy(), WithClock(clock.Now))

	req := createRequest("Local title", "in 3d")
	req.Reward = 0
	req.External = &models.ExternalIdentity{JobID: 11, TxHash: "0xlocal"}
	local, err := lifecycle.CreateJob(ctx, req)
	require.NoError(t, err)

	result, err := engine.Reconcile(ctx, []models.JobCreatedEvent{jobCreatedEvent(11, "0xOther", "40", "0xchain", 55)})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)

	job, err := s.GetJob(ctx, local.ID)
	require.NoError(t, err)
	assert.Equal(t, "Local title", job.Title)
	assert.Equal(t, 3, job.RequiredNodes)
	// a zero reward is backfilled from the event
	assert.Equal(t, uint64(40), job.Reward)
	assert.Equal(t, local.RequesterAccountID, job.RequesterAccountID)
	assert.Equal(t, "0xchain", job.External.TxHash)
	assert.Equal(t, uint64(55), job.External.Block)
}

func TestReconcileOlderBlockKeepsTxHash(t *testing.T) {
	ctx := context.Background()
	engine, s, _ := newEngine(t)

	_, err := engine.Reconcile(ctx, []models.JobCreatedEvent{
		jobCreatedEvent(2, "0xA", "5", "0xlate", 200),
		jobCreatedEvent(2, "0xA", "5", "0xearly", 150),
	})
	require.NoError(t, err)

	job, err := s.GetJobByExternalID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "0xlate", job.External.TxHash)
	assert.Equal(t, uint64(200), job.External.Block)
}

func TestReconcileSkipsMalformedEvents(t *testing.T) {
	ctx := context.Background()
	engine, s, _ := newEngine(t)

	events := []models.JobCreatedEvent{
		{RequesterAddress: "0xA", RewardAmount: "1", TransactionHash: "0x1"},
		jobCreatedEvent(1, "", "1", "0x1", 1),
		jobCreatedEvent(2, "0xA", "lots", "0x2", 1),
		jobCreatedEvent(3, "0xA", "-4", "0x3", 1),
		jobCreatedEvent(4, "0xA", "4", " ", 1),
		jobCreatedEvent(5, "0xA", "5", "0x5", 1),
	}
	result, err := engine.Reconcile(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Processed: 1, Created: 1, Skipped: 5}, result)

	jobs := allJobs(t, s)
	require.Len(t, jobs, 1)
	assert.Equal(t, uint64(5), jobs[0].External.JobID)
}

func TestReconcileStopsOnCancelledContext(t *testing.T) {
	engine, _, _ := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Reconcile(ctx, []models.JobCreatedEvent{jobCreatedEvent(1, "0xA", "1", "0x1", 1)})
	assert.ErrorIs(t, err, context.Canceled)
}

type jobState struct {
	Title     string
	Reward    uint64
	Status    models.JobStatus
	Requester uint64
	TxHash    string
	Block     uint64
}

func snapshot(t testing.TB, s store.Store) map[uint64]jobState {
	out := make(map[uint64]jobState)
	for _, job := range allJobs(t, s) {
		out[job.External.JobID] = jobState{
			Title:     job.Title,
			Reward:    job.Reward,
			Status:    job.Status,
			Requester: job.RequesterAccountID,
			TxHash:    job.External.TxHash,
			Block:     job.External.Block,
		}
	}
	return out
}

// chainEvents draws events the way a range query can deliver them: every
// observation of one job id agrees on requester and reward, and each carries
// its own block.
func chainEvents(t *rapid.T) []models.JobCreatedEvent {
	n := rapid.IntRange(1, 12).Draw(t, "events")
	var events []models.JobCreatedEvent
	usedBlocks := make(map[uint64]bool)
	for i := 0; i < n; i++ {
		id := rapid.Uint64Range(1, 4).Draw(t, "id")
		block := rapid.Uint64Range(1, 1000).Draw(t, "block")
		if usedBlocks[block] {
			continue
		}
		usedBlocks[block] = true
		events = append(events, jobCreatedEvent(
			id,
			fmt.Sprintf("0xrequester%d", id%2),
			fmt.Sprintf("%d.5", id*10),
			fmt.Sprintf("0xtx%d", block),
			block,
		))
	}
	return events
}

func TestReconcileIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		events := chainEvents(rt)
		ctx := context.Background()

		once, onceStore, _ := newEngine(t)
		_, err := once.Reconcile(ctx, events)
		require.NoError(rt, err)

		twice, twiceStore, _ := newEngine(t)
		_, err = twice.Reconcile(ctx, events)
		require.NoError(rt, err)
		_, err = twice.Reconcile(ctx, events)
		require.NoError(rt, err)

		a, b := snapshot(t, onceStore), snapshot(t, twiceStore)
		if !assert.ObjectsAreEqual(a, b) {
			rt.Fatalf("replay drifted:\n once: %+v\ntwice: %+v", a, b)
		}
		if len(allJobs(t, twiceStore)) != len(a) {
			rt.Fatalf("replay duplicated jobs")
		}
	})
}

func TestReconcileOrderIndependentProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		events := chainEvents(rt)
		shuffled := rapid.Permutation(events).Draw(rt, "order")
		ctx := context.Background()

		inOrder, inOrderStore, _ := newEngine(t)
		_, err := inOrder.Reconcile(ctx, events)
		require.NoError(rt, err)

		reordered, reorderedStore, _ := newEngine(t)
		_, err = reordered.Reconcile(ctx, shuffled)
		require.NoError(rt, err)

		a, b := snapshot(t, inOrderStore), snapshot(t, reorderedStore)
		// account ids depend on first sight; compare everything else
		for id, st := range a {
			other := b[id]
			st.Requester, other.Requester = 0, 0
			if st != other {
				rt.Fatalf("job %d differs by order: %+v vs %+v", id, st, other)
			}
		}
		if len(a) != len(b) {
			rt.Fatalf("job count differs by order: %d vs %d", len(a), len(b))
		}
	})
}

func TestReconcileRawSkipsUndecodableEvents(t *testing.T) {
	ctx := context.Background()
	engine, s, _ := newEngine(t)

	batch := []json.RawMessage{
		json.RawMessage(`{"externalJobId":1,"requesterAddress":"0xA","rewardAmount":"10","transactionHash":"0x1"}`),
		json.RawMessage(`{"externalJobId":2,"requesterAddress":"0xA","rewardAmount":20,"transactionHash":"0x2"}`),
		json.RawMessage(`{"externalJobId":-3,"requesterAddress":"0xA","rewardAmount":"1","transactionHash":"0x3"}`),
		json.RawMessage(`{"externalJobId":"4","requesterAddress":"0xA","rewardAmount":"1","transactionHash":"0x4"}`),
		json.RawMessage(`"not an event"`),
	}
	result, err := engine.ReconcileRaw(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Processed: 2, Created: 2, Skipped: 3}, result)

	job, err := s.GetJobByExternalID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), job.Reward)
	assert.Len(t, allJobs(t, s), 2)
}

func TestReconcileSkipsRewardAboveStorageRange(t *testing.T) {
	ctx := context.Background()
	engine, s, _ := newEngine(t)

	result, err := engine.Reconcile(ctx, []models.JobCreatedEvent{
		jobCreatedEvent(1, "0xA", "9223372036854775808", "0x1", 5),
		jobCreatedEvent(2, "0xA", "9223372036854775807", "0x2", 5),
	})
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Processed: 1, Created: 1, Skipped: 1}, result)

	_, err = s.GetJobByExternalID(ctx, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// Replays of a chain event racing local operations on the same job never
// regress the status or the reward, and the job pays out once.
func TestReconcileRacesLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)
	clock := newTestClock()
	policy := DefaultPolicy()
	svc := NewLifecycleService(s, policy, WithClock(clock.Now))
	engine := NewReconcileEngine(s, policy, WithClock(clock.Now))

	for round := 0; round < 20; round++ {
		extID := uint64(1000 + round)
		req := createRequest(fmt.Sprintf("mirrored %d", round), "in 1h")
		req.External = &models.ExternalIdentity{JobID: extID, TxHash: "0xlocal"}
		job, err := svc.CreateJob(ctx, req)
		require.NoError(t, err)

		replay := []models.JobCreatedEvent{jobCreatedEvent(extID, "0xChain", "99", "0xchain", 0)}
		worker := fmt.Sprintf("0xWorker%d", round)

		var g errgroup.Group
		g.Go(func() error {
			if _, err := svc.RequestJoin(ctx, job.ID, worker); err != nil {
				return err
			}
			_, _, err := svc.RequestSubmit(ctx, job.ID, worker)
			return err
		})
		for i := 0; i < 5; i++ {
			g.Go(func() error {
				res, err := engine.Reconcile(ctx, replay)
				if err == nil && res.Processed != 1 {
					return fmt.Errorf("replay not processed: %+v", res)
				}
				return err
			})
		}
		require.NoError(t, g.Wait())

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobCompleted, got.Status)
		assert.Equal(t, uint64(10), got.Reward)
		assert.Equal(t, "0xchain", got.External.TxHash)

		account, err := s.GetAccountByAddress(ctx, worker)
		require.NoError(t, err)
		earnings, err := s.ListEarnings(ctx, account.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, earnings, 1)
		assert.Equal(t, Payout(10, 3), earnings[0].Amount)
	}

	jobs, err := s.CountJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, jobs)
}
