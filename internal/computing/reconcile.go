package computing

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/filswan/go-swan-lib/logs"

	"github.com/lagrangedao/go-computing-market/internal/models"
	"github.com/lagrangedao/go-computing-market/internal/store"
)

// ReconcileResult counts what a batch did. Failed events hit a store error and
// may succeed on a retry of the same range; Skipped events are malformed and
// never will.
type ReconcileResult struct {
	Processed int `json:"processedCount"`
	Created   int `json:"createdCount"`
	Skipped   int `json:"skippedCount"`
	Failed    int `json:"failedCount"`
}

func (r *ReconcileResult) add(o ReconcileResult) {
	r.Processed += o.Processed
	r.Created += o.Created
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

// ReconcileEngine folds JobCreated events into the ledger. Replaying any batch
// converges to the same rows: the chain decides that a job exists and who
// created it, local operations own its status.
type ReconcileEngine struct {
	store  store.Store
	policy Policy
	now    func() time.Time
}

func NewReconcileEngine(s store.Store, policy Policy, opts ...Option) *ReconcileEngine {
	o := buildOptions(opts)
	return &ReconcileEngine{store: s, policy: policy, now: o.now}
}

type jobCreated struct {
	externalID uint64
	requester  string
	reward     uint64
	txHash     string
	block      uint64
}

// rewards are stored as BIGINT by the postgres backend
var maxReward = big.NewInt(math.MaxInt64)

// FloorRewardAmount parses a non-negative decimal amount and drops its
// fractional part.
func FloorRewardAmount(amount string) (uint64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, fmt.Errorf("reward amount is empty")
	}
	r, ok := new(big.Rat).SetString(amount)
	if !ok {
		return 0, fmt.Errorf("reward amount %q is not a decimal number", amount)
	}
	if r.Sign() < 0 {
		return 0, fmt.Errorf("reward amount %q is negative", amount)
	}
	floor := new(big.Int).Quo(r.Num(), r.Denom())
	if floor.Cmp(maxReward) > 0 {
		return 0, fmt.Errorf("reward amount %q overflows", amount)
	}
	return floor.Uint64(), nil
}

func parseEvent(ev models.JobCreatedEvent) (jobCreated, error) {
	if ev.ExternalJobID == nil {
		return jobCreated{}, models.NewError(models.KindMalformedEvent, "event has no job id")
	}
	requester := models.NormalizeAddress(ev.RequesterAddress)
	if requester == "" {
		return jobCreated{}, models.NewError(models.KindMalformedEvent, "event for job %d has no requester", *ev.ExternalJobID)
	}
	txHash := strings.TrimSpace(ev.TransactionHash)
	if txHash == "" {
		return jobCreated{}, models.NewError(models.KindMalformedEvent, "event for job %d has no transaction hash", *ev.ExternalJobID)
	}
	reward, err := FloorRewardAmount(ev.RewardAmount)
	if err != nil {
		return jobCreated{}, models.WrapError(models.KindMalformedEvent, err, "event for job %d", *ev.ExternalJobID)
	}
	return jobCreated{
		externalID: *ev.ExternalJobID,
		requester:  requester,
		reward:     reward,
		txHash:     txHash,
		block:      ev.BlockNumber,
	}, nil
}

// mergeJobCreated returns the job to persist for ev given the mirrored job, if any.
//
// An existing job keeps its reward, status and requester when set. The
// transaction hash follows the highest observed block, an event without a
// block always wins, so batches from overlapping ranges commute.
func mergeJobCreated(existing *models.Job, ev jobCreated, requesterID uint64, policy Policy, now time.Time) *models.Job {
	if existing == nil {
		return &models.Job{
			Title:              fmt.Sprintf("Job #%d", ev.externalID),
			Reward:             ev.reward,
			Status:             models.JobPending,
			RequiredNodes:      policy.ChainJobRequiredNodes,
			Deadline:           now.Add(policy.ChainJobDeadline).UTC(),
			RequesterAccountID: requesterID,
			External: &models.ExternalIdentity{
				JobID:  ev.externalID,
				TxHash: ev.txHash,
				Block:  ev.block,
			},
			CreatedAt: now.UTC(),
		}
	}

	job := existing
	if job.Reward == 0 {
		job.Reward = ev.reward
	}
	if !job.Status.Valid() {
		job.Status = models.JobPending
	}
	if job.RequesterAccountID == 0 {
		job.RequesterAccountID = requesterID
	}
	if job.External == nil {
		job.External = &models.ExternalIdentity{JobID: ev.externalID}
	}
	if ev.block == 0 || ev.block >= job.External.Block {
		job.External.TxHash = ev.txHash
		if ev.block > job.External.Block {
			job.External.Block = ev.block
		}
	}
	return job
}

// Reconcile applies events in order. A malformed event or a store failure on
// one event is logged and counted; the rest of the batch still runs. Only a
// cancelled context stops the batch early.
func (e *ReconcileEngine) Reconcile(ctx context.Context, events []models.JobCreatedEvent) (ReconcileResult, error) {
	var result ReconcileResult
	// accounts resolved during this batch
	accounts := make(map[string]uint64)

	for i, raw := range events {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ev, err := parseEvent(raw)
		if err != nil {
			logs.GetLogger().Warnf("skip malformed JobCreated event #%d: %v", i, err)
			reconciledEvents.WithLabelValues("skipped").Inc()
			result.Skipped++
			continue
		}

		created, err := e.apply(ctx, ev, accounts)
		if err != nil {
			logs.GetLogger().Errorf("failed to reconcile external job %d, tx: %s, error: %v", ev.externalID, ev.txHash, err)
			reconciledEvents.WithLabelValues("failed").Inc()
			result.Failed++
			continue
		}
		result.Processed++
		if created {
			result.Created++
			reconciledEvents.WithLabelValues("created").Inc()
		} else {
			reconciledEvents.WithLabelValues("merged").Inc()
		}
	}
	return result, nil
}

// ReconcileRaw decodes every element of a JSON batch on its own, so an element
// that does not fit JobCreatedEvent is skipped like any other malformed event.
func (e *ReconcileEngine) ReconcileRaw(ctx context.Context, batch []json.RawMessage) (ReconcileResult, error) {
	events := make([]models.JobCreatedEvent, 0, len(batch))
	var undecodable int
	for i, raw := range batch {
		var ev models.JobCreatedEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			logs.GetLogger().Warnf("skip malformed JobCreated event #%d: %v", i, err)
			reconciledEvents.WithLabelValues("skipped").Inc()
			undecodable++
			continue
		}
		events = append(events, ev)
	}

	result, err := e.Reconcile(ctx, events)
	result.Skipped += undecodable
	return result, err
}

func (e *ReconcileEngine) apply(ctx context.Context, ev jobCreated, accounts map[string]uint64) (bool, error) {
	requesterID, ok := accounts[ev.requester]
	if !ok {
		account, err := e.store.EnsureAccount(ctx, ev.requester)
		if err != nil {
			return false, err
		}
		requesterID = account.ID
		accounts[ev.requester] = requesterID
	}

	now := e.now()
	job, created, err := e.store.MergeExternalJob(ctx, ev.externalID, func(existing *models.Job) (*models.Job, error) {
		return mergeJobCreated(existing, ev, requesterID, e.policy, now), nil
	})
	if err != nil {
		return false, err
	}
	logs.GetLogger().Debugf("reconciled external job %d as job %d, created: %t, status: %s", ev.externalID, job.ID, created, job.Status)
	return created, nil
}
