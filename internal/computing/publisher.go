package computing

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"golang.org/x/xerrors"

	"github.com/lagrangedao/go-computing-market/internal/models"
	"github.com/lagrangedao/go-computing-market/internal/store"
	"github.com/lagrangedao/go-computing-market/wallet/contract/core"
)

// JobPublisher sends createJob to the JobCore contract and returns the
// JobCreated event from the mined receipt.
type JobPublisher interface {
	CreateJob(ctx context.Context, description string, requiredNodes int, deadline time.Time, reward *big.Int) (*core.JobCoreJobCreated, error)
}

// PublishService creates a job on chain first and then records it locally
// with its external identity, so a later sync pass merges instead of creating.
type PublishService struct {
	publisher JobPublisher
	lifecycle *LifecycleService
	store     store.Store
	unit      *big.Int
}

func NewPublishService(publisher JobPublisher, lifecycle *LifecycleService, s store.Store, rewardDecimals int) *PublishService {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(rewardDecimals)), nil)
	return &PublishService{publisher: publisher, lifecycle: lifecycle, store: s, unit: unit}
}

func (p *PublishService) Publish(ctx context.Context, req CreateJobRequest) (*models.Job, error) {
	if strings.TrimSpace(req.Title) == "" || req.RequiredNodes <= 0 || strings.TrimSpace(req.Deadline) == "" {
		return nil, models.NewError(models.KindMissingFields, "title, requiredNodes and deadline are required")
	}
	deadline, err := ParseDeadline(req.Deadline, p.lifecycle.Now())
	if err != nil {
		return nil, err
	}

	description := req.Description
	if strings.TrimSpace(description) == "" {
		description = req.Title
	}
	value := new(big.Int).Mul(new(big.Int).SetUint64(req.Reward), p.unit)
	event, err := p.publisher.CreateJob(ctx, description, req.RequiredNodes, deadline, value)
	if err != nil {
		return nil, xerrors.Errorf("publish job on chain: %w", err)
	}
	if event.JobId == nil || !event.JobId.IsUint64() {
		return nil, models.NewError(models.KindMalformedEvent, "tx %s: JobCreated id out of range", event.Raw.TxHash.Hex())
	}

	external := &models.ExternalIdentity{
		JobID:  event.JobId.Uint64(),
		TxHash: event.Raw.TxHash.Hex(),
		Block:  event.Raw.BlockNumber,
	}
	logs.GetLogger().Infof("job published on chain, onchain_id: %d, tx: %s", external.JobID, external.TxHash)

	local := req
	local.Deadline = deadline.Format(time.RFC3339Nano)
	local.External = external
	if strings.TrimSpace(local.RequesterAddress) == "" {
		local.RequesterAddress = event.Requester.Hex()
	}
	job, err := p.lifecycle.CreateJob(ctx, local)
	if models.KindOf(err) == models.KindDuplicateExternalID {
		// a sync pass saw the event first
		return p.store.GetJobByExternalID(ctx, external.JobID)
	}
	return job, err
}
