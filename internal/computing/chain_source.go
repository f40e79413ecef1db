package computing

import (
	"context"
	"math/big"

	"github.com/lagrangedao/go-computing-market/internal/models"
	"github.com/lagrangedao/go-computing-market/wallet/contract/core"
)

// EventSource yields the JobCreated events of a block range, inclusive on both ends.
type EventSource interface {
	LatestBlock(ctx context.Context) (uint64, error)
	JobCreatedEvents(ctx context.Context, fromBlock, toBlock uint64) ([]models.JobCreatedEvent, error)
}

// JobCreatedFilterer is the part of the JobCore contract stub the chain source reads.
type JobCreatedFilterer interface {
	LatestBlock(ctx context.Context) (uint64, error)
	JobCreatedEvents(ctx context.Context, from, to uint64) ([]*core.JobCoreJobCreated, error)
}

// ChainEventSource turns JobCreated logs into reconciliation events. Rewards
// arrive in the token's base unit and are rendered as exact decimals of whole
// tokens; flooring is left to the engine.
type ChainEventSource struct {
	filterer JobCreatedFilterer
	unit     *big.Int
}

func NewChainEventSource(filterer JobCreatedFilterer, rewardDecimals int) *ChainEventSource {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(rewardDecimals)), nil)
	return &ChainEventSource{filterer: filterer, unit: unit}
}

func (c *ChainEventSource) LatestBlock(ctx context.Context) (uint64, error) {
	return c.filterer.LatestBlock(ctx)
}

func (c *ChainEventSource) JobCreatedEvents(ctx context.Context, fromBlock, toBlock uint64) ([]models.JobCreatedEvent, error) {
	logs, err := c.filterer.JobCreatedEvents(ctx, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}
	events := make([]models.JobCreatedEvent, 0, len(logs))
	for _, log := range logs {
		events = append(events, c.toEvent(log))
	}
	return events, nil
}

// toEvent never fails: a log whose id does not fit or whose reward is missing
// becomes an event the engine will reject as malformed.
func (c *ChainEventSource) toEvent(log *core.JobCoreJobCreated) models.JobCreatedEvent {
	ev := models.JobCreatedEvent{
		RequesterAddress: log.Requester.Hex(),
		TransactionHash:  log.Raw.TxHash.Hex(),
		BlockNumber:      log.Raw.BlockNumber,
	}
	if log.JobId != nil && log.JobId.IsUint64() {
		id := log.JobId.Uint64()
		ev.ExternalJobID = &id
	}
	if log.Reward != nil {
		ev.RewardAmount = c.formatReward(log.Reward)
	}
	return ev
}

func (c *ChainEventSource) formatReward(amount *big.Int) string {
	r := new(big.Rat).SetFrac(amount, c.unit)
	if r.IsInt() {
		return r.Num().String()
	}
	decimals := len(c.unit.String()) - 1
	return r.FloatString(decimals)
}
