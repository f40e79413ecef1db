package computing

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lagrangedao/go-computing-market/internal/models"
	"github.com/lagrangedao/go-computing-market/wallet/contract/core"
)

type fakeFilterer struct {
	latest uint64
	logs   []*core.JobCoreJobCreated
}

func (f *fakeFilterer) LatestBlock(ctx context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeFilterer) JobCreatedEvents(ctx context.Context, from, to uint64) ([]*core.JobCoreJobCreated, error) {
	var out []*core.JobCoreJobCreated
	for _, l := range f.logs {
		if l.Raw.BlockNumber >= from && l.Raw.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}

func jobCreatedLog(id *big.Int, requester string, reward *big.Int, tx string, block uint64) *core.JobCoreJobCreated {
	return &core.JobCoreJobCreated{
		JobId:     id,
		Requester: common.HexToAddress(requester),
		Reward:    reward,
		Raw:       types.Log{TxHash: common.HexToHash(tx), BlockNumber: block},
	}
}

func TestChainEventSourceConvertsLogs(t *testing.T) {
	requester := "0x00000000000000000000000000000000000000Ab"
	f := &fakeFilterer{
		latest: 77,
		logs: []*core.JobCoreJobCreated{
			jobCreatedLog(big.NewInt(1), requester, wei("2500000000000000000"), "0x01", 10),
			jobCreatedLog(big.NewInt(2), requester, wei("3000000000000000000"), "0x02", 11),
			jobCreatedLog(wei("18446744073709551616"), requester, big.NewInt(1), "0x03", 12),
			jobCreatedLog(big.NewInt(4), requester, nil, "0x04", 13),
		},
	}
	src := NewChainEventSource(f, 18)

	latest, err := src.LatestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(77), latest)

	events, err := src.JobCreatedEvents(context.Background(), 0, 100)
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, uint64(1), *events[0].ExternalJobID)
	assert.Equal(t, "2.500000000000000000", events[0].RewardAmount)
	assert.Equal(t, strings.ToLower(requester), models.NormalizeAddress(events[0].RequesterAddress))
	assert.Equal(t, common.HexToHash("0x01").Hex(), events[0].TransactionHash)
	assert.Equal(t, uint64(10), events[0].BlockNumber)

	assert.Equal(t, "3", events[1].RewardAmount)
	assert.Nil(t, events[2].ExternalJobID)
	assert.Empty(t, events[3].RewardAmount)

	// the out of range id and the missing reward are both skipped
	engine := NewReconcileEngine(newMemStore(t), DefaultPolicy(), WithClock(func() time.Time { return epoch }))
	result, err := engine.Reconcile(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Processed: 2, Created: 2, Skipped: 2}, result)
}

func TestChainEventSourceZeroDecimals(t *testing.T) {
	f := &fakeFilterer{logs: []*core.JobCoreJobCreated{
		jobCreatedLog(big.NewInt(9), "0x01", big.NewInt(42), "0x09", 1),
	}}
	events, err := NewChainEventSource(f, 0).JobCreatedEvents(context.Background(), 0, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "42", events[0].RewardAmount)
}
