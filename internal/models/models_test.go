package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/xerrors"
)

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xabcdef0123", NormalizeAddress("  0xABCdef0123 "))
	assert.Equal(t, "", NormalizeAddress("   "))
	assert.Equal(t, NormalizeAddress("0xAA"), NormalizeAddress("0xaa"))
}

func TestJobStatus(t *testing.T) {
	for _, s := range AllJobStatuses {
		parsed, err := ParseJobStatus(string(s))
		assert.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseJobStatus("pending")
	assert.Error(t, err)

	assert.False(t, JobPending.Terminal())
	assert.False(t, JobActive.Terminal())
	assert.True(t, JobCompleted.Terminal())
	assert.True(t, JobFailed.Terminal())
}

func TestErrorKindMatching(t *testing.T) {
	err := NewError(KindNotJoinable, "job %d is %s", 7, JobCompleted)
	wrapped := xerrors.Errorf("join: %w", err)

	assert.True(t, errors.Is(wrapped, ErrNotJoinable))
	assert.False(t, errors.Is(wrapped, ErrNotSubmittable))
	assert.Equal(t, KindNotJoinable, KindOf(wrapped))
	assert.Equal(t, ErrorKind(0), KindOf(errors.New("disk full")))
	assert.Equal(t, "job 7 is COMPLETED", err.Error())
	assert.Equal(t, "NotFound", ErrNotFound.Error())
}

func TestJobClone(t *testing.T) {
	j := &Job{
		ID:       1,
		External: &ExternalIdentity{JobID: 9, TxHash: "0x1"},
		Workers:  []uint64{3},
		Deadline: time.Now(),
	}
	c := j.Clone()
	c.External.TxHash = "0x2"
	c.Workers[0] = 4

	assert.Equal(t, "0x1", j.External.TxHash)
	assert.Equal(t, uint64(3), j.Workers[0])
	assert.True(t, c.HasWorker(4))
	assert.False(t, j.HasWorker(4))
}

func TestJobCreatedEventRewardAmount(t *testing.T) {
	var ev JobCreatedEvent
	assert.NoError(t, json.Unmarshal([]byte(`{"externalJobId":3,"requesterAddress":"0xA","rewardAmount":"12.5","transactionHash":"0x1"}`), &ev))
	assert.Equal(t, "12.5", ev.RewardAmount)
	if assert.NotNil(t, ev.ExternalJobID) {
		assert.Equal(t, uint64(3), *ev.ExternalJobID)
	}
	assert.Equal(t, "0xA", ev.RequesterAddress)

	ev = JobCreatedEvent{}
	assert.NoError(t, json.Unmarshal([]byte(`{"externalJobId":4,"rewardAmount":10,"blockNumber":9}`), &ev))
	assert.Equal(t, "10", ev.RewardAmount)
	assert.Equal(t, uint64(9), ev.BlockNumber)

	ev = JobCreatedEvent{}
	assert.NoError(t, json.Unmarshal([]byte(`{"externalJobId":5}`), &ev))
	assert.Equal(t, "", ev.RewardAmount)

	assert.Error(t, json.Unmarshal([]byte(`{"externalJobId":-3,"rewardAmount":"1"}`), &ev))
	assert.Error(t, json.Unmarshal([]byte(`{"externalJobId":6,"rewardAmount":true}`), &ev))
}
