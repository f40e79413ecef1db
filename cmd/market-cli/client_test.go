package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lagrangedao/go-computing-market/conf"
	"github.com/lagrangedao/go-computing-market/internal/computing"
	"github.com/lagrangedao/go-computing-market/internal/initializer"
	"github.com/lagrangedao/go-computing-market/internal/models"
)

func newTestClient(t *testing.T) *Client {
	gin.SetMode(gin.TestMode)

	cfg := conf.DefaultConfig()
	cfg.DB.Path = filepath.Join(t.TempDir(), "ledger")
	market, err := initializer.NewMarket(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { market.Close() })

	r := gin.New()
	market.RegisterRoutes(r.Group("/api/v1/market"))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return NewClient(srv.URL + "/api/v1/market/")
}

func TestClientJobFlow(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	_, err := c.RegisterNode(ctx, "0xWorker", 4)
	require.NoError(t, err)

	job, err := c.CreateJob(ctx, computing.CreateJobBody{
		Title:            "Render trailer",
		Reward:           12,
		RequiredNodes:    2,
		Deadline:         "in 2d",
		RequesterAddress: "0xRequester",
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, "12 NGR", job.Reward)

	joined, err := c.JoinJob(ctx, job.ID, "0xWorker")
	require.NoError(t, err)
	assert.True(t, joined.OK)
	assert.Equal(t, models.JobActive, joined.Status)

	submitted, err := c.SubmitJob(ctx, job.ID, "0xWorker")
	require.NoError(t, err)
	assert.Equal(t, uint64(6), submitted.Amount)

	got, err := c.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)

	jobs, err := c.ListJobs(ctx, ListJobsParams{Statuses: []string{"completed"}})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)

	earnings, err := c.Earnings(ctx, "0xWorker", 0, 0)
	require.NoError(t, err)
	require.Len(t, earnings, 1)
	assert.Equal(t, "Render trailer", earnings[0].JobTitle)

	node, err := c.Heartbeat(ctx, "0xWorker")
	require.NoError(t, err)
	assert.NotNil(t, node.LastHeartbeat)

	stats, err := c.NetworkStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalNodes)
	assert.Equal(t, 0, stats.ActiveJobs)
	assert.Equal(t, uint64(6), stats.TotalRewards)
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	_, err := c.GetJob(ctx, 42)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "JOB_NOT_FOUND", apiErr.ErrorCode)

	_, err = c.NodeStats(ctx, "0xNobody")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "NODE_NOT_FOUND", apiErr.ErrorCode)

	// no chain configured, the pass reports zeros
	res, err := c.Sync(ctx, computing.SyncRequest{})
	require.NoError(t, err)
	assert.Zero(t, res.Synced)
}
