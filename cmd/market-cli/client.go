package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lagrangedao/go-computing-market/internal/computing"
	"github.com/lagrangedao/go-computing-market/internal/models"
	"github.com/lagrangedao/go-computing-market/util"
)

// Client talks to the /api/v1/market routes of a market node.
type Client struct {
	base string
	http *http.Client
}

func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimSuffix(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type envelope struct {
	Status    string          `json:"status"`
	Code      int             `json:"code"`
	ErrorCode string          `json:"error_code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	PageInfo  *util.PageInfo  `json:"page_info"`
}

// APIError is a failure response of the market api.
type APIError struct {
	StatusCode int
	Code       int
	ErrorCode  string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.ErrorCode, e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response of %s %s, status %d: %w", method, path, resp.StatusCode, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, ErrorCode: env.ErrorCode, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

type ListJobsParams struct {
	Search   string
	Statuses []string
	Limit    int
	Offset   int
}

func (c *Client) ListJobs(ctx context.Context, p ListJobsParams) ([]computing.JobView, error) {
	q := url.Values{}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	if len(p.Statuses) > 0 {
		q.Set("status", strings.Join(p.Statuses, ","))
	}
	if p.Limit > 0 {
		q.Set("limit", fmt.Sprint(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", fmt.Sprint(p.Offset))
	}
	var jobs []computing.JobView
	err := c.do(ctx, http.MethodGet, "/jobs", q, nil, &jobs)
	return jobs, err
}

func (c *Client) GetJob(ctx context.Context, id uint64) (*computing.JobView, error) {
	var job computing.JobView
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/jobs/%d", id), nil, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) CreateJob(ctx context.Context, body computing.CreateJobBody) (*computing.JobView, error) {
	var job computing.JobView
	if err := c.do(ctx, http.MethodPost, "/jobs", nil, body, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) JoinJob(ctx context.Context, id uint64, worker string) (*computing.JoinResult, error) {
	var res computing.JoinResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/jobs/%d/join", id), nil, computing.WorkerBody{WorkerAddress: worker}, &res)
	return &res, err
}

func (c *Client) SubmitJob(ctx context.Context, id uint64, worker string) (*computing.SubmitResult, error) {
	var res computing.SubmitResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/jobs/%d/submit", id), nil, computing.WorkerBody{WorkerAddress: worker}, &res)
	return &res, err
}

func (c *Client) Sync(ctx context.Context, req computing.SyncRequest) (*computing.SyncResult, error) {
	var res computing.SyncResult
	err := c.do(ctx, http.MethodPost, "/sync/jobs/created", nil, req, &res)
	return &res, err
}

func (c *Client) Earnings(ctx context.Context, address string, limit, offset int) ([]*models.EarningDetail, error) {
	q := url.Values{"address": {address}}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if offset > 0 {
		q.Set("offset", fmt.Sprint(offset))
	}
	var earnings []*models.EarningDetail
	err := c.do(ctx, http.MethodGet, "/earnings", q, nil, &earnings)
	return earnings, err
}

func (c *Client) RegisterNode(ctx context.Context, address string, computePower float64) (*models.ComputeNode, error) {
	var node models.ComputeNode
	body := computing.RegisterNodeBody{Address: address, ComputePower: computePower}
	if err := c.do(ctx, http.MethodPost, "/nodes/register", nil, body, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func (c *Client) NodeStats(ctx context.Context, address string) (*models.ComputeNode, error) {
	var node models.ComputeNode
	if err := c.do(ctx, http.MethodGet, "/nodes/stats", url.Values{"address": {address}}, nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func (c *Client) Heartbeat(ctx context.Context, address string) (*models.ComputeNode, error) {
	var node models.ComputeNode
	if err := c.do(ctx, http.MethodPost, "/nodes/heartbeat", nil, computing.HeartbeatBody{Address: address}, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func (c *Client) NetworkStats(ctx context.Context) (*computing.NetworkStats, error) {
	var stats computing.NetworkStats
	if err := c.do(ctx, http.MethodGet, "/stats/network", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
