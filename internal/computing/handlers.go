package computing

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/gin-gonic/gin"

	"github.com/lagrangedao/go-computing-market/constants"
	"github.com/lagrangedao/go-computing-market/internal/models"
	"github.com/lagrangedao/go-computing-market/internal/store"
	"github.com/lagrangedao/go-computing-market/util"
)

// JobView is the API rendering of a job.
type JobView struct {
	ID            uint64           `json:"id"`
	Title         string           `json:"title"`
	Description   string           `json:"description,omitempty"`
	Reward        string           `json:"reward"`
	RewardAmount  uint64           `json:"rewardAmount"`
	Deadline      string           `json:"deadline"`
	DeadlineAt    time.Time        `json:"deadlineAt"`
	RequiredNodes int              `json:"requiredNodes"`
	Status        models.JobStatus `json:"status"`
	OnchainID     *uint64          `json:"onchainId"`
	OnchainTx     *string          `json:"onchainTx"`
}

func NewJobView(job *models.Job, now time.Time) JobView {
	view := JobView{
		ID:            job.ID,
		Title:         job.Title,
		Description:   job.Description,
		Reward:        fmt.Sprintf("%d %s", job.Reward, constants.REWARD_UNIT),
		RewardAmount:  job.Reward,
		Deadline:      FormatDeadline(job.Deadline, now),
		DeadlineAt:    job.Deadline,
		RequiredNodes: job.RequiredNodes,
		Status:        job.Status,
	}
	if job.External != nil {
		id, tx := job.External.JobID, job.External.TxHash
		view.OnchainID = &id
		if tx != "" {
			view.OnchainTx = &tx
		}
	}
	return view
}

type CreateJobBody struct {
	Title            string  `json:"title"`
	Description      string  `json:"description,omitempty"`
	Reward           uint64  `json:"reward"`
	RequiredNodes    int     `json:"requiredNodes"`
	Deadline         string  `json:"deadline"`
	RequesterAddress string  `json:"requesterAddress"`
	OnchainID        *uint64 `json:"onchainId,omitempty"`
	OnchainTx        string  `json:"onchainTx,omitempty"`
}

type WorkerBody struct {
	WorkerAddress string `json:"workerAddress"`
}

type RegisterNodeBody struct {
	Address      string  `json:"address"`
	ComputePower float64 `json:"computePower"`
}

type HeartbeatBody struct {
	Address string `json:"address"`
}

type JoinResult struct {
	OK     bool             `json:"ok"`
	Status models.JobStatus `json:"status"`
}

type SubmitResult struct {
	OK     bool   `json:"ok"`
	Amount uint64 `json:"amount"`
}

type Handler struct {
	lifecycle *LifecycleService
	engine    *ReconcileEngine
	sync      *SyncDriver
	nodes     *NodeService
	stats     *StatsService
}

func NewHandler(lifecycle *LifecycleService, engine *ReconcileEngine, sync *SyncDriver, nodes *NodeService, stats *StatsService) *Handler {
	return &Handler{lifecycle: lifecycle, engine: engine, sync: sync, nodes: nodes, stats: stats}
}

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/jobs", h.ListJobs)
	router.GET("/jobs/:id", h.GetJob)
	router.POST("/jobs", h.CreateJob)
	router.POST("/jobs/:id/join", h.JoinJob)
	router.POST("/jobs/:id/submit", h.SubmitJob)

	router.POST("/sync/jobs/created", h.SyncJobCreated)
	router.POST("/sync/reconcile", h.Reconcile)

	router.GET("/earnings", h.ListEarnings)
	router.POST("/nodes/register", h.RegisterNode)
	router.GET("/nodes/stats", h.NodeStats)
	router.POST("/nodes/heartbeat", h.Heartbeat)
	router.GET("/stats/network", h.NetworkStats)
}

// errorCode maps a service error to an HTTP status and response code.
// notFound is the code used for a NotFound error on this route.
func errorCode(err error, notFound int) (int, int) {
	if errors.Is(err, ErrSyncInProgress) {
		return http.StatusConflict, util.SyncInProgressError
	}
	switch models.KindOf(err) {
	case models.KindNotFound:
		return http.StatusNotFound, notFound
	case models.KindInvalidDeadline:
		return http.StatusBadRequest, util.InvalidDeadlineError
	case models.KindDuplicateExternalID:
		return http.StatusConflict, util.DuplicateOnchainIdError
	case models.KindNotJoinable:
		return http.StatusBadRequest, util.JobNotJoinableError
	case models.KindNotSubmittable:
		return http.StatusBadRequest, util.JobNotSubmittableError
	case models.KindDeadlineExpired:
		return http.StatusBadRequest, util.DeadlinePassedError
	case models.KindMalformedEvent:
		return http.StatusBadRequest, util.MalformedEventError
	case models.KindMissingFields:
		return http.StatusBadRequest, util.MissingFieldsError
	case models.KindCapacityReached:
		return http.StatusConflict, util.CapacityReachedError
	case models.KindInvalidComputePower:
		return http.StatusBadRequest, util.InvalidComputePowerError
	}
	return http.StatusInternalServerError, util.ServerError
}

func respondError(c *gin.Context, err error, notFound int) {
	status, code := errorCode(err, notFound)
	if status == http.StatusInternalServerError {
		logs.GetLogger().Errorf("%s %s failed, error: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, util.CreateErrorResponse(code))
		return
	}
	c.JSON(status, util.CreateErrorResponse(code, err.Error()))
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}

func jobID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.InvalidJobIdError))
		return 0, false
	}
	return id, true
}

func (h *Handler) ListJobs(c *gin.Context) {
	filter := store.JobFilter{
		Search: c.Query("search"),
		Limit:  clampLimit(queryInt(c, "limit", constants.DEFAULT_LIST_LIMIT)),
		Offset: queryInt(c, "offset", 0),
	}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status, err := models.ParseJobStatus(strings.ToUpper(strings.TrimSpace(s)))
			if err != nil {
				c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.InvalidStatusError, err.Error()))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	jobs, err := h.lifecycle.ListJobs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, util.JobNotFoundError)
		return
	}
	now := h.lifecycle.Now()
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, NewJobView(job, now))
	}
	c.JSON(http.StatusOK, util.CreatePageResponse(views, util.PageInfo{
		Limit:  filter.Limit,
		Offset: filter.Offset,
		Count:  len(views),
	}))
}

func (h *Handler) GetJob(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	job, err := h.lifecycle.GetJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, util.JobNotFoundError)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(NewJobView(job, h.lifecycle.Now())))
}

func (h *Handler) CreateJob(c *gin.Context) {
	var body CreateJobBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, err.Error()))
		return
	}

	req := CreateJobRequest{
		Title:            body.Title,
		Description:      body.Description,
		Reward:           body.Reward,
		RequiredNodes:    body.RequiredNodes,
		Deadline:         body.Deadline,
		RequesterAddress: body.RequesterAddress,
	}
	if body.OnchainID != nil {
		req.External = &models.ExternalIdentity{JobID: *body.OnchainID, TxHash: body.OnchainTx}
	}

	job, err := h.lifecycle.CreateJob(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, util.JobNotFoundError)
		return
	}
	c.JSON(http.StatusCreated, util.CreateSuccessResponse(NewJobView(job, h.lifecycle.Now())))
}

func (h *Handler) workerRequest(c *gin.Context) (uint64, string, bool) {
	id, ok := jobID(c)
	if !ok {
		return 0, "", false
	}
	var body WorkerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, err.Error()))
		return 0, "", false
	}
	if strings.TrimSpace(body.WorkerAddress) == "" {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.MissingWorkerError))
		return 0, "", false
	}
	return id, body.WorkerAddress, true
}

func (h *Handler) JoinJob(c *gin.Context) {
	id, worker, ok := h.workerRequest(c)
	if !ok {
		return
	}
	job, err := h.lifecycle.RequestJoin(c.Request.Context(), id, worker)
	if err != nil {
		respondError(c, err, util.JobNotFoundError)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(JoinResult{OK: true, Status: job.Status}))
}

func (h *Handler) SubmitJob(c *gin.Context) {
	id, worker, ok := h.workerRequest(c)
	if !ok {
		return
	}
	_, earning, err := h.lifecycle.RequestSubmit(c.Request.Context(), id, worker)
	if err != nil {
		respondError(c, err, util.JobNotFoundError)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(SubmitResult{OK: true, Amount: earning.Amount}))
}

func (h *Handler) SyncJobCreated(c *gin.Context) {
	var req SyncRequest
	// an empty body means "resume from the cursor"
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, err.Error()))
			return
		}
	}
	result, err := h.sync.Sync(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, util.JobNotFoundError)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(result))
}

func (h *Handler) Reconcile(c *gin.Context) {
	var batch []json.RawMessage
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, err.Error()))
		return
	}
	result, err := h.engine.ReconcileRaw(c.Request.Context(), batch)
	if err != nil {
		respondError(c, err, util.JobNotFoundError)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(result))
}

func (h *Handler) ListEarnings(c *gin.Context) {
	address := c.Query("address")
	if strings.TrimSpace(address) == "" {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.MissingAddressError))
		return
	}
	limit := clampLimit(queryInt(c, "limit", constants.DEFAULT_LIST_LIMIT))
	offset := queryInt(c, "offset", 0)

	earnings, err := h.stats.Earnings(c.Request.Context(), address, limit, offset)
	if err != nil {
		respondError(c, err, util.AccountNotFoundError)
		return
	}
	c.JSON(http.StatusOK, util.CreatePageResponse(earnings, util.PageInfo{Limit: limit, Offset: offset, Count: len(earnings)}))
}

func (h *Handler) RegisterNode(c *gin.Context) {
	var body RegisterNodeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, err.Error()))
		return
	}
	if strings.TrimSpace(body.Address) == "" {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.MissingAddressError))
		return
	}
	node, err := h.nodes.RegisterNode(c.Request.Context(), body.Address, body.ComputePower)
	if err != nil {
		respondError(c, err, util.NodeNotFoundError)
		return
	}
	c.JSON(http.StatusCreated, util.CreateSuccessResponse(node))
}

func (h *Handler) NodeStats(c *gin.Context) {
	address := c.Query("address")
	if strings.TrimSpace(address) == "" {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.MissingAddressError))
		return
	}
	node, err := h.nodes.NodeStats(c.Request.Context(), address)
	if err != nil {
		respondError(c, err, util.NodeNotFoundError)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(node))
}

func (h *Handler) Heartbeat(c *gin.Context) {
	var body HeartbeatBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, err.Error()))
		return
	}
	if strings.TrimSpace(body.Address) == "" {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.MissingAddressError))
		return
	}
	node, err := h.nodes.Heartbeat(c.Request.Context(), body.Address)
	if err != nil {
		respondError(c, err, util.NodeNotFoundError)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(node))
}

func (h *Handler) NetworkStats(c *gin.Context) {
	stats, err := h.stats.NetworkStats(c.Request.Context())
	if err != nil {
		respondError(c, err, util.JobNotFoundError)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(stats))
}
