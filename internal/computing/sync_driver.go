package computing

import (
	"context"
	"errors"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"golang.org/x/xerrors"

	"github.com/lagrangedao/go-computing-market/conf"
	"github.com/lagrangedao/go-computing-market/internal/store"
)

var ErrSyncInProgress = errors.New("another sync pass holds the lease")

type SyncConfig struct {
	MaxBlockRange     uint64
	DefaultLookback   uint64
	RequestsPerSecond float64
	LeaseTTL          time.Duration
}

func SyncConfigFromConfig(cfg *conf.MarketNode) SyncConfig {
	return SyncConfig{
		MaxBlockRange:     cfg.Chain.MaxBlockRange,
		DefaultLookback:   cfg.Chain.DefaultLookback,
		RequestsPerSecond: cfg.Chain.RequestsPerSecond,
		LeaseTTL:          time.Duration(cfg.Redis.LeaseSeconds) * time.Second,
	}
}

// SyncRequest names an explicit block range. Without one the driver resumes
// after the stored cursor.
type SyncRequest struct {
	FromBlock *uint64 `json:"fromBlock,omitempty"`
	ToBlock   *uint64 `json:"toBlock,omitempty"`
}

type SyncResult struct {
	PassID    string `json:"passId,omitempty"`
	Synced    int    `json:"synced"`
	Created   int    `json:"created"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	FromBlock uint64 `json:"fromBlock"`
	ToBlock   uint64 `json:"toBlock"`
	LastBlock uint64 `json:"lastBlock"`
}

// SyncDriver pulls JobCreated events range by range and feeds them to the
// reconcile engine. The cursor only moves past a chunk whose events were all
// processed or skipped, so a failed pass resumes where it stopped.
type SyncDriver struct {
	source  EventSource
	engine  *ReconcileEngine
	store   store.Store
	lease   Lease
	limiter *rate.Limiter
	cfg     SyncConfig
}

// NewSyncDriver accepts a nil source; passes then report zeros.
func NewSyncDriver(source EventSource, engine *ReconcileEngine, s store.Store, lease Lease, cfg SyncConfig) *SyncDriver {
	if cfg.MaxBlockRange == 0 {
		cfg.MaxBlockRange = 5000
	}
	if cfg.DefaultLookback == 0 {
		cfg.DefaultLookback = 5000
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 2 * time.Minute
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if lease == nil {
		lease = NewLocalLease()
	}
	return &SyncDriver{
		source:  source,
		engine:  engine,
		store:   s,
		lease:   lease,
		limiter: rate.NewLimiter(limit, 1),
		cfg:     cfg,
	}
}

func (d *SyncDriver) Enabled() bool {
	return d.source != nil
}

func (d *SyncDriver) Sync(ctx context.Context, req SyncRequest) (result *SyncResult, err error) {
	if d.source == nil {
		return &SyncResult{}, nil
	}

	passID := uuid.NewString()
	defer func() {
		if errors.Is(err, ErrSyncInProgress) {
			syncPasses.WithLabelValues("busy").Inc()
		} else if err != nil {
			syncPasses.WithLabelValues("error").Inc()
		} else {
			syncPasses.WithLabelValues("ok").Inc()
		}
	}()

	ok, err := d.lease.Acquire(ctx, passID, d.cfg.LeaseTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSyncInProgress
	}
	defer func() {
		if err := d.lease.Release(context.Background(), passID); err != nil {
			logs.GetLogger().Errorf("sync pass %s: release lease failed, error: %v", passID, err)
		}
	}()

	latest, err := d.source.LatestBlock(ctx)
	if err != nil {
		return nil, xerrors.Errorf("read latest block: %w", err)
	}

	from, to, resume, err := d.blockRange(ctx, req, latest)
	if err != nil {
		return nil, err
	}
	result = &SyncResult{PassID: passID, FromBlock: from, ToBlock: to, LastBlock: latest}
	if from > to {
		return result, nil
	}

	logs.GetLogger().Infof("sync pass %s: scanning blocks %d to %d", passID, from, to)
	var total ReconcileResult
	advancing := resume
	for start := from; start <= to; {
		end := to
		if span := d.cfg.MaxBlockRange - 1; end-start > span {
			end = start + span
		}

		if err := d.limiter.Wait(ctx); err != nil {
			return d.finish(result, total), err
		}
		events, err := d.source.JobCreatedEvents(ctx, start, end)
		if err != nil {
			return d.finish(result, total), xerrors.Errorf("fetch JobCreated events in [%d, %d]: %w", start, end, err)
		}
		chunk, err := d.engine.Reconcile(ctx, events)
		total.add(chunk)
		if err != nil {
			return d.finish(result, total), err
		}

		if chunk.Failed > 0 {
			advancing = false
		}
		if advancing {
			if err := d.store.AdvanceSyncedBlock(ctx, end); err != nil {
				return d.finish(result, total), xerrors.Errorf("advance sync cursor: %w", err)
			}
			syncedBlock.Set(float64(end))
		}

		if end == to {
			break
		}
		start = end + 1
	}

	d.finish(result, total)
	logs.GetLogger().Infof("sync pass %s: synced %d events (%d new, %d skipped, %d failed) in blocks %d to %d",
		passID, result.Synced, result.Created, result.Skipped, result.Failed, from, to)
	return result, nil
}

// blockRange picks the range to scan. resume is true when the range continues
// from the stored cursor, which is the only case the cursor advances.
func (d *SyncDriver) blockRange(ctx context.Context, req SyncRequest, latest uint64) (from, to uint64, resume bool, err error) {
	if req.FromBlock != nil && req.ToBlock != nil {
		return *req.FromBlock, *req.ToBlock, false, nil
	}

	cursor, ok, err := d.store.LastSyncedBlock(ctx)
	if err != nil {
		return 0, 0, false, xerrors.Errorf("read sync cursor: %w", err)
	}
	if ok {
		return cursor + 1, latest, true, nil
	}
	if latest+1 > d.cfg.DefaultLookback {
		from = latest + 1 - d.cfg.DefaultLookback
	}
	return from, latest, true, nil
}

func (d *SyncDriver) finish(result *SyncResult, total ReconcileResult) *SyncResult {
	result.Synced = total.Processed
	result.Created = total.Created
	result.Skipped = total.Skipped
	result.Failed = total.Failed
	return result
}

// Poll runs a pass every interval until ctx is done. A pass that finds the
// lease taken is not an error.
func (d *SyncDriver) Poll(ctx context.Context, interval time.Duration) {
	if d.source == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_, err := d.Sync(ctx, SyncRequest{})
		switch {
		case errors.Is(err, ErrSyncInProgress):
			logs.GetLogger().Warnf("sync pass skipped: %v", err)
		case err != nil && ctx.Err() == nil:
			logs.GetLogger().Errorf("sync pass failed, error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
