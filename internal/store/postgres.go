package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"golang.org/x/xerrors"

	"github.com/lagrangedao/go-computing-market/internal/models"
)

//go:embed schema.sql
var schemaSQL string

const (
	jobColumns     = `id, title, description, reward, status, required_nodes, deadline, requester_account_id, external_job_id, external_tx_hash, external_block, workers, created_at`
	accountColumns = `id, address, name, created_at`
	nodeColumns    = `id, account_id, address, compute_power, reputation, is_active, total_earnings, last_heartbeat, created_at`
	earningColumns = `id, account_id, job_id, amount, created_at`

	syncedBlockKey = "last_synced_block"

	uniqueViolation = "23505"
	mergeAttempts   = 3
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Postgres is the relational Entity Store. Read-modify-write methods run in a
// transaction holding a row lock (SELECT ... FOR UPDATE).
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

func OpenPostgres(url string, maxConnections int) (*Postgres, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, xerrors.Errorf("failed to open database: %w", err)
	}
	if maxConnections > 0 {
		db.SetMaxOpenConns(maxConnections)
		db.SetMaxIdleConns(maxConnections / 2)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, xerrors.Errorf("failed to ping database: %w", err)
	}

	p := &Postgres{db: db}
	if err := p.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) InitSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return xerrors.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		account models.Account
		id      int64
		name    sql.NullString
	)
	if err := row.Scan(&id, &account.Address, &name, &account.CreatedAt); err != nil {
		return nil, err
	}
	account.ID = uint64(id)
	account.Name = name.String
	return &account, nil
}

func scanNode(row rowScanner) (*models.ComputeNode, error) {
	var (
		node      models.ComputeNode
		id        int64
		accountID int64
		heartbeat sql.NullTime
	)
	err := row.Scan(&id, &accountID, &node.Address, &node.ComputePower, &node.Reputation,
		&node.IsActive, &node.TotalEarnings, &heartbeat, &node.CreatedAt)
	if err != nil {
		return nil, err
	}
	node.ID = uint64(id)
	node.AccountID = uint64(accountID)
	if heartbeat.Valid {
		t := heartbeat.Time.UTC()
		node.LastHeartbeat = &t
	}
	return &node, nil
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job         models.Job
		id          int64
		description sql.NullString
		reward      int64
		status      string
		requester   sql.NullInt64
		externalID  sql.NullInt64
		externalTx  sql.NullString
		extBlock    int64
		workers     pq.Int64Array
	)
	err := row.Scan(&id, &job.Title, &description, &reward, &status, &job.RequiredNodes,
		&job.Deadline, &requester, &externalID, &externalTx, &extBlock, &workers, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	job.ID = uint64(id)
	job.Description = description.String
	job.Reward = uint64(reward)
	job.Status = models.JobStatus(status)
	job.Deadline = job.Deadline.UTC()
	job.RequesterAccountID = uint64(requester.Int64)
	if externalID.Valid {
		job.External = &models.ExternalIdentity{
			JobID:  uint64(externalID.Int64),
			TxHash: externalTx.String,
			Block:  uint64(extBlock),
		}
	}
	for _, w := range workers {
		job.Workers = append(job.Workers, uint64(w))
	}
	return &job, nil
}

func scanEarning(row rowScanner) (*models.Earning, error) {
	var (
		earning   models.Earning
		id        int64
		accountID sql.NullInt64
		jobID     sql.NullInt64
		amount    int64
	)
	if err := row.Scan(&id, &accountID, &jobID, &amount, &earning.CreatedAt); err != nil {
		return nil, err
	}
	earning.ID = uint64(id)
	earning.AccountID = uint64(accountID.Int64)
	earning.JobID = uint64(jobID.Int64)
	earning.Amount = uint64(amount)
	return &earning, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullID(id uint64) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(id), Valid: id != 0}
}

func workerArray(workers []uint64) pq.Int64Array {
	arr := make(pq.Int64Array, 0, len(workers))
	for _, w := range workers {
		arr = append(arr, int64(w))
	}
	return arr
}

// jobArgs returns the values for every column of jobColumns except id and created_at.
func jobArgs(job *models.Job) []interface{} {
	var (
		externalID sql.NullInt64
		externalTx sql.NullString
		extBlock   int64
	)
	if job.External != nil {
		externalID = sql.NullInt64{Int64: int64(job.External.JobID), Valid: true}
		externalTx = nullString(job.External.TxHash)
		extBlock = int64(job.External.Block)
	}
	return []interface{}{
		job.Title, nullString(job.Description), int64(job.Reward), string(job.Status), job.RequiredNodes,
		job.Deadline.UTC(), nullID(job.RequesterAccountID), externalID, externalTx, extBlock,
		workerArray(job.Workers),
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (p *Postgres) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Errorf("commit transaction: %w", err)
	}
	return nil
}

// accounts

func (p *Postgres) EnsureAccount(ctx context.Context, address string) (*models.Account, error) {
	addr := models.NormalizeAddress(address)
	if addr == "" {
		return nil, models.NewError(models.KindMissingFields, "address is required")
	}
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO accounts (address, created_at) VALUES ($1, NOW())
		ON CONFLICT (address) DO UPDATE SET address = EXCLUDED.address
		RETURNING `+accountColumns, addr)
	account, err := scanAccount(row)
	if err != nil {
		return nil, xerrors.Errorf("ensure account %s: %w", addr, err)
	}
	return account, nil
}

func (p *Postgres) GetAccount(ctx context.Context, id uint64) (*models.Account, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, int64(id))
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("account", id)
	}
	return account, err
}

func (p *Postgres) GetAccountByAddress(ctx context.Context, address string) (*models.Account, error) {
	addr := models.NormalizeAddress(address)
	row := p.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE address = $1`, addr)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("account", addr)
	}
	return account, err
}

// compute nodes

func (p *Postgres) UpsertComputeNode(ctx context.Context, accountID uint64, address string, computePower float64) (*models.ComputeNode, error) {
	addr := models.NormalizeAddress(address)
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO compute_nodes (account_id, address, compute_power, reputation, is_active, total_earnings, created_at)
		VALUES ($1, $2, $3, $4, TRUE, 0, NOW())
		ON CONFLICT (address) DO UPDATE SET compute_power = EXCLUDED.compute_power
		RETURNING `+nodeColumns, int64(accountID), addr, computePower, float64(models.DefaultReputation))
	node, err := scanNode(row)
	if err != nil {
		return nil, xerrors.Errorf("upsert compute node %s: %w", addr, err)
	}
	return node, nil
}

func (p *Postgres) GetComputeNodeByAddress(ctx context.Context, address string) (*models.ComputeNode, error) {
	addr := models.NormalizeAddress(address)
	row := p.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM compute_nodes WHERE address = $1`, addr)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("compute node", addr)
	}
	return node, err
}

func (p *Postgres) TouchComputeNode(ctx context.Context, address string, at time.Time) (*models.ComputeNode, error) {
	addr := models.NormalizeAddress(address)
	row := p.db.QueryRowContext(ctx, `
		UPDATE compute_nodes SET last_heartbeat = $2, is_active = TRUE
		WHERE address = $1
		RETURNING `+nodeColumns, addr, at.UTC())
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("compute node", addr)
	}
	return node, err
}

func (p *Postgres) CountComputeNodes(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM compute_nodes`).Scan(&n)
	return n, err
}

// jobs

func (p *Postgres) GetJob(ctx context.Context, id uint64) (*models.Job, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, int64(id))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("job", id)
	}
	return job, err
}

func (p *Postgres) GetJobByExternalID(ctx context.Context, externalID uint64) (*models.Job, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE external_job_id = $1`, int64(externalID))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("job with external id", externalID)
	}
	return job, err
}

func statusStrings(statuses []models.JobStatus) pq.StringArray {
	arr := make(pq.StringArray, 0, len(statuses))
	for _, s := range statuses {
		arr = append(arr, string(s))
	}
	return arr
}

func (p *Postgres) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, error) {
	var limit sql.NullInt64
	if filter.Limit > 0 {
		limit = sql.NullInt64{Int64: int64(filter.Limit), Valid: true}
	}
	search := strings.TrimSpace(filter.Search)
	pattern := "%" + likeEscaper.Replace(search) + "%"

	rows, err := p.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE ($1 = '' OR title ILIKE $2 OR description ILIKE $2)
		  AND (cardinality($3::text[]) = 0 OR status = ANY($3::text[]))
		ORDER BY id
		LIMIT $4 OFFSET $5`,
		search, pattern, statusStrings(filter.Statuses), limit, filter.Offset)
	if err != nil {
		return nil, xerrors.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (p *Postgres) CountJobs(ctx context.Context, statuses ...models.JobStatus) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE cardinality($1::text[]) = 0 OR status = ANY($1::text[])`,
		statusStrings(statuses)).Scan(&n)
	return n, err
}

func insertJob(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}, job *models.Job, onConflictNothing bool) (*models.Job, error) {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO jobs (title, description, reward, status, required_nodes, deadline,
			requester_account_id, external_job_id, external_tx_hash, external_block, workers, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if onConflictNothing {
		query += ` ON CONFLICT (external_job_id) DO NOTHING`
	}
	query += ` RETURNING id`

	args := append(jobArgs(job), job.CreatedAt.UTC())
	var id int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return nil, err
	}
	job.ID = uint64(id)
	return job, nil
}

func (p *Postgres) InsertJob(ctx context.Context, job *models.Job) (*models.Job, error) {
	job = job.Clone()
	if err := job.Validate(); err != nil {
		return nil, err
	}
	inserted, err := insertJob(ctx, p.db, job, false)
	if err != nil {
		if isUniqueViolation(err) && job.External != nil {
			return nil, duplicateExternalID(job.External.JobID)
		}
		return nil, xerrors.Errorf("insert job: %w", err)
	}
	return inserted, nil
}

func updateJob(ctx context.Context, tx *sql.Tx, job *models.Job) error {
	args := append([]interface{}{int64(job.ID)}, jobArgs(job)...)
	_, err := tx.ExecContext(ctx, `
		UPDATE jobs SET title = $2, description = $3, reward = $4, status = $5, required_nodes = $6,
			deadline = $7, requester_account_id = $8, external_job_id = $9, external_tx_hash = $10,
			external_block = $11, workers = $12
		WHERE id = $1`, args...)
	if err != nil {
		return xerrors.Errorf("update job %d: %w", job.ID, err)
	}
	return nil
}

func lockJob(ctx context.Context, tx *sql.Tx, id uint64) (*models.Job, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, int64(id))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("job", id)
	}
	return job, err
}

func (p *Postgres) UpdateJob(ctx context.Context, id uint64, fn JobMutator) (*models.Job, error) {
	var out *models.Job
	err := p.inTx(ctx, func(tx *sql.Tx) error {
		current, err := lockJob(ctx, tx, id)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := fn(next); err != nil {
			return err
		}
		next.ID = current.ID
		next.External = current.External
		if err := next.Validate(); err != nil {
			return err
		}
		if err := updateJob(ctx, tx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

// MergeExternalJob retries when a concurrent writer inserts the same external
// id between our lookup and insert, so fn may run more than once.
func (p *Postgres) MergeExternalJob(ctx context.Context, externalID uint64, fn ExternalJobMerger) (*models.Job, bool, error) {
	for attempt := 0; attempt < mergeAttempts; attempt++ {
		var (
			out     *models.Job
			created bool
			raced   bool
		)
		err := p.inTx(ctx, func(tx *sql.Tx) error {
			row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE external_job_id = $1 FOR UPDATE`, int64(externalID))
			current, err := scanJob(row)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}

			if current == nil {
				job, err := fn(nil)
				if err != nil {
					return err
				}
				job = job.Clone()
				if job.External == nil || job.External.JobID != externalID {
					return fmt.Errorf("merged job must carry external id %d", externalID)
				}
				if err := job.Validate(); err != nil {
					return err
				}
				job, err = insertJob(ctx, tx, job, true)
				if errors.Is(err, sql.ErrNoRows) {
					raced = true
					return err
				}
				if err != nil {
					return xerrors.Errorf("insert job: %w", err)
				}
				out, created = job, true
				return nil
			}

			next, err := fn(current.Clone())
			if err != nil {
				return err
			}
			next = next.Clone()
			next.ID = current.ID
			if next.External == nil || next.External.JobID != externalID {
				return fmt.Errorf("merged job must keep external id %d", externalID)
			}
			if err := next.Validate(); err != nil {
				return err
			}
			if err := updateJob(ctx, tx, next); err != nil {
				return err
			}
			out = next
			return nil
		})
		if raced {
			continue
		}
		return out, created, err
	}
	return nil, false, fmt.Errorf("merge external job %d: too much contention", externalID)
}

func (p *Postgres) CompleteJob(ctx context.Context, id uint64, fn JobCompleter) (*models.Job, *models.Earning, error) {
	var (
		outJob     *models.Job
		outEarning *models.Earning
	)
	err := p.inTx(ctx, func(tx *sql.Tx) error {
		current, err := lockJob(ctx, tx, id)
		if err != nil {
			return err
		}
		next := current.Clone()
		earning, err := fn(next)
		if err != nil {
			return err
		}
		next.ID = current.ID
		next.External = current.External
		if err := next.Validate(); err != nil {
			return err
		}
		if earning == nil {
			return fmt.Errorf("completing job %d produced no earning", id)
		}
		if err := updateJob(ctx, tx, next); err != nil {
			return err
		}

		earning.JobID = next.ID
		if earning.CreatedAt.IsZero() {
			earning.CreatedAt = time.Now().UTC()
		}
		var earningID int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO earnings (account_id, job_id, amount, created_at)
			VALUES ($1, $2, $3, $4) RETURNING id`,
			nullID(earning.AccountID), int64(earning.JobID), int64(earning.Amount), earning.CreatedAt.UTC()).Scan(&earningID)
		if err != nil {
			return xerrors.Errorf("insert earning: %w", err)
		}
		earning.ID = uint64(earningID)

		_, err = tx.ExecContext(ctx, `
			UPDATE compute_nodes SET total_earnings = total_earnings + $2
			WHERE account_id = $1`, int64(earning.AccountID), float64(earning.Amount))
		if err != nil {
			return xerrors.Errorf("credit compute node: %w", err)
		}

		outJob, outEarning = next, earning
		return nil
	})
	return outJob, outEarning, err
}

// earnings

func (p *Postgres) ListEarnings(ctx context.Context, accountID uint64, limit, offset int) ([]*models.Earning, error) {
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+earningColumns+` FROM earnings
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`, int64(accountID), lim, offset)
	if err != nil {
		return nil, xerrors.Errorf("list earnings: %w", err)
	}
	defer rows.Close()

	var earnings []*models.Earning
	for rows.Next() {
		earning, err := scanEarning(rows)
		if err != nil {
			return nil, err
		}
		earnings = append(earnings, earning)
	}
	return earnings, rows.Err()
}

func (p *Postgres) SumEarnings(ctx context.Context) (uint64, error) {
	var total int64
	err := p.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM earnings`).Scan(&total)
	return uint64(total), err
}

// sync cursor

func (p *Postgres) LastSyncedBlock(ctx context.Context) (uint64, bool, error) {
	var block int64
	err := p.db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = $1`, syncedBlockKey).Scan(&block)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint64(block), true, nil
}

func (p *Postgres) AdvanceSyncedBlock(ctx context.Context, block uint64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = GREATEST(sync_state.value, EXCLUDED.value), updated_at = NOW()`,
		syncedBlockKey, int64(block))
	return err
}
