package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	ldbutil "github.com/syndtr/goleveldb/leveldb/util"
	"golang.org/x/xerrors"

	"github.com/lagrangedao/go-computing-market/internal/models"
)

const (
	prefixAccount        = "account/"
	prefixAccountAddress = "account-addr/"
	prefixNode           = "node/"
	prefixNodeAddress    = "node-addr/"
	prefixNodeAccount    = "node-acct/"
	prefixJob            = "job/"
	prefixJobExternal    = "job-ext/"
	prefixEarning        = "earning/"
	prefixEarningAccount = "earning-acct/"
	prefixSeq            = "seq/"

	keySyncedBlock = "sync/last-block"
)

// LevelDB is the embedded Entity Store. Rows are JSON values under
// "<entity>/<id>" keys; secondary indexes are separate keys that point at ids.
type LevelDB struct {
	db    *leveldb.DB
	locks *keyLocker
	seqMu sync.Mutex
}

var _ Store = (*LevelDB)(nil)

func OpenLevelDB(p string) (*LevelDB, error) {
	_, err := os.Stat(p)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := os.MkdirAll(p, 0700); err != nil {
			return nil, err
		}
	}

	db, err := leveldb.OpenFile(p, nil)
	if err != nil {
		return nil, xerrors.Errorf("open leveldb %s: %w", p, err)
	}
	return &LevelDB{db: db, locks: newKeyLocker()}, nil
}

// OpenMemLevelDB opens a store backed by memory only.
func OpenMemLevelDB() (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db, locks: newKeyLocker()}, nil
}

func (s *LevelDB) Close() error {
	return s.db.Close()
}

func idKey(prefix string, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix, id))
}

func (s *LevelDB) nextID(kind string) (uint64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	key := []byte(prefixSeq + kind)
	var cur uint64
	value, err := s.db.Get(key, nil)
	switch {
	case err == nil:
		cur = binary.BigEndian.Uint64(value)
	case errors.Is(err, leveldb.ErrNotFound):
	default:
		return 0, xerrors.Errorf("reading %s sequence: %w", kind, err)
	}

	cur++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, cur)
	if err := s.db.Put(key, buf, nil); err != nil {
		return 0, xerrors.Errorf("writing %s sequence: %w", kind, err)
	}
	return cur, nil
}

func (s *LevelDB) getJSON(key []byte, v interface{}) (bool, error) {
	value, err := s.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return false, nil
		}
		return false, xerrors.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(value, v); err != nil {
		return false, xerrors.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

func (s *LevelDB) getIndex(key string) (uint64, bool, error) {
	value, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, xerrors.Errorf("reading index %s: %w", key, err)
	}
	id, err := strconv.ParseUint(string(value), 10, 64)
	if err != nil {
		return 0, false, xerrors.Errorf("corrupt index %s: %w", key, err)
	}
	return id, true, nil
}

func putJSON(batch *leveldb.Batch, key []byte, v interface{}) error {
	bytes, err := json.Marshal(v)
	if err != nil {
		return err
	}
	batch.Put(key, bytes)
	return nil
}

func putIndex(batch *leveldb.Batch, key string, id uint64) {
	batch.Put([]byte(key), []byte(strconv.FormatUint(id, 10)))
}

// accounts

func (s *LevelDB) EnsureAccount(ctx context.Context, address string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr := models.NormalizeAddress(address)
	if addr == "" {
		return nil, models.NewError(models.KindMissingFields, "address is required")
	}

	unlock := s.locks.Lock(prefixAccountAddress + addr)
	defer unlock()

	id, ok, err := s.getIndex(prefixAccountAddress + addr)
	if err != nil {
		return nil, err
	}
	if ok {
		return s.GetAccount(ctx, id)
	}

	id, err = s.nextID("account")
	if err != nil {
		return nil, err
	}
	account := &models.Account{ID: id, Address: addr, CreatedAt: time.Now().UTC()}
	batch := new(leveldb.Batch)
	if err := putJSON(batch, idKey(prefixAccount, id), account); err != nil {
		return nil, err
	}
	putIndex(batch, prefixAccountAddress+addr, id)
	if err := s.db.Write(batch, nil); err != nil {
		return nil, xerrors.Errorf("writing account %s: %w", addr, err)
	}
	return account, nil
}

func (s *LevelDB) GetAccount(ctx context.Context, id uint64) (*models.Account, error) {
	var account models.Account
	ok, err := s.getJSON(idKey(prefixAccount, id), &account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("account", id)
	}
	return &account, nil
}

func (s *LevelDB) GetAccountByAddress(ctx context.Context, address string) (*models.Account, error) {
	addr := models.NormalizeAddress(address)
	id, ok, err := s.getIndex(prefixAccountAddress + addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("account", addr)
	}
	return s.GetAccount(ctx, id)
}

// compute nodes

func (s *LevelDB) UpsertComputeNode(ctx context.Context, accountID uint64, address string, computePower float64) (*models.ComputeNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr := models.NormalizeAddress(address)

	unlock := s.locks.Lock(prefixNodeAddress + addr)
	defer unlock()

	id, ok, err := s.getIndex(prefixNodeAddress + addr)
	if err != nil {
		return nil, err
	}
	if ok {
		return s.updateNode(id, func(node *models.ComputeNode) {
			node.ComputePower = computePower
		})
	}

	id, err = s.nextID("node")
	if err != nil {
		return nil, err
	}
	node := &models.ComputeNode{
		ID:           id,
		AccountID:    accountID,
		Address:      addr,
		ComputePower: computePower,
		Reputation:   models.DefaultReputation,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	batch := new(leveldb.Batch)
	if err := putJSON(batch, idKey(prefixNode, id), node); err != nil {
		return nil, err
	}
	putIndex(batch, prefixNodeAddress+addr, id)
	putIndex(batch, string(idKey(prefixNodeAccount, accountID)), id)
	if err := s.db.Write(batch, nil); err != nil {
		return nil, xerrors.Errorf("writing compute node %s: %w", addr, err)
	}
	return node, nil
}

func (s *LevelDB) updateNode(id uint64, fn func(node *models.ComputeNode)) (*models.ComputeNode, error) {
	unlock := s.locks.Lock(string(idKey(prefixNode, id)))
	defer unlock()

	var node models.ComputeNode
	ok, err := s.getJSON(idKey(prefixNode, id), &node)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("compute node", id)
	}
	fn(&node)
	batch := new(leveldb.Batch)
	if err := putJSON(batch, idKey(prefixNode, id), &node); err != nil {
		return nil, err
	}
	if err := s.db.Write(batch, nil); err != nil {
		return nil, xerrors.Errorf("writing compute node %d: %w", id, err)
	}
	return &node, nil
}

func (s *LevelDB) GetComputeNodeByAddress(ctx context.Context, address string) (*models.ComputeNode, error) {
	addr := models.NormalizeAddress(address)
	id, ok, err := s.getIndex(prefixNodeAddress + addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("compute node", addr)
	}
	var node models.ComputeNode
	ok, err = s.getJSON(idKey(prefixNode, id), &node)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("compute node", addr)
	}
	return &node, nil
}

func (s *LevelDB) TouchComputeNode(ctx context.Context, address string, at time.Time) (*models.ComputeNode, error) {
	addr := models.NormalizeAddress(address)
	id, ok, err := s.getIndex(prefixNodeAddress + addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("compute node", addr)
	}
	at = at.UTC()
	return s.updateNode(id, func(node *models.ComputeNode) {
		node.LastHeartbeat = &at
		node.IsActive = true
	})
}

func (s *LevelDB) CountComputeNodes(ctx context.Context) (int, error) {
	return s.countPrefix(prefixNode)
}

func (s *LevelDB) countPrefix(prefix string) (int, error) {
	iter := s.db.NewIterator(ldbutil.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	var n int
	for iter.Next() {
		n++
	}
	return n, iter.Error()
}

// jobs

func (s *LevelDB) loadJob(id uint64) (*models.Job, error) {
	var job models.Job
	ok, err := s.getJSON(idKey(prefixJob, id), &job)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("job", id)
	}
	return &job, nil
}

func (s *LevelDB) GetJob(ctx context.Context, id uint64) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.loadJob(id)
}

func (s *LevelDB) GetJobByExternalID(ctx context.Context, externalID uint64) (*models.Job, error) {
	id, ok, err := s.getIndex(string(idKey(prefixJobExternal, externalID)))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("job with external id", externalID)
	}
	return s.loadJob(id)
}

func (s *LevelDB) scanJobs(fn func(job *models.Job) bool) error {
	iter := s.db.NewIterator(ldbutil.BytesPrefix([]byte(prefixJob)), nil)
	defer iter.Release()
	for iter.Next() {
		var job models.Job
		if err := json.Unmarshal(iter.Value(), &job); err != nil {
			return xerrors.Errorf("decoding %s: %w", iter.Key(), err)
		}
		if !fn(&job) {
			break
		}
	}
	return iter.Error()
}

func (s *LevelDB) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	statuses := statusSet(filter.Statuses)

	var (
		jobs    []*models.Job
		skipped int
	)
	err := s.scanJobs(func(job *models.Job) bool {
		if statuses != nil && !statuses[job.Status] {
			return true
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(job.Title), search) &&
			!strings.Contains(strings.ToLower(job.Description), search) {
			return true
		}
		if skipped < filter.Offset {
			skipped++
			return true
		}
		jobs = append(jobs, job)
		return filter.Limit <= 0 || len(jobs) < filter.Limit
	})
	return jobs, err
}

func (s *LevelDB) CountJobs(ctx context.Context, statuses ...models.JobStatus) (int, error) {
	set := statusSet(statuses)
	var n int
	err := s.scanJobs(func(job *models.Job) bool {
		if set == nil || set[job.Status] {
			n++
		}
		return true
	})
	return n, err
}

func (s *LevelDB) writeNewJob(job *models.Job) (*models.Job, error) {
	id, err := s.nextID("job")
	if err != nil {
		return nil, err
	}
	job.ID = id
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	batch := new(leveldb.Batch)
	if err := putJSON(batch, idKey(prefixJob, id), job); err != nil {
		return nil, err
	}
	if job.External != nil {
		putIndex(batch, string(idKey(prefixJobExternal, job.External.JobID)), id)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return nil, xerrors.Errorf("writing job: %w", err)
	}
	return job, nil
}

func (s *LevelDB) InsertJob(ctx context.Context, job *models.Job) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	job = job.Clone()
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if job.External == nil {
		return s.writeNewJob(job)
	}

	extKey := string(idKey(prefixJobExternal, job.External.JobID))
	unlock := s.locks.Lock(extKey)
	defer unlock()

	_, exists, err := s.getIndex(extKey)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, duplicateExternalID(job.External.JobID)
	}
	return s.writeNewJob(job)
}

func (s *LevelDB) putJob(job *models.Job) error {
	batch := new(leveldb.Batch)
	if err := putJSON(batch, idKey(prefixJob, job.ID), job); err != nil {
		return err
	}
	if err := s.db.Write(batch, nil); err != nil {
		return xerrors.Errorf("writing job %d: %w", job.ID, err)
	}
	return nil
}

func (s *LevelDB) UpdateJob(ctx context.Context, id uint64, fn JobMutator) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(string(idKey(prefixJob, id)))
	defer unlock()

	current, err := s.loadJob(id)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.External = current.External
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if err := s.putJob(next); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *LevelDB) MergeExternalJob(ctx context.Context, externalID uint64, fn ExternalJobMerger) (*models.Job, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	extKey := string(idKey(prefixJobExternal, externalID))
	unlockExt := s.locks.Lock(extKey)
	defer unlockExt()

	id, exists, err := s.getIndex(extKey)
	if err != nil {
		return nil, false, err
	}

	if !exists {
		job, err := fn(nil)
		if err != nil {
			return nil, false, err
		}
		job = job.Clone()
		if job.External == nil || job.External.JobID != externalID {
			return nil, false, fmt.Errorf("merged job must carry external id %d", externalID)
		}
		if err := job.Validate(); err != nil {
			return nil, false, err
		}
		job, err = s.writeNewJob(job)
		return job, true, err
	}

	unlockJob := s.locks.Lock(string(idKey(prefixJob, id)))
	defer unlockJob()

	current, err := s.loadJob(id)
	if err != nil {
		return nil, false, err
	}
	next, err := fn(current.Clone())
	if err != nil {
		return nil, false, err
	}
	next = next.Clone()
	next.ID = current.ID
	if next.External == nil || next.External.JobID != externalID {
		return nil, false, fmt.Errorf("merged job must keep external id %d", externalID)
	}
	if err := next.Validate(); err != nil {
		return nil, false, err
	}
	if err := s.putJob(next); err != nil {
		return nil, false, err
	}
	return next, false, nil
}

func (s *LevelDB) CompleteJob(ctx context.Context, id uint64, fn JobCompleter) (*models.Job, *models.Earning, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	unlock := s.locks.Lock(string(idKey(prefixJob, id)))
	defer unlock()

	current, err := s.loadJob(id)
	if err != nil {
		return nil, nil, err
	}
	next := current.Clone()
	earning, err := fn(next)
	if err != nil {
		return nil, nil, err
	}
	next.ID = current.ID
	next.External = current.External
	if err := next.Validate(); err != nil {
		return nil, nil, err
	}
	if earning == nil {
		return nil, nil, fmt.Errorf("completing job %d produced no earning", id)
	}

	earning.ID, err = s.nextID("earning")
	if err != nil {
		return nil, nil, err
	}
	earning.JobID = next.ID
	if earning.CreatedAt.IsZero() {
		earning.CreatedAt = time.Now().UTC()
	}

	batch := new(leveldb.Batch)
	if err := putJSON(batch, idKey(prefixJob, next.ID), next); err != nil {
		return nil, nil, err
	}
	if err := putJSON(batch, idKey(prefixEarning, earning.ID), earning); err != nil {
		return nil, nil, err
	}
	acctKey := fmt.Sprintf("%s%020d/%020d", prefixEarningAccount, earning.AccountID, earning.ID)
	putIndex(batch, acctKey, earning.ID)

	nodeID, hasNode, err := s.getIndex(string(idKey(prefixNodeAccount, earning.AccountID)))
	if err != nil {
		return nil, nil, err
	}
	if hasNode {
		unlockNode := s.locks.Lock(string(idKey(prefixNode, nodeID)))
		defer unlockNode()

		var node models.ComputeNode
		ok, err := s.getJSON(idKey(prefixNode, nodeID), &node)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			node.TotalEarnings += float64(earning.Amount)
			if err := putJSON(batch, idKey(prefixNode, nodeID), &node); err != nil {
				return nil, nil, err
			}
		}
	}

	if err := s.db.Write(batch, nil); err != nil {
		return nil, nil, xerrors.Errorf("completing job %d: %w", id, err)
	}
	return next, earning, nil
}

// earnings

func (s *LevelDB) ListEarnings(ctx context.Context, accountID uint64, limit, offset int) ([]*models.Earning, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := fmt.Sprintf("%s%020d/", prefixEarningAccount, accountID)
	iter := s.db.NewIterator(ldbutil.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	var (
		earnings []*models.Earning
		skipped  int
	)
	// newest first: ids grow monotonically
	for ok := iter.Last(); ok; ok = iter.Prev() {
		if skipped < offset {
			skipped++
			continue
		}
		id, err := strconv.ParseUint(string(iter.Value()), 10, 64)
		if err != nil {
			return nil, xerrors.Errorf("corrupt earning index %s: %w", iter.Key(), err)
		}
		var earning models.Earning
		found, err := s.getJSON(idKey(prefixEarning, id), &earning)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		earnings = append(earnings, &earning)
		if limit > 0 && len(earnings) >= limit {
			break
		}
	}
	return earnings, iter.Error()
}

func (s *LevelDB) SumEarnings(ctx context.Context) (uint64, error) {
	iter := s.db.NewIterator(ldbutil.BytesPrefix([]byte(prefixEarning)), nil)
	defer iter.Release()
	var total uint64
	for iter.Next() {
		var earning models.Earning
		if err := json.Unmarshal(iter.Value(), &earning); err != nil {
			return 0, xerrors.Errorf("decoding %s: %w", iter.Key(), err)
		}
		total += earning.Amount
	}
	return total, iter.Error()
}

// sync cursor

func (s *LevelDB) LastSyncedBlock(ctx context.Context) (uint64, bool, error) {
	value, err := s.db.Get([]byte(keySyncedBlock), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, xerrors.Errorf("reading sync cursor: %w", err)
	}
	return binary.BigEndian.Uint64(value), true, nil
}

func (s *LevelDB) AdvanceSyncedBlock(ctx context.Context, block uint64) error {
	unlock := s.locks.Lock(keySyncedBlock)
	defer unlock()

	cur, ok, err := s.LastSyncedBlock(ctx)
	if err != nil {
		return err
	}
	if ok && cur >= block {
		return nil
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, block)
	if err := s.db.Put([]byte(keySyncedBlock), buf, nil); err != nil {
		return xerrors.Errorf("writing sync cursor: %w", err)
	}
	return nil
}
