package computing

import (
	"context"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"golang.org/x/xerrors"
)

// Lease keeps sync passes from overlapping. Acquire reports false when another
// owner holds an unexpired lease.
type Lease interface {
	Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, owner string) error
}

// only the owner may delete the key
var releaseScript = redis.NewScript(1, `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease shares the sync lease between every node using the same redis.
type RedisLease struct {
	pool *redis.Pool
	key  string
}

func NewRedisLease(pool *redis.Pool, key string) *RedisLease {
	return &RedisLease{pool: pool, key: key}
}

func (l *RedisLease) Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	conn := l.pool.Get()
	defer conn.Close()
	if err := conn.Err(); err != nil {
		return false, xerrors.Errorf("get redis connection: %w", err)
	}

	_, err := redis.String(conn.Do("SET", l.key, owner, "NX", "PX", ttl.Milliseconds()))
	if err == redis.ErrNil {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Errorf("acquire lease %s: %w", l.key, err)
	}
	return true, nil
}

func (l *RedisLease) Release(ctx context.Context, owner string) error {
	conn := l.pool.Get()
	defer conn.Close()
	if err := conn.Err(); err != nil {
		return xerrors.Errorf("get redis connection: %w", err)
	}

	if _, err := releaseScript.Do(conn, l.key, owner); err != nil {
		return xerrors.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}

// LocalLease serialises sync passes inside one process.
type LocalLease struct {
	mu      sync.Mutex
	owner   string
	expires time.Time
	now     func() time.Time
}

func NewLocalLease(opts ...Option) *LocalLease {
	o := buildOptions(opts)
	return &LocalLease{now: o.now}
}

func (l *LocalLease) Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.owner != "" && l.owner != owner && now.Before(l.expires) {
		return false, nil
	}
	l.owner = owner
	l.expires = now.Add(ttl)
	return true, nil
}

func (l *LocalLease) Release(ctx context.Context, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.owner == owner {
		l.owner = ""
	}
	return nil
}
