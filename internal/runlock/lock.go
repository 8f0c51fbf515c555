// Package runlock serializes pipeline runs that target the same month.
package runlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLocked     = errors.New("run_locked")
	ErrInvalidKey = errors.New("run_lock_invalid_key")
)

// Lease is a held lock.
type Lease interface {
	Token() string
	Release(ctx context.Context) error
}

// Locker hands out exclusive leases per key. Acquire never waits: a key that
// is already held yields ErrLocked.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Key builds the lock key for a pipeline stage and month.
func Key(stage, month string) string {
	return "cdrbill:run:" + stage + ":" + month
}

type RedisLocker struct {
	client *redislock.Client
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: redislock.New(client)}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if err := checkArgs(key, ttl); err != nil {
		return nil, err
	}
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, err
	}
	return redisLease{lock: lock}, nil
}

type redisLease struct {
	lock *redislock.Lock
}

func (l redisLease) Token() string { return l.lock.Token() }

func (l redisLease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}

// LocalLocker is an in-process keyed lock for single-instance deployments.
// Expired leases are reclaimed on the next Acquire.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localEntry
	nowFn func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localEntry), nowFn: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	if err := checkArgs(key, ttl); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, ErrLocked
	}
	token := uuid.NewString()
	l.held[key] = localEntry{token: token, expires: now.Add(ttl)}
	return &localLease{locker: l, key: key, token: token}, nil
}

func (l *LocalLocker) release(key, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.held[key]; ok && e.token == token {
		delete(l.held, key)
	}
}

type localLease struct {
	locker *LocalLocker
	key    string
	token  string
}

func (l *localLease) Token() string { return l.token }

func (l *localLease) Release(context.Context) error {
	l.locker.release(l.key, l.token)
	return nil
}

func checkArgs(key string, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if ttl <= 0 {
		return errors.New("lock ttl must be positive")
	}
	return nil
}
