/*
Package lock provides the single-writer-per-project lockers used by the
ledgers' mutation guard (generic.Guard).

IMPLEMENTATIONS:
  LocalLocker: in-process keyed mutex. Enough for one server process.
  RedisLocker: distributed lock via bsm/redislock, for several processes
               (server plus maintenance tools) sharing one database.

SEMANTICS:
  Lock(ctx, key, ttl) waits at most ttl (or until ctx is done) and returns
  generic.ErrLockNotObtained when the key stays busy. The returned release
  func is idempotent.

SEE ALSO:
  - generic/ledger.go: Guard
  - generic/store.go: Locker interface
*/
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/warp/site-ledger/config"
	"github.com/warp/site-ledger/generic"
)

// =============================================================================
// LOCAL LOCKER
// =============================================================================

// LocalLocker serializes holders of the same key inside one process.
// Slots are never freed: keys are one per project, so the map grows with
// the number of projects touched, not with the number of writes.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

var _ generic.Locker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Lock waits for key. ttl bounds the wait only; a local holder keeps the
// key until it releases.
func (l *LocalLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	ch := l.slot(key)

	timer := time.NewTimer(ttl)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", key, errors.Join(generic.ErrLockNotObtained, ctx.Err()))
	case <-timer.C:
		return nil, fmt.Errorf("%s: %w", key, generic.ErrLockNotObtained)
	}

	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}

// =============================================================================
// REDIS LOCKER
// =============================================================================

// RedisLocker obtains keys through redislock. Obtain is retried with a
// linear backoff until ttl elapses.
type RedisLocker struct {
	client  *redislock.Client
	backoff time.Duration
	logger  logrus.FieldLogger
}

var _ generic.Locker = (*RedisLocker)(nil)

// NewRedisLocker wraps an existing go-redis client.
func NewRedisLocker(rdb redis.UniversalClient, logger logrus.FieldLogger) *RedisLocker {
	return &RedisLocker{
		client:  redislock.New(rdb),
		backoff: 50 * time.Millisecond,
		logger:  config.OrDiscard(logger).WithField("module", "lock"),
	}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return rdb, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()

	lk, err := l.client.Obtain(waitCtx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.backoff),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%s: %w", key, generic.ErrLockNotObtained)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release with a fresh context: the caller's may already be done.
			if err := lk.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.logger.WithFields(logrus.Fields{
					"module":   "lock",
					"funcName": "RedisLocker.Lock",
					"key":      key,
				}).Warn("failed to release redis lock: " + err.Error())
			}
		})
	}, nil
}

// =============================================================================
// FIXED TTL
// =============================================================================

type fixedTTL struct {
	inner generic.Locker
	ttl   time.Duration
}

// WithTTL makes every Lock call on inner use ttl instead of the caller's.
// A non-positive ttl returns inner unchanged.
func WithTTL(inner generic.Locker, ttl time.Duration) generic.Locker {
	if ttl <= 0 {
		return inner
	}
	return fixedTTL{inner: inner, ttl: ttl}
}

func (f fixedTTL) Lock(ctx context.Context, key string, _ time.Duration) (func(), error) {
	return f.inner.Lock(ctx, key, f.ttl)
}
