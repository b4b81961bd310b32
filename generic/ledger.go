/*
ledger.go - Shared mutation guard for every ledger

PURPOSE:
  A ledger mutation is: take the project's writer lock, run one store
  transaction, release. This file owns that sequence so that stock,
  attendance and staff mutations cannot forget a step.

INVARIANTS:
  1. ONE WRITER: at most one mutation per project runs at a time
  2. ATOMIC: the aggregate update and its history row commit together
  3. CLASSIFIED: whatever fails comes back as a taxonomy error (errors.go)

CONCURRENCY:
  The lock is the serialization point required for read-modify-write
  balance maintenance. The optimistic version stamp on stock items is the
  second line: a writer that bypasses the lock still cannot overwrite a
  balance it did not read.

SEE ALSO:
  - store.go: TxStore, Locker
  - lock/: LocalLocker, RedisLocker
*/
package generic

import (
	"context"
	"time"
)

// DefaultLockTTL bounds how long a single ledger mutation may hold the
// project lock.
const DefaultLockTTL = 10 * time.Second

// Guard runs mutations under the project lock inside one transaction.
type Guard struct {
	Store  TxStore
	Locker Locker
	TTL    time.Duration
}

func NewGuard(store TxStore, locker Locker) *Guard {
	if locker == nil {
		locker = NopLocker{}
	}
	return &Guard{Store: store, Locker: locker, TTL: DefaultLockTTL}
}

// Mutate executes fn atomically while holding projectID's writer lock.
func (g *Guard) Mutate(ctx context.Context, projectID ProjectID, fn func(Store) error) error {
	ttl := g.TTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	unlock, err := g.Locker.Lock(ctx, ProjectLockKey(projectID), ttl)
	if err != nil {
		return err
	}
	defer unlock()

	return g.Store.WithTx(ctx, fn)
}

// NopLocker never blocks. Used when the caller serializes writes itself.
type NopLocker struct{}

func (NopLocker) Lock(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}
