package generic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// MOVEMENTS AND SHIFTS
// =============================================================================

func TestMovementKind_SignAndDelta(t *testing.T) {
	qty := decimal.RequireFromString("2.5")
	cases := []struct {
		kind MovementKind
		want string
	}{
		{MovementEntry, "2.5"},
		{MovementExit, "-2.5"},
		{MovementInternalUse, "-2.5"},
		{MovementAdjustmentIn, "2.5"},
		{MovementAdjustmentOut, "-2.5"},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			assert.True(t, tc.kind.Valid())
			m := StockMovement{Kind: tc.kind, Quantity: qty}
			assert.Equal(t, tc.want, m.Delta().String())
		})
	}
	assert.False(t, MovementKind("transfer").Valid())
	assert.True(t, MovementAdjustmentOut.IsAdjustment())
	assert.False(t, MovementExit.IsAdjustment())
}

func TestShifts_Halves(t *testing.T) {
	assert.Equal(t, int64(0), Shifts{}.Halves())
	assert.Equal(t, int64(1), Shifts{Afternoon: true}.Halves())
	assert.Equal(t, int64(2), Shifts{Morning: true, Afternoon: true}.Halves())
	assert.False(t, Shifts{}.Present())
}

func TestStockItem_IsLow(t *testing.T) {
	item := StockItem{Balance: decimal.NewFromInt(4), AlertThreshold: decimal.NewFromInt(5), AlertEnabled: true}
	assert.True(t, item.IsLow())

	item.Balance = decimal.NewFromInt(5)
	assert.False(t, item.IsLow(), "equal to threshold is not low")

	item.Balance = decimal.NewFromInt(-1)
	item.AlertEnabled = false
	assert.False(t, item.IsLow())
}

func TestFinancialEntry_Signed(t *testing.T) {
	amount := decimal.NewFromInt(80)
	assert.True(t, FinancialEntry{Kind: EntryIncome, Amount: amount}.Signed().Equal(amount))
	assert.True(t, FinancialEntry{Kind: EntryExpense, Amount: amount}.Signed().Equal(amount.Neg()))
}

// =============================================================================
// DATE AND PERIOD
// =============================================================================

func TestDate_ScanAndValue(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2024-02-29"))
	assert.Equal(t, "2024-02-29", d.String())

	require.NoError(t, d.Scan([]byte("2024-03-01T10:00:00Z")))
	assert.Equal(t, "2024-03-01", d.String())

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())

	assert.Error(t, d.Scan(42))
	assert.Error(t, d.Scan("01/03/2024"))

	v, err := NewDate(2024, time.May, 6).Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-05-06", v)

	v, err = Date{}.Value()
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestPeriod_Validate(t *testing.T) {
	d1 := MustParseDate("2024-01-01")
	d2 := MustParseDate("2024-01-31")

	assert.NoError(t, Period{From: d1, To: d2}.Validate("op"))
	assert.NoError(t, Period{From: d1, To: d1}.Validate("op"), "single day")

	err := Period{From: d2, To: d1}.Validate("op")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Error(t, Period{From: d1}.Validate("op"))

	p := Period{From: d1, To: d2}
	assert.True(t, p.Contains(d1))
	assert.True(t, p.Contains(d2))
	assert.False(t, p.Contains(d2.AddDays(1)))
}

// =============================================================================
// ERRORS
// =============================================================================

func TestWrap_Classification(t *testing.T) {
	assert.Nil(t, Wrap("op", "x", 1, nil))

	verr := &ValidationError{Op: "op", Field: "name", Reason: "required"}
	assert.Same(t, verr, Wrap("op", "x", 1, verr))

	conflict := fmt.Errorf("item 3: %w", ErrConcurrentModification)
	assert.Equal(t, conflict, Wrap("op", "x", 1, conflict))
	assert.True(t, IsRetryable(conflict))

	cause := errors.New("disk I/O error")
	err := Wrap("stock.RecordMovement", "stock item", 7, cause)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "stock.RecordMovement: stock item 7: disk I/O error", err.Error())
	assert.False(t, IsClientError(err))
	assert.False(t, IsNotFound(err))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "stock.Item: stock item 4 not found",
		(&NotFoundError{Op: "stock.Item", Entity: "stock item", ID: 4}).Error())
	assert.Equal(t, "finance.AddEntry: invalid amount (0): must be greater than zero",
		(&ValidationError{Op: "finance.AddEntry", Field: "amount", Value: "0", Reason: "must be greater than zero"}).Error())
}

// =============================================================================
// GUARD
// =============================================================================

// recordingLocker counts lock calls and fails on demand.
type recordingLocker struct {
	mu    sync.Mutex
	keys  []string
	fail  error
	ttl   time.Duration
	held  int
	freed int
}

func (l *recordingLocker) Lock(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return nil, l.fail
	}
	l.keys = append(l.keys, key)
	l.ttl = ttl
	l.held++
	return func() {
		l.mu.Lock()
		l.freed++
		l.mu.Unlock()
	}, nil
}

// txOnly is a TxStore whose WithTx just calls fn with a nil Store.
type txOnly struct {
	Store
	calls int
}

func (s *txOnly) WithTx(_ context.Context, fn func(Store) error) error {
	s.calls++
	return fn(nil)
}

func TestGuard_LocksProjectAroundTx(t *testing.T) {
	locker := &recordingLocker{}
	store := &txOnly{}
	g := NewGuard(store, locker)

	boom := errors.New("boom")
	err := g.Mutate(context.Background(), 12, func(Store) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"site-ledger:project:12"}, locker.keys)
	assert.Equal(t, DefaultLockTTL, locker.ttl)
	assert.Equal(t, 1, locker.freed, "released even when fn fails")
	assert.Equal(t, 1, store.calls)
}

func TestGuard_LockFailureSkipsTx(t *testing.T) {
	locker := &recordingLocker{fail: ErrLockNotObtained}
	store := &txOnly{}
	g := NewGuard(store, locker)

	err := g.Mutate(context.Background(), 1, func(Store) error { return nil })

	assert.ErrorIs(t, err, ErrLockNotObtained)
	assert.Equal(t, 0, store.calls)
}

func TestGuard_NilLockerNeverBlocks(t *testing.T) {
	store := &txOnly{}
	g := NewGuard(store, nil)
	require.NoError(t, g.Mutate(context.Background(), 1, func(Store) error { return nil }))
	assert.Equal(t, 1, store.calls)
}
