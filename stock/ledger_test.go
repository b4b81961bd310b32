package stock_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/site-ledger/generic"
	"github.com/warp/site-ledger/lock"
	"github.com/warp/site-ledger/stock"
	"github.com/warp/site-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*stock.Ledger, *sqlite.Store, generic.ProjectID) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	projectID, err := store.InsertProject(context.Background(), generic.Project{
		Name:      "Obra Teste",
		StartDate: generic.MustParseDate("2024-01-01"),
	})
	require.NoError(t, err)

	return stock.NewLedger(store, lock.NewLocalLocker(), nil), store, projectID
}

func registerItem(t *testing.T, ledger *stock.Ledger, projectID generic.ProjectID, name string) generic.ItemID {
	t.Helper()
	id, err := ledger.RegisterItem(context.Background(), stock.NewItem{
		ProjectID:    projectID,
		Name:         name,
		Unit:         "un",
		AlertEnabled: true,
	})
	require.NoError(t, err)
	return id
}

func move(t *testing.T, ledger *stock.Ledger, item generic.ItemID, qty int64, kind generic.MovementKind, day string) generic.MovementID {
	t.Helper()
	id, err := ledger.RecordMovement(context.Background(), stock.NewMovement{
		ItemID:   item,
		Quantity: decimal.NewFromInt(qty),
		Kind:     kind,
		Date:     generic.MustParseDate(day),
	})
	require.NoError(t, err)
	return id
}

func balanceOf(t *testing.T, ledger *stock.Ledger, item generic.ItemID) decimal.Decimal {
	t.Helper()
	got, err := ledger.Item(context.Background(), item)
	require.NoError(t, err)
	return got.Balance
}

func assertBalance(t *testing.T, ledger *stock.Ledger, item generic.ItemID, want int64) {
	t.Helper()
	got := balanceOf(t, ledger, item)
	assert.True(t, got.Equal(decimal.NewFromInt(want)), "balance: want %d, got %s", want, got)
}

// =============================================================================
// REGISTRATION
// =============================================================================

func TestRegisterItem_Defaults(t *testing.T) {
	ledger, _, projectID := newTestLedger(t)

	id := registerItem(t, ledger, projectID, "  Cimento  ")

	item, err := ledger.Item(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Cimento", item.Name)
	assert.Equal(t, stock.DefaultCategory, item.Category)
	assert.True(t, item.Balance.IsZero(), "items start at zero")
	assert.True(t, item.AlertThreshold.Equal(stock.DefaultAlertThreshold))
}

func TestRegisterItem_EmptyName_ValidationError(t *testing.T) {
	ledger, _, projectID := newTestLedger(t)

	_, err := ledger.RegisterItem(context.Background(), stock.NewItem{ProjectID: projectID, Name: "   "})

	var verr *generic.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)
	assert.Equal(t, "stock.RegisterItem", verr.Op)
}

func TestRegisterItem_UnknownProject_NotFound(t *testing.T) {
	ledger, _, _ := newTestLedger(t)

	_, err := ledger.RegisterItem(context.Background(), stock.NewItem{ProjectID: 999, Name: "Areia"})

	var nf *generic.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "project", nf.Entity)
	assert.Equal(t, int64(999), nf.ID)
}

func TestUpdateItem_KeepsBalance(t *testing.T) {
	ledger, _, projectID := newTestLedger(t)
	ctx := context.Background()
	id := registerItem(t, ledger, projectID, "Tijolo")
	move(t, ledger, id, 100, generic.MovementEntry, "2024-01-02")

	err := ledger.UpdateItem(ctx, generic.StockItem{
		ID:             id,
		Name:           "Tijolo 8 furos",
		Category:       "Alvenaria",
		Unit:           "milheiro",
		Balance:        decimal.NewFromInt(-1), // ignored
		AlertThreshold: decimal.NewFromInt(20),
		AlertEnabled:   false,
	})
	require.NoError(t, err)

	item, err := ledger.Item(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Tijolo 8 furos", item.Name)
	assert.Equal(t, "Alvenaria", item.Category)
	assert.False(t, item.AlertEnabled)
	assertBalance(t, ledger, id, 100)
}

func TestUpdateItem_Missing_NotFound(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	err := ledger.UpdateItem(context.Background(), generic.StockItem{ID: 77, Name: "X"})
	assert.True(t, generic.IsNotFound(err))
}

// =============================================================================
// MOVEMENTS
// =============================================================================

func TestRecordMovement_SignedDeltas(t *testing.T) {
	ledger, _, projectID := newTestLedger(t)
	id := registerItem(t, ledger, projectID, "Areia")

	move(t, ledger, id, 10, generic.MovementEntry, "2024-01-02")
	assertBalance(t, ledger, id, 10)

	move(t, ledger, id, 3, generic.MovementExit, "2024-01-03")
	assertBalance(t, ledger, id, 7)

	move(t, ledger, id, 2, generic.MovementInternalUse, "2024-01-04")
	assertBalance(t, ledger, id, 5)
}

func TestRecordMovement_NonPositiveQuantity_Rejected(t *testing.T) {
	// GIVEN: an item with balance 10
	// WHEN: recording quantity 0 or negative
	// THEN: ValidationError and the balance is unchanged

	ledger, _, projectID := newTestLedger(t)
	ctx := context.Background()
	id := registerItem(t, ledger, projectID, "Brita")
	move(t, ledger, id, 10, generic.MovementEntry, "2024-01-02")

	for _, qty := range []int64{0, -5} {
		_, err := ledger.RecordMovement(ctx, stock.NewMovement{
			ItemID:   id,
			Quantity: decimal.NewFromInt(qty),
			Kind:     generic.MovementExit,
			Date:     generic.MustParseDate("2024-01-03"),
		})
		var verr *generic.ValidationError
		require.ErrorAs(t, err, &verr, "quantity %d", qty)
		assert.Equal(t, "quantity", verr.Field)
	}
	assertBalance(t, ledger, id, 10)

	rows, err := ledger.ListMovements(ctx, generic.MovementFilter{ProjectID: projectID})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRecordMovement_AdjustmentKindsReserved(t *testing.T) {
	ledger, _, projectID := newTestLedger(t)
	id := registerItem(t, ledger, projectID, "Cal")

	_, err := ledger.RecordMovement(context.Background(), stock.NewMovement{
		ItemID:   id,
		Quantity: decimal.NewFromInt(1),
		Kind:     generic.MovementAdjustmentIn,
		Date:     generic.MustParseDate("2024-01-02"),
	})
	assert.True(t, generic.IsClientError(err))
}

func TestRecordMovement_UnknownItem_NotFound(t *testing.T) {
	ledger, _, _ := newTestLedger(t)

	_, err := ledger.RecordMovement(context.Background(), stock.NewMovement{
		ItemID:   404,
		Quantity: decimal.NewFromInt(1),
		Kind:     generic.MovementEntry,
		Date:     generic.MustParseDate("2024-01-02"),
	})
	var nf *generic.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int64(404), nf.ID)
}

func TestRecordMovement_FractionalQuantities(t *testing.T) {
	ledger, _, projectID := newTestLedger(t)
	ctx := context.Background()
	id := registerItem(t, ledger, projectID, "Concreto")

	for _, q := range []string{"0.1", "0.2"} {
		_, err := ledger.RecordMovement(ctx, stock.NewMovement{
			ItemID: id, Quantity: decimal.RequireFromString(q),
			Kind: generic.MovementEntry, Date: generic.MustParseDate("2024-01-02"),
		})
		require.NoError(t, err)
	}
	assert.Equal(t, "0.3", balanceOf(t, ledger, id).String())
}

// =============================================================================
// REVERSAL
// =============================================================================

func TestReverseMovement_RoundTrip(t *testing.T) {
	// GIVEN: an item with some history
	// WHEN: a movement is recorded and immediately reversed
	// THEN: the prior balance is restored and the row is gone

	ledger, _, projectID := newTestLedger(t)
	ctx := context.Background()
	id := registerItem(t, ledger, projectID, "Areia")
	move(t, ledger, id, 8, generic.MovementEntry, "2024-01-02")

	mid := move(t, ledger, id, 5, generic.MovementExit, "2024-01-03")
	assertBalance(t, ledger, id, 3)

	rev, err := ledger.ReverseMovement(ctx, mid)
	require.NoError(t, err)
	assert.False(t, rev.NonTerminal)
	assert.Equal(t, mid, rev.Movement.ID)
	assertBalance(t, ledger, id, 8)

	rows, err := ledger.ListMovements(ctx, generic.MovementFilter{ProjectID: projectID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotEqual(t, mid, rows[0].ID)
}

func TestReverseMovement_OrderSensitive(t *testing.T) {
	// GIVEN: entry 10, then exit 4 (balance 6)
	// WHEN: the ENTRY is reversed
	// THEN: the inverse delta hits the current balance: 6 - 10 = -4

	ledger, _, projectID := newTestLedger(t)
	ctx := context.Background()
	id := registerItem(t, ledger, projectID, "Cimento")

	entry := move(t, ledger, id, 10, generic.MovementEntry, "2024-01-02")
	assertBalance(t, ledger, id, 10)
	move(t, ledger, id, 4, generic.MovementExit, "2024-01-03")
	assertBalance(t, ledger, id, 6)

	rev, err := ledger.ReverseMovement(ctx, entry)
	require.NoError(t, err)

	assertBalance(t, ledger, id, -4)
	assert.True(t, rev.Balance.Equal(decimal.NewFromInt(-4)))
	assert.True(t, rev.NonTerminal, "a later exit exists")

	// Surviving history sums to -4 as well.
	report, err := ledger.Audit(ctx, id)
	require.NoError(t, err)
	assert.True(t, report.Derived.Equal(decimal.NewFromInt(-4)))
	assert.True(t, report.Consistent())
}

func TestReverseMovement_SameDayLaterIDIsNonTerminal(t *testing.T) {
	ledger, _, projectID := newTestLedger(t)
	id := registerItem(t, ledger, projectID, "Prego")

	first := move(t, ledger, id, 5, generic.MovementEntry, "2024-01-02")
	move(t, ledger, id, 1, generic.MovementExit, "2024-01-02")

	rev, err := ledger.ReverseMovement(context.Background(), first)
	require.NoError(t, err)
	assert.True(t, rev.NonTerminal)
}

func TestReverseMovement_Missing_NotFound(t *testing.T) {
	ledger, _, _ := newTestLedger(t)

	_, err := ledger.ReverseMovement(context.Background(), 12345)

	var nf *generic.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "movement", nf.Entity)
	assert.Equal(t, int64(12345), nf.ID)
}

func TestReverseMovement_Twice_NotFound(t *testing.T) {
	ledger, _, projectID := newTestLedger(t)
	ctx := context.Background()
	id := registerItem(t, ledger, projectID, "Areia")
	mid := move(t, ledger, id, 3, generic.MovementEntry, "2024-01-02")

	_, err := ledger.ReverseMovement(ctx, mid)
	require.NoError(t, err)

	_, err = ledger.ReverseMovement(ctx, mid)
	assert.True(t, generic.IsNotFound(err))
	assertBalance(t, ledger, id, 0)
}

// =============================================================================
// INVARIANT
// =============================================================================

func TestInvariant_BalanceEqualsSumOfSurvivingMovements(t *testing.T) {
	// GIVEN: an arbitrary interleaving of records and reversals
	// THEN: after every step balance == Σ signed(surviving quantities)

	ledger, _, projectID := newTestLedger(t)
	ctx := context.Background()
	id := registerItem(t, ledger, projectID, "Vergalhao")

	kinds := []generic.MovementKind{generic.MovementEntry, generic.MovementExit, generic.MovementInternalUse}
	var live []generic.MovementID
	for i := 0; i < 30; i++ {
		if i%4 == 3 && len(live) > 0 {
			victim := live[(i*7)%len(live)]
			_, err := ledger.ReverseMovement(ctx, victim)
			require.NoError(t, err)
			for j, m := range live {
				if m == victim {
					live = append(live[:j], live[j+1:]...)
					break
				}
			}
		} else {
			day := generic.MustParseDate("2024-02-01").AddDays(i % 5)
			mid, err := ledger.RecordMovement(ctx, stock.NewMovement{
				ItemID:   id,
				Quantity: decimal.NewFromInt(int64(i%9 + 1)),
				Kind:     kinds[i%len(kinds)],
				Date:     day,
			})
			require.NoError(t, err)
			live = append(live, mid)
		}

		report, err := ledger.Audit(ctx, id)
		require.NoError(t, err)
		require.True(t, report.Consistent(), "step %d: stored %s derived %s", i, report.Stored, report.Derived)
		require.Equal(t, len(live), report.Movements)
	}
}

func TestRecordMovement_ConcurrentWriters(t *testing.T) {
	// GIVEN: many goroutines recording entries on one item
	// THEN: no update is lost

	ledger, _, projectID := newTestLedger(t)
	ctx := context.Background()
	id := registerItem(t, ledger, projectID, "Cimento")

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.RecordMovement(ctx, stock.NewMovement{
				ItemID:   id,
				Quantity: decimal.NewFromInt(2),
				Kind:     generic.MovementEntry,
				Date:     generic.MustParseDate("2024-03-01"),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assertBalance(t, ledger, id, 50)
}

// =============================================================================
// CORRECTIONS
// =============================================================================

func TestCorrectBalance_RecordsAdjustment(t *testing.T) {
	ledger, _, projectID := newTestLedger(t)
	ctx := context.Background()
	id := registerItem(t, ledger, projectID, "Argamassa")
	move(t, ledger, id, 10, generic.MovementEntry, "2024-01-02")

	// Stock-take found 7.
	c, err := ledger.CorrectBalance(ctx, id, decimal.NewFromInt(7), generic.MustParseDate("2024-01-10"), "inventario")
	require.NoError(t, err)
	require.NotNil(t, c.Movement)
	assert.Equal(t, generic.MovementAdjustmentOut, c.Movement.Kind)
	assert.True(t, c.Movement.Quantity.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, "inventario", c.Movement.Origin)
	assert.True(t, c.Previous.Equal(decimal.NewFromInt(10)))
	assertBalance(t, ledger, id, 7)

	// Stock-take found 12.
	c, err = ledger.CorrectBalance(ctx, id, decimal.NewFromInt(12), generic.MustParseDate("2024-01-11"), "")
	require.NoError(t, err)
	assert.Equal(t, generic.MovementAdjustmentIn, c.Movement.Kind)
	assertBalance(t, ledger, id, 12)

	// History still explains the balance.
	report, err := ledger.Audit(ctx, id)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Equal(t, 3, report.Movements)

	rows, err := ledger.ListMovements(ctx, generic.MovementFilter{ProjectID: projectID, Kind: generic.MovementAdjustmentIn})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestCorrectBalance_NoChange_NoMovement(t *testing.T) {
	ledger, _, projectID := newTestLedger(t)
	ctx := context.Background()
	id := registerItem(t, ledger, projectID, "Areia")
	move(t, ledger, id, 4, generic.MovementEntry, "2024-01-02")

	c, err := ledger.CorrectBalance(ctx, id, decimal.NewFromInt(4), generic.MustParseDate("2024-01-03"), "ok")
	require.NoError(t, err)
	assert.Nil(t, c.Movement)

	report, err := ledger.Audit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Movements)
}

// =============================================================================
// LISTING
// =============================================================================

func TestListMovements_NewestFirstWithTieBreak(t *testing.T) {
	ledger, _, projectID := newTestLedger(t)
	ctx := context.Background()
	id := registerItem(t, ledger, projectID, "Areia")

	a := move(t, ledger, id, 1, generic.MovementEntry, "2024-01-05")
	b := move(t, ledger, id, 1, generic.MovementEntry, "2024-01-05")
	c := move(t, ledger, id, 1, generic.MovementEntry, "2024-01-01")
	d := move(t, ledger, id, 1, generic.MovementEntry, "2024-01-09")

	rows, err := ledger.ListMovements(ctx, generic.MovementFilter{ProjectID: projectID})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []generic.MovementID{d, b, a, c},
		[]generic.MovementID{rows[0].ID, rows[1].ID, rows[2].ID, rows[3].ID})
}

func TestListMovements_UnknownKind_ValidationError(t *testing.T) {
	ledger, _, projectID := newTestLedger(t)
	_, err := ledger.ListMovements(context.Background(), generic.MovementFilter{ProjectID: projectID, Kind: "theft"})
	assert.True(t, generic.IsClientError(err))
}

func TestLowStockItems_OrderedByBalance(t *testing.T) {
	ledger, _, projectID := newTestLedger(t)
	ctx := context.Background()

	plenty := registerItem(t, ledger, projectID, "A - plenty")
	move(t, ledger, plenty, 50, generic.MovementEntry, "2024-01-02")

	three := registerItem(t, ledger, projectID, "B - three")
	move(t, ledger, three, 3, generic.MovementEntry, "2024-01-02")

	_ = registerItem(t, ledger, projectID, "C - zero")

	muted, err := ledger.RegisterItem(ctx, stock.NewItem{ProjectID: projectID, Name: "D - muted", AlertEnabled: false})
	require.NoError(t, err)
	_ = muted

	exact := registerItem(t, ledger, projectID, "E - at threshold")
	move(t, ledger, exact, 5, generic.MovementEntry, "2024-01-02")

	low, err := ledger.LowStockItems(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "C - zero", low[0].Name)
	assert.Equal(t, "B - three", low[1].Name)
}

// =============================================================================
// AUDIT / REBUILD
// =============================================================================

func TestRebuild_RepairsDrift(t *testing.T) {
	ledger, store, projectID := newTestLedger(t)
	ctx := context.Background()
	id := registerItem(t, ledger, projectID, "Cimento")
	move(t, ledger, id, 10, generic.MovementEntry, "2024-01-02")

	// Simulate a legacy direct overwrite.
	_, err := store.DB().Exec(`UPDATE stock_items SET balance = '25' WHERE id = ?`, id)
	require.NoError(t, err)

	report, err := ledger.Audit(ctx, id)
	require.NoError(t, err)
	assert.True(t, report.Drift().Equal(decimal.NewFromInt(15)))

	report, err = ledger.Rebuild(ctx, id)
	require.NoError(t, err)
	assert.False(t, report.Consistent(), "report describes the state before rebuild")
	assertBalance(t, ledger, id, 10)

	reports, err := ledger.AuditProject(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Consistent())
}

// =============================================================================
// ROLLBACK
// =============================================================================

// faultyStore runs every transaction against a Store whose history writes
// fail after the balance has been written.
type faultyStore struct {
	*sqlite.Store
	err error
}

func (s faultyStore) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	return s.Store.WithTx(ctx, func(tx generic.Store) error {
		return fn(faultyTx{Store: tx, err: s.err})
	})
}

type faultyTx struct {
	generic.Store
	err error
}

func (tx faultyTx) InsertMovement(context.Context, generic.StockMovement) (generic.MovementID, error) {
	return 0, tx.err
}

func (tx faultyTx) DeleteMovement(context.Context, generic.MovementID) (bool, error) {
	return false, tx.err
}

func TestStorageFailure_RollsBackWholeOperation(t *testing.T) {
	healthy, store, projectID := newTestLedger(t)
	ctx := context.Background()

	// GIVEN: an item at 10 with one entry
	item := registerItem(t, healthy, projectID, "Cimento")
	entry := move(t, healthy, item, 10, generic.MovementEntry, "2024-01-02")

	broken := stock.NewLedger(faultyStore{Store: store, err: errors.New("disk full")}, lock.NewLocalLocker(), nil)

	tests := []struct {
		name string
		run  func() error
	}{
		{"record", func() error {
			_, err := broken.RecordMovement(ctx, stock.NewMovement{
				ItemID: item, Quantity: decimal.NewFromInt(3), Kind: generic.MovementExit,
				Date: generic.MustParseDate("2024-01-03"),
			})
			return err
		}},
		{"reverse", func() error {
			_, err := broken.ReverseMovement(ctx, entry)
			return err
		}},
		{"correct", func() error {
			_, err := broken.CorrectBalance(ctx, item, decimal.NewFromInt(4), generic.MustParseDate("2024-01-03"), "inventario")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// WHEN: the history write fails inside the transaction
			err := tt.run()

			// THEN: persistence error, and neither balance nor history moved
			require.Error(t, err)
			assert.ErrorIs(t, err, generic.ErrPersistence)
			assertBalance(t, healthy, item, 10)

			rows, err := healthy.ListMovements(ctx, generic.MovementFilter{ProjectID: projectID})
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, entry, rows[0].ID)

			report, err := healthy.Audit(ctx, item)
			require.NoError(t, err)
			assert.True(t, report.Consistent())
		})
	}
}
