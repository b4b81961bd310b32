/*
ledger.go - Stock movement ledger with incrementally maintained balances

PURPOSE:
  Owns stock item balances and their movement history. Every movement
  updates the item balance and inserts its history row in one transaction.

INVARIANT:
  balance(item) == Σ signed(quantity) over the item's surviving movements

  entry, adjustment_in              → +quantity
  exit, internal_use, adjustment_out → -quantity

  The balance is maintained incrementally (read, add delta, write back with
  the version stamp), never recomputed on the write path.

REVERSAL:
  ReverseMovement applies the inverse delta to the CURRENT balance and
  deletes the row. When later movements exist for the item the result may
  differ from "balance had that movement never happened":

    entry 10   → 10
    exit 4     → 6
    reverse(entry 10) → -4

  This legacy behavior is kept. The Reversal result flags it (NonTerminal)
  and a warning is logged. The balance still equals the sum of the
  surviving movements (-4 above), so Audit reports no drift.

CORRECTIONS:
  Stock-take corrections never overwrite the balance silently. CorrectBalance
  records an adjustment_in/adjustment_out movement for the difference, so
  the invariant above still holds after a correction.

CONCURRENCY:
  Every mutation runs under the project lock (generic.Guard) and writes the
  balance with a compare-and-swap on the item version.

SEE ALSO:
  - audit.go: Audit, Rebuild
  - generic/ledger.go: Guard
  - generic/types.go: MovementKind.Sign
*/
package stock

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/site-ledger/config"
	"github.com/warp/site-ledger/generic"
)

// DefaultCategory is used when an item is saved without a category.
const DefaultCategory = "Geral"

// DefaultAlertThreshold applies when an item is registered without one.
var DefaultAlertThreshold = decimal.NewFromInt(5)

// Ledger is the stock ledger of every project in one store.
type Ledger struct {
	store  generic.TxStore
	guard  *generic.Guard
	logger logrus.FieldLogger
}

// NewLedger creates a stock ledger. A nil locker disables project locking;
// a nil logger discards output.
func NewLedger(store generic.TxStore, locker generic.Locker, logger logrus.FieldLogger) *Ledger {
	return &Ledger{
		store:  store,
		guard:  generic.NewGuard(store, locker),
		logger: config.OrDiscard(logger).WithField("module", "stock"),
	}
}

// =============================================================================
// INPUTS
// =============================================================================

// NewItem describes an item to register. A zero-valued AlertThreshold
// (Valid == false) falls back to DefaultAlertThreshold.
type NewItem struct {
	ProjectID      generic.ProjectID
	Name           string
	Category       string
	Unit           string
	AlertThreshold decimal.NullDecimal
	AlertEnabled   bool
}

// NewMovement describes an entry, exit or internal use.
type NewMovement struct {
	ItemID      generic.ItemID
	Quantity    decimal.Decimal
	Kind        generic.MovementKind
	Date        generic.Date
	Origin      string
	Destination string
	Invoice     string
}

// Reversal is the outcome of ReverseMovement.
type Reversal struct {
	Movement generic.StockMovement // the removed row
	Balance  decimal.Decimal       // item balance after the reversal

	// NonTerminal is true when the item had later movements, so the result
	// is order-sensitive.
	NonTerminal bool
}

// Correction is the outcome of CorrectBalance. Movement is nil when the
// requested balance already matched.
type Correction struct {
	Movement *generic.StockMovement
	Previous decimal.Decimal
	Balance  decimal.Decimal
}

// =============================================================================
// ITEMS
// =============================================================================

// RegisterItem creates an item at balance zero.
func (l *Ledger) RegisterItem(ctx context.Context, in NewItem) (generic.ItemID, error) {
	const op = "stock.RegisterItem"

	item := generic.StockItem{
		ProjectID:      in.ProjectID,
		Name:           strings.TrimSpace(in.Name),
		Category:       strings.TrimSpace(in.Category),
		Unit:           strings.TrimSpace(in.Unit),
		Balance:        decimal.Zero,
		AlertThreshold: DefaultAlertThreshold,
		AlertEnabled:   in.AlertEnabled,
	}
	if in.AlertThreshold.Valid {
		item.AlertThreshold = in.AlertThreshold.Decimal
	}
	if err := validateItem(op, &item); err != nil {
		return 0, err
	}

	var id generic.ItemID
	err := l.guard.Mutate(ctx, in.ProjectID, func(tx generic.Store) error {
		project, err := tx.GetProject(ctx, in.ProjectID)
		if err != nil {
			return err
		}
		if project == nil {
			return &generic.NotFoundError{Op: op, Entity: "project", ID: int64(in.ProjectID)}
		}
		id, err = tx.InsertItem(ctx, item)
		return err
	})
	if err != nil {
		return 0, l.fail(op, "project", int64(in.ProjectID), err)
	}

	l.logger.WithFields(logrus.Fields{"op": op, "project_id": in.ProjectID, "item_id": id}).Debug("item registered")
	return id, nil
}

// UpdateItem edits name, category, unit and alert settings. The balance
// and version in item are ignored.
func (l *Ledger) UpdateItem(ctx context.Context, item generic.StockItem) error {
	const op = "stock.UpdateItem"

	item.Name = strings.TrimSpace(item.Name)
	item.Category = strings.TrimSpace(item.Category)
	item.Unit = strings.TrimSpace(item.Unit)
	if err := validateItem(op, &item); err != nil {
		return err
	}

	current, err := l.Item(ctx, item.ID)
	if err != nil {
		return err
	}

	err = l.guard.Mutate(ctx, current.ProjectID, func(tx generic.Store) error {
		ok, err := tx.UpdateItem(ctx, item)
		if err != nil {
			return err
		}
		if !ok {
			return &generic.NotFoundError{Op: op, Entity: "stock item", ID: int64(item.ID)}
		}
		return nil
	})
	return l.fail(op, "stock item", int64(item.ID), err)
}

// Item returns one item or a NotFoundError.
func (l *Ledger) Item(ctx context.Context, id generic.ItemID) (*generic.StockItem, error) {
	const op = "stock.Item"
	item, err := l.store.GetItem(ctx, id)
	if err != nil {
		return nil, l.fail(op, "stock item", int64(id), err)
	}
	if item == nil {
		return nil, &generic.NotFoundError{Op: op, Entity: "stock item", ID: int64(id)}
	}
	return item, nil
}

// Items returns the project's items ordered by name.
func (l *Ledger) Items(ctx context.Context, projectID generic.ProjectID) ([]generic.StockItem, error) {
	items, err := l.store.ListItems(ctx, projectID)
	if err != nil {
		return nil, l.fail("stock.Items", "project", int64(projectID), err)
	}
	return items, nil
}

// LowStockItems returns alert-enabled items whose balance is below the
// threshold, lowest balance first.
func (l *Ledger) LowStockItems(ctx context.Context, projectID generic.ProjectID) ([]generic.StockItem, error) {
	items, err := l.store.ListItems(ctx, projectID)
	if err != nil {
		return nil, l.fail("stock.LowStockItems", "project", int64(projectID), err)
	}

	low := make([]generic.StockItem, 0, len(items))
	for _, item := range items {
		if item.IsLow() {
			low = append(low, item)
		}
	}
	// Stable over the name order ListItems returns.
	sort.SliceStable(low, func(i, j int) bool {
		return low[i].Balance.LessThan(low[j].Balance)
	})
	return low, nil
}

// =============================================================================
// MOVEMENTS
// =============================================================================

// RecordMovement validates the movement, then adds its signed delta to the
// item balance and inserts the row atomically.
func (l *Ledger) RecordMovement(ctx context.Context, in NewMovement) (generic.MovementID, error) {
	const op = "stock.RecordMovement"

	if !in.Quantity.IsPositive() {
		return 0, &generic.ValidationError{Op: op, Field: "quantity", Value: in.Quantity.String(), Reason: "must be greater than zero"}
	}
	if !in.Kind.Valid() || in.Kind.IsAdjustment() {
		return 0, &generic.ValidationError{Op: op, Field: "kind", Value: string(in.Kind), Reason: "must be entry, exit or internal_use"}
	}
	if in.Date.IsZero() {
		return 0, &generic.ValidationError{Op: op, Field: "date", Reason: "required"}
	}

	item, err := l.Item(ctx, in.ItemID)
	if err != nil {
		return 0, err
	}

	m := generic.StockMovement{
		ItemID:      in.ItemID,
		Date:        in.Date,
		Kind:        in.Kind,
		Quantity:    in.Quantity,
		Origin:      strings.TrimSpace(in.Origin),
		Destination: strings.TrimSpace(in.Destination),
		Invoice:     strings.TrimSpace(in.Invoice),
	}

	var balance decimal.Decimal
	err = l.guard.Mutate(ctx, item.ProjectID, func(tx generic.Store) error {
		var err error
		m.ID, balance, err = applyMovement(ctx, tx, op, m)
		return err
	})
	if err != nil {
		return 0, l.fail(op, "stock item", int64(in.ItemID), err)
	}

	l.logger.WithFields(logrus.Fields{
		"op":          op,
		"item_id":     in.ItemID,
		"movement_id": m.ID,
		"kind":        m.Kind,
		"delta":       m.Delta().String(),
		"balance":     balance.String(),
	}).Debug("movement recorded")
	return m.ID, nil
}

// ReverseMovement deletes a movement and applies its inverse delta to the
// current balance.
func (l *Ledger) ReverseMovement(ctx context.Context, id generic.MovementID) (Reversal, error) {
	const op = "stock.ReverseMovement"

	projectID, err := l.movementProject(ctx, op, id)
	if err != nil {
		return Reversal{}, err
	}

	var out Reversal
	err = l.guard.Mutate(ctx, projectID, func(tx generic.Store) error {
		m, err := tx.GetMovement(ctx, id)
		if err != nil {
			return err
		}
		if m == nil {
			return &generic.NotFoundError{Op: op, Entity: "movement", ID: int64(id)}
		}
		item, err := tx.GetItem(ctx, m.ItemID)
		if err != nil {
			return err
		}
		if item == nil {
			return &generic.NotFoundError{Op: op, Entity: "stock item", ID: int64(m.ItemID)}
		}

		history, err := tx.ItemMovements(ctx, m.ItemID)
		if err != nil {
			return err
		}
		out.NonTerminal = hasLaterMovement(history, *m)

		balance := item.Balance.Sub(m.Delta())
		if err := tx.SetItemBalance(ctx, item.ID, balance, item.Version); err != nil {
			return err
		}
		ok, err := tx.DeleteMovement(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return &generic.NotFoundError{Op: op, Entity: "movement", ID: int64(id)}
		}

		out.Movement = *m
		out.Balance = balance
		return nil
	})
	if err != nil {
		return Reversal{}, l.fail(op, "movement", int64(id), err)
	}

	entry := l.logger.WithFields(logrus.Fields{
		"op":          op,
		"item_id":     out.Movement.ItemID,
		"movement_id": id,
		"balance":     out.Balance.String(),
	})
	if out.NonTerminal {
		entry.Warn("reversed a movement that has later movements; balance is order-sensitive")
	} else {
		entry.Debug("movement reversed")
	}
	return out, nil
}

// CorrectBalance sets the item balance to target by recording an
// adjustment movement for the difference. Reason is kept on the movement's
// Origin field. A correction to the current balance records nothing.
func (l *Ledger) CorrectBalance(ctx context.Context, itemID generic.ItemID, target decimal.Decimal, date generic.Date, reason string) (Correction, error) {
	const op = "stock.CorrectBalance"

	if date.IsZero() {
		return Correction{}, &generic.ValidationError{Op: op, Field: "date", Reason: "required"}
	}

	item, err := l.Item(ctx, itemID)
	if err != nil {
		return Correction{}, err
	}

	var out Correction
	err = l.guard.Mutate(ctx, item.ProjectID, func(tx generic.Store) error {
		current, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if current == nil {
			return &generic.NotFoundError{Op: op, Entity: "stock item", ID: int64(itemID)}
		}
		out.Previous = current.Balance
		out.Balance = current.Balance

		diff := target.Sub(current.Balance)
		if diff.IsZero() {
			return nil
		}

		m := generic.StockMovement{
			ItemID:   itemID,
			Date:     date,
			Kind:     generic.MovementAdjustmentIn,
			Quantity: diff.Abs(),
			Origin:   strings.TrimSpace(reason),
		}
		if diff.IsNegative() {
			m.Kind = generic.MovementAdjustmentOut
		}

		m.ID, out.Balance, err = applyMovement(ctx, tx, op, m)
		if err != nil {
			return err
		}
		out.Movement = &m
		return nil
	})
	if err != nil {
		return Correction{}, l.fail(op, "stock item", int64(itemID), err)
	}

	if out.Movement != nil {
		l.logger.WithFields(logrus.Fields{
			"op":          op,
			"item_id":     itemID,
			"movement_id": out.Movement.ID,
			"previous":    out.Previous.String(),
			"balance":     out.Balance.String(),
		}).Info("balance corrected")
	}
	return out, nil
}

// ListMovements returns the project's movements, newest first.
func (l *Ledger) ListMovements(ctx context.Context, f generic.MovementFilter) ([]generic.MovementRow, error) {
	const op = "stock.ListMovements"
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, &generic.ValidationError{Op: op, Field: "kind", Value: string(f.Kind), Reason: "unknown movement kind"}
	}
	f.Item = strings.TrimSpace(f.Item)
	f.Party = strings.TrimSpace(f.Party)
	f.Category = strings.TrimSpace(f.Category)

	rows, err := l.store.ListMovements(ctx, f)
	if err != nil {
		return nil, l.fail(op, "project", int64(f.ProjectID), err)
	}
	return rows, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// applyMovement is the balance write + history insert shared by recording
// and correcting. It must run inside a transaction.
func applyMovement(ctx context.Context, tx generic.Store, op string, m generic.StockMovement) (generic.MovementID, decimal.Decimal, error) {
	item, err := tx.GetItem(ctx, m.ItemID)
	if err != nil {
		return 0, decimal.Zero, err
	}
	if item == nil {
		return 0, decimal.Zero, &generic.NotFoundError{Op: op, Entity: "stock item", ID: int64(m.ItemID)}
	}

	balance := item.Balance.Add(m.Delta())
	if err := tx.SetItemBalance(ctx, item.ID, balance, item.Version); err != nil {
		return 0, decimal.Zero, err
	}
	id, err := tx.InsertMovement(ctx, m)
	if err != nil {
		return 0, decimal.Zero, err
	}
	return id, balance, nil
}

func (l *Ledger) movementProject(ctx context.Context, op string, id generic.MovementID) (generic.ProjectID, error) {
	m, err := l.store.GetMovement(ctx, id)
	if err != nil {
		return 0, l.fail(op, "movement", int64(id), err)
	}
	if m == nil {
		return 0, &generic.NotFoundError{Op: op, Entity: "movement", ID: int64(id)}
	}
	item, err := l.Item(ctx, m.ItemID)
	if err != nil {
		return 0, err
	}
	return item.ProjectID, nil
}

// hasLaterMovement reports whether history (oldest first) contains a
// movement ordered after m by (date, id).
func hasLaterMovement(history []generic.StockMovement, m generic.StockMovement) bool {
	for _, other := range history {
		if other.ID == m.ID {
			continue
		}
		if other.Date.After(m.Date) || (other.Date.Equal(m.Date) && other.ID > m.ID) {
			return true
		}
	}
	return false
}

func validateItem(op string, item *generic.StockItem) error {
	if item.Category == "" {
		item.Category = DefaultCategory
	}
	if item.Name == "" {
		return &generic.ValidationError{Op: op, Field: "name", Reason: "required"}
	}
	if item.AlertThreshold.IsNegative() {
		return &generic.ValidationError{Op: op, Field: "alert_threshold", Value: item.AlertThreshold.String(), Reason: "must not be negative"}
	}
	return nil
}

// fail classifies err and logs persistence failures.
func (l *Ledger) fail(op, entity string, id int64, err error) error {
	err = generic.Wrap(op, entity, id, err)
	if err != nil && !generic.IsClientError(err) && !generic.IsNotFound(err) {
		config.LogError(l.logger, "stock", op, entity, id, err)
	}
	return err
}
