package stock

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/site-ledger/generic"
)

// AuditReport compares a persisted balance with the one derived from the
// item's movement history.
type AuditReport struct {
	Item      generic.StockItem
	Stored    decimal.Decimal
	Derived   decimal.Decimal
	Movements int
}

// Drift is Stored - Derived. Ledger operations keep it at zero; only writes
// that bypassed the ledger (legacy direct overwrites) leave it non-zero.
func (r AuditReport) Drift() decimal.Decimal { return r.Stored.Sub(r.Derived) }

func (r AuditReport) Consistent() bool { return r.Drift().IsZero() }

// Derive sums the signed deltas of movements.
func Derive(movements []generic.StockMovement) decimal.Decimal {
	total := decimal.Zero
	for _, m := range movements {
		total = total.Add(m.Delta())
	}
	return total
}

// Audit reports the stored and derived balance of one item. Read-only.
func (l *Ledger) Audit(ctx context.Context, itemID generic.ItemID) (AuditReport, error) {
	const op = "stock.Audit"

	var report AuditReport
	err := l.store.WithTx(ctx, func(tx generic.Store) error {
		var err error
		report, err = audit(ctx, tx, op, itemID)
		return err
	})
	if err != nil {
		return AuditReport{}, l.fail(op, "stock item", int64(itemID), err)
	}
	return report, nil
}

// AuditProject audits every item of a project, in name order.
func (l *Ledger) AuditProject(ctx context.Context, projectID generic.ProjectID) ([]AuditReport, error) {
	items, err := l.Items(ctx, projectID)
	if err != nil {
		return nil, err
	}
	reports := make([]AuditReport, 0, len(items))
	for _, item := range items {
		r, err := l.Audit(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Rebuild rewrites the item balance to the value derived from its history.
// The returned report describes the state before the rewrite.
func (l *Ledger) Rebuild(ctx context.Context, itemID generic.ItemID) (AuditReport, error) {
	const op = "stock.Rebuild"

	item, err := l.Item(ctx, itemID)
	if err != nil {
		return AuditReport{}, err
	}

	var report AuditReport
	err = l.guard.Mutate(ctx, item.ProjectID, func(tx generic.Store) error {
		var err error
		report, err = audit(ctx, tx, op, itemID)
		if err != nil {
			return err
		}
		if report.Consistent() {
			return nil
		}
		return tx.SetItemBalance(ctx, itemID, report.Derived, report.Item.Version)
	})
	if err != nil {
		return AuditReport{}, l.fail(op, "stock item", int64(itemID), err)
	}

	if !report.Consistent() {
		l.logger.WithFields(logrus.Fields{
			"op":      op,
			"item_id": itemID,
			"stored":  report.Stored.String(),
			"derived": report.Derived.String(),
		}).Info("balance rebuilt from history")
	}
	return report, nil
}

func audit(ctx context.Context, tx generic.Store, op string, itemID generic.ItemID) (AuditReport, error) {
	item, err := tx.GetItem(ctx, itemID)
	if err != nil {
		return AuditReport{}, err
	}
	if item == nil {
		return AuditReport{}, &generic.NotFoundError{Op: op, Entity: "stock item", ID: int64(itemID)}
	}
	history, err := tx.ItemMovements(ctx, itemID)
	if err != nil {
		return AuditReport{}, err
	}
	return AuditReport{
		Item:      *item,
		Stored:    item.Balance,
		Derived:   Derive(history),
		Movements: len(history),
	}, nil
}
