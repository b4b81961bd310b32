/*
ledger.go - Financial ledger (signed cash entries)

PURPOSE:
  Income and expense entries of a project. Unlike stock, nothing is
  maintained incrementally: the balance is recomputed by summation on every
  read, so deleting an entry needs no compensating bookkeeping.

  currentBalance = Σ income - Σ expense

SEE ALSO:
  - stock/ledger.go: the incrementally maintained counterpart
  - dashboard/: reads CurrentBalance
*/
package finance

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/site-ledger/config"
	"github.com/warp/site-ledger/generic"
)

type Ledger struct {
	store  generic.TxStore
	logger logrus.FieldLogger
}

func NewLedger(store generic.TxStore, logger logrus.FieldLogger) *Ledger {
	return &Ledger{store: store, logger: config.OrDiscard(logger).WithField("module", "finance")}
}

// NewEntry describes an entry to add.
type NewEntry struct {
	ProjectID   generic.ProjectID
	Date        generic.Date
	Kind        generic.EntryKind
	Amount      decimal.Decimal
	Description string
	Invoice     string
}

// Totals summarizes a project's cash.
type Totals struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Balance decimal.Decimal
}

// AddEntry appends an income or expense.
func (l *Ledger) AddEntry(ctx context.Context, in NewEntry) (generic.EntryID, error) {
	const op = "finance.AddEntry"

	if !in.Amount.IsPositive() {
		return 0, &generic.ValidationError{Op: op, Field: "amount", Value: in.Amount.String(), Reason: "must be greater than zero"}
	}
	if !in.Kind.Valid() {
		return 0, &generic.ValidationError{Op: op, Field: "kind", Value: string(in.Kind), Reason: "must be income or expense"}
	}
	if in.Date.IsZero() {
		return 0, &generic.ValidationError{Op: op, Field: "date", Reason: "required"}
	}

	var id generic.EntryID
	err := l.store.WithTx(ctx, func(tx generic.Store) error {
		project, err := tx.GetProject(ctx, in.ProjectID)
		if err != nil {
			return err
		}
		if project == nil {
			return &generic.NotFoundError{Op: op, Entity: "project", ID: int64(in.ProjectID)}
		}
		id, err = tx.InsertEntry(ctx, generic.FinancialEntry{
			ProjectID:   in.ProjectID,
			Date:        in.Date,
			Kind:        in.Kind,
			Amount:      in.Amount,
			Description: strings.TrimSpace(in.Description),
			Invoice:     strings.TrimSpace(in.Invoice),
		})
		return err
	})
	if err != nil {
		return 0, l.fail(op, "project", int64(in.ProjectID), err)
	}

	l.logger.WithFields(logrus.Fields{"op": op, "entry_id": id, "kind": in.Kind, "amount": in.Amount.String()}).Debug("entry added")
	return id, nil
}

// DeleteEntry removes an entry. The balance follows on the next read.
func (l *Ledger) DeleteEntry(ctx context.Context, id generic.EntryID) error {
	const op = "finance.DeleteEntry"
	ok, err := l.store.DeleteEntry(ctx, id)
	if err != nil {
		return l.fail(op, "entry", int64(id), err)
	}
	if !ok {
		return &generic.NotFoundError{Op: op, Entity: "entry", ID: int64(id)}
	}
	l.logger.WithFields(logrus.Fields{"op": op, "entry_id": id}).Debug("entry deleted")
	return nil
}

// Entries returns the project's entries, newest first.
func (l *Ledger) Entries(ctx context.Context, projectID generic.ProjectID) ([]generic.FinancialEntry, error) {
	entries, err := l.store.ListEntries(ctx, projectID)
	if err != nil {
		return nil, l.fail("finance.Entries", "project", int64(projectID), err)
	}
	return entries, nil
}

// CurrentBalance is Σ income - Σ expense, recomputed on every call.
func (l *Ledger) CurrentBalance(ctx context.Context, projectID generic.ProjectID) (decimal.Decimal, error) {
	t, err := l.Totals(ctx, projectID)
	if err != nil {
		return decimal.Zero, err
	}
	return t.Balance, nil
}

func (l *Ledger) Totals(ctx context.Context, projectID generic.ProjectID) (Totals, error) {
	entries, err := l.Entries(ctx, projectID)
	if err != nil {
		return Totals{}, err
	}
	return Summarize(entries), nil
}

// Summarize totals a list of entries.
func Summarize(entries []generic.FinancialEntry) Totals {
	t := Totals{Income: decimal.Zero, Expense: decimal.Zero}
	for _, e := range entries {
		switch e.Kind {
		case generic.EntryIncome:
			t.Income = t.Income.Add(e.Amount)
		case generic.EntryExpense:
			t.Expense = t.Expense.Add(e.Amount)
		}
	}
	t.Balance = t.Income.Sub(t.Expense)
	return t
}

func (l *Ledger) fail(op, entity string, id int64, err error) error {
	err = generic.Wrap(op, entity, id, err)
	if err != nil && !generic.IsClientError(err) && !generic.IsNotFound(err) {
		config.LogError(l.logger, "finance", op, entity, id, err)
	}
	return err
}
