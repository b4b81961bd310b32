/*
Package dashboard composes the read-only "today" view of a project.

  CashBalance  finance.CurrentBalance
  Present      employees with a morning OR afternoon flag on the day
  LowStock     stock.LowStockItems (lowest balance first)
  Diary        the day's diary entry, nil when absent

Every part is a plain read of its owning ledger; nothing is written and
nothing is cached.
*/
package dashboard

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/site-ledger/attendance"
	"github.com/warp/site-ledger/finance"
	"github.com/warp/site-ledger/generic"
	"github.com/warp/site-ledger/site"
	"github.com/warp/site-ledger/staff"
	"github.com/warp/site-ledger/stock"
)

type Snapshot struct {
	ProjectID    generic.ProjectID
	Date         generic.Date
	CashBalance  decimal.Decimal
	Present      []string // one name per present employee, sorted
	PresentCount int
	LowStock     []generic.StockItem
	Diary        *generic.DiaryEntry
}

type Aggregator struct {
	finance    *finance.Ledger
	attendance *attendance.Ledger
	stock      *stock.Ledger
	staff      *staff.Registry
	site       *site.Service
	now        func() time.Time
}

func NewAggregator(fin *finance.Ledger, att *attendance.Ledger, stk *stock.Ledger, reg *staff.Registry, svc *site.Service) *Aggregator {
	return &Aggregator{
		finance:    fin,
		attendance: att,
		stock:      stk,
		staff:      reg,
		site:       svc,
		now:        time.Now,
	}
}

// WithClock replaces the clock used by Today.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Today is Snapshot for the current date.
func (a *Aggregator) Today(ctx context.Context, projectID generic.ProjectID) (Snapshot, error) {
	return a.Snapshot(ctx, projectID, generic.DateOf(a.now()))
}

// Snapshot builds the view of one project on one date.
func (a *Aggregator) Snapshot(ctx context.Context, projectID generic.ProjectID, date generic.Date) (Snapshot, error) {
	if _, err := a.site.Project(ctx, projectID); err != nil {
		return Snapshot{}, err
	}

	out := Snapshot{ProjectID: projectID, Date: date}

	var err error
	if out.CashBalance, err = a.finance.CurrentBalance(ctx, projectID); err != nil {
		return Snapshot{}, err
	}
	if out.Present, err = a.present(ctx, projectID, date); err != nil {
		return Snapshot{}, err
	}
	out.PresentCount = len(out.Present)
	if out.LowStock, err = a.stock.LowStockItems(ctx, projectID); err != nil {
		return Snapshot{}, err
	}
	if out.Diary, err = a.site.Diary(ctx, projectID, date); err != nil {
		return Snapshot{}, err
	}
	return out, nil
}

func (a *Aggregator) present(ctx context.Context, projectID generic.ProjectID, date generic.Date) ([]string, error) {
	day, err := a.attendance.AttendanceForDay(ctx, projectID, date)
	if err != nil {
		return nil, err
	}
	if len(day) == 0 {
		return []string{}, nil
	}
	employees, err := a.staff.List(ctx, projectID, nil)
	if err != nil {
		return nil, err
	}

	// One name per present employee; namesakes are listed twice.
	names := make([]string, 0, len(day))
	for _, e := range employees {
		if day[e.ID].Present() {
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}
