/*
ledger.go - Attendance ledger with per-day upsert and half-shift granularity

PURPOSE:
  Owns one record per (employee, day) holding two half-shift flags. Days
  worked are derived from the flags, never stored.

INVARIANT:
  At most one AttendanceRecord per (EmployeeID, Date).

  Writing the same key twice is an update, not a conflict: the second write
  replaces both flags. Writing identical values twice leaves one identical
  row (idempotent).

DAYS WORKED:
  daysWorked = 0.5 * (Σ morning + Σ afternoon) over the period

  Counted as integer halves in SQL and converted with decimal arithmetic,
  so 3 halves is exactly 1.5.

BATCH (UpsertDay):
  A whole day sheet is written in one transaction. The sheet is rejected
  before any write when:
  1. The same employee appears twice
  2. An employee belongs to another project

EXAMPLE:
  ledger := attendance.NewLedger(store, locker, logger)
  err := ledger.UpsertAttendance(ctx, empID, day, generic.Shifts{Morning: true})
  rows, err := ledger.AggregatePeriod(ctx, projectID, generic.Period{From: d1, To: d3})

SEE ALSO:
  - payroll/: consumes AggregatePeriod
  - dashboard/: consumes AttendanceForDay
*/
package attendance

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/site-ledger/config"
	"github.com/warp/site-ledger/generic"
)

// HalfDay is the worth of one shift flag.
var HalfDay = decimal.New(5, -1)

// =============================================================================
// ATTENDANCE LEDGER
// =============================================================================

type Ledger struct {
	store  generic.TxStore
	guard  *generic.Guard
	logger logrus.FieldLogger
}

func NewLedger(store generic.TxStore, locker generic.Locker, logger logrus.FieldLogger) *Ledger {
	return &Ledger{
		store:  store,
		guard:  generic.NewGuard(store, locker),
		logger: config.OrDiscard(logger).WithField("module", "attendance"),
	}
}

// PeriodRow is one line of AggregatePeriod.
type PeriodRow struct {
	Employee   generic.Employee
	Halves     int64
	DaysWorked decimal.Decimal
}

// =============================================================================
// WRITES
// =============================================================================

// UpsertAttendance stores both flags for (employee, date).
func (l *Ledger) UpsertAttendance(ctx context.Context, employeeID generic.EmployeeID, date generic.Date, shifts generic.Shifts) error {
	const op = "attendance.UpsertAttendance"

	if date.IsZero() {
		return &generic.ValidationError{Op: op, Field: "date", Reason: "required"}
	}
	emp, err := l.employee(ctx, op, employeeID)
	if err != nil {
		return err
	}

	rec := generic.AttendanceRecord{EmployeeID: employeeID, Date: date, Shifts: shifts}
	err = l.guard.Mutate(ctx, emp.ProjectID, func(tx generic.Store) error {
		return tx.UpsertAttendance(ctx, rec)
	})
	if err != nil {
		return l.fail(op, "employee", int64(employeeID), err)
	}

	l.logger.WithFields(logrus.Fields{
		"op":          op,
		"employee_id": employeeID,
		"date":        date.String(),
		"morning":     shifts.Morning,
		"afternoon":   shifts.Afternoon,
	}).Debug("attendance saved")
	return nil
}

// UpsertDay saves a project's whole day sheet atomically.
func (l *Ledger) UpsertDay(ctx context.Context, projectID generic.ProjectID, date generic.Date, sheet []generic.AttendanceRecord) error {
	const op = "attendance.UpsertDay"

	if date.IsZero() {
		return &generic.ValidationError{Op: op, Field: "date", Reason: "required"}
	}
	if err := validateSheet(op, sheet); err != nil {
		return err
	}

	err := l.guard.Mutate(ctx, projectID, func(tx generic.Store) error {
		for _, rec := range sheet {
			emp, err := tx.GetEmployee(ctx, rec.EmployeeID)
			if err != nil {
				return err
			}
			if emp == nil {
				return &generic.NotFoundError{Op: op, Entity: "employee", ID: int64(rec.EmployeeID)}
			}
			if emp.ProjectID != projectID {
				return &generic.ValidationError{Op: op, Field: "employee_id", Value: rec.EmployeeID, Reason: "employee belongs to another project"}
			}
			rec.Date = date
			if err := tx.UpsertAttendance(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return l.fail(op, "project", int64(projectID), err)
	}

	l.logger.WithFields(logrus.Fields{
		"op":         op,
		"project_id": projectID,
		"date":       date.String(),
		"records":    len(sheet),
	}).Debug("day sheet saved")
	return nil
}

// =============================================================================
// READS
// =============================================================================

// Record returns the flags for (employee, date). ok is false when no record
// exists for that key.
func (l *Ledger) Record(ctx context.Context, employeeID generic.EmployeeID, date generic.Date) (generic.Shifts, bool, error) {
	const op = "attendance.Record"
	rec, err := l.store.GetAttendance(ctx, employeeID, date)
	if err != nil {
		return generic.Shifts{}, false, l.fail(op, "employee", int64(employeeID), err)
	}
	if rec == nil {
		return generic.Shifts{}, false, nil
	}
	return rec.Shifts, true, nil
}

// AttendanceForDay maps each employee with a record on date to its flags.
// Employees without a record that day are absent from the map.
func (l *Ledger) AttendanceForDay(ctx context.Context, projectID generic.ProjectID, date generic.Date) (map[generic.EmployeeID]generic.Shifts, error) {
	const op = "attendance.AttendanceForDay"
	if date.IsZero() {
		return nil, &generic.ValidationError{Op: op, Field: "date", Reason: "required"}
	}
	records, err := l.store.AttendanceForDay(ctx, projectID, date)
	if err != nil {
		return nil, l.fail(op, "project", int64(projectID), err)
	}
	out := make(map[generic.EmployeeID]generic.Shifts, len(records))
	for _, r := range records {
		out[r.EmployeeID] = r.Shifts
	}
	return out, nil
}

// AggregatePeriod returns days worked per employee over the inclusive
// period, ordered by employee name. Employees without records appear with
// zero days.
func (l *Ledger) AggregatePeriod(ctx context.Context, projectID generic.ProjectID, period generic.Period) ([]PeriodRow, error) {
	const op = "attendance.AggregatePeriod"
	if err := period.Validate(op); err != nil {
		return nil, err
	}

	totals, err := l.store.AttendanceTotals(ctx, projectID, period)
	if err != nil {
		return nil, l.fail(op, "project", int64(projectID), err)
	}
	rows := make([]PeriodRow, len(totals))
	for i, t := range totals {
		rows[i] = PeriodRow{
			Employee:   t.Employee,
			Halves:     t.Halves,
			DaysWorked: DaysWorked(t.Halves),
		}
	}
	return rows, nil
}

// DaysWorked converts a count of half shifts to days.
func DaysWorked(halves int64) decimal.Decimal {
	return HalfDay.Mul(decimal.NewFromInt(halves))
}

// =============================================================================
// HELPERS
// =============================================================================

func (l *Ledger) employee(ctx context.Context, op string, id generic.EmployeeID) (*generic.Employee, error) {
	emp, err := l.store.GetEmployee(ctx, id)
	if err != nil {
		return nil, l.fail(op, "employee", int64(id), err)
	}
	if emp == nil {
		return nil, &generic.NotFoundError{Op: op, Entity: "employee", ID: int64(id)}
	}
	return emp, nil
}

// validateSheet rejects a sheet that names the same employee twice.
func validateSheet(op string, sheet []generic.AttendanceRecord) error {
	seen := make(map[generic.EmployeeID]struct{}, len(sheet))
	for _, rec := range sheet {
		if _, dup := seen[rec.EmployeeID]; dup {
			return &generic.ValidationError{Op: op, Field: "employee_id", Value: rec.EmployeeID, Reason: "appears twice in the day sheet"}
		}
		seen[rec.EmployeeID] = struct{}{}
	}
	return nil
}

func (l *Ledger) fail(op, entity string, id int64, err error) error {
	err = generic.Wrap(op, entity, id, err)
	if err != nil && !generic.IsClientError(err) && !generic.IsNotFound(err) {
		config.LogError(l.logger, "attendance", op, entity, id, err)
	}
	return err
}
