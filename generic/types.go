/*
Package generic provides the core types shared by every site ledger.

PURPOSE:
  This package contains the entity shapes, identifiers, error taxonomy and
  persistence interfaces used by the stock, attendance, finance, payroll,
  staff and dashboard packages. It has no knowledge of SQL or HTTP.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: type-safe int64 ids per entity (ProjectID, ItemID, ...)
  - Entities: Project, Employee, StockItem, StockMovement, AttendanceRecord,
    FinancialEntry, DiaryEntry, EPIEntry, StatusEvent
  - Movement kinds and their sign (the stock balance invariant)

DESIGN PRINCIPLES:
  1. Precision: quantities and money use decimal.Decimal, never float64
  2. Type Safety: distinct id types prevent passing an item id as an employee id
  3. Tree ownership: Project owns everything; no entity has two owners

SEE ALSO:
  - time.go: Date (day granularity) and Period
  - errors.go: ValidationError, NotFoundError, PersistenceError
  - store.go: Persistence Gateway interfaces
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProjectID int64
type EmployeeID int64
type ItemID int64
type MovementID int64
type EntryID int64
type StatusEventID int64
type EPIID int64

// =============================================================================
// PROJECT - top-level owner (a construction site)
// =============================================================================

type Project struct {
	ID        ProjectID
	Name      string
	Address   string
	StartDate Date
}

// =============================================================================
// EMPLOYEE
// =============================================================================

type Employee struct {
	ID            EmployeeID
	ProjectID     ProjectID
	Name          string
	Role          string
	AdmissionDate Date
	Phone         string
	DocID         string
	DocID2        string
	BankName      string
	BankBranch    string
	BankAccount   string
	DailyRate     decimal.Decimal
	Active        bool
}

// StatusEvent is one row of the employee active/inactive audit trail.
// Append-only; the employee's Active flag must equal the NewStatus of the
// most recent event.
type StatusEvent struct {
	ID         StatusEventID
	EmployeeID EmployeeID
	Date       Date
	NewStatus  bool
	Reason     string
}

// =============================================================================
// STOCK
// =============================================================================

type StockItem struct {
	ID             ItemID
	ProjectID      ProjectID
	Name           string
	Category       string
	Unit           string
	Balance        decimal.Decimal
	AlertThreshold decimal.Decimal
	AlertEnabled   bool

	// Version is bumped on every balance write (optimistic concurrency).
	Version int64
}

// IsLow reports whether the item should raise a low-stock alert.
func (i StockItem) IsLow() bool {
	return i.AlertEnabled && i.Balance.LessThan(i.AlertThreshold)
}

type MovementKind string

const (
	MovementEntry         MovementKind = "entry"
	MovementExit          MovementKind = "exit"
	MovementInternalUse   MovementKind = "internal_use"
	MovementAdjustmentIn  MovementKind = "adjustment_in"  // stock-take correction upwards
	MovementAdjustmentOut MovementKind = "adjustment_out" // stock-take correction downwards
)

// Valid reports whether k is a known movement kind.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementEntry, MovementExit, MovementInternalUse, MovementAdjustmentIn, MovementAdjustmentOut:
		return true
	}
	return false
}

// IsAdjustment reports whether k is only produced by balance corrections.
func (k MovementKind) IsAdjustment() bool {
	return k == MovementAdjustmentIn || k == MovementAdjustmentOut
}

// Sign returns +1 for kinds that add stock and -1 for kinds that remove it.
func (k MovementKind) Sign() int64 {
	if k == MovementEntry || k == MovementAdjustmentIn {
		return 1
	}
	return -1
}

// StockMovement is a single entry/exit/internal-use transaction.
// Quantity is always positive; the sign comes from Kind.
type StockMovement struct {
	ID          MovementID
	ItemID      ItemID
	Date        Date
	Kind        MovementKind
	Quantity    decimal.Decimal
	Origin      string
	Destination string
	Invoice     string
}

// Delta returns the signed effect of the movement on its item balance.
func (m StockMovement) Delta() decimal.Decimal {
	if m.Kind.Sign() > 0 {
		return m.Quantity
	}
	return m.Quantity.Neg()
}

// MovementRow is a movement joined with its item, as listed to callers.
type MovementRow struct {
	StockMovement
	ItemName string
	Category string
	Unit     string
}

// MovementFilter narrows ListMovements. Empty strings mean "no filter".
type MovementFilter struct {
	ProjectID ProjectID
	Item      string       // substring of item name
	Party     string       // substring of origin OR destination
	Kind      MovementKind // exact
	Category  string       // exact
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// Shifts holds the two half-day flags of one attendance record.
type Shifts struct {
	Morning   bool
	Afternoon bool
}

// Present reports whether at least one half was worked.
func (s Shifts) Present() bool { return s.Morning || s.Afternoon }

// Halves returns how many half-days the record counts for (0, 1 or 2).
func (s Shifts) Halves() int64 {
	var n int64
	if s.Morning {
		n++
	}
	if s.Afternoon {
		n++
	}
	return n
}

// AttendanceRecord is unique per (EmployeeID, Date).
type AttendanceRecord struct {
	EmployeeID EmployeeID
	Date       Date
	Shifts
}

// AttendanceTotal is the per-employee aggregate over a period.
// Employees without records in the period appear with Halves == 0.
type AttendanceTotal struct {
	Employee Employee
	Halves   int64
}

// =============================================================================
// FINANCE
// =============================================================================

type EntryKind string

const (
	EntryIncome  EntryKind = "income"
	EntryExpense EntryKind = "expense"
)

func (k EntryKind) Valid() bool { return k == EntryIncome || k == EntryExpense }

type FinancialEntry struct {
	ID          EntryID
	ProjectID   ProjectID
	Date        Date
	Kind        EntryKind
	Amount      decimal.Decimal
	Description string
	Invoice     string
}

// Signed returns +Amount for income and -Amount for expense.
func (e FinancialEntry) Signed() decimal.Decimal {
	if e.Kind == EntryExpense {
		return e.Amount.Neg()
	}
	return e.Amount
}

// =============================================================================
// PERIPHERAL RECORDS (dashboard inputs)
// =============================================================================

// DiaryEntry is unique per (ProjectID, Date).
type DiaryEntry struct {
	ProjectID  ProjectID
	Date       Date
	Weather    string
	Activities string
	Incidents  string
}

// EPIEntry records a personal protective equipment issuance.
type EPIEntry struct {
	ID           EPIID
	ProjectID    ProjectID
	EmployeeID   EmployeeID
	EmployeeName string // filled on reads
	Date         Date
	Item         string
}
