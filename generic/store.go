/*
store.go - Persistence Gateway interfaces

PURPOSE:
  Defines the interface between the ledgers and the database. The ledgers
  never see SQL; store/sqlite implements everything below.

KEY INTERFACES:
  Store:   Row-level reads and writes, grouped per owner entity
  TxStore: Store plus WithTx for atomic multi-row operations
  Locker:  Single-writer-per-project serialization point

ATOMICITY:
  Every ledger mutation that touches more than one row runs inside WithTx.
  Recording a stock movement writes the item balance AND the movement row;
  either both commit or neither does. Same for reversals, balance
  corrections and employee status toggles.

MISSING ROWS:
  Get* methods return (nil, nil) when the row does not exist. The ledger
  that asked decides whether that is a NotFoundError.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite via sqlx (mattn or modernc driver)

SEE ALSO:
  - errors.go: how gateway failures are classified
  - lock/: Locker implementations
*/
package generic

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Row persistence, grouped by owner
// =============================================================================

type ProjectStore interface {
	InsertProject(ctx context.Context, p Project) (ProjectID, error)
	GetProject(ctx context.Context, id ProjectID) (*Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
}

type EmployeeStore interface {
	InsertEmployee(ctx context.Context, e Employee) (EmployeeID, error)
	// UpdateEmployee rewrites every field except Active. Returns false when
	// the employee does not exist.
	UpdateEmployee(ctx context.Context, e Employee) (bool, error)
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)
	// ListEmployees returns the project's employees ordered by name.
	// A nil active filter returns everyone.
	ListEmployees(ctx context.Context, projectID ProjectID, active *bool) ([]Employee, error)
	SetEmployeeActive(ctx context.Context, id EmployeeID, active bool) error
	InsertStatusEvent(ctx context.Context, ev StatusEvent) (StatusEventID, error)
	// ListStatusEvents returns events newest first (date desc, id desc).
	ListStatusEvents(ctx context.Context, id EmployeeID) ([]StatusEvent, error)
}

type StockStore interface {
	InsertItem(ctx context.Context, item StockItem) (ItemID, error)
	// UpdateItem rewrites descriptive fields; never the balance.
	UpdateItem(ctx context.Context, item StockItem) (bool, error)
	GetItem(ctx context.Context, id ItemID) (*StockItem, error)
	// ListItems returns the project's items ordered by name.
	ListItems(ctx context.Context, projectID ProjectID) ([]StockItem, error)
	// SetItemBalance writes balance if the stored version still equals
	// expectedVersion, bumping the version. Otherwise it returns
	// ErrConcurrentModification.
	SetItemBalance(ctx context.Context, id ItemID, balance decimal.Decimal, expectedVersion int64) error
	InsertMovement(ctx context.Context, m StockMovement) (MovementID, error)
	GetMovement(ctx context.Context, id MovementID) (*StockMovement, error)
	DeleteMovement(ctx context.Context, id MovementID) (bool, error)
	// ItemMovements returns every movement of the item, oldest first
	// (date asc, id asc).
	ItemMovements(ctx context.Context, id ItemID) ([]StockMovement, error)
	// ListMovements returns newest first (date desc, id desc).
	ListMovements(ctx context.Context, f MovementFilter) ([]MovementRow, error)
}

type AttendanceStore interface {
	// UpsertAttendance inserts or replaces the flags for (employee, date).
	UpsertAttendance(ctx context.Context, r AttendanceRecord) error
	GetAttendance(ctx context.Context, id EmployeeID, date Date) (*AttendanceRecord, error)
	// AttendanceForDay returns the project's records of that day.
	AttendanceForDay(ctx context.Context, projectID ProjectID, date Date) ([]AttendanceRecord, error)
	// AttendanceTotals outer-joins the project's employees with their records
	// in the period, ordered by employee name.
	AttendanceTotals(ctx context.Context, projectID ProjectID, period Period) ([]AttendanceTotal, error)
}

type FinanceStore interface {
	InsertEntry(ctx context.Context, e FinancialEntry) (EntryID, error)
	DeleteEntry(ctx context.Context, id EntryID) (bool, error)
	// ListEntries returns newest first (date desc, id desc).
	ListEntries(ctx context.Context, projectID ProjectID) ([]FinancialEntry, error)
}

type DiaryStore interface {
	UpsertDiary(ctx context.Context, d DiaryEntry) error
	GetDiary(ctx context.Context, projectID ProjectID, date Date) (*DiaryEntry, error)
	InsertEPI(ctx context.Context, e EPIEntry) (EPIID, error)
	// ListEPI returns newest first, with EmployeeName filled.
	ListEPI(ctx context.Context, projectID ProjectID) ([]EPIEntry, error)
	DeleteEPI(ctx context.Context, id EPIID) (bool, error)
}

// Store is the full Persistence Gateway.
type Store interface {
	ProjectStore
	EmployeeStore
	StockStore
	AttendanceStore
	FinanceStore
	DiaryStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// LOCKER - Single writer per project
// =============================================================================

// Locker serializes mutations per key. Balance maintenance is
// read-modify-write and needs one writer per project at a time.
type Locker interface {
	// Lock blocks until key is held or ctx/ttl expires, returning
	// ErrLockNotObtained on timeout. The returned func releases the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// ProjectLockKey is the lock key shared by every ledger of a project.
func ProjectLockKey(id ProjectID) string {
	return "site-ledger:project:" + strconv.FormatInt(int64(id), 10)
}
