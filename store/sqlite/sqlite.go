/*
Package sqlite provides a SQLite-backed implementation of the Persistence
Gateway (generic.TxStore).

PURPOSE:
  Implements every row operation the ledgers need using SQLite through
  sqlx. Two drivers are supported: mattn/go-sqlite3 ("sqlite3", cgo, the
  default) and modernc.org/sqlite ("sqlite", pure Go).

KEY TABLES:
  projects:               Construction sites (top-level owner)
  employees:              Workers, with mutable active flag
  employee_status_events: Append-only active/inactive audit trail
  stock_items:            Items with incrementally maintained balance + version
  stock_movements:        Movement history (entry/exit/internal_use/adjustment)
  attendance:             Half-shift flags, UNIQUE(employee_id, day)
  financial_entries:      Income/expense rows (balance recomputed on read)
  diary_entries:          Daily log, UNIQUE(project_id, day)
  epi_entries:            Protective equipment issuance

ATOMICITY:
  WithTx opens one SQL transaction; the Store handed to fn runs every
  statement on it. Returning an error from fn rolls everything back, so a
  balance update can never persist without its movement row.

CONCURRENCY:
  The pool is capped (one connection by default, required for ":memory:").
  WithTx holds the store mutex, making in-process transactional writers
  strictly sequential. Single-statement reads wait for the connection, so
  they never observe a half-applied transaction.

VALUE ENCODING:
  Dates:    TEXT "YYYY-MM-DD" (generic.Date implements Scanner/Valuer)
  Decimals: TEXT canonical decimal (decimal.Decimal implements Scanner/Valuer)
  Booleans: INTEGER 0/1

USAGE:
  store, err := sqlite.New("./data/site.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := stock.NewLedger(store, locker, logger)

SEE ALSO:
  - generic/store.go: Interface definitions
  - schema.go: DDL and migrations
*/
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/site-ledger/generic"
	_ "modernc.org/sqlite"
)

const (
	DriverMattn   = "sqlite3"
	DriverModernc = "sqlite"
)

// Config selects the driver and connection settings.
type Config struct {
	Path         string
	Driver       string
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns the settings used by New.
func DefaultConfig(path string) Config {
	return Config{
		Path:         path,
		Driver:       DriverMattn,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 1,
	}
}

// Store implements generic.TxStore using SQLite.
type Store struct {
	queries
	db *sqlx.DB
	mu sync.Mutex
}

var _ generic.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return NewWithConfig(DefaultConfig(dbPath))
}

// NewWithConfig opens the database described by cfg and migrates it.
func NewWithConfig(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path required")
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverMattn
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 1
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if !isMemory(cfg.Path) {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	store := &Store{db: db, queries: queries{q: db}}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

func buildDSN(cfg Config) (string, error) {
	busy := int(cfg.BusyTimeout / time.Millisecond)
	switch cfg.Driver {
	case DriverMattn:
		return fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d", cfg.Path, busy), nil
	case DriverModernc:
		return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", cfg.Path, busy), nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", cfg.Driver)
	}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for maintenance tools and tests.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(txStore{queries{q: sqlTx}}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore runs every gateway call on one open transaction.
type txStore struct {
	queries
}

// queries implements generic.Store on anything sqlx can execute against.
type queries struct {
	q sqlx.ExtContext
}

// Helper functions

func insertID(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func affected(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (bool, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
