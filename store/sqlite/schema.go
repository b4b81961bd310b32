package sqlite

import (
	"context"
	"fmt"
)

const currentVersion = 1

// migrate creates the database schema. Versioned through PRAGMA user_version.
func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version >= currentVersion {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range schemaV1 {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement %d: %w", i+1, err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentVersion)); err != nil {
		return fmt.Errorf("write user_version: %w", err)
	}
	return tx.Commit()
}

var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL,
		address    TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS employees (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id     INTEGER NOT NULL REFERENCES projects(id),
		name           TEXT NOT NULL,
		role           TEXT NOT NULL DEFAULT '',
		admission_date TEXT NOT NULL DEFAULT '',
		phone          TEXT NOT NULL DEFAULT '',
		doc_id         TEXT NOT NULL DEFAULT '',
		doc_id2        TEXT NOT NULL DEFAULT '',
		bank_name      TEXT NOT NULL DEFAULT '',
		bank_branch    TEXT NOT NULL DEFAULT '',
		bank_account   TEXT NOT NULL DEFAULT '',
		daily_rate     TEXT,
		active         INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_employees_project_name ON employees(project_id, name)`,

	// Append-only. The employee's active flag equals new_status of the latest row.
	`CREATE TABLE IF NOT EXISTS employee_status_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id INTEGER NOT NULL REFERENCES employees(id),
		day         TEXT NOT NULL,
		new_status  INTEGER NOT NULL,
		reason      TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_status_events_employee ON employee_status_events(employee_id, day DESC, id DESC)`,

	`CREATE TABLE IF NOT EXISTS stock_items (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id      INTEGER NOT NULL REFERENCES projects(id),
		name            TEXT NOT NULL,
		category        TEXT NOT NULL DEFAULT 'Geral',
		unit            TEXT NOT NULL DEFAULT '',
		balance         TEXT NOT NULL DEFAULT '0',
		alert_threshold TEXT NOT NULL DEFAULT '5',
		alert_enabled   INTEGER NOT NULL DEFAULT 1,
		version         INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_items_project ON stock_items(project_id, name)`,

	`CREATE TABLE IF NOT EXISTS stock_movements (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id     INTEGER NOT NULL REFERENCES stock_items(id),
		day         TEXT NOT NULL,
		kind        TEXT NOT NULL CHECK (kind IN ('entry','exit','internal_use','adjustment_in','adjustment_out')),
		quantity    TEXT NOT NULL,
		origin      TEXT NOT NULL DEFAULT '',
		destination TEXT NOT NULL DEFAULT '',
		invoice     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_item_day ON stock_movements(item_id, day, id)`,

	// Upsert target: one row per employee per day, never duplicated.
	`CREATE TABLE IF NOT EXISTS attendance (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id INTEGER NOT NULL REFERENCES employees(id),
		day         TEXT NOT NULL,
		morning     INTEGER NOT NULL DEFAULT 0,
		afternoon   INTEGER NOT NULL DEFAULT 0,
		UNIQUE(employee_id, day)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_day ON attendance(day)`,

	`CREATE TABLE IF NOT EXISTS financial_entries (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id  INTEGER NOT NULL REFERENCES projects(id),
		day         TEXT NOT NULL,
		kind        TEXT NOT NULL CHECK (kind IN ('income','expense')),
		amount      TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		invoice     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_financial_entries_project ON financial_entries(project_id, day DESC, id DESC)`,

	`CREATE TABLE IF NOT EXISTS diary_entries (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id),
		day        TEXT NOT NULL,
		weather    TEXT NOT NULL DEFAULT '',
		activities TEXT NOT NULL DEFAULT '',
		incidents  TEXT NOT NULL DEFAULT '',
		UNIQUE(project_id, day)
	)`,

	`CREATE TABLE IF NOT EXISTS epi_entries (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id  INTEGER NOT NULL REFERENCES projects(id),
		employee_id INTEGER NOT NULL REFERENCES employees(id),
		day         TEXT NOT NULL,
		item        TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_epi_entries_project ON epi_entries(project_id, day DESC)`,
}
