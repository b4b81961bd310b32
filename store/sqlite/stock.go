package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/warp/site-ledger/generic"
)

// =============================================================================
// STOCK STORE - Items
// =============================================================================

const itemColumns = `id, project_id, name, category, unit, balance, alert_threshold, alert_enabled, version`

type itemRow struct {
	ID             int64           `db:"id"`
	ProjectID      int64           `db:"project_id"`
	Name           string          `db:"name"`
	Category       string          `db:"category"`
	Unit           string          `db:"unit"`
	Balance        decimal.Decimal `db:"balance"`
	AlertThreshold decimal.Decimal `db:"alert_threshold"`
	AlertEnabled   bool            `db:"alert_enabled"`
	Version        int64           `db:"version"`
}

func (r itemRow) toItem() generic.StockItem {
	return generic.StockItem{
		ID:             generic.ItemID(r.ID),
		ProjectID:      generic.ProjectID(r.ProjectID),
		Name:           r.Name,
		Category:       r.Category,
		Unit:           r.Unit,
		Balance:        r.Balance,
		AlertThreshold: r.AlertThreshold,
		AlertEnabled:   r.AlertEnabled,
		Version:        r.Version,
	}
}

// InsertItem creates an item with the given opening balance and version 0.
func (s queries) InsertItem(ctx context.Context, item generic.StockItem) (generic.ItemID, error) {
	id, err := insertID(ctx, s.q, `
		INSERT INTO stock_items
		(project_id, name, category, unit, balance, alert_threshold, alert_enabled, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		item.ProjectID, item.Name, item.Category, item.Unit,
		item.Balance, item.AlertThreshold, boolInt(item.AlertEnabled),
	)
	if err != nil {
		return 0, fmt.Errorf("insert stock item: %w", err)
	}
	return generic.ItemID(id), nil
}

// UpdateItem rewrites descriptive fields and alert settings.
func (s queries) UpdateItem(ctx context.Context, item generic.StockItem) (bool, error) {
	ok, err := affected(ctx, s.q, `
		UPDATE stock_items
		SET name = ?, category = ?, unit = ?, alert_threshold = ?, alert_enabled = ?
		WHERE id = ?`,
		item.Name, item.Category, item.Unit, item.AlertThreshold, boolInt(item.AlertEnabled), item.ID,
	)
	if err != nil {
		return false, fmt.Errorf("update stock item %d: %w", item.ID, err)
	}
	return ok, nil
}

// GetItem retrieves an item by id. Returns nil when missing.
func (s queries) GetItem(ctx context.Context, id generic.ItemID) (*generic.StockItem, error) {
	var row itemRow
	err := sqlx.GetContext(ctx, s.q, &row, `SELECT `+itemColumns+` FROM stock_items WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stock item %d: %w", id, err)
	}
	item := row.toItem()
	return &item, nil
}

// ListItems returns the project's items ordered by name.
func (s queries) ListItems(ctx context.Context, projectID generic.ProjectID) ([]generic.StockItem, error) {
	var rows []itemRow
	if err := sqlx.SelectContext(ctx, s.q, &rows,
		`SELECT `+itemColumns+` FROM stock_items WHERE project_id = ? ORDER BY name ASC, id ASC`,
		projectID); err != nil {
		return nil, fmt.Errorf("list stock items: %w", err)
	}
	items := make([]generic.StockItem, len(rows))
	for i, r := range rows {
		items[i] = r.toItem()
	}
	return items, nil
}

// SetItemBalance is a compare-and-swap on the version column.
func (s queries) SetItemBalance(ctx context.Context, id generic.ItemID, balance decimal.Decimal, expectedVersion int64) error {
	ok, err := affected(ctx, s.q,
		`UPDATE stock_items SET balance = ?, version = version + 1 WHERE id = ? AND version = ?`,
		balance, id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("set balance of stock item %d: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("stock item %d at version %d: %w", id, expectedVersion, generic.ErrConcurrentModification)
	}
	return nil
}

// =============================================================================
// STOCK STORE - Movements
// =============================================================================

const movementColumns = `m.id, m.item_id, m.day, m.kind, m.quantity, m.origin, m.destination, m.invoice`

type movementRow struct {
	ID          int64           `db:"id"`
	ItemID      int64           `db:"item_id"`
	Day         generic.Date    `db:"day"`
	Kind        string          `db:"kind"`
	Quantity    decimal.Decimal `db:"quantity"`
	Origin      string          `db:"origin"`
	Destination string          `db:"destination"`
	Invoice     string          `db:"invoice"`
}

func (r movementRow) toMovement() generic.StockMovement {
	return generic.StockMovement{
		ID:          generic.MovementID(r.ID),
		ItemID:      generic.ItemID(r.ItemID),
		Date:        r.Day,
		Kind:        generic.MovementKind(r.Kind),
		Quantity:    r.Quantity,
		Origin:      r.Origin,
		Destination: r.Destination,
		Invoice:     r.Invoice,
	}
}

type joinedMovementRow struct {
	movementRow
	ItemName string `db:"item_name"`
	Category string `db:"category"`
	Unit     string `db:"unit"`
}

// InsertMovement appends a movement row.
func (s queries) InsertMovement(ctx context.Context, m generic.StockMovement) (generic.MovementID, error) {
	id, err := insertID(ctx, s.q, `
		INSERT INTO stock_movements (item_id, day, kind, quantity, origin, destination, invoice)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ItemID, m.Date, string(m.Kind), m.Quantity, m.Origin, m.Destination, m.Invoice,
	)
	if err != nil {
		return 0, fmt.Errorf("insert movement: %w", err)
	}
	return generic.MovementID(id), nil
}

// GetMovement retrieves a movement by id. Returns nil when missing.
func (s queries) GetMovement(ctx context.Context, id generic.MovementID) (*generic.StockMovement, error) {
	var row movementRow
	err := sqlx.GetContext(ctx, s.q, &row, `SELECT `+movementColumns+` FROM stock_movements m WHERE m.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get movement %d: %w", id, err)
	}
	m := row.toMovement()
	return &m, nil
}

// DeleteMovement removes a movement row.
func (s queries) DeleteMovement(ctx context.Context, id generic.MovementID) (bool, error) {
	ok, err := affected(ctx, s.q, `DELETE FROM stock_movements WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete movement %d: %w", id, err)
	}
	return ok, nil
}

// ItemMovements returns the item's full history, oldest first.
func (s queries) ItemMovements(ctx context.Context, id generic.ItemID) ([]generic.StockMovement, error) {
	var rows []movementRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT `+movementColumns+`
		FROM stock_movements m
		WHERE m.item_id = ?
		ORDER BY m.day ASC, m.id ASC`, id); err != nil {
		return nil, fmt.Errorf("item movements %d: %w", id, err)
	}
	movements := make([]generic.StockMovement, len(rows))
	for i, r := range rows {
		movements[i] = r.toMovement()
	}
	return movements, nil
}

// ListMovements returns the project's movements joined with their item,
// newest first. Item and Party are literal substring matches (% and _ in
// the filter match themselves); Kind and Category are exact.
func (s queries) ListMovements(ctx context.Context, f generic.MovementFilter) ([]generic.MovementRow, error) {
	query := `
		SELECT ` + movementColumns + `, i.name AS item_name, i.category, i.unit
		FROM stock_movements m
		JOIN stock_items i ON i.id = m.item_id
		WHERE i.project_id = ?`
	args := []any{f.ProjectID}

	if f.Item != "" {
		query += ` AND i.name LIKE ? ESCAPE '\'`
		args = append(args, containsPattern(f.Item))
	}
	if f.Party != "" {
		query += ` AND (m.origin LIKE ? ESCAPE '\' OR m.destination LIKE ? ESCAPE '\')`
		pattern := containsPattern(f.Party)
		args = append(args, pattern, pattern)
	}
	if f.Kind != "" {
		query += ` AND m.kind = ?`
		args = append(args, string(f.Kind))
	}
	if f.Category != "" {
		query += ` AND i.category = ?`
		args = append(args, f.Category)
	}
	query += ` ORDER BY m.day DESC, m.id DESC`

	var rows []joinedMovementRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	out := make([]generic.MovementRow, len(rows))
	for i, r := range rows {
		out[i] = generic.MovementRow{
			StockMovement: r.toMovement(),
			ItemName:      r.ItemName,
			Category:      r.Category,
			Unit:          r.Unit,
		}
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns s into a LIKE pattern matching any value that
// contains s literally. Pair it with ESCAPE '\'.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
