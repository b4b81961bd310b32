package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/warp/site-ledger/generic"
)

// =============================================================================
// ATTENDANCE STORE
// =============================================================================

type attendanceRow struct {
	EmployeeID int64        `db:"employee_id"`
	Day        generic.Date `db:"day"`
	Morning    bool         `db:"morning"`
	Afternoon  bool         `db:"afternoon"`
}

func (r attendanceRow) toRecord() generic.AttendanceRecord {
	return generic.AttendanceRecord{
		EmployeeID: generic.EmployeeID(r.EmployeeID),
		Date:       r.Day,
		Shifts:     generic.Shifts{Morning: r.Morning, Afternoon: r.Afternoon},
	}
}

// UpsertAttendance writes both flags for (employee, day), replacing any
// previous value.
func (s queries) UpsertAttendance(ctx context.Context, r generic.AttendanceRecord) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO attendance (employee_id, day, morning, afternoon)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(employee_id, day) DO UPDATE SET
			morning = excluded.morning,
			afternoon = excluded.afternoon`,
		r.EmployeeID, r.Date, boolInt(r.Morning), boolInt(r.Afternoon),
	)
	if err != nil {
		return fmt.Errorf("upsert attendance %d/%s: %w", r.EmployeeID, r.Date, err)
	}
	return nil
}

// GetAttendance returns the record for (employee, day), or nil.
func (s queries) GetAttendance(ctx context.Context, id generic.EmployeeID, date generic.Date) (*generic.AttendanceRecord, error) {
	var row attendanceRow
	err := sqlx.GetContext(ctx, s.q, &row,
		`SELECT employee_id, day, morning, afternoon FROM attendance WHERE employee_id = ? AND day = ?`,
		id, date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance %d/%s: %w", id, date, err)
	}
	rec := row.toRecord()
	return &rec, nil
}

// AttendanceForDay returns the project's records of one day.
func (s queries) AttendanceForDay(ctx context.Context, projectID generic.ProjectID, date generic.Date) ([]generic.AttendanceRecord, error) {
	var rows []attendanceRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT a.employee_id, a.day, a.morning, a.afternoon
		FROM attendance a
		JOIN employees e ON e.id = a.employee_id
		WHERE e.project_id = ? AND a.day = ?
		ORDER BY e.name ASC, e.id ASC`, projectID, date); err != nil {
		return nil, fmt.Errorf("attendance for day %s: %w", date, err)
	}
	records := make([]generic.AttendanceRecord, len(rows))
	for i, r := range rows {
		records[i] = r.toRecord()
	}
	return records, nil
}

type attendanceTotalRow struct {
	employeeRow
	Halves int64 `db:"halves"`
}

// AttendanceTotals counts worked halves per employee over the period.
// Every employee of the project appears, including those with no records.
func (s queries) AttendanceTotals(ctx context.Context, projectID generic.ProjectID, period generic.Period) ([]generic.AttendanceTotal, error) {
	var rows []attendanceTotalRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT `+employeeColumns+`,
			COALESCE(SUM(a.morning + a.afternoon), 0) AS halves
		FROM employees e
		LEFT JOIN attendance a
			ON a.employee_id = e.id AND a.day BETWEEN ? AND ?
		WHERE e.project_id = ?
		GROUP BY e.id
		ORDER BY e.name ASC, e.id ASC`,
		period.From, period.To, projectID); err != nil {
		return nil, fmt.Errorf("attendance totals %s: %w", period, err)
	}
	totals := make([]generic.AttendanceTotal, len(rows))
	for i, r := range rows {
		totals[i] = generic.AttendanceTotal{Employee: r.toEmployee(), Halves: r.Halves}
	}
	return totals, nil
}

// =============================================================================
// FINANCE STORE
// =============================================================================

type entryRow struct {
	ID          int64           `db:"id"`
	ProjectID   int64           `db:"project_id"`
	Day         generic.Date    `db:"day"`
	Kind        string          `db:"kind"`
	Amount      decimal.Decimal `db:"amount"`
	Description string          `db:"description"`
	Invoice     string          `db:"invoice"`
}

// InsertEntry appends an income or expense row.
func (s queries) InsertEntry(ctx context.Context, e generic.FinancialEntry) (generic.EntryID, error) {
	id, err := insertID(ctx, s.q, `
		INSERT INTO financial_entries (project_id, day, kind, amount, description, invoice)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ProjectID, e.Date, string(e.Kind), e.Amount, e.Description, e.Invoice,
	)
	if err != nil {
		return 0, fmt.Errorf("insert financial entry: %w", err)
	}
	return generic.EntryID(id), nil
}

// DeleteEntry removes a financial entry.
func (s queries) DeleteEntry(ctx context.Context, id generic.EntryID) (bool, error) {
	ok, err := affected(ctx, s.q, `DELETE FROM financial_entries WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete financial entry %d: %w", id, err)
	}
	return ok, nil
}

// ListEntries returns the project's entries, newest first.
func (s queries) ListEntries(ctx context.Context, projectID generic.ProjectID) ([]generic.FinancialEntry, error) {
	var rows []entryRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT id, project_id, day, kind, amount, description, invoice
		FROM financial_entries
		WHERE project_id = ?
		ORDER BY day DESC, id DESC`, projectID); err != nil {
		return nil, fmt.Errorf("list financial entries: %w", err)
	}
	entries := make([]generic.FinancialEntry, len(rows))
	for i, r := range rows {
		entries[i] = generic.FinancialEntry{
			ID:          generic.EntryID(r.ID),
			ProjectID:   generic.ProjectID(r.ProjectID),
			Date:        r.Day,
			Kind:        generic.EntryKind(r.Kind),
			Amount:      r.Amount,
			Description: r.Description,
			Invoice:     r.Invoice,
		}
	}
	return entries, nil
}

// =============================================================================
// DIARY STORE - Daily log and EPI issuance
// =============================================================================

type diaryRow struct {
	ProjectID  int64        `db:"project_id"`
	Day        generic.Date `db:"day"`
	Weather    string       `db:"weather"`
	Activities string       `db:"activities"`
	Incidents  string       `db:"incidents"`
}

// UpsertDiary writes the project's log for a day, replacing any previous
// text.
func (s queries) UpsertDiary(ctx context.Context, d generic.DiaryEntry) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO diary_entries (project_id, day, weather, activities, incidents)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id, day) DO UPDATE SET
			weather = excluded.weather,
			activities = excluded.activities,
			incidents = excluded.incidents`,
		d.ProjectID, d.Date, d.Weather, d.Activities, d.Incidents,
	)
	if err != nil {
		return fmt.Errorf("upsert diary %d/%s: %w", d.ProjectID, d.Date, err)
	}
	return nil
}

// GetDiary returns the log for (project, day), or nil.
func (s queries) GetDiary(ctx context.Context, projectID generic.ProjectID, date generic.Date) (*generic.DiaryEntry, error) {
	var row diaryRow
	err := sqlx.GetContext(ctx, s.q, &row, `
		SELECT project_id, day, weather, activities, incidents
		FROM diary_entries WHERE project_id = ? AND day = ?`, projectID, date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get diary %d/%s: %w", projectID, date, err)
	}
	return &generic.DiaryEntry{
		ProjectID:  generic.ProjectID(row.ProjectID),
		Date:       row.Day,
		Weather:    row.Weather,
		Activities: row.Activities,
		Incidents:  row.Incidents,
	}, nil
}

type epiRow struct {
	ID           int64        `db:"id"`
	ProjectID    int64        `db:"project_id"`
	EmployeeID   int64        `db:"employee_id"`
	EmployeeName string       `db:"employee_name"`
	Day          generic.Date `db:"day"`
	Item         string       `db:"item"`
}

// InsertEPI records an equipment issuance.
func (s queries) InsertEPI(ctx context.Context, e generic.EPIEntry) (generic.EPIID, error) {
	id, err := insertID(ctx, s.q,
		`INSERT INTO epi_entries (project_id, employee_id, day, item) VALUES (?, ?, ?, ?)`,
		e.ProjectID, e.EmployeeID, e.Date, e.Item,
	)
	if err != nil {
		return 0, fmt.Errorf("insert epi entry: %w", err)
	}
	return generic.EPIID(id), nil
}

// ListEPI returns the project's issuances with employee names, newest first.
func (s queries) ListEPI(ctx context.Context, projectID generic.ProjectID) ([]generic.EPIEntry, error) {
	var rows []epiRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT x.id, x.project_id, x.employee_id, e.name AS employee_name, x.day, x.item
		FROM epi_entries x
		JOIN employees e ON e.id = x.employee_id
		WHERE x.project_id = ?
		ORDER BY x.day DESC, x.id DESC`, projectID); err != nil {
		return nil, fmt.Errorf("list epi entries: %w", err)
	}
	entries := make([]generic.EPIEntry, len(rows))
	for i, r := range rows {
		entries[i] = generic.EPIEntry{
			ID:           generic.EPIID(r.ID),
			ProjectID:    generic.ProjectID(r.ProjectID),
			EmployeeID:   generic.EmployeeID(r.EmployeeID),
			EmployeeName: r.EmployeeName,
			Date:         r.Day,
			Item:         r.Item,
		}
	}
	return entries, nil
}

// DeleteEPI removes an issuance record.
func (s queries) DeleteEPI(ctx context.Context, id generic.EPIID) (bool, error) {
	ok, err := affected(ctx, s.q, `DELETE FROM epi_entries WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete epi entry %d: %w", id, err)
	}
	return ok, nil
}
