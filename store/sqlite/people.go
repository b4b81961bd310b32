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
// PROJECT STORE
// =============================================================================

type projectRow struct {
	ID        int64        `db:"id"`
	Name      string       `db:"name"`
	Address   string       `db:"address"`
	StartDate generic.Date `db:"start_date"`
}

func (r projectRow) toProject() generic.Project {
	return generic.Project{
		ID:        generic.ProjectID(r.ID),
		Name:      r.Name,
		Address:   r.Address,
		StartDate: r.StartDate,
	}
}

// InsertProject creates a project and returns its id.
func (s queries) InsertProject(ctx context.Context, p generic.Project) (generic.ProjectID, error) {
	id, err := insertID(ctx, s.q,
		`INSERT INTO projects (name, address, start_date) VALUES (?, ?, ?)`,
		p.Name, p.Address, p.StartDate,
	)
	if err != nil {
		return 0, fmt.Errorf("insert project: %w", err)
	}
	return generic.ProjectID(id), nil
}

// GetProject retrieves a project by id. Returns nil when missing.
func (s queries) GetProject(ctx context.Context, id generic.ProjectID) (*generic.Project, error) {
	var row projectRow
	err := sqlx.GetContext(ctx, s.q, &row,
		`SELECT id, name, address, start_date FROM projects WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	p := row.toProject()
	return &p, nil
}

// ListProjects returns all projects, newest first.
func (s queries) ListProjects(ctx context.Context) ([]generic.Project, error) {
	var rows []projectRow
	if err := sqlx.SelectContext(ctx, s.q, &rows,
		`SELECT id, name, address, start_date FROM projects ORDER BY id DESC`); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	projects := make([]generic.Project, len(rows))
	for i, r := range rows {
		projects[i] = r.toProject()
	}
	return projects, nil
}

// =============================================================================
// EMPLOYEE STORE
// =============================================================================

const employeeColumns = `e.id, e.project_id, e.name, e.role, e.admission_date, e.phone,
	e.doc_id, e.doc_id2, e.bank_name, e.bank_branch, e.bank_account, e.daily_rate, e.active`

type employeeRow struct {
	ID            int64               `db:"id"`
	ProjectID     int64               `db:"project_id"`
	Name          string              `db:"name"`
	Role          string              `db:"role"`
	AdmissionDate generic.Date        `db:"admission_date"`
	Phone         string              `db:"phone"`
	DocID         string              `db:"doc_id"`
	DocID2        string              `db:"doc_id2"`
	BankName      string              `db:"bank_name"`
	BankBranch    string              `db:"bank_branch"`
	BankAccount   string              `db:"bank_account"`
	DailyRate     decimal.NullDecimal `db:"daily_rate"`
	Active        bool                `db:"active"`
}

func (r employeeRow) toEmployee() generic.Employee {
	rate := decimal.Zero
	if r.DailyRate.Valid {
		rate = r.DailyRate.Decimal
	}
	return generic.Employee{
		ID:            generic.EmployeeID(r.ID),
		ProjectID:     generic.ProjectID(r.ProjectID),
		Name:          r.Name,
		Role:          r.Role,
		AdmissionDate: r.AdmissionDate,
		Phone:         r.Phone,
		DocID:         r.DocID,
		DocID2:        r.DocID2,
		BankName:      r.BankName,
		BankBranch:    r.BankBranch,
		BankAccount:   r.BankAccount,
		DailyRate:     rate,
		Active:        r.Active,
	}
}

// InsertEmployee registers an employee and returns its id.
func (s queries) InsertEmployee(ctx context.Context, e generic.Employee) (generic.EmployeeID, error) {
	id, err := insertID(ctx, s.q, `
		INSERT INTO employees
		(project_id, name, role, admission_date, phone, doc_id, doc_id2,
		 bank_name, bank_branch, bank_account, daily_rate, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ProjectID, e.Name, e.Role, e.AdmissionDate, e.Phone, e.DocID, e.DocID2,
		e.BankName, e.BankBranch, e.BankAccount, e.DailyRate, boolInt(e.Active),
	)
	if err != nil {
		return 0, fmt.Errorf("insert employee: %w", err)
	}
	return generic.EmployeeID(id), nil
}

// UpdateEmployee edits registration data. The active flag is owned by the
// status history and is not touched here.
func (s queries) UpdateEmployee(ctx context.Context, e generic.Employee) (bool, error) {
	ok, err := affected(ctx, s.q, `
		UPDATE employees SET
			name = ?, role = ?, admission_date = ?, phone = ?, doc_id = ?, doc_id2 = ?,
			bank_name = ?, bank_branch = ?, bank_account = ?, daily_rate = ?
		WHERE id = ?`,
		e.Name, e.Role, e.AdmissionDate, e.Phone, e.DocID, e.DocID2,
		e.BankName, e.BankBranch, e.BankAccount, e.DailyRate, e.ID,
	)
	if err != nil {
		return false, fmt.Errorf("update employee %d: %w", e.ID, err)
	}
	return ok, nil
}

// GetEmployee retrieves an employee by id. Returns nil when missing.
func (s queries) GetEmployee(ctx context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	var row employeeRow
	err := sqlx.GetContext(ctx, s.q, &row,
		`SELECT `+employeeColumns+` FROM employees e WHERE e.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get employee %d: %w", id, err)
	}
	e := row.toEmployee()
	return &e, nil
}

// ListEmployees returns the project's employees ordered by name.
func (s queries) ListEmployees(ctx context.Context, projectID generic.ProjectID, active *bool) ([]generic.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees e WHERE e.project_id = ?`
	args := []any{projectID}
	if active != nil {
		query += ` AND e.active = ?`
		args = append(args, boolInt(*active))
	}
	query += ` ORDER BY e.name ASC, e.id ASC`

	var rows []employeeRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	employees := make([]generic.Employee, len(rows))
	for i, r := range rows {
		employees[i] = r.toEmployee()
	}
	return employees, nil
}

// SetEmployeeActive writes the mutable status flag.
func (s queries) SetEmployeeActive(ctx context.Context, id generic.EmployeeID, active bool) error {
	if _, err := s.q.ExecContext(ctx, `UPDATE employees SET active = ? WHERE id = ?`, boolInt(active), id); err != nil {
		return fmt.Errorf("set employee %d active: %w", id, err)
	}
	return nil
}

type statusEventRow struct {
	ID         int64        `db:"id"`
	EmployeeID int64        `db:"employee_id"`
	Day        generic.Date `db:"day"`
	NewStatus  bool         `db:"new_status"`
	Reason     string       `db:"reason"`
}

// InsertStatusEvent appends to the status audit trail.
func (s queries) InsertStatusEvent(ctx context.Context, ev generic.StatusEvent) (generic.StatusEventID, error) {
	id, err := insertID(ctx, s.q,
		`INSERT INTO employee_status_events (employee_id, day, new_status, reason) VALUES (?, ?, ?, ?)`,
		ev.EmployeeID, ev.Date, boolInt(ev.NewStatus), ev.Reason,
	)
	if err != nil {
		return 0, fmt.Errorf("insert status event: %w", err)
	}
	return generic.StatusEventID(id), nil
}

// ListStatusEvents returns the employee's status events, newest first.
func (s queries) ListStatusEvents(ctx context.Context, id generic.EmployeeID) ([]generic.StatusEvent, error) {
	var rows []statusEventRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT id, employee_id, day, new_status, reason
		FROM employee_status_events
		WHERE employee_id = ?
		ORDER BY day DESC, id DESC`, id); err != nil {
		return nil, fmt.Errorf("list status events: %w", err)
	}
	events := make([]generic.StatusEvent, len(rows))
	for i, r := range rows {
		events[i] = generic.StatusEvent{
			ID:         generic.StatusEventID(r.ID),
			EmployeeID: generic.EmployeeID(r.EmployeeID),
			Date:       r.Day,
			NewStatus:  r.NewStatus,
			Reason:     r.Reason,
		}
	}
	return events, nil
}
