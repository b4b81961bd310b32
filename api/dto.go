/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry `validate` tags checked by go-playground/validator
  before a handler calls any ledger. The ledgers validate again; the tags
  only catch malformed payloads early with field-level messages.

DATES AND NUMBERS:
  Dates travel as "YYYY-MM-DD" strings. Quantities and money are
  decimal.Decimal, which marshals as a JSON string ("12.5") and unmarshals
  from either a string or a number.

SEE ALSO:
  - handlers.go: decode/validate helpers
*/
package api

import (
	"github.com/shopspring/decimal"
	"github.com/warp/site-ledger/generic"
	"github.com/warp/site-ledger/payroll"
	"github.com/warp/site-ledger/stock"
)

// =============================================================================
// PROJECTS
// =============================================================================

type ProjectDTO struct {
	ID        generic.ProjectID `json:"id"`
	Name      string            `json:"name"`
	Address   string            `json:"address"`
	StartDate string            `json:"start_date"`
}

type CreateProjectRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Address string `json:"address" validate:"max=500"`
}

func toProjectDTO(p generic.Project) ProjectDTO {
	return ProjectDTO{ID: p.ID, Name: p.Name, Address: p.Address, StartDate: dateString(p.StartDate)}
}

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeDTO struct {
	ID            generic.EmployeeID `json:"id"`
	ProjectID     generic.ProjectID  `json:"project_id"`
	Name          string             `json:"name"`
	Role          string             `json:"role"`
	AdmissionDate string             `json:"admission_date,omitempty"`
	Phone         string             `json:"phone,omitempty"`
	DocID         string             `json:"doc_id,omitempty"`
	DocID2        string             `json:"doc_id2,omitempty"`
	BankName      string             `json:"bank_name,omitempty"`
	BankBranch    string             `json:"bank_branch,omitempty"`
	BankAccount   string             `json:"bank_account,omitempty"`
	DailyRate     decimal.Decimal    `json:"daily_rate"`
	Active        bool               `json:"active"`
}

// EmployeeRequest is the body of both create and update. Active is not
// writable here; use the status endpoint.
type EmployeeRequest struct {
	Name          string          `json:"name" validate:"required,max=200"`
	Role          string          `json:"role" validate:"max=100"`
	AdmissionDate string          `json:"admission_date" validate:"omitempty,datetime=2006-01-02"`
	Phone         string          `json:"phone" validate:"max=50"`
	DocID         string          `json:"doc_id" validate:"max=50"`
	DocID2        string          `json:"doc_id2" validate:"max=50"`
	BankName      string          `json:"bank_name" validate:"max=100"`
	BankBranch    string          `json:"bank_branch" validate:"max=50"`
	BankAccount   string          `json:"bank_account" validate:"max=50"`
	DailyRate     decimal.Decimal `json:"daily_rate"`
}

func (r EmployeeRequest) toEmployee() generic.Employee {
	return generic.Employee{
		Name:          r.Name,
		Role:          r.Role,
		AdmissionDate: mustDate(r.AdmissionDate),
		Phone:         r.Phone,
		DocID:         r.DocID,
		DocID2:        r.DocID2,
		BankName:      r.BankName,
		BankBranch:    r.BankBranch,
		BankAccount:   r.BankAccount,
		DailyRate:     r.DailyRate,
	}
}

func toEmployeeDTO(e generic.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:            e.ID,
		ProjectID:     e.ProjectID,
		Name:          e.Name,
		Role:          e.Role,
		AdmissionDate: dateString(e.AdmissionDate),
		Phone:         e.Phone,
		DocID:         e.DocID,
		DocID2:        e.DocID2,
		BankName:      e.BankName,
		BankBranch:    e.BankBranch,
		BankAccount:   e.BankAccount,
		DailyRate:     e.DailyRate,
		Active:        e.Active,
	}
}

type SetStatusRequest struct {
	Active *bool  `json:"active" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

type StatusEventDTO struct {
	ID         generic.StatusEventID `json:"id"`
	EmployeeID generic.EmployeeID    `json:"employee_id"`
	Date       string                `json:"date"`
	Active     bool                  `json:"active"`
	Reason     string                `json:"reason,omitempty"`
}

func toStatusEventDTO(ev generic.StatusEvent) StatusEventDTO {
	return StatusEventDTO{
		ID:         ev.ID,
		EmployeeID: ev.EmployeeID,
		Date:       dateString(ev.Date),
		Active:     ev.NewStatus,
		Reason:     ev.Reason,
	}
}

// =============================================================================
// STOCK
// =============================================================================

type StockItemDTO struct {
	ID             generic.ItemID    `json:"id"`
	ProjectID      generic.ProjectID `json:"project_id"`
	Name           string            `json:"name"`
	Category       string            `json:"category"`
	Unit           string            `json:"unit"`
	Balance        decimal.Decimal   `json:"balance"`
	AlertThreshold decimal.Decimal   `json:"alert_threshold"`
	AlertEnabled   bool              `json:"alert_enabled"`
	Low            bool              `json:"low"`
}

func toStockItemDTO(i generic.StockItem) StockItemDTO {
	return StockItemDTO{
		ID:             i.ID,
		ProjectID:      i.ProjectID,
		Name:           i.Name,
		Category:       i.Category,
		Unit:           i.Unit,
		Balance:        i.Balance,
		AlertThreshold: i.AlertThreshold,
		AlertEnabled:   i.AlertEnabled,
		Low:            i.IsLow(),
	}
}

func toStockItemDTOs(items []generic.StockItem) []StockItemDTO {
	out := make([]StockItemDTO, len(items))
	for i, item := range items {
		out[i] = toStockItemDTO(item)
	}
	return out
}

// StockItemRequest creates or edits an item. A missing alert_threshold uses
// the default on create.
type StockItemRequest struct {
	Name           string              `json:"name" validate:"required,max=200"`
	Category       string              `json:"category" validate:"max=100"`
	Unit           string              `json:"unit" validate:"max=30"`
	AlertThreshold decimal.NullDecimal `json:"alert_threshold"`
	AlertEnabled   bool                `json:"alert_enabled"`
}

type MovementRequest struct {
	ItemID      generic.ItemID  `json:"item_id" validate:"required,gt=0"`
	Kind        string          `json:"kind" validate:"required,oneof=entry exit internal_use"`
	Quantity    decimal.Decimal `json:"quantity"`
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	Origin      string          `json:"origin" validate:"max=200"`
	Destination string          `json:"destination" validate:"max=200"`
	Invoice     string          `json:"invoice" validate:"max=100"`
}

type MovementDTO struct {
	ID          generic.MovementID `json:"id"`
	ItemID      generic.ItemID     `json:"item_id"`
	Item        string             `json:"item,omitempty"`
	Category    string             `json:"category,omitempty"`
	Unit        string             `json:"unit,omitempty"`
	Date        string             `json:"date"`
	Kind        string             `json:"kind"`
	Quantity    decimal.Decimal    `json:"quantity"`
	Origin      string             `json:"origin,omitempty"`
	Destination string             `json:"destination,omitempty"`
	Invoice     string             `json:"invoice,omitempty"`
}

func toMovementDTO(m generic.StockMovement) MovementDTO {
	return MovementDTO{
		ID:          m.ID,
		ItemID:      m.ItemID,
		Date:        dateString(m.Date),
		Kind:        string(m.Kind),
		Quantity:    m.Quantity,
		Origin:      m.Origin,
		Destination: m.Destination,
		Invoice:     m.Invoice,
	}
}

func toMovementRowDTO(r generic.MovementRow) MovementDTO {
	dto := toMovementDTO(r.StockMovement)
	dto.Item = r.ItemName
	dto.Category = r.Category
	dto.Unit = r.Unit
	return dto
}

type ReversalDTO struct {
	Movement    MovementDTO     `json:"movement"`
	Balance     decimal.Decimal `json:"balance"`
	NonTerminal bool            `json:"non_terminal"`
}

func toReversalDTO(r stock.Reversal) ReversalDTO {
	return ReversalDTO{Movement: toMovementDTO(r.Movement), Balance: r.Balance, NonTerminal: r.NonTerminal}
}

type CorrectionRequest struct {
	Balance decimal.Decimal `json:"balance"`
	Date    string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Reason  string          `json:"reason" validate:"max=500"`
}

type CorrectionDTO struct {
	Movement *MovementDTO    `json:"movement,omitempty"`
	Previous decimal.Decimal `json:"previous"`
	Balance  decimal.Decimal `json:"balance"`
}

func toCorrectionDTO(c stock.Correction) CorrectionDTO {
	dto := CorrectionDTO{Previous: c.Previous, Balance: c.Balance}
	if c.Movement != nil {
		m := toMovementDTO(*c.Movement)
		dto.Movement = &m
	}
	return dto
}

type AuditDTO struct {
	ItemID     generic.ItemID  `json:"item_id"`
	Item       string          `json:"item"`
	Stored     decimal.Decimal `json:"stored"`
	Derived    decimal.Decimal `json:"derived"`
	Drift      decimal.Decimal `json:"drift"`
	Movements  int             `json:"movements"`
	Consistent bool            `json:"consistent"`
}

func toAuditDTO(r stock.AuditReport) AuditDTO {
	return AuditDTO{
		ItemID:     r.Item.ID,
		Item:       r.Item.Name,
		Stored:     r.Stored,
		Derived:    r.Derived,
		Drift:      r.Drift(),
		Movements:  r.Movements,
		Consistent: r.Consistent(),
	}
}

// =============================================================================
// ATTENDANCE AND PAYROLL
// =============================================================================

type ShiftsRequest struct {
	Morning   bool `json:"morning"`
	Afternoon bool `json:"afternoon"`
}

type DaySheetLine struct {
	EmployeeID generic.EmployeeID `json:"employee_id" validate:"required,gt=0"`
	Morning    bool               `json:"morning"`
	Afternoon  bool               `json:"afternoon"`
}

type DaySheetRequest struct {
	Records []DaySheetLine `json:"records" validate:"dive"`
}

type AttendanceDTO struct {
	EmployeeID generic.EmployeeID `json:"employee_id"`
	Morning    bool               `json:"morning"`
	Afternoon  bool               `json:"afternoon"`
}

type PeriodRowDTO struct {
	EmployeeID generic.EmployeeID `json:"employee_id"`
	Name       string             `json:"name"`
	Role       string             `json:"role"`
	Halves     int64              `json:"halves"`
	DaysWorked decimal.Decimal    `json:"days_worked"`
}

type PayrollRowDTO struct {
	EmployeeID generic.EmployeeID `json:"employee_id"`
	Name       string             `json:"name"`
	Role       string             `json:"role"`
	DaysWorked decimal.Decimal    `json:"days_worked"`
	DailyRate  decimal.Decimal    `json:"daily_rate"`
	AmountDue  decimal.Decimal    `json:"amount_due"`
}

type PayrollDTO struct {
	ProjectID generic.ProjectID `json:"project_id"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Rows      []PayrollRowDTO   `json:"rows"`
	DaysTotal decimal.Decimal   `json:"days_total"`
	Total     decimal.Decimal   `json:"total"`
}

func toPayrollDTO(p payroll.Payroll) PayrollDTO {
	dto := PayrollDTO{
		ProjectID: p.ProjectID,
		From:      dateString(p.Period.From),
		To:        dateString(p.Period.To),
		Rows:      make([]PayrollRowDTO, len(p.Rows)),
		DaysTotal: p.DaysTotal,
		Total:     p.Total,
	}
	for i, r := range p.Rows {
		dto.Rows[i] = PayrollRowDTO{
			EmployeeID: r.Employee.ID,
			Name:       r.Employee.Name,
			Role:       r.Employee.Role,
			DaysWorked: r.DaysWorked,
			DailyRate:  r.DailyRate,
			AmountDue:  r.AmountDue,
		}
	}
	return dto
}

// =============================================================================
// FINANCE
// =============================================================================

type EntryRequest struct {
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	Kind        string          `json:"kind" validate:"required,oneof=income expense"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=500"`
	Invoice     string          `json:"invoice" validate:"max=100"`
}

type EntryDTO struct {
	ID          generic.EntryID `json:"id"`
	Date        string          `json:"date"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Invoice     string          `json:"invoice,omitempty"`
}

func toEntryDTO(e generic.FinancialEntry) EntryDTO {
	return EntryDTO{
		ID:          e.ID,
		Date:        dateString(e.Date),
		Kind:        string(e.Kind),
		Amount:      e.Amount,
		Description: e.Description,
		Invoice:     e.Invoice,
	}
}

type TotalsDTO struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Balance decimal.Decimal `json:"balance"`
}

// =============================================================================
// SITE RECORDS
// =============================================================================

type DiaryRequest struct {
	Weather    string `json:"weather" validate:"max=100"`
	Activities string `json:"activities" validate:"max=5000"`
	Incidents  string `json:"incidents" validate:"max=5000"`
}

type DiaryDTO struct {
	Date       string `json:"date"`
	Weather    string `json:"weather"`
	Activities string `json:"activities"`
	Incidents  string `json:"incidents"`
}

func toDiaryDTO(d *generic.DiaryEntry) *DiaryDTO {
	if d == nil {
		return nil
	}
	return &DiaryDTO{Date: dateString(d.Date), Weather: d.Weather, Activities: d.Activities, Incidents: d.Incidents}
}

type EPIRequest struct {
	EmployeeID generic.EmployeeID `json:"employee_id" validate:"required,gt=0"`
	Date       string             `json:"date" validate:"required,datetime=2006-01-02"`
	Item       string             `json:"item" validate:"required,max=200"`
}

type EPIDTO struct {
	ID         generic.EPIID      `json:"id"`
	EmployeeID generic.EmployeeID `json:"employee_id"`
	Employee   string             `json:"employee"`
	Date       string             `json:"date"`
	Item       string             `json:"item"`
}

// =============================================================================
// DASHBOARD AND ALERTS
// =============================================================================

type DashboardDTO struct {
	ProjectID    generic.ProjectID `json:"project_id"`
	Date         string            `json:"date"`
	CashBalance  decimal.Decimal   `json:"cash_balance"`
	Present      []string          `json:"present"`
	PresentCount int               `json:"present_count"`
	LowStock     []StockItemDTO    `json:"low_stock"`
	Diary        *DiaryDTO         `json:"diary"`
}

type AlertDTO struct {
	ProjectID generic.ProjectID `json:"project_id"`
	Project   string            `json:"project"`
	Items     []StockItemDTO    `json:"items"`
}

type AlertScanDTO struct {
	ScannedAt string     `json:"scanned_at,omitempty"`
	Alerts    []AlertDTO `json:"alerts"`
}

// =============================================================================
// HELPERS
// =============================================================================

func dateString(d generic.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

// mustDate parses a date that already passed the datetime validator.
// Empty input yields the zero Date.
func mustDate(s string) generic.Date {
	if s == "" {
		return generic.Date{}
	}
	d, err := generic.ParseDate(s)
	if err != nil {
		return generic.Date{}
	}
	return d
}
