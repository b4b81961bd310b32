/*
Package export turns ledger listings into flat tables and writes them as
CSV or XLSX.

TABLE CONTRACT:
  Every listing becomes an ordered sequence of rows under a fixed header
  that mirrors the listing's fields. Internal ids stay in the table; hiding
  them is left to whoever presents it.

CELL VALUES:
  string, int64, bool, decimal.Decimal and generic.Date. CSV renders all of
  them as text (booleans as 1/0, as stored). XLSX keeps numbers numeric.

SEE ALSO:
  - csv.go, xlsx.go: writers
  - api/handlers.go: ?format=csv|xlsx
*/
package export

import (
	"github.com/warp/site-ledger/attendance"
	"github.com/warp/site-ledger/generic"
	"github.com/warp/site-ledger/payroll"
)

// Table is a header plus rows of cells in header order.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

func (t *Table) add(cells ...any) { t.Rows = append(t.Rows, cells) }

// =============================================================================
// BUILDERS
// =============================================================================

func Movements(rows []generic.MovementRow) Table {
	t := Table{
		Name:    "movements",
		Columns: []string{"id", "date", "item_id", "item", "category", "unit", "kind", "quantity", "origin", "destination", "invoice"},
	}
	for _, r := range rows {
		t.add(int64(r.ID), r.Date, int64(r.ItemID), r.ItemName, r.Category, r.Unit,
			string(r.Kind), r.Quantity, r.Origin, r.Destination, r.Invoice)
	}
	return t
}

func StockBalances(items []generic.StockItem) Table {
	t := Table{
		Name:    "stock",
		Columns: []string{"id", "name", "category", "unit", "balance", "alert_threshold", "alert_enabled"},
	}
	for _, i := range items {
		t.add(int64(i.ID), i.Name, i.Category, i.Unit, i.Balance, i.AlertThreshold, i.AlertEnabled)
	}
	return t
}

func AttendancePeriod(rows []attendance.PeriodRow) Table {
	t := Table{
		Name:    "attendance",
		Columns: []string{"employee_id", "name", "role", "halves", "days_worked"},
	}
	for _, r := range rows {
		t.add(int64(r.Employee.ID), r.Employee.Name, r.Employee.Role, r.Halves, r.DaysWorked)
	}
	return t
}

// Payroll ends with a total row whose id cell is empty.
func Payroll(p payroll.Payroll) Table {
	t := Table{
		Name:    "payroll",
		Columns: []string{"employee_id", "name", "role", "days_worked", "daily_rate", "amount_due"},
	}
	for _, r := range p.Rows {
		t.add(int64(r.Employee.ID), r.Employee.Name, r.Employee.Role, r.DaysWorked, r.DailyRate, r.AmountDue)
	}
	t.add("", "TOTAL", "", p.DaysTotal, "", p.Total)
	return t
}

func FinanceEntries(entries []generic.FinancialEntry) Table {
	t := Table{
		Name:    "finance",
		Columns: []string{"id", "date", "kind", "amount", "description", "invoice"},
	}
	for _, e := range entries {
		t.add(int64(e.ID), e.Date, string(e.Kind), e.Amount, e.Description, e.Invoice)
	}
	return t
}

func StatusHistory(events []generic.StatusEvent) Table {
	t := Table{
		Name:    "status_history",
		Columns: []string{"id", "employee_id", "date", "active", "reason"},
	}
	for _, e := range events {
		t.add(int64(e.ID), int64(e.EmployeeID), e.Date, e.NewStatus, e.Reason)
	}
	return t
}

func EPIHistory(entries []generic.EPIEntry) Table {
	t := Table{
		Name:    "epi",
		Columns: []string{"id", "date", "employee_id", "employee", "item"},
	}
	for _, e := range entries {
		t.add(int64(e.ID), e.Date, int64(e.EmployeeID), e.EmployeeName, e.Item)
	}
	return t
}

func Employees(list []generic.Employee) Table {
	t := Table{
		Name: "employees",
		Columns: []string{"id", "name", "role", "admission_date", "phone", "doc_id", "doc_id2",
			"bank_name", "bank_branch", "bank_account", "daily_rate", "active"},
	}
	for _, e := range list {
		t.add(int64(e.ID), e.Name, e.Role, e.AdmissionDate, e.Phone, e.DocID, e.DocID2,
			e.BankName, e.BankBranch, e.BankAccount, e.DailyRate, e.Active)
	}
	return t
}
