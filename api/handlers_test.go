/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Project, employee, stock, attendance, payroll, finance and site routes
- Error status mapping (400 / 404)
- ?format=csv|xlsx listings
- Alert scan exposure
*/
package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/site-ledger/lock"
	"github.com/warp/site-ledger/store/sqlite"
	"github.com/xuri/excelize/v2"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testAPI struct {
	t      *testing.T
	router http.Handler
	alerts *AlertScheduler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := NewServices(store, lock.NewLocalLocker(), nil)
	alerts := NewAlertScheduler(svc.Site, svc.Stock, 0, nil)
	h := NewHandler(svc, alerts, nil)
	return &testAPI{t: t, router: NewRouter(h, nil), alerts: alerts}
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(a.t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// call performs the request, asserts the status and decodes the body into out.
func (a *testAPI) call(method, path string, body any, wantStatus int, out any) {
	a.t.Helper()
	rec := a.do(method, path, body)
	require.Equal(a.t, wantStatus, rec.Code, "body: %s", rec.Body.String())
	if out != nil {
		require.NoError(a.t, json.NewDecoder(rec.Body).Decode(out))
	}
}

func (a *testAPI) project(name string) ProjectDTO {
	a.t.Helper()
	var p ProjectDTO
	a.call(http.MethodPost, "/api/projects", CreateProjectRequest{Name: name, Address: "Rua A"}, http.StatusCreated, &p)
	return p
}

func (a *testAPI) employee(projectID int64, name, rate string) EmployeeDTO {
	a.t.Helper()
	var e EmployeeDTO
	body := map[string]any{"name": name, "role": "Pedreiro", "daily_rate": rate}
	a.call(http.MethodPost, fmt.Sprintf("/api/projects/%d/employees", projectID), body, http.StatusCreated, &e)
	return e
}

func (a *testAPI) item(projectID int64, name string, threshold string) StockItemDTO {
	a.t.Helper()
	var it StockItemDTO
	body := map[string]any{"name": name, "unit": "saco", "alert_threshold": threshold, "alert_enabled": true}
	a.call(http.MethodPost, fmt.Sprintf("/api/projects/%d/items", projectID), body, http.StatusCreated, &it)
	return it
}

func (a *testAPI) move(itemID int64, kind, qty, date string) MovementDTO {
	a.t.Helper()
	var m MovementDTO
	body := map[string]any{"kind": kind, "quantity": qty, "date": date}
	a.call(http.MethodPost, fmt.Sprintf("/api/items/%d/movements", itemID), body, http.StatusCreated, &m)
	return m
}

// =============================================================================
// PROJECTS
// =============================================================================

func TestProjects_CreateGetList(t *testing.T) {
	api := newTestAPI(t)
	first := api.project("Obra Centro")
	second := api.project("Obra Norte")

	assert.Equal(t, time.Now().Format("2006-01-02"), first.StartDate)

	var got ProjectDTO
	api.call(http.MethodGet, fmt.Sprintf("/api/projects/%d", first.ID), nil, http.StatusOK, &got)
	assert.Equal(t, "Obra Centro", got.Name)

	var list []ProjectDTO
	api.call(http.MethodGet, "/api/projects", nil, http.StatusOK, &list)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
}

func TestCreateProject_MissingName_FieldDetails(t *testing.T) {
	api := newTestAPI(t)

	var resp struct {
		Error   string            `json:"error"`
		Details map[string]string `json:"details"`
	}
	api.call(http.MethodPost, "/api/projects", map[string]string{"address": "x"}, http.StatusBadRequest, &resp)
	assert.Equal(t, "required", resp.Details["name"])
}

func TestBadRequests(t *testing.T) {
	api := newTestAPI(t)

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/projects/abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/api/projects", "{not json").Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/projects/42", nil).Code)
}

// =============================================================================
// STOCK
// =============================================================================

func TestStock_MovementsAndReversal(t *testing.T) {
	// GIVEN: an item with an entry of 10 and an exit of 4
	// WHEN: the exit is reversed
	// THEN: the balance goes 6 then back to 10

	api := newTestAPI(t)
	p := api.project("Obra")
	it := api.item(int64(p.ID), "Cimento", "5")

	api.move(int64(it.ID), "entry", "10", "2024-01-02")
	exit := api.move(int64(it.ID), "exit", "4", "2024-01-03")

	var got StockItemDTO
	api.call(http.MethodGet, fmt.Sprintf("/api/items/%d", it.ID), nil, http.StatusOK, &got)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(6)), "balance %s", got.Balance)

	var rev ReversalDTO
	api.call(http.MethodDelete, fmt.Sprintf("/api/movements/%d", exit.ID), nil, http.StatusOK, &rev)
	assert.True(t, rev.Balance.Equal(decimal.NewFromInt(10)))
	assert.False(t, rev.NonTerminal)

	api.call(http.MethodDelete, fmt.Sprintf("/api/movements/%d", exit.ID), nil, http.StatusNotFound, nil)
}

func TestStock_MovementValidation(t *testing.T) {
	api := newTestAPI(t)
	p := api.project("Obra")
	it := api.item(int64(p.ID), "Areia", "1")
	path := fmt.Sprintf("/api/items/%d/movements", it.ID)

	// Ledger rule.
	api.call(http.MethodPost, path, map[string]any{"kind": "entry", "quantity": "0", "date": "2024-01-02"}, http.StatusBadRequest, nil)
	// Payload rules.
	api.call(http.MethodPost, path, map[string]any{"kind": "adjustment_in", "quantity": "1", "date": "2024-01-02"}, http.StatusBadRequest, nil)
	api.call(http.MethodPost, path, map[string]any{"kind": "entry", "quantity": "1", "date": "02/01/2024"}, http.StatusBadRequest, nil)
	// Unknown item.
	api.call(http.MethodPost, "/api/items/999/movements", map[string]any{"kind": "entry", "quantity": "1", "date": "2024-01-02"}, http.StatusNotFound, nil)
}

func TestStock_CorrectionAndAudit(t *testing.T) {
	api := newTestAPI(t)
	p := api.project("Obra")
	it := api.item(int64(p.ID), "Brita", "1")
	api.move(int64(it.ID), "entry", "10", "2024-01-02")

	var c CorrectionDTO
	api.call(http.MethodPost, fmt.Sprintf("/api/items/%d/correction", it.ID),
		map[string]any{"balance": "7.5", "date": "2024-01-05", "reason": "inventario"}, http.StatusOK, &c)
	require.NotNil(t, c.Movement)
	assert.Equal(t, "adjustment_out", c.Movement.Kind)
	assert.True(t, c.Balance.Equal(decimal.RequireFromString("7.5")))

	var audit AuditDTO
	api.call(http.MethodGet, fmt.Sprintf("/api/items/%d/audit", it.ID), nil, http.StatusOK, &audit)
	assert.True(t, audit.Consistent)
	assert.Equal(t, 2, audit.Movements)
}

func TestStock_UpdateKeepsBalanceAndThreshold(t *testing.T) {
	api := newTestAPI(t)
	p := api.project("Obra")
	it := api.item(int64(p.ID), "Cal", "3")
	api.move(int64(it.ID), "entry", "8", "2024-01-02")

	var got StockItemDTO
	api.call(http.MethodPut, fmt.Sprintf("/api/items/%d", it.ID),
		map[string]any{"name": "Cal hidratada", "unit": "kg", "alert_enabled": false}, http.StatusOK, &got)
	assert.Equal(t, "Cal hidratada", got.Name)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(8)))
	assert.True(t, got.AlertThreshold.Equal(decimal.NewFromInt(3)))
	assert.False(t, got.AlertEnabled)
}

func TestStock_MovementsCSV(t *testing.T) {
	api := newTestAPI(t)
	p := api.project("Obra")
	it := api.item(int64(p.ID), "Cimento", "5")
	api.move(int64(it.ID), "entry", "10", "2024-01-02")
	api.move(int64(it.ID), "exit", "2", "2024-01-03")

	rec := api.do(http.MethodGet, fmt.Sprintf("/api/projects/%d/movements?format=csv", p.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "movements.csv")

	r := csv.NewReader(rec.Body)
	r.Comma = ';'
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "exit", records[1][6], "newest first")
}

func TestStock_ItemsXLSX(t *testing.T) {
	api := newTestAPI(t)
	p := api.project("Obra")
	api.item(int64(p.ID), "Cimento", "5")

	rec := api.do(http.MethodGet, fmt.Sprintf("/api/projects/%d/items?format=xlsx", p.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("stock")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Cimento", rows[1][1])
}

func TestListings_UnknownFormat(t *testing.T) {
	api := newTestAPI(t)
	p := api.project("Obra")
	api.call(http.MethodGet, fmt.Sprintf("/api/projects/%d/items?format=pdf", p.ID), nil, http.StatusBadRequest, nil)
}

// =============================================================================
// STAFF, ATTENDANCE AND PAYROLL
// =============================================================================

func TestEmployeeStatus_Toggle(t *testing.T) {
	api := newTestAPI(t)
	p := api.project("Obra")
	e := api.employee(int64(p.ID), "Ana", "120")
	assert.True(t, e.Active)

	var ev StatusEventDTO
	api.call(http.MethodPost, fmt.Sprintf("/api/employees/%d/status", e.ID),
		map[string]any{"active": false, "reason": "fim de contrato"}, http.StatusCreated, &ev)
	assert.False(t, ev.Active)

	var got EmployeeDTO
	api.call(http.MethodGet, fmt.Sprintf("/api/employees/%d", e.ID), nil, http.StatusOK, &got)
	assert.False(t, got.Active)

	var history []StatusEventDTO
	api.call(http.MethodGet, fmt.Sprintf("/api/employees/%d/status", e.ID), nil, http.StatusOK, &history)
	require.Len(t, history, 1)
	assert.Equal(t, "fim de contrato", history[0].Reason)

	var verify map[string]bool
	api.call(http.MethodGet, fmt.Sprintf("/api/employees/%d/status/verify", e.ID), nil, http.StatusOK, &verify)
	assert.True(t, verify["consistent"])

	var active []EmployeeDTO
	api.call(http.MethodGet, fmt.Sprintf("/api/projects/%d/employees?active=true", p.ID), nil, http.StatusOK, &active)
	assert.Empty(t, active)

	// active is required
	api.call(http.MethodPost, fmt.Sprintf("/api/employees/%d/status", e.ID), map[string]any{"reason": "x"}, http.StatusBadRequest, nil)
}

func TestAttendanceAndPayroll(t *testing.T) {
	// GIVEN: rate 100, morning on day 1, both halves on day 2
	// WHEN: payroll over day 1..day 3
	// THEN: 1.5 days, 150 due

	api := newTestAPI(t)
	p := api.project("Obra")
	carlos := api.employee(int64(p.ID), "Carlos", "100")

	api.call(http.MethodPut, fmt.Sprintf("/api/projects/%d/attendance/2024-05-06", p.ID),
		map[string]any{"records": []map[string]any{{"employee_id": carlos.ID, "morning": true}}}, http.StatusNoContent, nil)
	api.call(http.MethodPut, fmt.Sprintf("/api/employees/%d/attendance/2024-05-07", carlos.ID),
		map[string]any{"morning": true, "afternoon": true}, http.StatusOK, nil)

	var day []AttendanceDTO
	api.call(http.MethodGet, fmt.Sprintf("/api/projects/%d/attendance?date=2024-05-06", p.ID), nil, http.StatusOK, &day)
	require.Len(t, day, 1)
	assert.True(t, day[0].Morning)
	assert.False(t, day[0].Afternoon)

	var pay PayrollDTO
	api.call(http.MethodGet, fmt.Sprintf("/api/projects/%d/payroll?from=2024-05-06&to=2024-05-08", p.ID), nil, http.StatusOK, &pay)
	require.Len(t, pay.Rows, 1)
	assert.True(t, pay.Rows[0].DaysWorked.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, pay.Total.Equal(decimal.NewFromInt(150)), "total %s", pay.Total)

	api.call(http.MethodGet, fmt.Sprintf("/api/projects/%d/payroll?from=2024-05-08&to=2024-05-06", p.ID), nil, http.StatusBadRequest, nil)
	api.call(http.MethodGet, fmt.Sprintf("/api/projects/%d/payroll?from=2024-05-06", p.ID), nil, http.StatusBadRequest, nil)
}

// =============================================================================
// FINANCE, SITE RECORDS, DASHBOARD
// =============================================================================

func TestFinance_Totals(t *testing.T) {
	api := newTestAPI(t)
	p := api.project("Obra")
	path := fmt.Sprintf("/api/projects/%d/finance", p.ID)

	api.call(http.MethodPost, path, map[string]any{"date": "2024-01-02", "kind": "income", "amount": "500"}, http.StatusCreated, nil)
	var expense EntryDTO
	api.call(http.MethodPost, path, map[string]any{"date": "2024-01-03", "kind": "expense", "amount": "200"}, http.StatusCreated, &expense)

	var totals TotalsDTO
	api.call(http.MethodGet, path+"/totals", nil, http.StatusOK, &totals)
	assert.True(t, totals.Balance.Equal(decimal.NewFromInt(300)))

	api.call(http.MethodDelete, fmt.Sprintf("/api/finance/%d", expense.ID), nil, http.StatusNoContent, nil)
	api.call(http.MethodDelete, fmt.Sprintf("/api/finance/%d", expense.ID), nil, http.StatusNotFound, nil)

	api.call(http.MethodPost, path, map[string]any{"date": "2024-01-03", "kind": "loan", "amount": "1"}, http.StatusBadRequest, nil)
}

func TestDiaryAndEPI(t *testing.T) {
	api := newTestAPI(t)
	p := api.project("Obra")
	e := api.employee(int64(p.ID), "Ana", "0")

	diaryPath := fmt.Sprintf("/api/projects/%d/diary/2024-03-01", p.ID)
	api.call(http.MethodGet, diaryPath, nil, http.StatusNotFound, nil)
	api.call(http.MethodPut, diaryPath, map[string]any{"weather": "sol", "activities": "fundação"}, http.StatusOK, nil)

	var d DiaryDTO
	api.call(http.MethodGet, diaryPath, nil, http.StatusOK, &d)
	assert.Equal(t, "fundação", d.Activities)

	var epi EPIDTO
	api.call(http.MethodPost, fmt.Sprintf("/api/projects/%d/epi", p.ID),
		map[string]any{"employee_id": e.ID, "date": "2024-03-01", "item": "Capacete"}, http.StatusCreated, &epi)

	var list []EPIDTO
	api.call(http.MethodGet, fmt.Sprintf("/api/projects/%d/epi", p.ID), nil, http.StatusOK, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Ana", list[0].Employee)

	api.call(http.MethodDelete, fmt.Sprintf("/api/epi/%d", epi.ID), nil, http.StatusNoContent, nil)
}

func TestDashboard(t *testing.T) {
	api := newTestAPI(t)
	p := api.project("Obra")
	ana := api.employee(int64(p.ID), "Ana", "0")
	it := api.item(int64(p.ID), "Cimento", "5")
	api.move(int64(it.ID), "entry", "2", "2024-04-01")

	api.call(http.MethodPost, fmt.Sprintf("/api/projects/%d/finance", p.ID),
		map[string]any{"date": "2024-04-01", "kind": "income", "amount": "1000"}, http.StatusCreated, nil)
	api.call(http.MethodPut, fmt.Sprintf("/api/employees/%d/attendance/2024-04-01", ana.ID),
		map[string]any{"afternoon": true}, http.StatusOK, nil)

	var snap DashboardDTO
	api.call(http.MethodGet, fmt.Sprintf("/api/projects/%d/dashboard?date=2024-04-01", p.ID), nil, http.StatusOK, &snap)
	assert.True(t, snap.CashBalance.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, []string{"Ana"}, snap.Present)
	assert.Equal(t, 1, snap.PresentCount)
	require.Len(t, snap.LowStock, 1)
	assert.Nil(t, snap.Diary)

	api.call(http.MethodGet, "/api/projects/77/dashboard?date=2024-04-01", nil, http.StatusNotFound, nil)
}

// =============================================================================
// ALERTS
// =============================================================================

func TestAlerts_ScanExposed(t *testing.T) {
	api := newTestAPI(t)

	var empty AlertScanDTO
	api.call(http.MethodGet, "/api/alerts", nil, http.StatusOK, &empty)
	assert.Empty(t, empty.Alerts)

	p := api.project("Obra")
	low := api.item(int64(p.ID), "Cimento", "5")
	ok := api.item(int64(p.ID), "Areia", "5")
	api.move(int64(ok.ID), "entry", "9", "2024-01-02")

	scan := api.alerts.Scan(context.Background())
	require.Len(t, scan.Alerts, 1)

	var got AlertScanDTO
	api.call(http.MethodGet, "/api/alerts", nil, http.StatusOK, &got)
	require.Len(t, got.Alerts, 1)
	require.Len(t, got.Alerts[0].Items, 1)
	assert.Equal(t, low.ID, got.Alerts[0].Items[0].ID)
	assert.NotEmpty(t, got.ScannedAt)
}
