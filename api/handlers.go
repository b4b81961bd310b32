/*
handlers.go - HTTP API handlers for the site ledgers

PURPOSE:
  Exposes the ledgers via REST API. Handles HTTP request/response, JSON
  serialization and payload validation, and delegates to the ledger
  packages. No business rule lives here.

ENDPOINTS:
  Projects:
    GET    /api/projects                          List projects (newest first)
    POST   /api/projects                          Create project
    GET    /api/projects/{projectID}              Get project
    GET    /api/projects/{projectID}/dashboard    Snapshot (?date=, default today)

  Employees:
    GET    /api/projects/{projectID}/employees    List (?active=true|false)
    POST   /api/projects/{projectID}/employees    Register
    GET    /api/employees/{id}                    Get
    PUT    /api/employees/{id}                    Update (never the active flag)
    GET    /api/employees/{id}/status             Status history
    POST   /api/employees/{id}/status             Toggle active
    GET    /api/employees/{id}/status/verify      Flag vs latest event

  Stock, attendance, payroll, finance, diary, EPI:
    see handlers_stock.go and handlers_records.go

  Alerts:
    GET    /api/alerts                            Latest low-stock scan

LISTINGS:
  Every listing accepts ?format=csv|xlsx (default JSON). CSV uses ';'
  unless ?delimiter=comma.

ERROR HANDLING:
  Errors are returned as JSON {"error","details"} with HTTP status:
  - 400: ValidationError, malformed body or parameter
  - 404: NotFoundError
  - 409: Concurrent modification, project lock not obtained
  - 500: Persistence and anything else

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: AlertScheduler behind /api/alerts
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/warp/site-ledger/attendance"
	"github.com/warp/site-ledger/config"
	"github.com/warp/site-ledger/dashboard"
	"github.com/warp/site-ledger/export"
	"github.com/warp/site-ledger/finance"
	"github.com/warp/site-ledger/generic"
	"github.com/warp/site-ledger/payroll"
	"github.com/warp/site-ledger/site"
	"github.com/warp/site-ledger/staff"
	"github.com/warp/site-ledger/stock"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Services bundles every ledger the API delegates to.
type Services struct {
	Site       *site.Service
	Staff      *staff.Registry
	Stock      *stock.Ledger
	Attendance *attendance.Ledger
	Finance    *finance.Ledger
	Payroll    *payroll.Calculator
	Dashboard  *dashboard.Aggregator
}

// NewServices wires the ledgers over one store and one project locker.
func NewServices(store generic.TxStore, locker generic.Locker, logger logrus.FieldLogger) Services {
	svc := Services{
		Site:       site.NewService(store, logger),
		Staff:      staff.NewRegistry(store, locker, logger),
		Stock:      stock.NewLedger(store, locker, logger),
		Attendance: attendance.NewLedger(store, locker, logger),
		Finance:    finance.NewLedger(store, logger),
	}
	svc.Payroll = payroll.NewCalculator(svc.Attendance)
	svc.Dashboard = dashboard.NewAggregator(svc.Finance, svc.Attendance, svc.Stock, svc.Staff, svc.Site)
	return svc
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Services
	Alerts *AlertScheduler

	logger   logrus.FieldLogger
	validate *validator.Validate
}

// NewHandler creates a handler. alerts may be nil, in which case
// /api/alerts reports an empty scan.
func NewHandler(svc Services, alerts *AlertScheduler, logger logrus.FieldLogger) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		Services: svc,
		Alerts:   alerts,
		logger:   config.OrDiscard(logger).WithField("module", "api"),
		validate: v,
	}
}

// =============================================================================
// PROJECT HANDLERS
// =============================================================================

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Site.Projects(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]ProjectDTO, len(projects))
	for i, p := range projects {
		dtos[i] = toProjectDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.Site.CreateProject(r.Context(), req.Name, req.Address)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.Site.Project(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectDTO(*p))
}

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectParam(w, r)
	if !ok {
		return
	}
	p, err := h.Site.Project(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectDTO(*p))
}

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	id, ok := projectParam(w, r)
	if !ok {
		return
	}

	var snap dashboard.Snapshot
	var err error
	if q := r.URL.Query().Get("date"); q != "" {
		date, ok := dateQuery(w, "date", q)
		if !ok {
			return
		}
		snap, err = h.Dashboard.Snapshot(r.Context(), id, date)
	} else {
		snap, err = h.Dashboard.Today(r.Context(), id)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	present := snap.Present
	if present == nil {
		present = []string{}
	}
	writeJSON(w, http.StatusOK, DashboardDTO{
		ProjectID:    snap.ProjectID,
		Date:         dateString(snap.Date),
		CashBalance:  snap.CashBalance,
		Present:      present,
		PresentCount: snap.PresentCount,
		LowStock:     toStockItemDTOs(snap.LowStock),
		Diary:        toDiaryDTO(snap.Diary),
	})
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}

	var active *bool
	if q := r.URL.Query().Get("active"); q != "" {
		b, err := strconv.ParseBool(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid active filter (use true or false)", err)
			return
		}
		active = &b
	}

	employees, err := h.Staff.List(r.Context(), projectID, active)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	h.respond(w, r, export.Employees(employees), dtos)
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}
	var req EmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}

	emp := req.toEmployee()
	emp.ProjectID = projectID
	id, err := h.Staff.Register(r.Context(), emp)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeEmployee(w, r, http.StatusCreated, id)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	h.writeEmployee(w, r, http.StatusOK, generic.EmployeeID(id))
}

func (h *Handler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req EmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}

	emp := req.toEmployee()
	emp.ID = generic.EmployeeID(id)
	if err := h.Staff.Update(r.Context(), emp); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeEmployee(w, r, http.StatusOK, emp.ID)
}

func (h *Handler) SetEmployeeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req SetStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	ev, err := h.Staff.SetActive(r.Context(), generic.EmployeeID(id), *req.Active, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStatusEventDTO(ev))
}

func (h *Handler) GetStatusHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	events, err := h.Staff.History(r.Context(), generic.EmployeeID(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]StatusEventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toStatusEventDTO(ev)
	}
	h.respond(w, r, export.StatusHistory(events), dtos)
}

func (h *Handler) VerifyEmployeeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	consistent, err := h.Staff.Verify(r.Context(), generic.EmployeeID(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"consistent": consistent})
}

func (h *Handler) writeEmployee(w http.ResponseWriter, r *http.Request, status int, id generic.EmployeeID) {
	emp, err := h.Staff.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, toEmployeeDTO(*emp))
}

// =============================================================================
// ALERTS
// =============================================================================

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	scan := AlertScanDTO{Alerts: []AlertDTO{}}
	if h.Alerts != nil {
		scan = h.Alerts.Latest()
	}
	writeJSON(w, http.StatusOK, scan)
}

// =============================================================================
// HELPERS
// =============================================================================

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps a ledger error onto an HTTP status.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case generic.IsRetryable(err):
		writeError(w, http.StatusConflict, "Conflicting update, retry", err)
	default:
		h.logger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

// decode reads and validates a JSON body. It writes the 400 itself and
// returns false when the body is unusable.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Validation failed",
				Details: validationDetails(verrs),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// validationDetails maps each failing field to the tag it failed.
func validationDetails(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// respond writes a listing as JSON, or as the table export asked for by
// ?format=csv|xlsx.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, table export.Table, dtos any) {
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, dtos)
	case "csv":
		delim := ';'
		if r.URL.Query().Get("delimiter") == "comma" {
			delim = ','
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", table.Name+".csv"))
		if err := export.WriteCSV(w, table, delim); err != nil {
			h.logger.WithError(err).WithField("table", table.Name).Error("csv export failed")
		}
	case "xlsx":
		w.Header().Set("Content-Type", export.XLSXContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", table.Name+".xlsx"))
		if err := export.WriteXLSX(w, table, ""); err != nil {
			h.logger.WithError(err).WithField("table", table.Name).Error("xlsx export failed")
		}
	default:
		writeError(w, http.StatusBadRequest, "Unsupported format (use json, csv or xlsx)", nil)
	}
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s %q", name, raw), nil)
		return 0, false
	}
	return id, true
}

func projectParam(w http.ResponseWriter, r *http.Request) (generic.ProjectID, bool) {
	id, ok := idParam(w, r, "projectID")
	return generic.ProjectID(id), ok
}

func dateQuery(w http.ResponseWriter, name, raw string) (generic.Date, bool) {
	d, err := generic.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s (use YYYY-MM-DD)", name), err)
		return generic.Date{}, false
	}
	return d, true
}

func periodQuery(w http.ResponseWriter, r *http.Request) (generic.Period, bool) {
	q := r.URL.Query()
	from, ok := dateQuery(w, "from", q.Get("from"))
	if !ok {
		return generic.Period{}, false
	}
	to, ok := dateQuery(w, "to", q.Get("to"))
	if !ok {
		return generic.Period{}, false
	}
	return generic.Period{From: from, To: to}, true
}
