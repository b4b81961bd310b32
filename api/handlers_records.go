package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/warp/site-ledger/export"
	"github.com/warp/site-ledger/finance"
	"github.com/warp/site-ledger/generic"
)

// Attendance, payroll, finance and site record endpoints:
//
//	GET    /api/projects/{projectID}/attendance?date=       Records of one day
//	PUT    /api/projects/{projectID}/attendance/{date}      Save a whole day sheet
//	GET    /api/projects/{projectID}/attendance/period      Days worked (?from=&to=)
//	PUT    /api/employees/{id}/attendance/{date}            Save one record
//	GET    /api/projects/{projectID}/payroll                Payroll (?from=&to=)
//	GET    /api/projects/{projectID}/finance                Entries
//	POST   /api/projects/{projectID}/finance                Add entry
//	GET    /api/projects/{projectID}/finance/totals         Income, expense, balance
//	DELETE /api/finance/{id}                                Delete entry
//	GET    /api/projects/{projectID}/diary/{date}           Diary of one day
//	PUT    /api/projects/{projectID}/diary/{date}           Save diary
//	GET    /api/projects/{projectID}/epi                    EPI history
//	POST   /api/projects/{projectID}/epi                    Issue EPI
//	DELETE /api/epi/{id}                                    Delete EPI record

// =============================================================================
// ATTENDANCE
// =============================================================================

func (h *Handler) GetAttendanceDay(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}
	date, ok := dateQuery(w, "date", r.URL.Query().Get("date"))
	if !ok {
		return
	}

	day, err := h.Attendance.AttendanceForDay(r.Context(), projectID, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	// Listed in employee order so the sheet reads like the registry.
	employees, err := h.Staff.List(r.Context(), projectID, nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]AttendanceDTO, 0, len(day))
	for _, e := range employees {
		if s, ok := day[e.ID]; ok {
			dtos = append(dtos, AttendanceDTO{EmployeeID: e.ID, Morning: s.Morning, Afternoon: s.Afternoon})
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveDaySheet(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}
	date, ok := dateQuery(w, "date", chi.URLParam(r, "date"))
	if !ok {
		return
	}
	var req DaySheetRequest
	if !h.decode(w, r, &req) {
		return
	}

	sheet := make([]generic.AttendanceRecord, len(req.Records))
	for i, line := range req.Records {
		sheet[i] = generic.AttendanceRecord{
			EmployeeID: line.EmployeeID,
			Date:       date,
			Shifts:     generic.Shifts{Morning: line.Morning, Afternoon: line.Afternoon},
		}
	}
	if err := h.Attendance.UpsertDay(r.Context(), projectID, date, sheet); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SaveAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	date, ok := dateQuery(w, "date", chi.URLParam(r, "date"))
	if !ok {
		return
	}
	var req ShiftsRequest
	if !h.decode(w, r, &req) {
		return
	}

	shifts := generic.Shifts{Morning: req.Morning, Afternoon: req.Afternoon}
	if err := h.Attendance.UpsertAttendance(r.Context(), generic.EmployeeID(id), date, shifts); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AttendanceDTO{EmployeeID: generic.EmployeeID(id), Morning: req.Morning, Afternoon: req.Afternoon})
}

func (h *Handler) GetAttendancePeriod(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}
	period, ok := periodQuery(w, r)
	if !ok {
		return
	}

	rows, err := h.Attendance.AggregatePeriod(r.Context(), projectID, period)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]PeriodRowDTO, len(rows))
	for i, row := range rows {
		dtos[i] = PeriodRowDTO{
			EmployeeID: row.Employee.ID,
			Name:       row.Employee.Name,
			Role:       row.Employee.Role,
			Halves:     row.Halves,
			DaysWorked: row.DaysWorked,
		}
	}
	h.respond(w, r, export.AttendancePeriod(rows), dtos)
}

func (h *Handler) GetPayroll(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}
	period, ok := periodQuery(w, r)
	if !ok {
		return
	}

	p, err := h.Payroll.ComputePayroll(r.Context(), projectID, period)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, export.Payroll(p), toPayrollDTO(p))
}

// =============================================================================
// FINANCE
// =============================================================================

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}
	entries, err := h.Finance.Entries(r.Context(), projectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	h.respond(w, r, export.FinanceEntries(entries), dtos)
}

func (h *Handler) AddEntry(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}
	var req EntryRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := finance.NewEntry{
		ProjectID:   projectID,
		Date:        mustDate(req.Date),
		Kind:        generic.EntryKind(req.Kind),
		Amount:      req.Amount,
		Description: req.Description,
		Invoice:     req.Invoice,
	}
	id, err := h.Finance.AddEntry(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(generic.FinancialEntry{
		ID:          id,
		ProjectID:   projectID,
		Date:        in.Date,
		Kind:        in.Kind,
		Amount:      in.Amount,
		Description: in.Description,
		Invoice:     in.Invoice,
	}))
}

func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.Finance.DeleteEntry(r.Context(), generic.EntryID(id)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}
	t, err := h.Finance.Totals(r.Context(), projectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TotalsDTO{Income: t.Income, Expense: t.Expense, Balance: t.Balance})
}

// =============================================================================
// DIARY AND EPI
// =============================================================================

func (h *Handler) GetDiary(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}
	date, ok := dateQuery(w, "date", chi.URLParam(r, "date"))
	if !ok {
		return
	}
	d, err := h.Site.Diary(r.Context(), projectID, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "No diary entry for that day", nil)
		return
	}
	writeJSON(w, http.StatusOK, toDiaryDTO(d))
}

func (h *Handler) SaveDiary(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}
	date, ok := dateQuery(w, "date", chi.URLParam(r, "date"))
	if !ok {
		return
	}
	var req DiaryRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry := generic.DiaryEntry{
		ProjectID:  projectID,
		Date:       date,
		Weather:    req.Weather,
		Activities: req.Activities,
		Incidents:  req.Incidents,
	}
	if err := h.Site.SaveDiary(r.Context(), entry); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDiaryDTO(&entry))
}

func (h *Handler) ListEPI(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}
	list, err := h.Site.EPIHistory(r.Context(), projectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]EPIDTO, len(list))
	for i, e := range list {
		dtos[i] = EPIDTO{ID: e.ID, EmployeeID: e.EmployeeID, Employee: e.EmployeeName, Date: dateString(e.Date), Item: e.Item}
	}
	h.respond(w, r, export.EPIHistory(list), dtos)
}

func (h *Handler) IssueEPI(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectParam(w, r)
	if !ok {
		return
	}
	var req EPIRequest
	if !h.decode(w, r, &req) {
		return
	}
	date := mustDate(req.Date)
	id, err := h.Site.IssueEPI(r.Context(), projectID, req.EmployeeID, date, req.Item)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, EPIDTO{ID: id, EmployeeID: req.EmployeeID, Date: req.Date, Item: req.Item})
}

func (h *Handler) DeleteEPI(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.Site.DeleteEPI(r.Context(), generic.EPIID(id)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
