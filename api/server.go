/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     logrus request log (method, path, status, duration, request id)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for a browser frontend

ROUTE GROUPS:
  /api/projects/*    Project-scoped listings and creation
  /api/employees/*   Employee registry, status history, attendance
  /api/items/*       Stock items and their movements
  /api/movements/*   Movement reversal
  /api/finance/*     Entry deletion
  /api/epi/*         EPI deletion
  /api/alerts        Latest low-stock scan

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"github.com/warp/site-ledger/config"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, logger logrus.FieldLogger) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(config.OrDiscard(logger)))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/alerts", h.ListAlerts)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", h.ListProjects)
			r.Post("/", h.CreateProject)

			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", h.GetProject)
				r.Get("/dashboard", h.GetDashboard)

				r.Get("/employees", h.ListEmployees)
				r.Post("/employees", h.CreateEmployee)

				r.Get("/items", h.ListItems)
				r.Post("/items", h.CreateItem)
				r.Get("/items/low", h.ListLowStock)
				r.Get("/items/audit", h.AuditProject)
				r.Get("/movements", h.ListMovements)

				r.Get("/attendance", h.GetAttendanceDay)
				r.Get("/attendance/period", h.GetAttendancePeriod)
				r.Put("/attendance/{date}", h.SaveDaySheet)
				r.Get("/payroll", h.GetPayroll)

				r.Get("/finance", h.ListEntries)
				r.Post("/finance", h.AddEntry)
				r.Get("/finance/totals", h.GetTotals)

				r.Get("/diary/{date}", h.GetDiary)
				r.Put("/diary/{date}", h.SaveDiary)

				r.Get("/epi", h.ListEPI)
				r.Post("/epi", h.IssueEPI)
			})
		})

		r.Route("/employees/{id}", func(r chi.Router) {
			r.Get("/", h.GetEmployee)
			r.Put("/", h.UpdateEmployee)
			r.Get("/status", h.GetStatusHistory)
			r.Post("/status", h.SetEmployeeStatus)
			r.Get("/status/verify", h.VerifyEmployeeStatus)
			r.Put("/attendance/{date}", h.SaveAttendance)
		})

		r.Route("/items/{id}", func(r chi.Router) {
			r.Get("/", h.GetItem)
			r.Put("/", h.UpdateItem)
			r.Post("/movements", h.RecordMovement)
			r.Post("/correction", h.CorrectBalance)
			r.Get("/audit", h.AuditItem)
			r.Post("/rebuild", h.RebuildItem)
		})

		r.Delete("/movements/{id}", h.ReverseMovement)
		r.Delete("/finance/{id}", h.DeleteEntry)
		r.Delete("/epi/{id}", h.DeleteEPI)
	})

	return r
}

// requestLogger logs one line per request once the response is written.
func requestLogger(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			entry := logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("request")
				return
			}
			entry.Info("request")
		})
	}
}
