/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route table. This is
  the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. CORS:          Cross-origin requests for the HR frontend
  2. RequestLogger: Structured request logs (httplog over slog)
  3. CleanPath / Recoverer / Heartbeat

ROUTE GROUPS:
  /api/requests/*     Request workflow (submit, approve, finalize, ...)
  /api/employees/*    Per-employee balances and request history
  /api/calendars/*    Organizational calendar administration
  /api/leave-types/*  Leave type and policy administration
  /api/payroll/*      Unpaid deduction and encashment calculations
  /api/admin/*        Entitlements, adjustments, engine triggers

SECURITY NOTE:
  Authentication and role resolution happen at the gateway; this service
  trusts the X-Actor-Id / X-Actor-Role headers it receives.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
)

// RouterConfig carries the externally configurable HTTP settings.
type RouterConfig struct {
	AllowedOrigins []string
	Verbose        bool
}

// NewRouter creates the router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-Id", "X-Actor-Role"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	logFormat := httplog.SchemaECS.Concise(!cfg.Verbose)
	requestLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(slog.String("app", "leave-engine"))

	r.Use(httplog.RequestLogger(requestLogger, &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS,
	}))

	r.Use(middleware.CleanPath)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))

	r.Route("/api", func(r chi.Router) {
		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.SubmitRequest)
			r.Get("/pending", h.ListPendingRequests)
			r.Get("/{id}", h.GetRequest)
			r.Post("/{id}/manager-approve", h.ManagerApprove)
			r.Post("/{id}/manager-reject", h.ManagerReject)
			r.Post("/{id}/return", h.ReturnForCorrection)
			r.Post("/{id}/resubmit", h.Resubmit)
			r.Post("/{id}/finalize", h.HRFinalize)
			r.Post("/{id}/cancel", h.Cancel)
		})

		r.Route("/employees", func(r chi.Router) {
			r.Get("/{id}", h.GetEmployee)
			r.Put("/{id}", h.PutEmployee)
			r.Get("/{id}/requests", h.ListEmployeeRequests)
			r.Get("/{id}/balances", h.GetEmployeeBalances)
		})

		r.Route("/calendars", func(r chi.Router) {
			r.Get("/{year}", h.GetCalendar)
			r.Put("/{year}", h.SaveCalendar)
		})

		r.Route("/leave-types", func(r chi.Router) {
			r.Get("/", h.ListLeaveTypes)
			r.Put("/{id}", h.SaveLeaveType)
		})

		r.Route("/payroll", func(r chi.Router) {
			r.Post("/unpaid-deduction", h.UnpaidDeduction)
			r.Post("/encashment", h.Encashment)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/entitlements", h.AssignEntitlement)
			r.Post("/adjustments", h.CreateAdjustment)
			r.Post("/accrual/run", h.RunAccrual)
			r.Route("/carry-forward", func(r chi.Router) {
				r.Post("/", h.CarryForward)
				r.Post("/preview", h.PreviewCarryForward)
				r.Post("/override", h.OverrideCarryForward)
				r.Get("/report", h.CarryForwardReport)
			})
			r.Post("/reset-year", h.ResetLeaveYear)
			r.Post("/escalations/run", h.RunEscalation)
		})
	})

	return r
}
