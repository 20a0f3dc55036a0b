/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/tenants/{tenantID}/*      Closure, reports, ledger
  /api/employees/{employeeID}/*  Rates and hours
  /api/scenarios/*               Demo scenarios
  /api/scheduler                 Closure scheduler status
  /healthz                       Liveness

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured. An empty
// allowedOrigins list disables CORS.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			// Closure routes
			r.Get("/closures", h.ListClosures)
			r.Post("/closures", h.CloseMonth)

			// Report routes
			r.Route("/reports", func(r chi.Router) {
				r.Get("/profit-and-loss", h.ProfitAndLoss)
				r.Get("/payroll", h.PayrollMetrics)
				r.Get("/cash-flow", h.CashFlow)
				r.Get("/expenses", h.ExpenseAnalysis)
				r.Get("/inventory", h.InventoryValuation)
			})

			// Ledger routes
			r.Get("/categories", h.ListCategories)
			r.Post("/categories", h.CreateCategory)
			r.Delete("/categories/{id}", h.DeactivateCategory)
			r.Get("/templates", h.ListTemplates)
			r.Post("/templates", h.CreateTemplate)
			r.Get("/movements", h.ListMovements)
			r.Post("/movements", h.CreateMovement)
		})

		r.Route("/employees/{employeeID}", func(r chi.Router) {
			r.Post("/rates", h.CreateRate)
			r.Put("/hours/{month}", h.RecordHours)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		r.Get("/scheduler", h.SchedulerStatus)
		r.Post("/scheduler/run", h.RunScheduler)
	})

	return r
}
