/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. CORS:       Cross-origin requests for admin tooling

ROUTE GROUPS:
  /api/structures/*    Compensation structure registry
  /api/tax-configs     Jurisdiction contribution schedules
  /api/periods/*       Period lifecycle (calculate, approve, pay, ...)
  /api/payrun          Batch calculation runs
  /api/reports         Compliance report aggregation
  /api/events          Payment ledger events

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

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Structure registry routes
		r.Route("/structures", func(r chi.Router) {
			r.Post("/", h.RegisterStructure)
			r.Get("/active/{subject}", h.GetActiveStructure)
		})

		// Jurisdiction configuration routes
		r.Post("/tax-configs", h.RegisterTaxConfig)

		// Period lifecycle routes
		r.Route("/periods", func(r chi.Router) {
			r.Post("/", h.CreatePeriod)
			r.Get("/{id}", h.GetPeriod)
			r.Post("/{id}/calculate", h.CalculatePeriod)
			r.Post("/{id}/approve", h.ApprovePeriod)
			r.Post("/{id}/pay", h.PayPeriod)
			r.Post("/{id}/cancel", h.CancelPeriod)
			r.Post("/{id}/reverse", h.ReversePeriod)
		})

		// Batch run routes
		r.Post("/payrun", h.RunPayrun)

		// Reporting routes
		r.Get("/reports", h.GetReport)
		r.Get("/events", h.ListEvents)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
