/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the POS frontend

ROUTE GROUPS:
  /api/employees/*     Balances and ledger history
  /api/groups/*        Tip group lifecycle
  /api/templates/*     Group templates
  /api/settlements     Order settlement intake
  /api/clock-ins       Time clock intake
  /api/shift-closes    Tip-out trigger
  /api/payouts         Cash payouts
  /api/facts           Collaborator fact intake
  /api/adjustments/*   Manager corrections
  /api/tipout-rules    Rule administration
  /api/admin/*         Maintenance operations
  /api/scenarios/*     Demo scenarios (dev only)
  /api/reset           Database reset (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/ledger", h.GetLedger)
		})

		// Group routes
		r.Route("/groups", func(r chi.Router) {
			r.Get("/", h.ListGroups)
			r.Post("/", h.CreateGroup)
			r.Get("/{id}/history", h.GetGroupHistory)
			r.Post("/{id}/members", h.AddMember)
			r.Delete("/{id}/members/{employeeId}", h.RemoveMember)
		})

		// Template routes
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
		})

		// Event intake routes
		r.Post("/settlements", h.CreateSettlement)
		r.Post("/clock-ins", h.CreateClockIn)
		r.Post("/shift-closes", h.CreateShiftClose)
		r.Post("/payouts", h.CreatePayout)
		r.Post("/facts", h.RecordFacts)

		// Adjustment routes
		r.Route("/adjustments", func(r chi.Router) {
			r.Get("/", h.ListAdjustments)
			r.Post("/", h.CreateAdjustment)
			r.Get("/{id}", h.GetAdjustment)
		})

		// Admin routes
		r.Post("/tipout-rules", h.CreateTipOutRule)
		r.Route("/admin", func(r chi.Router) {
			r.Post("/expire-groups", h.ExpireGroups)
		})

		// Demo scenario routes (dev only)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		// Database reset (dev only)
		r.Post("/reset", h.ResetDatabase)
	})

	return r
}
