/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID: Unique ID per request for tracing
  2. RequestLogger: Structured request logging (skips probes)
  3. Recoverer: Panic recovery (500 instead of crash)
  4. CORS: Cross-origin requests for dashboards

ROUTE GROUPS:
  /api/users/{userID}/*  Per-user ledger operations
  /api/entries/*         Entry reversal
  /api/sweeps            Sweep runs and manual trigger
  /healthz               Liveness probe
  /metrics               Prometheus exposition

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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loopline/points-ledger/logging"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Per-user ledger routes
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/grants", h.CreateGrant)
			r.Post("/consumptions", h.CreateConsumption)
			r.Post("/expirations", h.TriggerExpiration)
			r.Get("/balance", h.GetBalance)
			r.Get("/entries", h.GetEntries)
		})

		// Entry routes
		r.Route("/entries", func(r chi.Router) {
			r.Post("/{entryID}/reversal", h.ReverseEntry)
		})

		// Sweep routes
		r.Route("/sweeps", func(r chi.Router) {
			r.Get("/", h.ListSweepRuns)
			r.Post("/", h.TriggerSweep)
		})
	})

	// Operational endpoints
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
