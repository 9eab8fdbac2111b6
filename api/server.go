/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RequestLogger: Structured request logging (httplog, ECS schema)
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CleanPath:     Collapses double slashes
  5. Heartbeat:     GET /health for load balancers
  6. CORS:          Cross-origin requests for a frontend

RATE LIMITING:
  Requests that start or close runs (start, recalculate, finalize) are
  limited per client IP. The limit is RouterOptions.RateLimit per minute;
  zero disables it.

ROUTE GROUPS:
  /api/employees        Employees
  /api/regime           Active tax regime
  /api/payroll/runs/*   Runs, review and finalization
  /api/payroll/finalized/*  Finalized records and payslips
  /api/scenarios/*      Demo scenarios and reset (dev only)

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/httprate"
)

type RouterOptions struct {
	Logger      *slog.Logger
	CORSOrigins []string
	RateLimit   int // requests per minute per IP on mutating run endpoints
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = h.Logger
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS,
	}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Location"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	limited := func(r chi.Router) chi.Router { return r }
	if opts.RateLimit > 0 {
		limiter := httprate.Limit(opts.RateLimit, time.Minute,
			httprate.WithKeyFuncs(rateLimitKey),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusTooManyRequests, "Too many requests", nil)
			}),
		)
		limited = func(r chi.Router) chi.Router { return r.With(limiter) }
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/employees", h.ListEmployees)
		r.Get("/regime", h.GetRegime)

		r.Route("/payroll", func(r chi.Router) {
			r.Route("/runs", func(r chi.Router) {
				limited(r).Post("/", h.StartRun)
				r.Get("/{id}", h.GetRun)
				r.Get("/{id}/events", h.StreamRun)
				r.Get("/{id}/audit", h.ListRunAudit)
				r.Post("/{id}/adjustments", h.AdjustRun)
				r.Post("/{id}/exclusions", h.ExcludeEmployee)
				limited(r).Post("/{id}/recalculate", h.RecalculateRun)
				limited(r).Post("/{id}/finalize", h.FinalizeRun)
			})

			r.Route("/finalized", func(r chi.Router) {
				r.Get("/", h.ListFinalized)
				r.Get("/{id}/payslip.pdf", h.GetPayslip)
			})
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

func rateLimitKey(r *http.Request) (string, error) {
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
