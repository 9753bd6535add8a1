/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:      Unique ID per request, echoed in logs
  2. RequestLogger:  Structured zerolog access log
  3. Recoverer:      Panic recovery (500 instead of crash)
  4. Metrics:        Prometheus request counters/latency
  5. CORS:           Cross-origin requests from till frontends

ROUTE GROUPS:
  /api/denominations   Configured note/coin set
  /api/drawers/*       Live tills
  /api/bills/*         Bill registry
  /api/tenders/*       Tender sessions
  /api/tender-records  Finalized tenders
  /api/daycash/*       Opening/closing counts
  /api/scenarios/*     Demo scenarios
  /metrics             Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware. Deploy behind the store network's gateway.

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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/tender-engine/obs"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	// Gatherer backs /metrics; nil leaves the endpoint out.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(obs.RequestLogger{Logger: h.Log}.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(h.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/denominations", h.ListDenominations)
		r.Get("/drawers/{store}/{company}/{date}", h.GetDrawer)

		r.Route("/bills", func(r chi.Router) {
			r.Post("/", h.CreateBill)
			r.Get("/{billNo}", h.GetBill)
		})

		r.Route("/tenders", func(r chi.Router) {
			r.Post("/", h.OpenTender)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetTender)
				r.Post("/collections", h.ApplyCollection)
				r.Post("/adjustments", h.ApplyAdjustment)
				r.Post("/deductions", h.ApplyDeduction)
				r.Post("/instruments", h.SetInstruments)
				r.Post("/reload", h.ReloadLedger)
				r.Post("/accept-shortfall", h.AcceptShortfall)
				r.Post("/finalize", h.FinalizeTender)
				r.Post("/abort", h.AbortTender)
			})
		})

		r.Get("/tender-records/{billNo}", h.GetTenderRecord)

		r.Route("/daycash", func(r chi.Router) {
			r.Post("/opening", h.PostOpening)
			r.Post("/closing", h.PostClosing)
			r.Get("/{store}/{company}/{date}", h.GetDayCash)
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
