package api

import (
	"net/http"
	"time"

	"github.com/dvloznov/finanzas/internal/api/handlers"
	"github.com/dvloznov/finanzas/internal/api/middleware"
	"github.com/dvloznov/finanzas/internal/jobs"
	"github.com/dvloznov/finanzas/internal/store"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Options configures the HTTP surface.
type Options struct {
	Repo    store.Repository
	APIKey  string
	Version string

	// Publisher and JobStore enable POST /ingest/text and the /jobs routes.
	// Both nil disables text ingestion.
	Publisher jobs.Publisher
	JobStore  jobs.JobStore

	RateLimitRPS   float64
	RateLimitBurst int
	CatalogTTL     time.Duration

	// RequestTimeout bounds each request's context, and with it every
	// storage call. Defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration

	// Location receives dates that carry a UTC offset before they are
	// stored. Nil means UTC.
	Location *time.Location

	Log zerolog.Logger
}

// DefaultRequestTimeout stays below the server's write timeout so a slow
// storage call is answered 504 instead of a dropped connection.
const DefaultRequestTimeout = 10 * time.Second

// PublicPaths skip API key authentication.
var PublicPaths = []string{"/", "/health"}

// NewRouter wires every route and the middleware chain.
func NewRouter(opts Options) http.Handler {
	log := opts.Log
	ttl := opts.CatalogTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	validate := handlers.NewValidator()
	catalog := handlers.NewCatalogCache(ttl)

	healthHandler := handlers.NewHealthHandler(opts.Repo, opts.Version, log)
	transactionsHandler := handlers.NewTransactionsHandler(opts.Repo, catalog, validate, opts.Location, log)
	statsHandler := handlers.NewStatsHandler(opts.Repo, catalog, log)
	queryHandler := handlers.NewQueryHandler(opts.Repo, validate, log)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS)
	if opts.RateLimitRPS > 0 {
		r.Use(middleware.RateLimit(middleware.NewLimiter(opts.RateLimitRPS, opts.RateLimitBurst)))
	}
	r.Use(middleware.APIKeyAuth(opts.APIKey, PublicPaths...))
	r.Use(chimw.Timeout(timeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorCode(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/", healthHandler.Root)
	r.Get("/health", healthHandler.Health)

	r.Post("/ingest", transactionsHandler.Ingest)
	r.Post("/ingest/batch", transactionsHandler.IngestBatch)

	r.Get("/transactions/recent", transactionsHandler.Recent)
	r.Delete("/transactions/{id}", transactionsHandler.Delete)
	r.Delete("/transactions", transactionsHandler.DeleteAll)

	r.Get("/stats", statsHandler.Stats)
	r.Get("/stats/breakdown", statsHandler.Breakdown)
	r.Get("/catalog", statsHandler.Catalog)

	r.Post("/query", queryHandler.Query)

	if opts.Publisher != nil && opts.JobStore != nil {
		jobsHandler := handlers.NewJobsHandler(opts.Publisher, opts.JobStore, validate, log)
		r.Post("/ingest/text", jobsHandler.SubmitText)
		r.Get("/jobs", jobsHandler.ListJobs)
		r.Get("/jobs/{id}", jobsHandler.GetJob)
	}

	return r
}
