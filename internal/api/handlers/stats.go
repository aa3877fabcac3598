package handlers

import (
	"net/http"

	"github.com/dvloznov/finanzas/internal/api/middleware"
	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/store"
	"github.com/rs/zerolog"
)

// StatsHandler serves the aggregate read routes.
type StatsHandler struct {
	repo    store.Repository
	catalog *CatalogCache
	log     zerolog.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(repo store.Repository, catalog *CatalogCache, log zerolog.Logger) *StatsHandler {
	return &StatsHandler{repo: repo, catalog: catalog, log: log}
}

// Stats handles GET /stats
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context())
	if err != nil {
		middleware.WriteDomainError(w, r, h.log, "Failed to compute stats", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, stats)
}

// Breakdown handles GET /stats/breakdown?by=category|payment_method|money_source|expense_type
func (h *StatsHandler) Breakdown(w http.ResponseWriter, r *http.Request) {
	by, err := domain.ParseBreakdownField(r.URL.Query().Get("by"))
	if err != nil {
		middleware.WriteDomainError(w, r, h.log, "Invalid breakdown", err)
		return
	}

	rows, err := h.repo.Breakdown(r.Context(), by)
	if err != nil {
		middleware.WriteDomainError(w, r, h.log, "Failed to compute breakdown", err)
		return
	}
	if rows == nil {
		rows = []domain.BreakdownRow{}
	}

	middleware.WriteJSON(w, http.StatusOK, domain.BreakdownResponse{By: by, Rows: rows})
}

// Catalog handles GET /catalog
func (h *StatsHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	c, err := h.catalog.Get(r.Context(), h.repo)
	if err != nil {
		middleware.WriteDomainError(w, r, h.log, "Failed to load catalog", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, c)
}
