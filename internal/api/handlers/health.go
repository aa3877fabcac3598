package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/dvloznov/finanzas/internal/api/middleware"
	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/store"
	"github.com/rs/zerolog"
)

const pingTimeout = 5 * time.Second

// HealthHandler answers liveness probes.
type HealthHandler struct {
	repo    store.Repository
	version string
	log     zerolog.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository, version string, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{repo: repo, version: version, log: log}
}

// Root handles GET /
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, domain.RootResponse{
		App:     "finanzas",
		Version: h.version,
		Status:  "running",
	})
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)
	if err := h.repo.Ping(ctx); err != nil {
		h.log.Error().Err(err).Msg("Database ping failed")
		middleware.WriteJSON(w, http.StatusServiceUnavailable, domain.Health{
			Status:    "unhealthy",
			Database:  "disconnected",
			Timestamp: now,
		})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, domain.Health{
		Status:    "healthy",
		Database:  "connected",
		Timestamp: now,
	})
}
