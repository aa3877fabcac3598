package handlers

import (
	"net/http"

	"github.com/dvloznov/finanzas/internal/api/middleware"
	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// QueryHandler runs caller-supplied read-only SQL.
type QueryHandler struct {
	repo     store.Repository
	validate *validator.Validate
	log      zerolog.Logger
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(repo store.Repository, validate *validator.Validate, log zerolog.Logger) *QueryHandler {
	return &QueryHandler{repo: repo, validate: validate, log: log}
}

// Query handles POST /query
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteDomainError(w, r, h.log, "Failed to decode query", err)
		return
	}
	if err := validateRequest(h.validate, &req); err != nil {
		middleware.WriteDomainError(w, r, h.log, "Invalid query request", err)
		return
	}

	// The repository runs the read-only guard before touching the database.
	res, err := h.repo.Query(r.Context(), req.SQL)
	if err != nil {
		middleware.WriteDomainError(w, r, h.log, "Failed to run query", err)
		return
	}
	if res.Rows == nil {
		res.Rows = [][]interface{}{}
	}
	if res.Columns == nil {
		res.Columns = []string{}
	}

	middleware.WriteJSON(w, http.StatusOK, domain.QueryResponse{
		Success:  true,
		Columns:  res.Columns,
		Rows:     res.Rows,
		RowCount: res.RowCount,
	})
}
