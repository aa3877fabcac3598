package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/finanzas/internal/api/middleware"
	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// TransactionsHandler serves ingestion, listing and deletion.
type TransactionsHandler struct {
	repo     store.Repository
	catalog  *CatalogCache
	validate *validator.Validate
	loc      *time.Location
	log      zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler. Dates that carry
// a UTC offset are stored as wall-clock time in loc (UTC when nil).
func NewTransactionsHandler(repo store.Repository, catalog *CatalogCache, validate *validator.Validate, loc *time.Location, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{repo: repo, catalog: catalog, validate: validate, loc: loc, log: log}
}

// Ingest handles POST /ingest
func (h *TransactionsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var tx domain.Transaction
	if err := decodeBody(w, r, &tx); err != nil {
		middleware.WriteDomainError(w, r, h.log, "Failed to decode transaction", err)
		return
	}

	if err := h.store(r, &tx); err != nil {
		middleware.WriteDomainError(w, r, h.log, "Failed to store transaction", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, domain.IngestResponse{
		ID:      tx.ID,
		Success: true,
		Message: "transaction stored",
	})
}

// IngestBatch handles POST /ingest/batch. Every record is stored
// independently; one rejection never undoes another record.
func (h *TransactionsHandler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteDomainError(w, r, h.log, "Failed to decode batch", err)
		return
	}
	if err := validateRequest(h.validate, &req); err != nil {
		middleware.WriteDomainError(w, r, h.log, "Invalid batch", err)
		return
	}

	resp := domain.BatchResponse{Results: make([]domain.BatchItemResult, len(req.Transactions))}
	for i := range req.Transactions {
		tx := &req.Transactions[i]
		item := domain.BatchItemResult{Index: i, ID: tx.ID, Success: true}
		if err := h.store(r, tx); err != nil {
			item.Success = false
			item.Code = domain.ErrorCode(err)
			item.Error = domain.UserMessage(err)
			if item.Code == "internal" {
				h.log.Error().Err(err).Str("transaction_id", tx.ID).Msg("Failed to store batch record")
			}
			resp.Rejected++
		} else {
			resp.Inserted++
		}
		resp.Results[i] = item
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

func (h *TransactionsHandler) store(r *http.Request, tx *domain.Transaction) error {
	if err := validateTransaction(h.validate, tx); err != nil {
		return err
	}
	date, err := domain.CanonicalDate(tx.Date, h.loc)
	if err != nil {
		return fmt.Errorf("%w: invalid date %q", domain.ErrValidation, tx.Date)
	}
	tx.Date = date
	tx.CreatedAt = ""
	if err := h.repo.Insert(r.Context(), tx); err != nil {
		return err
	}
	h.catalog.Invalidate()
	return nil
}

// Recent handles GET /transactions/recent
func (h *TransactionsHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultRecentLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			middleware.WriteDomainError(w, r, h.log, "Invalid limit", fmt.Errorf("%w: limit must be an integer", domain.ErrValidation))
			return
		}
		limit = n
	}

	txs, err := h.repo.Recent(r.Context(), store.ClampLimit(limit))
	if err != nil {
		middleware.WriteDomainError(w, r, h.log, "Failed to list recent transactions", err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}

	middleware.WriteJSON(w, http.StatusOK, domain.RecentResponse{
		Success:      true,
		Count:        len(txs),
		Transactions: txs,
	})
}

// Delete handles DELETE /transactions/{id}
func (h *TransactionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		middleware.WriteDomainError(w, r, h.log, "Missing id", fmt.Errorf("%w: transaction id is required", domain.ErrValidation))
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		middleware.WriteDomainError(w, r, h.log, "Failed to delete transaction", err)
		return
	}
	h.catalog.Invalidate()

	middleware.WriteJSON(w, http.StatusOK, domain.DeleteResponse{
		Success: true,
		Message: fmt.Sprintf("transaction %s deleted", id),
		Deleted: 1,
	})
}

// DeleteAll handles DELETE /transactions?confirm=DELETE_ALL
func (h *TransactionsHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	confirm := r.URL.Query().Get("confirm")
	if confirm != domain.ConfirmDeleteAll {
		middleware.WriteDomainError(w, r, h.log, "Delete all not confirmed",
			fmt.Errorf("pass confirm=%s to delete every transaction: %w", domain.ConfirmDeleteAll, domain.ErrConfirmationRequired))
		return
	}

	n, err := h.repo.DeleteAll(r.Context(), confirm)
	if err != nil {
		middleware.WriteDomainError(w, r, h.log, "Failed to delete all transactions", err)
		return
	}
	h.catalog.Invalidate()
	h.log.Warn().Int64("deleted", n).Msg("All transactions deleted")

	middleware.WriteJSON(w, http.StatusOK, domain.DeleteResponse{
		Success: true,
		Message: fmt.Sprintf("%d transactions deleted", n),
		Deleted: n,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
	}
	return nil
}
