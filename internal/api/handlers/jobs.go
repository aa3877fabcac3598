package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/finanzas/internal/api/middleware"
	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/jobs"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// JobsHandler accepts free-text ingestion and reports job progress.
type JobsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	validate  *validator.Validate
	log       zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(publisher jobs.Publisher, store jobs.JobStore, validate *validator.Validate, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{publisher: publisher, store: store, validate: validate, log: log}
}

// SubmitText handles POST /ingest/text
func (h *JobsHandler) SubmitText(w http.ResponseWriter, r *http.Request) {
	var req domain.TextIngestRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteDomainError(w, r, h.log, "Failed to decode text request", err)
		return
	}
	if err := validateRequest(h.validate, &req); err != nil {
		middleware.WriteDomainError(w, r, h.log, "Invalid text request", err)
		return
	}

	job := &jobs.IngestTextJob{
		JobID:     uuid.New().String(),
		Text:      req.Text,
		DryRun:    req.DryRun,
		Status:    jobs.JobStatusPending,
		CreatedAt: time.Now(),
	}
	// Workers own the job once it is published.
	resp := job.Response()

	if err := h.publisher.PublishIngestText(r.Context(), job); err != nil {
		middleware.WriteDomainError(w, r, h.log, "Failed to enqueue job", err)
		return
	}
	h.log.Info().Str("job_id", resp.ID).Bool("dry_run", req.DryRun).Msg("Text ingestion queued")

	middleware.WriteJSON(w, http.StatusAccepted, resp)
}

// GetJob handles GET /jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteDomainError(w, r, h.log, "Failed to load job", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job.Response())
}

// ListJobs handles GET /jobs?status=&limit=
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := jobs.JobFilter{Status: jobs.JobStatus(r.URL.Query().Get("status")), Limit: 50}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			middleware.WriteDomainError(w, r, h.log, "Invalid limit", fmt.Errorf("%w: limit must be a positive integer", domain.ErrValidation))
			return
		}
		filter.Limit = n
	}

	list, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		middleware.WriteDomainError(w, r, h.log, "Failed to list jobs", err)
		return
	}

	out := make([]domain.JobResponse, 0, len(list))
	for _, j := range list {
		out = append(out, j.Response())
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}
