package jobs

import (
	"context"
	"time"

	"github.com/dvloznov/finanzas/internal/domain"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeIngestText turns free text into stored transactions.
	JobTypeIngestText JobType = "ingest_text"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is scheduled again.
	JobStatusRetrying JobStatus = "retrying"
)

// IngestTextJob extracts, validates, normalizes and stores the transactions
// described by Text.
type IngestTextJob struct {
	JobID string `json:"job_id"`
	Text  string `json:"text"`

	// ArchiveURI points at the archived copy of Text, when archiving is on.
	ArchiveURI string `json:"archive_uri,omitempty"`

	// DryRun stops before anything is stored.
	DryRun bool `json:"dry_run,omitempty"`

	// Records are the normalized transactions of the first successful
	// extraction. Retries submit these again so ids stay stable.
	Records []domain.Transaction `json:"records,omitempty"`

	// PendingIDs are the records whose outcome is still unknown after the
	// last attempt. Only these are resubmitted.
	PendingIDs []string `json:"pending_ids,omitempty"`

	StoredIDs []string `json:"stored_ids,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *IngestTextJob) GetID() string        { return j.JobID }
func (j *IngestTextJob) GetType() JobType     { return JobTypeIngestText }
func (j *IngestTextJob) GetStatus() JobStatus { return j.Status }

// Response renders the job for the HTTP API.
func (j *IngestTextJob) Response() domain.JobResponse {
	return domain.JobResponse{
		ID:        j.JobID,
		Status:    string(j.Status),
		Attempts:  j.RetryCount + 1,
		Error:     j.Error,
		StoredIDs: j.StoredIDs,
		Warnings:  j.Warnings,
	}
}

// Publisher enqueues jobs.
type Publisher interface {
	PublishIngestText(ctx context.Context, job *IngestTextJob) error
	Close() error
}

// Consumer processes queued jobs.
type Consumer interface {
	// Start launches the workers and returns immediately.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error schedules a retry until the
// job runs out of attempts. Handlers may update the job in place; the queue
// persists it after every attempt.
type JobHandler func(ctx context.Context, job Job) error

// JobStore keeps job state for status queries.
type JobStore interface {
	SaveJob(ctx context.Context, job *IngestTextJob) error

	// GetJob returns a copy of the job or an error wrapping domain.ErrNotFound.
	GetJob(ctx context.Context, jobID string) (*IngestTextJob, error)

	ListJobs(ctx context.Context, filter JobFilter) ([]*IngestTextJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	Status JobStatus
	Limit  int
	Offset int
}
