package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/jobs"
)

// Store is an in-memory JobStore. Data is lost on restart.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.IngestTextJob
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*jobs.IngestTextJob)}
}

// SaveJob stores a copy of job.
func (s *Store) SaveJob(ctx context.Context, job *jobs.IngestTextJob) error {
	if job.JobID == "" {
		return fmt.Errorf("SaveJob: %w: job ID is required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = clone(job)
	return nil
}

// GetJob returns a copy of the stored job.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.IngestTextJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("GetJob: job %s: %w", jobID, domain.ErrNotFound)
	}
	return clone(job), nil
}

// ListJobs returns copies of matching jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.IngestTextJob, error) {
	s.mu.RLock()
	result := make([]*jobs.IngestTextJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		result = append(result, clone(job))
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.IngestTextJob{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// UpdateJobStatus sets the status and, when given, the error message.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("UpdateJobStatus: job %s: %w", jobID, domain.ErrNotFound)
	}
	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	return nil
}

// clone copies the job including its slices so callers cannot alias stored state.
func clone(job *jobs.IngestTextJob) *jobs.IngestTextJob {
	c := *job
	c.Records = append([]domain.Transaction(nil), job.Records...)
	c.PendingIDs = append([]string(nil), job.PendingIDs...)
	c.StoredIDs = append([]string(nil), job.StoredIDs...)
	c.Warnings = append([]string(nil), job.Warnings...)
	return &c
}

var _ jobs.JobStore = (*Store)(nil)
