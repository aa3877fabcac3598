package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/ingest"
	"github.com/dvloznov/finanzas/internal/jobs"
	"github.com/rs/zerolog"
)

// NewJobHandler processes text-ingestion jobs. The first attempt extracts
// and normalizes the records and keeps them on the job; later attempts only
// resubmit those records, so ids never change between attempts.
func NewJobHandler(d Deps, log zerolog.Logger) jobs.JobHandler {
	submitter := d.Submitter
	d.Submitter = nil
	prepare := NewIngestionPipeline(d, true)

	return func(ctx context.Context, job jobs.Job) error {
		j, ok := job.(*jobs.IngestTextJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}
		jobLog := log.With().Str("job_id", j.JobID).Int("attempt", j.RetryCount+1).Logger()

		if len(j.Records) == 0 {
			state := &PipelineState{IngestionID: j.JobID, Text: j.Text, ArchiveURI: j.ArchiveURI}
			if err := prepare.Execute(ctx, state); err != nil {
				return err
			}
			j.Records = state.Records
			j.ArchiveURI = state.ArchiveURI
			j.Warnings = append(state.Warnings, rejectionWarnings(state.Rejected)...)
			jobLog.Info().Int("records", len(j.Records)).Int("rejected", len(state.Rejected)).Msg("Extracted transactions")
		}

		if j.DryRun || submitter == nil {
			return nil
		}

		// Retries resubmit only the pending records. A duplicate among them was
		// stored by an attempt whose answer was lost.
		batch, resubmit := j.Records, len(j.PendingIDs) > 0
		if resubmit {
			batch = pendingRecords(j.Records, j.PendingIDs)
		}
		outcomes, err := submitter.SubmitBatch(ctx, batch)
		if err != nil {
			if !resubmit {
				j.PendingIDs = recordIDs(j.Records)
			}
			return err
		}
		if resubmit {
			outcomes = ingest.AcceptDuplicates(outcomes)
		}

		var retryErr error
		pending := make([]string, 0)
		for _, o := range outcomes {
			if o.OK() {
				j.StoredIDs = append(j.StoredIDs, o.ID)
				continue
			}
			if jobs.Retryable(o.Err) {
				pending = append(pending, o.ID)
				retryErr = o.Err
				continue
			}
			j.Warnings = append(j.Warnings, fmt.Sprintf("record %s rejected: %s", o.ID, domain.UserMessage(o.Err)))
		}
		j.PendingIDs = pending

		jobLog.Info().Str("summary", ingest.Summary(outcomes)).Msg("Submitted transactions")
		if retryErr != nil {
			return fmt.Errorf("%d of %d records not stored: %w", len(pending), len(j.Records), retryErr)
		}
		return nil
	}
}

func recordIDs(txs []domain.Transaction) []string {
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	return ids
}

func pendingRecords(txs []domain.Transaction, ids []string) []domain.Transaction {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Transaction
	for _, tx := range txs {
		if want[tx.ID] {
			out = append(out, tx)
		}
	}
	return out
}

func rejectionWarnings(rejected []Rejection) []string {
	out := make([]string, 0, len(rejected))
	for _, r := range rejected {
		out = append(out, fmt.Sprintf("record %d rejected: %s", r.Index+1, domain.UserMessage(r.Err)))
	}
	return out
}
