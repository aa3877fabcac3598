package pipeline

import (
	"context"

	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/ingest"
	"github.com/dvloznov/finanzas/internal/store"
)

// Submitter stores complete records one by one and reports each outcome.
// *ingest.Client satisfies it over HTTP; RepositorySubmitter in process.
type Submitter interface {
	SubmitBatch(ctx context.Context, txs []domain.Transaction) ([]ingest.Outcome, error)
}

// RepositorySubmitter inserts straight into a repository.
type RepositorySubmitter struct {
	Repo store.Repository
}

// SubmitBatch inserts every record independently.
func (s *RepositorySubmitter) SubmitBatch(ctx context.Context, txs []domain.Transaction) ([]ingest.Outcome, error) {
	outcomes := make([]ingest.Outcome, len(txs))
	for i := range txs {
		o := ingest.Outcome{Index: i, ID: txs[i].ID, Status: ingest.StatusInserted}
		if err := s.Repo.Insert(ctx, &txs[i]); err != nil {
			o.Status = ingest.StatusRejected
			o.Err = err
		}
		outcomes[i] = o
	}
	return outcomes, ctx.Err()
}

var (
	_ Submitter = (*RepositorySubmitter)(nil)
	_ Submitter = (*ingest.Client)(nil)
)
