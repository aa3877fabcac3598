package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finanzas/internal/domain"
)

// DeleteTransactionWithClient removes one transaction by id.
func DeleteTransactionWithClient(ctx context.Context, client *bigquery.Client, table Table, id string) error {
	q := client.Query(`
		DELETE FROM ` + table.FullName() + `
		WHERE id = @id
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "id", Value: id}}

	affected, err := runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("DeleteTransactionWithClient: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("DeleteTransactionWithClient: id %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// DeleteAllTransactionsWithClient truncates the table once confirm matches
// domain.ConfirmDeleteAll.
func DeleteAllTransactionsWithClient(ctx context.Context, client *bigquery.Client, table Table, confirm string) (int64, error) {
	if confirm != domain.ConfirmDeleteAll {
		return 0, fmt.Errorf("DeleteAllTransactionsWithClient: %w", domain.ErrConfirmationRequired)
	}

	// BigQuery requires a WHERE clause on DELETE.
	q := client.Query(`DELETE FROM ` + table.FullName() + ` WHERE TRUE`)
	affected, err := runDML(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("DeleteAllTransactionsWithClient: %w", err)
	}
	return affected, nil
}
