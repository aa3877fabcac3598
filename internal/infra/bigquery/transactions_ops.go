package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finanzas/internal/domain"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const transactionColumns = `
	id, date, amount, currency, is_income,
	expense_type, category, payment_method, money_source,
	description, notes,
	exchange_rate, converted_amount, converted_currency,
	created_ts`

// InsertTransactionWithClient inserts a row unless its id is already taken.
// The conditional DML keeps the insert atomic with respect to the id check.
func InsertTransactionWithClient(ctx context.Context, client *bigquery.Client, table Table, row *TransactionRow) error {
	q := client.Query(`
		INSERT INTO ` + table.FullName() + ` (` + transactionColumns + `)
		SELECT
			@id, @date, @amount, @currency, @is_income,
			@expense_type, @category, @payment_method, @money_source,
			@description, @notes,
			@exchange_rate, @converted_amount, @converted_currency,
			@created_ts
		FROM UNNEST([1])
		WHERE NOT EXISTS (
			SELECT 1 FROM ` + table.FullName() + ` WHERE id = @id
		)
	`)
	q.Parameters = row.params()

	affected, err := runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("InsertTransactionWithClient: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("InsertTransactionWithClient: id %q: %w", row.ID, domain.ErrDuplicateID)
	}
	return nil
}

// GetTransactionWithClient loads one transaction by id.
func GetTransactionWithClient(ctx context.Context, client *bigquery.Client, table Table, id string) (*domain.Transaction, error) {
	q := client.Query(`
		SELECT ` + transactionColumns + `
		FROM ` + table.FullName() + `
		WHERE id = @id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "id", Value: id}}

	rows, err := readTransactions(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("GetTransactionWithClient: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("GetTransactionWithClient: id %q: %w", id, domain.ErrNotFound)
	}
	return &rows[0], nil
}

// RecentTransactionsWithClient returns the newest transactions first.
func RecentTransactionsWithClient(ctx context.Context, client *bigquery.Client, table Table, limit int) ([]domain.Transaction, error) {
	q := client.Query(`
		SELECT ` + transactionColumns + `
		FROM ` + table.FullName() + `
		ORDER BY date DESC, created_ts DESC
		LIMIT @limit
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: limit}}

	rows, err := readTransactions(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("RecentTransactionsWithClient: %w", err)
	}
	return rows, nil
}

// EnsureTableWithClient creates the dataset and table when missing.
func EnsureTableWithClient(ctx context.Context, client *bigquery.Client, table Table) error {
	ds := client.DatasetInProject(table.ProjectID, table.DatasetID)
	if _, err := ds.Metadata(ctx); err != nil {
		if err := ds.Create(ctx, &bigquery.DatasetMetadata{}); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("EnsureTableWithClient: creating dataset: %w", err)
		}
	}

	t := ds.Table(transactionsTable)
	if _, err := t.Metadata(ctx); err == nil {
		return nil
	}
	meta := &bigquery.TableMetadata{
		Schema: TransactionSchema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.MonthPartitioningType,
			Field: "date",
		},
		Clustering: &bigquery.Clustering{Fields: []string{"is_income", "category"}},
	}
	if err := t.Create(ctx, meta); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("EnsureTableWithClient: creating table: %w", err)
	}
	return nil
}

func readTransactions(ctx context.Context, q *bigquery.Query) ([]domain.Transaction, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	var out []domain.Transaction
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		out = append(out, row.Transaction())
	}
	return out, nil
}

// runDML runs a DML statement and reports the number of affected rows.
func runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job failed: %w", err)
	}

	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return stats.NumDMLAffectedRows, nil
	}
	return 0, nil
}

func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}
