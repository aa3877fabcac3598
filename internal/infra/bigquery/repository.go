package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/store"
)

const transactionsTable = "transactions"

// Table identifies the transactions table.
type Table struct {
	ProjectID string
	DatasetID string
}

// FullName renders the backtick-quoted table reference used in SQL.
func (t Table) FullName() string {
	return "`" + t.ProjectID + "." + t.DatasetID + "." + transactionsTable + "`"
}

// BigQueryRepository is the warehouse-backed implementation of
// store.Repository. It holds a shared BigQuery client to avoid creating a new
// connection for each operation.
type BigQueryRepository struct {
	client *bigquery.Client
	table  Table
	now    func() time.Time
}

// NewBigQueryRepository creates a repository with a shared client.
func NewBigQueryRepository(ctx context.Context, projectID, datasetID string) (*BigQueryRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryRepository: creating client: %w", err)
	}
	return NewBigQueryRepositoryWithClient(client, Table{ProjectID: projectID, DatasetID: datasetID}), nil
}

// NewBigQueryRepositoryWithClient wraps an existing client.
func NewBigQueryRepositoryWithClient(client *bigquery.Client, table Table) *BigQueryRepository {
	return &BigQueryRepository{client: client, table: table, now: time.Now}
}

// Close closes the BigQuery client connection.
func (r *BigQueryRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// EnsureTable creates the dataset table when it does not exist yet.
func (r *BigQueryRepository) EnsureTable(ctx context.Context) error {
	return EnsureTableWithClient(ctx, r.client, r.table)
}

// Insert delegates to InsertTransactionWithClient with the shared client.
func (r *BigQueryRepository) Insert(ctx context.Context, tx *domain.Transaction) error {
	row, err := RowFromTransaction(tx, r.now())
	if err != nil {
		return fmt.Errorf("Insert: %w: %v", domain.ErrValidation, err)
	}
	return InsertTransactionWithClient(ctx, r.client, r.table, row)
}

// Get delegates to GetTransactionWithClient with the shared client.
func (r *BigQueryRepository) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	return GetTransactionWithClient(ctx, r.client, r.table, id)
}

// Delete delegates to DeleteTransactionWithClient with the shared client.
func (r *BigQueryRepository) Delete(ctx context.Context, id string) error {
	return DeleteTransactionWithClient(ctx, r.client, r.table, id)
}

// DeleteAll delegates to DeleteAllTransactionsWithClient with the shared client.
func (r *BigQueryRepository) DeleteAll(ctx context.Context, confirm string) (int64, error) {
	return DeleteAllTransactionsWithClient(ctx, r.client, r.table, confirm)
}

// Stats delegates to StatsWithClient with the shared client.
func (r *BigQueryRepository) Stats(ctx context.Context) (domain.Stats, error) {
	return StatsWithClient(ctx, r.client, r.table)
}

// Recent delegates to RecentTransactionsWithClient with the shared client.
func (r *BigQueryRepository) Recent(ctx context.Context, limit int) ([]domain.Transaction, error) {
	return RecentTransactionsWithClient(ctx, r.client, r.table, store.ClampLimit(limit))
}

// Breakdown delegates to BreakdownWithClient with the shared client.
func (r *BigQueryRepository) Breakdown(ctx context.Context, by domain.BreakdownField) ([]domain.BreakdownRow, error) {
	return BreakdownWithClient(ctx, r.client, r.table, by)
}

// Catalog delegates to CatalogWithClient with the shared client.
func (r *BigQueryRepository) Catalog(ctx context.Context) (domain.Catalog, error) {
	return CatalogWithClient(ctx, r.client, r.table)
}

// Query delegates to QueryWithClient with the shared client.
func (r *BigQueryRepository) Query(ctx context.Context, sql string) (domain.QueryResult, error) {
	return QueryWithClient(ctx, r.client, sql)
}

// Ping runs a trivial query.
func (r *BigQueryRepository) Ping(ctx context.Context) error {
	it, err := r.client.Query("SELECT 1").Read(ctx)
	if err != nil {
		return fmt.Errorf("Ping: query read: %w", err)
	}
	var row []bigquery.Value
	if err := it.Next(&row); err != nil {
		return fmt.Errorf("Ping: iter next: %w", err)
	}
	return nil
}

var _ store.Repository = (*BigQueryRepository)(nil)
