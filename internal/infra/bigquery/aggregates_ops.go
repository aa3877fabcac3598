package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/sqlguard"
	"google.golang.org/api/iterator"
)

var breakdownColumns = map[domain.BreakdownField]string{
	domain.ByCategory:      "category",
	domain.ByPaymentMethod: "payment_method",
	domain.ByMoneySource:   "money_source",
	domain.ByExpenseType:   "expense_type",
}

type statsRow struct {
	TotalIncome   float64 `bigquery:"total_income"`
	TotalExpenses float64 `bigquery:"total_expenses"`
	Total         int64   `bigquery:"total_transactions"`
	ExpenseCount  int64   `bigquery:"expense_count"`
	IncomeCount   int64   `bigquery:"income_count"`
}

// StatsWithClient recomputes the aggregate view over the whole table.
func StatsWithClient(ctx context.Context, client *bigquery.Client, table Table) (domain.Stats, error) {
	q := client.Query(`
		SELECT
			COALESCE(SUM(IF(is_income, amount, 0)), 0) AS total_income,
			COALESCE(SUM(IF(is_income, 0, amount)), 0) AS total_expenses,
			COUNT(*) AS total_transactions,
			COUNTIF(NOT is_income) AS expense_count,
			COUNTIF(is_income) AS income_count
		FROM ` + table.FullName())

	it, err := q.Read(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("StatsWithClient: query read: %w", err)
	}
	var row statsRow
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return domain.Stats{}, fmt.Errorf("StatsWithClient: iter next: %w", err)
	}

	return domain.Stats{
		TotalIncome:       row.TotalIncome,
		TotalExpenses:     row.TotalExpenses,
		Balance:           row.TotalIncome - row.TotalExpenses,
		TotalTransactions: int(row.Total),
		ExpenseCount:      int(row.ExpenseCount),
		IncomeCount:       int(row.IncomeCount),
	}, nil
}

type breakdownRow struct {
	Key     string  `bigquery:"key"`
	Total   float64 `bigquery:"total"`
	Count   int64   `bigquery:"count"`
	Average float64 `bigquery:"average"`
}

// BreakdownWithClient groups expenses by a whitelisted column.
func BreakdownWithClient(ctx context.Context, client *bigquery.Client, table Table, by domain.BreakdownField) ([]domain.BreakdownRow, error) {
	col, ok := breakdownColumns[by]
	if !ok {
		return nil, fmt.Errorf("BreakdownWithClient: %w: unknown breakdown %q", domain.ErrValidation, by)
	}

	q := client.Query(`
		SELECT
			COALESCE(` + col + `, '') AS key,
			SUM(amount) AS total,
			COUNT(*) AS count,
			AVG(amount) AS average
		FROM ` + table.FullName() + `
		WHERE NOT is_income
		GROUP BY key
		ORDER BY total DESC
	`)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("BreakdownWithClient: query read: %w", err)
	}

	var out []domain.BreakdownRow
	for {
		var r breakdownRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("BreakdownWithClient: iter next: %w", err)
		}
		out = append(out, domain.BreakdownRow{Key: r.Key, Total: r.Total, Count: int(r.Count), Average: r.Average})
	}
	return out, nil
}

// CatalogWithClient lists the distinct advisory values stored so far.
func CatalogWithClient(ctx context.Context, client *bigquery.Client, table Table) (domain.Catalog, error) {
	var c domain.Catalog
	targets := []struct {
		col string
		dst *[]string
	}{
		{"category", &c.Categories},
		{"payment_method", &c.PaymentMethods},
		{"money_source", &c.MoneySources},
	}
	for _, t := range targets {
		q := client.Query(`
			SELECT DISTINCT ` + t.col + ` AS value
			FROM ` + table.FullName() + `
			WHERE ` + t.col + ` IS NOT NULL AND ` + t.col + ` != ''
			ORDER BY value
		`)
		it, err := q.Read(ctx)
		if err != nil {
			return domain.Catalog{}, fmt.Errorf("CatalogWithClient: %s: query read: %w", t.col, err)
		}
		for {
			var row []bigquery.Value
			err := it.Next(&row)
			if err == iterator.Done {
				break
			}
			if err != nil {
				return domain.Catalog{}, fmt.Errorf("CatalogWithClient: %s: iter next: %w", t.col, err)
			}
			if s, ok := row[0].(string); ok {
				*t.dst = append(*t.dst, s)
			}
		}
	}
	return c, nil
}

// QueryWithClient runs a guarded read-only SELECT and returns the rows as
// generic values.
func QueryWithClient(ctx context.Context, client *bigquery.Client, sql string) (domain.QueryResult, error) {
	sql = sqlguard.Clean(sql)
	if err := sqlguard.CheckReadOnly(sql); err != nil {
		return domain.QueryResult{}, fmt.Errorf("QueryWithClient: %w", err)
	}

	it, err := client.Query(sql).Read(ctx)
	if err != nil {
		return domain.QueryResult{}, fmt.Errorf("QueryWithClient: %w: %v", domain.ErrValidation, err)
	}

	res := domain.QueryResult{Rows: [][]interface{}{}}
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return domain.QueryResult{}, fmt.Errorf("QueryWithClient: iter next: %w", err)
		}
		values := make([]interface{}, len(row))
		for i, v := range row {
			values[i] = v
		}
		res.Rows = append(res.Rows, values)
	}
	// Schema is populated once Next has been called.
	res.Columns = make([]string, 0, len(it.Schema))
	for _, f := range it.Schema {
		res.Columns = append(res.Columns, f.Name)
	}
	res.RowCount = len(res.Rows)
	return res, nil
}
