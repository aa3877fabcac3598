package store

import (
	"context"
	"sort"

	"github.com/dvloznov/finanzas/internal/domain"
)

// Repository is the persistence boundary for transactions.
type Repository interface {
	// Insert stores a complete transaction. A taken id fails with
	// domain.ErrDuplicateID and leaves the stored record untouched.
	Insert(ctx context.Context, tx *domain.Transaction) error

	// Get returns one transaction or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Transaction, error)

	// Delete removes one transaction or fails with domain.ErrNotFound.
	Delete(ctx context.Context, id string) error

	// DeleteAll removes every transaction when confirm equals
	// domain.ConfirmDeleteAll and returns the number removed.
	DeleteAll(ctx context.Context, confirm string) (int64, error)

	// Stats recomputes the aggregate view from the stored rows.
	Stats(ctx context.Context) (domain.Stats, error)

	// Recent returns up to limit transactions, most recent first.
	Recent(ctx context.Context, limit int) ([]domain.Transaction, error)

	// Breakdown groups expenses by the given column verbatim.
	Breakdown(ctx context.Context, by domain.BreakdownField) ([]domain.BreakdownRow, error)

	// Catalog lists the distinct values seen for the advisory columns.
	Catalog(ctx context.Context) (domain.Catalog, error)

	// Query runs a read-only SELECT.
	Query(ctx context.Context, sql string) (domain.QueryResult, error)

	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// DefaultRecentLimit is used when a caller asks for a non-positive limit.
const DefaultRecentLimit = 10

// MaxRecentLimit caps a single recent-transactions read.
const MaxRecentLimit = 500

// ClampLimit applies DefaultRecentLimit and MaxRecentLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}

// Suggestions seed the advisory catalog before any transaction exists.
var Suggestions = domain.Catalog{
	Categories:     []string{"food", "housing", "transport", "entertainment", "health", "shopping", "income", "other"},
	PaymentMethods: []string{"cash", "debit", "credit", "transfer"},
	MoneySources:   []string{"salary", "savings"},
}

// MergeCatalog returns the sorted union of the built-in suggestions and the
// values observed in storage.
func MergeCatalog(observed domain.Catalog) domain.Catalog {
	return domain.Catalog{
		Categories:     union(Suggestions.Categories, observed.Categories),
		PaymentMethods: union(Suggestions.PaymentMethods, observed.PaymentMethods),
		MoneySources:   union(Suggestions.MoneySources, observed.MoneySources),
	}
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
