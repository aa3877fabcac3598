package domain

import "fmt"

// Stats is the aggregate view over all stored transactions.
type Stats struct {
	TotalIncome       float64 `json:"total_income"`
	TotalExpenses     float64 `json:"total_expenses"`
	Balance           float64 `json:"balance"`
	TotalTransactions int     `json:"total_transactions"`
	ExpenseCount      int     `json:"expense_count"`
	IncomeCount       int     `json:"income_count"`
}

// BreakdownField names a column expenses can be grouped by.
type BreakdownField string

const (
	ByCategory      BreakdownField = "category"
	ByPaymentMethod BreakdownField = "payment_method"
	ByMoneySource   BreakdownField = "money_source"
	// ByExpenseType splits fixed from variable spending.
	ByExpenseType BreakdownField = "expense_type"
)

// ParseBreakdownField validates a user-supplied grouping column.
func ParseBreakdownField(s string) (BreakdownField, error) {
	switch BreakdownField(s) {
	case ByCategory, ByPaymentMethod, ByMoneySource, ByExpenseType:
		return BreakdownField(s), nil
	case "":
		return ByCategory, nil
	}
	return "", fmt.Errorf("%w: unknown breakdown %q", ErrValidation, s)
}

// BreakdownRow is one group of expenses. Key is the stored value verbatim;
// rows with no value are grouped under an empty key.
type BreakdownRow struct {
	Key     string  `json:"key"`
	Total   float64 `json:"total"`
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

// Catalog holds advisory suggestion lists. Nothing enforces membership.
type Catalog struct {
	Categories     []string `json:"categories"`
	PaymentMethods []string `json:"payment_methods"`
	MoneySources   []string `json:"money_sources"`
}

// QueryResult is the tabular answer to a read-only query.
type QueryResult struct {
	Columns  []string        `json:"columns"`
	Rows     [][]interface{} `json:"rows"`
	RowCount int             `json:"row_count"`
}

// Health describes service and database reachability.
type Health struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Timestamp string `json:"timestamp"`
}
