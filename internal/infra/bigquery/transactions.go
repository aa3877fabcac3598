package bigquery

import (
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finanzas/internal/domain"
)

// TransactionRow mirrors one row of the transactions table.
type TransactionRow struct {
	ID   string         `bigquery:"id"`   // REQUIRED
	Date civil.DateTime `bigquery:"date"` // REQUIRED DATETIME

	Amount   float64 `bigquery:"amount"`   // REQUIRED, > 0
	Currency string  `bigquery:"currency"` // REQUIRED
	IsIncome bool    `bigquery:"is_income"`

	ExpenseType   bigquery.NullString `bigquery:"expense_type"`
	Category      bigquery.NullString `bigquery:"category"`
	PaymentMethod bigquery.NullString `bigquery:"payment_method"`
	MoneySource   bigquery.NullString `bigquery:"money_source"`
	Description   bigquery.NullString `bigquery:"description"`
	Notes         bigquery.NullString `bigquery:"notes"`

	ExchangeRate      bigquery.NullFloat64 `bigquery:"exchange_rate"`
	ConvertedAmount   bigquery.NullFloat64 `bigquery:"converted_amount"`
	ConvertedCurrency bigquery.NullString  `bigquery:"converted_currency"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

// TransactionSchema is the table layout EnsureTable creates.
var TransactionSchema = bigquery.Schema{
	{Name: "id", Type: bigquery.StringFieldType, Required: true},
	{Name: "date", Type: bigquery.DateTimeFieldType, Required: true},
	{Name: "amount", Type: bigquery.FloatFieldType, Required: true},
	{Name: "currency", Type: bigquery.StringFieldType, Required: true},
	{Name: "is_income", Type: bigquery.BooleanFieldType, Required: true},
	{Name: "expense_type", Type: bigquery.StringFieldType},
	{Name: "category", Type: bigquery.StringFieldType},
	{Name: "payment_method", Type: bigquery.StringFieldType},
	{Name: "money_source", Type: bigquery.StringFieldType},
	{Name: "description", Type: bigquery.StringFieldType},
	{Name: "notes", Type: bigquery.StringFieldType},
	{Name: "exchange_rate", Type: bigquery.FloatFieldType},
	{Name: "converted_amount", Type: bigquery.FloatFieldType},
	{Name: "converted_currency", Type: bigquery.StringFieldType},
	{Name: "created_ts", Type: bigquery.TimestampFieldType, Required: true},
}

// RowFromTransaction converts a complete transaction for insertion.
func RowFromTransaction(tx *domain.Transaction, createdTS time.Time) (*TransactionRow, error) {
	t, err := domain.ParseDate(tx.Date)
	if err != nil {
		return nil, fmt.Errorf("RowFromTransaction: invalid date %q: %w", tx.Date, err)
	}
	return &TransactionRow{
		ID:                tx.ID,
		Date:              civil.DateTimeOf(t),
		Amount:            tx.Amount,
		Currency:          tx.Currency,
		IsIncome:          tx.IsIncome,
		ExpenseType:       nullString(tx.ExpenseType),
		Category:          nullString(tx.Category),
		PaymentMethod:     nullString(tx.PaymentMethod),
		MoneySource:       nullString(tx.MoneySource),
		Description:       nullString(tx.Description),
		Notes:             nullString(tx.Notes),
		ExchangeRate:      nullFloat(tx.ExchangeRate),
		ConvertedAmount:   nullFloat(tx.ConvertedAmount),
		ConvertedCurrency: nullString(tx.ConvertedCurrency),
		CreatedTS:         createdTS.UTC(),
	}, nil
}

// Transaction converts a row back into the domain record.
func (r *TransactionRow) Transaction() domain.Transaction {
	tx := domain.Transaction{
		ID:                r.ID,
		Date:              domain.FormatDate(r.Date.In(time.UTC)),
		Amount:            r.Amount,
		Currency:          r.Currency,
		IsIncome:          r.IsIncome,
		ExpenseType:       r.ExpenseType.StringVal,
		Category:          r.Category.StringVal,
		PaymentMethod:     r.PaymentMethod.StringVal,
		MoneySource:       r.MoneySource.StringVal,
		Description:       r.Description.StringVal,
		Notes:             r.Notes.StringVal,
		ConvertedCurrency: r.ConvertedCurrency.StringVal,
	}
	if r.ExchangeRate.Valid {
		tx.ExchangeRate = domain.Float(r.ExchangeRate.Float64)
	}
	if r.ConvertedAmount.Valid {
		tx.ConvertedAmount = domain.Float(r.ConvertedAmount.Float64)
	}
	if !r.CreatedTS.IsZero() {
		tx.CreatedAt = domain.FormatDate(r.CreatedTS.UTC())
	}
	return tx
}

// params renders the row as named query parameters for DML inserts.
func (r *TransactionRow) params() []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "id", Value: r.ID},
		{Name: "date", Value: r.Date},
		{Name: "amount", Value: r.Amount},
		{Name: "currency", Value: r.Currency},
		{Name: "is_income", Value: r.IsIncome},
		{Name: "expense_type", Value: r.ExpenseType},
		{Name: "category", Value: r.Category},
		{Name: "payment_method", Value: r.PaymentMethod},
		{Name: "money_source", Value: r.MoneySource},
		{Name: "description", Value: r.Description},
		{Name: "notes", Value: r.Notes},
		{Name: "exchange_rate", Value: r.ExchangeRate},
		{Name: "converted_amount", Value: r.ConvertedAmount},
		{Name: "converted_currency", Value: r.ConvertedCurrency},
		{Name: "created_ts", Value: r.CreatedTS},
	}
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func nullFloat(f *float64) bigquery.NullFloat64 {
	if f == nil {
		return bigquery.NullFloat64{}
	}
	return bigquery.NullFloat64{Float64: *f, Valid: true}
}
