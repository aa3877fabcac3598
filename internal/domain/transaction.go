package domain

import (
	"strings"
	"time"
)

const (
	// DateLayout is the sortable textual form every stored date uses.
	DateLayout = "2006-01-02 15:04:05"

	// HomeCurrency is assumed when a record names no currency.
	HomeCurrency = "ARS"

	// ExpenseTypeFixed and ExpenseTypeVariable are the only expense classifiers.
	ExpenseTypeFixed    = "fixed"
	ExpenseTypeVariable = "variable"
)

// SupportedCurrencies lists the currency codes the persistence boundary accepts.
var SupportedCurrencies = []string{"ARS", "USD", "CAD", "ETH", "BTC"}

// IsSupportedCurrency reports whether code (any case) is accepted.
func IsSupportedCurrency(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range SupportedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}

// Transaction is a single recorded financial event.
// Direction is carried by IsIncome; Amount is always positive.
// Empty strings and nil pointers mean the field is absent.
type Transaction struct {
	ID       string  `json:"id" validate:"required,max=128"`
	Date     string  `json:"date" validate:"required,txdate"`
	Amount   float64 `json:"amount" validate:"gt=0"`
	Currency string  `json:"currency" validate:"required,currency"`
	IsIncome bool    `json:"is_income"`

	Category    string `json:"category,omitempty" validate:"max=100"`
	ExpenseType string `json:"expense_type,omitempty" validate:"omitempty,oneof=fixed variable"`

	PaymentMethod string `json:"payment_method,omitempty" validate:"max=100"`
	MoneySource   string `json:"money_source,omitempty" validate:"max=100"`

	Description string `json:"description,omitempty" validate:"max=1000"`
	Notes       string `json:"notes,omitempty" validate:"max=2000"`

	ExchangeRate      *float64 `json:"exchange_rate,omitempty" validate:"omitempty,gt=0"`
	ConvertedAmount   *float64 `json:"converted_amount,omitempty" validate:"omitempty,gt=0"`
	ConvertedCurrency string   `json:"converted_currency,omitempty" validate:"omitempty,currency"`

	// CreatedAt is assigned by the store and is not part of record equality.
	CreatedAt string `json:"created_at,omitempty"`
}

// Time parses Date using DateLayout.
func (t *Transaction) Time() (time.Time, error) {
	return time.Parse(DateLayout, t.Date)
}

// Kind returns "income" or "expense".
func (t *Transaction) Kind() string {
	if t.IsIncome {
		return "income"
	}
	return "expense"
}

// Equal compares every field except storage-assigned metadata.
func (t *Transaction) Equal(o *Transaction) bool {
	if t == nil || o == nil {
		return t == o
	}
	a, b := *t, *o
	a.CreatedAt, b.CreatedAt = "", ""
	if !floatPtrEqual(a.ExchangeRate, b.ExchangeRate) || !floatPtrEqual(a.ConvertedAmount, b.ConvertedAmount) {
		return false
	}
	a.ExchangeRate, b.ExchangeRate = nil, nil
	a.ConvertedAmount, b.ConvertedAmount = nil, nil
	return a == b
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Float returns a pointer to v, for optional numeric fields.
func Float(v float64) *float64 {
	return &v
}

// acceptedDateLayouts are tried in order when parsing a supplied date.
var acceptedDateLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate parses s in any accepted layout.
func ParseDate(s string) (time.Time, error) {
	t, _, err := parseDate(s)
	return t, err
}

// parseDate also reports whether s carried a UTC offset.
func parseDate(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range acceptedDateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, layout == time.RFC3339Nano, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, false, firstErr
}

// CanonicalDate parses s and renders it in DateLayout. A value with a UTC
// offset is converted to loc first; one without is kept as wall-clock time.
// A nil loc means UTC.
func CanonicalDate(s string, loc *time.Location) (string, error) {
	t, zoned, err := parseDate(s)
	if err != nil {
		return "", err
	}
	if zoned {
		if loc == nil {
			loc = time.UTC
		}
		t = t.In(loc)
	}
	return FormatDate(t), nil
}

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
