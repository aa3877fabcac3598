package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/shopspring/decimal"
)

// Mode decides what happens to unrecognized keys.
type Mode int

const (
	// Lenient ignores unrecognized keys. Used for model-originated text.
	Lenient Mode = iota
	// Strict rejects unrecognized keys. Used for programmatic imports.
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "lenient"
}

// ParseMode maps "strict"/"lenient" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return Strict, nil
	case "lenient", "":
		return Lenient, nil
	}
	return Lenient, fmt.Errorf("unknown validation mode %q", s)
}

// Minimum absolute and relative slack allowed between converted_amount and
// amount * exchange_rate.
var (
	conversionAbsTolerance = decimal.RequireFromString("0.01")
	conversionRelTolerance = decimal.RequireFromString("0.01")
)

// Result is a validated, not yet normalized record.
type Result struct {
	Transaction domain.Transaction
	// IncomeSet reports whether the input carried an income flag.
	IncomeSet bool
	// Ignored lists unrecognized keys dropped in lenient mode.
	Ignored []string
	// Warnings are advisory data-quality notes.
	Warnings []string
}

// Validator turns RawInput into a Transaction-shaped record.
type Validator struct {
	mode Mode
}

// NewValidator creates a validator using the given mode.
func NewValidator(mode Mode) *Validator {
	return &Validator{mode: mode}
}

// Validate checks every present field and returns either a record or a
// *domain.ValidationError listing every malformed field.
func (v *Validator) Validate(in RawInput) (*Result, error) {
	if in.Kind() != KindMap {
		return nil, &domain.ValidationError{Fields: []domain.FieldError{{
			Field:   "record",
			Kind:    domain.InvalidFieldType,
			Message: fmt.Sprintf("record is %s, want map", in.Kind()),
		}}}
	}

	values, ignored, unknown := v.collect(in)

	var errs []domain.FieldError
	for _, key := range unknown {
		errs = append(errs, domain.FieldError{
			Field:   key,
			Kind:    domain.InvalidFieldType,
			Message: "unrecognized field",
		})
	}

	res := &Result{Ignored: ignored}
	tx := &res.Transaction

	amountRaw, ok := values[FieldAmount]
	if !ok || amountRaw.IsNull() {
		errs = append(errs, domain.FieldError{
			Field:   string(FieldAmount),
			Kind:    domain.MissingRequiredField,
			Message: "amount is required",
		})
	}

	for _, field := range fieldOrder {
		raw, ok := values[field]
		if !ok || raw.IsNull() {
			continue
		}
		if fe := assign(tx, res, field, raw); fe != nil {
			errs = append(errs, *fe)
		}
	}

	if tx.IsIncome && tx.ExpenseType != "" {
		res.Warnings = append(res.Warnings, "expense_type is only meaningful for expenses; dropped")
		tx.ExpenseType = ""
	}

	if fe, warn := v.checkConversion(tx); fe != nil {
		errs = append(errs, *fe)
	} else if warn != "" {
		res.Warnings = append(res.Warnings, warn)
	}

	if len(errs) > 0 {
		return nil, &domain.ValidationError{Fields: errs}
	}
	return res, nil
}

// collect resolves input keys to fields. The first table entry wins when
// several keys target the same field.
func (v *Validator) collect(in RawInput) (map[Field]RawInput, []string, []string) {
	byKey := make(map[string]RawInput)
	var ignored, unknown []string
	for _, key := range in.Keys() {
		raw, _ := in.Lookup(key)
		norm := strings.ToLower(strings.TrimSpace(key))
		if _, ok := FieldForKey(norm); !ok {
			if storageOnlyKeys[norm] {
				continue
			}
			if v.mode == Strict {
				unknown = append(unknown, key)
			} else {
				ignored = append(ignored, key)
			}
			continue
		}
		byKey[norm] = raw
	}

	values := make(map[Field]RawInput)
	for _, km := range KeyTable {
		raw, ok := byKey[km.Key]
		if !ok {
			continue
		}
		if _, taken := values[km.Field]; taken {
			continue
		}
		values[km.Field] = raw
	}
	return values, ignored, unknown
}

func assign(tx *domain.Transaction, res *Result, field Field, raw RawInput) *domain.FieldError {
	switch fieldKinds[field] {
	case valueNumber:
		f, fe := parseNumber(field, raw)
		if fe != nil {
			return fe
		}
		switch field {
		case FieldAmount:
			if f <= 0 {
				return &domain.FieldError{Field: string(field), Kind: domain.InvalidFieldType, Message: fmt.Sprintf("amount must be a positive number, got %v", f)}
			}
			tx.Amount = f
		case FieldExchangeRate:
			if f <= 0 {
				return outOfRange(field, "must be greater than 0")
			}
			tx.ExchangeRate = domain.Float(f)
		case FieldConvertedAmount:
			if f <= 0 {
				return outOfRange(field, "must be greater than 0")
			}
			tx.ConvertedAmount = domain.Float(f)
		}

	case valueBool:
		b, fe := parseBool(field, raw)
		if fe != nil {
			return fe
		}
		tx.IsIncome = b
		res.IncomeSet = true

	case valueCurrency:
		s, fe := parseText(field, raw)
		if fe != nil {
			return fe
		}
		if s == "" {
			return nil
		}
		code := strings.ToUpper(s)
		if !domain.IsSupportedCurrency(code) {
			return outOfRange(field, fmt.Sprintf("unsupported currency %q, want one of %s", s, strings.Join(domain.SupportedCurrencies, ", ")))
		}
		if field == FieldCurrency {
			tx.Currency = code
		} else {
			tx.ConvertedCurrency = code
		}

	case valueExpenseType:
		s, fe := parseText(field, raw)
		if fe != nil {
			return fe
		}
		if s == "" {
			return nil
		}
		switch strings.ToLower(s) {
		case "fixed", "fijo":
			tx.ExpenseType = domain.ExpenseTypeFixed
		case "variable":
			tx.ExpenseType = domain.ExpenseTypeVariable
		default:
			return outOfRange(field, fmt.Sprintf("expense_type %q, want fixed or variable", s))
		}

	case valueDate:
		s, fe := parseText(field, raw)
		if fe != nil {
			return fe
		}
		if s == "" {
			return nil
		}
		if _, err := domain.ParseDate(s); err != nil {
			return &domain.FieldError{Field: string(field), Kind: domain.InvalidFieldType, Message: fmt.Sprintf("invalid date %q", s)}
		}
		tx.Date = s

	default:
		s, fe := parseText(field, raw)
		if fe != nil {
			return fe
		}
		switch field {
		case FieldID:
			tx.ID = s
		case FieldCategory:
			tx.Category = s
		case FieldPaymentMethod:
			tx.PaymentMethod = s
		case FieldMoneySource:
			tx.MoneySource = s
		case FieldDescription:
			tx.Description = s
		case FieldNotes:
			tx.Notes = s
		}
	}
	return nil
}

func (v *Validator) checkConversion(tx *domain.Transaction) (*domain.FieldError, string) {
	if tx.ExchangeRate == nil && tx.ConvertedAmount == nil && tx.ConvertedCurrency == "" {
		return nil, ""
	}
	const incomplete = "currency conversion is incomplete: exchange_rate, converted_amount and converted_currency go together"
	if tx.ExchangeRate == nil || tx.ConvertedAmount == nil {
		return nil, incomplete
	}
	if tx.Amount <= 0 {
		return nil, ""
	}

	expected := decimal.NewFromFloat(tx.Amount).Mul(decimal.NewFromFloat(*tx.ExchangeRate))
	got := decimal.NewFromFloat(*tx.ConvertedAmount)
	tolerance := decimal.Max(conversionAbsTolerance, expected.Abs().Mul(conversionRelTolerance))
	if got.Sub(expected).Abs().GreaterThan(tolerance) {
		msg := fmt.Sprintf("converted_amount %s does not match amount * exchange_rate = %s", got.String(), expected.Round(2).String())
		if v.mode == Strict {
			return outOfRange(FieldConvertedAmount, msg), ""
		}
		return nil, msg
	}
	if tx.ConvertedCurrency == "" {
		return nil, incomplete
	}
	return nil, ""
}

func parseNumber(field Field, raw RawInput) (float64, *domain.FieldError) {
	var f float64
	switch raw.Kind() {
	case KindNumber:
		f = raw.num
	case KindString:
		s := strings.TrimSpace(raw.str)
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil || s == "" {
			return 0, &domain.FieldError{Field: string(field), Kind: domain.InvalidFieldType, Message: fmt.Sprintf("%q is not a number", raw.str)}
		}
		f = parsed
	default:
		return 0, &domain.FieldError{Field: string(field), Kind: domain.InvalidFieldType, Message: fmt.Sprintf("field has type %s, want number", raw.Kind())}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &domain.FieldError{Field: string(field), Kind: domain.InvalidFieldType, Message: "number must be finite"}
	}
	return f, nil
}

func parseBool(field Field, raw RawInput) (bool, *domain.FieldError) {
	switch raw.Kind() {
	case KindBool:
		return raw.b, nil
	case KindNumber:
		switch raw.num {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
	case KindString:
		switch strings.ToLower(strings.TrimSpace(raw.str)) {
		case "true", "yes", "1", "si", "sí":
			return true, nil
		case "false", "no", "0":
			return false, nil
		}
	}
	text, _ := raw.Text()
	return false, &domain.FieldError{Field: string(field), Kind: domain.InvalidFieldType, Message: fmt.Sprintf("%q is not a boolean", text)}
}

func parseText(field Field, raw RawInput) (string, *domain.FieldError) {
	s, ok := raw.Text()
	if !ok {
		return "", &domain.FieldError{Field: string(field), Kind: domain.InvalidFieldType, Message: fmt.Sprintf("field has type %s, want text", raw.Kind())}
	}
	return strings.TrimSpace(s), nil
}

func outOfRange(field Field, msg string) *domain.FieldError {
	return &domain.FieldError{Field: string(field), Kind: domain.OutOfRangeValue, Message: msg}
}
