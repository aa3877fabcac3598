package schema

// Field names a target attribute of a Transaction.
type Field string

const (
	FieldID                Field = "id"
	FieldDate              Field = "date"
	FieldAmount            Field = "amount"
	FieldCurrency          Field = "currency"
	FieldIsIncome          Field = "is_income"
	FieldCategory          Field = "category"
	FieldExpenseType       Field = "expense_type"
	FieldPaymentMethod     Field = "payment_method"
	FieldMoneySource       Field = "money_source"
	FieldDescription       Field = "description"
	FieldNotes             Field = "notes"
	FieldExchangeRate      Field = "exchange_rate"
	FieldConvertedAmount   Field = "converted_amount"
	FieldConvertedCurrency Field = "converted_currency"
)

// valueKind is the coercion rule applied to a field.
type valueKind int

const (
	valueText valueKind = iota
	valueNumber
	valueBool
	valueCurrency
	valueExpenseType
	valueDate
)

// KeyMapping binds one recognized input key to its target field.
type KeyMapping struct {
	Key   string
	Field Field
}

// KeyTable lists every recognized input key. Spanish keys come first: when an
// input carries both spellings of a field, the earlier entry wins.
var KeyTable = []KeyMapping{
	{"monto", FieldAmount},
	{"moneda", FieldCurrency},
	{"tipo_gasto", FieldExpenseType},
	{"metodo_pago", FieldPaymentMethod},
	{"fuente_dinero", FieldMoneySource},
	{"descripcion", FieldDescription},
	{"categoria", FieldCategory},
	{"notas", FieldNotes},
	{"es_ingreso", FieldIsIncome},
	{"tasa_cambio", FieldExchangeRate},
	{"monto_convertido", FieldConvertedAmount},
	{"moneda_convertida", FieldConvertedCurrency},
	{"fecha", FieldDate},

	{"id", FieldID},
	{"date", FieldDate},
	{"amount", FieldAmount},
	{"currency", FieldCurrency},
	{"is_income", FieldIsIncome},
	{"category", FieldCategory},
	{"expense_type", FieldExpenseType},
	{"payment_method", FieldPaymentMethod},
	{"money_source", FieldMoneySource},
	{"description", FieldDescription},
	{"notes", FieldNotes},
	{"exchange_rate", FieldExchangeRate},
	{"converted_amount", FieldConvertedAmount},
	{"converted_currency", FieldConvertedCurrency},
}

// fieldOrder fixes the order in which fields are decoded and reported.
var fieldOrder = []Field{
	FieldID,
	FieldDate,
	FieldAmount,
	FieldCurrency,
	FieldIsIncome,
	FieldCategory,
	FieldExpenseType,
	FieldPaymentMethod,
	FieldMoneySource,
	FieldDescription,
	FieldNotes,
	FieldExchangeRate,
	FieldConvertedAmount,
	FieldConvertedCurrency,
}

var fieldKinds = map[Field]valueKind{
	FieldID:                valueText,
	FieldDate:              valueDate,
	FieldAmount:            valueNumber,
	FieldCurrency:          valueCurrency,
	FieldIsIncome:          valueBool,
	FieldCategory:          valueText,
	FieldExpenseType:       valueExpenseType,
	FieldPaymentMethod:     valueText,
	FieldMoneySource:       valueText,
	FieldDescription:       valueText,
	FieldNotes:             valueText,
	FieldExchangeRate:      valueNumber,
	FieldConvertedAmount:   valueNumber,
	FieldConvertedCurrency: valueCurrency,
}

// storageOnlyKeys are produced by exports of stored records and are dropped
// silently in both modes.
var storageOnlyKeys = map[string]bool{
	"created_at": true,
}

var recognizedKeys = func() map[string]Field {
	m := make(map[string]Field, len(KeyTable))
	for _, km := range KeyTable {
		m[km.Key] = km.Field
	}
	return m
}()

// FieldForKey resolves an input key, reporting false for unrecognized keys.
func FieldForKey(key string) (Field, bool) {
	f, ok := recognizedKeys[key]
	return f, ok
}
