package notionsync

import (
	"fmt"
	"strings"

	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the mirror database.
const (
	PropName              = "Name"
	PropTransactionID     = "Transaction ID"
	PropDate              = "Date"
	PropAmount            = "Amount"
	PropCurrency          = "Currency"
	PropKind              = "Kind"
	PropCategory          = "Category"
	PropExpenseType       = "Expense Type"
	PropPaymentMethod     = "Payment Method"
	PropMoneySource       = "Money Source"
	PropNotes             = "Notes"
	PropConvertedAmount   = "Converted Amount"
	PropConvertedCurrency = "Converted Currency"
)

// TransactionToProperties renders tx as Notion page properties. Absent
// optional fields are left out rather than cleared.
func TransactionToProperties(tx *domain.Transaction) (notionapi.Properties, error) {
	t, err := domain.ParseDate(tx.Date)
	if err != nil {
		return nil, fmt.Errorf("TransactionToProperties: transaction %s: %w", tx.ID, err)
	}
	date := notionapi.Date(t)

	props := notionapi.Properties{
		PropName:          notionapi.TitleProperty{Title: richText(pageTitle(tx))},
		PropTransactionID: notionapi.RichTextProperty{RichText: richText(tx.ID)},
		PropDate:          notionapi.DateProperty{Date: &notionapi.DateObject{Start: &date}},
		PropAmount:        notionapi.NumberProperty{Number: tx.Amount},
		PropCurrency:      selectOf(tx.Currency),
		PropKind:          selectOf(tx.Kind()),
	}

	optional := map[string]string{
		PropCategory:          tx.Category,
		PropExpenseType:       tx.ExpenseType,
		PropPaymentMethod:     tx.PaymentMethod,
		PropMoneySource:       tx.MoneySource,
		PropConvertedCurrency: tx.ConvertedCurrency,
	}
	for name, v := range optional {
		if v != "" {
			props[name] = selectOf(v)
		}
	}
	if tx.Notes != "" {
		props[PropNotes] = notionapi.RichTextProperty{RichText: richText(tx.Notes)}
	}
	if tx.ConvertedAmount != nil {
		props[PropConvertedAmount] = notionapi.NumberProperty{Number: *tx.ConvertedAmount}
	}
	return props, nil
}

func pageTitle(tx *domain.Transaction) string {
	switch {
	case tx.Description != "":
		return tx.Description
	case tx.Category != "":
		return tx.Category
	}
	return tx.ID
}

// Notion rejects rich text segments longer than 2000 characters.
const maxTextLen = 2000

func richText(s string) []notionapi.RichText {
	if r := []rune(s); len(r) > maxTextLen {
		s = string(r[:maxTextLen])
	}
	return []notionapi.RichText{{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}}
}

func selectOf(name string) notionapi.SelectProperty {
	// Select option names cannot contain commas.
	return notionapi.SelectProperty{Select: notionapi.Option{Name: strings.ReplaceAll(name, ",", " ")}}
}

// transactionID reads the Transaction ID property of a mirrored page.
// Returns empty string if not found.
func transactionID(page notionapi.Page) string {
	var segments []notionapi.RichText
	switch p := page.Properties[PropTransactionID].(type) {
	case *notionapi.RichTextProperty:
		segments = p.RichText
	case notionapi.RichTextProperty:
		segments = p.RichText
	}
	if len(segments) == 0 {
		return ""
	}
	if segments[0].PlainText != "" {
		return segments[0].PlainText
	}
	if segments[0].Text != nil {
		return segments[0].Text.Content
	}
	return ""
}
