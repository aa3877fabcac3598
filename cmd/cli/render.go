package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/shopspring/decimal"
)

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func renderStats(w io.Writer, s domain.Stats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Income:\t%s\t\n", money(s.TotalIncome))
	fmt.Fprintf(tw, "Expenses:\t%s\t\n", money(s.TotalExpenses))
	fmt.Fprintf(tw, "Balance:\t%s\t\n", money(s.Balance))
	tw.Flush()
	fmt.Fprintf(w, "%d transactions (%d income, %d expenses)\n", s.TotalTransactions, s.IncomeCount, s.ExpenseCount)
}

func renderBreakdown(w io.Writer, by domain.BreakdownField, rows []domain.BreakdownRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\tTOTAL\tCOUNT\tAVERAGE\n", by)
	for _, r := range rows {
		key := r.Key
		if key == "" {
			key = "(none)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", key, money(r.Total), r.Count, money(r.Average))
	}
	tw.Flush()
}

var transactionHeader = []string{"id", "date", "kind", "amount", "currency", "category", "payment_method", "description"}

func transactionRow(tx *domain.Transaction) []string {
	return []string{tx.ID, tx.Date, tx.Kind(), money(tx.Amount), tx.Currency, tx.Category, tx.PaymentMethod, tx.Description}
}

func renderTransactions(w io.Writer, txs []domain.Transaction, format string) error {
	switch format {
	case "json":
		return writeJSON(w, txs)
	case "csv":
		rows := make([][]string, 0, len(txs))
		for i := range txs {
			rows = append(rows, transactionRow(&txs[i]))
		}
		return writeCSV(w, transactionHeader, rows)
	case "table":
		if len(txs) == 0 {
			fmt.Fprintln(w, "No transactions.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		writeTabRow(tw, transactionHeader)
		for i := range txs {
			writeTabRow(tw, transactionRow(&txs[i]))
		}
		return tw.Flush()
	}
	return fmt.Errorf("%w: unknown format %q", domain.ErrValidation, format)
}

func renderResult(w io.Writer, res domain.QueryResult, format string) error {
	rows := make([][]string, 0, len(res.Rows))
	for _, r := range res.Rows {
		cells := make([]string, len(r))
		for i, v := range r {
			cells[i] = cell(v)
		}
		rows = append(rows, cells)
	}

	switch format {
	case "json":
		out := make([]map[string]interface{}, 0, len(res.Rows))
		for _, r := range res.Rows {
			m := make(map[string]interface{}, len(res.Columns))
			for i, col := range res.Columns {
				if i < len(r) {
					m[col] = r[i]
				}
			}
			out = append(out, m)
		}
		return writeJSON(w, out)
	case "csv":
		return writeCSV(w, res.Columns, rows)
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		writeTabRow(tw, res.Columns)
		for _, r := range rows {
			writeTabRow(tw, r)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(w, "(%d rows)\n", res.RowCount)
		return nil
	}
	return fmt.Errorf("%w: unknown format %q", domain.ErrValidation, format)
}

func cell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	}
	return fmt.Sprint(v)
}

func writeTabRow(w io.Writer, cells []string) {
	for i, c := range cells {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c)
	}
	fmt.Fprintln(w)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}
