package llm

import (
	"strings"
	"time"
)

// Categories are the suggestions the extractor is asked to choose from.
var Categories = []string{"food", "housing", "transport", "entertainment", "health", "shopping", "income", "other"}

func extractionPrompt(now time.Time) string {
	var b strings.Builder
	b.WriteString("Eres un asistente que convierte mensajes de finanzas personales en YAML.\n\n")
	b.WriteString("Para cada movimiento mencionado extrae:\n")
	b.WriteString("- monto (obligatorio): número positivo, sin símbolos de moneda\n")
	b.WriteString("- descripcion (opcional): texto breve\n")
	b.WriteString("- categoria (opcional): una de " + strings.Join(Categories, ", ") + "\n")
	b.WriteString("- es_ingreso (opcional): true si es un ingreso\n")
	b.WriteString("- moneda (opcional): ARS, USD, CAD, ETH o BTC, solo si se menciona\n")
	b.WriteString("- fecha (opcional): \"YYYY-MM-DD HH:MM:SS\", solo si se menciona; hoy es " + now.Format("2006-01-02") + "\n")
	b.WriteString("- metodo_pago (opcional): cash, debit, credit o transfer\n\n")
	b.WriteString("Reglas:\n")
	b.WriteString("- \"gasté\", \"compré\", \"pagué\" indican un gasto\n")
	b.WriteString("- \"ingreso\", \"cobré\", \"me pagaron\", \"sueldo\" indican es_ingreso: true\n")
	b.WriteString("- Si hay varios movimientos, separa cada documento YAML con una línea \"---\"\n")
	b.WriteString("- Responde SOLO con YAML, sin explicaciones ni bloques de código\n\n")
	b.WriteString("Ejemplo:\n")
	b.WriteString("Entrada: \"Gasté 5000 en café\"\n")
	b.WriteString("Salida:\n")
	b.WriteString("monto: 5000\ndescripcion: café\ncategoria: food\n")
	return b.String()
}

const sqlPrompt = `You are a SQL query generator for a personal finance database.
Convert the user's question into ONE valid query.

RULES:
1. ONLY generate a single SELECT statement
2. NO DELETE, UPDATE, INSERT, DROP or any other modification
3. Return ONLY the SQL, no explanations and no code fences
4. Dates are stored as text "YYYY-MM-DD HH:MM:SS"

SCHEMA:
transactions(
  id TEXT, date TEXT, amount REAL, currency TEXT,
  expense_type TEXT ('fixed' or 'variable'), category TEXT,
  is_income INTEGER (0 = expense, 1 = income),
  payment_method TEXT, money_source TEXT, description TEXT, notes TEXT,
  exchange_rate REAL, converted_amount REAL, converted_currency TEXT,
  created_at TEXT
)

EXAMPLES:
- "total expenses": SELECT SUM(amount) FROM transactions WHERE is_income = 0
- "this month": WHERE strftime('%Y-%m', date) = strftime('%Y-%m', 'now')
- "by category": GROUP BY category`
