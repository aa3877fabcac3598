// Package sqlguard rejects any query that is not a single read-only SELECT.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dvloznov/finanzas/internal/domain"
)

// ForbiddenKeywords may not appear anywhere in a read-only query, including
// inside string literals and comments.
var ForbiddenKeywords = []string{
	"DROP", "DELETE", "INSERT", "UPDATE", "ALTER", "CREATE",
	"TRUNCATE", "REPLACE", "PRAGMA", "ATTACH", "DETACH",
}

var forbiddenPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(ForbiddenKeywords, "|") + `)\b`)

// CheckReadOnly returns an error wrapping domain.ErrUnsafeQuery unless query
// is a single statement starting with SELECT and free of data-modifying verbs.
func CheckReadOnly(query string) error {
	q := strings.TrimSpace(query)
	if q == "" {
		return fmt.Errorf("%w: empty query", domain.ErrUnsafeQuery)
	}

	upper := strings.ToUpper(q)
	if !strings.HasPrefix(upper, "SELECT") || (len(upper) > 6 && isIdentChar(upper[6])) {
		return fmt.Errorf("%w: only SELECT queries are allowed", domain.ErrUnsafeQuery)
	}

	if m := forbiddenPattern.FindString(q); m != "" {
		return fmt.Errorf("%w: operation not allowed: %s", domain.ErrUnsafeQuery, strings.ToUpper(m))
	}

	body := strings.TrimRight(q, "; \t\r\n")
	if strings.Contains(body, ";") {
		return fmt.Errorf("%w: multiple statements are not allowed", domain.ErrUnsafeQuery)
	}
	return nil
}

// Clean trims whitespace, code fences and a trailing semicolon from generated SQL.
func Clean(query string) string {
	s := strings.TrimSpace(query)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimRight(s, ";"))
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
