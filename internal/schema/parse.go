package schema

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/finanzas/internal/domain"
	"gopkg.in/yaml.v3"
)

// batchKeys hold a list of records inside a single YAML document.
var batchKeys = []string{"transacciones", "transactions"}

// StripCodeFences removes a surrounding ```yaml ... ``` wrapper that models
// add despite being told not to.
func StripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return strings.Trim(s, "`")
		}
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// ParseDocuments decodes YAML text into one RawInput per record. It accepts
// documents separated by "---", a top-level list, a map carrying a
// transacciones/transactions list, or a single record.
func ParseDocuments(text string) ([]RawInput, error) {
	clean := StripCodeFences(text)
	if clean == "" {
		return nil, fmt.Errorf("%w: empty input", domain.ErrValidation)
	}

	dec := yaml.NewDecoder(strings.NewReader(clean))
	var records []RawInput
	for i := 0; ; i++ {
		var doc interface{}
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: document %d: parse yaml: %v", domain.ErrValidation, i, err)
		}
		if doc == nil {
			continue
		}
		records = append(records, expandDocument(FromValue(doc))...)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no transactions found", domain.ErrValidation)
	}
	return records, nil
}

func expandDocument(doc RawInput) []RawInput {
	switch doc.Kind() {
	case KindList:
		return doc.Items()
	case KindMap:
		for _, key := range batchKeys {
			if inner, ok := doc.Lookup(key); ok && inner.Kind() == KindList {
				return inner.Items()
			}
		}
	}
	return []RawInput{doc}
}

// ParseCSV reads a header row followed by one record per line. Header names
// go through the same key table as YAML keys; empty cells are treated as absent.
func ParseCSV(r io.Reader) ([]RawInput, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty csv", domain.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("ParseCSV: read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var records []RawInput
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ParseCSV: line %d: %w", line, err)
		}

		fields := make(map[string]RawInput, len(header))
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			fields[header[i]] = String(cell)
		}
		records = append(records, Map(fields))
	}
	return records, nil
}
