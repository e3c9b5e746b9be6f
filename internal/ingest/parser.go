package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"
)

// StatementRecord is one normalized line of a bank statement export.
type StatementRecord struct {
	SequenceNumber   string
	ExecutionDate    time.Time
	Amount           *big.Rat // signed, IN positive / OUT negative
	Account          string
	CounterpartyName string
	Communication    string
	IsParent         bool
}

// columnAliases maps the header names found in bank exports to record
// fields. Matching is case-insensitive.
var columnAliases = map[string]string{
	"sequence":          "sequence",
	"sequence_number":   "sequence",
	"numero":            "sequence",
	"date":              "date",
	"execution_date":    "date",
	"date_execution":    "date",
	"amount":            "amount",
	"montant":           "amount",
	"account":           "account",
	"compte":            "account",
	"counterparty":      "counterparty",
	"counterparty_name": "counterparty",
	"contrepartie":      "counterparty",
	"communication":     "communication",
	"is_parent":         "is_parent",
	"ventilation":       "is_parent",
}

// ParseStatementCSV parses a bank statement CSV export. The first line
// must be a header; columns are matched by name, not position, so the
// different export layouts the banks produce all parse the same way.
func ParseStatementCSV(data []byte) ([]StatementRecord, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectDelimiter(data)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("ParseStatementCSV: reading header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if field, ok := columnAliases[key]; ok {
			columns[field] = i
		}
	}
	for _, required := range []string{"date", "amount", "account"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("ParseStatementCSV: missing %q column in header %v", required, header)
		}
	}

	var records []StatementRecord
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			// A malformed row rejects the whole file; a partial parse
			// would import a truncated statement.
			return nil, fmt.Errorf("ParseStatementCSV: line %d: %w", line, err)
		}

		field := func(name string) string {
			idx, ok := columns[name]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		date, err := parseDate(field("date"))
		if err != nil {
			return nil, fmt.Errorf("ParseStatementCSV: line %d: %w", line, err)
		}

		amount, err := ParseAmount(field("amount"))
		if err != nil {
			return nil, fmt.Errorf("ParseStatementCSV: line %d: %w", line, err)
		}

		records = append(records, StatementRecord{
			SequenceNumber:   field("sequence"),
			ExecutionDate:    date,
			Amount:           amount,
			Account:          field("account"),
			CounterpartyName: field("counterparty"),
			Communication:    field("communication"),
			IsParent:         parseBool(field("is_parent")),
		})
	}

	return records, nil
}

// detectDelimiter picks the separator from the header line. Belgian
// bank exports use semicolons, others commas.
func detectDelimiter(data []byte) rune {
	end := bytes.IndexByte(data, '\n')
	if end < 0 {
		end = len(data)
	}
	if bytes.ContainsRune(data[:end], ';') {
		return ';'
	}
	return ','
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006"}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ParseAmount parses a statement amount into an exact decimal. Both
// "1234.56" and the continental "1.234,56" render are accepted.
func ParseAmount(s string) (*big.Rat, error) {
	cleaned := strings.ReplaceAll(s, " ", "")
	if strings.Contains(cleaned, ",") {
		// Continental: dots group thousands, comma is the decimal mark.
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}

	r, ok := new(big.Rat).SetString(cleaned)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return r, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "oui":
		return true
	}
	return false
}
