package extract

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

// parseAmount reads a raw JSON value as a decimal. Absent, null or
// unparsable values yield zero.
func parseAmount(raw json.RawMessage) apd.Decimal {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return apd.Decimal{}
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return apd.Decimal{}
		}
		return parseLocalizedAmount(s)
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return apd.Decimal{}
	}
	d, err := models.ParseDecimal(n.String())
	if err != nil {
		return apd.Decimal{}
	}
	return d
}

// parseLocalizedAmount accepts "150.00", "150,00", "1.234,56", "1,234.56" and
// "R$ 1.234,56".
func parseLocalizedAmount(s string) apd.Decimal {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return apd.Decimal{}
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := models.ParseDecimal(s)
	if err != nil {
		return apd.Decimal{}
	}
	return d
}

// rawText renders a raw JSON value as text: strings are unquoted, numbers keep
// their literal, anything else is empty.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return string(raw)
	default:
		return ""
	}
}
