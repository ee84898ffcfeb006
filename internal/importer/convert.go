package importer

// convert.go parses the messy reality of field-collected spreadsheet cells
// into typed values:
//   - several date formats (ISO, US, EU)
//   - numbers with thousand separators and unit suffixes stripped upstream
//   - exactly two canonical boolean tokens
//   - common spreadsheet artifacts (BOM, formula prefixes, stray quotes)
//
// All ToPg* functions return pgtype values with Valid=false for empty or
// unparseable input, so callers can distinguish "absent" from "invalid"
// and the database receives proper NULLs.

import (
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// numericPattern accepts integers, decimals and scientific notation after
// cleanup.
var numericPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// dateLayouts are tried in order; four-digit-year layouts only, since
// capture records routinely span decades and two-digit years are ambiguous.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"1/2/2006", "01/02/2006",
	"1-2-2006", "01-02-2006",
	"2 Jan 2006", "Jan 2, 2006",
	"20060102",
}

// CleanCell strips common spreadsheet artifacts from a cell value: UTF-8
// BOM, Excel formula prefixes (="value"), surrounding quotes, whitespace.
func CleanCell(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		s = s[2 : len(s)-1]
	} else {
		s = strings.TrimPrefix(s, "=")
	}
	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// ToPgDate parses a cell into a calendar date.
func ToPgDate(s string) pgtype.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Date{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return pgtype.Date{Time: t, Valid: true}
		}
	}
	return pgtype.Date{}
}

// ToPgNumeric parses a cell into a decimal number. Thousand separators are
// tolerated; anything else must already be a plain decimal.
func ToPgNumeric(s string) pgtype.Numeric {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || !numericPattern.MatchString(s) {
		return pgtype.Numeric{}
	}
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{}
	}
	return n
}

// ToPgBool parses a cell against the two canonical boolean tokens. Unlike
// free-form yes/no handling, anything other than TRUE or FALSE (any case)
// is invalid.
func ToPgBool(s string) pgtype.Bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return pgtype.Bool{Bool: true, Valid: true}
	case "false":
		return pgtype.Bool{Valid: true}
	default:
		return pgtype.Bool{}
	}
}

// ToPgText wraps a cleaned cell as text, invalid when empty.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
