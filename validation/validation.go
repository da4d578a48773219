// Package validation collects per-field error codes from form input.
package validation

import (
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/motorworks/invoicegen/internal/money"
	"github.com/shopspring/decimal"
)

// DateLayout is the HTML date input format.
const DateLayout = "2006-01-02"

// Violations maps a field name to an error code (see i18n).
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Add records code for field unless the field already failed.
func (v Violations) Add(field, code string) {
	if _, ok := v[field]; !ok {
		v[field] = code
	}
}

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, "required")
	}
}

func Email(field, value string, v Violations) {
	if value = strings.TrimSpace(value); value == "" {
		return
	}
	if _, err := mail.ParseAddress(value); err != nil {
		v.Add(field, "invalid_email")
	}
}

// Amount parses a money field. Empty input is zero.
func Amount(field, raw string, v Violations) decimal.Decimal {
	d, err := money.Parse(raw)
	if err != nil {
		v.Add(field, "invalid_number")
		return decimal.Zero
	}
	if d.IsNegative() {
		v.Add(field, "must_be_non_negative")
	}
	return d
}

// OptionalAmount parses a money field that may be left blank.
func OptionalAmount(field, raw string, v Violations) decimal.NullDecimal {
	if strings.TrimSpace(raw) == "" {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(Amount(field, raw, v))
}

// Date parses a yyyy-mm-dd field. Empty input yields nil.
func Date(field, raw string, v Violations) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		v.Add(field, "invalid_date")
		return nil
	}
	return &t
}

// PositiveInt parses an optional whole number greater than zero.
func PositiveInt(field, raw string, v Violations) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		v.Add(field, "invalid_number")
		return nil
	}
	if n <= 0 {
		v.Add(field, "must_be_positive")
		return nil
	}
	return &n
}

func RangeInt(field string, val, minVal, maxVal int, v Violations) {
	if val < minVal || val > maxVal {
		v.Add(field, "out_of_range")
	}
}
