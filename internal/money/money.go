// Package money computes invoice totals and formats amounts.
//
// All arithmetic uses exact decimals. Each subtotal is rounded to cents before it
// is combined with the others, so results match a hand calculation where every
// line of the totals block is rounded on its own.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// GCTRate is the General Consumption Tax applied to the parts subtotal.
var GCTRate = decimal.RequireFromString("0.15")

// Places is the number of decimal places kept for every amount.
const Places = 2

// ErrInvalidAmount is returned by Parse for input that is not a number.
var ErrInvalidAmount = errors.New("invalid amount")

// Line is the money part of an invoice item.
type Line struct {
	Labour decimal.Decimal
	Parts  decimal.Decimal
}

// Totals is the computed totals block of an invoice.
type Totals struct {
	PartsSubtotal  decimal.Decimal `json:"parts_subtotal"`
	LabourSubtotal decimal.Decimal `json:"labour_subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
}

// Round rounds half away from zero to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Compute derives the totals block from the invoice lines.
func Compute(lines []Line) Totals {
	parts := decimal.Zero
	labour := decimal.Zero
	for _, l := range lines {
		parts = parts.Add(l.Parts)
		labour = labour.Add(l.Labour)
	}
	t := Totals{
		PartsSubtotal:  Round(parts),
		LabourSubtotal: Round(labour),
	}
	t.Tax = Round(t.PartsSubtotal.Mul(GCTRate))
	t.Total = Round(t.PartsSubtotal.Add(t.LabourSubtotal).Add(t.Tax))
	return t
}

// Format renders an amount as "$1,234.56", or "JMD 1,234.56" when currency is set.
func Format(amount decimal.Decimal, currency string) string {
	s := Round(amount).StringFixed(Places)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	grouped := group(intPart)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	if c := strings.TrimSpace(currency); c != "" {
		b.WriteString(c)
		b.WriteByte(' ')
	} else {
		b.WriteByte('$')
	}
	b.WriteString(grouped)
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// FormatOptional formats a nullable amount; a null amount renders as "".
func FormatOptional(amount decimal.NullDecimal, currency string) string {
	if !amount.Valid {
		return ""
	}
	return Format(amount.Decimal, currency)
}

func group(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Parse reads user input such as "1,250.50" or "$75". Empty input is zero.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}
