// Package money converts between integer minor units, which is how every
// amount is stored and computed, and decimal major units, which is how
// amounts cross the API and provider boundaries.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorExp is the number of minor-unit digits of the single store currency.
const MinorExp = 2

var ErrInvalidAmount = errors.New("invalid amount")

// ParseMajor parses a decimal major-unit string ("1,234.50", "1234.5",
// "$ 99", "1.234,50") into minor units, rounding half away from zero.
func ParseMajor(s string) (int64, error) {
	norm, err := normalize(s)
	if err != nil {
		return 0, err
	}
	d, err := decimal.NewFromString(norm)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return ToMinor(d), nil
}

// ToMinor rounds a major-unit decimal to minor units.
func ToMinor(d decimal.Decimal) int64 {
	return d.Round(MinorExp).Shift(MinorExp).IntPart()
}

// ToMajor presents minor units as a major-unit decimal.
func ToMajor(minor int64) decimal.Decimal {
	return decimal.New(minor, -MinorExp)
}

// FormatMajor renders minor units as a fixed two-digit major-unit string.
func FormatMajor(minor int64) string {
	return ToMajor(minor).StringFixed(MinorExp)
}

// Percent returns pct percent of total, rounded half up in minor units.
func Percent(total int64, pct int) int64 {
	return decimal.NewFromInt(total).Mul(decimal.NewFromInt(int64(pct))).Div(decimal.NewFromInt(100)).Round(0).IntPart()
}

func normalize(s string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			b.WriteRune(r)
		case r == ' ' || r == '_' || r == '\'' || r == ' ':
			// grouping characters
		default:
			// currency symbols and codes are ignored
		}
	}
	out := b.String()
	if out == "" || out == "-" {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	lastDot := strings.LastIndex(out, ".")
	lastComma := strings.LastIndex(out, ",")
	switch {
	case lastComma > lastDot && lastDot >= 0:
		// 1.234,56
		out = strings.ReplaceAll(out, ".", "")
		out = strings.Replace(out, ",", ".", 1)
	case lastComma > lastDot:
		// only commas: grouping when every group after the first has three digits
		if strings.Count(out, ",") == 1 && len(out)-lastComma-1 != 3 {
			out = strings.Replace(out, ",", ".", 1)
		} else {
			out = strings.ReplaceAll(out, ",", "")
		}
	default:
		out = strings.ReplaceAll(out, ",", "")
	}
	if strings.Count(out, ".") > 1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return out, nil
}
