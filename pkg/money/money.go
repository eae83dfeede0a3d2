// Package money provides fixed-scale decimal helpers for monetary values.
//
// Every dollar amount in the system is a decimal.Decimal quantized to cents.
// Monetary values must never pass through float64; external sources that hand
// us floats are coerced through their string representation so the displayed
// precision is preserved exactly.
package money

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Zero is the zero dollar amount.
var Zero = decimal.Zero

// Thousand is the divisor for per-mille (CPM) arithmetic.
var Thousand = decimal.NewFromInt(1000)

// FromString parses a plain decimal amount ("1234.56"). It rejects anything
// decimal.NewFromString rejects.
func FromString(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid money value %q: %w", s, err)
	}
	return d, nil
}

// MustFromString is FromString for compile-time constants; it panics on error.
func MustFromString(s string) decimal.Decimal {
	d, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromCoercedFloat converts a float from an external source (spreadsheet cell,
// LLM output) to a decimal by way of its shortest string representation. This
// is the only sanctioned float→money path.
func FromCoercedFloat(f float64) decimal.Decimal {
	return decimal.RequireFromString(strconv.FormatFloat(f, 'f', -1, 64))
}

// ParseUSD parses human-formatted dollar amounts: optional "$", optional
// thousands separators, optional cents ("$1,234.56", "1200", "950.00").
func ParseUSD(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	return FromString(cleaned)
}

// RoundCents quantizes to two decimal places, rounding half up (half away
// from zero; amounts here are non-negative). Banker's rounding is not used.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FormatUSD renders an amount as "$1,234.56" with thousands separators and
// exactly two decimal places.
func FormatUSD(d decimal.Decimal) string {
	fixed := RoundCents(d).StringFixed(2)

	neg := strings.HasPrefix(fixed, "-")
	if neg {
		fixed = fixed[1:]
	}

	parts := strings.SplitN(fixed, ".", 2)
	whole, cents := parts[0], parts[1]

	var b strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}

	out := "$" + b.String() + "." + cents
	if neg {
		out = "-" + out
	}
	return out
}

// Equal reports whether two amounts are numerically equal (scale-insensitive:
// 24 == 24.00).
func Equal(a, b decimal.Decimal) bool {
	return a.Equal(b)
}
