package model

import (
	"math"
	"strconv"
	"strings"
)

// moneyEpsilon matches the nudge the store tooling applies before rounding,
// so values such as 1.005 round up instead of down.
const moneyEpsilon = 2.220446049250313e-16

// ParseMetaNumber extracts a number from a free-form meta value.
// Everything except digits, '.' and '-' is stripped first, so "$12.50" and
// "1,234.00" both parse. Empty or malformed remainders report ok=false.
// Examples: "12.5" → 12.5, "$ 9.99" → 9.99, "" → absent, "1.2.3" → absent
func ParseMetaNumber(s string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// Round2 rounds half-up to two decimals after adding a machine epsilon.
func Round2(v float64) float64 {
	return math.Floor((v+moneyEpsilon)*100+0.5) / 100
}

// FormatPrice renders a price as the fixed 2-decimal string written to meta.
// Examples: 12 → "12.00", 11.999 → "12.00"
func FormatPrice(v float64) string {
	return strconv.FormatFloat(Round2(v), 'f', 2, 64)
}

// FormatMoney renders an optional amount for human reports.
// nil renders as "(none)".
func FormatMoney(v *float64) string {
	if v == nil {
		return "(none)"
	}
	return "$" + FormatPrice(*v)
}

// Float returns a pointer to v. Used for optional money fields.
func Float(v float64) *float64 {
	return &v
}
