package decimal

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Zero is decimal zero
var Zero = decimal.Zero

// Hundred is used to turn percentage rates into factors
var Hundred = decimal.NewFromInt(100)

// Tolerance is the single monetary tolerance (one centavo) shared by every
// reconciliation check. Rates are never compared with it.
var Tolerance = decimal.New(1, -2)

// FromInt creates decimal from int
func FromInt(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// FromFloat creates decimal from float with rounding
func FromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// FromString parses decimal from string
func FromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// MustFromString parses decimal from string, panics on error
func MustFromString(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseBR parses numbers written either as "1234.56" or in the Brazilian
// form "1.234,56". Empty input is zero.
func ParseBR(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, nil
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return decimal.NewFromString(s)
}

// Round2 rounds half away from zero to centavos
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// PercentOf computes round(base*rate/100, 2)
func PercentOf(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Div(Hundred).Round(2)
}

// AbsDiff returns |a-b|
func AbsDiff(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b).Abs()
}

// WithinTolerance reports whether |a-b| <= Tolerance
func WithinTolerance(a, b decimal.Decimal) bool {
	return AbsDiff(a, b).LessThanOrEqual(Tolerance)
}

// Sum sums a slice of decimals
func Sum(values []decimal.Decimal) decimal.Decimal {
	result := Zero
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}

// IsPositive returns true if decimal is greater than zero
func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(Zero)
}

// IsNonNegative returns true if decimal is >= zero
func IsNonNegative(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(Zero)
}

// Fixed renders d with exactly two decimals ("1234.50")
func Fixed(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatBRL renders d as Brazilian currency ("R$ 1.234,56")
func FormatBRL(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	out := "R$ " + b.String() + "," + frac
	if neg {
		return "-" + out
	}
	return out
}

// Rate renders a rate with at least two decimals, keeping any further
// significant digits ("1.65", "1.655")
func Rate(d decimal.Decimal) string {
	places := int32(2)
	if _, frac, ok := strings.Cut(d.String(), "."); ok && int32(len(frac)) > places {
		places = int32(len(frac))
	}
	return d.StringFixed(places)
}

// FormatRate renders a percentage rate ("1,65%")
func FormatRate(d decimal.Decimal) string {
	return strings.ReplaceAll(Rate(d), ".", ",") + "%"
}
