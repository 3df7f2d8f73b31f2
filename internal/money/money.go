// Package money holds the fixed-point rounding rules shared by every price
// computation: amounts are decimals rounded half-up to two places.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for every amount.
const Places = 2

var hundred = decimal.NewFromInt(100)

// Round rounds half away from zero to two places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Sum adds values without rounding.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Percent returns round(amount * percent / 100).
func Percent(amount, percent decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(percent).Div(hundred))
}

// Split divides amount into count rounded parts whose sum is exactly amount.
// Every part is round(amount/count) except the last, which absorbs the residue.
func Split(amount decimal.Decimal, count int) []decimal.Decimal {
	if count <= 0 {
		return nil
	}
	n := decimal.NewFromInt(int64(count))
	base := Round(amount.Div(n))
	parts := make([]decimal.Decimal, count)
	for i := range parts {
		parts[i] = base
	}
	parts[count-1] = base.Add(amount.Sub(base.Mul(n)))
	return parts
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Parse reads a decimal amount and rounds it.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Round(d), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders an amount with exactly two decimals.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}
