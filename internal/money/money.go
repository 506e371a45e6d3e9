package money

import (
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by every amount and rate.
const Scale = 8

var (
	// Zero is the additive identity.
	Zero = decimal.Zero
	// One is the implicit rate between a currency and itself.
	One = decimal.NewFromInt(1)
)

// FitsScale reports whether d can be stored with Scale fractional digits
// without losing precision.
func FitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(Scale))
}

// Positive reports whether d is strictly greater than zero.
func Positive(d decimal.Decimal) bool {
	return d.Sign() > 0
}

// Convert multiplies amount by rate and truncates the product toward zero at
// Scale digits. It never rounds up.
func Convert(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Truncate(Scale)
}

// Format renders d with exactly Scale fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}

// Parse reads a decimal from its string form.
func Parse(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// MustParse is Parse for constants and tests.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
