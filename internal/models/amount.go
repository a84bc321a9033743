package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is the scale of the pooled asset (stETH uses 18).
const DefaultDecimals int32 = 18

// MaxBaseDigits bounds an amount to what a NUMERIC(78, 0) column holds,
// enough for any uint256 balance.
const MaxBaseDigits = 78

// maxAmountLen caps display input before it reaches the decimal parser.
const maxAmountLen = 128

var (
	ErrMalformedAmount  = errors.New("malformed amount")
	ErrFractionalAmount = errors.New("amount is finer than the asset scale")
	ErrAmountTooLarge   = errors.New("amount exceeds the supported number of digits")
)

// ParseUnits converts a display amount such as "1.5" into an integer number
// of base units at the given scale. Exponent notation is not accepted.
func ParseUnits(s string, decimals int32) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if len(s) > maxAmountLen || strings.ContainsAny(s, "eE") {
		return decimal.Zero, fmt.Errorf("%w: %.32q", ErrMalformedAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}
	// the length cap keeps the exponent small, so IsInteger is cheap here
	base := d.Shift(decimals)
	if !base.IsInteger() {
		return decimal.Zero, fmt.Errorf("%w: %q at %d decimals", ErrFractionalAmount, s, decimals)
	}
	base = base.Truncate(0)
	if !InRange(base) {
		return decimal.Zero, fmt.Errorf("%w: %q at %d decimals", ErrAmountTooLarge, s, decimals)
	}
	return base, nil
}

// FormatUnits renders base units as a display amount at the given scale.
func FormatUnits(base decimal.Decimal, decimals int32) string {
	return base.Shift(-decimals).String()
}

// InRange reports whether d has at most MaxBaseDigits integer digits and an
// exponent small enough to inspect cheaply.
func InRange(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp < -MaxBaseDigits || exp > MaxBaseDigits {
		return false
	}
	digits := d.NumDigits()
	if exp > 0 {
		digits += int(exp)
	}
	return digits <= MaxBaseDigits
}

// IsBaseUnits reports whether d is a whole number of base units within range.
func IsBaseUnits(d decimal.Decimal) bool {
	return InRange(d) && d.IsInteger()
}
