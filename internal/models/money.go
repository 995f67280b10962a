package models

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// ErrInvalidAmount means a literal parsed but is not a usable money value
var ErrInvalidAmount = errors.New("invalid amount")

// Bounds on a parsed literal. Anything outside them cannot be a real invoice
// value and would make formatting and comparison misbehave.
const (
	maxAmountExponent = 18
	maxAmountDigits   = 34
)

// decimalContext is used for every monetary operation. 34 digits matches decimal128.
var decimalContext = apd.BaseContext.WithPrecision(34)

// DecimalContext returns the shared arithmetic context
func DecimalContext() *apd.Context {
	return decimalContext
}

// ParseDecimal parses a plain decimal literal such as "150.00" or "-3.5".
// NaN, infinities and exponents beyond 1e18 are rejected with ErrInvalidAmount.
func ParseDecimal(s string) (apd.Decimal, error) {
	var d apd.Decimal
	if _, _, err := d.SetString(s); err != nil {
		return apd.Decimal{}, err
	}
	if d.Form != apd.Finite {
		return apd.Decimal{}, fmt.Errorf("%w: %q is not finite", ErrInvalidAmount, s)
	}
	if d.Exponent > maxAmountExponent || d.Exponent < -maxAmountExponent || d.NumDigits() > maxAmountDigits {
		return apd.Decimal{}, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, s)
	}
	return d, nil
}

// MustDecimal is ParseDecimal for literals known to be valid
func MustDecimal(s string) apd.Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FormatMoney renders d rounded half-up to two decimal places, e.g. "10.00"
func FormatMoney(d *apd.Decimal) string {
	var q apd.Decimal
	ctx := decimalContext.WithPrecision(34)
	ctx.Rounding = apd.RoundHalfUp
	if _, err := ctx.Quantize(&q, d, -2); err != nil {
		return d.Text('f')
	}
	return q.Text('f')
}
