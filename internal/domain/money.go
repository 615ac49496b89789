package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is a monetary amount in minor units (10^-2). All balances, order
// amounts and commissions are carried as Cents; the gateway wire format uses
// the same minor-unit integers, so no conversion happens at that boundary.
type Cents int64

// CentsFromDecimal converts a decimal amount of major units into Cents,
// rounding half-up at the second decimal place.
func CentsFromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Shift(2).Round(0).IntPart())
}

// ParseCents parses a decimal string such as "40.00" into Cents.
func ParseCents(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return CentsFromDecimal(d), nil
}

// Decimal returns the amount in major units.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String renders the amount with exactly two decimal places.
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// ApplyRate multiplies the amount by a rate (e.g. a commission percentage),
// rounding half-up to the cent.
func (c Cents) ApplyRate(rate decimal.Decimal) Cents {
	return Cents(c.Decimal().Mul(rate).Shift(2).Round(0).IntPart())
}
