package utils

import (
	"fmt"
	"math"
)

// Money is an amount in minor units (1/100 of the currency unit).
type Money int64

// MoneyFromFloat rounds to 2 decimals using round-half-up.
// The epsilon absorbs binary representation error (0.005 stored as 0.00499999...).
func MoneyFromFloat(amount float64) Money {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0
	}
	return Money(math.Floor(amount*100 + 0.5 + 1e-7))
}

func (m Money) Float() float64 {
	return float64(m) / 100
}

// String renders the amount with exactly two decimals, e.g. "1050000.00".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON emits a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// NonNegative floors the amount at zero.
func (m Money) NonNegative() Money {
	if m < 0 {
		return 0
	}
	return m
}
