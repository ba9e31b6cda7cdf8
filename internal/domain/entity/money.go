package entity

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fractional digits kept for monetary values.
const MoneyPlaces = 2

// MaxMoney bounds the magnitude of every stored monetary amount. Its cents,
// and the sum of two bounded amounts, fit in an int64.
var MaxMoney = decimal.New(1, 15)

// RoundMoney rounds d half away from zero to two decimal places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// CheckMoney rejects amounts whose magnitude exceeds MaxMoney.
func CheckMoney(field string, d decimal.Decimal) error {
	if RoundMoney(d).Abs().GreaterThan(MaxMoney) {
		return NewValidationError(field, fmt.Sprintf("exceeds the maximum of %s", MaxMoney.StringFixed(MoneyPlaces)))
	}
	return nil
}

// ToCents converts a monetary value to integer cents for storage.
// Callers validate with CheckMoney first; out-of-range values do not fit.
func ToCents(d decimal.Decimal) int64 {
	return d.Round(MoneyPlaces).Shift(MoneyPlaces).IntPart()
}

// FromCents converts stored integer cents back to a monetary value.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -MoneyPlaces)
}
