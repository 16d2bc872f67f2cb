package domain

import (
	"github.com/shopspring/decimal"
)

// ConvertBaseUnits converts an amount in base units of `from` into base units of `to`
// using a display-unit rate (1 unit of `from` = rate units of `to`). The result is not rounded.
func ConvertBaseUnits(amount, rate decimal.Decimal, from, to string) decimal.Decimal {
	return amount.Shift(-CurrencyExponent(from)).Mul(rate).Shift(CurrencyExponent(to))
}

// RoundBaseUnits rounds to the nearest whole base unit, halves away from zero.
// Converted amounts are non-negative, so this is round-half-up.
func RoundBaseUnits(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}
