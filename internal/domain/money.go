package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Sign carries the direction of a monetary amount. Amounts themselves are never negative.
type Sign string

const (
	SignPositive Sign = "POSITIVE"
	SignNegative Sign = "NEGATIVE"
)

var (
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrFractionalAmount = errors.New("amount must be a whole number of base units")
	ErrInvalidCurrency  = errors.New("invalid currency code")
	ErrInvalidSign      = errors.New("invalid sign")
)

// Valid reports whether s is one of the known signs.
func (s Sign) Valid() bool {
	return s == SignPositive || s == SignNegative
}

// Money is an unsigned amount in base units (cents, wei, satoshi) of a currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// SignedMoney is Money plus its direction.
type SignedMoney struct {
	Money Money `json:"money"`
	Sign  Sign  `json:"sign"`
}

// NewSignedMoney builds a SignedMoney from a signed base-unit amount.
func NewSignedMoney(signed decimal.Decimal, currency string) SignedMoney {
	sign := SignPositive
	if signed.IsNegative() {
		sign = SignNegative
	}
	return SignedMoney{
		Money: Money{Amount: signed.Abs(), Currency: currency},
		Sign:  sign,
	}
}

// Positive is a shorthand for a positive amount given as int64 base units.
func Positive(amount int64, currency string) SignedMoney {
	return SignedMoney{Money: Money{Amount: decimal.NewFromInt(amount), Currency: currency}, Sign: SignPositive}
}

// Negative is a shorthand for a negative amount given as int64 base units.
func Negative(amount int64, currency string) SignedMoney {
	return SignedMoney{Money: Money{Amount: decimal.NewFromInt(amount), Currency: currency}, Sign: SignNegative}
}

// Signed returns the amount as a signed decimal.
func (m SignedMoney) Signed() decimal.Decimal {
	if m.Sign == SignNegative {
		return m.Money.Amount.Neg()
	}
	return m.Money.Amount
}

// Currency returns the currency code.
func (m SignedMoney) Currency() string {
	return m.Money.Currency
}

// Validate checks the non-negative whole-amount invariant, the currency code and the sign.
func (m SignedMoney) Validate() error {
	if m.Money.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if !m.Money.Amount.IsInteger() {
		return ErrFractionalAmount
	}
	if !ValidCurrency(m.Money.Currency) {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, m.Money.Currency)
	}
	if !m.Sign.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSign, m.Sign)
	}
	return nil
}

// Display renders the amount in human units, e.g. 150000 USD cents -> "1500", -1.5 ETH -> "-1.5".
func (m SignedMoney) Display() string {
	return FormatUnits(m.Signed(), CurrencyExponent(m.Money.Currency))
}

// FormatUnits shifts a base-unit amount by the currency exponent and strips trailing zeros.
func FormatUnits(baseUnits decimal.Decimal, exponent int32) string {
	return baseUnits.Shift(-exponent).String()
}

// ValidCurrency accepts 3-5 uppercase letters (ISO 4217 codes and crypto tickers).
func ValidCurrency(code string) bool {
	if len(code) < 3 || len(code) > 5 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
