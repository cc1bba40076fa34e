// Package core provides money parsing and handling utilities.
//
// Amounts and hourly rates are decimals. They are persisted as bare JSON
// numbers so stored collections keep the shape `{"rate": 10.5}`.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for strings that are not a non-negative decimal.
var ErrInvalidAmount = errors.New("invalid amount")

// Money is a decimal currency value (an amount, or a rate per hour).
type Money struct {
	decimal.Decimal
}

// NewMoney wraps a decimal.
func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d}
}

// MoneyFromFloat is a convenience for literals in tests and seeds.
func MoneyFromFloat(f float64) Money {
	return Money{Decimal: decimal.NewFromFloat(f)}
}

// ParseMoney converts a decimal string to Money.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted.
// Negative values are rejected; zero is allowed (a child may be minded for free).
//
// Examples:
//
//	ParseMoney("12.34") -> 12.34, nil
//	ParseMoney("12,5")  -> 12.5, nil
//	ParseMoney("-1")    -> error
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return Money{Decimal: d}, nil
}

// Round2 rounds half away from zero to two decimal places.
func (m Money) Round2() Money {
	return Money{Decimal: m.Decimal.Round(2)}
}

// Format renders the value with two decimals and the given currency symbol, e.g. "£12.50".
func (m Money) Format(symbol string) string {
	if m.IsNegative() {
		return "-" + symbol + m.Neg().StringFixed(2)
	}
	return symbol + m.StringFixed(2)
}

// MarshalJSON writes the value as a bare JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal.String()), nil
}

// UnmarshalJSON accepts both numbers and quoted strings, so form-entered
// values stored as strings still load.
func (m *Money) UnmarshalJSON(b []byte) error {
	if string(b) == "null" || string(b) == `""` {
		m.Decimal = decimal.Zero
		return nil
	}
	return m.Decimal.UnmarshalJSON(b)
}
