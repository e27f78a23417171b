// Package types provides common type aliases and utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// CostScale is the number of fractional digits kept for unit costs.
// Matches NUMERIC(18,4) columns.
const CostScale int32 = 4

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// RoundCost rounds a unit cost to CostScale digits.
func RoundCost(m Money) Money {
	return m.Round(CostScale)
}

// MoneyPtr returns a pointer to a copy of m. Handy for optional cost fields.
func MoneyPtr(m Money) *Money {
	return &m
}
