// Package money holds currency codes and decimal/minor-unit conversion.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is a lowercase ISO 4217 code as the processor expects it.
type Currency string

const (
	USD Currency = "usd"
	EUR Currency = "eur"
)

// Default is used when nothing else determines a currency, e.g. an order
// without lines.
const Default = USD

var hundred = decimal.NewFromInt(100)

// ParseCurrency normalizes a currency code. It does not validate it: unknown
// codes are returned as-is so callers can decide on a fallback.
func ParseCurrency(s string) Currency {
	return Currency(strings.ToLower(strings.TrimSpace(s)))
}

// Supported reports whether items may be priced in c.
func (c Currency) Supported() bool {
	return c == USD || c == EUR
}

func (c Currency) String() string {
	return string(c)
}

// ToMinor converts amount to minor units (cents). The scaled value is rounded
// half-to-even, so 10.005 becomes 1000 and 10.015 becomes 1002.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).RoundBank(0).IntPart()
}
