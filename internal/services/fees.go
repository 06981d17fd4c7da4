package services

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ParseFeeRate parses a platform fee rate such as "0.10".
func ParseFeeRate(s string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid fee rate %q: %w", s, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("fee rate %s must be in [0, 1)", rate)
	}
	return rate, nil
}

// SplitFee computes the platform fee and the musician's net amount for a gross
// payment in minor units. The fee is rounded half away from zero.
func SplitFee(gross int64, rate decimal.Decimal) (fee, net int64) {
	fee = decimal.NewFromInt(gross).Mul(rate).Round(0).IntPart()
	return fee, gross - fee
}

// FormatMinor renders minor units as a two-decimal amount with currency code.
func FormatMinor(amount int64, currency string) string {
	return decimal.New(amount, -2).StringFixed(2) + " " + currency
}
