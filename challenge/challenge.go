// Package challenge builds 402 payment challenges from configured prices.
package challenge

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vitwit/databox/types"
)

// Issue converts a configured price into a single-option challenge.
// Token-priced routes quote the token's atomic units as configured;
// native-priced routes quote wei-equivalent units. Pure and deterministic
// for a given spec; this protocol variant always offers exactly one option.
func Issue(spec types.PriceSpec) types.PaymentChallenge {
	return types.PaymentChallenge{
		X402Version: types.ProtocolVersion,
		Scheme:      types.SchemeExact,
		Accepts: []types.PaymentOption{
			{
				Network:           spec.Network,
				PayTo:             spec.PayToAddress,
				MaxAmountRequired: spec.Amount,
				Asset:             spec.AssetAddress,
			},
		},
	}
}

// ParsePrice converts a human price string into atomic units of an asset
// with the given decimals. Accepts "0.01", "$0.01" and "10000" alike; the
// result is floored to an integer unit count. Negative prices are invalid.
func ParsePrice(price string, decimals int32) (string, error) {
	cleaned := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(price), "$"))
	if cleaned == "" {
		return "", fmt.Errorf("price cannot be empty")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return "", fmt.Errorf("invalid price %q: %w", price, err)
	}
	if d.IsNegative() {
		return "", fmt.Errorf("price cannot be negative")
	}

	atomic := d.Shift(decimals).Floor()
	return atomic.String(), nil
}
