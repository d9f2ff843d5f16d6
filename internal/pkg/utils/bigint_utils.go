package utils

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FromBaseUnits converts a raw on-chain integer amount into whole token units.
// The conversion is exact: amount * 10^-decimals with no float intermediate.
// Example: amount=1234500000000000000, decimals=18 => 1.2345
func FromBaseUnits(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// FormatBigInt renders a raw integer amount as a human-readable decimal string.
func FormatBigInt(amount *big.Int, decimals uint8) string {
	return FromBaseUnits(amount, decimals).String()
}

// RoundUSD quantizes a USD value to the given number of decimal places,
// rounding halves away from zero. All reported USD values go through this so
// totals stay reproducible.
func RoundUSD(value decimal.Decimal, decimals uint8) decimal.Decimal {
	return value.Round(int32(decimals))
}
