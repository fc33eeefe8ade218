package utils

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmountDigits bounds both the significant digits and the exponent of a
// token amount. 78 digits covers any uint256 value.
const MaxAmountDigits = 78

var ErrAmountOutOfRange = errors.New("amount out of range")

// ParseDecimalAmount parses a decimal string, rejecting values whose
// coefficient or exponent would make unit conversion unbounded.
func ParseDecimalAmount(amount string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return decimal.Zero, err
	}
	if exp := d.Exponent(); exp > MaxAmountDigits || exp < -MaxAmountDigits || d.NumDigits() > MaxAmountDigits {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrAmountOutOfRange, amount)
	}
	return d, nil
}

// ParseTokenAmount converts a decimal string into integer token units,
// truncating digits beyond the token's precision. Unparseable or out of range
// input yields zero and a warning; callers must reject zero amounts themselves.
func ParseTokenAmount(logger *slog.Logger, amount string, decimals int32) *big.Int {
	if logger == nil {
		logger = slog.Default()
	}

	d, err := ParseDecimalAmount(amount)
	if err != nil {
		logger.Warn("failed to parse token amount, using zero",
			"amount", amount,
			"decimals", decimals,
			"error", err)
		return new(big.Int)
	}

	return d.Shift(decimals).Truncate(0).BigInt()
}

// FormatTokenAmount renders integer token units as a decimal string
func FormatTokenAmount(units *big.Int, decimals int32) string {
	return UnitsToDecimal(units, decimals).String()
}

// UnitsToDecimal converts integer token units to a decimal token amount
func UnitsToDecimal(units *big.Int, decimals int32) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -decimals)
}
