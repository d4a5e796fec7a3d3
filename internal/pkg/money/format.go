// internal/pkg/money/format.go
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned by ParseMajorUnits for malformed input
var ErrInvalidAmount = errors.New("invalid amount")

// DefaultCurrencySymbol is the home-market currency symbol
const DefaultCurrencySymbol = "€"

// FormatMinorUnits renders an integer amount of cents as a display string.
// This is the only place minor units become major units.
func FormatMinorUnits(minorUnits int64) string {
	return FormatWithSymbol(minorUnits, DefaultCurrencySymbol)
}

// FormatWithSymbol renders cents with a custom currency symbol
func FormatWithSymbol(minorUnits int64, symbol string) string {
	major := decimal.New(minorUnits, -2)
	if major.IsNegative() {
		return fmt.Sprintf("-%s%s", symbol, major.Neg().StringFixed(2))
	}
	return fmt.Sprintf("%s%s", symbol, major.StringFixed(2))
}

// FormatRate renders a fractional rate as a percentage, e.g. 0.255 -> "25.5%"
func FormatRate(rate decimal.Decimal) string {
	return rate.Shift(2).String() + "%"
}

var (
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// ParseMajorUnits converts user input such as "76.50" or "€76.5" into cents.
// More than two fractional digits is rejected rather than rounded.
func ParseMajorUnits(input string) (int64, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), DefaultCurrencySymbol))
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, input)
	}
	cents := amount.Shift(2)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("%w: %q has more than two decimals", ErrInvalidAmount, input)
	}
	if cents.GreaterThan(maxCents) || cents.LessThan(minCents) {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, input)
	}
	return cents.IntPart(), nil
}
