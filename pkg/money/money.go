// Package money converts between the minor units (cents) the engine stores
// and the decimal major units callers send and receive.
//
// Invariants:
//   - Stored amounts are always int64 cents.
//   - Major-unit input carries at most two fractional digits.
//   - Rate application rounds half away from zero to the nearest cent.
package money

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits of the settlement currency.
const Decimals = 2

var (
	// ErrInvalidAmount is returned for negative or unparsable amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrTooPrecise is returned when an amount has sub-cent precision.
	ErrTooPrecise = errors.New("amount has more than two decimal places")
)

// FromMajor converts a major-unit decimal (e.g. 25.50) to cents.
func FromMajor(d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, ErrInvalidAmount
	}
	if !d.Equal(d.Truncate(Decimals)) {
		return 0, ErrTooPrecise
	}
	return d.Shift(Decimals).IntPart(), nil
}

// ParseMajor parses a major-unit string such as "25" or "0.99" into cents.
func ParseMajor(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromMajor(d)
}

// ToMajor converts cents into a major-unit decimal.
func ToMajor(cents int64) decimal.Decimal {
	return decimal.New(cents, -Decimals)
}

// Format renders cents as a fixed two-digit major-unit string.
func Format(cents int64) string {
	return ToMajor(cents).StringFixed(Decimals)
}

// ApplyRate returns cents*rate rounded to the nearest cent.
func ApplyRate(cents int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(cents).Mul(rate).Round(0).IntPart()
}

// Amount is a cents value that travels over JSON as a major-unit number.
type Amount int64

// Cents returns the amount in minor units.
func (a Amount) Cents() int64 { return int64(a) }

func (a Amount) String() string { return Format(int64(a)) }

// MarshalJSON encodes the amount as a bare decimal number, e.g. 25.00.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(Format(int64(a))), nil
}

// UnmarshalJSON accepts both numbers (25.5) and strings ("25.50").
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*a = 0
		return nil
	}
	c, err := ParseMajor(string(b))
	if err != nil {
		return err
	}
	*a = Amount(c)
	return nil
}
