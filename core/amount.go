package core

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

// ErrMalformedAmount indicates an amount that is not a non-negative integer in
// the token's smallest unit, or has more precision than the token allows.
var ErrMalformedAmount = errors.New("malformed amount")

var maxAmount = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// Amount is a token quantity in the token's smallest unit.
// It travels on the wire as a decimal string, like the chain's Uint128.
type Amount uint64

// ParseAmount parses an integer amount of smallest units.
func ParseAmount(s string) (Amount, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}
	return Amount(v), nil
}

// ParseTokenAmount parses a human amount such as "1.5" into smallest units of a
// token with the given decimals. Amounts with more fractional digits than the
// token supports are rejected.
func ParseTokenAmount(s string, decimals uint8) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %q is negative", ErrMalformedAmount, s)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q exceeds %d decimals", ErrMalformedAmount, s, decimals)
	}
	if scaled.GreaterThan(maxAmount) {
		return 0, fmt.Errorf("%w: %q overflows", ErrMalformedAmount, s)
	}
	return Amount(scaled.BigInt().Uint64()), nil
}

// Decimal returns the amount as an exact decimal.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(a)), 0)
}

// Format renders the amount in whole tokens for a token with the given decimals.
func (a Amount) Format(decimals uint8) string {
	return a.Decimal().Shift(-int32(decimals)).String()
}

func (a Amount) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

// MarshalJSON encodes the amount as a quoted decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(a.String())), nil
}

// UnmarshalJSON accepts a quoted decimal string or a bare integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrMalformedAmount, s)
		}
		s = unquoted
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func fromDecimal(d decimal.Decimal) Amount {
	if d.IsNegative() {
		return 0
	}
	if d.GreaterThan(maxAmount) {
		return math.MaxUint64
	}
	return Amount(d.BigInt().Uint64())
}
