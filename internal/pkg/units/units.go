// Package units holds the fixed-point helpers shared by the engine.
//
// Every monetary quantity is an unsigned 256-bit integer scaled by 10^18.
// Every percentage is an integer number of basis points where 10000 is 100%.
// Division always truncates toward zero.
package units

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	Decimals = 18
	// BpsDenominator is 100% expressed in basis points.
	BpsDenominator uint64 = 10000
)

var (
	ErrOverflow    = errors.New("amount overflows 256 bits")
	ErrNegative    = errors.New("amount must not be negative")
	ErrTooPrecise  = errors.New("amount has more than 18 decimal places")
	ErrEmptyAmount = errors.New("amount is empty")

	bpsDen = uint256.NewInt(BpsDenominator)
)

// Parse converts a human decimal string ("10000", "0.25") into 18-decimal fixed point.
func Parse(raw string) (uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uint256.Int{}, ErrEmptyAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if d.IsNegative() {
		return uint256.Int{}, ErrNegative
	}
	scaled := d.Shift(Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return uint256.Int{}, ErrTooPrecise
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return uint256.Int{}, ErrOverflow
	}
	return *v, nil
}

// MustParse is Parse for constants and tests.
func MustParse(raw string) uint256.Int {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// Format renders a fixed-point value as a trimmed decimal string.
func Format(v uint256.Int) string {
	return decimal.NewFromBigInt(v.ToBig(), -Decimals).String()
}

// ToDecimal exposes a fixed-point value to code that needs decimal arithmetic.
func ToDecimal(v uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v.ToBig(), -Decimals)
}

// FromDecimal truncates a decimal to 18 places and converts it back to fixed point.
func FromDecimal(d decimal.Decimal) (uint256.Int, error) {
	if d.IsNegative() {
		return uint256.Int{}, ErrNegative
	}
	v, overflow := uint256.FromBig(d.Shift(Decimals).Truncate(0).BigInt())
	if overflow {
		return uint256.Int{}, ErrOverflow
	}
	return *v, nil
}

// ParseRaw reads a base-10 integer that is already scaled (as stored in NUMERIC columns).
func ParseRaw(raw string) (uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uint256.Int{}, nil
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("invalid raw amount %q: %w", raw, err)
	}
	return *v, nil
}

// MulBps returns amount * bps / 10000, truncated.
func MulBps(amount uint256.Int, bps uint64) (uint256.Int, error) {
	var out uint256.Int
	if _, overflow := out.MulDivOverflow(&amount, uint256.NewInt(bps), bpsDen); overflow {
		return uint256.Int{}, ErrOverflow
	}
	return out, nil
}

// RatioBps returns part * 10000 / whole. ok is false when whole is zero.
func RatioBps(part, whole uint256.Int) (uint64, bool) {
	if whole.IsZero() {
		return 0, false
	}
	var out uint256.Int
	if _, overflow := out.MulDivOverflow(&part, bpsDen, &whole); overflow || !out.IsUint64() {
		return 0, false
	}
	return out.Uint64(), true
}

// Add returns a + b or ErrOverflow.
func Add(a, b uint256.Int) (uint256.Int, error) {
	var out uint256.Int
	if _, overflow := out.AddOverflow(&a, &b); overflow {
		return uint256.Int{}, ErrOverflow
	}
	return out, nil
}

// Sub returns a - b. ok is false when b > a.
func Sub(a, b uint256.Int) (uint256.Int, bool) {
	var out uint256.Int
	if _, underflow := out.SubOverflow(&a, &b); underflow {
		return uint256.Int{}, false
	}
	return out, true
}

// AbsDiff returns |a - b|.
func AbsDiff(a, b uint256.Int) uint256.Int {
	var out uint256.Int
	if a.Lt(&b) {
		out.Sub(&b, &a)
	} else {
		out.Sub(&a, &b)
	}
	return out
}
