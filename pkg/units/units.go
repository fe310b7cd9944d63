// Package units converts between decimal amount text and integer minor units.
package units

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is matched (errors.Is) by every parse failure.
var ErrInvalidAmount = errors.New("invalid amount")

// AmountError describes which amount constraint was violated.
type AmountError struct {
	Msg string
}

func (e *AmountError) Error() string { return e.Msg }

// Is reports whether target is ErrInvalidAmount.
func (e *AmountError) Is(target error) bool { return target == ErrInvalidAmount }

func amountErr(format string, args ...interface{}) error {
	return &AmountError{Msg: fmt.Sprintf(format, args...)}
}

// Parse converts decimal text "W.F" into W*10^decimals + F (F right-padded).
func Parse(text string, decimals int) (*big.Int, error) {
	v := strings.TrimSpace(text)
	if v == "" {
		return nil, amountErr("amount is required")
	}
	if strings.HasPrefix(v, "-") {
		return nil, amountErr("amount must be positive")
	}
	parts := strings.Split(v, ".")
	if len(parts) > 2 {
		return nil, amountErr("invalid decimal amount format")
	}
	whole := parts[0]
	frac := ""
	hasFrac := len(parts) == 2
	if hasFrac {
		frac = parts[1]
	}
	if whole == "" && frac == "" {
		return nil, amountErr("amount is required")
	}
	if !allDigits(whole) || !allDigits(frac) {
		return nil, amountErr("amount has non-digit characters")
	}
	if len(frac) > decimals {
		return nil, amountErr("amount supports at most %d decimal places", decimals)
	}

	out := new(big.Int)
	if whole != "" {
		out.SetString(whole, 10)
	}
	out.Mul(out, pow10(decimals))
	if frac != "" {
		f, _ := new(big.Int).SetString(frac+strings.Repeat("0", decimals-len(frac)), 10)
		out.Add(out, f)
	}
	return out, nil
}

// ParseUint64 is Parse bounded to the uint64 range.
func ParseUint64(text string, decimals int) (uint64, error) {
	n, err := Parse(text, decimals)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, amountErr("amount is too large")
	}
	return n.Uint64(), nil
}

// ParseBTC parses a BTC amount into satoshis. Digit group separators
// ('_' and ',') are accepted and ignored.
func ParseBTC(text string) (uint64, error) {
	v := strings.TrimSpace(text)
	if strings.Count(v, ".") > 1 {
		return 0, amountErr("invalid decimal amount format")
	}
	v = strings.NewReplacer("_", "", ",", "").Replace(v)
	sats, err := Parse(v, 8)
	if err != nil {
		return 0, err
	}
	if !sats.IsUint64() || sats.Uint64() > math.MaxInt64 {
		return 0, amountErr("amount too large")
	}
	return sats.Uint64(), nil
}

// Format renders value/10^decimals without exponent notation, trimming
// trailing fractional zeros and a dangling point.
func Format(value *big.Int, decimals int) string {
	if value == nil || value.Sign() == 0 {
		return "0"
	}
	return decimal.NewFromBigInt(value, int32(-decimals)).String()
}

// FormatUint64 is Format for uint64 values.
func FormatUint64(value uint64, decimals int) string {
	return Format(new(big.Int).SetUint64(value), decimals)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
