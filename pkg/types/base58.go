package types

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Base58 errors.
var (
	ErrBase58Empty    = errors.New("base58 string is required")
	ErrBase58Checksum = errors.New("base58check checksum mismatch")
)

// Base58Encode encodes b with the Bitcoin alphabet. Each leading zero byte
// becomes one leading '1'.
func Base58Encode(b []byte) string {
	return base58.Encode(b)
}

// Base58Decode is the inverse of Base58Encode.
func Base58Decode(s string) ([]byte, error) {
	if s == "" {
		return nil, ErrBase58Empty
	}
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base58: %w", err)
	}
	return b, nil
}

// Base58CheckEncode appends the first four bytes of double-SHA256(payload)
// and base58-encodes the result.
func Base58CheckEncode(payload []byte) string {
	buf := make([]byte, 0, len(payload)+4)
	buf = append(buf, payload...)
	buf = append(buf, checksum4(payload)...)
	return base58.Encode(buf)
}

// Base58CheckDecode verifies and strips the 4-byte checksum.
func Base58CheckDecode(s string) ([]byte, error) {
	raw, err := Base58Decode(s)
	if err != nil {
		return nil, err
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("base58check: payload too short")
	}
	payload, sum := raw[:len(raw)-4], raw[len(raw)-4:]
	if !bytes.Equal(sum, checksum4(payload)) {
		return nil, ErrBase58Checksum
	}
	return payload, nil
}

func checksum4(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:4]
}
