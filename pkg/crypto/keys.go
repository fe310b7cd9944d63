package crypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ParsePubKey parses a compressed (33-byte) or uncompressed (65-byte)
// secp256k1 public key.
func ParsePubKey(b []byte) (*secp256k1.PublicKey, error) {
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("invalid secp256k1 public key: %w", err)
	}
	return pub, nil
}

// UncompressedPubKey returns the 65-byte 0x04-prefixed form of b.
func UncompressedPubKey(b []byte) ([]byte, error) {
	pub, err := ParsePubKey(b)
	if err != nil {
		return nil, err
	}
	return pub.SerializeUncompressed(), nil
}

// CompressedPubKey returns the 33-byte form of b.
func CompressedPubKey(b []byte) ([]byte, error) {
	pub, err := ParsePubKey(b)
	if err != nil {
		return nil, err
	}
	return pub.SerializeCompressed(), nil
}

// XOnlyPubKey returns the 32-byte BIP340 x-only key. A 32-byte input is
// checked for curve membership and returned as is.
func XOnlyPubKey(b []byte) ([]byte, error) {
	if len(b) == 32 {
		if _, err := ParsePubKey(append([]byte{0x02}, b...)); err != nil {
			return nil, err
		}
		out := make([]byte, 32)
		copy(out, b)
		return out, nil
	}
	pub, err := ParsePubKey(b)
	if err != nil {
		return nil, err
	}
	return pub.SerializeCompressed()[1:], nil
}
