package evm

import (
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Address is a 20-byte account address.
type Address [20]byte

// String returns lowercase 0x-prefixed hex.
func (a Address) String() string {
	return types.EncodeHex0x(a[:])
}

// AddressFromPubKey computes keccak256(uncompressed[1:])[12:].
func AddressFromPubKey(pubKey []byte) (Address, error) {
	var addr Address
	uncompressed, err := crypto.UncompressedPubKey(pubKey)
	if err != nil {
		return addr, err
	}
	h := crypto.Keccak256(uncompressed[1:])
	copy(addr[:], h[12:])
	return addr, nil
}

// ParseAddress accepts a 0x-prefixed 40-hex-digit address in any case.
func ParseAddress(s string) (Address, error) {
	var addr Address
	s = strings.TrimSpace(s)
	digits, ok := cutHexPrefix(s)
	if !ok || len(digits) != 40 {
		return addr, fmt.Errorf("EVM account must be a 0x-prefixed 20-byte hex address")
	}
	b, err := types.DecodeHex(digits)
	if err != nil {
		return addr, fmt.Errorf("EVM account must be a 0x-prefixed 20-byte hex address")
	}
	copy(addr[:], b)
	return addr, nil
}

// NormalizeAddress parses s and returns its lowercase form.
func NormalizeAddress(s string) (string, error) {
	addr, err := ParseAddress(s)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}
