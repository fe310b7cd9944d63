// Package tron handles TRON addresses, transaction ids and the 65-byte
// recoverable signature format accepted by wallet/broadcasttransaction.
package tron

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingnet-wallet/pkg/evm"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

const (
	// AddressPrefix is the mainnet version byte.
	AddressPrefix byte = 0x41
	// Decimals of SUN per TRX.
	Decimals = 6
	// DefaultFeeLimit caps TRC20 energy spend, in SUN.
	DefaultFeeLimit uint64 = 100_000_000
)

var ErrAddressRequired = errors.New("TRON address is required")

// Address is the 21-byte 0x41-prefixed account id.
type Address [21]byte

// AddressFromPubKey derives the account of a secp256k1 public key: the EVM
// keccak address with the TRON prefix.
func AddressFromPubKey(pubKey []byte) (Address, error) {
	evmAddr, err := evm.AddressFromPubKey(pubKey)
	if err != nil {
		return Address{}, err
	}
	return FromEVM(evmAddr), nil
}

// FromEVM prefixes a 20-byte address.
func FromEVM(a evm.Address) Address {
	var out Address
	out[0] = AddressPrefix
	copy(out[1:], a[:])
	return out
}

// EVM strips the prefix, giving the form used inside ABI arguments.
func (a Address) EVM() evm.Address {
	var out evm.Address
	copy(out[:], a[1:])
	return out
}

// String is the base58check ("T...") form.
func (a Address) String() string { return types.Base58CheckEncode(a[:]) }

// Hex is the 41-prefixed hex form.
func (a Address) Hex() string { return types.EncodeHex(a[:]) }

// ParseAddress accepts base58check, 21-byte hex with the 0x41 prefix, or
// 20-byte hex.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, ErrAddressRequired
	}
	var payload []byte
	if strings.HasPrefix(s, "T") {
		raw, err := types.Base58CheckDecode(s)
		if err != nil {
			return Address{}, fmt.Errorf("invalid TRON address: %w", err)
		}
		if len(raw) != 21 {
			return Address{}, fmt.Errorf("TRON base58check address length invalid")
		}
		payload = raw
	} else {
		raw, err := types.DecodeHex(s)
		if err != nil {
			return Address{}, err
		}
		switch len(raw) {
		case 21:
			payload = raw
		case 20:
			payload = append([]byte{AddressPrefix}, raw...)
		default:
			return Address{}, fmt.Errorf("TRON address must be base58check or 20/21-byte hex")
		}
	}
	if payload[0] != AddressPrefix {
		return Address{}, fmt.Errorf("TRON address payload must start with 0x41")
	}
	var a Address
	copy(a[:], payload)
	return a, nil
}

// ShortSuffix is the upper-cased last six characters of an address text,
// used to name tokens without metadata.
func ShortSuffix(s string) string {
	if len(s) > 6 {
		s = s[len(s)-6:]
	}
	return strings.ToUpper(s)
}
