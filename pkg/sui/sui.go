// Package sui derives Sui addresses, computes the intent-prefixed
// transaction digest and picks coin objects for payments.
package sui

import (
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

const (
	Decimals = 9
	CoinType = "0x2::sui::SUI"

	FlagEd25519 byte = 0x00

	NativeGasBudget uint64 = 2_000_000
	TokenGasBudget  uint64 = 5_000_000

	DefaultGasPrice uint64 = 1000
)

// intent prefix: TransactionData scope, V0, Sui app id.
var txIntent = []byte{0, 0, 0}

var (
	ErrAddressRequired = errors.New("Sui address is required")
	ErrNoGasCoin       = errors.New("no SUI gas coin covers the gas budget")
)

// AddressFromPubKey is blake2b-256(flag || pub) in 0x hex.
func AddressFromPubKey(pub []byte) (string, error) {
	if len(pub) != 32 {
		return "", fmt.Errorf("Sui pubkey must be 32 bytes")
	}
	h := crypto.Blake2b256([]byte{FlagEd25519}, pub)
	return types.EncodeHex0x(h[:]), nil
}

// NormalizeAddress left-pads to 64 lowercase hex digits with a 0x prefix.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrAddressRequired
	}
	digits := strings.TrimPrefix(s, "0x")
	if digits == "" {
		return "", fmt.Errorf("invalid Sui address hex")
	}
	for _, r := range digits {
		if !('0' <= r && r <= '9' || 'a' <= r && r <= 'f' || 'A' <= r && r <= 'F') {
			return "", fmt.Errorf("invalid Sui address hex")
		}
	}
	if len(digits) > 64 {
		return "", fmt.Errorf("Sui address is too long")
	}
	return "0x" + strings.Repeat("0", 64-len(digits)) + strings.ToLower(digits), nil
}

// TxDigest is the message signed for a transaction: blake2b-256 over the
// intent prefix and the BCS transaction bytes.
func TxDigest(txBytes []byte) types.Hash {
	return crypto.Blake2b256(txIntent, txBytes)
}

// TransactionDigest is the base58 transaction id the network assigns:
// blake2b-256 over "TransactionData::" and the BCS transaction bytes.
func TransactionDigest(txBytes []byte) string {
	h := crypto.Blake2b256([]byte("TransactionData::"), txBytes)
	return types.Base58Encode(h[:])
}

// SerializedSignature is base64(flag || sig || pub).
func SerializedSignature(sig, pub []byte) (string, error) {
	if len(sig) != 64 {
		return "", fmt.Errorf("unexpected Sui signature length: %d", len(sig))
	}
	if len(pub) != 32 {
		return "", fmt.Errorf("Sui pubkey must be 32 bytes")
	}
	buf := make([]byte, 0, 97)
	buf = append(buf, FlagEd25519)
	buf = append(buf, sig...)
	buf = append(buf, pub...)
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Coin is an owned coin object.
type Coin struct {
	ID      string
	Balance uint64
}

// SelectCoins takes coins in the order given until their total covers
// needed.
func SelectCoins(coins []Coin, coinType string, needed uint64) ([]string, error) {
	var ids []string
	var total uint64
	for _, c := range coins {
		ids = append(ids, c.ID)
		if total+c.Balance < total {
			total = ^uint64(0)
		} else {
			total += c.Balance
		}
		if total >= needed {
			return ids, nil
		}
	}
	return nil, fmt.Errorf("insufficient Sui coin objects for %s: need %d, found %d", coinType, needed, total)
}

// SelectGasCoin picks the largest SUI coin that covers budget*price.
func SelectGasCoin(coins []Coin, budget, price uint64) (string, error) {
	need := budget * price
	if price != 0 && need/price != budget {
		return "", ErrNoGasCoin
	}
	sorted := slices.Clone(coins)
	slices.SortStableFunc(sorted, func(a, b Coin) int {
		switch {
		case a.Balance > b.Balance:
			return -1
		case a.Balance < b.Balance:
			return 1
		}
		return 0
	})
	if len(sorted) == 0 || sorted[0].Balance < need {
		return "", fmt.Errorf("%w (budget %d @ price %d)", ErrNoGasCoin, budget, price)
	}
	return sorted[0].ID, nil
}
