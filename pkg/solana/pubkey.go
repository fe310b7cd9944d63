// Package solana builds legacy Solana transactions: shortvec, messages,
// system and SPL token instructions, and program-derived addresses.
package solana

import (
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// PublicKey is a 32-byte ed25519 key or program address.
type PublicKey [32]byte

// Well-known program ids.
var (
	SystemProgramID          = PublicKey{}
	TokenProgramID           = MustPublicKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = MustPublicKey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// Decimals of SOL.
const Decimals = 9

// String returns the base58 form.
func (k PublicKey) String() string {
	return types.Base58Encode(k[:])
}

// ParsePublicKey decodes base58 text into a 32-byte key. Blockhashes use
// the same encoding.
func ParsePublicKey(s string) (PublicKey, error) {
	var k PublicKey
	b, err := types.Base58Decode(strings.TrimSpace(s))
	if err != nil {
		return k, err
	}
	if len(b) != 32 {
		return k, fmt.Errorf("solana pubkey/blockhash must decode to 32 bytes (base58)")
	}
	copy(k[:], b)
	return k, nil
}

// MustPublicKey is ParsePublicKey for constants.
func MustPublicKey(s string) PublicKey {
	k, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

// PublicKeyFromBytes copies a raw 32-byte ed25519 key.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var k PublicKey
	if len(b) != 32 {
		return k, fmt.Errorf("unexpected ed25519 public key length: %d", len(b))
	}
	copy(k[:], b)
	return k, nil
}
