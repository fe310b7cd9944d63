// Package crypto provides the hash functions and secp256k1 helpers used by
// the chain codecs.
package crypto

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Sha256 computes SHA-256 of the concatenated inputs.
func Sha256(data ...[]byte) types.Hash {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// DoubleSha256 computes SHA-256(SHA-256(data)).
func DoubleSha256(data []byte) types.Hash {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// Keccak256 computes the legacy Keccak-256 used by Ethereum and TRON.
func Keccak256(data ...[]byte) types.Hash {
	var out types.Hash
	copy(out[:], ethcrypto.Keccak256(data...))
	return out
}

// Sha3_256 computes FIPS-202 SHA3-256 (Aptos authentication keys).
func Sha3_256(data ...[]byte) types.Hash {
	h := sha3.New256()
	for _, d := range data {
		h.Write(d)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Blake2b256 computes unkeyed BLAKE2b with a 32-byte digest (Sui).
func Blake2b256(data ...[]byte) types.Hash {
	h, _ := blake2b.New256(nil)
	for _, d := range data {
		h.Write(d)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// TaggedHash computes the BIP340 tagged hash
// SHA256(SHA256(tag) || SHA256(tag) || msgs...).
func TaggedHash(tag string, msgs ...[]byte) types.Hash {
	return types.Hash(*chainhash.TaggedHash([]byte(tag), msgs...))
}
