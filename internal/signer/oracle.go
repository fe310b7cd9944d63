// Package signer defines the signing oracle the wallet delegates all key
// operations to, and a deterministic local implementation for development
// and tests. Wallet code only ever sees public keys and signatures.
package signer

import (
	"context"
	"errors"
	"fmt"
)

// Algorithm selects the key family of an oracle call.
type Algorithm int

const (
	ECDSASecp256k1 Algorithm = iota + 1
	SchnorrBIP340
	SchnorrEd25519
)

func (a Algorithm) String() string {
	switch a {
	case ECDSASecp256k1:
		return "ecdsa-secp256k1"
	case SchnorrBIP340:
		return "schnorr-bip340"
	case SchnorrEd25519:
		return "schnorr-ed25519"
	}
	return fmt.Sprintf("algorithm(%d)", int(a))
}

// SignatureSize is 64 for every algorithm: r||s for ECDSA, (R, s) for the
// Schnorr families.
const SignatureSize = 64

// ErrUnknownAlgorithm is returned for an Algorithm outside the constants.
var ErrUnknownAlgorithm = errors.New("unknown signing algorithm")

// Path is an ordered list of opaque derivation components.
type Path [][]byte

// SignRequest asks the oracle to sign Message with the key at Path.
type SignRequest struct {
	Path      Path
	Algorithm Algorithm
	// Message is a 32-byte digest for the secp256k1 families and the full
	// message for Ed25519.
	Message []byte
	// TaprootKeySpend signs with the BIP341 key-path tweak of the BIP340
	// key (empty script tree).
	TaprootKeySpend bool
}

// PublicKey is an oracle public key with the label of the master key it
// was derived from.
type PublicKey struct {
	Key     []byte
	KeyName string
}

// Oracle is the signing service. Public keys are 33-byte compressed SEC1
// for both secp256k1 families and 32 bytes for Ed25519.
type Oracle interface {
	PublicKey(ctx context.Context, path Path, algo Algorithm) (*PublicKey, error)
	Sign(ctx context.Context, req SignRequest) ([]byte, error)
}
