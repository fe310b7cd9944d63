package crypto

import (
	"crypto/ed25519"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// VerifyECDSA checks a 64-byte r||s signature over a 32-byte digest.
// Returns false on any error.
func VerifyECDSA(digest, sig, pubKey []byte) bool {
	if len(sig) != 64 || len(digest) != 32 {
		return false
	}
	pub, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return false
	}
	var r, s secp256k1.ModNScalar
	if r.SetByteSlice(sig[:32]) || s.SetByteSlice(sig[32:]) {
		return false
	}
	return ecdsa.NewSignature(&r, &s).Verify(digest, pub)
}

// VerifySchnorr checks a BIP340 signature against a 32-byte x-only key.
func VerifySchnorr(msg, sig, xonly []byte) bool {
	pub, err := schnorr.ParsePubKey(xonly)
	if err != nil {
		return false
	}
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(msg, pub)
}

// VerifyEd25519 checks an Ed25519 signature.
func VerifyEd25519(msg, sig, pubKey []byte) bool {
	if len(pubKey) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pubKey, msg, sig)
}
