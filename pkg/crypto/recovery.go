package crypto

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Recovery errors.
var (
	ErrNoRecoveryID = errors.New("no recovery id matches the signer public key")
	ErrXReducedID   = errors.New("x-reduced recovery id is not supported")
)

// NormalizeLowS returns a copy of the 64-byte r||s signature with s in the
// lower half of the curve order.
func NormalizeLowS(sig []byte) ([]byte, error) {
	if len(sig) != 64 {
		return nil, fmt.Errorf("ecdsa signature must be 64 bytes, got %d", len(sig))
	}
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow || r.IsZero() {
		return nil, fmt.Errorf("ecdsa signature r out of range")
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow || s.IsZero() {
		return nil, fmt.Errorf("ecdsa signature s out of range")
	}
	if s.IsOverHalfOrder() {
		s.Negate()
	}
	out := make([]byte, 64)
	r.PutBytesUnchecked(out[:32])
	s.PutBytesUnchecked(out[32:])
	return out, nil
}

// RecoveryID finds the recovery id of an r||s signature over digest for the
// given public key. The returned signature is the low-S form the id belongs to.
func RecoveryID(digest, sig, pubKey []byte) (byte, []byte, error) {
	if len(digest) != 32 {
		return 0, nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	expected, err := ParsePubKey(pubKey)
	if err != nil {
		return 0, nil, err
	}
	normalized, err := NormalizeLowS(sig)
	if err != nil {
		return 0, nil, err
	}
	want := expected.SerializeCompressed()

	compact := make([]byte, 65)
	copy(compact[1:], normalized)
	for id := byte(0); id < 4; id++ {
		compact[0] = 27 + id
		recovered, _, err := ecdsa.RecoverCompact(compact, digest)
		if err != nil {
			continue
		}
		if !bytes.Equal(recovered.SerializeCompressed(), want) {
			continue
		}
		if id >= 2 {
			return 0, nil, ErrXReducedID
		}
		return id, normalized, nil
	}
	return 0, nil, ErrNoRecoveryID
}
