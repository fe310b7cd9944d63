package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

// PDA errors.
var (
	ErrSeedTooLong = errors.New("solana PDA seed length exceeds 32 bytes")
	ErrNoBump      = errors.New("failed to derive valid Solana program-derived address")
)

const pdaMarker = "ProgramDerivedAddress"

// IsOnCurve reports whether b decodes to an ed25519 point.
func IsOnCurve(b PublicKey) bool {
	_, err := new(edwards25519.Point).SetBytes(b[:])
	return err == nil
}

// CreateProgramAddress hashes seeds || programID || "ProgramDerivedAddress".
// ok is false when the result lies on the curve.
func CreateProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, bool, error) {
	h := sha256.New()
	for _, s := range seeds {
		if len(s) > 32 {
			return PublicKey{}, false, ErrSeedTooLong
		}
		h.Write(s)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))
	var addr PublicKey
	copy(addr[:], h.Sum(nil))
	if IsOnCurve(addr) {
		return PublicKey{}, false, nil
	}
	return addr, true, nil
}

// FindProgramAddress tries bumps 255 down to 0 and returns the first
// off-curve address with its bump.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, byte, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, ok, err := CreateProgramAddress(withBump, programID)
		if err != nil {
			return PublicKey{}, 0, err
		}
		if ok {
			return addr, byte(bump), nil
		}
	}
	return PublicKey{}, 0, ErrNoBump
}

// AssociatedTokenAddress derives the ATA of owner for mint.
func AssociatedTokenAddress(owner, mint PublicKey) (PublicKey, error) {
	addr, _, err := FindProgramAddress(
		[][]byte{owner[:], TokenProgramID[:], mint[:]},
		AssociatedTokenProgramID,
	)
	if err != nil {
		return PublicKey{}, fmt.Errorf("derive associated token address: %w", err)
	}
	return addr, nil
}
