package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

func testKey(t *testing.T, seed byte) *secp256k1.PrivateKey {
	t.Helper()
	b := bytes.Repeat([]byte{seed}, 32)
	return secp256k1.PrivKeyFromBytes(b)
}

// signRS signs digest and returns r||s plus the recovery id dcrd reports.
func signRS(t *testing.T, key *secp256k1.PrivateKey, digest []byte) ([]byte, byte) {
	t.Helper()
	compact := ecdsa.SignCompact(key, digest, true)
	return compact[1:], (compact[0] - 27) & 3
}

func TestRecoveryID_MatchesSigner(t *testing.T) {
	for seed := byte(1); seed < 20; seed++ {
		key := testKey(t, seed)
		digest := Keccak256([]byte{seed, 0xaa})
		sig, wantID := signRS(t, key, digest[:])

		id, normalized, err := RecoveryID(digest[:], sig, key.PubKey().SerializeUncompressed())
		if err != nil {
			t.Fatalf("seed %d: RecoveryID: %v", seed, err)
		}
		if id != wantID {
			t.Errorf("seed %d: id = %d, want %d", seed, id, wantID)
		}
		if !bytes.Equal(normalized, sig) {
			t.Errorf("seed %d: low-S signature should be returned unchanged", seed)
		}
	}
}

func TestRecoveryID_HighSNormalized(t *testing.T) {
	key := testKey(t, 7)
	digest := Sha256([]byte("high-s"))
	sig, wantID := signRS(t, key, digest[:])

	var s secp256k1.ModNScalar
	s.SetByteSlice(sig[32:])
	s.Negate()
	high := make([]byte, 64)
	copy(high, sig[:32])
	s.PutBytesUnchecked(high[32:])

	id, normalized, err := RecoveryID(digest[:], high, key.PubKey().SerializeCompressed())
	if err != nil {
		t.Fatalf("RecoveryID: %v", err)
	}
	if id != wantID || !bytes.Equal(normalized, sig) {
		t.Errorf("high-S signature not normalized: id %d, sig %x", id, normalized)
	}
}

func TestRecoveryID_WrongKey(t *testing.T) {
	digest := Sha256([]byte("wrong key"))
	sig, _ := signRS(t, testKey(t, 1), digest[:])

	_, _, err := RecoveryID(digest[:], sig, testKey(t, 2).PubKey().SerializeCompressed())
	if !errors.Is(err, ErrNoRecoveryID) {
		t.Errorf("err = %v, want ErrNoRecoveryID", err)
	}
}

func TestRecoveryID_InvalidInputs(t *testing.T) {
	pub := testKey(t, 1).PubKey().SerializeCompressed()
	if _, _, err := RecoveryID(make([]byte, 31), make([]byte, 64), pub); err == nil {
		t.Error("short digest should fail")
	}
	if _, _, err := RecoveryID(make([]byte, 32), make([]byte, 63), pub); err == nil {
		t.Error("short signature should fail")
	}
	if _, _, err := RecoveryID(make([]byte, 32), make([]byte, 64), pub); err == nil {
		t.Error("zero r/s should fail")
	}
}

func TestVerify_AllAlgorithms(t *testing.T) {
	key := testKey(t, 3)
	digest := Sha256([]byte("verify"))
	sig, _ := signRS(t, key, digest[:])

	if !VerifyECDSA(digest[:], sig, key.PubKey().SerializeCompressed()) {
		t.Error("VerifyECDSA rejected a valid signature")
	}
	other := Sha256([]byte("other"))
	if VerifyECDSA(other[:], sig, key.PubKey().SerializeCompressed()) {
		t.Error("VerifyECDSA accepted a signature over another digest")
	}
	if VerifySchnorr(digest[:], make([]byte, 64), make([]byte, 32)) {
		t.Error("VerifySchnorr accepted garbage")
	}
	if VerifyEd25519([]byte("m"), make([]byte, 10), make([]byte, 32)) {
		t.Error("VerifyEd25519 accepted a short signature")
	}
}

func TestXOnlyPubKey(t *testing.T) {
	key := testKey(t, 5)
	comp := key.PubKey().SerializeCompressed()

	x, err := XOnlyPubKey(comp)
	if err != nil {
		t.Fatalf("XOnlyPubKey: %v", err)
	}
	if !bytes.Equal(x, comp[1:]) {
		t.Errorf("x-only = %x, want %x", x, comp[1:])
	}
	again, err := XOnlyPubKey(x)
	if err != nil || !bytes.Equal(again, x) {
		t.Errorf("x-only passthrough = %x, %v", again, err)
	}
	uncomp, err := UncompressedPubKey(comp)
	if err != nil || len(uncomp) != 65 || uncomp[0] != 0x04 {
		t.Errorf("UncompressedPubKey = %x, %v", uncomp, err)
	}
}
