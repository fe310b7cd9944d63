package signer

import (
	"bytes"
	"path/filepath"
	"testing"
)

// fastParams keeps Argon2id cheap in tests.
var fastParams = SealParams{Memory: 1024, Iterations: 1, Parallelism: 1}

func TestSealOpen(t *testing.T) {
	data := []byte("secret material")
	sealed, err := Seal(data, []byte("pw"), fastParams)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, data) {
		t.Fatal("sealed output contains plaintext")
	}
	got, err := Open(sealed, []byte("pw"))
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("Open = %q, %v", got, err)
	}
	if _, err := Open(sealed, []byte("wrong")); err == nil {
		t.Fatal("wrong password accepted")
	}
	sealed[len(sealed)-1] ^= 1
	if _, err := Open(sealed, []byte("pw")); err == nil {
		t.Fatal("tampered ciphertext accepted")
	}
	if _, err := Open(sealed[:10], []byte("pw")); err == nil {
		t.Fatal("short input accepted")
	}
}

func TestKeystore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signer.keystore")
	if err := CreateKeystore(path, testMnemonic, []byte("pw"), fastParams); err != nil {
		t.Fatalf("CreateKeystore: %v", err)
	}
	if err := CreateKeystore(path, testMnemonic, []byte("pw"), fastParams); err == nil {
		t.Fatal("existing keystore overwritten")
	}
	m, err := OpenKeystore(path, []byte("pw"))
	if err != nil || m != testMnemonic {
		t.Fatalf("OpenKeystore = %q, %v", m, err)
	}
	if _, err := OpenKeystore(path, []byte("nope")); err == nil {
		t.Fatal("wrong password accepted")
	}
	if err := CreateKeystore(filepath.Join(t.TempDir(), "x"), "bad words", []byte("pw"), fastParams); err == nil {
		t.Fatal("invalid mnemonic sealed")
	}
}
