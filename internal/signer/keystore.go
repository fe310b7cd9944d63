package signer

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	saltSize = 32
	// sealed layout: salt(32) | memory(4) | iterations(4) | parallelism(1) | nonce(24) | ciphertext
	sealHeaderSize = saltSize + 4 + 4 + 1

	keystoreVersion = 1
)

// SealParams holds Argon2id parameters.
type SealParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultSealParams returns recommended Argon2id parameters.
func DefaultSealParams() SealParams {
	return SealParams{Memory: 64 * 1024, Iterations: 3, Parallelism: 4}
}

func sealKey(password, salt []byte, p SealParams) []byte {
	return argon2.IDKey(password, salt, p.Iterations, p.Memory, p.Parallelism, chacha20poly1305.KeySize)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Seal encrypts data with Argon2id + XChaCha20-Poly1305.
func Seal(data, password []byte, p SealParams) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	key := sealKey(password, salt, p)
	defer wipe(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, sealHeaderSize+len(nonce)+len(data)+aead.Overhead())
	out = append(out, salt...)
	out = binary.LittleEndian.AppendUint32(out, p.Memory)
	out = binary.LittleEndian.AppendUint32(out, p.Iterations)
	out = append(out, p.Parallelism)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, data, nil), nil
}

// Open decrypts data produced by Seal.
func Open(sealed, password []byte) ([]byte, error) {
	nonceSize := chacha20poly1305.NonceSizeX
	if min := sealHeaderSize + nonceSize + chacha20poly1305.Overhead; len(sealed) < min {
		return nil, fmt.Errorf("sealed data too short: %d bytes, need at least %d", len(sealed), min)
	}
	p := SealParams{
		Memory:      binary.LittleEndian.Uint32(sealed[saltSize:]),
		Iterations:  binary.LittleEndian.Uint32(sealed[saltSize+4:]),
		Parallelism: sealed[saltSize+8],
	}
	nonce := sealed[sealHeaderSize : sealHeaderSize+nonceSize]
	ciphertext := sealed[sealHeaderSize+nonceSize:]

	key := sealKey(password, sealed[:saltSize], p)
	defer wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plain, nil
}

type keystoreFile struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Mnemonic  []byte    `json:"encrypted_mnemonic"`
}

// CreateKeystore writes mnemonic, sealed with password, to a new file.
func CreateKeystore(path, mnemonic string, password []byte, p SealParams) error {
	m := NormalizeMnemonic(mnemonic)
	if err := ValidateMnemonic(m); err != nil {
		return err
	}
	sealed, err := Seal([]byte(m), password, p)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(keystoreFile{
		Version:   keystoreVersion,
		CreatedAt: time.Now().UTC(),
		Mnemonic:  sealed,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode keystore: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("create keystore: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write keystore: %w", err)
	}
	return f.Close()
}

// OpenKeystore decrypts the mnemonic stored at path.
func OpenKeystore(path string, password []byte) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read keystore: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", fmt.Errorf("parse keystore: %w", err)
	}
	if kf.Version != keystoreVersion {
		return "", fmt.Errorf("unsupported keystore version %d", kf.Version)
	}
	plain, err := Open(kf.Mnemonic, password)
	if err != nil {
		return "", err
	}
	defer wipe(plain)
	m := NormalizeMnemonic(string(plain))
	if err := ValidateMnemonic(m); err != nil {
		return "", err
	}
	return m, nil
}
