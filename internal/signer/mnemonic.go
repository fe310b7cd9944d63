package signer

import (
	"fmt"
	"os"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// MnemonicEntropyBits is the entropy size for 24-word mnemonics.
const MnemonicEntropyBits = 256

// GenerateMnemonic creates a new 24-word BIP-39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// NormalizeMnemonic collapses whitespace and lowercases the words.
func NormalizeMnemonic(m string) string {
	return strings.Join(strings.Fields(strings.ToLower(m)), " ")
}

// ValidateMnemonic checks word count, words and checksum.
func ValidateMnemonic(m string) error {
	if !bip39.IsMnemonicValid(NormalizeMnemonic(m)) {
		return fmt.Errorf("invalid mnemonic")
	}
	return nil
}

// ReadMnemonicFile loads and validates a mnemonic stored in path.
func ReadMnemonicFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read mnemonic file: %w", err)
	}
	m := NormalizeMnemonic(string(data))
	if err := ValidateMnemonic(m); err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// WriteMnemonicFile stores a validated mnemonic with owner-only permissions.
// It refuses to overwrite an existing file.
func WriteMnemonicFile(path, mnemonic string) error {
	m := NormalizeMnemonic(mnemonic)
	if err := ValidateMnemonic(m); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("create mnemonic file: %w", err)
	}
	if _, err := f.WriteString(m + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("write mnemonic file: %w", err)
	}
	return f.Close()
}
