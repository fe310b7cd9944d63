package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/signer"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// loadMnemonic reads the signer mnemonic: a plaintext mnemonic file when
// configured, else the encrypted keystore.
func loadMnemonic(cfg *config.Config, password PasswordFunc) (string, error) {
	if cfg.Signer.MnemonicFile != "" {
		return signer.ReadMnemonicFile(expandHome(cfg.Signer.MnemonicFile))
	}

	path := expandHome(cfg.KeystorePath())
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("no key material: set signer.mnemonic_file or create %s with wallet-cli keystore create", path)
		}
		return "", err
	}
	pw, err := loadPassword(cfg.Signer.PasswordFile, password)
	if err != nil {
		return "", err
	}
	defer clear(pw)
	return signer.OpenKeystore(path, pw)
}

// loadPassword reads the first line of the password file, or asks prompt.
func loadPassword(file string, prompt PasswordFunc) ([]byte, error) {
	if file != "" {
		data, err := os.ReadFile(expandHome(file))
		if err != nil {
			return nil, fmt.Errorf("read password file: %w", err)
		}
		line, _, _ := strings.Cut(string(data), "\n")
		return []byte(strings.TrimRight(line, "\r")), nil
	}
	if prompt == nil {
		return nil, fmt.Errorf("keystore is encrypted: set signer.password_file")
	}
	return prompt()
}
