// Package config handles daemon configuration and the static network catalog.
//
// Configuration is split into two categories:
//   - Catalog: networks, default RPC endpoints, built-in tokens and explorer
//     templates, compiled in (networks.go, tokens.go, explorers.go)
//   - Daemon settings: runtime configuration loaded from defaults, the
//     .conf file and command-line flags
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet deployments of the daemon.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds daemon runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// JSON-RPC API server
	RPC RPCConfig

	// Signing oracle
	Signer SignerConfig

	// Outbound HTTP to chain RPC endpoints
	HTTP HTTPConfig

	// Initial owner, applied only while the persisted state has none.
	Owner string `conf:"admin.owner"`

	// ChainRPC holds chain.<network>.rpc overrides keyed by normalized network.
	// They seed the persisted RPC table on first start.
	ChainRPC map[string]string

	// Logging
	Log LogConfig
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
	// Tokens maps caller ids to the bearer token that authenticates them.
	Tokens map[string]string `conf:"rpc.auth.<caller>"`
}

// SignerMode selects the signing oracle implementation.
type SignerMode string

const (
	// SignerLocal derives keys in-process from a BIP39 mnemonic.
	SignerLocal SignerMode = "local"
)

// SignerConfig holds signing oracle settings.
type SignerConfig struct {
	Mode         SignerMode `conf:"signer.mode"`
	MnemonicFile string     `conf:"signer.mnemonic_file"` // plaintext mnemonic
	Keystore     string     `conf:"signer.keystore"`      // encrypted mnemonic
	PasswordFile string     `conf:"signer.password_file"` // keystore password
	ECDSAKey     string     `conf:"signer.ecdsa_key"`     // key name reported for secp256k1
	SchnorrKey   string     `conf:"signer.schnorr_key"`   // key name reported for Schnorr
}

// HTTPConfig bounds outbound chain RPC calls.
type HTTPConfig struct {
	Timeout     time.Duration `conf:"http.timeout"`
	MaxResponse int64         `conf:"http.max_response"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingnet-wallet
//	macOS:   ~/Library/Application Support/KlingnetWallet
//	Windows: %APPDATA%\KlingnetWallet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet-wallet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "KlingnetWallet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "KlingnetWallet")
		}
		return filepath.Join(home, "AppData", "Roaming", "KlingnetWallet")
	default:
		return filepath.Join(home, ".klingnet-wallet")
	}
}

// NetworkDataDir returns the deployment-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// StateDir returns the persisted admin state database directory.
func (c *Config) StateDir() string {
	return filepath.Join(c.NetworkDataDir(), "state")
}

// KeystoreDir returns the directory holding signer key material.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// KeystorePath returns the encrypted signer keystore location.
func (c *Config) KeystorePath() string {
	if c.Signer.Keystore != "" {
		return c.Signer.Keystore
	}
	return filepath.Join(c.KeystoreDir(), "signer.keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "walletd.conf")
}
