package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads daemon configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a daemon config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value
	case "admin.owner":
		cfg.Owner = value

	// RPC
	case "rpc.enabled", "rpc":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.RPC.Port = port
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	// Signer
	case "signer.mode":
		cfg.Signer.Mode = SignerMode(strings.ToLower(value))
	case "signer.mnemonic_file":
		cfg.Signer.MnemonicFile = value
	case "signer.keystore":
		cfg.Signer.Keystore = value
	case "signer.password_file":
		cfg.Signer.PasswordFile = value
	case "signer.ecdsa_key":
		cfg.Signer.ECDSAKey = value
	case "signer.schnorr_key":
		cfg.Signer.SchnorrKey = value

	// Outbound HTTP
	case "http.timeout":
		d, err := parseDuration(value)
		if err != nil {
			return err
		}
		cfg.HTTP.Timeout = d
	case "http.max_response":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.HTTP.MaxResponse = n

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		if caller, ok := strings.CutPrefix(key, "rpc.auth."); ok {
			if cfg.RPC.Tokens == nil {
				cfg.RPC.Tokens = make(map[string]string)
			}
			cfg.RPC.Tokens[caller] = value
			return nil
		}
		if network, ok := chainRPCKey(key); ok {
			if cfg.ChainRPC == nil {
				cfg.ChainRPC = make(map[string]string)
			}
			cfg.ChainRPC[network] = value
		}
		// Unknown keys are ignored
	}
	return nil
}

// chainRPCKey extracts the network from a chain.<network>.rpc key.
func chainRPCKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, "chain.")
	if !ok {
		return "", false
	}
	network, ok := strings.CutSuffix(rest, ".rpc")
	if !ok || network == "" {
		return "", false
	}
	return NormalizeNetwork(network), true
}

// parseDuration accepts Go durations ("15s") or whole seconds ("15").
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default daemon configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	content := `# Klingnet Wallet Daemon Configuration
#
# Network catalog, built-in tokens and explorer templates are compiled in.
# Runtime changes (owner, pause, custom tokens, RPC overrides) are persisted
# in the state database, not in this file.

# Deployment: mainnet or testnet
network = ` + string(network) + `

# Data directory (default: ~/.klingnet-wallet)
# datadir = ~/.klingnet-wallet

# Initial owner principal, used until an owner is rotated in
# admin.owner =

# ============================================================================
# RPC Server
# ============================================================================

rpc.enabled = true
rpc.addr = 127.0.0.1
rpc.port = ` + defaultRPCPort(network) + `
rpc.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# rpc.cors = http://localhost:3000
# Bearer tokens, one per caller. Requests without a token act as anonymous.
# rpc.auth.alice = <random token, 16+ characters>

# ============================================================================
# Signer
# ============================================================================

signer.mode = local
# Encrypted mnemonic (default: <datadir>/<network>/keystore/signer.keystore)
# signer.keystore =
# File holding the keystore password (otherwise prompted on start)
# signer.password_file =
# Plaintext mnemonic file, for development only
# signer.mnemonic_file =
signer.ecdsa_key = local_ecdsa
signer.schnorr_key = local_schnorr

# ============================================================================
# Chain RPC
# ============================================================================

http.timeout = 30s
http.max_response = ` + strconv.Itoa(DefaultHTTPMaxResponse) + `

# Endpoint overrides, one per network (seed the runtime RPC table)
# chain.eth.rpc = https://ethereum-rpc.publicnode.com
# chain.btc.rpc = https://blockstream.info/api
# chain.eip155:84532.rpc = https://sepolia.base.org

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}

func defaultRPCPort(network NetworkType) string {
	if network == Testnet {
		return "8865"
	}
	return "8765"
}
