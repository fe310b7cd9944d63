package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}

	switch cfg.Signer.Mode {
	case "":
		cfg.Signer.Mode = SignerLocal
	case SignerLocal:
	default:
		return fmt.Errorf("signer.mode must be %q", SignerLocal)
	}
	if cfg.Signer.ECDSAKey == "" || cfg.Signer.SchnorrKey == "" {
		return fmt.Errorf("signer.ecdsa_key and signer.schnorr_key must be set")
	}

	if cfg.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}
	if cfg.HTTP.MaxResponse <= 0 {
		return fmt.Errorf("http.max_response must be positive")
	}

	if err := validateChainRPC(cfg.ChainRPC); err != nil {
		return err
	}
	return validateRPCTokens(cfg.RPC.Tokens)
}

// MinTokenLen is the shortest accepted rpc.auth token.
const MinTokenLen = 16

func validateRPCTokens(tokens map[string]string) error {
	seen := make(map[string]string, len(tokens))
	for caller, token := range tokens {
		if strings.TrimSpace(caller) != caller || caller == "" || caller == "anonymous" {
			return fmt.Errorf("rpc.auth.%s: invalid caller id", caller)
		}
		if len(token) < MinTokenLen {
			return fmt.Errorf("rpc.auth.%s: token must be at least %d characters", caller, MinTokenLen)
		}
		if other, dup := seen[token]; dup {
			return fmt.Errorf("rpc.auth.%s: token already used by %s", caller, other)
		}
		seen[token] = caller
	}
	return nil
}

func validateChainRPC(overrides map[string]string) error {
	for network, raw := range overrides {
		if _, ok := LookupNetwork(network); !ok {
			return fmt.Errorf("chain.%s.rpc: unsupported network", network)
		}
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("chain.%s.rpc must be an http(s) URL", network)
		}
	}
	return nil
}
