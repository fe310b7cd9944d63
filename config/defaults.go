package config

import "time"

const (
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultHTTPMaxResponse = 2 << 20
)

// DefaultMainnet returns the default daemon configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       8765,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Signer: SignerConfig{
			Mode:       SignerLocal,
			ECDSAKey:   "local_ecdsa",
			SchnorrKey: "local_schnorr",
		},
		HTTP: HTTPConfig{
			Timeout:     DefaultHTTPTimeout,
			MaxResponse: DefaultHTTPMaxResponse,
		},
		ChainRPC: map[string]string{},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default daemon configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.RPC.Port = 8865
	return cfg
}

// Default returns the default daemon configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
