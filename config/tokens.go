package config

import "strings"

// Token is a fungible token known on a network. Address is the contract,
// mint, jetton master, coin type or canister id, depending on the chain.
type Token struct {
	Network  string `json:"network"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Address  string `json:"token_address"`
	Decimals uint8  `json:"decimals"`
}

var (
	usdc = func(addr string, decimals uint8) Token {
		return Token{Symbol: "USDC", Name: "USD Coin", Address: addr, Decimals: decimals}
	}
	usdt = func(addr string, decimals uint8) Token {
		return Token{Symbol: "USDT", Name: "Tether USD", Address: addr, Decimals: decimals}
	}
)

var builtinTokens = map[string][]Token{
	NetworkICP: {
		{Symbol: "CHAT", Name: "Chat", Address: "x4hhs-wh777-77774-qaaka-cai", Decimals: 8},
	},
	NetworkETH: {
		usdc("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", 6),
		usdt("0xdac17f958d2ee523a2206206994597c13d831ec7", 6),
		{Symbol: "UNI", Name: "Uniswap", Address: "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984", Decimals: 18},
	},
	NetworkSepolia: {
		{Symbol: "USDC", Name: "USDC", Address: "0xf55b2ab657147e94b228a2575483ea3c73c88275", Decimals: 6},
	},
	NetworkBase: {
		usdc("0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", 6),
		{Symbol: "CLAWNCH", Name: "CLAWNCH", Address: "0xa1F72459dfA10BAD200Ac160eCd78C6b77a747be", Decimals: 18},
	},
	NetworkPolygon: {
		usdc("0x3c499c542cef5e3811e1192ce70d8cc03d5c3359", 6),
		usdt("0xc2132d05d31c914a87c6611c10748aeb04b58e8f", 6),
	},
	NetworkArbitrum: {
		usdc("0xaf88d065e77c8cc2239327c5edb3a432268e5831", 6),
		usdt("0xfd086bc7cd5c481dcc9c85ebe478a1c0b69fcbb9", 6),
	},
	NetworkOptimism: {
		usdc("0x0b2c639c533813f4aa9d7837caf62653d097ff85", 6),
		usdt("0x94b008aa00579c1307b0ef2c499ad98a8ce58e58", 6),
	},
	NetworkBSC: {
		usdc("0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d", 18),
		usdt("0x55d398326f99059ff775485246999027b3197955", 18),
	},
	NetworkAvalanche: {
		usdc("0xb97ef9ef8734c71904d8002f8b6bc66dd9c48a6e", 6),
		usdt("0x9702230a8ea53601f5cd2dc00fdbc13d4df4a8c7", 6),
	},
	NetworkSol: {
		usdc("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", 6),
	},
}

// BuiltinTokens returns the compiled-in tokens for network with Network set
// to its TokenNetworkKey.
func BuiltinTokens(network string) []Token {
	list := builtinTokens[NormalizeWalletNetwork(network)]
	key := TokenNetworkKey(network)
	out := make([]Token, len(list))
	for i, t := range list {
		t.Network = key
		out[i] = t
	}
	return out
}

// SameTokenAddress compares token addresses, ignoring case for 0x hex.
func SameTokenAddress(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if strings.HasPrefix(a, "0x") && strings.HasPrefix(b, "0x") {
		return strings.EqualFold(a, b)
	}
	return a == b
}
