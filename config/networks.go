package config

import (
	"fmt"
	"strconv"
	"strings"
)

// AddressFamily groups networks that share address encoding and adapter.
type AddressFamily string

const (
	FamilyBitcoin AddressFamily = "bitcoin"
	FamilyEVM     AddressFamily = "evm"
	FamilySolana  AddressFamily = "solana"
	FamilyTron    AddressFamily = "tron"
	FamilyTON     AddressFamily = "ton"
	FamilyNEAR    AddressFamily = "near"
	FamilyAptos   AddressFamily = "aptos"
	FamilySui     AddressFamily = "sui"
	FamilyICP     AddressFamily = "icp"
)

// Canonical network ids.
const (
	NetworkBTC        = "btc"
	NetworkETH        = "eth"
	NetworkSepolia    = "sepolia"
	NetworkBase       = "base"
	NetworkPolygon    = "polygon"
	NetworkArbitrum   = "arbitrum"
	NetworkOptimism   = "optimism"
	NetworkBSC        = "bsc"
	NetworkAvalanche  = "avalanche"
	NetworkSol        = "sol"
	NetworkSolTestnet = "sol-testnet"
	NetworkTron       = "tron"
	NetworkTON        = "ton"
	NetworkNEAR       = "near"
	NetworkAptos      = "aptos"
	NetworkSui        = "sui"
	NetworkICP        = "icp"
)

// Network describes one entry of the static catalog.
type Network struct {
	ID     string
	Name   string
	Family AddressFamily
	Symbol string // primary asset
	// Decimals of the primary asset.
	Decimals uint8
	// ChainID is set for EVM networks only.
	ChainID    uint64
	DefaultRPC string
	Aliases    []string
	// SharedAddressGroup names networks that derive the same address for a caller.
	SharedAddressGroup string
	SupportsSend       bool
	SupportsBalance    bool
}

func evmNetwork(id, name string, chainID uint64, rpc string, aliases ...string) Network {
	return Network{
		ID:                 id,
		Name:               name,
		Family:             FamilyEVM,
		Symbol:             "ETH",
		Decimals:           18,
		ChainID:            chainID,
		DefaultRPC:         rpc,
		Aliases:            aliases,
		SharedAddressGroup: "evm",
		SupportsSend:       true,
		SupportsBalance:    true,
	}
}

var catalog = []Network{
	{
		ID: NetworkICP, Name: "Internet Computer", Family: FamilyICP, Symbol: "ICP", Decimals: 8,
		DefaultRPC: "https://icp-api.io", Aliases: []string{"ic", "internet-computer"},
		SharedAddressGroup: "icp",
	},
	{
		ID: NetworkBTC, Name: "Bitcoin", Family: FamilyBitcoin, Symbol: "BTC", Decimals: 8,
		DefaultRPC: "https://blockstream.info/api", Aliases: []string{"bitcoin"},
		SharedAddressGroup: "btc", SupportsSend: true, SupportsBalance: true,
	},
	evmNetwork(NetworkETH, "Ethereum", 1, "https://ethereum-rpc.publicnode.com", "ethereum", "mainnet"),
	evmNetwork(NetworkSepolia, "Sepolia", 11155111, "https://ethereum-sepolia-rpc.publicnode.com", "eth-sepolia", "ethereum-sepolia"),
	evmNetwork(NetworkBase, "Base", 8453, "https://base-rpc.publicnode.com"),
	evmNetwork(NetworkPolygon, "Polygon", 137, "https://polygon-bor-rpc.publicnode.com", "matic"),
	evmNetwork(NetworkArbitrum, "Arbitrum", 42161, "https://arbitrum-one-rpc.publicnode.com", "arb", "arbitrum-one"),
	evmNetwork(NetworkOptimism, "Optimism", 10, "https://optimism-rpc.publicnode.com", "op", "optimism-mainnet"),
	evmNetwork(NetworkBSC, "BNB Chain", 56, "https://bsc-rpc.publicnode.com", "bnb", "bsc-mainnet", "binance-smart-chain"),
	evmNetwork(NetworkAvalanche, "Avalanche C-Chain", 43114, "https://avalanche-c-chain-rpc.publicnode.com", "avax", "avalanche-c"),
	{
		ID: NetworkSol, Name: "Solana", Family: FamilySolana, Symbol: "SOL", Decimals: 9,
		DefaultRPC: "https://solana-rpc.publicnode.com", Aliases: []string{"solana"},
		SharedAddressGroup: "solana", SupportsSend: true, SupportsBalance: true,
	},
	{
		ID: NetworkSolTestnet, Name: "Solana Testnet", Family: FamilySolana, Symbol: "SOL", Decimals: 9,
		DefaultRPC: "https://solana-testnet-rpc.publicnode.com", Aliases: []string{"solana-testnet"},
		SharedAddressGroup: "solana", SupportsSend: true, SupportsBalance: true,
	},
	{
		ID: NetworkTron, Name: "TRON", Family: FamilyTron, Symbol: "TRX", Decimals: 6,
		DefaultRPC: "https://api.trongrid.io", Aliases: []string{"trx"},
		SharedAddressGroup: "tron", SupportsSend: true, SupportsBalance: true,
	},
	{
		ID: NetworkTON, Name: "TON", Family: FamilyTON, Symbol: "TON", Decimals: 9,
		DefaultRPC: "https://toncenter.com/api/v2", Aliases: []string{"ton-mainnet"},
		SharedAddressGroup: "ton", SupportsSend: true, SupportsBalance: true,
	},
	{
		ID: NetworkNEAR, Name: "NEAR", Family: FamilyNEAR, Symbol: "NEAR", Decimals: 24,
		DefaultRPC: "https://rpc.mainnet.near.org", Aliases: []string{"near-mainnet"},
		SharedAddressGroup: "near", SupportsSend: true, SupportsBalance: true,
	},
	{
		ID: NetworkAptos, Name: "Aptos", Family: FamilyAptos, Symbol: "APT", Decimals: 8,
		DefaultRPC: "https://fullnode.mainnet.aptoslabs.com/v1", Aliases: []string{"aptos-mainnet"},
		SharedAddressGroup: "aptos", SupportsSend: true, SupportsBalance: true,
	},
	{
		ID: NetworkSui, Name: "Sui", Family: FamilySui, Symbol: "SUI", Decimals: 9,
		DefaultRPC: "https://fullnode.mainnet.sui.io:443", Aliases: []string{"sui-mainnet"},
		SharedAddressGroup: "sui", SupportsSend: true, SupportsBalance: true,
	},
}

var customEVMPrefixes = []string{"eip155", "chainid", "evm"}

// Networks returns the static catalog in display order.
func Networks() []Network {
	out := make([]Network, len(catalog))
	copy(out, catalog)
	return out
}

func normalizeText(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
}

// NormalizeNetwork trims, lowercases and resolves aliases. Custom EVM ids
// ("chainid:N", "evm:N") normalize to "eip155:N". Unknown names are
// returned in normalized text form, and "" stays "".
func NormalizeNetwork(network string) string {
	n := normalizeText(network)
	if n == "" {
		return ""
	}
	if id, ok := parseCustomChainID(n); ok {
		return "eip155:" + strconv.FormatUint(id, 10)
	}
	for i := range catalog {
		if catalog[i].ID == n {
			return n
		}
		for _, a := range catalog[i].Aliases {
			if a == n {
				return catalog[i].ID
			}
		}
	}
	return n
}

// NormalizeWalletNetwork is NormalizeNetwork with the empty name mapping to
// the native ledger network.
func NormalizeWalletNetwork(network string) string {
	n := NormalizeNetwork(network)
	if n == "" {
		return NetworkICP
	}
	return n
}

// TokenNetworkKey is the key tokens are stored under for network.
func TokenNetworkKey(network string) string {
	return strings.ReplaceAll(NormalizeWalletNetwork(network), "-", "_")
}

// LookupNetwork returns the catalog entry for network, synthesizing one for
// custom EVM chains.
func LookupNetwork(network string) (Network, bool) {
	n := NormalizeWalletNetwork(network)
	for i := range catalog {
		if catalog[i].ID == n {
			return catalog[i], true
		}
	}
	if id, ok := parseCustomChainID(n); ok {
		nw := evmNetwork(n, fmt.Sprintf("EVM chain %d", id), id, "")
		return nw, true
	}
	return Network{}, false
}

// ChainID returns the EVM chain id of network.
func ChainID(network string) (uint64, bool) {
	nw, ok := LookupNetwork(network)
	if !ok || nw.Family != FamilyEVM {
		return 0, false
	}
	return nw.ChainID, true
}

// IsCustomEVM reports whether network names an EVM chain by id only.
func IsCustomEVM(network string) bool {
	_, ok := parseCustomChainID(normalizeText(network))
	return ok
}

// ResolveRPC returns the override when non-empty, else the catalog default.
func ResolveRPC(network, override string) (string, error) {
	if u := strings.TrimSpace(override); u != "" {
		return u, nil
	}
	if nw, ok := LookupNetwork(network); ok && nw.DefaultRPC != "" {
		return nw.DefaultRPC, nil
	}
	if IsCustomEVM(network) {
		return "", fmt.Errorf("rpcUrl is required for custom network: %s", network)
	}
	return "", fmt.Errorf("unsupported network: %s", network)
}

func parseCustomChainID(n string) (uint64, bool) {
	prefix, rest, ok := strings.Cut(n, ":")
	if !ok || strings.Contains(rest, ":") {
		return 0, false
	}
	known := false
	for _, p := range customEVMPrefixes {
		if prefix == p {
			known = true
			break
		}
	}
	if !known {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimSpace(rest), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
