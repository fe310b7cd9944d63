package config

import "strings"

// Explorer holds block explorer URL templates. Templates use {address}
// and {token} placeholders.
type Explorer struct {
	Network    string `json:"network"`
	AddressURL string `json:"address_url_template"`
	TokenURL   string `json:"token_url_template,omitempty"`
}

func etherscanLike(host string) Explorer {
	return Explorer{
		AddressURL: "https://" + host + "/address/{address}",
		TokenURL:   "https://" + host + "/token/{token}?a={address}",
	}
}

var explorers = map[string]Explorer{
	NetworkETH:       etherscanLike("etherscan.io"),
	NetworkSepolia:   etherscanLike("sepolia.etherscan.io"),
	NetworkBase:      etherscanLike("basescan.org"),
	NetworkBSC:       etherscanLike("bscscan.com"),
	NetworkArbitrum:  etherscanLike("arbiscan.io"),
	NetworkOptimism:  etherscanLike("optimistic.etherscan.io"),
	NetworkAvalanche: etherscanLike("snowtrace.io"),
	NetworkPolygon:   etherscanLike("polygonscan.com"),
	NetworkBTC:       {AddressURL: "https://mempool.space/address/{address}"},
	NetworkICP: {
		AddressURL: "https://dashboard.internetcomputer.org/canister/{address}",
		TokenURL:   "https://dashboard.internetcomputer.org/canister/{token}",
	},
	NetworkSol: {
		AddressURL: "https://solscan.io/account/{address}",
		TokenURL:   "https://solscan.io/token/{token}",
	},
	NetworkSolTestnet: {
		AddressURL: "https://solscan.io/account/{address}?cluster=testnet",
		TokenURL:   "https://solscan.io/token/{token}?cluster=testnet",
	},
	NetworkTron: {
		AddressURL: "https://tronscan.org/#/address/{address}",
		TokenURL:   "https://tronscan.org/#/token20/{token}",
	},
	NetworkTON: {
		AddressURL: "https://tonviewer.com/{address}",
		TokenURL:   "https://tonviewer.com/{token}",
	},
	NetworkNEAR: {
		AddressURL: "https://nearblocks.io/address/{address}",
		TokenURL:   "https://nearblocks.io/token/{token}",
	},
	NetworkAptos: {
		AddressURL: "https://explorer.aptoslabs.com/account/{address}?network=mainnet",
		TokenURL:   "https://explorer.aptoslabs.com/account/{token}?network=mainnet",
	},
	NetworkSui: {
		AddressURL: "https://suiscan.xyz/mainnet/account/{address}",
		TokenURL:   "https://suiscan.xyz/mainnet/coin/{token}",
	},
}

// LookupExplorer returns the explorer templates for network.
func LookupExplorer(network string) (Explorer, bool) {
	n := NormalizeWalletNetwork(network)
	e, ok := explorers[n]
	if !ok {
		return Explorer{}, false
	}
	e.Network = n
	return e, true
}

// AddressLink fills the address template.
func (e Explorer) AddressLink(address string) string {
	return strings.ReplaceAll(e.AddressURL, "{address}", address)
}

// TokenLink fills the token template, or returns "" when there is none.
func (e Explorer) TokenLink(token, address string) string {
	if e.TokenURL == "" {
		return ""
	}
	return strings.NewReplacer("{token}", token, "{address}", address).Replace(e.TokenURL)
}
