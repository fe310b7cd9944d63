// Package chains binds catalog networks to their adapters.
package chains

import (
	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/aptos"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/bitcoin"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/evm"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/icp"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/near"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/solana"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/sui"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/ton"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/tron"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
)

// Factory returns a wallet.Factory building adapters from deps.
func Factory(deps wallet.Deps) wallet.Factory {
	return func(nw config.Network) wallet.ChainAdapter {
		switch nw.Family {
		case config.FamilyBitcoin:
			return bitcoin.New(nw, deps)
		case config.FamilyEVM:
			return evm.New(nw, deps)
		case config.FamilySolana:
			return solana.New(nw, deps)
		case config.FamilyTron:
			return tron.New(nw, deps)
		case config.FamilyTON:
			return ton.New(nw, deps)
		case config.FamilyNEAR:
			return near.New(nw, deps)
		case config.FamilyAptos:
			return aptos.New(nw, deps)
		case config.FamilySui:
			return sui.New(nw, deps)
		case config.FamilyICP:
			return icp.New(nw, deps)
		}
		return nil
	}
}

// NewRegistry registers an adapter for every catalog network. Custom
// eip155:N chains are added on first lookup.
func NewRegistry(deps wallet.Deps) *wallet.Registry {
	f := Factory(deps)
	r := wallet.NewRegistry(f)
	for _, nw := range config.Networks() {
		if a := f(nw); a != nil {
			r.Register(a)
		}
	}
	return r
}
