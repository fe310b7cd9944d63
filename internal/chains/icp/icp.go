// Package icp reserves the Internet Computer network. The ICP ledger is
// reached through canister calls rather than an HTTP RPC, so every
// operation reports that it is not implemented.
package icp

import (
	"context"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
)

// Adapter answers for the icp network.
type Adapter struct {
	network string
}

// New returns the adapter for nw.
func New(nw config.Network, _ wallet.Deps) *Adapter {
	return &Adapter{network: nw.ID}
}

// Network returns the network id.
func (a *Adapter) Network() string { return a.network }

// DeriveAddress is not implemented.
func (a *Adapter) DeriveAddress(context.Context, wallet.Account) (*wallet.AddressResponse, error) {
	return nil, wallet.Unimplemented(a.network, "request_address")
}

// GetBalance is not implemented.
func (a *Adapter) GetBalance(_ context.Context, req wallet.BalanceRequest) (*wallet.BalanceResponse, error) {
	if _, err := wallet.RequireAccount(&req); err != nil {
		return nil, err
	}
	return nil, wallet.Unimplemented(a.network, "get_balance")
}

// Transfer is not implemented.
func (a *Adapter) Transfer(_ context.Context, _ wallet.Account, req wallet.TransferRequest) (*wallet.TransferResponse, error) {
	if _, err := wallet.RequireTo(&req); err != nil {
		return nil, err
	}
	return nil, wallet.Unimplemented(a.network, "transfer")
}

// DiscoverToken is not implemented.
func (a *Adapter) DiscoverToken(context.Context, string) (*config.Token, error) {
	return nil, wallet.Unimplemented(a.network, "token metadata discovery")
}
