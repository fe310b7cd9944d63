package wallet

import (
	"context"
	"sync"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/signer"
	"github.com/Klingon-tech/klingnet-wallet/internal/transport"
)

// ChainAdapter implements the wallet operations of one network.
type ChainAdapter interface {
	// Network returns the canonical network id served.
	Network() string
	DeriveAddress(ctx context.Context, acct Account) (*AddressResponse, error)
	GetBalance(ctx context.Context, req BalanceRequest) (*BalanceResponse, error)
	// Transfer builds, signs and broadcasts a transfer from acct.
	Transfer(ctx context.Context, acct Account, req TransferRequest) (*TransferResponse, error)
	// DiscoverToken reads token metadata from the chain.
	DiscoverToken(ctx context.Context, address string) (*config.Token, error)
}

// Endpoints resolves the RPC URL currently configured for a network.
type Endpoints interface {
	RPCURL(network string) (string, error)
}

// EndpointFunc adapts a function to Endpoints.
type EndpointFunc func(network string) (string, error)

// RPCURL calls f.
func (f EndpointFunc) RPCURL(network string) (string, error) { return f(network) }

// Deps are the collaborators every adapter is built from.
type Deps struct {
	Signer    signer.Oracle
	HTTP      transport.Doer
	Endpoints Endpoints
}

// RPCURL resolves the endpoint for network as an Internal error on failure.
func (d Deps) RPCURL(network string) (string, error) {
	u, err := d.Endpoints.RPCURL(network)
	if err != nil {
		return "", Internal("%s rpc url resolution failed: %v", network, err)
	}
	return u, nil
}

// Factory builds an adapter for a catalog network, or returns nil when
// its family is not handled.
type Factory func(nw config.Network) ChainAdapter

// Registry maps networks to adapters. Adapters for custom EVM chains are
// built on first use from the factory.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]ChainAdapter
	factory  Factory
}

// NewRegistry returns a registry that falls back to factory for networks
// without a registered adapter.
func NewRegistry(factory Factory) *Registry {
	return &Registry{adapters: make(map[string]ChainAdapter), factory: factory}
}

// Register adds a for a.Network().
func (r *Registry) Register(a ChainAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Network()] = a
}

// Lookup returns the adapter for network.
func (r *Registry) Lookup(network string) (ChainAdapter, bool) {
	id := config.NormalizeWalletNetwork(network)
	r.mu.RLock()
	a, ok := r.adapters[id]
	r.mu.RUnlock()
	if ok {
		return a, true
	}
	nw, known := config.LookupNetwork(id)
	if !known || r.factory == nil {
		return nil, false
	}
	a = r.factory(nw)
	if a == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.adapters[id]; ok {
		return existing, true
	}
	r.adapters[id] = a
	return a, true
}

// Has reports whether an adapter is registered for the exact network id,
// without invoking the factory.
func (r *Registry) Has(network string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[network]
	return ok
}
