// Package wallet is the custodial wallet service: request and response
// types, the error taxonomy, per-caller key derivation paths, the chain
// adapter registry and the Service facade that enforces owner and pause
// policy in front of the adapters.
package wallet

import (
	"context"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/state"
)

// Service is safe for concurrent use.
type Service struct {
	state    *state.State
	registry *Registry
}

// NewService returns a service over st whose adapters come from reg.
func NewService(st *state.State, reg *Registry) *Service {
	return &Service{state: st, registry: reg}
}

// StateEndpoints resolves endpoints from the overrides held in st, falling
// back to the catalog default.
func StateEndpoints(st *state.State) Endpoints {
	return EndpointFunc(func(network string) (string, error) {
		n := config.NormalizeWalletNetwork(network)
		override, _ := st.RPC(n)
		return config.ResolveRPC(n, override)
	})
}

// RPCURL returns the configured endpoint for network.
func (s *Service) RPCURL(network string) (string, error) {
	return StateEndpoints(s.state).RPCURL(network)
}

func (s *Service) requireOwner(caller string) error {
	if owner := s.state.Owner(); owner != "" && caller != owner {
		return Forbidden()
	}
	return nil
}

func (s *Service) ensureNotPaused() error {
	if s.state.Paused() {
		return Paused()
	}
	return nil
}

func (s *Service) resolve(network, operation string) (config.Network, ChainAdapter, error) {
	nw, ok := config.LookupNetwork(network)
	if !ok {
		return config.Network{}, nil, InvalidInput("unsupported network: %s", strings.TrimSpace(network))
	}
	a, ok := s.registry.Lookup(nw.ID)
	if !ok {
		return nw, nil, Unimplemented(nw.ID, operation)
	}
	return nw, a, nil
}

// Info describes the service as seen by caller.
func (s *Service) Info(caller string) *ServiceInfo {
	return &ServiceInfo{
		Version: config.Version,
		Owner:   s.state.Owner(),
		Paused:  s.state.Paused(),
		Caller:  caller,
		Note:    "admin operations require the owner once one is set",
	}
}

// Networks lists the catalog with effective RPC endpoints.
func (s *Service) Networks() []NetworkInfo {
	var out []NetworkInfo
	for _, nw := range config.Networks() {
		rpc, _ := s.RPCURL(nw.ID)
		out = append(out, NetworkInfo{
			ID:                 nw.ID,
			Name:               nw.Name,
			PrimarySymbol:      nw.Symbol,
			AddressFamily:      string(nw.Family),
			SharedAddressGroup: nw.SharedAddressGroup,
			SupportsSend:       nw.SupportsSend,
			SupportsBalance:    nw.SupportsBalance,
			DefaultRPCURL:      rpc,
		})
	}
	return out
}

// SupportedNetworks reports per-network adapter readiness.
func (s *Service) SupportedNetworks() []NetworkStatus {
	var out []NetworkStatus
	for _, nw := range config.Networks() {
		st := NetworkStatus{Network: nw.ID}
		switch {
		case !s.registry.Has(nw.ID):
			st.Note = "no adapter registered"
		case !nw.SupportsBalance && !nw.SupportsSend:
			st.Note = "network operations are not implemented"
		default:
			st.BalanceReady = nw.SupportsBalance
			st.TransferReady = nw.SupportsSend
		}
		out = append(out, st)
	}
	return out
}

// RequestAddress derives the caller's managed address on network.
func (s *Service) RequestAddress(ctx context.Context, caller, network string, req AddressRequest) (*AddressResponse, error) {
	if err := s.ensureNotPaused(); err != nil {
		return nil, err
	}
	nw, a, err := s.resolve(network, "request_address")
	if err != nil {
		return nil, err
	}
	acct, err := NewAccount(nw.ID, nw.SharedAddressGroup, caller, req.Index, req.AccountTag)
	if err != nil {
		return nil, err
	}
	return a.DeriveAddress(ctx, acct)
}

// GetBalance queries the balance of any account on network.
func (s *Service) GetBalance(ctx context.Context, network string, req BalanceRequest) (*BalanceResponse, error) {
	_, a, err := s.resolve(network, "get_balance")
	if err != nil {
		return nil, err
	}
	return a.GetBalance(ctx, req)
}

// Transfer sends from the caller's managed address on network.
func (s *Service) Transfer(ctx context.Context, caller, network string, req TransferRequest) (*TransferResponse, error) {
	if err := s.ensureNotPaused(); err != nil {
		return nil, err
	}
	nw, a, err := s.resolve(network, "transfer")
	if err != nil {
		return nil, err
	}
	acct, err := NewAccount(nw.ID, nw.SharedAddressGroup, caller, req.Index, req.AccountTag)
	if err != nil {
		return nil, err
	}
	resp, err := a.Transfer(ctx, acct, req)
	if err != nil {
		ev := log.Wallet.Warn().Err(err).Str("network", nw.ID).Str("caller", acct.Caller)
		if IsKind(err, KindBroadcastUnknown) {
			ev = log.Wallet.Error().Err(err).Str("network", nw.ID).Str("caller", acct.Caller)
		}
		ev.Msg("Transfer failed")
		return nil, err
	}
	log.Wallet.Info().
		Str("network", nw.ID).
		Str("caller", acct.Caller).
		Str("tx_id", resp.TxID).
		Msg("Transfer broadcast")
	return resp, nil
}

// ListTokens returns built-in tokens not removed, merged with custom tokens
// (a custom token replaces a built-in one with the same address).
func (s *Service) ListTokens(network string) []config.Token {
	key := config.TokenNetworkKey(network)
	var merged []config.Token
	for _, t := range config.BuiltinTokens(network) {
		if !s.state.IsTokenRemoved(key, t.Address) {
			merged = append(merged, t)
		}
	}
	for _, t := range s.state.CustomTokens(key) {
		i := slices.IndexFunc(merged, func(m config.Token) bool {
			return config.SameTokenAddress(m.Address, t.Address)
		})
		if i >= 0 {
			merged[i] = t
		} else {
			merged = append(merged, t)
		}
	}
	if merged == nil {
		merged = []config.Token{}
	}
	return merged
}

// AddToken discovers token metadata on chain and stores it as a custom token.
func (s *Service) AddToken(ctx context.Context, caller, network, address string) (*config.Token, error) {
	if err := s.requireOwner(caller); err != nil {
		return nil, err
	}
	if err := s.ensureNotPaused(); err != nil {
		return nil, err
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, InvalidInput("token_address is required")
	}
	key := config.TokenNetworkKey(network)
	nw, known := config.LookupNetwork(network)
	if !known {
		return nil, Unimplemented(key, "token metadata discovery")
	}
	a, ok := s.registry.Lookup(nw.ID)
	if !ok {
		return nil, Unimplemented(key, "token metadata discovery")
	}
	tok, err := a.DiscoverToken(ctx, address)
	if err != nil {
		return nil, err
	}
	tok.Network = key
	if err := s.state.UpsertCustomToken(*tok); err != nil {
		return nil, Wrap(err, "store token")
	}
	log.Wallet.Info().Str("network", key).Str("token", tok.Address).Str("symbol", tok.Symbol).Msg("Token added")
	return tok, nil
}

// RemoveToken hides a token from ListTokens and reports whether it was listed.
func (s *Service) RemoveToken(caller, network, address string) (bool, error) {
	if err := s.requireOwner(caller); err != nil {
		return false, err
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return false, InvalidInput("token_address is required")
	}
	builtin := slices.ContainsFunc(config.BuiltinTokens(network), func(t config.Token) bool {
		return config.SameTokenAddress(t.Address, address)
	})
	removed, err := s.state.RemoveToken(config.TokenNetworkKey(network), address, builtin)
	if err != nil {
		return false, Wrap(err, "remove token")
	}
	return removed, nil
}

// ListRPCs returns the effective endpoint of every catalog network, then
// the endpoints of custom EVM chains.
func (s *Service) ListRPCs() []RPCEntry {
	var out []RPCEntry
	listed := make(map[string]bool)
	for _, nw := range config.Networks() {
		if u, err := s.RPCURL(nw.ID); err == nil {
			out = append(out, RPCEntry{Network: nw.ID, RPCURL: u})
		}
		listed[nw.ID] = true
	}
	overrides := s.state.RPCs()
	for _, network := range slices.Sorted(maps.Keys(overrides)) {
		if !listed[network] {
			out = append(out, RPCEntry{Network: network, RPCURL: overrides[network]})
		}
	}
	return out
}

// SetRPC overrides the endpoint of network.
func (s *Service) SetRPC(caller, network, rpcURL string) (*RPCEntry, error) {
	if err := s.requireOwner(caller); err != nil {
		return nil, err
	}
	n := config.NormalizeNetwork(network)
	if n == "" {
		return nil, InvalidInput("network is required")
	}
	if _, ok := config.LookupNetwork(n); !ok {
		return nil, InvalidInput("unsupported network")
	}
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return nil, InvalidInput("rpc_url is required")
	}
	if u, err := url.Parse(rpcURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, InvalidInput("rpc_url must be an http(s) URL")
	}
	if err := s.state.SetRPC(n, rpcURL); err != nil {
		return nil, Wrap(err, "store rpc")
	}
	log.Wallet.Info().Str("network", n).Str("rpc_url", rpcURL).Msg("RPC endpoint set")
	return &RPCEntry{Network: n, RPCURL: rpcURL}, nil
}

// RemoveRPC drops the endpoint override of network.
func (s *Service) RemoveRPC(caller, network string) (bool, error) {
	if err := s.requireOwner(caller); err != nil {
		return false, err
	}
	n := config.NormalizeNetwork(network)
	if n == "" {
		return false, InvalidInput("network is required")
	}
	ok, err := s.state.RemoveRPC(n)
	if err != nil {
		return false, Wrap(err, "remove rpc")
	}
	return ok, nil
}

// Explorer returns the explorer templates of network.
func (s *Service) Explorer(network string) (*ExplorerResponse, bool) {
	e, ok := config.LookupExplorer(network)
	if !ok {
		return nil, false
	}
	return &e, true
}

// Pause stops address, transfer and token-add operations.
func (s *Service) Pause(caller string) error {
	return s.setPaused(caller, true)
}

// Unpause resumes wallet operations.
func (s *Service) Unpause(caller string) error {
	return s.setPaused(caller, false)
}

func (s *Service) setPaused(caller string, paused bool) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if err := s.state.SetPaused(paused); err != nil {
		return Wrap(err, "store pause flag")
	}
	log.Wallet.Info().Bool("paused", paused).Str("caller", caller).Msg("Pause flag changed")
	return nil
}

// RotateOwner sets a new owner and returns the previous one. Without an
// owner, a caller may only claim ownership for itself.
func (s *Service) RotateOwner(caller, newOwner string) (string, error) {
	newOwner = strings.TrimSpace(newOwner)
	if newOwner == "" || newOwner == Anonymous {
		return "", InvalidInput("new_owner cannot be anonymous")
	}
	if s.state.Owner() == "" {
		if caller == "" || caller == Anonymous || caller != newOwner {
			return "", Forbidden()
		}
	} else if err := s.requireOwner(caller); err != nil {
		return "", err
	}
	prev, err := s.state.RotateOwner(newOwner)
	if err != nil {
		return "", Wrap(err, "store owner")
	}
	log.Wallet.Info().Str("owner", newOwner).Str("previous", prev).Msg("Owner rotated")
	return prev, nil
}

// Snapshot returns the whole admin state.
func (s *Service) Snapshot(caller string) (*state.Snapshot, error) {
	if err := s.requireOwner(caller); err != nil {
		return nil, err
	}
	return s.state.Snapshot(), nil
}

// Restore replaces the whole admin state.
func (s *Service) Restore(caller string, snap *state.Snapshot) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if snap == nil {
		return InvalidInput("snapshot is required")
	}
	if err := s.state.Restore(snap); err != nil {
		return Wrap(err, "restore state")
	}
	return nil
}
