// Package state holds the wallet's mutable admin state: owner, pause flag,
// custom and removed tokens, and per-network RPC endpoints. Every mutation
// is written through to the backing store before it becomes visible.
package state

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
)

// TokenRef names a token by network key and address.
type TokenRef struct {
	Network string `json:"network"`
	Address string `json:"token_address"`
}

// Snapshot is a complete copy of the state.
type Snapshot struct {
	Owner         string            `json:"owner,omitempty"`
	Paused        bool              `json:"paused"`
	CustomTokens  []config.Token    `json:"custom_tokens"`
	RemovedTokens []TokenRef        `json:"removed_tokens"`
	RPC           map[string]string `json:"rpc"`
}

// State is safe for concurrent use.
type State struct {
	mu      sync.RWMutex
	store   store
	owner   string
	paused  bool
	tokens  map[string][]config.Token      // network key -> custom tokens
	removed map[string]map[string]struct{} // network key -> address keys
	rpc     map[string]string              // normalized network -> url
}

// New loads state from db.
func New(db storage.DB) (*State, error) {
	s := &State{store: store{db: db}}
	snap, err := s.store.load()
	if err != nil {
		return nil, err
	}
	s.apply(snap)
	log.State.Debug().
		Bool("owner_set", s.owner != "").
		Bool("paused", s.paused).
		Int("custom_tokens", len(snap.CustomTokens)).
		Int("rpc", len(s.rpc)).
		Msg("State loaded")
	return s, nil
}

func (s *State) apply(snap *Snapshot) {
	s.owner = snap.Owner
	s.paused = snap.Paused
	s.tokens = make(map[string][]config.Token)
	for _, t := range snap.CustomTokens {
		s.tokens[t.Network] = upsert(s.tokens[t.Network], t)
	}
	s.removed = make(map[string]map[string]struct{})
	for _, r := range snap.RemovedTokens {
		s.markRemoved(r.Network, r.Address)
	}
	s.rpc = make(map[string]string, len(snap.RPC))
	maps.Copy(s.rpc, snap.RPC)
}

func upsert(list []config.Token, t config.Token) []config.Token {
	for i := range list {
		if config.SameTokenAddress(list[i].Address, t.Address) {
			list[i] = t
			return list
		}
	}
	return append(list, t)
}

func (s *State) markRemoved(network, address string) {
	set := s.removed[network]
	if set == nil {
		set = make(map[string]struct{})
		s.removed[network] = set
	}
	set[addressKey(address)] = struct{}{}
}

// Owner returns the owner principal, or "" when none is set.
func (s *State) Owner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// InitOwner sets the owner only when none is set yet.
func (s *State) InitOwner(owner string) error {
	owner = strings.TrimSpace(owner)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != "" || owner == "" {
		return nil
	}
	if err := s.store.write(func(w writer) error { return putOwner(w, owner) }); err != nil {
		return fmt.Errorf("state init owner: %w", err)
	}
	s.owner = owner
	return nil
}

// RotateOwner replaces the owner and returns the previous one.
func (s *State) RotateOwner(owner string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.write(func(w writer) error { return putOwner(w, owner) }); err != nil {
		return "", fmt.Errorf("state rotate owner: %w", err)
	}
	prev := s.owner
	s.owner = owner
	return prev, nil
}

// Paused reports whether wallet operations are paused.
func (s *State) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// SetPaused sets the pause flag.
func (s *State) SetPaused(paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.write(func(w writer) error { return putPaused(w, paused) }); err != nil {
		return fmt.Errorf("state set paused: %w", err)
	}
	s.paused = paused
	return nil
}

// CustomTokens returns the custom tokens stored under a network key.
func (s *State) CustomTokens(network string) []config.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tokens[network])
}

// UpsertCustomToken stores t under t.Network, replacing a token with the
// same address and clearing any removal mark for it.
func (s *State) UpsertCustomToken(t config.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, wasRemoved := s.removed[t.Network][addressKey(t.Address)]
	err := s.store.write(func(w writer) error {
		if wasRemoved {
			if err := w.Delete(tokenKey(prefixRemoved, t.Network, t.Address)); err != nil {
				return err
			}
		}
		return putToken(w, t)
	})
	if err != nil {
		return fmt.Errorf("state upsert token: %w", err)
	}
	if wasRemoved {
		delete(s.removed[t.Network], addressKey(t.Address))
	}
	s.tokens[t.Network] = upsert(s.tokens[t.Network], t)
	return nil
}

// RemoveToken drops a custom token and records the address as removed so
// built-in entries are hidden too. It reports whether the token was visible
// before the call, given whether a built-in entry exists.
func (s *State) RemoveToken(network, address string, builtin bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.tokens[network], func(t config.Token) bool {
		return config.SameTokenAddress(t.Address, address)
	})
	_, alreadyRemoved := s.removed[network][addressKey(address)]
	err := s.store.write(func(w writer) error {
		if idx >= 0 {
			if err := w.Delete(tokenKey(prefixToken, network, address)); err != nil {
				return err
			}
		}
		return w.Put(tokenKey(prefixRemoved, network, address), []byte(address))
	})
	if err != nil {
		return false, fmt.Errorf("state remove token: %w", err)
	}
	if idx >= 0 {
		s.tokens[network] = slices.Delete(s.tokens[network], idx, idx+1)
	}
	s.markRemoved(network, address)
	return idx >= 0 || (builtin && !alreadyRemoved), nil
}

// IsTokenRemoved reports whether address was removed under network.
func (s *State) IsTokenRemoved(network, address string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.removed[network][addressKey(address)]
	return ok
}

// RPC returns the configured endpoint for a normalized network.
func (s *State) RPC(network string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.rpc[network]
	return u, ok
}

// RPCs returns a copy of all configured endpoints.
func (s *State) RPCs() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.rpc)
}

// SetRPC stores the endpoint for a normalized network.
func (s *State) SetRPC(network, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.write(func(w writer) error { return w.Put(rpcKey(network), []byte(url)) }); err != nil {
		return fmt.Errorf("state set rpc: %w", err)
	}
	s.rpc[network] = url
	return nil
}

// RemoveRPC deletes the endpoint for network and reports whether one existed.
func (s *State) RemoveRPC(network string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rpc[network]; !ok {
		return false, nil
	}
	if err := s.store.write(func(w writer) error { return w.Delete(rpcKey(network)) }); err != nil {
		return false, fmt.Errorf("state remove rpc: %w", err)
	}
	delete(s.rpc, network)
	return true, nil
}

// SeedRPCs stores endpoints for networks that have none yet.
func (s *State) SeedRPCs(urls map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	missing := make(map[string]string)
	for network, url := range urls {
		if _, ok := s.rpc[network]; !ok && url != "" {
			missing[network] = url
		}
	}
	if len(missing) == 0 {
		return nil
	}
	err := s.store.write(func(w writer) error {
		for network, url := range missing {
			if err := w.Put(rpcKey(network), []byte(url)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("state seed rpc: %w", err)
	}
	maps.Copy(s.rpc, missing)
	return nil
}

// Snapshot returns a deep copy of the state in a stable order.
func (s *State) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &Snapshot{
		Owner:         s.owner,
		Paused:        s.paused,
		CustomTokens:  []config.Token{},
		RemovedTokens: []TokenRef{},
		RPC:           maps.Clone(s.rpc),
	}
	for _, network := range slices.Sorted(maps.Keys(s.tokens)) {
		snap.CustomTokens = append(snap.CustomTokens, s.tokens[network]...)
	}
	for _, network := range slices.Sorted(maps.Keys(s.removed)) {
		for _, addr := range slices.Sorted(maps.Keys(s.removed[network])) {
			snap.RemovedTokens = append(snap.RemovedTokens, TokenRef{Network: network, Address: addr})
		}
	}
	return snap
}

// Restore replaces the whole state with snap.
func (s *State) Restore(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("state restore: nil snapshot")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.replaceAll(snap); err != nil {
		return fmt.Errorf("state restore: %w", err)
	}
	s.apply(snap)
	log.State.Info().Bool("paused", snap.Paused).Msg("State restored")
	return nil
}
