package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
)

var (
	keyOwner      = []byte("owner")
	keyPaused     = []byte("paused")
	prefixRPC     = []byte("r/") // r/<network> -> url
	prefixToken   = []byte("t/") // t/<network>/<address> -> config.Token JSON
	prefixRemoved = []byte("x/") // x/<network>/<address> -> address
)

// store maps state fields onto storage keys.
type store struct {
	db storage.DB
}

func rpcKey(network string) []byte {
	return append(bytes.Clone(prefixRPC), network...)
}

func tokenKey(prefix []byte, network, address string) []byte {
	key := bytes.Clone(prefix)
	key = append(key, network...)
	key = append(key, '/')
	return append(key, addressKey(address)...)
}

// addressKey folds 0x hex addresses to lower case.
func addressKey(address string) string {
	a := strings.TrimSpace(address)
	if strings.HasPrefix(a, "0x") {
		return strings.ToLower(a)
	}
	return a
}

func (s *store) load() (*Snapshot, error) {
	snap := &Snapshot{RPC: map[string]string{}}

	owner, err := s.db.Get(keyOwner)
	switch {
	case err == nil:
		snap.Owner = string(owner)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("state load owner: %w", err)
	}
	paused, err := s.db.Get(keyPaused)
	switch {
	case err == nil:
		snap.Paused = len(paused) == 1 && paused[0] == 1
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("state load paused: %w", err)
	}

	err = s.db.ForEach(prefixRPC, func(key, value []byte) error {
		snap.RPC[string(key[len(prefixRPC):])] = string(value)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("state load rpc: %w", err)
	}
	err = s.db.ForEach(prefixToken, func(_, value []byte) error {
		var t config.Token
		if err := json.Unmarshal(value, &t); err != nil {
			return nil // Skip corrupt entries.
		}
		snap.CustomTokens = append(snap.CustomTokens, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("state load tokens: %w", err)
	}
	err = s.db.ForEach(prefixRemoved, func(key, value []byte) error {
		network, _, ok := strings.Cut(string(key[len(prefixRemoved):]), "/")
		if !ok {
			return nil
		}
		snap.RemovedTokens = append(snap.RemovedTokens, TokenRef{Network: network, Address: string(value)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("state load removed tokens: %w", err)
	}
	return snap, nil
}

// write applies fn to a batch when the store supports one, else directly.
func (s *store) write(fn func(w writer) error) error {
	if b, ok := s.db.(storage.Batcher); ok {
		batch := b.NewBatch()
		if err := fn(batch); err != nil {
			return err
		}
		return batch.Commit()
	}
	return fn(s.db)
}

type writer interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

func putOwner(w writer, owner string) error {
	if owner == "" {
		return w.Delete(keyOwner)
	}
	return w.Put(keyOwner, []byte(owner))
}

func putPaused(w writer, paused bool) error {
	v := byte(0)
	if paused {
		v = 1
	}
	return w.Put(keyPaused, []byte{v})
}

func putToken(w writer, t config.Token) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("token marshal: %w", err)
	}
	return w.Put(tokenKey(prefixToken, t.Network, t.Address), data)
}

// replaceAll deletes every state key and writes snap.
func (s *store) replaceAll(snap *Snapshot) error {
	var stale [][]byte
	for _, prefix := range [][]byte{prefixRPC, prefixToken, prefixRemoved} {
		err := s.db.ForEach(prefix, func(key, _ []byte) error {
			stale = append(stale, key)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return s.write(func(w writer) error {
		for _, k := range stale {
			if err := w.Delete(k); err != nil {
				return err
			}
		}
		if err := putOwner(w, snap.Owner); err != nil {
			return err
		}
		if err := putPaused(w, snap.Paused); err != nil {
			return err
		}
		for network, url := range snap.RPC {
			if err := w.Put(rpcKey(network), []byte(url)); err != nil {
				return err
			}
		}
		for _, t := range snap.CustomTokens {
			if err := putToken(w, t); err != nil {
				return err
			}
		}
		for _, r := range snap.RemovedTokens {
			if err := w.Put(tokenKey(prefixRemoved, r.Network, r.Address), []byte(r.Address)); err != nil {
				return err
			}
		}
		return nil
	})
}
