// Package chaintest provides fixtures for chain adapter tests: a
// deterministic local signer, deps pointing at an httptest server and
// JSON helpers for fake node handlers.
package chaintest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/klingnet-wallet/internal/signer"
	"github.com/Klingon-tech/klingnet-wallet/internal/transport"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
)

// Mnemonic is the BIP39 test vector mnemonic.
const Mnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// Signer returns the local signer for Mnemonic.
func Signer(t testing.TB) *signer.Local {
	t.Helper()
	l, err := signer.NewLocal(Mnemonic, "", signer.WithKeyNames("test_key_1", "test_key_1"))
	require.NoError(t, err)
	return l
}

// Server starts an httptest server for h and closes it with the test.
func Server(t testing.TB, h http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

// Deps wires the test signer and a real HTTP transport to url for every
// network.
func Deps(t testing.TB, url string) wallet.Deps {
	t.Helper()
	return wallet.Deps{
		Signer:    Signer(t),
		HTTP:      transport.NewHTTP(5*time.Second, 0),
		Endpoints: wallet.EndpointFunc(func(string) (string, error) { return url, nil }),
	}
}

// Account builds the account of caller at index 0 for network.
func Account(t testing.TB, network, group, caller string) wallet.Account {
	t.Helper()
	acct, err := wallet.NewAccount(network, group, caller, nil, "")
	require.NoError(t, err)
	return acct
}

// WriteJSON encodes v as the response body.
func WriteJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// RPCRequest is a decoded JSON-RPC request.
type RPCRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     json.RawMessage `json:"id"`
}

// RPCHandler serves JSON-RPC calls. fn returns the result or an error
// object; a nil error object with a nil result yields "result": null.
func RPCHandler(t testing.TB, fn func(req RPCRequest) (any, *RPCError)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req RPCRequest
		require.NoError(t, json.Unmarshal(body, &req))
		result, rpcErr := fn(req)
		out := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			out["error"] = rpcErr
		} else {
			out["result"] = result
		}
		WriteJSON(w, out)
	}
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// List decodes req.Params as a positional list.
func (r RPCRequest) List(t testing.TB) []json.RawMessage {
	t.Helper()
	var list []json.RawMessage
	require.NoError(t, json.Unmarshal(r.Params, &list))
	return list
}
