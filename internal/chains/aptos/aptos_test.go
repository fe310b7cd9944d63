package aptos

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/chaintest"
	"github.com/Klingon-tech/klingnet-wallet/internal/transport"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/aptos"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

const (
	usdc     = "0xf22bede237a07e121b56d91a491eb7bcdfd1f5907926a9e58338f964a01b17fa::asset::USDC"
	receiver = "0x1d8727df513fa2a8785d0834e40b34223daff1affc079574082baadb74b66ee4"
)

var (
	fixedNow   = time.Unix(1_700_000_000, 0)
	signingMsg = []byte("APTOS::RawTransaction signing message")
)

type fakeNode struct {
	mu          sync.Mutex
	noStore     bool
	submitFail  bool
	signingReqs []map[string]any
	submitted   []map[string]any
	paths       []string
	escaped     []string
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := strings.TrimPrefix(r.URL.Path, "/v1")
	f.paths = append(f.paths, path)
	f.escaped = append(f.escaped, r.URL.EscapedPath())
	var body map[string]any
	if r.Method == http.MethodPost {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
	}

	switch {
	case strings.Contains(path, "/resource/0x1::coin::CoinStore<"):
		if f.noStore {
			w.WriteHeader(http.StatusNotFound)
			chaintest.WriteJSON(w, map[string]any{"message": "Resource not found", "error_code": "resource_not_found"})
			return
		}
		value := "150000000"
		if strings.Contains(path, "USDC") {
			value = "2500000"
		}
		chaintest.WriteJSON(w, map[string]any{"type": "coin store", "data": map[string]any{"coin": map[string]any{"value": value}}})
	case strings.Contains(path, "/resource/0x1::coin::CoinInfo<"):
		chaintest.WriteJSON(w, map[string]any{"data": map[string]any{"name": "USD Coin", "symbol": "USDC", "decimals": 6}})
	case path == "/":
		chaintest.WriteJSON(w, map[string]any{"chain_id": 1, "ledger_version": "123"})
	case path == "/estimate_gas_price":
		chaintest.WriteJSON(w, map[string]any{"gas_estimate": 150, "deprioritized_gas_estimate": 100})
	case path == "/transactions/signing_message":
		f.signingReqs = append(f.signingReqs, body)
		chaintest.WriteJSON(w, map[string]any{"message": types.EncodeHex0x(signingMsg)})
	case path == "/transactions":
		f.submitted = append(f.submitted, body)
		if f.submitFail {
			w.WriteHeader(http.StatusBadRequest)
			chaintest.WriteJSON(w, map[string]any{"message": "Invalid transaction: SEQUENCE_NUMBER_TOO_OLD", "error_code": "vm_error"})
			return
		}
		w.WriteHeader(http.StatusAccepted)
		chaintest.WriteJSON(w, map[string]any{"hash": "0xfeed", "sequence_number": body["sequence_number"]})
	case strings.HasPrefix(path, "/accounts/"):
		chaintest.WriteJSON(w, map[string]any{"sequence_number": "12", "authentication_key": strings.TrimPrefix(path, "/accounts/")})
	default:
		http.NotFound(w, r)
	}
}

func newAdapter(t *testing.T, f *fakeNode) (*Adapter, wallet.Account) {
	nw, ok := config.LookupNetwork("aptos")
	require.True(t, ok)
	srv := chaintest.Server(t, f)
	a := New(nw, chaintest.Deps(t, srv.URL+"/v1"))
	a.now = func() time.Time { return fixedNow }
	return a, chaintest.Account(t, nw.ID, nw.SharedAddressGroup, "alice")
}

func TestDeriveAddress(t *testing.T) {
	a, acct := newAdapter(t, &fakeNode{})
	resp, err := a.DeriveAddress(context.Background(), acct)
	require.NoError(t, err)
	pub, err := types.DecodeHex(resp.PublicKeyHex)
	require.NoError(t, err)
	want, err := aptos.AddressFromPubKey(pub)
	require.NoError(t, err)
	require.Equal(t, want, resp.Address)
	require.Len(t, resp.Address, 66)
}

func TestGetBalance(t *testing.T) {
	f := &fakeNode{}
	a, _ := newAdapter(t, f)
	ctx := context.Background()

	apt, err := a.GetBalance(ctx, wallet.BalanceRequest{Account: "0x1"})
	require.NoError(t, err)
	require.Equal(t, "1.5", apt.Amount)
	require.Equal(t, "0x"+strings.Repeat("0", 63)+"1", apt.Account)
	require.Empty(t, apt.Token)

	tok, err := a.GetBalance(ctx, wallet.BalanceRequest{Account: receiver, Token: usdc})
	require.NoError(t, err)
	require.Equal(t, "2.5", tok.Amount)
	require.EqualValues(t, 6, tok.Decimals)
	require.Equal(t, usdc, tok.Token)

	empty, _ := newAdapter(t, &fakeNode{noStore: true})
	resp, err := empty.GetBalance(ctx, wallet.BalanceRequest{Account: receiver})
	require.NoError(t, err)
	require.Equal(t, "0", resp.Amount, "accounts without a coin store hold nothing")

	_, err = a.GetBalance(ctx, wallet.BalanceRequest{Account: "0xzz"})
	require.True(t, wallet.IsKind(err, wallet.KindInvalidInput))
}

func TestTransferNative(t *testing.T) {
	f := &fakeNode{}
	a, acct := newAdapter(t, f)
	ctx := context.Background()
	addr, err := a.DeriveAddress(ctx, acct)
	require.NoError(t, err)

	resp, err := a.Transfer(ctx, acct, wallet.TransferRequest{To: receiver, Amount: "0.5", From: strings.ToUpper(addr.Address[2:])})
	require.NoError(t, err)
	require.Equal(t, "0xfeed", resp.TxID)
	require.Equal(t, "Aptos submit accepted: 0xfeed", resp.Message)

	require.Len(t, f.signingReqs, 1)
	raw := f.signingReqs[0]
	require.Equal(t, addr.Address, raw["sender"])
	require.Equal(t, "12", raw["sequence_number"])
	require.Equal(t, "20000", raw["max_gas_amount"])
	require.Equal(t, "150", raw["gas_unit_price"])
	require.Equal(t, "1700000600", raw["expiration_timestamp_secs"])
	require.EqualValues(t, 1, raw["chain_id"])
	payload := raw["payload"].(map[string]any)
	require.Equal(t, aptos.TransferCoinsFunc, payload["function"])
	require.Equal(t, []any{aptos.CoinType}, payload["type_arguments"])
	require.Equal(t, []any{receiver, "50000000"}, payload["arguments"])
	require.NotContains(t, raw, "signature")

	sub := f.submitted[0]
	sig := sub["signature"].(map[string]any)
	require.Equal(t, "ed25519_signature", sig["type"])
	require.Equal(t, "0x"+addr.PublicKeyHex, sig["public_key"])
	sigBytes, err := types.DecodeHex(sig["signature"].(string))
	require.NoError(t, err)
	pub, err := types.DecodeHex(addr.PublicKeyHex)
	require.NoError(t, err)
	require.True(t, ed25519.Verify(pub, signingMsg, sigBytes))
	require.Equal(t, raw["payload"], sub["payload"])
}

func TestTransferCoin(t *testing.T) {
	f := &fakeNode{}
	a, acct := newAdapter(t, f)
	_, err := a.Transfer(context.Background(), acct, wallet.TransferRequest{To: receiver, Amount: "1.25", Token: usdc})
	require.NoError(t, err)

	raw := f.signingReqs[0]
	require.Equal(t, "80000", raw["max_gas_amount"])
	payload := raw["payload"].(map[string]any)
	require.Equal(t, []any{usdc}, payload["type_arguments"])
	require.Equal(t, []any{receiver, "1250000"}, payload["arguments"])
}

func TestTransferErrors(t *testing.T) {
	ctx := context.Background()

	f := &fakeNode{submitFail: true}
	a, acct := newAdapter(t, f)
	_, err := a.Transfer(ctx, acct, wallet.TransferRequest{To: receiver, Amount: "1"})
	require.True(t, wallet.IsKind(err, wallet.KindInternal), "%v", err)
	require.ErrorContains(t, err, "SEQUENCE_NUMBER_TOO_OLD")

	for _, tt := range []struct {
		req wallet.TransferRequest
		msg string
	}{
		{wallet.TransferRequest{Amount: "1"}, "to is required"},
		{wallet.TransferRequest{To: "bob", Amount: "1"}, "invalid to"},
		{wallet.TransferRequest{To: receiver, Amount: "0.000000001"}, ""},
		{wallet.TransferRequest{To: receiver, Amount: "1", From: receiver}, "from does not match managed Aptos address"},
	} {
		_, err := a.Transfer(ctx, acct, tt.req)
		require.True(t, wallet.IsKind(err, wallet.KindInvalidInput), "%+v: %v", tt.req, err)
		require.ErrorContains(t, err, tt.msg)
	}

	// The submission may have reached the node.
	srv := chaintest.Server(t, &fakeNode{})
	deps := chaintest.Deps(t, srv.URL+"/v1")
	inner := deps.HTTP
	deps.HTTP = transport.DoerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		if strings.HasSuffix(req.URL, "/transactions") {
			return nil, io.ErrUnexpectedEOF
		}
		return inner.Do(ctx, req)
	})
	nw, _ := config.LookupNetwork("aptos")
	_, err = New(nw, deps).Transfer(ctx, acct, wallet.TransferRequest{To: receiver, Amount: "1"})
	require.True(t, wallet.IsKind(err, wallet.KindBroadcastUnknown), "%v", err)
	var we *wallet.Error
	require.ErrorAs(t, err, &we)
	require.Contains(t, we.SignedTx, `"ed25519_signature"`)
}

func TestDiscoverToken(t *testing.T) {
	f := &fakeNode{}
	a, _ := newAdapter(t, f)
	tok, err := a.DiscoverToken(context.Background(), usdc)
	require.NoError(t, err)
	require.Equal(t, "USDC", tok.Symbol)
	require.Equal(t, "USD Coin", tok.Name)
	require.EqualValues(t, 6, tok.Decimals)
	require.Equal(t, usdc, tok.Address)
	owner, _ := aptos.CoinOwner(usdc)
	require.Contains(t, f.paths, "/accounts/"+owner+"/resource/"+aptos.CoinInfoType(usdc))
	require.Contains(t, f.escaped, "/v1/accounts/"+owner+"/resource/0x1::coin::CoinInfo%3C"+usdc+"%3E")

	_, err = a.DiscoverToken(context.Background(), "not-a-coin-type")
	require.True(t, wallet.IsKind(err, wallet.KindInvalidInput))
}
