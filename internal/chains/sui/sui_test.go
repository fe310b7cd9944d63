package sui

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/chaintest"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/sui"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

const (
	usdc     = "0xdba34672e30cb065b1f93e3ab55318768fd6fef66c15942c9f7cb846e2f900e7::usdc::USDC"
	receiver = "0x7"
)

var txBytes = []byte("bcs transaction data")

type fakeNode struct {
	mu       sync.Mutex
	execErr  *chaintest.RPCError
	failed   bool
	noDigest bool
	fewCoins bool
	calls    map[string][][]json.RawMessage
	executed [][]json.RawMessage
}

func (f *fakeNode) handle(t *testing.T) func(req chaintest.RPCRequest) (any, *chaintest.RPCError) {
	coin := func(id, bal string) map[string]any {
		return map[string]any{"coinObjectId": id, "balance": bal, "coinType": "x"}
	}
	return func(req chaintest.RPCRequest) (any, *chaintest.RPCError) {
		f.mu.Lock()
		defer f.mu.Unlock()
		params := req.List(t)
		if f.calls == nil {
			f.calls = map[string][][]json.RawMessage{}
		}
		f.calls[req.Method] = append(f.calls[req.Method], params)
		switch req.Method {
		case "suix_getBalance":
			if len(params) == 2 {
				return map[string]any{"coinType": usdc, "totalBalance": "2500000"}, nil
			}
			return map[string]any{"coinType": sui.CoinType, "totalBalance": "1500000000"}, nil
		case "suix_getCoinMetadata":
			return map[string]any{"decimals": 6, "symbol": "USDC", "name": ""}, nil
		case "suix_getReferenceGasPrice":
			return "750", nil
		case "suix_getCoins":
			var coinType string
			require.NoError(t, json.Unmarshal(params[1], &coinType))
			if coinType == usdc {
				return map[string]any{"data": []any{coin("0xt1", "1000000"), coin("0xt2", "5000000")}}, nil
			}
			if f.fewCoins {
				return map[string]any{"data": []any{coin("0xs1", "10")}}, nil
			}
			return map[string]any{"data": []any{coin("0xs1", "300000000"), coin("0xs2", "9000000000"), coin("0xs3", "1")}}, nil
		case "unsafe_paySui", "unsafe_pay":
			return map[string]any{"txBytes": base64.StdEncoding.EncodeToString(txBytes), "gas": []any{}}, nil
		case "sui_executeTransactionBlock":
			f.executed = append(f.executed, params)
			if f.execErr != nil {
				return nil, f.execErr
			}
			status := map[string]any{"status": "success"}
			if f.failed {
				status = map[string]any{"status": "failure", "error": "InsufficientCoinBalance"}
			}
			out := map[string]any{"effects": map[string]any{"status": status}}
			if !f.noDigest {
				out["digest"] = "SuiDigest"
			}
			return out, nil
		}
		return nil, &chaintest.RPCError{Code: -32601, Message: "Method not found"}
	}
}

func newAdapter(t *testing.T, f *fakeNode) (*Adapter, wallet.Account) {
	nw, ok := config.LookupNetwork("sui")
	require.True(t, ok)
	srv := chaintest.Server(t, chaintest.RPCHandler(t, f.handle(t)))
	return New(nw, chaintest.Deps(t, srv.URL)), chaintest.Account(t, nw.ID, nw.SharedAddressGroup, "alice")
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestDeriveAddress(t *testing.T) {
	a, acct := newAdapter(t, &fakeNode{})
	resp, err := a.DeriveAddress(context.Background(), acct)
	require.NoError(t, err)
	pub, err := types.DecodeHex(resp.PublicKeyHex)
	require.NoError(t, err)
	want, err := sui.AddressFromPubKey(pub)
	require.NoError(t, err)
	require.Equal(t, want, resp.Address)
}

func TestGetBalance(t *testing.T) {
	f := &fakeNode{}
	a, _ := newAdapter(t, f)
	ctx := context.Background()

	resp, err := a.GetBalance(ctx, wallet.BalanceRequest{Account: receiver})
	require.NoError(t, err)
	require.Equal(t, "1.5", resp.Amount)
	require.EqualValues(t, 9, resp.Decimals)
	require.Len(t, resp.Account, 66)
	require.Len(t, f.calls["suix_getBalance"][0], 1)

	tok, err := a.GetBalance(ctx, wallet.BalanceRequest{Account: receiver, Token: usdc})
	require.NoError(t, err)
	require.Equal(t, "2.5", tok.Amount)
	require.EqualValues(t, 6, tok.Decimals)
	require.Equal(t, usdc, decode[string](t, f.calls["suix_getBalance"][1][1]))
}

func TestTransferSUI(t *testing.T) {
	f := &fakeNode{}
	a, acct := newAdapter(t, f)
	ctx := context.Background()
	addr, err := a.DeriveAddress(ctx, acct)
	require.NoError(t, err)

	resp, err := a.Transfer(ctx, acct, wallet.TransferRequest{To: receiver, Amount: "0.5", From: addr.Address})
	require.NoError(t, err)
	require.Equal(t, "SuiDigest", resp.TxID)

	pay := f.calls["unsafe_paySui"][0]
	require.Equal(t, addr.Address, decode[string](t, pay[0]))
	// 0.5 SUI plus a 2M budget at price 750 needs both of the first coins.
	require.Equal(t, []string{"0xs1", "0xs2"}, decode[[]string](t, pay[1]))
	require.Equal(t, []string{"0x" + "0000000000000000000000000000000000000000000000000000000000000007"}, decode[[]string](t, pay[2]))
	require.Equal(t, []string{"500000000"}, decode[[]string](t, pay[3]))
	require.Equal(t, "2000000", decode[string](t, pay[4]))

	exec := f.executed[0]
	require.Equal(t, base64.StdEncoding.EncodeToString(txBytes), decode[string](t, exec[0]))
	require.Equal(t, "WaitForLocalExecution", decode[string](t, exec[3]))
	sigs := decode[[]string](t, exec[1])
	require.Len(t, sigs, 1)
	raw, err := base64.StdEncoding.DecodeString(sigs[0])
	require.NoError(t, err)
	require.Len(t, raw, 97)
	require.Equal(t, sui.FlagEd25519, raw[0])
	pub, _ := types.DecodeHex(addr.PublicKeyHex)
	require.Equal(t, pub, raw[65:])
	digest := sui.TxDigest(txBytes)
	require.True(t, ed25519.Verify(pub, digest[:], raw[1:65]))
}

func TestTransferCoin(t *testing.T) {
	f := &fakeNode{}
	a, acct := newAdapter(t, f)
	_, err := a.Transfer(context.Background(), acct, wallet.TransferRequest{To: receiver, Amount: "1.5", Token: usdc})
	require.NoError(t, err)

	pay := f.calls["unsafe_pay"][0]
	require.Equal(t, []string{"0xt1", "0xt2"}, decode[[]string](t, pay[1]))
	require.Equal(t, []string{"1500000"}, decode[[]string](t, pay[3]))
	require.Equal(t, "0xs2", decode[string](t, pay[4]), "largest SUI coin pays gas")
	require.Equal(t, "5000000", decode[string](t, pay[5]))
}

func TestTransferErrors(t *testing.T) {
	ctx := context.Background()

	a, acct := newAdapter(t, &fakeNode{fewCoins: true})
	_, err := a.Transfer(ctx, acct, wallet.TransferRequest{To: receiver, Amount: "1"})
	require.True(t, wallet.IsKind(err, wallet.KindInternal))
	require.ErrorContains(t, err, "insufficient Sui coin objects")
	_, err = a.Transfer(ctx, acct, wallet.TransferRequest{To: receiver, Amount: "1", Token: usdc})
	require.ErrorContains(t, err, "no SUI gas coin")

	_, err = a.Transfer(ctx, acct, wallet.TransferRequest{To: receiver, Amount: "1", From: receiver})
	require.EqualError(t, err, "from does not match managed Sui address")
	_, err = a.Transfer(ctx, acct, wallet.TransferRequest{To: "0xg", Amount: "1"})
	require.True(t, wallet.IsKind(err, wallet.KindInvalidInput))

	f := &fakeNode{failed: true}
	a, acct = newAdapter(t, f)
	_, err = a.Transfer(ctx, acct, wallet.TransferRequest{To: receiver, Amount: "1"})
	require.True(t, wallet.IsKind(err, wallet.KindInternal))
	require.ErrorContains(t, err, "InsufficientCoinBalance")

	f.failed = false
	f.execErr = &chaintest.RPCError{Code: -32002, Message: "Transaction validator signing failed"}
	_, err = a.Transfer(ctx, acct, wallet.TransferRequest{To: receiver, Amount: "1"})
	require.True(t, wallet.IsKind(err, wallet.KindInternal), "%v", err)

	// Without a digest in the result the local one is reported.
	f.execErr = nil
	f.noDigest = true
	resp, err := a.Transfer(ctx, acct, wallet.TransferRequest{To: receiver, Amount: "1"})
	require.NoError(t, err)
	require.Equal(t, sui.TransactionDigest(txBytes), resp.TxID, "missing digest falls back to the local one")
}

func TestDiscoverToken(t *testing.T) {
	a, _ := newAdapter(t, &fakeNode{})
	tok, err := a.DiscoverToken(context.Background(), usdc)
	require.NoError(t, err)
	require.Equal(t, "USDC", tok.Symbol)
	require.Equal(t, "USDC", tok.Name)
	require.EqualValues(t, 6, tok.Decimals)

	_, err = a.DiscoverToken(context.Background(), " ")
	require.True(t, wallet.IsKind(err, wallet.KindInvalidInput))
}
