package evm

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strings"
	"sync"
	"testing"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/chaintest"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/evm"
)

const (
	usdc = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	dest = "0x00000000000000000000000000000000000000aa"
)

func word(n int64) string {
	return "0x" + hex.EncodeToString(evmWord(big.NewInt(n)))
}

func evmWord(v *big.Int) []byte {
	b := make([]byte, 32)
	v.FillBytes(b)
	return b
}

// abiString encodes s as an ABI dynamic string return value.
func abiString(s string) string {
	out := evmWord(big.NewInt(32))
	out = append(out, evmWord(big.NewInt(int64(len(s))))...)
	pad := make([]byte, (len(s)+31)/32*32)
	copy(pad, s)
	return "0x" + hex.EncodeToString(append(out, pad...))
}

type fakeNode struct {
	mu       sync.Mutex
	baseFee  string
	sendErr  *chaintest.RPCError
	sent     []string
	nonceArg []string
}

func (f *fakeNode) handle(t *testing.T) func(req chaintest.RPCRequest) (any, *chaintest.RPCError) {
	sel := func(sig string) string {
		s := evm.Selector(sig)
		return hex.EncodeToString(s[:])
	}
	return func(req chaintest.RPCRequest) (any, *chaintest.RPCError) {
		f.mu.Lock()
		defer f.mu.Unlock()
		params := req.List(t)
		switch req.Method {
		case "eth_getBalance":
			return "0xde0b6b3a7640000", nil // 1e18
		case "eth_getTransactionCount":
			var addr, tag string
			require.NoError(t, json.Unmarshal(params[0], &addr))
			require.NoError(t, json.Unmarshal(params[1], &tag))
			f.nonceArg = []string{addr, tag}
			return "0x7", nil
		case "eth_gasPrice":
			return "0x3b9aca00", nil
		case "eth_maxPriorityFeePerGas":
			return "0x77359400", nil
		case "eth_getBlockByNumber":
			if f.baseFee == "" {
				return map[string]any{"number": "0x10"}, nil
			}
			return map[string]any{"number": "0x10", "baseFeePerGas": f.baseFee}, nil
		case "eth_call":
			var call struct{ To, Data string }
			require.NoError(t, json.Unmarshal(params[0], &call))
			data := strings.TrimPrefix(call.Data, "0x")
			switch {
			case strings.HasPrefix(data, sel(evm.SigDecimals)):
				return word(6), nil
			case strings.HasPrefix(data, sel(evm.SigBalanceOf)):
				return word(2_500_000), nil
			case strings.HasPrefix(data, sel(evm.SigSymbol)):
				return abiString("USDC"), nil
			case strings.HasPrefix(data, sel(evm.SigName)):
				return "0x", nil
			}
			return nil, &chaintest.RPCError{Code: -32000, Message: "execution reverted"}
		case "eth_sendRawTransaction":
			var raw string
			require.NoError(t, json.Unmarshal(params[0], &raw))
			f.sent = append(f.sent, raw)
			if f.sendErr != nil {
				return nil, f.sendErr
			}
			return nil, nil
		}
		return nil, &chaintest.RPCError{Code: -32601, Message: "method not found"}
	}
}

func newAdapter(t *testing.T, network string, f *fakeNode) (*Adapter, wallet.Account) {
	nw, ok := config.LookupNetwork(network)
	require.True(t, ok)
	srv := chaintest.Server(t, chaintest.RPCHandler(t, f.handle(t)))
	return New(nw, chaintest.Deps(t, srv.URL)), chaintest.Account(t, nw.ID, nw.SharedAddressGroup, "alice")
}

func decodeSent(t *testing.T, raw string, chainID int64) (*gethtypes.Transaction, string) {
	b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	require.NoError(t, err)
	var tx gethtypes.Transaction
	require.NoError(t, tx.UnmarshalBinary(b))
	sender, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(big.NewInt(chainID)), &tx)
	require.NoError(t, err)
	return &tx, strings.ToLower(sender.Hex())
}

func TestDeriveAddressSharedAcrossEVMNetworks(t *testing.T) {
	eth, acct := newAdapter(t, "eth", &fakeNode{})
	base, baseAcct := newAdapter(t, "base", &fakeNode{})
	a, err := eth.DeriveAddress(context.Background(), acct)
	require.NoError(t, err)
	b, err := base.DeriveAddress(context.Background(), baseAcct)
	require.NoError(t, err)
	require.Equal(t, a.Address, b.Address)
	require.Len(t, a.Address, 42)
	require.Len(t, a.PublicKeyHex, 66)
}

func TestGetBalance(t *testing.T) {
	a, _ := newAdapter(t, "eth", &fakeNode{})
	ctx := context.Background()

	native, err := a.GetBalance(ctx, wallet.BalanceRequest{Account: strings.ToUpper(dest)})
	require.NoError(t, err)
	require.Equal(t, "1", native.Amount)
	require.EqualValues(t, 18, native.Decimals)
	require.Equal(t, "RPC eth_getBalance (formatted ETH)", native.Message)

	tok, err := a.GetBalance(ctx, wallet.BalanceRequest{Account: dest, Token: usdc})
	require.NoError(t, err)
	require.Equal(t, "2.5", tok.Amount)
	require.EqualValues(t, 6, tok.Decimals)
	require.Equal(t, usdc, tok.Token)

	_, err = a.GetBalance(ctx, wallet.BalanceRequest{Account: "0x1234"})
	require.True(t, wallet.IsKind(err, wallet.KindInvalidInput))
}

func TestTransferNativeEIP1559(t *testing.T) {
	f := &fakeNode{baseFee: "0x3b9aca00"}
	a, acct := newAdapter(t, "eth", f)
	ctx := context.Background()
	addr, err := a.DeriveAddress(ctx, acct)
	require.NoError(t, err)

	resp, err := a.Transfer(ctx, acct, wallet.TransferRequest{To: dest, Amount: "0.5"})
	require.NoError(t, err)
	require.True(t, resp.Accepted)
	require.Equal(t, []string{addr.Address, "pending"}, f.nonceArg)
	require.Len(t, f.sent, 1)

	tx, sender := decodeSent(t, f.sent[0], 1)
	require.Equal(t, addr.Address, sender)
	require.Equal(t, uint8(gethtypes.DynamicFeeTxType), tx.Type())
	require.EqualValues(t, 7, tx.Nonce())
	require.EqualValues(t, 21000, tx.Gas())
	require.Equal(t, "500000000000000000", tx.Value().String())
	require.Equal(t, "2000000000", tx.GasTipCap().String())
	require.Equal(t, "4000000000", tx.GasFeeCap().String())
	require.Equal(t, tx.Hash().Hex(), resp.TxID, "empty node result falls back to the local hash")
}

func TestTransferERC20Legacy(t *testing.T) {
	f := &fakeNode{}
	a, acct := newAdapter(t, "polygon", f)
	resp, err := a.Transfer(context.Background(), acct, wallet.TransferRequest{
		To:       dest,
		Amount:   "1.25",
		Token:    usdc,
		Nonce:    "42",
		Metadata: []wallet.MetadataEntry{{Key: "gas_limit", Value: "90000"}},
	})
	require.NoError(t, err)
	require.Contains(t, resp.Message, "ERC20 transfer")
	require.Nil(t, f.nonceArg, "explicit nonce skips eth_getTransactionCount")

	tx, _ := decodeSent(t, f.sent[0], 137)
	require.Equal(t, uint8(gethtypes.LegacyTxType), tx.Type())
	require.EqualValues(t, 42, tx.Nonce())
	require.EqualValues(t, 90000, tx.Gas())
	require.Equal(t, usdc, strings.ToLower(tx.To().Hex()))
	require.Zero(t, tx.Value().Sign())
	data := tx.Data()
	require.Len(t, data, 68)
	require.Equal(t, int64(1_250_000), new(big.Int).SetBytes(data[36:]).Int64())
}

func TestTransferCustomChain(t *testing.T) {
	f := &fakeNode{}
	a, acct := newAdapter(t, "evm:31337", f)
	require.Equal(t, "eip155:31337", a.Network())
	_, err := a.Transfer(context.Background(), acct, wallet.TransferRequest{To: dest, Amount: "1"})
	require.NoError(t, err)
	tx, _ := decodeSent(t, f.sent[0], 31337)
	require.EqualValues(t, 31337, tx.ChainId().Int64())
}

func TestTransferErrors(t *testing.T) {
	ctx := context.Background()

	f := &fakeNode{sendErr: &chaintest.RPCError{Code: -32000, Message: "nonce too low"}}
	a, acct := newAdapter(t, "eth", f)
	_, err := a.Transfer(ctx, acct, wallet.TransferRequest{To: dest, Amount: "1"})
	require.True(t, wallet.IsKind(err, wallet.KindInternal))
	require.Contains(t, err.Error(), "nonce too low")

	for _, tt := range []struct {
		req wallet.TransferRequest
		msg string
	}{
		{wallet.TransferRequest{To: "nope", Amount: "1"}, "invalid to"},
		{wallet.TransferRequest{To: dest, Amount: "0"}, "amount must be > 0"},
		{wallet.TransferRequest{To: dest, Amount: "1", From: dest}, "from does not match managed EVM address"},
		{wallet.TransferRequest{To: dest, Amount: "1", Nonce: "x"}, "nonce must be an unsigned integer"},
		{wallet.TransferRequest{To: dest, Amount: "1", Metadata: []wallet.MetadataEntry{{Key: "gas_limit", Value: "5"}}}, "gas_limit"},
	} {
		_, err := a.Transfer(ctx, acct, tt.req)
		require.True(t, wallet.IsKind(err, wallet.KindInvalidInput), "%+v: %v", tt.req, err)
		require.Contains(t, err.Error(), tt.msg)
	}
}

func TestDiscoverToken(t *testing.T) {
	a, _ := newAdapter(t, "eth", &fakeNode{})
	_, err := a.DiscoverToken(context.Background(), "abc")
	require.True(t, wallet.IsKind(err, wallet.KindInvalidInput))

	tok, err := a.DiscoverToken(context.Background(), strings.ToUpper(usdc))
	require.NoError(t, err)
	require.Equal(t, usdc, tok.Address)
	require.Equal(t, "USDC", tok.Symbol)
	require.Equal(t, "ERC20 06EB48", tok.Name, "empty name() falls back to the address suffix")
	require.EqualValues(t, 6, tok.Decimals)
	require.Equal(t, "eth", tok.Network)
}
