package ton

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/chaintest"
	"github.com/Klingon-tech/klingnet-wallet/internal/transport"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/ton"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

var (
	destAddr   = ton.Address{Hash: [32]byte{1: 7}}
	masterAddr = ton.Address{Hash: [32]byte{2: 9}}
	jwAddr     = ton.Address{Hash: [32]byte{3: 5}}

	dest   = destAddr.UserFriendly(false, false)
	master = masterAddr.UserFriendly(true, false)

	fixedNow = time.Unix(1_700_000_000, 0)
)

type fakeCenter struct {
	mu           sync.Mutex
	uninit       bool
	noJetton     bool
	noMeta       bool
	noReturnHash bool
	rejectBoc    bool
	queries      map[string][]url.Values
	sent         map[string][]string
}

func writeOK(w http.ResponseWriter, result any) {
	chaintest.WriteJSON(w, map[string]any{"ok": true, "result": result})
}

func writeFail(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": msg, "code": 500})
}

func (f *fakeCenter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queries == nil {
		f.queries = map[string][]url.Values{}
		f.sent = map[string][]string{}
	}
	f.queries[r.URL.Path] = append(f.queries[r.URL.Path], r.URL.Query())

	switch r.URL.Path {
	case "/api/v2/getAddressBalance":
		writeOK(w, "1500000000")
	case "/api/v2/getWalletInformation":
		if f.uninit {
			writeFail(w, "failed to execute get methods: cannot get seqno")
			return
		}
		writeOK(w, map[string]any{"wallet": true, "seqno": 7, "account_state": "active"})
	case "/api/v2/sendBocReturnHash", "/api/v2/sendBoc":
		raw, _ := io.ReadAll(r.Body)
		var body struct {
			Boc string `json:"boc"`
		}
		_ = json.Unmarshal(raw, &body)
		f.sent[r.URL.Path] = append(f.sent[r.URL.Path], body.Boc)
		switch {
		case r.URL.Path == "/api/v2/sendBocReturnHash" && f.noReturnHash:
			http.NotFound(w, r)
		case f.rejectBoc:
			writeFail(w, "LITE_SERVER_UNKNOWN: cannot apply external message to current state")
		case r.URL.Path == "/api/v2/sendBoc":
			writeOK(w, map[string]any{"@type": "ok"})
		default:
			writeOK(w, map[string]any{"@type": "ok", "hash": "TonMsgHash="})
		}
	case "/api/v3/jetton/wallets":
		if f.noJetton {
			chaintest.WriteJSON(w, map[string]any{"jetton_wallets": []any{}})
			return
		}
		chaintest.WriteJSON(w, map[string]any{"jetton_wallets": []any{
			map[string]any{"address": jwAddr.Raw(), "balance": "2500000"},
		}})
	case "/api/v3/jetton/masters":
		if f.noMeta {
			chaintest.WriteJSON(w, map[string]any{"jetton_masters": []any{}})
			return
		}
		chaintest.WriteJSON(w, map[string]any{"jetton_masters": []any{
			map[string]any{"jetton_content": map[string]any{"symbol": "USDT", "name": "Tether USD", "decimals": "6"}},
		}})
	default:
		http.NotFound(w, r)
	}
}

func newAdapter(t *testing.T, f *fakeCenter) (*Adapter, wallet.Account) {
	nw, ok := config.LookupNetwork("ton")
	require.True(t, ok)
	srv := chaintest.Server(t, f)
	a := New(nw, chaintest.Deps(t, srv.URL+"/api/v2/"))
	a.now = func() time.Time { return fixedNow }
	return a, chaintest.Account(t, nw.ID, nw.SharedAddressGroup, "alice")
}

type sentMessage struct {
	stateInit  *ton.Cell
	walletID   uint32
	validUntil uint32
	seqno      uint32
	mode       uint8
	out        *ton.Cell
}

// decodeSent parses an external message and verifies its signature.
func decodeSent(t *testing.T, boc string, pub []byte) *sentMessage {
	ext, err := ton.ParseBOCBase64(boc)
	require.NoError(t, err)
	refs := ext.Refs()
	m := &sentMessage{}
	if len(refs) == 2 {
		m.stateInit = refs[0]
	} else {
		require.Len(t, refs, 1)
	}
	body := refs[len(refs)-1]
	require.Equal(t, 512+136, body.BitLen())
	require.Len(t, body.Refs(), 1)
	data := body.Data()
	signing, err := ton.BeginCell().StoreBytes(data[64:81]).StoreRef(body.Refs()[0]).EndCell()
	require.NoError(t, err)
	digest := signing.Hash()
	require.True(t, ed25519.Verify(pub, digest[:], data[:64]))

	fields := data[64:]
	m.walletID = binary.BigEndian.Uint32(fields[0:4])
	m.validUntil = binary.BigEndian.Uint32(fields[4:8])
	m.seqno = binary.BigEndian.Uint32(fields[8:12])
	m.mode = fields[16]
	m.out = body.Refs()[0]
	return m
}

func derive(t *testing.T, a *Adapter, acct wallet.Account) (*wallet.AddressResponse, []byte, *ton.Wallet) {
	resp, err := a.DeriveAddress(context.Background(), acct)
	require.NoError(t, err)
	pub, err := types.DecodeHex(resp.PublicKeyHex)
	require.NoError(t, err)
	var key [32]byte
	copy(key[:], pub)
	w, err := ton.NewWalletV4R2(key)
	require.NoError(t, err)
	return resp, pub, w
}

func TestV3Base(t *testing.T) {
	for in, want := range map[string]string{
		"https://toncenter.com/api/v2": "https://toncenter.com/api/v3",
		"https://example.org/ton/v2":   "https://example.org/ton/v3",
		"https://example.org":          "https://example.org/api/v3",
	} {
		require.Equal(t, want, v3Base(in), in)
	}
}

func TestDeriveAddress(t *testing.T) {
	a, acct := newAdapter(t, &fakeCenter{})
	resp, _, w := derive(t, a, acct)
	addr, err := ton.ParseAddress(resp.Address)
	require.NoError(t, err)
	require.True(t, addr.Friendly)
	require.False(t, addr.Bounceable)
	require.True(t, addr.Equal(w.Address))
	require.Contains(t, resp.Message, w.Address.Raw())
}

func TestGetBalance(t *testing.T) {
	f := &fakeCenter{}
	a, _ := newAdapter(t, f)
	ctx := context.Background()

	resp, err := a.GetBalance(ctx, wallet.BalanceRequest{Account: dest})
	require.NoError(t, err)
	require.Equal(t, "1.5", resp.Amount)
	require.EqualValues(t, 9, resp.Decimals)
	require.Equal(t, destAddr.Raw(), f.queries["/api/v2/getAddressBalance"][0].Get("address"))

	tok, err := a.GetBalance(ctx, wallet.BalanceRequest{Account: dest, Token: master})
	require.NoError(t, err)
	require.Equal(t, "2.5", tok.Amount)
	require.EqualValues(t, 6, tok.Decimals)
	require.Contains(t, tok.Message, jwAddr.Raw())
	q := f.queries["/api/v3/jetton/wallets"][0]
	require.Equal(t, destAddr.Raw(), q.Get("owner_address"))
	require.Equal(t, masterAddr.Raw(), q.Get("jetton_address"))

	empty, _ := newAdapter(t, &fakeCenter{noJetton: true, noMeta: true})
	resp, err = empty.GetBalance(ctx, wallet.BalanceRequest{Account: dest, Token: master})
	require.NoError(t, err)
	require.Equal(t, "0", resp.Amount)
	require.EqualValues(t, 9, resp.Decimals, "missing metadata falls back to 9 decimals")
	require.Contains(t, resp.Message, "no wallet yet")

	_, err = a.GetBalance(ctx, wallet.BalanceRequest{Account: "EQ-not-an-address"})
	require.True(t, wallet.IsKind(err, wallet.KindInvalidInput))
}

func TestTransferNativeActiveWallet(t *testing.T) {
	f := &fakeCenter{}
	a, acct := newAdapter(t, f)
	addr, pub, w := derive(t, a, acct)

	resp, err := a.Transfer(context.Background(), acct, wallet.TransferRequest{
		To: dest, Amount: "0.25", Memo: "order 12", From: w.Address.Raw(),
	})
	require.NoError(t, err)
	require.Equal(t, "TonMsgHash=", resp.TxID)
	require.Equal(t, "TON sendBocReturnHash accepted: TonMsgHash=", resp.Message)
	require.Empty(t, f.sent["/api/v2/sendBoc"])
	require.Equal(t, w.Address.Raw(), f.queries["/api/v2/getWalletInformation"][0].Get("address"))

	m := decodeSent(t, f.sent["/api/v2/sendBocReturnHash"][0], pub)
	require.Nil(t, m.stateInit, "active wallets are not redeployed")
	require.EqualValues(t, 7, m.seqno)
	require.EqualValues(t, ton.WalletV4R2ID, m.walletID)
	require.Equal(t, uint32(fixedNow.Unix()+300), m.validUntil)
	require.Equal(t, ton.SendModeDefault, m.mode)

	comment, err := ton.CommentBody("order 12")
	require.NoError(t, err)
	want, err := ton.InternalMessage(destAddr, big.NewInt(250_000_000), false, comment)
	require.NoError(t, err)
	require.True(t, want.Equal(m.out), "non-bounceable destination keeps its flag")
	require.Equal(t, f.sent["/api/v2/sendBocReturnHash"][0], resp.SignedTx)
	require.NotEmpty(t, addr.Address)
}

func TestTransferDeploysAndFallsBack(t *testing.T) {
	f := &fakeCenter{uninit: true, noReturnHash: true}
	a, acct := newAdapter(t, f)
	_, pub, w := derive(t, a, acct)

	resp, err := a.Transfer(context.Background(), acct, wallet.TransferRequest{To: dest, Amount: "1"})
	require.NoError(t, err)
	require.Equal(t, "TON sendBoc accepted", resp.Message)
	require.Len(t, resp.TxID, 64, "sendBoc reports no hash; the message hash is used")

	require.Len(t, f.sent["/api/v2/sendBocReturnHash"], 1)
	require.Len(t, f.sent["/api/v2/sendBoc"], 1)
	boc := f.sent["/api/v2/sendBoc"][0]
	m := decodeSent(t, boc, pub)
	require.NotNil(t, m.stateInit)
	require.True(t, w.StateInit.Equal(m.stateInit))
	require.Zero(t, m.seqno)

	ext, err := ton.ParseBOCBase64(boc)
	require.NoError(t, err)
	h := ext.Hash()
	require.Equal(t, types.EncodeHex(h[:]), resp.TxID)
}

func TestTransferJetton(t *testing.T) {
	f := &fakeCenter{}
	a, acct := newAdapter(t, f)
	_, pub, w := derive(t, a, acct)

	_, err := a.Transfer(context.Background(), acct, wallet.TransferRequest{
		To: dest, Amount: "1.25", Token: master, Memo: "thanks",
	})
	require.NoError(t, err)
	require.Equal(t, w.Address.Raw(), f.queries["/api/v3/jetton/wallets"][0].Get("owner_address"))

	m := decodeSent(t, f.sent["/api/v2/sendBocReturnHash"][0], pub)
	jt := &ton.JettonTransfer{
		Amount:              big.NewInt(1_250_000),
		Destination:         destAddr,
		ResponseDestination: w.Address,
		ForwardTonAmount:    big.NewInt(1),
		Memo:                "thanks",
	}
	body, err := jt.Body()
	require.NoError(t, err)
	want, err := ton.InternalMessage(jwAddr, big.NewInt(100_000_000), true, body)
	require.NoError(t, err)
	require.True(t, want.Equal(m.out))

	// Attached TON can be overridden through metadata.
	_, err = a.Transfer(context.Background(), acct, wallet.TransferRequest{
		To: dest, Amount: "1", Token: master,
		Metadata: []wallet.MetadataEntry{{Key: "jetton_attached_ton", Value: "0.05"}},
	})
	require.NoError(t, err)
	m = decodeSent(t, f.sent["/api/v2/sendBocReturnHash"][1], pub)
	jt.Amount, jt.Memo = big.NewInt(1_000_000), ""
	body, err = jt.Body()
	require.NoError(t, err)
	want, err = ton.InternalMessage(jwAddr, big.NewInt(50_000_000), true, body)
	require.NoError(t, err)
	require.True(t, want.Equal(m.out))
}

func TestTransferErrors(t *testing.T) {
	ctx := context.Background()

	a, acct := newAdapter(t, &fakeCenter{noJetton: true})
	_, err := a.Transfer(ctx, acct, wallet.TransferRequest{To: dest, Amount: "1", Token: master})
	require.True(t, wallet.IsKind(err, wallet.KindInternal))
	require.ErrorContains(t, err, "sender jetton wallet not found")

	for _, tt := range []struct {
		req wallet.TransferRequest
		msg string
	}{
		{wallet.TransferRequest{Amount: "1"}, "to is required"},
		{wallet.TransferRequest{To: "0:zz", Amount: "1"}, "invalid to"},
		{wallet.TransferRequest{To: dest, Amount: "0"}, "amount must be > 0"},
		{wallet.TransferRequest{To: dest, Amount: "1", From: dest}, "from does not match managed TON address"},
		{wallet.TransferRequest{To: dest, Amount: "1", Token: master,
			Metadata: []wallet.MetadataEntry{{Key: "ton_attached", Value: "0"}}}, "attached TON for jetton transfer must be > 0"},
	} {
		_, err := a.Transfer(ctx, acct, tt.req)
		require.True(t, wallet.IsKind(err, wallet.KindInvalidInput), "%+v: %v", tt.req, err)
		require.ErrorContains(t, err, tt.msg)
	}

	f := &fakeCenter{rejectBoc: true}
	a, acct = newAdapter(t, f)
	_, err = a.Transfer(ctx, acct, wallet.TransferRequest{To: dest, Amount: "1"})
	require.True(t, wallet.IsKind(err, wallet.KindInternal), "%v", err)
	require.ErrorContains(t, err, "cannot apply external message")
	require.Len(t, f.sent["/api/v2/sendBoc"], 1)

	// Both broadcast attempts lose their response.
	srv := chaintest.Server(t, &fakeCenter{})
	deps := chaintest.Deps(t, srv.URL+"/api/v2")
	inner := deps.HTTP
	deps.HTTP = transport.DoerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		if strings.Contains(req.URL, "/sendBoc") {
			return nil, io.ErrUnexpectedEOF
		}
		return inner.Do(ctx, req)
	})
	nw, _ := config.LookupNetwork("ton")
	_, err = New(nw, deps).Transfer(ctx, acct, wallet.TransferRequest{To: dest, Amount: "1"})
	require.True(t, wallet.IsKind(err, wallet.KindBroadcastUnknown), "%v", err)
	var we *wallet.Error
	require.ErrorAs(t, err, &we)
	require.Len(t, we.TxID, 64)
	require.NotEmpty(t, we.SignedTx)
}

func TestDiscoverToken(t *testing.T) {
	a, _ := newAdapter(t, &fakeCenter{})
	tok, err := a.DiscoverToken(context.Background(), masterAddr.Raw())
	require.NoError(t, err)
	require.Equal(t, master, tok.Address, "token addresses are stored bounceable")
	require.Equal(t, "USDT", tok.Symbol)
	require.Equal(t, "Tether USD", tok.Name)
	require.EqualValues(t, 6, tok.Decimals)

	b, _ := newAdapter(t, &fakeCenter{noMeta: true})
	tok, err = b.DiscoverToken(context.Background(), master)
	require.NoError(t, err)
	suffix := strings.ToUpper(master[len(master)-6:])
	require.Equal(t, "JET"+suffix, tok.Symbol)
	require.Equal(t, "Jetton "+master[len(master)-6:], tok.Name)
	require.EqualValues(t, 9, tok.Decimals)
}
