// Package ton implements the TON and jetton adapter on top of the
// toncenter v2 and v3 HTTP APIs. The managed address is a wallet v4r2
// contract owned by the Ed25519 key; it is deployed by the first outgoing
// transfer.
package ton

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/chainutil"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-wallet/internal/signer"
	"github.com/Klingon-tech/klingnet-wallet/internal/transport"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/ton"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/Klingon-tech/klingnet-wallet/pkg/units"
)

const (
	label    = "ton rpc"
	maxBytes = 1 << 20

	// validFor bounds how long a signed external message stays valid.
	validFor = 300 * time.Second
)

var (
	// Default TON attached to a jetton transfer to pay for the jetton
	// wallet's execution; the excess returns to the response destination.
	defaultJettonAttached = big.NewInt(100_000_000)
	forwardTonAmount      = big.NewInt(1)
)

// Adapter serves the TON mainnet.
type Adapter struct {
	network string
	deps    wallet.Deps
	logger  zerolog.Logger
	now     func() time.Time
}

// New returns the adapter for nw.
func New(nw config.Network, deps wallet.Deps) *Adapter {
	return &Adapter{network: nw.ID, deps: deps, logger: log.WithNetwork(nw.ID), now: time.Now}
}

// Network returns the network id.
func (a *Adapter) Network() string { return a.network }

type endpoints struct {
	v2, v3 string
}

// v3Base maps a v2 API base onto the v3 API of the same provider.
func v3Base(v2 string) string {
	switch {
	case strings.HasSuffix(v2, "/api/v2"):
		return strings.TrimSuffix(v2, "/api/v2") + "/api/v3"
	case strings.HasSuffix(v2, "/v2"):
		return strings.TrimSuffix(v2, "/v2") + "/v3"
	}
	return v2 + "/api/v3"
}

func (a *Adapter) endpoints() (*endpoints, error) {
	u, err := a.deps.RPCURL(a.network)
	if err != nil {
		return nil, err
	}
	v2 := chainutil.TrimSlash(u)
	return &endpoints{v2: v2, v3: v3Base(v2)}, nil
}

func query(path string, kv ...string) string {
	q := make([]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		q = append(q, kv[i]+"="+url.QueryEscape(kv[i+1]))
	}
	return path + "?" + strings.Join(q, "&")
}

// apiError is a v2 response with "ok": false.
type apiError struct {
	Code    json.RawMessage
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("TON RPC error code=%s: %s", string(e.Code), e.Message)
}

type envelope struct {
	OK     *bool           `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
	Code   json.RawMessage `json:"code"`
}

// unwrap extracts the result of a v2 response. toncenter reports API
// errors with an "ok": false envelope, often under a non-2xx status.
func unwrap(resp *transport.Response) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err == nil && env.OK != nil {
		if !*env.OK {
			code := env.Code
			if len(code) == 0 {
				code = json.RawMessage(strconv.Itoa(resp.Status))
			}
			return nil, &apiError{Code: code, Message: env.Error}
		}
		if resp.OK() {
			return env.Result, nil
		}
	}
	if !resp.OK() {
		return nil, transport.NewStatusError(label, resp, transport.SnippetLen)
	}
	return nil, fmt.Errorf("%s: response is not a toncenter envelope: %s", label, transport.Snippet(resp.Body, transport.SnippetLen))
}

func (a *Adapter) v2Get(ctx context.Context, ep *endpoints, path string) (json.RawMessage, error) {
	resp, err := transport.GetJSON(ctx, a.deps.HTTP, ep.v2+path, maxBytes)
	if err != nil {
		return nil, wallet.Internal("%s request failed: %v", label, err)
	}
	return unwrap(resp)
}

func (a *Adapter) v3Get(ctx context.Context, ep *endpoints, path string, v any) error {
	return chainutil.Get(ctx, a.deps.HTTP, "ton v3", ep.v3+path, maxBytes, v)
}

type identity struct {
	wallet  *ton.Wallet
	address string
	pub     []byte
	keyName string
}

func (a *Adapter) identity(ctx context.Context, acct wallet.Account) (*identity, error) {
	pk, err := chainutil.PublicKey(ctx, a.deps.Signer, acct, signer.SchnorrEd25519, 32)
	if err != nil {
		return nil, err
	}
	var pub [32]byte
	copy(pub[:], pk.Key)
	w, err := ton.NewWalletV4R2(pub)
	if err != nil {
		return nil, wallet.Internal("build TON wallet: %v", err)
	}
	return &identity{
		wallet:  w,
		address: w.Address.UserFriendly(false, false),
		pub:     pk.Key,
		keyName: pk.KeyName,
	}, nil
}

// DeriveAddress returns the non-bounceable user-friendly wallet address.
func (a *Adapter) DeriveAddress(ctx context.Context, acct wallet.Account) (*wallet.AddressResponse, error) {
	id, err := a.identity(ctx, acct)
	if err != nil {
		return nil, err
	}
	return &wallet.AddressResponse{
		Network:      a.network,
		Address:      id.address,
		PublicKeyHex: types.EncodeHex(id.pub),
		KeyName:      id.keyName,
		Index:        acct.Index,
		AccountTag:   acct.AccountTag,
		Message:      "TON wallet v4r2 address (raw " + id.wallet.Address.Raw() + ")",
	}, nil
}

func parseAddress(field, s string) (ton.Address, error) {
	addr, err := ton.ParseAddress(s)
	if err != nil {
		return ton.Address{}, wallet.InvalidInput("invalid %s: %v", field, err)
	}
	return addr, nil
}

// parseNano accepts a decimal integer encoded as a JSON string or number.
func parseNano(raw json.RawMessage) (*big.Int, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

// GetBalance reports the TON or jetton balance of any address.
func (a *Adapter) GetBalance(ctx context.Context, req wallet.BalanceRequest) (*wallet.BalanceResponse, error) {
	account, err := wallet.RequireAccount(&req)
	if err != nil {
		return nil, err
	}
	owner, err := parseAddress("account", account)
	if err != nil {
		return nil, err
	}
	ep, err := a.endpoints()
	if err != nil {
		return nil, err
	}
	if token := strings.TrimSpace(req.Token); token != "" {
		return a.jettonBalance(ctx, ep, account, owner, token)
	}

	raw, err := a.v2Get(ctx, ep, query("/getAddressBalance", "address", owner.Raw()))
	if err != nil {
		return nil, wallet.Wrap(err, "TON getAddressBalance failed")
	}
	nano, ok := parseNano(raw)
	if !ok {
		return nil, wallet.Internal("TON getAddressBalance returned invalid balance: %s", transport.Snippet(raw, 64))
	}
	return &wallet.BalanceResponse{
		Network:  a.network,
		Account:  account,
		Amount:   units.Format(nano, ton.Decimals),
		Decimals: ton.Decimals,
		Message:  "TON RPC getAddressBalance",
	}, nil
}

type jettonWallet struct {
	Address       string          `json:"address"`
	WalletAddress string          `json:"wallet_address"`
	Balance       json.RawMessage `json:"balance"`
}

func (j *jettonWallet) addr() string {
	if j.Address != "" {
		return j.Address
	}
	return j.WalletAddress
}

// findJettonWallet returns the jetton wallet of owner for master, or nil
// when the owner never received the jetton.
func (a *Adapter) findJettonWallet(ctx context.Context, ep *endpoints, owner, master ton.Address) (*jettonWallet, error) {
	var out struct {
		JettonWallets []jettonWallet `json:"jetton_wallets"`
		Result        []jettonWallet `json:"result"`
	}
	path := query("/jetton/wallets",
		"owner_address", owner.Raw(),
		"jetton_address", master.Raw(),
		"limit", "1",
		"offset", "0")
	if err := a.v3Get(ctx, ep, path, &out); err != nil {
		return nil, err
	}
	list := out.JettonWallets
	if len(list) == 0 {
		list = out.Result
	}
	if len(list) == 0 || list[0].addr() == "" {
		return nil, nil
	}
	return &list[0], nil
}

type jettonContent struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Decimals json.RawMessage `json:"decimals"`
	Data     *jettonContent  `json:"data"`
}

// jettonMeta is the on-chain or off-chain metadata of a jetton master,
// collected from whichever v3 fields the provider fills in.
type jettonMeta struct {
	symbol, name string
	decimals     *uint8
}

func (m *jettonMeta) merge(c *jettonContent) {
	if c == nil {
		return
	}
	if m.symbol == "" {
		m.symbol = strings.TrimSpace(c.Symbol)
	}
	if m.name == "" {
		m.name = strings.TrimSpace(c.Name)
	}
	if m.decimals == nil {
		if d, ok := parseDecimals(c.Decimals); ok {
			m.decimals = &d
		}
	}
	m.merge(c.Data)
}

func parseDecimals(raw json.RawMessage) (uint8, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0, false
	}
	d, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(d), true
}

func (a *Adapter) jettonMetadata(ctx context.Context, ep *endpoints, master ton.Address) (*jettonMeta, error) {
	var out struct {
		JettonMasters []struct {
			JettonContent *jettonContent `json:"jetton_content"`
		} `json:"jetton_masters"`
		Metadata map[string]struct {
			TokenInfo []jettonContent `json:"token_info"`
		} `json:"metadata"`
		jettonContent
	}
	path := query("/jetton/masters", "address", master.Raw(), "limit", "1", "offset", "0")
	if err := a.v3Get(ctx, ep, path, &out); err != nil {
		return nil, err
	}
	m := &jettonMeta{}
	for _, jm := range out.JettonMasters {
		m.merge(jm.JettonContent)
	}
	for _, md := range out.Metadata {
		for i := range md.TokenInfo {
			m.merge(&md.TokenInfo[i])
		}
	}
	m.merge(&out.jettonContent)
	return m, nil
}

// jettonDecimals falls back to 9, the TEP-64 default, when the master
// publishes none.
func (a *Adapter) jettonDecimals(ctx context.Context, ep *endpoints, master ton.Address) (uint8, error) {
	m, err := a.jettonMetadata(ctx, ep, master)
	if err != nil {
		return 0, err
	}
	if m.decimals == nil {
		return ton.Decimals, nil
	}
	return *m.decimals, nil
}

func (a *Adapter) jettonBalance(ctx context.Context, ep *endpoints, account string, owner ton.Address, token string) (*wallet.BalanceResponse, error) {
	master, err := parseAddress("token", token)
	if err != nil {
		return nil, err
	}
	decimals, err := a.jettonDecimals(ctx, ep, master)
	if err != nil {
		return nil, err
	}
	resp := &wallet.BalanceResponse{
		Network:  a.network,
		Account:  account,
		Token:    token,
		Amount:   "0",
		Decimals: decimals,
	}
	jw, err := a.findJettonWallet(ctx, ep, owner, master)
	if err != nil {
		return nil, err
	}
	if jw == nil {
		resp.Message = "TON v3 jetton/wallets (no wallet yet => balance 0)"
		return resp, nil
	}
	amount, ok := parseNano(jw.Balance)
	if !ok {
		return nil, wallet.Internal("TON jetton wallet returned invalid balance: %s", transport.Snippet(jw.Balance, 64))
	}
	resp.Amount = units.Format(amount, int(decimals))
	resp.Message = "TON v3 jetton/wallets (" + jw.addr() + ")"
	return resp, nil
}

type walletState struct {
	seqno  uint32
	active bool
}

// uninitialized matches the errors toncenter returns for a wallet that
// was never deployed.
func uninitialized(msg string) bool {
	msg = strings.ToLower(msg)
	for _, s := range []string{"not initialized", "cannot get seqno", "failed to execute get methods"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (a *Adapter) walletState(ctx context.Context, ep *endpoints, addr ton.Address) (*walletState, error) {
	raw, err := a.v2Get(ctx, ep, query("/getWalletInformation", "address", addr.Raw()))
	if err != nil {
		var ae *apiError
		if errors.As(err, &ae) && uninitialized(ae.Message) {
			return &walletState{}, nil
		}
		return nil, wallet.Wrap(err, "TON getWalletInformation failed")
	}
	var info struct {
		Seqno        *uint32         `json:"seqno"`
		AccountState string          `json:"account_state"`
		State        string          `json:"state"`
		Wallet       json.RawMessage `json:"wallet"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, wallet.Internal("TON getWalletInformation parse failed: %v", err)
	}
	st := &walletState{
		active: info.AccountState == "active" || info.State == "active",
	}
	if bytesTrue(info.Wallet) {
		st.active = true
	}
	if info.Seqno != nil {
		st.seqno = *info.Seqno
	}
	return st, nil
}

func bytesTrue(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null" && s != "false"
}

// Transfer signs an external message to the managed wallet carrying one
// outgoing internal message, deploying the wallet when it is inactive.
func (a *Adapter) Transfer(ctx context.Context, acct wallet.Account, req wallet.TransferRequest) (*wallet.TransferResponse, error) {
	toText, err := wallet.RequireTo(&req)
	if err != nil {
		return nil, err
	}
	to, err := parseAddress("to", toText)
	if err != nil {
		return nil, err
	}
	ep, err := a.endpoints()
	if err != nil {
		return nil, err
	}
	id, err := a.identity(ctx, acct)
	if err != nil {
		return nil, err
	}
	managed := id.wallet.Address
	err = wallet.CheckFrom(req.From, id.address, "TON", func(s string) (string, error) {
		from, err := ton.ParseAddress(s)
		if err != nil {
			return "", err
		}
		if from.Equal(managed) {
			return id.address, nil
		}
		return from.Raw(), nil
	})
	if err != nil {
		return nil, err
	}

	var out *ton.Cell
	if token := req.TokenParam(); token != "" {
		out, err = a.jettonOut(ctx, ep, &req, managed, to, token)
	} else {
		out, err = a.nativeOut(&req, to)
	}
	if err != nil {
		return nil, err
	}

	st, err := a.walletState(ctx, ep, managed)
	if err != nil {
		return nil, err
	}
	validUntil := uint32(a.now().Add(validFor).Unix())
	signing, err := id.wallet.SigningBody(validUntil, st.seqno, ton.SendModeDefault, out)
	if err != nil {
		return nil, wallet.Internal("build TON signing body: %v", err)
	}
	digest := signing.Hash()
	sig, err := chainutil.Sign(ctx, a.deps.Signer, signer.SignRequest{
		Path:      acct.Path,
		Algorithm: signer.SchnorrEd25519,
		Message:   digest[:],
	})
	if err != nil {
		return nil, err
	}
	body, err := ton.SignedBody(sig, signing)
	if err != nil {
		return nil, wallet.Internal("build TON signed body: %v", err)
	}
	var init *ton.Cell
	if !st.active {
		init = id.wallet.StateInit
	}
	ext, err := ton.ExternalMessage(managed, body, init)
	if err != nil {
		return nil, wallet.Internal("build TON external message: %v", err)
	}
	boc, err := ton.SerializeBOCBase64(ext)
	if err != nil {
		return nil, wallet.Internal("serialize TON message: %v", err)
	}
	extHash := ext.Hash()
	localID := types.EncodeHex(extHash[:])

	a.logger.Debug().
		Uint32("seqno", st.seqno).
		Bool("deploy", init != nil).
		Str("msg_hash", localID).
		Msg("Broadcasting TON external message")
	return a.broadcast(ctx, ep, localID, boc)
}

func (a *Adapter) nativeOut(req *wallet.TransferRequest, to ton.Address) (*ton.Cell, error) {
	amount, err := wallet.ParseAmount(req, ton.Decimals)
	if err != nil {
		return nil, err
	}
	var body *ton.Cell
	if req.Memo != "" {
		if body, err = ton.CommentBody(req.Memo); err != nil {
			return nil, wallet.InvalidInput("invalid memo: %v", err)
		}
	}
	// Raw addresses carry no flag; default to bounceable like wallets do.
	bounce := true
	if to.Friendly {
		bounce = to.Bounceable
	}
	out, err := ton.InternalMessage(to, amount, bounce, body)
	if err != nil {
		return nil, wallet.Internal("build TON internal message: %v", err)
	}
	return out, nil
}

// attachedTON reads the TON sent along with a jetton transfer.
func attachedTON(req *wallet.TransferRequest) (*big.Int, error) {
	text, ok := req.Meta("jetton_attached_ton", "ton_attached")
	if !ok {
		return defaultJettonAttached, nil
	}
	v, err := units.Parse(text, ton.Decimals)
	if err != nil {
		return nil, wallet.InvalidInput("invalid attached TON: %v", err)
	}
	if v.Sign() <= 0 {
		return nil, wallet.InvalidInput("attached TON for jetton transfer must be > 0")
	}
	return v, nil
}

func (a *Adapter) jettonOut(ctx context.Context, ep *endpoints, req *wallet.TransferRequest, managed, to ton.Address, token string) (*ton.Cell, error) {
	master, err := parseAddress("token", token)
	if err != nil {
		return nil, err
	}
	attached, err := attachedTON(req)
	if err != nil {
		return nil, err
	}
	decimals, err := a.jettonDecimals(ctx, ep, master)
	if err != nil {
		return nil, err
	}
	amount, err := wallet.ParseAmount(req, int(decimals))
	if err != nil {
		return nil, err
	}
	jw, err := a.findJettonWallet(ctx, ep, managed, master)
	if err != nil {
		return nil, err
	}
	if jw == nil {
		return nil, wallet.Internal("sender jetton wallet not found (fund token first so wallet is created)")
	}
	jwAddr, err := ton.ParseAddress(jw.addr())
	if err != nil {
		return nil, wallet.Internal("TON v3 returned invalid jetton wallet %q: %v", jw.addr(), err)
	}
	transfer := &ton.JettonTransfer{
		Amount:              amount,
		Destination:         to,
		ResponseDestination: managed,
		ForwardTonAmount:    forwardTonAmount,
		Memo:                req.Memo,
	}
	body, err := transfer.Body()
	if err != nil {
		return nil, wallet.InvalidInput("invalid jetton transfer: %v", err)
	}
	out, err := ton.InternalMessage(jwAddr, attached, true, body)
	if err != nil {
		return nil, wallet.Internal("build TON internal message: %v", err)
	}
	return out, nil
}

// sendBoc posts the message and returns the hash the node reports, if any.
// Node rejections come back as *apiError or *transport.StatusError.
func (a *Adapter) sendBoc(ctx context.Context, ep *endpoints, path, boc string) (string, error) {
	raw, err := json.Marshal(map[string]string{"boc": boc})
	if err != nil {
		return "", err
	}
	resp, err := transport.PostJSON(ctx, a.deps.HTTP, ep.v2+path, raw, maxBytes)
	if err != nil {
		return "", err
	}
	result, err := unwrap(resp)
	if err != nil {
		return "", err
	}
	var hash string
	if json.Unmarshal(result, &hash) == nil {
		return hash, nil
	}
	var obj struct {
		Hash string `json:"hash"`
	}
	_ = json.Unmarshal(result, &obj)
	return obj.Hash, nil
}

func rejected(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) || rpcclient.IsRejection(err)
}

// broadcast falls back to sendBoc when sendBocReturnHash is unsupported or
// fails. Resending the same message is safe: the wallet seqno admits it
// once.
func (a *Adapter) broadcast(ctx context.Context, ep *endpoints, localID, boc string) (*wallet.TransferResponse, error) {
	hash, err := a.sendBoc(ctx, ep, "/sendBocReturnHash", boc)
	if err == nil {
		if hash == "" {
			hash = localID
		}
		a.logger.Info().Str("tx_id", hash).Msg("Broadcast TON message")
		return chainutil.Accepted(a.network, hash, boc, "TON sendBocReturnHash accepted: "+hash), nil
	}
	a.logger.Warn().Err(err).Msg("sendBocReturnHash failed, retrying with sendBoc")

	hash, err2 := a.sendBoc(ctx, ep, "/sendBoc", boc)
	if err2 == nil {
		if hash == "" {
			hash = localID
		}
		a.logger.Info().Str("tx_id", hash).Str("method", "sendBoc").Msg("Broadcast TON message")
		return chainutil.Accepted(a.network, hash, boc, "TON sendBoc accepted"), nil
	}
	if rejected(err) && rejected(err2) {
		return nil, wallet.Internal("TON broadcast rejected: sendBocReturnHash: %v; sendBoc: %v", err, err2)
	}
	return nil, wallet.BroadcastUnknown(a.network, localID, boc, err2)
}

// DiscoverToken reads the jetton master metadata.
func (a *Adapter) DiscoverToken(ctx context.Context, address string) (*config.Token, error) {
	master, err := parseAddress("token", address)
	if err != nil {
		return nil, err
	}
	ep, err := a.endpoints()
	if err != nil {
		return nil, err
	}
	m, err := a.jettonMetadata(ctx, ep, master)
	if err != nil {
		return nil, err
	}
	canonical := master.UserFriendly(true, false)
	suffix := canonical[len(canonical)-6:]
	tok := &config.Token{
		Network:  config.TokenNetworkKey(a.network),
		Address:  canonical,
		Symbol:   m.symbol,
		Name:     m.name,
		Decimals: ton.Decimals,
	}
	if m.decimals != nil {
		tok.Decimals = *m.decimals
	}
	if tok.Symbol == "" {
		tok.Symbol = "JET" + strings.ToUpper(suffix)
	}
	if tok.Name == "" {
		if m.symbol != "" {
			tok.Name = m.symbol
		} else {
			tok.Name = "Jetton " + suffix
		}
	}
	return tok, nil
}
