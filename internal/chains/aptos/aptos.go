// Package aptos implements the Aptos coin adapter over the fullnode REST
// API. Transactions are submitted as JSON; the node encodes the signing
// message, so no BCS encoder is needed locally.
package aptos

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/chainutil"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/signer"
	"github.com/Klingon-tech/klingnet-wallet/internal/transport"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/aptos"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/Klingon-tech/klingnet-wallet/pkg/units"
)

const (
	label    = "aptos rpc"
	maxBytes = 1 << 20
)

// Adapter serves the Aptos mainnet.
type Adapter struct {
	network string
	deps    wallet.Deps
	logger  zerolog.Logger
	now     func() time.Time
}

// New returns the adapter for nw.
func New(nw config.Network, deps wallet.Deps) *Adapter {
	return &Adapter{
		network: nw.ID,
		deps:    deps,
		logger:  log.WithNetwork(nw.ID),
		now:     time.Now,
	}
}

// Network returns the network id.
func (a *Adapter) Network() string { return a.network }

func (a *Adapter) base() (string, error) {
	u, err := a.deps.RPCURL(a.network)
	if err != nil {
		return "", err
	}
	return chainutil.TrimSlash(u), nil
}

// restError is the error body of the REST API.
type restError struct {
	Message     string `json:"message"`
	ErrorCode   string `json:"error_code"`
	VMErrorCode *int   `json:"vm_error_code"`
}

// check validates a REST response. Besides non-2xx statuses, an
// "error_code" field marks an error even under 200.
func check(resp *transport.Response) error {
	if !resp.OK() {
		return transport.NewStatusError(label, resp, transport.SnippetLen)
	}
	var re restError
	if json.Unmarshal(resp.Body, &re) == nil && re.ErrorCode != "" {
		return wallet.Internal("Aptos REST error %s: %s", re.ErrorCode, re.Message)
	}
	return nil
}

func (a *Adapter) get(ctx context.Context, base, path string, v any) error {
	resp, err := transport.GetJSON(ctx, a.deps.HTTP, base+path, maxBytes)
	if err != nil {
		return wallet.Internal("%s request failed: %v", label, err)
	}
	return decode(resp, v)
}

func decode(resp *transport.Response, v any) error {
	if err := check(resp); err != nil {
		return wallet.Wrap(err, "Aptos REST request failed")
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return wallet.Internal("%s parse response failed: %v", label, err)
	}
	return nil
}

func (a *Adapter) post(ctx context.Context, base, path string, body, v any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return wallet.Internal("%s encode request failed: %v", label, err)
	}
	resp, err := transport.PostJSON(ctx, a.deps.HTTP, base+path, raw, maxBytes)
	if err != nil {
		return wallet.Internal("%s request failed: %v", label, err)
	}
	return decode(resp, v)
}

func resourcePath(account, resource string) string {
	return "/accounts/" + url.PathEscape(account) + "/resource/" + url.PathEscape(resource)
}

type identity struct {
	address string
	pub     []byte
	keyName string
}

func (a *Adapter) identity(ctx context.Context, acct wallet.Account) (*identity, error) {
	pk, err := chainutil.PublicKey(ctx, a.deps.Signer, acct, signer.SchnorrEd25519, 32)
	if err != nil {
		return nil, err
	}
	addr, err := aptos.AddressFromPubKey(pk.Key)
	if err != nil {
		return nil, wallet.Internal("%v", err)
	}
	return &identity{address: addr, pub: pk.Key, keyName: pk.KeyName}, nil
}

// DeriveAddress returns the single-key authentication key of the account.
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
		Message:      "Aptos account address (auth key from ed25519 pubkey)",
	}, nil
}

func normalize(field, s string) (string, error) {
	addr, err := aptos.NormalizeAddress(s)
	if err != nil {
		return "", wallet.InvalidInput("invalid %s: %v", field, err)
	}
	return addr, nil
}

func coinType(token string) string {
	if t := strings.TrimSpace(token); t != "" {
		return t
	}
	return aptos.CoinType
}

// parseU8 reads a JSON number or numeric string.
func parseU8(raw json.RawMessage) (uint8, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(v), true
}

// coinBalance reads the CoinStore resource; a missing store is a zero
// balance.
func (a *Adapter) coinBalance(ctx context.Context, base, address, coin string) (*big.Int, error) {
	resp, err := transport.GetJSON(ctx, a.deps.HTTP, base+resourcePath(address, aptos.CoinStoreType(coin)), maxBytes)
	if err != nil {
		return nil, wallet.Internal("%s request failed: %v", label, err)
	}
	if resp.Status == http.StatusNotFound || strings.Contains(string(resp.Body), "resource_not_found") {
		return new(big.Int), nil
	}
	var store struct {
		Data struct {
			Coin struct {
				Value string `json:"value"`
			} `json:"coin"`
		} `json:"data"`
	}
	if err := decode(resp, &store); err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(store.Data.Coin.Value, 10)
	if !ok {
		return nil, wallet.Internal("Aptos CoinStore missing data.coin.value")
	}
	return v, nil
}

type coinInfo struct {
	Name     string          `json:"name"`
	Symbol   string          `json:"symbol"`
	Decimals json.RawMessage `json:"decimals"`
}

func (a *Adapter) coinInfo(ctx context.Context, base, coin string) (*coinInfo, uint8, error) {
	owner, err := aptos.CoinOwner(coin)
	if err != nil {
		return nil, 0, wallet.InvalidInput("%v", err)
	}
	var res struct {
		Data coinInfo `json:"data"`
	}
	if err := a.get(ctx, base, resourcePath(owner, aptos.CoinInfoType(coin)), &res); err != nil {
		return nil, 0, err
	}
	d, ok := parseU8(res.Data.Decimals)
	if !ok {
		return nil, 0, wallet.Internal("Aptos CoinInfo missing decimals")
	}
	return &res.Data, d, nil
}

// coinDecimals falls back to the APT decimals when CoinInfo is unreadable.
func (a *Adapter) coinDecimals(ctx context.Context, base, coin string) uint8 {
	if coin == aptos.CoinType {
		return aptos.Decimals
	}
	_, d, err := a.coinInfo(ctx, base, coin)
	if err != nil {
		a.logger.Warn().Err(err).Str("coin", coin).Msg("CoinInfo lookup failed, assuming 8 decimals")
		return aptos.Decimals
	}
	return d
}

// GetBalance reports the CoinStore balance of any account.
func (a *Adapter) GetBalance(ctx context.Context, req wallet.BalanceRequest) (*wallet.BalanceResponse, error) {
	account, err := wallet.RequireAccount(&req)
	if err != nil {
		return nil, err
	}
	address, err := normalize("account", account)
	if err != nil {
		return nil, err
	}
	base, err := a.base()
	if err != nil {
		return nil, err
	}
	coin := coinType(req.Token)
	raw, err := a.coinBalance(ctx, base, address, coin)
	if err != nil {
		return nil, err
	}
	decimals := a.coinDecimals(ctx, base, coin)
	resp := &wallet.BalanceResponse{
		Network:  a.network,
		Account:  address,
		Amount:   units.Format(raw, int(decimals)),
		Decimals: decimals,
		Message:  "Aptos REST coin store resource",
	}
	if coin != aptos.CoinType {
		resp.Token = coin
	}
	return resp, nil
}

func (a *Adapter) gasUnitPrice(ctx context.Context, base string) uint64 {
	var est struct {
		GasEstimate              *uint64 `json:"gas_estimate"`
		DeprioritizedGasEstimate *uint64 `json:"deprioritized_gas_estimate"`
	}
	if err := a.get(ctx, base, "/estimate_gas_price", &est); err != nil {
		a.logger.Warn().Err(err).Msg("Gas estimate failed, using default gas unit price")
		return aptos.DefaultGasUnitPrice
	}
	switch {
	case est.GasEstimate != nil:
		return *est.GasEstimate
	case est.DeprioritizedGasEstimate != nil:
		return *est.DeprioritizedGasEstimate
	}
	return aptos.DefaultGasUnitPrice
}

// Transfer submits a 0x1::aptos_account::transfer_coins call.
func (a *Adapter) Transfer(ctx context.Context, acct wallet.Account, req wallet.TransferRequest) (*wallet.TransferResponse, error) {
	toText, err := wallet.RequireTo(&req)
	if err != nil {
		return nil, err
	}
	to, err := normalize("to", toText)
	if err != nil {
		return nil, err
	}
	base, err := a.base()
	if err != nil {
		return nil, err
	}
	id, err := a.identity(ctx, acct)
	if err != nil {
		return nil, err
	}
	if err := wallet.CheckFrom(req.From, id.address, "Aptos", aptos.NormalizeAddress); err != nil {
		return nil, err
	}

	coin := coinType(req.Token)
	amount, err := wallet.ParseAmountUint64(&req, int(a.coinDecimals(ctx, base, coin)))
	if err != nil {
		return nil, err
	}

	var account struct {
		SequenceNumber string `json:"sequence_number"`
	}
	if err := a.get(ctx, base, "/accounts/"+url.PathEscape(id.address), &account); err != nil {
		return nil, err
	}
	if account.SequenceNumber == "" {
		return nil, wallet.Internal("Aptos account missing sequence_number")
	}
	var ledger struct {
		ChainID json.RawMessage `json:"chain_id"`
	}
	if err := a.get(ctx, base, "/", &ledger); err != nil {
		return nil, err
	}
	chainID, ok := parseU8(ledger.ChainID)
	if !ok {
		return nil, wallet.Internal("Aptos ledger info missing chain_id")
	}

	tx := aptos.NewTransfer(aptos.TransferParams{
		Sender:         id.address,
		To:             to,
		CoinType:       coin,
		Amount:         amount,
		SequenceNumber: account.SequenceNumber,
		GasUnitPrice:   a.gasUnitPrice(ctx, base),
		ChainID:        chainID,
		Now:            a.now().Unix(),
	})

	var signing struct {
		Message string `json:"message"`
	}
	if err := a.post(ctx, base, "/transactions/signing_message", tx, &signing); err != nil {
		return nil, err
	}
	if signing.Message == "" {
		return nil, wallet.Internal("Aptos signing_message missing message")
	}
	msg, err := types.DecodeHex(signing.Message)
	if err != nil {
		return nil, wallet.Internal("Aptos signing_message is not hex: %v", err)
	}
	sig, err := chainutil.Sign(ctx, a.deps.Signer, signer.SignRequest{
		Path:      acct.Path,
		Algorithm: signer.SchnorrEd25519,
		Message:   msg,
	})
	if err != nil {
		return nil, err
	}
	tx.Sign(id.pub, sig)
	signed, err := json.Marshal(tx)
	if err != nil {
		return nil, wallet.Internal("encode Aptos transaction: %v", err)
	}

	a.logger.Debug().
		Str("sequence_number", tx.SequenceNumber).
		Str("coin", coin).
		Msg("Submitting Aptos transaction")
	hash, err := a.submit(ctx, base, signed)
	if err != nil {
		// The hash is only known once the node accepts the submission.
		return nil, chainutil.BroadcastFailure(a.network, "", string(signed), err)
	}
	a.logger.Info().Str("tx_id", hash).Str("sequence_number", tx.SequenceNumber).Msg("Broadcast Aptos transaction")
	msgText := "Aptos submit accepted"
	if hash != "" {
		msgText += ": " + hash
	}
	return chainutil.Accepted(a.network, hash, string(signed), msgText), nil
}

// submit posts the signed transaction. Node errors come back as
// *transport.StatusError; transport failures are returned as is.
func (a *Adapter) submit(ctx context.Context, base string, signed []byte) (string, error) {
	resp, err := transport.PostJSON(ctx, a.deps.HTTP, base+"/transactions", signed, maxBytes)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", transport.NewStatusError(label, resp, transport.SnippetLen)
	}
	var pending struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(resp.Body, &pending); err != nil {
		return "", err
	}
	return pending.Hash, nil
}

// DiscoverToken reads the CoinInfo resource of a coin type.
func (a *Adapter) DiscoverToken(ctx context.Context, address string) (*config.Token, error) {
	coin := strings.TrimSpace(address)
	if coin == "" {
		return nil, wallet.InvalidInput("token_address is required")
	}
	base, err := a.base()
	if err != nil {
		return nil, err
	}
	info, decimals, err := a.coinInfo(ctx, base, coin)
	if err != nil {
		return nil, err
	}
	tok := &config.Token{
		Network:  config.TokenNetworkKey(a.network),
		Symbol:   strings.TrimSpace(info.Symbol),
		Name:     strings.TrimSpace(info.Name),
		Address:  coin,
		Decimals: decimals,
	}
	if tok.Symbol == "" {
		_, _, name := splitCoinType(coin)
		tok.Symbol = strings.ToUpper(name)
	}
	if tok.Name == "" {
		tok.Name = tok.Symbol
	}
	return tok, nil
}

// splitCoinType splits "0xabc::module::Name".
func splitCoinType(coin string) (owner, module, name string) {
	parts := strings.SplitN(coin, "::", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return parts[0], parts[1], parts[2]
}
