// Package bitcoin implements the BTC adapter: Taproot key-path wallets
// backed by a mempool-style REST API (/address, /utxo, /fee-estimates, /tx).
package bitcoin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/chainutil"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/signer"
	"github.com/Klingon-tech/klingnet-wallet/internal/transport"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/btc"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/Klingon-tech/klingnet-wallet/pkg/units"
)

const (
	label = "btc rpc"

	maxGetBytes  = 512 << 10
	maxPostBytes = 64 << 10
)

// fee-estimates keys in order of preference (confirmation targets).
var feeTargets = []string{"3", "2", "6", "1"}

// Adapter serves the btc network.
type Adapter struct {
	network string
	hrp     string
	deps    wallet.Deps
	logger  zerolog.Logger
}

// New returns the adapter for nw.
func New(nw config.Network, deps wallet.Deps) *Adapter {
	return &Adapter{
		network: nw.ID,
		hrp:     btc.MainnetHRP,
		deps:    deps,
		logger:  log.WithNetwork(nw.ID),
	}
}

// Network returns the network id.
func (a *Adapter) Network() string { return a.network }

type walletKey struct {
	address  string
	internal []byte // x-only
	script   []byte
	keyName  string
}

func (a *Adapter) key(ctx context.Context, acct wallet.Account) (*walletKey, error) {
	pk, err := chainutil.PublicKey(ctx, a.deps.Signer, acct, signer.SchnorrBIP340, 33)
	if err != nil {
		return nil, err
	}
	addr, program, err := btc.TaprootAddress(a.hrp, pk.Key)
	if err != nil {
		return nil, wallet.Internal("invalid BTC secp256k1 key: %v", err)
	}
	return &walletKey{
		address:  addr,
		internal: pk.Key[1:],
		script:   btc.P2TRScript(program),
		keyName:  pk.KeyName,
	}, nil
}

// DeriveAddress returns the P2TR address of the account's BIP340 key.
func (a *Adapter) DeriveAddress(ctx context.Context, acct wallet.Account) (*wallet.AddressResponse, error) {
	k, err := a.key(ctx, acct)
	if err != nil {
		return nil, err
	}
	return &wallet.AddressResponse{
		Network:      a.network,
		Address:      k.address,
		PublicKeyHex: types.EncodeHex(k.internal),
		KeyName:      k.keyName,
		Index:        acct.Index,
		AccountTag:   acct.AccountTag,
		Message:      "Derived taproot address from Schnorr public key",
	}, nil
}

type addressStats struct {
	FundedTxoSum uint64 `json:"funded_txo_sum"`
	SpentTxoSum  uint64 `json:"spent_txo_sum"`
}

type addressResponse struct {
	ChainStats   addressStats  `json:"chain_stats"`
	MempoolStats *addressStats `json:"mempool_stats"`
}

func (s addressStats) net() uint64 {
	if s.SpentTxoSum > s.FundedTxoSum {
		return 0
	}
	return s.FundedTxoSum - s.SpentTxoSum
}

// GetBalance is confirmed funds plus the incoming mempool delta.
func (a *Adapter) GetBalance(ctx context.Context, req wallet.BalanceRequest) (*wallet.BalanceResponse, error) {
	account, err := wallet.RequireAccount(&req)
	if err != nil {
		return nil, err
	}
	if err := wallet.RejectToken(req.Token, "BTC balance"); err != nil {
		return nil, err
	}

	var stats addressResponse
	if err := a.get(ctx, "/address/"+account, &stats); err != nil {
		return nil, err
	}
	confirmed := stats.ChainStats.net()
	var delta uint64
	if stats.MempoolStats != nil {
		delta = stats.MempoolStats.net()
	}
	sats := confirmed + delta
	if sats < confirmed {
		sats = math.MaxUint64
	}
	a.logger.Debug().Str("account", account).Uint64("confirmed", confirmed).Uint64("mempool", delta).Msg("Fetched address stats")

	return &wallet.BalanceResponse{
		Network:  a.network,
		Account:  account,
		Amount:   units.FormatUint64(sats, btc.Decimals),
		Decimals: btc.Decimals,
		Pending:  delta != 0,
		Message:  "BTC RPC address stats (confirmed + mempool delta)",
	}, nil
}

type utxoResponse struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  uint64 `json:"value"`
	Status struct {
		Confirmed   bool   `json:"confirmed"`
		BlockHeight uint32 `json:"block_height"`
	} `json:"status"`
}

func (a *Adapter) utxos(ctx context.Context, address string) ([]btc.UTXO, error) {
	var rows []utxoResponse
	if err := a.get(ctx, "/address/"+address+"/utxo", &rows); err != nil {
		return nil, err
	}
	out := make([]btc.UTXO, 0, len(rows))
	for _, r := range rows {
		id, err := btc.ParseTxID(r.TxID)
		if err != nil {
			return nil, wallet.Internal("btc rpc returned %v", err)
		}
		u := btc.UTXO{Outpoint: btc.Outpoint{TxID: id, Vout: r.Vout}, Value: r.Value}
		if r.Status.Confirmed {
			u.Height = r.Status.BlockHeight
		}
		out = append(out, u)
	}
	return out, nil
}

// feeRate reads /fee-estimates and rounds the first known target up.
func (a *Adapter) feeRate(ctx context.Context) (uint64, error) {
	var fees map[string]json.Number
	if err := a.get(ctx, "/fee-estimates", &fees); err != nil {
		return 0, err
	}
	for _, target := range feeTargets {
		v, ok := fees[target]
		if !ok {
			continue
		}
		f, err := v.Float64()
		if err != nil || f < 0 {
			continue
		}
		return max(uint64(math.Ceil(f)), 1), nil
	}
	return btc.DefaultFeeRate, nil
}

func overrideFeeRate(req *wallet.TransferRequest) (uint64, bool, error) {
	v, ok := req.Meta("fee_rate", "fee_rate_sat_per_vb")
	if !ok || v == "" {
		return 0, false, nil
	}
	rate, err := strconv.ParseUint(v, 10, 64)
	if err != nil || rate == 0 {
		return 0, false, wallet.InvalidInput("fee_rate must be a positive integer (sat/vB)")
	}
	return rate, true, nil
}

// Transfer spends the account's UTXOs to req.To with a Taproot key-path
// signature on every input.
func (a *Adapter) Transfer(ctx context.Context, acct wallet.Account, req wallet.TransferRequest) (*wallet.TransferResponse, error) {
	to, err := wallet.RequireTo(&req)
	if err != nil {
		return nil, err
	}
	if err := wallet.RejectToken(req.Token, "BTC transfer"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Amount) == "" {
		return nil, wallet.InvalidInput("amount is required")
	}
	amount, err := units.ParseBTC(req.Amount)
	if err != nil {
		return nil, wallet.AmountError(err)
	}
	if amount == 0 {
		return nil, wallet.InvalidInput("amount must be > 0")
	}
	toScript, err := btc.ScriptFromAddress(a.hrp, to)
	if err != nil {
		return nil, wallet.InvalidInput("invalid BTC address: %v", err)
	}
	rate, override, err := overrideFeeRate(&req)
	if err != nil {
		return nil, err
	}

	base, err := a.baseURL()
	if err != nil {
		return nil, err
	}
	k, err := a.key(ctx, acct)
	if err != nil {
		return nil, err
	}
	lower := func(s string) (string, error) { return strings.ToLower(s), nil }
	if err := wallet.CheckFrom(req.From, k.address, "BTC", lower); err != nil {
		return nil, err
	}

	utxos, err := a.utxos(ctx, k.address)
	if err != nil {
		return nil, err
	}
	if len(utxos) == 0 {
		return nil, wallet.Internal("%s", btc.ErrNoUTXOs.Error())
	}
	if !override {
		if rate, err = a.feeRate(ctx); err != nil {
			a.logger.Debug().Err(err).Msg("Fee estimate unavailable, using default rate")
			rate = btc.DefaultFeeRate
		}
	}

	plan, err := btc.SelectCoins(utxos, amount, toScript, k.script, rate)
	if err != nil {
		return nil, wallet.Wrap(err, "BTC coin selection failed")
	}
	tx := btc.NewTx(plan.Inputs, plan.Outputs)
	for i := range tx.Inputs {
		sighash, err := btc.KeySpendSighash(tx, i, k.script)
		if err != nil {
			return nil, wallet.Wrap(err, "BTC sighash failed")
		}
		sig, err := chainutil.Sign(ctx, a.deps.Signer, signer.SignRequest{
			Path:            acct.Path,
			Algorithm:       signer.SchnorrBIP340,
			Message:         sighash[:],
			TaprootKeySpend: true,
		})
		if err != nil {
			return nil, err
		}
		tx.Witness[i] = [][]byte{sig}
	}

	raw := types.EncodeHex(tx.Serialize(true))
	localID := tx.TxID()
	txid, err := a.broadcast(ctx, base, raw)
	if err != nil {
		return nil, chainutil.BroadcastFailure(a.network, localID, raw, err)
	}
	if txid == "" {
		txid = localID
	}
	a.logger.Info().Str("tx_id", txid).Int("inputs", len(tx.Inputs)).Uint64("fee", plan.Fee).Msg("Broadcast BTC transaction")

	return chainutil.Accepted(a.network, txid, raw,
		fmt.Sprintf("btc rpc send accepted (fee=%d sats, fee_rate=%d sat/vB)", plan.Fee, plan.FeeRate)), nil
}

// DiscoverToken is not supported: BTC has no token standard here.
func (a *Adapter) DiscoverToken(ctx context.Context, address string) (*config.Token, error) {
	return nil, wallet.Unimplemented(a.network, "token discovery")
}

func (a *Adapter) baseURL() (string, error) {
	u, err := a.deps.RPCURL(a.network)
	if err != nil {
		return "", err
	}
	return chainutil.TrimSlash(u), nil
}

func (a *Adapter) get(ctx context.Context, path string, v any) error {
	base, err := a.baseURL()
	if err != nil {
		return err
	}
	return chainutil.Get(ctx, a.deps.HTTP, label, base+path, maxGetBytes, v)
}

// broadcast posts the raw hex. Status rejections are returned as
// *transport.StatusError.
func (a *Adapter) broadcast(ctx context.Context, base, raw string) (string, error) {
	resp, err := a.deps.HTTP.Do(ctx, &transport.Request{
		Method:           http.MethodPost,
		URL:              base + "/tx",
		Header:           map[string]string{"Content-Type": "text/plain", "Accept": "text/plain"},
		Body:             []byte(raw),
		MaxResponseBytes: maxPostBytes,
	})
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", transport.NewStatusError(label, resp, transport.SnippetLen)
	}
	txid := strings.TrimSpace(string(resp.Body))
	if txid != "" && len(txid) != 64 {
		return "", errors.New("btc rpc returned an unexpected txid: " + transport.Snippet(resp.Body, 80))
	}
	return txid, nil
}
