// Package tron implements the TRX and TRC-20 adapter over the TRON full
// node HTTP API. Transactions are built by the node; the adapter checks the
// returned txID against raw_data_hex before signing it.
package tron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/chainutil"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/signer"
	"github.com/Klingon-tech/klingnet-wallet/internal/transport"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/evm"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tron"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/Klingon-tech/klingnet-wallet/pkg/units"
)

const (
	label    = "trx rpc"
	maxBytes = 512 << 10
)

// Adapter serves the TRON mainnet.
type Adapter struct {
	network string
	deps    wallet.Deps
	logger  zerolog.Logger
}

// New returns the adapter for nw.
func New(nw config.Network, deps wallet.Deps) *Adapter {
	return &Adapter{network: nw.ID, deps: deps, logger: log.WithNetwork(nw.ID)}
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

func (a *Adapter) post(ctx context.Context, base, path string, body, v any) error {
	return chainutil.Post(ctx, a.deps.HTTP, label, base+"/"+path, body, maxBytes, v)
}

func (a *Adapter) key(ctx context.Context, acct wallet.Account) (*signer.PublicKey, tron.Address, error) {
	pk, err := chainutil.PublicKey(ctx, a.deps.Signer, acct, signer.ECDSASecp256k1, 33)
	if err != nil {
		return nil, tron.Address{}, err
	}
	addr, err := tron.AddressFromPubKey(pk.Key)
	if err != nil {
		return nil, tron.Address{}, wallet.Internal("invalid secp256k1 public key: %v", err)
	}
	return pk, addr, nil
}

func parseAddress(field, s string) (tron.Address, error) {
	addr, err := tron.ParseAddress(s)
	if err != nil {
		return addr, wallet.InvalidInput("invalid %s: %v", field, err)
	}
	return addr, nil
}

// DeriveAddress returns the base58check address of the account's ECDSA key.
func (a *Adapter) DeriveAddress(ctx context.Context, acct wallet.Account) (*wallet.AddressResponse, error) {
	pk, addr, err := a.key(ctx, acct)
	if err != nil {
		return nil, err
	}
	return &wallet.AddressResponse{
		Network:      a.network,
		Address:      addr.String(),
		PublicKeyHex: types.EncodeHex(pk.Key),
		KeyName:      pk.KeyName,
		Index:        acct.Index,
		AccountTag:   acct.AccountTag,
		Message:      "Derived TRON address from ECDSA public key",
	}, nil
}

// callResult is the status object of trigger* responses.
type callResult struct {
	Result  bool   `json:"result"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type constantResponse struct {
	Result         callResult `json:"result"`
	ConstantResult []string   `json:"constant_result"`
}

// constant runs a read-only contract call and returns its first result.
func (a *Adapter) constant(ctx context.Context, base string, owner, contract tron.Address, selector string, parameter []byte) ([]byte, error) {
	body := map[string]any{
		"owner_address":     owner.String(),
		"contract_address":  contract.String(),
		"function_selector": selector,
		"visible":           true,
	}
	if len(parameter) > 0 {
		body["parameter"] = types.EncodeHex(parameter)
	}
	var resp constantResponse
	if err := a.post(ctx, base, "wallet/triggerconstantcontract", body, &resp); err != nil {
		return nil, err
	}
	if msg := tron.DecodeMessage(resp.Result.Message); msg != "" {
		return nil, wallet.Internal("TRON constant call error: %s", msg)
	}
	if len(resp.ConstantResult) == 0 {
		return nil, wallet.Internal("TRON constant call missing constant_result")
	}
	ret, err := types.DecodeHex(resp.ConstantResult[0])
	if err != nil {
		return nil, wallet.Internal("TRON constant_result is not hex: %v", err)
	}
	return ret, nil
}

func (a *Adapter) decimals(ctx context.Context, base string, owner, token tron.Address) (uint8, error) {
	ret, err := a.constant(ctx, base, owner, token, evm.SigDecimals, nil)
	if err != nil {
		return 0, err
	}
	d, err := evm.DecodeDecimals(ret)
	if err != nil {
		return 0, wallet.Internal("TRC20 %v", err)
	}
	return d, nil
}

// GetBalance reads wallet/getaccount for TRX, or balanceOf for a TRC-20.
func (a *Adapter) GetBalance(ctx context.Context, req wallet.BalanceRequest) (*wallet.BalanceResponse, error) {
	raw, err := wallet.RequireAccount(&req)
	if err != nil {
		return nil, err
	}
	account, err := parseAddress("account", raw)
	if err != nil {
		return nil, err
	}
	base, err := a.base()
	if err != nil {
		return nil, err
	}
	resp := &wallet.BalanceResponse{Network: a.network, Account: account.String()}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		var acct struct {
			Balance uint64 `json:"balance"`
		}
		body := map[string]any{"address": account.String(), "visible": true}
		if err := a.post(ctx, base, "wallet/getaccount", body, &acct); err != nil {
			return nil, err
		}
		resp.Amount = units.FormatUint64(acct.Balance, tron.Decimals)
		resp.Decimals = tron.Decimals
		resp.Message = "TRON RPC wallet/getaccount"
		return resp, nil
	}

	contract, err := parseAddress("token", token)
	if err != nil {
		return nil, err
	}
	decimals, err := a.decimals(ctx, base, account, contract)
	if err != nil {
		return nil, err
	}
	ret, err := a.constant(ctx, base, account, contract, evm.SigBalanceOf, evm.WordAddress(account.EVM()))
	if err != nil {
		return nil, err
	}
	amount, err := evm.DecodeUint(ret)
	if err != nil {
		return nil, wallet.Internal("TRC20 balanceOf: %v", err)
	}
	resp.Token = contract.String()
	resp.Amount = units.Format(amount, int(decimals))
	resp.Decimals = decimals
	resp.Message = "TRON RPC triggerconstantcontract balanceOf(address)"
	return resp, nil
}

// transaction keeps the node-built JSON so it is broadcast unchanged.
type transaction map[string]json.RawMessage

func (tx transaction) field(name string) string {
	var s string
	_ = json.Unmarshal(tx[name], &s)
	return s
}

func checkBuilt(tx transaction, what string) error {
	if tx.field("raw_data_hex") == "" {
		return wallet.Internal("TRON %s missing raw_data_hex", what)
	}
	if tx.field("txID") == "" {
		return wallet.Internal("TRON %s missing txID", what)
	}
	return nil
}

// Transfer sends TRX, or a TRC-20 token when req.Token names a contract.
// req.Memo is attached to TRC-20 transfers as the transaction data.
func (a *Adapter) Transfer(ctx context.Context, acct wallet.Account, req wallet.TransferRequest) (*wallet.TransferResponse, error) {
	rawTo, err := wallet.RequireTo(&req)
	if err != nil {
		return nil, err
	}
	to, err := parseAddress("to", rawTo)
	if err != nil {
		return nil, err
	}
	base, err := a.base()
	if err != nil {
		return nil, err
	}
	pk, managed, err := a.key(ctx, acct)
	if err != nil {
		return nil, err
	}
	err = wallet.CheckFrom(req.From, managed.String(), "TRON", func(s string) (string, error) {
		addr, err := tron.ParseAddress(s)
		return addr.String(), err
	})
	if err != nil {
		return nil, err
	}

	var tx transaction
	if token := req.TokenParam(); token == "" {
		sun, err := wallet.ParseAmountUint64(&req, tron.Decimals)
		if err != nil {
			return nil, err
		}
		body := map[string]any{
			"owner_address": managed.String(),
			"to_address":    to.String(),
			"amount":        sun,
			"visible":       true,
		}
		if err := a.post(ctx, base, "wallet/createtransaction", body, &tx); err != nil {
			return nil, err
		}
		if err := checkBuilt(tx, "createtransaction"); err != nil {
			return nil, err
		}
	} else {
		contract, err := parseAddress("token", token)
		if err != nil {
			return nil, err
		}
		if tx, err = a.trc20(ctx, base, managed, to, contract, &req); err != nil {
			return nil, err
		}
	}

	txID := tx.field("txID")
	digest, err := tron.CheckTxID(txID, tx.field("raw_data_hex"))
	if err != nil {
		return nil, wallet.Internal("%v", err)
	}
	sig, err := chainutil.Sign(ctx, a.deps.Signer, signer.SignRequest{
		Path:      acct.Path,
		Algorithm: signer.ECDSASecp256k1,
		Message:   digest,
	})
	if err != nil {
		return nil, err
	}
	sigHex, err := tron.SignatureHex(digest, sig, pk.Key)
	if err != nil {
		return nil, wallet.Internal("TRON signature: %v", err)
	}
	tx["signature"], _ = json.Marshal([]string{sigHex})
	signed, err := json.Marshal(tx)
	if err != nil {
		return nil, wallet.Internal("encode TRON transaction: %v", err)
	}

	id, err := a.broadcast(ctx, base, signed)
	if err != nil {
		var we *wallet.Error
		if errors.As(err, &we) {
			return nil, err
		}
		return nil, chainutil.BroadcastFailure(a.network, txID, string(signed), err)
	}
	if id == "" {
		id = txID
	}
	a.logger.Info().Str("tx_id", id).Str("to", to.String()).Msg("Broadcast TRON transaction")
	return chainutil.Accepted(a.network, id, string(signed), "TRON broadcasttransaction accepted: "+id), nil
}

func (a *Adapter) trc20(ctx context.Context, base string, owner, to, contract tron.Address, req *wallet.TransferRequest) (transaction, error) {
	decimals, err := a.decimals(ctx, base, owner, contract)
	if err != nil {
		return nil, err
	}
	amount, err := wallet.ParseAmount(req, int(decimals))
	if err != nil {
		return nil, err
	}
	args, err := evm.TransferArgs(to.EVM(), amount)
	if err != nil {
		return nil, wallet.InvalidInput("%v", err)
	}
	body := map[string]any{
		"owner_address":     owner.String(),
		"contract_address":  contract.String(),
		"function_selector": evm.SigTransfer,
		"parameter":         types.EncodeHex(args),
		"fee_limit":         tron.DefaultFeeLimit,
		"call_value":        0,
		"visible":           true,
	}
	if memo := strings.TrimSpace(req.Memo); memo != "" {
		body["data"] = types.EncodeHex([]byte(memo))
	}
	var resp struct {
		Result      callResult  `json:"result"`
		Transaction transaction `json:"transaction"`
	}
	if err := a.post(ctx, base, "wallet/triggersmartcontract", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Result.Result {
		msg := tron.DecodeMessage(resp.Result.Message)
		if msg == "" {
			msg = resp.Result.Code
		}
		return nil, wallet.Internal("TRON triggersmartcontract rejected: %s", msg)
	}
	if resp.Transaction == nil {
		return nil, wallet.Internal("TRON triggersmartcontract missing transaction")
	}
	if err := checkBuilt(resp.Transaction, "triggersmartcontract.transaction"); err != nil {
		return nil, err
	}
	a.logger.Debug().Str("contract", contract.String()).Str("amount", amount.String()).Msg("Built TRC20 transfer")
	return resp.Transaction, nil
}

// broadcast posts the signed transaction. A node answer with result false
// is returned as a *wallet.Error; other errors leave the outcome unknown
// unless they are HTTP status errors.
func (a *Adapter) broadcast(ctx context.Context, base string, signed []byte) (string, error) {
	resp, err := transport.PostJSON(ctx, a.deps.HTTP, base+"/wallet/broadcasttransaction", signed, maxBytes)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", transport.NewStatusError(label, resp, transport.SnippetLen)
	}
	var out struct {
		Result  bool   `json:"result"`
		Code    string `json:"code"`
		Message string `json:"message"`
		TxID    string `json:"txid"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", fmt.Errorf("parse trx rpc broadcast response: %w", err)
	}
	if !out.Result {
		msg := tron.DecodeMessage(out.Message)
		if msg == "" {
			msg = transport.Snippet(resp.Body, transport.SnippetLen)
		}
		return "", wallet.Internal("TRON broadcasttransaction rejected: %s", msg)
	}
	return out.TxID, nil
}

// DiscoverToken reads TRC-20 metadata. Constant calls only need a valid
// owner_address, so the contract itself is used.
func (a *Adapter) DiscoverToken(ctx context.Context, address string) (*config.Token, error) {
	contract, err := parseAddress("token_address", address)
	if err != nil {
		return nil, err
	}
	base, err := a.base()
	if err != nil {
		return nil, err
	}
	owner := contract
	decimals, err := a.decimals(ctx, base, owner, contract)
	if err != nil {
		return nil, err
	}
	s := contract.String()
	suffix := tron.ShortSuffix(s)
	symbol := a.stringProperty(ctx, base, owner, contract, evm.SigSymbol)
	if symbol == "" {
		symbol = "TRC" + suffix
	}
	name := a.stringProperty(ctx, base, owner, contract, evm.SigName)
	if name == "" {
		name = "TRC20 " + suffix
	}
	return &config.Token{
		Network:  config.TokenNetworkKey(a.network),
		Symbol:   symbol,
		Name:     name,
		Address:  s,
		Decimals: decimals,
	}, nil
}

func (a *Adapter) stringProperty(ctx context.Context, base string, owner, contract tron.Address, selector string) string {
	ret, err := a.constant(ctx, base, owner, contract, selector, nil)
	if err != nil {
		a.logger.Debug().Err(err).Str("selector", selector).Msg("TRC20 metadata call failed")
		return ""
	}
	s, err := evm.DecodeString(ret)
	if err != nil {
		return ""
	}
	return s
}
