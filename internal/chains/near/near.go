// Package near implements the NEAR and NEP-141 adapter over NEAR JSON-RPC.
// The managed account is the implicit account of the Ed25519 key.
package near

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/chainutil"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-wallet/internal/signer"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/near"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/Klingon-tech/klingnet-wallet/pkg/units"
)

const (
	label    = "near rpc"
	rpcID    = "near-wallet"
	maxBytes = 1 << 20
)

// Adapter serves the NEAR mainnet.
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

func (a *Adapter) client() (*rpcclient.Client, error) {
	u, err := a.deps.RPCURL(a.network)
	if err != nil {
		return nil, err
	}
	return rpcclient.New(u, a.deps.HTTP,
		rpcclient.WithLabel(label),
		rpcclient.WithID(rpcID),
		rpcclient.WithMaxResponseBytes(maxBytes),
	), nil
}

type identity struct {
	account   string
	publicKey string
	key       [32]byte
	keyName   string
}

func (a *Adapter) identity(ctx context.Context, acct wallet.Account) (*identity, error) {
	pk, err := chainutil.PublicKey(ctx, a.deps.Signer, acct, signer.SchnorrEd25519, 32)
	if err != nil {
		return nil, err
	}
	id := &identity{
		account:   near.ImplicitAccount(pk.Key),
		publicKey: near.PublicKeyString(pk.Key),
		keyName:   pk.KeyName,
	}
	copy(id.key[:], pk.Key)
	return id, nil
}

// DeriveAddress returns the implicit account id (hex of the public key).
func (a *Adapter) DeriveAddress(ctx context.Context, acct wallet.Account) (*wallet.AddressResponse, error) {
	id, err := a.identity(ctx, acct)
	if err != nil {
		return nil, err
	}
	return &wallet.AddressResponse{
		Network:      a.network,
		Address:      id.account,
		PublicKeyHex: types.EncodeHex(id.key[:]),
		KeyName:      id.keyName,
		Index:        acct.Index,
		AccountTag:   acct.AccountTag,
		Message:      "NEAR implicit account (public key " + id.publicKey + ")",
	}, nil
}

// unknownAccount matches the errors nodes return for accounts that were
// never funded.
func unknownAccount(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNKNOWN_ACCOUNT") || strings.Contains(msg, "does not exist while viewing")
}

// query runs a "query" request. Older nodes report view failures as an
// error string inside the result instead of an error object.
func (a *Adapter) query(ctx context.Context, c *rpcclient.Client, params map[string]any, v any) error {
	params["finality"] = "final"
	raw, err := c.CallRaw(ctx, "query", params)
	if err != nil {
		return chainutil.Upstream(label, "query", err)
	}
	var probe struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &probe) == nil && probe.Error != "" {
		return wallet.Internal("NEAR RPC error: %s", probe.Error)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return wallet.Internal("%s parse query result failed: %v", label, err)
	}
	return nil
}

// viewFunction calls a contract view method and returns its raw result.
func (a *Adapter) viewFunction(ctx context.Context, c *rpcclient.Client, contract, method string, args any) ([]byte, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, wallet.Internal("serialize NEAR call args failed: %v", err)
	}
	var res struct {
		Bytes []int `json:"result"`
	}
	err = a.query(ctx, c, map[string]any{
		"request_type": "call_function",
		"account_id":   contract,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(encoded),
	}, &res)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(res.Bytes))
	for i, b := range res.Bytes {
		if b < 0 || b > 255 {
			return nil, wallet.Internal("NEAR call_function result byte out of range")
		}
		out[i] = byte(b)
	}
	return out, nil
}

type ftMetadata struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Decimals json.RawMessage `json:"decimals"`
}

func (m *ftMetadata) decimals() (uint8, bool) {
	s := strings.Trim(strings.TrimSpace(string(m.Decimals)), `"`)
	n, err := strconv.ParseUint(s, 10, 8)
	return uint8(n), err == nil
}

func (a *Adapter) metadata(ctx context.Context, c *rpcclient.Client, contract string) (*ftMetadata, error) {
	raw, err := a.viewFunction(ctx, c, contract, "ft_metadata", map[string]any{})
	if err != nil {
		return nil, err
	}
	var m ftMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, wallet.Internal("NEAR ft_metadata json parse failed: %v", err)
	}
	return &m, nil
}

// tokenDecimals falls back to 24 when ft_metadata is unavailable.
func (a *Adapter) tokenDecimals(ctx context.Context, c *rpcclient.Client, contract string) uint8 {
	m, err := a.metadata(ctx, c, contract)
	if err != nil {
		a.logger.Debug().Err(err).Str("contract", contract).Msg("ft_metadata unavailable, assuming 24 decimals")
		return near.Decimals
	}
	d, ok := m.decimals()
	if !ok {
		return near.Decimals
	}
	return d
}

// GetBalance reads view_account, or ft_balance_of for a NEP-141 contract.
// An account that does not exist yet has a zero balance.
func (a *Adapter) GetBalance(ctx context.Context, req wallet.BalanceRequest) (*wallet.BalanceResponse, error) {
	account, err := wallet.RequireAccount(&req)
	if err != nil {
		return nil, err
	}
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	resp := &wallet.BalanceResponse{Network: a.network, Account: account}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		resp.Decimals = near.Decimals
		var view struct {
			Amount      string `json:"amount"`
			BlockHeight uint64 `json:"block_height"`
		}
		err := a.query(ctx, c, map[string]any{"request_type": "view_account", "account_id": account}, &view)
		if unknownAccount(err) {
			resp.Amount = "0"
			resp.Message = "NEAR implicit account not initialized on-chain yet; treating balance as 0"
			return resp, nil
		}
		if err != nil {
			return nil, err
		}
		yocto, ok := new(big.Int).SetString(view.Amount, 10)
		if !ok {
			return nil, wallet.Internal("NEAR amount parse failed")
		}
		resp.Amount = units.Format(yocto, near.Decimals)
		if view.BlockHeight > 0 {
			resp.BlockRef = "block:" + strconv.FormatUint(view.BlockHeight, 10)
		}
		resp.Message = "NEAR RPC query(view_account)"
		return resp, nil
	}

	raw, err := a.viewFunction(ctx, c, token, "ft_balance_of", map[string]string{"account_id": account})
	if err != nil {
		return nil, err
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, wallet.Internal("NEAR ft_balance_of json parse failed: %v", err)
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(text), 10)
	if !ok {
		amount = new(big.Int)
	}
	decimals := a.tokenDecimals(ctx, c, token)
	resp.Token = token
	resp.Amount = units.Format(amount, int(decimals))
	resp.Decimals = decimals
	resp.Message = "NEAR RPC query(call_function ft_balance_of)"
	return resp, nil
}

// Transfer sends NEAR with a Transfer action, or a NEP-141 token with an
// ft_transfer call carrying req.Memo. The broadcast waits for the final
// outcome with broadcast_tx_commit.
func (a *Adapter) Transfer(ctx context.Context, acct wallet.Account, req wallet.TransferRequest) (*wallet.TransferResponse, error) {
	to, err := wallet.RequireTo(&req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Amount) == "" {
		return nil, wallet.InvalidInput("amount is required")
	}
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	id, err := a.identity(ctx, acct)
	if err != nil {
		return nil, err
	}
	if err := wallet.CheckFrom(req.From, id.account, "NEAR", nil); err != nil {
		return nil, err
	}

	var access struct {
		Nonce     uint64 `json:"nonce"`
		BlockHash string `json:"block_hash"`
	}
	err = a.query(ctx, c, map[string]any{
		"request_type": "view_access_key",
		"account_id":   id.account,
		"public_key":   id.publicKey,
	}, &access)
	if unknownAccount(err) {
		return nil, wallet.InvalidInput("managed NEAR account is not initialized on-chain yet; fund the implicit account first")
	}
	if err != nil {
		return nil, err
	}
	blockHash, err := types.Base58Decode(access.BlockHash)
	if err != nil || len(blockHash) != 32 {
		return nil, wallet.Internal("NEAR block_hash must decode to 32 bytes")
	}

	tx := near.Transaction{
		SignerID:   id.account,
		PublicKey:  id.key,
		Nonce:      access.Nonce + 1,
		ReceiverID: to,
	}
	copy(tx.BlockHash[:], blockHash)

	kind := "transfer"
	if token := req.TokenParam(); token == "" {
		amount, err := wallet.ParseAmount(&req, near.Decimals)
		if err != nil {
			return nil, err
		}
		tx.Actions = []near.Action{{Transfer: &near.Transfer{Deposit: amount}}}
	} else {
		decimals := a.tokenDecimals(ctx, c, token)
		amount, err := wallet.ParseAmount(&req, int(decimals))
		if err != nil {
			return nil, err
		}
		args := map[string]any{"receiver_id": to, "amount": amount.String(), "memo": nil}
		if memo := strings.TrimSpace(req.Memo); memo != "" {
			args["memo"] = memo
		}
		encoded, err := json.Marshal(args)
		if err != nil {
			return nil, wallet.Internal("serialize ft_transfer args failed: %v", err)
		}
		tx.ReceiverID = token
		tx.Actions = []near.Action{{FunctionCall: &near.FunctionCall{
			MethodName: "ft_transfer",
			Args:       encoded,
			Gas:        near.FunctionCallGas,
			Deposit:    near.OneYocto,
		}}}
		kind = "ft_transfer"
	}

	hash, err := tx.Hash()
	if err != nil {
		return nil, wallet.InvalidInput("encode NEAR transaction: %v", err)
	}
	sig, err := chainutil.Sign(ctx, a.deps.Signer, signer.SignRequest{
		Path:      acct.Path,
		Algorithm: signer.SchnorrEd25519,
		Message:   hash[:],
	})
	if err != nil {
		return nil, err
	}
	signed := near.SignedTransaction{Transaction: tx}
	copy(signed.Signature[:], sig)
	encoded, err := signed.Base64()
	if err != nil {
		return nil, wallet.Internal("encode NEAR signed transaction: %v", err)
	}
	localID := types.Base58Encode(hash[:])

	var outcome struct {
		Status      map[string]json.RawMessage `json:"status"`
		Transaction struct {
			Hash string `json:"hash"`
		} `json:"transaction"`
		TransactionOutcome struct {
			ID string `json:"id"`
		} `json:"transaction_outcome"`
	}
	if err := c.Call(ctx, "broadcast_tx_commit", []string{encoded}, &outcome); err != nil {
		var rpcErr *rpcclient.RPCError
		if errors.As(err, &rpcErr) && strings.Contains(strings.ToLower(rpcErr.Error()), "timeout") {
			return nil, wallet.BroadcastUnknown(a.network, localID, encoded, err)
		}
		return nil, chainutil.BroadcastFailure(a.network, localID, encoded, err)
	}
	txID := outcome.Transaction.Hash
	if txID == "" {
		txID = outcome.TransactionOutcome.ID
	}
	if txID == "" {
		txID = localID
	}
	if failure, ok := outcome.Status["Failure"]; ok {
		return nil, wallet.Internal("NEAR transaction %s failed: %s", txID, string(failure))
	}
	a.logger.Info().Str("tx_id", txID).Str("kind", kind).Uint64("nonce", tx.Nonce).Msg("Broadcast NEAR transaction")
	return chainutil.Accepted(a.network, txID, encoded, "NEAR broadcast_tx_commit accepted: "+txID), nil
}

// DiscoverToken reads ft_metadata. Symbol and name fall back to the
// contract id.
func (a *Adapter) DiscoverToken(ctx context.Context, address string) (*config.Token, error) {
	contract := strings.TrimSpace(address)
	if contract == "" {
		return nil, wallet.InvalidInput("token_address is required")
	}
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	m, err := a.metadata(ctx, c, contract)
	if err != nil {
		return nil, err
	}
	decimals, ok := m.decimals()
	if !ok {
		return nil, wallet.Internal("NEAR ft_metadata missing decimals")
	}
	tok := &config.Token{
		Network:  config.TokenNetworkKey(a.network),
		Symbol:   strings.TrimSpace(m.Symbol),
		Name:     strings.TrimSpace(m.Name),
		Address:  contract,
		Decimals: decimals,
	}
	if tok.Symbol == "" {
		tok.Symbol = strings.ToUpper(contract)
	}
	if tok.Name == "" {
		tok.Name = contract
	}
	return tok, nil
}
