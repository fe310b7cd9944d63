// Package solana implements the SOL and SPL token adapter over Solana
// JSON-RPC. Both sol and sol-testnet use it; transactions are legacy
// messages signed by the account's Ed25519 key.
package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/chainutil"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-wallet/internal/signer"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/solana"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/Klingon-tech/klingnet-wallet/pkg/units"
)

const label = "solana rpc"

var confirmed = map[string]string{"commitment": "confirmed"}

// Adapter serves one Solana cluster.
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
	return rpcclient.New(u, a.deps.HTTP, rpcclient.WithLabel(label)), nil
}

func (a *Adapter) call(ctx context.Context, c *rpcclient.Client, method string, result any, params ...any) error {
	if err := c.Call(ctx, method, params, result); err != nil {
		return chainutil.Upstream(label, method, err)
	}
	return nil
}

func (a *Adapter) owner(ctx context.Context, acct wallet.Account) (solana.PublicKey, string, error) {
	pk, err := chainutil.PublicKey(ctx, a.deps.Signer, acct, signer.SchnorrEd25519, 32)
	if err != nil {
		return solana.PublicKey{}, "", err
	}
	key, err := solana.PublicKeyFromBytes(pk.Key)
	if err != nil {
		return solana.PublicKey{}, "", wallet.Internal("invalid ed25519 pubkey: %v", err)
	}
	return key, pk.KeyName, nil
}

func parseKey(field, s string) (solana.PublicKey, error) {
	k, err := solana.ParsePublicKey(strings.TrimSpace(s))
	if err != nil {
		return k, wallet.InvalidInput("invalid %s: %v", field, err)
	}
	return k, nil
}

// DeriveAddress returns the base58 Ed25519 public key of the account.
func (a *Adapter) DeriveAddress(ctx context.Context, acct wallet.Account) (*wallet.AddressResponse, error) {
	key, keyName, err := a.owner(ctx, acct)
	if err != nil {
		return nil, err
	}
	return &wallet.AddressResponse{
		Network:      a.network,
		Address:      key.String(),
		PublicKeyHex: types.EncodeHex(key[:]),
		KeyName:      keyName,
		Index:        acct.Index,
		AccountTag:   acct.AccountTag,
		Message:      "Derived from Schnorr(ed25519) public key",
	}, nil
}

type contextResult[T any] struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value T `json:"value"`
}

type tokenAmount struct {
	Amount   string `json:"amount"`
	Decimals uint8  `json:"decimals"`
}

type tokenAccount struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Data struct {
			Parsed struct {
				Info struct {
					TokenAmount tokenAmount `json:"tokenAmount"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"account"`
}

func (a *Adapter) tokenAccounts(ctx context.Context, c *rpcclient.Client, owner, mint solana.PublicKey) (*contextResult[[]tokenAccount], error) {
	var res contextResult[[]tokenAccount]
	err := a.call(ctx, c, "getTokenAccountsByOwner", &res,
		owner.String(),
		map[string]string{"mint": mint.String()},
		map[string]string{"encoding": "jsonParsed", "commitment": "confirmed"},
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (a *Adapter) mintDecimals(ctx context.Context, c *rpcclient.Client, mint solana.PublicKey) (uint8, error) {
	var res contextResult[*tokenAmount]
	if err := a.call(ctx, c, "getTokenSupply", &res, mint.String(), confirmed); err != nil {
		return 0, err
	}
	if res.Value == nil {
		return 0, wallet.Internal("solana rpc getTokenSupply missing decimals")
	}
	return res.Value.Decimals, nil
}

// GetBalance reads getBalance, or sums the owner's token accounts for a mint.
func (a *Adapter) GetBalance(ctx context.Context, req wallet.BalanceRequest) (*wallet.BalanceResponse, error) {
	raw, err := wallet.RequireAccount(&req)
	if err != nil {
		return nil, err
	}
	account, err := parseKey("account", raw)
	if err != nil {
		return nil, err
	}
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	resp := &wallet.BalanceResponse{Network: a.network, Account: account.String()}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		var res contextResult[uint64]
		if err := a.call(ctx, c, "getBalance", &res, account.String(), confirmed); err != nil {
			return nil, err
		}
		resp.Amount = units.FormatUint64(res.Value, solana.Decimals)
		resp.Decimals = solana.Decimals
		resp.BlockRef = fmt.Sprintf("slot:%d", res.Context.Slot)
		resp.Message = "RPC getBalance (formatted SOL)"
		return resp, nil
	}

	mint, err := parseKey("token", token)
	if err != nil {
		return nil, err
	}
	accounts, err := a.tokenAccounts(ctx, c, account, mint)
	if err != nil {
		return nil, err
	}
	decimals, err := a.mintDecimals(ctx, c, mint)
	if err != nil {
		return nil, err
	}
	total := new(big.Int)
	for _, ta := range accounts.Value {
		v, ok := new(big.Int).SetString(ta.Account.Data.Parsed.Info.TokenAmount.Amount, 10)
		if !ok {
			return nil, wallet.Internal("solana rpc returned an invalid token amount")
		}
		total.Add(total, v)
	}
	a.logger.Debug().Str("account", resp.Account).Str("mint", mint.String()).Int("token_accounts", len(accounts.Value)).Msg("Fetched SPL balance")
	resp.Token = mint.String()
	resp.Amount = units.Format(total, int(decimals))
	resp.Decimals = decimals
	resp.BlockRef = fmt.Sprintf("slot:%d", accounts.Context.Slot)
	resp.Message = "RPC getTokenAccountsByOwner (formatted SPL)"
	return resp, nil
}

func (a *Adapter) blockhash(ctx context.Context, c *rpcclient.Client) (solana.PublicKey, error) {
	var res contextResult[struct {
		Blockhash string `json:"blockhash"`
	}]
	if err := a.call(ctx, c, "getLatestBlockhash", &res, confirmed); err != nil {
		return solana.PublicKey{}, err
	}
	if res.Value.Blockhash == "" {
		return solana.PublicKey{}, wallet.Internal("solana rpc getLatestBlockhash missing blockhash")
	}
	h, err := solana.ParsePublicKey(res.Value.Blockhash)
	if err != nil {
		return h, wallet.Internal("solana rpc returned an invalid blockhash: %v", err)
	}
	return h, nil
}

// accountExists reports whether getAccountInfo returns a non-null value.
func (a *Adapter) accountExists(ctx context.Context, c *rpcclient.Client, key solana.PublicKey) (bool, error) {
	var res contextResult[json.RawMessage]
	err := a.call(ctx, c, "getAccountInfo", &res, key.String(),
		map[string]string{"encoding": "base64", "commitment": "confirmed"})
	if err != nil {
		return false, err
	}
	v := strings.TrimSpace(string(res.Value))
	return v != "" && v != "null", nil
}

// Transfer sends SOL, or an SPL token with TransferChecked when req.Token
// names a mint. A missing destination associated token account is created
// in the same transaction.
func (a *Adapter) Transfer(ctx context.Context, acct wallet.Account, req wallet.TransferRequest) (*wallet.TransferResponse, error) {
	rawTo, err := wallet.RequireTo(&req)
	if err != nil {
		return nil, err
	}
	to, err := parseKey("to", rawTo)
	if err != nil {
		return nil, err
	}
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	owner, _, err := a.owner(ctx, acct)
	if err != nil {
		return nil, err
	}
	if err := wallet.CheckFrom(req.From, owner.String(), "Solana", nil); err != nil {
		return nil, err
	}

	var msg *solana.Message
	kind := "raw transaction"
	if token := req.TokenParam(); token == "" {
		lamports, err := wallet.ParseAmountUint64(&req, solana.Decimals)
		if err != nil {
			return nil, err
		}
		bh, err := a.blockhash(ctx, c)
		if err != nil {
			return nil, err
		}
		msg = solana.NewSystemTransfer(owner, to, bh, lamports)
	} else {
		mint, err := parseKey("token", token)
		if err != nil {
			return nil, err
		}
		if msg, err = a.tokenTransfer(ctx, c, owner, to, mint, &req); err != nil {
			return nil, err
		}
		kind = "SPL transfer"
	}

	payload := msg.Serialize()
	sig, err := chainutil.Sign(ctx, a.deps.Signer, signer.SignRequest{
		Path:      acct.Path,
		Algorithm: signer.SchnorrEd25519,
		Message:   payload,
	})
	if err != nil {
		return nil, err
	}
	rawTx, err := solana.EncodeTransaction(payload, sig)
	if err != nil {
		return nil, wallet.Internal("encode solana transaction: %v", err)
	}
	encoded := base64.StdEncoding.EncodeToString(rawTx)
	localID := types.Base58Encode(sig)

	var txSig string
	err = c.Call(ctx, "sendTransaction", []any{encoded, map[string]string{
		"encoding":            "base64",
		"preflightCommitment": "confirmed",
	}}, &txSig)
	if err != nil {
		return nil, chainutil.BroadcastFailure(a.network, localID, encoded, err)
	}
	if txSig == "" {
		txSig = localID
	}
	a.logger.Info().Str("tx_id", txSig).Str("kind", kind).Msg("Broadcast Solana transaction")
	return chainutil.Accepted(a.network, txSig, encoded,
		fmt.Sprintf("broadcasted %s via sendTransaction: %s", kind, txSig)), nil
}

func (a *Adapter) tokenTransfer(ctx context.Context, c *rpcclient.Client, owner, to, mint solana.PublicKey, req *wallet.TransferRequest) (*solana.Message, error) {
	decimals, err := a.mintDecimals(ctx, c, mint)
	if err != nil {
		return nil, err
	}
	amount, err := wallet.ParseAmountUint64(req, int(decimals))
	if err != nil {
		return nil, err
	}
	src, err := a.tokenAccounts(ctx, c, owner, mint)
	if err != nil {
		return nil, err
	}
	if len(src.Value) == 0 {
		return nil, wallet.InvalidInput("source token account not found for this mint")
	}
	source, err := solana.ParsePublicKey(src.Value[0].Pubkey)
	if err != nil {
		return nil, wallet.Internal("solana rpc returned an invalid token account: %v", err)
	}
	dest, err := solana.AssociatedTokenAddress(to, mint)
	if err != nil {
		return nil, wallet.Internal("derive associated token account: %v", err)
	}
	exists, err := a.accountExists(ctx, c, dest)
	if err != nil {
		return nil, err
	}
	bh, err := a.blockhash(ctx, c)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().Str("destination", dest.String()).Bool("create", !exists).Msg("Resolved destination token account")
	return solana.NewTokenTransfer(solana.TokenTransfer{
		Owner:             owner,
		Source:            source,
		Destination:       dest,
		DestinationOwner:  to,
		Mint:              mint,
		Blockhash:         bh,
		Amount:            amount,
		Decimals:          decimals,
		CreateDestination: !exists,
	}), nil
}

// DiscoverToken reads the mint decimals. SPL mints carry no symbol or
// name on chain, so both are derived from the mint address.
func (a *Adapter) DiscoverToken(ctx context.Context, address string) (*config.Token, error) {
	mint, err := parseKey("token_address", address)
	if err != nil {
		return nil, err
	}
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	decimals, err := a.mintDecimals(ctx, c, mint)
	if err != nil {
		return nil, err
	}
	s := mint.String()
	suffix := strings.ToUpper(s[len(s)-6:])
	return &config.Token{
		Network:  config.TokenNetworkKey(a.network),
		Symbol:   "SPL" + suffix,
		Name:     "SPL Token " + suffix,
		Address:  s,
		Decimals: decimals,
	}, nil
}
