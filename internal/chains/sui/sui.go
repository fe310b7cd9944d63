// Package sui implements the Sui coin adapter over Sui JSON-RPC. Payments
// are built by the node (unsafe_paySui, unsafe_pay) from coin objects
// picked locally, then signed over the intent digest.
package sui

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains/chainutil"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-wallet/internal/signer"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/sui"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/Klingon-tech/klingnet-wallet/pkg/units"
)

const (
	label    = "sui rpc"
	maxBytes = 1 << 20

	// Page sizes for coin listings.
	paymentCoinPage = 100
	gasCoinPage     = 50
)

// Adapter serves the Sui mainnet.
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
		rpcclient.WithMaxResponseBytes(maxBytes),
	), nil
}

func call(ctx context.Context, c *rpcclient.Client, method string, params, result any) error {
	if err := c.Call(ctx, method, params, result); err != nil {
		return chainutil.Upstream(label, method, err)
	}
	return nil
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
	addr, err := sui.AddressFromPubKey(pk.Key)
	if err != nil {
		return nil, wallet.Internal("%v", err)
	}
	return &identity{address: addr, pub: pk.Key, keyName: pk.KeyName}, nil
}

// DeriveAddress returns the Ed25519 Sui address.
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
		Message:      "Sui address (blake2b-256 of ed25519 flag and pubkey)",
	}, nil
}

func normalize(field, s string) (string, error) {
	addr, err := sui.NormalizeAddress(s)
	if err != nil {
		return "", wallet.InvalidInput("invalid %s: %v", field, err)
	}
	return addr, nil
}

type coinMetadata struct {
	Decimals *uint8 `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}

func (a *Adapter) metadata(ctx context.Context, c *rpcclient.Client, coinType string) (*coinMetadata, error) {
	var md *coinMetadata
	if err := call(ctx, c, "suix_getCoinMetadata", []any{coinType}, &md); err != nil {
		return nil, err
	}
	if md == nil || md.Decimals == nil {
		return nil, wallet.Internal("Sui coin metadata missing decimals")
	}
	return md, nil
}

// decimals falls back to the SUI decimals when metadata is unavailable.
func (a *Adapter) decimals(ctx context.Context, c *rpcclient.Client, coinType string) uint8 {
	if coinType == "" {
		return sui.Decimals
	}
	md, err := a.metadata(ctx, c, coinType)
	if err != nil {
		a.logger.Warn().Err(err).Str("coin", coinType).Msg("Coin metadata lookup failed, assuming 9 decimals")
		return sui.Decimals
	}
	return *md.Decimals
}

// GetBalance reports the total balance of a coin type for any address.
func (a *Adapter) GetBalance(ctx context.Context, req wallet.BalanceRequest) (*wallet.BalanceResponse, error) {
	account, err := wallet.RequireAccount(&req)
	if err != nil {
		return nil, err
	}
	address, err := normalize("account", account)
	if err != nil {
		return nil, err
	}
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	coinType := strings.TrimSpace(req.Token)
	params := []any{address}
	if coinType != "" {
		params = append(params, coinType)
	}
	var bal struct {
		TotalBalance string `json:"totalBalance"`
	}
	if err := call(ctx, c, "suix_getBalance", params, &bal); err != nil {
		return nil, err
	}
	total, err := strconv.ParseUint(bal.TotalBalance, 10, 64)
	if err != nil {
		return nil, wallet.Internal("Sui totalBalance parse failed: %q", bal.TotalBalance)
	}
	decimals := a.decimals(ctx, c, coinType)
	return &wallet.BalanceResponse{
		Network:  a.network,
		Account:  address,
		Token:    coinType,
		Amount:   units.FormatUint64(total, int(decimals)),
		Decimals: decimals,
		Message:  "Sui JSON-RPC suix_getBalance",
	}, nil
}

type coinPage struct {
	Data []struct {
		CoinObjectID string `json:"coinObjectId"`
		Balance      string `json:"balance"`
	} `json:"data"`
}

func (a *Adapter) coins(ctx context.Context, c *rpcclient.Client, owner, coinType string, limit int) ([]sui.Coin, error) {
	var page coinPage
	if err := call(ctx, c, "suix_getCoins", []any{owner, coinType, nil, limit}, &page); err != nil {
		return nil, err
	}
	out := make([]sui.Coin, 0, len(page.Data))
	for _, d := range page.Data {
		if d.CoinObjectID == "" {
			return nil, wallet.Internal("Sui coin item missing coinObjectId")
		}
		bal, _ := strconv.ParseUint(d.Balance, 10, 64)
		out = append(out, sui.Coin{ID: d.CoinObjectID, Balance: bal})
	}
	return out, nil
}

func (a *Adapter) gasPrice(ctx context.Context, c *rpcclient.Client) uint64 {
	var price string
	if err := call(ctx, c, "suix_getReferenceGasPrice", []any{}, &price); err != nil {
		a.logger.Warn().Err(err).Msg("Reference gas price failed, using default")
		return sui.DefaultGasPrice
	}
	p, err := strconv.ParseUint(price, 10, 64)
	if err != nil {
		return sui.DefaultGasPrice
	}
	return p
}

// needed is amount plus budget*price, saturating at the uint64 maximum.
func needed(amount, budget, price uint64) uint64 {
	gas := budget * price
	if price != 0 && gas/price != budget {
		return ^uint64(0)
	}
	if amount+gas < amount {
		return ^uint64(0)
	}
	return amount + gas
}

// build asks the node for the payment transaction bytes (base64 BCS).
func (a *Adapter) build(ctx context.Context, c *rpcclient.Client, sender, to, coinType string, amount uint64) (string, error) {
	price := a.gasPrice(ctx, c)
	amountText := strconv.FormatUint(amount, 10)
	var method string
	var params []any
	if coinType == "" {
		budget := sui.NativeGasBudget
		all, err := a.coins(ctx, c, sender, sui.CoinType, paymentCoinPage)
		if err != nil {
			return "", err
		}
		ids, err := sui.SelectCoins(all, sui.CoinType, needed(amount, budget, price))
		if err != nil {
			return "", wallet.Internal("%v", err)
		}
		method = "unsafe_paySui"
		params = []any{sender, ids, []string{to}, []string{amountText}, strconv.FormatUint(budget, 10)}
	} else {
		budget := sui.TokenGasBudget
		tokens, err := a.coins(ctx, c, sender, coinType, paymentCoinPage)
		if err != nil {
			return "", err
		}
		ids, err := sui.SelectCoins(tokens, coinType, amount)
		if err != nil {
			return "", wallet.Internal("%v", err)
		}
		gasCoins, err := a.coins(ctx, c, sender, sui.CoinType, gasCoinPage)
		if err != nil {
			return "", err
		}
		gas, err := sui.SelectGasCoin(gasCoins, budget, price)
		if err != nil {
			return "", wallet.Internal("%v", err)
		}
		method = "unsafe_pay"
		params = []any{sender, ids, []string{to}, []string{amountText}, gas, strconv.FormatUint(budget, 10)}
	}

	var built struct {
		TxBytes    string `json:"txBytes"`
		TxBytesAlt string `json:"tx_bytes"`
	}
	if err := call(ctx, c, method, params, &built); err != nil {
		return "", err
	}
	if built.TxBytes == "" {
		built.TxBytes = built.TxBytesAlt
	}
	if built.TxBytes == "" {
		return "", wallet.Internal("Sui %s response missing txBytes", method)
	}
	return built.TxBytes, nil
}

type execution struct {
	Digest  string `json:"digest"`
	Effects *struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
	} `json:"effects"`
}

// Transfer pays SUI or another coin type from the managed address.
func (a *Adapter) Transfer(ctx context.Context, acct wallet.Account, req wallet.TransferRequest) (*wallet.TransferResponse, error) {
	toText, err := wallet.RequireTo(&req)
	if err != nil {
		return nil, err
	}
	to, err := normalize("to", toText)
	if err != nil {
		return nil, err
	}
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	id, err := a.identity(ctx, acct)
	if err != nil {
		return nil, err
	}
	if err := wallet.CheckFrom(req.From, id.address, "Sui", sui.NormalizeAddress); err != nil {
		return nil, err
	}
	coinType := req.TokenParam()
	amount, err := wallet.ParseAmountUint64(&req, int(a.decimals(ctx, c, coinType)))
	if err != nil {
		return nil, err
	}

	txB64, err := a.build(ctx, c, id.address, to, coinType, amount)
	if err != nil {
		return nil, err
	}
	txBytes, err := base64.StdEncoding.DecodeString(txB64)
	if err != nil {
		return nil, wallet.Internal("Sui txBytes is not base64: %v", err)
	}
	digest := sui.TxDigest(txBytes)
	sig, err := chainutil.Sign(ctx, a.deps.Signer, signer.SignRequest{
		Path:      acct.Path,
		Algorithm: signer.SchnorrEd25519,
		Message:   digest[:],
	})
	if err != nil {
		return nil, err
	}
	serialized, err := sui.SerializedSignature(sig, id.pub)
	if err != nil {
		return nil, wallet.Internal("%v", err)
	}
	localID := sui.TransactionDigest(txBytes)
	signed, _ := json.Marshal(map[string]any{"tx_bytes": txB64, "signatures": []string{serialized}})

	a.logger.Debug().Str("digest", localID).Str("coin", coinType).Msg("Executing Sui transaction")
	var exec execution
	err = c.Call(ctx, "sui_executeTransactionBlock",
		[]any{txB64, []string{serialized}, map[string]bool{"showEffects": true}, "WaitForLocalExecution"},
		&exec)
	if err != nil {
		return nil, chainutil.BroadcastFailure(a.network, localID, string(signed), err)
	}
	if exec.Effects != nil && exec.Effects.Status.Status != "" && exec.Effects.Status.Status != "success" {
		msg := exec.Effects.Status.Error
		if msg == "" {
			msg = "unknown error"
		}
		return nil, wallet.Internal("Sui executeTransactionBlock failed: %s", msg)
	}
	txID := exec.Digest
	if txID == "" {
		txID = localID
	}
	a.logger.Info().Str("tx_id", txID).Msg("Broadcast Sui transaction")
	return chainutil.Accepted(a.network, txID, string(signed), "Sui executeTransactionBlock accepted: "+txID), nil
}

// DiscoverToken reads the coin metadata of a coin type.
func (a *Adapter) DiscoverToken(ctx context.Context, address string) (*config.Token, error) {
	coinType := strings.TrimSpace(address)
	if coinType == "" {
		return nil, wallet.InvalidInput("coin type is required")
	}
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	md, err := a.metadata(ctx, c, coinType)
	if err != nil {
		return nil, err
	}
	symbol := strings.TrimSpace(md.Symbol)
	if symbol == "" {
		return nil, wallet.Internal("Sui coin metadata missing symbol")
	}
	name := strings.TrimSpace(md.Name)
	if name == "" {
		name = symbol
	}
	return &config.Token{
		Network:  config.TokenNetworkKey(a.network),
		Symbol:   symbol,
		Name:     name,
		Address:  coinType,
		Decimals: *md.Decimals,
	}, nil
}
