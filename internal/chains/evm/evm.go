// Package evm implements the adapter shared by every EVM network: native
// and ERC-20 balances, transfers signed with the account's secp256k1 key
// and ERC-20 metadata discovery, all over Ethereum JSON-RPC.
package evm

import (
	"context"
	"fmt"
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
	"github.com/Klingon-tech/klingnet-wallet/pkg/evm"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/Klingon-tech/klingnet-wallet/pkg/units"
)

// Adapter serves one EVM network.
type Adapter struct {
	nw     config.Network
	deps   wallet.Deps
	label  string
	logger zerolog.Logger
}

// New returns the adapter for an EVM catalog network, including custom
// eip155:N chains.
func New(nw config.Network, deps wallet.Deps) *Adapter {
	return &Adapter{
		nw:     nw,
		deps:   deps,
		label:  nw.ID + " rpc",
		logger: log.WithNetwork(nw.ID),
	}
}

// Network returns the network id.
func (a *Adapter) Network() string { return a.nw.ID }

func (a *Adapter) client() (*rpcclient.Client, error) {
	u, err := a.deps.RPCURL(a.nw.ID)
	if err != nil {
		return nil, err
	}
	return rpcclient.New(u, a.deps.HTTP, rpcclient.WithLabel(a.label)), nil
}

func (a *Adapter) key(ctx context.Context, acct wallet.Account) (*signer.PublicKey, evm.Address, error) {
	pk, err := chainutil.PublicKey(ctx, a.deps.Signer, acct, signer.ECDSASecp256k1, 33)
	if err != nil {
		return nil, evm.Address{}, err
	}
	addr, err := evm.AddressFromPubKey(pk.Key)
	if err != nil {
		return nil, evm.Address{}, wallet.Internal("invalid secp256k1 public key: %v", err)
	}
	return pk, addr, nil
}

// DeriveAddress returns the keccak address of the account's ECDSA key.
func (a *Adapter) DeriveAddress(ctx context.Context, acct wallet.Account) (*wallet.AddressResponse, error) {
	pk, addr, err := a.key(ctx, acct)
	if err != nil {
		return nil, err
	}
	return &wallet.AddressResponse{
		Network:      a.nw.ID,
		Address:      addr.String(),
		PublicKeyHex: types.EncodeHex(pk.Key),
		KeyName:      pk.KeyName,
		Index:        acct.Index,
		AccountTag:   acct.AccountTag,
		Message:      "Derived from ECDSA public key",
	}, nil
}

func (a *Adapter) quantity(ctx context.Context, c *rpcclient.Client, method string, params ...any) (*big.Int, error) {
	if params == nil {
		params = []any{}
	}
	var s string
	if err := c.Call(ctx, method, params, &s); err != nil {
		return nil, chainutil.Upstream(a.label, method, err)
	}
	v, err := evm.ParseQuantity(s)
	if err != nil {
		return nil, wallet.Internal("%s %s: %v", a.label, method, err)
	}
	return v, nil
}

func (a *Adapter) call(ctx context.Context, c *rpcclient.Client, contract evm.Address, data []byte) ([]byte, error) {
	var s string
	params := []any{map[string]string{"to": contract.String(), "data": types.EncodeHex0x(data)}, "latest"}
	if err := c.Call(ctx, "eth_call", params, &s); err != nil {
		return nil, chainutil.Upstream(a.label, "eth_call", err)
	}
	ret, err := evm.ParseData(s)
	if err != nil {
		return nil, wallet.Internal("%s eth_call: %v", a.label, err)
	}
	return ret, nil
}

func (a *Adapter) decimals(ctx context.Context, c *rpcclient.Client, token evm.Address) (uint8, error) {
	ret, err := a.call(ctx, c, token, evm.EncodeCall(evm.SigDecimals))
	if err != nil {
		return 0, err
	}
	d, err := evm.DecodeDecimals(ret)
	if err != nil {
		return 0, wallet.Internal("ERC20 %v", err)
	}
	return d, nil
}

func parseAddress(field, s string) (evm.Address, error) {
	addr, err := evm.ParseAddress(s)
	if err != nil {
		return addr, wallet.InvalidInput("invalid %s: %v", field, err)
	}
	return addr, nil
}

// GetBalance reads eth_getBalance, or balanceOf for an ERC-20 token.
func (a *Adapter) GetBalance(ctx context.Context, req wallet.BalanceRequest) (*wallet.BalanceResponse, error) {
	raw, err := wallet.RequireAccount(&req)
	if err != nil {
		return nil, err
	}
	account, err := parseAddress("account", raw)
	if err != nil {
		return nil, err
	}
	c, err := a.client()
	if err != nil {
		return nil, err
	}

	resp := &wallet.BalanceResponse{Network: a.nw.ID, Account: account.String(), BlockRef: "latest"}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		wei, err := a.quantity(ctx, c, "eth_getBalance", account.String(), "latest")
		if err != nil {
			return nil, err
		}
		resp.Amount = units.Format(wei, evm.NativeDecimals)
		resp.Decimals = evm.NativeDecimals
		resp.Message = fmt.Sprintf("RPC eth_getBalance (formatted %s)", a.nw.Symbol)
		return resp, nil
	}

	contract, err := parseAddress("token", token)
	if err != nil {
		return nil, err
	}
	ret, err := a.call(ctx, c, contract, evm.EncodeBalanceOf(account))
	if err != nil {
		return nil, err
	}
	bal, err := evm.DecodeUint(ret)
	if err != nil {
		return nil, wallet.Internal("ERC20 balanceOf returned empty data")
	}
	dec, err := a.decimals(ctx, c, contract)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().Str("account", resp.Account).Str("token", contract.String()).Msg("Fetched ERC20 balance")
	resp.Token = contract.String()
	resp.Amount = units.Format(bal, int(dec))
	resp.Decimals = dec
	resp.Message = "RPC eth_call balanceOf(address)"
	return resp, nil
}

func gasLimit(req *wallet.TransferRequest, def uint64) (uint64, error) {
	v, ok := req.Meta("gas_limit", "gas")
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 0, 64)
	if err != nil || n < evm.NativeGasLimit {
		return 0, wallet.InvalidInput("gas_limit must be an integer >= %d", evm.NativeGasLimit)
	}
	return n, nil
}

func parseNonce(s string) (uint64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, false, wallet.InvalidInput("nonce must be an unsigned integer")
	}
	return n, true, nil
}

// Transfer sends the native asset, or an ERC-20 token when req.Token is set.
func (a *Adapter) Transfer(ctx context.Context, acct wallet.Account, req wallet.TransferRequest) (*wallet.TransferResponse, error) {
	rawTo, err := wallet.RequireTo(&req)
	if err != nil {
		return nil, err
	}
	to, err := parseAddress("to", rawTo)
	if err != nil {
		return nil, err
	}
	if a.nw.ChainID == 0 {
		return nil, wallet.Internal("missing chain_id config for network: %s", a.nw.ID)
	}
	nonceOverride, hasNonce, err := parseNonce(req.Nonce)
	if err != nil {
		return nil, err
	}
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	pk, from, err := a.key(ctx, acct)
	if err != nil {
		return nil, err
	}
	if err := wallet.CheckFrom(req.From, from.String(), "EVM", evm.NormalizeAddress); err != nil {
		return nil, err
	}

	tx := &evm.Tx{ChainID: a.nw.ChainID, Value: new(big.Int)}
	kind := "raw transaction"
	defGas := evm.NativeGasLimit
	if token := req.TokenParam(); token == "" {
		if tx.Value, err = wallet.ParseAmount(&req, evm.NativeDecimals); err != nil {
			return nil, err
		}
		tx.To = to
	} else {
		contract, err := parseAddress("token", token)
		if err != nil {
			return nil, err
		}
		dec, err := a.decimals(ctx, c, contract)
		if err != nil {
			return nil, err
		}
		amount, err := wallet.ParseAmount(&req, int(dec))
		if err != nil {
			return nil, err
		}
		if tx.Data, err = evm.EncodeTransfer(to, amount); err != nil {
			return nil, wallet.InvalidInput("%s", err.Error())
		}
		tx.To = contract
		kind = "ERC20 transfer"
		defGas = evm.TokenGasLimit
	}
	if tx.GasLimit, err = gasLimit(&req, defGas); err != nil {
		return nil, err
	}

	if hasNonce {
		tx.Nonce = nonceOverride
	} else {
		n, err := a.quantity(ctx, c, "eth_getTransactionCount", from.String(), "pending")
		if err != nil {
			return nil, err
		}
		if !n.IsUint64() {
			return nil, wallet.Internal("%s nonce out of range", a.label)
		}
		tx.Nonce = n.Uint64()
	}
	fees, err := a.fees(ctx, c)
	if err != nil {
		return nil, err
	}
	fees.Apply(tx)

	digest := tx.SigningHash()
	sig, err := chainutil.Sign(ctx, a.deps.Signer, signer.SignRequest{
		Path:      acct.Path,
		Algorithm: signer.ECDSASecp256k1,
		Message:   digest[:],
	})
	if err != nil {
		return nil, err
	}
	signed, err := tx.SignWithPubKey(sig, pk.Key)
	if err != nil {
		return nil, wallet.Internal("invalid secp256k1 signature: %v", err)
	}

	rawHex := signed.RawHex()
	localID := types.EncodeHex0x(signed.Hash[:])
	var txID string
	if err := c.Call(ctx, "eth_sendRawTransaction", []any{rawHex}, &txID); err != nil {
		return nil, chainutil.BroadcastFailure(a.nw.ID, localID, rawHex, err)
	}
	if txID = strings.TrimSpace(txID); txID == "" {
		txID = localID
	}
	a.logger.Info().
		Str("tx_id", txID).
		Uint64("nonce", tx.Nonce).
		Bool("eip1559", tx.IsDynamicFee()).
		Msg("Broadcast EVM transaction")
	return chainutil.Accepted(a.nw.ID, txID, rawHex,
		fmt.Sprintf("broadcasted %s via eth_sendRawTransaction: %s", kind, txID)), nil
}

type blockHeader struct {
	BaseFeePerGas string `json:"baseFeePerGas"`
}

// fees picks EIP-1559 pricing when the latest block carries a base fee.
func (a *Adapter) fees(ctx context.Context, c *rpcclient.Client) (evm.Fees, error) {
	gasPrice, err := a.quantity(ctx, c, "eth_gasPrice")
	if err != nil {
		return evm.Fees{}, err
	}
	var head *blockHeader
	if err := c.Call(ctx, "eth_getBlockByNumber", []any{"latest", false}, &head); err != nil {
		a.logger.Debug().Err(err).Msg("Latest block unavailable, using legacy gas price")
		return evm.ChooseFees(nil, nil, gasPrice), nil
	}
	if head == nil || head.BaseFeePerGas == "" {
		return evm.ChooseFees(nil, nil, gasPrice), nil
	}
	baseFee, err := evm.ParseQuantity(head.BaseFeePerGas)
	if err != nil {
		return evm.ChooseFees(nil, nil, gasPrice), nil
	}
	var tip *big.Int
	if t, err := a.quantity(ctx, c, "eth_maxPriorityFeePerGas"); err == nil {
		tip = t
	}
	return evm.ChooseFees(baseFee, tip, gasPrice), nil
}

// DiscoverToken reads symbol(), name() and decimals() of an ERC-20 contract.
func (a *Adapter) DiscoverToken(ctx context.Context, address string) (*config.Token, error) {
	contract, err := parseAddress("token_address", address)
	if err != nil {
		return nil, err
	}
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	dec, err := a.decimals(ctx, c, contract)
	if err != nil {
		return nil, err
	}
	suffix := strings.ToUpper(contract.String()[len(contract.String())-6:])
	text := func(sig, fallback string) string {
		ret, err := a.call(ctx, c, contract, evm.EncodeCall(sig))
		if err != nil {
			return fallback
		}
		s, err := evm.DecodeString(ret)
		if err != nil || s == "" {
			return fallback
		}
		return s
	}
	return &config.Token{
		Network:  config.TokenNetworkKey(a.nw.ID),
		Symbol:   text(evm.SigSymbol, "ERC"+suffix),
		Name:     text(evm.SigName, "ERC20 "+suffix),
		Address:  contract.String(),
		Decimals: dec,
	}, nil
}
