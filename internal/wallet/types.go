package wallet

import (
	"strings"

	"github.com/Klingon-tech/klingnet-wallet/config"
)

// AddressRequest selects which managed address to derive for the caller.
type AddressRequest struct {
	Index      *uint32 `json:"index,omitempty"`
	AccountTag string  `json:"account_tag,omitempty"`
}

// AddressResponse is a derived address and the key it came from.
type AddressResponse struct {
	Network      string `json:"network"`
	Address      string `json:"address"`
	PublicKeyHex string `json:"public_key_hex"`
	KeyName      string `json:"key_name"`
	Index        uint32 `json:"index"`
	AccountTag   string `json:"account_tag,omitempty"`
	Message      string `json:"message,omitempty"`
}

// BalanceRequest queries the balance of any account, native or token.
type BalanceRequest struct {
	Account string `json:"account"`
	Token   string `json:"token,omitempty"`
}

// BalanceResponse carries a decimal amount in display units.
type BalanceResponse struct {
	Network  string `json:"network"`
	Account  string `json:"account"`
	Token    string `json:"token,omitempty"`
	Amount   string `json:"amount"`
	Decimals uint8  `json:"decimals"`
	BlockRef string `json:"block_ref,omitempty"`
	Pending  bool   `json:"pending"`
	Message  string `json:"message,omitempty"`
}

// MetadataEntry is one free-form transfer option.
type MetadataEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// TransferRequest sends Amount (decimal display units) from the caller's
// managed address. Index and AccountTag select the address as in
// AddressRequest.
type TransferRequest struct {
	From       string          `json:"from,omitempty"`
	To         string          `json:"to"`
	Amount     string          `json:"amount"`
	Token      string          `json:"token,omitempty"`
	Memo       string          `json:"memo,omitempty"`
	Nonce      string          `json:"nonce,omitempty"`
	Metadata   []MetadataEntry `json:"metadata,omitempty"`
	Index      *uint32         `json:"index,omitempty"`
	AccountTag string          `json:"account_tag,omitempty"`
}

// Meta returns the first metadata value whose key matches one of keys,
// ignoring case and surrounding space.
func (r *TransferRequest) Meta(keys ...string) (string, bool) {
	for _, e := range r.Metadata {
		k := strings.TrimSpace(e.Key)
		for _, want := range keys {
			if strings.EqualFold(k, want) {
				return strings.TrimSpace(e.Value), true
			}
		}
	}
	return "", false
}

// TokenParam returns the trimmed token, or "" for native transfers.
func (r *TransferRequest) TokenParam() string { return strings.TrimSpace(r.Token) }

// TransferResponse reports a broadcast transaction.
type TransferResponse struct {
	Network  string `json:"network"`
	Accepted bool   `json:"accepted"`
	TxID     string `json:"tx_id,omitempty"`
	SignedTx string `json:"signed_tx,omitempty"`
	Message  string `json:"message"`
}

// NetworkStatus reports adapter readiness for one network.
type NetworkStatus struct {
	Network       string `json:"network"`
	BalanceReady  bool   `json:"balance_ready"`
	TransferReady bool   `json:"transfer_ready"`
	Note          string `json:"note,omitempty"`
}

// NetworkInfo describes a catalog network and its effective RPC endpoint.
type NetworkInfo struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	PrimarySymbol      string `json:"primary_symbol"`
	AddressFamily      string `json:"address_family"`
	SharedAddressGroup string `json:"shared_address_group"`
	SupportsSend       bool   `json:"supports_send"`
	SupportsBalance    bool   `json:"supports_balance"`
	DefaultRPCURL      string `json:"default_rpc_url,omitempty"`
}

// ServiceInfo describes the running service.
type ServiceInfo struct {
	Version string `json:"version"`
	Owner   string `json:"owner,omitempty"`
	Paused  bool   `json:"paused"`
	Caller  string `json:"caller"`
	Note    string `json:"note,omitempty"`
}

// RPCEntry is the endpoint configured for a network.
type RPCEntry struct {
	Network string `json:"network"`
	RPCURL  string `json:"rpc_url"`
}

// ExplorerResponse is an explorer template set for a network.
type ExplorerResponse = config.Explorer
