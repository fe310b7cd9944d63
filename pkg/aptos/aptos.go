// Package aptos derives Aptos account addresses and models the JSON
// transaction requests of the Aptos REST API.
package aptos

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

const (
	Decimals = 8

	CoinType          = "0x1::aptos_coin::AptosCoin"
	TransferCoinsFunc = "0x1::aptos_account::transfer_coins"

	// Gas ceilings for native and coin transfers.
	NativeMaxGas uint64 = 20_000
	TokenMaxGas  uint64 = 80_000

	DefaultGasUnitPrice uint64 = 100

	// ExpirationSecs is how far ahead transactions expire.
	ExpirationSecs = 600

	schemeEd25519 byte = 0x00
)

var ErrAddressRequired = errors.New("Aptos address is required")

// AddressFromPubKey is the single-key authentication key:
// sha3-256(pub || 0x00), hex with a 0x prefix.
func AddressFromPubKey(pub []byte) (string, error) {
	if len(pub) != 32 {
		return "", fmt.Errorf("unexpected ed25519 public key length for Aptos address: %d", len(pub))
	}
	h := crypto.Sha3_256(pub, []byte{schemeEd25519})
	return types.EncodeHex0x(h[:]), nil
}

// NormalizeAddress left-pads to 64 lowercase hex digits with a 0x prefix.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrAddressRequired
	}
	digits := strings.TrimPrefix(s, "0x")
	if digits == "" || strings.IndexFunc(digits, notHex) >= 0 {
		return "", fmt.Errorf("invalid Aptos address hex")
	}
	if len(digits) > 64 {
		return "", fmt.Errorf("Aptos address is too long")
	}
	return "0x" + strings.Repeat("0", 64-len(digits)) + strings.ToLower(digits), nil
}

func notHex(r rune) bool {
	return !('0' <= r && r <= '9' || 'a' <= r && r <= 'f' || 'A' <= r && r <= 'F')
}

// CoinOwner returns the account that publishes a coin type
// ("0xabc::mod::Name" owns at "0xabc").
func CoinOwner(coinType string) (string, error) {
	owner, _, ok := strings.Cut(strings.TrimSpace(coinType), "::")
	if !ok || owner == "" {
		return "", fmt.Errorf("invalid Aptos coin type")
	}
	return owner, nil
}

// CoinStoreType and CoinInfoType name the resources holding a balance and
// a coin's metadata.
func CoinStoreType(coinType string) string {
	return "0x1::coin::CoinStore<" + strings.TrimSpace(coinType) + ">"
}

func CoinInfoType(coinType string) string {
	return "0x1::coin::CoinInfo<" + strings.TrimSpace(coinType) + ">"
}

// EntryFunctionPayload is the JSON form of an entry function call.
type EntryFunctionPayload struct {
	Type          string   `json:"type"`
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []string `json:"arguments"`
}

// Signature is a single ed25519 transaction authenticator.
type Signature struct {
	Type      string `json:"type"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

// Transaction is the request body of /transactions/signing_message and,
// with Signature set, of /transactions.
type Transaction struct {
	Sender                  string               `json:"sender"`
	SequenceNumber          string               `json:"sequence_number"`
	MaxGasAmount            string               `json:"max_gas_amount"`
	GasUnitPrice            string               `json:"gas_unit_price"`
	ExpirationTimestampSecs string               `json:"expiration_timestamp_secs"`
	Payload                 EntryFunctionPayload `json:"payload"`
	ChainID                 uint8                `json:"chain_id"`
	Signature               *Signature           `json:"signature,omitempty"`
}

// TransferParams configures NewTransfer.
type TransferParams struct {
	Sender         string
	To             string
	CoinType       string
	Amount         uint64
	SequenceNumber string
	GasUnitPrice   uint64
	ChainID        uint8
	Now            int64 // unix seconds
}

// NewTransfer builds a transfer_coins transaction for the given coin type.
func NewTransfer(p TransferParams) *Transaction {
	coin := p.CoinType
	if coin == "" {
		coin = CoinType
	}
	maxGas := TokenMaxGas
	if coin == CoinType {
		maxGas = NativeMaxGas
	}
	return &Transaction{
		Sender:                  p.Sender,
		SequenceNumber:          p.SequenceNumber,
		MaxGasAmount:            strconv.FormatUint(maxGas, 10),
		GasUnitPrice:            strconv.FormatUint(p.GasUnitPrice, 10),
		ExpirationTimestampSecs: strconv.FormatInt(p.Now+ExpirationSecs, 10),
		Payload: EntryFunctionPayload{
			Type:          "entry_function_payload",
			Function:      TransferCoinsFunc,
			TypeArguments: []string{coin},
			Arguments:     []string{p.To, strconv.FormatUint(p.Amount, 10)},
		},
		ChainID: p.ChainID,
	}
}

// Sign attaches an ed25519 authenticator.
func (t *Transaction) Sign(pub, sig []byte) {
	t.Signature = &Signature{
		Type:      "ed25519_signature",
		PublicKey: types.EncodeHex0x(pub),
		Signature: types.EncodeHex0x(sig),
	}
}
