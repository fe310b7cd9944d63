package near

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

const (
	// Decimals of yoctoNEAR.
	Decimals = 24
	// FunctionCallGas is attached to ft_transfer calls (50 Tgas).
	FunctionCallGas uint64 = 50_000_000_000_000

	keyTypeEd25519 = 0

	actionFunctionCall = 2
	actionTransfer     = 3
)

// OneYocto is the deposit NEP-141 requires on ft_transfer.
var OneYocto = big.NewInt(1)

// ImplicitAccount is the lowercase hex of an ed25519 public key.
func ImplicitAccount(pub []byte) string { return hex.EncodeToString(pub) }

// PublicKeyString formats "ed25519:<base58>".
func PublicKeyString(pub []byte) string { return "ed25519:" + types.Base58Encode(pub) }

// ParsePublicKey accepts "ed25519:<base58>".
func ParsePublicKey(s string) ([32]byte, error) {
	var pk [32]byte
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "ed25519:")
	if !ok {
		return pk, fmt.Errorf("NEAR public key must start with ed25519:")
	}
	raw, err := types.Base58Decode(rest)
	if err != nil {
		return pk, err
	}
	if len(raw) != 32 {
		return pk, fmt.Errorf("NEAR public key must be 32 bytes")
	}
	copy(pk[:], raw)
	return pk, nil
}

// Action is one transaction action. Exactly one variant is set.
type Action struct {
	Transfer     *Transfer
	FunctionCall *FunctionCall
}

type Transfer struct {
	Deposit *big.Int
}

type FunctionCall struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    *big.Int
}

func (a Action) encode(e *Encoder) {
	switch {
	case a.Transfer != nil:
		e.U8(actionTransfer)
		e.U128(a.Transfer.Deposit)
	case a.FunctionCall != nil:
		e.U8(actionFunctionCall)
		e.Str(a.FunctionCall.MethodName)
		e.Blob(a.FunctionCall.Args)
		e.U64(a.FunctionCall.Gas)
		e.U128(a.FunctionCall.Deposit)
	default:
		e.fail(fmt.Errorf("near: empty action"))
	}
}

func decodeAction(d *Decoder) (Action, error) {
	switch tag := d.U8(); tag {
	case actionTransfer:
		return Action{Transfer: &Transfer{Deposit: d.U128()}}, d.Err()
	case actionFunctionCall:
		fc := &FunctionCall{MethodName: d.Str(), Args: d.Blob(), Gas: d.U64(), Deposit: d.U128()}
		return Action{FunctionCall: fc}, d.Err()
	default:
		return Action{}, fmt.Errorf("near: unsupported action tag %d", tag)
	}
}

// Transaction is an unsigned NEAR transaction with an ed25519 signer key.
type Transaction struct {
	SignerID   string
	PublicKey  [32]byte
	Nonce      uint64
	ReceiverID string
	BlockHash  [32]byte
	Actions    []Action
}

// Serialize returns the Borsh encoding.
func (t *Transaction) Serialize() ([]byte, error) {
	e := &Encoder{}
	t.encode(e)
	return e.Bytes()
}

func (t *Transaction) encode(e *Encoder) {
	e.Str(t.SignerID)
	e.U8(keyTypeEd25519)
	e.Fixed(t.PublicKey[:])
	e.U64(t.Nonce)
	e.Str(t.ReceiverID)
	e.Fixed(t.BlockHash[:])
	e.U32(uint32(len(t.Actions)))
	for _, a := range t.Actions {
		a.encode(e)
	}
}

// Hash is the signing digest: sha256 of the Borsh bytes.
func (t *Transaction) Hash() (types.Hash, error) {
	raw, err := t.Serialize()
	if err != nil {
		return types.Hash{}, err
	}
	return sha256.Sum256(raw), nil
}

// SignedTransaction appends an ed25519 signature to a transaction.
type SignedTransaction struct {
	Transaction Transaction
	Signature   [64]byte
}

func (s *SignedTransaction) Serialize() ([]byte, error) {
	e := &Encoder{}
	s.Transaction.encode(e)
	e.U8(keyTypeEd25519)
	e.Fixed(s.Signature[:])
	return e.Bytes()
}

// Base64 is the broadcast_tx_commit parameter form.
func (s *SignedTransaction) Base64() (string, error) {
	raw, err := s.Serialize()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// ParseSignedTransaction decodes the Borsh form produced by Serialize.
func ParseSignedTransaction(b []byte) (*SignedTransaction, error) {
	d := NewDecoder(b)
	var s SignedTransaction
	t := &s.Transaction
	t.SignerID = d.Str()
	if kt := d.U8(); kt != keyTypeEd25519 && d.Err() == nil {
		return nil, fmt.Errorf("near: unsupported key type %d", kt)
	}
	copy(t.PublicKey[:], d.Fixed(32))
	t.Nonce = d.U64()
	t.ReceiverID = d.Str()
	copy(t.BlockHash[:], d.Fixed(32))
	n := d.U32()
	if d.Err() != nil {
		return nil, d.Err()
	}
	if int(n) > d.Remaining() {
		return nil, ErrBorshTruncated
	}
	for range n {
		a, err := decodeAction(d)
		if err != nil {
			return nil, err
		}
		t.Actions = append(t.Actions, a)
	}
	if kt := d.U8(); kt != keyTypeEd25519 && d.Err() == nil {
		return nil, fmt.Errorf("near: unsupported signature type %d", kt)
	}
	copy(s.Signature[:], d.Fixed(64))
	if d.Err() != nil {
		return nil, d.Err()
	}
	if d.Remaining() != 0 {
		return nil, fmt.Errorf("near: trailing bytes after signed transaction")
	}
	return &s, nil
}
