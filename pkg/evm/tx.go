package evm

import (
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Gas limits for transfers.
const (
	NativeGasLimit uint64 = 21_000
	TokenGasLimit  uint64 = 120_000
	NativeDecimals        = 18
)

// DynamicFeeTxType is the EIP-2718 type byte of EIP-1559 transactions.
const DynamicFeeTxType byte = 0x02

// Tx is an unsigned transfer. GasPrice is set for legacy transactions;
// MaxPriorityFee and MaxFee for EIP-1559 ones.
type Tx struct {
	ChainID        uint64
	Nonce          uint64
	GasPrice       *big.Int
	MaxPriorityFee *big.Int
	MaxFee         *big.Int
	GasLimit       uint64
	To             Address
	Value          *big.Int
	Data           []byte
}

// IsDynamicFee reports whether tx is encoded as EIP-1559.
func (tx *Tx) IsDynamicFee() bool {
	return tx.MaxFee != nil
}

func (tx *Tx) legacyFields() [][]byte {
	return [][]byte{
		RLPEncodeUint64(tx.Nonce),
		RLPEncodeUint(tx.GasPrice),
		RLPEncodeUint64(tx.GasLimit),
		RLPEncodeBytes(tx.To[:]),
		RLPEncodeUint(tx.Value),
		RLPEncodeBytes(tx.Data),
	}
}

func (tx *Tx) dynamicFields() [][]byte {
	return [][]byte{
		RLPEncodeUint64(tx.ChainID),
		RLPEncodeUint64(tx.Nonce),
		RLPEncodeUint(tx.MaxPriorityFee),
		RLPEncodeUint(tx.MaxFee),
		RLPEncodeUint64(tx.GasLimit),
		RLPEncodeBytes(tx.To[:]),
		RLPEncodeUint(tx.Value),
		RLPEncodeBytes(tx.Data),
		RLPEncodeList(), // access list
	}
}

// SigningPayload returns the bytes whose keccak256 is signed:
// EIP-155 [nonce, gasPrice, gas, to, value, data, chainId, 0, 0] for legacy,
// 0x02 || rlp([...9 fields]) for EIP-1559.
func (tx *Tx) SigningPayload() []byte {
	if tx.IsDynamicFee() {
		return append([]byte{DynamicFeeTxType}, RLPEncodeList(tx.dynamicFields()...)...)
	}
	fields := append(tx.legacyFields(), RLPEncodeUint64(tx.ChainID), RLPEncodeUint64(0), RLPEncodeUint64(0))
	return RLPEncodeList(fields...)
}

// SigningHash is keccak256 of SigningPayload.
func (tx *Tx) SigningHash() types.Hash {
	return crypto.Keccak256(tx.SigningPayload())
}

// Signed is a broadcast-ready transaction.
type Signed struct {
	Raw  []byte
	Hash types.Hash
}

// RawHex returns the 0x-prefixed raw transaction for eth_sendRawTransaction.
func (s *Signed) RawHex() string {
	return types.EncodeHex0x(s.Raw)
}

// Sign attaches a 64-byte r||s signature. yParity must be 0 or 1.
func (tx *Tx) Sign(yParity byte, sig []byte) (*Signed, error) {
	if len(sig) != 64 {
		return nil, fmt.Errorf("ecdsa signature must be 64 bytes, got %d", len(sig))
	}
	if yParity > 1 {
		return nil, fmt.Errorf("y parity must be 0 or 1, got %d", yParity)
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])

	var raw []byte
	if tx.IsDynamicFee() {
		fields := append(tx.dynamicFields(), RLPEncodeUint64(uint64(yParity)), RLPEncodeUint(r), RLPEncodeUint(s))
		raw = append([]byte{DynamicFeeTxType}, RLPEncodeList(fields...)...)
	} else {
		v := new(big.Int).SetUint64(tx.ChainID)
		v.Mul(v, big.NewInt(2))
		v.Add(v, big.NewInt(35+int64(yParity)))
		fields := append(tx.legacyFields(), RLPEncodeUint(v), RLPEncodeUint(r), RLPEncodeUint(s))
		raw = RLPEncodeList(fields...)
	}
	return &Signed{Raw: raw, Hash: crypto.Keccak256(raw)}, nil
}

// SignWithPubKey resolves the recovery id of sig against pubKey and
// attaches it.
func (tx *Tx) SignWithPubKey(sig, pubKey []byte) (*Signed, error) {
	digest := tx.SigningHash()
	id, normalized, err := crypto.RecoveryID(digest[:], sig, pubKey)
	if err != nil {
		return nil, err
	}
	return tx.Sign(id, normalized)
}
