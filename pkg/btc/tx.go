package btc

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Transaction constants.
const (
	Decimals              = 8
	DefaultFeeRate uint64 = 5   // sat/vB
	MinChange      uint64 = 330 // P2TR dust threshold
	SighashDefault byte   = 0x00
	SequenceFinal  uint32 = 0xffffffff
	TxVersion      uint32 = 2
	TxLockTime     uint32 = 0
)

// Outpoint references a previous output. TxID is in internal byte order.
type Outpoint struct {
	TxID types.Hash
	Vout uint32
}

// ParseTxID decodes a txid in display (RPC) order into internal order.
func ParseTxID(s string) (types.Hash, error) {
	h, err := types.HexToHash(s)
	if err != nil {
		return types.Hash{}, fmt.Errorf("invalid txid: %w", err)
	}
	return h.Reversed(), nil
}

// UTXO is a spendable output of the wallet address.
type UTXO struct {
	Outpoint Outpoint
	Value    uint64
	Height   uint32 // 0 when unconfirmed
}

// TxIn spends a UTXO with an empty scriptSig.
type TxIn struct {
	Prev     UTXO
	Sequence uint32
}

// TxOut pays Value to ScriptPubKey.
type TxOut struct {
	Value        uint64
	ScriptPubKey []byte
}

// Tx is a segwit transaction. Witness[i] is the stack of input i.
type Tx struct {
	Version  uint32
	Inputs   []TxIn
	Outputs  []TxOut
	Witness  [][][]byte
	LockTime uint32
}

// NewTx returns a version 2 transaction with final sequences.
func NewTx(utxos []UTXO, outputs []TxOut) *Tx {
	tx := &Tx{Version: TxVersion, LockTime: TxLockTime, Outputs: outputs}
	for _, u := range utxos {
		tx.Inputs = append(tx.Inputs, TxIn{Prev: u, Sequence: SequenceFinal})
	}
	tx.Witness = make([][][]byte, len(tx.Inputs))
	return tx
}

// Serialize encodes the transaction. With witness=true the BIP144 marker,
// flag and per-input witness stacks are included.
func (tx *Tx) Serialize(witness bool) []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, tx.Version)
	if witness {
		buf = append(buf, 0x00, 0x01)
	}
	buf = AppendCompactSize(buf, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = appendOutpoint(buf, in.Prev.Outpoint)
		buf = append(buf, 0x00) // empty scriptSig
		buf = binary.LittleEndian.AppendUint32(buf, in.Sequence)
	}
	buf = AppendCompactSize(buf, uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = appendOutput(buf, out)
	}
	if witness {
		for i := range tx.Inputs {
			var stack [][]byte
			if i < len(tx.Witness) {
				stack = tx.Witness[i]
			}
			buf = AppendCompactSize(buf, uint64(len(stack)))
			for _, item := range stack {
				buf = AppendCompactSize(buf, uint64(len(item)))
				buf = append(buf, item...)
			}
		}
	}
	return binary.LittleEndian.AppendUint32(buf, tx.LockTime)
}

// TxID is double-SHA256 of the non-witness serialization in display order.
func (tx *Tx) TxID() string {
	return crypto.DoubleSha256(tx.Serialize(false)).Reversed().String()
}

// AppendCompactSize appends a Bitcoin varint (1, 3, 5 or 9 bytes).
func AppendCompactSize(buf []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(buf, byte(n))
	case n <= 0xffff:
		return binary.LittleEndian.AppendUint16(append(buf, 0xfd), uint16(n))
	case n <= 0xffffffff:
		return binary.LittleEndian.AppendUint32(append(buf, 0xfe), uint32(n))
	default:
		return binary.LittleEndian.AppendUint64(append(buf, 0xff), n)
	}
}

// CompactSizeLen is the encoded length of n.
func CompactSizeLen(n uint64) int {
	switch {
	case n < 0xfd:
		return 1
	case n <= 0xffff:
		return 3
	case n <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

func appendOutpoint(buf []byte, op Outpoint) []byte {
	buf = append(buf, op.TxID[:]...)
	return binary.LittleEndian.AppendUint32(buf, op.Vout)
}

func appendOutput(buf []byte, out TxOut) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, out.Value)
	buf = AppendCompactSize(buf, uint64(len(out.ScriptPubKey)))
	return append(buf, out.ScriptPubKey...)
}
