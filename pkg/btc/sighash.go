package btc

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// KeySpendSighash computes the BIP341 key-path signature hash with
// SIGHASH_DEFAULT for input idx. Every input spends prevScript, the
// wallet's own P2TR script.
func KeySpendSighash(tx *Tx, idx int, prevScript []byte) (types.Hash, error) {
	if idx < 0 || idx >= len(tx.Inputs) {
		return types.Hash{}, fmt.Errorf("taproot sighash input index %d out of range", idx)
	}

	var prevouts, amounts, scripts, sequences, outputs []byte
	for _, in := range tx.Inputs {
		prevouts = appendOutpoint(prevouts, in.Prev.Outpoint)
		amounts = binary.LittleEndian.AppendUint64(amounts, in.Prev.Value)
		scripts = AppendCompactSize(scripts, uint64(len(prevScript)))
		scripts = append(scripts, prevScript...)
		sequences = binary.LittleEndian.AppendUint32(sequences, in.Sequence)
	}
	for _, out := range tx.Outputs {
		outputs = appendOutput(outputs, out)
	}

	hashPrevouts := crypto.Sha256(prevouts)
	hashAmounts := crypto.Sha256(amounts)
	hashScripts := crypto.Sha256(scripts)
	hashSequences := crypto.Sha256(sequences)
	hashOutputs := crypto.Sha256(outputs)

	msg := make([]byte, 0, 1+1+4+4+32*5+1+4)
	msg = append(msg, 0x00) // epoch
	msg = append(msg, SighashDefault)
	msg = binary.LittleEndian.AppendUint32(msg, tx.Version)
	msg = binary.LittleEndian.AppendUint32(msg, tx.LockTime)
	msg = append(msg, hashPrevouts[:]...)
	msg = append(msg, hashAmounts[:]...)
	msg = append(msg, hashScripts[:]...)
	msg = append(msg, hashSequences[:]...)
	msg = append(msg, hashOutputs[:]...)
	msg = append(msg, 0x00) // key path, no annex
	msg = binary.LittleEndian.AppendUint32(msg, uint32(idx))

	return crypto.TaggedHash("TapSighash", msg), nil
}
