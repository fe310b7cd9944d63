package btc

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

func testUTXO(seed byte, vout uint32, value uint64) UTXO {
	var txid types.Hash
	for i := range txid {
		txid[i] = seed + byte(i)
	}
	return UTXO{Outpoint: Outpoint{TxID: txid, Vout: vout}, Value: value}
}

func testProgram(seed byte) [32]byte {
	var p [32]byte
	for i := range p {
		p[i] = seed
	}
	return p
}

func encodeV1(program [32]byte) (string, error) {
	return types.EncodeSegwitAddress(MainnetHRP, 1, program[:])
}

// toWire mirrors tx into btcd's wire.MsgTx.
func toWire(tx *Tx) *wire.MsgTx {
	msg := wire.NewMsgTx(int32(tx.Version))
	for i, in := range tx.Inputs {
		txIn := wire.NewTxIn(&wire.OutPoint{
			Hash:  chainhash.Hash(in.Prev.Outpoint.TxID),
			Index: in.Prev.Outpoint.Vout,
		}, nil, nil)
		txIn.Sequence = in.Sequence
		if i < len(tx.Witness) {
			txIn.Witness = tx.Witness[i]
		}
		msg.AddTxIn(txIn)
	}
	for _, out := range tx.Outputs {
		msg.AddTxOut(wire.NewTxOut(int64(out.Value), out.ScriptPubKey))
	}
	msg.LockTime = tx.LockTime
	return msg
}

func sampleTx() (*Tx, []byte) {
	source := P2TRScript(testProgram(0x11))
	dest := P2TRScript(testProgram(0x22))
	tx := NewTx(
		[]UTXO{testUTXO(1, 0, 10_000), testUTXO(50, 3, 25_000)},
		[]TxOut{{Value: 30_000, ScriptPubKey: dest}, {Value: 4_000, ScriptPubKey: source}},
	)
	return tx, source
}

func TestSerialize_MatchesWire(t *testing.T) {
	tx, _ := sampleTx()
	for i := range tx.Inputs {
		tx.Witness[i] = [][]byte{bytes.Repeat([]byte{byte(i + 1)}, 64)}
	}
	ref := toWire(tx)

	var want bytes.Buffer
	if err := ref.Serialize(&want); err != nil {
		t.Fatalf("wire Serialize: %v", err)
	}
	if got := tx.Serialize(true); !bytes.Equal(got, want.Bytes()) {
		t.Fatalf("witness serialization mismatch\n got %x\nwant %x", got, want.Bytes())
	}

	var stripped bytes.Buffer
	if err := ref.SerializeNoWitness(&stripped); err != nil {
		t.Fatalf("wire SerializeNoWitness: %v", err)
	}
	if got := tx.Serialize(false); !bytes.Equal(got, stripped.Bytes()) {
		t.Fatalf("legacy serialization mismatch")
	}

	if tx.TxID() != ref.TxHash().String() {
		t.Errorf("TxID = %s, wire = %s", tx.TxID(), ref.TxHash())
	}

	var parsed wire.MsgTx
	if err := parsed.Deserialize(bytes.NewReader(tx.Serialize(true))); err != nil {
		t.Fatalf("wire Deserialize: %v", err)
	}
	if parsed.TxHash().String() != tx.TxID() {
		t.Errorf("deserialized txid = %s", parsed.TxHash())
	}
}

func TestKeySpendSighash_MatchesTxscript(t *testing.T) {
	tx, source := sampleTx()
	ref := toWire(tx)

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range tx.Inputs {
		fetcher.AddPrevOut(ref.TxIn[i].PreviousOutPoint, wire.NewTxOut(int64(in.Prev.Value), source))
	}
	hashes := txscript.NewTxSigHashes(ref, fetcher)

	for i := range tx.Inputs {
		got, err := KeySpendSighash(tx, i, source)
		if err != nil {
			t.Fatalf("KeySpendSighash(%d): %v", i, err)
		}
		want, err := txscript.CalcTaprootSignatureHash(hashes, txscript.SigHashDefault, ref, i, fetcher)
		if err != nil {
			t.Fatalf("CalcTaprootSignatureHash(%d): %v", i, err)
		}
		if !bytes.Equal(got[:], want) {
			t.Errorf("input %d: sighash = %s, want %x", i, got, want)
		}
	}

	if _, err := KeySpendSighash(tx, 2, source); err == nil {
		t.Error("out-of-range input index should fail")
	}
}

func TestKeySpendSighash_Deterministic(t *testing.T) {
	tx, source := sampleTx()
	a, _ := KeySpendSighash(tx, 0, source)
	b, _ := KeySpendSighash(tx, 0, source)
	if a != b {
		t.Error("sighash is not deterministic")
	}
	c, _ := KeySpendSighash(tx, 1, source)
	if a == c {
		t.Error("different inputs should produce different sighashes")
	}
}

func TestCompactSize(t *testing.T) {
	tests := []struct {
		n    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{252, []byte{0xfc}},
		{253, []byte{0xfd, 0xfd, 0x00}},
		{0xffff, []byte{0xfd, 0xff, 0xff}},
		{0x10000, []byte{0xfe, 0x00, 0x00, 0x01, 0x00}},
		{0x100000000, []byte{0xff, 0, 0, 0, 0, 1, 0, 0, 0}},
	}
	for _, tt := range tests {
		got := AppendCompactSize(nil, tt.n)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("AppendCompactSize(%d) = %x, want %x", tt.n, got, tt.want)
		}
		if CompactSizeLen(tt.n) != len(tt.want) {
			t.Errorf("CompactSizeLen(%d) = %d", tt.n, CompactSizeLen(tt.n))
		}
	}
}

func TestParseTxID(t *testing.T) {
	display := "0100000000000000000000000000000000000000000000000000000000000002"
	h, err := ParseTxID(display)
	if err != nil {
		t.Fatalf("ParseTxID: %v", err)
	}
	if h[0] != 0x02 || h[31] != 0x01 {
		t.Errorf("internal order = %s", h)
	}
	if _, err := ParseTxID("abcd"); err == nil {
		t.Error("short txid should fail")
	}
}

func TestTxID_IgnoresWitness(t *testing.T) {
	tx, _ := sampleTx()
	before := tx.TxID()
	tx.Witness[0] = [][]byte{bytes.Repeat([]byte{0xee}, 64)}
	if tx.TxID() != before {
		t.Error("txid must not depend on witness data")
	}
	if crypto.DoubleSha256(tx.Serialize(true)).Reversed().String() == before {
		t.Error("wtxid should differ from txid when witness is present")
	}
}
