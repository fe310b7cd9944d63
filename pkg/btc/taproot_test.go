package btc

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

func testInternalKey(seed byte) *btcec.PublicKey {
	_, pub := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{seed}, 32))
	return pub
}

func TestTaprootOutputKey_MatchesTxscript(t *testing.T) {
	for seed := byte(1); seed < 40; seed++ {
		pub := testInternalKey(seed)
		got, err := TaprootOutputKey(pub.SerializeCompressed())
		if err != nil {
			t.Fatalf("seed %d: TaprootOutputKey: %v", seed, err)
		}
		want := schnorr.SerializePubKey(txscript.ComputeTaprootKeyNoScript(pub))
		if !bytes.Equal(got[:], want) {
			t.Fatalf("seed %d: output key = %x, want %x", seed, got, want)
		}

		// The x-only form gives the same result.
		fromX, err := TaprootOutputKey(schnorr.SerializePubKey(pub))
		if err != nil || fromX != got {
			t.Fatalf("seed %d: x-only input = %x, %v", seed, fromX, err)
		}
	}
}

func TestTaprootAddress_MatchesBtcutil(t *testing.T) {
	pub := testInternalKey(9)
	addr, program, err := TaprootAddress(MainnetHRP, pub.SerializeCompressed())
	if err != nil {
		t.Fatalf("TaprootAddress: %v", err)
	}
	ref, err := btcutil.NewAddressTaproot(program[:], &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewAddressTaproot: %v", err)
	}
	if addr != ref.EncodeAddress() {
		t.Errorf("address = %s, btcutil = %s", addr, ref.EncodeAddress())
	}
	if addr[:4] != "bc1p" {
		t.Errorf("address prefix = %s", addr[:4])
	}
}

func TestTaprootOutputKey_InvalidKey(t *testing.T) {
	if _, err := TaprootOutputKey(make([]byte, 32)); err == nil {
		t.Error("zero x coordinate should be rejected")
	}
	if _, err := TaprootOutputKey([]byte{1, 2, 3}); err == nil {
		t.Error("short key should be rejected")
	}
}

func TestScriptFromAddress(t *testing.T) {
	var program [32]byte
	for i := range program {
		program[i] = 7
	}
	addr, err := encodeV1(program)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	script, err := ScriptFromAddress(MainnetHRP, addr)
	if err != nil {
		t.Fatalf("ScriptFromAddress: %v", err)
	}
	if !bytes.Equal(script, P2TRScript(program)) {
		t.Errorf("script = %x", script)
	}
	if len(script) != 34 || script[0] != 0x51 || script[1] != 0x20 {
		t.Errorf("bad P2TR script %x", script)
	}

	v0, err := ScriptFromAddress(MainnetHRP, "BC1QW508D6QEJXTDG4Y5R3ZARVARY0C5XW7KV8F3T4")
	if err != nil {
		t.Fatalf("ScriptFromAddress(v0): %v", err)
	}
	if v0[0] != 0x00 || v0[1] != 20 {
		t.Errorf("v0 script = %x", v0)
	}

	if _, err := ScriptFromAddress(MainnetHRP, "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx"); err == nil {
		t.Error("testnet address should be rejected on mainnet")
	}
	if _, err := ScriptFromAddress(MainnetHRP, "  "); err == nil {
		t.Error("empty address should be rejected")
	}
}
