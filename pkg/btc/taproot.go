// Package btc builds Bitcoin Taproot key-path spends: P2TR addresses,
// coin selection, BIP341 sighashes and segwit wire serialization.
package btc

import (
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// MainnetHRP is the bech32 human-readable part of mainnet addresses.
const MainnetHRP = "bc"

// TaprootOutputKey tweaks a BIP340 x-only internal key with no script tree:
// Q = P + TaggedHash("TapTweak", x(P))·G. It returns x(Q), the witness program.
func TaprootOutputKey(internalKey []byte) ([32]byte, error) {
	var program [32]byte
	xonly, err := crypto.XOnlyPubKey(internalKey)
	if err != nil {
		return program, fmt.Errorf("invalid taproot internal key: %w", err)
	}
	pub, err := secp256k1.ParsePubKey(append([]byte{0x02}, xonly...))
	if err != nil {
		return program, fmt.Errorf("invalid taproot internal key: %w", err)
	}

	tweak := crypto.TaggedHash("TapTweak", xonly)
	var t secp256k1.ModNScalar
	if overflow := t.SetBytes((*[32]byte)(&tweak)); overflow != 0 {
		return program, fmt.Errorf("taproot tweak exceeds curve order")
	}

	var p, tG, q secp256k1.JacobianPoint
	pub.AsJacobian(&p)
	secp256k1.ScalarBaseMultNonConst(&t, &tG)
	secp256k1.AddNonConst(&p, &tG, &q)
	if q.Z.IsZero() {
		return program, fmt.Errorf("taproot output key is the point at infinity")
	}
	q.ToAffine()
	program = *q.X.Bytes()
	return program, nil
}

// TaprootAddress derives the bech32m P2TR address for an internal key.
func TaprootAddress(hrp string, internalKey []byte) (string, [32]byte, error) {
	program, err := TaprootOutputKey(internalKey)
	if err != nil {
		return "", program, err
	}
	addr, err := types.EncodeSegwitAddress(hrp, 1, program[:])
	if err != nil {
		return "", program, err
	}
	return addr, program, nil
}

// P2TRScript returns OP_1 <32-byte program>.
func P2TRScript(program [32]byte) []byte {
	script := make([]byte, 0, 34)
	script = append(script, 0x51, 0x20)
	return append(script, program[:]...)
}

// ScriptFromAddress returns the witness scriptPubKey for a segwit address
// of any version on the given network.
func ScriptFromAddress(hrp, addr string) ([]byte, error) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return nil, fmt.Errorf("BTC address is required")
	}
	version, program, err := types.DecodeSegwitAddress(hrp, addr)
	if err != nil {
		return nil, err
	}
	op := byte(0x00)
	if version > 0 {
		op = 0x50 + version
	}
	script := make([]byte, 0, 2+len(program))
	script = append(script, op, byte(len(program)))
	return append(script, program...), nil
}
