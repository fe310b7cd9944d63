package tron

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// CheckTxID verifies that a node-built transaction id is sha256 of its
// raw_data bytes and returns the 32-byte digest to sign.
func CheckTxID(txID, rawDataHex string) ([]byte, error) {
	id, err := types.DecodeHex(txID)
	if err != nil {
		return nil, err
	}
	if len(id) != 32 {
		return nil, fmt.Errorf("TRON txID must be 32 bytes")
	}
	raw, err := types.DecodeHex(rawDataHex)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("TRON transaction is missing raw_data_hex")
	}
	if sum := crypto.Sha256(raw); !bytes.Equal(sum[:], id) {
		return nil, fmt.Errorf("TRON txID does not match raw_data_hex")
	}
	return id, nil
}

// SignatureHex encodes r||s||recid for a signature over txID by pubKey.
func SignatureHex(txID, sig, pubKey []byte) (string, error) {
	id, lowS, err := crypto.RecoveryID(txID, sig, pubKey)
	if err != nil {
		return "", err
	}
	return types.EncodeHex(append(lowS, id)), nil
}

// DecodeMessage turns the hex-encoded error text TRON nodes return into
// readable text, passing anything else through unchanged.
func DecodeMessage(s string) string {
	raw, err := types.DecodeHex(s)
	if err != nil || len(raw) == 0 || !utf8.Valid(raw) {
		return s
	}
	return string(raw)
}
