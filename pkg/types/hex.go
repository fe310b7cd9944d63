package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// DecodeHex decodes hex text with an optional 0x/0X prefix.
// Surrounding whitespace is ignored; an empty payload decodes to nil.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, nil
	}
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hex length must be even")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex character")
	}
	return b, nil
}

// EncodeHex returns lowercase hex without prefix.
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

// EncodeHex0x returns lowercase hex with a 0x prefix.
func EncodeHex0x(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
