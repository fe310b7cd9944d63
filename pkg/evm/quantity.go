package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// ParseQuantity decodes a JSON-RPC hex quantity ("0x1a").
func ParseQuantity(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	digits, ok := cutHexPrefix(s)
	if !ok {
		return nil, fmt.Errorf("rpc result is not a hex quantity")
	}
	if digits == "" {
		return nil, fmt.Errorf("rpc result hex quantity is empty")
	}
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("rpc result hex quantity parse failed")
	}
	return v, nil
}

// ParseData decodes JSON-RPC hex data; "0x" is empty.
func ParseData(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if _, ok := cutHexPrefix(s); !ok {
		return nil, fmt.Errorf("rpc result is not hex data")
	}
	b, err := types.DecodeHex(s)
	if err != nil {
		return nil, fmt.Errorf("rpc hex data: %w", err)
	}
	return b, nil
}

// EncodeQuantity renders v as a minimal JSON-RPC hex quantity.
func EncodeQuantity(v *big.Int) string {
	if v == nil || v.Sign() == 0 {
		return "0x0"
	}
	return "0x" + v.Text(16)
}

func cutHexPrefix(s string) (string, bool) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:], true
	}
	return "", false
}
