package evm

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
)

// Token contract function signatures.
const (
	SigTransfer  = "transfer(address,uint256)"
	SigBalanceOf = "balanceOf(address)"
	SigDecimals  = "decimals()"
	SigSymbol    = "symbol()"
	SigName      = "name()"
)

// ErrEmptyReturn is returned when a call returned no data.
var ErrEmptyReturn = errors.New("abi: empty return data")

// Selector returns the first four bytes of keccak256(signature).
func Selector(signature string) [4]byte {
	h := crypto.Keccak256([]byte(signature))
	var sel [4]byte
	copy(sel[:], h[:4])
	return sel
}

// WordAddress left-pads a 20-byte address to a 32-byte ABI word.
func WordAddress(addr [20]byte) []byte {
	word := make([]byte, 32)
	copy(word[12:], addr[:])
	return word
}

// WordUint left-pads v to a 32-byte ABI word.
func WordUint(v *big.Int) ([]byte, error) {
	if v.Sign() < 0 || v.BitLen() > 256 {
		return nil, fmt.Errorf("token amount is too large")
	}
	word := make([]byte, 32)
	v.FillBytes(word)
	return word, nil
}

// EncodeCall concatenates the selector of signature with the argument words.
func EncodeCall(signature string, words ...[]byte) []byte {
	sel := Selector(signature)
	out := make([]byte, 0, 4+32*len(words))
	out = append(out, sel[:]...)
	for _, w := range words {
		out = append(out, w...)
	}
	return out
}

// TransferArgs encodes the (address,uint256) arguments of transfer without
// the selector.
func TransferArgs(to [20]byte, amount *big.Int) ([]byte, error) {
	amountWord, err := WordUint(amount)
	if err != nil {
		return nil, err
	}
	return append(WordAddress(to), amountWord...), nil
}

// EncodeTransfer builds transfer(address,uint256) calldata.
func EncodeTransfer(to [20]byte, amount *big.Int) ([]byte, error) {
	args, err := TransferArgs(to, amount)
	if err != nil {
		return nil, err
	}
	return EncodeCall(SigTransfer, args), nil
}

// EncodeBalanceOf builds balanceOf(address) calldata.
func EncodeBalanceOf(owner [20]byte) []byte {
	return EncodeCall(SigBalanceOf, WordAddress(owner))
}

// DecodeUint reads a big-endian unsigned return value.
func DecodeUint(ret []byte) (*big.Int, error) {
	if len(ret) == 0 {
		return nil, ErrEmptyReturn
	}
	if len(ret) > 32 {
		ret = ret[:32]
	}
	return new(big.Int).SetBytes(ret), nil
}

// DecodeDecimals reads a uint8 decimals() return value.
func DecodeDecimals(ret []byte) (uint8, error) {
	v, err := DecodeUint(ret)
	if err != nil {
		return 0, fmt.Errorf("decimals() returned empty data")
	}
	if !v.IsUint64() || v.Uint64() > 255 {
		return 0, fmt.Errorf("decimals() value out of range")
	}
	return uint8(v.Uint64()), nil
}

// DecodeString decodes a string-returning call. Exactly 32 bytes are read
// as a right-null-padded bytes32; longer data as an ABI dynamic string.
func DecodeString(ret []byte) (string, error) {
	if len(ret) == 0 {
		return "", ErrEmptyReturn
	}
	if len(ret) == 32 {
		if i := bytes.IndexByte(ret, 0); i >= 0 {
			ret = ret[:i]
		}
		return utf8String(ret)
	}
	if len(ret) < 96 {
		return "", fmt.Errorf("abi: unsupported string encoding of %d bytes", len(ret))
	}
	offset, err := wordToInt(ret[:32])
	if err != nil {
		return "", err
	}
	if offset+32 > len(ret) {
		return "", fmt.Errorf("abi: string offset out of range")
	}
	length, err := wordToInt(ret[offset : offset+32])
	if err != nil {
		return "", err
	}
	start := offset + 32
	if start+length > len(ret) {
		return "", fmt.Errorf("abi: string length out of range")
	}
	return utf8String(ret[start : start+length])
}

func utf8String(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("abi: string is not utf8")
	}
	return strings.TrimSpace(string(b)), nil
}

func wordToInt(word []byte) (int, error) {
	for _, c := range word[:24] {
		if c != 0 {
			return 0, fmt.Errorf("abi: value too large")
		}
	}
	var n uint64
	for _, c := range word[24:32] {
		n = n<<8 | uint64(c)
	}
	if n > 1<<31 {
		return 0, fmt.Errorf("abi: value too large")
	}
	return int(n), nil
}
