// Package evm encodes Ethereum-compatible transactions: RLP, legacy and
// EIP-1559 envelopes, ABI calls and JSON-RPC hex quantities.
package evm

import (
	"errors"
	"fmt"
	"math/big"
)

// RLP decoding errors.
var (
	ErrRLPTruncated = errors.New("rlp: input truncated")
	ErrRLPTrailing  = errors.New("rlp: trailing bytes after value")
	ErrRLPCanonical = errors.New("rlp: non-canonical encoding")
)

// RLPEncodeBytes encodes a byte string.
func RLPEncodeBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return []byte{b[0]}
	}
	return append(rlpHeader(0x80, len(b)), b...)
}

// RLPEncodeUint encodes an integer as its minimal big-endian bytes; zero
// and nil are the empty string.
func RLPEncodeUint(v *big.Int) []byte {
	if v == nil || v.Sign() == 0 {
		return []byte{0x80}
	}
	return RLPEncodeBytes(v.Bytes())
}

// RLPEncodeUint64 is RLPEncodeUint for uint64.
func RLPEncodeUint64(v uint64) []byte {
	return RLPEncodeUint(new(big.Int).SetUint64(v))
}

// RLPEncodeList wraps already-encoded items in a list header.
func RLPEncodeList(items ...[]byte) []byte {
	size := 0
	for _, it := range items {
		size += len(it)
	}
	out := rlpHeader(0xc0, size)
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func rlpHeader(base byte, size int) []byte {
	if size <= 55 {
		return []byte{base + byte(size)}
	}
	lenBytes := big.NewInt(int64(size)).Bytes()
	return append([]byte{base + 55 + byte(len(lenBytes))}, lenBytes...)
}

// RLPValue is a decoded RLP item: a byte string or a list.
type RLPValue struct {
	IsList bool
	Bytes  []byte
	List   []RLPValue
}

// Encode re-encodes the value.
func (v RLPValue) Encode() []byte {
	if !v.IsList {
		return RLPEncodeBytes(v.Bytes)
	}
	items := make([][]byte, len(v.List))
	for i, it := range v.List {
		items[i] = it.Encode()
	}
	return RLPEncodeList(items...)
}

// RLPDecode decodes exactly one value from b.
func RLPDecode(b []byte) (RLPValue, error) {
	v, rest, err := rlpDecodeOne(b)
	if err != nil {
		return RLPValue{}, err
	}
	if len(rest) != 0 {
		return RLPValue{}, ErrRLPTrailing
	}
	return v, nil
}

func rlpDecodeOne(b []byte) (RLPValue, []byte, error) {
	if len(b) == 0 {
		return RLPValue{}, nil, ErrRLPTruncated
	}
	prefix := b[0]
	switch {
	case prefix < 0x80:
		return RLPValue{Bytes: []byte{prefix}}, b[1:], nil
	case prefix <= 0xb7:
		n := int(prefix - 0x80)
		if len(b) < 1+n {
			return RLPValue{}, nil, ErrRLPTruncated
		}
		if n == 1 && b[1] < 0x80 {
			return RLPValue{}, nil, ErrRLPCanonical
		}
		return RLPValue{Bytes: copyBytes(b[1 : 1+n])}, b[1+n:], nil
	case prefix <= 0xbf:
		n, off, err := rlpLongLen(b, prefix-0xb7)
		if err != nil {
			return RLPValue{}, nil, err
		}
		return RLPValue{Bytes: copyBytes(b[off : off+n])}, b[off+n:], nil
	case prefix <= 0xf7:
		n := int(prefix - 0xc0)
		if len(b) < 1+n {
			return RLPValue{}, nil, ErrRLPTruncated
		}
		list, err := rlpDecodeList(b[1 : 1+n])
		return RLPValue{IsList: true, List: list}, b[1+n:], err
	default:
		n, off, err := rlpLongLen(b, prefix-0xf7)
		if err != nil {
			return RLPValue{}, nil, err
		}
		list, err := rlpDecodeList(b[off : off+n])
		return RLPValue{IsList: true, List: list}, b[off+n:], err
	}
}

func rlpLongLen(b []byte, lenOfLen byte) (int, int, error) {
	off := 1 + int(lenOfLen)
	if len(b) < off {
		return 0, 0, ErrRLPTruncated
	}
	if b[1] == 0 {
		return 0, 0, ErrRLPCanonical
	}
	if lenOfLen > 4 {
		return 0, 0, fmt.Errorf("rlp: length of %d bytes is too large", lenOfLen)
	}
	n := 0
	for _, c := range b[1:off] {
		n = n<<8 | int(c)
	}
	if n <= 55 {
		return 0, 0, ErrRLPCanonical
	}
	if len(b) < off+n {
		return 0, 0, ErrRLPTruncated
	}
	return n, off, nil
}

func rlpDecodeList(payload []byte) ([]RLPValue, error) {
	list := []RLPValue{}
	for len(payload) > 0 {
		v, rest, err := rlpDecodeOne(payload)
		if err != nil {
			return nil, err
		}
		list = append(list, v)
		payload = rest
	}
	return list, nil
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
