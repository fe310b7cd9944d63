package evm

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
)

func TestRLPEncodeBytes_Boundaries(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"single low byte", []byte{0x7f}},
		{"single high byte", []byte{0x80}},
		{"55 bytes", bytes.Repeat([]byte{0xaa}, 55)},
		{"56 bytes", bytes.Repeat([]byte{0xbb}, 56)},
		{"1024 bytes", bytes.Repeat([]byte{0xcc}, 1024)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want, err := rlp.EncodeToBytes(tt.in)
			if err != nil {
				t.Fatalf("rlp.EncodeToBytes: %v", err)
			}
			if got := RLPEncodeBytes(tt.in); !bytes.Equal(got, want) {
				t.Errorf("RLPEncodeBytes = %x, want %x", got, want)
			}
		})
	}
}

func TestRLPEncodeUint(t *testing.T) {
	for _, v := range []uint64{0, 1, 0x7f, 0x80, 0xff, 0x100, 1 << 40} {
		want, err := rlp.EncodeToBytes(v)
		if err != nil {
			t.Fatalf("rlp.EncodeToBytes: %v", err)
		}
		if got := RLPEncodeUint64(v); !bytes.Equal(got, want) {
			t.Errorf("RLPEncodeUint64(%d) = %x, want %x", v, got, want)
		}
	}
	if got := RLPEncodeUint(nil); !bytes.Equal(got, []byte{0x80}) {
		t.Errorf("nil = %x, want 80", got)
	}
}

func TestRLPEncodeList_MatchesGethNested(t *testing.T) {
	type inner struct {
		A []byte
		B uint64
	}
	type outer struct {
		X     []byte
		Items []inner
		Tail  []byte
	}
	for _, n := range []int{0, 1, 10, 50} {
		v := outer{X: bytes.Repeat([]byte{1}, n), Tail: []byte("tail")}
		var items [][]byte
		for i := 0; i < n%7+1; i++ {
			in := inner{A: bytes.Repeat([]byte{byte(i)}, i*9), B: uint64(i * 1000)}
			v.Items = append(v.Items, in)
			items = append(items, RLPEncodeList(RLPEncodeBytes(in.A), RLPEncodeUint64(in.B)))
		}
		want, err := rlp.EncodeToBytes(v)
		if err != nil {
			t.Fatalf("rlp.EncodeToBytes: %v", err)
		}
		got := RLPEncodeList(RLPEncodeBytes(v.X), RLPEncodeList(items...), RLPEncodeBytes(v.Tail))
		if !bytes.Equal(got, want) {
			t.Fatalf("n=%d: list = %x, want %x", n, got, want)
		}
	}
}

func TestRLPDecode_Roundtrip(t *testing.T) {
	values := []RLPValue{
		{Bytes: []byte{}},
		{Bytes: []byte{0x05}},
		{Bytes: bytes.Repeat([]byte{0x99}, 55)},
		{Bytes: bytes.Repeat([]byte{0x99}, 56)},
		{IsList: true, List: []RLPValue{}},
		{IsList: true, List: []RLPValue{
			{Bytes: []byte("cat")},
			{IsList: true, List: []RLPValue{{Bytes: bytes.Repeat([]byte{1}, 60)}}},
			{Bytes: []byte("dog")},
		}},
	}
	for i, v := range values {
		enc := v.Encode()
		got, err := RLPDecode(enc)
		if err != nil {
			t.Fatalf("value %d: RLPDecode: %v", i, err)
		}
		if !bytes.Equal(got.Encode(), enc) {
			t.Errorf("value %d: roundtrip mismatch", i)
		}
		if got.IsList != v.IsList || len(got.List) != len(v.List) || !bytes.Equal(got.Bytes, v.Bytes) {
			t.Errorf("value %d: decoded structure differs", i)
		}
	}
}

func TestRLPDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"truncated string", []byte{0x83, 'a'}},
		{"truncated list", []byte{0xc3, 0x01}},
		{"trailing", []byte{0x01, 0x02}},
		{"non-canonical single byte", []byte{0x81, 0x05}},
		{"non-canonical long form", append([]byte{0xb8, 0x05}, bytes.Repeat([]byte{1}, 5)...)},
	}
	for _, tt := range tests {
		if _, err := RLPDecode(tt.in); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestQuantity(t *testing.T) {
	v, err := ParseQuantity("0x1bc16d674ec80000")
	if err != nil {
		t.Fatalf("ParseQuantity: %v", err)
	}
	if v.String() != "2000000000000000000" {
		t.Errorf("ParseQuantity = %s", v)
	}
	if EncodeQuantity(v) != "0x1bc16d674ec80000" {
		t.Errorf("EncodeQuantity = %s", EncodeQuantity(v))
	}
	if EncodeQuantity(big.NewInt(0)) != "0x0" {
		t.Error("zero quantity should be 0x0")
	}
	for _, bad := range []string{"12", "0x", "0xzz"} {
		if _, err := ParseQuantity(bad); err == nil {
			t.Errorf("ParseQuantity(%q) should fail", bad)
		}
	}
	if b, err := ParseData("0x"); err != nil || len(b) != 0 {
		t.Errorf("ParseData(0x) = %x, %v", b, err)
	}
	if _, err := ParseData("abcd"); err == nil {
		t.Error("ParseData without prefix should fail")
	}
}
