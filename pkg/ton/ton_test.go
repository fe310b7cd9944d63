package ton

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"
)

func mustCell(t *testing.T, b *Builder) *Cell {
	t.Helper()
	c, err := b.EndCell()
	if err != nil {
		t.Fatalf("EndCell: %v", err)
	}
	return c
}

func TestEmptyCellHash(t *testing.T) {
	c := mustCell(t, BeginCell())
	h := c.Hash()
	want := "96a296d224f285c67bee93c30f8a309157f0daa35dc5b87e410b78630a09cfc7"
	if got := hex.EncodeToString(h[:]); got != want {
		t.Fatalf("empty cell hash = %s, want %s", got, want)
	}
}

func TestBuilderBits(t *testing.T) {
	c := mustCell(t, BeginCell().StoreUint(0b101, 3).StoreUint8(0xff))
	if c.BitLen() != 11 {
		t.Fatalf("bits = %d", c.BitLen())
	}
	want := []bool{true, false, true, true, true, true, true, true, true, true, true}
	for i, w := range want {
		if c.Bit(i) != w {
			t.Fatalf("bit %d = %v", i, c.Bit(i))
		}
	}
	if !bytes.Equal(c.Data(), []byte{0xbf, 0xe0}) {
		t.Fatalf("data = %x", c.Data())
	}
	if !bytes.Equal(c.paddedData(), []byte{0xbf, 0xf0}) {
		t.Fatalf("padded = %x", c.paddedData())
	}
}

func TestBuilderLimits(t *testing.T) {
	b := BeginCell()
	for range 128 {
		b.StoreUint8(1)
	}
	if _, err := b.EndCell(); err == nil {
		t.Fatal("1024 bits should overflow")
	}

	leaf := mustCell(t, BeginCell())
	b = BeginCell()
	for range 5 {
		b.StoreRef(leaf)
	}
	if _, err := b.EndCell(); err == nil {
		t.Fatal("5 refs should fail")
	}

	huge := new(big.Int).Lsh(big.NewInt(1), 120)
	if _, err := BeginCell().StoreCoins(huge).EndCell(); err == nil {
		t.Fatal("16-byte coins should fail")
	}
}

func TestStoreCoins(t *testing.T) {
	c := mustCell(t, BeginCell().StoreCoins(big.NewInt(1_000_000_000)))
	// len 4 nibble then 3b9aca00
	if c.BitLen() != 4+32 {
		t.Fatalf("bits = %d", c.BitLen())
	}
	if !bytes.Equal(c.Data(), []byte{0x43, 0xb9, 0xac, 0xa0, 0x00}) {
		t.Fatalf("data = %x", c.Data())
	}
	zero := mustCell(t, BeginCell().StoreCoins(nil))
	if zero.BitLen() != 4 {
		t.Fatalf("zero coins bits = %d", zero.BitLen())
	}
}

func TestBOCRoundTrip(t *testing.T) {
	leaf := func(n int) *Cell {
		b := BeginCell()
		for i := range n {
			b.StoreBit(i%3 == 0)
		}
		return mustCell(t, b)
	}
	child := mustCell(t, BeginCell().StoreUint(0x5, 3).StoreRef(leaf(9)))

	for refs := 0; refs <= MaxCellRefs; refs++ {
		for _, bits := range []int{0, 1, 7, 8, 9, 15, 17, 1023} {
			b := BeginCell()
			for i := range bits {
				b.StoreBit(i%2 == 1)
			}
			for i := range refs {
				if i == 0 {
					b.StoreRef(child)
				} else {
					b.StoreRef(leaf(i * 5))
				}
			}
			root := mustCell(t, b)
			raw, err := SerializeBOC(root)
			if err != nil {
				t.Fatalf("serialize refs=%d bits=%d: %v", refs, bits, err)
			}
			got, err := ParseBOC(raw)
			if err != nil {
				t.Fatalf("parse refs=%d bits=%d: %v", refs, bits, err)
			}
			if !got.Equal(root) {
				t.Fatalf("round trip mismatch refs=%d bits=%d", refs, bits)
			}
			if got.Hash() != root.Hash() {
				t.Fatalf("hash mismatch refs=%d bits=%d", refs, bits)
			}
		}
	}
}

func TestBOCSingleCellLayout(t *testing.T) {
	c := mustCell(t, BeginCell().StoreUint32(0x12345678))
	raw, err := SerializeBOC(c)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	want := "b5ee9c72" + "0101" + "01" + "01" + "00" + "06" + "00" + "0008" + "12345678"
	if got := hex.EncodeToString(raw); got != want {
		t.Fatalf("boc = %s, want %s", got, want)
	}
}

func TestBOCRejects(t *testing.T) {
	c := mustCell(t, BeginCell().StoreUint32(1))
	raw, _ := SerializeBOC(c)

	bad := append([]byte(nil), raw...)
	bad[0] = 0
	if _, err := ParseBOC(bad); err != ErrBOCMagic {
		t.Fatalf("magic: %v", err)
	}

	multi := append([]byte(nil), raw...)
	multi[7] = 2 // roots
	if _, err := ParseBOC(multi); err != ErrBOCMultiRoot {
		t.Fatalf("multi-root: %v", err)
	}

	exotic := append([]byte(nil), raw...)
	exotic[11] |= cellExotic
	if _, err := ParseBOC(exotic); err == nil {
		t.Fatal("exotic cell accepted")
	}

	level := append([]byte(nil), raw...)
	level[11] |= 1 << cellLevelShift
	if _, err := ParseBOC(level); err == nil {
		t.Fatal("level 1 cell accepted")
	}

	hashes := append([]byte(nil), raw...)
	hashes[11] |= cellWithHashes
	if _, err := ParseBOC(hashes); err == nil {
		t.Fatal("cell with stored hashes accepted")
	}

	for refs := byte(5); refs <= 7; refs++ {
		many := append([]byte(nil), raw...)
		many[11] = many[11]&^cellRefsMask | refs
		if _, err := ParseBOC(many); err == nil {
			t.Fatalf("descriptor with %d refs accepted", refs)
		}
	}

	if _, err := ParseBOC(raw[:len(raw)-1]); err == nil {
		t.Fatal("truncated boc accepted")
	}
}

func TestWalletCode(t *testing.T) {
	code, err := WalletV4R2Code()
	if err != nil {
		t.Fatalf("parse code: %v", err)
	}
	h := code.Hash()
	const want = "feb5ff6820e2ff0d9483e7e0d62c817d846789fb4ae580c878866d959dabd5c0"
	if got := hex.EncodeToString(h[:]); got != want {
		t.Fatalf("code hash = %s, want %s", got, want)
	}
	raw, err := SerializeBOC(code)
	if err != nil {
		t.Fatalf("serialize code: %v", err)
	}
	again, err := ParseBOC(raw)
	if err != nil {
		t.Fatalf("reparse code: %v", err)
	}
	if again.Hash() != h {
		t.Fatal("code hash changed after re-serialization")
	}
}

func TestWalletV4R2KnownAddress(t *testing.T) {
	// RFC 8032 test 1 public key, subwallet 698983191.
	pubHex := "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a"
	raw, err := hex.DecodeString(pubHex)
	if err != nil {
		t.Fatal(err)
	}
	var pub [32]byte
	copy(pub[:], raw)
	w, err := NewWalletV4R2(pub)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if got := hex.EncodeToString(w.Address.Hash[:]); got != "cdac97c9162b2e141ad4463828b2a70efdf8762b97e83563f352becf902e88a6" {
		t.Fatalf("raw address = 0:%s", got)
	}
	if got := w.Address.UserFriendly(true, false); got != "EQDNrJfJFisuFBrURjgosqcO_fh2K5foNWPzUr7PkC6Ipopv" {
		t.Fatalf("bounceable = %s", got)
	}
	if got := w.Address.UserFriendly(false, false); got != "UQDNrJfJFisuFBrURjgosqcO_fh2K5foNWPzUr7PkC6Ipteq" {
		t.Fatalf("non-bounceable = %s", got)
	}
}

func TestWalletAddressDeterministic(t *testing.T) {
	var pub [32]byte
	pub[0] = 1
	w1, err := NewWalletV4R2(pub)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	w2, _ := NewWalletV4R2(pub)
	if !w1.Address.Equal(w2.Address) {
		t.Fatal("address not deterministic")
	}
	if w1.Address.Hash != w1.StateInit.Hash() {
		t.Fatal("address hash must be the state init hash")
	}
	pub[0] = 2
	w3, _ := NewWalletV4R2(pub)
	if w1.Address.Equal(w3.Address) {
		t.Fatal("different keys derived the same wallet")
	}
}

func TestFriendlyAddress(t *testing.T) {
	var zero Address
	if got := zero.UserFriendly(true, false); got != "EQAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAM9c" {
		t.Fatalf("zero address = %s", got)
	}

	var a Address
	for i := range a.Hash {
		a.Hash[i] = 7
	}
	for _, tc := range []struct{ bounce, test bool }{
		{false, false}, {true, false}, {false, true}, {true, true},
	} {
		text := a.UserFriendly(tc.bounce, tc.test)
		got, err := ParseAddress(text)
		if err != nil {
			t.Fatalf("parse %s: %v", text, err)
		}
		if got.Workchain != 0 || got.Hash != a.Hash {
			t.Fatalf("parse %s: got %+v", text, got)
		}
		if !got.Friendly || got.Bounceable != tc.bounce || got.TestOnly != tc.test {
			t.Fatalf("flags for %s = %+v, want %+v", text, got, tc)
		}
	}

	// Standard alphabet forms parse too.
	std := base64.StdEncoding.EncodeToString(a.friendlyBytes(true, false))
	if _, err := ParseAddress(std); err != nil {
		t.Fatalf("std base64: %v", err)
	}
}

func TestParseAddressRaw(t *testing.T) {
	raw := "-1:" + strings.Repeat("ab", 32)
	a, err := ParseAddress(raw)
	if err != nil {
		t.Fatalf("parse raw: %v", err)
	}
	if a.Workchain != -1 || a.Friendly || a.Hash[0] != 0xab {
		t.Fatalf("raw parse = %+v", a)
	}
	if a.Raw() != raw {
		t.Fatalf("Raw() = %s", a.Raw())
	}

	for _, bad := range []string{"", "0:abcd", "300:" + strings.Repeat("00", 32), "x:00"} {
		if _, err := ParseAddress(bad); err == nil {
			t.Errorf("ParseAddress(%q) succeeded", bad)
		}
	}

	text := a.UserFriendly(true, false)
	corrupt := []byte(text)
	if corrupt[10] == 'A' {
		corrupt[10] = 'B'
	} else {
		corrupt[10] = 'A'
	}
	if _, err := ParseAddress(string(corrupt)); err == nil {
		t.Fatal("crc mismatch accepted")
	}
}

func TestCommentBodySnake(t *testing.T) {
	short, err := CommentBody("hi")
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if short.BitLen() != 32+16 || len(short.Refs()) != 0 {
		t.Fatalf("short comment bits=%d refs=%d", short.BitLen(), len(short.Refs()))
	}
	long, err := CommentBody(strings.Repeat("x", 300))
	if err != nil {
		t.Fatalf("long comment: %v", err)
	}
	if long.BitLen() != 32+123*8 || len(long.Refs()) != 1 {
		t.Fatalf("long comment bits=%d refs=%d", long.BitLen(), len(long.Refs()))
	}
	tail := long.Refs()[0]
	if tail.BitLen() != 127*8 || len(tail.Refs()) != 1 || tail.Refs()[0].BitLen() != 50*8 {
		t.Fatal("unexpected snake tail layout")
	}
}

func TestTransferMessages(t *testing.T) {
	var pub [32]byte
	w, err := NewWalletV4R2(pub)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	var dest Address
	dest.Hash[31] = 9

	comment, _ := CommentBody("memo")
	out, err := InternalMessage(dest, big.NewInt(5), true, comment)
	if err != nil {
		t.Fatalf("internal: %v", err)
	}
	if len(out.Refs()) != 1 || !out.Bit(1) || !out.Bit(2) || out.Bit(0) {
		t.Fatal("internal message header bits are wrong")
	}

	signing, err := w.SigningBody(1000, 0, SendModeDefault, out)
	if err != nil {
		t.Fatalf("signing body: %v", err)
	}
	if signing.BitLen() != 4*32+8 {
		t.Fatalf("signing body bits = %d", signing.BitLen())
	}
	if _, err := SignedBody(make([]byte, 63), signing); err != ErrSignatureLength {
		t.Fatalf("short signature: %v", err)
	}
	signed, err := SignedBody(make([]byte, 64), signing)
	if err != nil {
		t.Fatalf("signed body: %v", err)
	}
	if signed.BitLen() != 512+signing.BitLen() || len(signed.Refs()) != 1 {
		t.Fatal("signed body layout")
	}

	deploy, err := ExternalMessage(w.Address, signed, w.StateInit)
	if err != nil {
		t.Fatalf("external: %v", err)
	}
	if len(deploy.Refs()) != 2 {
		t.Fatalf("deploy refs = %d", len(deploy.Refs()))
	}
	plain, _ := ExternalMessage(w.Address, signed, nil)
	if len(plain.Refs()) != 1 || plain.BitLen() != deploy.BitLen()-1 {
		t.Fatal("external message without init")
	}
	if _, err := SerializeBOCBase64(deploy); err != nil {
		t.Fatalf("boc: %v", err)
	}
}

func TestJettonBody(t *testing.T) {
	j := &JettonTransfer{
		Amount:           big.NewInt(1_000_000),
		ForwardTonAmount: big.NewInt(1),
	}
	body, err := j.Body()
	if err != nil {
		t.Fatalf("jetton body: %v", err)
	}
	op := uint32(0)
	for i := range 32 {
		op <<= 1
		if body.Bit(i) {
			op |= 1
		}
	}
	if op != JettonOpTransfer {
		t.Fatalf("op = %#x", op)
	}
	if len(body.Refs()) != 1 || body.Refs()[0].BitLen() != 0 {
		t.Fatal("empty forward payload expected")
	}
	j.Memo = "gm"
	withMemo, _ := j.Body()
	if withMemo.Refs()[0].BitLen() != 32+16 {
		t.Fatal("memo forward payload expected")
	}
}
