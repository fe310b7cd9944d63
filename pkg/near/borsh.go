// Package near encodes NEAR transactions in Borsh and computes their
// signing digest.
package near

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/big"
)

var (
	ErrBorshTruncated = errors.New("near: borsh input truncated")
	ErrU128Overflow   = errors.New("amount is too large")
)

var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Encoder appends Borsh values to a buffer.
type Encoder struct {
	buf []byte
	err error
}

func (e *Encoder) Bytes() ([]byte, error) { return e.buf, e.err }

func (e *Encoder) U8(v uint8) { e.buf = append(e.buf, v) }

func (e *Encoder) U32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }

func (e *Encoder) U64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

// U128 writes v as 16 little-endian bytes.
func (e *Encoder) U128(v *big.Int) {
	if v == nil {
		v = new(big.Int)
	}
	if v.Sign() < 0 || v.Cmp(maxU128) > 0 {
		e.fail(ErrU128Overflow)
		return
	}
	var be [16]byte
	v.FillBytes(be[:])
	for i := 15; i >= 0; i-- {
		e.buf = append(e.buf, be[i])
	}
}

// Fixed writes raw bytes with no length prefix.
func (e *Encoder) Fixed(p []byte) { e.buf = append(e.buf, p...) }

// Blob writes a u32 length prefix then p.
func (e *Encoder) Blob(p []byte) {
	if uint64(len(p)) > math.MaxUint32 {
		e.fail(fmt.Errorf("near: borsh length exceeds u32"))
		return
	}
	e.U32(uint32(len(p)))
	e.Fixed(p)
}

func (e *Encoder) Str(s string) { e.Blob([]byte(s)) }

func (e *Encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// Decoder reads Borsh values; the first error sticks.
type Decoder struct {
	buf []byte
	err error
}

func NewDecoder(b []byte) *Decoder { return &Decoder{buf: b} }

func (d *Decoder) Err() error { return d.err }

// Remaining reports unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) }

func (d *Decoder) Fixed(n int) []byte {
	if d.err != nil {
		return make([]byte, n)
	}
	if n < 0 || n > len(d.buf) {
		d.err = ErrBorshTruncated
		return make([]byte, max(n, 0))
	}
	out := d.buf[:n]
	d.buf = d.buf[n:]
	return out
}

func (d *Decoder) U8() uint8 { return d.Fixed(1)[0] }

func (d *Decoder) U32() uint32 { return binary.LittleEndian.Uint32(d.Fixed(4)) }

func (d *Decoder) U64() uint64 { return binary.LittleEndian.Uint64(d.Fixed(8)) }

func (d *Decoder) U128() *big.Int {
	le := d.Fixed(16)
	be := make([]byte, 16)
	for i := range le {
		be[15-i] = le[i]
	}
	return new(big.Int).SetBytes(be)
}

func (d *Decoder) Blob() []byte {
	n := d.U32()
	if d.err != nil {
		return nil
	}
	return append([]byte(nil), d.Fixed(int(n))...)
}

func (d *Decoder) Str() string { return string(d.Blob()) }
