// Package ton implements the TON cell model: a bit-level cell builder,
// representation hashing, Bag-of-Cells serialization and the wallet v4r2
// and jetton message layouts built on top of it.
package ton

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
)

// Cell limits for ordinary cells.
const (
	MaxCellBits = 1023
	MaxCellRefs = 4
)

var (
	ErrCellOverflow = errors.New("ton: cell bit length exceeds 1023")
	ErrTooManyRefs  = errors.New("ton: cell ref count exceeds 4")
	ErrCoinsTooBig  = errors.New("TON coin value is too large")
)

// Cell is an immutable ordinary cell: up to 1023 data bits and four refs.
type Cell struct {
	data []byte // bits packed MSB first, trailing bits of the last byte are zero
	bits int
	refs []*Cell
}

// BitLen returns the number of data bits.
func (c *Cell) BitLen() int { return c.bits }

// Refs returns the child cells.
func (c *Cell) Refs() []*Cell { return c.refs }

// Bit reports the i-th data bit.
func (c *Cell) Bit(i int) bool {
	return c.data[i/8]&(0x80>>(i%8)) != 0
}

// Data returns a copy of the packed data bits.
func (c *Cell) Data() []byte {
	return append([]byte(nil), c.data...)
}

// Equal compares bits and ref structure.
func (c *Cell) Equal(o *Cell) bool {
	if c.bits != o.bits || len(c.refs) != len(o.refs) {
		return false
	}
	for i := range c.data {
		if c.data[i] != o.data[i] {
			return false
		}
	}
	for i := range c.refs {
		if !c.refs[i].Equal(o.refs[i]) {
			return false
		}
	}
	return true
}

// Depth is 0 for a leaf, otherwise one more than the deepest child.
func (c *Cell) Depth() uint16 {
	var d uint16
	for _, r := range c.refs {
		if rd := r.Depth() + 1; rd > d {
			d = rd
		}
	}
	return d
}

// Hash returns the representation hash: sha256 over descriptors, padded
// data, child depths and child hashes.
func (c *Cell) Hash() [32]byte {
	repr := make([]byte, 0, 2+len(c.data)+len(c.refs)*34)
	repr = append(repr, c.d1(), c.d2())
	repr = append(repr, c.paddedData()...)
	for _, r := range c.refs {
		d := r.Depth()
		repr = append(repr, byte(d>>8), byte(d))
	}
	for _, r := range c.refs {
		h := r.Hash()
		repr = append(repr, h[:]...)
	}
	return sha256.Sum256(repr)
}

func (c *Cell) d1() byte { return byte(len(c.refs)) }

func (c *Cell) d2() byte {
	return byte(c.bits/8 + (c.bits+7)/8)
}

// paddedData appends the completion tag (a single 1 bit) when the bit
// length is not byte aligned.
func (c *Cell) paddedData() []byte {
	out := append([]byte(nil), c.data...)
	if rem := c.bits % 8; rem != 0 {
		out[len(out)-1] |= 0x80 >> rem
	}
	return out
}

// Builder accumulates bits and refs for a new cell.
type Builder struct {
	data []byte
	bits int
	refs []*Cell
	err  error
}

// BeginCell starts an empty builder.
func BeginCell() *Builder { return &Builder{} }

// StoreBit appends one bit.
func (b *Builder) StoreBit(v bool) *Builder {
	if b.bits%8 == 0 {
		b.data = append(b.data, 0)
	}
	if v {
		b.data[b.bits/8] |= 0x80 >> (b.bits % 8)
	}
	b.bits++
	return b
}

// StoreUint appends the low n bits of v, most significant first.
func (b *Builder) StoreUint(v uint64, n int) *Builder {
	for i := n - 1; i >= 0; i-- {
		b.StoreBit((v>>uint(i))&1 == 1)
	}
	return b
}

func (b *Builder) StoreUint8(v uint8) *Builder   { return b.StoreUint(uint64(v), 8) }
func (b *Builder) StoreUint32(v uint32) *Builder { return b.StoreUint(uint64(v), 32) }
func (b *Builder) StoreUint64(v uint64) *Builder { return b.StoreUint(v, 64) }

// StoreInt8 appends v in two's complement.
func (b *Builder) StoreInt8(v int8) *Builder { return b.StoreUint(uint64(uint8(v)), 8) }

// StoreBytes appends whole bytes.
func (b *Builder) StoreBytes(p []byte) *Builder {
	if b.bits%8 == 0 {
		b.data = append(b.data, p...)
		b.bits += 8 * len(p)
		return b
	}
	for _, x := range p {
		b.StoreUint8(x)
	}
	return b
}

// StoreBigUint appends v as an n-bit unsigned integer.
func (b *Builder) StoreBigUint(v *big.Int, n int) *Builder {
	if v.Sign() < 0 || v.BitLen() > n {
		b.fail(fmt.Errorf("ton: integer does not fit %d bits", n))
		return b
	}
	for i := n - 1; i >= 0; i-- {
		b.StoreBit(v.Bit(i) == 1)
	}
	return b
}

// StoreCoins appends a VarUInteger 16: a 4-bit byte length then the value.
func (b *Builder) StoreCoins(v *big.Int) *Builder {
	if v == nil || v.Sign() == 0 {
		return b.StoreUint(0, 4)
	}
	if v.Sign() < 0 {
		b.fail(ErrCoinsTooBig)
		return b
	}
	raw := v.Bytes()
	if len(raw) > 15 {
		b.fail(ErrCoinsTooBig)
		return b
	}
	b.StoreUint(uint64(len(raw)), 4)
	return b.StoreBytes(raw)
}

// StoreAddress appends addr_std, or addr_none when a is nil.
func (b *Builder) StoreAddress(a *Address) *Builder {
	if a == nil {
		return b.StoreUint(0, 2)
	}
	b.StoreUint(0b10, 2)
	b.StoreBit(false) // anycast
	b.StoreInt8(a.Workchain)
	return b.StoreBytes(a.Hash[:])
}

// StoreRef attaches a child cell.
func (b *Builder) StoreRef(c *Cell) *Builder {
	b.refs = append(b.refs, c)
	return b
}

// StoreMaybeRef stores a presence bit and, when c is non-nil, the ref.
func (b *Builder) StoreMaybeRef(c *Cell) *Builder {
	if c == nil {
		return b.StoreBit(false)
	}
	b.StoreBit(true)
	return b.StoreRef(c)
}

// StoreSlice copies the bits and refs of c into the builder.
func (b *Builder) StoreSlice(c *Cell) *Builder {
	for i := 0; i < c.bits; i++ {
		b.StoreBit(c.Bit(i))
	}
	b.refs = append(b.refs, c.refs...)
	return b
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// EndCell finalizes the builder.
func (b *Builder) EndCell() (*Cell, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.bits > MaxCellBits {
		return nil, fmt.Errorf("%w (%d)", ErrCellOverflow, b.bits)
	}
	if len(b.refs) > MaxCellRefs {
		return nil, fmt.Errorf("%w (%d)", ErrTooManyRefs, len(b.refs))
	}
	return &Cell{
		data: append([]byte(nil), b.data...),
		bits: b.bits,
		refs: append([]*Cell(nil), b.refs...),
	}, nil
}
