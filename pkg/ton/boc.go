package ton

import (
	"encoding/base64"
	"errors"
	"fmt"
)

var bocMagic = [4]byte{0xb5, 0xee, 0x9c, 0x72}

const (
	bocFlagIndex   = 0x80
	bocFlagCRC32   = 0x40
	bocSizeMask    = 0x07
	cellExotic     = 0x08
	cellWithHashes = 0x10
	cellMaxRefs    = 4
	cellRefsMask   = 0x07
	cellLevelShift = 5
)

var (
	ErrBOCMagic     = errors.New("invalid TON BOC magic")
	ErrBOCTruncated = errors.New("TON BOC truncated")
	ErrBOCMultiRoot = errors.New("only single-root TON BOC is supported")
)

// SerializeBOC writes c as a single-root bag of cells without index or
// crc. Cells are laid out in pre-order so every ref points forward.
func SerializeBOC(c *Cell) ([]byte, error) {
	var flat []*Cell
	var refIdx [][]int
	var walk func(*Cell) int
	walk = func(n *Cell) int {
		idx := len(flat)
		flat = append(flat, n)
		refIdx = append(refIdx, nil)
		ids := make([]int, 0, len(n.refs))
		for _, r := range n.refs {
			ids = append(ids, walk(r))
		}
		refIdx[idx] = ids
		return idx
	}
	walk(c)

	sizeBytes := minBytes(uint64(max(len(flat)-1, 1)))
	var cells []byte
	for i, n := range flat {
		if len(n.refs) > MaxCellRefs {
			return nil, ErrTooManyRefs
		}
		cells = append(cells, n.d1(), n.d2())
		cells = append(cells, n.paddedData()...)
		for _, r := range refIdx[i] {
			cells = appendBE(cells, uint64(r), sizeBytes)
		}
	}
	offsetBytes := minBytes(uint64(max(len(cells), 1)))

	out := make([]byte, 0, 16+len(cells))
	out = append(out, bocMagic[:]...)
	out = append(out, byte(sizeBytes)&bocSizeMask, byte(offsetBytes))
	out = appendBE(out, uint64(len(flat)), sizeBytes)
	out = appendBE(out, 1, sizeBytes) // roots
	out = appendBE(out, 0, sizeBytes) // absent
	out = appendBE(out, uint64(len(cells)), offsetBytes)
	out = appendBE(out, 0, sizeBytes) // root index
	return append(out, cells...), nil
}

// SerializeBOCBase64 returns the standard base64 (padded) form used by
// TON HTTP APIs.
func SerializeBOCBase64(c *Cell) (string, error) {
	raw, err := SerializeBOC(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

type bocReader struct {
	buf []byte
	pos int
}

func (r *bocReader) uint(width int) (uint64, error) {
	if r.pos+width > len(r.buf) {
		return 0, ErrBOCTruncated
	}
	var v uint64
	for _, x := range r.buf[r.pos : r.pos+width] {
		v = v<<8 | uint64(x)
	}
	r.pos += width
	return v, nil
}

func (r *bocReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, ErrBOCTruncated
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

type rawCell struct {
	data []byte
	bits int
	refs []int
}

// ParseBOC decodes a single-root bag of ordinary level-0 cells.
func ParseBOC(b []byte) (*Cell, error) {
	if len(b) < 8 || [4]byte(b[:4]) != bocMagic {
		return nil, ErrBOCMagic
	}
	flags := b[4]
	sizeBytes := int(flags & bocSizeMask)
	if sizeBytes == 0 {
		return nil, fmt.Errorf("invalid TON BOC size bytes")
	}
	offsetBytes := int(b[5])
	if offsetBytes == 0 || offsetBytes > 8 {
		return nil, fmt.Errorf("invalid TON BOC offset bytes")
	}
	r := &bocReader{buf: b, pos: 6}
	var hdr [4]uint64
	for i := range hdr {
		w := sizeBytes
		if i == 3 {
			w = offsetBytes
		}
		v, err := r.uint(w)
		if err != nil {
			return nil, err
		}
		hdr[i] = v
	}
	cellsNum, rootsNum, totalSize := hdr[0], hdr[1], hdr[3]
	if rootsNum != 1 {
		return nil, ErrBOCMultiRoot
	}
	rootIdx, err := r.uint(sizeBytes)
	if err != nil {
		return nil, err
	}
	if rootIdx >= cellsNum {
		return nil, fmt.Errorf("TON BOC root index out of range")
	}
	if flags&bocFlagIndex != 0 {
		if _, err := r.bytes(int(cellsNum) * offsetBytes); err != nil {
			return nil, err
		}
	}
	end := r.pos + int(totalSize)
	if totalSize > uint64(len(b)) || end > len(b) {
		return nil, fmt.Errorf("TON BOC truncated cells data")
	}

	raws := make([]rawCell, 0, min(cellsNum, uint64(len(b))))
	for r.pos < end && uint64(len(raws)) < cellsNum {
		desc, err := r.bytes(2)
		if err != nil {
			return nil, err
		}
		d1, d2 := desc[0], desc[1]
		if d1&cellExotic != 0 {
			return nil, fmt.Errorf("TON exotic cells are not supported")
		}
		if d1&cellWithHashes != 0 {
			return nil, fmt.Errorf("TON cells with stored hashes are not supported")
		}
		if d1&cellRefsMask > cellMaxRefs {
			return nil, fmt.Errorf("TON cell has %d refs, max %d", d1&cellRefsMask, cellMaxRefs)
		}
		if d1>>cellLevelShift != 0 {
			return nil, fmt.Errorf("TON non-zero level cells are not supported")
		}
		full := int(d2 / 2)
		partial := d2%2 == 1
		n := full
		if partial {
			n++
		}
		data, err := r.bytes(n)
		if err != nil {
			return nil, err
		}
		rc := rawCell{data: append([]byte(nil), data...), bits: full * 8}
		if partial {
			last := rc.data[n-1]
			if last == 0 {
				return nil, fmt.Errorf("TON partial cell byte has no terminator")
			}
			tz := 0
			for last&(1<<tz) == 0 {
				tz++
			}
			rc.bits += 7 - tz
			rc.data[n-1] &^= 1 << tz
		}
		idx := len(raws)
		for range int(d1 & cellRefsMask) {
			ref, err := r.uint(sizeBytes)
			if err != nil {
				return nil, err
			}
			if ref <= uint64(idx) || ref >= cellsNum {
				return nil, fmt.Errorf("TON BOC ref %d out of range", ref)
			}
			rc.refs = append(rc.refs, int(ref))
		}
		raws = append(raws, rc)
	}
	if uint64(len(raws)) != cellsNum || r.pos != end {
		return nil, fmt.Errorf("TON BOC cells section parse mismatch")
	}
	if flags&bocFlagCRC32 != 0 {
		if _, err := r.bytes(4); err != nil {
			return nil, fmt.Errorf("TON BOC truncated crc32")
		}
	}

	// Refs only point forward, so build from the tail.
	built := make([]*Cell, len(raws))
	for i := len(raws) - 1; i >= 0; i-- {
		rc := raws[i]
		c := &Cell{data: rc.data, bits: rc.bits}
		for _, ref := range rc.refs {
			c.refs = append(c.refs, built[ref])
		}
		built[i] = c
	}
	return built[rootIdx], nil
}

// ParseBOCBase64 accepts standard or URL base64, padded or not.
func ParseBOCBase64(s string) (*Cell, error) {
	raw, err := decodeBase64Any(s)
	if err != nil {
		return nil, err
	}
	return ParseBOC(raw)
}

func minBytes(v uint64) int {
	n := 1
	for v > 0xff {
		v >>= 8
		n++
	}
	return n
}

func appendBE(out []byte, v uint64, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		out = append(out, byte(v>>(8*uint(i))))
	}
	return out
}
