package solana

import "fmt"

// AppendShortvec appends n as an unsigned LEB128 varint.
func AppendShortvec(buf []byte, n int) []byte {
	v := uint(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// DecodeShortvec reads a shortvec length at most three bytes long and
// returns the value and bytes consumed.
func DecodeShortvec(b []byte) (int, int, error) {
	var v, shift uint
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, fmt.Errorf("shortvec: truncated")
		}
		v |= uint(b[i]&0x7f) << shift
		if b[i]&0x80 == 0 {
			if i > 0 && b[i] == 0 {
				return 0, 0, fmt.Errorf("shortvec: non-canonical encoding")
			}
			return int(v), i + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("shortvec: value too large")
}
