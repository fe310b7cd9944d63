package types

import (
	"fmt"
	"strings"
)

// Bech32 charset used for encoding (BIP-173).
const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// bech32CharsetRev maps bech32 characters to their 5-bit values. -1 = invalid.
var bech32CharsetRev [128]int8

func init() {
	for i := range bech32CharsetRev {
		bech32CharsetRev[i] = -1
	}
	for i, c := range bech32Charset {
		bech32CharsetRev[c] = int8(i)
	}
}

// Bech32Variant selects the checksum constant.
type Bech32Variant int

const (
	// Bech32 is the BIP-173 checksum (constant 1).
	Bech32 Bech32Variant = iota
	// Bech32m is the BIP-350 checksum (constant 0x2bc830a3).
	Bech32m
)

const bech32mConst = 0x2bc830a3

func (v Bech32Variant) constant() uint32 {
	if v == Bech32m {
		return bech32mConst
	}
	return 1
}

func (v Bech32Variant) String() string {
	if v == Bech32m {
		return "bech32m"
	}
	return "bech32"
}

// Bech32Encode encodes a human-readable part and data bytes into a bech32 string.
func Bech32Encode(hrp string, data []byte) (string, error) {
	conv, err := convertBits(data, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("bech32: convert bits: %w", err)
	}
	return bech32Encode5(hrp, conv, Bech32)
}

// Bech32Decode decodes a bech32 string into the human-readable part and data bytes.
func Bech32Decode(s string) (string, []byte, error) {
	hrp, data5, variant, err := bech32Decode5(s)
	if err != nil {
		return "", nil, err
	}
	if variant != Bech32 {
		return "", nil, fmt.Errorf("bech32: invalid checksum")
	}
	data8, err := convertBits(data5, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("bech32: convert bits: %w", err)
	}
	return hrp, data8, nil
}

// EncodeSegwitAddress encodes a witness program. Version 0 uses bech32,
// versions 1..16 use bech32m.
func EncodeSegwitAddress(hrp string, version byte, program []byte) (string, error) {
	if hrp == "" {
		return "", fmt.Errorf("segwit: empty HRP")
	}
	for _, c := range hrp {
		if !(c >= 'a' && c <= 'z') && !(c >= '0' && c <= '9') {
			return "", fmt.Errorf("segwit: HRP must be lowercase alphanumeric")
		}
	}
	if err := checkWitnessProgram(version, program); err != nil {
		return "", err
	}
	conv, err := convertBits(program, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("segwit: convert bits: %w", err)
	}
	data := append([]byte{version}, conv...)
	variant := Bech32m
	if version == 0 {
		variant = Bech32
	}
	return bech32Encode5(hrp, data, variant)
}

// DecodeSegwitAddress decodes a segwit address for the expected HRP and
// returns the witness version and program. The checksum variant must match
// the version.
func DecodeSegwitAddress(hrp, addr string) (byte, []byte, error) {
	gotHRP, data5, variant, err := bech32Decode5(addr)
	if err != nil {
		return 0, nil, err
	}
	if gotHRP != hrp {
		return 0, nil, fmt.Errorf("segwit: hrp %q does not match %q", gotHRP, hrp)
	}
	if len(data5) < 1 {
		return 0, nil, fmt.Errorf("segwit: empty data")
	}
	version := data5[0]
	if version > 16 {
		return 0, nil, fmt.Errorf("segwit: invalid witness version %d", version)
	}
	if version == 0 && variant != Bech32 {
		return 0, nil, fmt.Errorf("segwit: witness v0 requires bech32 checksum")
	}
	if version != 0 && variant != Bech32m {
		return 0, nil, fmt.Errorf("segwit: witness v%d requires bech32m checksum", version)
	}
	program, err := convertBits(data5[1:], 5, 8, false)
	if err != nil {
		return 0, nil, fmt.Errorf("segwit: convert bits: %w", err)
	}
	if err := checkWitnessProgram(version, program); err != nil {
		return 0, nil, err
	}
	return version, program, nil
}

func checkWitnessProgram(version byte, program []byte) error {
	if version > 16 {
		return fmt.Errorf("segwit: invalid witness version %d", version)
	}
	if len(program) < 2 || len(program) > 40 {
		return fmt.Errorf("segwit: invalid program length %d", len(program))
	}
	if version == 0 && len(program) != 20 && len(program) != 32 {
		return fmt.Errorf("segwit: v0 program must be 20 or 32 bytes")
	}
	return nil
}

// bech32Encode5 builds hrp + "1" + data + checksum from 5-bit values.
func bech32Encode5(hrp string, data5 []byte, variant Bech32Variant) (string, error) {
	if len(hrp) == 0 {
		return "", fmt.Errorf("bech32: empty HRP")
	}
	for _, c := range hrp {
		if c < 33 || c > 126 {
			return "", fmt.Errorf("bech32: invalid HRP character %q", c)
		}
		if c >= 'A' && c <= 'Z' {
			return "", fmt.Errorf("bech32: HRP must be lowercase")
		}
	}

	chk := bech32CreateChecksum(hrp, data5, variant)

	var sb strings.Builder
	sb.Grow(len(hrp) + 1 + len(data5) + 6)
	sb.WriteString(hrp)
	sb.WriteByte('1')
	for _, b := range data5 {
		sb.WriteByte(bech32Charset[b])
	}
	for _, b := range chk {
		sb.WriteByte(bech32Charset[b])
	}
	return sb.String(), nil
}

// bech32Decode5 decodes to 5-bit values (checksum stripped) and reports
// which checksum variant verified.
func bech32Decode5(s string) (string, []byte, Bech32Variant, error) {
	if len(s) == 0 {
		return "", nil, 0, fmt.Errorf("bech32: empty string")
	}
	if len(s) > 90 {
		return "", nil, 0, fmt.Errorf("bech32: string too long")
	}

	// Reject mixed case.
	hasUpper := false
	hasLower := false
	for _, c := range s {
		if c >= 'A' && c <= 'Z' {
			hasUpper = true
		}
		if c >= 'a' && c <= 'z' {
			hasLower = true
		}
	}
	if hasUpper && hasLower {
		return "", nil, 0, fmt.Errorf("bech32: mixed case")
	}

	s = strings.ToLower(s)

	sepIdx := strings.LastIndex(s, "1")
	if sepIdx < 1 {
		return "", nil, 0, fmt.Errorf("bech32: missing separator")
	}
	if sepIdx+7 > len(s) {
		return "", nil, 0, fmt.Errorf("bech32: too short")
	}

	hrp := s[:sepIdx]
	for _, c := range hrp {
		if c < 33 || c > 126 {
			return "", nil, 0, fmt.Errorf("bech32: invalid HRP character %q", c)
		}
	}
	dataStr := s[sepIdx+1:]

	data5 := make([]byte, len(dataStr))
	for i, c := range dataStr {
		if c > 127 {
			return "", nil, 0, fmt.Errorf("bech32: invalid character %q", c)
		}
		val := bech32CharsetRev[c]
		if val < 0 {
			return "", nil, 0, fmt.Errorf("bech32: invalid character %q", c)
		}
		data5[i] = byte(val)
	}

	var variant Bech32Variant
	switch bech32Polymod(append(bech32HRPExpand(hrp), data5...)) {
	case 1:
		variant = Bech32
	case bech32mConst:
		variant = Bech32m
	default:
		return "", nil, 0, fmt.Errorf("bech32: invalid checksum")
	}

	return hrp, data5[:len(data5)-6], variant, nil
}

// bech32Polymod computes the bech32 polynomial modulus.
func bech32Polymod(values []byte) uint32 {
	gen := [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

// bech32HRPExpand expands the HRP for checksum computation.
func bech32HRPExpand(hrp string) []byte {
	ret := make([]byte, 0, len(hrp)*2+1)
	for _, c := range hrp {
		ret = append(ret, byte(c>>5))
	}
	ret = append(ret, 0)
	for _, c := range hrp {
		ret = append(ret, byte(c&31))
	}
	return ret
}

// bech32CreateChecksum creates a 6-value checksum for the given HRP and data.
func bech32CreateChecksum(hrp string, data []byte, variant Bech32Variant) []byte {
	values := append(bech32HRPExpand(hrp), data...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	polymod := bech32Polymod(values) ^ variant.constant()
	ret := make([]byte, 6)
	for i := 0; i < 6; i++ {
		ret[i] = byte((polymod >> uint(5*(5-i))) & 31)
	}
	return ret
}

// convertBits converts between bit groups.
// fromBits/toBits are the source/destination group sizes (e.g. 8 and 5).
// pad controls whether incomplete groups are zero-padded.
func convertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	acc := uint32(0)
	bits := uint(0)
	maxv := uint32((1 << toBits) - 1)
	var ret []byte

	for _, b := range data {
		if uint32(b)>>fromBits != 0 {
			return nil, fmt.Errorf("invalid data byte: %d", b)
		}
		acc = acc<<fromBits | uint32(b)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			ret = append(ret, byte((acc>>bits)&maxv))
		}
	}

	if pad {
		if bits > 0 {
			ret = append(ret, byte((acc<<(toBits-bits))&maxv))
		}
	} else {
		if bits >= fromBits {
			return nil, fmt.Errorf("non-zero padding")
		}
		if (acc<<(toBits-bits))&maxv != 0 {
			return nil, fmt.Errorf("non-zero padding")
		}
	}

	return ret, nil
}

// ConvertBits exposes the 8<->5 bit regrouping used by bech32.
func ConvertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	return convertBits(data, fromBits, toBits, pad)
}
