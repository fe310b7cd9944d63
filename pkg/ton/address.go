package ton

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	tagBounceable    = 0x11
	tagNonBounceable = 0x51
	tagTestOnly      = 0x80
)

var ErrAddressRequired = errors.New("TON address is required")

// Address is a standard internal address. Bounceable and TestOnly carry
// the flags of a parsed user-friendly form; Friendly is false for raw
// "wc:hex" input, where no flags exist.
type Address struct {
	Workchain  int8
	Hash       [32]byte
	Bounceable bool
	TestOnly   bool
	Friendly   bool
}

// Raw formats the address as "wc:hex".
func (a Address) Raw() string {
	return strconv.Itoa(int(a.Workchain)) + ":" + hex.EncodeToString(a.Hash[:])
}

// UserFriendly formats the 36-byte tagged form in URL-safe base64.
func (a Address) UserFriendly(bounceable, testOnly bool) string {
	return base64.RawURLEncoding.EncodeToString(a.friendlyBytes(bounceable, testOnly))
}

func (a Address) friendlyBytes(bounceable, testOnly bool) []byte {
	buf := make([]byte, 36)
	tag := byte(tagNonBounceable)
	if bounceable {
		tag = tagBounceable
	}
	if testOnly {
		tag |= tagTestOnly
	}
	buf[0] = tag
	buf[1] = byte(a.Workchain)
	copy(buf[2:34], a.Hash[:])
	crc := crc16XModem(buf[:34])
	buf[34], buf[35] = byte(crc>>8), byte(crc)
	return buf
}

// Equal compares workchain and hash only.
func (a Address) Equal(o Address) bool {
	return a.Workchain == o.Workchain && a.Hash == o.Hash
}

// ParseAddress accepts raw "wc:hex" or the user-friendly base64 form
// (standard or URL alphabet).
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, ErrAddressRequired
	}
	if wc, h, ok := strings.Cut(s, ":"); ok {
		return parseRaw(wc, h)
	}
	raw, err := decodeBase64Any(s)
	if err != nil {
		return Address{}, err
	}
	if len(raw) != 36 {
		return Address{}, fmt.Errorf("TON user-friendly address must decode to 36 bytes")
	}
	if crc := crc16XModem(raw[:34]); uint16(raw[34])<<8|uint16(raw[35]) != crc {
		return Address{}, fmt.Errorf("TON address crc16 mismatch")
	}
	tag := raw[0]
	if tag&0x3f != tagBounceable {
		return Address{}, fmt.Errorf("unsupported TON address tag 0x%02x", tag)
	}
	a := Address{
		Workchain:  int8(raw[1]),
		Bounceable: tag&0x40 == 0,
		TestOnly:   tag&tagTestOnly != 0,
		Friendly:   true,
	}
	copy(a.Hash[:], raw[2:34])
	return a, nil
}

func parseRaw(wcText, hashText string) (Address, error) {
	wc, err := strconv.ParseInt(strings.TrimSpace(wcText), 10, 32)
	if err != nil {
		return Address{}, fmt.Errorf("invalid TON raw workchain id")
	}
	if wc < -128 || wc > 127 {
		return Address{}, fmt.Errorf("TON raw workchain id out of range")
	}
	h, err := hex.DecodeString(strings.TrimSpace(hashText))
	if err != nil || len(h) != 32 {
		return Address{}, fmt.Errorf("TON raw address hash must be 32 bytes hex")
	}
	a := Address{Workchain: int8(wc)}
	copy(a.Hash[:], h)
	return a, nil
}

// decodeBase64Any maps the URL alphabet onto the standard one and
// tolerates missing padding.
func decodeBase64Any(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '-':
			return '+'
		case '_':
			return '/'
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	s = strings.TrimRight(s, "=")
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	return b, nil
}

func crc16XModem(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
