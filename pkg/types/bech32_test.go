package types

import (
	"bytes"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

func TestBech32_Roundtrip(t *testing.T) {
	data := []byte{0x8f, 0x3a, 0x44, 0xb8, 0x05, 0x6c, 0xaf, 0xec, 0x36, 0x8d,
		0xea, 0x0c, 0xbe, 0x0a, 0xd1, 0xd9, 0xbc, 0x3f, 0x43, 0x05}

	encoded, err := Bech32Encode("bc", data)
	if err != nil {
		t.Fatalf("Bech32Encode: %v", err)
	}

	hrp, decoded, err := Bech32Decode(encoded)
	if err != nil {
		t.Fatalf("Bech32Decode: %v", err)
	}
	if hrp != "bc" {
		t.Errorf("HRP = %q, want %q", hrp, "bc")
	}
	if !bytes.Equal(decoded, data) {
		t.Errorf("decoded = %x, want %x", decoded, data)
	}
}

func TestSegwit_KnownVectors(t *testing.T) {
	// BIP-173 / BIP-350 test vectors.
	tests := []struct {
		addr    string
		version byte
		program string
	}{
		{"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", 0, "751e76e8199196d454941c45d1b3a323f1433bd6"},
		{"bc1p0xlxvlhemja6c4dqv22uapctqupfhlxm9h8z3k2e72q4k9hcz7vqzk5jj0", 1, "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"},
	}
	for _, tt := range tests {
		version, program, err := DecodeSegwitAddress("bc", tt.addr)
		if err != nil {
			t.Fatalf("DecodeSegwitAddress(%s): %v", tt.addr, err)
		}
		if version != tt.version {
			t.Errorf("version = %d, want %d", version, tt.version)
		}
		if EncodeHex(program) != tt.program {
			t.Errorf("program = %x, want %s", program, tt.program)
		}
		again, err := EncodeSegwitAddress("bc", version, program)
		if err != nil {
			t.Fatalf("EncodeSegwitAddress: %v", err)
		}
		if again != tt.addr {
			t.Errorf("re-encoded = %s, want %s", again, tt.addr)
		}
	}
}

func TestSegwit_Bech32mRoundtripAllPrograms(t *testing.T) {
	for seed := 0; seed < 32; seed++ {
		program := make([]byte, 32)
		for i := range program {
			program[i] = byte(seed*31 + i*7)
		}
		addr, err := EncodeSegwitAddress("bc", 1, program)
		if err != nil {
			t.Fatalf("EncodeSegwitAddress: %v", err)
		}
		version, got, err := DecodeSegwitAddress("bc", addr)
		if err != nil {
			t.Fatalf("DecodeSegwitAddress: %v", err)
		}
		if version != 1 || !bytes.Equal(got, program) {
			t.Fatalf("roundtrip mismatch: v%d %x", version, got)
		}

		// Cross-check with btcd's bech32m encoder.
		conv, err := bech32.ConvertBits(program, 8, 5, true)
		if err != nil {
			t.Fatalf("ConvertBits: %v", err)
		}
		want, err := bech32.EncodeM("bc", append([]byte{1}, conv...))
		if err != nil {
			t.Fatalf("bech32.EncodeM: %v", err)
		}
		if addr != want {
			t.Fatalf("addr = %s, btcutil = %s", addr, want)
		}
	}
}

func TestSegwit_SingleCharCorruption(t *testing.T) {
	program := bytes.Repeat([]byte{0x42}, 32)
	addr, err := EncodeSegwitAddress("bc", 1, program)
	if err != nil {
		t.Fatalf("EncodeSegwitAddress: %v", err)
	}
	sep := strings.LastIndex(addr, "1")
	for i := sep + 1; i < len(addr); i++ {
		for _, c := range bech32Charset {
			if byte(c) == addr[i] {
				continue
			}
			corrupted := addr[:i] + string(c) + addr[i+1:]
			if _, _, err := DecodeSegwitAddress("bc", corrupted); err == nil {
				t.Fatalf("corruption at %d (%c) accepted: %s", i, c, corrupted)
			}
		}
	}
}

func TestSegwit_WrongVariantRejected(t *testing.T) {
	program := bytes.Repeat([]byte{0x07}, 32)

	// v1 with a bech32 checksum.
	conv, _ := convertBits(program, 8, 5, true)
	v1Bech32, err := bech32Encode5("bc", append([]byte{1}, conv...), Bech32)
	if err != nil {
		t.Fatalf("bech32Encode5: %v", err)
	}
	if _, _, err := DecodeSegwitAddress("bc", v1Bech32); err == nil {
		t.Error("v1 with bech32 checksum should be rejected")
	}

	// v0 with a bech32m checksum.
	v0Bech32m, err := bech32Encode5("bc", append([]byte{0}, conv...), Bech32m)
	if err != nil {
		t.Fatalf("bech32Encode5: %v", err)
	}
	if _, _, err := DecodeSegwitAddress("bc", v0Bech32m); err == nil {
		t.Error("v0 with bech32m checksum should be rejected")
	}
}

func TestSegwit_ProgramLengthRules(t *testing.T) {
	if _, err := EncodeSegwitAddress("bc", 0, make([]byte, 25)); err == nil {
		t.Error("v0 25-byte program should be rejected")
	}
	if _, err := EncodeSegwitAddress("bc", 1, make([]byte, 1)); err == nil {
		t.Error("1-byte program should be rejected")
	}
	if _, err := EncodeSegwitAddress("bc", 1, make([]byte, 41)); err == nil {
		t.Error("41-byte program should be rejected")
	}
	if _, err := EncodeSegwitAddress("BC", 1, make([]byte, 32)); err == nil {
		t.Error("uppercase HRP should be rejected")
	}
}

func TestBech32Decode_MixedCase(t *testing.T) {
	_, _, err := DecodeSegwitAddress("bc", "bc1qW508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4")
	if err == nil {
		t.Error("expected error for mixed case")
	}
}

func TestBech32Decode_InvalidChars(t *testing.T) {
	_, _, err := Bech32Decode("bc1b!!invalid")
	if err == nil {
		t.Error("expected error for invalid characters")
	}
}

func TestSegwit_HRPMismatch(t *testing.T) {
	_, _, err := DecodeSegwitAddress("tb", "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4")
	if err == nil {
		t.Error("expected HRP mismatch error")
	}
}
