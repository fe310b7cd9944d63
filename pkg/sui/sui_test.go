package sui

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/blake2b"

	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

func TestAddressFromPubKey(t *testing.T) {
	pub := make([]byte, 32)
	pub[0] = 0xaa
	got, err := AddressFromPubKey(pub)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	sum := blake2b.Sum256(append([]byte{0}, pub...))
	if want := "0x" + hex.EncodeToString(sum[:]); got != want {
		t.Fatalf("address = %s, want %s", got, want)
	}
	if _, err := AddressFromPubKey(pub[:10]); err == nil {
		t.Fatal("short key accepted")
	}
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("0x2")
	if err != nil || got != "0x"+strings.Repeat("0", 63)+"2" {
		t.Fatalf("NormalizeAddress = %s, %v", got, err)
	}
	for _, bad := range []string{"", "0x", "0xgg", strings.Repeat("a", 65)} {
		if _, err := NormalizeAddress(bad); err == nil {
			t.Errorf("NormalizeAddress(%q) succeeded", bad)
		}
	}
}

func TestTxDigestAndSignature(t *testing.T) {
	txBytes := []byte{0, 1, 2, 3}
	d := TxDigest(txBytes)
	want := blake2b.Sum256([]byte{0, 0, 0, 0, 1, 2, 3})
	if d != want {
		t.Fatalf("digest = %x", d)
	}

	priv := ed25519.NewKeyFromSeed(make([]byte, 32))
	pub := priv.Public().(ed25519.PublicKey)
	sig := ed25519.Sign(priv, d[:])
	enc, err := SerializedSignature(sig, pub)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(enc)
	if len(raw) != 97 || raw[0] != FlagEd25519 {
		t.Fatalf("serialized signature = %x", raw)
	}
	if !ed25519.Verify(pub, d[:], raw[1:65]) || string(raw[65:]) != string(pub) {
		t.Fatal("serialized signature layout")
	}
	if _, err := SerializedSignature(sig[:63], pub); err == nil {
		t.Fatal("short signature accepted")
	}
}

func TestSelectCoins(t *testing.T) {
	coins := []Coin{{"a", 5}, {"b", 10}, {"c", 100}}
	ids, err := SelectCoins(coins, CoinType, 12)
	if err != nil || strings.Join(ids, ",") != "a,b" {
		t.Fatalf("SelectCoins = %v, %v", ids, err)
	}
	if _, err := SelectCoins(coins, CoinType, 1000); err == nil {
		t.Fatal("insufficient coins accepted")
	}
}

func TestSelectGasCoin(t *testing.T) {
	coins := []Coin{{"small", 10}, {"big", 5_000_000_000}, {"mid", 3_000_000_000}}
	id, err := SelectGasCoin(coins, NativeGasBudget, DefaultGasPrice)
	if err != nil || id != "big" {
		t.Fatalf("SelectGasCoin = %s, %v", id, err)
	}
	if _, err := SelectGasCoin(coins[:1], NativeGasBudget, DefaultGasPrice); !errors.Is(err, ErrNoGasCoin) {
		t.Fatalf("no gas coin: %v", err)
	}
}

func TestTransactionDigest(t *testing.T) {
	tx := []byte{0, 1, 2, 3}
	sum := blake2b.Sum256(append([]byte("TransactionData::"), tx...))
	got := TransactionDigest(tx)
	if want := types.Base58Encode(sum[:]); got != want {
		t.Fatalf("digest = %s, want %s", got, want)
	}
	if TransactionDigest(tx) == TransactionDigest(tx[:3]) {
		t.Fatal("digest ignores input")
	}
}
