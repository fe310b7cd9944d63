package signer

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
	"github.com/zeebo/blake3"

	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
)

// Default key labels reported by Local.
const (
	DefaultECDSAKeyName   = "local_ecdsa"
	DefaultSchnorrKeyName = "local_schnorr"
)

// ed25519Domain separates Ed25519 seeds from the secp256k1 child keys they
// are derived from.
const ed25519Domain = "klingnet-wallet ed25519 seed v1"

// Local derives every key from a BIP-39 seed. Each algorithm has its own
// hardened branch; each path component maps to a hardened child index
// taken from its BLAKE3 hash.
type Local struct {
	master         *bip32.Key
	ecdsaKeyName   string
	schnorrKeyName string
}

// LocalOption configures Local.
type LocalOption func(*Local)

// WithKeyNames overrides the labels reported for ECDSA and Schnorr keys.
func WithKeyNames(ecdsaName, schnorrName string) LocalOption {
	return func(l *Local) {
		if ecdsaName != "" {
			l.ecdsaKeyName = ecdsaName
		}
		if schnorrName != "" {
			l.schnorrKeyName = schnorrName
		}
	}
}

// NewLocal builds a local oracle from a mnemonic and optional passphrase.
func NewLocal(mnemonic, passphrase string, opts ...LocalOption) (*Local, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return NewLocalFromSeed(seed, opts...)
}

// NewLocalFromSeed builds a local oracle from a BIP-39 seed.
func NewLocalFromSeed(seed []byte, opts ...LocalOption) (*Local, error) {
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	l := &Local{master: master, ecdsaKeyName: DefaultECDSAKeyName, schnorrKeyName: DefaultSchnorrKeyName}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Local) keyName(algo Algorithm) string {
	if algo == ECDSASecp256k1 {
		return l.ecdsaKeyName
	}
	return l.schnorrKeyName
}

// childIndex maps a path component to a hardened index.
func childIndex(component []byte) uint32 {
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(component)))
	h := blake3.Sum256(append(lenPrefix[:], component...))
	return binary.BigEndian.Uint32(h[:4]) | bip32.FirstHardenedChild
}

func (l *Local) derive(path Path, algo Algorithm) (*bip32.Key, error) {
	switch algo {
	case ECDSASecp256k1, SchnorrBIP340, SchnorrEd25519:
	default:
		return nil, ErrUnknownAlgorithm
	}
	key, err := l.master.NewChildKey(bip32.FirstHardenedChild + uint32(algo))
	if err != nil {
		return nil, fmt.Errorf("derive algorithm branch: %w", err)
	}
	for i, component := range path {
		key, err = key.NewChildKey(childIndex(component))
		if err != nil {
			return nil, fmt.Errorf("derive path component %d: %w", i, err)
		}
	}
	return key, nil
}

func secpKey(k *bip32.Key) *secp256k1.PrivateKey {
	raw := k.Key
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	return secp256k1.PrivKeyFromBytes(raw)
}

func edKey(k *bip32.Key) ed25519.PrivateKey {
	h := blake3.Sum256(append([]byte(ed25519Domain), secpKey(k).Serialize()...))
	return ed25519.NewKeyFromSeed(h[:])
}

// PublicKey returns the public key at path.
func (l *Local) PublicKey(ctx context.Context, path Path, algo Algorithm) (*PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := l.derive(path, algo)
	if err != nil {
		return nil, err
	}
	var pub []byte
	if algo == SchnorrEd25519 {
		pub = []byte(edKey(k).Public().(ed25519.PublicKey))
	} else {
		pub = secpKey(k).PubKey().SerializeCompressed()
	}
	return &PublicKey{Key: pub, KeyName: l.keyName(algo)}, nil
}

// Sign signs req.Message with the key at req.Path.
func (l *Local) Sign(ctx context.Context, req SignRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := l.derive(req.Path, req.Algorithm)
	if err != nil {
		return nil, err
	}
	log.Signer.Debug().
		Str("algorithm", req.Algorithm.String()).
		Int("path_len", len(req.Path)).
		Bool("taproot", req.TaprootKeySpend).
		Msg("local sign")

	switch req.Algorithm {
	case ECDSASecp256k1:
		if len(req.Message) != 32 {
			return nil, fmt.Errorf("ecdsa message must be a 32-byte digest, got %d", len(req.Message))
		}
		compact := ecdsa.SignCompact(secpKey(k), req.Message, true)
		return compact[1:], nil
	case SchnorrBIP340:
		if len(req.Message) != 32 {
			return nil, fmt.Errorf("bip340 message must be 32 bytes, got %d", len(req.Message))
		}
		priv := secpKey(k)
		if req.TaprootKeySpend {
			if priv, err = taprootTweak(priv); err != nil {
				return nil, err
			}
		}
		sig, err := schnorr.Sign(priv, req.Message)
		if err != nil {
			return nil, fmt.Errorf("bip340 sign: %w", err)
		}
		return sig.Serialize(), nil
	case SchnorrEd25519:
		return ed25519.Sign(edKey(k), req.Message), nil
	}
	return nil, ErrUnknownAlgorithm
}

// taprootTweak returns d' = d + TaggedHash("TapTweak", x(P)) with d negated
// first when P has an odd y coordinate.
func taprootTweak(priv *secp256k1.PrivateKey) (*secp256k1.PrivateKey, error) {
	pub := priv.PubKey().SerializeCompressed()
	d := priv.Key
	if pub[0] == 0x03 {
		d.Negate()
	}
	tweak := crypto.TaggedHash("TapTweak", pub[1:])
	var t secp256k1.ModNScalar
	if overflow := t.SetBytes((*[32]byte)(&tweak)); overflow != 0 {
		return nil, fmt.Errorf("taproot tweak exceeds curve order")
	}
	d.Add(&t)
	if d.IsZero() {
		return nil, fmt.Errorf("tweaked taproot key is zero")
	}
	return secp256k1.NewPrivateKey(&d), nil
}
