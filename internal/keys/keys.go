package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base32"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Kind is the single-letter prefix identifying what a key pair belongs to.
type Kind byte

const (
	KindHost      Kind = 'H'
	KindComponent Kind = 'C'
	KindProvider  Kind = 'P'
	KindSigning   Kind = 'S'
)

var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// KeyPair is an ed25519 key pair with a typed public-key identity.
type KeyPair struct {
	kind Kind
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// Generate creates a fresh key pair of the given kind.
func Generate(kind Kind) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keys: generate: %w", err)
	}
	return &KeyPair{kind: kind, pub: pub, priv: priv}, nil
}

// FromSeed reconstructs a key pair from a 32-byte seed.
func FromSeed(kind Kind, seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keys: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{kind: kind, pub: priv.Public().(ed25519.PublicKey), priv: priv}, nil
}

// PublicKeyID returns the kind-prefixed, base32-encoded public key.
func (k *KeyPair) PublicKeyID() string {
	return string(k.kind) + idEncoding.EncodeToString(k.pub)
}

func (k *KeyPair) Kind() Kind                  { return k.kind }
func (k *KeyPair) Public() ed25519.PublicKey   { return k.pub }
func (k *KeyPair) Private() ed25519.PrivateKey { return k.priv }

// Sign signs msg with the private key.
func (k *KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// Seed returns the 32-byte seed for persistence.
func (k *KeyPair) Seed() []byte {
	return k.priv.Seed()
}

// PublicKeyFromID decodes a kind-prefixed identity back into a public key.
func PublicKeyFromID(id string) (ed25519.PublicKey, error) {
	if len(id) < 2 {
		return nil, errors.New("keys: identity too short")
	}
	raw, err := idEncoding.DecodeString(id[1:])
	if err != nil {
		return nil, fmt.Errorf("keys: decode identity: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("keys: identity decodes to %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// Verify checks sig over msg against the public key encoded in id.
func Verify(id string, msg, sig []byte) bool {
	pub, err := PublicKeyFromID(id)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// KindOf reports the kind prefix of an identity, or 0 if it does not parse.
func KindOf(id string) Kind {
	if _, err := PublicKeyFromID(id); err != nil {
		return 0
	}
	return Kind(id[0])
}

const seedPEMType = "MESHHOST SEED"

// SaveSeed writes the key seed as a PEM block with owner-only permissions.
func SaveSeed(path string, k *KeyPair) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return pem.Encode(f, &pem.Block{
		Type:    seedPEMType,
		Headers: map[string]string{"Kind": string(k.kind)},
		Bytes:   k.Seed(),
	})
}

// LoadSeed reads a key pair previously written by SaveSeed.
func LoadSeed(path string) (*KeyPair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	blk, _ := pem.Decode(raw)
	if blk == nil || blk.Type != seedPEMType {
		return nil, fmt.Errorf("keys: %s is not a seed file", path)
	}
	kind := KindHost
	if s := blk.Headers["Kind"]; len(s) == 1 {
		kind = Kind(s[0])
	}
	return FromSeed(kind, blk.Bytes)
}

// LoadOrGenerate returns the host key stored under dir, creating it on
// first use.
func LoadOrGenerate(dir string, kind Kind) (*KeyPair, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, string(kind)+".seed")
	if _, err := os.Stat(path); err == nil {
		return LoadSeed(path)
	}
	k, err := Generate(kind)
	if err != nil {
		return nil, err
	}
	if err := SaveSeed(path, k); err != nil {
		return nil, err
	}
	return k, nil
}

// SigningContext is the per-instantiation signing material handed to an
// execution host: the stable host key plus a fresh instance key.
type SigningContext struct {
	Host     *KeyPair
	Instance *KeyPair
}

// NewSigningContext derives a fresh signing context from the host key.
func NewSigningContext(host *KeyPair) (*SigningContext, error) {
	inst, err := Generate(KindSigning)
	if err != nil {
		return nil, err
	}
	return &SigningContext{Host: host, Instance: inst}, nil
}
