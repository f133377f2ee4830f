package crypto

import (
	"bytes"
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"

	"signalcore/internal/protoerr"
	"signalcore/internal/util/memzero"
)

const (
	// DJBType is the type tag prefixed to serialized Curve25519 public keys.
	DJBType byte = 0x05

	// KeyLength is the width of a raw Curve25519 scalar or point.
	KeyLength = 32

	// SerializedPublicKeyLength is the width of a tagged public key.
	SerializedPublicKeyLength = KeyLength + 1
)

// PublicKey is a Curve25519 (Montgomery u) public key.
type PublicKey [KeyLength]byte

// PrivateKey is a clamped Curve25519 scalar.
type PrivateKey [KeyLength]byte

// KeyPair couples a private key with its public key.
type KeyPair struct {
	PublicKey  PublicKey
	PrivateKey PrivateKey
}

// Slice returns the raw 32 bytes.
func (k PublicKey) Slice() []byte { return k[:] }

// Serialize returns the type byte followed by the point.
func (k PublicKey) Serialize() []byte {
	out := make([]byte, 0, SerializedPublicKeyLength)
	out = append(out, DJBType)
	return append(out, k[:]...)
}

// Equal compares two public keys in constant time.
func (k PublicKey) Equal(other PublicKey) bool {
	return subtle.ConstantTimeCompare(k[:], other[:]) == 1
}

// Compare orders public keys by type and then by key bytes.
func (k PublicKey) Compare(other PublicKey) int {
	return bytes.Compare(k.Serialize(), other.Serialize())
}

// DeserializePublicKey parses a tagged public key.
func DeserializePublicKey(b []byte) (PublicKey, error) {
	var pub PublicKey
	if len(b) == 0 {
		return pub, fmt.Errorf("public key: no key type identifier: %w", protoerr.ErrInvalidKey)
	}
	if b[0] != DJBType {
		return pub, fmt.Errorf("public key: bad key type 0x%02x: %w", b[0], protoerr.ErrInvalidKey)
	}
	if len(b) != SerializedPublicKeyLength {
		return pub, fmt.Errorf("public key: bad length %d: %w", len(b), protoerr.ErrInvalidKey)
	}
	copy(pub[:], b[1:])
	return pub, nil
}

// Slice returns the raw scalar bytes.
func (k PrivateKey) Slice() []byte { return k[:] }

// Serialize returns the raw 32-byte scalar.
func (k PrivateKey) Serialize() []byte {
	return append([]byte(nil), k[:]...)
}

// PublicKey computes the matching public key.
func (k PrivateKey) PublicKey() (PublicKey, error) {
	var pub PublicKey
	pb, err := curve25519.X25519(k.Slice(), curve25519.Basepoint)
	if err != nil {
		return pub, fmt.Errorf("derive public key: %w", protoerr.ErrInvalidKey)
	}
	copy(pub[:], pb)
	return pub, nil
}

// Agree computes the X25519 shared secret with pub.
func (k PrivateKey) Agree(pub PublicKey) ([]byte, error) {
	secret, err := curve25519.X25519(k.Slice(), pub.Slice())
	if err != nil {
		// x/crypto rejects low-order points that yield an all-zero secret.
		return nil, fmt.Errorf("key agreement: %v: %w", err, protoerr.ErrInvalidKey)
	}
	return secret, nil
}

// DeserializePrivateKey parses a raw 32-byte scalar, or a 33-byte scalar
// carrying the DJB type tag, and clamps it.
func DeserializePrivateKey(b []byte) (PrivateKey, error) {
	var priv PrivateKey
	switch {
	case len(b) == KeyLength:
		copy(priv[:], b)
	case len(b) == KeyLength+1 && b[0] == DJBType:
		copy(priv[:], b[1:])
	default:
		return priv, fmt.Errorf("private key: bad length %d: %w", len(b), protoerr.ErrInvalidKey)
	}
	clamp(&priv)
	return priv, nil
}

// GenerateKeyPair returns a fresh Curve25519 key pair drawn from rng.
// The private key is clamped per RFC 7748.
func GenerateKeyPair(rng io.Reader) (KeyPair, error) {
	var seed [KeyLength]byte
	if _, err := io.ReadFull(rng, seed[:]); err != nil {
		return KeyPair{}, fmt.Errorf("generate key pair: %w", err)
	}
	priv, err := DeserializePrivateKey(seed[:])
	memzero.Zero(seed[:])
	if err != nil {
		return KeyPair{}, err
	}
	pub, err := priv.PublicKey()
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// NewKeyPair rebuilds a key pair from its private half.
func NewKeyPair(priv PrivateKey) (KeyPair, error) {
	pub, err := priv.PublicKey()
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// Agree computes the shared secret between our private key and pub.
func (kp KeyPair) Agree(pub PublicKey) ([]byte, error) { return kp.PrivateKey.Agree(pub) }

// Sign produces an XEdDSA signature with the private key.
func (kp KeyPair) Sign(rng io.Reader, msg ...[]byte) ([]byte, error) {
	return kp.PrivateKey.Sign(rng, msg...)
}

func clamp(k *PrivateKey) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}
