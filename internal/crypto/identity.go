package crypto

import (
	"fmt"
	"io"

	"signalcore/internal/codec"
	"signalcore/internal/protoerr"
)

// IdentityKey is the long-term public key identifying an account.
type IdentityKey struct {
	PublicKey PublicKey
}

// NewIdentityKey wraps pub as an identity key.
func NewIdentityKey(pub PublicKey) IdentityKey { return IdentityKey{PublicKey: pub} }

// Serialize returns the tagged public key encoding.
func (k IdentityKey) Serialize() []byte { return k.PublicKey.Serialize() }

// Equal compares two identity keys in constant time.
func (k IdentityKey) Equal(other IdentityKey) bool { return k.PublicKey.Equal(other.PublicKey) }

// Verify checks an XEdDSA signature made by the identity private key.
func (k IdentityKey) Verify(sig []byte, msg ...[]byte) (bool, error) {
	return k.PublicKey.Verify(sig, msg...)
}

// DeserializeIdentityKey parses a tagged public key as an identity key.
func DeserializeIdentityKey(b []byte) (IdentityKey, error) {
	pub, err := DeserializePublicKey(b)
	if err != nil {
		return IdentityKey{}, err
	}
	return IdentityKey{PublicKey: pub}, nil
}

// IdentityKeyPair is the long-term identity key with its private half.
// It is immutable once created.
type IdentityKeyPair struct {
	IdentityKey IdentityKey
	PrivateKey  PrivateKey
}

// GenerateIdentityKeyPair draws a fresh identity from rng.
func GenerateIdentityKeyPair(rng io.Reader) (IdentityKeyPair, error) {
	kp, err := GenerateKeyPair(rng)
	if err != nil {
		return IdentityKeyPair{}, err
	}
	return IdentityKeyPair{IdentityKey: NewIdentityKey(kp.PublicKey), PrivateKey: kp.PrivateKey}, nil
}

// PublicKey returns the identity public key.
func (p IdentityKeyPair) PublicKey() PublicKey { return p.IdentityKey.PublicKey }

// KeyPair returns the identity as a plain key pair.
func (p IdentityKeyPair) KeyPair() KeyPair {
	return KeyPair{PublicKey: p.IdentityKey.PublicKey, PrivateKey: p.PrivateKey}
}

// Sign signs msg with the identity private key.
func (p IdentityKeyPair) Sign(rng io.Reader, msg ...[]byte) ([]byte, error) {
	return p.PrivateKey.Sign(rng, msg...)
}

// Serialize encodes the pair as protobuf {1: public key, 2: private key}.
func (p IdentityKeyPair) Serialize() []byte {
	return codec.NewEncoder().
		Bytes(1, p.IdentityKey.Serialize()).
		Bytes(2, p.PrivateKey.Serialize()).
		Encoded()
}

// DeserializeIdentityKeyPair parses the protobuf form written by Serialize.
func DeserializeIdentityKeyPair(b []byte) (IdentityKeyPair, error) {
	var pubBytes, privBytes []byte
	err := codec.Walk(b, func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			pubBytes, err = f.Bytes()
		case 2:
			privBytes, err = f.Bytes()
		}
		return err
	})
	if err != nil {
		return IdentityKeyPair{}, fmt.Errorf("identity key pair: %w", err)
	}
	if pubBytes == nil || privBytes == nil {
		return IdentityKeyPair{}, fmt.Errorf("identity key pair: missing key: %w", protoerr.ErrInvalidKey)
	}
	ik, err := DeserializeIdentityKey(pubBytes)
	if err != nil {
		return IdentityKeyPair{}, err
	}
	priv, err := DeserializePrivateKey(privBytes)
	if err != nil {
		return IdentityKeyPair{}, err
	}
	return IdentityKeyPair{IdentityKey: ik, PrivateKey: priv}, nil
}
