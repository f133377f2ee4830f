package kem

import (
	"fmt"
	"io"

	circlkem "github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/kyber/kyber1024"

	"signalcore/internal/protoerr"
)

// Kyber1024Type is the type tag prefixed to serialized Kyber1024 keys and
// ciphertexts.
const Kyber1024Type byte = 0x08

var scheme = kyber1024.Scheme()

// PublicKey is a Kyber1024 encapsulation key.
type PublicKey struct {
	key circlkem.PublicKey
}

// SecretKey is a Kyber1024 decapsulation key.
type SecretKey struct {
	key circlkem.PrivateKey
}

// KeyPair couples a Kyber1024 public and secret key.
type KeyPair struct {
	PublicKey PublicKey
	SecretKey SecretKey
}

// GenerateKeyPair draws a Kyber1024 key pair from rng.
func GenerateKeyPair(rng io.Reader) (KeyPair, error) {
	pk, sk, err := kyber1024.GenerateKeyPair(rng)
	if err != nil {
		return KeyPair{}, fmt.Errorf("kyber keygen: %w", err)
	}
	return KeyPair{PublicKey: PublicKey{key: pk}, SecretKey: SecretKey{key: sk}}, nil
}

// Serialize returns the type byte followed by the packed key.
func (k PublicKey) Serialize() []byte {
	raw, _ := k.key.MarshalBinary()
	return append([]byte{Kyber1024Type}, raw...)
}

// Equal reports whether both keys hold the same encapsulation key.
func (k PublicKey) Equal(other PublicKey) bool {
	if k.key == nil || other.key == nil {
		return k.key == other.key
	}
	return k.key.Equal(other.key)
}

// IsZero reports whether the key is unset.
func (k PublicKey) IsZero() bool { return k.key == nil }

// Serialize returns the type byte followed by the packed secret key.
func (k SecretKey) Serialize() []byte {
	raw, _ := k.key.MarshalBinary()
	return append([]byte{Kyber1024Type}, raw...)
}

// DeserializePublicKey parses a tagged Kyber1024 public key.
func DeserializePublicKey(b []byte) (PublicKey, error) {
	raw, err := untag(b, scheme.PublicKeySize())
	if err != nil {
		return PublicKey{}, fmt.Errorf("kyber public key: %w", err)
	}
	pk, err := scheme.UnmarshalBinaryPublicKey(raw)
	if err != nil {
		return PublicKey{}, fmt.Errorf("kyber public key: %v: %w", err, protoerr.ErrInvalidKey)
	}
	return PublicKey{key: pk}, nil
}

// DeserializeSecretKey parses a tagged Kyber1024 secret key.
func DeserializeSecretKey(b []byte) (SecretKey, error) {
	raw, err := untag(b, scheme.PrivateKeySize())
	if err != nil {
		return SecretKey{}, fmt.Errorf("kyber secret key: %w", err)
	}
	sk, err := scheme.UnmarshalBinaryPrivateKey(raw)
	if err != nil {
		return SecretKey{}, fmt.Errorf("kyber secret key: %v: %w", err, protoerr.ErrInvalidKey)
	}
	return SecretKey{key: sk}, nil
}

// Encapsulate returns a tagged ciphertext and the 32-byte shared secret,
// drawing the encapsulation seed from rng.
func (k PublicKey) Encapsulate(rng io.Reader) (ciphertext, sharedSecret []byte, err error) {
	if k.key == nil {
		return nil, nil, fmt.Errorf("kyber encapsulate: empty key: %w", protoerr.ErrInvalidKey)
	}
	seed := make([]byte, scheme.EncapsulationSeedSize())
	if _, err := io.ReadFull(rng, seed); err != nil {
		return nil, nil, fmt.Errorf("kyber encapsulate: %w", err)
	}
	ct, ss, err := scheme.EncapsulateDeterministically(k.key, seed)
	if err != nil {
		return nil, nil, fmt.Errorf("kyber encapsulate: %v: %w", err, protoerr.ErrInvalidKey)
	}
	return append([]byte{Kyber1024Type}, ct...), ss, nil
}

// Decapsulate recovers the shared secret from a tagged ciphertext.
func (k SecretKey) Decapsulate(ciphertext []byte) ([]byte, error) {
	raw, err := untag(ciphertext, scheme.CiphertextSize())
	if err != nil {
		return nil, fmt.Errorf("kyber ciphertext: %v: %w", err, protoerr.ErrInvalidMessage)
	}
	ss, err := scheme.Decapsulate(k.key, raw)
	if err != nil {
		return nil, fmt.Errorf("kyber decapsulate: %v: %w", err, protoerr.ErrInvalidMessage)
	}
	return ss, nil
}

func untag(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("no key type identifier: %w", protoerr.ErrInvalidKey)
	}
	if b[0] != Kyber1024Type {
		return nil, fmt.Errorf("bad key type 0x%02x: %w", b[0], protoerr.ErrInvalidKey)
	}
	if len(b)-1 != size {
		return nil, fmt.Errorf("bad length %d: %w", len(b)-1, protoerr.ErrInvalidKey)
	}
	return b[1:], nil
}
