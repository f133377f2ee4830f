package sealedsender

import (
	"crypto/subtle"
	"fmt"
	"io"

	"signalcore/internal/codec"
	"signalcore/internal/crypto"
	"signalcore/internal/kdf"
	"signalcore/internal/protoerr"
)

// Version is the leading byte of every envelope we produce: major 1, minor 1.
const Version byte = 0x11

const majorVersion = Version >> 4

var ephemeralSaltPrefix = []byte("UnidentifiedDelivery")

// Envelope is the outer UnidentifiedSenderMessage. Only the ephemeral public
// key travels in the clear.
type Envelope struct {
	version          byte
	ephemeralPublic  crypto.PublicKey
	encryptedStatic  []byte
	encryptedMessage []byte
	serialized       []byte
}

// NewEnvelope frames an already encrypted static key and message under the
// sender's ephemeral public key.
func NewEnvelope(ephemeral crypto.PublicKey, encryptedStatic, encryptedMessage []byte) *Envelope {
	serialized := codec.NewEncoder(Version).
		Bytes(1, ephemeral.Serialize()).
		Bytes(2, encryptedStatic).
		Bytes(3, encryptedMessage).
		Encoded()
	return &Envelope{
		version:          Version,
		ephemeralPublic:  ephemeral,
		encryptedStatic:  append([]byte(nil), encryptedStatic...),
		encryptedMessage: append([]byte(nil), encryptedMessage...),
		serialized:       serialized,
	}
}

// DeserializeEnvelope parses the outer framing.
func DeserializeEnvelope(b []byte) (*Envelope, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("sealed envelope: empty: %w", protoerr.ErrInvalidMessage)
	}
	if b[0]>>4 != majorVersion {
		return nil, fmt.Errorf("sealed envelope version %d: %w", b[0]>>4, protoerr.ErrUnknownSealedSenderVersion)
	}
	var (
		e   = Envelope{version: b[0], serialized: append([]byte(nil), b...)}
		eph []byte
	)
	err := codec.Walk(b[1:], func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			eph, err = f.Bytes()
		case 2:
			e.encryptedStatic, err = f.Bytes()
		case 3:
			e.encryptedMessage, err = f.Bytes()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sealed envelope: %w", err)
	}
	if eph == nil || e.encryptedStatic == nil || e.encryptedMessage == nil {
		return nil, fmt.Errorf("sealed envelope: missing required field: %w", protoerr.ErrInvalidMessage)
	}
	if e.ephemeralPublic, err = crypto.DeserializePublicKey(eph); err != nil {
		return nil, fmt.Errorf("sealed envelope ephemeral key: %w", err)
	}
	return &e, nil
}

// Version is the leading version byte.
func (e *Envelope) Version() byte { return e.version }

// EphemeralPublic is the sender's one-time public key.
func (e *Envelope) EphemeralPublic() crypto.PublicKey { return e.ephemeralPublic }

// EncryptedStatic is the sender's identity key sealed under the ephemeral
// agreement.
func (e *Envelope) EncryptedStatic() []byte { return e.encryptedStatic }

// EncryptedMessage is the sealed Content.
func (e *Envelope) EncryptedMessage() []byte { return e.encryptedMessage }

// Serialize returns the wire bytes.
func (e *Envelope) Serialize() []byte { return e.serialized }

// Encrypt seals content for the holder of destination. The sender's identity
// is only recoverable with destination's private key.
func Encrypt(rng io.Reader, destination crypto.IdentityKey, ourIdentity crypto.IdentityKeyPair, content *Content) ([]byte, error) {
	ephemeral, err := crypto.GenerateKeyPair(rng)
	if err != nil {
		return nil, fmt.Errorf("sealed sender ephemeral key: %w", err)
	}
	eph, err := ephemeralKeys(ephemeral.PrivateKey, destination.PublicKey, destination.PublicKey, ephemeral.PublicKey)
	if err != nil {
		return nil, err
	}
	staticCt, err := crypto.AESCTRHMACSeal(ourIdentity.IdentityKey.Serialize(), eph.cipherKey, eph.macKey)
	if err != nil {
		return nil, fmt.Errorf("seal static key: %w", err)
	}
	st, err := staticKeys(ourIdentity.PrivateKey, destination.PublicKey, eph.chainKey, staticCt)
	if err != nil {
		return nil, err
	}
	messageCt, err := crypto.AESCTRHMACSeal(content.Serialize(), st.cipherKey, st.macKey)
	if err != nil {
		return nil, fmt.Errorf("seal message: %w", err)
	}
	return NewEnvelope(ephemeral.PublicKey, staticCt, messageCt).Serialize(), nil
}

// DecryptToContent opens an envelope addressed to ourIdentity. It checks that
// the encrypted static key matches the sender certificate key but does not
// validate the certificate itself.
func DecryptToContent(ourIdentity crypto.IdentityKeyPair, b []byte) (*Content, error) {
	env, err := DeserializeEnvelope(b)
	if err != nil {
		return nil, err
	}
	ourPub := ourIdentity.PublicKey()
	eph, err := ephemeralKeys(ourIdentity.PrivateKey, env.ephemeralPublic, ourPub, env.ephemeralPublic)
	if err != nil {
		return nil, err
	}
	staticBytes, err := crypto.AESCTRHMACOpen(env.encryptedStatic, eph.cipherKey, eph.macKey)
	if err != nil {
		return nil, fmt.Errorf("open static key: %w", err)
	}
	staticKey, err := crypto.DeserializePublicKey(staticBytes)
	if err != nil {
		return nil, fmt.Errorf("sealed sender static key: %w", err)
	}
	st, err := staticKeys(ourIdentity.PrivateKey, staticKey, eph.chainKey, env.encryptedStatic)
	if err != nil {
		return nil, err
	}
	messageBytes, err := crypto.AESCTRHMACOpen(env.encryptedMessage, st.cipherKey, st.macKey)
	if err != nil {
		return nil, fmt.Errorf("open message: %w", err)
	}
	content, err := DeserializeContent(messageBytes)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(staticBytes, content.Sender().Key().Serialize()) != 1 {
		return nil, fmt.Errorf("sender certificate key does not match static key: %w", protoerr.ErrInvalidMessage)
	}
	return content, nil
}

type derivedKeys struct {
	chainKey  []byte
	cipherKey []byte
	macKey    []byte
}

// ephemeralKeys derives the first-layer keys. The salt always orders the
// recipient's identity key before the ephemeral key, whichever side computes.
func ephemeralKeys(ours crypto.PrivateKey, theirs, recipient, ephemeral crypto.PublicKey) (derivedKeys, error) {
	salt := make([]byte, 0, len(ephemeralSaltPrefix)+2*33)
	salt = append(salt, ephemeralSaltPrefix...)
	salt = append(salt, recipient.Serialize()...)
	salt = append(salt, ephemeral.Serialize()...)
	return derive(ours, theirs, salt)
}

func staticKeys(ours crypto.PrivateKey, theirs crypto.PublicKey, chainKey, staticCt []byte) (derivedKeys, error) {
	salt := make([]byte, 0, len(chainKey)+len(staticCt))
	salt = append(salt, chainKey...)
	salt = append(salt, staticCt...)
	return derive(ours, theirs, salt)
}

func derive(ours crypto.PrivateKey, theirs crypto.PublicKey, salt []byte) (derivedKeys, error) {
	shared, err := ours.Agree(theirs)
	if err != nil {
		return derivedKeys{}, fmt.Errorf("sealed sender agreement: %w", err)
	}
	out, err := kdf.V3.DeriveSaltedSecrets(shared, salt, nil, 96)
	if err != nil {
		return derivedKeys{}, err
	}
	return derivedKeys{chainKey: out[:32], cipherKey: out[32:64], macKey: out[64:96]}, nil
}
