package prekey

import (
	"fmt"

	"signalcore/internal/codec"
	"signalcore/internal/crypto"
	"signalcore/internal/kem"
	"signalcore/internal/protoerr"
)

// Bundle is the public key material a device publishes so that others can
// start sessions with it while it is offline.
type Bundle struct {
	registrationID        uint32
	deviceID              uint32
	preKeyID              *uint32
	preKey                *crypto.PublicKey
	signedPreKeyID        uint32
	signedPreKey          crypto.PublicKey
	signedPreKeySignature []byte
	identityKey           crypto.IdentityKey
	kyberPreKeyID         *uint32
	kyberPreKey           *kem.PublicKey
	kyberPreKeySignature  []byte
}

// NewBundle assembles a bundle. preKeyID and preKey must both be set or both
// be nil.
func NewBundle(
	registrationID, deviceID uint32,
	preKeyID *uint32, preKey *crypto.PublicKey,
	signedPreKeyID uint32, signedPreKey crypto.PublicKey, signedPreKeySignature []byte,
	identityKey crypto.IdentityKey,
) (*Bundle, error) {
	if (preKeyID == nil) != (preKey == nil) {
		return nil, fmt.Errorf("bundle: pre-key id and pre-key must be set together: %w", protoerr.ErrInvalidArgument)
	}
	b := &Bundle{
		registrationID:        registrationID,
		deviceID:              deviceID,
		signedPreKeyID:        signedPreKeyID,
		signedPreKey:          signedPreKey,
		signedPreKeySignature: append([]byte(nil), signedPreKeySignature...),
		identityKey:           identityKey,
	}
	if preKeyID != nil {
		id, key := *preKeyID, *preKey
		b.preKeyID, b.preKey = &id, &key
	}
	return b, nil
}

// WithKyberPreKey returns a copy of b carrying a signed Kyber pre-key.
func (b *Bundle) WithKyberPreKey(id uint32, key kem.PublicKey, signature []byte) *Bundle {
	c := *b
	c.kyberPreKeyID = &id
	c.kyberPreKey = &key
	c.kyberPreKeySignature = append([]byte(nil), signature...)
	return &c
}

// RegistrationID is the publishing device's registration id.
func (b *Bundle) RegistrationID() uint32 { return b.registrationID }

// DeviceID is the publishing device's id.
func (b *Bundle) DeviceID() uint32 { return b.deviceID }

// PreKey returns the one-time pre-key, if the bundle carries one.
func (b *Bundle) PreKey() (uint32, crypto.PublicKey, bool) {
	if b.preKeyID == nil {
		return 0, crypto.PublicKey{}, false
	}
	return *b.preKeyID, *b.preKey, true
}

// SignedPreKeyID identifies the signed pre-key.
func (b *Bundle) SignedPreKeyID() uint32 { return b.signedPreKeyID }

// SignedPreKey is the medium-term signed pre-key.
func (b *Bundle) SignedPreKey() crypto.PublicKey { return b.signedPreKey }

// SignedPreKeySignature is the identity signature over the serialized signed
// pre-key.
func (b *Bundle) SignedPreKeySignature() []byte { return b.signedPreKeySignature }

// IdentityKey is the publishing account's identity key.
func (b *Bundle) IdentityKey() crypto.IdentityKey { return b.identityKey }

// KyberPreKey returns the Kyber pre-key and its signature, if present.
func (b *Bundle) KyberPreKey() (uint32, kem.PublicKey, []byte, bool) {
	if b.kyberPreKeyID == nil {
		return 0, kem.PublicKey{}, nil, false
	}
	return *b.kyberPreKeyID, *b.kyberPreKey, b.kyberPreKeySignature, true
}

// VerifySignatures checks the signed pre-key signature and, when present,
// the Kyber pre-key signature against the bundle identity.
func (b *Bundle) VerifySignatures() error {
	ok, err := b.identityKey.Verify(b.signedPreKeySignature, b.signedPreKey.Serialize())
	if err != nil || !ok {
		return fmt.Errorf("signed pre-key %d: %w", b.signedPreKeyID, protoerr.ErrSignatureVerificationFailed)
	}
	if b.kyberPreKeyID != nil {
		ok, err := b.identityKey.Verify(b.kyberPreKeySignature, b.kyberPreKey.Serialize())
		if err != nil || !ok {
			return fmt.Errorf("kyber pre-key %d: %w", *b.kyberPreKeyID, protoerr.ErrSignatureVerificationFailed)
		}
	}
	return nil
}

// Serialize encodes the bundle for transport to a key directory.
func (b *Bundle) Serialize() []byte {
	enc := codec.NewEncoder().
		Uint32(1, b.registrationID).
		Uint32(2, b.deviceID)
	if b.preKeyID != nil {
		enc.Uint32(3, *b.preKeyID).Bytes(4, b.preKey.Serialize())
	}
	enc.Uint32(5, b.signedPreKeyID).
		Bytes(6, b.signedPreKey.Serialize()).
		Bytes(7, b.signedPreKeySignature).
		Bytes(8, b.identityKey.Serialize())
	if b.kyberPreKeyID != nil {
		enc.Uint32(9, *b.kyberPreKeyID).
			Bytes(10, b.kyberPreKey.Serialize()).
			Bytes(11, b.kyberPreKeySignature)
	}
	return enc.Encoded()
}

// DeserializeBundle decodes a bundle written by Serialize.
func DeserializeBundle(raw []byte) (*Bundle, error) {
	var (
		b                               Bundle
		preKeyID, kyberID               *uint32
		preKey, spk, identity, kyberKey []byte
	)
	err := codec.Walk(raw, func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			b.registrationID, err = f.Uint32()
		case 2:
			b.deviceID, err = f.Uint32()
		case 3:
			var id uint32
			id, err = f.Uint32()
			preKeyID = &id
		case 4:
			preKey, err = f.Bytes()
		case 5:
			b.signedPreKeyID, err = f.Uint32()
		case 6:
			spk, err = f.Bytes()
		case 7:
			b.signedPreKeySignature, err = f.Bytes()
		case 8:
			identity, err = f.Bytes()
		case 9:
			var id uint32
			id, err = f.Uint32()
			kyberID = &id
		case 10:
			kyberKey, err = f.Bytes()
		case 11:
			b.kyberPreKeySignature, err = f.Bytes()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}

	if b.signedPreKey, err = crypto.DeserializePublicKey(spk); err != nil {
		return nil, fmt.Errorf("bundle signed pre-key: %w", err)
	}
	if b.identityKey, err = crypto.DeserializeIdentityKey(identity); err != nil {
		return nil, fmt.Errorf("bundle identity: %w", err)
	}
	if (preKeyID == nil) != (preKey == nil) {
		return nil, fmt.Errorf("bundle: partial one-time pre-key: %w", protoerr.ErrInvalidMessage)
	}
	if preKeyID != nil {
		pk, err := crypto.DeserializePublicKey(preKey)
		if err != nil {
			return nil, fmt.Errorf("bundle one-time pre-key: %w", err)
		}
		b.preKeyID, b.preKey = preKeyID, &pk
	}
	if (kyberID == nil) != (kyberKey == nil) {
		return nil, fmt.Errorf("bundle: partial kyber pre-key: %w", protoerr.ErrInvalidMessage)
	}
	if kyberID != nil {
		kk, err := kem.DeserializePublicKey(kyberKey)
		if err != nil {
			return nil, fmt.Errorf("bundle kyber pre-key: %w", err)
		}
		b.kyberPreKeyID, b.kyberPreKey = kyberID, &kk
	}
	return &b, nil
}
