package prekey

import (
	"fmt"
	"io"

	"signalcore/internal/codec"
	"signalcore/internal/crypto"
	"signalcore/internal/kem"
)

// PreKeyRecord is a stored one-time pre-key.
type PreKeyRecord struct {
	id      uint32
	keyPair crypto.KeyPair
}

// NewPreKeyRecord wraps a one-time pre-key pair.
func NewPreKeyRecord(id uint32, kp crypto.KeyPair) *PreKeyRecord {
	return &PreKeyRecord{id: id, keyPair: kp}
}

// GeneratePreKey draws a fresh one-time pre-key.
func GeneratePreKey(rng io.Reader, id uint32) (*PreKeyRecord, error) {
	kp, err := crypto.GenerateKeyPair(rng)
	if err != nil {
		return nil, err
	}
	return NewPreKeyRecord(id, kp), nil
}

// ID is the pre-key id.
func (r *PreKeyRecord) ID() uint32 { return r.id }

// KeyPair is the pre-key pair.
func (r *PreKeyRecord) KeyPair() crypto.KeyPair { return r.keyPair }

// PublicKey is the published half.
func (r *PreKeyRecord) PublicKey() crypto.PublicKey { return r.keyPair.PublicKey }

// Serialize encodes the record as PreKeyRecordStructure.
func (r *PreKeyRecord) Serialize() []byte {
	return codec.NewEncoder().
		OptUint32(1, r.id).
		Bytes(2, r.keyPair.PublicKey.Serialize()).
		Bytes(3, r.keyPair.PrivateKey.Serialize()).
		Encoded()
}

// DeserializePreKeyRecord decodes a PreKeyRecordStructure.
func DeserializePreKeyRecord(b []byte) (*PreKeyRecord, error) {
	f, err := decodeRecord(b)
	if err != nil {
		return nil, fmt.Errorf("pre-key record: %w", err)
	}
	kp, err := f.curveKeyPair()
	if err != nil {
		return nil, fmt.Errorf("pre-key record: %w", err)
	}
	return &PreKeyRecord{id: f.id, keyPair: kp}, nil
}

// SignedPreKeyRecord is a stored signed pre-key.
type SignedPreKeyRecord struct {
	id        uint32
	timestamp uint64
	keyPair   crypto.KeyPair
	signature []byte
}

// NewSignedPreKeyRecord wraps a signed pre-key pair.
func NewSignedPreKeyRecord(id uint32, timestamp uint64, kp crypto.KeyPair, signature []byte) *SignedPreKeyRecord {
	return &SignedPreKeyRecord{id: id, timestamp: timestamp, keyPair: kp, signature: append([]byte(nil), signature...)}
}

// GenerateSignedPreKey draws a fresh pre-key and signs its serialized public
// key with identity.
func GenerateSignedPreKey(rng io.Reader, identity crypto.IdentityKeyPair, id uint32, timestamp uint64) (*SignedPreKeyRecord, error) {
	kp, err := crypto.GenerateKeyPair(rng)
	if err != nil {
		return nil, err
	}
	sig, err := identity.Sign(rng, kp.PublicKey.Serialize())
	if err != nil {
		return nil, fmt.Errorf("sign pre-key: %w", err)
	}
	return NewSignedPreKeyRecord(id, timestamp, kp, sig), nil
}

// ID is the signed pre-key id.
func (r *SignedPreKeyRecord) ID() uint32 { return r.id }

// Timestamp is the creation time in milliseconds since the epoch.
func (r *SignedPreKeyRecord) Timestamp() uint64 { return r.timestamp }

// KeyPair is the signed pre-key pair.
func (r *SignedPreKeyRecord) KeyPair() crypto.KeyPair { return r.keyPair }

// PublicKey is the published half.
func (r *SignedPreKeyRecord) PublicKey() crypto.PublicKey { return r.keyPair.PublicKey }

// Signature is the identity signature over the serialized public key.
func (r *SignedPreKeyRecord) Signature() []byte { return r.signature }

// Serialize encodes the record as SignedPreKeyRecordStructure.
func (r *SignedPreKeyRecord) Serialize() []byte {
	return encodeSigned(r.id, r.keyPair.PublicKey.Serialize(), r.keyPair.PrivateKey.Serialize(), r.signature, r.timestamp)
}

// DeserializeSignedPreKeyRecord decodes a SignedPreKeyRecordStructure.
func DeserializeSignedPreKeyRecord(b []byte) (*SignedPreKeyRecord, error) {
	f, err := decodeRecord(b)
	if err != nil {
		return nil, fmt.Errorf("signed pre-key record: %w", err)
	}
	kp, err := f.curveKeyPair()
	if err != nil {
		return nil, fmt.Errorf("signed pre-key record: %w", err)
	}
	return &SignedPreKeyRecord{id: f.id, timestamp: f.timestamp, keyPair: kp, signature: f.signature}, nil
}

// KyberPreKeyRecord is a stored signed Kyber1024 pre-key.
type KyberPreKeyRecord struct {
	id        uint32
	timestamp uint64
	keyPair   kem.KeyPair
	signature []byte
}

// NewKyberPreKeyRecord wraps a signed Kyber pre-key pair.
func NewKyberPreKeyRecord(id uint32, timestamp uint64, kp kem.KeyPair, signature []byte) *KyberPreKeyRecord {
	return &KyberPreKeyRecord{id: id, timestamp: timestamp, keyPair: kp, signature: append([]byte(nil), signature...)}
}

// GenerateKyberPreKey draws a fresh Kyber1024 pair and signs its serialized
// public key with identity.
func GenerateKyberPreKey(rng io.Reader, identity crypto.IdentityKeyPair, id uint32, timestamp uint64) (*KyberPreKeyRecord, error) {
	kp, err := kem.GenerateKeyPair(rng)
	if err != nil {
		return nil, err
	}
	sig, err := identity.Sign(rng, kp.PublicKey.Serialize())
	if err != nil {
		return nil, fmt.Errorf("sign kyber pre-key: %w", err)
	}
	return NewKyberPreKeyRecord(id, timestamp, kp, sig), nil
}

// ID is the Kyber pre-key id.
func (r *KyberPreKeyRecord) ID() uint32 { return r.id }

// Timestamp is the creation time in milliseconds since the epoch.
func (r *KyberPreKeyRecord) Timestamp() uint64 { return r.timestamp }

// KeyPair is the Kyber key pair.
func (r *KyberPreKeyRecord) KeyPair() kem.KeyPair { return r.keyPair }

// PublicKey is the published half.
func (r *KyberPreKeyRecord) PublicKey() kem.PublicKey { return r.keyPair.PublicKey }

// SecretKey is the decapsulation half.
func (r *KyberPreKeyRecord) SecretKey() kem.SecretKey { return r.keyPair.SecretKey }

// Signature is the identity signature over the serialized public key.
func (r *KyberPreKeyRecord) Signature() []byte { return r.signature }

// Serialize encodes the record as SignedPreKeyRecordStructure with Kyber key
// bytes.
func (r *KyberPreKeyRecord) Serialize() []byte {
	return encodeSigned(r.id, r.keyPair.PublicKey.Serialize(), r.keyPair.SecretKey.Serialize(), r.signature, r.timestamp)
}

// DeserializeKyberPreKeyRecord decodes a Kyber pre-key record.
func DeserializeKyberPreKeyRecord(b []byte) (*KyberPreKeyRecord, error) {
	f, err := decodeRecord(b)
	if err != nil {
		return nil, fmt.Errorf("kyber pre-key record: %w", err)
	}
	pub, err := kem.DeserializePublicKey(f.pub)
	if err != nil {
		return nil, fmt.Errorf("kyber pre-key record: %w", err)
	}
	sec, err := kem.DeserializeSecretKey(f.priv)
	if err != nil {
		return nil, fmt.Errorf("kyber pre-key record: %w", err)
	}
	return &KyberPreKeyRecord{
		id:        f.id,
		timestamp: f.timestamp,
		keyPair:   kem.KeyPair{PublicKey: pub, SecretKey: sec},
		signature: f.signature,
	}, nil
}

func encodeSigned(id uint32, pub, priv, sig []byte, timestamp uint64) []byte {
	enc := codec.NewEncoder().
		OptUint32(1, id).
		Bytes(2, pub).
		Bytes(3, priv).
		Bytes(4, sig)
	if timestamp != 0 {
		enc.Fixed64(5, timestamp)
	}
	return enc.Encoded()
}

type recordFields struct {
	id        uint32
	pub       []byte
	priv      []byte
	signature []byte
	timestamp uint64
}

func decodeRecord(b []byte) (recordFields, error) {
	var r recordFields
	err := codec.Walk(b, func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			r.id, err = f.Uint32()
		case 2:
			r.pub, err = f.Bytes()
		case 3:
			r.priv, err = f.Bytes()
		case 4:
			r.signature, err = f.Bytes()
		case 5:
			r.timestamp, err = f.Fixed64()
		}
		return err
	})
	return r, err
}

func (r recordFields) curveKeyPair() (crypto.KeyPair, error) {
	pub, err := crypto.DeserializePublicKey(r.pub)
	if err != nil {
		return crypto.KeyPair{}, err
	}
	priv, err := crypto.DeserializePrivateKey(r.priv)
	if err != nil {
		return crypto.KeyPair{}, err
	}
	return crypto.KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}
