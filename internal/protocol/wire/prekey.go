package wire

import (
	"fmt"

	"signalcore/internal/codec"
	"signalcore/internal/crypto"
	"signalcore/internal/protoerr"
)

// PreKeySignalMessage wraps the first SignalMessage(s) of a session with the
// material the recipient needs to run X3DH.
type PreKeySignalMessage struct {
	messageVersion  uint8
	registrationID  uint32
	preKeyID        *uint32
	signedPreKeyID  uint32
	kyberPreKeyID   *uint32
	kyberCiphertext []byte
	baseKey         crypto.PublicKey
	identityKey     crypto.IdentityKey
	message         *SignalMessage
	serialized      []byte
}

// PreKeyParams carries the fields of a PreKeySignalMessage. PreKeyID and
// KyberPreKeyID are nil when the corresponding pre-key was not used.
type PreKeyParams struct {
	MessageVersion  uint8
	RegistrationID  uint32
	PreKeyID        *uint32
	SignedPreKeyID  uint32
	KyberPreKeyID   *uint32
	KyberCiphertext []byte
	BaseKey         crypto.PublicKey
	IdentityKey     crypto.IdentityKey
	Message         *SignalMessage
}

// NewPreKeySignalMessage encodes p. Kyber fields must be both set or both
// absent.
func NewPreKeySignalMessage(p PreKeyParams) (*PreKeySignalMessage, error) {
	if (p.KyberPreKeyID == nil) != (len(p.KyberCiphertext) == 0) {
		return nil, fmt.Errorf("prekey message: kyber id and ciphertext must be set together: %w", protoerr.ErrInvalidArgument)
	}
	if p.Message == nil {
		return nil, fmt.Errorf("prekey message: nil inner message: %w", protoerr.ErrInvalidArgument)
	}

	enc := codec.NewEncoder(versionByte(p.MessageVersion, CurrentVersion)).
		Uint32(5, p.RegistrationID)
	if p.PreKeyID != nil {
		enc.Uint32(1, *p.PreKeyID)
	}
	enc.Uint32(6, p.SignedPreKeyID)
	if p.KyberPreKeyID != nil {
		enc.Uint32(7, *p.KyberPreKeyID).Bytes(8, p.KyberCiphertext)
	}
	enc.Bytes(2, p.BaseKey.Serialize()).
		Bytes(3, p.IdentityKey.Serialize()).
		Bytes(4, p.Message.Serialize())

	return &PreKeySignalMessage{
		messageVersion:  p.MessageVersion,
		registrationID:  p.RegistrationID,
		preKeyID:        p.PreKeyID,
		signedPreKeyID:  p.SignedPreKeyID,
		kyberPreKeyID:   p.KyberPreKeyID,
		kyberCiphertext: append([]byte(nil), p.KyberCiphertext...),
		baseKey:         p.BaseKey,
		identityKey:     p.IdentityKey,
		message:         p.Message,
		serialized:      enc.Encoded(),
	}, nil
}

// DeserializePreKeySignalMessage parses and validates a PreKeySignalMessage,
// including the embedded SignalMessage.
func DeserializePreKeySignalMessage(b []byte) (*PreKeySignalMessage, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("prekey message: empty: %w", protoerr.ErrInvalidMessage)
	}
	version, err := checkVersion(b[0], PreKyberVersion, CurrentVersion)
	if err != nil {
		return nil, err
	}

	var (
		m                        PreKeySignalMessage
		baseKey, identity, inner []byte
		haveSignedPreKey         bool
	)
	err = codec.Walk(b[1:], func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			var id uint32
			id, err = f.Uint32()
			m.preKeyID = &id
		case 2:
			baseKey, err = f.Bytes()
		case 3:
			identity, err = f.Bytes()
		case 4:
			inner, err = f.Bytes()
		case 5:
			m.registrationID, err = f.Uint32()
		case 6:
			m.signedPreKeyID, err = f.Uint32()
			haveSignedPreKey = true
		case 7:
			var id uint32
			id, err = f.Uint32()
			m.kyberPreKeyID = &id
		case 8:
			m.kyberCiphertext, err = f.Bytes()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("prekey message: %w", err)
	}

	switch {
	case !haveSignedPreKey:
		return nil, missing("prekey message", "signed pre-key id")
	case baseKey == nil:
		return nil, missing("prekey message", "base key")
	case identity == nil:
		return nil, missing("prekey message", "identity key")
	case inner == nil:
		return nil, missing("prekey message", "inner message")
	}
	if (m.kyberPreKeyID == nil) != (m.kyberCiphertext == nil) {
		return nil, fmt.Errorf("prekey message: partial kyber fields: %w", protoerr.ErrInvalidMessage)
	}
	if version > PreKyberVersion && m.kyberPreKeyID == nil {
		return nil, missing("prekey message", "kyber pre-key")
	}

	if m.baseKey, err = crypto.DeserializePublicKey(baseKey); err != nil {
		return nil, fmt.Errorf("prekey message base key: %w", err)
	}
	if m.identityKey, err = crypto.DeserializeIdentityKey(identity); err != nil {
		return nil, fmt.Errorf("prekey message identity key: %w", err)
	}
	if m.message, err = DeserializeSignalMessage(inner); err != nil {
		return nil, err
	}
	m.messageVersion = version
	m.serialized = append([]byte(nil), b...)
	return &m, nil
}

// MessageVersion is the session version the sender negotiated.
func (m *PreKeySignalMessage) MessageVersion() uint8 { return m.messageVersion }

// RegistrationID is the sender's registration id, or zero if absent.
func (m *PreKeySignalMessage) RegistrationID() uint32 { return m.registrationID }

// PreKeyID is the one-time pre-key id the sender used, if any.
func (m *PreKeySignalMessage) PreKeyID() (uint32, bool) {
	if m.preKeyID == nil {
		return 0, false
	}
	return *m.preKeyID, true
}

// SignedPreKeyID is the signed pre-key the sender used.
func (m *PreKeySignalMessage) SignedPreKeyID() uint32 { return m.signedPreKeyID }

// KyberPreKeyID is the Kyber pre-key id the sender used, if any.
func (m *PreKeySignalMessage) KyberPreKeyID() (uint32, bool) {
	if m.kyberPreKeyID == nil {
		return 0, false
	}
	return *m.kyberPreKeyID, true
}

// KyberCiphertext is the KEM ciphertext for the Kyber pre-key, if any.
func (m *PreKeySignalMessage) KyberCiphertext() []byte { return m.kyberCiphertext }

// BaseKey is the sender's X3DH ephemeral public key.
func (m *PreKeySignalMessage) BaseKey() crypto.PublicKey { return m.baseKey }

// IdentityKey is the sender's identity key.
func (m *PreKeySignalMessage) IdentityKey() crypto.IdentityKey { return m.identityKey }

// Message is the embedded SignalMessage.
func (m *PreKeySignalMessage) Message() *SignalMessage { return m.message }

// Serialize returns the wire bytes.
func (m *PreKeySignalMessage) Serialize() []byte { return m.serialized }

// Type reports TypePreKey.
func (m *PreKeySignalMessage) Type() CiphertextType { return TypePreKey }
