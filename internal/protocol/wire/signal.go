package wire

import (
	"crypto/subtle"
	"fmt"

	"signalcore/internal/codec"
	"signalcore/internal/crypto"
	"signalcore/internal/protoerr"
)

// SignalMessage is a ratchet-protected ciphertext with a truncated MAC.
type SignalMessage struct {
	messageVersion   uint8
	senderRatchetKey crypto.PublicKey
	counter          uint32
	previousCounter  uint32
	ciphertext       []byte
	serialized       []byte
}

// NewSignalMessage encodes and MACs a message. The MAC covers both identity
// keys and every preceding byte of the encoding.
func NewSignalMessage(
	messageVersion uint8,
	macKey []byte,
	senderRatchetKey crypto.PublicKey,
	counter, previousCounter uint32,
	ciphertext []byte,
	senderIdentity, receiverIdentity crypto.IdentityKey,
) (*SignalMessage, error) {
	body := codec.NewEncoder(versionByte(messageVersion, CurrentVersion)).
		Bytes(1, senderRatchetKey.Serialize()).
		Uint32(2, counter).
		Uint32(3, previousCounter).
		Bytes(4, ciphertext).
		Encoded()

	mac, err := computeMAC(senderIdentity, receiverIdentity, macKey, body)
	if err != nil {
		return nil, err
	}
	return &SignalMessage{
		messageVersion:   messageVersion,
		senderRatchetKey: senderRatchetKey,
		counter:          counter,
		previousCounter:  previousCounter,
		ciphertext:       append([]byte(nil), ciphertext...),
		serialized:       append(body, mac...),
	}, nil
}

// DeserializeSignalMessage parses a SignalMessage. The MAC is not checked
// here; see VerifyMAC.
func DeserializeSignalMessage(b []byte) (*SignalMessage, error) {
	if len(b) < MACLength+1 {
		return nil, fmt.Errorf("signal message: %d bytes is too short: %w", len(b), protoerr.ErrInvalidMessage)
	}
	version, err := checkVersion(b[0], PreKyberVersion, CurrentVersion)
	if err != nil {
		return nil, err
	}

	var (
		ratchetKey, ciphertext []byte
		counter, prevCounter   uint32
		haveCounter            bool
	)
	err = codec.Walk(b[1:len(b)-MACLength], func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			ratchetKey, err = f.Bytes()
		case 2:
			counter, err = f.Uint32()
			haveCounter = true
		case 3:
			prevCounter, err = f.Uint32()
		case 4:
			ciphertext, err = f.Bytes()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("signal message: %w", err)
	}
	if ratchetKey == nil {
		return nil, missing("signal message", "ratchet key")
	}
	if !haveCounter {
		return nil, missing("signal message", "counter")
	}
	if ciphertext == nil {
		return nil, missing("signal message", "ciphertext")
	}
	pub, err := crypto.DeserializePublicKey(ratchetKey)
	if err != nil {
		return nil, fmt.Errorf("signal message ratchet key: %w", err)
	}

	return &SignalMessage{
		messageVersion:   version,
		senderRatchetKey: pub,
		counter:          counter,
		previousCounter:  prevCounter,
		ciphertext:       ciphertext,
		serialized:       append([]byte(nil), b...),
	}, nil
}

// VerifyMAC recomputes the truncated MAC and compares it in constant time.
func (m *SignalMessage) VerifyMAC(senderIdentity, receiverIdentity crypto.IdentityKey, macKey []byte) (bool, error) {
	body := m.serialized[:len(m.serialized)-MACLength]
	want, err := computeMAC(senderIdentity, receiverIdentity, macKey, body)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(want, m.serialized[len(body):]) == 1, nil
}

func computeMAC(senderIdentity, receiverIdentity crypto.IdentityKey, macKey, body []byte) ([]byte, error) {
	if len(macKey) != 32 {
		return nil, fmt.Errorf("mac key length %d: %w", len(macKey), protoerr.ErrInvalidArgument)
	}
	mac := crypto.HMACSHA256(macKey, senderIdentity.Serialize(), receiverIdentity.Serialize(), body)
	return mac[:MACLength], nil
}

// MessageVersion is the session version the message was produced under.
func (m *SignalMessage) MessageVersion() uint8 { return m.messageVersion }

// SenderRatchetKey is the sender's current ratchet public key.
func (m *SignalMessage) SenderRatchetKey() crypto.PublicKey { return m.senderRatchetKey }

// Counter is the message index within the sending chain.
func (m *SignalMessage) Counter() uint32 { return m.counter }

// PreviousCounter is the length of the sender's previous chain.
func (m *SignalMessage) PreviousCounter() uint32 { return m.previousCounter }

// Body is the AES-CBC ciphertext.
func (m *SignalMessage) Body() []byte { return m.ciphertext }

// Serialize returns the wire bytes.
func (m *SignalMessage) Serialize() []byte { return m.serialized }

// Type reports TypeWhisper.
func (m *SignalMessage) Type() CiphertextType { return TypeWhisper }
