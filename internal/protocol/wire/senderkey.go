package wire

import (
	"fmt"
	"io"

	"signalcore/internal/codec"
	"signalcore/internal/crypto"
	"signalcore/internal/protoerr"
)

// SenderKeyMessage is a group ciphertext signed with the sender's chain
// signing key.
type SenderKeyMessage struct {
	messageVersion uint8
	keyID          uint32
	iteration      uint32
	ciphertext     []byte
	serialized     []byte
}

// NewSenderKeyMessage encodes the message and appends an XEdDSA signature
// over every preceding byte.
func NewSenderKeyMessage(rng io.Reader, keyID, iteration uint32, ciphertext []byte, signingKey crypto.PrivateKey) (*SenderKeyMessage, error) {
	body := codec.NewEncoder(versionByte(SenderKeyVersion, SenderKeyVersion)).
		Uint32(1, keyID).
		Uint32(2, iteration).
		Bytes(3, ciphertext).
		Encoded()
	sig, err := signingKey.Sign(rng, body)
	if err != nil {
		return nil, fmt.Errorf("sign sender key message: %w", err)
	}
	return &SenderKeyMessage{
		messageVersion: SenderKeyVersion,
		keyID:          keyID,
		iteration:      iteration,
		ciphertext:     append([]byte(nil), ciphertext...),
		serialized:     append(body, sig...),
	}, nil
}

// DeserializeSenderKeyMessage parses a SenderKeyMessage without checking the
// signature.
func DeserializeSenderKeyMessage(b []byte) (*SenderKeyMessage, error) {
	if len(b) < 1+crypto.SignatureLength {
		return nil, fmt.Errorf("sender key message: %d bytes is too short: %w", len(b), protoerr.ErrInvalidMessage)
	}
	version, err := checkVersion(b[0], SenderKeyVersion, SenderKeyVersion)
	if err != nil {
		return nil, err
	}

	var (
		m                SenderKeyMessage
		haveID, haveIter bool
	)
	err = codec.Walk(b[1:len(b)-crypto.SignatureLength], func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			m.keyID, err = f.Uint32()
			haveID = true
		case 2:
			m.iteration, err = f.Uint32()
			haveIter = true
		case 3:
			m.ciphertext, err = f.Bytes()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sender key message: %w", err)
	}
	switch {
	case !haveID:
		return nil, missing("sender key message", "key id")
	case !haveIter:
		return nil, missing("sender key message", "iteration")
	case m.ciphertext == nil:
		return nil, missing("sender key message", "ciphertext")
	}
	m.messageVersion = version
	m.serialized = append([]byte(nil), b...)
	return &m, nil
}

// VerifySignature checks the trailing signature against signingKey.
func (m *SenderKeyMessage) VerifySignature(signingKey crypto.PublicKey) (bool, error) {
	n := len(m.serialized) - crypto.SignatureLength
	return signingKey.Verify(m.serialized[n:], m.serialized[:n])
}

// MessageVersion is always SenderKeyVersion for accepted messages.
func (m *SenderKeyMessage) MessageVersion() uint8 { return m.messageVersion }

// KeyID identifies the sender key state (the distribution id).
func (m *SenderKeyMessage) KeyID() uint32 { return m.keyID }

// Iteration is the chain position the message key was derived at.
func (m *SenderKeyMessage) Iteration() uint32 { return m.iteration }

// Body is the AES-CBC ciphertext.
func (m *SenderKeyMessage) Body() []byte { return m.ciphertext }

// Serialize returns the wire bytes.
func (m *SenderKeyMessage) Serialize() []byte { return m.serialized }

// Type reports TypeSenderKey.
func (m *SenderKeyMessage) Type() CiphertextType { return TypeSenderKey }
