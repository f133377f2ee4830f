package wire

import (
	"fmt"

	"signalcore/internal/codec"
	"signalcore/internal/crypto"
	"signalcore/internal/protoerr"
)

// SenderKeyDistributionMessage hands a group member the chain key and signing
// key needed to decrypt our sender key messages from Iteration onward.
type SenderKeyDistributionMessage struct {
	messageVersion uint8
	keyID          uint32
	iteration      uint32
	chainKey       []byte
	signingKey     crypto.PublicKey
	serialized     []byte
}

// NewSenderKeyDistributionMessage encodes a distribution message.
func NewSenderKeyDistributionMessage(keyID, iteration uint32, chainKey []byte, signingKey crypto.PublicKey) (*SenderKeyDistributionMessage, error) {
	if len(chainKey) != 32 {
		return nil, fmt.Errorf("distribution chain key length %d: %w", len(chainKey), protoerr.ErrInvalidArgument)
	}
	enc := codec.NewEncoder(versionByte(SenderKeyVersion, SenderKeyVersion)).
		Uint32(1, keyID).
		Uint32(2, iteration).
		Bytes(3, chainKey).
		Bytes(4, signingKey.Serialize())
	return &SenderKeyDistributionMessage{
		messageVersion: SenderKeyVersion,
		keyID:          keyID,
		iteration:      iteration,
		chainKey:       append([]byte(nil), chainKey...),
		signingKey:     signingKey,
		serialized:     enc.Encoded(),
	}, nil
}

// DeserializeSenderKeyDistributionMessage parses a distribution message.
func DeserializeSenderKeyDistributionMessage(b []byte) (*SenderKeyDistributionMessage, error) {
	if len(b) < 1+32+32 {
		return nil, fmt.Errorf("distribution message: %d bytes is too short: %w", len(b), protoerr.ErrInvalidMessage)
	}
	version, err := checkVersion(b[0], SenderKeyVersion, SenderKeyVersion)
	if err != nil {
		return nil, err
	}

	var (
		m                SenderKeyDistributionMessage
		signingKey       []byte
		haveID, haveIter bool
	)
	err = codec.Walk(b[1:], func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			m.keyID, err = f.Uint32()
			haveID = true
		case 2:
			m.iteration, err = f.Uint32()
			haveIter = true
		case 3:
			m.chainKey, err = f.Bytes()
		case 4:
			signingKey, err = f.Bytes()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("distribution message: %w", err)
	}
	switch {
	case !haveID:
		return nil, missing("distribution message", "key id")
	case !haveIter:
		return nil, missing("distribution message", "iteration")
	case len(m.chainKey) != 32:
		return nil, missing("distribution message", "32-byte chain key")
	case signingKey == nil:
		return nil, missing("distribution message", "signing key")
	}
	if m.signingKey, err = crypto.DeserializePublicKey(signingKey); err != nil {
		return nil, fmt.Errorf("distribution signing key: %w", err)
	}
	m.messageVersion = version
	m.serialized = append([]byte(nil), b...)
	return &m, nil
}

// MessageVersion is always SenderKeyVersion for accepted messages.
func (m *SenderKeyDistributionMessage) MessageVersion() uint8 { return m.messageVersion }

// KeyID is the distribution id of the sender key state.
func (m *SenderKeyDistributionMessage) KeyID() uint32 { return m.keyID }

// Iteration is the chain position ChainKey belongs to.
func (m *SenderKeyDistributionMessage) Iteration() uint32 { return m.iteration }

// ChainKey is the 32-byte chain seed at Iteration.
func (m *SenderKeyDistributionMessage) ChainKey() []byte { return m.chainKey }

// SigningKey verifies the sender's group messages.
func (m *SenderKeyDistributionMessage) SigningKey() crypto.PublicKey { return m.signingKey }

// Serialize returns the wire bytes.
func (m *SenderKeyDistributionMessage) Serialize() []byte { return m.serialized }

// Type reports TypeSenderKeyDistribution.
func (m *SenderKeyDistributionMessage) Type() CiphertextType { return TypeSenderKeyDistribution }
