package wire

import (
	"fmt"

	"signalcore/internal/protoerr"
)

// CiphertextType tags the kind of serialized message a host must route.
type CiphertextType uint8

const (
	// TypeWhisper is a SignalMessage.
	TypeWhisper CiphertextType = 2
	// TypePreKey is a PreKeySignalMessage.
	TypePreKey CiphertextType = 3
	// TypeSenderKey is a SenderKeyMessage.
	TypeSenderKey CiphertextType = 4
	// TypeSenderKeyDistribution is a SenderKeyDistributionMessage.
	TypeSenderKeyDistribution CiphertextType = 5
)

func (t CiphertextType) String() string {
	switch t {
	case TypeWhisper:
		return "whisper"
	case TypePreKey:
		return "prekey"
	case TypeSenderKey:
		return "senderkey"
	case TypeSenderKeyDistribution:
		return "senderkey-distribution"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

const (
	// CurrentVersion is the newest message version we produce and accept.
	CurrentVersion uint8 = 4

	// PreKyberVersion is the oldest accepted version; sessions without a
	// Kyber pre-key still run at this version.
	PreKyberVersion uint8 = 3

	// SenderKeyVersion is the version of group messages.
	SenderKeyVersion uint8 = 3

	// MACLength is the truncated MAC width trailing a SignalMessage.
	MACLength = 8
)

// CiphertextMessage is any encrypted message the session layer emits.
type CiphertextMessage interface {
	Type() CiphertextType
	Serialize() []byte
}

func versionByte(messageVersion, current uint8) byte {
	return (messageVersion&0x0F)<<4 | current
}

// checkVersion validates the high nibble of a leading version byte.
func checkVersion(b byte, minVersion, maxVersion uint8) (uint8, error) {
	v := b >> 4
	if v < minVersion {
		return v, fmt.Errorf("message version %d: %w", v, protoerr.ErrLegacyCiphertextVersion)
	}
	if v > maxVersion {
		return v, fmt.Errorf("message version %d: %w", v, protoerr.ErrUnrecognizedMessageVersion)
	}
	return v, nil
}

func missing(msg, field string) error {
	return fmt.Errorf("%s: missing %s: %w", msg, field, protoerr.ErrInvalidMessage)
}
