package fingerprint

import (
	"bytes"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"

	"signalcore/internal/codec"
	"signalcore/internal/crypto"
	"signalcore/internal/protoerr"
)

const (
	// MaxIterations bounds the hash iteration count.
	MaxIterations = 1_000_000

	// DefaultIterations is the count clients use for safety numbers.
	DefaultIterations = 5200

	// ScannableVersion is the scannable encoding version clients emit.
	ScannableVersion = 1

	scannableLength = 32
	displayGroups   = 6
)

// Fingerprint pairs the human-comparable and QR-scannable forms of a
// conversation's safety number.
type Fingerprint struct {
	Display   Displayable
	Scannable Scannable
}

// New derives the fingerprint for a pair of (stable id, identity key). Both
// parties compute the same display string and mirrored scannable forms.
func New(version, iterations uint32, localID []byte, localKey crypto.IdentityKey, remoteID []byte, remoteKey crypto.IdentityKey) (*Fingerprint, error) {
	if iterations <= 1 || iterations > MaxIterations {
		return nil, fmt.Errorf("fingerprint iterations %d: %w", iterations, protoerr.ErrInvalidArgument)
	}
	local := hashIdentity(iterations, localID, localKey)
	remote := hashIdentity(iterations, remoteID, remoteKey)

	return &Fingerprint{
		Display: Displayable{local: displayString(local), remote: displayString(remote)},
		Scannable: Scannable{
			version: version,
			local:   local[:scannableLength],
			remote:  remote[:scannableLength],
		},
	}, nil
}

func hashIdentity(iterations uint32, id []byte, key crypto.IdentityKey) []byte {
	keyBytes := key.Serialize()
	buf := make([]byte, 0, 2+len(keyBytes)+len(id))
	buf = append(buf, 0x00, 0x00)
	buf = append(buf, keyBytes...)
	buf = append(buf, id...)

	h := sha512.New()
	for i := uint32(0); i < iterations; i++ {
		h.Reset()
		h.Write(buf)
		h.Write(keyBytes)
		buf = h.Sum(buf[:0])
	}
	return buf
}

func displayString(hash []byte) string {
	var b bytes.Buffer
	for i := 0; i < displayGroups; i++ {
		chunk := hash[i*5 : i*5+5]
		v := uint64(chunk[0])<<32 | uint64(chunk[1])<<24 | uint64(chunk[2])<<16 | uint64(chunk[3])<<8 | uint64(chunk[4])
		fmt.Fprintf(&b, "%05d", v%100000)
	}
	return b.String()
}

// Displayable is the 60-digit safety number.
type Displayable struct {
	local, remote string
}

// String orders the two halves so both parties see the same digits.
func (d Displayable) String() string {
	if d.local < d.remote {
		return d.local + d.remote
	}
	return d.remote + d.local
}

// Scannable is the QR-encodable fingerprint.
type Scannable struct {
	version       uint32
	local, remote []byte
}

// Version is the encoding version.
func (s Scannable) Version() uint32 { return s.version }

// Serialize encodes CombinedFingerprints.
func (s Scannable) Serialize() []byte {
	return codec.NewEncoder().
		Uint32(1, s.version).
		Message(2, codec.NewEncoder().Bytes(1, s.local)).
		Message(3, codec.NewEncoder().Bytes(1, s.remote)).
		Encoded()
}

// DeserializeScannable parses a CombinedFingerprints encoding.
func DeserializeScannable(b []byte) (Scannable, error) {
	var s Scannable
	err := codec.Walk(b, func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			s.version, err = f.Uint32()
		case 2:
			s.local, err = logicalContent(f)
		case 3:
			s.remote, err = logicalContent(f)
		}
		return err
	})
	if err != nil {
		return Scannable{}, fmt.Errorf("scannable fingerprint: %v: %w", err, protoerr.ErrFingerprintParsing)
	}
	return s, nil
}

// LocalFingerprint is the encoder's own half.
func (s Scannable) LocalFingerprint() []byte { return s.local }

// RemoteFingerprint is the encoder's view of its peer.
func (s Scannable) RemoteFingerprint() []byte { return s.remote }

// Compare checks a peer's scanned encoding against ours: their local half
// must be our remote half and vice versa.
func (s Scannable) Compare(theirs []byte) (bool, error) {
	other, err := DeserializeScannable(theirs)
	if err != nil {
		return false, err
	}
	return s.matches(other)
}

// CompareScannable compares two encoded fingerprints, one produced by each
// side of a conversation.
func CompareScannable(ours, theirs []byte) (bool, error) {
	s, err := DeserializeScannable(ours)
	if err != nil {
		return false, err
	}
	return s.Compare(theirs)
}

func (s Scannable) matches(other Scannable) (bool, error) {
	if other.version != s.version {
		return false, fmt.Errorf("scannable fingerprint version %d, ours %d: %w", other.version, s.version, protoerr.ErrFingerprintVersionMismatch)
	}
	same1 := subtle.ConstantTimeCompare(other.local, s.remote)
	same2 := subtle.ConstantTimeCompare(other.remote, s.local)
	return same1&same2 == 1, nil
}

func logicalContent(f codec.Field) ([]byte, error) {
	raw, err := f.Bytes()
	if err != nil {
		return nil, err
	}
	var content []byte
	err = codec.Walk(raw, func(f codec.Field) error {
		if f.Num != 1 {
			return nil
		}
		var err error
		content, err = f.Bytes()
		return err
	})
	return content, err
}
