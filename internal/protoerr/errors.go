package protoerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is() checks.
var (
	// ErrInvalidArgument is returned for malformed caller input, such as a zero
	// output length or an inconsistent pre-key/pre-key-id pairing.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidKey is returned when key bytes have the wrong length, an unknown
	// type tag, or do not decode to a usable curve point.
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidMessage is returned when wire bytes are malformed or a MAC check
	// fails.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidState is returned when an operation needs session material that
	// the record does not hold.
	ErrInvalidState = errors.New("invalid session state")

	// ErrSignatureVerificationFailed is returned when a signature does not
	// verify, a certificate chain is broken, or a certificate has expired.
	ErrSignatureVerificationFailed = errors.New("signature verification failed")

	// ErrTooManySkippedMessages is returned when reaching a message would skip
	// more keys than a chain may jump or cache. It always accompanies
	// ErrInvalidMessage.
	ErrTooManySkippedMessages = errors.New("too many skipped messages")

	// ErrDuplicatedMessage is returned when a message key was already consumed.
	ErrDuplicatedMessage = errors.New("duplicated message")

	// ErrLegacyCiphertextVersion is returned for messages older than version 3.
	ErrLegacyCiphertextVersion = errors.New("legacy ciphertext version")

	// ErrUnrecognizedMessageVersion is returned for message versions newer than
	// we understand, or not matching the session.
	ErrUnrecognizedMessageVersion = errors.New("unrecognized message version")

	// ErrUntrustedIdentity is returned when the identity store refuses a key.
	ErrUntrustedIdentity = errors.New("untrusted identity")

	// ErrSessionNotFound is returned when no session exists for an address.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoSenderKeyState is returned when a sender key record has no state
	// for the requested key id.
	ErrNoSenderKeyState = errors.New("no sender key state")

	// ErrInvalidPreKeyID is returned when a referenced one-time pre-key is unknown.
	ErrInvalidPreKeyID = errors.New("invalid pre-key id")

	// ErrInvalidSignedPreKeyID is returned when a referenced signed pre-key is unknown.
	ErrInvalidSignedPreKeyID = errors.New("invalid signed pre-key id")

	// ErrInvalidKyberPreKeyID is returned when a referenced kyber pre-key is unknown.
	ErrInvalidKyberPreKeyID = errors.New("invalid kyber pre-key id")

	// ErrFingerprintVersionMismatch is returned when scannable fingerprints
	// carry different versions.
	ErrFingerprintVersionMismatch = errors.New("fingerprint version mismatch")

	// ErrFingerprintParsing is returned when a scannable fingerprint cannot be decoded.
	ErrFingerprintParsing = errors.New("fingerprint parsing error")

	// ErrUnknownSealedSenderVersion is returned for unsupported envelope versions.
	ErrUnknownSealedSenderVersion = errors.New("unknown sealed sender version")

	// ErrSealedSenderSelfSend is returned when a sealed message claims to come
	// from the local device.
	ErrSealedSenderSelfSend = errors.New("sealed sender message sent by self")
)

// DuplicatedMessageError carries the chain position and the rejected counter.
type DuplicatedMessageError struct {
	Current  uint32
	Received uint32
}

func (e *DuplicatedMessageError) Error() string {
	return fmt.Sprintf("duplicated message: chain at %d, received %d", e.Current, e.Received)
}

// Is reports a match against ErrDuplicatedMessage.
func (e *DuplicatedMessageError) Is(target error) bool { return target == ErrDuplicatedMessage }

// UntrustedIdentityError names the address whose identity key was refused.
type UntrustedIdentityError struct {
	Address string
}

func (e *UntrustedIdentityError) Error() string {
	return fmt.Sprintf("untrusted identity for address %s", e.Address)
}

// Is reports a match against ErrUntrustedIdentity.
func (e *UntrustedIdentityError) Is(target error) bool { return target == ErrUntrustedIdentity }
