// Package message is the pairwise Double Ratchet cipher.
//
// # Flows
//
// Encrypt takes the current session state for an address, derives the next
// message keys and emits a PreKeySignalMessage until the peer has replied,
// then plain SignalMessages. Decrypt tries a copy of the current state, which
// may take a DH ratchet step, and then the archived states, which may not.
// DecryptPreKey first hands the handshake to the session builder.
//
// SealedSenderEncrypt and SealedSenderDecrypt wrap the same operations in a
// sealed-sender envelope that hides the sender from the transport.
//
// # Errors
//
// Failures wrap the protoerr sentinels: ErrSessionNotFound when no record
// exists, ErrDuplicatedMessage for a replayed counter,
// ErrTooManySkippedMessages (with ErrInvalidMessage) when a counter would skip
// past the chain limits, ErrInvalidMessage when no state can decrypt, and
// ErrUntrustedIdentity when the identity store refuses the peer.
package message
