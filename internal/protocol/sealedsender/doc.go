// Package sealedsender implements sealed-sender envelopes and the
// certificates that authenticate them.
//
// # Overview
//
// A ServerCertificate binds a server signing key to a key id and is signed by
// a long-lived trust root. A SenderCertificate names a sender (uuid, optional
// phone number, device id, identity key) until an expiration time and is
// signed by the server key.
//
// # Flows
//
//   - Encrypt wraps a Content (message type, sender certificate, session
//     ciphertext) in two AES-CTR+HMAC layers. The first layer is keyed from
//     an ephemeral agreement with the recipient and hides the sender's
//     identity key. The second is keyed from the sender's identity agreement
//     and carries the content.
//   - DecryptToContent reverses both layers and checks the recovered identity
//     key against the certificate. Certificate validation against a trust
//     root and clock is left to the caller (see SenderCertificate.Validate).
//
// # Errors
//
//   - Unsupported envelope versions wrap protoerr.ErrUnknownSealedSenderVersion.
//   - Framing, MAC and key mismatches wrap protoerr.ErrInvalidMessage.
//   - Every certificate validation failure wraps
//     protoerr.ErrSignatureVerificationFailed.
package sealedsender
