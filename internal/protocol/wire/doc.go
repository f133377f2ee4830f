// Package wire encodes and decodes the four ciphertext message kinds that
// travel between peers.
//
// # Overview
//
// Every message starts with a version byte whose high nibble is the message
// version and whose low nibble is the newest version the encoder knows. The
// body is a protobuf structure; SignalMessage appends an 8-byte truncated
// HMAC-SHA256 and SenderKeyMessage appends a 64-byte XEdDSA signature.
//
// Decoders validate structure only. MAC and signature checks are explicit
// calls (SignalMessage.VerifyMAC, SenderKeyMessage.VerifySignature) because
// they need keys held by the session layer.
//
// # Errors
//
// Malformed input wraps protoerr.ErrInvalidMessage. A version below 3 wraps
// protoerr.ErrLegacyCiphertextVersion and a version above the current one
// wraps protoerr.ErrUnrecognizedMessageVersion.
package wire
