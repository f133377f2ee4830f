// Package kdf implements the versioned HKDF used by session setup, the
// Double Ratchet, sender keys and sealed sender.
//
// # Versions
//
// Version 3 is plain RFC 5869 HKDF-SHA256 and is served by
// golang.org/x/crypto/hkdf. Version 2 is the pre-v3 wire variant whose
// expand counter starts at 0; it is kept only so legacy material can be
// re-derived.
//
// # Errors
//
// protoerr.ErrInvalidArgument for an unsupported version or an output
// length of zero or beyond 255 hash blocks.
package kdf
