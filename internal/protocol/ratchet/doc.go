// Package ratchet holds the key derivations of the Double Ratchet.
//
// A RootKey turns each DH ratchet output into a new root key and a new
// ChainKey via HKDF ("WhisperRatchet"). A ChainKey advances with
// HMAC-SHA256(key, 0x02) and yields per-message keys from
// HMAC-SHA256(key, 0x01) expanded with HKDF ("WhisperMessageKeys") into a
// 32-byte AES key, a 32-byte MAC key and a 16-byte IV.
//
// The bookkeeping around these keys (receiver chains, skipped keys, pending
// pre-keys) lives in package state; the protocol flow lives in the session
// services.
//
// Values are immutable; advancing a chain returns a new ChainKey.
package ratchet
