// Package senderkey implements the sender-key group messaging engine.
//
// Each group member owns a symmetric chain (ChainKey) and an XEdDSA signing
// key. The chain and signing public key are handed to every other member in
// a SenderKeyDistributionMessage over pairwise sessions; afterwards a group
// message is encrypted once, with AES-256-CBC under a key derived with HKDF
// ("WhisperGroup"), and signed.
//
// A Record keeps up to MaxSenderKeyStates chains per (group, sender), newest
// first. Receivers cache keys for skipped iterations. A message that would
// push the cache past ratchet.MaxMessageKeys, or jump beyond
// ratchet.MaxForwardJumps, fails with ErrTooManySkippedMessages and leaves
// the state untouched.
package senderkey
