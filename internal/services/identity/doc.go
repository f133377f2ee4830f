// Package identity manages the local identity key pair and registration id.
//
// It enforces the passphrase policy for stores that seal the identity,
// generates the key pair, and computes safety numbers against the identity
// keys recorded for peers.
package identity
