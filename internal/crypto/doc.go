// Package crypto exposes the key primitives used by the protocol packages.
//
// Contents
//
//   - Curve25519 key pairs with tagged serialization (GenerateKeyPair,
//     DeserializePublicKey, DeserializePrivateKey) and X25519 agreement
//   - XEdDSA signatures computed with the Montgomery private key, so one key
//     pair both agrees and signs (PrivateKey.Sign, PublicKey.Verify)
//   - Identity keys and identity key pairs
//   - AES-256-CBC and AES-256-CTR+HMAC helpers for message bodies
//   - AES-256-GCM-SIV (AES256GCMSIV) with the tag appended to the ciphertext
//   - Short public-key tags for display/logging (ShortID)
//
// # Notes
//
// Randomness is never ambient: every function that needs entropy takes an
// io.Reader, so callers can inject crypto/rand.Reader or a seeded stream in
// tests. Public keys are fixed-size arrays to avoid accidental aliasing.
package crypto
