// Package x3dh runs the extended triple Diffie-Hellman handshake that seeds a
// Double Ratchet session, with the optional Kyber1024 step of PQXDH.
//
// # Overview
//
// The initiator (Alice) holds the responder's published bundle: identity key,
// signed pre-key, optionally a one-time pre-key and a Kyber pre-key. The
// responder (Bob) later receives the initiator's identity and base key in a
// PreKeySignalMessage.
//
// # Flows
//
// Alice:
//  1. Compute DH(IKa, SPKb), DH(EKa, IKb), DH(EKa, SPKb)[, DH(EKa, OPKb)].
//  2. Encapsulate to the Kyber pre-key, if present.
//  3. HKDF the transcript (prefixed with 32 0xFF bytes) into a root key and
//     a chain key.
//  4. Keep the chain key as the receiver chain for SPKb and ratchet once with
//     a fresh key to get the first sending chain.
//
// Bob:
//  1. Compute the mirrored agreements and decapsulate the Kyber ciphertext.
//  2. Derive the same root and chain key; the chain key becomes the sending
//     chain under the signed pre-key.
//
// Sessions with a Kyber step are version 4; without, version 3.
//
// # Errors
//
// Agreement with a low-order point wraps protoerr.ErrInvalidKey. A Kyber
// ciphertext without a Kyber pre-key (or the reverse) wraps
// protoerr.ErrInvalidMessage. Signature checks on the bundle are the
// caller's job.
package x3dh
