// Package kem wraps the Kyber1024 key encapsulation mechanism used by the
// post-quantum extension of X3DH (PQXDH).
//
// Keys and ciphertexts carry a one-byte type tag (0x08) on the wire, the same
// way Curve25519 keys carry 0x05.
package kem
