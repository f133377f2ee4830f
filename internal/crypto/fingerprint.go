package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// ShortID returns a short hex tag of a public key for logs and CLI output.
//
// It hashes the serialized key with SHA-256 and truncates to 10 bytes
// (20 hex chars). It is not a safety number; see package fingerprint.
func ShortID(pub PublicKey) string {
	sum := sha256.Sum256(pub.Serialize())
	return hex.EncodeToString(sum[:10])
}
