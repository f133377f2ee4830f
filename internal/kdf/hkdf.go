package kdf

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"signalcore/internal/protoerr"
)

const (
	hashOutputSize = sha256.Size

	// MaxOutputLength is the longest expansion a single-byte counter allows.
	MaxOutputLength = 255 * hashOutputSize
)

// HKDF is a versioned HKDF-SHA256. Version 3 is RFC 5869; version 2 starts
// the expand counter at 0 instead of 1.
type HKDF struct {
	iterationStartOffset byte
}

// New returns the HKDF variant used by the given message version.
func New(version uint32) (HKDF, error) {
	switch version {
	case 2:
		return HKDF{iterationStartOffset: 0}, nil
	case 3:
		return HKDF{iterationStartOffset: 1}, nil
	default:
		return HKDF{}, fmt.Errorf("hkdf: unsupported version %d: %w", version, protoerr.ErrInvalidArgument)
	}
}

// V3 is the RFC 5869 variant used by every current session.
var V3 = HKDF{iterationStartOffset: 1}

// DeriveSecrets expands ikm with an all-zero salt.
func (k HKDF) DeriveSecrets(ikm, info []byte, n int) ([]byte, error) {
	return k.DeriveSaltedSecrets(ikm, nil, info, n)
}

// DeriveSaltedSecrets runs extract-then-expand. A nil salt means 32 zero
// bytes. n must be in (0, MaxOutputLength].
func (k HKDF) DeriveSaltedSecrets(ikm, salt, info []byte, n int) ([]byte, error) {
	if n <= 0 || n > MaxOutputLength {
		return nil, fmt.Errorf("hkdf: output length %d: %w", n, protoerr.ErrInvalidArgument)
	}
	if salt == nil {
		salt = make([]byte, hashOutputSize)
	}
	out := make([]byte, n)

	if k.iterationStartOffset == 1 {
		if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, info), out); err != nil {
			return nil, err
		}
		return out, nil
	}

	prk := hkdf.Extract(sha256.New, ikm, salt)
	return expand(prk, info, out, k.iterationStartOffset), nil
}

// expand is the RFC 5869 expand step with a configurable first counter.
func expand(prk, info, out []byte, offset byte) []byte {
	var (
		t   []byte
		pos int
	)
	for i := 0; pos < len(out); i++ {
		h := hmac.New(sha256.New, prk)
		h.Write(t)
		h.Write(info)
		h.Write([]byte{byte(i) + offset})
		t = h.Sum(nil)
		pos += copy(out[pos:], t)
	}
	return out
}
