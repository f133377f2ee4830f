package crypto

import (
	"crypto/cipher"
	"fmt"

	siv "github.com/secure-io/siv-go"

	"signalcore/internal/protoerr"
)

const (
	// GCMSIVNonceLength is the AES-256-GCM-SIV nonce size.
	GCMSIVNonceLength = 12

	// GCMSIVTagLength is the tag appended to every ciphertext.
	GCMSIVTagLength = 16
)

// AES256GCMSIV is the nonce-misuse-resistant AEAD of RFC 8452 keyed with a
// 32-byte key.
type AES256GCMSIV struct {
	aead cipher.AEAD
}

// NewAES256GCMSIV returns the AEAD for key.
func NewAES256GCMSIV(key []byte) (*AES256GCMSIV, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes-gcm-siv: key length %d: %w", len(key), protoerr.ErrInvalidKey)
	}
	aead, err := siv.NewGCM(key)
	if err != nil {
		return nil, fmt.Errorf("aes-gcm-siv: %w", err)
	}
	return &AES256GCMSIV{aead: aead}, nil
}

// Encrypt returns ciphertext || tag.
func (a *AES256GCMSIV) Encrypt(plaintext, nonce, associatedData []byte) ([]byte, error) {
	if len(nonce) != GCMSIVNonceLength {
		return nil, fmt.Errorf("aes-gcm-siv: nonce length %d: %w", len(nonce), protoerr.ErrInvalidArgument)
	}
	return a.aead.Seal(nil, nonce, plaintext, associatedData), nil
}

// Decrypt opens ciphertext || tag. Any authentication failure is
// ErrInvalidMessage.
func (a *AES256GCMSIV) Decrypt(ciphertext, nonce, associatedData []byte) ([]byte, error) {
	if len(nonce) != GCMSIVNonceLength {
		return nil, fmt.Errorf("aes-gcm-siv: nonce length %d: %w", len(nonce), protoerr.ErrInvalidArgument)
	}
	if len(ciphertext) < GCMSIVTagLength {
		return nil, fmt.Errorf("aes-gcm-siv: %d bytes is shorter than the tag: %w", len(ciphertext), protoerr.ErrInvalidMessage)
	}
	plaintext, err := a.aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, fmt.Errorf("aes-gcm-siv: %w", protoerr.ErrInvalidMessage)
	}
	return plaintext, nil
}
