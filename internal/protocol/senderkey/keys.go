package senderkey

import (
	"fmt"

	"signalcore/internal/crypto"
	"signalcore/internal/kdf"
	"signalcore/internal/protoerr"
)

var (
	messageKeySeed = []byte{0x01}
	chainKeySeed   = []byte{0x02}
	groupInfo      = []byte("WhisperGroup")
)

// ChainKey is a position in a sender's symmetric group chain.
type ChainKey struct {
	iteration uint32
	seed      []byte
}

// NewChainKey wraps a 32-byte seed at iteration.
func NewChainKey(iteration uint32, seed []byte) (ChainKey, error) {
	if len(seed) != 32 {
		return ChainKey{}, fmt.Errorf("sender chain key length %d: %w", len(seed), protoerr.ErrInvalidKey)
	}
	return ChainKey{iteration: iteration, seed: append([]byte(nil), seed...)}, nil
}

// Iteration is the chain position.
func (c ChainKey) Iteration() uint32 { return c.iteration }

// Seed is the raw chain key.
func (c ChainKey) Seed() []byte { return c.seed }

// Next returns the following chain position.
func (c ChainKey) Next() ChainKey {
	return ChainKey{iteration: c.iteration + 1, seed: crypto.HMACSHA256(c.seed, chainKeySeed)}
}

// MessageKey derives the key for the message at Iteration.
func (c ChainKey) MessageKey() (MessageKey, error) {
	return NewMessageKey(c.iteration, crypto.HMACSHA256(c.seed, messageKeySeed))
}

// MessageKey encrypts one group message.
type MessageKey struct {
	iteration uint32
	seed      []byte
	iv        []byte
	cipherKey []byte
}

// NewMessageKey expands seed into an IV and AES key.
func NewMessageKey(iteration uint32, seed []byte) (MessageKey, error) {
	derived, err := kdf.V3.DeriveSecrets(seed, groupInfo, 48)
	if err != nil {
		return MessageKey{}, err
	}
	return MessageKey{
		iteration: iteration,
		seed:      append([]byte(nil), seed...),
		iv:        derived[:16],
		cipherKey: derived[16:],
	}, nil
}

// Iteration is the chain position the key was derived at.
func (m MessageKey) Iteration() uint32 { return m.iteration }

// Seed is the pre-expansion key material, which is what gets stored.
func (m MessageKey) Seed() []byte { return m.seed }

// IV is the AES-CBC initialization vector.
func (m MessageKey) IV() []byte { return m.iv }

// CipherKey is the AES-256 key.
func (m MessageKey) CipherKey() []byte { return m.cipherKey }
