package ratchet

import (
	"fmt"

	"signalcore/internal/crypto"
	"signalcore/internal/kdf"
	"signalcore/internal/protoerr"
	"signalcore/internal/util/memzero"
)

const (
	// MaxForwardJumps bounds how far ahead of a chain a message counter may be.
	MaxForwardJumps = 25000

	// MaxMessageKeys bounds the cached skipped keys per receiver chain. A
	// message that would grow the cache past it is rejected; keys are never
	// evicted.
	MaxMessageKeys = 2000

	// MaxReceiverChains bounds the receiver chains kept per session state.
	MaxReceiverChains = 5

	// ArchivedStatesMaxLength bounds the previous states kept per record.
	ArchivedStatesMaxLength = 40

	keyLength = 32
)

var (
	messageKeySeed = []byte{0x01}
	chainKeySeed   = []byte{0x02}

	rootInfo       = []byte("WhisperRatchet")
	messageKeyInfo = []byte("WhisperMessageKeys")
)

// RootKey is the 32-byte secret mixed with each DH ratchet output.
type RootKey struct {
	key []byte
}

// NewRootKey wraps key, which must be 32 bytes.
func NewRootKey(key []byte) (RootKey, error) {
	if len(key) != keyLength {
		return RootKey{}, fmt.Errorf("root key length %d: %w", len(key), protoerr.ErrInvalidKey)
	}
	return RootKey{key: append([]byte(nil), key...)}, nil
}

// Key returns the raw root key.
func (r RootKey) Key() []byte { return r.key }

// CreateChain performs one DH ratchet step: it derives the next root key and
// a fresh chain key at index 0 from DH(ours, theirRatchet).
func (r RootKey) CreateChain(theirRatchet crypto.PublicKey, ours crypto.PrivateKey) (RootKey, ChainKey, error) {
	shared, err := ours.Agree(theirRatchet)
	if err != nil {
		return RootKey{}, ChainKey{}, fmt.Errorf("ratchet agreement: %w", err)
	}
	defer memzero.Zero(shared)

	derived, err := kdf.V3.DeriveSaltedSecrets(shared, r.key, rootInfo, 2*keyLength)
	if err != nil {
		return RootKey{}, ChainKey{}, err
	}
	return RootKey{key: derived[:keyLength]}, ChainKey{key: derived[keyLength:], index: 0}, nil
}

// ChainKey is a symmetric ratchet position: a 32-byte key and its index.
type ChainKey struct {
	key   []byte
	index uint32
}

// NewChainKey wraps key at position index.
func NewChainKey(key []byte, index uint32) (ChainKey, error) {
	if len(key) != keyLength {
		return ChainKey{}, fmt.Errorf("chain key length %d: %w", len(key), protoerr.ErrInvalidKey)
	}
	return ChainKey{key: append([]byte(nil), key...), index: index}, nil
}

// Key returns the raw chain key.
func (c ChainKey) Key() []byte { return c.key }

// Index is the counter of the message this key would produce.
func (c ChainKey) Index() uint32 { return c.index }

// Next returns the following chain position.
func (c ChainKey) Next() ChainKey {
	return ChainKey{key: crypto.HMACSHA256(c.key, chainKeySeed), index: c.index + 1}
}

// MessageKeys derives the keys for the message at Index.
func (c ChainKey) MessageKeys() (MessageKeys, error) {
	seed := crypto.HMACSHA256(c.key, messageKeySeed)
	defer memzero.Zero(seed)

	derived, err := kdf.V3.DeriveSecrets(seed, messageKeyInfo, 2*keyLength+16)
	if err != nil {
		return MessageKeys{}, err
	}
	return MessageKeys{
		CipherKey: derived[:32],
		MACKey:    derived[32:64],
		IV:        derived[64:80],
		Counter:   c.index,
	}, nil
}

// MessageKeys encrypt and authenticate exactly one message.
type MessageKeys struct {
	CipherKey []byte
	MACKey    []byte
	IV        []byte
	Counter   uint32
}

// CheckSkip decides whether a chain at index may advance to counter while
// cached skipped keys are already held. counter must not be behind index.
func CheckSkip(index, counter uint32, cached int) error {
	skip := counter - index
	if skip > MaxForwardJumps {
		return fmt.Errorf("message %d is too far into the future (chain at %d): %w: %w",
			counter, index, protoerr.ErrTooManySkippedMessages, protoerr.ErrInvalidMessage)
	}
	if int(skip)+cached > MaxMessageKeys {
		return fmt.Errorf("message %d would skip %d keys with %d already cached: %w: %w",
			counter, skip, cached, protoerr.ErrTooManySkippedMessages, protoerr.ErrInvalidMessage)
	}
	return nil
}
