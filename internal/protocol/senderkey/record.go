package senderkey

import (
	"fmt"

	"signalcore/internal/codec"
	"signalcore/internal/crypto"
	"signalcore/internal/protocol/ratchet"
	"signalcore/internal/protoerr"
)

// MaxSenderKeyStates bounds the states kept per record.
const MaxSenderKeyStates = 5

// State is one sender's chain as seen by us: our own (with the signing
// private key) or a peer's (verify only).
type State struct {
	keyID          uint32
	chainKey       ChainKey
	signingKey     crypto.PublicKey
	signingPrivate *crypto.PrivateKey
	messageKeys    []MessageKey // oldest first
}

// NewState builds a state from distribution material. signingPrivate is nil
// for peer states.
func NewState(keyID, iteration uint32, chainKey []byte, signingKey crypto.PublicKey, signingPrivate *crypto.PrivateKey) (*State, error) {
	ck, err := NewChainKey(iteration, chainKey)
	if err != nil {
		return nil, err
	}
	s := &State{keyID: keyID, chainKey: ck, signingKey: signingKey}
	if signingPrivate != nil {
		priv := *signingPrivate
		s.signingPrivate = &priv
	}
	return s, nil
}

// KeyID is the distribution id of the chain.
func (s *State) KeyID() uint32 { return s.keyID }

// ChainKey is the next chain position.
func (s *State) ChainKey() ChainKey { return s.chainKey }

// SetChainKey advances the chain.
func (s *State) SetChainKey(ck ChainKey) { s.chainKey = ck }

// SigningKey verifies messages on this chain.
func (s *State) SigningKey() crypto.PublicKey { return s.signingKey }

// SigningPrivateKey signs messages on this chain; only our own states have one.
func (s *State) SigningPrivateKey() (crypto.PrivateKey, bool) {
	if s.signingPrivate == nil {
		return crypto.PrivateKey{}, false
	}
	return *s.signingPrivate, true
}

// AddMessageKey caches a skipped key. A full cache refuses it rather than
// forgetting an older key.
func (s *State) AddMessageKey(mk MessageKey) error {
	if len(s.messageKeys) >= ratchet.MaxMessageKeys {
		return fmt.Errorf("sender key %d: skipped key cache full: %w: %w",
			s.keyID, protoerr.ErrTooManySkippedMessages, protoerr.ErrInvalidMessage)
	}
	s.messageKeys = append(s.messageKeys, mk)
	return nil
}

// SkippedKeyCount is the number of skipped keys cached.
func (s *State) SkippedKeyCount() int { return len(s.messageKeys) }

// TakeMessageKey removes and returns the cached key for iteration.
func (s *State) TakeMessageKey(iteration uint32) (MessageKey, bool) {
	for i, mk := range s.messageKeys {
		if mk.iteration == iteration {
			s.messageKeys = append(s.messageKeys[:i:i], s.messageKeys[i+1:]...)
			return mk, true
		}
	}
	return MessageKey{}, false
}

// Record holds the sender key states for one (group, sender) pair, newest
// first.
type Record struct {
	states []*State
}

// NewRecord returns an empty record.
func NewRecord() *Record { return &Record{} }

// IsEmpty reports whether the record has no state.
func (r *Record) IsEmpty() bool { return len(r.states) == 0 }

// State returns the newest state.
func (r *Record) State() (*State, error) {
	if len(r.states) == 0 {
		return nil, fmt.Errorf("sender key record: %w", protoerr.ErrNoSenderKeyState)
	}
	return r.states[0], nil
}

// StateCount is the number of states held.
func (r *Record) StateCount() int { return len(r.states) }

// StateByKeyID returns the state for a distribution id.
func (r *Record) StateByKeyID(keyID uint32) (*State, bool) {
	for _, s := range r.states {
		if s.keyID == keyID {
			return s, true
		}
	}
	return nil, false
}

// AddState puts s first, evicting the oldest beyond MaxSenderKeyStates. A
// state with the same key id and signing key is replaced.
func (r *Record) AddState(s *State) {
	kept := make([]*State, 0, len(r.states)+1)
	kept = append(kept, s)
	for _, old := range r.states {
		if old.keyID == s.keyID && old.signingKey.Equal(s.signingKey) {
			continue
		}
		kept = append(kept, old)
	}
	if len(kept) > MaxSenderKeyStates {
		kept = kept[:MaxSenderKeyStates]
	}
	r.states = kept
}

// SetState replaces every state with s.
func (r *Record) SetState(s *State) { r.states = []*State{s} }

// Serialize encodes the record as SenderKeyRecordStructure.
func (r *Record) Serialize() []byte {
	enc := codec.NewEncoder()
	for _, s := range r.states {
		st := codec.NewEncoder().
			OptUint32(1, s.keyID).
			Message(2, codec.NewEncoder().OptUint32(1, s.chainKey.iteration).Bytes(2, s.chainKey.seed))
		signing := codec.NewEncoder().Bytes(1, s.signingKey.Serialize())
		if s.signingPrivate != nil {
			signing.Bytes(2, s.signingPrivate.Serialize())
		}
		st.Message(3, signing)
		for _, mk := range s.messageKeys {
			st.Message(4, codec.NewEncoder().OptUint32(1, mk.iteration).Bytes(2, mk.seed))
		}
		enc.Message(1, st)
	}
	return enc.Encoded()
}

// DeserializeRecord decodes a SenderKeyRecordStructure.
func DeserializeRecord(b []byte) (*Record, error) {
	r := &Record{}
	err := codec.Walk(b, func(f codec.Field) error {
		if f.Num != 1 {
			return nil
		}
		raw, err := f.Bytes()
		if err != nil {
			return err
		}
		s, err := decodeState(raw)
		if err != nil {
			return err
		}
		r.states = append(r.states, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sender key record: %w", err)
	}
	return r, nil
}

func decodeState(b []byte) (*State, error) {
	var (
		s         State
		iteration uint32
		seed      []byte
		pub, priv []byte
		cached    []MessageKey
	)
	err := codec.Walk(b, func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			s.keyID, err = f.Uint32()
		case 2:
			var raw []byte
			if raw, err = f.Bytes(); err == nil {
				iteration, seed, err = decodeIterationSeed(raw)
			}
		case 3:
			var raw []byte
			if raw, err = f.Bytes(); err == nil {
				err = codec.Walk(raw, func(f codec.Field) error {
					var err error
					switch f.Num {
					case 1:
						pub, err = f.Bytes()
					case 2:
						priv, err = f.Bytes()
					}
					return err
				})
			}
		case 4:
			var raw []byte
			if raw, err = f.Bytes(); err == nil {
				var (
					it uint32
					sd []byte
					mk MessageKey
				)
				if it, sd, err = decodeIterationSeed(raw); err == nil {
					if mk, err = NewMessageKey(it, sd); err == nil {
						cached = append(cached, mk)
					}
				}
			}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.chainKey, err = NewChainKey(iteration, seed); err != nil {
		return nil, err
	}
	if s.signingKey, err = crypto.DeserializePublicKey(pub); err != nil {
		return nil, err
	}
	if priv != nil {
		p, err := crypto.DeserializePrivateKey(priv)
		if err != nil {
			return nil, err
		}
		s.signingPrivate = &p
	}
	s.messageKeys = cached
	return &s, nil
}

func decodeIterationSeed(b []byte) (uint32, []byte, error) {
	var (
		iteration uint32
		seed      []byte
	)
	err := codec.Walk(b, func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			iteration, err = f.Uint32()
		case 2:
			seed, err = f.Bytes()
		}
		return err
	})
	return iteration, seed, err
}
