package senderkey

import (
	"encoding/binary"
	"fmt"
	"io"

	"signalcore/internal/crypto"
	"signalcore/internal/protocol/ratchet"
	"signalcore/internal/protocol/wire"
	"signalcore/internal/protoerr"
)

// CreateDistributionMessage returns the distribution message for our newest
// state, first creating a state with a random 31-bit key id, chain key and
// signing key when the record is empty.
func CreateDistributionMessage(rng io.Reader, r *Record) (*wire.SenderKeyDistributionMessage, error) {
	if r.IsEmpty() {
		var idBytes [4]byte
		if _, err := io.ReadFull(rng, idBytes[:]); err != nil {
			return nil, fmt.Errorf("sender key id: %w", err)
		}
		seed := make([]byte, 32)
		if _, err := io.ReadFull(rng, seed); err != nil {
			return nil, fmt.Errorf("sender chain key: %w", err)
		}
		signing, err := crypto.GenerateKeyPair(rng)
		if err != nil {
			return nil, err
		}
		s, err := NewState(binary.BigEndian.Uint32(idBytes[:])>>1, 0, seed, signing.PublicKey, &signing.PrivateKey)
		if err != nil {
			return nil, err
		}
		r.SetState(s)
	}

	s, err := r.State()
	if err != nil {
		return nil, err
	}
	ck := s.ChainKey()
	return wire.NewSenderKeyDistributionMessage(s.KeyID(), ck.Iteration(), ck.Seed(), s.SigningKey())
}

// ProcessDistributionMessage installs a peer's chain from msg.
func ProcessDistributionMessage(r *Record, msg *wire.SenderKeyDistributionMessage) error {
	s, err := NewState(msg.KeyID(), msg.Iteration(), msg.ChainKey(), msg.SigningKey(), nil)
	if err != nil {
		return err
	}
	r.AddState(s)
	return nil
}

// Encrypt seals plaintext under our newest state and advances its chain.
func Encrypt(rng io.Reader, r *Record, plaintext []byte) (*wire.SenderKeyMessage, error) {
	s, err := r.State()
	if err != nil {
		return nil, err
	}
	signing, ok := s.SigningPrivateKey()
	if !ok {
		return nil, fmt.Errorf("sender key %d: no signing private key: %w", s.KeyID(), protoerr.ErrInvalidState)
	}

	ck := s.ChainKey()
	mk, err := ck.MessageKey()
	if err != nil {
		return nil, err
	}
	ct, err := crypto.AESCBCEncrypt(plaintext, mk.CipherKey(), mk.IV())
	if err != nil {
		return nil, err
	}
	msg, err := wire.NewSenderKeyMessage(rng, s.KeyID(), ck.Iteration(), ct, signing)
	if err != nil {
		return nil, err
	}
	s.SetChainKey(ck.Next())
	return msg, nil
}

// Decrypt verifies and opens a serialized SenderKeyMessage. The record is
// mutated (chain advanced, skipped keys cached) and must only be persisted
// when Decrypt succeeds.
func Decrypt(r *Record, serialized []byte) ([]byte, error) {
	msg, err := wire.DeserializeSenderKeyMessage(serialized)
	if err != nil {
		return nil, err
	}
	s, ok := r.StateByKeyID(msg.KeyID())
	if !ok {
		return nil, fmt.Errorf("sender key %d: %w", msg.KeyID(), protoerr.ErrNoSenderKeyState)
	}
	valid, err := msg.VerifySignature(s.SigningKey())
	if err != nil || !valid {
		return nil, fmt.Errorf("sender key %d: %w", msg.KeyID(), protoerr.ErrSignatureVerificationFailed)
	}

	mk, err := messageKeyFor(s, msg.Iteration())
	if err != nil {
		return nil, err
	}
	return crypto.AESCBCDecrypt(msg.Body(), mk.CipherKey(), mk.IV())
}

func messageKeyFor(s *State, iteration uint32) (MessageKey, error) {
	ck := s.ChainKey()
	current := ck.Iteration()

	if current > iteration {
		if mk, ok := s.TakeMessageKey(iteration); ok {
			return mk, nil
		}
		return MessageKey{}, &protoerr.DuplicatedMessageError{Current: current, Received: iteration}
	}
	if err := ratchet.CheckSkip(current, iteration, s.SkippedKeyCount()); err != nil {
		return MessageKey{}, fmt.Errorf("sender key %d: %w", s.KeyID(), err)
	}

	for ck.Iteration() < iteration {
		mk, err := ck.MessageKey()
		if err != nil {
			return MessageKey{}, err
		}
		if err := s.AddMessageKey(mk); err != nil {
			return MessageKey{}, err
		}
		ck = ck.Next()
	}
	mk, err := ck.MessageKey()
	if err != nil {
		return MessageKey{}, err
	}
	s.SetChainKey(ck.Next())
	return mk, nil
}
