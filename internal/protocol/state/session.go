package state

import (
	"fmt"

	"signalcore/internal/crypto"
	"signalcore/internal/protocol/ratchet"
	"signalcore/internal/protoerr"
)

// PendingPreKey is the X3DH material an initiator repeats in every outgoing
// message until the peer first replies.
type PendingPreKey struct {
	PreKeyID        *uint32
	SignedPreKeyID  uint32
	BaseKey         crypto.PublicKey
	KyberPreKeyID   *uint32
	KyberCiphertext []byte
}

type senderChain struct {
	ratchetKey crypto.KeyPair
	chainKey   ratchet.ChainKey
}

type receiverChain struct {
	ratchetKey  crypto.PublicKey
	chainKey    ratchet.ChainKey
	messageKeys []ratchet.MessageKeys // newest first
}

// SessionState is one Double Ratchet conversation with a peer device.
type SessionState struct {
	version              uint32
	localIdentity        crypto.IdentityKey
	remoteIdentity       *crypto.IdentityKey
	rootKey              ratchet.RootKey
	previousCounter      uint32
	senderChain          *senderChain
	receiverChains       []*receiverChain // oldest first
	pendingPreKey        *PendingPreKey
	localRegistrationID  uint32
	remoteRegistrationID uint32
	aliceBaseKey         []byte
}

// NewSessionState returns a state with no chains. aliceBaseKey is the
// initiator's X3DH ephemeral key and identifies the session on both sides.
func NewSessionState(version uint32, local, remote crypto.IdentityKey, root ratchet.RootKey, aliceBaseKey crypto.PublicKey) *SessionState {
	return &SessionState{
		version:        version,
		localIdentity:  local,
		remoteIdentity: &remote,
		rootKey:        root,
		aliceBaseKey:   aliceBaseKey.Serialize(),
	}
}

// Version is the negotiated session version. States written before versions
// were recorded read as 2.
func (s *SessionState) Version() uint32 {
	if s.version == 0 {
		return 2
	}
	return s.version
}

// LocalIdentityKey is our identity key.
func (s *SessionState) LocalIdentityKey() crypto.IdentityKey { return s.localIdentity }

// RemoteIdentityKey is the peer's identity key, if recorded.
func (s *SessionState) RemoteIdentityKey() (crypto.IdentityKey, bool) {
	if s.remoteIdentity == nil {
		return crypto.IdentityKey{}, false
	}
	return *s.remoteIdentity, true
}

// RootKey is the current root key.
func (s *SessionState) RootKey() ratchet.RootKey { return s.rootKey }

// SetRootKey replaces the root key after a DH ratchet step.
func (s *SessionState) SetRootKey(r ratchet.RootKey) { s.rootKey = r }

// PreviousCounter is the length of our previous sending chain.
func (s *SessionState) PreviousCounter() uint32 { return s.previousCounter }

// SetPreviousCounter records the length of the sending chain being replaced.
func (s *SessionState) SetPreviousCounter(n uint32) { s.previousCounter = n }

// HasSenderChain reports whether a sending chain exists.
func (s *SessionState) HasSenderChain() bool { return s.senderChain != nil }

// SenderRatchetKey is our current ratchet public key.
func (s *SessionState) SenderRatchetKey() (crypto.PublicKey, error) {
	if s.senderChain == nil {
		return crypto.PublicKey{}, fmt.Errorf("sender ratchet key: no sender chain: %w", protoerr.ErrInvalidState)
	}
	return s.senderChain.ratchetKey.PublicKey, nil
}

// SenderRatchetKeyPair is our current ratchet key pair.
func (s *SessionState) SenderRatchetKeyPair() (crypto.KeyPair, error) {
	if s.senderChain == nil {
		return crypto.KeyPair{}, fmt.Errorf("sender ratchet key pair: no sender chain: %w", protoerr.ErrInvalidState)
	}
	return s.senderChain.ratchetKey, nil
}

// SenderChainKey is the next sending chain position.
func (s *SessionState) SenderChainKey() (ratchet.ChainKey, error) {
	if s.senderChain == nil {
		return ratchet.ChainKey{}, fmt.Errorf("sender chain key: no sender chain: %w", protoerr.ErrInvalidState)
	}
	return s.senderChain.chainKey, nil
}

// SetSenderChain installs a new sending ratchet key and chain.
func (s *SessionState) SetSenderChain(ratchetKey crypto.KeyPair, ck ratchet.ChainKey) {
	s.senderChain = &senderChain{ratchetKey: ratchetKey, chainKey: ck}
}

// SetSenderChainKey advances the sending chain.
func (s *SessionState) SetSenderChainKey(ck ratchet.ChainKey) error {
	if s.senderChain == nil {
		return fmt.Errorf("set sender chain key: no sender chain: %w", protoerr.ErrInvalidState)
	}
	s.senderChain.chainKey = ck
	return nil
}

func (s *SessionState) receiverChain(sender crypto.PublicKey) *receiverChain {
	for _, c := range s.receiverChains {
		if c.ratchetKey.Equal(sender) {
			return c
		}
	}
	return nil
}

// ReceiverChainKey returns the chain position for the peer ratchet key sender.
func (s *SessionState) ReceiverChainKey(sender crypto.PublicKey) (ratchet.ChainKey, bool) {
	c := s.receiverChain(sender)
	if c == nil {
		return ratchet.ChainKey{}, false
	}
	return c.chainKey, true
}

// ReceiverChainCount is the number of receiver chains held.
func (s *SessionState) ReceiverChainCount() int { return len(s.receiverChains) }

// NewestReceiverRatchetKey is the ratchet key of the most recently added
// receiver chain.
func (s *SessionState) NewestReceiverRatchetKey() (crypto.PublicKey, bool) {
	if len(s.receiverChains) == 0 {
		return crypto.PublicKey{}, false
	}
	return s.receiverChains[len(s.receiverChains)-1].ratchetKey, true
}

// AddReceiverChain appends a chain for sender, evicting the oldest chain
// beyond ratchet.MaxReceiverChains.
func (s *SessionState) AddReceiverChain(sender crypto.PublicKey, ck ratchet.ChainKey) {
	s.receiverChains = append(s.receiverChains, &receiverChain{ratchetKey: sender, chainKey: ck})
	if n := len(s.receiverChains); n > ratchet.MaxReceiverChains {
		s.receiverChains = append([]*receiverChain(nil), s.receiverChains[n-ratchet.MaxReceiverChains:]...)
	}
}

// SetReceiverChainKey advances the chain for sender.
func (s *SessionState) SetReceiverChainKey(sender crypto.PublicKey, ck ratchet.ChainKey) error {
	c := s.receiverChain(sender)
	if c == nil {
		return fmt.Errorf("set receiver chain key: unknown ratchet key: %w", protoerr.ErrInvalidState)
	}
	c.chainKey = ck
	return nil
}

// HasMessageKeys reports whether a skipped key for counter is cached.
func (s *SessionState) HasMessageKeys(sender crypto.PublicKey, counter uint32) bool {
	c := s.receiverChain(sender)
	if c == nil {
		return false
	}
	for _, mk := range c.messageKeys {
		if mk.Counter == counter {
			return true
		}
	}
	return false
}

// TakeMessageKeys removes and returns the cached skipped key for counter.
func (s *SessionState) TakeMessageKeys(sender crypto.PublicKey, counter uint32) (ratchet.MessageKeys, bool) {
	c := s.receiverChain(sender)
	if c == nil {
		return ratchet.MessageKeys{}, false
	}
	for i, mk := range c.messageKeys {
		if mk.Counter == counter {
			c.messageKeys = append(c.messageKeys[:i:i], c.messageKeys[i+1:]...)
			return mk, true
		}
	}
	return ratchet.MessageKeys{}, false
}

// SetMessageKeys caches a skipped key. A full cache refuses it rather than
// forgetting an older key.
func (s *SessionState) SetMessageKeys(sender crypto.PublicKey, mk ratchet.MessageKeys) error {
	c := s.receiverChain(sender)
	if c == nil {
		return fmt.Errorf("set message keys: unknown ratchet key: %w", protoerr.ErrInvalidState)
	}
	if len(c.messageKeys) >= ratchet.MaxMessageKeys {
		return fmt.Errorf("skipped key cache full at %d: %w: %w",
			len(c.messageKeys), protoerr.ErrTooManySkippedMessages, protoerr.ErrInvalidMessage)
	}
	c.messageKeys = append([]ratchet.MessageKeys{mk}, c.messageKeys...)
	return nil
}

// SkippedKeyCount is the number of skipped keys cached for sender's chain.
func (s *SessionState) SkippedKeyCount(sender crypto.PublicKey) int {
	c := s.receiverChain(sender)
	if c == nil {
		return 0
	}
	return len(c.messageKeys)
}

// PendingPreKey returns the unacknowledged X3DH material, if any.
func (s *SessionState) PendingPreKey() (PendingPreKey, bool) {
	if s.pendingPreKey == nil {
		return PendingPreKey{}, false
	}
	return *s.pendingPreKey, true
}

// SetPendingPreKey records X3DH material to attach to outgoing messages.
func (s *SessionState) SetPendingPreKey(p PendingPreKey) { s.pendingPreKey = &p }

// ClearPendingPreKey drops the pending material once the peer has replied.
func (s *SessionState) ClearPendingPreKey() { s.pendingPreKey = nil }

// LocalRegistrationID is our registration id.
func (s *SessionState) LocalRegistrationID() uint32 { return s.localRegistrationID }

// SetLocalRegistrationID records our registration id.
func (s *SessionState) SetLocalRegistrationID(id uint32) { s.localRegistrationID = id }

// RemoteRegistrationID is the peer's registration id.
func (s *SessionState) RemoteRegistrationID() uint32 { return s.remoteRegistrationID }

// SetRemoteRegistrationID records the peer's registration id.
func (s *SessionState) SetRemoteRegistrationID(id uint32) { s.remoteRegistrationID = id }

// AliceBaseKey is the serialized initiator base key.
func (s *SessionState) AliceBaseKey() []byte { return s.aliceBaseKey }

// Clone returns a copy that can be mutated without touching s.
func (s *SessionState) Clone() *SessionState {
	c := *s
	if s.remoteIdentity != nil {
		id := *s.remoteIdentity
		c.remoteIdentity = &id
	}
	if s.senderChain != nil {
		sc := *s.senderChain
		c.senderChain = &sc
	}
	c.receiverChains = make([]*receiverChain, len(s.receiverChains))
	for i, rc := range s.receiverChains {
		cp := *rc
		cp.messageKeys = append([]ratchet.MessageKeys(nil), rc.messageKeys...)
		c.receiverChains[i] = &cp
	}
	if s.pendingPreKey != nil {
		p := *s.pendingPreKey
		c.pendingPreKey = &p
	}
	return &c
}
