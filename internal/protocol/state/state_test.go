package state_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"signalcore/internal/crypto"
	"signalcore/internal/protocol/ratchet"
	"signalcore/internal/protocol/state"
	"signalcore/internal/protoerr"
)

func keyPair(t *testing.T) crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return kp
}

func chainKey(t *testing.T, b byte, index uint32) ratchet.ChainKey {
	t.Helper()
	ck, err := ratchet.NewChainKey(bytes.Repeat([]byte{b}, 32), index)
	if err != nil {
		t.Fatalf("NewChainKey: %v", err)
	}
	return ck
}

// newState builds a state with a sender chain, one receiver chain holding a
// skipped key, and pending pre-key material.
func newState(t *testing.T, version uint32) (*state.SessionState, crypto.PublicKey) {
	t.Helper()
	root, err := ratchet.NewRootKey(bytes.Repeat([]byte{1}, 32))
	if err != nil {
		t.Fatalf("NewRootKey: %v", err)
	}
	local := crypto.NewIdentityKey(keyPair(t).PublicKey)
	remote := crypto.NewIdentityKey(keyPair(t).PublicKey)
	s := state.NewSessionState(version, local, remote, root, keyPair(t).PublicKey)

	s.SetSenderChain(keyPair(t), chainKey(t, 2, 3))
	their := keyPair(t).PublicKey
	s.AddReceiverChain(their, chainKey(t, 3, 9))
	mk, err := chainKey(t, 4, 5).MessageKeys()
	if err != nil {
		t.Fatalf("MessageKeys: %v", err)
	}
	if err := s.SetMessageKeys(their, mk); err != nil {
		t.Fatalf("SetMessageKeys: %v", err)
	}
	preKeyID, kyberID := uint32(17), uint32(23)
	s.SetPendingPreKey(state.PendingPreKey{
		PreKeyID:        &preKeyID,
		SignedPreKeyID:  4,
		BaseKey:         keyPair(t).PublicKey,
		KyberPreKeyID:   &kyberID,
		KyberCiphertext: []byte{8, 1, 2},
	})
	s.SetLocalRegistrationID(111)
	s.SetRemoteRegistrationID(222)
	s.SetPreviousCounter(6)
	return s, their
}

func TestSessionState_SerializeRoundTrip(t *testing.T) {
	s, their := newState(t, 4)

	got, err := state.DeserializeSessionState(s.Serialize())
	if err != nil {
		t.Fatalf("DeserializeSessionState: %v", err)
	}
	if !bytes.Equal(got.Serialize(), s.Serialize()) {
		t.Fatal("re-serialized bytes differ")
	}
	if got.Version() != 4 || got.PreviousCounter() != 6 {
		t.Fatalf("version %d prev %d", got.Version(), got.PreviousCounter())
	}
	if got.LocalRegistrationID() != 111 || got.RemoteRegistrationID() != 222 {
		t.Fatal("registration ids changed")
	}
	remote, ok := got.RemoteIdentityKey()
	want, _ := s.RemoteIdentityKey()
	if !ok || !remote.Equal(want) {
		t.Fatal("remote identity changed")
	}

	ck, ok := got.ReceiverChainKey(their)
	if !ok || ck.Index() != 9 {
		t.Fatalf("receiver chain %v index %d", ok, ck.Index())
	}
	if !got.HasMessageKeys(their, 5) {
		t.Fatal("skipped key lost")
	}
	sck, err := got.SenderChainKey()
	if err != nil || sck.Index() != 3 {
		t.Fatalf("sender chain key %d, %v", sck.Index(), err)
	}

	p, ok := got.PendingPreKey()
	if !ok || p.PreKeyID == nil || *p.PreKeyID != 17 || p.SignedPreKeyID != 4 {
		t.Fatalf("pending pre-key %+v", p)
	}
	if p.KyberPreKeyID == nil || *p.KyberPreKeyID != 23 || !bytes.Equal(p.KyberCiphertext, []byte{8, 1, 2}) {
		t.Fatal("pending kyber pre-key lost")
	}
}

func TestSessionState_MessageKeysAreTakenOnce(t *testing.T) {
	s, their := newState(t, 3)
	if _, ok := s.TakeMessageKeys(their, 5); !ok {
		t.Fatal("cached key missing")
	}
	if _, ok := s.TakeMessageKeys(their, 5); ok {
		t.Fatal("key returned twice")
	}
}

func TestSessionState_FullSkippedKeyCacheRefuses(t *testing.T) {
	s, their := newState(t, 3)
	ck := chainKey(t, 5, 100)
	for s.SkippedKeyCount(their) < ratchet.MaxMessageKeys {
		mk, err := ck.MessageKeys()
		if err != nil {
			t.Fatalf("MessageKeys: %v", err)
		}
		if err := s.SetMessageKeys(their, mk); err != nil {
			t.Fatalf("SetMessageKeys at %d: %v", s.SkippedKeyCount(their), err)
		}
		ck = ck.Next()
	}

	mk, err := ck.MessageKeys()
	if err != nil {
		t.Fatalf("MessageKeys: %v", err)
	}
	if err := s.SetMessageKeys(their, mk); !errors.Is(err, protoerr.ErrTooManySkippedMessages) {
		t.Fatalf("SetMessageKeys on full cache: %v", err)
	}
	if !s.HasMessageKeys(their, 5) {
		t.Fatal("oldest cached key was evicted")
	}
}

func TestSessionState_ReceiverChainsAreBounded(t *testing.T) {
	s, first := newState(t, 3)
	var newest crypto.PublicKey
	for i := 0; i < ratchet.MaxReceiverChains; i++ {
		newest = keyPair(t).PublicKey
		s.AddReceiverChain(newest, chainKey(t, byte(i), 0))
	}
	if s.ReceiverChainCount() != ratchet.MaxReceiverChains {
		t.Fatalf("chains %d", s.ReceiverChainCount())
	}
	if _, ok := s.ReceiverChainKey(first); ok {
		t.Fatal("oldest chain was not evicted")
	}
	if got, _ := s.NewestReceiverRatchetKey(); !got.Equal(newest) {
		t.Fatal("newest chain is not last")
	}
}

func TestSessionState_CloneIsIndependent(t *testing.T) {
	s, their := newState(t, 3)
	c := s.Clone()
	if _, ok := c.TakeMessageKeys(their, 5); !ok {
		t.Fatal("clone lost the cached key")
	}
	if err := c.SetReceiverChainKey(their, chainKey(t, 9, 20)); err != nil {
		t.Fatalf("SetReceiverChainKey: %v", err)
	}
	c.ClearPendingPreKey()

	if !s.HasMessageKeys(their, 5) {
		t.Fatal("original lost its cached key")
	}
	if ck, _ := s.ReceiverChainKey(their); ck.Index() != 9 {
		t.Fatalf("original chain moved to %d", ck.Index())
	}
	if _, ok := s.PendingPreKey(); !ok {
		t.Fatal("original lost pending pre-key")
	}
}

func TestSessionRecord_ArchiveAndPromote(t *testing.T) {
	rec := state.NewSessionRecord()
	if rec.HasCurrentState() {
		t.Fatal("fresh record has a state")
	}
	if _, err := rec.SessionVersion(); !errors.Is(err, protoerr.ErrInvalidState) {
		t.Fatalf("empty SessionVersion: want ErrInvalidState, got %v", err)
	}
	if rec.LegacySessionVersion() != 0 {
		t.Fatal("empty legacy version must be 0")
	}
	rec.ArchiveCurrentState()
	if len(rec.PreviousStates()) != 0 {
		t.Fatal("archiving a fresh record added history")
	}

	first, _ := newState(t, 3)
	rec.PromoteState(first)
	second, _ := newState(t, 4)
	rec.PromoteState(second)

	if v, _ := rec.SessionVersion(); v != 4 {
		t.Fatalf("current version %d", v)
	}
	if len(rec.PreviousStates()) != 1 || rec.PreviousStates()[0] != first {
		t.Fatal("first state was not archived")
	}

	if !rec.PromoteMatchingSession(3, first.AliceBaseKey()) {
		t.Fatal("archived match not found")
	}
	cur, _ := rec.SessionState()
	if cur != first || rec.PreviousStates()[0] != second || len(rec.PreviousStates()) != 1 {
		t.Fatal("promotion did not swap the states")
	}
	if rec.PromoteMatchingSession(4, first.AliceBaseKey()) {
		t.Fatal("version mismatch matched")
	}
}

func TestSessionRecord_HistoryIsBounded(t *testing.T) {
	rec := state.NewSessionRecord()
	for i := 0; i < ratchet.ArchivedStatesMaxLength+5; i++ {
		s, _ := newState(t, 3)
		rec.PromoteState(s)
	}
	if n := len(rec.PreviousStates()); n != ratchet.ArchivedStatesMaxLength {
		t.Fatalf("history length %d", n)
	}
}

func TestSessionRecord_SerializeRoundTrip(t *testing.T) {
	rec := state.NewSessionRecord()
	a, _ := newState(t, 3)
	b, _ := newState(t, 4)
	rec.PromoteState(a)
	rec.PromoteState(b)

	got, err := state.DeserializeSessionRecord(rec.Serialize())
	if err != nil {
		t.Fatalf("DeserializeSessionRecord: %v", err)
	}
	if !bytes.Equal(got.Serialize(), rec.Serialize()) {
		t.Fatal("re-serialized record differs")
	}
	if len(got.PreviousStates()) != 1 {
		t.Fatalf("history %d", len(got.PreviousStates()))
	}
	if id, _ := got.RemoteRegistrationID(); id != 222 {
		t.Fatalf("remote registration id %d", id)
	}

	empty, err := state.DeserializeSessionRecord(nil)
	if err != nil || empty.HasCurrentState() {
		t.Fatalf("empty record: %v", err)
	}
}

func TestSessionState_UnversionedReadsAsTwo(t *testing.T) {
	s, _ := newState(t, 0)
	got, err := state.DeserializeSessionState(s.Serialize())
	if err != nil {
		t.Fatalf("DeserializeSessionState: %v", err)
	}
	if got.Version() != 2 {
		t.Fatalf("version %d", got.Version())
	}
	if v, _ := state.NewSessionRecordFromState(got).SessionVersion(); v != 2 {
		t.Fatalf("record version %d", v)
	}
}
