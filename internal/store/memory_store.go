package store

import (
	"context"
	"strconv"
	"sync"

	"signalcore/internal/crypto"
	"signalcore/internal/domain"
	"signalcore/internal/protocol/prekey"
	"signalcore/internal/protocol/senderkey"
	"signalcore/internal/protocol/state"
)

// MemoryStore keeps every protocol record in process memory. Records are
// held serialized so callers never share mutable state with the store.
type MemoryStore struct {
	mu sync.Mutex

	identity       *crypto.IdentityKeyPair
	registrationID uint32

	identities map[string][]byte
	preKeys    map[uint32][]byte
	signed     map[uint32][]byte
	kyber      map[uint32][]byte
	kyberUsed  map[uint32]int
	sessions   map[string][]byte
	senderKeys map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[string][]byte),
		preKeys:    make(map[uint32][]byte),
		signed:     make(map[uint32][]byte),
		kyber:      make(map[uint32][]byte),
		kyberUsed:  make(map[uint32]int),
		sessions:   make(map[string][]byte),
		senderKeys: make(map[string][]byte),
	}
}

// ---------- Identity ----------

func (s *MemoryStore) GetIdentityKeyPair(context.Context) (crypto.IdentityKeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return crypto.IdentityKeyPair{}, ErrNoLocalIdentity
	}
	return *s.identity, nil
}

func (s *MemoryStore) GetLocalRegistrationID(context.Context) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return 0, ErrNoLocalIdentity
	}
	return s.registrationID, nil
}

func (s *MemoryStore) SetLocalIdentity(_ context.Context, id crypto.IdentityKeyPair, registrationID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = &id
	s.registrationID = registrationID
	return nil
}

func (s *MemoryStore) SaveIdentity(_ context.Context, addr domain.ProtocolAddress, key crypto.IdentityKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.identities[addr.String()]
	s.identities[addr.String()] = key.Serialize()
	return replaced(prev, key), nil
}

func (s *MemoryStore) IsTrustedIdentity(_ context.Context, addr domain.ProtocolAddress, key crypto.IdentityKey, _ domain.Direction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return trusted(s.identities[addr.String()], key), nil
}

func (s *MemoryStore) GetIdentity(_ context.Context, addr domain.ProtocolAddress) (crypto.IdentityKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return decodeIdentity(s.identities[addr.String()])
}

// ---------- Pre-keys ----------

func (s *MemoryStore) GetPreKey(_ context.Context, id uint32) (*prekey.PreKeyRecord, bool, error) {
	s.mu.Lock()
	b, ok := s.preKeys[id]
	s.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	r, err := prekey.DeserializePreKeyRecord(b)
	return r, err == nil, err
}

func (s *MemoryStore) SavePreKey(_ context.Context, r *prekey.PreKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preKeys[r.ID()] = r.Serialize()
	return nil
}

func (s *MemoryStore) RemovePreKey(_ context.Context, id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.preKeys, id)
	return nil
}

func (s *MemoryStore) GetSignedPreKey(_ context.Context, id uint32) (*prekey.SignedPreKeyRecord, bool, error) {
	s.mu.Lock()
	b, ok := s.signed[id]
	s.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	r, err := prekey.DeserializeSignedPreKeyRecord(b)
	return r, err == nil, err
}

func (s *MemoryStore) SaveSignedPreKey(_ context.Context, r *prekey.SignedPreKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signed[r.ID()] = r.Serialize()
	return nil
}

func (s *MemoryStore) GetKyberPreKey(_ context.Context, id uint32) (*prekey.KyberPreKeyRecord, bool, error) {
	s.mu.Lock()
	b, ok := s.kyber[id]
	s.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	r, err := prekey.DeserializeKyberPreKeyRecord(b)
	return r, err == nil, err
}

func (s *MemoryStore) SaveKyberPreKey(_ context.Context, r *prekey.KyberPreKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kyber[r.ID()] = r.Serialize()
	return nil
}

func (s *MemoryStore) MarkKyberPreKeyUsed(_ context.Context, id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kyberUsed[id]++
	return nil
}

// KyberPreKeyUses reports how many sessions have been built on id.
func (s *MemoryStore) KyberPreKeyUses(id uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kyberUsed[id]
}

// ---------- Sessions ----------

func (s *MemoryStore) LoadSession(_ context.Context, addr domain.ProtocolAddress) (*state.SessionRecord, bool, error) {
	s.mu.Lock()
	b, ok := s.sessions[addr.String()]
	s.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	r, err := state.DeserializeSessionRecord(b)
	return r, err == nil, err
}

func (s *MemoryStore) StoreSession(_ context.Context, addr domain.ProtocolAddress, r *state.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[addr.String()] = r.Serialize()
	return nil
}

// ---------- Sender keys ----------

func (s *MemoryStore) LoadSenderKey(_ context.Context, name domain.SenderKeyName) (*senderkey.Record, bool, error) {
	s.mu.Lock()
	b, ok := s.senderKeys[name.String()]
	s.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	r, err := senderkey.DeserializeRecord(b)
	return r, err == nil, err
}

func (s *MemoryStore) StoreSenderKey(_ context.Context, name domain.SenderKeyName, r *senderkey.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.senderKeys[name.String()] = r.Serialize()
	return nil
}

func idKey(id uint32) string { return strconv.FormatUint(uint64(id), 10) }

// Compile-time assertion that MemoryStore implements domain.ProtocolStore.
var _ domain.ProtocolStore = (*MemoryStore)(nil)
