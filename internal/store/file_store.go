package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"signalcore/internal/crypto"
	"signalcore/internal/domain"
	"signalcore/internal/protocol/prekey"
	"signalcore/internal/protocol/senderkey"
	"signalcore/internal/protocol/state"
)

const (
	idFilename         = "identity.json.enc"
	identitiesFile     = "identities.json"     // map[address]identity key
	preKeysFile        = "prekeys.json"        // map[id]PreKeyRecord
	signedPreKeysFile  = "signed_prekeys.json" // map[id]SignedPreKeyRecord
	kyberPreKeysFile   = "kyber_prekeys.json"  // map[id]KyberPreKeyRecord
	kyberUsedFile      = "kyber_used.json"     // map[id]use count
	sessionsFilename   = "sessions.json"       // map[address]SessionRecord
	senderKeysFilename = "sender_keys.json"    // map[group::address]sender key record
)

// FileStore persists protocol records as JSON files under dir. Records are
// stored in their protobuf encoding; the local identity is sealed with the
// passphrase the store was opened with.
type FileStore struct {
	dir        string
	passphrase string
	scrypt     scryptParams
	mu         sync.Mutex

	// local caches the opened identity so scrypt runs once per process.
	local *localIdentity
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir, passphrase string) *FileStore {
	return &FileStore{dir: dir, passphrase: passphrase, scrypt: defaultScrypt}
}

// withScrypt lowers the KDF cost; tests use it.
func (s *FileStore) withScrypt(p scryptParams) *FileStore {
	s.scrypt = p
	return s
}

func (s *FileStore) path(name string) string { return filepath.Join(s.dir, name) }

// ---------- Identity ----------

func (s *FileStore) SetLocalIdentity(_ context.Context, id crypto.IdentityKeyPair, registrationID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := sealIdentity(s.passphrase, s.scrypt, id, registrationID)
	if err != nil {
		return err
	}
	if err := writeFile(s.path(idFilename), blob, 0o600); err != nil {
		return err
	}
	s.local = &localIdentity{IdentityKeyPair: id.Serialize(), RegistrationID: registrationID}
	return nil
}

func (s *FileStore) loadLocal() (crypto.IdentityKeyPair, uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.local != nil {
		id, err := crypto.DeserializeIdentityKeyPair(s.local.IdentityKeyPair)
		return id, s.local.RegistrationID, err
	}
	b, err := readFile(s.path(idFilename))
	if err != nil {
		return crypto.IdentityKeyPair{}, 0, err
	}
	if b == nil {
		return crypto.IdentityKeyPair{}, 0, ErrNoLocalIdentity
	}
	id, reg, err := openIdentity(s.passphrase, b)
	if err != nil {
		return crypto.IdentityKeyPair{}, 0, err
	}
	s.local = &localIdentity{IdentityKeyPair: id.Serialize(), RegistrationID: reg}
	return id, reg, nil
}

func (s *FileStore) GetIdentityKeyPair(context.Context) (crypto.IdentityKeyPair, error) {
	id, _, err := s.loadLocal()
	return id, err
}

func (s *FileStore) GetLocalRegistrationID(context.Context) (uint32, error) {
	_, reg, err := s.loadLocal()
	return reg, err
}

func (s *FileStore) SaveIdentity(_ context.Context, addr domain.ProtocolAddress, key crypto.IdentityKey) (bool, error) {
	var changed bool
	err := s.update(identitiesFile, func(m map[string][]byte) bool {
		changed = replaced(m[addr.String()], key)
		m[addr.String()] = key.Serialize()
		return true
	})
	return changed, err
}

func (s *FileStore) IsTrustedIdentity(_ context.Context, addr domain.ProtocolAddress, key crypto.IdentityKey, _ domain.Direction) (bool, error) {
	b, err := s.get(identitiesFile, addr.String())
	if err != nil {
		return false, err
	}
	return trusted(b, key), nil
}

func (s *FileStore) GetIdentity(_ context.Context, addr domain.ProtocolAddress) (crypto.IdentityKey, bool, error) {
	b, err := s.get(identitiesFile, addr.String())
	if err != nil {
		return crypto.IdentityKey{}, false, err
	}
	return decodeIdentity(b)
}

// ---------- Pre-keys ----------

func (s *FileStore) GetPreKey(_ context.Context, id uint32) (*prekey.PreKeyRecord, bool, error) {
	b, err := s.get(preKeysFile, idKey(id))
	if err != nil || b == nil {
		return nil, false, err
	}
	r, err := prekey.DeserializePreKeyRecord(b)
	return r, err == nil, err
}

func (s *FileStore) SavePreKey(_ context.Context, r *prekey.PreKeyRecord) error {
	return s.put(preKeysFile, idKey(r.ID()), r.Serialize())
}

func (s *FileStore) RemovePreKey(_ context.Context, id uint32) error {
	return s.update(preKeysFile, func(m map[string][]byte) bool {
		if _, ok := m[idKey(id)]; !ok {
			return false
		}
		delete(m, idKey(id))
		return true
	})
}

func (s *FileStore) GetSignedPreKey(_ context.Context, id uint32) (*prekey.SignedPreKeyRecord, bool, error) {
	b, err := s.get(signedPreKeysFile, idKey(id))
	if err != nil || b == nil {
		return nil, false, err
	}
	r, err := prekey.DeserializeSignedPreKeyRecord(b)
	return r, err == nil, err
}

func (s *FileStore) SaveSignedPreKey(_ context.Context, r *prekey.SignedPreKeyRecord) error {
	return s.put(signedPreKeysFile, idKey(r.ID()), r.Serialize())
}

func (s *FileStore) GetKyberPreKey(_ context.Context, id uint32) (*prekey.KyberPreKeyRecord, bool, error) {
	b, err := s.get(kyberPreKeysFile, idKey(id))
	if err != nil || b == nil {
		return nil, false, err
	}
	r, err := prekey.DeserializeKyberPreKeyRecord(b)
	return r, err == nil, err
}

func (s *FileStore) SaveKyberPreKey(_ context.Context, r *prekey.KyberPreKeyRecord) error {
	return s.put(kyberPreKeysFile, idKey(r.ID()), r.Serialize())
}

func (s *FileStore) MarkKyberPreKeyUsed(_ context.Context, id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(kyberUsedFile)
	uses := map[string]int{}
	if err := readJSON(path, &uses); err != nil {
		return err
	}
	uses[idKey(id)]++
	return writeJSON(path, uses, 0o600)
}

// ---------- Sessions ----------

func (s *FileStore) LoadSession(_ context.Context, addr domain.ProtocolAddress) (*state.SessionRecord, bool, error) {
	b, err := s.get(sessionsFilename, addr.String())
	if err != nil || b == nil {
		return nil, false, err
	}
	r, err := state.DeserializeSessionRecord(b)
	return r, err == nil, err
}

func (s *FileStore) StoreSession(_ context.Context, addr domain.ProtocolAddress, r *state.SessionRecord) error {
	return s.put(sessionsFilename, addr.String(), r.Serialize())
}

// ---------- Sender keys ----------

func (s *FileStore) LoadSenderKey(_ context.Context, name domain.SenderKeyName) (*senderkey.Record, bool, error) {
	b, err := s.get(senderKeysFilename, name.String())
	if err != nil || b == nil {
		return nil, false, err
	}
	r, err := senderkey.DeserializeRecord(b)
	return r, err == nil, err
}

func (s *FileStore) StoreSenderKey(_ context.Context, name domain.SenderKeyName, r *senderkey.Record) error {
	return s.put(senderKeysFilename, name.String(), r.Serialize())
}

// ---------- helpers ----------

// get returns the entry for key in the named map file, or nil.
func (s *FileStore) get(name, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := map[string][]byte{}
	if err := readJSON(s.path(name), &m); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return m[key], nil
}

func (s *FileStore) put(name, key string, value []byte) error {
	return s.update(name, func(m map[string][]byte) bool {
		m[key] = value
		return true
	})
}

// update loads the named map file, applies fn and writes it back when fn
// reports a change.
func (s *FileStore) update(name string, fn func(map[string][]byte) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(name)
	m := map[string][]byte{}
	if err := readJSON(path, &m); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if !fn(m) {
		return nil
	}
	return writeJSON(path, m, 0o600)
}

// readJSON reads path into out; a missing file leaves out untouched.
func readJSON(path string, out any) error {
	b, err := readFile(path)
	if err != nil || b == nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// readFile reads path; a missing file returns nil, nil.
func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return b, err
}

// writeJSON writes v via a temp file then rename.
func writeJSON(path string, v any, mode os.FileMode) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, b, mode)
}

// writeFile writes b to a temp file in the same directory, syncs it and
// atomically replaces path.
func writeFile(path string, b []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Compile-time assertion that FileStore implements domain.ProtocolStore.
var _ domain.ProtocolStore = (*FileStore)(nil)
