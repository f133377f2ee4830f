package store

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"signalcore/internal/crypto"
	"signalcore/internal/domain"
	"signalcore/internal/protocol/prekey"
	"signalcore/internal/protocol/senderkey"
	"signalcore/internal/protocol/state"
)

// Redis key layout, all under the store prefix:
//   - {prefix}:identity           sealed local identity
//   - {prefix}:identities         hash address -> identity key
//   - {prefix}:prekeys            hash id -> PreKeyRecord
//   - {prefix}:signed_prekeys     hash id -> SignedPreKeyRecord
//   - {prefix}:kyber_prekeys      hash id -> KyberPreKeyRecord
//   - {prefix}:kyber_used         hash id -> use count
//   - {prefix}:sessions           hash address -> SessionRecord
//   - {prefix}:sender_keys        hash group::address -> sender key record

// RedisStore keeps protocol records in Redis hashes so several processes
// can share one account's state.
type RedisStore struct {
	client     *goredis.Client
	prefix     string
	passphrase string
	scrypt     scryptParams
}

// NewRedisStore returns a store over client. prefix namespaces every key.
func NewRedisStore(client *goredis.Client, prefix, passphrase string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, passphrase: passphrase, scrypt: defaultScrypt}
}

func (s *RedisStore) withScrypt(p scryptParams) *RedisStore {
	s.scrypt = p
	return s
}

func (s *RedisStore) key(name string) string { return s.prefix + ":" + name }

// ---------- Identity ----------

func (s *RedisStore) SetLocalIdentity(ctx context.Context, id crypto.IdentityKeyPair, registrationID uint32) error {
	blob, err := sealIdentity(s.passphrase, s.scrypt, id, registrationID)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key("identity"), blob, 0).Err()
}

func (s *RedisStore) loadLocal(ctx context.Context) (crypto.IdentityKeyPair, uint32, error) {
	b, err := s.client.Get(ctx, s.key("identity")).Bytes()
	if errors.Is(err, goredis.Nil) {
		return crypto.IdentityKeyPair{}, 0, ErrNoLocalIdentity
	}
	if err != nil {
		return crypto.IdentityKeyPair{}, 0, fmt.Errorf("redis get identity: %w", err)
	}
	return openIdentity(s.passphrase, b)
}

func (s *RedisStore) GetIdentityKeyPair(ctx context.Context) (crypto.IdentityKeyPair, error) {
	id, _, err := s.loadLocal(ctx)
	return id, err
}

func (s *RedisStore) GetLocalRegistrationID(ctx context.Context) (uint32, error) {
	_, reg, err := s.loadLocal(ctx)
	return reg, err
}

func (s *RedisStore) SaveIdentity(ctx context.Context, addr domain.ProtocolAddress, key crypto.IdentityKey) (bool, error) {
	prev, err := s.hget(ctx, "identities", addr.String())
	if err != nil {
		return false, err
	}
	if err := s.hset(ctx, "identities", addr.String(), key.Serialize()); err != nil {
		return false, err
	}
	return replaced(prev, key), nil
}

func (s *RedisStore) IsTrustedIdentity(ctx context.Context, addr domain.ProtocolAddress, key crypto.IdentityKey, _ domain.Direction) (bool, error) {
	b, err := s.hget(ctx, "identities", addr.String())
	if err != nil {
		return false, err
	}
	return trusted(b, key), nil
}

func (s *RedisStore) GetIdentity(ctx context.Context, addr domain.ProtocolAddress) (crypto.IdentityKey, bool, error) {
	b, err := s.hget(ctx, "identities", addr.String())
	if err != nil {
		return crypto.IdentityKey{}, false, err
	}
	return decodeIdentity(b)
}

// ---------- Pre-keys ----------

func (s *RedisStore) GetPreKey(ctx context.Context, id uint32) (*prekey.PreKeyRecord, bool, error) {
	b, err := s.hget(ctx, "prekeys", idKey(id))
	if err != nil || b == nil {
		return nil, false, err
	}
	r, err := prekey.DeserializePreKeyRecord(b)
	return r, err == nil, err
}

func (s *RedisStore) SavePreKey(ctx context.Context, r *prekey.PreKeyRecord) error {
	return s.hset(ctx, "prekeys", idKey(r.ID()), r.Serialize())
}

func (s *RedisStore) RemovePreKey(ctx context.Context, id uint32) error {
	return s.client.HDel(ctx, s.key("prekeys"), idKey(id)).Err()
}

func (s *RedisStore) GetSignedPreKey(ctx context.Context, id uint32) (*prekey.SignedPreKeyRecord, bool, error) {
	b, err := s.hget(ctx, "signed_prekeys", idKey(id))
	if err != nil || b == nil {
		return nil, false, err
	}
	r, err := prekey.DeserializeSignedPreKeyRecord(b)
	return r, err == nil, err
}

func (s *RedisStore) SaveSignedPreKey(ctx context.Context, r *prekey.SignedPreKeyRecord) error {
	return s.hset(ctx, "signed_prekeys", idKey(r.ID()), r.Serialize())
}

func (s *RedisStore) GetKyberPreKey(ctx context.Context, id uint32) (*prekey.KyberPreKeyRecord, bool, error) {
	b, err := s.hget(ctx, "kyber_prekeys", idKey(id))
	if err != nil || b == nil {
		return nil, false, err
	}
	r, err := prekey.DeserializeKyberPreKeyRecord(b)
	return r, err == nil, err
}

func (s *RedisStore) SaveKyberPreKey(ctx context.Context, r *prekey.KyberPreKeyRecord) error {
	return s.hset(ctx, "kyber_prekeys", idKey(r.ID()), r.Serialize())
}

func (s *RedisStore) MarkKyberPreKeyUsed(ctx context.Context, id uint32) error {
	return s.client.HIncrBy(ctx, s.key("kyber_used"), idKey(id), 1).Err()
}

// ---------- Sessions ----------

func (s *RedisStore) LoadSession(ctx context.Context, addr domain.ProtocolAddress) (*state.SessionRecord, bool, error) {
	b, err := s.hget(ctx, "sessions", addr.String())
	if err != nil || b == nil {
		return nil, false, err
	}
	r, err := state.DeserializeSessionRecord(b)
	return r, err == nil, err
}

func (s *RedisStore) StoreSession(ctx context.Context, addr domain.ProtocolAddress, r *state.SessionRecord) error {
	return s.hset(ctx, "sessions", addr.String(), r.Serialize())
}

// ---------- Sender keys ----------

func (s *RedisStore) LoadSenderKey(ctx context.Context, name domain.SenderKeyName) (*senderkey.Record, bool, error) {
	b, err := s.hget(ctx, "sender_keys", name.String())
	if err != nil || b == nil {
		return nil, false, err
	}
	r, err := senderkey.DeserializeRecord(b)
	return r, err == nil, err
}

func (s *RedisStore) StoreSenderKey(ctx context.Context, name domain.SenderKeyName, r *senderkey.Record) error {
	return s.hset(ctx, "sender_keys", name.String(), r.Serialize())
}

// ---------- helpers ----------

// hget returns nil, nil on a missing field.
func (s *RedisStore) hget(ctx context.Context, hash, field string) ([]byte, error) {
	b, err := s.client.HGet(ctx, s.key(hash), field).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget %s %s: %w", hash, field, err)
	}
	return b, nil
}

func (s *RedisStore) hset(ctx context.Context, hash, field string, value []byte) error {
	if err := s.client.HSet(ctx, s.key(hash), field, value).Err(); err != nil {
		return fmt.Errorf("redis hset %s %s: %w", hash, field, err)
	}
	return nil
}

// Compile-time assertion that RedisStore implements domain.ProtocolStore.
var _ domain.ProtocolStore = (*RedisStore)(nil)
