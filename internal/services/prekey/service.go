package prekey

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"signalcore/internal/domain"
	"signalcore/internal/logging"
	protoprekey "signalcore/internal/protocol/prekey"
)

// maxPreKeyID keeps generated ids within 24 bits, leaving room to count up
// from a random start without wrapping.
const maxPreKeyID = 0xFFFFFF

// ErrInvalidCount is returned when asked for a negative number of pre-keys.
var ErrInvalidCount = errors.New("pre-key count must be non-negative")

// Service generates signed, one-time and Kyber pre-keys, stores their
// private halves, and assembles the bundle to publish.
type Service struct {
	ids   domain.IdentityKeyStore
	pre   domain.PreKeyStore
	spk   domain.SignedPreKeyStore
	kyber domain.KyberPreKeyStore
	rng   io.Reader
	now   func() time.Time
	log   *zap.Logger
}

// New returns a pre-key service over the given stores.
func New(store domain.ProtocolStore, rng io.Reader, log *zap.Logger) *Service {
	if rng == nil {
		rng = rand.Reader
	}
	return &Service{
		ids:   store,
		pre:   store,
		spk:   store,
		kyber: store,
		rng:   rng,
		now:   time.Now,
		log:   logging.OrNop(log),
	}
}

// GeneratePreKeys creates a signed pre-key, a Kyber pre-key and count
// one-time pre-keys, stores them, and returns the public bundle for
// (username, deviceID).
func (s *Service) GeneratePreKeys(
	ctx context.Context,
	username domain.Username,
	deviceID uint32,
	count int,
) (domain.PublishedBundle, error) {
	if count < 0 {
		return domain.PublishedBundle{}, ErrInvalidCount
	}
	id, err := s.ids.GetIdentityKeyPair(ctx)
	if err != nil {
		return domain.PublishedBundle{}, err
	}
	reg, err := s.ids.GetLocalRegistrationID(ctx)
	if err != nil {
		return domain.PublishedBundle{}, err
	}
	ts := uint64(s.now().UnixMilli())

	// Signed pre-key.
	spkID, err := s.randomID()
	if err != nil {
		return domain.PublishedBundle{}, err
	}
	spk, err := protoprekey.GenerateSignedPreKey(s.rng, id, spkID, ts)
	if err != nil {
		return domain.PublishedBundle{}, err
	}
	if err := s.spk.SaveSignedPreKey(ctx, spk); err != nil {
		return domain.PublishedBundle{}, err
	}

	// Kyber pre-key, published as the last-resort key.
	kyberID, err := s.randomID()
	if err != nil {
		return domain.PublishedBundle{}, err
	}
	kpk, err := protoprekey.GenerateKyberPreKey(s.rng, id, kyberID, ts)
	if err != nil {
		return domain.PublishedBundle{}, err
	}
	if err := s.kyber.SaveKyberPreKey(ctx, kpk); err != nil {
		return domain.PublishedBundle{}, err
	}

	// One-time pre-keys.
	start, err := s.randomID()
	if err != nil {
		return domain.PublishedBundle{}, err
	}
	oneTime := make([]domain.OneTimePreKeyPublic, 0, count)
	for i := 0; i < count; i++ {
		opkID := (start+uint32(i))%maxPreKeyID + 1
		opk, err := protoprekey.GeneratePreKey(s.rng, opkID)
		if err != nil {
			return domain.PublishedBundle{}, err
		}
		if err := s.pre.SavePreKey(ctx, opk); err != nil {
			return domain.PublishedBundle{}, err
		}
		oneTime = append(oneTime, domain.OneTimePreKeyPublic{ID: opkID, PublicKey: opk.PublicKey().Serialize()})
	}

	s.log.Debug("generated pre-keys",
		zap.Uint32("signed_pre_key_id", spkID),
		zap.Uint32("kyber_pre_key_id", kyberID),
		zap.Int("one_time", count))

	return domain.PublishedBundle{
		Username:       username,
		DeviceID:       deviceID,
		RegistrationID: reg,
		IdentityKey:    id.IdentityKey.Serialize(),
		SignedPreKey: domain.SignedPreKeyPublic{
			ID:        spkID,
			PublicKey: spk.PublicKey().Serialize(),
			Signature: spk.Signature(),
		},
		KyberPreKey: &domain.SignedPreKeyPublic{
			ID:        kyberID,
			PublicKey: kpk.PublicKey().Serialize(),
			Signature: kpk.Signature(),
		},
		OneTimePreKeys: oneTime,
	}, nil
}

// randomID draws an id in [1, maxPreKeyID].
func (s *Service) randomID() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(s.rng, b[:]); err != nil {
		return 0, fmt.Errorf("pre-key id: %w", err)
	}
	return binary.BigEndian.Uint32(b[:])%maxPreKeyID + 1, nil
}

// Compile-time assertion that Service implements domain.PreKeyService.
var _ domain.PreKeyService = (*Service)(nil)
