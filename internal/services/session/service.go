package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"go.uber.org/zap"

	"signalcore/internal/crypto"
	"signalcore/internal/domain"
	"signalcore/internal/logging"
	"signalcore/internal/protocol/prekey"
	"signalcore/internal/protocol/state"
	"signalcore/internal/protocol/wire"
	"signalcore/internal/protocol/x3dh"
	"signalcore/internal/protoerr"
	"signalcore/internal/util/keymutex"
)

// Builder runs X3DH for both roles and persists the resulting states.
//
// As initiator it consumes a fetched pre-key bundle. As responder it is
// driven by the message cipher when a PreKeySignalMessage arrives.
type Builder struct {
	store domain.ProtocolStore
	locks *keymutex.Set
	rng   io.Reader
	log   *zap.Logger
}

// Consumed names the pre-keys a responder handshake used. The caller deletes
// the one-time pre-key and marks the Kyber pre-key once decryption succeeds.
type Consumed struct {
	PreKeyID      *uint32
	KyberPreKeyID *uint32
}

// New constructs a Builder. locks is shared with the message cipher so a
// handshake and an encrypt for the same address never interleave.
func New(store domain.ProtocolStore, locks *keymutex.Set, rng io.Reader, log *zap.Logger) *Builder {
	if locks == nil {
		locks = keymutex.New()
	}
	if rng == nil {
		rng = rand.Reader
	}
	return &Builder{store: store, locks: locks, rng: rng, log: logging.OrNop(log)}
}

// Locks is the per-address lock set the builder serializes on.
func (b *Builder) Locks() *keymutex.Set { return b.locks }

// ProcessPreKeyBundle starts a session with addr from its published bundle.
//
// Steps:
//  1. Refuse the bundle's identity if the store does not trust it for sending.
//  2. Verify the signed pre-key signature, and the Kyber one if present.
//  3. Run X3DH as initiator with a fresh base key.
//  4. Record the pending pre-key data and registration ids, save the
//     identity, then promote the new state and store the record.
func (b *Builder) ProcessPreKeyBundle(ctx context.Context, addr domain.ProtocolAddress, bundle *prekey.Bundle) error {
	unlock := b.locks.Lock(addr.String())
	defer unlock()

	theirIdentity := bundle.IdentityKey()
	ok, err := b.store.IsTrustedIdentity(ctx, addr, theirIdentity, domain.Sending)
	if err != nil {
		return err
	}
	if !ok {
		return &protoerr.UntrustedIdentityError{Address: addr.String()}
	}
	if err := bundle.VerifySignatures(); err != nil {
		return err
	}

	ourIdentity, err := b.store.GetIdentityKeyPair(ctx)
	if err != nil {
		return err
	}
	localReg, err := b.store.GetLocalRegistrationID(ctx)
	if err != nil {
		return err
	}
	baseKey, err := crypto.GenerateKeyPair(b.rng)
	if err != nil {
		return err
	}

	params := x3dh.AliceParameters{
		OurIdentity:       ourIdentity,
		OurBaseKey:        baseKey,
		TheirIdentity:     theirIdentity,
		TheirSignedPreKey: bundle.SignedPreKey(),
		TheirRatchetKey:   bundle.SignedPreKey(),
	}
	pending := state.PendingPreKey{
		SignedPreKeyID: bundle.SignedPreKeyID(),
		BaseKey:        baseKey.PublicKey,
	}
	if id, key, ok := bundle.PreKey(); ok {
		params.TheirOneTimePreKey = &key
		pending.PreKeyID = &id
	}
	var kyberID *uint32
	if id, key, _, ok := bundle.KyberPreKey(); ok {
		params.TheirKyberPreKey = &key
		kyberID = &id
	}

	st, kyberCiphertext, err := x3dh.InitializeAlice(params, b.rng)
	if err != nil {
		return fmt.Errorf("initialize session with %s: %w", addr, err)
	}
	if kyberID != nil {
		pending.KyberPreKeyID = kyberID
		pending.KyberCiphertext = kyberCiphertext
	}
	st.SetPendingPreKey(pending)
	st.SetLocalRegistrationID(localReg)
	st.SetRemoteRegistrationID(bundle.RegistrationID())

	record, found, err := b.store.LoadSession(ctx, addr)
	if err != nil {
		return err
	}
	if !found {
		record = state.NewSessionRecord()
	}
	if _, err := b.store.SaveIdentity(ctx, addr, theirIdentity); err != nil {
		return err
	}
	record.PromoteState(st)
	b.log.Debug("promoted new session",
		zap.Stringer("address", addr),
		zap.Uint32("version", st.Version()),
		zap.Int("archived", len(record.PreviousStates())),
	)
	return b.store.StoreSession(ctx, addr, record)
}

// ProcessPreKey brings record up to date with the handshake in msg. The
// caller holds the lock for addr and stores record afterwards.
//
// A message repeating a handshake we already accepted promotes that state
// and consumes nothing. Otherwise the referenced pre-keys are loaded and the
// responder state becomes current.
func (b *Builder) ProcessPreKey(
	ctx context.Context,
	addr domain.ProtocolAddress,
	record *state.SessionRecord,
	msg *wire.PreKeySignalMessage,
) (Consumed, error) {
	theirIdentity := msg.IdentityKey()
	ok, err := b.store.IsTrustedIdentity(ctx, addr, theirIdentity, domain.Receiving)
	if err != nil {
		return Consumed{}, err
	}
	if !ok {
		return Consumed{}, &protoerr.UntrustedIdentityError{Address: addr.String()}
	}

	if record.PromoteMatchingSession(uint32(msg.MessageVersion()), msg.BaseKey().Serialize()) {
		b.log.Debug("prekey message matches existing session", zap.Stringer("address", addr))
		return Consumed{}, nil
	}

	signed, found, err := b.store.GetSignedPreKey(ctx, msg.SignedPreKeyID())
	if err != nil {
		return Consumed{}, err
	}
	if !found {
		return Consumed{}, fmt.Errorf("signed pre-key %d: %w", msg.SignedPreKeyID(), protoerr.ErrInvalidSignedPreKeyID)
	}

	ourIdentity, err := b.store.GetIdentityKeyPair(ctx)
	if err != nil {
		return Consumed{}, err
	}
	params := x3dh.BobParameters{
		OurIdentity:          ourIdentity,
		OurSignedPreKey:      signed.KeyPair(),
		OurRatchetKey:        signed.KeyPair(),
		TheirIdentity:        theirIdentity,
		TheirBaseKey:         msg.BaseKey(),
		TheirKyberCiphertext: msg.KyberCiphertext(),
	}

	var used Consumed
	if id, ok := msg.PreKeyID(); ok {
		rec, found, err := b.store.GetPreKey(ctx, id)
		if err != nil {
			return Consumed{}, err
		}
		if !found {
			return Consumed{}, fmt.Errorf("one-time pre-key %d: %w", id, protoerr.ErrInvalidPreKeyID)
		}
		kp := rec.KeyPair()
		params.OurOneTimePreKey = &kp
		used.PreKeyID = &id
	}
	if id, ok := msg.KyberPreKeyID(); ok {
		rec, found, err := b.store.GetKyberPreKey(ctx, id)
		if err != nil {
			return Consumed{}, err
		}
		if !found {
			return Consumed{}, fmt.Errorf("kyber pre-key %d: %w", id, protoerr.ErrInvalidKyberPreKeyID)
		}
		sk := rec.SecretKey()
		params.OurKyberPreKey = &sk
		used.KyberPreKeyID = &id
	}

	st, err := x3dh.InitializeBob(params)
	if err != nil {
		return Consumed{}, fmt.Errorf("accept session from %s: %w", addr, err)
	}
	localReg, err := b.store.GetLocalRegistrationID(ctx)
	if err != nil {
		return Consumed{}, err
	}
	st.SetLocalRegistrationID(localReg)
	st.SetRemoteRegistrationID(msg.RegistrationID())
	record.PromoteState(st)
	b.log.Debug("promoted responder session",
		zap.Stringer("address", addr),
		zap.Uint32("version", st.Version()),
		zap.Int("archived", len(record.PreviousStates())),
	)
	return used, nil
}

var _ domain.SessionService = (*Builder)(nil)
