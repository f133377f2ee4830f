package message

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"signalcore/internal/crypto"
	"signalcore/internal/domain"
	"signalcore/internal/logging"
	"signalcore/internal/protocol/ratchet"
	"signalcore/internal/protocol/state"
	"signalcore/internal/protocol/wire"
	"signalcore/internal/protoerr"
	"signalcore/internal/services/session"
	"signalcore/internal/util/keymutex"
)

// Cipher encrypts and decrypts pairwise messages with the Double Ratchet.
//
// Every operation on an address holds that address's lock for the whole
// load, mutate and store sequence. The lock set is the one the session
// builder uses.
type Cipher struct {
	store   domain.ProtocolStore
	builder *session.Builder
	locks   *keymutex.Set
	rng     io.Reader
	log     *zap.Logger
}

// New constructs a Cipher over store, driving builder for incoming
// handshakes.
func New(store domain.ProtocolStore, builder *session.Builder, rng io.Reader, log *zap.Logger) *Cipher {
	if rng == nil {
		rng = rand.Reader
	}
	return &Cipher{
		store:   store,
		builder: builder,
		locks:   builder.Locks(),
		rng:     rng,
		log:     logging.OrNop(log),
	}
}

// Encrypt seals plaintext for addr. While the session still carries pending
// pre-key data the result is a PreKeySignalMessage; afterwards it is a plain
// SignalMessage.
func (c *Cipher) Encrypt(ctx context.Context, addr domain.ProtocolAddress, plaintext []byte) (wire.CiphertextMessage, error) {
	unlock := c.locks.Lock(addr.String())
	defer unlock()

	record, err := c.loadSession(ctx, addr)
	if err != nil {
		return nil, err
	}
	st, err := record.SessionState()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", addr, protoerr.ErrSessionNotFound)
	}
	remote, ok := st.RemoteIdentityKey()
	if !ok {
		return nil, fmt.Errorf("%s: no remote identity: %w", addr, protoerr.ErrInvalidState)
	}
	trusted, err := c.store.IsTrustedIdentity(ctx, addr, remote, domain.Sending)
	if err != nil {
		return nil, err
	}
	if !trusted {
		return nil, &protoerr.UntrustedIdentityError{Address: addr.String()}
	}

	if !st.HasSenderChain() {
		if err := c.ratchetSending(addr, st); err != nil {
			return nil, err
		}
	}
	chain, err := st.SenderChainKey()
	if err != nil {
		return nil, err
	}
	keys, err := chain.MessageKeys()
	if err != nil {
		return nil, err
	}
	ratchetKey, err := st.SenderRatchetKey()
	if err != nil {
		return nil, err
	}
	body, err := crypto.AESCBCEncrypt(plaintext, keys.CipherKey, keys.IV)
	if err != nil {
		return nil, err
	}

	version := uint8(st.Version())
	local := st.LocalIdentityKey()
	signal, err := wire.NewSignalMessage(version, keys.MACKey, ratchetKey,
		chain.Index(), st.PreviousCounter(), body, local, remote)
	if err != nil {
		return nil, err
	}

	var out wire.CiphertextMessage = signal
	if pending, ok := st.PendingPreKey(); ok {
		out, err = wire.NewPreKeySignalMessage(wire.PreKeyParams{
			MessageVersion:  version,
			RegistrationID:  st.LocalRegistrationID(),
			PreKeyID:        pending.PreKeyID,
			SignedPreKeyID:  pending.SignedPreKeyID,
			KyberPreKeyID:   pending.KyberPreKeyID,
			KyberCiphertext: pending.KyberCiphertext,
			BaseKey:         pending.BaseKey,
			IdentityKey:     local,
			Message:         signal,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := st.SetSenderChainKey(chain.Next()); err != nil {
		return nil, err
	}
	if err := c.store.StoreSession(ctx, addr, record); err != nil {
		return nil, err
	}
	return out, nil
}

// Decrypt opens a SignalMessage from addr.
func (c *Cipher) Decrypt(ctx context.Context, addr domain.ProtocolAddress, msg *wire.SignalMessage) ([]byte, error) {
	unlock := c.locks.Lock(addr.String())
	defer unlock()

	record, err := c.loadSession(ctx, addr)
	if err != nil {
		return nil, err
	}
	plaintext, err := c.decryptRecord(addr, record, msg)
	if err != nil {
		return nil, err
	}
	if err := c.checkTrusted(ctx, addr, record); err != nil {
		return nil, err
	}
	if err := c.store.StoreSession(ctx, addr, record); err != nil {
		return nil, err
	}
	return plaintext, nil
}

// DecryptPreKey accepts a handshake from addr and opens the message it
// carries. The one-time pre-key is removed and the Kyber pre-key marked used
// only after decryption succeeds.
func (c *Cipher) DecryptPreKey(ctx context.Context, addr domain.ProtocolAddress, msg *wire.PreKeySignalMessage) ([]byte, error) {
	unlock := c.locks.Lock(addr.String())
	defer unlock()

	record, found, err := c.store.LoadSession(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !found {
		record = state.NewSessionRecord()
	}
	used, err := c.builder.ProcessPreKey(ctx, addr, record, msg)
	if err != nil {
		return nil, err
	}
	plaintext, err := c.decryptRecord(addr, record, msg.Message())
	if err != nil {
		return nil, err
	}

	if _, err := c.store.SaveIdentity(ctx, addr, msg.IdentityKey()); err != nil {
		return nil, err
	}
	if err := c.store.StoreSession(ctx, addr, record); err != nil {
		return nil, err
	}
	if used.PreKeyID != nil {
		if err := c.store.RemovePreKey(ctx, *used.PreKeyID); err != nil {
			return nil, err
		}
	}
	if used.KyberPreKeyID != nil {
		if err := c.store.MarkKyberPreKeyUsed(ctx, *used.KyberPreKeyID); err != nil {
			return nil, err
		}
	}
	return plaintext, nil
}

// SessionVersion is the version of the current session with addr. A record
// with no current state reads as 0.
func (c *Cipher) SessionVersion(ctx context.Context, addr domain.ProtocolAddress) (uint32, error) {
	record, err := c.loadSession(ctx, addr)
	if err != nil {
		return 0, err
	}
	return record.LegacySessionVersion(), nil
}

// RemoteRegistrationID is the registration id addr announced.
func (c *Cipher) RemoteRegistrationID(ctx context.Context, addr domain.ProtocolAddress) (uint32, error) {
	record, err := c.loadSession(ctx, addr)
	if err != nil {
		return 0, err
	}
	return record.RemoteRegistrationID()
}

func (c *Cipher) loadSession(ctx context.Context, addr domain.ProtocolAddress) (*state.SessionRecord, error) {
	record, found, err := c.store.LoadSession(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", addr, protoerr.ErrSessionNotFound)
	}
	return record, nil
}

// checkTrusted refuses a decrypted message whose sender identity the store
// no longer trusts, then records it.
func (c *Cipher) checkTrusted(ctx context.Context, addr domain.ProtocolAddress, record *state.SessionRecord) error {
	st, err := record.SessionState()
	if err != nil {
		return err
	}
	remote, ok := st.RemoteIdentityKey()
	if !ok {
		return fmt.Errorf("%s: no remote identity: %w", addr, protoerr.ErrInvalidState)
	}
	trusted, err := c.store.IsTrustedIdentity(ctx, addr, remote, domain.Receiving)
	if err != nil {
		return err
	}
	if !trusted {
		return &protoerr.UntrustedIdentityError{Address: addr.String()}
	}
	_, err = c.store.SaveIdentity(ctx, addr, remote)
	return err
}

// decryptRecord tries the current state, then each archived state. Only the
// current state may take a DH ratchet step. A duplicate or a skip beyond the
// chain limits ends the search.
func (c *Cipher) decryptRecord(addr domain.ProtocolAddress, record *state.SessionRecord, msg *wire.SignalMessage) ([]byte, error) {
	if record.HasCurrentState() {
		current, err := record.SessionState()
		if err != nil {
			return nil, err
		}
		candidate := current.Clone()
		plaintext, err := c.decryptState(addr, candidate, msg, true)
		if err == nil {
			record.SetSessionState(candidate)
			return plaintext, nil
		}
		if errors.Is(err, protoerr.ErrDuplicatedMessage) || errors.Is(err, protoerr.ErrTooManySkippedMessages) {
			return nil, err
		}
		c.log.Debug("current session failed to decrypt",
			zap.Stringer("address", addr), zap.Error(err))
	}

	previous := record.PreviousStates()
	for i, archived := range previous {
		candidate := archived.Clone()
		plaintext, err := c.decryptState(addr, candidate, msg, false)
		if err == nil {
			previous[i] = candidate
			c.log.Debug("decrypted with archived session",
				zap.Stringer("address", addr), zap.Int("index", i))
			return plaintext, nil
		}
		if errors.Is(err, protoerr.ErrDuplicatedMessage) || errors.Is(err, protoerr.ErrTooManySkippedMessages) {
			return nil, err
		}
		c.log.Debug("archived session failed to decrypt",
			zap.Stringer("address", addr), zap.Int("index", i), zap.Error(err))
	}
	return nil, fmt.Errorf("%s: no session could decrypt (%d archived): %w",
		addr, len(previous), protoerr.ErrInvalidMessage)
}

func (c *Cipher) decryptState(addr domain.ProtocolAddress, st *state.SessionState, msg *wire.SignalMessage, mayRatchet bool) ([]byte, error) {
	if uint32(msg.MessageVersion()) != st.Version() {
		return nil, fmt.Errorf("message version %d, session version %d: %w",
			msg.MessageVersion(), st.Version(), protoerr.ErrUnrecognizedMessageVersion)
	}
	if !st.HasSenderChain() {
		return nil, fmt.Errorf("session has no sender chain: %w", protoerr.ErrInvalidMessage)
	}

	theirRatchet := msg.SenderRatchetKey()
	chain, err := c.receiverChain(addr, st, theirRatchet, mayRatchet)
	if err != nil {
		return nil, err
	}
	keys, err := messageKeys(st, theirRatchet, chain, msg.Counter())
	if err != nil {
		return nil, err
	}

	remote, ok := st.RemoteIdentityKey()
	if !ok {
		return nil, fmt.Errorf("no remote identity: %w", protoerr.ErrInvalidState)
	}
	valid, err := msg.VerifyMAC(remote, st.LocalIdentityKey(), keys.MACKey)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, fmt.Errorf("MAC verification failed: %w", protoerr.ErrInvalidMessage)
	}
	plaintext, err := crypto.AESCBCDecrypt(msg.Body(), keys.CipherKey, keys.IV)
	if err != nil {
		return nil, fmt.Errorf("decrypt body: %w", protoerr.ErrInvalidMessage)
	}
	st.ClearPendingPreKey()
	return plaintext, nil
}

// receiverChain returns the chain for theirRatchet, stepping the DH ratchet
// when the key is new and mayRatchet allows it.
func (c *Cipher) receiverChain(
	addr domain.ProtocolAddress,
	st *state.SessionState,
	theirRatchet crypto.PublicKey,
	mayRatchet bool,
) (ratchet.ChainKey, error) {
	if chain, ok := st.ReceiverChainKey(theirRatchet); ok {
		return chain, nil
	}
	if !mayRatchet {
		return ratchet.ChainKey{}, fmt.Errorf("unknown ratchet key in archived session: %w", protoerr.ErrInvalidMessage)
	}

	ours, err := st.SenderRatchetKeyPair()
	if err != nil {
		return ratchet.ChainKey{}, err
	}
	receiverRoot, receiverChain, err := st.RootKey().CreateChain(theirRatchet, ours.PrivateKey)
	if err != nil {
		return ratchet.ChainKey{}, err
	}
	next, err := crypto.GenerateKeyPair(c.rng)
	if err != nil {
		return ratchet.ChainKey{}, err
	}
	senderRoot, senderChain, err := receiverRoot.CreateChain(theirRatchet, next.PrivateKey)
	if err != nil {
		return ratchet.ChainKey{}, err
	}
	current, err := st.SenderChainKey()
	if err != nil {
		return ratchet.ChainKey{}, err
	}

	st.SetRootKey(senderRoot)
	st.AddReceiverChain(theirRatchet, receiverChain)
	st.SetPreviousCounter(previousCounter(current.Index()))
	st.SetSenderChain(next, senderChain)
	c.log.Debug("ratchet step on receive",
		zap.Stringer("address", addr), zap.String("their_ratchet", crypto.ShortID(theirRatchet)))
	return receiverChain, nil
}

// ratchetSending rebuilds a missing sender chain against the newest
// receiver ratchet key.
func (c *Cipher) ratchetSending(addr domain.ProtocolAddress, st *state.SessionState) error {
	theirRatchet, ok := st.NewestReceiverRatchetKey()
	if !ok {
		return fmt.Errorf("%s: no sender or receiver chain: %w", addr, protoerr.ErrInvalidState)
	}
	next, err := crypto.GenerateKeyPair(c.rng)
	if err != nil {
		return err
	}
	root, chain, err := st.RootKey().CreateChain(theirRatchet, next.PrivateKey)
	if err != nil {
		return err
	}
	st.SetRootKey(root)
	st.SetPreviousCounter(0)
	st.SetSenderChain(next, chain)
	c.log.Debug("ratchet step on send", zap.Stringer("address", addr))
	return nil
}

// messageKeys returns the keys for counter on chain, caching every key it
// skips over and advancing the stored receiver chain.
func messageKeys(st *state.SessionState, theirRatchet crypto.PublicKey, chain ratchet.ChainKey, counter uint32) (ratchet.MessageKeys, error) {
	index := chain.Index()
	if index > counter {
		if keys, ok := st.TakeMessageKeys(theirRatchet, counter); ok {
			return keys, nil
		}
		return ratchet.MessageKeys{}, &protoerr.DuplicatedMessageError{Current: index, Received: counter}
	}
	if err := ratchet.CheckSkip(index, counter, st.SkippedKeyCount(theirRatchet)); err != nil {
		return ratchet.MessageKeys{}, err
	}

	for chain.Index() < counter {
		skipped, err := chain.MessageKeys()
		if err != nil {
			return ratchet.MessageKeys{}, err
		}
		if err := st.SetMessageKeys(theirRatchet, skipped); err != nil {
			return ratchet.MessageKeys{}, err
		}
		chain = chain.Next()
	}
	keys, err := chain.MessageKeys()
	if err != nil {
		return ratchet.MessageKeys{}, err
	}
	if err := st.SetReceiverChainKey(theirRatchet, chain.Next()); err != nil {
		return ratchet.MessageKeys{}, err
	}
	return keys, nil
}

// previousCounter is the last index used on a sender chain about to be
// replaced.
func previousCounter(index uint32) uint32 {
	if index == 0 {
		return 0
	}
	return index - 1
}

var _ domain.MessageService = (*Cipher)(nil)
