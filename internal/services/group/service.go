package group

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"go.uber.org/zap"

	"signalcore/internal/domain"
	"signalcore/internal/logging"
	"signalcore/internal/protocol/senderkey"
	"signalcore/internal/protocol/wire"
	"signalcore/internal/protoerr"
	"signalcore/internal/util/keymutex"
)

// Cipher runs the sender-key engine for (group, sender) pairs.
type Cipher struct {
	store domain.SenderKeyStore
	locks *keymutex.Set
	rng   io.Reader
	log   *zap.Logger
}

// New constructs a group Cipher over store.
func New(store domain.SenderKeyStore, rng io.Reader, log *zap.Logger) *Cipher {
	if rng == nil {
		rng = rand.Reader
	}
	return &Cipher{store: store, locks: keymutex.New(), rng: rng, log: logging.OrNop(log)}
}

// CreateDistributionMessage returns the message that lets group members read
// what name.Sender (us) sends, creating our sender key on first use.
func (c *Cipher) CreateDistributionMessage(ctx context.Context, name domain.SenderKeyName) (*wire.SenderKeyDistributionMessage, error) {
	unlock := c.locks.Lock(name.String())
	defer unlock()

	record, err := c.load(ctx, name, true)
	if err != nil {
		return nil, err
	}
	created := record.IsEmpty()
	msg, err := senderkey.CreateDistributionMessage(c.rng, record)
	if err != nil {
		return nil, err
	}
	if err := c.store.StoreSenderKey(ctx, name, record); err != nil {
		return nil, err
	}
	if created {
		c.log.Debug("created sender key", zap.Stringer("name", name), zap.Uint32("key_id", msg.KeyID()))
	}
	return msg, nil
}

// ProcessDistributionMessage installs a member's sender key.
func (c *Cipher) ProcessDistributionMessage(
	ctx context.Context,
	name domain.SenderKeyName,
	msg *wire.SenderKeyDistributionMessage,
) error {
	unlock := c.locks.Lock(name.String())
	defer unlock()

	record, err := c.load(ctx, name, true)
	if err != nil {
		return err
	}
	if err := senderkey.ProcessDistributionMessage(record, msg); err != nil {
		return err
	}
	c.log.Debug("installed sender key",
		zap.Stringer("name", name), zap.Uint32("key_id", msg.KeyID()), zap.Uint32("iteration", msg.Iteration()))
	return c.store.StoreSenderKey(ctx, name, record)
}

// Encrypt seals plaintext with our sender key for name.GroupID.
func (c *Cipher) Encrypt(ctx context.Context, name domain.SenderKeyName, plaintext []byte) (*wire.SenderKeyMessage, error) {
	unlock := c.locks.Lock(name.String())
	defer unlock()

	record, err := c.load(ctx, name, false)
	if err != nil {
		return nil, err
	}
	msg, err := senderkey.Encrypt(c.rng, record, plaintext)
	if err != nil {
		return nil, err
	}
	if err := c.store.StoreSenderKey(ctx, name, record); err != nil {
		return nil, err
	}
	return msg, nil
}

// Decrypt opens a SenderKeyMessage from name.Sender. The record is stored
// only when decryption succeeds.
func (c *Cipher) Decrypt(ctx context.Context, name domain.SenderKeyName, serialized []byte) ([]byte, error) {
	unlock := c.locks.Lock(name.String())
	defer unlock()

	record, err := c.load(ctx, name, false)
	if err != nil {
		return nil, err
	}
	plaintext, err := senderkey.Decrypt(record, serialized)
	if err != nil {
		return nil, err
	}
	if err := c.store.StoreSenderKey(ctx, name, record); err != nil {
		return nil, err
	}
	return plaintext, nil
}

func (c *Cipher) load(ctx context.Context, name domain.SenderKeyName, create bool) (*senderkey.Record, error) {
	record, found, err := c.store.LoadSenderKey(ctx, name)
	if err != nil {
		return nil, err
	}
	if !found {
		if !create {
			return nil, fmt.Errorf("%s: %w", name, protoerr.ErrNoSenderKeyState)
		}
		record = senderkey.NewRecord()
	}
	return record, nil
}

var _ domain.GroupService = (*Cipher)(nil)
