package message

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"signalcore/internal/domain"
	"signalcore/internal/protocol/sealedsender"
	"signalcore/internal/protocol/wire"
	"signalcore/internal/protoerr"
)

// SealedSenderEncrypt encrypts plaintext for addr and wraps the result, with
// our sender certificate, in a sealed-sender envelope addressed to the
// identity key we hold for addr.
func (c *Cipher) SealedSenderEncrypt(
	ctx context.Context,
	addr domain.ProtocolAddress,
	sender *sealedsender.SenderCertificate,
	plaintext []byte,
) ([]byte, error) {
	msg, err := c.Encrypt(ctx, addr, plaintext)
	if err != nil {
		return nil, err
	}
	theirs, found, err := c.store.GetIdentity(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s: no identity key: %w", addr, protoerr.ErrSessionNotFound)
	}
	ours, err := c.store.GetIdentityKeyPair(ctx)
	if err != nil {
		return nil, err
	}
	content, err := sealedsender.NewContent(msg.Type(), sender, msg.Serialize())
	if err != nil {
		return nil, err
	}
	return sealedsender.Encrypt(c.rng, theirs, ours, content)
}

// SealedSenderDecrypt opens a sealed-sender envelope, validates the sender
// certificate at opts.Timestamp and decrypts the inner message under the
// sender's session.
func (c *Cipher) SealedSenderDecrypt(
	ctx context.Context,
	sealed []byte,
	opts domain.SealedDecryptOptions,
) (domain.DecryptedMessage, error) {
	ours, err := c.store.GetIdentityKeyPair(ctx)
	if err != nil {
		return domain.DecryptedMessage{}, err
	}
	content, err := sealedsender.DecryptToContent(ours, sealed)
	if err != nil {
		return domain.DecryptedMessage{}, err
	}
	cert := content.Sender()
	if err := cert.Validate(opts.TrustRoot, opts.Timestamp); err != nil {
		return domain.DecryptedMessage{}, err
	}
	if isSelf(cert, opts) {
		return domain.DecryptedMessage{}, protoerr.ErrSealedSenderSelfSend
	}

	name := cert.SenderUUID()
	if opts.ResolveSender != nil {
		if name, err = opts.ResolveSender(ctx, cert); err != nil {
			return domain.DecryptedMessage{}, fmt.Errorf("resolve sender %s: %w", cert.SenderUUID(), err)
		}
	}
	addr := domain.NewProtocolAddress(name, cert.DeviceID())

	var plaintext []byte
	switch content.Type() {
	case wire.TypePreKey:
		msg, err := wire.DeserializePreKeySignalMessage(content.Contents())
		if err != nil {
			return domain.DecryptedMessage{}, err
		}
		plaintext, err = c.DecryptPreKey(ctx, addr, msg)
		if err != nil {
			return domain.DecryptedMessage{}, err
		}
	case wire.TypeWhisper:
		msg, err := wire.DeserializeSignalMessage(content.Contents())
		if err != nil {
			return domain.DecryptedMessage{}, err
		}
		plaintext, err = c.Decrypt(ctx, addr, msg)
		if err != nil {
			return domain.DecryptedMessage{}, err
		}
	default:
		return domain.DecryptedMessage{}, fmt.Errorf("sealed content type %s: %w", content.Type(), protoerr.ErrInvalidMessage)
	}

	c.log.Debug("opened sealed sender message",
		zap.Stringer("address", addr), zap.Stringer("type", content.Type()))
	return domain.DecryptedMessage{
		From:      addr,
		SenderID:  cert.SenderUUID(),
		Plaintext: plaintext,
		Timestamp: int64(opts.Timestamp),
	}, nil
}

func isSelf(cert *sealedsender.SenderCertificate, opts domain.SealedDecryptOptions) bool {
	if cert.DeviceID() != opts.LocalDeviceID {
		return false
	}
	if opts.LocalUUID != "" && cert.SenderUUID() == opts.LocalUUID {
		return true
	}
	e164, ok := cert.SenderE164()
	return ok && opts.LocalE164 != "" && e164 == opts.LocalE164
}
