package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"signalcore/internal/crypto"
	"signalcore/internal/domain"
	"signalcore/internal/fingerprint"
	"signalcore/internal/protocol/sealedsender"
	"signalcore/internal/protocol/wire"
	"signalcore/internal/protoerr"
)

var (
	// ErrNoAccount is returned when no profile exists for the key directory.
	ErrNoAccount = errors.New("no account for this key directory; run init first")

	// ErrAccountExists is returned by Init when a profile is already present.
	ErrAccountExists = errors.New("account already initialised; use --force to rotate")

	// ErrNoTrustRoot is returned when sealed sender is used before publish
	// pinned the directory's trust root.
	ErrNoTrustRoot = errors.New("no pinned trust root; run publish first")
)

// certificateMargin is how long a cached sender certificate must still be
// valid to be reused.
const certificateMargin = 5 * time.Minute

// Init creates the local identity and the account profile for the
// configured key directory.
func (w *Wire) Init(
	ctx context.Context,
	username domain.Username,
	e164 string,
	deviceID uint32,
	force bool,
) (domain.AccountProfile, domain.Fingerprint, error) {
	if username == "" {
		return domain.AccountProfile{}, "", fmt.Errorf("empty username: %w", protoerr.ErrInvalidArgument)
	}
	if _, ok, err := w.Accounts.LoadAccountProfile(w.Config.KeyDirURL, ""); err != nil {
		return domain.AccountProfile{}, "", err
	} else if ok && !force {
		return domain.AccountProfile{}, "", ErrAccountExists
	}

	_, fp, err := w.Identity.GenerateIdentity(ctx)
	if err != nil {
		return domain.AccountProfile{}, "", err
	}
	profile := domain.AccountProfile{
		ServerURL: w.Config.KeyDirURL,
		Username:  username,
		UUID:      uuid.NewString(),
		E164:      e164,
		DeviceID:  deviceID,
	}
	if err := w.Accounts.SaveAccountProfile(profile); err != nil {
		return domain.AccountProfile{}, "", err
	}
	return profile, fp, nil
}

// Account loads the profile for the configured key directory. An empty
// username selects the first one.
func (w *Wire) Account(username domain.Username) (domain.AccountProfile, error) {
	profile, ok, err := w.Accounts.LoadAccountProfile(w.Config.KeyDirURL, username)
	if err != nil {
		return domain.AccountProfile{}, err
	}
	if !ok {
		return domain.AccountProfile{}, ErrNoAccount
	}
	return profile, nil
}

// Publish generates fresh pre-keys, uploads the bundle, pins the trust root
// on first use and refreshes the sender certificate.
func (w *Wire) Publish(ctx context.Context, profile *domain.AccountProfile) (domain.PublishedBundle, error) {
	bundle, err := w.PreKeys.GeneratePreKeys(ctx, profile.Username, profile.DeviceID, w.Config.PreKeyCount)
	if err != nil {
		return domain.PublishedBundle{}, err
	}
	if err := w.KeyDir.PublishBundle(ctx, bundle); err != nil {
		return domain.PublishedBundle{}, err
	}
	if len(profile.TrustRoot) == 0 {
		root, err := w.KeyDir.TrustRoot(ctx)
		if err != nil {
			return domain.PublishedBundle{}, err
		}
		profile.TrustRoot = root.Serialize()
	}
	profile.SenderCertificate = nil
	if _, err := w.SenderCertificate(ctx, profile); err != nil {
		return domain.PublishedBundle{}, err
	}
	return bundle, nil
}

// SenderCertificate returns the cached certificate while it stays valid,
// otherwise asks the key directory for a new one and saves it.
func (w *Wire) SenderCertificate(ctx context.Context, profile *domain.AccountProfile) (*sealedsender.SenderCertificate, error) {
	root, err := pinnedTrustRoot(*profile)
	if err != nil {
		return nil, err
	}
	soon := uint64(time.Now().Add(certificateMargin).UnixMilli())
	if len(profile.SenderCertificate) > 0 {
		cert, err := sealedsender.DeserializeSenderCertificate(profile.SenderCertificate)
		if err == nil && cert.Validate(root, soon) == nil {
			return cert, nil
		}
	}

	cert, err := w.KeyDir.IssueSenderCertificate(ctx, domain.CertificateRequest{
		Username: profile.Username,
		DeviceID: profile.DeviceID,
		UUID:     profile.UUID,
		E164:     profile.E164,
	})
	if err != nil {
		return nil, err
	}
	if err := cert.Validate(root, uint64(time.Now().UnixMilli())); err != nil {
		return nil, fmt.Errorf("key directory issued an invalid certificate: %w", err)
	}
	profile.SenderCertificate = cert.Serialize()
	if err := w.Accounts.SaveAccountProfile(*profile); err != nil {
		return nil, err
	}
	return cert, nil
}

// StartSession fetches peer's bundle and runs the initiator handshake.
func (w *Wire) StartSession(ctx context.Context, peer domain.ProtocolAddress) error {
	bundle, err := w.KeyDir.FetchBundle(ctx, domain.Username(peer.Name), peer.DeviceID)
	if err != nil {
		return err
	}
	return w.Sessions.ProcessPreKeyBundle(ctx, peer, bundle)
}

// Seal encrypts plaintext for peer into an envelope. Sealed envelopes hide
// the sender inside the body.
func (w *Wire) Seal(
	ctx context.Context,
	profile *domain.AccountProfile,
	peer domain.ProtocolAddress,
	plaintext []byte,
	sealed bool,
) (domain.Envelope, error) {
	now := time.Now().UnixMilli()
	if sealed {
		cert, err := w.SenderCertificate(ctx, profile)
		if err != nil {
			return domain.Envelope{}, err
		}
		body, err := w.Messages.SealedSenderEncrypt(ctx, peer, cert, plaintext)
		if err != nil {
			return domain.Envelope{}, err
		}
		return domain.Envelope{Sealed: true, Body: body, Timestamp: now}, nil
	}

	msg, err := w.Messages.Encrypt(ctx, peer, plaintext)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{
		From:      profile.Username,
		DeviceID:  profile.DeviceID,
		Type:      uint8(msg.Type()),
		Body:      msg.Serialize(),
		Timestamp: now,
	}, nil
}

// Open decrypts a pairwise envelope addressed to profile.
func (w *Wire) Open(ctx context.Context, profile domain.AccountProfile, env domain.Envelope) (domain.DecryptedMessage, error) {
	if env.Sealed {
		root, err := pinnedTrustRoot(profile)
		if err != nil {
			return domain.DecryptedMessage{}, err
		}
		return w.Messages.SealedSenderDecrypt(ctx, env.Body, domain.SealedDecryptOptions{
			TrustRoot:     root,
			Timestamp:     uint64(time.Now().UnixMilli()),
			LocalUUID:     profile.UUID,
			LocalE164:     profile.E164,
			LocalDeviceID: profile.DeviceID,
			ResolveSender: func(ctx context.Context, cert *sealedsender.SenderCertificate) (string, error) {
				name, err := w.KeyDir.LookupAccount(ctx, cert.SenderUUID())
				return name.String(), err
			},
		})
	}

	from := domain.NewProtocolAddress(env.From.String(), env.DeviceID)
	var (
		plaintext []byte
		err       error
	)
	switch wire.CiphertextType(env.Type) {
	case wire.TypePreKey:
		var msg *wire.PreKeySignalMessage
		if msg, err = wire.DeserializePreKeySignalMessage(env.Body); err == nil {
			plaintext, err = w.Messages.DecryptPreKey(ctx, from, msg)
		}
	case wire.TypeWhisper:
		var msg *wire.SignalMessage
		if msg, err = wire.DeserializeSignalMessage(env.Body); err == nil {
			plaintext, err = w.Messages.Decrypt(ctx, from, msg)
		}
	default:
		err = fmt.Errorf("envelope type %s is not pairwise: %w", wire.CiphertextType(env.Type), protoerr.ErrInvalidMessage)
	}
	if err != nil {
		return domain.DecryptedMessage{}, err
	}
	return domain.DecryptedMessage{From: from, Plaintext: plaintext, Timestamp: env.Timestamp}, nil
}

// SafetyNumber computes the safety number between profile and peer.
func (w *Wire) SafetyNumber(ctx context.Context, profile domain.AccountProfile, peer domain.ProtocolAddress) (*fingerprint.Fingerprint, error) {
	return w.Identity.SafetyNumber(ctx, profile.Username, peer)
}

// GroupInvite sends our sender key for groupID to peer over the pairwise
// session.
func (w *Wire) GroupInvite(
	ctx context.Context,
	profile *domain.AccountProfile,
	groupID string,
	peer domain.ProtocolAddress,
) (domain.Envelope, error) {
	skdm, err := w.Groups.CreateDistributionMessage(ctx, selfName(*profile, groupID))
	if err != nil {
		return domain.Envelope{}, err
	}
	return w.Seal(ctx, profile, peer, skdm.Serialize(), false)
}

// GroupJoin opens an invite envelope and installs the sender key it
// carries. It returns the member who sent it.
func (w *Wire) GroupJoin(
	ctx context.Context,
	profile domain.AccountProfile,
	groupID string,
	env domain.Envelope,
) (domain.ProtocolAddress, error) {
	opened, err := w.Open(ctx, profile, env)
	if err != nil {
		return domain.ProtocolAddress{}, err
	}
	skdm, err := wire.DeserializeSenderKeyDistributionMessage(opened.Plaintext)
	if err != nil {
		return domain.ProtocolAddress{}, err
	}
	name := domain.SenderKeyName{GroupID: groupID, Sender: opened.From}
	if err := w.Groups.ProcessDistributionMessage(ctx, name, skdm); err != nil {
		return domain.ProtocolAddress{}, err
	}
	return opened.From, nil
}

// GroupSeal encrypts plaintext once for every member of groupID.
func (w *Wire) GroupSeal(ctx context.Context, profile domain.AccountProfile, groupID string, plaintext []byte) (domain.Envelope, error) {
	msg, err := w.Groups.Encrypt(ctx, selfName(profile, groupID), plaintext)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{
		From:      profile.Username,
		DeviceID:  profile.DeviceID,
		Type:      uint8(msg.Type()),
		Body:      msg.Serialize(),
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// GroupOpen decrypts a group envelope from one of groupID's members.
func (w *Wire) GroupOpen(ctx context.Context, groupID string, env domain.Envelope) (domain.DecryptedMessage, error) {
	if wire.CiphertextType(env.Type) != wire.TypeSenderKey {
		return domain.DecryptedMessage{}, fmt.Errorf("envelope type %s is not a group message: %w",
			wire.CiphertextType(env.Type), protoerr.ErrInvalidMessage)
	}
	from := domain.NewProtocolAddress(env.From.String(), env.DeviceID)
	plaintext, err := w.Groups.Decrypt(ctx, domain.SenderKeyName{GroupID: groupID, Sender: from}, env.Body)
	if err != nil {
		return domain.DecryptedMessage{}, err
	}
	return domain.DecryptedMessage{From: from, Plaintext: plaintext, Timestamp: env.Timestamp}, nil
}

func selfName(profile domain.AccountProfile, groupID string) domain.SenderKeyName {
	return domain.SenderKeyName{
		GroupID: groupID,
		Sender:  domain.NewProtocolAddress(profile.Username.String(), profile.DeviceID),
	}
}

func pinnedTrustRoot(profile domain.AccountProfile) (crypto.PublicKey, error) {
	if len(profile.TrustRoot) == 0 {
		return crypto.PublicKey{}, ErrNoTrustRoot
	}
	return crypto.DeserializePublicKey(profile.TrustRoot)
}
