package interfaces

import (
	"context"

	"signalcore/internal/crypto"
	domaintypes "signalcore/internal/domain/types"
	"signalcore/internal/fingerprint"
	"signalcore/internal/protocol/prekey"
	"signalcore/internal/protocol/sealedsender"
	"signalcore/internal/protocol/wire"
)

// IdentityService creates and inspects the local identity.
type IdentityService interface {
	GenerateIdentity(ctx context.Context) (crypto.IdentityKeyPair, domaintypes.Fingerprint, error)
	FingerprintIdentity(ctx context.Context) (domaintypes.Fingerprint, error)
	SafetyNumber(
		ctx context.Context,
		local domaintypes.Username,
		peer domaintypes.ProtocolAddress,
	) (*fingerprint.Fingerprint, error)
}

// PreKeyService generates pre-keys and assembles what we publish.
type PreKeyService interface {
	GeneratePreKeys(
		ctx context.Context,
		username domaintypes.Username,
		deviceID uint32,
		count int,
	) (domaintypes.PublishedBundle, error)
}

// SessionService establishes sessions from fetched bundles.
type SessionService interface {
	ProcessPreKeyBundle(ctx context.Context, addr domaintypes.ProtocolAddress, bundle *prekey.Bundle) error
}

// MessageService encrypts and decrypts pairwise session messages.
type MessageService interface {
	Encrypt(ctx context.Context, addr domaintypes.ProtocolAddress, plaintext []byte) (wire.CiphertextMessage, error)
	Decrypt(ctx context.Context, addr domaintypes.ProtocolAddress, msg *wire.SignalMessage) ([]byte, error)
	DecryptPreKey(ctx context.Context, addr domaintypes.ProtocolAddress, msg *wire.PreKeySignalMessage) ([]byte, error)
	SessionVersion(ctx context.Context, addr domaintypes.ProtocolAddress) (uint32, error)
	RemoteRegistrationID(ctx context.Context, addr domaintypes.ProtocolAddress) (uint32, error)

	SealedSenderEncrypt(
		ctx context.Context,
		addr domaintypes.ProtocolAddress,
		sender *sealedsender.SenderCertificate,
		plaintext []byte,
	) ([]byte, error)
	SealedSenderDecrypt(ctx context.Context, sealed []byte, opts SealedDecryptOptions) (domaintypes.DecryptedMessage, error)
}

// SealedDecryptOptions carries what SealedSenderDecrypt checks against.
type SealedDecryptOptions struct {
	TrustRoot     crypto.PublicKey
	Timestamp     uint64
	LocalUUID     string
	LocalE164     string
	LocalDeviceID uint32

	// ResolveSender maps a validated certificate to the address name our
	// sessions are keyed by. Nil keys sessions by the sender uuid.
	ResolveSender func(ctx context.Context, cert *sealedsender.SenderCertificate) (string, error)
}

// GroupService runs the sender-key engine against a SenderKeyStore.
type GroupService interface {
	CreateDistributionMessage(ctx context.Context, name domaintypes.SenderKeyName) (*wire.SenderKeyDistributionMessage, error)
	ProcessDistributionMessage(
		ctx context.Context,
		name domaintypes.SenderKeyName,
		msg *wire.SenderKeyDistributionMessage,
	) error
	Encrypt(ctx context.Context, name domaintypes.SenderKeyName, plaintext []byte) (*wire.SenderKeyMessage, error)
	Decrypt(ctx context.Context, name domaintypes.SenderKeyName, serialized []byte) ([]byte, error)
}
