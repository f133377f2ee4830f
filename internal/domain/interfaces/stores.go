package interfaces

import (
	"context"

	"signalcore/internal/crypto"
	domaintypes "signalcore/internal/domain/types"
	"signalcore/internal/protocol/prekey"
	"signalcore/internal/protocol/senderkey"
	"signalcore/internal/protocol/state"
)

// IdentityKeyStore holds the local identity and the identity keys we have
// seen for remote addresses.
type IdentityKeyStore interface {
	GetIdentityKeyPair(ctx context.Context) (crypto.IdentityKeyPair, error)
	GetLocalRegistrationID(ctx context.Context) (uint32, error)
	SetLocalIdentity(ctx context.Context, identity crypto.IdentityKeyPair, registrationID uint32) error

	// SaveIdentity records key for addr and reports whether it replaced a
	// different key.
	SaveIdentity(ctx context.Context, addr domaintypes.ProtocolAddress, key crypto.IdentityKey) (bool, error)
	IsTrustedIdentity(
		ctx context.Context,
		addr domaintypes.ProtocolAddress,
		key crypto.IdentityKey,
		direction domaintypes.Direction,
	) (bool, error)
	GetIdentity(ctx context.Context, addr domaintypes.ProtocolAddress) (crypto.IdentityKey, bool, error)
}

// PreKeyStore manages one-time pre-keys.
type PreKeyStore interface {
	GetPreKey(ctx context.Context, id uint32) (*prekey.PreKeyRecord, bool, error)
	SavePreKey(ctx context.Context, record *prekey.PreKeyRecord) error
	RemovePreKey(ctx context.Context, id uint32) error
}

// SignedPreKeyStore manages signed pre-keys.
type SignedPreKeyStore interface {
	GetSignedPreKey(ctx context.Context, id uint32) (*prekey.SignedPreKeyRecord, bool, error)
	SaveSignedPreKey(ctx context.Context, record *prekey.SignedPreKeyRecord) error
}

// KyberPreKeyStore manages Kyber pre-keys.
type KyberPreKeyStore interface {
	GetKyberPreKey(ctx context.Context, id uint32) (*prekey.KyberPreKeyRecord, bool, error)
	SaveKyberPreKey(ctx context.Context, record *prekey.KyberPreKeyRecord) error
	MarkKyberPreKeyUsed(ctx context.Context, id uint32) error
}

// SessionStore persists one SessionRecord per remote address.
type SessionStore interface {
	LoadSession(ctx context.Context, addr domaintypes.ProtocolAddress) (*state.SessionRecord, bool, error)
	StoreSession(ctx context.Context, addr domaintypes.ProtocolAddress, record *state.SessionRecord) error
}

// SenderKeyStore persists one sender-key record per (group, sender).
type SenderKeyStore interface {
	LoadSenderKey(ctx context.Context, name domaintypes.SenderKeyName) (*senderkey.Record, bool, error)
	StoreSenderKey(ctx context.Context, name domaintypes.SenderKeyName, record *senderkey.Record) error
}

// ProtocolStore is every store the session and group ciphers need.
type ProtocolStore interface {
	IdentityKeyStore
	PreKeyStore
	SignedPreKeyStore
	KyberPreKeyStore
	SessionStore
	SenderKeyStore
}
