package domain

import (
	interfaces "signalcore/internal/domain/interfaces"
	types "signalcore/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Username            = types.Username
	Fingerprint         = types.Fingerprint
	ProtocolAddress     = types.ProtocolAddress
	Direction           = types.Direction
	SenderKeyName       = types.SenderKeyName
	AccountProfile      = types.AccountProfile
	SignedPreKeyPublic  = types.SignedPreKeyPublic
	OneTimePreKeyPublic = types.OneTimePreKeyPublic
	PublishedBundle     = types.PublishedBundle
	FetchedBundle       = types.FetchedBundle
	Envelope            = types.Envelope
	DecryptedMessage    = types.DecryptedMessage
	CertificateRequest  = types.CertificateRequest
	CertificateResponse = types.CertificateResponse
	TrustRoot           = types.TrustRoot
	AccountLookup       = types.AccountLookup
)

// Re-exported constants.
const (
	Sending         = types.Sending
	Receiving       = types.Receiving
	DefaultDeviceID = types.DefaultDeviceID
)

// NewProtocolAddress is re-exported from the types subpackage.
var NewProtocolAddress = types.NewProtocolAddress

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	IdentityKeyStore     = interfaces.IdentityKeyStore
	PreKeyStore          = interfaces.PreKeyStore
	SignedPreKeyStore    = interfaces.SignedPreKeyStore
	KyberPreKeyStore     = interfaces.KyberPreKeyStore
	SessionStore         = interfaces.SessionStore
	SenderKeyStore       = interfaces.SenderKeyStore
	ProtocolStore        = interfaces.ProtocolStore
	AccountStore         = interfaces.AccountStore
	KeyDirectory         = interfaces.KeyDirectory
	IdentityService      = interfaces.IdentityService
	PreKeyService        = interfaces.PreKeyService
	SessionService       = interfaces.SessionService
	MessageService       = interfaces.MessageService
	SealedDecryptOptions = interfaces.SealedDecryptOptions
	GroupService         = interfaces.GroupService
)
