package interfaces

import (
	"context"

	"signalcore/internal/crypto"
	domaintypes "signalcore/internal/domain/types"
	"signalcore/internal/protocol/prekey"
	"signalcore/internal/protocol/sealedsender"
)

// KeyDirectory is how we talk to the key directory, all with context.
type KeyDirectory interface {
	PublishBundle(ctx context.Context, bundle domaintypes.PublishedBundle) error
	FetchBundle(
		ctx context.Context,
		username domaintypes.Username,
		deviceID uint32,
	) (*prekey.Bundle, error)
	TrustRoot(ctx context.Context) (crypto.PublicKey, error)
	IssueSenderCertificate(
		ctx context.Context,
		req domaintypes.CertificateRequest,
	) (*sealedsender.SenderCertificate, error)

	// LookupAccount returns the username a sender certificate uuid was
	// issued to.
	LookupAccount(ctx context.Context, uuid string) (domaintypes.Username, error)
}
