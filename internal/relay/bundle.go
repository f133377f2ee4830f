package relay

import (
	"fmt"

	"signalcore/internal/crypto"
	"signalcore/internal/domain"
	"signalcore/internal/kem"
	"signalcore/internal/protocol/prekey"
	"signalcore/internal/protoerr"
)

// BuildBundle turns a published bundle and at most one of its one-time
// pre-keys into the bundle an initiator processes.
func BuildBundle(pb domain.PublishedBundle, opk *domain.OneTimePreKeyPublic) (*prekey.Bundle, error) {
	identity, err := crypto.DeserializeIdentityKey(pb.IdentityKey)
	if err != nil {
		return nil, fmt.Errorf("bundle identity key: %w", err)
	}
	spk, err := crypto.DeserializePublicKey(pb.SignedPreKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("bundle signed pre-key: %w", err)
	}

	var (
		opkID  *uint32
		opkPub *crypto.PublicKey
	)
	if opk != nil {
		pub, err := crypto.DeserializePublicKey(opk.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("bundle one-time pre-key %d: %w", opk.ID, err)
		}
		id := opk.ID
		opkID, opkPub = &id, &pub
	}

	b, err := prekey.NewBundle(pb.RegistrationID, pb.DeviceID, opkID, opkPub,
		pb.SignedPreKey.ID, spk, pb.SignedPreKey.Signature, identity)
	if err != nil {
		return nil, err
	}
	if pb.KyberPreKey != nil {
		kpub, err := kem.DeserializePublicKey(pb.KyberPreKey.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("bundle kyber pre-key: %w", err)
		}
		b = b.WithKyberPreKey(pb.KyberPreKey.ID, kpub, pb.KyberPreKey.Signature)
	}
	return b, nil
}

// validatePublished checks that a bundle is well formed and self-signed
// before the directory accepts it.
func validatePublished(pb domain.PublishedBundle) error {
	if pb.Username == "" {
		return fmt.Errorf("empty username: %w", protoerr.ErrInvalidArgument)
	}
	if pb.DeviceID == 0 {
		return fmt.Errorf("device id 0: %w", protoerr.ErrInvalidArgument)
	}
	b, err := BuildBundle(pb, nil)
	if err != nil {
		return err
	}
	if err := b.VerifySignatures(); err != nil {
		return err
	}
	for _, opk := range pb.OneTimePreKeys {
		if _, err := crypto.DeserializePublicKey(opk.PublicKey); err != nil {
			return fmt.Errorf("one-time pre-key %d: %w", opk.ID, err)
		}
	}
	return nil
}
