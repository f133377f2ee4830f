package identity

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode"

	"go.uber.org/zap"

	"signalcore/internal/crypto"
	"signalcore/internal/domain"
	"signalcore/internal/fingerprint"
	"signalcore/internal/logging"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12

	// maxRegistrationID bounds generated registration ids to 14 bits.
	maxRegistrationID = 16380
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)

	// ErrUnknownPeer is returned when no identity key is recorded for a peer.
	ErrUnknownPeer = errors.New("no identity recorded for peer; start a session first")
)

// Service manages the local identity key pair and registration id, and
// computes safety numbers against recorded peer identities.
type Service struct {
	store domain.IdentityKeyStore
	rng   io.Reader
	log   *zap.Logger
}

// New returns an identity service backed by the given store. A nil rng
// means crypto/rand; a nil logger discards output.
func New(s domain.IdentityKeyStore, rng io.Reader, log *zap.Logger) *Service {
	if rng == nil {
		rng = rand.Reader
	}
	return &Service{store: s, rng: rng, log: logging.OrNop(log)}
}

// GenerateIdentity creates a new identity key pair and registration id,
// saves them, and returns the pair plus a short fingerprint of the public key.
func (s *Service) GenerateIdentity(ctx context.Context) (crypto.IdentityKeyPair, domain.Fingerprint, error) {
	id, err := crypto.GenerateIdentityKeyPair(s.rng)
	if err != nil {
		return crypto.IdentityKeyPair{}, "", err
	}
	reg, err := s.registrationID()
	if err != nil {
		return crypto.IdentityKeyPair{}, "", err
	}
	if err := s.store.SetLocalIdentity(ctx, id, reg); err != nil {
		return crypto.IdentityKeyPair{}, "", err
	}
	fp := domain.Fingerprint(crypto.ShortID(id.PublicKey()))
	s.log.Debug("generated identity", zap.String("fingerprint", fp.String()), zap.Uint32("registration_id", reg))
	return id, fp, nil
}

// FingerprintIdentity returns a short fingerprint of the local identity key.
func (s *Service) FingerprintIdentity(ctx context.Context) (domain.Fingerprint, error) {
	id, err := s.store.GetIdentityKeyPair(ctx)
	if err != nil {
		return "", err
	}
	return domain.Fingerprint(crypto.ShortID(id.PublicKey())), nil
}

// SafetyNumber computes the fingerprint between the local identity (named
// local) and the identity recorded for peer.
func (s *Service) SafetyNumber(
	ctx context.Context,
	local domain.Username,
	peer domain.ProtocolAddress,
) (*fingerprint.Fingerprint, error) {
	id, err := s.store.GetIdentityKeyPair(ctx)
	if err != nil {
		return nil, err
	}
	remote, ok, err := s.store.GetIdentity(ctx, peer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", peer, ErrUnknownPeer)
	}
	return fingerprint.New(
		fingerprint.ScannableVersion,
		fingerprint.DefaultIterations,
		[]byte(local), id.IdentityKey,
		[]byte(peer.Name), remote,
	)
}

// registrationID draws a value in [1, maxRegistrationID].
func (s *Service) registrationID() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(s.rng, b[:]); err != nil {
		return 0, fmt.Errorf("registration id: %w", err)
	}
	return binary.BigEndian.Uint32(b[:])%maxRegistrationID + 1, nil
}

// ValidatePassphrase enforces a basic strength policy on the passphrase that
// seals the local identity.
func ValidatePassphrase(passphrase string) error {
	if !isSecurePassphrase(passphrase) {
		return ErrWeakPassphrase
	}
	return nil
}

func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
