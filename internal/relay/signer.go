package relay

import (
	"fmt"
	"io"

	"signalcore/internal/crypto"
	"signalcore/internal/protocol/sealedsender"
)

// Signer issues sender certificates under one server certificate, itself
// signed by the trust root.
type Signer struct {
	trustRoot crypto.PublicKey
	cert      *sealedsender.ServerCertificate
	key       crypto.PrivateKey
}

// NewSigner creates a fresh server key, certifies it with trustRoot under
// keyID, and returns a Signer using it.
func NewSigner(rng io.Reader, trustRoot crypto.KeyPair, keyID uint32) (*Signer, error) {
	server, err := crypto.GenerateKeyPair(rng)
	if err != nil {
		return nil, err
	}
	cert, err := sealedsender.NewServerCertificate(rng, keyID, server.PublicKey, trustRoot.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("certify server key: %w", err)
	}
	return &Signer{trustRoot: trustRoot.PublicKey, cert: cert, key: server.PrivateKey}, nil
}

// TrustRoot is the key clients validate certificates against.
func (s *Signer) TrustRoot() crypto.PublicKey { return s.trustRoot }

// Issue signs a sender certificate for key.
func (s *Signer) Issue(
	rng io.Reader,
	senderUUID string,
	senderE164 *string,
	key crypto.PublicKey,
	deviceID uint32,
	expiration uint64,
) (*sealedsender.SenderCertificate, error) {
	return sealedsender.NewSenderCertificate(rng, senderUUID, senderE164, key, deviceID, expiration, s.cert, s.key)
}
