package sealedsender

import (
	"fmt"
	"io"

	"github.com/google/uuid"

	"signalcore/internal/codec"
	"signalcore/internal/crypto"
	"signalcore/internal/protoerr"
)

// RevokedServerCertificateKeyID is a server key id that must never validate.
const RevokedServerCertificateKeyID uint32 = 0xDEADC357

// ServerCertificate binds a server signing key to a key id under the trust
// root.
type ServerCertificate struct {
	keyID       uint32
	key         crypto.PublicKey
	certificate []byte
	signature   []byte
	serialized  []byte
}

// NewServerCertificate signs (keyID, key) with the trust root.
func NewServerCertificate(rng io.Reader, keyID uint32, key crypto.PublicKey, trustRoot crypto.PrivateKey) (*ServerCertificate, error) {
	cert := codec.NewEncoder().
		Uint32(1, keyID).
		Bytes(2, key.Serialize()).
		Encoded()
	sig, err := trustRoot.Sign(rng, cert)
	if err != nil {
		return nil, fmt.Errorf("sign server certificate: %w", err)
	}
	return &ServerCertificate{
		keyID:       keyID,
		key:         key,
		certificate: cert,
		signature:   sig,
		serialized:  signedEnvelope(cert, sig),
	}, nil
}

// DeserializeServerCertificate parses a ServerCertificate.
func DeserializeServerCertificate(b []byte) (*ServerCertificate, error) {
	cert, sig, err := openSignedEnvelope(b)
	if err != nil {
		return nil, fmt.Errorf("server certificate: %w", err)
	}
	var (
		c         = ServerCertificate{certificate: cert, signature: sig, serialized: append([]byte(nil), b...)}
		key       []byte
		haveKeyID bool
	)
	err = codec.Walk(cert, func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			c.keyID, err = f.Uint32()
			haveKeyID = true
		case 2:
			key, err = f.Bytes()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("server certificate: %w", err)
	}
	if !haveKeyID || key == nil {
		return nil, fmt.Errorf("server certificate: missing id or key: %w", protoerr.ErrInvalidMessage)
	}
	if c.key, err = crypto.DeserializePublicKey(key); err != nil {
		return nil, fmt.Errorf("server certificate key: %w", err)
	}
	return &c, nil
}

// Validate checks the trust-root signature and the revocation list.
func (c *ServerCertificate) Validate(trustRoot crypto.PublicKey) error {
	if c.keyID == RevokedServerCertificateKeyID {
		return fmt.Errorf("server certificate %#x is revoked: %w", c.keyID, protoerr.ErrSignatureVerificationFailed)
	}
	ok, err := trustRoot.Verify(c.signature, c.certificate)
	if err != nil || !ok {
		return fmt.Errorf("server certificate %d: bad trust root signature: %w", c.keyID, protoerr.ErrSignatureVerificationFailed)
	}
	return nil
}

// KeyID is the server key id.
func (c *ServerCertificate) KeyID() uint32 { return c.keyID }

// PublicKey is the server signing key.
func (c *ServerCertificate) PublicKey() crypto.PublicKey { return c.key }

// Serialize returns the wire bytes.
func (c *ServerCertificate) Serialize() []byte { return c.serialized }

// SenderCertificate binds a sender's account, device and identity key to an
// expiration time under a server certificate.
type SenderCertificate struct {
	signer      *ServerCertificate
	key         crypto.PublicKey
	deviceID    uint32
	uuid        string
	e164        *string
	expiration  uint64
	certificate []byte
	signature   []byte
	serialized  []byte
}

// NewSenderCertificate issues a certificate signed by the server key.
// senderUUID must be a canonical UUID string; expiration is in milliseconds
// since the epoch.
func NewSenderCertificate(
	rng io.Reader,
	senderUUID string, senderE164 *string,
	key crypto.PublicKey, deviceID uint32, expiration uint64,
	signer *ServerCertificate, signerKey crypto.PrivateKey,
) (*SenderCertificate, error) {
	if _, err := uuid.Parse(senderUUID); err != nil {
		return nil, fmt.Errorf("sender uuid %q: %v: %w", senderUUID, err, protoerr.ErrInvalidArgument)
	}
	if signer == nil {
		return nil, fmt.Errorf("sender certificate: nil server certificate: %w", protoerr.ErrInvalidArgument)
	}
	enc := codec.NewEncoder()
	if senderE164 != nil {
		enc.String(1, *senderE164)
	}
	cert := enc.String(6, senderUUID).
		Uint32(2, deviceID).
		Fixed64(3, expiration).
		Bytes(4, key.Serialize()).
		Bytes(5, signer.Serialize()).
		Encoded()
	sig, err := signerKey.Sign(rng, cert)
	if err != nil {
		return nil, fmt.Errorf("sign sender certificate: %w", err)
	}
	c := &SenderCertificate{
		signer:      signer,
		key:         key,
		deviceID:    deviceID,
		uuid:        senderUUID,
		expiration:  expiration,
		certificate: cert,
		signature:   sig,
		serialized:  signedEnvelope(cert, sig),
	}
	if senderE164 != nil {
		e := *senderE164
		c.e164 = &e
	}
	return c, nil
}

// DeserializeSenderCertificate parses a SenderCertificate and its embedded
// server certificate.
func DeserializeSenderCertificate(b []byte) (*SenderCertificate, error) {
	cert, sig, err := openSignedEnvelope(b)
	if err != nil {
		return nil, fmt.Errorf("sender certificate: %w", err)
	}
	var (
		c                          = SenderCertificate{certificate: cert, signature: sig, serialized: append([]byte(nil), b...)}
		key, signer                []byte
		haveDevice, haveExpiration bool
	)
	err = codec.Walk(cert, func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			var e string
			e, err = f.Text()
			c.e164 = &e
		case 2:
			c.deviceID, err = f.Uint32()
			haveDevice = true
		case 3:
			c.expiration, err = f.Fixed64()
			haveExpiration = true
		case 4:
			key, err = f.Bytes()
		case 5:
			signer, err = f.Bytes()
		case 6:
			c.uuid, err = f.Text()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sender certificate: %w", err)
	}
	if !haveDevice || !haveExpiration || key == nil || signer == nil || c.uuid == "" {
		return nil, fmt.Errorf("sender certificate: missing required field: %w", protoerr.ErrInvalidMessage)
	}
	if c.key, err = crypto.DeserializePublicKey(key); err != nil {
		return nil, fmt.Errorf("sender certificate key: %w", err)
	}
	if c.signer, err = DeserializeServerCertificate(signer); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the server certificate against trustRoot, our signature
// against the server key, and that the certificate has not expired at
// validationTime (milliseconds since the epoch).
func (c *SenderCertificate) Validate(trustRoot crypto.PublicKey, validationTime uint64) error {
	if err := c.signer.Validate(trustRoot); err != nil {
		return err
	}
	ok, err := c.signer.PublicKey().Verify(c.signature, c.certificate)
	if err != nil || !ok {
		return fmt.Errorf("sender certificate: bad server signature: %w", protoerr.ErrSignatureVerificationFailed)
	}
	if validationTime >= c.expiration {
		return fmt.Errorf("sender certificate expired at %d (now %d): %w", c.expiration, validationTime, protoerr.ErrSignatureVerificationFailed)
	}
	return nil
}

// Signer is the embedded server certificate.
func (c *SenderCertificate) Signer() *ServerCertificate { return c.signer }

// Key is the sender's identity key.
func (c *SenderCertificate) Key() crypto.PublicKey { return c.key }

// DeviceID is the sender's device id.
func (c *SenderCertificate) DeviceID() uint32 { return c.deviceID }

// SenderUUID is the sender's account uuid.
func (c *SenderCertificate) SenderUUID() string { return c.uuid }

// SenderE164 is the sender's phone number, if the certificate carries one.
func (c *SenderCertificate) SenderE164() (string, bool) {
	if c.e164 == nil {
		return "", false
	}
	return *c.e164, true
}

// Expiration is the expiry time in milliseconds since the epoch.
func (c *SenderCertificate) Expiration() uint64 { return c.expiration }

// Serialize returns the wire bytes.
func (c *SenderCertificate) Serialize() []byte { return c.serialized }

func signedEnvelope(cert, sig []byte) []byte {
	return codec.NewEncoder().Bytes(1, cert).Bytes(2, sig).Encoded()
}

func openSignedEnvelope(b []byte) (cert, sig []byte, err error) {
	err = codec.Walk(b, func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			cert, err = f.Bytes()
		case 2:
			sig, err = f.Bytes()
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if cert == nil || sig == nil {
		return nil, nil, fmt.Errorf("missing certificate or signature: %w", protoerr.ErrInvalidMessage)
	}
	return cert, sig, nil
}
