package sealedsender_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/google/uuid"

	"signalcore/internal/crypto"
	"signalcore/internal/protocol/sealedsender"
	"signalcore/internal/protocol/wire"
	"signalcore/internal/protoerr"
)

const expires uint64 = 31337

type fixture struct {
	trustRoot crypto.KeyPair
	server    crypto.KeyPair
	serverCrt *sealedsender.ServerCertificate
	alice     crypto.IdentityKeyPair
	bob       crypto.IdentityKeyPair
	senderCrt *sealedsender.SenderCertificate
	aliceUUID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	var (
		f   fixture
		err error
	)
	if f.trustRoot, err = crypto.GenerateKeyPair(rand.Reader); err != nil {
		t.Fatalf("trust root: %v", err)
	}
	if f.server, err = crypto.GenerateKeyPair(rand.Reader); err != nil {
		t.Fatalf("server key: %v", err)
	}
	if f.alice, err = crypto.GenerateIdentityKeyPair(rand.Reader); err != nil {
		t.Fatalf("alice: %v", err)
	}
	if f.bob, err = crypto.GenerateIdentityKeyPair(rand.Reader); err != nil {
		t.Fatalf("bob: %v", err)
	}
	f.serverCrt, err = sealedsender.NewServerCertificate(rand.Reader, 1, f.server.PublicKey, f.trustRoot.PrivateKey)
	if err != nil {
		t.Fatalf("NewServerCertificate: %v", err)
	}
	f.aliceUUID = uuid.NewString()
	e164 := "+14151111111"
	f.senderCrt, err = sealedsender.NewSenderCertificate(
		rand.Reader, f.aliceUUID, &e164, f.alice.PublicKey(), 1, expires, f.serverCrt, f.server.PrivateKey)
	if err != nil {
		t.Fatalf("NewSenderCertificate: %v", err)
	}
	return &f
}

func TestServerCertificate_RoundTripAndValidate(t *testing.T) {
	f := newFixture(t)
	got, err := sealedsender.DeserializeServerCertificate(f.serverCrt.Serialize())
	if err != nil {
		t.Fatalf("DeserializeServerCertificate: %v", err)
	}
	if got.KeyID() != 1 || !got.PublicKey().Equal(f.server.PublicKey) {
		t.Fatalf("fields did not survive round trip")
	}
	if err := got.Validate(f.trustRoot.PublicKey); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := got.Validate(f.server.PublicKey); !errors.Is(err, protoerr.ErrSignatureVerificationFailed) {
		t.Fatalf("wrong trust root: want ErrSignatureVerificationFailed, got %v", err)
	}
}

func TestServerCertificate_RevokedKeyID(t *testing.T) {
	f := newFixture(t)
	crt, err := sealedsender.NewServerCertificate(rand.Reader, sealedsender.RevokedServerCertificateKeyID, f.server.PublicKey, f.trustRoot.PrivateKey)
	if err != nil {
		t.Fatalf("NewServerCertificate: %v", err)
	}
	if err := crt.Validate(f.trustRoot.PublicKey); !errors.Is(err, protoerr.ErrSignatureVerificationFailed) {
		t.Fatalf("want ErrSignatureVerificationFailed, got %v", err)
	}
}

func TestServerCertificate_FlippedSignatureByte(t *testing.T) {
	f := newFixture(t)
	raw := f.serverCrt.Serialize()
	// The signature is the trailing field of the envelope.
	for i := len(raw) - crypto.SignatureLength; i < len(raw); i++ {
		bad := append([]byte(nil), raw...)
		bad[i] ^= 0x01
		crt, err := sealedsender.DeserializeServerCertificate(bad)
		if err != nil {
			t.Fatalf("byte %d: DeserializeServerCertificate: %v", i, err)
		}
		if err := crt.Validate(f.trustRoot.PublicKey); !errors.Is(err, protoerr.ErrSignatureVerificationFailed) {
			t.Fatalf("byte %d: want ErrSignatureVerificationFailed, got %v", i, err)
		}
	}
}

func TestSenderCertificate_RoundTrip(t *testing.T) {
	f := newFixture(t)
	got, err := sealedsender.DeserializeSenderCertificate(f.senderCrt.Serialize())
	if err != nil {
		t.Fatalf("DeserializeSenderCertificate: %v", err)
	}
	e164, ok := got.SenderE164()
	switch {
	case got.SenderUUID() != f.aliceUUID:
		t.Fatalf("uuid = %q", got.SenderUUID())
	case !ok || e164 != "+14151111111":
		t.Fatalf("e164 = %q, %v", e164, ok)
	case got.DeviceID() != 1 || got.Expiration() != expires:
		t.Fatalf("device/expiration = %d/%d", got.DeviceID(), got.Expiration())
	case !got.Key().Equal(f.alice.PublicKey()):
		t.Fatalf("key mismatch")
	case got.Signer().KeyID() != 1:
		t.Fatalf("signer key id = %d", got.Signer().KeyID())
	}
}

func TestSenderCertificate_WithoutE164(t *testing.T) {
	f := newFixture(t)
	crt, err := sealedsender.NewSenderCertificate(rand.Reader, f.aliceUUID, nil, f.alice.PublicKey(), 2, expires, f.serverCrt, f.server.PrivateKey)
	if err != nil {
		t.Fatalf("NewSenderCertificate: %v", err)
	}
	got, err := sealedsender.DeserializeSenderCertificate(crt.Serialize())
	if err != nil {
		t.Fatalf("DeserializeSenderCertificate: %v", err)
	}
	if _, ok := got.SenderE164(); ok {
		t.Fatalf("e164 should be absent")
	}
}

func TestSenderCertificate_RejectsBadUUID(t *testing.T) {
	f := newFixture(t)
	_, err := sealedsender.NewSenderCertificate(rand.Reader, "not-a-uuid", nil, f.alice.PublicKey(), 1, expires, f.serverCrt, f.server.PrivateKey)
	if !errors.Is(err, protoerr.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}

func TestSenderCertificate_ExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	if err := f.senderCrt.Validate(f.trustRoot.PublicKey, expires-1); err != nil {
		t.Fatalf("t = exp-1: %v", err)
	}
	if err := f.senderCrt.Validate(f.trustRoot.PublicKey, expires); !errors.Is(err, protoerr.ErrSignatureVerificationFailed) {
		t.Fatalf("t = exp: want ErrSignatureVerificationFailed, got %v", err)
	}
}

func TestSenderCertificate_WrongServerKey(t *testing.T) {
	f := newFixture(t)
	other, err := crypto.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	crt, err := sealedsender.NewSenderCertificate(rand.Reader, f.aliceUUID, nil, f.alice.PublicKey(), 1, expires, f.serverCrt, other.PrivateKey)
	if err != nil {
		t.Fatalf("NewSenderCertificate: %v", err)
	}
	if err := crt.Validate(f.trustRoot.PublicKey, 0); !errors.Is(err, protoerr.ErrSignatureVerificationFailed) {
		t.Fatalf("want ErrSignatureVerificationFailed, got %v", err)
	}
}

func TestContent_RejectsGroupTypes(t *testing.T) {
	f := newFixture(t)
	for _, typ := range []wire.CiphertextType{wire.TypeSenderKey, wire.TypeSenderKeyDistribution} {
		if _, err := sealedsender.NewContent(typ, f.senderCrt, []byte("x")); !errors.Is(err, protoerr.ErrInvalidArgument) {
			t.Fatalf("%s: want ErrInvalidArgument, got %v", typ, err)
		}
	}
}

func TestEnvelope_EncryptDecrypt(t *testing.T) {
	f := newFixture(t)
	content, err := sealedsender.NewContent(wire.TypeWhisper, f.senderCrt, []byte("inner session bytes"))
	if err != nil {
		t.Fatalf("NewContent: %v", err)
	}
	sealed, err := sealedsender.Encrypt(rand.Reader, f.bob.IdentityKey, f.alice, content)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if sealed[0] != sealedsender.Version {
		t.Fatalf("version byte %#x", sealed[0])
	}
	if bytes.Contains(sealed, f.alice.PublicKey().Serialize()) {
		t.Fatalf("sender identity visible in envelope")
	}

	got, err := sealedsender.DecryptToContent(f.bob, sealed)
	if err != nil {
		t.Fatalf("DecryptToContent: %v", err)
	}
	if got.Type() != wire.TypeWhisper || string(got.Contents()) != "inner session bytes" {
		t.Fatalf("got type %s contents %q", got.Type(), got.Contents())
	}
	if got.Sender().SenderUUID() != f.aliceUUID {
		t.Fatalf("sender uuid %q", got.Sender().SenderUUID())
	}
	if err := got.Sender().Validate(f.trustRoot.PublicKey, expires-1); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestEnvelope_WrongRecipient(t *testing.T) {
	f := newFixture(t)
	content, err := sealedsender.NewContent(wire.TypePreKey, f.senderCrt, []byte("hi"))
	if err != nil {
		t.Fatalf("NewContent: %v", err)
	}
	sealed, err := sealedsender.Encrypt(rand.Reader, f.bob.IdentityKey, f.alice, content)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	eve, err := crypto.GenerateIdentityKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateIdentityKeyPair: %v", err)
	}
	if _, err := sealedsender.DecryptToContent(eve, sealed); !errors.Is(err, protoerr.ErrInvalidMessage) {
		t.Fatalf("want ErrInvalidMessage, got %v", err)
	}
}

func TestEnvelope_CertificateKeyMismatch(t *testing.T) {
	f := newFixture(t)
	mallory, err := crypto.GenerateIdentityKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateIdentityKeyPair: %v", err)
	}
	// Mallory seals with her own identity but presents Alice's certificate.
	content, err := sealedsender.NewContent(wire.TypeWhisper, f.senderCrt, []byte("forged"))
	if err != nil {
		t.Fatalf("NewContent: %v", err)
	}
	sealed, err := sealedsender.Encrypt(rand.Reader, f.bob.IdentityKey, mallory, content)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := sealedsender.DecryptToContent(f.bob, sealed); !errors.Is(err, protoerr.ErrInvalidMessage) {
		t.Fatalf("want ErrInvalidMessage, got %v", err)
	}
}

func TestEnvelope_UnknownVersion(t *testing.T) {
	f := newFixture(t)
	content, err := sealedsender.NewContent(wire.TypeWhisper, f.senderCrt, []byte("hi"))
	if err != nil {
		t.Fatalf("NewContent: %v", err)
	}
	sealed, err := sealedsender.Encrypt(rand.Reader, f.bob.IdentityKey, f.alice, content)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	sealed[0] = 0x22
	if _, err := sealedsender.DecryptToContent(f.bob, sealed); !errors.Is(err, protoerr.ErrUnknownSealedSenderVersion) {
		t.Fatalf("want ErrUnknownSealedSenderVersion, got %v", err)
	}
}

func TestEnvelope_FramingRoundTrip(t *testing.T) {
	f := newFixture(t)
	eph, err := crypto.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("ephemeral: %v", err)
	}
	static := bytes.Repeat([]byte{0xa1}, 43)
	message := bytes.Repeat([]byte{0xb2}, 120)

	env := sealedsender.NewEnvelope(eph.PublicKey, static, message)
	if env.Version() != sealedsender.Version {
		t.Fatalf("version = %#x, want %#x", env.Version(), sealedsender.Version)
	}
	got, err := sealedsender.DeserializeEnvelope(env.Serialize())
	if err != nil {
		t.Fatalf("DeserializeEnvelope: %v", err)
	}
	if !got.EphemeralPublic().Equal(eph.PublicKey) {
		t.Fatalf("ephemeral key changed")
	}
	if !bytes.Equal(got.EncryptedStatic(), static) || !bytes.Equal(got.EncryptedMessage(), message) {
		t.Fatalf("encrypted parts changed")
	}
	if !bytes.Equal(got.Serialize(), env.Serialize()) {
		t.Fatalf("reserialized bytes differ")
	}

	// An envelope produced by Encrypt reframes to the same bytes.
	content, err := sealedsender.NewContent(wire.TypeWhisper, f.senderCrt, []byte("hi"))
	if err != nil {
		t.Fatalf("NewContent: %v", err)
	}
	sealed, err := sealedsender.Encrypt(rand.Reader, f.bob.IdentityKey, f.alice, content)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	parsed, err := sealedsender.DeserializeEnvelope(sealed)
	if err != nil {
		t.Fatalf("DeserializeEnvelope: %v", err)
	}
	reframed := sealedsender.NewEnvelope(parsed.EphemeralPublic(), parsed.EncryptedStatic(), parsed.EncryptedMessage())
	if !bytes.Equal(reframed.Serialize(), sealed) {
		t.Fatalf("reframed envelope differs from Encrypt output")
	}
	if _, err := sealedsender.DecryptToContent(f.bob, reframed.Serialize()); err != nil {
		t.Fatalf("DecryptToContent on reframed envelope: %v", err)
	}
}

func TestSenderCertificate_NilServerCertificate(t *testing.T) {
	f := newFixture(t)
	_, err := sealedsender.NewSenderCertificate(
		rand.Reader, f.aliceUUID, nil, f.alice.PublicKey(), 1, expires, nil, f.server.PrivateKey)
	if !errors.Is(err, protoerr.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}
