package x3dh

import (
	"bytes"
	"fmt"
	"io"

	"signalcore/internal/crypto"
	"signalcore/internal/kdf"
	"signalcore/internal/kem"
	"signalcore/internal/protocol/ratchet"
	"signalcore/internal/protocol/state"
	"signalcore/internal/protocol/wire"
	"signalcore/internal/protoerr"
	"signalcore/internal/util/memzero"
)

var (
	labelX3DH  = []byte("WhisperText")
	labelPQXDH = []byte("WhisperText_X25519_SHA-256_CRYSTALS-KYBER-1024")

	// discontinuity prefixes the DH transcript, keeping it disjoint from
	// XEdDSA signing input.
	discontinuity = bytes.Repeat([]byte{0xFF}, 32)
)

// AliceParameters is the initiator's view of a handshake against a bundle.
type AliceParameters struct {
	OurIdentity        crypto.IdentityKeyPair
	OurBaseKey         crypto.KeyPair
	TheirIdentity      crypto.IdentityKey
	TheirSignedPreKey  crypto.PublicKey
	TheirOneTimePreKey *crypto.PublicKey
	TheirRatchetKey    crypto.PublicKey
	TheirKyberPreKey   *kem.PublicKey
}

// BobParameters is the responder's view of a handshake carried by a
// PreKeySignalMessage.
type BobParameters struct {
	OurIdentity          crypto.IdentityKeyPair
	OurSignedPreKey      crypto.KeyPair
	OurOneTimePreKey     *crypto.KeyPair
	OurRatchetKey        crypto.KeyPair
	OurKyberPreKey       *kem.SecretKey
	TheirIdentity        crypto.IdentityKey
	TheirBaseKey         crypto.PublicKey
	TheirKyberCiphertext []byte
}

// InitializeAlice derives the initiator's first session state. It returns the
// Kyber ciphertext to send when a Kyber pre-key was used.
func InitializeAlice(p AliceParameters, rng io.Reader) (*state.SessionState, []byte, error) {
	sendingRatchet, err := crypto.GenerateKeyPair(rng)
	if err != nil {
		return nil, nil, err
	}

	agreements := []agreement{
		{p.OurIdentity.PrivateKey, p.TheirSignedPreKey},      // DH(IKa, SPKb)
		{p.OurBaseKey.PrivateKey, p.TheirIdentity.PublicKey}, // DH(EKa, IKb)
		{p.OurBaseKey.PrivateKey, p.TheirSignedPreKey},       // DH(EKa, SPKb)
	}
	if p.TheirOneTimePreKey != nil {
		agreements = append(agreements, agreement{p.OurBaseKey.PrivateKey, *p.TheirOneTimePreKey})
	}
	secrets, err := transcript(agreements)
	if err != nil {
		return nil, nil, err
	}
	defer func() { memzero.Zero(secrets) }()

	var kyberCiphertext []byte
	if p.TheirKyberPreKey != nil {
		ct, ss, err := p.TheirKyberPreKey.Encapsulate(rng)
		if err != nil {
			return nil, nil, err
		}
		secrets = append(secrets, ss...)
		memzero.Zero(ss)
		kyberCiphertext = ct
	}

	root, chain, err := deriveKeys(secrets, p.TheirKyberPreKey != nil)
	if err != nil {
		return nil, nil, err
	}
	sendingRoot, sendingChain, err := root.CreateChain(p.TheirRatchetKey, sendingRatchet.PrivateKey)
	if err != nil {
		return nil, nil, err
	}

	s := state.NewSessionState(sessionVersion(p.TheirKyberPreKey != nil),
		p.OurIdentity.IdentityKey, p.TheirIdentity, sendingRoot, p.OurBaseKey.PublicKey)
	s.AddReceiverChain(p.TheirRatchetKey, chain)
	s.SetSenderChain(sendingRatchet, sendingChain)
	return s, kyberCiphertext, nil
}

// InitializeBob derives the responder's first session state. Our signed
// pre-key doubles as the first sending ratchet key.
func InitializeBob(p BobParameters) (*state.SessionState, error) {
	withKyber := p.OurKyberPreKey != nil
	if withKyber != (len(p.TheirKyberCiphertext) > 0) {
		return nil, fmt.Errorf("x3dh: kyber pre-key and ciphertext must both be present: %w", protoerr.ErrInvalidMessage)
	}

	agreements := []agreement{
		{p.OurSignedPreKey.PrivateKey, p.TheirIdentity.PublicKey}, // DH(SPKb, IKa)
		{p.OurIdentity.PrivateKey, p.TheirBaseKey},                // DH(IKb, EKa)
		{p.OurSignedPreKey.PrivateKey, p.TheirBaseKey},            // DH(SPKb, EKa)
	}
	if p.OurOneTimePreKey != nil {
		agreements = append(agreements, agreement{p.OurOneTimePreKey.PrivateKey, p.TheirBaseKey})
	}
	secrets, err := transcript(agreements)
	if err != nil {
		return nil, err
	}
	defer func() { memzero.Zero(secrets) }()

	if withKyber {
		ss, err := p.OurKyberPreKey.Decapsulate(p.TheirKyberCiphertext)
		if err != nil {
			return nil, err
		}
		secrets = append(secrets, ss...)
		memzero.Zero(ss)
	}

	root, chain, err := deriveKeys(secrets, withKyber)
	if err != nil {
		return nil, err
	}
	s := state.NewSessionState(sessionVersion(withKyber),
		p.OurIdentity.IdentityKey, p.TheirIdentity, root, p.TheirBaseKey)
	s.SetSenderChain(p.OurRatchetKey, chain)
	return s, nil
}

type agreement struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// transcript concatenates the discontinuity prefix and each DH output.
func transcript(agreements []agreement) ([]byte, error) {
	secrets := append(make([]byte, 0, 32*(len(agreements)+2)), discontinuity...)
	for _, a := range agreements {
		dh, err := a.priv.Agree(a.pub)
		if err != nil {
			memzero.Zero(secrets)
			return nil, fmt.Errorf("x3dh agreement: %w", err)
		}
		secrets = append(secrets, dh...)
		memzero.Zero(dh)
	}
	return secrets, nil
}

func deriveKeys(secrets []byte, withKyber bool) (ratchet.RootKey, ratchet.ChainKey, error) {
	label := labelX3DH
	if withKyber {
		label = labelPQXDH
	}
	derived, err := kdf.V3.DeriveSecrets(secrets, label, 64)
	if err != nil {
		return ratchet.RootKey{}, ratchet.ChainKey{}, err
	}
	defer memzero.Zero(derived)

	root, err := ratchet.NewRootKey(derived[:32])
	if err != nil {
		return ratchet.RootKey{}, ratchet.ChainKey{}, err
	}
	chain, err := ratchet.NewChainKey(derived[32:], 0)
	if err != nil {
		return ratchet.RootKey{}, ratchet.ChainKey{}, err
	}
	return root, chain, nil
}

func sessionVersion(withKyber bool) uint32 {
	if withKyber {
		return uint32(wire.CurrentVersion)
	}
	return uint32(wire.PreKyberVersion)
}
