package x3dh_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"signalcore/internal/crypto"
	"signalcore/internal/kem"
	"signalcore/internal/protocol/ratchet"
	"signalcore/internal/protocol/state"
	"signalcore/internal/protocol/x3dh"
	"signalcore/internal/protoerr"
)

func keyPair(t *testing.T) crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return kp
}

func identity(t *testing.T) crypto.IdentityKeyPair {
	t.Helper()
	ikp, err := crypto.GenerateIdentityKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateIdentityKeyPair: %v", err)
	}
	return ikp
}

func firstMessageKeys(t *testing.T, ck ratchet.ChainKey) ratchet.MessageKeys {
	t.Helper()
	mk, err := ck.MessageKeys()
	if err != nil {
		t.Fatalf("MessageKeys: %v", err)
	}
	return mk
}

// handshake runs both sides and returns their states.
func handshake(t *testing.T, withOneTime, withKyber bool) (alice, bob *state.SessionState) {
	t.Helper()
	aliceID, bobID := identity(t), identity(t)
	base, spk := keyPair(t), keyPair(t)

	ap := x3dh.AliceParameters{
		OurIdentity:       aliceID,
		OurBaseKey:        base,
		TheirIdentity:     bobID.IdentityKey,
		TheirSignedPreKey: spk.PublicKey,
		TheirRatchetKey:   spk.PublicKey,
	}
	bp := x3dh.BobParameters{
		OurIdentity:     bobID,
		OurSignedPreKey: spk,
		OurRatchetKey:   spk,
		TheirIdentity:   aliceID.IdentityKey,
		TheirBaseKey:    base.PublicKey,
	}
	if withOneTime {
		opk := keyPair(t)
		ap.TheirOneTimePreKey = &opk.PublicKey
		bp.OurOneTimePreKey = &opk
	}
	if withKyber {
		kp, err := kem.GenerateKeyPair(rand.Reader)
		if err != nil {
			t.Fatalf("kem.GenerateKeyPair: %v", err)
		}
		ap.TheirKyberPreKey = &kp.PublicKey
		bp.OurKyberPreKey = &kp.SecretKey
	}

	alice, ct, err := x3dh.InitializeAlice(ap, rand.Reader)
	if err != nil {
		t.Fatalf("InitializeAlice: %v", err)
	}
	if withKyber != (len(ct) > 0) {
		t.Fatalf("kyber ciphertext presence %v", len(ct) > 0)
	}
	bp.TheirKyberCiphertext = ct

	bob, err = x3dh.InitializeBob(bp)
	if err != nil {
		t.Fatalf("InitializeBob: %v", err)
	}
	return alice, bob
}

func TestHandshake_Symmetric(t *testing.T) {
	cases := []struct {
		name           string
		oneTime, kyber bool
		wantVersion    uint32
	}{
		{"signed pre-key only", false, false, 3},
		{"with one-time pre-key", true, false, 3},
		{"with kyber", false, true, 4},
		{"with one-time and kyber", true, true, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alice, bob := handshake(t, tc.oneTime, tc.kyber)
			if alice.Version() != tc.wantVersion || bob.Version() != tc.wantVersion {
				t.Fatalf("versions %d/%d", alice.Version(), bob.Version())
			}
			if !bytes.Equal(alice.AliceBaseKey(), bob.AliceBaseKey()) {
				t.Fatal("alice base key differs")
			}

			// Bob's sending chain is Alice's receiver chain under Bob's SPK.
			spk, err := bob.SenderRatchetKey()
			if err != nil {
				t.Fatalf("SenderRatchetKey: %v", err)
			}
			bobSend, _ := bob.SenderChainKey()
			aliceRecv, ok := alice.ReceiverChainKey(spk)
			if !ok {
				t.Fatal("alice has no receiver chain for the signed pre-key")
			}
			if !bytes.Equal(firstMessageKeys(t, bobSend).CipherKey, firstMessageKeys(t, aliceRecv).CipherKey) {
				t.Fatal("first message keys differ on the SPK chain")
			}

			// Bob mirrors Alice's first ratchet step to get her sending chain.
			aliceRatchet, _ := alice.SenderRatchetKey()
			spkPair, _ := bob.SenderRatchetKeyPair()
			_, bobRecv, err := bob.RootKey().CreateChain(aliceRatchet, spkPair.PrivateKey)
			if err != nil {
				t.Fatalf("CreateChain: %v", err)
			}
			aliceSend, _ := alice.SenderChainKey()
			if !bytes.Equal(firstMessageKeys(t, aliceSend).MACKey, firstMessageKeys(t, bobRecv).MACKey) {
				t.Fatal("first message keys differ on alice's sending chain")
			}
		})
	}
}

func TestInitializeBob_KyberMismatch(t *testing.T) {
	bobID := identity(t)
	spk := keyPair(t)
	_, err := x3dh.InitializeBob(x3dh.BobParameters{
		OurIdentity:          bobID,
		OurSignedPreKey:      spk,
		OurRatchetKey:        spk,
		TheirIdentity:        identity(t).IdentityKey,
		TheirBaseKey:         keyPair(t).PublicKey,
		TheirKyberCiphertext: []byte{kem.Kyber1024Type, 1},
	})
	if !errors.Is(err, protoerr.ErrInvalidMessage) {
		t.Fatalf("want ErrInvalidMessage, got %v", err)
	}
}
