package ratchet_test

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"

	"signalcore/internal/crypto"
	"signalcore/internal/protocol/ratchet"
	"signalcore/internal/protoerr"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("hex: %v", err)
	}
	return b
}

// Known-answer vector for the v3 chain derivations.
func TestChainKey_KnownVector(t *testing.T) {
	seed := mustHex(t, "8ab72d6f4cc5ac0d387eaf463378ddb28edd07385b1cb01250c715982e7ad48f")
	wantCipher := mustHex(t, "bf51e9d75e0e31031051f82a2491ffc084fa298b7793bd9db620056febf45217")
	wantMAC := mustHex(t, "c6c77d6a73a354337a56435e34607dfe48e3ace14e77314dc6abc172e7a7030b")
	wantNext := mustHex(t, "28e8f8fee54b801eef7c5cfb2f17f32c7b334485bbb70fac6ec10342a246d15d")

	ck, err := ratchet.NewChainKey(seed, 0)
	if err != nil {
		t.Fatalf("NewChainKey: %v", err)
	}
	mk, err := ck.MessageKeys()
	if err != nil {
		t.Fatalf("MessageKeys: %v", err)
	}
	if !bytes.Equal(mk.CipherKey, wantCipher) {
		t.Fatalf("cipher key %x", mk.CipherKey)
	}
	if !bytes.Equal(mk.MACKey, wantMAC) {
		t.Fatalf("mac key %x", mk.MACKey)
	}
	if mk.Counter != 0 {
		t.Fatalf("counter %d", mk.Counter)
	}

	next := ck.Next()
	if !bytes.Equal(next.Key(), wantNext) || next.Index() != 1 {
		t.Fatalf("next %x@%d", next.Key(), next.Index())
	}
	if mk2, _ := next.MessageKeys(); mk2.Counter != 1 {
		t.Fatalf("next counter %d", mk2.Counter)
	}
}

func TestRootKey_CreateChainIsSymmetric(t *testing.T) {
	alice, err := crypto.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	bob, err := crypto.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	root, err := ratchet.NewRootKey(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("NewRootKey: %v", err)
	}

	aRoot, aChain, err := root.CreateChain(bob.PublicKey, alice.PrivateKey)
	if err != nil {
		t.Fatalf("CreateChain alice: %v", err)
	}
	bRoot, bChain, err := root.CreateChain(alice.PublicKey, bob.PrivateKey)
	if err != nil {
		t.Fatalf("CreateChain bob: %v", err)
	}
	if !bytes.Equal(aRoot.Key(), bRoot.Key()) || !bytes.Equal(aChain.Key(), bChain.Key()) {
		t.Fatal("both sides must derive the same root and chain")
	}
	if aChain.Index() != 0 {
		t.Fatalf("fresh chain index %d", aChain.Index())
	}
	if bytes.Equal(aRoot.Key(), root.Key()) {
		t.Fatal("root key did not advance")
	}
}

func TestNewKeys_RejectBadLength(t *testing.T) {
	if _, err := ratchet.NewRootKey(make([]byte, 31)); !errors.Is(err, protoerr.ErrInvalidKey) {
		t.Fatalf("root: want ErrInvalidKey, got %v", err)
	}
	if _, err := ratchet.NewChainKey(make([]byte, 33), 0); !errors.Is(err, protoerr.ErrInvalidKey) {
		t.Fatalf("chain: want ErrInvalidKey, got %v", err)
	}
}

func TestCheckSkip(t *testing.T) {
	for _, tc := range []struct {
		name           string
		index, counter uint32
		cached         int
		ok             bool
	}{
		{"next", 4, 4, 0, true},
		{"fills cache", 0, ratchet.MaxMessageKeys, 0, true},
		{"overflows cache", 0, ratchet.MaxMessageKeys + 1, 0, false},
		{"overflows with cached", 10, 20, ratchet.MaxMessageKeys - 5, false},
		{"fits with cached", 10, 15, ratchet.MaxMessageKeys - 5, true},
		{"too far", 0, ratchet.MaxForwardJumps + 1, 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ratchet.CheckSkip(tc.index, tc.counter, tc.cached)
			if tc.ok {
				if err != nil {
					t.Fatalf("CheckSkip: %v", err)
				}
				return
			}
			if !errors.Is(err, protoerr.ErrTooManySkippedMessages) || !errors.Is(err, protoerr.ErrInvalidMessage) {
				t.Fatalf("CheckSkip err = %v, want ErrTooManySkippedMessages", err)
			}
		})
	}
}
