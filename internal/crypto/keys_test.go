package crypto_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"signalcore/internal/crypto"
	"signalcore/internal/protoerr"
)

// makeKeyPair returns a fresh key pair from crypto/rand.
func makeKeyPair(t *testing.T) crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return kp
}

func TestPublicKey_SerializeRoundTrip(t *testing.T) {
	kp := makeKeyPair(t)

	ser := kp.PublicKey.Serialize()
	if len(ser) != 33 || ser[0] != crypto.DJBType {
		t.Fatalf("unexpected encoding % x", ser[:1])
	}
	got, err := crypto.DeserializePublicKey(ser)
	if err != nil {
		t.Fatalf("DeserializePublicKey: %v", err)
	}
	if got != kp.PublicKey {
		t.Fatal("public key changed across round trip")
	}
}

func TestDeserializePublicKey_Rejects(t *testing.T) {
	kp := makeKeyPair(t)
	good := kp.PublicKey.Serialize()

	badType := append([]byte{0x09}, good[1:]...)
	cases := map[string][]byte{
		"empty":    nil,
		"bad type": badType,
		"short":    good[:32],
		"long":     append(append([]byte{}, good...), 0),
	}
	for name, in := range cases {
		if _, err := crypto.DeserializePublicKey(in); !errors.Is(err, protoerr.ErrInvalidKey) {
			t.Fatalf("%s: want ErrInvalidKey, got %v", name, err)
		}
	}
}

func TestDeserializePrivateKey_ClampsAndAcceptsTag(t *testing.T) {
	raw := bytes.Repeat([]byte{0xFF}, 32)

	priv, err := crypto.DeserializePrivateKey(raw)
	if err != nil {
		t.Fatalf("DeserializePrivateKey: %v", err)
	}
	if priv[0]&7 != 0 || priv[31]&0x80 != 0 || priv[31]&0x40 == 0 {
		t.Fatalf("scalar not clamped: % x", priv[:])
	}

	tagged, err := crypto.DeserializePrivateKey(append([]byte{crypto.DJBType}, raw...))
	if err != nil {
		t.Fatalf("DeserializePrivateKey (tagged): %v", err)
	}
	if tagged != priv {
		t.Fatal("tagged and raw encodings differ")
	}

	if _, err := crypto.DeserializePrivateKey(raw[:31]); !errors.Is(err, protoerr.ErrInvalidKey) {
		t.Fatalf("want ErrInvalidKey, got %v", err)
	}
}

func TestAgree_IsSymmetric(t *testing.T) {
	alice := makeKeyPair(t)
	bob := makeKeyPair(t)

	ab, err := alice.Agree(bob.PublicKey)
	if err != nil {
		t.Fatalf("alice agree: %v", err)
	}
	ba, err := bob.Agree(alice.PublicKey)
	if err != nil {
		t.Fatalf("bob agree: %v", err)
	}
	if !bytes.Equal(ab, ba) {
		t.Fatal("shared secrets differ")
	}
}

func TestAgree_LowOrderPointFails(t *testing.T) {
	kp := makeKeyPair(t)
	var zero crypto.PublicKey
	if _, err := kp.Agree(zero); !errors.Is(err, protoerr.ErrInvalidKey) {
		t.Fatalf("want ErrInvalidKey, got %v", err)
	}
}

func TestCompare_TotalOrder(t *testing.T) {
	a := crypto.PublicKey{1}
	b := crypto.PublicKey{2}

	if a.Compare(b) >= 0 || b.Compare(a) <= 0 {
		t.Fatal("ordering is not antisymmetric")
	}
	if a.Compare(a) != 0 || !a.Equal(a) {
		t.Fatal("key does not equal itself")
	}
}

func TestIdentityKeyPair_SerializeRoundTrip(t *testing.T) {
	id, err := crypto.GenerateIdentityKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateIdentityKeyPair: %v", err)
	}
	got, err := crypto.DeserializeIdentityKeyPair(id.Serialize())
	if err != nil {
		t.Fatalf("DeserializeIdentityKeyPair: %v", err)
	}
	if !got.IdentityKey.Equal(id.IdentityKey) || got.PrivateKey != id.PrivateKey {
		t.Fatal("identity changed across round trip")
	}
}
