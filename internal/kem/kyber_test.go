package kem_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"signalcore/internal/kem"
	"signalcore/internal/protoerr"
)

func TestEncapsulateDecapsulate_RoundTrip(t *testing.T) {
	kp, err := kem.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	pub, err := kem.DeserializePublicKey(kp.PublicKey.Serialize())
	if err != nil {
		t.Fatalf("DeserializePublicKey: %v", err)
	}
	if !pub.Equal(kp.PublicKey) {
		t.Fatal("public key changed across round trip")
	}
	sk, err := kem.DeserializeSecretKey(kp.SecretKey.Serialize())
	if err != nil {
		t.Fatalf("DeserializeSecretKey: %v", err)
	}

	ct, ss, err := pub.Encapsulate(rand.Reader)
	if err != nil {
		t.Fatalf("Encapsulate: %v", err)
	}
	if ct[0] != kem.Kyber1024Type {
		t.Fatalf("ciphertext tag 0x%02x", ct[0])
	}
	got, err := sk.Decapsulate(ct)
	if err != nil {
		t.Fatalf("Decapsulate: %v", err)
	}
	if !bytes.Equal(ss, got) {
		t.Fatal("shared secrets differ")
	}
}

func TestDeserialize_RejectsBadTagAndLength(t *testing.T) {
	kp, err := kem.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	ser := kp.PublicKey.Serialize()

	bad := append([]byte{0x05}, ser[1:]...)
	if _, err := kem.DeserializePublicKey(bad); !errors.Is(err, protoerr.ErrInvalidKey) {
		t.Fatalf("bad tag: want ErrInvalidKey, got %v", err)
	}
	if _, err := kem.DeserializePublicKey(ser[:100]); !errors.Is(err, protoerr.ErrInvalidKey) {
		t.Fatalf("short: want ErrInvalidKey, got %v", err)
	}
	if _, err := kp.SecretKey.Decapsulate([]byte{kem.Kyber1024Type, 1, 2}); !errors.Is(err, protoerr.ErrInvalidMessage) {
		t.Fatalf("short ciphertext: want ErrInvalidMessage, got %v", err)
	}
}
