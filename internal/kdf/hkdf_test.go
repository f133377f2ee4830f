package kdf_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"signalcore/internal/kdf"
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

// RFC 5869 test case 1.
func TestV3_RFC5869Vector(t *testing.T) {
	ikm := bytes.Repeat([]byte{0x0b}, 22)
	salt := mustHex(t, "000102030405060708090a0b0c")
	info := mustHex(t, "f0f1f2f3f4f5f6f7f8f9")
	want := mustHex(t, "3cb25f25faacd57a90434f64d0362f2a2d2d0a90cf1a5a4c5db02d56ecc4c5bf34007208d5b887185865")

	h, err := kdf.New(3)
	if err != nil {
		t.Fatalf("New(3): %v", err)
	}
	got, err := h.DeriveSaltedSecrets(ikm, salt, info, 42)
	if err != nil {
		t.Fatalf("DeriveSaltedSecrets: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("okm mismatch:\n got %x\nwant %x", got, want)
	}
}

func TestV2_DiffersFromV3AndIsStable(t *testing.T) {
	ikm := bytes.Repeat([]byte{0x0b}, 22)
	v2, err := kdf.New(2)
	if err != nil {
		t.Fatalf("New(2): %v", err)
	}

	a, err := v2.DeriveSecrets(ikm, []byte("info"), 80)
	if err != nil {
		t.Fatalf("DeriveSecrets: %v", err)
	}
	b, err := v2.DeriveSecrets(ikm, []byte("info"), 80)
	if err != nil {
		t.Fatalf("DeriveSecrets: %v", err)
	}
	c, err := kdf.V3.DeriveSecrets(ikm, []byte("info"), 80)
	if err != nil {
		t.Fatalf("DeriveSecrets v3: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("v2 output not deterministic")
	}
	if bytes.Equal(a, c) {
		t.Fatal("v2 and v3 outputs are equal")
	}
}

func TestNilSaltMatchesZeroSalt(t *testing.T) {
	ikm := []byte("input key material")
	a, err := kdf.V3.DeriveSecrets(ikm, []byte("WhisperText"), 64)
	if err != nil {
		t.Fatalf("DeriveSecrets: %v", err)
	}
	b, err := kdf.V3.DeriveSaltedSecrets(ikm, make([]byte, 32), []byte("WhisperText"), 64)
	if err != nil {
		t.Fatalf("DeriveSaltedSecrets: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("nil salt is not the zero salt")
	}
}

func TestInvalidArguments(t *testing.T) {
	for _, v := range []uint32{0, 1, 4} {
		if _, err := kdf.New(v); !errors.Is(err, protoerr.ErrInvalidArgument) {
			t.Fatalf("New(%d): want ErrInvalidArgument, got %v", v, err)
		}
	}
	for _, n := range []int{0, -1, kdf.MaxOutputLength + 1} {
		if _, err := kdf.V3.DeriveSecrets([]byte("k"), nil, n); !errors.Is(err, protoerr.ErrInvalidArgument) {
			t.Fatalf("length %d: want ErrInvalidArgument, got %v", n, err)
		}
	}
	if _, err := kdf.V3.DeriveSecrets([]byte("k"), nil, kdf.MaxOutputLength); err != nil {
		t.Fatalf("max length: %v", err)
	}
}
