package crypto_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"signalcore/internal/crypto"
	"signalcore/internal/protoerr"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("hex %q: %v", s, err)
	}
	return b
}

// Vectors from RFC 8452 appendix C.2.
func TestAES256GCMSIV_KnownAnswers(t *testing.T) {
	key := mustHex(t, "0100000000000000000000000000000000000000000000000000000000000000")
	nonce := mustHex(t, "030000000000000000000000")

	cases := []struct {
		name      string
		plaintext string
		result    string
	}{
		{"empty", "", "07f5f4169bbf55a8400cd47ea6fd400f"},
		{"8 bytes", "0100000000000000", "c2ef328e5c71c83b843122130f7364b761e0b97427e3df28"},
	}

	aead, err := crypto.NewAES256GCMSIV(key)
	if err != nil {
		t.Fatalf("NewAES256GCMSIV: %v", err)
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pt := mustHex(t, tc.plaintext)
			want := mustHex(t, tc.result)

			got, err := aead.Encrypt(pt, nonce, nil)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("ciphertext = %x, want %x", got, want)
			}
			back, err := aead.Decrypt(got, nonce, nil)
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if !bytes.Equal(back, pt) {
				t.Fatalf("plaintext = %x, want %x", back, pt)
			}
		})
	}
}

func TestAES256GCMSIV_AssociatedDataAndTamper(t *testing.T) {
	aead, err := crypto.NewAES256GCMSIV(bytes.Repeat([]byte{3}, 32))
	if err != nil {
		t.Fatalf("NewAES256GCMSIV: %v", err)
	}
	nonce := bytes.Repeat([]byte{5}, crypto.GCMSIVNonceLength)
	ad := []byte("header")

	ct, err := aead.Encrypt([]byte("attachment body"), nonce, ad)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if len(ct) != len("attachment body")+crypto.GCMSIVTagLength {
		t.Fatalf("ciphertext length %d", len(ct))
	}
	if _, err := aead.Decrypt(ct, nonce, []byte("other")); !errors.Is(err, protoerr.ErrInvalidMessage) {
		t.Fatalf("wrong associated data: err = %v", err)
	}
	ct[0] ^= 1
	if _, err := aead.Decrypt(ct, nonce, ad); !errors.Is(err, protoerr.ErrInvalidMessage) {
		t.Fatalf("tampered ciphertext: err = %v", err)
	}
	if _, err := aead.Decrypt(ct[:4], nonce, ad); !errors.Is(err, protoerr.ErrInvalidMessage) {
		t.Fatalf("truncated ciphertext: err = %v", err)
	}
}

func TestAES256GCMSIV_RejectsBadSizes(t *testing.T) {
	if _, err := crypto.NewAES256GCMSIV(make([]byte, 16)); !errors.Is(err, protoerr.ErrInvalidKey) {
		t.Fatalf("16-byte key: err = %v", err)
	}
	aead, err := crypto.NewAES256GCMSIV(make([]byte, 32))
	if err != nil {
		t.Fatalf("NewAES256GCMSIV: %v", err)
	}
	if _, err := aead.Encrypt([]byte("x"), make([]byte, 8), nil); !errors.Is(err, protoerr.ErrInvalidArgument) {
		t.Fatalf("short nonce on encrypt: err = %v", err)
	}
	if _, err := aead.Decrypt(make([]byte, 32), make([]byte, 16), nil); !errors.Is(err, protoerr.ErrInvalidArgument) {
		t.Fatalf("long nonce on decrypt: err = %v", err)
	}
}
