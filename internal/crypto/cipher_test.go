package crypto_test

import (
	"bytes"
	"errors"
	"testing"

	"signalcore/internal/crypto"
	"signalcore/internal/protoerr"
)

func TestAESCBC_RoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	iv := bytes.Repeat([]byte{9}, 16)

	for _, n := range []int{0, 1, 15, 16, 17, 100} {
		pt := bytes.Repeat([]byte{'a'}, n)
		ct, err := crypto.AESCBCEncrypt(pt, key, iv)
		if err != nil {
			t.Fatalf("encrypt %d: %v", n, err)
		}
		if len(ct) != (n/16+1)*16 {
			t.Fatalf("ciphertext length %d for %d bytes", len(ct), n)
		}
		got, err := crypto.AESCBCDecrypt(ct, key, iv)
		if err != nil {
			t.Fatalf("decrypt %d: %v", n, err)
		}
		if !bytes.Equal(got, pt) {
			t.Fatalf("round trip mismatch for %d bytes", n)
		}
	}
}

func TestAESCBC_BadInputIsInvalidMessage(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	iv := bytes.Repeat([]byte{9}, 16)

	if _, err := crypto.AESCBCDecrypt(make([]byte, 15), key, iv); !errors.Is(err, protoerr.ErrInvalidMessage) {
		t.Fatalf("want ErrInvalidMessage, got %v", err)
	}
	if _, err := crypto.AESCBCDecrypt(nil, key, iv); !errors.Is(err, protoerr.ErrInvalidMessage) {
		t.Fatalf("empty: want ErrInvalidMessage, got %v", err)
	}
	if _, err := crypto.AESCBCEncrypt([]byte("x"), key[:16], iv); !errors.Is(err, protoerr.ErrInvalidArgument) {
		t.Fatalf("short key: want ErrInvalidArgument, got %v", err)
	}
}

func TestAESCTRHMAC_RoundTripAndTamper(t *testing.T) {
	ck := bytes.Repeat([]byte{1}, 32)
	mk := bytes.Repeat([]byte{2}, 32)

	sealed, err := crypto.AESCTRHMACSeal([]byte("static key"), ck, mk)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if len(sealed) != len("static key")+crypto.TruncatedMACLength {
		t.Fatalf("sealed length %d", len(sealed))
	}
	got, err := crypto.AESCTRHMACOpen(sealed, ck, mk)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(got) != "static key" {
		t.Fatalf("got %q", got)
	}

	sealed[0] ^= 1
	if _, err := crypto.AESCTRHMACOpen(sealed, ck, mk); !errors.Is(err, protoerr.ErrInvalidMessage) {
		t.Fatalf("want ErrInvalidMessage, got %v", err)
	}
}
