package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"signalcore/internal/protoerr"
)

// TruncatedMACLength is the MAC width appended by AES-CTR-HMAC sealing.
const TruncatedMACLength = 10

// AESCBCEncrypt encrypts plaintext with AES-256-CBC and PKCS#7 padding.
func AESCBCEncrypt(plaintext, key, iv []byte) ([]byte, error) {
	if len(key) != 32 || len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("aes-cbc: key %d iv %d: %w", len(key), len(iv), protoerr.ErrInvalidArgument)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	buf := make([]byte, len(plaintext)+pad)
	copy(buf, plaintext)
	copy(buf[len(plaintext):], bytes.Repeat([]byte{byte(pad)}, pad))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(buf, buf)
	return buf, nil
}

// AESCBCDecrypt reverses AESCBCEncrypt. Bad lengths or padding are
// reported as ErrInvalidMessage.
func AESCBCDecrypt(ciphertext, key, iv []byte) ([]byte, error) {
	if len(key) != 32 || len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("aes-cbc: key %d iv %d: %w", len(key), len(iv), protoerr.ErrInvalidArgument)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("aes-cbc: ciphertext length %d: %w", len(ciphertext), protoerr.ErrInvalidMessage)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(buf, ciphertext)

	pad := int(buf[len(buf)-1])
	if pad == 0 || pad > aes.BlockSize {
		return nil, fmt.Errorf("aes-cbc: bad padding: %w", protoerr.ErrInvalidMessage)
	}
	for _, b := range buf[len(buf)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("aes-cbc: bad padding: %w", protoerr.ErrInvalidMessage)
		}
	}
	return buf[:len(buf)-pad], nil
}

// AESCTRHMACSeal encrypts msg with AES-256-CTR under a zero nonce and
// appends a truncated HMAC-SHA256 of the ciphertext.
func AESCTRHMACSeal(msg, cipherKey, macKey []byte) ([]byte, error) {
	ct, err := aesCTR(msg, cipherKey)
	if err != nil {
		return nil, err
	}
	mac := HMACSHA256(macKey, ct)
	return append(ct, mac[:TruncatedMACLength]...), nil
}

// AESCTRHMACOpen verifies and decrypts the output of AESCTRHMACSeal.
func AESCTRHMACOpen(sealed, cipherKey, macKey []byte) ([]byte, error) {
	if len(sealed) < TruncatedMACLength {
		return nil, fmt.Errorf("aes-ctr: ciphertext too short: %w", protoerr.ErrInvalidMessage)
	}
	ct := sealed[:len(sealed)-TruncatedMACLength]
	want := HMACSHA256(macKey, ct)[:TruncatedMACLength]
	if subtle.ConstantTimeCompare(want, sealed[len(ct):]) != 1 {
		return nil, fmt.Errorf("aes-ctr: mac mismatch: %w", protoerr.ErrInvalidMessage)
	}
	return aesCTR(ct, cipherKey)
}

// HMACSHA256 returns HMAC-SHA256(key, data...).
func HMACSHA256(key []byte, data ...[]byte) []byte {
	h := hmac.New(sha256.New, key)
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

func aesCTR(in, key []byte) ([]byte, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes-ctr: key %d: %w", len(key), protoerr.ErrInvalidArgument)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(in))
	cipher.NewCTR(block, make([]byte, aes.BlockSize)).XORKeyStream(out, in)
	return out, nil
}
