package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"signalcore/internal/crypto"
)

const (
	// The current supported version of the sealed identity format.
	keystoreFormatVersion = 1
)

var (
	// ErrWrongPassphrase is returned when the passphrase is incorrect or the
	// sealed identity has been modified.
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted identity")

	// ErrNoLocalIdentity is returned before an identity has been generated.
	ErrNoLocalIdentity = errors.New("no local identity; run init first")
)

// scryptParams are the tunables for passphrase key derivation.
type scryptParams struct {
	N, R, P int
}

var defaultScrypt = scryptParams{N: 1 << 15, R: 8, P: 1}

// sealedBlob is the JSON structure holding the ciphertext and KDF parameters.
type sealedBlob struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

// localIdentity is what gets sealed: the identity key pair and our
// registration id.
type localIdentity struct {
	IdentityKeyPair []byte `json:"identity_key_pair"`
	RegistrationID  uint32 `json:"registration_id"`
}

func sealIdentity(passphrase string, params scryptParams, id crypto.IdentityKeyPair, registrationID uint32) ([]byte, error) {
	raw, err := json.Marshal(localIdentity{IdentityKeyPair: id.Serialize(), RegistrationID: registrationID})
	if err != nil {
		return nil, err
	}
	return seal(passphrase, params, raw)
}

func openIdentity(passphrase string, b []byte) (crypto.IdentityKeyPair, uint32, error) {
	raw, err := open(passphrase, b)
	if err != nil {
		return crypto.IdentityKeyPair{}, 0, err
	}
	var li localIdentity
	if err := json.Unmarshal(raw, &li); err != nil {
		return crypto.IdentityKeyPair{}, 0, fmt.Errorf("decode local identity: %w", err)
	}
	id, err := crypto.DeserializeIdentityKeyPair(li.IdentityKeyPair)
	if err != nil {
		return crypto.IdentityKeyPair{}, 0, fmt.Errorf("decode local identity: %w", err)
	}
	return id, li.RegistrationID, nil
}

// seal derives a key from passphrase and encrypts raw into a JSON blob.
func seal(passphrase string, params scryptParams, raw []byte) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), salt[:], params.N, params.R, params.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte // zero nonce; the salt makes the key unique
	ct := aead.Seal(nil, nonce[:], raw, salt[:])

	return json.Marshal(sealedBlob{
		V:      keystoreFormatVersion,
		Salt:   salt[:],
		N:      params.N,
		R:      params.R,
		P:      params.P,
		Cipher: ct,
	})
}

// open decrypts a blob produced by seal.
func open(passphrase string, b []byte) ([]byte, error) {
	var bl sealedBlob
	if err := json.Unmarshal(b, &bl); err != nil {
		return nil, fmt.Errorf("decode sealed identity: %w", err)
	}
	if bl.V > keystoreFormatVersion {
		return nil, fmt.Errorf("unsupported keystore version %d", bl.V)
	}

	key, err := scrypt.Key([]byte(passphrase), bl.Salt, bl.N, bl.R, bl.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], bl.Cipher, bl.Salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}
