package crypto

import (
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"filippo.io/edwards25519/field"

	"signalcore/internal/protoerr"
	"signalcore/internal/util/memzero"
)

// SignatureLength is the width of an XEdDSA signature.
const SignatureLength = 64

// hashPrefix domain-separates the nonce hash from Ed25519 (0xFE then 31×0xFF).
var hashPrefix = [32]byte{
	0xFE, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
}

// Sign computes an XEdDSA signature over the concatenation of msg using a
// fresh 64-byte nonce read from rng.
func (k PrivateKey) Sign(rng io.Reader, msg ...[]byte) ([]byte, error) {
	var random [64]byte
	if _, err := io.ReadFull(rng, random[:]); err != nil {
		return nil, fmt.Errorf("xeddsa nonce: %w", err)
	}
	defer memzero.Zero(random[:])

	a, err := edwards25519.NewScalar().SetBytesWithClamping(k[:])
	if err != nil {
		return nil, fmt.Errorf("xeddsa scalar: %w", protoerr.ErrInvalidKey)
	}
	edPub := new(edwards25519.Point).ScalarBaseMult(a).Bytes()
	signBit := edPub[31] & 0x80

	h1 := sha512.New()
	h1.Write(hashPrefix[:])
	h1.Write(k[:])
	for _, m := range msg {
		h1.Write(m)
	}
	h1.Write(random[:])
	r, err := edwards25519.NewScalar().SetUniformBytes(h1.Sum(nil))
	if err != nil {
		return nil, err
	}
	capR := new(edwards25519.Point).ScalarBaseMult(r).Bytes()

	h2 := sha512.New()
	h2.Write(capR)
	h2.Write(edPub)
	for _, m := range msg {
		h2.Write(m)
	}
	h, err := edwards25519.NewScalar().SetUniformBytes(h2.Sum(nil))
	if err != nil {
		return nil, err
	}
	s := edwards25519.NewScalar().MultiplyAdd(h, a, r)

	sig := make([]byte, 0, SignatureLength)
	sig = append(sig, capR...)
	sig = append(sig, s.Bytes()...)
	sig[SignatureLength-1] &= 0x7F
	sig[SignatureLength-1] |= signBit
	return sig, nil
}

// Verify checks an XEdDSA signature over the concatenation of msg. A
// mismatch reports false; only a signature of the wrong width is an error.
func (k PublicKey) Verify(sig []byte, msg ...[]byte) (bool, error) {
	if len(sig) != SignatureLength {
		return false, fmt.Errorf("signature length %d: %w", len(sig), protoerr.ErrInvalidArgument)
	}

	edPubBytes, ok := montgomeryToEdwards(k, sig[SignatureLength-1]>>7)
	if !ok {
		return false, nil
	}
	A, err := new(edwards25519.Point).SetBytes(edPubBytes)
	if err != nil {
		return false, nil
	}

	var s [64]byte
	copy(s[:32], sig[32:])
	s[31] &= 0x7F
	if s[31]&0xE0 != 0 {
		return false, nil
	}
	sScalar, err := edwards25519.NewScalar().SetUniformBytes(s[:])
	if err != nil {
		return false, nil
	}

	hh := sha512.New()
	hh.Write(sig[:32])
	hh.Write(edPubBytes)
	for _, m := range msg {
		hh.Write(m)
	}
	h, err := edwards25519.NewScalar().SetUniformBytes(hh.Sum(nil))
	if err != nil {
		return false, nil
	}

	minusA := new(edwards25519.Point).Negate(A)
	check := new(edwards25519.Point).VarTimeDoubleScalarBaseMult(h, minusA, sScalar).Bytes()
	return subtle.ConstantTimeCompare(check, sig[:32]) == 1, nil
}

// montgomeryToEdwards maps a Curve25519 u-coordinate to the compressed
// Edwards point with the given sign bit, using y = (u-1)/(u+1).
func montgomeryToEdwards(pub PublicKey, signBit byte) ([]byte, bool) {
	u, err := new(field.Element).SetBytes(pub[:])
	if err != nil {
		return nil, false
	}
	one := new(field.Element).One()
	uPlusOne := new(field.Element).Add(u, one)
	if uPlusOne.Equal(new(field.Element).Zero()) == 1 {
		return nil, false
	}
	uMinusOne := new(field.Element).Subtract(u, one)
	y := new(field.Element).Multiply(uMinusOne, new(field.Element).Invert(uPlusOne))
	out := y.Bytes()
	out[31] |= signBit << 7
	return out, true
}
