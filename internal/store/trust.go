package store

import (
	"signalcore/internal/crypto"
)

// trusted applies trust on first use: an address with no recorded key
// trusts anything, otherwise the key must match. Direction does not change
// the answer.
func trusted(stored []byte, key crypto.IdentityKey) bool {
	if stored == nil {
		return true
	}
	known, err := crypto.DeserializeIdentityKey(stored)
	if err != nil {
		return false
	}
	return known.Equal(key)
}

// replaced reports whether saving key over stored changes the recorded
// identity.
func replaced(stored []byte, key crypto.IdentityKey) bool {
	return stored != nil && !trusted(stored, key)
}

func decodeIdentity(b []byte) (crypto.IdentityKey, bool, error) {
	if b == nil {
		return crypto.IdentityKey{}, false, nil
	}
	k, err := crypto.DeserializeIdentityKey(b)
	if err != nil {
		return crypto.IdentityKey{}, false, err
	}
	return k, true, nil
}
