package types

// Username represents a key-directory account name.
type Username string

// String returns the string form of the username.
func (u Username) String() string { return string(u) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// DefaultDeviceID is the device id used when none is given.
const DefaultDeviceID uint32 = 1
