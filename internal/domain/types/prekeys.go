package types

// SignedPreKeyPublic is a published signed pre-key (X25519 or Kyber).
type SignedPreKeyPublic struct {
	ID        uint32 `json:"id"`
	PublicKey []byte `json:"public_key"`
	Signature []byte `json:"signature"`
}

// OneTimePreKeyPublic is a published one-time pre-key.
type OneTimePreKeyPublic struct {
	ID        uint32 `json:"id"`
	PublicKey []byte `json:"public_key"`
}

// PublishedBundle is everything a device uploads to the key directory. The
// directory hands out at most one one-time pre-key per fetch.
type PublishedBundle struct {
	Username       Username              `json:"username"`
	DeviceID       uint32                `json:"device_id"`
	RegistrationID uint32                `json:"registration_id"`
	IdentityKey    []byte                `json:"identity_key"`
	SignedPreKey   SignedPreKeyPublic    `json:"signed_pre_key"`
	KyberPreKey    *SignedPreKeyPublic   `json:"kyber_pre_key,omitempty"`
	OneTimePreKeys []OneTimePreKeyPublic `json:"one_time_pre_keys,omitempty"`
}

// FetchedBundle carries a serialized pre-key bundle from the directory.
type FetchedBundle struct {
	Bundle []byte `json:"bundle"`
}
