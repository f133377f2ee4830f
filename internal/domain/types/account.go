package types

// AccountProfile identifies the local account on a specific key directory,
// along with the trust root pinned on first publish and the sender
// certificate last issued to it.
type AccountProfile struct {
	ServerURL         string   `json:"server_url"`
	Username          Username `json:"username"`
	UUID              string   `json:"uuid"`
	E164              string   `json:"e164,omitempty"`
	DeviceID          uint32   `json:"device_id"`
	TrustRoot         []byte   `json:"trust_root,omitempty"`
	SenderCertificate []byte   `json:"sender_certificate,omitempty"`
}
