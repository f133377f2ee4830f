package types

// CertificateRequest asks the key directory for a sender certificate bound
// to the identity key published for (Username, DeviceID).
type CertificateRequest struct {
	Username Username `json:"username"`
	DeviceID uint32   `json:"device_id"`
	UUID     string   `json:"uuid"`
	E164     string   `json:"e164,omitempty"`
}

// CertificateResponse carries a serialized SenderCertificate.
type CertificateResponse struct {
	Certificate []byte `json:"certificate"`
}

// TrustRoot carries the directory's trust-root public key.
type TrustRoot struct {
	PublicKey []byte `json:"public_key"`
}

// AccountLookup maps a certificate uuid back to its username.
type AccountLookup struct {
	UUID     string   `json:"uuid"`
	Username Username `json:"username"`
}
