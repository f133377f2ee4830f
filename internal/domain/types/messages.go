package types

// Envelope is the JSON form of a ciphertext handed between hosts. Sealed
// envelopes leave From empty; the sender is inside Body.
type Envelope struct {
	From      Username `json:"from,omitempty"`
	DeviceID  uint32   `json:"device_id,omitempty"`
	Type      uint8    `json:"type"`
	Sealed    bool     `json:"sealed,omitempty"`
	Body      []byte   `json:"body"`
	Timestamp int64    `json:"timestamp"`
}

// DecryptedMessage is what a decrypt operation returns to the host.
type DecryptedMessage struct {
	From      ProtocolAddress `json:"from"`
	SenderID  string          `json:"sender_uuid,omitempty"`
	Plaintext []byte          `json:"plaintext"`
	Timestamp int64           `json:"timestamp"`
}
