package sealedsender

import (
	"fmt"

	"signalcore/internal/codec"
	"signalcore/internal/protocol/wire"
	"signalcore/internal/protoerr"
)

// Content type tags inside UnidentifiedSenderMessageContent. They differ from
// wire.CiphertextType.
const (
	contentTypePreKey  uint32 = 1
	contentTypeWhisper uint32 = 2
)

// Content is the inner, authenticated payload of a sealed envelope: the
// message type, the sender certificate and the raw session ciphertext.
type Content struct {
	msgType    wire.CiphertextType
	sender     *SenderCertificate
	contents   []byte
	serialized []byte
}

// NewContent wraps a serialized PreKeySignalMessage or SignalMessage.
func NewContent(msgType wire.CiphertextType, sender *SenderCertificate, contents []byte) (*Content, error) {
	var tag uint32
	switch msgType {
	case wire.TypePreKey:
		tag = contentTypePreKey
	case wire.TypeWhisper:
		tag = contentTypeWhisper
	default:
		return nil, fmt.Errorf("sealed content: message type %s: %w", msgType, protoerr.ErrInvalidArgument)
	}
	if sender == nil {
		return nil, fmt.Errorf("sealed content: nil sender certificate: %w", protoerr.ErrInvalidArgument)
	}
	enc := codec.NewEncoder().
		Uint32(1, tag).
		Bytes(2, sender.Serialize()).
		Bytes(3, contents)
	return &Content{
		msgType:    msgType,
		sender:     sender,
		contents:   append([]byte(nil), contents...),
		serialized: enc.Encoded(),
	}, nil
}

// DeserializeContent parses a Content, including its sender certificate.
func DeserializeContent(b []byte) (*Content, error) {
	var (
		c       = Content{serialized: append([]byte(nil), b...)}
		tag     uint32
		haveTag bool
		cert    []byte
	)
	err := codec.Walk(b, func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			tag, err = f.Uint32()
			haveTag = true
		case 2:
			cert, err = f.Bytes()
		case 3:
			c.contents, err = f.Bytes()
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sealed content: %w", err)
	}
	if !haveTag || cert == nil || c.contents == nil {
		return nil, fmt.Errorf("sealed content: missing required field: %w", protoerr.ErrInvalidMessage)
	}
	switch tag {
	case contentTypePreKey:
		c.msgType = wire.TypePreKey
	case contentTypeWhisper:
		c.msgType = wire.TypeWhisper
	default:
		return nil, fmt.Errorf("sealed content: unsupported type %d: %w", tag, protoerr.ErrInvalidMessage)
	}
	if c.sender, err = DeserializeSenderCertificate(cert); err != nil {
		return nil, err
	}
	return &c, nil
}

// Type is the kind of session message carried.
func (c *Content) Type() wire.CiphertextType { return c.msgType }

// Sender is the certificate naming the sender.
func (c *Content) Sender() *SenderCertificate { return c.sender }

// Contents is the serialized session message.
func (c *Content) Contents() []byte { return c.contents }

// Serialize returns the wire bytes.
func (c *Content) Serialize() []byte { return c.serialized }
