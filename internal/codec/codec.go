package codec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"signalcore/internal/protoerr"
)

// Encoder appends protobuf fields to a buffer, in call order.
type Encoder struct {
	buf []byte
}

// NewEncoder starts a buffer with the given prefix bytes (e.g. a version byte).
func NewEncoder(prefix ...byte) *Encoder {
	return &Encoder{buf: append(make([]byte, 0, 64), prefix...)}
}

// Uint32 writes a varint field.
func (e *Encoder) Uint32(num protowire.Number, v uint32) *Encoder {
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, uint64(v))
	return e
}

// Int32 writes a varint field using two's complement sign extension.
func (e *Encoder) Int32(num protowire.Number, v int32) *Encoder {
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, uint64(int64(v)))
	return e
}

// Bool writes a varint field holding 0 or 1.
func (e *Encoder) Bool(num protowire.Number, v bool) *Encoder {
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, protowire.EncodeBool(v))
	return e
}

// Fixed64 writes a little-endian 64-bit field.
func (e *Encoder) Fixed64(num protowire.Number, v uint64) *Encoder {
	e.buf = protowire.AppendTag(e.buf, num, protowire.Fixed64Type)
	e.buf = protowire.AppendFixed64(e.buf, v)
	return e
}

// Bytes writes a length-delimited field.
func (e *Encoder) Bytes(num protowire.Number, b []byte) *Encoder {
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, b)
	return e
}

// String writes a length-delimited UTF-8 field.
func (e *Encoder) String(num protowire.Number, s string) *Encoder {
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendString(e.buf, s)
	return e
}

// Message writes an embedded message produced by another Encoder.
func (e *Encoder) Message(num protowire.Number, m *Encoder) *Encoder {
	return e.Bytes(num, m.Encoded())
}

// OptBytes writes b only when it is non-empty (proto3 implicit presence).
func (e *Encoder) OptBytes(num protowire.Number, b []byte) *Encoder {
	if len(b) == 0 {
		return e
	}
	return e.Bytes(num, b)
}

// OptUint32 writes v only when it is non-zero (proto3 implicit presence).
func (e *Encoder) OptUint32(num protowire.Number, v uint32) *Encoder {
	if v == 0 {
		return e
	}
	return e.Uint32(num, v)
}

// Encoded returns the accumulated bytes.
func (e *Encoder) Encoded() []byte { return e.buf }

// Field is one decoded protobuf field.
type Field struct {
	Num   protowire.Number
	Type  protowire.Type
	value uint64
	bytes []byte
}

// Uint32 returns a varint field truncated to 32 bits.
func (f Field) Uint32() (uint32, error) {
	if f.Type != protowire.VarintType {
		return 0, f.wrongType()
	}
	return uint32(f.value), nil
}

// Int32 returns a varint field as a signed 32-bit value.
func (f Field) Int32() (int32, error) {
	if f.Type != protowire.VarintType {
		return 0, f.wrongType()
	}
	return int32(f.value), nil
}

// Bool returns a varint field as a boolean.
func (f Field) Bool() (bool, error) {
	if f.Type != protowire.VarintType {
		return false, f.wrongType()
	}
	return protowire.DecodeBool(f.value), nil
}

// Fixed64 returns a fixed 64-bit field.
func (f Field) Fixed64() (uint64, error) {
	if f.Type != protowire.Fixed64Type {
		return 0, f.wrongType()
	}
	return f.value, nil
}

// Bytes returns a copy of a length-delimited field.
func (f Field) Bytes() ([]byte, error) {
	if f.Type != protowire.BytesType {
		return nil, f.wrongType()
	}
	return append([]byte{}, f.bytes...), nil
}

// Text returns a length-delimited field as a string.
func (f Field) Text() (string, error) {
	if f.Type != protowire.BytesType {
		return "", f.wrongType()
	}
	return string(f.bytes), nil
}

func (f Field) wrongType() error {
	return fmt.Errorf("protobuf field %d: unexpected wire type %d: %w", f.Num, f.Type, protoerr.ErrInvalidMessage)
}

// Walk decodes b field by field, calling fn for each. Fields are visited in
// wire order; unknown fields are passed through and callers may ignore them.
func Walk(b []byte, fn func(Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("protobuf tag: %v: %w", protowire.ParseError(n), protoerr.ErrInvalidMessage)
		}
		b = b[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fieldError(num, m)
			}
			f.value, n = v, m
		case protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return fieldError(num, m)
			}
			f.value, n = v, m
		case protowire.Fixed32Type:
			v, m := protowire.ConsumeFixed32(b)
			if m < 0 {
				return fieldError(num, m)
			}
			f.value, n = uint64(v), m
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fieldError(num, m)
			}
			f.bytes, n = v, m
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fieldError(num, m)
			}
			n = m
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func fieldError(num protowire.Number, n int) error {
	return fmt.Errorf("protobuf field %d: %v: %w", num, protowire.ParseError(n), protoerr.ErrInvalidMessage)
}
