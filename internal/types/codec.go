package types

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode serializes payloads and view states with msgpack. Struct fields
// encode in declaration order, so equal values always produce equal bytes.
func Encode(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return b, nil
}

// Decode is the inverse of Encode.
func Decode(b []byte, v any) error {
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// DecodePayload decodes the event payload into v.
func (e *Event) DecodePayload(v any) error {
	return Decode(e.Payload, v)
}
