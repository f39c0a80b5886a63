// Package meshtastic provides hand-authored Go types for the subset of the
// Meshtastic radio protobuf schema this module depends on, marshaled and
// unmarshaled directly against the protobuf wire format via
// google.golang.org/protobuf/encoding/protowire. The upstream .proto
// definitions are not vendored anywhere in this module's dependency graph,
// so generated accessors are replaced here with plain struct fields and
// Marshal/Unmarshal methods that speak the same tag/wire-type framing a
// protoc-generated package would.
package meshtastic

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrDecode is returned when a payload cannot be parsed as a well-formed
// message of the expected type. Callers must discard the payload and never
// propagate a partially-applied decode.
var ErrDecode = errors.New("meshtastic: malformed payload")

type fieldVisitor func(num protowire.Number, typ protowire.Type, tail []byte) (rest []byte, err error)

// walkFields parses a message body field-by-field, invoking visit for each
// one. Unknown or unhandled fields are skipped via protowire's own
// ConsumeFieldValue, matching "unknown fields are ignored" proto3 semantics.
func walkFields(b []byte, visit fieldVisitor) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: consume tag: %v", ErrDecode, protowire.ParseError(n))
		}
		b = b[n:]

		rest, err := visit(num, typ, b)
		if err != nil {
			return err
		}
		if rest != nil {
			b = rest
			continue
		}

		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return fmt.Errorf("%w: skip field %d: %v", ErrDecode, num, protowire.ParseError(m))
		}
		b = b[m:]
	}

	return nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// appendVarintAlways encodes v even when zero; used for explicit-optional
// (pointer) fields where presence, not value, is the signal.
func appendVarintAlways(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFixed32(b []byte, num protowire.Number, v uint32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, v)
}

func appendMessage(b []byte, num protowire.Number, payload []byte) []byte {
	if len(payload) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, payload)
}

func consumeVarint(b []byte) (uint64, []byte, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, nil, fmt.Errorf("%w: varint: %v", ErrDecode, protowire.ParseError(n))
	}
	return v, b[n:], nil
}

func consumeFixed32(b []byte) (uint32, []byte, error) {
	v, n := protowire.ConsumeFixed32(b)
	if n < 0 {
		return 0, nil, fmt.Errorf("%w: fixed32: %v", ErrDecode, protowire.ParseError(n))
	}
	return v, b[n:], nil
}

func consumeBytes(b []byte) ([]byte, []byte, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, nil, fmt.Errorf("%w: bytes: %v", ErrDecode, protowire.ParseError(n))
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, b[n:], nil
}

func consumeString(b []byte) (string, []byte, error) {
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return "", nil, fmt.Errorf("%w: string: %v", ErrDecode, protowire.ParseError(n))
	}
	return v, b[n:], nil
}

func int32Ptr(v int32) *int32   { return &v }
func uint32Ptr(v uint32) *uint32 { return &v }
func boolPtr(v bool) *bool       { return &v }
