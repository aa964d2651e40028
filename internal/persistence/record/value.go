package record

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindString
	KindBool
	KindBytes
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindBytes:
		return "bytes"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one typed entry of a SaveRecord. Only the field selected by Kind
// is meaningful; Object values keep their CBOR encoding in Bytes.
type Value struct {
	Kind  Kind    `cbor:"1,keyasint"`
	Int   int64   `cbor:"2,keyasint,omitempty"`
	Float float64 `cbor:"3,keyasint"` // no omitempty: -0 must survive
	Str   string  `cbor:"4,keyasint,omitempty"`
	Bool  bool    `cbor:"5,keyasint,omitempty"`
	Bytes []byte  `cbor:"6,keyasint,omitempty"`
}

func Int(v int64) Value     { return Value{Kind: KindInt, Int: v} }
func Float(v float64) Value { return Value{Kind: KindFloat, Float: v} }
func String(v string) Value { return Value{Kind: KindString, Str: v} }
func Bool(v bool) Value     { return Value{Kind: KindBool, Bool: v} }

// Bytes copies v. Empty input is stored as nil so it survives a round trip
// unchanged.
func Bytes(v []byte) Value {
	if len(v) == 0 {
		return Value{Kind: KindBytes}
	}
	return Value{Kind: KindBytes, Bytes: append([]byte(nil), v...)}
}

// Object encodes v with CBOR.
func Object(v any) (Value, error) {
	b, err := cbor.Marshal(v)
	if err != nil {
		return Value{}, fmt.Errorf("encode object: %w", err)
	}
	return Value{Kind: KindObject, Bytes: b}, nil
}

// Decode unmarshals an Object value into out.
func (v Value) Decode(out any) error {
	if v.Kind != KindObject {
		return fmt.Errorf("value is %s, not object", v.Kind)
	}
	if err := cbor.Unmarshal(v.Bytes, out); err != nil {
		return fmt.Errorf("decode object: %w", err)
	}
	return nil
}

func (v Value) valid() bool {
	return v.Kind > KindInvalid && v.Kind <= KindObject
}
