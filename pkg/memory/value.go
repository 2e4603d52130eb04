package memory

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ValueKind discriminates the representations a Value can carry.
type ValueKind int

const (
	KindInvalid ValueKind = iota
	KindInt
	KindFloat
	KindBool
	KindText
	KindPointer
	KindRaw
	KindStruct
)

// String returns the string representation of the ValueKind.
func (k ValueKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindText:
		return "text"
	case KindPointer:
		return "pointer"
	case KindRaw:
		return "raw"
	case KindStruct:
		return "struct"
	default:
		return "invalid"
	}
}

// PointerValue is the payload of a pointer-kind Value: a target address,
// the declared pointee type, and an explicit null flag. The canonical null
// pointer has a zero address and the flag set; non-null pointers always
// carry a non-zero address.
type PointerValue struct {
	Address    Address `json:"address"`
	TargetType string  `json:"targetType,omitempty"`
	IsNull     bool    `json:"isNull,omitempty"`
}

// Field is one named member of a struct-kind Value. Field order is
// declaration order and is significant.
type Field struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// Value is a tagged union over the representations the model understands:
// integer, float, bool, text, pointer, opaque raw bytes, and struct (an
// ordered list of named fields, nesting recursively). Values are plain
// data and are treated as immutable: mutation in the model always replaces
// a whole Value rather than editing one in place.
type Value struct {
	Kind    ValueKind     `json:"kind"`
	Int     int64         `json:"int,omitempty"`
	Float   float64       `json:"float,omitempty"`
	Bool    bool          `json:"bool,omitempty"`
	Text    string        `json:"text,omitempty"`
	Pointer *PointerValue `json:"pointer,omitempty"`
	Raw     []byte        `json:"raw,omitempty"`
	Fields  []Field       `json:"fields,omitempty"`
}

// Int builds an integer value.
func Int(v int64) Value { return Value{Kind: KindInt, Int: v} }

// Float builds a floating-point value.
func Float(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// Bool builds a boolean value.
func Bool(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// Text builds a text value.
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// Raw builds an opaque byte value.
func Raw(b []byte) Value { return Value{Kind: KindRaw, Raw: b} }

// PointerTo builds a pointer to addr. Passing the null address yields the
// canonical null pointer for targetType.
func PointerTo(addr Address, targetType string) Value {
	if addr.IsNull() {
		return NullPointer(targetType)
	}
	return Value{Kind: KindPointer, Pointer: &PointerValue{Address: addr, TargetType: targetType}}
}

// NullPointer builds the canonical null pointer for targetType.
func NullPointer(targetType string) Value {
	return Value{Kind: KindPointer, Pointer: &PointerValue{TargetType: targetType, IsNull: true}}
}

// StructOf builds a struct value from ordered fields.
func StructOf(fields ...Field) Value {
	return Value{Kind: KindStruct, Fields: fields}
}

// IsNullPointer reports whether v is a pointer with the null flag set.
func (v Value) IsNullPointer() bool {
	return v.Kind == KindPointer && v.Pointer != nil && v.Pointer.IsNull
}

// Target returns the address a non-null pointer value points to. The
// second result is false for nulls and non-pointer values.
func (v Value) Target() (Address, bool) {
	if v.Kind != KindPointer || v.Pointer == nil || v.Pointer.IsNull {
		return NullAddress, false
	}
	return v.Pointer.Address, true
}

// FieldValue returns the named field of a struct value.
func (v Value) FieldValue(name string) (Value, bool) {
	if v.Kind != KindStruct {
		return Value{}, false
	}
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Equal reports deep structural equality between two values.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return v.Float == o.Float
	case KindBool:
		return v.Bool == o.Bool
	case KindText:
		return v.Text == o.Text
	case KindPointer:
		if v.Pointer == nil || o.Pointer == nil {
			return v.Pointer == o.Pointer
		}
		return *v.Pointer == *o.Pointer
	case KindRaw:
		return bytes.Equal(v.Raw, o.Raw)
	case KindStruct:
		if len(v.Fields) != len(o.Fields) {
			return false
		}
		for i := range v.Fields {
			if v.Fields[i].Name != o.Fields[i].Name {
				return false
			}
			if !v.Fields[i].Value.Equal(o.Fields[i].Value) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String renders the value in a compact ASCII form. Pointers render as
// "-> 0x1000" or "NULL"; structs render their fields in order.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindText:
		return strconv.Quote(v.Text)
	case KindPointer:
		if v.Pointer == nil || v.Pointer.IsNull {
			return "NULL"
		}
		return "-> " + v.Pointer.Address.String()
	case KindRaw:
		return fmt.Sprintf("raw[%d]", len(v.Raw))
	case KindStruct:
		var b strings.Builder
		b.WriteByte('{')
		for i, f := range v.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(": ")
			b.WriteString(f.Value.String())
		}
		b.WriteByte('}')
		return b.String()
	default:
		return "<invalid>"
	}
}
