package bytecode

import (
	"fmt"
	"math"
	"strconv"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindNull   ValueKind = 0
	KindBool   ValueKind = 1
	KindInt    ValueKind = 2
	KindFloat  ValueKind = 3
	KindString ValueKind = 4
)

// String returns a human-readable name for ValueKind.
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "str"
	default:
		return fmt.Sprintf("ValueKind(%d)", k)
	}
}

// Value is an immediate bytecode value. The zero Value is Null.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
}

// Null returns the Null value.
func Null() Value { return Value{} }

// Bool returns a Bool value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an Int value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a Float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a String value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the Bool payload. The second result is false for other kinds.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the Int payload.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the Float payload.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsString returns the String payload.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Equal reports structural equality: same variant and same payload.
// Floats compare by bit pattern, so NaN equals an identical NaN and
// 0.0 differs from -0.0.
func (v Value) Equal(o Value) bool {
	return v.key() == o.key()
}

// valueKey is a comparable projection of Value used for pool interning.
type valueKey struct {
	kind ValueKind
	bits uint64
	s    string
}

func (v Value) key() valueKey {
	k := valueKey{kind: v.kind}
	switch v.kind {
	case KindBool:
		if v.b {
			k.bits = 1
		}
	case KindInt:
		k.bits = uint64(v.i)
	case KindFloat:
		k.bits = math.Float64bits(v.f)
	case KindString:
		k.s = v.s
	}
	return k
}

// String renders the value the way the IR text form spells constants.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return "bool " + strconv.FormatBool(v.b)
	case KindInt:
		return "int " + strconv.FormatInt(v.i, 10)
	case KindFloat:
		return "float " + strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return "str " + strconv.Quote(v.s)
	default:
		return "null"
	}
}

// GoString implements fmt.GoStringer for test failure output.
func (v Value) GoString() string {
	return "bytecode.Value{" + v.String() + "}"
}
