package vm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/velac/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Runtime values
// ---------------------------------------------------------------------------

// Value is a runtime value: a scalar from the constant-pool domain, an
// array, or an object. The zero Value is Null.
type Value struct {
	scalar bytecode.Value
	array  *Array
	object *Object
}

// Array is a growable, reference-semantics array.
type Array struct {
	Elems []Value
}

// Object is an instance with named fields.
type Object struct {
	Class  string
	Fields map[string]Value
}

// Scalar wraps a pool value.
func Scalar(v bytecode.Value) Value { return Value{scalar: v} }

// Null returns the null value.
func Null() Value { return Value{} }

// Int returns an Int value.
func Int(i int64) Value { return Scalar(bytecode.Int(i)) }

// Float returns a Float value.
func Float(f float64) Value { return Scalar(bytecode.Float(f)) }

// Bool returns a Bool value.
func Bool(b bool) Value { return Scalar(bytecode.Bool(b)) }

// String returns a String value.
func String(s string) Value { return Scalar(bytecode.String(s)) }

// ArrayOf wraps an array.
func ArrayOf(a *Array) Value { return Value{array: a} }

// ObjectOf wraps an object.
func ObjectOf(o *Object) Value { return Value{object: o} }

// Scalar returns the pool value and true if v is not an array or object.
func (v Value) Scalar() (bytecode.Value, bool) {
	return v.scalar, v.array == nil && v.object == nil
}

// Array returns the array and true if v is one.
func (v Value) Array() (*Array, bool) { return v.array, v.array != nil }

// Object returns the object and true if v is one.
func (v Value) Object() (*Object, bool) { return v.object, v.object != nil }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool {
	s, ok := v.Scalar()
	return ok && s.IsNull()
}

// TypeName names v's dynamic type for diagnostics.
func (v Value) TypeName() string {
	switch {
	case v.array != nil:
		return "array"
	case v.object != nil:
		return "object"
	}
	return v.scalar.Kind().String()
}

// Same reports whether a and b are the same value: structurally equal
// scalars, or the identical array or object. Floats compare bitwise.
func (v Value) Same(o Value) bool {
	if v.array != nil || o.array != nil {
		return v.array == o.array
	}
	if v.object != nil || o.object != nil {
		return v.object == o.object
	}
	return v.scalar.Equal(o.scalar)
}

func (v Value) String() string {
	switch {
	case v.array != nil:
		parts := make([]string, len(v.array.Elems))
		for i, e := range v.array.Elems {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case v.object != nil:
		names := make([]string, 0, len(v.object.Fields))
		for n := range v.object.Fields {
			names = append(names, n)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, n := range names {
			parts[i] = fmt.Sprintf("%s: %s", n, v.object.Fields[n])
		}
		return v.object.Class + "{" + strings.Join(parts, ", ") + "}"
	}
	return v.scalar.String()
}
