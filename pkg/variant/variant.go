// Package variant implements the dynamic value model carried by messages.
//
// A Variant is one of Null, Number, String, Bool, Bytes, Array or Object.
// A nil Variant interface is treated as Null by every function in this
// package.
package variant

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrPathNotFound is returned when a path cannot be resolved and
	// intermediate values may not be created.
	ErrPathNotFound = errors.New("variant: path not found")

	// ErrTypeMismatch is returned when a path segment cannot be applied to
	// the value it addresses (for example an integer index on an object).
	ErrTypeMismatch = errors.New("variant: type mismatch")
)

// Kind identifies the concrete type of a Variant.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
	KindBytes
	KindArray
	KindObject
)

var kindNames = [...]string{
	KindNull:   "null",
	KindNumber: "number",
	KindString: "string",
	KindBool:   "boolean",
	KindBytes:  "buffer",
	KindArray:  "array",
	KindObject: "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Variant is the tagged union of all supported value kinds.
type Variant interface {
	Kind() Kind
}

type (
	Null   struct{}
	Number float64
	String string
	Bool   bool
	Bytes  []byte
	Array  []Variant
	Object map[string]Variant
)

func (Null) Kind() Kind   { return KindNull }
func (Number) Kind() Kind { return KindNumber }
func (String) Kind() Kind { return KindString }
func (Bool) Kind() Kind   { return KindBool }
func (Bytes) Kind() Kind  { return KindBytes }
func (Array) Kind() Kind  { return KindArray }
func (Object) Kind() Kind { return KindObject }

// KindOf returns the kind of v, treating nil as Null.
func KindOf(v Variant) Kind {
	if v == nil {
		return KindNull
	}
	return v.Kind()
}

// TypeName returns the Node-RED style type name of v.
func TypeName(v Variant) string {
	return KindOf(v).String()
}

// Of converts a plain Go value into a Variant. Maps, slices and numbers of
// any width are accepted; values of unknown types become their fmt string.
func Of(x any) Variant {
	switch t := x.(type) {
	case nil:
		return Null{}
	case Variant:
		return t
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case []byte:
		return Bytes(append([]byte(nil), t...))
	case float64:
		return Number(t)
	case float32:
		return Number(t)
	case int:
		return Number(t)
	case int8:
		return Number(t)
	case int16:
		return Number(t)
	case int32:
		return Number(t)
	case int64:
		return Number(t)
	case uint:
		return Number(t)
	case uint8:
		return Number(t)
	case uint16:
		return Number(t)
	case uint32:
		return Number(t)
	case uint64:
		return Number(t)
	case numberLiteral:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(f)
	case []any:
		arr := make(Array, len(t))
		for i, e := range t {
			arr[i] = Of(e)
		}
		return arr
	case []Variant:
		return Array(t)
	case map[string]any:
		obj := make(Object, len(t))
		for k, e := range t {
			obj[k] = Of(e)
		}
		return obj
	case map[string]Variant:
		return Object(t)
	default:
		return String(fmt.Sprint(t))
	}
}

// numberLiteral matches json.Number from both encoding/json and goccy/go-json.
type numberLiteral interface {
	Float64() (float64, error)
	String() string
}

// NewObject returns an empty object.
func NewObject() Object {
	return Object{}
}

// IsNull reports whether v is Null (or nil).
func IsNull(v Variant) bool {
	return KindOf(v) == KindNull
}

// AsNumber returns the number held by v.
func AsNumber(v Variant) (float64, bool) {
	n, ok := v.(Number)
	return float64(n), ok
}

// AsInt returns the number held by v if it is integral.
func AsInt(v Variant) (int64, bool) {
	n, ok := v.(Number)
	if !ok || math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) || math.Trunc(float64(n)) != float64(n) {
		return 0, false
	}
	return int64(n), true
}

// AsString returns the string held by v.
func AsString(v Variant) (string, bool) {
	s, ok := v.(String)
	return string(s), ok
}

// AsBool returns the boolean held by v.
func AsBool(v Variant) (bool, bool) {
	b, ok := v.(Bool)
	return bool(b), ok
}

// AsBytes returns the bytes held by v.
func AsBytes(v Variant) ([]byte, bool) {
	b, ok := v.(Bytes)
	return []byte(b), ok
}

// AsArray returns the elements held by v.
func AsArray(v Variant) (Array, bool) {
	a, ok := v.(Array)
	return a, ok
}

// AsObject returns the map held by v.
func AsObject(v Variant) (Object, bool) {
	o, ok := v.(Object)
	return o, ok
}

// ToBytes converts Bytes, String, or an Array of numbers in 0..255 into a
// byte slice.
func ToBytes(v Variant) ([]byte, bool) {
	switch t := v.(type) {
	case Bytes:
		return []byte(t), true
	case String:
		return []byte(t), true
	case Array:
		out := make([]byte, len(t))
		for i, e := range t {
			n, ok := AsInt(e)
			if !ok || n < 0 || n > 0xFF {
				return nil, false
			}
			out[i] = byte(n)
		}
		return out, true
	}
	return nil, false
}

// Len returns the length of a container value.
func Len(v Variant) (int, bool) {
	switch t := v.(type) {
	case String:
		return len(t), true
	case Bytes:
		return len(t), true
	case Array:
		return len(t), true
	case Object:
		return len(t), true
	}
	return 0, false
}

// IsEmpty reports whether a String, Bytes, Array or Object has length 0.
// It returns false for every other kind.
func IsEmpty(v Variant) bool {
	n, ok := Len(v)
	return ok && n == 0
}

// Clone returns a deep copy of v.
func Clone(v Variant) Variant {
	switch t := v.(type) {
	case nil:
		return Null{}
	case Bytes:
		return Bytes(append([]byte(nil), t...))
	case Array:
		out := make(Array, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	case Object:
		out := make(Object, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	default:
		return v
	}
}
