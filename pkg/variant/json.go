package variant

import (
	"sort"
	"strconv"

	json "github.com/petrijr/wireflow/internal/xjson"
)

// FromJSON converts a decoded generic JSON value into a Variant. Integers
// become float-backed Numbers.
func FromJSON(x any) Variant {
	return Of(x)
}

// ToJSON converts v into a generic JSON value suitable for json.Marshal.
// Bytes are rendered the way Node-RED renders buffers.
func ToJSON(v Variant) any {
	switch t := v.(type) {
	case nil, Null:
		return nil
	case Number:
		return float64(t)
	case String:
		return string(t)
	case Bool:
		return bool(t)
	case Bytes:
		data := make([]any, len(t))
		for i, b := range t {
			data[i] = float64(b)
		}
		return map[string]any{"type": "Buffer", "data": data}
	case Array:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = ToJSON(e)
		}
		return out
	case Object:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = ToJSON(e)
		}
		return out
	}
	return nil
}

// Parse decodes a JSON document into a Variant.
func Parse(data []byte) (Variant, error) {
	var x any
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, err
	}
	return FromJSON(x), nil
}

// Marshal encodes v as JSON. Object keys are emitted in sorted order.
func Marshal(v Variant) ([]byte, error) {
	return json.Marshal(ToJSON(v))
}

// Format renders v for logs. It never fails; unencodable numbers such as
// NaN are rendered with strconv.
func Format(v Variant) string {
	if n, ok := v.(Number); ok {
		return strconv.FormatFloat(float64(n), 'g', -1, 64)
	}
	b, err := Marshal(v)
	if err != nil {
		return "<" + TypeName(v) + ">"
	}
	return string(b)
}

// Keys returns the keys of an object in sorted order.
func Keys(o Object) []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
