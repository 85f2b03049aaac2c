package variant

import (
	"bytes"
	"cmp"
	"math"
	"strings"
)

// Compare orders a and b. Values of different kinds are ordered by kind
// (Null < Number < String < Bool < Bytes < Array < Object). The second result
// is false when the values are not comparable, which only happens when a NaN
// is involved.
func Compare(a, b Variant) (int, bool) {
	ka, kb := KindOf(a), KindOf(b)
	if ka != kb {
		return cmp.Compare(ka, kb), true
	}

	switch x := a.(type) {
	case Number:
		y := b.(Number)
		if math.IsNaN(float64(x)) || math.IsNaN(float64(y)) {
			return 0, false
		}
		return cmp.Compare(x, y), true
	case String:
		return strings.Compare(string(x), string(b.(String))), true
	case Bool:
		y := b.(Bool)
		switch {
		case x == y:
			return 0, true
		case !bool(x):
			return -1, true
		default:
			return 1, true
		}
	case Bytes:
		return bytes.Compare(x, b.(Bytes)), true
	case Array:
		return compareArrays(x, b.(Array))
	case Object:
		return compareObjects(x, b.(Object))
	}
	// Null
	return 0, true
}

func compareArrays(x, y Array) (int, bool) {
	for i := 0; i < len(x) && i < len(y); i++ {
		c, ok := Compare(x[i], y[i])
		if !ok {
			return 0, false
		}
		if c != 0 {
			return c, true
		}
	}
	return cmp.Compare(len(x), len(y)), true
}

func compareObjects(x, y Object) (int, bool) {
	kx, ky := Keys(x), Keys(y)
	for i := 0; i < len(kx) && i < len(ky); i++ {
		if c := strings.Compare(kx[i], ky[i]); c != 0 {
			return c, true
		}
		c, ok := Compare(x[kx[i]], y[ky[i]])
		if !ok {
			return 0, false
		}
		if c != 0 {
			return c, true
		}
	}
	return cmp.Compare(len(kx), len(ky)), true
}

// Equal reports whether a and b are comparable and equal.
func Equal(a, b Variant) bool {
	c, ok := Compare(a, b)
	return ok && c == 0
}
