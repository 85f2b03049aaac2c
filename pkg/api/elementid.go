package api

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ElementID identifies flows, nodes and global nodes. It renders as 16
// lowercase hex digits.
type ElementID uint64

func (id ElementID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// IsZero reports whether id is the zero id.
func (id ElementID) IsZero() bool {
	return id == 0
}

// ParseElementID parses a hex id. Legacy ids of the form "xxxxxxxx.yyyyyy"
// are accepted by dropping the dot.
func ParseElementID(s string) (ElementID, error) {
	raw := strings.TrimSpace(s)
	if i := strings.IndexByte(raw, '.'); i > 0 && strings.Count(raw, ".") == 1 {
		raw = raw[:i] + raw[i+1:]
	}
	if raw == "" {
		return 0, fmt.Errorf("empty element id")
	}
	n, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid element id %q: %w", s, err)
	}
	return ElementID(n), nil
}

// ElementIDFromJSON converts a decoded JSON id (a hex string or a
// non-negative integer) into an ElementID.
func ElementIDFromJSON(v any) (ElementID, error) {
	switch t := v.(type) {
	case string:
		return ParseElementID(t)
	case interface{ Int64() (int64, error) }:
		s := fmt.Sprint(t)
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid element id %s: %w", s, err)
		}
		return ElementID(n), nil
	case float64:
		if t < 0 || t != math.Trunc(t) || t > math.MaxUint64 {
			return 0, fmt.Errorf("invalid element id %v", t)
		}
		return ElementID(uint64(t)), nil
	case nil:
		return 0, fmt.Errorf("missing element id")
	default:
		return 0, fmt.Errorf("invalid element id of type %T", v)
	}
}

func (id ElementID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ElementID) UnmarshalText(b []byte) error {
	parsed, err := ParseElementID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
