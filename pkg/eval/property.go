// Package eval resolves typed node properties ("str", "num", "msg", "env",
// ...) into variants. Constant types are evaluated once when the property is
// created; runtime types are evaluated per message by an Evaluator.
package eval

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/petrijr/wireflow/pkg/api"
	"github.com/petrijr/wireflow/pkg/propex"
	"github.com/petrijr/wireflow/pkg/variant"
)

// PropertyType is the "xxxType" companion field of a node property.
type PropertyType string

const (
	TypeStr     PropertyType = "str"
	TypeNum     PropertyType = "num"
	TypeJSON    PropertyType = "json"
	TypeRe      PropertyType = "re"
	TypeDate    PropertyType = "date"
	TypeBin     PropertyType = "bin"
	TypeMsg     PropertyType = "msg"
	TypeFlow    PropertyType = "flow"
	TypeGlobal  PropertyType = "global"
	TypeBool    PropertyType = "bool"
	TypeJSONata PropertyType = "jsonata"
	TypeEnv     PropertyType = "env"
)

// ParsePropertyType validates a type name. An empty name means "str".
func ParsePropertyType(s string) (PropertyType, error) {
	switch t := PropertyType(s); t {
	case "":
		return TypeStr, nil
	case TypeStr, TypeNum, TypeJSON, TypeRe, TypeDate, TypeBin,
		TypeMsg, TypeFlow, TypeGlobal, TypeBool, TypeJSONata, TypeEnv:
		return t, nil
	default:
		return "", fmt.Errorf("%w: property type %q", api.ErrNotSupported, s)
	}
}

// IsConstant reports whether values of this type are fixed at load time.
func (t PropertyType) IsConstant() bool {
	switch t {
	case TypeStr, TypeNum, TypeJSON, TypeRe, TypeBin, TypeBool:
		return true
	}
	return false
}

// Property is a typed node property ready for evaluation.
type Property struct {
	Type PropertyType
	// Source is the raw text of the property: the literal for constants,
	// the key, variable name or expression otherwise.
	Source string

	value variant.Variant
	re    *regexp.Regexp
	segs  []propex.Segment
}

// NewProperty prepares raw, which may be a JSON string, number or boolean,
// for evaluation as typ.
func NewProperty(raw any, typ PropertyType) (Property, error) {
	typ, err := ParsePropertyType(string(typ))
	if err != nil {
		return Property{}, err
	}

	v := variant.Of(raw)
	p := Property{Type: typ, Source: sourceText(v)}

	switch typ {
	case TypeStr:
		p.value = variant.String(p.Source)
	case TypeNum:
		if n, ok := v.(variant.Number); ok {
			p.value = n
			break
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(p.Source), 64)
		if err != nil {
			return Property{}, fmt.Errorf("invalid num property %q: %w", p.Source, err)
		}
		p.value = variant.Number(f)
	case TypeJSON:
		switch v.(type) {
		case variant.Object, variant.Array:
			p.value = v
		default:
			parsed, err := variant.Parse([]byte(p.Source))
			if err != nil {
				return Property{}, fmt.Errorf("invalid json property: %w", err)
			}
			p.value = parsed
		}
	case TypeRe:
		re, err := regexp.Compile(p.Source)
		if err != nil {
			return Property{}, fmt.Errorf("invalid re property %q: %w", p.Source, err)
		}
		p.re = re
		p.value = variant.String(p.Source)
	case TypeBin:
		b, err := parseBin(v, p.Source)
		if err != nil {
			return Property{}, err
		}
		p.value = variant.Bytes(b)
	case TypeBool:
		if b, ok := v.(variant.Bool); ok {
			p.value = b
			break
		}
		b, err := strconv.ParseBool(strings.TrimSpace(p.Source))
		if err != nil {
			return Property{}, fmt.Errorf("invalid bool property %q: %w", p.Source, err)
		}
		p.value = variant.Bool(b)
	case TypeMsg, TypeFlow, TypeGlobal:
		segs, err := propex.Parse(p.Source)
		if err != nil {
			return Property{}, fmt.Errorf("invalid %s property %q: %w", typ, p.Source, err)
		}
		p.segs = segs
	}
	return p, nil
}

// MustProperty is like NewProperty but panics on error.
func MustProperty(raw any, typ PropertyType) Property {
	p, err := NewProperty(raw, typ)
	if err != nil {
		panic(err)
	}
	return p
}

func sourceText(v variant.Variant) string {
	if s, ok := v.(variant.String); ok {
		return string(s)
	}
	if variant.IsNull(v) {
		return ""
	}
	return variant.Format(v)
}

func parseBin(v variant.Variant, src string) ([]byte, error) {
	if b, ok := variant.ToBytes(v); ok {
		if _, isStr := v.(variant.String); !isStr {
			return b, nil
		}
	}
	parsed, err := variant.Parse([]byte(src))
	if err != nil {
		return nil, fmt.Errorf("invalid bin property: %w", err)
	}
	b, ok := variant.ToBytes(parsed)
	if !ok {
		return nil, fmt.Errorf("invalid bin property: expected an array of bytes, got %s", variant.TypeName(parsed))
	}
	return b, nil
}

// IsConstant reports whether the property was resolved at load time.
func (p Property) IsConstant() bool {
	return p.Type.IsConstant()
}

// Constant returns the value of a constant property.
func (p Property) Constant() (variant.Variant, bool) {
	if !p.IsConstant() || p.value == nil {
		return nil, false
	}
	return p.value, true
}

// Regexp returns the compiled expression of an "re" property.
func (p Property) Regexp() *regexp.Regexp {
	return p.re
}

// Segments returns the parsed path of msg, flow and global properties.
func (p Property) Segments() []propex.Segment {
	return p.segs
}
