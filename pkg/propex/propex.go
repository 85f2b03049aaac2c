// Package propex parses property expressions such as `payload.items[0]['name']`
// into an ordered list of segments that can be used to walk a variant tree.
package propex

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrBadSyntax is returned for malformed expressions.
	ErrBadSyntax = errors.New("propex: bad syntax")

	// ErrBadArguments is returned for empty expressions or segment lists.
	ErrBadArguments = errors.New("propex: bad arguments")

	// ErrInvalidDigit is returned when a bracketed index is not a valid
	// non-negative integer.
	ErrInvalidDigit = errors.New("propex: invalid digit")
)

// SegmentKind tells integer and string segments apart.
type SegmentKind uint8

const (
	StringIndex SegmentKind = iota
	IntegerIndex
)

// Segment is one step of a parsed expression.
type Segment struct {
	Kind  SegmentKind
	Key   string
	Index int
}

// Key returns a string segment.
func Key(k string) Segment {
	return Segment{Kind: StringIndex, Key: k}
}

// Index returns an integer segment.
func Index(i int) Segment {
	return Segment{Kind: IntegerIndex, Index: i}
}

func (s Segment) String() string {
	if s.Kind == IntegerIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return strconv.Quote(s.Key)
}

// Parse splits expr into segments.
func Parse(expr string) ([]Segment, error) {
	p := parser{expr: strings.Trim(expr, " \t")}
	if p.expr == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrBadArguments)
	}
	return p.parse()
}

// MustParse is like Parse but panics on error.
func MustParse(expr string) []Segment {
	segs, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return segs
}

// Format renders segments back into a normalised expression.
func Format(segs []Segment) string {
	var sb strings.Builder
	for i, s := range segs {
		switch {
		case s.Kind == IntegerIndex:
			sb.WriteString("[")
			sb.WriteString(strconv.Itoa(s.Index))
			sb.WriteString("]")
		case isIdentifier(s.Key):
			if i > 0 {
				sb.WriteByte('.')
			}
			sb.WriteString(s.Key)
		default:
			quote := byte('"')
			if strings.ContainsRune(s.Key, '"') {
				quote = '\''
			}
			sb.WriteByte('[')
			sb.WriteByte(quote)
			sb.WriteString(s.Key)
			sb.WriteByte(quote)
			sb.WriteByte(']')
		}
	}
	return sb.String()
}

type parser struct {
	expr string
	pos  int
}

func (p *parser) parse() ([]Segment, error) {
	var segs []Segment
	for p.pos < len(p.expr) {
		c := p.expr[p.pos]
		switch {
		case c == '.':
			if len(segs) == 0 {
				return nil, p.syntaxError("expression must not start with '.'")
			}
			p.pos++
			if p.pos >= len(p.expr) || !isIdentStart(p.expr[p.pos]) {
				return nil, p.syntaxError("expected property name after '.'")
			}
			segs = append(segs, p.identifier())
		case c == '[':
			seg, err := p.bracket()
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
		case isIdentStart(c):
			if len(segs) > 0 {
				return nil, p.syntaxError("missing '.' between properties")
			}
			segs = append(segs, p.identifier())
		default:
			return nil, p.syntaxError(fmt.Sprintf("unexpected character %q", c))
		}
	}
	return segs, nil
}

func (p *parser) identifier() Segment {
	start := p.pos
	for p.pos < len(p.expr) && isIdentPart(p.expr[p.pos]) {
		p.pos++
	}
	return Key(p.expr[start:p.pos])
}

func (p *parser) bracket() (Segment, error) {
	p.pos++ // '['
	p.skipWhitespace()
	if p.pos >= len(p.expr) {
		return Segment{}, p.syntaxError("unterminated '['")
	}

	var seg Segment
	switch q := p.expr[p.pos]; q {
	case '\'', '"':
		p.pos++
		end := strings.IndexByte(p.expr[p.pos:], q)
		if end < 0 {
			return Segment{}, p.syntaxError("unmatched string quotation")
		}
		seg = Key(p.expr[p.pos : p.pos+end])
		p.pos += end + 1
	default:
		start := p.pos
		for p.pos < len(p.expr) && isDigit(p.expr[p.pos]) {
			p.pos++
		}
		if start == p.pos {
			return Segment{}, fmt.Errorf("%w: expected index at position %d", ErrInvalidDigit, start)
		}
		n, err := strconv.Atoi(p.expr[start:p.pos])
		if err != nil {
			return Segment{}, fmt.Errorf("%w: %q", ErrInvalidDigit, p.expr[start:p.pos])
		}
		seg = Index(n)
	}

	p.skipWhitespace()
	if p.pos >= len(p.expr) || p.expr[p.pos] != ']' {
		return Segment{}, p.syntaxError("unmatched ']'")
	}
	p.pos++
	return seg, nil
}

func (p *parser) skipWhitespace() {
	for p.pos < len(p.expr) && (p.expr[p.pos] == ' ' || p.expr[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) syntaxError(msg string) error {
	return fmt.Errorf("%w: %s at position %d in %q", ErrBadSyntax, msg, p.pos, p.expr)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return true
}
