package api

import (
	"fmt"
	"sync/atomic"

	"github.com/petrijr/wireflow/internal/xjson"
	"github.com/petrijr/wireflow/pkg/propex"
	"github.com/petrijr/wireflow/pkg/variant"
)

// PayloadKey is the canonical message property.
const PayloadKey = "payload"

// MsgID uniquely identifies a message within the process.
type MsgID uint64

func (id MsgID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

var msgSeq atomic.Uint64

// NextMsgID returns a fresh, monotonically increasing message id.
func NextMsgID() MsgID {
	return MsgID(msgSeq.Add(1))
}

// Msg is the unit of data exchanged between nodes. A Msg has a single owner
// at any time; fan-out hands the original to the first receiver and clones
// for the rest.
type Msg struct {
	id         MsgID
	birthPlace ElementID
	body       variant.Object
}

// NewMsg creates a message born at the given node. A nil body is replaced
// by an empty object.
func NewMsg(birthPlace ElementID, body variant.Object) *Msg {
	if body == nil {
		body = variant.Object{}
	}
	return &Msg{id: NextMsgID(), birthPlace: birthPlace, body: body}
}

// NewMsgWithPayload creates a message whose body holds only payload. Plain Go
// values are converted with variant.Of.
func NewMsgWithPayload(birthPlace ElementID, payload any) *Msg {
	return NewMsg(birthPlace, variant.Object{PayloadKey: variant.Of(payload)})
}

func (m *Msg) ID() MsgID             { return m.id }
func (m *Msg) BirthPlace() ElementID { return m.birthPlace }

// Body exposes the message properties. Callers own the message and may
// mutate the returned map.
func (m *Msg) Body() variant.Object { return m.body }

// Get returns a top-level property.
func (m *Msg) Get(key string) (variant.Variant, bool) {
	v, ok := m.body[key]
	return v, ok
}

// Set stores a top-level property.
func (m *Msg) Set(key string, v variant.Variant) {
	m.body[key] = variant.Of(v)
}

// Payload returns msg.payload or Null when it is unset.
func (m *Msg) Payload() variant.Variant {
	if v, ok := m.body[PayloadKey]; ok && v != nil {
		return v
	}
	return variant.Null{}
}

func (m *Msg) SetPayload(v variant.Variant) {
	m.Set(PayloadKey, v)
}

// GetNav resolves a property expression such as "payload.items[0]".
func (m *Msg) GetNav(expr string) (variant.Variant, bool, error) {
	segs, err := navSegments(expr)
	if err != nil {
		return nil, false, err
	}
	return variant.Lookup(m.body, segs)
}

// SetNav stores v at the property expression. With create set, missing
// intermediate objects and arrays are created.
func (m *Msg) SetNav(expr string, v variant.Variant, create bool) error {
	segs, err := navSegments(expr)
	if err != nil {
		return err
	}
	root, err := variant.Assign(m.body, segs, variant.Of(v), create)
	if err != nil {
		return fmt.Errorf("set msg.%s: %w", expr, err)
	}
	m.body = root.(variant.Object)
	return nil
}

// DeleteNav removes the property addressed by expr.
func (m *Msg) DeleteNav(expr string) (bool, error) {
	segs, err := navSegments(expr)
	if err != nil {
		return false, err
	}
	root, removed := variant.Remove(m.body, segs)
	m.body = root.(variant.Object)
	return removed, nil
}

func navSegments(expr string) ([]propex.Segment, error) {
	segs, err := propex.Parse(expr)
	if err != nil {
		return nil, err
	}
	if segs[0].Kind != propex.StringIndex {
		return nil, fmt.Errorf("%w: message property %q must start with a name", ErrInvalidOperation, expr)
	}
	return segs, nil
}

// Clone returns a deep copy. The copy keeps the message id so that a
// message can be traced across a fan-out.
func (m *Msg) Clone() *Msg {
	return &Msg{
		id:         m.id,
		birthPlace: m.birthPlace,
		body:       variant.Clone(m.body).(variant.Object),
	}
}

// ToVariant returns the body as an object including "_msgid".
func (m *Msg) ToVariant() variant.Object {
	out := variant.Clone(m.body).(variant.Object)
	out["_msgid"] = variant.String(m.id.String())
	return out
}

func (m *Msg) MarshalJSON() ([]byte, error) {
	return xjson.Marshal(variant.ToJSON(m.ToVariant()))
}
