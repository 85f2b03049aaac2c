package wireflow

import (
	"fmt"
	"maps"

	"github.com/petrijr/wireflow/internal/loader"
	"github.com/petrijr/wireflow/internal/xjson"
	"github.com/petrijr/wireflow/pkg/api"
)

// FlowBuilder provides a fluent API for writing flow exports from Go:
//
//	flow := wireflow.New("100", "main").
//	    Node("1", "inject", wireflow.Props{"payload": "hi", "payloadType": "str"}).
//	    Node("2", "debug", nil).
//	    Wire("1", 0, "2")
//
//	set, err := wireflow.Build(flow)
//
// Ids are hex strings, as in exports written by the editor.
type FlowBuilder struct {
	id       string
	label    string
	disabled bool
	nodes    []*nodeRecord
	byID     map[string]*nodeRecord
}

// Props holds the type specific fields of a node record.
type Props map[string]any

type nodeRecord struct {
	id       string
	typ      string
	name     string
	disabled bool
	props    Props
	wires    [][]string
}

// New creates a builder for one flow ("tab").
func New(id, label string) *FlowBuilder {
	if id == "" {
		panic("wireflow: flow id must not be empty")
	}
	return &FlowBuilder{id: id, label: label, byID: make(map[string]*nodeRecord)}
}

// ID returns the flow id.
func (b *FlowBuilder) ID() string {
	return b.id
}

// Disabled marks the flow as disabled; none of its nodes will start.
func (b *FlowBuilder) Disabled() *FlowBuilder {
	b.disabled = true
	return b
}

// Node appends a node. props are copied.
func (b *FlowBuilder) Node(id, typ string, props Props) *FlowBuilder {
	if id == "" || typ == "" {
		panic("wireflow: node id and type must not be empty")
	}
	if _, dup := b.byID[id]; dup {
		panic(fmt.Sprintf("wireflow: node %q added twice", id))
	}
	n := &nodeRecord{id: id, typ: typ, props: maps.Clone(props)}
	if name, ok := props["name"].(string); ok {
		n.name = name
	}
	b.nodes = append(b.nodes, n)
	b.byID[id] = n
	return b
}

// DisableNode marks a previously added node as disabled.
func (b *FlowBuilder) DisableNode(id string) *FlowBuilder {
	b.mustNode(id).disabled = true
	return b
}

// Wire connects output port of from to the node to. Ports are created on
// demand, so wiring port 2 of a node gives it at least three ports.
func (b *FlowBuilder) Wire(from string, port int, to string) *FlowBuilder {
	if port < 0 {
		panic(fmt.Sprintf("wireflow: negative port %d", port))
	}
	n := b.mustNode(from)
	for len(n.wires) <= port {
		n.wires = append(n.wires, []string{})
	}
	n.wires[port] = append(n.wires[port], to)
	return b
}

// Ports gives a node n output ports even if some stay unwired.
func (b *FlowBuilder) Ports(id string, n int) *FlowBuilder {
	node := b.mustNode(id)
	for len(node.wires) < n {
		node.wires = append(node.wires, []string{})
	}
	return b
}

func (b *FlowBuilder) mustNode(id string) *nodeRecord {
	n, ok := b.byID[id]
	if !ok {
		panic(fmt.Sprintf("wireflow: unknown node %q", id))
	}
	return n
}

func (b *FlowBuilder) records() []map[string]any {
	out := make([]map[string]any, 0, len(b.nodes)+1)
	out = append(out, map[string]any{
		"id":       b.id,
		"type":     "tab",
		"label":    b.label,
		"disabled": b.disabled,
	})
	for _, n := range b.nodes {
		rec := make(map[string]any, len(n.props)+6)
		maps.Copy(rec, n.props)
		rec["id"] = n.id
		rec["type"] = n.typ
		rec["z"] = b.id
		rec["name"] = n.name
		rec["d"] = n.disabled
		wires := n.wires
		if wires == nil {
			wires = [][]string{}
		}
		rec["wires"] = wires
		out = append(out, rec)
	}
	return out
}

// Export renders flows as a flow export document.
func Export(flows ...*FlowBuilder) ([]byte, error) {
	var recs []map[string]any
	for _, f := range flows {
		recs = append(recs, f.records()...)
	}
	if recs == nil {
		recs = []map[string]any{}
	}
	return xjson.Marshal(recs)
}

// Build exports flows and loads the result, applying the same checks as a
// file loaded from disk.
func Build(flows ...*FlowBuilder) (*api.FlowSet, error) {
	data, err := Export(flows...)
	if err != nil {
		return nil, err
	}
	return loader.Load(data)
}

// MustBuild is like Build but panics on error.
// Useful for tests and examples.
func MustBuild(flows ...*FlowBuilder) *api.FlowSet {
	set, err := Build(flows...)
	if err != nil {
		panic(err)
	}
	return set
}
