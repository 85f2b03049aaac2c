package api

import (
	"fmt"

	"github.com/petrijr/wireflow/internal/xjson"
)

// NodeConfig is the loaded, immutable description of one flow node.
type NodeConfig struct {
	ID       ElementID
	Type     string
	Name     string
	FlowID   ElementID
	Disabled bool

	// Wires[port] lists the destination ids of that output port.
	Wires [][]ElementID

	// Raw is the original JSON record.
	Raw xjson.RawMessage
}

// Decode decodes the raw record into a node specific configuration struct.
func (c *NodeConfig) Decode(dst any) error {
	if len(c.Raw) == 0 {
		return nil
	}
	if err := xjson.Unmarshal(c.Raw, dst); err != nil {
		return fmt.Errorf("decode %s node %s: %w", c.Type, c.ID, err)
	}
	return nil
}

// GlobalNodeConfig describes a node that does not belong to any flow, such as
// a shared configuration node.
type GlobalNodeConfig struct {
	ID       ElementID
	Type     string
	Name     string
	Disabled bool
	Raw      xjson.RawMessage
}

// Decode decodes the raw record into dst.
func (c *GlobalNodeConfig) Decode(dst any) error {
	if len(c.Raw) == 0 {
		return nil
	}
	if err := xjson.Unmarshal(c.Raw, dst); err != nil {
		return fmt.Errorf("decode %s global node %s: %w", c.Type, c.ID, err)
	}
	return nil
}

// FlowConfig describes one flow ("tab"). Nodes are in topological order:
// a wire source always precedes its targets.
type FlowConfig struct {
	ID       ElementID
	Label    string
	Info     string
	Disabled bool
	Nodes    []NodeConfig
	Raw      xjson.RawMessage
}

// FlowSet is the result of loading a flow export.
type FlowSet struct {
	Flows   []FlowConfig
	Globals []GlobalNodeConfig
}

// Flow returns the flow with the given id.
func (s *FlowSet) Flow(id ElementID) (*FlowConfig, bool) {
	for i := range s.Flows {
		if s.Flows[i].ID == id {
			return &s.Flows[i], true
		}
	}
	return nil, false
}
