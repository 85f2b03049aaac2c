// Package loader turns a Node-RED style flow export into api.FlowSet
// configuration records with every flow's nodes in dependency order.
package loader

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/petrijr/wireflow/internal/xjson"
	"github.com/petrijr/wireflow/pkg/api"
)

const (
	typeTab     = "tab"
	typeComment = "comment"
	typeGroup   = "group"
)

// record is one classified element of the export.
type record struct {
	id       api.ElementID
	typ      string
	name     string
	z        api.ElementID
	hasZ     bool
	disabled bool
	wires    [][]api.ElementID
	fields   map[string]any
	raw      xjson.RawMessage
}

// LoadFile reads and loads a flow export from path.
func LoadFile(path string) (*api.FlowSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flows file: %w", err)
	}
	return Load(data)
}

// Load parses a flow export. On any error nothing is returned.
func Load(data []byte) (*api.FlowSet, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: the root must be an array", api.ErrBadFlowsJSON)
	}

	var elems []xjson.RawMessage
	if err := xjson.Unmarshal(trimmed, &elems); err != nil {
		return nil, fmt.Errorf("%w: %w", api.ErrBadFlowsJSON, err)
	}

	var (
		tabs    []*record
		nodes   []*record
		globals []*record
		seen    = make(map[api.ElementID]int, len(elems))
	)
	for i, raw := range elems {
		rec, err := parseRecord(i, raw)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[rec.id]; dup {
			return nil, fmt.Errorf("%w: element %d duplicates id %s of element %d", api.ErrBadFlowsJSON, i, rec.id, prev)
		}
		seen[rec.id] = i

		switch {
		case rec.typ == typeTab:
			tabs = append(tabs, rec)
		case rec.typ == typeComment || rec.typ == typeGroup:
		case rec.hasZ:
			nodes = append(nodes, rec)
		default:
			globals = append(globals, rec)
		}
	}

	sorted, err := sortNodes(nodes)
	if err != nil {
		return nil, err
	}

	set := &api.FlowSet{
		Flows:   make([]api.FlowConfig, 0, len(tabs)),
		Globals: make([]api.GlobalNodeConfig, 0, len(globals)),
	}
	byTab := make(map[api.ElementID]int, len(tabs))
	for _, tab := range tabs {
		byTab[tab.id] = len(set.Flows)
		set.Flows = append(set.Flows, api.FlowConfig{
			ID:       tab.id,
			Label:    stringField(tab.fields, "label"),
			Info:     stringField(tab.fields, "info"),
			Disabled: tab.disabled,
			Raw:      tab.raw,
		})
	}

	for _, n := range sorted {
		fi, ok := byTab[n.z]
		if !ok {
			return nil, fmt.Errorf("%w: node %s (%s) references unknown flow %s", api.ErrBadFlowsJSON, n.id, n.typ, n.z)
		}
		set.Flows[fi].Nodes = append(set.Flows[fi].Nodes, api.NodeConfig{
			ID:       n.id,
			Type:     n.typ,
			Name:     n.name,
			FlowID:   n.z,
			Disabled: n.disabled,
			Wires:    n.wires,
			Raw:      n.raw,
		})
	}

	for _, g := range globals {
		set.Globals = append(set.Globals, api.GlobalNodeConfig{
			ID:       g.id,
			Type:     g.typ,
			Name:     g.name,
			Disabled: g.disabled,
			Raw:      g.raw,
		})
	}
	return set, nil
}

func parseRecord(i int, raw xjson.RawMessage) (*record, error) {
	var fields map[string]any
	if err := xjson.UnmarshalNumbers(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: element %d is not an object", api.ErrBadFlowsJSON, i)
	}

	id, err := api.ElementIDFromJSON(fields["id"])
	if err != nil {
		return nil, fmt.Errorf("%w: element %d: %w", api.ErrBadFlowsJSON, i, err)
	}
	typ, _ := fields["type"].(string)
	if typ == "" {
		return nil, fmt.Errorf("%w: element %d (%s) has no type", api.ErrBadFlowsJSON, i, id)
	}

	rec := &record{
		id:       id,
		typ:      typ,
		name:     stringField(fields, "name"),
		disabled: boolField(fields, "d") || boolField(fields, "disabled"),
		fields:   fields,
		raw:      raw,
	}

	if z, ok := fields["z"]; ok && z != nil && z != "" {
		if rec.z, err = api.ElementIDFromJSON(z); err != nil {
			return nil, fmt.Errorf("%w: element %d (%s) flow reference: %w", api.ErrBadFlowsJSON, i, id, err)
		}
		rec.hasZ = true
	}

	if rec.wires, err = parseWires(fields["wires"]); err != nil {
		return nil, fmt.Errorf("%w: element %d (%s) wires: %w", api.ErrBadFlowsJSON, i, id, err)
	}
	return rec, nil
}

func parseWires(v any) ([][]api.ElementID, error) {
	if v == nil {
		return nil, nil
	}
	ports, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array of ports")
	}
	out := make([][]api.ElementID, len(ports))
	for p, port := range ports {
		targets, ok := port.([]any)
		if !ok {
			return nil, fmt.Errorf("port %d is not an array", p)
		}
		out[p] = make([]api.ElementID, 0, len(targets))
		for _, t := range targets {
			id, err := api.ElementIDFromJSON(t)
			if err != nil {
				return nil, fmt.Errorf("port %d: %w", p, err)
			}
			out[p] = append(out[p], id)
		}
	}
	return out, nil
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func boolField(fields map[string]any, key string) bool {
	b, _ := fields[key].(bool)
	return b
}

func formatIDs(recs []*record) string {
	parts := make([]string, len(recs))
	for i, r := range recs {
		parts[i] = r.id.String()
	}
	return strings.Join(parts, ", ")
}
