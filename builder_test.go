package wireflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/wireflow/internal/xjson"
)

func TestFlowBuilder_Export(t *testing.T) {
	data, err := Export(New("100", "main").
		Node("1", "inject", Props{"name": "tick", "repeat": "5"}).
		Node("2", "debug", nil).
		Wire("1", 0, "2").
		Ports("2", 1))
	require.NoError(t, err)

	var recs []map[string]any
	require.NoError(t, xjson.Unmarshal(data, &recs))
	require.Len(t, recs, 3)

	require.Equal(t, "tab", recs[0]["type"])
	require.Equal(t, "main", recs[0]["label"])

	require.Equal(t, "inject", recs[1]["type"])
	require.Equal(t, "tick", recs[1]["name"])
	require.Equal(t, "100", recs[1]["z"])
	require.Equal(t, "5", recs[1]["repeat"])
	require.Equal(t, []any{[]any{"2"}}, recs[1]["wires"])

	require.Equal(t, []any{[]any{}}, recs[2]["wires"])
}

func TestFlowBuilder_Build(t *testing.T) {
	set, err := Build(
		New("100", "a").
			Node("1", "inject", nil).
			Node("2", "switch", nil).
			Node("3", "debug", nil).
			Wire("1", 0, "2").
			Wire("2", 2, "3").
			DisableNode("3"),
		New("200", "b").Disabled(),
	)
	require.NoError(t, err)
	require.Len(t, set.Flows, 2)

	a := set.Flows[0]
	require.Equal(t, "a", a.Label)
	require.Len(t, a.Nodes, 3)
	require.Len(t, a.Nodes[1].Wires, 3)
	require.Empty(t, a.Nodes[1].Wires[0])
	require.Equal(t, ElementID(3), a.Nodes[1].Wires[2][0])
	require.True(t, a.Nodes[2].Disabled)

	require.True(t, set.Flows[1].Disabled)
	require.Empty(t, set.Flows[1].Nodes)
}

func TestFlowBuilder_BuildRejectsCycle(t *testing.T) {
	_, err := Build(New("100", "a").
		Node("1", "junction", nil).
		Node("2", "junction", nil).
		Wire("1", 0, "2").
		Wire("2", 0, "1"))
	require.ErrorIs(t, err, ErrBadFlowsJSON)
}

func TestFlowBuilder_Panics(t *testing.T) {
	require.Panics(t, func() { New("", "x") })
	require.Panics(t, func() { New("1", "x").Node("", "debug", nil) })
	require.Panics(t, func() { New("1", "x").Node("2", "debug", nil).Node("2", "debug", nil) })
	require.Panics(t, func() { New("1", "x").Wire("2", 0, "3") })
	require.Panics(t, func() { New("1", "x").Node("2", "debug", nil).Wire("2", -1, "3") })
}

func TestExport_Empty(t *testing.T) {
	data, err := Export()
	require.NoError(t, err)
	require.Equal(t, "[]", string(data))

	set, err := Load(data)
	require.NoError(t, err)
	require.Empty(t, set.Flows)
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(nil)
	require.NoError(t, err)
	require.Contains(t, reg.NodeTypes(), "inject")
	require.Contains(t, reg.NodeTypes(), "udp out")
}
