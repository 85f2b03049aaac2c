package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubNode struct{ *BaseNode }

func (stubNode) Run(context.Context) {}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	f := func(flow Flow, base *BaseNode, cfg *NodeConfig) (Node, error) {
		return stubNode{base}, nil
	}

	require.NoError(t, r.RegisterNode("stub", f))
	require.Error(t, r.RegisterNode("stub", f))
	require.ErrorIs(t, r.RegisterNode("", f), ErrInvalidOperation)

	got, ok := r.Node("stub")
	require.True(t, ok)

	node, err := got(nil, NewBaseNode(nil, &NodeConfig{ID: 3, Type: "stub"}, 0), nil)
	require.NoError(t, err)
	require.Equal(t, ElementID(3), node.ID())
	require.Equal(t, NodeConstructed, node.Base().State())

	_, ok = r.Node("missing")
	require.False(t, ok)
	require.Equal(t, []string{"stub"}, r.NodeTypes())
}

func TestRegistry_Globals(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.RegisterGlobal("cfg", func(*GlobalNodeConfig) (GlobalNode, error) { return nil, nil }))
	require.Error(t, r.RegisterGlobal("cfg", func(*GlobalNodeConfig) (GlobalNode, error) { return nil, nil }))

	_, ok := r.Global("cfg")
	require.True(t, ok)
}

func TestNodeConfig_Decode(t *testing.T) {
	t.Parallel()

	cfg := NodeConfig{Type: "inject", Raw: []byte(`{"repeat":"5","once":true}`)}
	var dst struct {
		Repeat string `json:"repeat"`
		Once   bool   `json:"once"`
	}
	require.NoError(t, cfg.Decode(&dst))
	require.Equal(t, "5", dst.Repeat)
	require.True(t, dst.Once)
}
