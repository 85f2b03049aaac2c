package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/wireflow/pkg/api"
	"github.com/petrijr/wireflow/pkg/variant"
)

type received struct {
	node api.ElementID
	msg  *api.Msg
}

// harness registers test node types that report into a shared channel.
type harness struct {
	reg  *api.Registry
	got  chan received
	runs atomic.Int32
}

type idleNode struct{ *api.BaseNode }

func (n idleNode) Run(ctx context.Context) { <-ctx.Done() }

type sinkNode struct {
	*api.BaseNode
	h      *harness
	mutate bool
}

func (n *sinkNode) Run(ctx context.Context) {
	n.h.runs.Add(1)
	for {
		msg, err := n.WaitForMsg(ctx)
		if err != nil {
			return
		}
		if n.mutate {
			msg.SetPayload(variant.Number(2))
		}
		select {
		case n.h.got <- received{node: n.ID(), msg: msg}:
		case <-ctx.Done():
			return
		}
	}
}

type panicNode struct{ *api.BaseNode }

func (panicNode) Run(context.Context) { panic("node exploded") }

type closingGlobal struct {
	id     api.ElementID
	closed *atomic.Bool
}

func (g closingGlobal) ID() api.ElementID { return g.id }
func (g closingGlobal) Name() string      { return "closing" }
func (g closingGlobal) Type() string      { return "closing" }
func (g closingGlobal) Close() error {
	g.closed.Store(true)
	return nil
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{reg: api.NewRegistry(), got: make(chan received, 64)}

	require.NoError(t, h.reg.RegisterNode("idle", func(_ api.Flow, base *api.BaseNode, _ *api.NodeConfig) (api.Node, error) {
		return idleNode{base}, nil
	}))
	require.NoError(t, h.reg.RegisterNode("sink", func(_ api.Flow, base *api.BaseNode, _ *api.NodeConfig) (api.Node, error) {
		return &sinkNode{BaseNode: base, h: h}, nil
	}))
	require.NoError(t, h.reg.RegisterNode("mutator", func(_ api.Flow, base *api.BaseNode, _ *api.NodeConfig) (api.Node, error) {
		return &sinkNode{BaseNode: base, h: h, mutate: true}, nil
	}))
	require.NoError(t, h.reg.RegisterNode("panic", func(_ api.Flow, base *api.BaseNode, _ *api.NodeConfig) (api.Node, error) {
		return panicNode{base}, nil
	}))
	require.NoError(t, h.reg.RegisterNode("broken", func(api.Flow, *api.BaseNode, *api.NodeConfig) (api.Node, error) {
		return nil, errors.New("bad config")
	}))
	return h
}

func (h *harness) next(t *testing.T) received {
	t.Helper()
	select {
	case r := <-h.got:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a delivered message")
		return received{}
	}
}

func node(id api.ElementID, typ string, wires ...[]api.ElementID) api.NodeConfig {
	return api.NodeConfig{ID: id, Type: typ, FlowID: 1, Wires: wires}
}

func singleFlow(nodes ...api.NodeConfig) *api.FlowSet {
	return &api.FlowSet{Flows: []api.FlowConfig{{ID: 1, Label: "test", Nodes: nodes}}}
}

func stopCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}
