package nodes

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/wireflow/internal/engine"
	"github.com/petrijr/wireflow/internal/loader"
	"github.com/petrijr/wireflow/pkg/api"
	"github.com/petrijr/wireflow/pkg/variant"
)

type captured struct {
	node api.ElementID
	msg  *api.Msg
}

type sourceNode struct{ *api.BaseNode }

func (sourceNode) Run(ctx context.Context) { <-ctx.Done() }

type sinkNode struct {
	*api.BaseNode
	out chan<- captured
}

func (n sinkNode) Run(ctx context.Context) {
	serve(ctx, n.BaseNode, func(ctx context.Context, msg *api.Msg) error {
		select {
		case n.out <- captured{node: n.ID(), msg: msg}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

type debugRecorder struct {
	api.NoopObserver
	values chan variant.Variant
	errs   chan error
}

func (d *debugRecorder) OnDebug(_ context.Context, _ api.NodeInfo, v variant.Variant) {
	d.values <- v
}

func (d *debugRecorder) OnNodeError(_ context.Context, _ api.NodeInfo, err error) {
	select {
	case d.errs <- err:
	default:
	}
}

// bench runs a single flow made of the given records plus the built-in and
// test node types. Records must set "z":"100".
type bench struct {
	t     *testing.T
	eng   *engine.Engine
	flow  *engine.Flow
	got   chan captured
	debug *debugRecorder
}

func newBench(t *testing.T, records []string, opts ...Option) *bench {
	t.Helper()

	b := &bench{
		t:     t,
		got:   make(chan captured, 128),
		debug: &debugRecorder{values: make(chan variant.Variant, 128), errs: make(chan error, 128)},
	}

	reg := api.NewRegistry()
	require.NoError(t, RegisterBuiltins(reg, opts...))
	require.NoError(t, reg.RegisterNode("test-source", func(_ api.Flow, base *api.BaseNode, _ *api.NodeConfig) (api.Node, error) {
		return sourceNode{base}, nil
	}))
	require.NoError(t, reg.RegisterNode("test-sink", func(_ api.Flow, base *api.BaseNode, _ *api.NodeConfig) (api.Node, error) {
		return sinkNode{BaseNode: base, out: b.got}, nil
	}))

	doc := `[{"id":"100","type":"tab","label":"bench"},` + strings.Join(records, ",") + `]`
	set, err := loader.Load([]byte(doc))
	require.NoError(t, err)

	b.eng, err = engine.New(reg, set, engine.Config{Observer: b.debug})
	require.NoError(t, err)
	b.flow, _ = b.eng.Flow(0x100)

	require.NoError(t, b.eng.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, b.eng.Stop(ctx))
	})
	return b
}

// pipeline wires test-source 1 -> node 2 -> test-sink 3.
func pipeline(t *testing.T, node string, opts ...Option) *bench {
	t.Helper()
	return newBench(t, []string{
		`{"id":"1","type":"test-source","z":"100","wires":[["2"]]}`,
		node,
		`{"id":"3","type":"test-sink","z":"100"}`,
	}, opts...)
}

func (b *bench) send(src api.ElementID, msg *api.Msg) {
	b.t.Helper()
	require.NoError(b.t, b.flow.FanOutPort(context.Background(), src, 0, msg))
}

func (b *bench) sendPayload(payload any) {
	b.t.Helper()
	b.send(0x1, api.NewMsgWithPayload(0x1, payload))
}

func (b *bench) next() captured {
	b.t.Helper()
	select {
	case c := <-b.got:
		return c
	case <-time.After(3 * time.Second):
		b.t.Fatal("timed out waiting for a message")
		return captured{}
	}
}

func (b *bench) none(wait time.Duration) {
	b.t.Helper()
	select {
	case c := <-b.got:
		b.t.Fatalf("unexpected message at %s: %v", c.node, c.msg.Body())
	case <-time.After(wait):
	}
}

func (b *bench) nextDebug() variant.Variant {
	b.t.Helper()
	select {
	case v := <-b.debug.values:
		return v
	case <-time.After(3 * time.Second):
		b.t.Fatal("timed out waiting for debug output")
		return nil
	}
}

func (b *bench) nextError() error {
	b.t.Helper()
	select {
	case err := <-b.debug.errs:
		return err
	case <-time.After(3 * time.Second):
		b.t.Fatal("timed out waiting for a node error")
		return nil
	}
}

func newRegistry(t *testing.T) *api.Registry {
	t.Helper()
	reg := api.NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))
	return reg
}

// build tries to construct a flow holding the single record and returns
// the engine error.
func build(t *testing.T, record string) error {
	t.Helper()
	reg := newRegistry(t)

	set, err := loader.Load([]byte(`[{"id":"100","type":"tab"},` + record + `]`))
	require.NoError(t, err)
	eng, err := engine.New(reg, set, engine.Config{})
	if err == nil {
		require.NoError(t, eng.Stop(context.Background()))
	}
	return err
}
