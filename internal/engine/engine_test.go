package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/wireflow/internal/supervisor"
	"github.com/petrijr/wireflow/pkg/api"
	"github.com/petrijr/wireflow/pkg/variant"
)

// recordingObserver keeps the order of lifecycle callbacks.
type recordingObserver struct {
	api.NoopObserver

	mu     sync.Mutex
	events []string
	errs   []error
}

func (o *recordingObserver) add(ev string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *recordingObserver) OnFlowStart(_ context.Context, f api.FlowInfo) {
	o.add("flow_start:" + f.ID.String())
}

func (o *recordingObserver) OnFlowStop(_ context.Context, f api.FlowInfo) {
	o.add("flow_stop:" + f.ID.String())
}

func (o *recordingObserver) OnNodeError(_ context.Context, _ api.NodeInfo, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) snapshot() ([]string, []error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...), append([]error(nil), o.errs...)
}

func TestEngine_StartStop(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	metrics := &api.BasicMetrics{}
	eng, err := New(h.reg, singleFlow(
		node(0x1, "idle", []api.ElementID{0x2}),
		node(0x2, "sink"),
	), Config{Observer: metrics})
	require.NoError(t, err)
	require.NotEmpty(t, eng.RunID())

	require.NoError(t, eng.Start(context.Background()))
	require.Eventually(t, func() bool { return h.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	flow, ok := eng.Flow(1)
	require.True(t, ok)
	require.NoError(t, flow.FanOutPort(context.Background(), 0x1, 0, api.NewMsgWithPayload(0x1, "hi")))
	require.Equal(t, variant.String("hi"), h.next(t).msg.Payload())

	require.NoError(t, eng.Stop(stopCtx(t)))
	for _, n := range flow.Nodes() {
		require.Equal(t, api.NodeStopped, n.Base().State())
	}

	snap := metrics.Snapshot()
	require.EqualValues(t, 1, snap.FlowsStarted)
	require.EqualValues(t, 1, snap.FlowsStopped)
	require.EqualValues(t, 2, snap.NodesStarted)
	require.EqualValues(t, 2, snap.NodesStopped)
	require.EqualValues(t, 1, snap.MessagesSent)
}

func TestEngine_StopIsIdempotentAndStartOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	eng, err := New(h.reg, singleFlow(node(0x1, "idle")), Config{})
	require.NoError(t, err)

	require.NoError(t, eng.Start(context.Background()))
	require.ErrorIs(t, eng.Start(context.Background()), api.ErrInvalidOperation)

	require.NoError(t, eng.Stop(stopCtx(t)))
	require.NoError(t, eng.Stop(stopCtx(t)))
}

func TestEngine_StopWithoutStart(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	eng, err := New(h.reg, singleFlow(
		node(0x1, "idle", []api.ElementID{0x2}),
		node(0x2, "sink"),
	), Config{})
	require.NoError(t, err)
	require.NoError(t, eng.Stop(stopCtx(t)))

	// Every sender is released, so the receiver sees a closed channel.
	flow, _ := eng.Flow(1)
	dst, _ := flow.Node(0x2)
	_, err = dst.Base().WaitForMsg(context.Background())
	require.ErrorIs(t, err, api.ErrChannelClosed)
}

func TestEngine_FlowsStopInReverseOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	obs := &recordingObserver{}
	set := &api.FlowSet{Flows: []api.FlowConfig{
		{ID: 1, Nodes: []api.NodeConfig{{ID: 0x10, Type: "idle", FlowID: 1}}},
		{ID: 2, Nodes: []api.NodeConfig{{ID: 0x20, Type: "idle", FlowID: 2}}},
	}}
	eng, err := New(h.reg, set, Config{Observer: obs})
	require.NoError(t, err)
	require.Len(t, eng.Flows(), 2)

	require.NoError(t, eng.Start(context.Background()))
	require.NoError(t, eng.Stop(stopCtx(t)))

	events, _ := obs.snapshot()
	require.Equal(t, []string{
		"flow_start:" + api.ElementID(1).String(),
		"flow_start:" + api.ElementID(2).String(),
		"flow_stop:" + api.ElementID(2).String(),
		"flow_stop:" + api.ElementID(1).String(),
	}, events)
}

func TestEngine_StopIsBoundedByContext(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	require.NoError(t, h.reg.RegisterNode("stubborn", func(_ api.Flow, base *api.BaseNode, _ *api.NodeConfig) (api.Node, error) {
		return stubbornNode{BaseNode: base, release: release}, nil
	}))

	eng, err := New(h.reg, singleFlow(node(0x1, "stubborn")), Config{})
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	started := time.Now()
	err = eng.Stop(ctx)
	require.ErrorIs(t, err, api.ErrTaskCancelled)
	require.Less(t, time.Since(started), time.Second)
}

type stubbornNode struct {
	*api.BaseNode
	release chan struct{}
}

func (n stubbornNode) Run(context.Context) { <-n.release }

func TestEngine_PanicIsContained(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	metrics := &api.BasicMetrics{}
	obs := &recordingObserver{}
	eng, err := New(h.reg, singleFlow(
		node(0x1, "panic"),
		node(0x2, "sink"),
	), Config{Observer: api.NewCompositeObserver(metrics, obs)})
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))

	flow, _ := eng.Flow(1)
	require.Eventually(t, func() bool {
		s, _ := flow.NodeState(0x1)
		return s == api.NodeStopped
	}, time.Second, 5*time.Millisecond)

	s, _ := flow.NodeState(0x2)
	require.Equal(t, api.NodeStarted, s)
	require.EqualValues(t, 1, metrics.Snapshot().NodeErrors)

	_, errs := obs.snapshot()
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Error(), "node exploded")

	require.NoError(t, eng.Stop(stopCtx(t)))
}

func TestEngine_DisabledNodesAndFlows(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	disabledNode := node(0x2, "sink")
	disabledNode.Disabled = true
	set := &api.FlowSet{Flows: []api.FlowConfig{
		{ID: 1, Nodes: []api.NodeConfig{node(0x1, "sink"), disabledNode}},
		{ID: 3, Disabled: true, Nodes: []api.NodeConfig{{ID: 0x30, Type: "sink", FlowID: 3}}},
	}}
	eng, err := New(h.reg, set, Config{})
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))

	f1, _ := eng.Flow(1)
	f3, _ := eng.Flow(3)
	require.True(t, f3.Disabled())

	s, _ := f1.NodeState(0x1)
	require.Equal(t, api.NodeStarted, s)
	s, _ = f1.NodeState(0x2)
	require.Equal(t, api.NodeConstructed, s)
	s, _ = f3.NodeState(0x30)
	require.Equal(t, api.NodeConstructed, s)

	require.NoError(t, eng.Stop(stopCtx(t)))
	require.Eventually(t, func() bool { return h.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestEngine_ConstructionErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, err := New(h.reg, singleFlow(node(0x1, "no-such-type")), Config{})
	require.ErrorIs(t, err, api.ErrNotSupported)

	_, err = New(h.reg, singleFlow(node(0x1, "idle", []api.ElementID{0x99})), Config{})
	require.ErrorIs(t, err, api.ErrBadFlowsJSON)

	_, err = New(h.reg, singleFlow(node(0x1, "idle"), node(0x1, "idle")), Config{})
	require.ErrorIs(t, err, api.ErrBadFlowsJSON)

	_, err = New(h.reg, singleFlow(node(0x1, "broken")), Config{})
	require.ErrorContains(t, err, "bad config")

	_, err = New(nil, singleFlow(), Config{})
	require.ErrorIs(t, err, api.ErrInvalidOperation)
}

func TestEngine_GlobalNodes(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	var closed atomic.Bool
	require.NoError(t, h.reg.RegisterGlobal("closing", func(cfg *api.GlobalNodeConfig) (api.GlobalNode, error) {
		return closingGlobal{id: cfg.ID, closed: &closed}, nil
	}))

	set := singleFlow(node(0x1, "idle"))
	set.Globals = []api.GlobalNodeConfig{
		{ID: 0xA, Type: "closing"},
		{ID: 0xB, Type: "mystery"},
	}

	eng, err := New(h.reg, set, Config{})
	require.NoError(t, err)

	_, ok := eng.GlobalNode(0xA)
	require.True(t, ok)
	_, ok = eng.GlobalNode(0xB)
	require.False(t, ok)

	flow, _ := eng.Flow(1)
	g, ok := flow.GlobalNode(0xA)
	require.True(t, ok)
	require.Equal(t, "closing", g.Type())

	require.NoError(t, eng.Start(context.Background()))
	require.NoError(t, eng.Stop(stopCtx(t)))
	require.True(t, closed.Load())
}

func TestEngine_GlobalFactoryErrorAbortsAndCloses(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	var closed atomic.Bool
	require.NoError(t, h.reg.RegisterGlobal("closing", func(cfg *api.GlobalNodeConfig) (api.GlobalNode, error) {
		return closingGlobal{id: cfg.ID, closed: &closed}, nil
	}))
	require.NoError(t, h.reg.RegisterGlobal("failing", func(*api.GlobalNodeConfig) (api.GlobalNode, error) {
		return nil, errors.New("no broker")
	}))

	set := singleFlow()
	set.Globals = []api.GlobalNodeConfig{
		{ID: 0xA, Type: "closing"},
		{ID: 0xB, Type: "failing"},
	}

	_, err := New(h.reg, set, Config{})
	require.ErrorContains(t, err, "no broker")
	require.True(t, closed.Load())
}

func TestEngine_ContextStores(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	set := &api.FlowSet{Flows: []api.FlowConfig{
		{ID: 1, Nodes: []api.NodeConfig{{ID: 0x10, Type: "idle", FlowID: 1}}},
		{ID: 2, Nodes: []api.NodeConfig{{ID: 0x20, Type: "idle", FlowID: 2}}},
	}}
	eng, err := New(h.reg, set, Config{})
	require.NoError(t, err)

	f1, _ := eng.Flow(1)
	f2, _ := eng.Flow(2)
	require.Same(t, eng.GlobalContext(), f1.GlobalContext())
	require.Same(t, f1.GlobalContext(), f2.GlobalContext())
	require.NotSame(t, f1.Context(), f2.Context())

	require.NoError(t, eng.Stop(stopCtx(t)))
}

func TestEngine_StartFailureRollsBack(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	set := &api.FlowSet{Flows: []api.FlowConfig{
		{ID: 1, Nodes: []api.NodeConfig{node(0x1, "idle", []api.ElementID{0x2}), node(0x2, "sink")}},
		{ID: 2, Nodes: []api.NodeConfig{{ID: 0x20, Type: "idle", FlowID: 2, Wires: [][]api.ElementID{{0x21}}}, {ID: 0x21, Type: "sink", FlowID: 2}}},
	}}
	eng, err := New(h.reg, set, Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = eng.Start(ctx)
	require.ErrorIs(t, err, supervisor.ErrStopped)
	require.Contains(t, err.Error(), "start flow 0000000000000001")

	// Already stopped by the rollback.
	require.NoError(t, eng.Stop(stopCtx(t)))
	require.ErrorIs(t, eng.Start(context.Background()), api.ErrInvalidOperation)
	require.Zero(t, h.runs.Load())

	// The flow that never started had its senders released.
	f2, _ := eng.Flow(2)
	dst, _ := f2.Node(0x21)
	_, err = dst.Base().WaitForMsg(context.Background())
	require.ErrorIs(t, err, api.ErrChannelClosed)
}
