package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/petrijr/wireflow/pkg/variant"
)

//
// Helpers
//

// testObserver counts every callback it receives.
type testObserver struct {
	mu sync.Mutex

	flowStarts int
	flowStops  int
	nodeStarts int
	nodeStops  int
	nodeErrors int
	sent       int
	debugs     int

	lastErr   error
	lastDebug variant.Variant
	lastRan   time.Duration
}

func (o *testObserver) OnFlowStart(context.Context, FlowInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flowStarts++
}

func (o *testObserver) OnFlowStop(context.Context, FlowInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flowStops++
}

func (o *testObserver) OnNodeStart(context.Context, NodeInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodeStarts++
}

func (o *testObserver) OnNodeStop(_ context.Context, _ NodeInfo, ran time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodeStops++
	o.lastRan = ran
}

func (o *testObserver) OnNodeError(_ context.Context, _ NodeInfo, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodeErrors++
	o.lastErr = err
}

func (o *testObserver) OnMessageSent(context.Context, NodeInfo, int, ElementID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent++
}

func (o *testObserver) OnDebug(_ context.Context, _ NodeInfo, v variant.Variant) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.debugs++
	o.lastDebug = v
}

// recordingHandler is a minimal slog.Handler that just records log records.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func attrsToMap(r slog.Record) map[string]any {
	m := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value.Any()
		return true
	})
	return m
}

var testNode = NodeInfo{ID: 0x10, FlowID: 0x1, Type: "debug", Name: "sink"}

//
// NoopObserver
//

func TestNoopObserver_DoesNotPanic(t *testing.T) {
	ctx := context.Background()
	var o Observer = NoopObserver{}

	o.OnFlowStart(ctx, FlowInfo{ID: 1})
	o.OnFlowStop(ctx, FlowInfo{ID: 1})
	o.OnNodeStart(ctx, testNode)
	o.OnNodeStop(ctx, testNode, time.Second)
	o.OnNodeError(ctx, testNode, errors.New("boom"))
	o.OnMessageSent(ctx, testNode, 0, 0x20)
	o.OnDebug(ctx, testNode, variant.String("x"))
}

//
// CompositeObserver
//

func TestNewCompositeObserver_EmptyReturnsNoop(t *testing.T) {
	o := NewCompositeObserver()
	if _, ok := o.(NoopObserver); !ok {
		t.Fatalf("expected NewCompositeObserver() to return NoopObserver, got %T", o)
	}
}

func TestNewCompositeObserver_SingleReturnsThatObserver(t *testing.T) {
	single := &testObserver{}
	o := NewCompositeObserver(single, nil)

	if got, ok := o.(*testObserver); !ok || got != single {
		t.Fatalf("expected the single non-nil observer to be returned, got %T (%p)", o, o)
	}
}

func TestCompositeObserver_ForwardsAllEvents(t *testing.T) {
	ctx := context.Background()

	o1 := &testObserver{}
	o2 := &testObserver{}
	co, ok := NewCompositeObserver(o1, o2).(*CompositeObserver)
	if !ok {
		t.Fatalf("expected *CompositeObserver")
	}

	err := errors.New("node failed")
	co.OnFlowStart(ctx, FlowInfo{ID: 1})
	co.OnFlowStop(ctx, FlowInfo{ID: 1})
	co.OnNodeStart(ctx, testNode)
	co.OnNodeStop(ctx, testNode, 2*time.Second)
	co.OnNodeError(ctx, testNode, err)
	co.OnMessageSent(ctx, testNode, 0, 0x20)
	co.OnDebug(ctx, testNode, variant.Number(7))

	for i, o := range []*testObserver{o1, o2} {
		if o.flowStarts != 1 || o.flowStops != 1 || o.nodeStarts != 1 || o.nodeStops != 1 ||
			o.nodeErrors != 1 || o.sent != 1 || o.debugs != 1 {
			t.Fatalf("observer %d did not receive all calls: %+v", i+1, o)
		}
		if o.lastErr != err {
			t.Fatalf("observer %d error mismatch", i+1)
		}
		if o.lastRan != 2*time.Second {
			t.Fatalf("observer %d duration mismatch: %v", i+1, o.lastRan)
		}
		if !variant.Equal(o.lastDebug, variant.Number(7)) {
			t.Fatalf("observer %d debug value mismatch: %v", i+1, o.lastDebug)
		}
	}
}

//
// LoggingObserver
//

func TestNewLoggingObserver_NilLoggerUsesDefault(t *testing.T) {
	o := NewLoggingObserver(nil)
	lo, ok := o.(*LoggingObserver)
	if !ok {
		t.Fatalf("expected *LoggingObserver, got %T", o)
	}
	if lo.Logger == nil {
		t.Fatalf("expected non-nil Logger when created with nil")
	}
}

func TestLoggingObserver_OnFlowStart_EmitsInfoLog(t *testing.T) {
	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnFlowStart(context.Background(), FlowInfo{ID: 0xabc, Label: "main"})

	if len(h.records) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(h.records))
	}
	rec := h.records[0]
	if rec.Level != slog.LevelInfo || rec.Message != "flow_start" {
		t.Fatalf("unexpected record: %v %q", rec.Level, rec.Message)
	}
	attrs := attrsToMap(rec)
	if attrs["flow_id"] != "0000000000000abc" || attrs["label"] != "main" {
		t.Fatalf("unexpected attrs: %v", attrs)
	}
}

func TestLoggingObserver_OnNodeError_LogsError(t *testing.T) {
	h := &recordingHandler{}
	o := NewLoggingObserver(slog.New(h))

	o.OnNodeError(context.Background(), testNode, errors.New("boom"))

	if len(h.records) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(h.records))
	}
	rec := h.records[0]
	if rec.Level != slog.LevelError || rec.Message != "node_failed" {
		t.Fatalf("unexpected record: %v %q", rec.Level, rec.Message)
	}
	attrs := attrsToMap(rec)
	if attrs["node_type"] != "debug" || attrs["error"] == nil {
		t.Fatalf("unexpected attrs: %v", attrs)
	}
}

//
// BasicMetrics
//

func TestBasicMetrics_CountersAndSnapshot(t *testing.T) {
	var m BasicMetrics
	ctx := context.Background()

	m.OnFlowStart(ctx, FlowInfo{ID: 1})
	m.OnNodeStart(ctx, testNode)
	m.OnNodeStart(ctx, testNode)
	m.OnNodeStart(ctx, testNode)
	m.OnNodeStop(ctx, testNode, 1*time.Second)
	m.OnNodeStop(ctx, testNode, 3*time.Second)
	m.OnNodeError(ctx, testNode, errors.New("x"))
	m.OnMessageSent(ctx, testNode, 0, 2)
	m.OnDebug(ctx, testNode, variant.Null{})

	snap := m.Snapshot()

	if snap.FlowsStarted != 1 || snap.FlowsStopped != 0 {
		t.Fatalf("flow counters: %+v", snap)
	}
	if snap.NodesStarted != 3 || snap.NodesStopped != 2 || snap.RunningNodes != 1 {
		t.Fatalf("node counters: %+v", snap)
	}
	if snap.NodeErrors != 1 || snap.MessagesSent != 1 || snap.DebugMessages != 1 {
		t.Fatalf("event counters: %+v", snap)
	}
	if snap.AvgNodeRun != 2*time.Second {
		t.Fatalf("AvgNodeRun=%v, want 2s", snap.AvgNodeRun)
	}
}

func TestBasicMetrics_SnapshotZeroHasZeroAverage(t *testing.T) {
	var m BasicMetrics
	if snap := m.Snapshot(); snap.AvgNodeRun != 0 || snap.NodesStopped != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
