package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/petrijr/wireflow/pkg/variant"
)

// FlowInfo identifies a flow in observer callbacks.
type FlowInfo struct {
	ID    ElementID
	Label string
}

// Observer receives callbacks from the runtime for logging and metrics.
//
// Implementations should be fast and non-blocking; they are called from node
// goroutines on the message path.
type Observer interface {
	// OnFlowStart is called after every enabled node of a flow was started.
	OnFlowStart(ctx context.Context, flow FlowInfo)

	// OnFlowStop is called once every node goroutine of a flow returned.
	OnFlowStop(ctx context.Context, flow FlowInfo)

	OnNodeStart(ctx context.Context, node NodeInfo)

	// OnNodeStop is called when Run returns, with the time the node ran.
	OnNodeStop(ctx context.Context, node NodeInfo, ran time.Duration)

	// OnNodeError reports a runtime failure inside a node, including
	// recovered panics. Cancellations are never reported.
	OnNodeError(ctx context.Context, node NodeInfo, err error)

	// OnMessageSent is called once per delivered message.
	OnMessageSent(ctx context.Context, from NodeInfo, port int, to ElementID)

	// OnDebug receives the output of debug nodes.
	OnDebug(ctx context.Context, node NodeInfo, value variant.Variant)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnFlowStart(context.Context, FlowInfo)                   {}
func (NoopObserver) OnFlowStop(context.Context, FlowInfo)                    {}
func (NoopObserver) OnNodeStart(context.Context, NodeInfo)                   {}
func (NoopObserver) OnNodeStop(context.Context, NodeInfo, time.Duration)     {}
func (NoopObserver) OnNodeError(context.Context, NodeInfo, error)            {}
func (NoopObserver) OnMessageSent(context.Context, NodeInfo, int, ElementID) {}
func (NoopObserver) OnDebug(context.Context, NodeInfo, variant.Variant)      {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnFlowStart(ctx context.Context, flow FlowInfo) {
	for _, o := range c.observers {
		o.OnFlowStart(ctx, flow)
	}
}

func (c *CompositeObserver) OnFlowStop(ctx context.Context, flow FlowInfo) {
	for _, o := range c.observers {
		o.OnFlowStop(ctx, flow)
	}
}

func (c *CompositeObserver) OnNodeStart(ctx context.Context, node NodeInfo) {
	for _, o := range c.observers {
		o.OnNodeStart(ctx, node)
	}
}

func (c *CompositeObserver) OnNodeStop(ctx context.Context, node NodeInfo, ran time.Duration) {
	for _, o := range c.observers {
		o.OnNodeStop(ctx, node, ran)
	}
}

func (c *CompositeObserver) OnNodeError(ctx context.Context, node NodeInfo, err error) {
	for _, o := range c.observers {
		o.OnNodeError(ctx, node, err)
	}
}

func (c *CompositeObserver) OnMessageSent(ctx context.Context, from NodeInfo, port int, to ElementID) {
	for _, o := range c.observers {
		o.OnMessageSent(ctx, from, port, to)
	}
}

func (c *CompositeObserver) OnDebug(ctx context.Context, node NodeInfo, value variant.Variant) {
	for _, o := range c.observers {
		o.OnDebug(ctx, node, value)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs flow and node lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func nodeAttrs(node NodeInfo) []any {
	return []any{
		slog.String("flow_id", node.FlowID.String()),
		slog.String("node_id", node.ID.String()),
		slog.String("node_type", node.Type),
		slog.String("node_name", node.Name),
	}
}

func (o *LoggingObserver) OnFlowStart(ctx context.Context, flow FlowInfo) {
	o.Logger.InfoContext(ctx, "flow_start",
		slog.String("flow_id", flow.ID.String()),
		slog.String("label", flow.Label),
	)
}

func (o *LoggingObserver) OnFlowStop(ctx context.Context, flow FlowInfo) {
	o.Logger.InfoContext(ctx, "flow_stop",
		slog.String("flow_id", flow.ID.String()),
		slog.String("label", flow.Label),
	)
}

func (o *LoggingObserver) OnNodeStart(ctx context.Context, node NodeInfo) {
	o.Logger.DebugContext(ctx, "node_start", nodeAttrs(node)...)
}

func (o *LoggingObserver) OnNodeStop(ctx context.Context, node NodeInfo, ran time.Duration) {
	o.Logger.DebugContext(ctx, "node_stop", append(nodeAttrs(node), slog.Duration("ran", ran))...)
}

func (o *LoggingObserver) OnNodeError(ctx context.Context, node NodeInfo, err error) {
	o.Logger.ErrorContext(ctx, "node_failed", append(nodeAttrs(node), slog.Any("error", err))...)
}

func (o *LoggingObserver) OnMessageSent(context.Context, NodeInfo, int, ElementID) {}

func (o *LoggingObserver) OnDebug(ctx context.Context, node NodeInfo, value variant.Variant) {
	o.Logger.InfoContext(ctx, "debug", append(nodeAttrs(node), slog.String("value", variant.Format(value)))...)
}

// BasicMetrics collects simple counters.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	flowsStarted  atomic.Int64
	flowsStopped  atomic.Int64
	nodesStarted  atomic.Int64
	nodesStopped  atomic.Int64
	nodeErrors    atomic.Int64
	messagesSent  atomic.Int64
	debugMessages atomic.Int64
	totalNodeRun  atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	FlowsStarted int64
	FlowsStopped int64

	NodesStarted int64
	NodesStopped int64
	RunningNodes int64
	NodeErrors   int64

	MessagesSent  int64
	DebugMessages int64

	AvgNodeRun time.Duration
}

func (m *BasicMetrics) OnFlowStart(context.Context, FlowInfo) { m.flowsStarted.Add(1) }
func (m *BasicMetrics) OnFlowStop(context.Context, FlowInfo)  { m.flowsStopped.Add(1) }
func (m *BasicMetrics) OnNodeStart(context.Context, NodeInfo) { m.nodesStarted.Add(1) }

func (m *BasicMetrics) OnNodeStop(_ context.Context, _ NodeInfo, ran time.Duration) {
	m.nodesStopped.Add(1)
	m.totalNodeRun.Add(ran.Nanoseconds())
}

func (m *BasicMetrics) OnNodeError(context.Context, NodeInfo, error) { m.nodeErrors.Add(1) }

func (m *BasicMetrics) OnMessageSent(context.Context, NodeInfo, int, ElementID) {
	m.messagesSent.Add(1)
}

func (m *BasicMetrics) OnDebug(context.Context, NodeInfo, variant.Variant) {
	m.debugMessages.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.nodesStarted.Load()
	stopped := m.nodesStopped.Load()
	totalNs := m.totalNodeRun.Load()

	var avg time.Duration
	if stopped > 0 {
		avg = time.Duration(totalNs / stopped)
	}

	return BasicMetricsSnapshot{
		FlowsStarted:  m.flowsStarted.Load(),
		FlowsStopped:  m.flowsStopped.Load(),
		NodesStarted:  started,
		NodesStopped:  stopped,
		RunningNodes:  started - stopped,
		NodeErrors:    m.nodeErrors.Load(),
		MessagesSent:  m.messagesSent.Load(),
		DebugMessages: m.debugMessages.Load(),
		AvgNodeRun:    avg,
	}
}
