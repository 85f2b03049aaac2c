package journal

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/petrijr/wireflow/pkg/api"
	"github.com/petrijr/wireflow/pkg/variant"
)

// maxDetail bounds the size of the detail column.
const maxDetail = 4096

// Observer records lifecycle, error and debug callbacks in a Store.
// Message traffic is not journaled. Append failures are logged and
// otherwise ignored.
type Observer struct {
	api.NoopObserver

	store  Store
	runID  string
	logger *slog.Logger
	now    func() time.Time
}

var _ api.Observer = (*Observer)(nil)

// NewObserver returns an observer writing events of runID to store. A nil
// logger selects slog.Default().
func NewObserver(store Store, runID string, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{store: store, runID: runID, logger: logger, now: time.Now}
}

func (o *Observer) append(ctx context.Context, ev api.RuntimeEvent) {
	ev.RunID = o.runID
	ev.At = o.now()
	ev.Detail = truncate(ev.Detail, maxDetail)
	// Stop events arrive while contexts are being cancelled.
	if err := o.store.Append(context.WithoutCancel(ctx), ev); err != nil {
		o.logger.WarnContext(ctx, "journal_append_failed",
			slog.String("event", string(ev.Type)),
			slog.Any("error", err),
		)
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func nodeEvent(typ api.EventType, node api.NodeInfo, detail string) api.RuntimeEvent {
	return api.RuntimeEvent{
		Type:     typ,
		FlowID:   node.FlowID,
		NodeID:   node.ID,
		NodeType: node.Type,
		Detail:   detail,
	}
}

func (o *Observer) OnFlowStart(ctx context.Context, flow api.FlowInfo) {
	o.append(ctx, api.RuntimeEvent{Type: api.EventFlowStarted, FlowID: flow.ID, Detail: flow.Label})
}

func (o *Observer) OnFlowStop(ctx context.Context, flow api.FlowInfo) {
	o.append(ctx, api.RuntimeEvent{Type: api.EventFlowStopped, FlowID: flow.ID, Detail: flow.Label})
}

func (o *Observer) OnNodeStart(ctx context.Context, node api.NodeInfo) {
	o.append(ctx, nodeEvent(api.EventNodeStarted, node, node.Name))
}

func (o *Observer) OnNodeStop(ctx context.Context, node api.NodeInfo, ran time.Duration) {
	o.append(ctx, nodeEvent(api.EventNodeStopped, node, ran.String()))
}

func (o *Observer) OnNodeError(ctx context.Context, node api.NodeInfo, err error) {
	o.append(ctx, nodeEvent(api.EventNodeFailed, node, err.Error()))
}

func (o *Observer) OnDebug(ctx context.Context, node api.NodeInfo, value variant.Variant) {
	o.append(ctx, nodeEvent(api.EventNodeDebug, node, variant.Format(value)))
}
