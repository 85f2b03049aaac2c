package api

import "time"

// EventType identifies a runtime journal event.
type EventType string

const (
	EventFlowStarted EventType = "flow.started"
	EventFlowStopped EventType = "flow.stopped"

	EventNodeStarted EventType = "node.started"
	EventNodeStopped EventType = "node.stopped"
	EventNodeFailed  EventType = "node.failed"
	EventNodeDebug   EventType = "node.debug"
)

// RuntimeEvent is a minimal append-only record for audit/debugging.
type RuntimeEvent struct {
	RunID string
	At    time.Time
	Type  EventType

	FlowID   ElementID
	NodeID   ElementID
	NodeType string

	// Small, human-oriented details (error string, debug output).
	Detail string
}
