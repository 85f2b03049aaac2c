package api

import (
	"context"
	"log/slog"
)

// Flow is the view of a running flow that nodes interact with. Nodes never
// hold references to other nodes; routing goes through these methods.
type Flow interface {
	ID() ElementID
	Label() string

	// FanOutSinglePort delivers msgs to every wire of port. The first
	// delivery of each message moves it; later deliveries are clones.
	FanOutSinglePort(ctx context.Context, src ElementID, port int, msgs []*Msg) error
	FanOutPort(ctx context.Context, src ElementID, port int, msg *Msg) error
	// FanOutAll sends msgs[i] to port i; nil entries are skipped.
	FanOutAll(ctx context.Context, src ElementID, msgs []*Msg) error

	// Context is the flow scoped context store.
	Context() *ContextStore
	// GlobalContext is shared by every flow of the engine.
	GlobalContext() *ContextStore

	GlobalNode(id ElementID) (GlobalNode, bool)
	Observer() Observer
	Logger() *slog.Logger
}
