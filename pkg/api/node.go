package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// NodeState is the lifecycle state of a node.
type NodeState int32

const (
	NodeConstructed NodeState = iota
	NodeStarted
	NodeStopping
	NodeStopped
)

func (s NodeState) String() string {
	switch s {
	case NodeConstructed:
		return "constructed"
	case NodeStarted:
		return "started"
	case NodeStopping:
		return "stopping"
	case NodeStopped:
		return "stopped"
	default:
		return fmt.Sprintf("NodeState(%d)", int32(s))
	}
}

// Node is the contract every node type implements. Run is the node's whole
// lifetime: it is started exactly once in its own goroutine and must return
// promptly once ctx is cancelled.
type Node interface {
	ID() ElementID
	Name() string
	Base() *BaseNode
	Run(ctx context.Context)
}

// GlobalNode is a node that lives outside any flow. Global nodes that
// implement io.Closer are closed when the engine stops.
type GlobalNode interface {
	ID() ElementID
	Name() string
	Type() string
}

// Wire is one connection of an output port. The destination is referenced
// by id only; the sender handle feeds its mailbox.
type Wire struct {
	Target ElementID
	Sender *Sender
}

// Port is an ordered list of wires.
type Port struct {
	Wires []Wire
}

// NodeInfo identifies a node in observer callbacks and logs.
type NodeInfo struct {
	ID     ElementID
	FlowID ElementID
	Type   string
	Name   string
}

// BaseNode holds the state shared by every node type. Concrete nodes embed
// it and implement Run.
type BaseNode struct {
	id       ElementID
	name     string
	typ      string
	flowID   ElementID
	disabled bool

	flow    Flow
	mailbox *Mailbox
	ports   []Port
	state   atomic.Int32
}

// NewBaseNode creates the shared node state with a mailbox of the given
// capacity. flow is a non-owning handle.
func NewBaseNode(flow Flow, cfg *NodeConfig, capacity int) *BaseNode {
	return &BaseNode{
		id:       cfg.ID,
		name:     cfg.Name,
		typ:      cfg.Type,
		flowID:   cfg.FlowID,
		disabled: cfg.Disabled,
		flow:     flow,
		mailbox:  NewMailbox(capacity),
	}
}

func (b *BaseNode) ID() ElementID     { return b.id }
func (b *BaseNode) Name() string      { return b.name }
func (b *BaseNode) Type() string      { return b.typ }
func (b *BaseNode) FlowID() ElementID { return b.flowID }
func (b *BaseNode) Disabled() bool    { return b.disabled }
func (b *BaseNode) Base() *BaseNode   { return b }
func (b *BaseNode) Flow() Flow        { return b.flow }
func (b *BaseNode) Mailbox() *Mailbox { return b.mailbox }

// Info returns the identity of the node for observers.
func (b *BaseNode) Info() NodeInfo {
	return NodeInfo{ID: b.id, FlowID: b.flowID, Type: b.typ, Name: b.name}
}

// Ports returns the resolved output ports. They are set once during flow
// construction and read-only afterwards.
func (b *BaseNode) Ports() []Port { return b.ports }

// SetPorts installs the resolved output ports. It is called by the flow
// during construction only.
func (b *BaseNode) SetPorts(ports []Port) { b.ports = ports }

func (b *BaseNode) State() NodeState { return NodeState(b.state.Load()) }

func (b *BaseNode) SetState(s NodeState) { b.state.Store(int32(s)) }

// Logger returns the flow logger annotated with the node identity.
func (b *BaseNode) Logger() *slog.Logger {
	l := slog.Default()
	if b.flow != nil {
		l = b.flow.Logger()
	}
	return l.With(
		slog.String("node_id", b.id.String()),
		slog.String("node_type", b.typ),
	)
}

// WaitForMsg suspends until a message arrives. It returns ErrTaskCancelled
// when ctx is cancelled and ErrChannelClosed once every sender is gone.
func (b *BaseNode) WaitForMsg(ctx context.Context) (*Msg, error) {
	return b.mailbox.Receive(ctx)
}

// Close closes the receive side of the mailbox.
func (b *BaseNode) Close() {
	b.mailbox.Close()
}

// FanOut sends msg to every wire of the given output port.
func (b *BaseNode) FanOut(ctx context.Context, port int, msg *Msg) error {
	return b.flow.FanOutPort(ctx, b.id, port, msg)
}

// FanOutAll sends msgs[i] to port i; nil entries are skipped.
func (b *BaseNode) FanOutAll(ctx context.Context, msgs []*Msg) error {
	return b.flow.FanOutAll(ctx, b.id, msgs)
}

// ReportError logs err and forwards it to the observer. Cancellations are
// ignored.
func (b *BaseNode) ReportError(ctx context.Context, err error) {
	if err == nil || IsCancelled(err) {
		return
	}
	b.Logger().ErrorContext(ctx, "node_error", slog.Any("error", err))
	if b.flow != nil {
		b.flow.Observer().OnNodeError(ctx, b.Info(), err)
	}
}
