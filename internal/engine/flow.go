package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/petrijr/wireflow/internal/supervisor"
	"github.com/petrijr/wireflow/pkg/api"
)

// shared is the engine state every flow sees.
type shared struct {
	registry    *api.Registry
	globalCtx   *api.ContextStore
	globalNodes map[api.ElementID]api.GlobalNode
	observer    api.Observer
	logger      *slog.Logger
	capacity    int
}

// Flow owns the nodes of one tab. Nodes are kept in an arena keyed by id;
// wires reference their destination by id and a mailbox sender only.
type Flow struct {
	id       api.ElementID
	label    string
	disabled bool

	env    *shared
	logger *slog.Logger
	store  *api.ContextStore

	mu      sync.RWMutex
	nodes   map[api.ElementID]api.Node
	order   []api.ElementID
	senders []*api.Sender
	cancels map[api.ElementID]context.CancelFunc

	runMu   sync.Mutex
	group   *supervisor.Group
	stopped bool
}

var _ api.Flow = (*Flow)(nil)

// newFlow builds every node of cfg. Wires are resolved against the complete
// set of nodes before any factory runs, so the order of records in the
// export does not matter. Any error releases what was built.
func newFlow(cfg *api.FlowConfig, env *shared) (*Flow, error) {
	f := &Flow{
		id:       cfg.ID,
		label:    cfg.Label,
		disabled: cfg.Disabled,
		env:      env,
		logger:   env.logger.With(slog.String("flow_id", cfg.ID.String())),
		store:    api.NewContextStore(),
		cancels:  make(map[api.ElementID]context.CancelFunc),
	}

	factories := make([]api.NodeFactory, len(cfg.Nodes))
	for i := range cfg.Nodes {
		nc := &cfg.Nodes[i]
		factory, ok := env.registry.Node(nc.Type)
		if !ok {
			return nil, fmt.Errorf("%w: node type %q (node %s)", api.ErrNotSupported, nc.Type, nc.ID)
		}
		factories[i] = factory
	}

	bases := make(map[api.ElementID]*api.BaseNode, len(cfg.Nodes))
	for i := range cfg.Nodes {
		nc := &cfg.Nodes[i]
		if _, dup := bases[nc.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node id %s in flow %s", api.ErrBadFlowsJSON, nc.ID, f.id)
		}
		bases[nc.ID] = api.NewBaseNode(f, nc, env.capacity)
	}

	// Disabled nodes never run, so wires into them are dropped. A disabled
	// flow keeps its port layout but delivers nowhere.
	for i := range cfg.Nodes {
		nc := &cfg.Nodes[i]
		ports := make([]api.Port, len(nc.Wires))
		for p, targets := range nc.Wires {
			for _, target := range targets {
				dst, ok := bases[target]
				if !ok {
					f.releaseSenders()
					return nil, fmt.Errorf("%w: node %s port %d wires to unknown node %s", api.ErrBadFlowsJSON, nc.ID, p, target)
				}
				if f.disabled || dst.Disabled() {
					continue
				}
				s := dst.Mailbox().NewSender()
				f.senders = append(f.senders, s)
				ports[p].Wires = append(ports[p].Wires, api.Wire{Target: target, Sender: s})
			}
		}
		bases[nc.ID].SetPorts(ports)
	}

	nodes := make(map[api.ElementID]api.Node, len(cfg.Nodes))
	order := make([]api.ElementID, 0, len(cfg.Nodes))
	for i := range cfg.Nodes {
		nc := &cfg.Nodes[i]
		node, err := factories[i](f, bases[nc.ID], nc)
		if err == nil && node == nil {
			err = fmt.Errorf("factory returned no node")
		}
		if err != nil {
			f.releaseSenders()
			return nil, fmt.Errorf("build %s node %s: %w", nc.Type, nc.ID, err)
		}
		nodes[nc.ID] = node
		order = append(order, nc.ID)
	}

	f.mu.Lock()
	f.nodes, f.order = nodes, order
	f.mu.Unlock()
	return f, nil
}

func (f *Flow) releaseSenders() {
	for _, s := range f.senders {
		s.Release()
	}
}

func (f *Flow) ID() api.ElementID                { return f.id }
func (f *Flow) Label() string                    { return f.label }
func (f *Flow) Disabled() bool                   { return f.disabled }
func (f *Flow) Context() *api.ContextStore       { return f.store }
func (f *Flow) GlobalContext() *api.ContextStore { return f.env.globalCtx }
func (f *Flow) Observer() api.Observer           { return f.env.observer }
func (f *Flow) Logger() *slog.Logger             { return f.logger }

func (f *Flow) info() api.FlowInfo {
	return api.FlowInfo{ID: f.id, Label: f.label}
}

func (f *Flow) GlobalNode(id api.ElementID) (api.GlobalNode, bool) {
	n, ok := f.env.globalNodes[id]
	return n, ok
}

// Node returns the node with the given id.
func (f *Flow) Node(id api.ElementID) (api.Node, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, ok := f.nodes[id]
	return n, ok
}

// Nodes returns the nodes in start order.
func (f *Flow) Nodes() []api.Node {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]api.Node, len(f.order))
	for i, id := range f.order {
		out[i] = f.nodes[id]
	}
	return out
}

// NodeState reports the lifecycle state of a node.
func (f *Flow) NodeState(id api.ElementID) (api.NodeState, bool) {
	n, ok := f.Node(id)
	if !ok {
		return 0, false
	}
	return n.Base().State(), true
}

// Start launches every enabled node in topological order under a child of
// ctx. A disabled flow is left constructed.
func (f *Flow) Start(ctx context.Context) error {
	f.runMu.Lock()
	defer f.runMu.Unlock()

	if f.group != nil {
		return fmt.Errorf("%w: flow %s already started", api.ErrInvalidOperation, f.id)
	}
	f.group = supervisor.New(ctx, f.logger)

	if f.disabled {
		f.logger.InfoContext(ctx, "flow_disabled", slog.String("label", f.label))
		return nil
	}

	for _, node := range f.Nodes() {
		if node.Base().Disabled() {
			continue
		}
		if err := f.startNode(ctx, node); err != nil {
			return err
		}
	}
	f.env.observer.OnFlowStart(ctx, f.info())
	return nil
}

func (f *Flow) startNode(ctx context.Context, node api.Node) error {
	base := node.Base()
	info := base.Info()
	obs := f.env.observer

	base.SetState(api.NodeStarted)
	obs.OnNodeStart(ctx, info)
	startedAt := time.Now()

	cancel, err := f.group.Spawn(supervisor.Task{
		Name: info.Type + "/" + info.ID.String(),
		Run:  node.Run,
		OnPanic: func(ctx context.Context, perr *supervisor.PanicError) {
			obs.OnNodeError(ctx, info, perr)
		},
		OnExit: func() {
			base.Close()
			base.SetState(api.NodeStopped)
			obs.OnNodeStop(context.Background(), info, time.Since(startedAt))
		},
	})
	if err != nil {
		base.SetState(api.NodeStopped)
		return fmt.Errorf("start node %s: %w", info.ID, err)
	}

	f.mu.Lock()
	f.cancels[info.ID] = cancel
	f.mu.Unlock()
	return nil
}

// CancelNode cancels a single running node. Other nodes keep running.
func (f *Flow) CancelNode(id api.ElementID) error {
	f.mu.RLock()
	node, ok := f.nodes[id]
	cancel := f.cancels[id]
	f.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: unknown node %s", api.ErrInvalidOperation, id)
	}
	if cancel == nil {
		return fmt.Errorf("%w: node %s is not running", api.ErrInvalidOperation, id)
	}
	if node.Base().State() == api.NodeStarted {
		node.Base().SetState(api.NodeStopping)
	}
	cancel()
	return nil
}

// Stop cancels every node and waits for their goroutines, bounded by ctx.
// Stop is idempotent; a flow that was never started has nothing to stop.
func (f *Flow) Stop(ctx context.Context) error {
	f.runMu.Lock()
	defer f.runMu.Unlock()

	if f.group == nil || f.stopped {
		return nil
	}
	f.stopped = true

	for _, node := range f.Nodes() {
		if node.Base().State() == api.NodeStarted {
			node.Base().SetState(api.NodeStopping)
		}
	}

	err := f.group.Stop(ctx)
	f.releaseSenders()
	if !f.disabled {
		f.env.observer.OnFlowStop(ctx, f.info())
	}
	if err != nil {
		return fmt.Errorf("stop flow %s: %w", f.id, err)
	}
	return nil
}

// delivery is one planned send of a fan-out call.
type delivery struct {
	port int
	wire api.Wire
	msg  *api.Msg
}

func (f *Flow) FanOutPort(ctx context.Context, src api.ElementID, port int, msg *api.Msg) error {
	return f.FanOutSinglePort(ctx, src, port, []*api.Msg{msg})
}

func (f *Flow) FanOutSinglePort(ctx context.Context, src api.ElementID, port int, msgs []*api.Msg) error {
	base, err := f.source(src)
	if err != nil {
		return err
	}
	ports := base.Ports()
	if port < 0 || port >= len(ports) {
		return fmt.Errorf("%w: node %s has no output port %d", api.ErrInvalidOperation, src, port)
	}

	var plan planner
	plan.add(port, ports[port], msgs)
	return f.deliver(ctx, base, plan.deliveries)
}

func (f *Flow) FanOutAll(ctx context.Context, src api.ElementID, msgs []*api.Msg) error {
	base, err := f.source(src)
	if err != nil {
		return err
	}
	ports := base.Ports()
	if len(msgs) > len(ports) {
		return fmt.Errorf("%w: node %s has %d output port(s), got %d message(s)", api.ErrInvalidOperation, src, len(ports), len(msgs))
	}

	var plan planner
	for port, msg := range msgs {
		if msg != nil {
			plan.add(port, ports[port], []*api.Msg{msg})
		}
	}
	return f.deliver(ctx, base, plan.deliveries)
}

func (f *Flow) source(src api.ElementID) (*api.BaseNode, error) {
	node, ok := f.Node(src)
	if !ok {
		return nil, fmt.Errorf("%w: unknown source node %s", api.ErrInvalidOperation, src)
	}
	return node.Base(), nil
}

// planner decides, before anything is sent, which delivery receives the
// original message and which receive clones. Cloning up front keeps the
// sender from reading a message that a receiver already owns.
type planner struct {
	deliveries []delivery
	moved      map[*api.Msg]bool
}

func (p *planner) add(port int, out api.Port, msgs []*api.Msg) {
	if p.moved == nil {
		p.moved = make(map[*api.Msg]bool)
	}
	for _, w := range out.Wires {
		for _, m := range msgs {
			if m == nil {
				continue
			}
			d := delivery{port: port, wire: w, msg: m}
			if p.moved[m] {
				d.msg = m.Clone()
			}
			p.moved[m] = true
			p.deliveries = append(p.deliveries, d)
		}
	}
}

func (f *Flow) deliver(ctx context.Context, from *api.BaseNode, plan []delivery) error {
	info := from.Info()
	for _, d := range plan {
		if err := d.wire.Sender.Send(ctx, d.msg); err != nil {
			return fmt.Errorf("deliver from %s port %d to %s: %w", info.ID, d.port, d.wire.Target, err)
		}
		f.env.observer.OnMessageSent(ctx, info, d.port, d.wire.Target)
	}
	return nil
}
