// Package engine builds flows from loaded configuration and runs them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/wireflow/pkg/api"
)

// RollbackTimeout bounds the wait for nodes that were already started when
// Start fails part way.
const RollbackTimeout = 10 * time.Second

// Config describes how to construct an Engine. The zero value is usable.
type Config struct {
	Logger   *slog.Logger
	Observer api.Observer

	// ChannelCapacity is the mailbox size of every node. Zero selects
	// api.DefaultMailboxCapacity.
	ChannelCapacity int

	// RunID labels this engine run in journals. Empty generates a UUID.
	RunID string
}

// Engine owns global nodes and flows. Flows are started in load order and
// stopped in reverse order.
type Engine struct {
	runID  string
	logger *slog.Logger
	env    *shared

	globals []api.GlobalNode
	flows   []*Flow

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	stopped bool
}

// New builds every global node and flow of set. Unknown global node types
// are skipped with a warning; any other error aborts construction.
func New(reg *api.Registry, set *api.FlowSet, cfg Config) (*Engine, error) {
	if reg == nil || set == nil {
		return nil, fmt.Errorf("%w: registry and flow set are required", api.ErrInvalidOperation)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger = logger.With(slog.String("run_id", runID))

	e := &Engine{
		runID:  runID,
		logger: logger,
		env: &shared{
			registry:    reg,
			globalCtx:   api.NewContextStore(),
			globalNodes: make(map[api.ElementID]api.GlobalNode, len(set.Globals)),
			observer:    obs,
			logger:      logger,
			capacity:    cfg.ChannelCapacity,
		},
	}

	for i := range set.Globals {
		gc := &set.Globals[i]
		factory, ok := reg.Global(gc.Type)
		if !ok {
			logger.Warn("skipping global node of unknown type",
				slog.String("node_id", gc.ID.String()),
				slog.String("node_type", gc.Type),
			)
			continue
		}
		node, err := factory(gc)
		if err != nil {
			e.closeGlobals()
			return nil, fmt.Errorf("build %s global node %s: %w", gc.Type, gc.ID, err)
		}
		if node == nil {
			continue
		}
		e.globals = append(e.globals, node)
		e.env.globalNodes[gc.ID] = node
	}

	for i := range set.Flows {
		flow, err := newFlow(&set.Flows[i], e.env)
		if err != nil {
			for _, built := range e.flows {
				built.releaseSenders()
			}
			e.closeGlobals()
			return nil, fmt.Errorf("build flow %s: %w", set.Flows[i].ID, err)
		}
		e.flows = append(e.flows, flow)
	}

	return e, nil
}

// RunID returns the identifier of this engine run.
func (e *Engine) RunID() string { return e.runID }

// GlobalContext returns the context store shared by all flows.
func (e *Engine) GlobalContext() *api.ContextStore { return e.env.globalCtx }

// Flows returns the flows in load order.
func (e *Engine) Flows() []*Flow {
	return append([]*Flow(nil), e.flows...)
}

// Flow returns the flow with the given id.
func (e *Engine) Flow(id api.ElementID) (*Flow, bool) {
	for _, f := range e.flows {
		if f.id == id {
			return f, true
		}
	}
	return nil, false
}

// GlobalNode returns a built global node.
func (e *Engine) GlobalNode(id api.ElementID) (api.GlobalNode, bool) {
	n, ok := e.env.globalNodes[id]
	return n, ok
}

// Start starts every flow. Cancelling ctx stops all nodes; Stop must still
// be called to join them.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("%w: engine already started", api.ErrInvalidOperation)
	}
	e.started = true

	root, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.logger.InfoContext(ctx, "engine_start", slog.Int("flows", len(e.flows)))
	for i, f := range e.flows {
		if err := f.Start(root); err != nil {
			cancel()
			errs := []error{fmt.Errorf("start flow %s: %w", f.id, err)}
			errs = append(errs, e.rollback(ctx, i)...)
			e.stopped = true
			return errors.Join(errs...)
		}
	}
	return nil
}

// rollback stops the flows up to and including failed, bounded by
// RollbackTimeout, and releases the senders of flows never started.
func (e *Engine) rollback(ctx context.Context, failed int) []error {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RollbackTimeout)
	defer cancel()

	var errs []error
	for j := failed; j >= 0; j-- {
		if err := e.flows[j].Stop(stopCtx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, f := range e.flows[failed+1:] {
		f.releaseSenders()
	}
	return errs
}

// Stop stops flows in reverse order, waits for their nodes to finish
// (bounded by ctx) and closes global nodes. It is safe to call more than
// once.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return nil
	}
	e.stopped = true

	var errs []error
	for i := len(e.flows) - 1; i >= 0; i-- {
		if err := e.flows[i].Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if e.cancel != nil {
		e.cancel()
	}
	if !e.started {
		for _, f := range e.flows {
			f.releaseSenders()
		}
	}
	errs = append(errs, e.closeGlobals()...)

	e.logger.InfoContext(ctx, "engine_stop")
	return errors.Join(errs...)
}

func (e *Engine) closeGlobals() []error {
	var errs []error
	for i := len(e.globals) - 1; i >= 0; i-- {
		c, ok := e.globals[i].(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close global node %s: %w", e.globals[i].ID(), err))
		}
	}
	e.globals = nil
	return errs
}
