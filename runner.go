package wireflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/petrijr/wireflow/internal/journal"
)

// Runner bundles a registry with the built-in nodes, an engine, a runtime
// journal and the standard observers into one process-level helper.
//
// Typical usage:
//
//	set, _ := wireflow.LoadFile("flows.json")
//	runner, err := wireflow.NewRunner(ctx, set, wireflow.DefaultConfig(), wireflow.RunnerOptions{})
//	...
//	err = runner.Run(ctx) // blocks until ctx is done, then stops
type Runner struct {
	// Engine runs the flows of the loaded set.
	Engine *Engine

	// Metrics counts lifecycle events and messages of this run.
	Metrics *BasicMetrics

	cfg     Config
	logger  *slog.Logger
	journal *journal.Handle

	mu      sync.Mutex
	started bool
	stopped bool
}

// RunnerOptions customizes NewRunner. The zero value is usable.
type RunnerOptions struct {
	// Registry replaces the built-in registry.
	Registry *Registry

	Logger *slog.Logger

	// Observers receive callbacks next to the logging, metrics and journal
	// observers.
	Observers []Observer
}

// NewRunner opens the configured journal and builds an engine for set.
func NewRunner(ctx context.Context, set *FlowSet, cfg Config, opts RunnerOptions) (*Runner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := opts.Registry
	if reg == nil {
		var err error
		if reg, err = NewRegistry(nil); err != nil {
			return nil, err
		}
	}

	jh, err := journal.Open(ctx, cfg.Journal.Driver, cfg.Journal.DSN, cfg.Journal.Prefix)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	metrics := &BasicMetrics{}
	observers := append([]Observer{
		NewLoggingObserver(logger),
		metrics,
		journal.NewObserver(jh, runID, logger),
	}, opts.Observers...)

	eng, err := NewEngine(reg, set, EngineConfig{
		Logger:          logger,
		Observer:        NewCompositeObserver(observers...),
		ChannelCapacity: cfg.Runtime.ChannelCapacity,
		RunID:           runID,
	})
	if err != nil {
		_ = jh.Close()
		return nil, err
	}

	return &Runner{
		Engine:  eng,
		Metrics: metrics,
		cfg:     cfg,
		logger:  logger,
		journal: jh,
	}, nil
}

// RunID returns the id under which this run is journaled.
func (r *Runner) RunID() string {
	return r.Engine.RunID()
}

// History returns the journal entries of this run. It is empty when the
// journal driver is "none". SQL and Redis journals are closed by Stop, so
// read them before stopping.
func (r *Runner) History(ctx context.Context) ([]RuntimeEvent, error) {
	return r.journal.List(ctx, r.RunID())
}

// Start starts every enabled flow.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return errors.New("wireflow: runner already stopped")
	}
	if r.started {
		return errors.New("wireflow: runner already started")
	}
	if err := r.Engine.Start(ctx); err != nil {
		return err
	}
	r.started = true
	return nil
}

// Stop stops the engine, waiting at most the configured stop timeout, and
// closes the journal. Calling Stop more than once is a no-op.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()

	if r.cfg.Runtime.StopTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Runtime.StopTimeout)
		defer cancel()
	}

	stopErr := r.Engine.Stop(ctx)
	if err := r.journal.Close(); err != nil {
		stopErr = errors.Join(stopErr, fmt.Errorf("close journal: %w", err))
	}
	return stopErr
}

// Run starts the flows, blocks until ctx is done and stops them.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		_ = r.Stop(ctx)
		return err
	}
	r.logger.InfoContext(ctx, "runner_started", slog.String("run_id", r.RunID()))

	<-ctx.Done()

	err := r.Stop(ctx)
	snap := r.Metrics.Snapshot()
	r.logger.InfoContext(ctx, "runner_stopped",
		slog.String("run_id", r.RunID()),
		slog.Int64("messages_sent", snap.MessagesSent),
		slog.Int64("node_errors", snap.NodeErrors),
	)
	return err
}
