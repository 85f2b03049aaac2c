// Package supervisor runs goroutines under a shared cancellation scope and
// joins them on shutdown. A panic in one task is recovered and reported; it
// never takes down its siblings.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/petrijr/wireflow/pkg/api"
)

// ErrStopped is returned by Spawn once the group has been cancelled.
var ErrStopped = errors.New("supervisor: group stopped")

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Task  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Task, e.Value)
}

// Task describes one supervised goroutine.
type Task struct {
	Name string
	Run  func(ctx context.Context)

	// OnPanic is called with the recovered panic, before OnExit.
	OnPanic func(ctx context.Context, err *PanicError)
	// OnExit is always called once Run returned or panicked.
	OnExit func()
}

// Group is a set of tasks sharing a parent context.
type Group struct {
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
	running atomic.Int64
}

// New creates a group whose tasks are children of parent.
func New(parent context.Context, logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Group{logger: logger, ctx: ctx, cancel: cancel}
}

// Context returns the group scope. It is cancelled by Cancel or Stop.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Spawn starts t in its own goroutine under a child context and returns the
// function that cancels only that task.
func (g *Group) Spawn(t Task) (context.CancelFunc, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stopped || g.ctx.Err() != nil {
		return nil, ErrStopped
	}

	ctx, cancel := context.WithCancel(g.ctx)
	g.wg.Add(1)
	g.running.Add(1)
	go g.run(ctx, cancel, t)
	return cancel, nil
}

func (g *Group) run(ctx context.Context, cancel context.CancelFunc, t Task) {
	defer g.wg.Done()
	defer g.running.Add(-1)
	defer cancel()
	if t.OnExit != nil {
		defer t.OnExit()
	}

	defer func() {
		v := recover()
		if v == nil {
			return
		}
		perr := &PanicError{Task: t.Name, Value: v, Stack: debug.Stack()}
		g.logger.ErrorContext(ctx, "task_panic",
			slog.String("task", t.Name),
			slog.Any("panic", v),
			slog.String("stack", string(perr.Stack)),
		)
		if t.OnPanic != nil {
			t.OnPanic(ctx, perr)
		}
	}()

	t.Run(ctx)
}

// Running returns the number of tasks that have not returned yet.
func (g *Group) Running() int {
	return int(g.running.Load())
}

// Cancel cancels every task. Later Spawn calls fail.
func (g *Group) Cancel() {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()
	g.cancel()
}

// Wait blocks until every task returned or ctx is done. In the latter case
// the error wraps api.ErrTaskCancelled and tasks may still be running.
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %d task(s) still running: %w", api.ErrTaskCancelled, g.Running(), ctx.Err())
	}
}

// Stop cancels the group and waits for its tasks, bounded by ctx.
func (g *Group) Stop(ctx context.Context) error {
	g.Cancel()
	return g.Wait(ctx)
}
