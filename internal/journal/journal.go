// Package journal records runtime events (flow and node lifecycle, node
// errors, debug output) keyed by engine run id.
//
// The journal is append-only and is never read back when an engine starts.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/petrijr/wireflow/pkg/api"
)

// Store is an append-only history of runtime events.
type Store interface {
	Append(ctx context.Context, ev api.RuntimeEvent) error
	// List returns the events of one run in append order.
	List(ctx context.Context, runID string) ([]api.RuntimeEvent, error)
}

// NoopStore discards all events.
type NoopStore struct{}

func (NoopStore) Append(context.Context, api.RuntimeEvent) error { return nil }
func (NoopStore) List(context.Context, string) ([]api.RuntimeEvent, error) {
	return nil, nil
}

// MemoryStore keeps events in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]api.RuntimeEvent
}

var (
	_ Store = NoopStore{}
	_ Store = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]api.RuntimeEvent)}
}

func (s *MemoryStore) Append(_ context.Context, ev api.RuntimeEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[ev.RunID] = append(s.events[ev.RunID], ev)
	return nil
}

func (s *MemoryStore) List(_ context.Context, runID string) ([]api.RuntimeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]api.RuntimeEvent(nil), s.events[runID]...), nil
}
