package api

import (
	"fmt"
	"sync"

	"github.com/petrijr/wireflow/pkg/propex"
	"github.com/petrijr/wireflow/pkg/variant"
)

// ContextStore is the in-memory flow or global context. Values are copied on
// the way in and out so callers never share mutable state.
type ContextStore struct {
	mu   sync.RWMutex
	data variant.Object
}

func NewContextStore() *ContextStore {
	return &ContextStore{data: variant.Object{}}
}

// Get returns a copy of the value stored at the property expression.
func (s *ContextStore) Get(expr string) (variant.Variant, bool, error) {
	segs, err := contextSegments(expr)
	if err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok, err := variant.Lookup(s.data, segs)
	if err != nil || !ok {
		return nil, ok, err
	}
	return variant.Clone(v), true, nil
}

// Set stores a copy of v, creating intermediate containers as needed.
func (s *ContextStore) Set(expr string, v variant.Variant) error {
	segs, err := contextSegments(expr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	root, err := variant.Assign(s.data, segs, variant.Clone(v), true)
	if err != nil {
		return fmt.Errorf("set context %s: %w", expr, err)
	}
	s.data = root.(variant.Object)
	return nil
}

// Delete removes the value at the property expression.
func (s *ContextStore) Delete(expr string) (bool, error) {
	segs, err := contextSegments(expr)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	root, removed := variant.Remove(s.data, segs)
	s.data = root.(variant.Object)
	return removed, nil
}

// Keys returns the top-level keys in sorted order.
func (s *ContextStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return variant.Keys(s.data)
}

func contextSegments(expr string) ([]propex.Segment, error) {
	segs, err := propex.Parse(expr)
	if err != nil {
		return nil, err
	}
	if segs[0].Kind != propex.StringIndex {
		return nil, fmt.Errorf("%w: context key %q must start with a name", ErrInvalidOperation, expr)
	}
	return segs, nil
}
