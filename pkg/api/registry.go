package api

import (
	"fmt"
	"sort"
	"sync"
)

// NodeFactory builds a node of a registered type. base already carries the
// node identity, mailbox and resolved ports.
type NodeFactory func(flow Flow, base *BaseNode, cfg *NodeConfig) (Node, error)

// GlobalFactory builds a global node.
type GlobalFactory func(cfg *GlobalNodeConfig) (GlobalNode, error)

// Registry maps node type names to factories. It is populated at startup and
// passed to the engine explicitly.
type Registry struct {
	mu      sync.RWMutex
	nodes   map[string]NodeFactory
	globals map[string]GlobalFactory
}

func NewRegistry() *Registry {
	return &Registry{
		nodes:   make(map[string]NodeFactory),
		globals: make(map[string]GlobalFactory),
	}
}

// RegisterNode registers a flow node type.
func (r *Registry) RegisterNode(typ string, f NodeFactory) error {
	if typ == "" || f == nil {
		return fmt.Errorf("%w: node type and factory are required", ErrInvalidOperation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[typ]; exists {
		return fmt.Errorf("node type %q already registered", typ)
	}
	r.nodes[typ] = f
	return nil
}

// RegisterGlobal registers a global node type.
func (r *Registry) RegisterGlobal(typ string, f GlobalFactory) error {
	if typ == "" || f == nil {
		return fmt.Errorf("%w: global node type and factory are required", ErrInvalidOperation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.globals[typ]; exists {
		return fmt.Errorf("global node type %q already registered", typ)
	}
	r.globals[typ] = f
	return nil
}

func (r *Registry) Node(typ string) (NodeFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.nodes[typ]
	return f, ok
}

func (r *Registry) Global(typ string) (GlobalFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.globals[typ]
	return f, ok
}

// NodeTypes returns the registered flow node types in sorted order.
func (r *Registry) NodeTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.nodes))
	for t := range r.nodes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
