// Package nodes implements the built-in node types: inject, debug,
// junction, switch, change, range, delay and udp out.
//
// Every node reads its configuration with api.NodeConfig.Decode, receives
// with WaitForMsg and sends with the FanOut family only.
package nodes

import (
	"github.com/petrijr/wireflow/pkg/api"
	"github.com/petrijr/wireflow/pkg/eval"
)

// Option configures the built-in node factories.
type Option func(*options)

type options struct {
	evaluator *eval.Evaluator
}

// WithEvaluator sets the evaluator used for typed properties. The default
// evaluator reads the process environment and has no expression engine.
func WithEvaluator(e *eval.Evaluator) Option {
	return func(o *options) { o.evaluator = e }
}

// RegisterBuiltins registers every built-in node type with reg.
func RegisterBuiltins(reg *api.Registry, opts ...Option) error {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.evaluator == nil {
		o.evaluator = eval.NewEvaluator()
	}

	builtins := []struct {
		typ     string
		factory api.NodeFactory
	}{
		{"inject", o.newInject},
		{"debug", o.newDebug},
		{"junction", newJunction},
		{"switch", o.newSwitch},
		{"change", o.newChange},
		{"range", newRange},
		{"delay", newDelay},
		{"udp out", newUDPOut},
	}
	for _, b := range builtins {
		if err := reg.RegisterNode(b.typ, b.factory); err != nil {
			return err
		}
	}
	return nil
}
