package wireflow

import (
	"github.com/petrijr/wireflow/internal/config"
	"github.com/petrijr/wireflow/internal/engine"
	"github.com/petrijr/wireflow/internal/loader"
	"github.com/petrijr/wireflow/internal/nodes"
	"github.com/petrijr/wireflow/pkg/api"
	"github.com/petrijr/wireflow/pkg/eval"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	ElementID            = api.ElementID
	Msg                  = api.Msg
	Node                 = api.Node
	BaseNode             = api.BaseNode
	Flow                 = api.Flow
	NodeConfig           = api.NodeConfig
	FlowSet              = api.FlowSet
	Registry             = api.Registry
	NodeFactory          = api.NodeFactory
	RuntimeEvent         = api.RuntimeEvent
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver

	Engine       = engine.Engine
	EngineConfig = engine.Config
	Config       = config.Config

	ExpressionEvaluator = eval.ExpressionEvaluator
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	NewMsg               = api.NewMsgWithPayload
	DefaultConfig        = config.Default
)

// Re-export error sentinels for errors.Is checks.

var (
	ErrBadFlowsJSON     = api.ErrBadFlowsJSON
	ErrNotSupported     = api.ErrNotSupported
	ErrInvalidOperation = api.ErrInvalidOperation
	ErrTaskCancelled    = api.ErrTaskCancelled
	ErrChannelClosed    = api.ErrChannelClosed
)

// Load parses a flow export.
func Load(data []byte) (*FlowSet, error) {
	return loader.Load(data)
}

// LoadFile reads and parses a flow export.
func LoadFile(path string) (*FlowSet, error) {
	return loader.LoadFile(path)
}

// NewRegistry returns a registry holding the built-in node types. A non-nil
// expr is used for jsonata properties.
func NewRegistry(expr ExpressionEvaluator) (*Registry, error) {
	reg := api.NewRegistry()
	var opts []nodes.Option
	if expr != nil {
		opts = append(opts, nodes.WithEvaluator(eval.NewEvaluator(eval.WithExpressionEvaluator(expr))))
	}
	if err := nodes.RegisterBuiltins(reg, opts...); err != nil {
		return nil, err
	}
	return reg, nil
}

// NewEngine builds an engine for set. Nothing runs until Start.
func NewEngine(reg *Registry, set *FlowSet, cfg EngineConfig) (*Engine, error) {
	return engine.New(reg, set, cfg)
}
