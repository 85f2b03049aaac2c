package nodes

import (
	"context"

	"github.com/petrijr/wireflow/pkg/api"
)

// junctionNode forwards every message unchanged.
type junctionNode struct {
	*api.BaseNode
}

func newJunction(_ api.Flow, base *api.BaseNode, _ *api.NodeConfig) (api.Node, error) {
	return &junctionNode{BaseNode: base}, nil
}

func (n *junctionNode) Run(ctx context.Context) {
	serve(ctx, n.BaseNode, func(ctx context.Context, msg *api.Msg) error {
		return forward(ctx, n.BaseNode, msg)
	})
}
