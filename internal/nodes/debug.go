package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/petrijr/wireflow/pkg/api"
	"github.com/petrijr/wireflow/pkg/propex"
	"github.com/petrijr/wireflow/pkg/variant"
)

type debugConfig struct {
	Active   *flag `json:"active"`
	Complete text  `json:"complete"`
	Console  flag  `json:"console"`
}

type debugNode struct {
	*api.BaseNode

	active  bool
	whole   bool
	path    []propex.Segment
	console bool
}

func (o *options) newDebug(_ api.Flow, base *api.BaseNode, cfg *api.NodeConfig) (api.Node, error) {
	var c debugConfig
	if err := cfg.Decode(&c); err != nil {
		return nil, fmt.Errorf("debug config: %w", err)
	}

	n := &debugNode{
		BaseNode: base,
		active:   c.Active == nil || bool(*c.Active),
		console:  bool(c.Console),
	}

	switch complete := strings.TrimSpace(string(c.Complete)); complete {
	case "true":
		n.whole = true
	case "", "false":
		n.path = []propex.Segment{propex.Key(api.PayloadKey)}
	default:
		segs, err := propex.Parse(complete)
		if err != nil {
			return nil, fmt.Errorf("debug property %q: %w", complete, err)
		}
		n.path = segs
	}
	return n, nil
}

func (n *debugNode) Run(ctx context.Context) {
	serve(ctx, n.BaseNode, n.handle)
}

func (n *debugNode) handle(ctx context.Context, msg *api.Msg) error {
	if !n.active {
		return nil
	}

	var value variant.Variant = variant.Null{}
	if n.whole {
		value = msg.ToVariant()
	} else if v, ok, err := variant.Lookup(msg.Body(), n.path); err != nil {
		return err
	} else if ok {
		value = v
	}

	if n.console {
		n.Logger().InfoContext(ctx, "debug", slog.String("value", variant.Format(value)))
	}
	n.Flow().Observer().OnDebug(ctx, n.Info(), value)
	return nil
}
