package nodes

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/petrijr/wireflow/pkg/api"
	"github.com/petrijr/wireflow/pkg/propex"
	"github.com/petrijr/wireflow/pkg/variant"
)

type rangeAction string

const (
	rangeScale rangeAction = "scale"
	rangeClamp rangeAction = "clamp"
	rangeRoll  rangeAction = "roll"
	rangeDrop  rangeAction = "drop"
)

type rangeConfig struct {
	Action   string `json:"action"`
	Round    flag   `json:"round"`
	MinIn    text   `json:"minin"`
	MaxIn    text   `json:"maxin"`
	MinOut   text   `json:"minout"`
	MaxOut   text   `json:"maxout"`
	Property string `json:"property"`
}

type rangeNode struct {
	*api.BaseNode

	action                       rangeAction
	round                        bool
	minIn, maxIn, minOut, maxOut float64
	property                     string
}

func newRange(_ api.Flow, base *api.BaseNode, cfg *api.NodeConfig) (api.Node, error) {
	var c rangeConfig
	if err := cfg.Decode(&c); err != nil {
		return nil, fmt.Errorf("range config: %w", err)
	}

	n := &rangeNode{BaseNode: base, round: bool(c.Round), property: strings.TrimSpace(c.Property)}

	switch a := rangeAction(strings.ToLower(c.Action)); a {
	case "":
		n.action = rangeScale
	case rangeScale, rangeClamp, rangeRoll, rangeDrop:
		n.action = a
	default:
		return nil, fmt.Errorf("%w: range action %q", api.ErrNotSupported, c.Action)
	}

	if n.property == "" {
		n.property = api.PayloadKey
	}
	if _, err := propex.Parse(n.property); err != nil {
		return nil, fmt.Errorf("range property %q: %w", n.property, err)
	}

	bounds := []struct {
		name string
		src  text
		dst  *float64
	}{
		{"minin", c.MinIn, &n.minIn},
		{"maxin", c.MaxIn, &n.maxIn},
		{"minout", c.MinOut, &n.minOut},
		{"maxout", c.MaxOut, &n.maxOut},
	}
	for _, b := range bounds {
		f, _, err := b.src.Float()
		if err != nil {
			return nil, fmt.Errorf("range %s: %w", b.name, err)
		}
		*b.dst = f
	}
	if n.minIn == n.maxIn {
		return nil, fmt.Errorf("%w: range input bounds are equal (%v)", api.ErrBadFlowsJSON, n.minIn)
	}
	return n, nil
}

func (n *rangeNode) Run(ctx context.Context) {
	serve(ctx, n.BaseNode, func(ctx context.Context, msg *api.Msg) error {
		keep, err := n.apply(msg)
		if err != nil || !keep {
			return err
		}
		return forward(ctx, n.BaseNode, msg)
	})
}

// apply maps the configured property in place. It reports false when the
// message must be dropped.
func (n *rangeNode) apply(msg *api.Msg) (bool, error) {
	v, ok, err := msg.GetNav(n.property)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	var x float64
	switch t := v.(type) {
	case variant.Number:
		x = float64(t)
	case variant.String:
		if x, err = strconv.ParseFloat(strings.TrimSpace(string(t)), 64); err != nil {
			return false, fmt.Errorf("range input %q is not a number", string(t))
		}
	default:
		return false, fmt.Errorf("range input of type %s is not a number", variant.TypeName(v))
	}

	out, keep := n.scale(x)
	if !keep {
		return false, nil
	}
	return true, msg.SetNav(n.property, variant.Number(out), true)
}

func (n *rangeNode) scale(x float64) (float64, bool) {
	switch n.action {
	case rangeDrop:
		if x < n.minIn || x > n.maxIn {
			return 0, false
		}
	case rangeClamp:
		x = math.Min(math.Max(x, n.minIn), n.maxIn)
	case rangeRoll:
		span := n.maxIn - n.minIn
		x = math.Mod(math.Mod(x-n.minIn, span)+span, span) + n.minIn
	}

	out := (x-n.minIn)/(n.maxIn-n.minIn)*(n.maxOut-n.minOut) + n.minOut
	if n.round {
		out = math.Floor(out + 0.5)
	}
	return out, true
}
