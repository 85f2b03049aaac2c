package nodes

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/petrijr/wireflow/pkg/api"
	"github.com/petrijr/wireflow/pkg/eval"
	"github.com/petrijr/wireflow/pkg/variant"
)

type changeRuleConfig struct {
	T     string `json:"t"`
	P     string `json:"p"`
	PT    string `json:"pt"`
	To    any    `json:"to"`
	ToT   string `json:"tot"`
	From  any    `json:"from"`
	FromT string `json:"fromt"`
}

type changeConfig struct {
	Rules []changeRuleConfig `json:"rules"`
}

type changeAction string

const (
	actionSet    changeAction = "set"
	actionChange changeAction = "change"
	actionDelete changeAction = "delete"
	actionMove   changeAction = "move"
)

type changeRule struct {
	action changeAction
	target eval.Property
	to     eval.Property
	from   eval.Property
}

type changeNode struct {
	*api.BaseNode

	eval  *eval.Evaluator
	rules []changeRule
}

func (o *options) newChange(_ api.Flow, base *api.BaseNode, cfg *api.NodeConfig) (api.Node, error) {
	var c changeConfig
	if err := cfg.Decode(&c); err != nil {
		return nil, fmt.Errorf("change config: %w", err)
	}

	n := &changeNode{BaseNode: base, eval: o.evaluator}
	for i, rc := range c.Rules {
		rule, err := compileChangeRule(rc)
		if err != nil {
			return nil, fmt.Errorf("change rule %d: %w", i, err)
		}
		n.rules = append(n.rules, rule)
	}
	return n, nil
}

func compileChangeRule(rc changeRuleConfig) (changeRule, error) {
	r := changeRule{action: changeAction(rc.T)}

	target, err := assignable(rc.P, rc.PT)
	if err != nil {
		return r, err
	}
	r.target = target

	switch r.action {
	case actionDelete:
	case actionSet:
		if r.to, err = eval.NewProperty(rc.To, eval.PropertyType(rc.ToT)); err != nil {
			return r, fmt.Errorf("to: %w", err)
		}
	case actionChange:
		if r.from, err = eval.NewProperty(rc.From, eval.PropertyType(rc.FromT)); err != nil {
			return r, fmt.Errorf("from: %w", err)
		}
		if r.to, err = eval.NewProperty(rc.To, eval.PropertyType(rc.ToT)); err != nil {
			return r, fmt.Errorf("to: %w", err)
		}
	case actionMove:
		to, _ := rc.To.(string)
		if r.to, err = assignable(to, rc.ToT); err != nil {
			return r, fmt.Errorf("to: %w", err)
		}
	default:
		return r, fmt.Errorf("%w: change action %q", api.ErrNotSupported, rc.T)
	}
	return r, nil
}

// assignable prepares a msg, flow or global property that rules write to.
func assignable(path, typ string) (eval.Property, error) {
	if typ == "" {
		typ = string(eval.TypeMsg)
	}
	switch t := eval.PropertyType(typ); t {
	case eval.TypeMsg, eval.TypeFlow, eval.TypeGlobal:
		return eval.NewProperty(path, t)
	}
	return eval.Property{}, fmt.Errorf("%w: cannot assign to %q property", api.ErrNotSupported, typ)
}

func (n *changeNode) Run(ctx context.Context) {
	serve(ctx, n.BaseNode, func(ctx context.Context, msg *api.Msg) error {
		if err := n.apply(ctx, msg); err != nil {
			return err
		}
		return forward(ctx, n.BaseNode, msg)
	})
}

// apply runs every rule in order; later rules see the effect of earlier
// ones.
func (n *changeNode) apply(ctx context.Context, msg *api.Msg) error {
	scope := eval.ScopeFor(n.Flow(), msg)
	for i, r := range n.rules {
		if err := n.applyRule(ctx, r, scope); err != nil {
			return fmt.Errorf("change rule %d (%s %s.%s): %w", i, r.action, r.target.Type, r.target.Source, err)
		}
	}
	return nil
}

func (n *changeNode) applyRule(ctx context.Context, r changeRule, scope eval.Scope) error {
	switch r.action {
	case actionSet:
		v, err := n.eval.Evaluate(ctx, r.to, scope)
		if err != nil {
			return err
		}
		return eval.SetTarget(scope, r.target.Type, r.target.Source, variant.Clone(v))

	case actionDelete:
		return eval.DeleteTarget(scope, r.target.Type, r.target.Source)

	case actionMove:
		v, err := n.eval.Evaluate(ctx, r.target, scope)
		if err != nil {
			return err
		}
		if variant.IsNull(v) {
			return nil
		}
		v = variant.Clone(v)
		if err := eval.DeleteTarget(scope, r.target.Type, r.target.Source); err != nil {
			return err
		}
		return eval.SetTarget(scope, r.to.Type, r.to.Source, v)

	case actionChange:
		cur, err := n.eval.Evaluate(ctx, r.target, scope)
		if err != nil {
			return err
		}
		from, err := n.eval.Evaluate(ctx, r.from, scope)
		if err != nil {
			return err
		}
		to, err := n.eval.Evaluate(ctx, r.to, scope)
		if err != nil {
			return err
		}
		next, changed := replaceValue(cur, from, r.from.Regexp(), to)
		if !changed {
			return nil
		}
		return eval.SetTarget(scope, r.target.Type, r.target.Source, variant.Clone(next))
	}
	return fmt.Errorf("%w: change action %q", api.ErrNotSupported, r.action)
}

// replaceValue implements the "change" action. Inside strings every
// occurrence of from (or every regexp match) is replaced by the string form
// of to; when the whole value matches and to is not a string, the value is
// replaced by to. Numbers and booleans are replaced when equal to from.
func replaceValue(cur, from variant.Variant, re *regexp.Regexp, to variant.Variant) (variant.Variant, bool) {
	s, isString := cur.(variant.String)
	_, toString := to.(variant.String)

	switch {
	case isString && re != nil:
		if !re.MatchString(string(s)) {
			return nil, false
		}
		if !toString {
			if loc := re.FindStringIndex(string(s)); loc[0] == 0 && loc[1] == len(s) {
				return to, true
			}
		}
		repl, _ := scalarString(to)
		return variant.String(re.ReplaceAllString(string(s), repl)), true

	case isString:
		old, ok := scalarString(from)
		if !ok || old == "" || !strings.Contains(string(s), old) {
			return nil, false
		}
		if !toString && string(s) == old {
			return to, true
		}
		repl, _ := scalarString(to)
		return variant.String(strings.ReplaceAll(string(s), old, repl)), true

	case variant.KindOf(cur) == variant.KindNumber || variant.KindOf(cur) == variant.KindBool:
		if looseEqual(cur, from) {
			return to, true
		}
	}
	return nil, false
}
