package nodes

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	json "github.com/petrijr/wireflow/internal/xjson"
	"github.com/petrijr/wireflow/pkg/api"
	"github.com/petrijr/wireflow/pkg/eval"
	"github.com/petrijr/wireflow/pkg/variant"
)

type switchRuleConfig struct {
	T    string `json:"t"`
	V    any    `json:"v"`
	VT   string `json:"vt"`
	V2   any    `json:"v2"`
	V2T  string `json:"v2t"`
	Case bool   `json:"case"`
}

type switchConfig struct {
	Property     string             `json:"property"`
	PropertyType string             `json:"propertyType"`
	Rules        []switchRuleConfig `json:"rules"`
	CheckAll     *flag              `json:"checkall"`
}

type switchOp string

const (
	opEq       switchOp = "eq"
	opNeq      switchOp = "neq"
	opLt       switchOp = "lt"
	opLte      switchOp = "lte"
	opGt       switchOp = "gt"
	opGte      switchOp = "gte"
	opBtwn     switchOp = "btwn"
	opCont     switchOp = "cont"
	opRegex    switchOp = "regex"
	opTrue     switchOp = "true"
	opFalse    switchOp = "false"
	opNull     switchOp = "null"
	opNotNull  switchOp = "nnull"
	opEmpty    switchOp = "empty"
	opNotEmpty switchOp = "nempty"
	opIsType   switchOp = "istype"
	opHasKey   switchOp = "hask"
	opJSONata  switchOp = "jsonata_exp"
	opElse     switchOp = "else"
)

// switchRule is a compiled rule. Its index in the rule list is the output
// port it routes to.
type switchRule struct {
	op       switchOp
	v, v2    eval.Property
	hasV     bool
	hasV2    bool
	re       *regexp.Regexp
	typeName string
}

type switchNode struct {
	*api.BaseNode

	eval     *eval.Evaluator
	property eval.Property
	rules    []switchRule
	checkAll bool
}

func (o *options) newSwitch(_ api.Flow, base *api.BaseNode, cfg *api.NodeConfig) (api.Node, error) {
	var c switchConfig
	if err := cfg.Decode(&c); err != nil {
		return nil, fmt.Errorf("switch config: %w", err)
	}

	property, propertyType := c.Property, c.PropertyType
	if property == "" {
		property = api.PayloadKey
	}
	if propertyType == "" {
		propertyType = string(eval.TypeMsg)
	}
	prop, err := eval.NewProperty(property, eval.PropertyType(propertyType))
	if err != nil {
		return nil, fmt.Errorf("switch property: %w", err)
	}

	n := &switchNode{
		BaseNode: base,
		eval:     o.evaluator,
		property: prop,
		checkAll: c.CheckAll == nil || bool(*c.CheckAll),
	}
	for i, rc := range c.Rules {
		rule, err := compileSwitchRule(rc)
		if err != nil {
			return nil, fmt.Errorf("switch rule %d: %w", i, err)
		}
		n.rules = append(n.rules, rule)
	}
	return n, nil
}

func compileSwitchRule(rc switchRuleConfig) (switchRule, error) {
	r := switchRule{op: switchOp(rc.T)}

	switch r.op {
	case opTrue, opFalse, opNull, opNotNull, opEmpty, opNotEmpty, opElse:
		return r, nil
	case opIsType:
		r.typeName = rc.VT
		if s, ok := rc.V.(string); ok && s != "" {
			r.typeName = s
		}
		return r, nil
	case opRegex:
		pattern := fmt.Sprint(rc.V)
		if rc.Case {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return r, fmt.Errorf("regex %q: %w", rc.V, err)
		}
		r.re = re
		return r, nil
	case opJSONata:
		vt := rc.VT
		if vt == "" {
			vt = string(eval.TypeJSONata)
		}
		return r, r.setV(rc.V, vt)
	case opEq, opNeq, opLt, opLte, opGt, opGte, opCont, opHasKey:
		return r, r.setV(rc.V, rc.VT)
	case opBtwn:
		if err := r.setV(rc.V, rc.VT); err != nil {
			return r, err
		}
		v2, err := eval.NewProperty(rc.V2, eval.PropertyType(rc.V2T))
		if err != nil {
			return r, fmt.Errorf("v2: %w", err)
		}
		r.v2, r.hasV2 = v2, true
		return r, nil
	}
	return r, fmt.Errorf("%w: switch operator %q", api.ErrNotSupported, rc.T)
}

func (r *switchRule) setV(raw any, typ string) error {
	v, err := eval.NewProperty(raw, eval.PropertyType(typ))
	if err != nil {
		return fmt.Errorf("v: %w", err)
	}
	r.v, r.hasV = v, true
	return nil
}

func (n *switchNode) Run(ctx context.Context) {
	serve(ctx, n.BaseNode, n.handle)
}

func (n *switchNode) handle(ctx context.Context, msg *api.Msg) error {
	scope := eval.ScopeFor(n.Flow(), msg)
	value, err := n.eval.Evaluate(ctx, n.property, scope)
	if err != nil {
		return fmt.Errorf("switch property: %w", err)
	}

	outs := make([]*api.Msg, len(n.rules))
	matched := false
	for i, rule := range n.rules {
		ok, err := n.match(ctx, rule, value, scope, matched)
		if err != nil {
			return fmt.Errorf("switch rule %d: %w", i, err)
		}
		if !ok {
			continue
		}
		outs[i] = msg
		matched = true
		if !n.checkAll {
			break
		}
	}
	if !matched {
		return nil
	}

	if ports := len(n.Ports()); len(outs) > ports {
		outs = outs[:ports]
	}
	return n.FanOutAll(ctx, outs)
}

func (n *switchNode) match(ctx context.Context, r switchRule, a variant.Variant, scope eval.Scope, matched bool) (bool, error) {
	var b, c variant.Variant = variant.Null{}, variant.Null{}
	if r.hasV {
		v, err := n.eval.Evaluate(ctx, r.v, scope)
		if err != nil {
			return false, err
		}
		b = v
	}
	if r.hasV2 {
		v, err := n.eval.Evaluate(ctx, r.v2, scope)
		if err != nil {
			return false, err
		}
		c = v
	}

	switch r.op {
	case opEq:
		return looseEqual(a, b), nil
	case opNeq:
		return !looseEqual(a, b), nil
	case opLt, opLte, opGt, opGte:
		cmp, ok := looseCompare(a, b)
		if !ok {
			return false, nil
		}
		switch r.op {
		case opLt:
			return cmp < 0, nil
		case opLte:
			return cmp <= 0, nil
		case opGt:
			return cmp > 0, nil
		}
		return cmp >= 0, nil
	case opBtwn:
		x, ok1 := toNumber(a)
		lo, ok2 := toNumber(b)
		hi, ok3 := toNumber(c)
		if !ok1 || !ok2 || !ok3 {
			return false, nil
		}
		return (x >= lo && x <= hi) || (x <= lo && x >= hi), nil
	case opCont:
		s, ok := scalarString(a)
		sub, ok2 := scalarString(b)
		return ok && ok2 && strings.Contains(s, sub), nil
	case opRegex:
		s, ok := scalarString(a)
		return ok && r.re.MatchString(s), nil
	case opTrue:
		return variant.Equal(a, variant.Bool(true)), nil
	case opFalse:
		return variant.Equal(a, variant.Bool(false)), nil
	case opNull:
		return variant.IsNull(a), nil
	case opNotNull:
		return !variant.IsNull(a), nil
	case opEmpty:
		return variant.IsEmpty(a), nil
	case opNotEmpty:
		l, ok := variant.Len(a)
		return ok && l > 0, nil
	case opIsType:
		return isType(a, r.typeName), nil
	case opHasKey:
		obj, ok := variant.AsObject(a)
		key, ok2 := scalarString(b)
		if !ok || !ok2 {
			return false, nil
		}
		_, has := obj[key]
		return has, nil
	case opJSONata:
		return truthy(b), nil
	case opElse:
		return !matched, nil
	}
	return false, fmt.Errorf("%w: switch operator %q", api.ErrNotSupported, r.op)
}

// toNumber returns a number, or a string that parses as one.
func toNumber(v variant.Variant) (float64, bool) {
	switch t := v.(type) {
	case variant.Number:
		return float64(t), !math.IsNaN(float64(t))
	case variant.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
		return f, err == nil
	}
	return 0, false
}

// looseEqual compares like the editor's rules do: a number equals a string
// holding the same number.
func looseEqual(a, b variant.Variant) bool {
	if variant.KindOf(a) != variant.KindOf(b) {
		x, ok1 := toNumber(a)
		y, ok2 := toNumber(b)
		return ok1 && ok2 && x == y
	}
	return variant.Equal(a, b)
}

func looseCompare(a, b variant.Variant) (int, bool) {
	_, aStr := a.(variant.String)
	_, bStr := b.(variant.String)
	if aStr && bStr {
		return variant.Compare(a, b)
	}
	x, ok1 := toNumber(a)
	y, ok2 := toNumber(b)
	if !ok1 || !ok2 {
		return 0, false
	}
	return variant.Compare(variant.Number(x), variant.Number(y))
}

func scalarString(v variant.Variant) (string, bool) {
	switch t := v.(type) {
	case variant.String:
		return string(t), true
	case variant.Number, variant.Bool:
		return variant.Format(t), true
	}
	return "", false
}

func isType(v variant.Variant, name string) bool {
	switch name {
	case "string":
		return variant.KindOf(v) == variant.KindString
	case "number":
		return variant.KindOf(v) == variant.KindNumber
	case "boolean":
		return variant.KindOf(v) == variant.KindBool
	case "array":
		return variant.KindOf(v) == variant.KindArray
	case "buffer":
		return variant.KindOf(v) == variant.KindBytes
	case "object":
		return variant.KindOf(v) == variant.KindObject
	case "null", "undefined":
		return variant.IsNull(v)
	case "json":
		s, ok := variant.AsString(v)
		if !ok {
			return false
		}
		var x any
		return json.Unmarshal([]byte(s), &x) == nil
	}
	return false
}

func truthy(v variant.Variant) bool {
	switch t := v.(type) {
	case variant.Bool:
		return bool(t)
	case variant.Number:
		return t != 0 && !math.IsNaN(float64(t))
	case variant.String:
		return t != ""
	case nil, variant.Null:
		return false
	}
	return true
}
