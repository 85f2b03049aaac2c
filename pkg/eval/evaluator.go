package eval

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/petrijr/wireflow/pkg/api"
	"github.com/petrijr/wireflow/pkg/propex"
	"github.com/petrijr/wireflow/pkg/variant"
)

// Scope is what a runtime property can see while a message is processed.
type Scope struct {
	Msg    *api.Msg
	Flow   *api.ContextStore
	Global *api.ContextStore
}

// ScopeFor builds the scope of msg as seen from a node of flow.
func ScopeFor(flow api.Flow, msg *api.Msg) Scope {
	s := Scope{Msg: msg}
	if flow != nil {
		s.Flow = flow.Context()
		s.Global = flow.GlobalContext()
	}
	return s
}

// ExpressionEvaluator evaluates "jsonata" properties. No implementation
// ships with the runtime; embedders may plug one in.
type ExpressionEvaluator interface {
	Evaluate(ctx context.Context, expr string, scope Scope) (variant.Variant, error)
}

// Evaluator resolves properties against a Scope. The zero value is not
// usable; create one with NewEvaluator.
type Evaluator struct {
	expressions ExpressionEvaluator
	lookupEnv   func(string) (string, bool)
	now         func() time.Time
}

type Option func(*Evaluator)

func WithExpressionEvaluator(x ExpressionEvaluator) Option {
	return func(e *Evaluator) { e.expressions = x }
}

// WithEnv replaces os.LookupEnv for "env" properties.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(e *Evaluator) { e.lookupEnv = lookup }
}

func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		lookupEnv: os.LookupEnv,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate resolves p. Missing msg, flow and global values evaluate to Null.
// Constants are returned as copies.
func (e *Evaluator) Evaluate(ctx context.Context, p Property, s Scope) (variant.Variant, error) {
	if v, ok := p.Constant(); ok {
		return variant.Clone(v), nil
	}

	switch p.Type {
	case TypeMsg:
		if s.Msg == nil {
			return nil, fmt.Errorf("%w: msg property %q without a message", api.ErrInvalidOperation, p.Source)
		}
		v, ok, err := variant.Lookup(s.Msg.Body(), p.segs)
		if err != nil {
			return nil, err
		}
		if !ok {
			return variant.Null{}, nil
		}
		return v, nil
	case TypeFlow:
		return lookupContext(s.Flow, p)
	case TypeGlobal:
		return lookupContext(s.Global, p)
	case TypeEnv:
		return variant.String(e.ExpandEnv(p.Source)), nil
	case TypeDate:
		return variant.Number(e.now().UnixMilli()), nil
	case TypeJSONata:
		if e.expressions == nil {
			return nil, fmt.Errorf("%w: jsonata expressions", api.ErrNotSupported)
		}
		return e.expressions.Evaluate(ctx, p.Source, s)
	}
	return nil, fmt.Errorf("%w: property type %q", api.ErrNotSupported, p.Type)
}

func lookupContext(store *api.ContextStore, p Property) (variant.Variant, error) {
	if store == nil {
		return variant.Null{}, nil
	}
	v, ok, err := store.Get(propex.Format(p.segs))
	if err != nil {
		return nil, err
	}
	if !ok {
		return variant.Null{}, nil
	}
	return v, nil
}

var (
	wholeEnvRef = regexp.MustCompile(`^\$\{[^}]+\}$`)
	anyEnvRef   = regexp.MustCompile(`\$\{\S+\}`)
	envRef      = regexp.MustCompile(`\$\{([^}]+)\}`)
)

// ExpandEnv applies the env property rules: "${NAME}" and a bare "NAME" are
// replaced by the variable, and "a${NAME}b" substitutes every reference.
// Unset variables expand to the empty string.
func (e *Evaluator) ExpandEnv(value string) string {
	switch {
	case wholeEnvRef.MatchString(value):
		v, _ := e.lookupEnv(value[2 : len(value)-1])
		return v
	case !anyEnvRef.MatchString(value):
		v, _ := e.lookupEnv(value)
		return v
	default:
		return envRef.ReplaceAllStringFunc(value, func(m string) string {
			v, _ := e.lookupEnv(m[2 : len(m)-1])
			return v
		})
	}
}

// SetTarget stores v at the msg, flow or global property expr.
func SetTarget(s Scope, typ PropertyType, expr string, v variant.Variant) error {
	switch typ {
	case TypeMsg:
		if s.Msg == nil {
			return fmt.Errorf("%w: no message in scope", api.ErrInvalidOperation)
		}
		return s.Msg.SetNav(expr, v, true)
	case TypeFlow:
		if s.Flow == nil {
			return fmt.Errorf("%w: no flow context in scope", api.ErrInvalidOperation)
		}
		return s.Flow.Set(expr, v)
	case TypeGlobal:
		if s.Global == nil {
			return fmt.Errorf("%w: no global context in scope", api.ErrInvalidOperation)
		}
		return s.Global.Set(expr, v)
	}
	return fmt.Errorf("%w: cannot assign to %q property", api.ErrInvalidOperation, typ)
}

// DeleteTarget removes the msg, flow or global property expr.
func DeleteTarget(s Scope, typ PropertyType, expr string) error {
	var err error
	switch typ {
	case TypeMsg:
		if s.Msg == nil {
			return fmt.Errorf("%w: no message in scope", api.ErrInvalidOperation)
		}
		_, err = s.Msg.DeleteNav(expr)
	case TypeFlow:
		if s.Flow != nil {
			_, err = s.Flow.Delete(expr)
		}
	case TypeGlobal:
		if s.Global != nil {
			_, err = s.Global.Delete(expr)
		}
	default:
		err = fmt.Errorf("%w: cannot delete %q property", api.ErrInvalidOperation, typ)
	}
	return err
}
