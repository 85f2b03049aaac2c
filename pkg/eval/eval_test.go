package eval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/wireflow/pkg/api"
	"github.com/petrijr/wireflow/pkg/variant"
)

func TestNewProperty_Constants(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  any
		typ  PropertyType
		want variant.Variant
	}{
		{"hello", TypeStr, variant.String("hello")},
		{"", "", variant.String("")},
		{" 42.5 ", TypeNum, variant.Number(42.5)},
		{float64(7), TypeNum, variant.Number(7)},
		{`{"a":[1,2]}`, TypeJSON, variant.Object{"a": variant.Array{variant.Number(1), variant.Number(2)}}},
		{"[1,2,255]", TypeBin, variant.Bytes{1, 2, 255}},
		{"true", TypeBool, variant.Bool(true)},
		{false, TypeBool, variant.Bool(false)},
		{"^a+$", TypeRe, variant.String("^a+$")},
	}

	for _, tc := range cases {
		p, err := NewProperty(tc.raw, tc.typ)
		require.NoError(t, err, "%v as %s", tc.raw, tc.typ)
		require.True(t, p.IsConstant())
		got, ok := p.Constant()
		require.True(t, ok)
		require.Equal(t, tc.want, got, "%v as %s", tc.raw, tc.typ)
	}
}

func TestNewProperty_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewProperty("abc", TypeNum)
	require.Error(t, err)
	_, err = NewProperty("{", TypeJSON)
	require.Error(t, err)
	_, err = NewProperty("[", TypeRe)
	require.Error(t, err)
	_, err = NewProperty("[300]", TypeBin)
	require.Error(t, err)
	_, err = NewProperty("yes please", TypeBool)
	require.Error(t, err)
	_, err = NewProperty("a..b", TypeMsg)
	require.Error(t, err)
	_, err = NewProperty("x", "nope")
	require.ErrorIs(t, err, api.ErrNotSupported)
}

func TestNewProperty_RegexpIsCompiled(t *testing.T) {
	t.Parallel()

	p := MustProperty("^ab+c$", TypeRe)
	require.NotNil(t, p.Regexp())
	require.True(t, p.Regexp().MatchString("abbbc"))
}

func TestEvaluate_Msg(t *testing.T) {
	t.Parallel()

	e := NewEvaluator()
	msg := api.NewMsg(1, variant.Object{"payload": variant.Object{"temp": variant.Number(21)}})

	v, err := e.Evaluate(context.Background(), MustProperty("payload.temp", TypeMsg), Scope{Msg: msg})
	require.NoError(t, err)
	require.Equal(t, variant.Number(21), v)

	v, err = e.Evaluate(context.Background(), MustProperty("payload.missing", TypeMsg), Scope{Msg: msg})
	require.NoError(t, err)
	require.Equal(t, variant.Null{}, v)

	_, err = e.Evaluate(context.Background(), MustProperty("payload", TypeMsg), Scope{})
	require.ErrorIs(t, err, api.ErrInvalidOperation)
}

func TestEvaluate_FlowAndGlobal(t *testing.T) {
	t.Parallel()

	flow := api.NewContextStore()
	global := api.NewContextStore()
	require.NoError(t, flow.Set("count", variant.Number(3)))
	require.NoError(t, global.Set("site.name", variant.String("lab")))

	e := NewEvaluator()
	s := Scope{Flow: flow, Global: global}

	v, err := e.Evaluate(context.Background(), MustProperty("count", TypeFlow), s)
	require.NoError(t, err)
	require.Equal(t, variant.Number(3), v)

	v, err = e.Evaluate(context.Background(), MustProperty("site['name']", TypeGlobal), s)
	require.NoError(t, err)
	require.Equal(t, variant.String("lab"), v)

	v, err = e.Evaluate(context.Background(), MustProperty("nothing", TypeGlobal), s)
	require.NoError(t, err)
	require.Equal(t, variant.Null{}, v)
}

func TestEvaluate_EnvRules(t *testing.T) {
	t.Parallel()

	env := map[string]string{"WHO": "Joe", "GREETING": "hi"}
	e := NewEvaluator(WithEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))

	require.Equal(t, "Joe", e.ExpandEnv("${WHO}"))
	require.Equal(t, "Joe", e.ExpandEnv("WHO"))
	require.Equal(t, "Hello Joe!", e.ExpandEnv("Hello ${WHO}!"))
	require.Equal(t, "hi Joe, ", e.ExpandEnv("${GREETING} ${WHO}, ${MISSING}"))
	require.Equal(t, "", e.ExpandEnv("MISSING"))

	v, err := e.Evaluate(context.Background(), MustProperty("${WHO}", TypeEnv), Scope{})
	require.NoError(t, err)
	require.Equal(t, variant.String("Joe"), v)
}

func TestEvaluate_Date(t *testing.T) {
	t.Parallel()

	at := time.UnixMilli(1_700_000_000_123)
	e := NewEvaluator(WithClock(func() time.Time { return at }))

	v, err := e.Evaluate(context.Background(), MustProperty("", TypeDate), Scope{})
	require.NoError(t, err)
	require.Equal(t, variant.Number(1_700_000_000_123), v)
}

type upperEvaluator struct{}

func (upperEvaluator) Evaluate(_ context.Context, expr string, _ Scope) (variant.Variant, error) {
	return variant.String("evaluated:" + expr), nil
}

func TestEvaluate_JSONata(t *testing.T) {
	t.Parallel()

	p := MustProperty("payload.a + 1", TypeJSONata)

	_, err := NewEvaluator().Evaluate(context.Background(), p, Scope{})
	require.ErrorIs(t, err, api.ErrNotSupported)

	v, err := NewEvaluator(WithExpressionEvaluator(upperEvaluator{})).Evaluate(context.Background(), p, Scope{})
	require.NoError(t, err)
	require.Equal(t, variant.String("evaluated:payload.a + 1"), v)
}

func TestEvaluate_ConstantsAreCopied(t *testing.T) {
	t.Parallel()

	p := MustProperty(`{"a":1}`, TypeJSON)
	e := NewEvaluator()

	v, err := e.Evaluate(context.Background(), p, Scope{})
	require.NoError(t, err)
	v.(variant.Object)["a"] = variant.Number(2)

	again, err := e.Evaluate(context.Background(), p, Scope{})
	require.NoError(t, err)
	require.Equal(t, variant.Object{"a": variant.Number(1)}, again)
}

func TestSetAndDeleteTarget(t *testing.T) {
	t.Parallel()

	msg := api.NewMsg(1, nil)
	s := Scope{Msg: msg, Flow: api.NewContextStore(), Global: api.NewContextStore()}

	require.NoError(t, SetTarget(s, TypeMsg, "topic", variant.String("t")))
	require.NoError(t, SetTarget(s, TypeFlow, "a.b", variant.Number(1)))
	require.NoError(t, SetTarget(s, TypeGlobal, "g", variant.Bool(true)))
	require.ErrorIs(t, SetTarget(s, TypeEnv, "X", variant.Null{}), api.ErrInvalidOperation)

	v, _ := msg.Get("topic")
	require.Equal(t, variant.String("t"), v)

	require.NoError(t, DeleteTarget(s, TypeMsg, "topic"))
	_, ok := msg.Get("topic")
	require.False(t, ok)

	require.NoError(t, DeleteTarget(s, TypeFlow, "a"))
	require.Empty(t, s.Flow.Keys())
}
