package nodes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/wireflow/pkg/api"
	"github.com/petrijr/wireflow/pkg/eval"
	"github.com/petrijr/wireflow/pkg/variant"
)

func TestInject_OnceWithProps(t *testing.T) {
	t.Parallel()

	b := newBench(t, []string{
		`{"id":"2","type":"inject","z":"100","once":true,"onceDelay":0,
		  "props":[{"p":"payload"},{"p":"topic","vt":"str"},{"p":"meta.tags","v":"[1,2]","vt":"json"}],
		  "payload":"42","payloadType":"num","topic":"t1","wires":[["3"]]}`,
		`{"id":"3","type":"test-sink","z":"100"}`,
	})

	got := b.next().msg
	require.Equal(t, variant.Number(42), got.Payload())
	topic, _ := got.Get("topic")
	require.Equal(t, variant.String("t1"), topic)
	tags, ok, err := got.GetNav("meta.tags")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, variant.Array{variant.Number(1), variant.Number(2)}, tags)
	require.Equal(t, api.ElementID(0x2), got.BirthPlace())

	b.none(50 * time.Millisecond)
}

func TestInject_LegacyDatePayload(t *testing.T) {
	t.Parallel()

	at := time.UnixMilli(1_700_000_000_000)
	ev := eval.NewEvaluator(eval.WithClock(func() time.Time { return at }))
	b := newBench(t, []string{
		`{"id":"2","type":"inject","z":"100","payload":"","payloadType":"date","topic":"","once":true,"wires":[["3"]]}`,
		`{"id":"3","type":"test-sink","z":"100"}`,
	}, WithEvaluator(ev))

	got := b.next().msg
	require.Equal(t, variant.Number(1_700_000_000_000), got.Payload())
}

func TestInject_EnvProperty(t *testing.T) {
	t.Parallel()

	ev := eval.NewEvaluator(eval.WithEnv(func(name string) (string, bool) {
		if name == "SITE" {
			return "north", true
		}
		return "", false
	}))
	b := newBench(t, []string{
		`{"id":"2","type":"inject","z":"100","once":"true",
		  "props":[{"p":"payload","v":"site-${SITE}","vt":"env"}],"wires":[["3"]]}`,
		`{"id":"3","type":"test-sink","z":"100"}`,
	}, WithEvaluator(ev))

	require.Equal(t, variant.String("site-north"), b.next().msg.Payload())
}

func TestInject_Repeat(t *testing.T) {
	t.Parallel()

	b := newBench(t, []string{
		`{"id":"2","type":"inject","z":"100","repeat":"0.02","payload":"tick","payloadType":"str","wires":[["3"]]}`,
		`{"id":"3","type":"test-sink","z":"100"}`,
	})

	first, second := b.next().msg, b.next().msg
	require.Equal(t, variant.String("tick"), first.Payload())
	require.NotEqual(t, first.ID(), second.ID())
}

func TestInject_Crontab(t *testing.T) {
	t.Parallel()

	b := newBench(t, []string{
		`{"id":"2","type":"inject","z":"100","crontab":"* * * * * *","payload":"cron","payloadType":"str","wires":[["3"]]}`,
		`{"id":"3","type":"test-sink","z":"100"}`,
	})

	require.Equal(t, variant.String("cron"), b.next().msg.Payload())
}

func TestInject_IdleWithoutTrigger(t *testing.T) {
	t.Parallel()

	b := newBench(t, []string{
		`{"id":"2","type":"inject","z":"100","payload":"x","payloadType":"str","wires":[["3"]]}`,
		`{"id":"3","type":"test-sink","z":"100"}`,
	})
	b.none(50 * time.Millisecond)
}

func TestInject_ConfigErrors(t *testing.T) {
	t.Parallel()

	err := build(t, `{"id":"2","type":"inject","z":"100","repeat":"5","crontab":"*/5 * * * *"}`)
	require.ErrorIs(t, err, api.ErrBadFlowsJSON)

	err = build(t, `{"id":"2","type":"inject","z":"100","crontab":"not a cron"}`)
	require.Error(t, err)

	err = build(t, `{"id":"2","type":"inject","z":"100","props":[{"p":"payload","v":"x","vt":"prev"}]}`)
	require.ErrorIs(t, err, api.ErrNotSupported)

	err = build(t, `{"id":"2","type":"inject","z":"100","props":[{"p":"a[","v":"x","vt":"str"}]}`)
	require.Error(t, err)

	err = build(t, `{"id":"2","type":"inject","z":"100","repeat":"soon"}`)
	require.Error(t, err)
}
