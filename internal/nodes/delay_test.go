package nodes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/wireflow/pkg/api"
	"github.com/petrijr/wireflow/pkg/variant"
)

func TestDelay_FixedDelayKeepsOrder(t *testing.T) {
	t.Parallel()

	b := pipeline(t, `{"id":"2","type":"delay","z":"100","pauseType":"delay","timeout":"60","timeoutUnits":"milliseconds","wires":[["3"]]}`)

	start := time.Now()
	for i := 0; i < 3; i++ {
		b.sendPayload(i)
	}
	for i := 0; i < 3; i++ {
		require.Equal(t, variant.Number(i), b.next().msg.Payload())
	}

	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	// Messages wait concurrently, not one after the other.
	require.Less(t, elapsed, 170*time.Millisecond)
}

func TestDelay_RateLimits(t *testing.T) {
	t.Parallel()

	b := pipeline(t, `{"id":"2","type":"delay","z":"100","pauseType":"rate","rate":"20","nbRateUnits":"1","rateUnits":"second","wires":[["3"]]}`)

	start := time.Now()
	for i := 0; i < 3; i++ {
		b.sendPayload(i)
	}
	for i := 0; i < 3; i++ {
		require.Equal(t, variant.Number(i), b.next().msg.Payload())
	}
	// One burst token, then one message every 50ms.
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestDelay_RateDropsExcess(t *testing.T) {
	t.Parallel()

	b := pipeline(t, `{"id":"2","type":"delay","z":"100","pauseType":"rate","rate":"1","rateUnits":"minute","drop":true,"wires":[["3"]]}`)

	for i := 0; i < 5; i++ {
		b.sendPayload(i)
	}
	require.Equal(t, variant.Number(0), b.next().msg.Payload())
	b.none(50 * time.Millisecond)
}

func TestDelay_ConfigErrors(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, build(t, `{"id":"2","type":"delay","z":"100","pauseType":"random"}`), api.ErrNotSupported)
	require.ErrorIs(t, build(t, `{"id":"2","type":"delay","z":"100","pauseType":"rate","rate":"0"}`), api.ErrBadFlowsJSON)
	require.ErrorIs(t, build(t, `{"id":"2","type":"delay","z":"100","timeout":"1","timeoutUnits":"fortnights"}`), api.ErrNotSupported)
	require.NoError(t, build(t, `{"id":"2","type":"delay","z":"100","timeout":5,"timeoutUnits":"seconds"}`))
}
