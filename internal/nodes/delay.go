package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/petrijr/wireflow/pkg/api"
)

type delayConfig struct {
	PauseType    string `json:"pauseType"`
	Timeout      text   `json:"timeout"`
	TimeoutUnits string `json:"timeoutUnits"`
	Rate         text   `json:"rate"`
	NbRateUnits  text   `json:"nbRateUnits"`
	RateUnits    string `json:"rateUnits"`
	Drop         flag   `json:"drop"`
}

var delayUnits = map[string]time.Duration{
	"milliseconds": time.Millisecond,
	"millisecond":  time.Millisecond,
	"seconds":      time.Second,
	"second":       time.Second,
	"minutes":      time.Minute,
	"minute":       time.Minute,
	"hours":        time.Hour,
	"hour":         time.Hour,
	"days":         24 * time.Hour,
	"day":          24 * time.Hour,
}

// delayNode either holds every message for a fixed time or limits the
// message rate. In rate mode excess messages wait, or are dropped when
// configured to.
type delayNode struct {
	*api.BaseNode

	delay   time.Duration
	limiter *rate.Limiter
	drop    bool
}

func newDelay(_ api.Flow, base *api.BaseNode, cfg *api.NodeConfig) (api.Node, error) {
	var c delayConfig
	if err := cfg.Decode(&c); err != nil {
		return nil, fmt.Errorf("delay config: %w", err)
	}

	n := &delayNode{BaseNode: base, drop: bool(c.Drop)}

	switch c.PauseType {
	case "", "delay":
		d, err := delayDuration(c.Timeout, c.TimeoutUnits, "seconds")
		if err != nil {
			return nil, fmt.Errorf("delay timeout: %w", err)
		}
		n.delay = d
	case "rate":
		per, err := delayDuration(c.NbRateUnits, c.RateUnits, "second")
		if err != nil {
			return nil, fmt.Errorf("delay rate units: %w", err)
		}
		count, ok, err := c.Rate.Float()
		if err != nil {
			return nil, fmt.Errorf("delay rate: %w", err)
		}
		if !ok || count <= 0 || per <= 0 {
			return nil, fmt.Errorf("%w: delay rate must be positive", api.ErrBadFlowsJSON)
		}
		n.limiter = rate.NewLimiter(rate.Every(time.Duration(float64(per)/count)), 1)
	default:
		return nil, fmt.Errorf("%w: delay pause type %q", api.ErrNotSupported, c.PauseType)
	}
	return n, nil
}

// delayDuration multiplies amount (default 1) by the named unit.
func delayDuration(amount text, unit, defaultUnit string) (time.Duration, error) {
	if unit == "" {
		unit = defaultUnit
	}
	base, ok := delayUnits[unit]
	if !ok {
		return 0, fmt.Errorf("%w: unit %q", api.ErrNotSupported, unit)
	}
	f, set, err := amount.Float()
	if err != nil {
		return 0, err
	}
	if !set {
		f = 1
	}
	if f < 0 {
		return 0, fmt.Errorf("%w: negative duration %v", api.ErrBadFlowsJSON, f)
	}
	return time.Duration(f * float64(base)), nil
}

func (n *delayNode) Run(ctx context.Context) {
	if n.limiter != nil {
		serve(ctx, n.BaseNode, n.handleRate)
		return
	}
	n.runDelay(ctx)
}

func (n *delayNode) handleRate(ctx context.Context, msg *api.Msg) error {
	if n.drop {
		if !n.limiter.Allow() {
			n.Logger().DebugContext(ctx, "delay_dropped", slog.String("msg_id", msg.ID().String()))
			return nil
		}
	} else if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", api.ErrTaskCancelled, err)
	}
	return forward(ctx, n.BaseNode, msg)
}

type pendingMsg struct {
	msg *api.Msg
	due time.Time
}

// runDelay stamps each message with its release time and hands it to a
// sender goroutine. Every message waits the same time, so release order is
// arrival order and receiving continues while earlier messages wait.
func (n *delayNode) runDelay(ctx context.Context) {
	pending := make(chan pendingMsg, n.Mailbox().Cap())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for p := range pending {
			if !sleep(ctx, time.Until(p.due)) {
				return
			}
			if err := forward(ctx, n.BaseNode, p.msg); err != nil {
				if api.IsCancelled(err) {
					return
				}
				n.ReportError(ctx, err)
			}
		}
	}()

	serve(ctx, n.BaseNode, func(ctx context.Context, msg *api.Msg) error {
		select {
		case pending <- pendingMsg{msg: msg, due: time.Now().Add(n.delay)}:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", api.ErrTaskCancelled, ctx.Err())
		}
	})
	close(pending)
	wg.Wait()
}
