package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/petrijr/wireflow/pkg/api"
	"github.com/petrijr/wireflow/pkg/eval"
	"github.com/petrijr/wireflow/pkg/propex"
)

type injectProp struct {
	P  string `json:"p"`
	V  any    `json:"v"`
	VT string `json:"vt"`
}

type injectConfig struct {
	Props       []injectProp `json:"props"`
	Payload     any          `json:"payload"`
	PayloadType string       `json:"payloadType"`
	Topic       text         `json:"topic"`
	Repeat      text         `json:"repeat"`
	Crontab     string       `json:"crontab"`
	Once        flag         `json:"once"`
	OnceDelay   text         `json:"onceDelay"`
}

// cronParser accepts the five field crontab written by the editor and an
// optional leading seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type injectField struct {
	path string
	prop eval.Property
}

type injectNode struct {
	*api.BaseNode

	eval      *eval.Evaluator
	fields    []injectField
	once      bool
	onceDelay time.Duration
	repeat    time.Duration
	schedule  cron.Schedule
	crontab   string
}

func (o *options) newInject(_ api.Flow, base *api.BaseNode, cfg *api.NodeConfig) (api.Node, error) {
	var c injectConfig
	if err := cfg.Decode(&c); err != nil {
		return nil, fmt.Errorf("inject config: %w", err)
	}

	n := &injectNode{BaseNode: base, eval: o.evaluator, once: bool(c.Once)}

	fields, err := injectFields(&c)
	if err != nil {
		return nil, err
	}
	n.fields = fields

	if secs, ok, err := c.OnceDelay.Float(); err != nil {
		return nil, fmt.Errorf("inject onceDelay: %w", err)
	} else if ok {
		n.onceDelay = seconds(secs)
	}

	secs, hasRepeat, err := c.Repeat.Float()
	if err != nil {
		return nil, fmt.Errorf("inject repeat: %w", err)
	}
	crontab := strings.TrimSpace(c.Crontab)
	switch {
	case hasRepeat && secs > 0 && crontab != "":
		return nil, fmt.Errorf("%w: inject node sets both repeat and crontab", api.ErrBadFlowsJSON)
	case hasRepeat && secs < 0:
		return nil, fmt.Errorf("%w: negative inject repeat %v", api.ErrBadFlowsJSON, secs)
	case hasRepeat && secs > 0:
		n.repeat = seconds(secs)
	case crontab != "":
		sched, err := cronParser.Parse(crontab)
		if err != nil {
			return nil, fmt.Errorf("inject crontab %q: %w", crontab, err)
		}
		n.schedule, n.crontab = sched, crontab
	}
	return n, nil
}

// injectFields builds the message properties. Older exports carry a single
// payload/topic pair instead of props; the payload and topic entries of
// props may also defer to those fields.
func injectFields(c *injectConfig) ([]injectField, error) {
	props := c.Props
	if len(props) == 0 {
		props = []injectProp{{P: "payload"}, {P: "topic", VT: "str"}}
	}

	fields := make([]injectField, 0, len(props))
	for _, p := range props {
		raw, typ := p.V, p.VT
		switch {
		case p.P == "payload" && p.V == nil:
			raw, typ = c.Payload, c.PayloadType
			if typ == "" {
				typ = legacyPayloadType(c.Payload)
			}
		case p.P == "topic" && p.V == nil && (typ == "" || typ == "str"):
			raw, typ = string(c.Topic), "str"
		}

		if _, err := propex.Parse(p.P); err != nil {
			return nil, fmt.Errorf("inject property %q: %w", p.P, err)
		}
		prop, err := eval.NewProperty(raw, eval.PropertyType(typ))
		if err != nil {
			return nil, fmt.Errorf("inject property %q: %w", p.P, err)
		}
		fields = append(fields, injectField{path: p.P, prop: prop})
	}
	return fields, nil
}

// legacyPayloadType picks the type of an untyped payload: an empty payload
// means the current timestamp.
func legacyPayloadType(payload any) string {
	if s, ok := payload.(string); payload == nil || (ok && s == "") {
		return string(eval.TypeDate)
	}
	return string(eval.TypeStr)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (n *injectNode) Run(ctx context.Context) {
	if n.once {
		if !sleep(ctx, n.onceDelay) {
			return
		}
		n.inject(ctx)
	}

	switch {
	case n.repeat > 0:
		n.runRepeat(ctx)
	case n.schedule != nil:
		n.runCron(ctx)
	default:
		<-ctx.Done()
	}
}

func (n *injectNode) runRepeat(ctx context.Context) {
	ticker := time.NewTicker(n.repeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.inject(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (n *injectNode) runCron(ctx context.Context) {
	c := cron.New(cron.WithParser(cronParser))
	c.Schedule(n.schedule, cron.FuncJob(func() { n.inject(ctx) }))
	c.Start()
	n.Logger().DebugContext(ctx, "inject_cron_started", slog.String("crontab", n.crontab))

	<-ctx.Done()
	<-c.Stop().Done()
}

// inject builds one message from the configured properties and sends it.
func (n *injectNode) inject(ctx context.Context) {
	msg := api.NewMsg(n.ID(), nil)
	scope := eval.ScopeFor(n.Flow(), msg)

	for _, f := range n.fields {
		v, err := n.eval.Evaluate(ctx, f.prop, scope)
		if err != nil {
			n.ReportError(ctx, fmt.Errorf("inject property %q: %w", f.path, err))
			return
		}
		if err := msg.SetNav(f.path, v, true); err != nil {
			n.ReportError(ctx, fmt.Errorf("inject property %q: %w", f.path, err))
			return
		}
	}

	if err := forward(ctx, n.BaseNode, msg); err != nil {
		n.ReportError(ctx, err)
	}
}
