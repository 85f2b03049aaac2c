package nodes

import (
	"context"
	"time"

	"github.com/petrijr/wireflow/pkg/api"
)

// handleFunc processes one received message.
type handleFunc func(ctx context.Context, msg *api.Msg) error

// serve receives messages until ctx is cancelled or every upstream sender
// is gone. Handler errors are reported and the loop continues.
func serve(ctx context.Context, base *api.BaseNode, handle handleFunc) {
	for {
		msg, err := base.WaitForMsg(ctx)
		if err != nil {
			return
		}
		if err := handle(ctx, msg); err != nil {
			if api.IsCancelled(err) {
				return
			}
			base.ReportError(ctx, err)
		}
	}
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// forward sends msg on port 0. A node exported without output wires drops
// the message.
func forward(ctx context.Context, base *api.BaseNode, msg *api.Msg) error {
	if len(base.Ports()) == 0 {
		return nil
	}
	return base.FanOut(ctx, 0, msg)
}
