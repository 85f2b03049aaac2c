package api

import (
	"context"
	"errors"
)

var (
	// ErrBadFlowsJSON is returned when a flow export cannot be loaded.
	ErrBadFlowsJSON = errors.New("bad flows json")

	// ErrNotSupported is returned for unknown node types and unsupported
	// features such as unimplemented operators.
	ErrNotSupported = errors.New("not supported")

	// ErrInvalidOperation is returned for invalid arguments at runtime, for
	// example a fan-out to a port the node does not have.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrTaskCancelled is returned by blocking operations whose context was
	// cancelled.
	ErrTaskCancelled = errors.New("task cancelled")

	// ErrChannelClosed is returned when sending to a closed mailbox or when
	// receiving from a mailbox whose senders have all been released.
	ErrChannelClosed = errors.New("channel closed")
)

// IsCancelled reports whether err is the result of cooperative cancellation.
// Cancellations are part of normal shutdown and are not logged as failures.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrTaskCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
