package api

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultMailboxCapacity is the number of messages a node mailbox buffers
// before senders are suspended.
const DefaultMailboxCapacity = 32

// Mailbox is a node's bounded inbox. It has many senders and a single
// receiver, and is safe for concurrent use.
type Mailbox struct {
	ch chan *Msg

	closed    chan struct{}
	closeOnce sync.Once

	senders    atomic.Int64
	senderless chan struct{}
	drainOnce  sync.Once
}

// NewMailbox creates a mailbox holding up to capacity messages. A
// non-positive capacity selects DefaultMailboxCapacity.
func NewMailbox(capacity int) *Mailbox {
	if capacity <= 0 {
		capacity = DefaultMailboxCapacity
	}
	return &Mailbox{
		ch:         make(chan *Msg, capacity),
		closed:     make(chan struct{}),
		senderless: make(chan struct{}),
	}
}

// NewSender returns a new sender handle. Once every handle has been
// released the receiver observes ErrChannelClosed after draining.
func (m *Mailbox) NewSender() *Sender {
	m.senders.Add(1)
	return &Sender{mb: m}
}

func (m *Mailbox) release() {
	if m.senders.Add(-1) == 0 {
		m.drainOnce.Do(func() { close(m.senderless) })
	}
}

// Send delivers msg, blocking while the mailbox is full.
func (m *Mailbox) Send(ctx context.Context, msg *Msg) error {
	select {
	case <-m.closed:
		return ErrChannelClosed
	default:
	}

	select {
	case m.ch <- msg:
		return nil
	case <-m.closed:
		return ErrChannelClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrTaskCancelled, ctx.Err())
	}
}

// Receive waits for the next message.
func (m *Mailbox) Receive(ctx context.Context) (*Msg, error) {
	select {
	case msg := <-m.ch:
		return msg, nil
	default:
	}

	select {
	case msg := <-m.ch:
		return msg, nil
	case <-m.senderless:
		select {
		case msg := <-m.ch:
			return msg, nil
		default:
			return nil, ErrChannelClosed
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrTaskCancelled, ctx.Err())
	}
}

// Close closes the receive side. Later sends fail with ErrChannelClosed.
// Close is idempotent.
func (m *Mailbox) Close() {
	m.closeOnce.Do(func() { close(m.closed) })
}

// Closed reports whether Close has been called.
func (m *Mailbox) Closed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// Len returns the number of buffered messages.
func (m *Mailbox) Len() int { return len(m.ch) }

// Cap returns the mailbox capacity.
func (m *Mailbox) Cap() int { return cap(m.ch) }

// Sender is a counted handle to the send side of a Mailbox.
type Sender struct {
	mb       *Mailbox
	released atomic.Bool
}

// Send delivers msg through the handle.
func (s *Sender) Send(ctx context.Context, msg *Msg) error {
	if s.released.Load() {
		return fmt.Errorf("%w: send on released handle", ErrInvalidOperation)
	}
	return s.mb.Send(ctx, msg)
}

// Release drops the handle. Calling it more than once has no effect.
func (s *Sender) Release() {
	if s.released.CompareAndSwap(false, true) {
		s.mb.release()
	}
}
