// Package mailbox implements the bounded, typed, send-only inbox that is
// the sole inter-agent communication primitive in the daemon.
//
// This generalizes the teacher's (bt/controller) channel-per-queue style —
// peer.queue.nonce, peer.queue.outbound, device.queue.encryption were each
// a bare `chan *QueueOutboundElement` paired with a `signal.stop` channel
// checked in a select — into one reusable type so every agent gets the
// same backpressure and shutdown behavior without repeating the pattern.
package mailbox

import "context"

// DefaultCapacity is the bounded FIFO depth used unless an agent has a
// reason to deviate.
const DefaultCapacity = 16

// Mailbox is a bounded FIFO inbox for messages of type M.
type Mailbox[M any] struct {
	ch chan M
}

// New creates a Mailbox with the given capacity. A capacity of 0 falls
// back to DefaultCapacity.
func New[M any](capacity int) *Mailbox[M] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Mailbox[M]{ch: make(chan M, capacity)}
}

// Sender returns a cloneable, send-only handle to this mailbox.
func (m *Mailbox[M]) Sender() Sender[M] {
	return Sender[M]{ch: m.ch}
}

// Recv blocks until a message arrives, the mailbox is closed, or ctx is
// done. ok is false when the mailbox is closed and drained.
func (m *Mailbox[M]) Recv(ctx context.Context) (msg M, ok bool) {
	select {
	case msg, ok = <-m.ch:
		return msg, ok
	case <-ctx.Done():
		var zero M
		return zero, false
	}
}

// Chan exposes the underlying channel for use in a select alongside other
// mailboxes — PeerCollection's main loop needs this to await either its
// message inbox or its packet inbox in one statement.
func (m *Mailbox[M]) Chan() <-chan M {
	return m.ch
}

// Close closes the mailbox. Further sends to any outstanding Sender silently
// drop rather than panicking (see Sender.Send); it is an error to Close
// twice.
func (m *Mailbox[M]) Close() {
	close(m.ch)
}

// Sender is a cloneable, send-only handle to a Mailbox.
type Sender[M any] struct {
	ch chan<- M
}

// Send enqueues msg, blocking cooperatively if the mailbox is full and
// ctx is not yet done. A send to a closed mailbox is recovered and treated
// as a silent drop: per the design, a dead receiver is never fatal to the
// sender.
func (s Sender[M]) Send(ctx context.Context, msg M) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case s.ch <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// TrySend enqueues msg without blocking. It reports false if the mailbox is
// full or closed.
func (s Sender[M]) TrySend(msg M) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
