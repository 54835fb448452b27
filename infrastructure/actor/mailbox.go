package actor

import (
	"context"
	"sync"
	"time"

	"executor-go/commonlib/actor"
)

// =============================================================================
// Mailbox Implementation
// =============================================================================

// mailbox is an unbounded FIFO of encoded envelopes with any number of
// producers and exactly one consumer.
type mailbox struct {
	mu     sync.Mutex
	queue  [][]byte
	closed bool
	// ready holds at most one wake-up token for the consumer
	ready chan struct{}
}

// NewMailbox creates a mailbox and returns its two endpoints. The receive
// handle is the only one ever created for this mailbox.
func NewMailbox() (*SendHandle, *ReceiveHandle) {
	m := &mailbox{ready: make(chan struct{}, 1)}
	return &SendHandle{m: m}, &ReceiveHandle{m: m}
}

func (m *mailbox) push(b []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.queue = append(m.queue, b)
	select {
	case m.ready <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) pop() (b []byte, ok bool, closed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, true
	}
	if len(m.queue) == 0 {
		return nil, false, false
	}
	b = m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	return b, true, false
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.queue = nil
	close(m.ready)
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// =============================================================================
// SendHandle
// =============================================================================

// SendHandle enqueues into a mailbox. It is safe to share between goroutines.
type SendHandle struct {
	m *mailbox
}

// Send enqueues b without blocking. After the receiving end is closed the
// call is a silent no-op; the return value only reports whether b was queued.
func (h *SendHandle) Send(b []byte) bool {
	return h.m.push(b)
}

// Len returns the number of queued entries.
func (h *SendHandle) Len() int {
	return h.m.len()
}

// =============================================================================
// ReceiveHandle
// =============================================================================

// ReceiveHandle is the single consuming end of a mailbox.
type ReceiveHandle struct {
	m *mailbox
}

// Receive blocks until an entry arrives, timeout elapses (actor.ErrTimedOut),
// the mailbox is closed (actor.ErrMailboxClosed) or ctx is done.
func (h *ReceiveHandle) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		b, ok, closed := h.m.pop()
		if ok {
			return b, nil
		}
		if closed {
			return nil, actor.ErrMailboxClosed
		}
		if timer == nil {
			timer = time.NewTimer(timeout)
		}
		select {
		case <-h.m.ready:
		case <-timer.C:
			return nil, actor.ErrTimedOut
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close permanently closes the mailbox and discards queued entries.
func (h *ReceiveHandle) Close() {
	h.m.close()
}
