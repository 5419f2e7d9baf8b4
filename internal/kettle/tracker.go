package kettle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rygwdn/CosoriKettleBLE/internal/logging"
	"github.com/rygwdn/CosoriKettleBLE/internal/protocol"
)

// AckTracker correlates command acknowledgments with in-flight commands by
// sequence number. Register a waiter before sending, then Await the
// device's answer; the notification goroutine resolves waiters as acks
// arrive.
type AckTracker struct {
	mu      sync.Mutex
	pending map[uint8]chan *protocol.AckPacket
}

// NewAckTracker creates an empty tracker
func NewAckTracker() *AckTracker {
	return &AckTracker{
		pending: make(map[uint8]chan *protocol.AckPacket),
	}
}

// Register creates a waiter for the given sequence number. Call before the
// command goes on the wire so a fast ack cannot slip past. A stale waiter
// on the same sequence (the 8-bit space wrapped) is resolved as superseded
// so its Await returns promptly instead of running out its timeout.
func (t *AckTracker) Register(seq uint8) <-chan *protocol.AckPacket {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, exists := t.pending[seq]; exists {
		logging.Warn("superseding stale ack waiter", zap.Uint8("seq", seq))
		close(old)
	}

	ch := make(chan *protocol.AckPacket, 1)
	t.pending[seq] = ch
	return ch
}

// Resolve delivers an ack to the waiter registered under its sequence
// number and removes the entry. Returns false when nobody is waiting, which
// happens for the ack-shaped traffic the legacy choreography provokes.
func (t *AckTracker) Resolve(ack *protocol.AckPacket) bool {
	t.mu.Lock()
	ch, ok := t.pending[ack.Seq]
	if ok {
		delete(t.pending, ack.Seq)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	ch <- ack
	return true
}

// Cancel removes a waiter that will never be resolved, such as after a
// failed send. Only the waiter that registered the channel is removed; a
// newer waiter under the same sequence stays.
func (t *AckTracker) Cancel(seq uint8, ch <-chan *protocol.AckPacket) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if current, ok := t.pending[seq]; ok && current == ch {
		delete(t.pending, seq)
	}
}

// Pending returns the number of commands still awaiting an ack
func (t *AckTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Await blocks until the waiter resolves, the timeout passes, or ctx is
// canceled. The waiter entry is removed in every outcome.
func (t *AckTracker) Await(ctx context.Context, command string, seq uint8, ch <-chan *protocol.AckPacket, timeout time.Duration) (*protocol.AckPacket, error) {
	defer t.Cancel(seq, ch)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack, ok := <-ch:
		if !ok {
			return nil, NewSupersededError(command, seq)
		}
		return ack, nil
	case <-timer.C:
		return nil, NewAckTimeoutError(command, seq, timeout)
	case <-ctx.Done():
		return nil, NewTransportError("canceled while awaiting ack", ctx.Err())
	}
}
