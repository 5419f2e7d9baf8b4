package kettle

import (
	"context"
	"testing"
	"time"

	"github.com/rygwdn/CosoriKettleBLE/internal/protocol"
)

func TestAckTrackerResolvesPendingWaiter(t *testing.T) {
	tracker := NewAckTracker()
	ch := tracker.Register(0x42)

	if got := tracker.Pending(); got != 1 {
		t.Fatalf("Pending() = %d, want 1", got)
	}

	ack := &protocol.AckPacket{Seq: 0x42, Command: protocol.CmdStart, Success: true}
	if !tracker.Resolve(ack) {
		t.Fatal("Resolve() = false, want true for a registered sequence")
	}
	if got := tracker.Pending(); got != 0 {
		t.Errorf("Pending() after resolve = %d, want 0", got)
	}

	select {
	case got := <-ch:
		if got != ack {
			t.Errorf("waiter received %v, want the resolved ack", got)
		}
	default:
		t.Error("waiter channel is empty after Resolve")
	}
}

func TestAckTrackerResolveWithoutWaiter(t *testing.T) {
	tracker := NewAckTracker()

	ack := &protocol.AckPacket{Seq: 0x10, Command: protocol.CmdStop, Success: true}
	if tracker.Resolve(ack) {
		t.Error("Resolve() = true for a sequence nobody registered")
	}
}

func TestAckTrackerCancelRemovesOnlyOwnWaiter(t *testing.T) {
	tracker := NewAckTracker()

	ch1 := tracker.Register(0x05)
	tracker.Cancel(0x05, ch1)
	if got := tracker.Pending(); got != 0 {
		t.Fatalf("Pending() after cancel = %d, want 0", got)
	}

	// A wrapped sequence space displaces the stale waiter; its late cancel
	// must not evict the newer one.
	stale := tracker.Register(0x05)
	fresh := tracker.Register(0x05)
	tracker.Cancel(0x05, stale)
	if got := tracker.Pending(); got != 1 {
		t.Fatalf("Pending() after stale cancel = %d, want 1", got)
	}

	ack := &protocol.AckPacket{Seq: 0x05, Command: protocol.CmdRegister, Success: true}
	if !tracker.Resolve(ack) {
		t.Fatal("Resolve() = false, want true for the fresh waiter")
	}
	select {
	case <-fresh:
	default:
		t.Error("fresh waiter did not receive the ack")
	}
	select {
	case got, ok := <-stale:
		if ok {
			t.Errorf("stale waiter received %v, want a superseded close", got)
		}
	default:
		t.Error("stale waiter still blocked after being displaced")
	}
}

func TestAckTrackerDisplacedWaiterReturnsPromptly(t *testing.T) {
	tracker := NewAckTracker()
	stale := tracker.Register(0x0C)

	// The sequence space wrapped onto a waiter that never resolved; its
	// Await must return now, not after its own timeout.
	tracker.Register(0x0C)

	started := time.Now()
	_, err := tracker.Await(context.Background(), "start", 0x0C, stale, 2*time.Second)
	if elapsed := time.Since(started); elapsed > 200*time.Millisecond {
		t.Errorf("displaced waiter blocked for %v, want a prompt return", elapsed)
	}
	if !IsSuperseded(err) {
		t.Fatalf("Await() error = %v, want a superseded error", err)
	}
	kerr := err.(*KettleError)
	if kerr.Command != "start" || kerr.Seq != 0x0C {
		t.Errorf("superseded error names %q seq 0x%02X, want \"start\" seq 0x0C", kerr.Command, kerr.Seq)
	}
	if !IsRetryable(err) {
		t.Error("IsRetryable() = false, a displaced command may be retried")
	}
	if got := tracker.Pending(); got != 1 {
		t.Errorf("Pending() = %d, want 1 (the fresh waiter stays)", got)
	}
}

func TestAckTrackerAwait(t *testing.T) {
	tracker := NewAckTracker()
	ch := tracker.Register(0x07)

	// Resolve before Await: the buffered channel holds the ack
	want := &protocol.AckPacket{Seq: 0x07, Command: protocol.CmdSetMyTemp, Success: true}
	tracker.Resolve(want)

	got, err := tracker.Await(context.Background(), "set my temp", 0x07, ch, time.Second)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if got != want {
		t.Errorf("Await() = %v, want the resolved ack", got)
	}
}

func TestAckTrackerAwaitTimeout(t *testing.T) {
	tracker := NewAckTracker()
	ch := tracker.Register(0x09)

	_, err := tracker.Await(context.Background(), "start", 0x09, ch, 30*time.Millisecond)
	if err == nil {
		t.Fatal("Await() error = nil, want timeout")
	}
	if !IsAckTimeout(err) {
		t.Errorf("IsAckTimeout(%v) = false", err)
	}
	if got := tracker.Pending(); got != 0 {
		t.Errorf("Pending() after timeout = %d, want 0 (waiter must be cleaned up)", got)
	}
}

func TestAckTrackerAwaitCanceled(t *testing.T) {
	tracker := NewAckTracker()
	ch := tracker.Register(0x0A)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tracker.Await(ctx, "stop", 0x0A, ch, time.Second)
	if err == nil {
		t.Fatal("Await() error = nil, want cancellation")
	}
	if !IsTransportError(err) {
		t.Errorf("IsTransportError(%v) = false", err)
	}
	if got := tracker.Pending(); got != 0 {
		t.Errorf("Pending() after cancel = %d, want 0", got)
	}
}
