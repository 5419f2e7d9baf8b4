package capture

import (
	"context"
	"sync"
	"time"

	"github.com/rygwdn/CosoriKettleBLE/internal/transport"
)

// Replayer plays the device side of a capture back through the
// transport.Transport interface. RX entries are delivered to the
// subscribed handler in order; writes are recorded instead of sent.
// A Session layered on top decodes the replayed traffic exactly as it
// decoded the live run.
type Replayer struct {
	header  Header
	entries []Entry

	mu       sync.Mutex
	handler  transport.Handler
	sent     [][]byte
	started  bool
	realtime bool

	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// NewReplayer builds a replayer over already loaded entries
func NewReplayer(header Header, entries []Entry) *Replayer {
	return &Replayer{
		header:  header,
		entries: entries,
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// LoadReplayer reads the capture file at path into a replayer
func LoadReplayer(path string) (*Replayer, error) {
	header, entries, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewReplayer(header, entries), nil
}

// SetRealtime makes Start honor the recorded inter-chunk gaps instead
// of delivering as fast as possible. Call before Start.
func (r *Replayer) SetRealtime(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.realtime = on
}

// Start begins delivering RX entries on a background goroutine.
// Subscribe first; chunks delivered with no handler are lost.
func (r *Replayer) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	realtime := r.realtime
	r.mu.Unlock()

	go r.run(realtime)
}

func (r *Replayer) run(realtime bool) {
	defer close(r.done)

	var last time.Duration
	for _, e := range r.entries {
		if e.Dir != DirRX {
			continue
		}

		if realtime {
			if wait := e.Elapsed() - last; wait > 0 {
				select {
				case <-time.After(wait):
				case <-r.closed:
					return
				}
			}
		}
		last = e.Elapsed()

		select {
		case <-r.closed:
			return
		default:
		}

		r.mu.Lock()
		h := r.handler
		r.mu.Unlock()
		if h != nil {
			h(e.Data)
		}
	}
}

// Done closes once every RX entry has been delivered or the replayer
// was closed
func (r *Replayer) Done() <-chan struct{} {
	return r.done
}

// Header returns the header of the capture being replayed
func (r *Replayer) Header() Header {
	return r.header
}

// WriteChunk implements Transport by recording the chunk
func (r *Replayer) WriteChunk(ctx context.Context, chunk []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-r.closed:
		return transport.ErrClosed
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, append([]byte{}, chunk...))
	return nil
}

// Subscribe implements Transport
func (r *Replayer) Subscribe(h transport.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Info implements Transport. Only the recorded device identity is
// known; protocol version has to come from the caller.
func (r *Replayer) Info() transport.DeviceInfo {
	return transport.DeviceInfo{Name: r.header.Device}
}

// Connected implements Transport
func (r *Replayer) Connected() bool {
	select {
	case <-r.closed:
		return false
	default:
		return true
	}
}

// Close implements Transport, stopping any in-progress delivery
func (r *Replayer) Close() error {
	r.closeOnce.Do(func() {
		close(r.closed)
	})
	return nil
}

// Sent returns copies of every chunk written to the replayer
func (r *Replayer) Sent() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([][]byte, len(r.sent))
	for i, chunk := range r.sent {
		out[i] = append([]byte{}, chunk...)
	}
	return out
}
