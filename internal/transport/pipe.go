package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned for operations on a closed transport
var ErrClosed = errors.New("transport closed")

// Pipe is an in-memory Transport wired to a scripted peer. Tests play the
// device side: they inspect what the session wrote and inject notification
// chunks back.
type Pipe struct {
	mu        sync.Mutex
	handler   Handler
	writeHook func(chunk []byte)
	sent      [][]byte
	info      DeviceInfo
	closed    bool
}

// NewPipe creates an open in-memory transport
func NewPipe() *Pipe {
	return &Pipe{}
}

// SetInfo sets the device identity the pipe reports
func (p *Pipe) SetInfo(info DeviceInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.info = info
}

// SetWriteHook installs a function called after every recorded write. The
// device side of a test lives here: reassemble outbound chunks and inject
// whatever the real kettle would answer.
func (p *Pipe) SetWriteHook(hook func(chunk []byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeHook = hook
}

// WriteChunk implements Transport
func (p *Pipe) WriteChunk(ctx context.Context, chunk []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	p.sent = append(p.sent, buf)
	hook := p.writeHook
	p.mu.Unlock()

	if hook != nil {
		hook(buf)
	}
	return nil
}

// Subscribe implements Transport
func (p *Pipe) Subscribe(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

// Info implements Transport
func (p *Pipe) Info() DeviceInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

// Connected implements Transport
func (p *Pipe) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

// Close implements Transport
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Inject delivers device-to-host chunks to the subscribed handler, in order,
// on the caller's goroutine
func (p *Pipe) Inject(chunks ...[]byte) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()

	if h == nil {
		return
	}
	for _, c := range chunks {
		h(c)
	}
}

// Sent returns a copy of every chunk written so far
func (p *Pipe) Sent() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.sent))
	copy(out, p.sent)
	return out
}

// SentBytes returns every written chunk concatenated into one stream
func (p *Pipe) SentBytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []byte
	for _, c := range p.sent {
		out = append(out, c...)
	}
	return out
}

// Reset forgets recorded writes
func (p *Pipe) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = nil
}
