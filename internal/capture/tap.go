package capture

import (
	"context"

	"github.com/rygwdn/CosoriKettleBLE/internal/transport"
)

// Tap wraps a live transport and records every chunk moving through it.
// Sits between kettle.Connect and the real link, so a capture reflects
// exactly what the session saw.
type Tap struct {
	inner transport.Transport
	w     *Writer
}

// NewTap records traffic on inner into w. Closing the tap closes both.
func NewTap(inner transport.Transport, w *Writer) *Tap {
	return &Tap{inner: inner, w: w}
}

// WriteChunk implements Transport. Only chunks the link accepted are
// recorded.
func (t *Tap) WriteChunk(ctx context.Context, chunk []byte) error {
	if err := t.inner.WriteChunk(ctx, chunk); err != nil {
		return err
	}
	t.w.recordBestEffort(DirTX, chunk)
	return nil
}

// Subscribe implements Transport
func (t *Tap) Subscribe(h transport.Handler) {
	t.inner.Subscribe(func(chunk []byte) {
		t.w.recordBestEffort(DirRX, chunk)
		h(chunk)
	})
}

// Info implements Transport
func (t *Tap) Info() transport.DeviceInfo {
	return t.inner.Info()
}

// Connected implements Transport
func (t *Tap) Connected() bool {
	return t.inner.Connected()
}

// Close implements Transport. The link goes down first so no entry
// arrives after the writer is flushed.
func (t *Tap) Close() error {
	err := t.inner.Close()
	if werr := t.w.Close(); err == nil {
		err = werr
	}
	return err
}
