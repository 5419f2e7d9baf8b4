package capture

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/rygwdn/CosoriKettleBLE/internal/logging"
)

// FormatVersion is the capture file format written by this package.
// Readers refuse files written by a newer format.
const FormatVersion = 1

// Direction marks which way a chunk travelled
type Direction uint8

const (
	// DirTX is host to kettle
	DirTX Direction = 0
	// DirRX is kettle to host
	DirRX Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirTX:
		return "TX"
	case DirRX:
		return "RX"
	default:
		return fmt.Sprintf("DIR(%d)", uint8(d))
	}
}

// Header is the first CBOR value in a capture file
type Header struct {
	Version int    `cbor:"version"`
	Device  string `cbor:"device"`
	Created int64  `cbor:"created"` // unix seconds
}

// CreatedTime returns the capture start time
func (h Header) CreatedTime() time.Time {
	return time.Unix(h.Created, 0)
}

// Entry is one recorded BLE chunk. Offset is microseconds since the
// capture started, preserving the inter-chunk timing of the original
// session for timed replay.
type Entry struct {
	Dir    Direction `cbor:"dir"`
	Offset int64     `cbor:"offset_us"`
	Data   []byte    `cbor:"data"`
}

// Elapsed returns the entry offset as a duration
func (e Entry) Elapsed() time.Duration {
	return time.Duration(e.Offset) * time.Microsecond
}

// Writer appends capture entries to a CBOR stream. Safe for concurrent
// use; chunks from the notification goroutine and the command path
// interleave in arrival order.
type Writer struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	buf    *bufio.Writer
	file   *os.File
	start  time.Time
	closed bool
}

// Create opens a capture file at path, truncating any existing file,
// and writes the header
func Create(path, device string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}

	w, err := newWriter(f, device)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	w.file = f
	return w, nil
}

// NewWriter writes a capture stream to out, starting with the header
func NewWriter(out io.Writer, device string) (*Writer, error) {
	return newWriter(out, device)
}

func newWriter(out io.Writer, device string) (*Writer, error) {
	buf := bufio.NewWriter(out)
	w := &Writer{
		enc:   cbor.NewEncoder(buf),
		buf:   buf,
		start: time.Now(),
	}

	hdr := Header{
		Version: FormatVersion,
		Device:  device,
		Created: w.start.Unix(),
	}
	if err := w.enc.Encode(hdr); err != nil {
		return nil, fmt.Errorf("failed to write capture header: %w", err)
	}
	return w, nil
}

// Record appends one chunk with an offset taken from the wall clock
func (w *Writer) Record(dir Direction, data []byte) error {
	return w.RecordAt(dir, data, time.Now())
}

// RecordAt appends one chunk with an explicit timestamp
func (w *Writer) RecordAt(dir Direction, data []byte, at time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("capture writer is closed")
	}

	entry := Entry{
		Dir:    dir,
		Offset: at.Sub(w.start).Microseconds(),
		Data:   data,
	}
	if entry.Offset < 0 {
		entry.Offset = 0
	}
	if err := w.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to write capture entry: %w", err)
	}
	return nil
}

// Close flushes buffered entries and closes the file if Create opened one
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	err := w.buf.Flush()
	if w.file != nil {
		if cerr := w.file.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to finish capture: %w", err)
	}
	return nil
}

// recordBestEffort logs instead of failing; a full disk must not take
// the kettle session down with it
func (w *Writer) recordBestEffort(dir Direction, data []byte) {
	if err := w.Record(dir, data); err != nil {
		logging.GetLogger().Warn("Dropped capture entry",
			zap.String("direction", dir.String()),
			zap.Error(err))
	}
}
