package protocol

import (
	"bytes"
	"errors"
)

// MaxReassemblyBuffer bounds the chunk reassembly buffer. Overflowing it
// discards everything buffered; in-flight frames are lost but the stream
// recovers on the next notification.
const MaxReassemblyBuffer = 512

// Reassembler accumulates BLE notification chunks and yields complete,
// checksum-valid frames. Notifications carry at most 20 bytes, so frames
// longer than that arrive split across several callbacks; the reassembler
// buffers until a whole frame is available and resynchronizes past any
// corruption.
//
// Not safe for concurrent use; feed it from a single goroutine (the
// notification callback).
type Reassembler struct {
	buf []byte
}

// NewReassembler creates an empty reassembler. The zero value is also valid.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Append adds a received chunk. If the result would exceed
// MaxReassemblyBuffer the existing buffer is discarded first.
func (r *Reassembler) Append(chunk []byte) {
	if len(r.buf)+len(chunk) > MaxReassemblyBuffer {
		r.buf = r.buf[:0]
	}
	r.buf = append(r.buf, chunk...)
}

// Pending returns the number of buffered bytes not yet consumed
func (r *Reassembler) Pending() int {
	return len(r.buf)
}

// Reset discards all buffered bytes
func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
}

// Drain extracts every complete frame currently buffered.
//
// Bytes before the first magic byte are discarded. A frame candidate that
// fails validation (bad kind, impossible length, checksum mismatch) costs
// exactly one byte: the buffer slides forward one position and the scan
// restarts, so a valid frame hiding behind corruption is still found in the
// same call. An incomplete trailing frame stays buffered for the next
// Append.
func (r *Reassembler) Drain() []*Envelope {
	var frames []*Envelope

	for {
		start := bytes.IndexByte(r.buf, FrameMagic)
		if start < 0 {
			r.buf = r.buf[:0]
			return frames
		}
		if start > 0 {
			r.discard(start)
		}

		env, err := ParseEnvelope(r.buf)
		if err != nil {
			if errors.Is(err, ErrIncompleteFrame) {
				return frames
			}
			r.discard(1)
			continue
		}

		frames = append(frames, env)
		r.discard(len(env.Raw))
	}
}

// discard removes n leading bytes, compacting in place so the backing
// array stays bounded
func (r *Reassembler) discard(n int) {
	r.buf = append(r.buf[:0], r.buf[n:]...)
}
