package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame envelope constants (verified against captured app traffic)
const (
	// FrameMagic is the first byte of every frame
	FrameMagic = 0xA5

	// Frame kinds
	FrameKindMessage = 0x22 // Messages sent to/from device
	FrameKindAck     = 0x12 // Acknowledgments (includes extended status responses)

	// EnvelopeSize is the fixed frame header size:
	// magic + kind + seq + len_lo + len_hi + checksum
	EnvelopeSize = 6

	// MaxPayloadSize is the hard cap on the declared payload length.
	// The device never sends more than 29 bytes in practice.
	MaxPayloadSize = 256

	// ChecksumPlaceholder occupies the checksum slot while the fold runs
	ChecksumPlaceholder = 0x01

	checksumOffset = 5
)

// ErrIncompleteFrame reports that a buffer does not yet hold a complete
// frame. Callers wait for more data instead of resynchronizing.
var ErrIncompleteFrame = errors.New("incomplete frame")

// Envelope represents a parsed protocol frame
type Envelope struct {
	Kind    byte   // FrameKindMessage or FrameKindAck
	Seq     uint8  // Wrapping sequence number (acks mirror the command seq)
	Payload []byte // Command header + body
	Raw     []byte // Complete frame bytes for debugging
}

// CalculateChecksum computes the frame checksum: a running modular
// subtraction seeded at zero over every frame byte, with the checksum slot
// counted as ChecksumPlaceholder regardless of its current content.
//
// Formula per byte: sum = (sum - b) mod 256
func CalculateChecksum(frame []byte) byte {
	var sum byte
	for i, b := range frame {
		if i == checksumOffset {
			b = ChecksumPlaceholder
		}
		sum -= b
	}
	return sum
}

// BuildFrame assembles a complete frame: 6-byte envelope followed by the
// payload bytes.
//
// Frame structure:
//
//	[0]    0xA5       Magic byte (FrameMagic)
//	[1]    kind       FrameKindMessage (0x22) or FrameKindAck (0x12)
//	[2]    seq        Sequence number
//	[3-4]  length     Payload length (little-endian uint16)
//	[5]    checksum   Modular-subtraction fold (see CalculateChecksum)
//	[6+]   payload    Command header + body
func BuildFrame(kind byte, seq uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	frame := make([]byte, EnvelopeSize+len(payload))
	frame[0] = FrameMagic
	frame[1] = kind
	frame[2] = seq
	binary.LittleEndian.PutUint16(frame[3:5], uint16(len(payload)))
	frame[checksumOffset] = ChecksumPlaceholder
	copy(frame[EnvelopeSize:], payload)

	frame[checksumOffset] = CalculateChecksum(frame)
	return frame, nil
}

// ParseEnvelope decodes one frame from the start of data. Bytes beyond the
// declared frame length are ignored, so the caller can hand in a buffer with
// several frames queued. The returned envelope copies its bytes and does not
// alias data.
//
// Incomplete input is reported via ErrIncompleteFrame; every other failure
// means the leading bytes cannot be a frame and the caller should
// resynchronize.
func ParseEnvelope(data []byte) (*Envelope, error) {
	if len(data) < EnvelopeSize {
		return nil, fmt.Errorf("%w: %d bytes (envelope needs %d)", ErrIncompleteFrame, len(data), EnvelopeSize)
	}

	if data[0] != FrameMagic {
		return nil, fmt.Errorf("invalid magic byte: 0x%02x (expected 0x%02x)", data[0], FrameMagic)
	}

	kind := data[1]
	if kind != FrameKindMessage && kind != FrameKindAck {
		return nil, fmt.Errorf("invalid frame kind: 0x%02x", kind)
	}

	payloadLen := int(binary.LittleEndian.Uint16(data[3:5]))
	if payloadLen > MaxPayloadSize {
		return nil, fmt.Errorf("declared payload length %d exceeds cap %d", payloadLen, MaxPayloadSize)
	}

	frameLen := EnvelopeSize + payloadLen
	if len(data) < frameLen {
		return nil, fmt.Errorf("%w: have %d bytes, frame needs %d", ErrIncompleteFrame, len(data), frameLen)
	}

	frame := data[:frameLen]
	if got, want := frame[checksumOffset], CalculateChecksum(frame); got != want {
		return nil, fmt.Errorf("checksum mismatch: 0x%02x (computed 0x%02x)", got, want)
	}

	raw := make([]byte, frameLen)
	copy(raw, frame)

	return &Envelope{
		Kind:    kind,
		Seq:     raw[2],
		Payload: raw[EnvelopeSize:],
		Raw:     raw,
	}, nil
}

// KindString returns a human-readable frame kind name
func (e *Envelope) KindString() string {
	switch e.Kind {
	case FrameKindMessage:
		return "MESSAGE"
	case FrameKindAck:
		return "ACK"
	default:
		return fmt.Sprintf("unknown(0x%02X)", e.Kind)
	}
}

// String returns a debug representation of the envelope
func (e *Envelope) String() string {
	return fmt.Sprintf("Envelope{kind=%s, seq=0x%02X, payload=%d bytes}",
		e.KindString(), e.Seq, len(e.Payload))
}
