package protocol

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

// fromHex decodes a captured-traffic hex string into bytes for test vectors.
// Spaces are allowed so long captures can be grouped by field.
func fromHex(s string) []byte {
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		panic("bad hex in test vector: " + err.Error())
	}
	return b
}

// hexEncode renders a frame built at runtime as a table-entry hex string
func hexEncode(frame []byte) string {
	return hex.EncodeToString(frame)
}

func TestCalculateChecksum(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  byte
	}{
		{
			name:  "status request",
			frame: fromHex("a5224104007201404000"),
			want:  0x72,
		},
		{
			name:  "set my temp 179F",
			frame: fromHex("a5221c0500cd01f3a300b3"),
			want:  0xCD,
		},
		{
			name:  "compact status notification",
			frame: fromHex("a522b50c00b3014140000000b38f00000000"),
			want:  0xB3,
		},
		{
			name:  "extended status ack",
			frame: fromHex("a512401d009301404000" + "0000af69af0000000000010000c40e00000000003408000001"),
			want:  0x93,
		},
		{
			name: "placeholder content does not matter",
			frame: func() []byte {
				f := fromHex("a5224104007201404000")
				f[5] = 0xFF // garbage in the checksum slot
				return f
			}(),
			want: 0x72,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateChecksum(tt.frame); got != tt.want {
				t.Errorf("CalculateChecksum() = 0x%02x, want 0x%02x", got, tt.want)
			}
		})
	}
}

func TestBuildFrame(t *testing.T) {
	tests := []struct {
		name    string
		kind    byte
		seq     uint8
		payload []byte
		wantErr bool
		verify  func(t *testing.T, frame []byte)
	}{
		{
			name:    "message frame matches capture",
			kind:    FrameKindMessage,
			seq:     0x41,
			payload: CmdStatusRequest[:],
			verify: func(t *testing.T, frame []byte) {
				want := fromHex("a5224104007201404000")
				if !bytes.Equal(frame, want) {
					t.Errorf("frame = %x, want %x", frame, want)
				}
			},
		},
		{
			name:    "ack frame kind byte",
			kind:    FrameKindAck,
			seq:     0x10,
			payload: CmdStatusCompact[:],
			verify: func(t *testing.T, frame []byte) {
				if frame[1] != FrameKindAck {
					t.Errorf("kind = 0x%02x, want 0x%02x", frame[1], FrameKindAck)
				}
				if frame[2] != 0x10 {
					t.Errorf("seq = 0x%02x, want 0x10", frame[2])
				}
			},
		},
		{
			name:    "empty payload",
			kind:    FrameKindMessage,
			seq:     0,
			payload: nil,
			verify: func(t *testing.T, frame []byte) {
				if len(frame) != EnvelopeSize {
					t.Errorf("frame size = %d, want %d", len(frame), EnvelopeSize)
				}
				if frame[3] != 0 || frame[4] != 0 {
					t.Errorf("length field = %02x %02x, want 00 00", frame[3], frame[4])
				}
			},
		},
		{
			name:    "maximum payload",
			kind:    FrameKindMessage,
			seq:     1,
			payload: make([]byte, MaxPayloadSize),
			verify: func(t *testing.T, frame []byte) {
				if len(frame) != EnvelopeSize+MaxPayloadSize {
					t.Errorf("frame size = %d, want %d", len(frame), EnvelopeSize+MaxPayloadSize)
				}
			},
		},
		{
			name:    "payload too large",
			kind:    FrameKindMessage,
			seq:     1,
			payload: make([]byte, MaxPayloadSize+1),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := BuildFrame(tt.kind, tt.seq, tt.payload)

			if (err != nil) != tt.wantErr {
				t.Errorf("BuildFrame() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}

			// Every built frame must carry a checksum ParseEnvelope accepts
			if frame[5] != CalculateChecksum(frame) {
				t.Errorf("checksum = 0x%02x, want 0x%02x", frame[5], CalculateChecksum(frame))
			}

			if tt.verify != nil {
				tt.verify(t, frame)
			}
		})
	}
}

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name           string
		data           []byte
		wantErr        bool
		wantIncomplete bool
		verify         func(t *testing.T, env *Envelope)
	}{
		{
			name: "status request frame",
			data: fromHex("a5224104007201404000"),
			verify: func(t *testing.T, env *Envelope) {
				if env.Kind != FrameKindMessage {
					t.Errorf("kind = 0x%02x, want 0x%02x", env.Kind, FrameKindMessage)
				}
				if env.Seq != 0x41 {
					t.Errorf("seq = 0x%02x, want 0x41", env.Seq)
				}
				if !bytes.Equal(env.Payload, CmdStatusRequest[:]) {
					t.Errorf("payload = %x, want %x", env.Payload, CmdStatusRequest[:])
				}
			},
		},
		{
			name: "ack frame with trailing bytes ignored",
			data: append(fromHex("a5224104007201404000"), 0xDE, 0xAD),
			verify: func(t *testing.T, env *Envelope) {
				if len(env.Raw) != 10 {
					t.Errorf("raw frame length = %d, want 10", len(env.Raw))
				}
			},
		},
		{
			name:           "empty input incomplete",
			data:           nil,
			wantErr:        true,
			wantIncomplete: true,
		},
		{
			name:           "partial envelope incomplete",
			data:           fromHex("a5224104"),
			wantErr:        true,
			wantIncomplete: true,
		},
		{
			name:           "payload shorter than declared incomplete",
			data:           fromHex("a52241040072014040"), // declares 4, carries 3
			wantErr:        true,
			wantIncomplete: true,
		},
		{
			name:    "wrong magic byte",
			data:    fromHex("a4224104007201404000"),
			wantErr: true,
		},
		{
			name:    "unknown frame kind",
			data:    fromHex("a5334104007201404000"),
			wantErr: true,
		},
		{
			name: "declared length over cap",
			data: func() []byte {
				f := fromHex("a5224104007201404000")
				f[3] = 0x01 // 0x0101 = 257 > 256
				f[4] = 0x01
				return f
			}(),
			wantErr: true,
		},
		{
			name: "checksum mismatch",
			data: func() []byte {
				f := fromHex("a5224104007201404000")
				f[5] = 0x73
				return f
			}(),
			wantErr: true,
		},
		{
			name: "payload corruption breaks checksum",
			data: func() []byte {
				f := fromHex("a5224104007201404000")
				f[7] = 0x41
				return f
			}(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope(tt.data)

			if (err != nil) != tt.wantErr {
				t.Errorf("ParseEnvelope() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				if incomplete := errors.Is(err, ErrIncompleteFrame); incomplete != tt.wantIncomplete {
					t.Errorf("errors.Is(err, ErrIncompleteFrame) = %v, want %v (err: %v)", incomplete, tt.wantIncomplete, err)
				}
				return
			}

			if tt.verify != nil {
				tt.verify(t, env)
			}
		})
	}
}

func TestParseEnvelopeCopiesInput(t *testing.T) {
	data := fromHex("a5224104007201404000")
	env, err := ParseEnvelope(data)
	if err != nil {
		t.Fatalf("ParseEnvelope() error = %v", err)
	}

	// Mutating the source buffer must not reach into the envelope, since
	// the reassembler compacts its buffer after every parse.
	for i := range data {
		data[i] = 0xFF
	}

	if !bytes.Equal(env.Payload, CmdStatusRequest[:]) {
		t.Errorf("payload aliases caller buffer: %x", env.Payload)
	}
	if env.Raw[0] != FrameMagic {
		t.Errorf("raw aliases caller buffer: %x", env.Raw)
	}
}

func TestBuildParseRoundTrip(t *testing.T) {
	payload := append(append([]byte{}, CmdStart[:]...), 0x03, 0x00, 0x01, 0x08, 0x34)

	frame, err := BuildFrame(FrameKindMessage, 0x7F, payload)
	if err != nil {
		t.Fatalf("BuildFrame() error = %v", err)
	}

	env, err := ParseEnvelope(frame)
	if err != nil {
		t.Fatalf("ParseEnvelope() error = %v", err)
	}

	if env.Seq != 0x7F {
		t.Errorf("seq = 0x%02x, want 0x7f", env.Seq)
	}
	if !bytes.Equal(env.Payload, payload) {
		t.Errorf("payload = %x, want %x", env.Payload, payload)
	}
	if !bytes.Equal(env.Raw, frame) {
		t.Errorf("raw = %x, want %x", env.Raw, frame)
	}
}

func TestEnvelopeKindString(t *testing.T) {
	tests := []struct {
		kind byte
		want string
	}{
		{FrameKindMessage, "MESSAGE"},
		{FrameKindAck, "ACK"},
		{0x99, "unknown(0x99)"},
	}

	for _, tt := range tests {
		env := &Envelope{Kind: tt.kind}
		if got := env.KindString(); got != tt.want {
			t.Errorf("KindString(0x%02x) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func BenchmarkCalculateChecksum(b *testing.B) {
	frame := fromHex("a512401d009301404000" + "0000af69af0000000000010000c40e00000000003408000001")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CalculateChecksum(frame)
	}
}

func BenchmarkBuildFrame(b *testing.B) {
	payload := append(append([]byte{}, CmdStart[:]...), 0x03, 0x00, 0x00, 0x00, 0x00)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = BuildFrame(FrameKindMessage, uint8(i), payload)
	}
}
