package protocol

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomFrame builds a valid frame with random kind, seq, and payload
func randomFrame(rng *rand.Rand) []byte {
	kind := byte(FrameKindMessage)
	if rng.Intn(2) == 1 {
		kind = FrameKindAck
	}
	payload := make([]byte, rng.Intn(41))
	rng.Read(payload)

	frame, err := BuildFrame(kind, uint8(rng.Intn(256)), payload)
	if err != nil {
		panic(err)
	}
	return frame
}

// feedInChunks appends data to the reassembler in random-sized chunks of at
// most 20 bytes, the BLE notification limit, draining as it goes
func feedInChunks(rng *rand.Rand, r *Reassembler, data []byte) []*Envelope {
	var out []*Envelope
	for len(data) > 0 {
		n := rng.Intn(20) + 1
		if n > len(data) {
			n = len(data)
		}
		r.Append(data[:n])
		data = data[n:]
		out = append(out, r.Drain()...)
	}
	return out
}

// TestFuzzReassembler_RandomBytes feeds random byte soup and verifies the
// reassembler neither panics nor grows without bound, and that anything it
// does emit is checksum-valid
func TestFuzzReassembler_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		r := NewReassembler()

		data := make([]byte, rng.Intn(600)+1)
		rng.Read(data)

		for _, env := range feedInChunks(rng, r, data) {
			if env.Raw[5] != CalculateChecksum(env.Raw) {
				t.Fatalf("round %d: emitted frame with bad checksum: %x", i, env.Raw)
			}
		}

		if r.Pending() > MaxReassemblyBuffer {
			t.Fatalf("round %d: pending %d exceeds buffer cap", i, r.Pending())
		}
	}
}

// TestFuzzReassembler_RandomFrames generates valid frames, splits them at
// random chunk boundaries, and verifies every frame is recovered intact and
// in order
func TestFuzzReassembler_RandomFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		count := rng.Intn(8) + 1
		var frames [][]byte
		var stream []byte
		for j := 0; j < count; j++ {
			f := randomFrame(rng)
			frames = append(frames, f)
			stream = append(stream, f...)
		}

		r := NewReassembler()
		got := feedInChunks(rng, r, stream)

		if len(got) != count {
			t.Fatalf("round %d: recovered %d frames, want %d", i, len(got), count)
		}
		for j, env := range got {
			if !bytes.Equal(env.Raw, frames[j]) {
				t.Fatalf("round %d: frame %d = %x, want %x", i, j, env.Raw, frames[j])
			}
		}
		if r.Pending() != 0 {
			t.Fatalf("round %d: %d bytes left pending after clean stream", i, r.Pending())
		}
	}
}

// TestFuzzReassembler_CorruptedStream corrupts one byte of one frame and
// verifies the frames ahead of the corruption still come through, nothing
// emitted is invalid, and the reassembler never panics
func TestFuzzReassembler_CorruptedStream(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		count := rng.Intn(6) + 2
		var frames [][]byte
		var stream []byte
		offsets := make([]int, count)
		for j := 0; j < count; j++ {
			f := randomFrame(rng)
			frames = append(frames, f)
			offsets[j] = len(stream)
			stream = append(stream, f...)
		}

		// Flip one byte somewhere inside a random frame
		victim := rng.Intn(count)
		pos := offsets[victim] + rng.Intn(len(frames[victim]))
		stream[pos] ^= byte(rng.Intn(255) + 1)

		r := NewReassembler()
		got := feedInChunks(rng, r, stream)

		for _, env := range got {
			if env.Raw[5] != CalculateChecksum(env.Raw) {
				t.Fatalf("round %d: emitted frame with bad checksum: %x", i, env.Raw)
			}
		}

		// Frames before the corrupted one are untouched by the damage and
		// must all arrive in order
		if len(got) < victim {
			t.Fatalf("round %d: recovered %d frames, want at least the %d preceding corruption",
				i, len(got), victim)
		}
		for j := 0; j < victim; j++ {
			if !bytes.Equal(got[j].Raw, frames[j]) {
				t.Fatalf("round %d: frame %d = %x, want %x", i, j, got[j].Raw, frames[j])
			}
		}
	}
}

// TestFuzzParsePacket_RandomPayloads drives the packet dispatcher with random
// payloads under both frame kinds and verifies it classifies without panicking
func TestFuzzParsePacket_RandomPayloads(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	kinds := []byte{FrameKindMessage, FrameKindAck}
	commands := []Command{
		CmdStatusRequest, CmdStatusCompact, CmdHello, CmdRegister, CmdStart,
		CmdDelayStart, CmdSetMyTemp, CmdStop, CmdSetBabyMode, CmdCompletion,
		CmdHello5, CmdSetpoint, CmdLegacyStop,
	}

	for i := 0; i < rounds; i++ {
		var payload []byte
		if rng.Intn(4) == 0 {
			// Fully random payload, often shorter than a command header
			payload = make([]byte, rng.Intn(32))
			rng.Read(payload)
		} else {
			// Real command header with a random body
			cmd := commands[rng.Intn(len(commands))]
			body := make([]byte, rng.Intn(32))
			rng.Read(body)
			payload = append(append([]byte{}, cmd[:]...), body...)
		}

		env := &Envelope{
			Kind:    kinds[rng.Intn(len(kinds))],
			Seq:     uint8(rng.Intn(256)),
			Payload: payload,
		}

		pkt, err := ParsePacket(env)
		if err != nil {
			continue // recognized shape with invalid field values
		}
		if pkt == nil {
			t.Fatalf("round %d: nil packet without error", i)
		}
		if pkt.Sequence() != env.Seq {
			t.Fatalf("round %d: packet seq 0x%02x, envelope seq 0x%02x", i, pkt.Sequence(), env.Seq)
		}
		_ = pkt.String()
	}
}

// TestFuzzBuildersAlwaysParse verifies that every builder output survives the
// full envelope + packet pipeline regardless of argument values
func TestFuzzBuildersAlwaysParse(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		seq := uint8(rng.Intn(256))
		mode := OperatingModeFromByte(byte(rng.Intn(7)))

		var frame []byte
		var err error
		switch rng.Intn(8) {
		case 0:
			frame, err = BuildStatusRequest(seq)
		case 1:
			frame, err = BuildStart(seq, mode, rng.Intn(2) == 1, uint16(rng.Intn(7201)))
		case 2:
			frame, err = BuildDelayStart(seq, uint16(rng.Intn(43200)), mode, rng.Intn(2) == 1, uint16(rng.Intn(7201)))
		case 3:
			frame, err = BuildSetMyTemp(seq, 104+rng.Intn(109))
		case 4:
			frame, err = BuildStop(seq, Version(rng.Intn(2)))
		case 5:
			frame, err = BuildSetBabyMode(seq, rng.Intn(2) == 1)
		case 6:
			frame, err = BuildSetpoint(seq, mode, 104+rng.Intn(109))
		case 7:
			frame, err = BuildHello(seq, nil)
		}
		if err != nil {
			t.Fatalf("round %d: builder error = %v", i, err)
		}

		env, err := ParseEnvelope(frame)
		if err != nil {
			t.Fatalf("round %d: built frame does not parse: %v (%x)", i, err, frame)
		}
		if env.Seq != seq {
			t.Fatalf("round %d: seq = 0x%02x, want 0x%02x", i, env.Seq, seq)
		}
		if _, err := ParsePacket(env); err != nil {
			t.Fatalf("round %d: packet dispatch error = %v (%x)", i, err, frame)
		}
	}
}
