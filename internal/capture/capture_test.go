package capture

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/rygwdn/CosoriKettleBLE/internal/kettle"
	"github.com/rygwdn/CosoriKettleBLE/internal/protocol"
	"github.com/rygwdn/CosoriKettleBLE/internal/transport"
)

func TestDirectionString(t *testing.T) {
	tests := []struct {
		dir  Direction
		want string
	}{
		{DirTX, "TX"},
		{DirRX, "RX"},
		{Direction(7), "DIR(7)"},
	}
	for _, tt := range tests {
		if got := tt.dir.String(); got != tt.want {
			t.Errorf("Direction(%d).String() = %q, want %q", tt.dir, got, tt.want)
		}
	}
}

func TestCaptureRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	base := w.start

	want := []struct {
		dir  Direction
		at   time.Duration
		data []byte
	}{
		{DirTX, 0, []byte{0xA5, 0x22, 0x41, 0x04, 0x00, 0x72, 0x01, 0x40, 0x40, 0x00}},
		{DirRX, 1500 * time.Microsecond, []byte{0xA5, 0x12}},
		{DirRX, 2 * time.Millisecond, []byte{0x01}},
		{DirTX, 3 * time.Second, []byte{0xEE, 0xFF}},
	}
	for _, e := range want {
		if err := w.RecordAt(e.dir, e.data, base.Add(e.at)); err != nil {
			t.Fatalf("RecordAt(%v) error = %v", e.dir, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}

	hdr := r.Header()
	if hdr.Version != FormatVersion {
		t.Errorf("header version = %d, want %d", hdr.Version, FormatVersion)
	}
	if hdr.Device != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("header device = %q, want the recorded identity", hdr.Device)
	}
	if hdr.Created != base.Unix() {
		t.Errorf("header created = %d, want %d", hdr.Created, base.Unix())
	}

	got, err := r.Entries()
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("read %d entries, want %d", len(got), len(want))
	}
	for i, e := range want {
		if got[i].Dir != e.dir {
			t.Errorf("entry %d direction = %v, want %v", i, got[i].Dir, e.dir)
		}
		if got[i].Elapsed() != e.at {
			t.Errorf("entry %d offset = %v, want %v", i, got[i].Elapsed(), e.at)
		}
		if !bytes.Equal(got[i].Data, e.data) {
			t.Errorf("entry %d data = %x, want %x", i, got[i].Data, e.data)
		}
	}
}

func TestCaptureWriterClosed(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "test")
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := w.Record(DirTX, []byte{0x01}); err == nil {
		t.Error("Record() on a closed writer succeeded")
	}
}

func TestCaptureFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.capture")

	w, err := Create(path, "Cosori Kettle")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := w.Record(DirTX, []byte{0x10, 0x20}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := w.Record(DirRX, []byte{0x30}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	hdr, entries, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if hdr.Device != "Cosori Kettle" {
		t.Errorf("header device = %q, want Cosori Kettle", hdr.Device)
	}
	if len(entries) != 2 {
		t.Fatalf("loaded %d entries, want 2", len(entries))
	}
	if entries[0].Dir != DirTX || !bytes.Equal(entries[0].Data, []byte{0x10, 0x20}) {
		t.Errorf("entry 0 = %v %x, want TX 1020", entries[0].Dir, entries[0].Data)
	}
	if entries[1].Dir != DirRX || !bytes.Equal(entries[1].Data, []byte{0x30}) {
		t.Errorf("entry 1 = %v %x, want RX 30", entries[1].Dir, entries[1].Data)
	}

	if _, _, err := Load(filepath.Join(t.TempDir(), "missing.capture")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
}

func TestReaderRejectsNewerVersion(t *testing.T) {
	raw, err := cbor.Marshal(Header{Version: FormatVersion + 1, Device: "future"})
	if err != nil {
		t.Fatalf("cbor.Marshal() error = %v", err)
	}
	_, err = NewReader(bytes.NewReader(raw))
	if err == nil {
		t.Fatal("NewReader() accepted a newer format version")
	}
	if !strings.Contains(err.Error(), "newer") {
		t.Errorf("error = %q, want a mention of the newer version", err)
	}
}

func TestReaderEmptyStream(t *testing.T) {
	if _, err := NewReader(bytes.NewReader(nil)); err == nil {
		t.Error("NewReader() of an empty stream succeeded")
	}
}

func TestTapRecordsTraffic(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "tap test")
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	pipe := transport.NewPipe()
	pipe.SetInfo(transport.DeviceInfo{Name: "Cosori Kettle"})
	tap := NewTap(pipe, w)

	var delivered [][]byte
	tap.Subscribe(func(chunk []byte) {
		delivered = append(delivered, append([]byte{}, chunk...))
	})

	if err := tap.WriteChunk(context.Background(), []byte{0x01, 0x02}); err != nil {
		t.Fatalf("WriteChunk() error = %v", err)
	}
	pipe.Inject([]byte{0xA5, 0x12})

	if got := tap.Info().Name; got != "Cosori Kettle" {
		t.Errorf("Info().Name = %q, want the pipe's identity", got)
	}
	if !tap.Connected() {
		t.Error("Connected() = false on an open tap")
	}

	if len(delivered) != 1 || !bytes.Equal(delivered[0], []byte{0xA5, 0x12}) {
		t.Fatalf("subscriber saw %x, want [a512]", delivered)
	}

	if err := tap.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if tap.Connected() {
		t.Error("Connected() = true after Close()")
	}

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	entries, err := r.Entries()
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("capture holds %d entries, want 2", len(entries))
	}
	if entries[0].Dir != DirTX || !bytes.Equal(entries[0].Data, []byte{0x01, 0x02}) {
		t.Errorf("entry 0 = %v %x, want TX 0102", entries[0].Dir, entries[0].Data)
	}
	if entries[1].Dir != DirRX || !bytes.Equal(entries[1].Data, []byte{0xA5, 0x12}) {
		t.Errorf("entry 1 = %v %x, want RX a512", entries[1].Dir, entries[1].Data)
	}
}

func TestReplayerDeliversRxInOrder(t *testing.T) {
	entries := []Entry{
		{Dir: DirTX, Offset: 0, Data: []byte{0x01}},
		{Dir: DirRX, Offset: 1000, Data: []byte{0x02}},
		{Dir: DirRX, Offset: 2000, Data: []byte{0x03}},
		{Dir: DirTX, Offset: 3000, Data: []byte{0x04}},
		{Dir: DirRX, Offset: 4000, Data: []byte{0x05}},
	}
	r := NewReplayer(Header{Version: FormatVersion, Device: "replay"}, entries)

	var got [][]byte
	r.Subscribe(func(chunk []byte) {
		got = append(got, append([]byte{}, chunk...))
	})
	r.Start()

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("replay never finished")
	}

	want := [][]byte{{0x02}, {0x03}, {0x05}}
	if len(got) != len(want) {
		t.Fatalf("delivered %d chunks, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("chunk %d = %x, want %x", i, got[i], want[i])
		}
	}

	if err := r.WriteChunk(context.Background(), []byte{0xAA}); err != nil {
		t.Fatalf("WriteChunk() error = %v", err)
	}
	if sent := r.Sent(); len(sent) != 1 || !bytes.Equal(sent[0], []byte{0xAA}) {
		t.Errorf("Sent() = %x, want [aa]", sent)
	}

	if r.Info().Name != "replay" {
		t.Errorf("Info().Name = %q, want the header device", r.Info().Name)
	}
	if !r.Connected() {
		t.Error("Connected() = false before Close()")
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if r.Connected() {
		t.Error("Connected() = true after Close()")
	}
	if err := r.WriteChunk(context.Background(), []byte{0xBB}); err != transport.ErrClosed {
		t.Errorf("WriteChunk() after close error = %v, want ErrClosed", err)
	}
}

func TestReplayerRealtime(t *testing.T) {
	entries := []Entry{
		{Dir: DirRX, Offset: 0, Data: []byte{0x01}},
		{Dir: DirRX, Offset: 50_000, Data: []byte{0x02}},
	}
	r := NewReplayer(Header{Version: FormatVersion}, entries)
	r.Subscribe(func([]byte) {})
	r.SetRealtime(true)

	start := time.Now()
	r.Start()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("replay never finished")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("timed replay finished in %v, want at least the recorded 50ms gap", elapsed)
	}
}

func TestReplayerCloseInterruptsTimedReplay(t *testing.T) {
	entries := []Entry{
		{Dir: DirRX, Offset: 0, Data: []byte{0x01}},
		{Dir: DirRX, Offset: 60_000_000, Data: []byte{0x02}}, // a minute out
	}
	r := NewReplayer(Header{Version: FormatVersion}, entries)

	first := make(chan struct{}, 2)
	r.Subscribe(func([]byte) { first <- struct{}{} })
	r.SetRealtime(true)
	r.Start()

	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("first chunk never delivered")
	}
	r.Close()

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not stop the timed replay")
	}
}

// TestReplayerFeedsSession decodes a captured kettle conversation through a
// live Session: the replayed status and completion traffic must drive the
// same event callbacks and status cache as the original run.
func TestReplayerFeedsSession(t *testing.T) {
	extBody := make([]byte, 25)
	extBody[0] = 0x01 // heating
	extBody[1] = 0x04 // boil
	extBody[2] = 212
	extBody[3] = 150
	extBody[4] = 175
	extPayload := append([]byte{}, protocol.CmdStatusRequest[:]...)
	extPayload = append(extPayload, extBody...)
	ext, err := protocol.BuildFrame(protocol.FrameKindAck, 0x02, extPayload)
	if err != nil {
		t.Fatalf("BuildFrame(extended status) error = %v", err)
	}

	compactPayload := append([]byte{}, protocol.CmdStatusCompact[:]...)
	compactPayload = append(compactPayload, 0x01, 0x04, 212, 199, 0x01, 0x00, 0x00, 0x00)
	compact, err := protocol.BuildFrame(protocol.FrameKindMessage, 0x4A, compactPayload)
	if err != nil {
		t.Fatalf("BuildFrame(compact status) error = %v", err)
	}

	donePayload := append([]byte{}, protocol.CmdCompletion[:]...)
	donePayload = append(donePayload, 0x20)
	completion, err := protocol.BuildFrame(protocol.FrameKindMessage, 0x4B, donePayload)
	if err != nil {
		t.Fatalf("BuildFrame(completion) error = %v", err)
	}

	request, err := protocol.BuildStatusRequest(0x02)
	if err != nil {
		t.Fatalf("BuildStatusRequest() error = %v", err)
	}

	var entries []Entry
	offset := int64(0)
	add := func(dir Direction, frame []byte) {
		for _, chunk := range transport.Chunks(frame) {
			entries = append(entries, Entry{Dir: dir, Offset: offset, Data: chunk})
			offset += 1000
		}
	}
	add(DirTX, request)
	add(DirRX, ext)
	add(DirRX, compact)
	add(DirRX, completion)

	r := NewReplayer(Header{Version: FormatVersion, Device: "Cosori Kettle"}, entries)

	var statuses, completions int
	s := kettle.NewSession(r, kettle.Options{
		Events: kettle.Events{
			OnStatus:          func(*protocol.StatusPacket) { statuses++ },
			OnHeatingComplete: func() { completions++ },
		},
	})

	r.Start()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("replay never finished")
	}

	if statuses != 2 {
		t.Errorf("OnStatus fired %d times, want 2", statuses)
	}
	if completions != 1 {
		t.Errorf("OnHeatingComplete fired %d times, want 1", completions)
	}

	last, _, ok := s.LastStatus()
	if !ok {
		t.Fatal("LastStatus() empty after replay")
	}
	if last.TemperatureF != 199 || last.SetpointF != 212 {
		t.Errorf("LastStatus() = %d°F toward %d°F, want the compact snapshot 199/212",
			last.TemperatureF, last.SetpointF)
	}
	if !s.Registered() {
		t.Error("Registered() = false after replayed status traffic")
	}
}
