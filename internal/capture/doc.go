// Package capture records and replays raw kettle traffic.
//
// A capture file is a CBOR stream: a Header value followed by Entry
// values, one per BLE chunk, each stamped with its direction and the
// microsecond offset from the start of the session. Writer produces
// the stream, Tap wires a Writer into a live transport, Reader and
// Load consume files, and Replayer turns a capture back into a
// transport.Transport for offline debugging and tests.
package capture
