// Package protocol implements the Cosori kettle binary protocol.
//
// This package handles framing, parsing, validation, and construction of the
// binary packets Cosori smart kettles exchange over BLE GATT. The protocol
// was reverse engineered from captured app traffic; byte layouts reproduce
// the captures exactly because the firmware silently drops anything else.
//
// # Frame Format
//
// Every packet is a 6-byte envelope followed by a payload:
//   - Magic byte: 0xA5
//   - Frame kind: 0x22 (MESSAGE) or 0x12 (ACK)
//   - Sequence number: 1 byte, wraps at 0xFF
//   - Payload length: 2 bytes (little-endian)
//   - Checksum: 1 byte (modular subtraction over the whole frame, with the
//     checksum slot counted as the placeholder 0x01)
//   - Payload: 4-byte command header plus a command-specific body
//
// # Packet Types
//
// Inbound frames decode into four packet shapes:
//   - StatusPacket: kettle state, from the compact notification or the
//     extended status that rides in an ACK frame
//   - AckPacket: command acknowledgment with a success flag
//   - CompletionPacket: heating finished or keep-warm hold expired
//   - UnknownPacket: anything not yet mapped, preserved for inspection
//
// # Protocol Versions
//
// Two incompatible firmware generations exist. V1 (current) acknowledges
// every command. V0 (legacy) has no command acks and instead requires a
// timed choreography of hello5, setpoint, and host-side status acks; the
// session layer in internal/kettle drives that sequencing.
//
// # Chunk Reassembly
//
// BLE notifications carry at most 20 bytes, so frames split across
// callbacks. Reassembler buffers chunks and yields complete, checksum-valid
// frames, resynchronizing one byte at a time past corruption:
//
//	r := protocol.NewReassembler()
//	r.Append(chunk)
//	for _, env := range r.Drain() {
//	    pkt, err := protocol.ParsePacket(env)
//	    ...
//	}
//
// # Usage Example - Construction
//
//	// Start heating to the coffee preset with a 30 minute hold
//	frame, err := protocol.BuildStart(seq, protocol.ModeCoffee, true, 1800)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// Write in 20-byte chunks via the transport
//
// # Error Handling
//
// The package distinguishes between:
//   - Incomplete input: ErrIncompleteFrame, wait for more bytes
//   - Framing errors: bad magic, kind, length, or checksum; resynchronize
//   - Validation errors: recognized packets with impossible field values
//     (temperature readings outside 40-230°F), drop the frame
//
// Unrecognized (kind, command) pairs are not errors; they decode to
// UnknownPacket.
//
// # Thread Safety
//
// Parsing and construction functions are stateless and safe for concurrent
// use. Reassembler is not; confine it to the notification goroutine.
package protocol
