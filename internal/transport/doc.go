// Package transport abstracts the link between this host and a kettle.
//
// The kettle itself only speaks BLE GATT: frames travel as chunks of at
// most 20 bytes through a pair of vendor characteristics. This package
// hides how those chunks reach the device:
//
//   - Bridge tunnels chunks through a WebSocket BLE gateway on the network
//     (DialBridge)
//   - SerialGateway drives a serial BLE adapter (OpenSerial)
//   - Pipe is an in-memory transport for tests
//
// All implementations deliver inbound chunks to a subscribed Handler.
// Chunks are fragments of frames, not frames; feed them to a
// protocol.Reassembler to recover frame boundaries.
package transport
