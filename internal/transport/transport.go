package transport

import (
	"context"
)

// BLE GATT identity of the kettle. Links that tunnel GATT (network bridges,
// serial adapters) address characteristics by these UUIDs.
const (
	// ServiceUUID is the kettle's vendor service
	ServiceUUID = "0000fff0-0000-1000-8000-00805f9b34fb"
	// NotifyCharUUID carries device-to-host notifications
	NotifyCharUUID = "0000fff1-0000-1000-8000-00805f9b34fb"
	// WriteCharUUID accepts host-to-device writes
	WriteCharUUID = "0000fff2-0000-1000-8000-00805f9b34fb"

	// DeviceInfoServiceUUID is the standard device information service
	DeviceInfoServiceUUID = "0000180a-0000-1000-8000-00805f9b34fb"
	// HardwareRevCharUUID holds the hardware revision string
	HardwareRevCharUUID = "00002a27-0000-1000-8000-00805f9b34fb"
	// SoftwareRevCharUUID holds the firmware revision string
	SoftwareRevCharUUID = "00002a28-0000-1000-8000-00805f9b34fb"
)

// MaxChunkSize is the BLE payload limit per write or notification
const MaxChunkSize = 20

// Handler receives raw notification chunks from the device. Chunks are
// fragments, not frames; feed them to a protocol.Reassembler.
type Handler func(chunk []byte)

// DeviceInfo is the identity read from the device information service
type DeviceInfo struct {
	Name        string
	Address     string // BLE MAC, from the link layer
	HardwareRev string
	SoftwareRev string
}

// Transport moves raw chunks to and from a kettle over some link: a network
// bridge, a serial BLE adapter, or an in-memory pipe in tests.
type Transport interface {
	// WriteChunk sends one chunk of at most MaxChunkSize bytes to the
	// device's write characteristic
	WriteChunk(ctx context.Context, chunk []byte) error

	// Subscribe registers the handler invoked for every inbound
	// notification chunk. Call before any traffic is expected; a second
	// call replaces the handler.
	Subscribe(h Handler)

	// Info returns what the link knows about the device identity. Fields
	// the link cannot read are empty.
	Info() DeviceInfo

	// Connected reports whether the link is usable
	Connected() bool

	// Close tears down the link. Safe to call more than once.
	Close() error
}

// Chunks splits a frame into MaxChunkSize pieces for transmission. The
// returned slices alias the input.
func Chunks(frame []byte) [][]byte {
	var out [][]byte
	for start := 0; start < len(frame); start += MaxChunkSize {
		end := start + MaxChunkSize
		if end > len(frame) {
			end = len(frame)
		}
		out = append(out, frame[start:end])
	}
	return out
}
