package transport

import (
	"context"
	"fmt"
	"sync"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/rygwdn/CosoriKettleBLE/internal/logging"
)

// DefaultBaudRate matches the stock serial gateway firmware
const DefaultBaudRate = 115200

// SerialGateway is a Transport over a serial BLE gateway adapter. The
// adapter relays characteristic traffic as a raw byte stream, so chunk
// boundaries are not preserved; the reassembler upstream tolerates that.
//
// A serial adapter cannot read the device information service, so Info
// carries no revision strings and the protocol version must come from
// configuration.
type SerialGateway struct {
	port serial.Port
	name string

	mu      sync.Mutex
	handler Handler
	closed  bool
}

// OpenSerial opens a serial BLE gateway at 8N1. A baud rate of zero or
// less selects DefaultBaudRate.
func OpenSerial(portName string, baudRate int) (*SerialGateway, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}

	g := &SerialGateway{port: port, name: portName}
	logging.Info("opened serial gateway",
		zap.String("port", portName),
		zap.Int("baud", baudRate))

	go g.readPump()
	return g, nil
}

func (g *SerialGateway) readPump() {
	buf := make([]byte, 64)
	for {
		n, err := g.port.Read(buf)
		if err != nil {
			g.mu.Lock()
			wasClosed := g.closed
			g.closed = true
			g.mu.Unlock()
			if !wasClosed {
				logging.Warn("serial read failed",
					zap.String("port", g.name),
					zap.Error(err))
			}
			return
		}
		if n == 0 {
			continue
		}

		g.mu.Lock()
		h := g.handler
		g.mu.Unlock()
		if h == nil {
			continue
		}

		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		logging.LogRawBytes("serial chunk rx", chunk)
		h(chunk)
	}
}

// WriteChunk implements Transport
func (g *SerialGateway) WriteChunk(ctx context.Context, chunk []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	g.mu.Unlock()

	if _, err := g.port.Write(chunk); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// Subscribe implements Transport
func (g *SerialGateway) Subscribe(h Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handler = h
}

// Info implements Transport
func (g *SerialGateway) Info() DeviceInfo {
	return DeviceInfo{Name: g.name}
}

// Connected implements Transport
func (g *SerialGateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.closed
}

// Close implements Transport
func (g *SerialGateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()
	return g.port.Close()
}
