package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rygwdn/CosoriKettleBLE/internal/logging"
)

// The bridge wire protocol: binary WebSocket messages carry raw BLE chunks
// in both directions, one chunk per message. On connect the bridge
// announces the device it fronts with a single JSON text message:
//
//	{"type":"identity","name":...,"address":...,"hardware_rev":...,"software_rev":...}
//
// Bridges that predate the identity message go straight to binary traffic;
// the device info then stays empty and the protocol version must come from
// configuration.

const (
	defaultHandshakeTimeout = 10 * time.Second
	identityWait            = 2 * time.Second
	bridgeWriteWait         = 5 * time.Second
)

// BridgeConfig tunes DialBridgeConfig
type BridgeConfig struct {
	// HandshakeTimeout bounds the WebSocket handshake (default 10s)
	HandshakeTimeout time.Duration

	// Username and Password add HTTP basic auth to the handshake when
	// non-empty
	Username string
	Password string

	// InsecureTLS skips certificate verification for wss URLs
	InsecureTLS bool
}

type identityMessage struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	HardwareRev string `json:"hardware_rev"`
	SoftwareRev string `json:"software_rev"`
}

// Bridge is a Transport over a WebSocket BLE gateway
type Bridge struct {
	conn *websocket.Conn
	url  string

	mu      sync.Mutex
	handler Handler
	info    DeviceInfo
	closed  bool

	// gorilla allows one concurrent writer
	writeMu sync.Mutex

	identityOnce sync.Once
	identityCh   chan struct{}
	done         chan struct{}
}

// DialBridge connects to a WebSocket BLE bridge at a ws:// or wss:// URL
func DialBridge(ctx context.Context, rawURL string) (*Bridge, error) {
	return DialBridgeConfig(ctx, rawURL, BridgeConfig{})
}

// DialBridgeConfig connects to a bridge with explicit settings
func DialBridgeConfig(ctx context.Context, rawURL string, cfg BridgeConfig) (*Bridge, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid bridge URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported bridge URL scheme %q (use ws:// or wss://)", u.Scheme)
	}

	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	if u.Scheme == "wss" && cfg.InsecureTLS {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	headers := http.Header{}
	if cfg.Username != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, rawURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("bridge handshake failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("bridge connection failed: %w", err)
	}

	b := &Bridge{
		conn:       conn,
		url:        rawURL,
		identityCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
	go b.readPump()

	// Give the bridge a moment to announce the device so version detection
	// has revision strings to work with
	timer := time.NewTimer(identityWait)
	defer timer.Stop()
	select {
	case <-b.identityCh:
	case <-timer.C:
		logging.Debug("bridge sent no identity, device info unavailable",
			zap.String("url", rawURL))
	case <-ctx.Done():
		b.Close()
		return nil, fmt.Errorf("canceled waiting for bridge identity: %w", ctx.Err())
	}

	info := b.Info()
	logging.LogConnection(rawURL, "connected")
	logging.Info("connected to kettle bridge",
		zap.String("url", rawURL),
		zap.String("device", info.Name),
		zap.String("address", info.Address))
	return b, nil
}

func (b *Bridge) readPump() {
	defer close(b.done)

	for {
		kind, data, err := b.conn.ReadMessage()
		if err != nil {
			b.mu.Lock()
			wasClosed := b.closed
			b.closed = true
			b.mu.Unlock()
			if !wasClosed {
				logging.LogConnection(b.url, "lost")
				logging.Warn("bridge connection lost",
					zap.String("url", b.url),
					zap.Error(err))
			}
			return
		}

		switch kind {
		case websocket.TextMessage:
			b.handleText(data)
		case websocket.BinaryMessage:
			logging.LogRawBytes("bridge chunk rx", data)
			b.mu.Lock()
			h := b.handler
			b.mu.Unlock()
			if h == nil {
				logging.Debug("dropping chunk with no subscriber",
					zap.Int("length", len(data)))
				continue
			}
			h(data)
		}
	}
}

func (b *Bridge) handleText(data []byte) {
	var ident identityMessage
	if err := json.Unmarshal(data, &ident); err != nil || ident.Type != "identity" {
		logging.Debug("ignoring text message from bridge",
			zap.ByteString("data", data))
		return
	}

	b.mu.Lock()
	b.info = DeviceInfo{
		Name:        ident.Name,
		Address:     ident.Address,
		HardwareRev: ident.HardwareRev,
		SoftwareRev: ident.SoftwareRev,
	}
	b.mu.Unlock()

	logging.Info("bridge announced device",
		zap.String("name", ident.Name),
		zap.String("address", ident.Address),
		zap.String("hardware_rev", ident.HardwareRev),
		zap.String("software_rev", ident.SoftwareRev))
	b.identityOnce.Do(func() { close(b.identityCh) })
}

// WriteChunk implements Transport
func (b *Bridge) WriteChunk(ctx context.Context, chunk []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.mu.Unlock()

	deadline := time.Now().Add(bridgeWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	b.conn.SetWriteDeadline(deadline)
	if err := b.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("bridge write: %w", err)
	}
	return nil
}

// Subscribe implements Transport
func (b *Bridge) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

// Info implements Transport
func (b *Bridge) Info() DeviceInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.info
}

// Connected implements Transport
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

// Close implements Transport
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	logging.LogConnection(b.url, "closed")
	deadline := time.Now().Add(time.Second)
	_ = b.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return b.conn.Close()
}
