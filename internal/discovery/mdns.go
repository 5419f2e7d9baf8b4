package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type BLE gateway bridges advertise
	ServiceType = "_cosori-bridge._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for bridge discovery
	DefaultScanTimeout = 10 * time.Second

	// DefaultPort is assumed when the advertisement omits one
	DefaultPort = 80
)

// Scanner handles mDNS bridge discovery
type Scanner struct {
	// Timeout is the maximum time to wait for bridge advertisements
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// ScanForBridges discovers all gateway bridges on the local network
func (s *Scanner) ScanForBridges() ([]*Bridge, error) {
	return s.ScanForBridgesWithContext(context.Background())
}

// ScanForBridgesWithContext discovers bridges with a custom context
func (s *Scanner) ScanForBridgesWithContext(ctx context.Context) ([]*Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	bridges := make([]*Bridge, 0)
	done := make(chan struct{})

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	// Collect until the resolver closes the channel at context end
	go func() {
		defer close(done)
		for entry := range entries {
			bridge := s.parseServiceEntry(entry)
			if bridge != nil {
				bridges = append(bridges, bridge)
			}
		}
	}()

	err = resolver.Browse(ctx, ServiceType, ServiceDomain, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	<-done

	return bridges, nil
}

// WaitForBridge waits for a bridge matching the query (instance name,
// hostname, or kettle MAC). Returns as soon as it appears.
func (s *Scanner) WaitForBridge(query string) (*Bridge, error) {
	return s.WaitForBridgeWithContext(context.Background(), query)
}

// WaitForBridgeWithContext waits for a matching bridge with a custom context
func (s *Scanner) WaitForBridgeWithContext(ctx context.Context, query string) (*Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	bridgeChan := make(chan *Bridge, 1)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		for entry := range entries {
			bridge := s.parseServiceEntry(entry)
			if bridge != nil && bridge.Matches(query) {
				select {
				case bridgeChan <- bridge:
				default:
				}
				cancel()
				return
			}
		}
	}()

	err = resolver.Browse(ctx, ServiceType, ServiceDomain, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case bridge := <-bridgeChan:
		return bridge, nil
	case <-ctx.Done():
		// The match may have landed just as the deadline hit
		select {
		case bridge := <-bridgeChan:
			return bridge, nil
		default:
		}
		return nil, fmt.Errorf("no bridge matching %q found within timeout", query)
	}
}

// parseServiceEntry converts a zeroconf service entry to a Bridge.
// Returns nil for advertisements we cannot reach.
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Bridge {
	if entry == nil || entry.Instance == "" {
		return nil
	}

	// Prefer IPv4
	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	// TXT records are "key=value", bare keys allowed
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	return &Bridge{
		Name:         entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Path:         metadata["path"],
		MAC:          metadata["mac"],
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// ScanForBridges is a convenience function to scan with a custom timeout
func ScanForBridges(timeout time.Duration) ([]*Bridge, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.ScanForBridges()
}

// QuickScan performs a fast scan with a 3-second timeout
func QuickScan() ([]*Bridge, error) {
	scanner := NewScanner()
	scanner.Timeout = 3 * time.Second
	return scanner.ScanForBridges()
}

// FindBridge searches for a bridge by name or kettle MAC with the default
// timeout
func FindBridge(query string) (*Bridge, error) {
	scanner := NewScanner()
	return scanner.WaitForBridge(query)
}
