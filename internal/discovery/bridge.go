package discovery

import (
	"fmt"
	"strings"
	"time"
)

// Bridge represents a discovered BLE gateway bridge on the network
type Bridge struct {
	// Name is the mDNS instance name (e.g., "kitchen-bridge")
	Name string

	// Hostname is the mDNS hostname (e.g., "kitchen-bridge.local.")
	Hostname string

	// IP is the bridge address, IPv4 preferred
	IP string

	// Port is the WebSocket port the bridge listens on
	Port int

	// Path is the WebSocket endpoint path from the TXT records
	// (defaults to "/")
	Path string

	// MAC is the BLE address of the kettle behind the bridge, from the
	// "mac" TXT record. Empty when the bridge does not advertise it.
	MAC string

	// Metadata holds the remaining mDNS TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the bridge was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable description of the bridge
func (b *Bridge) String() string {
	return fmt.Sprintf("Cosori bridge %s (%s) at %s:%d", b.Name, b.Hostname, b.IP, b.Port)
}

// URL returns the WebSocket URL for the bridge
func (b *Bridge) URL() string {
	path := b.Path
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("ws://%s:%d%s", b.IP, b.Port, path)
}

// GetMetadata retrieves a TXT record value by key, or returns empty string
// if not found
func (b *Bridge) GetMetadata(key string) string {
	if b.Metadata == nil {
		return ""
	}
	return b.Metadata[key]
}

// Matches reports whether the bridge answers to the given query: its
// instance name, hostname, or advertised kettle MAC, case-insensitively.
func (b *Bridge) Matches(query string) bool {
	if query == "" {
		return false
	}
	q := strings.TrimSuffix(strings.ToLower(query), ".")
	if strings.ToLower(b.Name) == q {
		return true
	}
	host := strings.TrimSuffix(strings.ToLower(b.Hostname), ".")
	if host == q || host == q+".local" {
		return true
	}
	return b.MAC != "" && strings.EqualFold(b.MAC, query)
}
