package config

import (
	"regexp"
	"strings"
	"time"
)

// Registry represents the entire user configuration file.
// This stores per-kettle metadata and application preferences.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by BLE MAC address
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device represents stored metadata for a single kettle, keyed by its BLE
// MAC address in the Registry.
type Device struct {
	Nickname string `yaml:"nickname,omitempty"` // User-friendly name
	Key      string `yaml:"key,omitempty"`      // Registration key, 32 hex chars
	Protocol string `yaml:"protocol,omitempty"` // "v0"/"v1" override; empty = detect
	Bridge   string `yaml:"bridge,omitempty"`   // WebSocket bridge URL
	Serial   string `yaml:"serial,omitempty"`   // Serial adapter device path
	Baud     int    `yaml:"baud,omitempty"`     // Serial baud rate; 0 = default

	LastSeen time.Time `yaml:"last_seen,omitempty"` // Last successful connection
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	DefaultHoldMinutes int    `yaml:"default_hold_minutes"`  // Keep-warm hold applied when --hold is omitted; 0 disables
	AutoDiscover       bool   `yaml:"auto_discover"`         // Browse for bridges when no transport flag is given
	DiscoverTimeout    int    `yaml:"discover_timeout"`      // mDNS browse timeout in seconds
	CaptureDir         string `yaml:"capture_dir,omitempty"` // Where --capture files land by default
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version: 1,
		Devices: make(map[string]*Device),
		Preferences: &Preferences{
			DefaultHoldMinutes: 0,
			AutoDiscover:       true,
			DiscoverTimeout:    10,
		},
	}
}

var macPattern = regexp.MustCompile(`^([0-9A-F]{2}:){5}[0-9A-F]{2}$`)

// NormalizeMAC canonicalizes a BLE address to uppercase colon-separated
// form. Accepts "aa:bb:cc:dd:ee:ff", "AA-BB-CC-DD-EE-FF", and the bare
// 12-digit form. Returns "" when the input is not a MAC address.
func NormalizeMAC(mac string) string {
	m := strings.ToUpper(strings.TrimSpace(mac))
	m = strings.ReplaceAll(m, "-", ":")
	if !strings.Contains(m, ":") && len(m) == 12 {
		var parts []string
		for i := 0; i < 12; i += 2 {
			parts = append(parts, m[i:i+2])
		}
		m = strings.Join(parts, ":")
	}
	if !macPattern.MatchString(m) {
		return ""
	}
	return m
}

// GetDevice retrieves device metadata by MAC address.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(mac string) *Device {
	if norm := NormalizeMAC(mac); norm != "" {
		mac = norm
	}
	return r.Devices[mac]
}

// EnsureDevice ensures a device entry exists in the registry, creating an
// empty one if needed, and returns it.
func (r *Registry) EnsureDevice(mac string) *Device {
	if norm := NormalizeMAC(mac); norm != "" {
		mac = norm
	}
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}
	if device, exists := r.Devices[mac]; exists {
		return device
	}

	device := &Device{}
	r.Devices[mac] = device
	return device
}

// FindDevice resolves a user-supplied identifier to a registry entry: a
// MAC address first, then a case-insensitive nickname match. Returns the
// canonical MAC and the entry, or "" and nil.
func (r *Registry) FindDevice(query string) (string, *Device) {
	if norm := NormalizeMAC(query); norm != "" {
		if device, exists := r.Devices[norm]; exists {
			return norm, device
		}
		return norm, nil
	}
	for mac, device := range r.Devices {
		if strings.EqualFold(device.Nickname, query) {
			return mac, device
		}
	}
	return "", nil
}

// SetDeviceNickname sets a user-friendly nickname for a kettle.
func (r *Registry) SetDeviceNickname(mac, nickname string) {
	r.EnsureDevice(mac).Nickname = nickname
}

// SetDeviceKey stores the registration key a kettle was paired with.
func (r *Registry) SetDeviceKey(mac, key string) {
	r.EnsureDevice(mac).Key = key
}

// UpdateDeviceLastSeen marks a kettle as reachable now and records how it
// was reached. Empty bridge/serial arguments leave the stored values.
func (r *Registry) UpdateDeviceLastSeen(mac, bridge, serial string) {
	device := r.EnsureDevice(mac)
	device.LastSeen = time.Now()
	if bridge != "" {
		device.Bridge = bridge
	}
	if serial != "" {
		device.Serial = serial
	}
}
