package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rygwdn/CosoriKettleBLE/internal/capture"
	"github.com/rygwdn/CosoriKettleBLE/internal/config"
	"github.com/rygwdn/CosoriKettleBLE/internal/discovery"
	"github.com/rygwdn/CosoriKettleBLE/internal/kettle"
	"github.com/rygwdn/CosoriKettleBLE/internal/protocol"
	"github.com/rygwdn/CosoriKettleBLE/internal/transport"
)

// openTransport resolves the link to the kettle, in priority order: the
// --bridge and --serial flags, the stored registry entry for --device, then
// mDNS bridge discovery when the registry allows it.
func openTransport(ctx context.Context, registry *config.Registry, device *config.Device) (transport.Transport, error) {
	if bridgeURL != "" && serialPort != "" {
		return nil, fmt.Errorf("--bridge and --serial are mutually exclusive")
	}

	if bridgeURL != "" {
		return transport.DialBridge(ctx, bridgeURL)
	}
	if serialPort != "" {
		return transport.OpenSerial(serialPort, serialBaud())
	}

	if device != nil {
		if device.Bridge != "" {
			return transport.DialBridge(ctx, device.Bridge)
		}
		if device.Serial != "" {
			baud := device.Baud
			if baud == 0 {
				baud = transport.DefaultBaudRate
			}
			return transport.OpenSerial(device.Serial, baud)
		}
	}

	prefs := registry.Preferences
	if prefs == nil || !prefs.AutoDiscover {
		return nil, fmt.Errorf("no transport configured: use --bridge or --serial, or enable auto_discover")
	}

	timeout := time.Duration(prefs.DiscoverTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	fmt.Printf("No transport specified, browsing for bridges (%s)...\n", timeout)
	bridges, err := discovery.ScanForBridges(timeout)
	if err != nil {
		return nil, fmt.Errorf("bridge discovery failed: %w", err)
	}
	if len(bridges) == 0 {
		return nil, fmt.Errorf("no bridges found: use --bridge or --serial to specify the link")
	}

	// A bridge advertising the requested kettle's MAC wins outright
	if deviceQuery != "" {
		for _, b := range bridges {
			if b.Matches(deviceQuery) {
				fmt.Printf("Found bridge: %s\n\n", b)
				return transport.DialBridge(ctx, b.URL())
			}
		}
	}

	if len(bridges) > 1 {
		fmt.Printf("Found %d bridges:\n", len(bridges))
		for i, b := range bridges {
			fmt.Printf("%d. %s\n", i+1, b)
		}
		return nil, fmt.Errorf("multiple bridges found: pick one with --bridge")
	}

	fmt.Printf("Found bridge: %s\n\n", bridges[0])
	return transport.DialBridge(ctx, bridges[0].URL())
}

// sessionKey resolves the registration key: the --key flag wins, then the
// stored key for the device, then nil for the shared default.
func sessionKey(device *config.Device) []byte {
	if keyHex != "" {
		return []byte(keyHex)
	}
	if device != nil && device.Key != "" {
		return []byte(device.Key)
	}
	return nil
}

// sessionOptions builds the kettle options from flags and the registry entry
func sessionOptions(device *config.Device, events kettle.Events) (kettle.Options, error) {
	opts := kettle.Options{
		Key:    sessionKey(device),
		Events: events,
	}

	override := protocolFlag
	if override == "" && device != nil {
		override = device.Protocol
	}
	switch override {
	case "":
	case "v0":
		opts.Version, opts.ForceVersion = protocol.V0, true
	case "v1":
		opts.Version, opts.ForceVersion = protocol.V1, true
	default:
		return opts, fmt.Errorf("unknown protocol %q: expected v0 or v1", override)
	}

	return opts, nil
}

// connectKettle opens the transport, optionally wraps it in a capture tap,
// and runs the hello handshake. The returned closer tears everything down.
func connectKettle(ctx context.Context, events kettle.Events) (*kettle.Kettle, func(), error) {
	registry, err := config.LoadRegistry()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	var device *config.Device
	var deviceMAC string
	if deviceQuery != "" {
		deviceMAC, device = registry.FindDevice(deviceQuery)
		if device == nil && deviceMAC == "" {
			return nil, nil, fmt.Errorf("unknown device %q: not a MAC address or stored nickname", deviceQuery)
		}
	}

	link, err := openTransport(ctx, registry, device)
	if err != nil {
		return nil, nil, err
	}

	var capWriter *capture.Writer
	if captureFile != "" {
		capWriter, err = capture.Create(captureFile, link.Info().Address)
		if err != nil {
			link.Close()
			return nil, nil, fmt.Errorf("failed to create capture file: %w", err)
		}
		link = capture.NewTap(link, capWriter)
	}

	closer := func() {
		link.Close()
		if capWriter != nil {
			capWriter.Close()
		}
	}

	opts, err := sessionOptions(device, events)
	if err != nil {
		closer()
		return nil, nil, err
	}

	k, err := kettle.Connect(ctx, link, opts)
	if err != nil {
		closer()
		return nil, nil, err
	}

	// Remember how this kettle was reached
	if mac := rememberMAC(deviceMAC, k); mac != "" {
		registry.UpdateDeviceLastSeen(mac, bridgeURL, serialPort)
		if err := registry.Save(); err != nil {
			fmt.Printf("Warning: failed to save config: %v\n", err)
		}
	}

	return k, closer, nil
}

// rememberMAC picks the registry key for the connection: the resolved
// --device MAC, or the address the link reported
func rememberMAC(deviceMAC string, k *kettle.Kettle) string {
	if deviceMAC != "" {
		return deviceMAC
	}
	return config.NormalizeMAC(k.Info().Address)
}
