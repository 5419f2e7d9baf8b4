// Package discovery locates BLE gateway bridges over mDNS.
//
// The kettle itself is a BLE peripheral and never appears on the IP
// network. Gateway bridges (ESPHome-style proxies that tunnel the
// kettle's GATT characteristics over WebSocket) advertise the
// "_cosori-bridge._tcp" service type, and this package browses for
// those advertisements.
//
// # Usage Example
//
//	bridges, err := discovery.ScanForBridges(5 * time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, b := range bridges {
//	    fmt.Printf("Found: %s -> %s\n", b.Name, b.URL())
//	}
//
// # TXT Records
//
// Bridges may advertise:
//   - "path": the WebSocket endpoint path (defaults to "/")
//   - "mac": the BLE address of the kettle behind the bridge
//
// # Network Requirements
//
// Requires multicast support on the network interface and mDNS (UDP
// port 5353) through the firewall. Bridges answer only on the local
// network segment.
package discovery
