// Package config stores per-kettle metadata and user preferences.
//
// The registry is a YAML file in the OS config directory
// (~/.config/cosorictl/config.yaml on Linux). Kettles are keyed by
// their BLE MAC address and carry the registration key they were
// paired with, an optional protocol version override for legacy
// firmware, and how to reach them (bridge URL or serial adapter).
//
// Saves are atomic (write-then-rename) and the file is created
// user-only because registration keys gate control of the kettle.
//
// # Usage Example
//
//	reg, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	reg.SetDeviceKey("AA:BB:CC:DD:EE:FF", key)
//	if err := reg.Save(); err != nil {
//	    log.Fatal(err)
//	}
package config
