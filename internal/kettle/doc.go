// Package kettle provides the client for driving a Cosori smart kettle.
//
// This package sits between the raw packet layer (internal/protocol) and a
// transport link (internal/transport), managing everything stateful about a
// conversation with one kettle: sequence numbers, the registration
// handshake, ack correlation, the legacy timing choreography, and status
// tracking.
//
// # Protocol Versions
//
// Two incompatible firmware generations exist, detected from the device
// information service revision strings:
//   - V1 (current): every command is sent once and acknowledged; presets,
//     delayed starts, keep-warm holds, custom temperature, baby formula mode
//   - V0 (legacy): no command acks; setting a temperature requires a timed
//     choreography of hello5, setpoint, and host-sent status acks at the
//     intervals the firmware expects
//
// # Usage Example
//
//	t, err := transport.DialBridge(ctx, addr)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Close()
//
//	k, err := kettle.Connect(ctx, t, kettle.Options{Key: key})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := k.WaitReady(ctx, 5*time.Second); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Boil with a 30 minute keep-warm hold
//	if err := k.Boil(ctx, 30); err != nil {
//	    log.Fatal(err)
//	}
//
//	status, err := k.Status(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d°F heading to %d°F\n", status.TemperatureF, status.SetpointF)
//
// # Registration
//
// The kettle ignores every command until it has seen a hello carrying a
// registration key it knows. Connect sends the hello automatically; Pair
// teaches a kettle in pairing mode a fresh key. Keys must be persisted by
// the caller, since a kettle that has been paired stops answering the
// shared default key.
//
// # Events
//
// Device-initiated traffic (status notifications, completion events, error
// states) surfaces through the Events callbacks in Options. Callbacks run
// on the notification goroutine and must not block.
//
// # Error Handling
//
// Operations return *KettleError with a type classifying the failure:
// transport faults, missing acks, device rejections, refused registration
// keys, local validation, and operations the firmware generation cannot do.
// GetTroubleshootingHint turns any of these into user-facing advice.
package kettle
