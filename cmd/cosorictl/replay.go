package main

import (
	"fmt"

	"github.com/rygwdn/CosoriKettleBLE/internal/capture"
	"github.com/rygwdn/CosoriKettleBLE/internal/kettle"
	"github.com/rygwdn/CosoriKettleBLE/internal/protocol"
)

// replayCapture decodes a capture file through a full session, printing
// every packet the protocol engine produces from the recorded traffic
func replayCapture(path string, realtime bool) error {
	replayer, err := capture.LoadReplayer(path)
	if err != nil {
		return fmt.Errorf("failed to load capture: %w", err)
	}
	defer replayer.Close()
	replayer.SetRealtime(realtime)

	header := replayer.Header()
	fmt.Printf("Capture: %s (recorded %s)\n\n", orDash(header.Device),
		header.CreatedTime().Format("2006-01-02 15:04:05"))

	packets := 0
	unknown := 0

	// The session decodes exactly as it would live; the replayer swallows
	// anything the session writes back (the handshake, choreography acks).
	kettle.NewSession(replayer, kettle.Options{
		Events: kettle.Events{
			OnPacket: func(pkt protocol.Packet) {
				packets++
				if _, ok := pkt.(*protocol.UnknownPacket); ok {
					unknown++
				}
				fmt.Println(pkt.String())
			},
		},
	})

	replayer.Start()
	<-replayer.Done()

	fmt.Printf("\n%d packet(s) decoded", packets)
	if unknown > 0 {
		fmt.Printf(", %d unrecognized", unknown)
	}
	fmt.Println()
	return nil
}
