package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rygwdn/CosoriKettleBLE/internal/config"
	"github.com/rygwdn/CosoriKettleBLE/internal/discovery"
	"github.com/rygwdn/CosoriKettleBLE/internal/kettle"
	"github.com/rygwdn/CosoriKettleBLE/internal/protocol"
	"github.com/rygwdn/CosoriKettleBLE/internal/transport"
	"github.com/rygwdn/CosoriKettleBLE/internal/ui"
)

// Persistent command flags
var (
	bridgeURL    string
	serialPort   string
	baudFlag     int
	deviceQuery  string
	keyHex       string
	protocolFlag string
	captureFile  string
	logLevel     string
)

// Per-command flags
var (
	scanTimeout  int
	heatTemp     int
	holdMinutes  int
	replayTiming bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&bridgeURL, "bridge", "", "WebSocket bridge URL (e.g. ws://bridge.local:8080/kettle)")
	pf.StringVar(&serialPort, "serial", "", "Serial BLE adapter device path")
	pf.IntVar(&baudFlag, "baud", 0, "Serial baud rate (default 115200)")
	pf.StringVar(&deviceQuery, "device", "", "Kettle MAC address or stored nickname")
	pf.StringVar(&keyHex, "key", "", "Registration key (32 hex characters)")
	pf.StringVar(&protocolFlag, "protocol", "", "Force protocol version (v0 or v1)")
	pf.StringVar(&captureFile, "capture", "", "Record all traffic to this capture file")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(heatCmd)
	rootCmd.AddCommand(delayCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(mytempCmd)
	rootCmd.AddCommand(babymodeCmd)
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(replayCmd)
}

func serialBaud() int {
	if baudFlag > 0 {
		return baudFlag
	}
	return transport.DefaultBaudRate
}

// commandContext bounds one-shot commands: connect, handshake, command,
// and the V0 choreography all fit comfortably.
func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// scanCmd browses for BLE bridge gateways
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for kettle bridges on the network",
	Long: `Scan for WebSocket BLE bridges using mDNS/DNS-SD discovery.

Bridges advertise themselves as ` + "`_cosori-bridge._tcp`" + ` services. Serial
adapters are not discoverable; specify those with --serial.`,
	Example: `  # Scan with the default 10 second timeout
  cosorictl scan

  # Quick 3-second scan
  cosorictl scan --timeout 3`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 10, "Scan timeout in seconds")
}

func runScan(cmd *cobra.Command, args []string) error {
	fmt.Printf("Scanning for kettle bridges (timeout: %ds)...\n\n", scanTimeout)

	bridges, err := discovery.ScanForBridges(time.Duration(scanTimeout) * time.Second)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(bridges) == 0 {
		fmt.Println("No bridges found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Ensure the bridge is powered on and joined to this network")
		fmt.Println("  - Try increasing --timeout for slower networks")
		fmt.Println("  - Use --bridge to specify the URL manually if discovery fails")
		return nil
	}

	fmt.Printf("Found %d bridge(s):\n\n", len(bridges))
	for i, bridge := range bridges {
		fmt.Printf("%d. %s\n", i+1, bridge.Name)
		fmt.Printf("   URL: %s\n", bridge.URL())
		if bridge.MAC != "" {
			fmt.Printf("   Kettle: %s\n", bridge.MAC)
		}
		fmt.Println()
	}

	fmt.Println("Use 'cosorictl status --bridge <url>' to talk to a kettle")
	return nil
}

// statusCmd polls the kettle once and prints the snapshot
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the kettle's current status",
	Example: `  # Status via a discovered bridge
  cosorictl status

  # Status via a serial adapter
  cosorictl status --serial /dev/ttyUSB0`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	k, closer, err := connectKettle(ctx, kettle.Events{})
	if err != nil {
		return err
	}
	defer closer()

	status, err := k.Status(ctx)
	if err != nil {
		return fmt.Errorf("status poll failed: %w", err)
	}

	printStatus(k, status)
	return nil
}

func printStatus(k *kettle.Kettle, s *protocol.StatusPacket) {
	fmt.Printf("Kettle %s (%s protocol)\n\n", orDash(k.Info().Address), k.Version())
	fmt.Printf("  Temperature:  %d°F\n", s.TemperatureF)
	fmt.Printf("  Setpoint:     %d°F\n", s.SetpointF)
	fmt.Printf("  Stage:        %s\n", s.Stage)
	fmt.Printf("  Mode:         %s\n", s.Mode)
	fmt.Printf("  Heating:      %v\n", s.Heating)

	if s.Extended {
		fmt.Printf("  On base:      %v\n", s.OnBase)
		fmt.Printf("  My temp:      %d°F\n", s.MyTempF)
		if s.HoldRemaining > 0 {
			fmt.Printf("  Hold left:    %s\n", time.Duration(s.HoldRemaining)*time.Second)
		}
		if s.BabyFormula {
			fmt.Println("  Baby formula: on")
		}
		if s.ErrorCode != 0 {
			fmt.Printf("  DEVICE FAULT: code %d\n", s.ErrorCode)
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// heatCmd starts a heating cycle
var heatCmd = &cobra.Command{
	Use:   "heat [boil|green-tea|oolong|coffee]",
	Short: "Start heating to a preset or an arbitrary temperature",
	Long: `Start a heating cycle.

Pass a preset name, or use --temp for an arbitrary Fahrenheit target
(clamped to the 104-212°F range the firmware accepts). --hold keeps the
water warm after the target is reached; legacy (v0) kettles do not
support holds.`,
	Example: `  # Boil
  cosorictl heat boil

  # Green tea preset, keep warm for 20 minutes
  cosorictl heat green-tea --hold 20

  # Arbitrary target
  cosorictl heat --temp 179`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHeat,
}

func init() {
	heatCmd.Flags().IntVar(&heatTemp, "temp", 0, "Target temperature in °F (instead of a preset)")
	heatCmd.Flags().IntVar(&holdMinutes, "hold", 0, "Keep-warm hold in minutes after reaching temperature")
}

func runHeat(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && heatTemp == 0 {
		return fmt.Errorf("specify a preset or --temp")
	}
	if len(args) == 1 && heatTemp != 0 {
		return fmt.Errorf("preset and --temp are mutually exclusive")
	}

	hold, err := effectiveHold(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	k, closer, err := connectKettle(ctx, kettle.Events{})
	if err != nil {
		return err
	}
	defer closer()

	if heatTemp != 0 {
		if err := k.HeatToTemperature(ctx, heatTemp); err != nil {
			return err
		}
		fmt.Printf("✓ Heating to %d°F\n", protocol.ClampTargetTemp(heatTemp))
		return nil
	}

	mode, err := parsePreset(args[0])
	if err != nil {
		return err
	}
	if err := k.HeatPreset(ctx, mode, hold); err != nil {
		return err
	}

	if hold > 0 {
		fmt.Printf("✓ Heating: %s, keep warm %d min\n", mode, hold)
	} else {
		fmt.Printf("✓ Heating: %s\n", mode)
	}
	return nil
}

// effectiveHold applies the configured default hold when --hold is omitted
func effectiveHold(cmd *cobra.Command) (int, error) {
	if cmd.Flags().Changed("hold") {
		return holdMinutes, nil
	}
	registry, err := config.LoadRegistry()
	if err != nil {
		return 0, fmt.Errorf("failed to load config: %w", err)
	}
	if registry.Preferences != nil {
		return registry.Preferences.DefaultHoldMinutes, nil
	}
	return 0, nil
}

func parsePreset(name string) (protocol.OperatingMode, error) {
	switch name {
	case "boil":
		return protocol.ModeBoil, nil
	case "green-tea", "green":
		return protocol.ModeGreenTea, nil
	case "oolong":
		return protocol.ModeOolong, nil
	case "coffee":
		return protocol.ModeCoffee, nil
	default:
		return 0, fmt.Errorf("unknown preset %q: expected boil, green-tea, oolong, or coffee", name)
	}
}

// delayCmd schedules a heating cycle
var delayCmd = &cobra.Command{
	Use:   "delay <minutes> [boil|green-tea|oolong|coffee]",
	Short: "Schedule a heating cycle to start later",
	Long: `Schedule a heating cycle to begin after a delay.

Delayed starts need the current (v1) protocol; legacy kettles reject the
command. Use --temp for an arbitrary target instead of a preset.`,
	Example: `  # Boil in 30 minutes
  cosorictl delay 30 boil

  # 179°F in an hour, then keep warm for 15 minutes
  cosorictl delay 60 --temp 179 --hold 15`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDelay,
}

func init() {
	delayCmd.Flags().IntVar(&heatTemp, "temp", 0, "Target temperature in °F (instead of a preset)")
	delayCmd.Flags().IntVar(&holdMinutes, "hold", 0, "Keep-warm hold in minutes after reaching temperature")
}

func runDelay(cmd *cobra.Command, args []string) error {
	delayMin, err := strconv.Atoi(args[0])
	if err != nil || delayMin <= 0 {
		return fmt.Errorf("invalid delay %q: expected minutes", args[0])
	}
	if len(args) == 1 && heatTemp == 0 {
		return fmt.Errorf("specify a preset or --temp")
	}
	if len(args) == 2 && heatTemp != 0 {
		return fmt.Errorf("preset and --temp are mutually exclusive")
	}

	hold, err := effectiveHold(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	k, closer, err := connectKettle(ctx, kettle.Events{})
	if err != nil {
		return err
	}
	defer closer()

	mode := protocol.ModeMyTemp
	if len(args) == 2 {
		mode, err = parsePreset(args[1])
		if err != nil {
			return err
		}
	} else if err := k.SetMyTemp(ctx, heatTemp); err != nil {
		return err
	}

	if err := k.HeatPresetDelayed(ctx, delayMin, mode, hold); err != nil {
		return err
	}

	fmt.Printf("✓ Heating scheduled in %d min\n", delayMin)
	return nil
}

// stopCmd cancels the running heating cycle
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the current heating cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		k, closer, err := connectKettle(ctx, kettle.Events{})
		if err != nil {
			return err
		}
		defer closer()

		if err := k.Stop(ctx); err != nil {
			return err
		}
		fmt.Println("✓ Heating stopped")
		return nil
	},
}

// mytempCmd stores the custom temperature preset
var mytempCmd = &cobra.Command{
	Use:   "mytemp <temperature>",
	Short: "Set the custom (\"my temp\") temperature preset",
	Example: `  cosorictl mytemp 179`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tempF, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid temperature %q", args[0])
		}

		ctx, cancel := commandContext()
		defer cancel()

		k, closer, err := connectKettle(ctx, kettle.Events{})
		if err != nil {
			return err
		}
		defer closer()

		if err := k.SetMyTemp(ctx, tempF); err != nil {
			return err
		}
		fmt.Printf("✓ Custom temperature set to %d°F\n", protocol.ClampTargetTemp(tempF))
		return nil
	},
}

// babymodeCmd toggles the baby formula mode
var babymodeCmd = &cobra.Command{
	Use:   "babymode <on|off>",
	Short: "Enable or disable baby formula mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var enable bool
		switch args[0] {
		case "on":
			enable = true
		case "off":
		default:
			return fmt.Errorf("expected on or off, got %q", args[0])
		}

		ctx, cancel := commandContext()
		defer cancel()

		k, closer, err := connectKettle(ctx, kettle.Events{})
		if err != nil {
			return err
		}
		defer closer()

		if err := k.SetBabyFormulaMode(ctx, enable); err != nil {
			return err
		}
		fmt.Printf("✓ Baby formula mode %s\n", args[0])
		return nil
	},
}

// pairCmd registers a new key with a kettle in pairing mode
var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair with a kettle and store its registration key",
	Long: `Register a new key with a kettle in pairing mode.

Put the kettle into pairing mode first (hold the keep-warm button until
the display flashes). A fresh random key is generated unless --key is
given, and the accepted key is stored in the config registry so later
commands can use it automatically.`,
	RunE: runPair,
}

func runPair(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	k, closer, err := connectKettle(ctx, kettle.Events{})
	if err != nil {
		return err
	}
	defer closer()

	key := []byte(keyHex)
	if keyHex == "" {
		key = protocol.GenerateRegistrationKey()
	}

	fmt.Println("Pairing... make sure the kettle is in pairing mode.")
	if err := k.Pair(ctx, key); err != nil {
		if kettle.IsRegistrationRejected(err) {
			return fmt.Errorf("kettle refused the key: is it in pairing mode? (%w)", err)
		}
		return err
	}

	mac := config.NormalizeMAC(k.Info().Address)
	if mac != "" {
		registry, err := config.LoadRegistry()
		if err == nil {
			registry.SetDeviceKey(mac, string(key))
			err = registry.Save()
		}
		if err != nil {
			fmt.Printf("Warning: failed to store the key: %v\n", err)
		}
	}

	fmt.Printf("✓ Paired. Registration key: %s\n", key)
	if mac == "" {
		fmt.Println("  The link did not report a MAC address; save this key yourself")
		fmt.Println("  and pass it with --key, or the kettle will stop answering.")
	}
	return nil
}

// monitorCmd runs the live dashboard
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live kettle dashboard",
	Long: `Open an interactive dashboard that tracks the kettle's status live
and maps keys to heating commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		feed := ui.NewFeed()
		k, closer, err := connectKettle(ctx, feed.Events())
		if err != nil {
			return err
		}
		defer closer()

		return ui.Run(k, feed)
	},
}

// replayCmd re-parses a capture file through a full session
var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Replay a traffic capture through the protocol engine",
	Long: `Feed a recorded capture back through the frame reassembler and
payload parser, printing every decoded packet. Useful for inspecting
captures taken with --capture and for protocol debugging.`,
	Example: `  # Decode a capture as fast as possible
  cosorictl replay kettle.capture

  # Replay with the original packet timing
  cosorictl replay kettle.capture --realtime`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayTiming, "realtime", false, "Reproduce the original packet timing")
}

func runReplay(cmd *cobra.Command, args []string) error {
	return replayCapture(args[0], replayTiming)
}
