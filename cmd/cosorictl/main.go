// Cosorictl is a command-line client for Cosori smart kettles.
//
// It speaks the kettle's proprietary BLE protocol through a gateway: either
// a WebSocket bridge (an ESPHome-style BLE proxy discovered over mDNS) or a
// serial BLE adapter. It provides one-shot commands for heating, stopping,
// and pairing, a live monitoring dashboard, and replay of captured traffic.
//
// Usage:
//
//	cosorictl [command] [flags]
//
// See 'cosorictl --help' for available commands.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rygwdn/CosoriKettleBLE/internal/kettle"
	"github.com/rygwdn/CosoriKettleBLE/internal/logging"
	"github.com/rygwdn/CosoriKettleBLE/internal/version"
)

func main() {
	defer logging.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var kerr *kettle.KettleError
		if errors.As(err, &kerr) {
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, kettle.GetTroubleshootingHint(kerr))
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cosorictl",
	Short: "Cosori Smart Kettle Control Utility",
	Long: `A command-line client for Cosori smart kettles.

Connects to a kettle through a WebSocket BLE bridge or a serial BLE
adapter, and provides heating control, pairing, a live monitoring
dashboard, and capture replay.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel != "" {
			return logging.Initialize(logLevel)
		}
		// Silent by default; COSORI_LOG_LEVEL turns logging on
		return logging.InitializeFromEnv()
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cosorictl %s\n", version.Full())
	},
}
