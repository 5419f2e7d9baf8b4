// Package logging provides structured logging for the cosorictl tools.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used throughout the module. It provides both general logging
// functions and specialized functions for protocol-level logging needs.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (hex dumps, frame parsing, choreography steps)
//   - Info: Normal operations (connections, commands, state changes)
//   - Warn: Non-fatal issues (checksum failures, dropped frames, retries)
//   - Error: Fatal issues (startup failures, critical errors)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Kettle registered",
//	    zap.String("address", "A4:C1:38:12:34:56"),
//	    zap.String("version", "V1"),
//	)
//
// # Specialized Logging
//
// Frame logging attaches a hex dump when debug is enabled:
//
//	logging.LogFrame("tx", seq, "MESSAGE", payload)
//	logging.LogFrame("rx", seq, "ACK", payload)
//
// Raw byte logging for transport debugging:
//
//	logging.LogRawBytes("notify chunk", chunk)
//
// # Configuration
//
// Logging is silent by default so CLI output stays clean. Set the
// COSORI_LOG_LEVEL environment variable to enable it:
//
//	COSORI_LOG_LEVEL=debug cosorictl status
//
// Or initialize explicitly at startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap logger
// handles synchronization automatically.
package logging
