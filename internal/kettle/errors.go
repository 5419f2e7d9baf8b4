package kettle

import (
	"fmt"
	"strings"
	"time"
)

// Error types for kettle communication

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeTransport indicates the underlying link failed (write error, disconnect)
	ErrTypeTransport ErrorType = iota
	// ErrTypeAckTimeout indicates the device never acknowledged a command
	ErrTypeAckTimeout
	// ErrTypeCommandRejected indicates the device acked a command with a failure status
	ErrTypeCommandRejected
	// ErrTypeRegistrationRejected indicates the device refused the registration key
	ErrTypeRegistrationRejected
	// ErrTypeValidation indicates a request that is invalid before it reaches the wire
	ErrTypeValidation
	// ErrTypeUnsupported indicates an operation the device's protocol version cannot do
	ErrTypeUnsupported
	// ErrTypeSuperseded indicates a waiter displaced when the sequence space wrapped onto it
	ErrTypeSuperseded
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeTransport:
		return "Transport Error"
	case ErrTypeAckTimeout:
		return "Ack Timeout"
	case ErrTypeCommandRejected:
		return "Command Rejected"
	case ErrTypeRegistrationRejected:
		return "Registration Rejected"
	case ErrTypeValidation:
		return "Validation Error"
	case ErrTypeUnsupported:
		return "Unsupported Operation"
	case ErrTypeSuperseded:
		return "Command Superseded"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// KettleError represents an error from a kettle operation
type KettleError struct {
	Type      ErrorType // Category of error
	Message   string    // Human-readable error message
	Command   string    // Command name (if applicable)
	Seq       uint8     // Sequence number of the failed exchange (if applicable)
	Status    int       // Device-reported status byte (rejections only)
	Err       error     // Underlying error (if any)
	Retryable bool      // Whether the operation may succeed if retried
}

// Error implements the error interface
func (e *KettleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *KettleError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a link-level error
func NewTransportError(message string, err error) *KettleError {
	return &KettleError{
		Type:      ErrTypeTransport,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// NewAckTimeoutError creates an error for a command the device never answered
func NewAckTimeoutError(command string, seq uint8, timeout time.Duration) *KettleError {
	return &KettleError{
		Type:      ErrTypeAckTimeout,
		Message:   fmt.Sprintf("no ack for %s within %s", command, timeout),
		Command:   command,
		Seq:       seq,
		Retryable: true,
	}
}

// NewCommandRejectedError creates an error for a command the device nacked
func NewCommandRejectedError(command string, seq uint8) *KettleError {
	return &KettleError{
		Type:      ErrTypeCommandRejected,
		Message:   fmt.Sprintf("device rejected %s", command),
		Command:   command,
		Seq:       seq,
		Retryable: false,
	}
}

// NewRegistrationRejectedError creates an error for a refused registration
// or hello key. The status byte is what the device reported in the nack.
func NewRegistrationRejectedError(command string, seq uint8, status int) *KettleError {
	return &KettleError{
		Type:      ErrTypeRegistrationRejected,
		Message:   fmt.Sprintf("device refused %s: key not accepted (status 0x%02x)", command, status),
		Command:   command,
		Seq:       seq,
		Status:    status,
		Retryable: false,
	}
}

// NewSupersededError creates an error for a waiter displaced by a newer
// command registered under the same sequence number
func NewSupersededError(command string, seq uint8) *KettleError {
	return &KettleError{
		Type:      ErrTypeSuperseded,
		Message:   fmt.Sprintf("%s displaced by a newer command on the same sequence", command),
		Command:   command,
		Seq:       seq,
		Retryable: true,
	}
}

// NewValidationError creates an error for a request that is invalid locally
func NewValidationError(message string) *KettleError {
	return &KettleError{
		Type:      ErrTypeValidation,
		Message:   message,
		Retryable: false,
	}
}

// NewUnsupportedError creates an error for an operation the detected
// protocol version cannot perform
func NewUnsupportedError(operation string, version string) *KettleError {
	return &KettleError{
		Type:      ErrTypeUnsupported,
		Message:   fmt.Sprintf("%s is not available on protocol %s firmware", operation, version),
		Retryable: false,
	}
}

// IsTransportError checks if an error is a link-level error
func IsTransportError(err error) bool {
	if kerr, ok := err.(*KettleError); ok {
		return kerr.Type == ErrTypeTransport
	}
	return false
}

// IsAckTimeout checks if an error is a missing acknowledgment
func IsAckTimeout(err error) bool {
	if kerr, ok := err.(*KettleError); ok {
		return kerr.Type == ErrTypeAckTimeout
	}
	return false
}

// IsCommandRejected checks if an error is a device nack
func IsCommandRejected(err error) bool {
	if kerr, ok := err.(*KettleError); ok {
		return kerr.Type == ErrTypeCommandRejected
	}
	return false
}

// IsRegistrationRejected checks if an error is a refused registration key
func IsRegistrationRejected(err error) bool {
	if kerr, ok := err.(*KettleError); ok {
		return kerr.Type == ErrTypeRegistrationRejected
	}
	return false
}

// IsValidationError checks if an error is a local validation failure
func IsValidationError(err error) bool {
	if kerr, ok := err.(*KettleError); ok {
		return kerr.Type == ErrTypeValidation
	}
	return false
}

// IsUnsupported checks if an error is an operation the detected firmware
// cannot perform
func IsUnsupported(err error) bool {
	if kerr, ok := err.(*KettleError); ok {
		return kerr.Type == ErrTypeUnsupported
	}
	return false
}

// IsSuperseded checks if an error is a displaced waiter
func IsSuperseded(err error) bool {
	if kerr, ok := err.(*KettleError); ok {
		return kerr.Type == ErrTypeSuperseded
	}
	return false
}

// IsRetryable checks if an operation should be retried
func IsRetryable(err error) bool {
	if kerr, ok := err.(*KettleError); ok {
		return kerr.Retryable
	}
	return false
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	kerr, ok := err.(*KettleError)
	if !ok {
		return "An unexpected error occurred. Please try again."
	}

	switch kerr.Type {
	case ErrTypeAckTimeout:
		return strings.Join([]string{
			"The kettle did not answer.",
			"Troubleshooting:",
			"  • Check that the kettle is powered and on its base",
			"  • Move the bridge or adapter closer to the kettle",
			"  • The kettle only answers registered keys - try pairing again",
			"  • Legacy firmware never acks commands; check the detected protocol version",
		}, "\n")

	case ErrTypeRegistrationRejected:
		return strings.Join([]string{
			"The kettle refused the registration key.",
			"Troubleshooting:",
			"  • Put the kettle in pairing mode before registering",
			"  • A key from another kettle will not work - generate a fresh one",
			"  • After a factory reset all previous keys are forgotten",
		}, "\n")

	case ErrTypeCommandRejected:
		return strings.Join([]string{
			"The kettle refused the command.",
			"Troubleshooting:",
			"  • Check the kettle is on its base with enough water",
			"  • Some commands are refused while a heating cycle runs - stop it first",
		}, "\n")

	case ErrTypeTransport:
		return strings.Join([]string{
			"Communication with the kettle link failed.",
			"Troubleshooting:",
			"  • Check the bridge is running and reachable",
			"  • For serial adapters, verify the device path and that nothing else holds the port",
			"  • Reconnect and try again",
		}, "\n")

	case ErrTypeValidation:
		return "The request is invalid. Check the error message for details."

	case ErrTypeUnsupported:
		return strings.Join([]string{
			"This kettle's firmware does not support the operation.",
			"Troubleshooting:",
			"  • Legacy firmware only supports setting a target temperature and stopping",
			"  • Check the detected protocol version with the status command",
		}, "\n")

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	kerr, ok := err.(*KettleError)
	if !ok {
		return err.Error()
	}

	switch kerr.Type {
	case ErrTypeAckTimeout:
		return fmt.Sprintf("Kettle not responding to %s", kerr.Command)
	case ErrTypeRegistrationRejected:
		return "Kettle refused the key - is it in pairing mode?"
	case ErrTypeCommandRejected:
		return fmt.Sprintf("Kettle rejected %s", kerr.Command)
	case ErrTypeTransport:
		return "Link error - check the bridge or adapter"
	case ErrTypeValidation, ErrTypeUnsupported:
		return kerr.Message
	default:
		return kerr.Message
	}
}
