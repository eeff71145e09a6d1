// Package errors provides centralized error definitions and error handling
// utilities for the Ensemble codebase. It defines domain-specific errors,
// sentinel errors, constructors with context wrapping, and classification
// helpers.
//
// The mode engine itself deliberately converts model-side and network-side
// failures into absent results rather than errors; this package serves the
// boundaries that do report errors: transport setup, configuration
// validation, and programmer-error conditions inside the runner.
//
// Creating errors:
//
//	err := errors.NewTransportError("stream request failed", cause).WithModel("openai/gpt-4")
//	err := errors.NewConfigError("invalid threshold", nil).WithField("modes.consensus.threshold")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrInsufficientInstances) { ... }
//	var terr *errors.TransportError
//	if errors.As(err, &terr) { ... }
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Mode-related sentinel errors
var (
	// ErrInsufficientInstances indicates that a mode was invoked with fewer
	// instances than its minimum and no fallback was provided.
	ErrInsufficientInstances = New("insufficient model instances for mode")
	// ErrUnknownMode indicates that a mode name is not in the roster.
	ErrUnknownMode = New("unknown conversation mode")
	// ErrNoUsableResults indicates that every branch of a required phase failed.
	ErrNoUsableResults = New("no usable results")
)

// Transport-related sentinel errors
var (
	// ErrTransportClosed indicates that the transport has been shut down.
	ErrTransportClosed = New("transport closed")
	// ErrModelNotFound indicates that the backend does not serve the model.
	ErrModelNotFound = New("model not found")
	// ErrStreamInterrupted indicates that a streaming response ended mid-stream.
	ErrStreamInterrupted = New("stream interrupted")
)

// General sentinel errors
var (
	// ErrCanceled indicates that an operation was canceled by the caller.
	ErrCanceled = New("operation canceled")
	// ErrInvalidConfig indicates that configuration validation failed.
	ErrInvalidConfig = New("invalid configuration")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// ModeError represents errors raised by the mode runner for
// programmer-error conditions (bad spec shapes, misuse of the runner).
// Ordinary model failures never become ModeErrors.
type ModeError struct {
	baseError
	Mode       string
	InstanceID string
}

// NewModeError creates a new ModeError.
func NewModeError(message string, cause error) *ModeError {
	return &ModeError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: false,
		},
	}
}

// WithMode adds the mode name to the error context.
func (e *ModeError) WithMode(mode string) *ModeError {
	e.Mode = mode
	return e
}

// WithInstance adds the instance ID to the error context.
func (e *ModeError) WithInstance(id string) *ModeError {
	e.InstanceID = id
	return e
}

// Error returns the formatted error message.
func (e *ModeError) Error() string {
	var parts []string
	if e.Mode != "" {
		parts = append(parts, fmt.Sprintf("mode=%s", e.Mode))
	}
	if e.InstanceID != "" {
		parts = append(parts, fmt.Sprintf("instance=%s", e.InstanceID))
	}

	prefix := "mode error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("mode error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// TransportError represents errors from the streaming transport layer.
// Transport errors are retryable by default since most model backends
// exhibit transient failures.
type TransportError struct {
	baseError
	Model      string
	StatusCode int
}

// NewTransportError creates a new TransportError.
func NewTransportError(message string, cause error) *TransportError {
	return &TransportError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: false,
		},
	}
}

// WithModel adds the model ID to the error context.
func (e *TransportError) WithModel(model string) *TransportError {
	e.Model = model
	return e
}

// WithStatusCode adds an HTTP status code to the error context.
// Client errors (4xx other than 429) are marked non-retryable.
func (e *TransportError) WithStatusCode(code int) *TransportError {
	e.StatusCode = code
	if code >= 400 && code < 500 && code != 429 {
		e.retryable = false
	}
	return e
}

// Error returns the formatted error message.
func (e *TransportError) Error() string {
	var parts []string
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}

	prefix := "transport error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("transport error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// ConfigError represents configuration validation failures.
type ConfigError struct {
	baseError
	Field string
}

// NewConfigError creates a new ConfigError.
func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField records the dotted config path that failed validation, for
// example "modes.consensus.threshold".
func (e *ConfigError) WithField(field string) *ConfigError {
	e.Field = field
	return e
}

// Error returns the formatted error message.
func (e *ConfigError) Error() string {
	prefix := "config error"
	if e.Field != "" {
		prefix = fmt.Sprintf("config error [field=%s]", e.Field)
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// classified is implemented by errors carrying classification metadata.
type classified interface {
	isRetryable() bool
	isUserFacing() bool
	sev() Severity
}

func (e *baseError) isRetryable() bool  { return e.retryable }
func (e *baseError) isUserFacing() bool { return e.userFacing }
func (e *baseError) sev() Severity      { return e.severity }

// IsRetryable reports whether err (or any error in its chain) is transient
// and the operation may succeed on retry.
func IsRetryable(err error) bool {
	for err != nil {
		if c, ok := err.(classified); ok {
			return c.isRetryable()
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsUserFacing reports whether err's message is safe to display to end users.
func IsUserFacing(err error) bool {
	for err != nil {
		if c, ok := err.(classified); ok {
			return c.isUserFacing()
		}
		err = errors.Unwrap(err)
	}
	return false
}

// SeverityOf returns the severity of err, defaulting to SeverityError for
// unclassified errors.
func SeverityOf(err error) Severity {
	for err != nil {
		if c, ok := err.(classified); ok {
			return c.sev()
		}
		err = errors.Unwrap(err)
	}
	return SeverityError
}
