package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Category classifies engine errors by how they must be handled.
type Category string

const (
	// CategoryInvalidInput marks malformed signals or out-of-range
	// parameters. The trade is skipped locally, never retried.
	CategoryInvalidInput Category = "INVALID_INPUT"

	// CategoryTransientExchange marks timeouts, rate limits and other
	// recoverable exchange failures. Retried with bounded backoff.
	CategoryTransientExchange Category = "TRANSIENT_EXCHANGE"

	// CategoryProtectionFailure marks a filled entry that could not be
	// protected. Never silently recovered; escalated and re-retried on
	// an extended schedule.
	CategoryProtectionFailure Category = "PROTECTION_FAILURE"

	// CategoryConfiguration marks invalid startup configuration. Fatal:
	// the engine refuses to start.
	CategoryConfiguration Category = "CONFIG"

	// CategoryInternal covers everything else. An internal error during
	// risk evaluation always maps to a rejected trade.
	CategoryInternal Category = "INTERNAL"
)

// ReasonCode is the machine-readable code attached to every trade
// rejection, suitable for structured logging and alerting.
type ReasonCode string

const (
	ReasonCooldownActive     ReasonCode = "cooldown_active"
	ReasonInvalidInput       ReasonCode = "invalid_input"
	ReasonAnomalyDetected    ReasonCode = "anomaly_detected"
	ReasonBelowMinConfidence ReasonCode = "below_min_confidence"
	ReasonNoActionableSignal ReasonCode = "no_actionable_signal"
	ReasonInternalError      ReasonCode = "internal_error"
)

// EngineError is a categorized error carrying the component and
// operation where it originated.
type EngineError struct {
	Category   Category
	Component  string
	Operation  string
	Message    string
	Underlying error
}

func (e *EngineError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Underlying
}

// IsRetryable reports whether the operation may be re-attempted.
func (e *EngineError) IsRetryable() bool {
	switch e.Category {
	case CategoryTransientExchange, CategoryProtectionFailure:
		return true
	default:
		return false
	}
}

// IsFatal reports whether the error must stop the engine.
func (e *EngineError) IsFatal() bool {
	return e.Category == CategoryConfiguration
}

// New creates a categorized engine error.
func New(category Category, component, operation, message string) *EngineError {
	return &EngineError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
	}
}

// Wrap attaches category and origin to an existing error. Returns nil
// for a nil error.
func Wrap(err error, category Category, component, operation string) *EngineError {
	if err == nil {
		return nil
	}
	return &EngineError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
	}
}

// NewInvalidInput creates a non-retryable input validation error.
func NewInvalidInput(component, operation, message string) *EngineError {
	return New(CategoryInvalidInput, component, operation, message)
}

// NewConfiguration creates a fatal configuration error.
func NewConfiguration(component, message string) *EngineError {
	return New(CategoryConfiguration, component, "validate", message)
}

// NewProtectionFailure wraps a failure to place a protective order for
// an already-filled entry.
func NewProtectionFailure(operation string, err error) *EngineError {
	return Wrap(err, CategoryProtectionFailure, "stops", operation)
}

// CategoryOf extracts the category of an error, descending through
// wrapped errors. Unrecognized errors classify as internal.
func CategoryOf(err error) Category {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return categorizeMessage(err)
}

// IsTransient reports whether the error is a recoverable exchange
// failure worth retrying.
func IsTransient(err error) bool {
	return CategoryOf(err) == CategoryTransientExchange
}

// categorizeMessage falls back to message sniffing for errors produced
// outside the engine, e.g. by the exchange SDK.
func categorizeMessage(err error) Category {
	if err == nil {
		return CategoryInternal
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "context deadline exceeded"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "connection"),
		strings.Contains(msg, "dial"):
		return CategoryTransientExchange
	case strings.Contains(msg, "invalid"),
		strings.Contains(msg, "out of range"):
		return CategoryInvalidInput
	default:
		return CategoryInternal
	}
}
