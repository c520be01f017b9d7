package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass tells callers how to react to a failure.
type ErrorClass int

const (
	// ErrorTransient failures may succeed when retried.
	ErrorTransient ErrorClass = iota
	// ErrorInvalid failures come from bad input or configuration.
	ErrorInvalid
	// ErrorFatal failures leave the component unable to continue.
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Lifecycle
var (
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
)

// Connectivity
var (
	ErrNoConnection       = errors.New("no connection available")
	ErrCircuitOpen        = errors.New("circuit breaker open")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// Input and configuration
var (
	ErrInvalidData   = errors.New("invalid data format")
	ErrParsingFailed = errors.New("parsing failed")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// Exchange outcomes
var (
	ErrClientGone          = errors.New("client disconnected")
	ErrDeadlineExceeded    = errors.New("exchange deadline exceeded")
	ErrAdmissionRejected   = errors.New("server busy")
	ErrAlreadyCommitted    = errors.New("response already committed")
	ErrCorrelationKeyBlank = errors.New("correlation key resolved to blank")
	ErrWorkflowNotFound    = errors.New("workflow not found")
)

// sentinelClasses classifies sentinels that reach a caller without having
// been wrapped by WrapTransient, WrapInvalid or WrapFatal.
var sentinelClasses = []struct {
	err   error
	class ErrorClass
}{
	{ErrNoConnection, ErrorTransient},
	{ErrCircuitOpen, ErrorTransient},
	{ErrAdmissionRejected, ErrorTransient},
	{ErrDeadlineExceeded, ErrorTransient},
	{ErrClientGone, ErrorTransient},
	{context.DeadlineExceeded, ErrorTransient},
	{context.Canceled, ErrorTransient},
	{ErrInvalidData, ErrorInvalid},
	{ErrParsingFailed, ErrorInvalid},
	{ErrWorkflowNotFound, ErrorInvalid},
	{ErrInvalidConfig, ErrorFatal},
	{ErrMissingConfig, ErrorFatal},
	{ErrCorrelationKeyBlank, ErrorFatal},
}

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// classOf finds the outermost explicit classification of err, falling back
// to the sentinel table. ok is false for errors nothing classifies.
func classOf(err error) (class ErrorClass, ok bool) {
	if err == nil {
		return ErrorTransient, false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	for _, s := range sentinelClasses {
		if errors.Is(err, s.err) {
			return s.class, true
		}
	}
	return ErrorTransient, false
}

// IsTransient reports whether err is classified as retryable.
func IsTransient(err error) bool {
	class, ok := classOf(err)
	return ok && class == ErrorTransient
}

// IsFatal reports whether err is classified as unrecoverable.
func IsFatal(err error) bool {
	class, ok := classOf(err)
	return ok && class == ErrorFatal
}

// IsInvalid reports whether err is classified as bad input.
func IsInvalid(err error) bool {
	class, ok := classOf(err)
	return ok && class == ErrorInvalid
}

// IsClientGone reports whether the HTTP client went away before a response
// could be committed.
func IsClientGone(err error) bool {
	return errors.Is(err, ErrClientGone)
}

// IsAlreadyCommitted reports whether a write lost the race to commit a response.
func IsAlreadyCommitted(err error) bool {
	return errors.Is(err, ErrAlreadyCommitted)
}

// Classify returns the class of err. Unclassified errors are treated as
// transient so retry loops give them another chance.
func Classify(err error) ErrorClass {
	class, _ := classOf(err)
	return class
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	return wrapAs(ErrorTransient, err, component, method, action)
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	return wrapAs(ErrorFatal, err, component, method, action)
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	return wrapAs(ErrorInvalid, err, component, method, action)
}

func wrapAs(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}
