// Package errors provides standardized error handling patterns for exchangegate.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid
// (bad input, non-retryable) and Fatal (unrecoverable). Components make
// retry and response decisions from the class instead of matching strings.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Three wrappers set a classification while wrapping:
//
//	errors.WrapTransient(err, "Publisher", "Publish", "publish request")
//	errors.WrapInvalid(err, "Resolver", "Compile", "parse expression")
//	errors.WrapFatal(err, "Interceptor", "WorkflowStart", "resolve key")
//
// Wrap() adds context and preserves whatever class the original error had.
//
// # Exchange Errors
//
// The gateway reports the outcome of an HTTP exchange with a small set of
// sentinels:
//
//   - ErrClientGone: the caller disconnected before a response was committed
//   - ErrDeadlineExceeded: the route timeout fired first
//   - ErrAdmissionRejected: the target workflow had no free capacity
//   - ErrAlreadyCommitted: another writer already committed the response
//   - ErrCorrelationKeyBlank: a correlation expression resolved to nothing
//
// ErrAlreadyCommitted is expected under races between the producer, the
// timeout path and the error responder; callers treat it as a no-op:
//
//	if err := state.Commit(fn); err != nil && !errors.IsAlreadyCommitted(err) {
//	    return err
//	}
//
// # Context Cancellation
//
// context.DeadlineExceeded and context.Canceled are classified as Transient.
// Errors no wrapper or sentinel classifies report false from every Is
// check, and Classify treats them as Transient.
//
// # Thread Safety
//
// All classification and wrapping operations are safe for concurrent use.
package errors
