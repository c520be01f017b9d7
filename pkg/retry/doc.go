// Package retry provides exponential backoff retry for transient failures.
//
// # Overview
//
// The gateway retries two things: the initial NATS connection at startup and
// request publication from the NATS bridge. Both go through Do.
//
// Retry decisions follow the classification in the errors package. An error
// wrapped with errors.WrapInvalid or errors.WrapFatal stops the loop on the
// first attempt; everything else is retried until MaxAttempts is reached.
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay
//   - Quick(): 10 attempts, 50ms-1s delay (startup connection)
//
// # Usage
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//	    return client.Connect(ctx)
//	})
//
//	ack, err := retry.DoWithResult(ctx, cfg, func() (string, error) {
//	    return publisher.publishOnce(ctx, unit)
//	})
//
// # Context Cancellation
//
// Retry stops as soon as ctx is cancelled, during the operation or the backoff.
package retry
