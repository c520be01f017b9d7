// Package message defines the unit of work that flows through exchangegate
// workflows.
//
// A Unit carries string metadata, an opaque payload, and optionally the
// exchange.State it must eventually answer. Two markers steer the workflow:
//
//   - SkipProduction: set by admission control when the exchange was already
//     answered with 503; services must not produce a response.
//   - Parked: set by a REQUEST-mode correlation interceptor once the exchange
//     is in the correlation cache; the workflow must not complete it.
//
// Metadata keys populated by the HTTP gateway are declared in metadata.go.
package message
