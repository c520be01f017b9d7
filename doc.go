// Package exchangegate is an HTTP gateway that turns each request into an
// exchange, hands it to a workflow, and answers when that workflow completes.
//
// # Architecture
//
// A request flows through these packages:
//
//	gateway/http   Dispatcher: builds the exchange, submits it, then waits.
//	exchange       State, Monitor, Heartbeat and TimeoutPolicy: what the
//	               client sees while the exchange waits.
//	admission      Controller: rejects work beyond the workflow pool size.
//	correlation    Cache and Interceptor: park an exchange under a key in
//	               REQUEST mode, resume it from a later unit in RESPONSE mode.
//	pipeline       Standard and Pooling workflows that run services in order.
//	natsbridge     Publisher service and Consumer that carry units over NATS.
//
// Supporting packages:
//
//	message        Units and the metadata keys they carry.
//	config         Layered JSON/YAML configuration with env overrides.
//	service        Wires a Config into a running gateway.
//	health         Component health aggregation served at /healthz.
//	metric         Prometheus registry and metrics server.
//	natsclient     NATS connection with reconnect and health tracking.
//	errors         Classified errors (transient, invalid, fatal).
//
// # Request/response over NATS
//
// A route whose workflow correlates in REQUEST mode parks the exchange and
// publishes the request. A bridge consumes replies into a RESPONSE-mode
// workflow, which resolves the same key and completes the parked exchange:
//
//	POST /orders -> orders (request, publish orders.requests)
//	orders.replies -> orders-reply (response, respond) -> HTTP answer
//
// See configs/example.yaml for a complete configuration and
// cmd/exchangegate for the command.
package exchangegate
