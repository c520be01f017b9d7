// Package health reports the state of the gateway and its parts.
//
// A Status is healthy, degraded or unhealthy. Parts that change state
// asynchronously, such as the NATS connection, report into a Monitor;
// Aggregate folds part statuses into one:
//
//	monitor := health.NewMonitor()
//	monitor.UpdateHealthy("nats", "connected")
//	monitor.UpdateDegraded("workflow:orders", "admission at capacity")
//
//	overall := monitor.AggregateHealth("exchangegate") // degraded
//
// Handler exposes a report function over HTTP, answering 503 while the
// report is unhealthy:
//
//	r.Method(http.MethodGet, "/healthz", health.Handler(svc.Health))
//
// Messages derived from errors should pass through Sanitize first so that
// server URLs and credentials do not leak.
package health
