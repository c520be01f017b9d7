// Package metric provides Prometheus-based metrics collection and the HTTP
// server that exposes them for exchangegate.
//
// # Architecture
//
//  1. Core Metrics: gateway-level metrics registered automatically (Metrics type)
//  2. Service Registry: registration for component-specific metrics (MetricsRegistrar)
//  3. HTTP Server: /metrics and /health endpoints (Server type)
//
// # Core Metrics
//
// All core metrics live under the "exchangegate" namespace:
//
//	exchangegate_exchanges_total{route,outcome}
//	exchangegate_exchange_wait_seconds{route}
//	exchangegate_exchanges_in_flight{workflow}
//	exchangegate_admission_rejected_total{workflow}
//	exchangegate_heartbeats_total{route}
//	exchangegate_timeouts_total{route}
//	exchangegate_slow_exchanges_total{route}
//	exchangegate_correlation_operations_total{op,result}
//	exchangegate_correlation_entries
//	exchangegate_workflow_units_total{workflow,status}
//	exchangegate_nats_connected, _reconnects_total, _circuit_breaker, _published_total
//
// Outcome label values are the Outcome* constants.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	g.Go(server.Start)          // blocks until Stop
//	defer server.Stop()
//
//	registry.CoreMetrics().RecordExchange("/orders", metric.OutcomeCompleted, elapsed)
//
// # Component Metrics
//
// Components register their own collectors through MetricsRegistrar. The
// registry keys each collector by "service.metric" and rejects duplicates
// with an Invalid-classified error:
//
//	err := registrar.Register("worker_pool.orders", "queue_depth", gauge)
//
// Components accept a nil registry and skip metrics in that case.
//
// # Thread Safety
//
// MetricsRegistry is safe for concurrent use. Prometheus collectors are
// themselves safe for concurrent updates.
package metric
