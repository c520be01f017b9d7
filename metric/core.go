package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "exchangegate"

// Exchange outcomes recorded in exchanges_total.
const (
	OutcomeCompleted  = "completed"
	OutcomeTimeout    = "timeout"
	OutcomeRejected   = "rejected"
	OutcomeClientGone = "client_gone"
	OutcomeError      = "error"
	OutcomeNotAllowed = "method_not_allowed"
)

// Metrics contains the gateway-level metrics shared by every component
type Metrics struct {
	// Service metrics
	ServiceStatus *prometheus.GaugeVec

	// Exchange metrics
	ExchangesTotal    *prometheus.CounterVec
	ExchangeWait      *prometheus.HistogramVec
	ExchangesInFlight *prometheus.GaugeVec
	AdmissionRejected *prometheus.CounterVec
	HeartbeatsTotal   *prometheus.CounterVec
	TimeoutsTotal     *prometheus.CounterVec
	SlowExchanges     *prometheus.CounterVec

	// Correlation metrics
	CorrelationOperations *prometheus.CounterVec
	CorrelationEntries    prometheus.Gauge

	// Workflow metrics
	WorkflowUnits *prometheus.CounterVec

	// NATS metrics
	NATSConnected      prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
	MessagesPublished  *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all gateway metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),

		ExchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exchanges_total",
				Help:      "Total number of HTTP exchanges by route and outcome",
			},
			[]string{"route", "outcome"},
		),

		ExchangeWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "exchange_wait_seconds",
				Help:      "Time from request arrival until the dispatcher stopped waiting",
				Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"route"},
		),

		ExchangesInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "exchanges_in_flight",
				Help:      "Exchanges admitted to a workflow and not yet finished",
			},
			[]string{"workflow"},
		),

		AdmissionRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admission_rejected_total",
				Help:      "Exchanges answered with 503 because the workflow was at capacity",
			},
			[]string{"workflow"},
		),

		HeartbeatsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "heartbeats_total",
				Help:      "Interim 102 Processing responses written",
			},
			[]string{"route"},
		),

		TimeoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timeouts_total",
				Help:      "Exchanges answered with the late status after the deadline",
			},
			[]string{"route"},
		),

		SlowExchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slow_exchanges_total",
				Help:      "Exchanges that took longer than the route warn_after threshold",
			},
			[]string{"route"},
		),

		CorrelationOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "correlation_operations_total",
				Help:      "Correlation cache operations (put, take, evict) by result",
			},
			[]string{"op", "result"},
		),

		CorrelationEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "correlation_entries",
				Help:      "Exchanges currently parked in the correlation cache",
			},
		),

		WorkflowUnits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_units_total",
				Help:      "Units processed by a workflow by status",
			},
			[]string{"workflow", "status"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),

		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "published_total",
				Help:      "Total number of messages published by the NATS bridge",
			},
			[]string{"subject", "status"},
		),
	}
}

// RecordServiceStatus updates service status metric
func (c *Metrics) RecordServiceStatus(service string, status int) {
	c.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordExchange counts a finished exchange and how long the dispatcher waited
func (c *Metrics) RecordExchange(route, outcome string, wait time.Duration) {
	c.ExchangesTotal.WithLabelValues(route, outcome).Inc()
	c.ExchangeWait.WithLabelValues(route).Observe(wait.Seconds())
}

// RecordInFlight sets the admitted-but-unfinished exchange count
func (c *Metrics) RecordInFlight(workflow string, n int64) {
	c.ExchangesInFlight.WithLabelValues(workflow).Set(float64(n))
}

// RecordAdmissionRejected counts a 503 rejection
func (c *Metrics) RecordAdmissionRejected(workflow string) {
	c.AdmissionRejected.WithLabelValues(workflow).Inc()
}

// RecordHeartbeats adds n interim responses for route
func (c *Metrics) RecordHeartbeats(route string, n int64) {
	if n > 0 {
		c.HeartbeatsTotal.WithLabelValues(route).Add(float64(n))
	}
}

// RecordTimeout counts a late-status response
func (c *Metrics) RecordTimeout(route string) {
	c.TimeoutsTotal.WithLabelValues(route).Inc()
}

// RecordSlowExchange counts an exchange over its warn threshold
func (c *Metrics) RecordSlowExchange(route string) {
	c.SlowExchanges.WithLabelValues(route).Inc()
}

// RecordCorrelation counts a correlation cache operation
func (c *Metrics) RecordCorrelation(op, result string) {
	c.CorrelationOperations.WithLabelValues(op, result).Inc()
}

// RecordCorrelationEntries sets the parked exchange count
func (c *Metrics) RecordCorrelationEntries(n int) {
	c.CorrelationEntries.Set(float64(n))
}

// RecordWorkflowUnit counts a unit leaving a workflow
func (c *Metrics) RecordWorkflowUnit(workflow, status string) {
	c.WorkflowUnits.WithLabelValues(workflow, status).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.NATSCircuitBreaker.Set(float64(state))
}

// RecordMessagePublished counts a bridge publication
func (c *Metrics) RecordMessagePublished(subject, status string) {
	c.MessagesPublished.WithLabelValues(subject, status).Inc()
}
