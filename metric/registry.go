package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/exchangegate/errors"
)

// MetricsRegistrar is what components need to publish their own collectors.
type MetricsRegistrar interface {
	Register(component, name string, c prometheus.Collector) error
}

// MetricsRegistry owns the prometheus registry behind /metrics. Component
// collectors are keyed by "component.name".
type MetricsRegistry struct {
	prom       *prometheus.Registry
	Metrics    *Metrics
	mu         sync.Mutex
	components map[string]prometheus.Collector
}

// NewMetricsRegistry creates a registry with the core metrics and the Go
// and process collectors already registered.
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prom:       prometheus.NewRegistry(),
		Metrics:    NewMetrics(),
		components: make(map[string]prometheus.Collector),
	}
	r.registerMetrics()
	r.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the registry to gather from.
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry { return r.prom }

// CoreMetrics returns the exchange metrics every part records into.
func (r *MetricsRegistry) CoreMetrics() *Metrics { return r.Metrics }

// Register adds a component collector. A second registration of the same
// component and name, or a collector prometheus already knows, is an
// Invalid-classified error; any other prometheus failure is Fatal.
func (r *MetricsRegistry) Register(component, name string, c prometheus.Collector) error {
	key := component + "." + name

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.components[key]; taken {
		return errors.WrapInvalid(fmt.Errorf("metric %s already registered", key),
			"MetricsRegistry", "Register", "duplicate metric registration")
	}
	if err := r.prom.Register(c); err != nil {
		var dup prometheus.AlreadyRegisteredError
		if stderrors.As(err, &dup) {
			return errors.WrapInvalid(err, "MetricsRegistry", "Register", "prometheus conflict for "+key)
		}
		return errors.WrapFatal(err, "MetricsRegistry", "Register", "register "+key)
	}
	r.components[key] = c
	return nil
}

func (r *MetricsRegistry) registerMetrics() {
	r.prom.MustRegister(
		r.Metrics.ServiceStatus,
		r.Metrics.ExchangesTotal,
		r.Metrics.ExchangeWait,
		r.Metrics.ExchangesInFlight,
		r.Metrics.AdmissionRejected,
		r.Metrics.HeartbeatsTotal,
		r.Metrics.TimeoutsTotal,
		r.Metrics.SlowExchanges,
		r.Metrics.CorrelationOperations,
		r.Metrics.CorrelationEntries,
		r.Metrics.WorkflowUnits,
		r.Metrics.NATSConnected,
		r.Metrics.NATSReconnects,
		r.Metrics.NATSCircuitBreaker,
		r.Metrics.MessagesPublished,
	)
}
