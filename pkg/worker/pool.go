// Package worker provides a generic worker pool for concurrent task processing
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/exchangegate/metric"
)

// Pool represents a generic worker pool that can process any work type T.
// A stopped pool can be resized and started again.
type Pool[T any] struct {
	// Configuration
	workers   int
	queueSize int
	processor func(context.Context, T) error

	// Runtime state
	workChan chan T
	quit     chan struct{}
	metrics  *Metrics
	wg       *sync.WaitGroup

	// Lifecycle management
	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	// Statistics (atomic)
	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	busy      atomic.Int64

	// Metrics configuration
	metricsRegistry metric.MetricsRegistrar
	metricsPrefix   string
}

// Metrics holds Prometheus metrics for worker pool monitoring
type Metrics struct {
	queueDepth     prometheus.Gauge
	utilization    prometheus.Gauge
	submitted      prometheus.Counter
	processed      prometheus.Counter
	failed         prometheus.Counter
	dropped        prometheus.Counter
	processingTime *prometheus.HistogramVec
}

// Option represents a configuration option for the worker pool
type Option[T any] func(*Pool[T])

// WithMetricsRegistry registers pool metrics labelled pool=prefix
func WithMetricsRegistry[T any](registry metric.MetricsRegistrar, prefix string) Option[T] {
	return func(p *Pool[T]) {
		p.metricsRegistry = registry
		p.metricsPrefix = prefix
	}
}

// NewPool creates a new generic worker pool with optional configuration
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = 10 // Default worker count
	}
	if queueSize <= 0 {
		queueSize = 1000 // Default queue size
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}

	pool := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		workChan:  make(chan T, queueSize),
	}

	for _, opt := range opts {
		opt(pool)
	}

	if pool.metricsRegistry != nil && pool.metricsPrefix != "" {
		pool.initializeMetrics()
	}

	return pool
}

// initializeMetrics creates and registers metrics with the registry.
// Registration failures leave the pool without metrics.
func (p *Pool[T]) initializeMetrics() {
	labels := prometheus.Labels{"pool": p.metricsPrefix}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "exchangegate", Subsystem: "worker_pool", Name: name, Help: help, ConstLabels: labels,
		})
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "exchangegate", Subsystem: "worker_pool", Name: name, Help: help, ConstLabels: labels,
		})
	}

	m := &Metrics{
		queueDepth:  gauge("queue_depth", "Current worker pool queue depth"),
		utilization: gauge("utilization", "Share of workers busy (0-1)"),
		submitted:   counter("submitted_total", "Total work items submitted"),
		processed:   counter("processed_total", "Total work items processed"),
		failed:      counter("failed_total", "Total work items that failed processing"),
		dropped:     counter("dropped_total", "Total work items dropped due to full queue"),
		processingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "exchangegate",
			Subsystem:   "worker_pool",
			Name:        "processing_duration_seconds",
			Help:        "Time spent processing work items",
			ConstLabels: labels,
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5, 30},
		}, []string{"status"}),
	}

	service := "worker_pool." + p.metricsPrefix
	reg := p.metricsRegistry
	for _, err := range []error{
		reg.Register(service, "queue_depth", m.queueDepth),
		reg.Register(service, "utilization", m.utilization),
		reg.Register(service, "submitted_total", m.submitted),
		reg.Register(service, "processed_total", m.processed),
		reg.Register(service, "failed_total", m.failed),
		reg.Register(service, "dropped_total", m.dropped),
		reg.Register(service, "processing_duration_seconds", m.processingTime),
	} {
		if err != nil {
			return
		}
	}
	p.metrics = m
}

// Submit submits work to the pool without blocking. Returns ErrQueueFull if
// the queue is at capacity.
func (p *Pool[T]) Submit(work T) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.workChan <- work:
		p.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.submitted.Inc()
			p.metrics.queueDepth.Set(float64(len(p.workChan)))
		}
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return ErrQueueFull
	}
}

// Start starts the worker pool. A previously stopped pool gets a fresh queue.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started && !p.stopped {
		return ErrPoolAlreadyStarted
	}
	if p.stopped {
		p.workChan = make(chan T, p.queueSize)
	}

	p.wg = &sync.WaitGroup{}
	p.quit = make(chan struct{})
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, p.workChan, p.wg)
	}

	if p.metrics != nil {
		p.wg.Add(1)
		go p.metricsUpdater(ctx, p.workChan, p.quit, p.wg)
	}

	p.started = true
	p.stopped = false
	return nil
}

// Stop closes the queue and waits up to timeout for workers to drain it
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started || p.stopped {
		return nil
	}

	close(p.workChan)
	close(p.quit)
	p.stopped = true

	done := make(chan struct{})
	wg := p.wg
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Resize changes the worker count. Only allowed while the pool is not running.
func (p *Pool[T]) Resize(workers int) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started && !p.stopped {
		return ErrPoolRunning
	}
	if workers <= 0 {
		return ErrInvalidWorkers
	}
	p.workers = workers
	return nil
}

// Workers returns the configured worker count
func (p *Pool[T]) Workers() int {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	return p.workers
}

// Running reports whether the pool accepts work
func (p *Pool[T]) Running() bool {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	return p.started && !p.stopped
}

// Stats returns current pool statistics
func (p *Pool[T]) Stats() PoolStats {
	p.lifecycleMu.Lock()
	workers, depth := p.workers, len(p.workChan)
	p.lifecycleMu.Unlock()

	return PoolStats{
		Workers:    workers,
		QueueSize:  p.queueSize,
		QueueDepth: depth,
		Busy:       p.busy.Load(),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

// PoolStats represents worker pool statistics
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Busy       int64 `json:"busy"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

// worker processes work items from the queue until it is closed and drained
func (p *Pool[T]) worker(ctx context.Context, work <-chan T, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-work:
			if !ok {
				return
			}

			p.busy.Add(1)
			start := time.Now()
			err := p.processor(ctx, item)
			duration := time.Since(start)
			p.busy.Add(-1)

			p.processed.Add(1)
			if err != nil {
				p.failed.Add(1)
			}

			if p.metrics != nil {
				p.metrics.processed.Inc()
				status := "success"
				if err != nil {
					p.metrics.failed.Inc()
					status = "error"
				}
				p.metrics.processingTime.WithLabelValues(status).Observe(duration.Seconds())
			}
		}
	}
}

// metricsUpdater periodically updates utilization and queue depth metrics
func (p *Pool[T]) metricsUpdater(ctx context.Context, work chan T, quit <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case <-ticker.C:
			p.metrics.queueDepth.Set(float64(len(work)))
			p.metrics.utilization.Set(float64(p.busy.Load()) / float64(p.Workers()))
		}
	}
}
