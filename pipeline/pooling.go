package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/message"
	"github.com/c360/exchangegate/pkg/worker"
)

// job is a unit whose interceptor starts already ran.
type job struct {
	unit    *message.Unit
	started int
}

// Pooling processes units on a bounded worker pool. Its pool size is the
// admission capacity of the workflow.
type Pooling struct {
	*runner

	pool *worker.Pool[job]

	mu      sync.RWMutex
	running bool
}

// NewPooling creates a workflow backed by workers goroutines and a queue of
// queueSize units.
func NewPooling(name string, workers, queueSize int, opts ...Option) *Pooling {
	p := &Pooling{runner: newRunner(name, opts)}

	var poolOpts []worker.Option[job]
	if p.registry != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[job](p.registry, name))
	}
	p.pool = worker.NewPool(workers, queueSize, p.work, poolOpts...)
	return p
}

// Name returns the workflow name.
func (p *Pooling) Name() string { return p.name }

// PoolSize returns the worker count.
func (p *Pooling) PoolSize() int { return p.pool.Workers() }

// Resize changes the worker count of a stopped workflow. It takes effect,
// including the admission capacity, on the next Start.
func (p *Pooling) Resize(workers int) error {
	if err := p.pool.Resize(workers); err != nil {
		return errors.WrapInvalid(err, "Pooling", "Resize", p.name)
	}
	return nil
}

// Stats returns the worker pool statistics.
func (p *Pooling) Stats() worker.PoolStats { return p.pool.Stats() }

// Start starts the interceptors, then the workers.
func (p *Pooling) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Pooling", "Start", p.name)
	}
	if err := p.startInterceptors(ctx, p); err != nil {
		return err
	}
	if err := p.pool.Start(ctx); err != nil {
		p.stopInterceptors()
		return errors.WrapFatal(err, "Pooling", "Start", "start worker pool")
	}
	p.running = true
	p.logger.Info("Workflow started", "kind", KindPooling, "workers", p.pool.Workers())
	return nil
}

// Stop drains the queue, waiting up to timeout, then stops the interceptors.
func (p *Pooling) Stop(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil
	}
	p.running = false

	err := p.pool.Stop(timeout)
	p.stopInterceptors()
	if err != nil {
		return errors.WrapTransient(err, "Pooling", "Stop", "drain worker pool")
	}
	p.logger.Info("Workflow stopped", "kind", KindPooling)
	return nil
}

// Submit runs the interceptor starts inline and queues the unit. Rejected
// units end without being queued. A full queue fails the unit with a
// transient error, which the error responder turns into 503.
func (p *Pooling) Submit(ctx context.Context, unit *message.Unit) (Submission, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return Submission{}, errors.WrapTransient(errors.ErrNotStarted, "Pooling", "Submit", p.name)
	}

	n, proceed := p.begin(ctx, unit)
	if !proceed {
		p.end(ctx, unit, n)
		return Submission{}, unit.Err()
	}

	if err := p.pool.Submit(job{unit: unit, started: n}); err != nil {
		err = errors.WrapTransient(err, "Pooling", "Submit", "queue unit")
		p.fail(ctx, unit, err)
		p.end(ctx, unit, n)
		return Submission{}, err
	}
	return Submission{Async: true}, nil
}

func (p *Pooling) work(ctx context.Context, j job) error {
	p.process(ctx, j.unit)
	p.end(ctx, j.unit, j.started)
	return j.unit.Err()
}
