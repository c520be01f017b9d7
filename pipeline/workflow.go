package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/message"
	"github.com/c360/exchangegate/metric"
)

// Workflow kinds accepted in configuration.
const (
	KindStandard = "standard"
	KindPooling  = "pooling"
)

// Unit outcomes recorded per workflow.
const (
	unitCompleted = "completed"
	unitFailed    = "error"
	unitSkipped   = "skipped"
)

// Workflow runs units of work through interceptors and services.
type Workflow interface {
	Name() string
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
	// Submit hands unit to the workflow. The returned Submission tells the
	// caller whether the unit finishes after Submit returns.
	Submit(ctx context.Context, unit *message.Unit) (Submission, error)
	// PoolSize is the number of units the workflow processes concurrently.
	PoolSize() int
}

// Submission describes what happened to a submitted unit.
type Submission struct {
	// Async is true when the unit completes on another goroutine, either a
	// pool worker or a later workflow that takes a parked exchange.
	Async bool
}

// Option configures a workflow.
type Option func(*runner)

// WithServices appends services run for every unit.
func WithServices(services ...Service) Option {
	return func(r *runner) {
		r.services = append(r.services, services...)
	}
}

// WithInterceptors appends interceptors. Their WorkflowStart hooks run in the
// order given.
func WithInterceptors(interceptors ...Interceptor) Option {
	return func(r *runner) {
		r.interceptors = append(r.interceptors, interceptors...)
	}
}

// WithErrorResponder replaces the default error responder.
func WithErrorResponder(respond ErrorResponder) Option {
	return func(r *runner) {
		if respond != nil {
			r.respond = respond
		}
	}
}

// WithLogger sets the workflow logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetricsRegistry enables workflow and worker pool metrics.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(r *runner) {
		r.registry = registry
	}
}

// runner holds what Standard and Pooling share: the interceptor chain, the
// services and the completion rules.
type runner struct {
	name         string
	services     ServiceList
	interceptors []Interceptor
	respond      ErrorResponder
	logger       *slog.Logger
	registry     *metric.MetricsRegistry
	metrics      *metric.Metrics
}

func newRunner(name string, opts []Option) *runner {
	r := &runner{name: name}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default().With("component", "workflow", "workflow", name)
	}
	if r.respond == nil {
		r.respond = NewErrorResponder(r.logger)
	}
	if r.registry != nil {
		r.metrics = r.registry.CoreMetrics()
	}
	return r
}

func (r *runner) startInterceptors(ctx context.Context, wf Workflow) error {
	for i, ic := range r.interceptors {
		if err := ic.Start(ctx, wf); err != nil {
			for j := i - 1; j >= 0; j-- {
				r.interceptors[j].Stop()
			}
			return errors.Wrap(err, "Workflow", "Start", fmt.Sprintf("start interceptor %s", ic.Name()))
		}
	}
	return nil
}

func (r *runner) stopInterceptors() {
	for i := len(r.interceptors) - 1; i >= 0; i-- {
		r.interceptors[i].Stop()
	}
}

// begin runs WorkflowStart hooks and returns how many ran plus whether the
// services should run.
func (r *runner) begin(ctx context.Context, unit *message.Unit) (int, bool) {
	for i, ic := range r.interceptors {
		if err := ic.WorkflowStart(ctx, unit); err != nil {
			r.fail(ctx, unit, fmt.Errorf("interceptor %s: %w", ic.Name(), err))
			return i, false
		}
		if unit.SkipProduction() {
			return i + 1, false
		}
	}
	return len(r.interceptors), true
}

// process runs the services. A failure is recorded on the unit and answered.
func (r *runner) process(ctx context.Context, unit *message.Unit) {
	if err := r.services.Process(ctx, unit); err != nil {
		r.fail(ctx, unit, err)
	}
}

func (r *runner) fail(ctx context.Context, unit *message.Unit, err error) {
	unit.SetError(err)
	r.logger.Warn("Unit failed", "unit", unit.ID(), "error", err)
	r.respond(ctx, unit, err)
}

// end runs WorkflowEnd hooks for the first n interceptors in reverse and
// signals the exchange unless it was parked for another workflow.
func (r *runner) end(ctx context.Context, unit *message.Unit, n int) {
	for i := n - 1; i >= 0; i-- {
		r.interceptors[i].WorkflowEnd(ctx, unit)
	}

	status := unitCompleted
	switch {
	case unit.Err() != nil:
		status = unitFailed
	case unit.SkipProduction():
		status = unitSkipped
	}
	r.record(status)

	if state := unit.Exchange(); state != nil && !unit.Parked() {
		state.Monitor().SignalComplete()
	}
}

func (r *runner) record(status string) {
	if r.metrics != nil {
		r.metrics.RecordWorkflowUnit(r.name, status)
	}
}
