package admission

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/exchange"
	"github.com/c360/exchangegate/message"
	"github.com/c360/exchangegate/metric"
	"github.com/c360/exchangegate/pipeline"
)

// BusyMessage is the reason sent with a rejection.
const BusyMessage = "Server Busy"

// State is the controller lifecycle state.
type State int32

const (
	// Stopped rejects everything.
	Stopped State = iota
	// Running admits up to capacity.
	Running
)

// String returns the string representation of State
func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Controller counts in-flight exchanges of one workflow against its capacity.
type Controller struct {
	logger  *slog.Logger
	metrics *metric.Metrics

	mu       sync.Mutex
	state    atomic.Int32
	workflow atomic.Value // string

	capacity atomic.Int64
	inFlight atomic.Int64
	ids      *xsync.Map[string, struct{}]
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records in-flight counts and rejections.
func WithMetrics(metrics *metric.Metrics) Option {
	return func(c *Controller) {
		c.metrics = metrics
	}
}

// NewController creates a stopped controller.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		logger: slog.Default().With("component", "admission"),
		ids:    xsync.NewMap[string, struct{}](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the interceptor name.
func (c *Controller) Name() string { return "admission" }

// Start resets the counters and takes capacity from the workflow's pool
// size, at least 1.
func (c *Controller) Start(_ context.Context, wf pipeline.Workflow) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == Running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Controller", "Start", wf.Name())
	}

	capacity := wf.PoolSize()
	if capacity < 1 {
		capacity = 1
	}
	c.workflow.Store(wf.Name())
	c.capacity.Store(int64(capacity))
	c.inFlight.Store(0)
	c.ids.Clear()
	c.state.Store(int32(Running))
	c.recordInFlight(0)

	c.logger.Info("Admission control started", "workflow", wf.Name(), "capacity", capacity)
	return nil
}

// Stop moves the controller to Stopped. Later units are rejected until the
// next Start.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == Stopped {
		return
	}
	c.state.Store(int32(Stopped))
	c.logger.Info("Admission control stopped", "workflow", c.workflowName(), "in_flight", c.inFlight.Load())
}

// State returns the lifecycle state.
func (c *Controller) State() State { return State(c.state.Load()) }

// Capacity returns the current capacity.
func (c *Controller) Capacity() int { return int(c.capacity.Load()) }

// InFlight returns the number of admitted, unfinished units.
func (c *Controller) InFlight() int64 { return c.inFlight.Load() }

// WorkflowStart admits or rejects unit. Rejection is not an error; the unit
// is marked to skip production.
func (c *Controller) WorkflowStart(_ context.Context, unit *message.Unit) error {
	c.TryAdmit(unit)
	return nil
}

// WorkflowEnd releases unit.
func (c *Controller) WorkflowEnd(_ context.Context, unit *message.Unit) {
	c.Release(unit)
}

// TryAdmit counts unit in if there is room. Otherwise it writes 503 to the
// unit's exchange, marks the unit to skip production, signals completion and
// returns false.
func (c *Controller) TryAdmit(unit *message.Unit) bool {
	state := unit.Exchange()
	if state == nil {
		return true
	}

	for {
		if c.State() != Running {
			c.reject(unit, state, "not running")
			return false
		}
		current := c.inFlight.Load()
		if current >= c.capacity.Load() {
			c.reject(unit, state, "at capacity")
			return false
		}
		if c.inFlight.CompareAndSwap(current, current+1) {
			break
		}
	}

	if _, loaded := c.ids.LoadOrStore(unit.ID(), struct{}{}); loaded {
		// already counted under this id
		c.inFlight.Add(-1)
		return true
	}
	c.recordInFlight(c.inFlight.Load())
	return true
}

// Release decrements the in-flight count if unit was admitted by this
// controller since its last Start. Calling it more than once is harmless.
func (c *Controller) Release(unit *message.Unit) {
	if _, ok := c.ids.LoadAndDelete(unit.ID()); !ok {
		return
	}
	c.recordInFlight(c.inFlight.Add(-1))
}

func (c *Controller) reject(unit *message.Unit, state *exchange.State, reason string) {
	unit.Set(message.KeyAdmission, message.AdmissionRejected)
	unit.MarkSkipProduction()

	err := state.RespondError(http.StatusServiceUnavailable, BusyMessage)
	if err != nil && !errors.IsAlreadyCommitted(err) {
		c.logger.Debug("Rejection not written", "unit", unit.ID(), "error", err)
	}
	state.Monitor().SignalComplete()

	if c.metrics != nil {
		c.metrics.RecordAdmissionRejected(c.workflowName())
	}
	c.logger.Debug("Unit rejected", "unit", unit.ID(), "workflow", c.workflowName(), "reason", reason,
		"capacity", c.Capacity())
}

func (c *Controller) recordInFlight(n int64) {
	if c.metrics != nil {
		c.metrics.RecordInFlight(c.workflowName(), n)
	}
}

func (c *Controller) workflowName() string {
	name, _ := c.workflow.Load().(string)
	return name
}

// Rejected reports whether admission control refused unit.
func Rejected(unit *message.Unit) bool {
	return unit.Get(message.KeyAdmission) == message.AdmissionRejected
}
