package http

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/c360/exchangegate/admission"
	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/exchange"
	"github.com/c360/exchangegate/gateway"
	"github.com/c360/exchangegate/message"
	"github.com/c360/exchangegate/metric"
	"github.com/c360/exchangegate/pipeline"
)

// RequestIDHeader carries the exchange id in both directions.
const RequestIDHeader = "X-Request-ID"

// Option configures a Dispatcher or Gateway
type Option func(*options)

type options struct {
	clock        clock.WithTicker
	logger       *slog.Logger
	metrics      *metric.Metrics
	limit        int64
	headerPrefix string
	parked       ParkedExchanges
}

// ParkedExchanges drops exchanges parked for a reply. *correlation.Cache
// implements it.
type ParkedExchanges interface {
	Discard(key string, state *exchange.State) bool
}

// WithClock sets the time source for deadlines and heartbeats.
func WithClock(clk clock.WithTicker) Option {
	return func(o *options) {
		if clk != nil {
			o.clock = clk
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records exchange outcomes, waits and heartbeats.
func WithMetrics(metrics *metric.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithMaxRequestSize limits request bodies. Route limits take precedence.
func WithMaxRequestSize(limit int64) Option {
	return func(o *options) {
		o.limit = limit
	}
}

// WithHeaderPrefix copies every request header into metadata as prefix+name.
func WithHeaderPrefix(prefix string) Option {
	return func(o *options) {
		o.headerPrefix = prefix
	}
}

// WithParkedExchanges lets the dispatcher drop the parked entry of an
// exchange whose client went away.
func WithParkedExchanges(parked ParkedExchanges) Option {
	return func(o *options) {
		o.parked = parked
	}
}

func buildOptions(opts []Option) options {
	o := options{
		clock:  clock.RealClock{},
		logger: slog.Default().With("component", "http-gateway"),
		limit:  gateway.DefaultMaxRequestSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Dispatcher turns requests on one route into units of work, submits them
// to the route's workflow and holds the request open until the workflow (or
// the timeout policy, or admission control) has answered.
type Dispatcher struct {
	route    gateway.RouteMapping
	workflow pipeline.Workflow
	policy   exchange.TimeoutPolicy
	handlers map[string]http.HandlerFunc
	allow    string

	clock        clock.WithTicker
	logger       *slog.Logger
	metrics      *metric.Metrics
	limit        int64
	headerPrefix string
	parked       ParkedExchanges
	slow         *rate.Sometimes
}

// NewDispatcher validates route and binds it to wf.
func NewDispatcher(route gateway.RouteMapping, wf pipeline.Workflow, opts ...Option) (*Dispatcher, error) {
	if err := route.Validate(); err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Dispatcher", "NewDispatcher",
			fmt.Sprintf("route %s has no workflow", route.Path))
	}

	o := buildOptions(opts)
	limit := o.limit
	if route.MaxRequestSize > 0 {
		limit = route.MaxRequestSize
	}

	d := &Dispatcher{
		route:        route,
		workflow:     wf,
		policy:       route.Policy(o.clock),
		allow:        route.AllowHeader(),
		clock:        o.clock,
		logger:       o.logger.With("route", route.Path, "workflow", wf.Name()),
		metrics:      o.metrics,
		limit:        limit,
		headerPrefix: o.headerPrefix,
		parked:       o.parked,
		slow:         &rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}

	d.handlers = make(map[string]http.HandlerFunc, len(route.AllowedMethods()))
	for _, m := range route.AllowedMethods() {
		d.handlers[m] = d.dispatch
	}
	d.handlers[http.MethodOptions] = d.options
	return d, nil
}

// Route returns the validated route mapping.
func (d *Dispatcher) Route() gateway.RouteMapping { return d.route }

// ServeHTTP dispatches on the request method.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h, ok := d.handlers[r.Method]; ok {
		h(w, r)
		return
	}

	w.Header().Set("Allow", d.allow)
	_ = exchange.WriteError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
	d.record(metric.OutcomeNotAllowed, 0)
}

func (d *Dispatcher) options(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", d.allow)
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dispatcher) dispatch(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)
	for k, v := range d.route.ResponseHeaders {
		w.Header().Set(k, v)
	}

	monitor := exchange.NewMonitor(d.clock)
	state := exchange.NewState(requestID, w, r, monitor)

	body, err := d.readBody(w, r)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		_ = state.RespondError(status, http.StatusText(status))
		d.logger.Debug("Request body rejected", "exchange", requestID, "status", status, "error", err)
		d.record(metric.OutcomeError, monitor.Elapsed())
		return
	}

	unit := message.NewUnit("http",
		message.WithPayload(body),
		message.WithMetadata(d.metadataFor(r, requestID)),
		message.WithExchange(state),
	)

	var heartbeat *exchange.Heartbeat
	if d.route.HeartbeatEnabled() && exchange.WantsInterim(r) {
		heartbeat = exchange.NewHeartbeat(d.clock, exchange.WithHeartbeatLogger(d.logger))
		heartbeat.Start(state, d.route.HeartbeatInterval())
	}

	sub, submitErr := d.workflow.Submit(r.Context(), unit)
	if submitErr != nil {
		d.answerSubmitError(state, submitErr)
	}

	timedOut := false
	if sub.Async && submitErr == nil {
		timedOut = d.wait(r.Context(), state)
	}

	if heartbeat != nil {
		heartbeat.Cancel()
		if d.metrics != nil {
			d.metrics.RecordHeartbeats(d.route.Path, heartbeat.Beats())
		}
	}

	d.finish(r.Context(), state, unit)

	elapsed := monitor.Elapsed()
	d.record(d.outcome(r.Context(), state, unit, submitErr, timedOut), elapsed)
	if warn := d.route.WarnAfter(); warn > 0 && elapsed > warn {
		if d.metrics != nil {
			d.metrics.RecordSlowExchange(d.route.Path)
		}
		d.slow.Do(func() {
			d.logger.Warn("Slow exchange", "exchange", requestID, "elapsed", elapsed, "warn_after", warn)
		})
	}
}

func (d *Dispatcher) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, d.limit))
}

// metadataFor exposes the parts of the request business logic may see.
func (d *Dispatcher) metadataFor(r *http.Request, requestID string) map[string]string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	md := map[string]string{
		message.KeyURL:       scheme + "://" + r.Host + r.URL.RequestURI(),
		message.KeyPath:      r.URL.Path,
		message.KeyMethod:    r.Method,
		message.KeyRequestID: requestID,
	}
	if r.URL.RawQuery != "" {
		md[message.KeyQueryString] = r.URL.RawQuery
	}
	if roles := gateway.RolesFromContext(r.Context()); len(roles) > 0 {
		md[message.KeyRoles] = strings.Join(roles, ",")
	}
	if r.RemoteAddr != "" {
		md[message.KeyRemoteAddr] = r.RemoteAddr
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		md[message.KeyContentType] = ct
	}
	if d.headerPrefix != "" {
		for name, values := range r.Header {
			if len(values) > 0 {
				md[d.headerPrefix+name] = strings.Join(values, ",")
			}
		}
	}
	return md
}

func (d *Dispatcher) answerSubmitError(state *exchange.State, err error) {
	if !state.IsOpen() {
		return
	}
	status := pipeline.StatusForError(err)
	if werr := state.RespondError(status, pipeline.MessageForStatus(status)); werr != nil &&
		!errors.IsAlreadyCommitted(werr) && !errors.IsClientGone(werr) {
		d.logger.Warn("Error response failed", "exchange", state.ID(), "error", werr)
	}
	d.logger.Debug("Submit failed", "exchange", state.ID(), "status", status, "error", err)
}

// wait blocks until the exchange completes, the deadline passes, or the
// request context ends. It reports whether the late status was written.
func (d *Dispatcher) wait(ctx context.Context, state *exchange.State) bool {
	monitor := state.Monitor()
	if monitor.IsComplete() {
		return false
	}

	var deadline <-chan time.Time
	if d.policy.Bounded() {
		if err := d.policy.CheckDeadline(monitor); err != nil {
			return d.timeout(state)
		}
		timer := d.clock.NewTimer(d.policy.Remaining(monitor))
		defer timer.Stop()
		deadline = timer.C()
	}

	select {
	case <-monitor.Done():
		return false
	case <-deadline:
		return d.timeout(state)
	case <-ctx.Done():
		d.logger.Debug("Wait interrupted", "exchange", state.ID(), "error", ctx.Err())
		return false
	}
}

func (d *Dispatcher) timeout(state *exchange.State) bool {
	err := d.policy.OnTimeout(state)
	switch {
	case err == nil:
		d.logger.Info("Exchange timed out", "exchange", state.ID(),
			"deadline", d.policy.Deadline, "status", d.policy.LateStatus)
		if d.metrics != nil {
			d.metrics.RecordTimeout(d.route.Path)
		}
		return true
	case errors.IsAlreadyCommitted(err):
		return false
	default:
		d.logger.Debug("Timeout response failed", "exchange", state.ID(), "error", err)
		return false
	}
}

// finish makes sure every exchange ends with exactly one response: an
// empty 200 when nobody answered, nothing when the client is gone.
func (d *Dispatcher) finish(ctx context.Context, state *exchange.State, unit *message.Unit) {
	if !state.IsOpen() {
		return
	}
	if ctx.Err() != nil {
		state.Abandon()
		d.release(state, unit)
		return
	}
	if err := state.Respond(http.StatusOK, nil, nil); err != nil && !errors.IsAlreadyCommitted(err) {
		d.logger.Debug("Default response failed", "exchange", state.ID(), "error", err)
	}
}

// release removes an abandoned exchange that is still parked so the cache
// does not hold its request until the entry expires.
func (d *Dispatcher) release(state *exchange.State, unit *message.Unit) {
	if d.parked == nil || !unit.Parked() {
		return
	}
	if d.parked.Discard(unit.Get(message.KeyCorrelationID), state) {
		d.logger.Debug("Released parked exchange", "exchange", state.ID())
	}
}

func (d *Dispatcher) outcome(ctx context.Context, state *exchange.State, unit *message.Unit,
	submitErr error, timedOut bool) string {
	switch {
	case admission.Rejected(unit):
		return metric.OutcomeRejected
	case timedOut:
		return metric.OutcomeTimeout
	case state.Status() == 0 && ctx.Err() != nil:
		return metric.OutcomeClientGone
	case submitErr != nil || unit.Err() != nil:
		return metric.OutcomeError
	default:
		return metric.OutcomeCompleted
	}
}

func (d *Dispatcher) record(outcome string, wait time.Duration) {
	if d.metrics != nil {
		d.metrics.RecordExchange(d.route.Path, outcome, wait)
	}
}
