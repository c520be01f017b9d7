package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"k8s.io/utils/clock"

	"github.com/c360/exchangegate/admission"
	"github.com/c360/exchangegate/config"
	"github.com/c360/exchangegate/correlation"
	"github.com/c360/exchangegate/errors"
	gatewayhttp "github.com/c360/exchangegate/gateway/http"
	"github.com/c360/exchangegate/health"
	"github.com/c360/exchangegate/metric"
	"github.com/c360/exchangegate/natsbridge"
	"github.com/c360/exchangegate/natsclient"
	"github.com/c360/exchangegate/pipeline"
	"github.com/c360/exchangegate/pkg/retry"
)

// Name identifies the gateway in logs, metrics and health reports.
const Name = "exchangegate"

// HealthPath is where Handler serves the aggregate health report.
const HealthPath = "/healthz"

// Option is a functional option for configuring Gateway
type Option func(*Gateway)

// WithLogger sets the root logger
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetricsRegistry sets the registry all parts record into
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(g *Gateway) {
		if registry != nil {
			g.registry = registry
		}
	}
}

// WithClock sets the time source for dispatcher deadlines and heartbeats
func WithClock(clk clock.WithTicker) Option {
	return func(g *Gateway) {
		if clk != nil {
			g.clock = clk
		}
	}
}

// WithNATSOptions appends options to the NATS client built from config
func WithNATSOptions(opts ...natsclient.ClientOption) Option {
	return func(g *Gateway) {
		g.natsOpts = append(g.natsOpts, opts...)
	}
}

// WithConnectRetry sets how the initial NATS connection is retried
func WithConnectRetry(cfg retry.Config) Option {
	return func(g *Gateway) {
		g.connectRetry = cfg
	}
}

// Gateway owns everything an exchangegate process runs: the correlation
// cache, the workflows, the HTTP routes, the NATS client and the bridges.
//
// A Gateway is single use. Start it once, Stop it once.
type Gateway struct {
	cfg          *config.Config
	logger       *slog.Logger
	registry     *metric.MetricsRegistry
	metrics      *metric.Metrics
	clock        clock.WithTicker
	natsOpts     []natsclient.ClientOption
	connectRetry retry.Config

	nats      *natsclient.Client
	cache     *correlation.Cache
	workflows *pipeline.Registry
	admission map[string]*admission.Controller
	http      *gatewayhttp.Gateway
	consumers []*natsbridge.Consumer
	health    *health.Monitor

	mu        sync.Mutex
	used      bool
	status    atomic.Value // Status
	startTime atomic.Value // time.Time
	cancel    context.CancelFunc
}

// New validates cfg and builds every part of the gateway without starting
// anything.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Gateway", "New", "nil config")
	}
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &Gateway{
		cfg:          cfg,
		logger:       slog.Default(),
		clock:        clock.RealClock{},
		connectRetry: retry.DefaultConfig(),
		workflows:    pipeline.NewRegistry(),
		admission:    make(map[string]*admission.Controller),
		health:       health.NewMonitor(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.registry == nil {
		g.registry = metric.NewMetricsRegistry()
	}
	g.metrics = g.registry.CoreMetrics()
	g.setStatus(StatusStopped)
	g.startTime.Store(time.Time{})

	if cfg.NATS.Enabled() {
		client, err := g.newNATSClient()
		if err != nil {
			return nil, err
		}
		g.nats = client
		g.health.UpdateUnhealthy("nats", "not connected")
	}

	g.cache = correlation.NewCache(
		correlation.WithTTL(cfg.Correlation.TTL.Std()),
		correlation.WithCapacity(cfg.Correlation.Capacity),
		correlation.WithLogger(g.logger.With("component", "correlation-cache")),
		correlation.WithMetrics(g.metrics),
	)

	for _, name := range cfg.WorkflowNames() {
		wf, err := g.buildWorkflow(name, cfg.Workflows[name])
		if err != nil {
			return nil, err
		}
		if err := g.workflows.Register(wf); err != nil {
			return nil, err
		}
		g.health.UpdateUnhealthy("workflow:"+name, "stopped")
	}

	gw, err := gatewayhttp.NewGateway(cfg.Gateway(), g.workflows,
		gatewayhttp.WithClock(g.clock),
		gatewayhttp.WithLogger(g.logger.With("component", "dispatcher")),
		gatewayhttp.WithMetrics(g.metrics),
		gatewayhttp.WithParkedExchanges(g.cache),
	)
	if err != nil {
		return nil, err
	}
	g.http = gw

	for _, b := range cfg.Bridges {
		wf, err := g.workflows.Get(b.Workflow)
		if err != nil {
			return nil, err
		}
		g.consumers = append(g.consumers, natsbridge.NewConsumer(g.nats, b.Subject, wf,
			natsbridge.WithQueue(b.Queue),
			natsbridge.WithConsumerLogger(g.logger.With("component", "nats-consumer", "subject", b.Subject)),
		))
	}

	return g, nil
}

func (g *Gateway) newNATSClient() (*natsclient.Client, error) {
	nc := g.cfg.NATS
	opts := []natsclient.ClientOption{
		natsclient.WithMaxReconnects(nc.MaxReconnects),
		natsclient.WithLogger(g.logger.With("component", "nats")),
		natsclient.WithMetrics(g.metrics),
		natsclient.WithHealthChangeCallback(g.onNATSHealth),
	}
	if nc.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(nc.ReconnectWait.Std()))
	}
	if nc.Name != "" {
		opts = append(opts, natsclient.WithName(nc.Name))
	} else {
		opts = append(opts, natsclient.WithName(Name))
	}
	switch {
	case nc.Token != "":
		opts = append(opts, natsclient.WithToken(nc.Token))
	case nc.Username != "":
		opts = append(opts, natsclient.WithCredentials(nc.Username, nc.Password))
	}
	if nc.TLS.Enabled {
		opts = append(opts, natsclient.WithTLS(nc.TLS.CertFile, nc.TLS.KeyFile, nc.TLS.CAFile))
	}
	return natsclient.NewClient(nc.URL(), append(opts, g.natsOpts...)...)
}

func (g *Gateway) onNATSHealth(healthy bool) {
	if healthy {
		g.health.UpdateHealthy("nats", "connected")
		return
	}
	g.health.UpdateUnhealthy("nats", "disconnected")
}

// Start connects to NATS, starts the cache sweep, the workflows and the
// bridges. On failure everything already started is stopped again.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.used {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Gateway", "Start", "a gateway can only be started once")
	}
	g.used = true
	g.setStatus(StatusStarting)

	// Parts outlive a cancelled start context until Stop.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g.cancel = cancel

	fail := func(err error, undo ...func()) error {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		cancel()
		g.cache.Close()
		g.setStatus(StatusStopped)
		g.logger.Error("Gateway failed to start", "error", err)
		return err
	}

	closeNATS := func() {}
	if g.nats != nil {
		if err := g.nats.ConnectWithRetry(ctx, g.connectRetry); err != nil {
			return fail(errors.Wrap(err, "Gateway", "Start", "connect to NATS"))
		}
		closeNATS = func() { _ = g.nats.Close(context.Background()) }
	}

	g.cache.Start(runCtx)

	if err := g.workflows.StartAll(runCtx); err != nil {
		return fail(err, closeNATS)
	}
	stopWorkflows := func() { _ = g.workflows.StopAll(time.Second) }
	for _, name := range g.workflows.Names() {
		g.health.UpdateHealthy("workflow:"+name, "running")
	}

	for i, c := range g.consumers {
		if err := c.Start(runCtx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = g.consumers[j].Stop()
			}
			return fail(errors.Wrap(err, "Gateway", "Start", "start bridge "+c.Name()), closeNATS, stopWorkflows)
		}
	}

	g.startTime.Store(time.Now())
	g.setStatus(StatusRunning)
	g.logger.Info("Gateway started",
		"workflows", g.workflows.Names(),
		"routes", len(g.http.Dispatchers()),
		"bridges", len(g.consumers),
		"nats", g.nats != nil)
	return nil
}

// Stop unsubscribes the bridges, stops the workflows (each within timeout),
// drops parked exchanges and closes NATS. It joins every error it meets.
func (g *Gateway) Stop(timeout time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Status() != StatusRunning {
		return nil
	}
	g.setStatus(StatusStopping)
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var errs []error
	for _, c := range g.consumers {
		if err := c.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop bridge %s: %w", c.Name(), err))
		}
	}

	if err := g.workflows.StopAll(timeout); err != nil {
		errs = append(errs, err)
	}
	for _, name := range g.workflows.Names() {
		g.health.UpdateUnhealthy("workflow:"+name, "stopped")
	}

	g.cancel()
	g.cache.Close()

	if g.nats != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := g.nats.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close NATS: %w", err))
		}
		cancel()
	}

	g.setStatus(StatusStopped)
	err := stderrors.Join(errs...)
	if err != nil {
		g.logger.Warn("Gateway stopped with errors", "error", err)
	} else {
		g.logger.Info("Gateway stopped")
	}
	return err
}

func (g *Gateway) setStatus(s Status) {
	g.status.Store(s)
	g.metrics.RecordServiceStatus(Name, int(s))
}

// Name returns the service name
func (g *Gateway) Name() string { return Name }

// Status returns the current lifecycle status
func (g *Gateway) Status() Status {
	return g.status.Load().(Status)
}

// Config returns a copy of the configuration the gateway was built from.
func (g *Gateway) Config() *config.Config { return g.cfg.Clone() }

// Workflows returns the workflow registry.
func (g *Gateway) Workflows() *pipeline.Registry { return g.workflows }

// Cache returns the shared correlation cache.
func (g *Gateway) Cache() *correlation.Cache { return g.cache }

// NATS returns the NATS client, or nil when NATS is not configured.
func (g *Gateway) NATS() *natsclient.Client { return g.nats }

// HTTP returns the route dispatchers.
func (g *Gateway) HTTP() *gatewayhttp.Gateway { return g.http }

// Admission returns the admission controller of workflow name, if it has one.
func (g *Gateway) Admission(name string) (*admission.Controller, bool) {
	ctrl, ok := g.admission[name]
	return ctrl, ok
}

// Handler returns the router serving every configured route plus the
// health report.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, HealthPath, health.Handler(g.Health))
	g.http.Mount(r)
	return r
}

// Health reports the gateway and its parts. Admission controllers at
// capacity make the report degraded; anything not running makes it
// unhealthy.
func (g *Gateway) Health() health.Status {
	for name, ctrl := range g.admission {
		part := "admission:" + name
		inFlight, capacity := ctrl.InFlight(), ctrl.Capacity()
		var st health.Status
		switch {
		case ctrl.State() != admission.Running:
			st = health.NewUnhealthy(part, "admission "+ctrl.State().String())
		case inFlight >= int64(capacity):
			st = health.NewDegraded(part, "at capacity")
		default:
			st = health.NewHealthy(part, "admitting")
		}
		g.health.Update(part, st.WithMetrics(&health.Metrics{InFlight: inFlight, Capacity: capacity}))
	}
	g.health.Update("correlation", health.NewHealthy("correlation", "ok").
		WithMetrics(&health.Metrics{Parked: g.cache.Len()}))

	report := g.health.AggregateHealth(Name)
	status := g.Status()
	if status != StatusRunning {
		subs := report.SubStatuses
		report = health.NewUnhealthy(Name, "gateway is "+status.String())
		report.SubStatuses = subs
		return report
	}
	start, _ := g.startTime.Load().(time.Time)
	return report.WithMetrics(&health.Metrics{Uptime: time.Since(start)})
}
