package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/metric"
	"github.com/c360/exchangegate/pkg/retry"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by publish and subscribe without a live
// connection. It wraps errors.ErrNoConnection and so classifies as transient.
var ErrNotConnected = fmt.Errorf("not connected to NATS: %w", errors.ErrNoConnection)

// Status is a point-in-time view of the client.
type Status struct {
	Status          ConnectionStatus `json:"status"`
	FailureCount    int32            `json:"failure_count"`
	LastFailureTime time.Time        `json:"last_failure_time"`
	RTT             time.Duration    `json:"rtt"`
}

// Client owns one NATS connection. Connect failures feed a circuit breaker
// that makes further Connect calls fail fast until its backoff elapses.
type Client struct {
	url     string
	status  atomic.Value // ConnectionStatus
	logger  *slog.Logger
	metrics *metric.Metrics

	circuit          *breaker
	circuitThreshold int32
	maxBackoff       time.Duration

	maxReconnects  int
	reconnectWait  time.Duration
	pingInterval   time.Duration
	timeout        time.Duration
	drainTimeout   time.Duration
	messageTimeout time.Duration
	healthInterval time.Duration

	// credentials are cleared on Close
	username string
	password string
	token    string

	tlsEnabled  bool
	tlsCertFile string
	tlsKeyFile  string
	tlsCAFile   string

	clientName     string
	onHealthChange func(bool)

	mu         sync.RWMutex
	conn       *nats.Conn
	subs       []*nats.Subscription
	healthDone chan struct{}

	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a disconnected client for url, which may list several
// servers separated by commas.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           slog.Default().With("component", "natsclient"),
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		pingInterval:     30 * time.Second,
		timeout:          5 * time.Second,
		drainTimeout:     30 * time.Second,
		messageTimeout:   30 * time.Second,
		healthInterval:   10 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c.circuit = newBreaker(c.circuitThreshold, c.maxBackoff)
	c.status.Store(StatusDisconnected)
	c.logger.Debug("Created NATS client", "url", url)
	return c, nil
}

// URL returns the NATS server URL
func (m *Client) URL() string { return m.url }

// Status returns the current connection status
func (m *Client) Status() ConnectionStatus {
	return m.status.Load().(ConnectionStatus)
}

// IsHealthy reports whether the connection is up.
func (m *Client) IsHealthy() bool { return m.Status() == StatusConnected }

// Failures returns the connect failures since the last success.
func (m *Client) Failures() int32 { return m.circuit.failures() }

// Backoff returns how long the circuit stays open when it next trips.
func (m *Client) Backoff() time.Duration { return m.circuit.currentBackoff() }

// Conn returns the current NATS connection, or nil
func (m *Client) Conn() *nats.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

// GetStatus returns current status information
func (m *Client) GetStatus() *Status {
	s := &Status{
		Status:          m.Status(),
		FailureCount:    m.circuit.failures(),
		LastFailureTime: m.circuit.lastFailureTime(),
	}
	if rtt, err := m.RTT(); err == nil {
		s.RTT = rtt
	}
	return s
}

func (m *Client) setStatus(status ConnectionStatus) {
	m.status.Store(status)
	if m.metrics == nil {
		return
	}
	m.metrics.RecordNATSStatus(status == StatusConnected)
	if status == StatusCircuitOpen {
		m.metrics.RecordCircuitBreakerState(1)
	} else {
		m.metrics.RecordCircuitBreakerState(0)
	}
}

// recordFailure feeds the breaker and opens the circuit when it trips. Only
// one caller wins the transition and schedules the half-open probe.
func (m *Client) recordFailure() {
	total, trip, wait := m.circuit.fail()
	m.logger.Debug("Recorded connection failure", "failures", total)
	if !trip {
		return
	}

	current := m.Status()
	if current == StatusCircuitOpen {
		m.logger.Warn("Circuit breaker still open", "backoff", m.circuit.currentBackoff())
		return
	}
	if m.status.CompareAndSwap(current, StatusCircuitOpen) {
		m.setStatus(StatusCircuitOpen)
		m.logger.Warn("Circuit breaker opened", "failures", total, "backoff", wait)
		time.AfterFunc(wait, m.halfOpen)
	}
}

func (m *Client) resetCircuit() {
	m.circuit.reset()
	if m.Status() == StatusCircuitOpen {
		m.setStatus(StatusDisconnected)
	}
}

// halfOpen lets the next Connect try again.
func (m *Client) halfOpen() {
	if m.status.CompareAndSwap(StatusCircuitOpen, StatusDisconnected) {
		m.setStatus(StatusDisconnected)
		m.logger.Debug("Circuit breaker half-open")
	}
}

func (m *Client) natsOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(m.maxReconnects),
		nats.ReconnectWait(m.reconnectWait),
		nats.PingInterval(m.pingInterval),
		nats.Timeout(m.timeout),
		nats.DrainTimeout(m.drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			m.setStatus(StatusReconnecting)
			m.logger.Warn("NATS disconnected", "error", err)
			m.notifyHealth(false)
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			m.setStatus(StatusConnected)
			m.resetCircuit()
			m.logger.Info("NATS reconnected", "url", m.url)
			if m.metrics != nil {
				m.metrics.RecordNATSReconnect()
			}
			m.notifyHealth(true)
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			m.setStatus(StatusDisconnected)
			m.notifyHealth(false)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			m.logger.Error("NATS error", "subject", subject, "error", err)
		}),
	}

	switch {
	case m.token != "":
		opts = append(opts, nats.Token(m.token))
	case m.username != "":
		opts = append(opts, nats.UserInfo(m.username, m.password))
	}
	if m.tlsEnabled {
		if m.tlsCertFile != "" {
			opts = append(opts, nats.ClientCert(m.tlsCertFile, m.tlsKeyFile))
		}
		if m.tlsCAFile != "" {
			opts = append(opts, nats.RootCAs(m.tlsCAFile))
		}
		if m.tlsCertFile == "" && m.tlsCAFile == "" {
			opts = append(opts, nats.Secure())
		}
	}
	if m.clientName != "" {
		opts = append(opts, nats.Name(m.clientName))
	}
	return opts
}

func (m *Client) notifyHealth(healthy bool) {
	if m.onHealthChange != nil {
		go m.onHealthChange(healthy)
	}
}

// Connect dials the server. It fails fast while the circuit is open.
func (m *Client) Connect(ctx context.Context) error {
	if m.Status() == StatusCircuitOpen {
		return errors.WrapTransient(errors.ErrCircuitOpen, "Client", "Connect", "circuit breaker open")
	}

	m.setStatus(StatusConnecting)
	m.logger.Info("Connecting to NATS", "url", m.url)

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	opts := m.natsOptions()
	go func() {
		conn, err := nats.Connect(m.url, opts...)
		done <- result{conn, err}
	}()

	var connErr error
	select {
	case r := <-done:
		if r.err == nil {
			m.mu.Lock()
			m.conn = r.conn
			m.mu.Unlock()
			break
		}
		connErr = errors.WrapTransient(r.err, "Client", "Connect", "establish connection")
	case <-ctx.Done():
		// A late connection is closed rather than leaked.
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		connErr = errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	if connErr != nil {
		m.recordFailure()
		if m.Status() == StatusCircuitOpen {
			return errors.WrapTransient(errors.ErrCircuitOpen, "Client", "Connect", "circuit breaker opened")
		}
		m.setStatus(StatusDisconnected)
		return connErr
	}

	m.setStatus(StatusConnected)
	m.resetCircuit()
	m.logger.Info("Connected to NATS", "url", m.url)

	if m.healthInterval > 0 {
		m.startHealthMonitoring()
	}
	if m.onHealthChange != nil {
		m.onHealthChange(true)
	}
	return nil
}

// ConnectWithRetry calls Connect until it succeeds, cfg is exhausted, or ctx
// is done. Circuit-open errors are transient and retried.
func (m *Client) ConnectWithRetry(ctx context.Context, cfg retry.Config) error {
	return retry.Do(ctx, cfg, func() error {
		return m.Connect(ctx)
	})
}

// Close unsubscribes, drains and closes the connection. Draining is bounded
// by the drain timeout and ctx. Calling Close again is a no-op.
func (m *Client) Close(ctx context.Context) error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.stopHealthMonitoring()

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, sub := range m.subs {
		err := sub.Unsubscribe()
		if err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) && !stderrors.Is(err, nats.ErrBadSubscription) {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe"))
		}
	}
	m.subs = nil

	if m.conn != nil {
		if err := drain(ctx, m.conn, m.drainTimeout); err != nil {
			errs = append(errs, err)
		}
		m.conn.Close()
		m.conn = nil
	}

	m.username, m.password, m.token = "", "", ""
	m.setStatus(StatusDisconnected)

	for _, err := range errs {
		m.logger.Error("NATS close error", "error", err)
	}
	return stderrors.Join(errs...)
}

func drain(ctx context.Context, conn *nats.Conn, timeout time.Duration) error {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}

	done := make(chan error, 1)
	go func() { done <- conn.Drain() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return errors.Wrap(err, "Client", "Close", "drain connection")
	case <-timer.C:
		return errors.WrapTransient(fmt.Errorf("drain timeout after %v", timeout), "Client", "Close", "drain connection")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "Client", "Close", "drain connection")
	}
}

// startHealthMonitoring samples the connection every health interval and
// reports changes through the health callback.
func (m *Client) startHealthMonitoring() {
	m.stopHealthMonitoring()

	m.mu.Lock()
	done := make(chan struct{})
	m.healthDone = done
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.healthInterval)
		defer ticker.Stop()
		last := m.IsHealthy()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				healthy, ok := m.sampleHealth()
				if !ok {
					continue
				}
				if healthy != last && m.onHealthChange != nil {
					m.onHealthChange(healthy)
				}
				last = healthy
			}
		}
	}()
}

// sampleHealth pings the server and moves the status between connected and
// reconnecting. ok is false when there is no connection to sample.
func (m *Client) sampleHealth() (healthy, ok bool) {
	conn := m.Conn()
	if conn == nil {
		return false, false
	}
	healthy = conn.IsConnected()
	if healthy {
		if _, err := conn.RTT(); err != nil {
			healthy = false
		}
	}

	switch status := m.Status(); {
	case healthy && status != StatusConnected:
		m.setStatus(StatusConnected)
	case !healthy && status == StatusConnected:
		m.setStatus(StatusReconnecting)
	}
	return healthy, true
}

func (m *Client) stopHealthMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.healthDone != nil {
		close(m.healthDone)
		m.healthDone = nil
	}
}
