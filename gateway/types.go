package gateway

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"k8s.io/utils/clock"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/exchange"
)

const (
	// DefaultMaxRequestSize limits request bodies when neither the route nor
	// the gateway sets a limit.
	DefaultMaxRequestSize int64 = 1024 * 1024

	maxRequestSizeLimit int64 = 100 * 1024 * 1024
)

var validMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// HeartbeatConfig controls interim 102 responses for clients that ask for them.
type HeartbeatConfig struct {
	// Disabled turns heartbeats off even for clients that send
	// "Prefer: processing".
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// IntervalStr between interim responses (default: "20s")
	IntervalStr string `json:"interval,omitempty" yaml:"interval,omitempty"`

	interval time.Duration
}

// TimeoutConfig bounds how long the dispatcher waits for a workflow.
type TimeoutConfig struct {
	// DeadlineStr is the maximum wait; empty means wait for the workflow.
	DeadlineStr string `json:"deadline,omitempty" yaml:"deadline,omitempty"`

	// LateStatus is written when the deadline passes (default: 202)
	LateStatus int `json:"late_status,omitempty" yaml:"late_status,omitempty"`

	// LateCompletion is "attempt" or "suppress"
	LateCompletion string `json:"late_completion,omitempty" yaml:"late_completion,omitempty"`

	deadline time.Duration
}

// RouteMapping binds an HTTP path to the workflow that answers it.
type RouteMapping struct {
	// Path is the HTTP route path (e.g. "/orders")
	Path string `json:"path" yaml:"path"`

	// Methods is a comma-separated allow-list (e.g. "GET,POST")
	Methods string `json:"methods" yaml:"methods"`

	// Workflow names the workflow units are submitted to
	Workflow string `json:"workflow" yaml:"workflow"`

	Heartbeat HeartbeatConfig `json:"heartbeat,omitempty" yaml:"heartbeat,omitempty"`
	Timeout   TimeoutConfig   `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// WarnAfterStr logs a warning for exchanges slower than this
	WarnAfterStr string `json:"warn_after,omitempty" yaml:"warn_after,omitempty"`

	// MaxRequestSize overrides the gateway body limit for this route
	MaxRequestSize int64 `json:"max_request_size,omitempty" yaml:"max_request_size,omitempty"`

	// ResponseHeaders are added to every response on this route
	ResponseHeaders map[string]string `json:"response_headers,omitempty" yaml:"response_headers,omitempty"`

	// Description for operators
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	methods   []string
	warnAfter time.Duration
}

// Validate checks the mapping and parses its durations and methods.
func (r *RouteMapping) Validate() error {
	if r.Path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "RouteMapping", "Validate",
			"path cannot be empty")
	}
	if !strings.HasPrefix(r.Path, "/") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "RouteMapping", "Validate",
			fmt.Sprintf("path %q must start with /", r.Path))
	}
	if r.Workflow == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "RouteMapping", "Validate",
			fmt.Sprintf("route %s: workflow cannot be empty", r.Path))
	}

	methods, err := parseMethods(r.Methods)
	if err != nil {
		return errors.WrapInvalid(err, "RouteMapping", "Validate", fmt.Sprintf("route %s", r.Path))
	}
	r.methods = methods

	if r.Heartbeat.interval, err = parseDuration(r.Heartbeat.IntervalStr, exchange.DefaultHeartbeatInterval); err != nil {
		return errors.WrapInvalid(err, "RouteMapping", "Validate",
			fmt.Sprintf("route %s: invalid heartbeat interval %q", r.Path, r.Heartbeat.IntervalStr))
	}
	if r.Heartbeat.interval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "RouteMapping", "Validate",
			fmt.Sprintf("route %s: heartbeat interval must be positive", r.Path))
	}

	if r.Timeout.deadline, err = parseDuration(r.Timeout.DeadlineStr, 0); err != nil {
		return errors.WrapInvalid(err, "RouteMapping", "Validate",
			fmt.Sprintf("route %s: invalid deadline %q", r.Path, r.Timeout.DeadlineStr))
	}
	if err := r.Policy(nil).Validate(); err != nil {
		return errors.WrapInvalid(err, "RouteMapping", "Validate", fmt.Sprintf("route %s", r.Path))
	}

	if r.warnAfter, err = parseDuration(r.WarnAfterStr, 0); err != nil {
		return errors.WrapInvalid(err, "RouteMapping", "Validate",
			fmt.Sprintf("route %s: invalid warn_after %q", r.Path, r.WarnAfterStr))
	}

	if r.MaxRequestSize < 0 || r.MaxRequestSize > maxRequestSizeLimit {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "RouteMapping", "Validate",
			fmt.Sprintf("route %s: max_request_size must be between 0 and 100MB", r.Path))
	}
	return nil
}

func parseMethods(list string) ([]string, error) {
	seen := map[string]bool{http.MethodOptions: true}
	for _, m := range strings.Split(list, ",") {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		if !validMethods[m] {
			return nil, fmt.Errorf("%w: invalid HTTP method %s", errors.ErrInvalidConfig, m)
		}
		seen[m] = true
	}
	if len(seen) == 1 {
		return nil, fmt.Errorf("%w: methods cannot be empty", errors.ErrInvalidConfig)
	}

	methods := make([]string, 0, len(seen))
	for m := range seen {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods, nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// AllowedMethods returns the accepted methods, sorted, always including OPTIONS.
// It is empty until Validate succeeds.
func (r *RouteMapping) AllowedMethods() []string {
	return append([]string(nil), r.methods...)
}

// AllowHeader returns the value for the Allow response header.
func (r *RouteMapping) AllowHeader() string {
	return strings.Join(r.methods, ", ")
}

// HeartbeatEnabled reports whether clients may receive interim responses.
func (r *RouteMapping) HeartbeatEnabled() bool {
	return !r.Heartbeat.Disabled
}

// HeartbeatInterval returns the parsed heartbeat interval.
func (r *RouteMapping) HeartbeatInterval() time.Duration {
	if r.Heartbeat.interval <= 0 {
		return exchange.DefaultHeartbeatInterval
	}
	return r.Heartbeat.interval
}

// Deadline returns the parsed wait deadline; zero means unbounded.
func (r *RouteMapping) Deadline() time.Duration {
	return r.Timeout.deadline
}

// WarnAfter returns the slow-exchange threshold; zero disables the warning.
func (r *RouteMapping) WarnAfter() time.Duration {
	return r.warnAfter
}

// Policy builds the route's timeout policy on clk.
func (r *RouteMapping) Policy(clk clock.PassiveClock) exchange.TimeoutPolicy {
	return exchange.NewTimeoutPolicy(r.Timeout.deadline, r.Timeout.LateStatus,
		exchange.LateCompletion(strings.ToLower(r.Timeout.LateCompletion)), clk)
}

// Config holds configuration for the HTTP gateway
type Config struct {
	// Prefix is prepended to every route path (e.g. "/api")
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	// Routes maps paths to workflows
	Routes []RouteMapping `json:"routes" yaml:"routes"`

	// EnableCORS enables CORS headers (requires explicit cors_origins)
	EnableCORS bool `json:"enable_cors,omitempty" yaml:"enable_cors,omitempty"`

	// CORSOrigins lists allowed CORS origins. ["*"] is for development only.
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`

	// MaxRequestSize limits request body size in bytes (default: 1MB)
	MaxRequestSize int64 `json:"max_request_size,omitempty" yaml:"max_request_size,omitempty"`

	// HeaderPrefix, when set, copies every request header into unit
	// metadata as prefix+name.
	HeaderPrefix string `json:"header_prefix,omitempty" yaml:"header_prefix,omitempty"`
}

// Validate ensures the gateway configuration is valid and fills defaults.
func (c *Config) Validate() error {
	if len(c.Routes) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"at least one route mapping is required")
	}

	seen := make(map[string]bool, len(c.Routes))
	for i := range c.Routes {
		route := &c.Routes[i]
		if err := route.Validate(); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate",
				fmt.Sprintf("invalid route at index %d", i))
		}
		if seen[route.Path] {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("duplicate route path %s", route.Path))
		}
		seen[route.Path] = true
	}

	if c.MaxRequestSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot be negative")
	}
	if c.MaxRequestSize == 0 {
		c.MaxRequestSize = DefaultMaxRequestSize
	}
	if c.MaxRequestSize > maxRequestSizeLimit {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot exceed 100MB")
	}

	if c.EnableCORS && len(c.CORSOrigins) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"enable_cors requires explicit cors_origins configuration (use [\"*\"] for development only)")
	}
	return nil
}

// RequestLimit returns the body limit for route.
func (c *Config) RequestLimit(route *RouteMapping) int64 {
	if route.MaxRequestSize > 0 {
		return route.MaxRequestSize
	}
	if c.MaxRequestSize > 0 {
		return c.MaxRequestSize
	}
	return DefaultMaxRequestSize
}

// DefaultConfig returns default gateway configuration
func DefaultConfig() Config {
	return Config{
		Routes:         []RouteMapping{},
		CORSOrigins:    []string{},
		MaxRequestSize: DefaultMaxRequestSize,
	}
}
