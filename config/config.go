package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/exchangegate/correlation"
	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/gateway"
)

// Workflow kinds
const (
	KindStandard = "standard"
	KindPooling  = "pooling"
)

// Service types a workflow can chain
const (
	ServiceRespond = "respond" // write the unit to its exchange
	ServicePublish = "publish" // publish the unit to a NATS subject
	ServiceStatic  = "static"  // set a fixed payload and status
)

const (
	// DefaultListen is the HTTP listen address when none is configured.
	DefaultListen = ":8080"

	defaultEnvPrefix = "EXCHANGEGATE"
)

// Config represents the complete gateway configuration
type Config struct {
	HTTP        HTTPConfig                `json:"http" yaml:"http"`
	Metrics     MetricsConfig             `json:"metrics" yaml:"metrics"`
	NATS        NATSConfig                `json:"nats" yaml:"nats"`
	Correlation CorrelationConfig         `json:"correlation" yaml:"correlation"`
	Workflows   map[string]WorkflowConfig `json:"workflows" yaml:"workflows"`
	Routes      []gateway.RouteMapping    `json:"routes" yaml:"routes"`
	Bridges     []BridgeConfig            `json:"bridges,omitempty" yaml:"bridges,omitempty"`
}

// HTTPConfig configures the listener and the gateway-wide route settings.
type HTTPConfig struct {
	Listen            string   `json:"listen" yaml:"listen"`
	Prefix            string   `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	ReadHeaderTimeout Duration `json:"read_header_timeout,omitempty" yaml:"read_header_timeout,omitempty"`
	ReadTimeout       Duration `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	// WriteTimeout bounds the whole response. Leave it zero for routes that
	// hold exchanges open with heartbeats.
	WriteTimeout    Duration `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty"`
	IdleTimeout     Duration `json:"idle_timeout,omitempty" yaml:"idle_timeout,omitempty"`
	ShutdownTimeout Duration `json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"`
	MaxRequestSize  int64    `json:"max_request_size,omitempty" yaml:"max_request_size,omitempty"`
	HeaderPrefix    string   `json:"header_prefix,omitempty" yaml:"header_prefix,omitempty"`
	EnableCORS      bool     `json:"enable_cors,omitempty" yaml:"enable_cors,omitempty"`
	CORSOrigins     []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// NATSConfig defines NATS connection settings. NATS is optional: with no
// URLs the gateway runs without publish services and bridges.
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty" yaml:"urls,omitempty"`
	Name          string        `json:"name,omitempty" yaml:"name,omitempty"`
	MaxReconnects int           `json:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait Duration      `json:"reconnect_wait" yaml:"reconnect_wait"`
	Username      string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string        `json:"password,omitempty" yaml:"password,omitempty"`
	Token         string        `json:"token,omitempty" yaml:"token,omitempty"`
	TLS           NATSTLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// NATSTLSConfig defines TLS settings for NATS
type NATSTLSConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CertFile string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	CAFile   string `json:"ca_file,omitempty" yaml:"ca_file,omitempty"`
}

// Enabled reports whether a NATS connection is configured.
func (n NATSConfig) Enabled() bool {
	return len(n.URLs) > 0
}

// URL joins the server list the way nats.Connect expects it.
func (n NATSConfig) URL() string {
	return strings.Join(n.URLs, ",")
}

// CorrelationConfig configures the shared correlation cache
type CorrelationConfig struct {
	TTL Duration `json:"ttl" yaml:"ttl"`
	// Capacity bounds the number of parked exchanges; 0 is unbounded.
	Capacity uint64 `json:"capacity,omitempty" yaml:"capacity,omitempty"`
}

// WorkflowConfig describes one named workflow.
type WorkflowConfig struct {
	Kind        string                 `json:"kind" yaml:"kind"`
	Workers     int                    `json:"workers,omitempty" yaml:"workers,omitempty"`
	QueueSize   int                    `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`
	Admission   bool                   `json:"admission,omitempty" yaml:"admission,omitempty"`
	Correlation *CorrelationStepConfig `json:"correlation,omitempty" yaml:"correlation,omitempty"`
	Services    []ServiceConfig        `json:"services" yaml:"services"`
}

// CorrelationStepConfig adds a correlation interceptor to a workflow.
type CorrelationStepConfig struct {
	Mode string `json:"mode" yaml:"mode"`
	Key  string `json:"key,omitempty" yaml:"key,omitempty"`
}

// ServiceConfig describes one service in a workflow chain.
type ServiceConfig struct {
	Type         string   `json:"type" yaml:"type"`
	Subject      string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	Status       int      `json:"status,omitempty" yaml:"status,omitempty"`
	ContentType  string   `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Body         string   `json:"body,omitempty" yaml:"body,omitempty"`
	HeaderKeys   []string `json:"header_keys,omitempty" yaml:"header_keys,omitempty"`
	HeaderPrefix string   `json:"header_prefix,omitempty" yaml:"header_prefix,omitempty"`
}

// BridgeConfig subscribes a workflow to a NATS subject.
type BridgeConfig struct {
	Subject  string `json:"subject" yaml:"subject"`
	Queue    string `json:"queue,omitempty" yaml:"queue,omitempty"`
	Workflow string `json:"workflow" yaml:"workflow"`
}

// Duration is a time.Duration that reads Go duration strings, "d" suffixed
// days, or integer nanoseconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON writes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "90s", "14d", or a number of nanoseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*d = 0
	case float64:
		*d = Duration(int64(v))
	case string:
		if v == "" {
			*d = 0
			return nil
		}
		parsed, err := parseDurationWithDays(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
	return nil
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{
		config: cfg,
	}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically updates the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy of the configuration. Parsed route values are
// not copied; Validate restores them.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}

	return &clone
}

// Gateway returns the route configuration the HTTP gateway is built from.
func (c *Config) Gateway() gateway.Config {
	routes := make([]gateway.RouteMapping, len(c.Routes))
	copy(routes, c.Routes)
	origins := make([]string, len(c.HTTP.CORSOrigins))
	copy(origins, c.HTTP.CORSOrigins)
	return gateway.Config{
		Prefix:         c.HTTP.Prefix,
		Routes:         routes,
		EnableCORS:     c.HTTP.EnableCORS,
		CORSOrigins:    origins,
		MaxRequestSize: c.HTTP.MaxRequestSize,
		HeaderPrefix:   c.HTTP.HeaderPrefix,
	}
}

// WorkflowNames returns the configured workflow names, sorted.
func (c *Config) WorkflowNames() []string {
	names := make([]string, 0, len(c.Workflows))
	for name := range c.Workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the configuration and parses route values in place.
func (c *Config) Validate() error {
	if c.HTTP.Listen == "" {
		return invalid("http.listen is required")
	}
	for name, d := range map[string]Duration{
		"http.read_header_timeout": c.HTTP.ReadHeaderTimeout,
		"http.read_timeout":        c.HTTP.ReadTimeout,
		"http.write_timeout":       c.HTTP.WriteTimeout,
		"http.idle_timeout":        c.HTTP.IdleTimeout,
		"http.shutdown_timeout":    c.HTTP.ShutdownTimeout,
		"nats.reconnect_wait":      c.NATS.ReconnectWait,
	} {
		if d < 0 {
			return invalid(name + " cannot be negative")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return invalid(fmt.Sprintf("metrics.port %d out of range", c.Metrics.Port))
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics.path must start with /")
		}
	}

	if c.Correlation.TTL <= 0 {
		return invalid("correlation.ttl must be positive")
	}

	if len(c.Workflows) == 0 {
		return invalid("at least one workflow is required")
	}
	for _, name := range c.WorkflowNames() {
		if err := c.validateWorkflow(name, c.Workflows[name]); err != nil {
			return err
		}
	}

	gw := c.Gateway()
	if err := gw.Validate(); err != nil {
		return err
	}
	for i := range gw.Routes {
		if _, ok := c.Workflows[gw.Routes[i].Workflow]; !ok {
			return errors.WrapInvalid(errors.ErrWorkflowNotFound, "Config", "Validate",
				fmt.Sprintf("route %s references unknown workflow %q", gw.Routes[i].Path, gw.Routes[i].Workflow))
		}
	}
	copy(c.Routes, gw.Routes)

	for i, b := range c.Bridges {
		if b.Subject == "" {
			return invalid(fmt.Sprintf("bridges[%d].subject is required", i))
		}
		if _, ok := c.Workflows[b.Workflow]; !ok {
			return errors.WrapInvalid(errors.ErrWorkflowNotFound, "Config", "Validate",
				fmt.Sprintf("bridge %s references unknown workflow %q", b.Subject, b.Workflow))
		}
		if !c.NATS.Enabled() {
			return invalid(fmt.Sprintf("bridge %s requires nats.urls", b.Subject))
		}
	}

	return c.validateSecurity()
}

func (c *Config) validateWorkflow(name string, wf WorkflowConfig) error {
	prefix := "workflows." + name
	switch wf.Kind {
	case KindStandard:
	case KindPooling:
		if wf.Workers < 1 {
			return invalid(prefix + ".workers must be at least 1 for a pooling workflow")
		}
		if wf.QueueSize < 0 {
			return invalid(prefix + ".queue_size cannot be negative")
		}
	default:
		return invalid(fmt.Sprintf("%s.kind %q must be %q or %q", prefix, wf.Kind, KindStandard, KindPooling))
	}

	if wf.Correlation != nil {
		mode, err := correlation.ParseMode(wf.Correlation.Mode)
		if err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", prefix+".correlation.mode")
		}
		resolver, err := correlation.NewResolver(wf.Correlation.Key)
		if err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", prefix+".correlation.key")
		}
		if mode == correlation.ModeResponse && resolver.Blank() {
			return invalid(prefix + ".correlation.key is required in response mode")
		}
	}

	if len(wf.Services) == 0 {
		return invalid(prefix + " needs at least one service")
	}
	for i, svc := range wf.Services {
		at := fmt.Sprintf("%s.services[%d]", prefix, i)
		switch svc.Type {
		case ServiceRespond, ServiceStatic:
			if svc.Status != 0 && (svc.Status < 200 || svc.Status > 599) {
				return invalid(fmt.Sprintf("%s.status %d is not a final HTTP status", at, svc.Status))
			}
		case ServicePublish:
			if svc.Subject == "" {
				return invalid(at + ".subject is required for publish")
			}
			if !c.NATS.Enabled() {
				return invalid(at + " publishes but nats.urls is empty")
			}
		default:
			return invalid(fmt.Sprintf("%s.type %q is unknown", at, svc.Type))
		}
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.NATS.Username != "" && c.NATS.Password == "" {
		return invalid("nats.password is required when nats.username is set")
	}
	if c.NATS.Token != "" && c.NATS.Username != "" {
		return invalid("nats.token and nats.username are mutually exclusive")
	}
	if c.NATS.TLS.Enabled {
		if (c.NATS.TLS.CertFile == "") != (c.NATS.TLS.KeyFile == "") {
			return invalid("nats.tls.cert_file and nats.tls.key_file must be set together")
		}
	}
	return nil
}

func invalid(msg string) error {
	return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", msg)
}

// Loader loads configuration with layered merging and environment overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: false,
		envPrefix:  defaultEnvPrefix,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg, err = l.mergeFromMap(cfg, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", path, err)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Defaults returns the configuration every layer is merged onto.
func Defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Listen:            DefaultListen,
			ReadHeaderTimeout: Duration(10 * time.Second),
			IdleTimeout:       Duration(2 * time.Minute),
			ShutdownTimeout:   Duration(30 * time.Second),
			MaxRequestSize:    gateway.DefaultMaxRequestSize,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		NATS: NATSConfig{
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		Correlation: CorrelationConfig{
			TTL: Duration(correlation.DefaultTTL),
		},
		Workflows: map[string]WorkflowConfig{},
		Routes:    []gateway.RouteMapping{},
	}
}

// loadRaw reads a JSON or YAML file into a generic map
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if data, err = yamlToJSON(data); err != nil {
			return nil, err
		}
	}

	if err := checkJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.WrapInvalid(errors.ErrParsingFailed, "Loader", "loadRaw", err.Error())
	}
	return raw, nil
}

// yamlToJSON re-encodes a YAML document as JSON so both formats share the
// merge and decode path.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapInvalid(errors.ErrParsingFailed, "Loader", "yamlToJSON", err.Error())
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	normalized, err := normalizeYAML(doc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

func normalizeYAML(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			n, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprint(k)
			}
			n, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			n, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case time.Time:
		return t.Format(time.RFC3339Nano), nil
	default:
		return v, nil
	}
}

// mergeFromMap merges configuration from a raw map, only overriding fields present in the map
func (l *Loader) mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, errors.WrapInvalid(errors.ErrParsingFailed, "Loader", "mergeFromMap", err.Error())
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence.
// Lists are replaced, not appended.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}

	return result
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days := strings.TrimSuffix(s, "d")
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	env := func(name string) (string, error) {
		key := l.envPrefix + "_" + name
		val := os.Getenv(key)
		if err := checkEnvValue(key, val); err != nil {
			return "", errors.WrapInvalid(errors.ErrInvalidConfig, "Loader", "applyEnvOverrides", err.Error())
		}
		return val, nil
	}

	strs := []struct {
		name   string
		target *string
	}{
		{"HTTP_LISTEN", &cfg.HTTP.Listen},
		{"HTTP_PREFIX", &cfg.HTTP.Prefix},
		{"METRICS_PATH", &cfg.Metrics.Path},
		{"NATS_NAME", &cfg.NATS.Name},
		{"NATS_USERNAME", &cfg.NATS.Username},
		{"NATS_PASSWORD", &cfg.NATS.Password},
		{"NATS_TOKEN", &cfg.NATS.Token},
	}
	for _, s := range strs {
		val, err := env(s.name)
		if err != nil {
			return err
		}
		if val != "" {
			*s.target = val
		}
	}

	if val, err := env("NATS_URLS"); err != nil {
		return err
	} else if val != "" {
		cfg.NATS.URLs = splitList(val)
	}

	if val, err := env("METRICS_ENABLED"); err != nil {
		return err
	} else if val != "" {
		enabled, perr := strconv.ParseBool(val)
		if perr != nil {
			return envError("METRICS_ENABLED", val, perr)
		}
		cfg.Metrics.Enabled = enabled
	}

	if val, err := env("METRICS_PORT"); err != nil {
		return err
	} else if val != "" {
		port, perr := strconv.Atoi(val)
		if perr != nil {
			return envError("METRICS_PORT", val, perr)
		}
		cfg.Metrics.Port = port
	}

	if val, err := env("CORRELATION_TTL"); err != nil {
		return err
	} else if val != "" {
		ttl, perr := parseDurationWithDays(val)
		if perr != nil {
			return envError("CORRELATION_TTL", val, perr)
		}
		cfg.Correlation.TTL = Duration(ttl)
	}

	return nil
}

func envError(name, val string, err error) error {
	return errors.WrapInvalid(errors.ErrInvalidConfig, "Loader", "applyEnvOverrides",
		fmt.Sprintf("%s_%s=%q: %v", defaultEnvPrefix, name, val, err))
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	redacted := c.Clone()
	if redacted.NATS.Password != "" {
		redacted.NATS.Password = "***"
	}
	if redacted.NATS.Token != "" {
		redacted.NATS.Token = "***"
	}
	data, _ := json.MarshalIndent(redacted, "", "  ")
	return string(data)
}
