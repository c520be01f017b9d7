package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/metric"
)

// ClientOption configures a Client. NewClient fails with an invalid error
// when an option rejects its value.
type ClientOption func(*Client) error

func optionError(option, format string, args ...any) error {
	return errors.WrapInvalid(errors.ErrInvalidConfig, "Client", option, fmt.Sprintf(format, args...))
}

func positive(option string, d time.Duration, set func(time.Duration)) ClientOption {
	return func(*Client) error {
		if d <= 0 {
			return optionError(option, "duration must be positive, got %v", d)
		}
		set(d)
		return nil
	}
}

// WithMaxReconnects caps reconnect attempts; -1 retries forever.
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) error {
		if n < -1 {
			return optionError("WithMaxReconnects", "max reconnects must be -1 or more, got %d", n)
		}
		c.maxReconnects = n
		return nil
	}
}

// WithReconnectWait sets the pause between reconnect attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		return positive("WithReconnectWait", d, func(d time.Duration) { c.reconnectWait = d })(c)
	}
}

// WithTimeout bounds a single connection attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		return positive("WithTimeout", d, func(d time.Duration) { c.timeout = d })(c)
	}
}

// WithDrainTimeout bounds how long Close waits for in-flight messages.
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		return positive("WithDrainTimeout", d, func(d time.Duration) { c.drainTimeout = d })(c)
	}
}

// WithHealthInterval sets how often connection health is sampled. Zero
// disables sampling; disconnect and reconnect events still report changes.
func WithHealthInterval(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < 0 {
			return optionError("WithHealthInterval", "interval must not be negative, got %v", d)
		}
		c.healthInterval = d
		return nil
	}
}

// WithCircuitBreakerThreshold sets how many consecutive connect failures
// open the circuit.
func WithCircuitBreakerThreshold(threshold int32) ClientOption {
	return func(c *Client) error {
		if threshold < 1 {
			return optionError("WithCircuitBreakerThreshold", "threshold must be at least 1, got %d", threshold)
		}
		c.circuitThreshold = threshold
		return nil
	}
}

// WithMaxBackoff caps the circuit breaker backoff. It cannot be below the
// one second starting backoff.
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < time.Second {
			return optionError("WithMaxBackoff", "max backoff must be at least 1s, got %v", d)
		}
		c.maxBackoff = d
		return nil
	}
}

// WithCredentials authenticates with a username and password.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		if username == "" {
			return optionError("WithCredentials", "username is required")
		}
		c.username = username
		c.password = password
		return nil
	}
}

// WithToken authenticates with a token.
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		if token == "" {
			return optionError("WithToken", "token is required")
		}
		c.token = token
		return nil
	}
}

// WithTLS enables TLS. The client certificate and key are optional but must
// be given together; caFile adds a trusted root.
func WithTLS(certFile, keyFile, caFile string) ClientOption {
	return func(c *Client) error {
		if (certFile == "") != (keyFile == "") {
			return optionError("WithTLS", "cert file and key file must be set together")
		}
		c.tlsEnabled = true
		c.tlsCertFile = certFile
		c.tlsKeyFile = keyFile
		c.tlsCAFile = caFile
		return nil
	}
}

// WithName sets the connection name reported to the server.
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithLogger sets the structured logger for the client
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithHealthChangeCallback is called with false on disconnect and true on
// reconnect or a recovered health sample.
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(c *Client) error {
		c.onHealthChange = fn
		return nil
	}
}

// WithMetrics reports connection state, reconnects and circuit breaker
// state to the core metrics.
func WithMetrics(metrics *metric.Metrics) ClientOption {
	return func(c *Client) error {
		c.metrics = metrics
		return nil
	}
}
