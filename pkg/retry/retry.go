// Package retry provides exponential backoff retry for transient gateway failures
package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/c360/exchangegate/errors"
)

var (
	// Thread-safe random source for jitter
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Config provides retry configuration
type Config struct {
	MaxAttempts  int           `json:"max_attempts" yaml:"max_attempts"`   // 0 = run once
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"` // Initial delay between attempts
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`         // Maximum delay between attempts
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`       // Backoff multiplier (typically 2.0)
	AddJitter    bool          `json:"add_jitter" yaml:"add_jitter"`       // Add up to 25% randomness
}

// DefaultConfig returns sensible defaults for retry operations
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Quick returns a config for fast retries, used while connecting at startup
func Quick() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   1.5,
		AddJitter:    true,
	}
}

// Validate checks the configuration for impossible values
func (c Config) Validate() error {
	if c.InitialDelay < 0 {
		return errors.WrapInvalid(stderrors.New("InitialDelay cannot be negative"), "retry", "Validate", "check delay")
	}
	if c.MaxDelay < 0 {
		return errors.WrapInvalid(stderrors.New("MaxDelay cannot be negative"), "retry", "Validate", "check delay")
	}
	if c.Multiplier < 0 {
		return errors.WrapInvalid(stderrors.New("Multiplier cannot be negative"), "retry", "Validate", "check multiplier")
	}
	if c.MaxDelay > 0 && c.InitialDelay > 0 && c.MaxDelay < c.InitialDelay {
		return errors.WrapInvalid(stderrors.New("MaxDelay must be >= InitialDelay"), "retry", "Validate", "check delay")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Multiplier > 1000 {
		c.Multiplier = 1000
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	return c
}

// Do executes fn with exponential backoff. Only transient errors are retried:
// an error classified Invalid or Fatal is returned immediately.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.withDefaults()
	if cfg.MaxDelay < cfg.InitialDelay {
		return errors.WrapInvalid(stderrors.New("MaxDelay must be >= InitialDelay"), "retry", "Do", "check delay")
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Classify(err) != errors.ErrorTransient {
			return err
		}

		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt, ctx.Err())
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		sleepDuration := delay
		if cfg.AddJitter && delay >= 4 {
			randMu.Lock()
			jitter := time.Duration(randSource.Int63n(int64(delay / 4)))
			randMu.Unlock()
			sleepDuration = delay + jitter
		}

		timer := time.NewTimer(sleepDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}

		nextDelay := float64(delay) * cfg.Multiplier
		if nextDelay > float64(cfg.MaxDelay) {
			delay = cfg.MaxDelay
		} else {
			delay = time.Duration(nextDelay)
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w: %w", cfg.MaxAttempts, errors.ErrMaxRetriesExceeded, lastErr)
}

// DoWithResult executes fn with retry and returns both result and error
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}
