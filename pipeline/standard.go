package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/message"
)

// Standard runs each unit to completion on the submitting goroutine.
type Standard struct {
	*runner

	mu      sync.RWMutex
	running bool
}

// NewStandard creates a synchronous workflow.
func NewStandard(name string, opts ...Option) *Standard {
	return &Standard{runner: newRunner(name, opts)}
}

// Name returns the workflow name.
func (s *Standard) Name() string { return s.name }

// PoolSize is always 1.
func (s *Standard) PoolSize() int { return 1 }

// Start starts the interceptors.
func (s *Standard) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Standard", "Start", s.name)
	}
	if err := s.startInterceptors(ctx, s); err != nil {
		return err
	}
	s.running = true
	s.logger.Info("Workflow started", "kind", KindStandard)
	return nil
}

// Stop stops the interceptors. Units already inside Submit finish normally.
func (s *Standard) Stop(_ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	s.stopInterceptors()
	s.logger.Info("Workflow stopped", "kind", KindStandard)
	return nil
}

// Submit runs unit inline. Services see a context that is not cancelled when
// the client disconnects; an HTTP caller going away does not abort the work.
// The submission is async only when an interceptor parked the exchange.
func (s *Standard) Submit(ctx context.Context, unit *message.Unit) (Submission, error) {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		return Submission{}, errors.WrapTransient(errors.ErrNotStarted, "Standard", "Submit", s.name)
	}

	n, proceed := s.begin(ctx, unit)
	if proceed {
		s.process(context.WithoutCancel(ctx), unit)
	}
	s.end(context.WithoutCancel(ctx), unit, n)
	return Submission{Async: unit.Parked()}, unit.Err()
}
