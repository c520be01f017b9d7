package correlation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/message"
	"github.com/c360/exchangegate/pipeline"
)

// Mode selects whether an Interceptor parks or resumes exchanges.
type Mode string

const (
	// ModeRequest stores the unit's exchange and parks the unit.
	ModeRequest Mode = "request"
	// ModeResponse takes a parked exchange and attaches it to the unit.
	ModeResponse Mode = "response"
)

// ParseMode accepts "request" or "response" in any case.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeRequest:
		return ModeRequest, nil
	case ModeResponse:
		return ModeResponse, nil
	default:
		return "", errors.WrapInvalid(errors.ErrInvalidConfig, "correlation", "ParseMode",
			fmt.Sprintf("unknown correlation mode %q", s))
	}
}

// Interceptor connects a workflow to a Cache.
type Interceptor struct {
	cache    *Cache
	mode     Mode
	resolver *Resolver
	logger   *slog.Logger
}

// InterceptorOption configures an Interceptor.
type InterceptorOption func(*Interceptor)

// WithInterceptorLogger sets the logger.
func WithInterceptorLogger(logger *slog.Logger) InterceptorOption {
	return func(i *Interceptor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewInterceptor creates an interceptor for mode using the key expression.
// A RESPONSE interceptor needs an expression: the response unit's own id
// never matches the request it answers.
func NewInterceptor(cache *Cache, mode Mode, expression string, opts ...InterceptorOption) (*Interceptor, error) {
	if cache == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "correlation", "NewInterceptor", "nil cache")
	}
	if mode != ModeRequest && mode != ModeResponse {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "correlation", "NewInterceptor",
			fmt.Sprintf("unknown correlation mode %q", mode))
	}
	resolver, err := NewResolver(expression)
	if err != nil {
		return nil, err
	}
	if mode == ModeResponse && resolver.Blank() {
		return nil, errors.WrapFatal(errors.ErrCorrelationKeyBlank, "correlation", "NewInterceptor",
			"response mode needs a key expression")
	}

	i := &Interceptor{
		cache:    cache,
		mode:     mode,
		resolver: resolver,
		logger:   slog.Default().With("component", "correlation", "mode", string(mode)),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Name returns the interceptor name.
func (i *Interceptor) Name() string { return "correlation-" + string(i.mode) }

// Mode returns the interceptor mode.
func (i *Interceptor) Mode() Mode { return i.mode }

// Start is a no-op; the cache lifecycle belongs to the owning service.
func (i *Interceptor) Start(context.Context, pipeline.Workflow) error { return nil }

// Stop is a no-op.
func (i *Interceptor) Stop() {}

// WorkflowStart parks (REQUEST) or resumes (RESPONSE) the unit's exchange.
func (i *Interceptor) WorkflowStart(_ context.Context, unit *message.Unit) error {
	if i.mode == ModeRequest {
		return i.park(unit)
	}
	return i.resume(unit)
}

// WorkflowEnd un-parks a REQUEST unit that failed or was skipped so the
// dispatcher stops waiting for a reply that will never come.
func (i *Interceptor) WorkflowEnd(_ context.Context, unit *message.Unit) {
	if i.mode != ModeRequest || !unit.Parked() {
		return
	}
	if unit.Err() == nil && !unit.SkipProduction() {
		return
	}

	key := unit.Get(message.KeyCorrelationID)
	i.cache.Discard(key, unit.Exchange())
	unit.Unpark()
	i.logger.Debug("Exchange un-parked after failure", "unit", unit.ID(), "key", key)
}

func (i *Interceptor) park(unit *message.Unit) error {
	state := unit.Exchange()
	if state == nil || unit.SkipProduction() {
		return nil
	}

	key := i.resolver.Resolve(unit)
	if key == "" {
		key = unit.ID()
		i.logger.Debug("Key expression resolved blank, using unit id",
			"expression", i.resolver.Expression(), "unit", unit.ID())
	}
	if err := i.cache.Put(key, state); err != nil {
		return err
	}
	unit.Set(message.KeyCorrelationID, key)
	unit.MarkParked()
	i.logger.Debug("Exchange parked", "unit", unit.ID(), "exchange", state.ID(), "key", key)
	return nil
}

func (i *Interceptor) resume(unit *message.Unit) error {
	key := i.resolver.Resolve(unit)
	if key == "" {
		return errors.WrapFatal(errors.ErrCorrelationKeyBlank, "correlation", "WorkflowStart",
			fmt.Sprintf("expression %q for unit %s", i.resolver.Expression(), unit.ID()))
	}

	state, ok := i.cache.Take(key)
	if !ok {
		i.logger.Debug("No parked exchange", "unit", unit.ID(), "key", key)
		return nil
	}
	unit.AttachExchange(state)
	unit.Set(message.KeyCorrelationID, key)
	i.logger.Debug("Exchange resumed", "unit", unit.ID(), "exchange", state.ID(), "key", key)
	return nil
}
