package pipeline

import (
	"context"
	"fmt"

	"github.com/c360/exchangegate/message"
)

// Service transforms a unit of work.
type Service interface {
	Name() string
	Process(ctx context.Context, unit *message.Unit) error
}

// ServiceFunc adapts a function to the Service interface.
type ServiceFunc struct {
	name string
	fn   func(ctx context.Context, unit *message.Unit) error
}

// NewServiceFunc wraps fn as a Service called name.
func NewServiceFunc(name string, fn func(ctx context.Context, unit *message.Unit) error) *ServiceFunc {
	return &ServiceFunc{name: name, fn: fn}
}

// Name returns the service name.
func (s *ServiceFunc) Name() string { return s.name }

// Process calls the wrapped function.
func (s *ServiceFunc) Process(ctx context.Context, unit *message.Unit) error {
	return s.fn(ctx, unit)
}

// ServiceList runs services in order and stops at the first error.
type ServiceList []Service

// Process runs every service against unit.
func (l ServiceList) Process(ctx context.Context, unit *message.Unit) error {
	for _, svc := range l {
		if err := svc.Process(ctx, unit); err != nil {
			return fmt.Errorf("service %s: %w", svc.Name(), err)
		}
	}
	return nil
}
