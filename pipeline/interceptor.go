package pipeline

import (
	"context"

	"github.com/c360/exchangegate/message"
)

// Interceptor observes every unit a workflow runs. Admission control and
// correlation are interceptors.
type Interceptor interface {
	Name() string

	// Start is called when the owning workflow starts, before any unit is
	// submitted. It may inspect the workflow, for example its pool size.
	Start(ctx context.Context, wf Workflow) error
	// Stop is called when the owning workflow stops.
	Stop()

	// WorkflowStart runs before the services. An error aborts the unit.
	WorkflowStart(ctx context.Context, unit *message.Unit) error
	// WorkflowEnd runs after the services, whether they failed or not.
	WorkflowEnd(ctx context.Context, unit *message.Unit)
}
