package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/c360/exchangegate/errors"
)

// Registry holds the named workflows of a process.
type Registry struct {
	workflows *xsync.Map[string, Workflow]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{workflows: xsync.NewMap[string, Workflow]()}
}

// Register adds wf. Names must be unique.
func (r *Registry) Register(wf Workflow) error {
	if wf.Name() == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "workflow name is empty")
	}
	if _, loaded := r.workflows.LoadOrStore(wf.Name(), wf); loaded {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register",
			fmt.Sprintf("workflow %q already registered", wf.Name()))
	}
	return nil
}

// Get returns the workflow called name.
func (r *Registry) Get(name string) (Workflow, error) {
	wf, ok := r.workflows.Load(name)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrWorkflowNotFound, "Registry", "Get", name)
	}
	return wf, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.workflows.Size())
	r.workflows.Range(func(name string, _ Workflow) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// StartAll starts every workflow in name order. If one fails, the ones
// already started are stopped again.
func (r *Registry) StartAll(ctx context.Context) error {
	names := r.Names()
	for i, name := range names {
		wf, _ := r.workflows.Load(name)
		if err := wf.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				started, _ := r.workflows.Load(names[j])
				_ = started.Stop(time.Second)
			}
			return errors.Wrap(err, "Registry", "StartAll", fmt.Sprintf("start workflow %s", name))
		}
	}
	return nil
}

// StopAll stops every workflow, each with the given timeout, and joins the
// errors.
func (r *Registry) StopAll(timeout time.Duration) error {
	var errs []error
	names := r.Names()
	for i := len(names) - 1; i >= 0; i-- {
		wf, _ := r.workflows.Load(names[i])
		if err := wf.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("stop workflow %s: %w", names[i], err))
		}
	}
	return stderrors.Join(errs...)
}
