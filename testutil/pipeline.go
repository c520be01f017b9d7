package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360/exchangegate/message"
	"github.com/c360/exchangegate/pipeline"
)

// Gate blocks every unit that reaches its service until the test opens it.
type Gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// NewGate creates a closed gate.
func NewGate() *Gate {
	return &Gate{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

// Service returns a pipeline stage that waits on the gate.
func (g *Gate) Service() pipeline.Service {
	return pipeline.NewServiceFunc("gate", func(context.Context, *message.Unit) error {
		g.entered <- struct{}{}
		<-g.release
		return nil
	})
}

// Open releases every waiting and future unit. Safe to call more than once.
func (g *Gate) Open() { g.once.Do(func() { close(g.release) }) }

// WaitEntered fails the test unless a unit reaches the gate within two seconds.
func (g *Gate) WaitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline not entered")
	}
}

// Payload returns a stage that replaces the unit payload with body.
func Payload(body string) pipeline.Service {
	return pipeline.NewServiceFunc("payload", func(_ context.Context, unit *message.Unit) error {
		unit.SetPayload([]byte(body))
		return nil
	})
}

// CountingService counts the units it sees and fails with Err when set.
type CountingService struct {
	Err   error
	calls atomic.Int64
}

// Name implements pipeline.Service.
func (c *CountingService) Name() string { return "counting" }

// Process implements pipeline.Service.
func (c *CountingService) Process(context.Context, *message.Unit) error {
	c.calls.Add(1)
	return c.Err
}

// Calls returns how many units were processed.
func (c *CountingService) Calls() int64 { return c.calls.Load() }

// StartWorkflow starts wf and stops it when the test ends.
func StartWorkflow(t *testing.T, wf pipeline.Workflow) pipeline.Workflow {
	t.Helper()
	if err := wf.Start(context.Background()); err != nil {
		t.Fatalf("start workflow %s: %v", wf.Name(), err)
	}
	t.Cleanup(func() { _ = wf.Stop(2 * time.Second) })
	return wf
}
