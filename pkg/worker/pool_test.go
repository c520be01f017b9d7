package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/exchangegate/metric"
)

type testWork struct {
	id   int
	fail bool
}

func TestNewPool(t *testing.T) {
	processor := func(_ context.Context, _ testWork) error { return nil }

	pool := NewPool(5, 100, processor)
	if pool.Workers() != 5 {
		t.Errorf("Expected 5 workers, got %d", pool.Workers())
	}
	if pool.queueSize != 100 {
		t.Errorf("Expected queue size 100, got %d", pool.queueSize)
	}

	pool = NewPool(0, 0, processor)
	if pool.Workers() != 10 {
		t.Errorf("Expected default 10 workers, got %d", pool.Workers())
	}
	if pool.queueSize != 1000 {
		t.Errorf("Expected default queue size 1000, got %d", pool.queueSize)
	}
}

func TestNewPool_NilProcessor(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected panic for nil processor")
		}
	}()
	NewPool[testWork](5, 100, nil)
}

func TestPool_ProcessesAllWork(t *testing.T) {
	var processed, failed atomic.Int64
	processor := func(_ context.Context, w testWork) error {
		if w.fail {
			failed.Add(1)
			return errors.New("boom")
		}
		processed.Add(1)
		return nil
	}

	pool := NewPool(4, 100, processor)
	require.NoError(t, pool.Start(context.Background()))

	for i := 0; i < 50; i++ {
		require.NoError(t, pool.Submit(testWork{id: i, fail: i%10 == 0}))
	}
	require.NoError(t, pool.Stop(5*time.Second))

	assert.Equal(t, int64(45), processed.Load())
	assert.Equal(t, int64(5), failed.Load())

	stats := pool.Stats()
	assert.Equal(t, int64(50), stats.Submitted)
	assert.Equal(t, int64(50), stats.Processed)
	assert.Equal(t, int64(5), stats.Failed)
	assert.Zero(t, stats.Busy)
}

func TestPool_SentinelErrors(t *testing.T) {
	processor := func(_ context.Context, _ testWork) error { return nil }

	tests := []struct {
		name string
		run  func(p *Pool[testWork]) error
		want error
	}{
		{
			name: "submit before start",
			run:  func(p *Pool[testWork]) error { return p.Submit(testWork{}) },
			want: ErrPoolNotStarted,
		},
		{
			name: "start twice",
			run: func(p *Pool[testWork]) error {
				if err := p.Start(context.Background()); err != nil {
					return err
				}
				defer p.Stop(time.Second)
				return p.Start(context.Background())
			},
			want: ErrPoolAlreadyStarted,
		},
		{
			name: "submit after stop",
			run: func(p *Pool[testWork]) error {
				if err := p.Start(context.Background()); err != nil {
					return err
				}
				if err := p.Stop(time.Second); err != nil {
					return err
				}
				return p.Submit(testWork{})
			},
			want: ErrPoolStopped,
		},
		{
			name: "resize while running",
			run: func(p *Pool[testWork]) error {
				if err := p.Start(context.Background()); err != nil {
					return err
				}
				defer p.Stop(time.Second)
				return p.Resize(3)
			},
			want: ErrPoolRunning,
		},
		{
			name: "resize to zero",
			run:  func(p *Pool[testWork]) error { return p.Resize(0) },
			want: ErrInvalidWorkers,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(NewPool(2, 10, processor))
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	processor := func(_ context.Context, _ testWork) error {
		started <- struct{}{}
		<-release
		return nil
	}

	pool := NewPool(1, 1, processor)
	require.NoError(t, pool.Start(context.Background()))
	defer func() {
		close(release)
		_ = pool.Stop(time.Second)
	}()

	require.NoError(t, pool.Submit(testWork{id: 1}))
	<-started // worker holds item 1, queue is empty again
	require.NoError(t, pool.Submit(testWork{id: 2}))

	err := pool.Submit(testWork{id: 3})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Expected ErrQueueFull, got %v", err)
	}
	assert.Equal(t, int64(1), pool.Stats().Dropped)
}

func TestPool_RestartAfterStop(t *testing.T) {
	var processed atomic.Int64
	pool := NewPool(1, 10, func(_ context.Context, _ testWork) error {
		processed.Add(1)
		return nil
	})

	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(testWork{id: 1}))
	require.NoError(t, pool.Stop(time.Second))
	assert.False(t, pool.Running())

	require.NoError(t, pool.Resize(3))
	require.NoError(t, pool.Start(context.Background()))
	assert.True(t, pool.Running())
	assert.Equal(t, 3, pool.Workers())

	require.NoError(t, pool.Submit(testWork{id: 2}))
	require.NoError(t, pool.Stop(time.Second))
	assert.Equal(t, int64(2), processed.Load())
}

func TestPool_StopTimeout(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(_ context.Context, _ testWork) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(testWork{id: 1}))

	err := pool.Stop(10 * time.Millisecond)
	if !errors.Is(err, ErrStopTimeout) {
		t.Errorf("Expected ErrStopTimeout, got %v", err)
	}
	// a second Stop must not close the queue again
	assert.NoError(t, pool.Stop(10*time.Millisecond))
	close(release)
}

func TestPool_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	pool := NewPool(1, 10, func(ctx context.Context, _ testWork) error {
		defer wg.Done()
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, pool.Start(ctx))
	require.NoError(t, pool.Submit(testWork{id: 1}))

	cancel()
	wg.Wait()
	assert.NoError(t, pool.Stop(time.Second))
	assert.Equal(t, int64(1), pool.Stats().Failed)
}

func TestPool_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pool := NewPool(2, 10, func(_ context.Context, _ testWork) error { return nil },
		WithMetricsRegistry[testWork](registry, "orders"))
	require.NotNil(t, pool.metrics)

	require.NoError(t, pool.Start(context.Background()))
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Submit(testWork{id: i}))
	}
	require.NoError(t, pool.Stop(time.Second))

	assert.Equal(t, float64(3), testutil.ToFloat64(pool.metrics.submitted))
	assert.Equal(t, float64(3), testutil.ToFloat64(pool.metrics.processed))

	// A second pool with the same name cannot register and runs without metrics.
	dup := NewPool(1, 1, func(_ context.Context, _ testWork) error { return nil },
		WithMetricsRegistry[testWork](registry, "orders"))
	assert.Nil(t, dup.metrics)
}
