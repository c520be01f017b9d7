package worker

import "errors"

// Lifecycle errors. A pool moves between stopped and running any number of
// times; these report a call made in the wrong state.
var (
	ErrPoolNotStarted     = errors.New("worker: pool not started")
	ErrPoolAlreadyStarted = errors.New("worker: pool already running")
	ErrPoolStopped        = errors.New("worker: pool stopped")
	ErrPoolRunning        = errors.New("worker: pool must be stopped to resize")
	ErrStopTimeout        = errors.New("worker: workers still busy at stop deadline")
)

// ErrQueueFull is returned by Submit instead of blocking the caller.
var ErrQueueFull = errors.New("worker: queue full")

// Construction errors.
var (
	ErrNilProcessor   = errors.New("worker: nil processor")
	ErrInvalidWorkers = errors.New("worker: worker count must be positive")
)
