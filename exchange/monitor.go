package exchange

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Monitor records when an exchange started and finished and lets the
// dispatcher block until it finishes.
//
// SignalComplete may be called from any goroutine any number of times; only
// the first call has an effect.
type Monitor struct {
	clock clock.PassiveClock
	start time.Time

	once sync.Once
	done chan struct{}

	mu  sync.RWMutex
	end time.Time
}

// NewMonitor starts a monitor using clk as its time source. A nil clock
// means the real clock.
func NewMonitor(clk clock.PassiveClock) *Monitor {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Monitor{
		clock: clk,
		start: clk.Now(),
		done:  make(chan struct{}),
	}
}

// SignalComplete marks the exchange finished and wakes all waiters.
// It reports whether this call performed the transition.
func (m *Monitor) SignalComplete() bool {
	signalled := false
	m.once.Do(func() {
		m.mu.Lock()
		m.end = m.clock.Now()
		m.mu.Unlock()
		close(m.done)
		signalled = true
	})
	return signalled
}

// IsComplete is a non-blocking completion check.
func (m *Monitor) IsComplete() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Done is closed once SignalComplete has been called.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// StartTime returns when the exchange began.
func (m *Monitor) StartTime() time.Time {
	return m.start
}

// EndTime returns when the exchange completed. The second value is false
// while the exchange is still running.
func (m *Monitor) EndTime() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.end, !m.end.IsZero()
}

// Elapsed returns the run time so far, or the total run time once complete.
func (m *Monitor) Elapsed() time.Duration {
	if end, ok := m.EndTime(); ok {
		return end.Sub(m.start)
	}
	return m.clock.Since(m.start)
}
