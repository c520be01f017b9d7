package natsclient

import (
	"sync/atomic"
	"time"
)

const initialBackoff = time.Second

// breaker counts connect failures. Every threshold failures it trips and
// doubles the wait before the next probe, up to maxBackoff.
type breaker struct {
	threshold  int32
	maxBackoff time.Duration

	total       atomic.Int32
	round       atomic.Int32
	backoff     atomic.Int64 // time.Duration
	lastFailure atomic.Int64 // unix nanoseconds, zero when none
}

func newBreaker(threshold int32, maxBackoff time.Duration) *breaker {
	b := &breaker{threshold: threshold, maxBackoff: maxBackoff}
	b.reset()
	return b
}

// fail records one failure. trip is true when it completes a round; wait is
// how long the circuit should stay open.
func (b *breaker) fail() (total int32, trip bool, wait time.Duration) {
	total = b.total.Add(1)
	b.lastFailure.Store(time.Now().UnixNano())

	if b.round.Add(1) < b.threshold {
		return total, false, 0
	}
	b.round.Store(0)

	wait = time.Duration(b.backoff.Load())
	b.backoff.Store(int64(min(wait*2, b.maxBackoff)))
	return total, true, wait
}

func (b *breaker) reset() {
	b.total.Store(0)
	b.round.Store(0)
	b.backoff.Store(int64(initialBackoff))
	b.lastFailure.Store(0)
}

func (b *breaker) failures() int32 { return b.total.Load() }

func (b *breaker) currentBackoff() time.Duration { return time.Duration(b.backoff.Load()) }

func (b *breaker) lastFailureTime() time.Time {
	if ns := b.lastFailure.Load(); ns != 0 {
		return time.Unix(0, ns)
	}
	return time.Time{}
}
