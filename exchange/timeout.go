package exchange

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"k8s.io/utils/clock"

	"github.com/c360/exchangegate/errors"
)

// LateCompletion decides what happens to pipeline output that arrives after
// the timeout response was written.
type LateCompletion string

const (
	// LateAttempt lets the pipeline produce; its write is a guarded no-op.
	LateAttempt LateCompletion = "attempt"
	// LateSuppress abandons the exchange so the producer skips entirely.
	LateSuppress LateCompletion = "suppress"
)

// DefaultLateStatus tells the caller the work continues in the background.
const DefaultLateStatus = http.StatusAccepted

// TimeoutPolicy describes how long the dispatcher waits for a pipeline and
// what it writes when the wait runs out. A zero Deadline means wait forever.
type TimeoutPolicy struct {
	Deadline       time.Duration
	LateStatus     int
	LateCompletion LateCompletion

	clock clock.PassiveClock
}

// NewTimeoutPolicy builds a policy, defaulting LateStatus to 202 and
// LateCompletion to LateAttempt.
func NewTimeoutPolicy(deadline time.Duration, lateStatus int, late LateCompletion, clk clock.PassiveClock) TimeoutPolicy {
	if lateStatus == 0 {
		lateStatus = DefaultLateStatus
	}
	if late == "" {
		late = LateAttempt
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return TimeoutPolicy{
		Deadline:       deadline,
		LateStatus:     lateStatus,
		LateCompletion: late,
		clock:          clk,
	}
}

// Validate checks the policy values.
func (p TimeoutPolicy) Validate() error {
	if p.Deadline < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "TimeoutPolicy", "Validate", "deadline cannot be negative")
	}
	if p.LateStatus != 0 && (p.LateStatus < 200 || p.LateStatus > 599) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "TimeoutPolicy", "Validate",
			fmt.Sprintf("late status %d is not a final HTTP status", p.LateStatus))
	}
	switch LateCompletion(strings.ToLower(string(p.LateCompletion))) {
	case "", LateAttempt, LateSuppress:
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "TimeoutPolicy", "Validate",
			fmt.Sprintf("unknown late completion policy %q", p.LateCompletion))
	}
	return nil
}

// Bounded reports whether a deadline is configured.
func (p TimeoutPolicy) Bounded() bool {
	return p.Deadline > 0
}

// Remaining returns how long the dispatcher may still wait on m.
func (p TimeoutPolicy) Remaining(m *Monitor) time.Duration {
	if !p.Bounded() {
		return 0
	}
	left := p.Deadline - p.now().Sub(m.StartTime())
	if left < 0 {
		return 0
	}
	return left
}

// CheckDeadline returns an error wrapping errors.ErrDeadlineExceeded once the
// exchange has run longer than the deadline.
func (p TimeoutPolicy) CheckDeadline(m *Monitor) error {
	if !p.Bounded() {
		return nil
	}
	if elapsed := p.now().Sub(m.StartTime()); elapsed > p.Deadline {
		return errors.WrapTransient(errors.ErrDeadlineExceeded, "TimeoutPolicy", "CheckDeadline",
			fmt.Sprintf("wait %s over deadline %s", elapsed, p.Deadline))
	}
	return nil
}

// OnTimeout commits the late status to the exchange and flushes it.
// With LateSuppress the exchange is left Abandoned so the pipeline skips
// production when it eventually finishes.
func (p TimeoutPolicy) OnTimeout(s *State) error {
	status := p.LateStatus
	if status == 0 {
		status = DefaultLateStatus
	}
	write := func(w http.ResponseWriter) (int, error) {
		return status, WriteResponse(w, status, nil, nil)
	}
	if p.LateCompletion == LateSuppress {
		return s.CommitAbandoned(write)
	}
	return s.Commit(write)
}

func (p TimeoutPolicy) now() time.Time {
	if p.clock == nil {
		return time.Now()
	}
	return p.clock.Now()
}
