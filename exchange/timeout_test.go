package exchange_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/exchange"
)

func TestTimeoutPolicy_Defaults(t *testing.T) {
	p := exchange.NewTimeoutPolicy(0, 0, "", nil)

	assert.Equal(t, http.StatusAccepted, p.LateStatus)
	assert.Equal(t, exchange.LateAttempt, p.LateCompletion)
	assert.False(t, p.Bounded())
	assert.NoError(t, p.CheckDeadline(exchange.NewMonitor(nil)))
}

func TestTimeoutPolicy_CheckDeadline(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	p := exchange.NewTimeoutPolicy(10*time.Second, 0, exchange.LateAttempt, clk)
	m := exchange.NewMonitor(clk)

	clk.Step(4 * time.Second)
	assert.NoError(t, p.CheckDeadline(m))
	assert.Equal(t, 6*time.Second, p.Remaining(m))

	clk.Step(7 * time.Second)
	err := p.CheckDeadline(m)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDeadlineExceeded)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, time.Duration(0), p.Remaining(m))
}

func TestTimeoutPolicy_OnTimeoutAttempt(t *testing.T) {
	s, rec := newTestState(t)
	p := exchange.NewTimeoutPolicy(time.Second, http.StatusAccepted, exchange.LateAttempt, nil)

	require.NoError(t, p.OnTimeout(s))

	assert.Equal(t, http.StatusAccepted, rec.Code())
	assert.Equal(t, 1, rec.Flushes())
	assert.Equal(t, exchange.Committed, s.ResponseState())

	// the pipeline finishing late must not reach the client
	err := s.Respond(http.StatusOK, nil, []byte("late"))
	assert.True(t, errors.IsAlreadyCommitted(err))
	assert.Equal(t, http.StatusAccepted, rec.Code())
	assert.Empty(t, rec.Body())
}

func TestTimeoutPolicy_OnTimeoutSuppress(t *testing.T) {
	s, rec := newTestState(t)
	p := exchange.NewTimeoutPolicy(time.Second, http.StatusGatewayTimeout, exchange.LateSuppress, nil)

	require.NoError(t, p.OnTimeout(s))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code())
	assert.True(t, s.Abandoned())
}

func TestTimeoutPolicy_OnTimeoutAfterCompletion(t *testing.T) {
	s, rec := newTestState(t)
	require.NoError(t, s.Respond(http.StatusOK, nil, nil))

	err := exchange.NewTimeoutPolicy(time.Second, 0, "", nil).OnTimeout(s)

	assert.True(t, errors.IsAlreadyCommitted(err))
	assert.Equal(t, http.StatusOK, rec.Code())
}

func TestTimeoutPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  exchange.TimeoutPolicy
		wantErr bool
	}{
		{"zero", exchange.TimeoutPolicy{}, false},
		{"bounded", exchange.TimeoutPolicy{Deadline: time.Minute, LateStatus: 202, LateCompletion: exchange.LateSuppress}, false},
		{"negative deadline", exchange.TimeoutPolicy{Deadline: -time.Second}, true},
		{"interim late status", exchange.TimeoutPolicy{LateStatus: 102}, true},
		{"unknown policy", exchange.TimeoutPolicy{LateCompletion: "ignore"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.True(t, errors.IsInvalid(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
