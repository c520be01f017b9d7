package exchange_test

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/exchange"
	"github.com/c360/exchangegate/testutil"
)

func newTestState(t *testing.T) (*exchange.State, *testutil.Recorder) {
	t.Helper()
	rec := testutil.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	return exchange.NewState("ex-1", rec, req, exchange.NewMonitor(nil)), rec
}

func TestState_CommitOnce(t *testing.T) {
	s, rec := newTestState(t)

	require.NoError(t, s.Respond(http.StatusOK, nil, []byte("first")))
	err := s.Respond(http.StatusInternalServerError, nil, []byte("second"))

	assert.True(t, errors.IsAlreadyCommitted(err))
	assert.Equal(t, http.StatusOK, rec.Code())
	assert.Equal(t, "first", string(rec.Body()))
	assert.Equal(t, exchange.Committed, s.ResponseState())
	assert.Equal(t, http.StatusOK, s.Status())
}

func TestState_ConcurrentCommitters(t *testing.T) {
	s, rec := newTestState(t)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := http.StatusOK
			if i%2 == 0 {
				status = http.StatusServiceUnavailable
			}
			if err := s.RespondError(status, "race"); err == nil {
				wins.Add(1)
			} else if !errors.IsAlreadyCommitted(err) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, s.Status(), rec.Code())
}

func TestState_Abandon(t *testing.T) {
	s, rec := newTestState(t)

	assert.True(t, s.Abandon())
	assert.False(t, s.Abandon())
	assert.True(t, s.Abandoned())

	err := s.Respond(http.StatusOK, nil, nil)
	assert.True(t, errors.IsAlreadyCommitted(err))
	assert.False(t, rec.Written())
}

func TestState_Interim(t *testing.T) {
	s, rec := newTestState(t)

	require.NoError(t, s.Interim(http.StatusProcessing))
	require.NoError(t, s.Interim(http.StatusProcessing))
	require.NoError(t, s.Respond(http.StatusOK, nil, nil))

	err := s.Interim(http.StatusProcessing)
	assert.True(t, errors.IsAlreadyCommitted(err))
	assert.Equal(t, []int{http.StatusProcessing, http.StatusProcessing}, rec.Interim())
	assert.Equal(t, http.StatusOK, rec.Code())
}

func TestState_ClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/orders", nil).WithContext(ctx)
	rec := testutil.NewRecorder()
	s := exchange.NewState("ex-gone", rec, req, exchange.NewMonitor(nil))

	cancel()

	assert.True(t, errors.IsClientGone(s.Interim(http.StatusProcessing)))
	assert.True(t, s.IsOpen())

	err := s.Respond(http.StatusOK, nil, []byte("late"))
	assert.True(t, errors.IsClientGone(err))
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, exchange.Abandoned, s.ResponseState())
	assert.False(t, rec.Written())
}

func TestState_WriteFailure(t *testing.T) {
	s, rec := newTestState(t)
	rec.FailWrites(stderrors.New("broken pipe"))

	err := s.Respond(http.StatusOK, nil, []byte("body"))

	assert.True(t, errors.IsClientGone(err))
	assert.Equal(t, exchange.Committed, s.ResponseState())
	assert.True(t, errors.IsAlreadyCommitted(s.Respond(http.StatusOK, nil, nil)))
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()

	require.NoError(t, exchange.WriteError(rec, http.StatusServiceUnavailable, "Server Busy"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Server Busy","status":503}`, rec.Body.String())
}

func TestResponseState_String(t *testing.T) {
	assert.Equal(t, "open", exchange.Open.String())
	assert.Equal(t, "committed", exchange.Committed.String())
	assert.Equal(t, "abandoned", exchange.Abandoned.String())
	assert.Equal(t, "unknown", exchange.ResponseState(42).String())
}
