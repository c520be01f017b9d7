package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/exchangegate/errors"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
		AddJitter:    false,
	}
}

func TestRetry_Success(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return stderrors.New("transient error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		return errors.ErrNoConnection
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.ErrorIs(t, err, errors.ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, errors.ErrNoConnection)
	assert.Equal(t, 3, attempts)
}

func TestRetry_StopsOnNonTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid", errors.WrapInvalid(stderrors.New("bad subject"), "Publisher", "Publish", "build message")},
		{"fatal", errors.ErrCorrelationKeyBlank},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), fastConfig(5), func() error {
				attempts++
				return tt.err
			})

			assert.Equal(t, 1, attempts)
			assert.ErrorIs(t, err, tt.err)
			assert.NotErrorIs(t, err, errors.ErrMaxRetriesExceeded)
		})
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		return stderrors.New("error")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.Less(t, attempts, 5)
}

func TestRetry_WithResult(t *testing.T) {
	attempts := 0
	result, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", stderrors.New("not ready")
		}
		return "success", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, 3, attempts)
}

func TestRetry_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.True(t, errors.IsInvalid(Config{InitialDelay: -1}.Validate()))
	assert.True(t, errors.IsInvalid(Config{MaxDelay: -1}.Validate()))
	assert.True(t, errors.IsInvalid(Config{Multiplier: -1}.Validate()))
	assert.True(t, errors.IsInvalid(Config{InitialDelay: time.Second, MaxDelay: time.Millisecond}.Validate()))

	err := Do(context.Background(), Config{InitialDelay: -1}, func() error { return nil })
	assert.True(t, errors.IsInvalid(err))
}

func TestRetry_Presets(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
	assert.True(t, cfg.AddJitter)

	quick := Quick()
	assert.Equal(t, 10, quick.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, quick.InitialDelay)
	assert.Equal(t, 1*time.Second, quick.MaxDelay)
}

func TestRetry_ZeroAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{}, func() error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}
