package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(999).String())
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		invalid   bool
		fatal     bool
	}{
		{name: "nil"},
		{name: "unclassified", err: fmt.Errorf("network timeout")},
		{name: "admission rejected", err: ErrAdmissionRejected, transient: true},
		{name: "circuit open", err: ErrCircuitOpen, transient: true},
		{name: "no connection wrapped by fmt", err: fmt.Errorf("dial: %w", ErrNoConnection), transient: true},
		{name: "client gone", err: ErrClientGone, transient: true},
		{name: "context deadline", err: context.DeadlineExceeded, transient: true},
		{name: "context canceled", err: context.Canceled, transient: true},
		{name: "invalid data", err: ErrInvalidData, invalid: true},
		{name: "workflow not found", err: ErrWorkflowNotFound, invalid: true},
		{name: "invalid config", err: ErrInvalidConfig, fatal: true},
		{name: "blank correlation key", err: ErrCorrelationKeyBlank, fatal: true},
		{name: "explicit class wins over sentinel", err: WrapInvalid(ErrInvalidConfig, "Config", "Validate", "check routes"), invalid: true},
		{name: "outer class wins", err: WrapFatal(WrapTransient(ErrNoConnection, "Client", "Connect", "dial"), "Gateway", "Start", "connect"), fatal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err), "transient")
			assert.Equal(t, tt.invalid, IsInvalid(tt.err), "invalid")
			assert.Equal(t, tt.fatal, IsFatal(tt.err), "fatal")
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(nil))
	assert.Equal(t, ErrorTransient, Classify(fmt.Errorf("unknown error")), "unclassified errors are retried")
	assert.Equal(t, ErrorFatal, Classify(ErrMissingConfig))
	assert.Equal(t, ErrorInvalid, Classify(ErrParsingFailed))
	assert.Equal(t, ErrorFatal, Classify(&ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}))
}

func TestExchangeSentinels(t *testing.T) {
	wrapped := WrapTransient(ErrClientGone, "Dispatcher", "Serve", "await completion")
	assert.True(t, IsClientGone(wrapped), "client gone survives classified wrapping")

	committed := fmt.Errorf("write: %w", ErrAlreadyCommitted)
	assert.True(t, IsAlreadyCommitted(committed))
	assert.False(t, IsAlreadyCommitted(ErrClientGone))
}

func TestClassifiedError(t *testing.T) {
	base := fmt.Errorf("base error")

	ce := &ClassifiedError{Class: ErrorTransient, Err: base, Message: "custom message"}
	assert.Equal(t, "custom message", ce.Error())
	assert.ErrorIs(t, ce, base)

	ce.Message = ""
	assert.Equal(t, "base error", ce.Error())
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "component", "method", "action"))

	err := Wrap(fmt.Errorf("original error"), "Dispatcher", "Serve", "submit workflow")
	assert.EqualError(t, err, "Dispatcher.Serve: submit workflow failed: original error")
}

func TestWrapClassified(t *testing.T) {
	base := fmt.Errorf("original error")

	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{"WrapTransient", WrapTransient, ErrorTransient},
		{"WrapFatal", WrapFatal, ErrorFatal},
		{"WrapInvalid", WrapInvalid, ErrorInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, tt.wrap(nil, "Publisher", "Process", "publish"))

			err := tt.wrap(base, "Publisher", "Process", "publish")
			var ce *ClassifiedError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.class, ce.Class)
			assert.Equal(t, "Publisher", ce.Component)
			assert.Equal(t, "Process", ce.Operation)
			assert.EqualError(t, err, "Publisher.Process: publish failed: original error")
			assert.ErrorIs(t, err, base)
		})
	}
}
