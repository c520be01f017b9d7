package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/pipeline"
)

func TestRegistry(t *testing.T) {
	r := pipeline.NewRegistry()
	require.NoError(t, r.Register(pipeline.NewStandard("b")))
	require.NoError(t, r.Register(pipeline.NewPooling("a", 1, 1)))

	err := r.Register(pipeline.NewStandard("a"))
	require.ErrorIs(t, err, errors.ErrInvalidConfig)
	require.ErrorIs(t, r.Register(pipeline.NewStandard("")), errors.ErrInvalidConfig)

	assert.Equal(t, []string{"a", "b"}, r.Names())

	wf, err := r.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "b", wf.Name())

	_, err = r.Get("missing")
	require.ErrorIs(t, err, errors.ErrWorkflowNotFound)
}

func TestRegistry_StartStopAll(t *testing.T) {
	r := pipeline.NewRegistry()
	a := pipeline.NewStandard("a")
	b := pipeline.NewPooling("b", 1, 1)
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	require.NoError(t, r.StartAll(context.Background()))
	_, err := a.Submit(context.Background(), newUnit(nil, ""))
	require.NoError(t, err)

	require.NoError(t, r.StopAll(time.Second))
	_, err = b.Submit(context.Background(), newUnit(nil, ""))
	require.ErrorIs(t, err, errors.ErrNotStarted)
}

func TestRegistry_StartAllRollsBack(t *testing.T) {
	r := pipeline.NewRegistry()
	a := pipeline.NewStandard("a")
	b := pipeline.NewStandard("b")
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))
	require.NoError(t, b.Start(context.Background()))

	err := r.StartAll(context.Background())
	require.ErrorIs(t, err, errors.ErrAlreadyStarted)

	_, err = a.Submit(context.Background(), newUnit(nil, ""))
	require.ErrorIs(t, err, errors.ErrNotStarted)
}
