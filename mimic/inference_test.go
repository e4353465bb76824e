package mimic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-mimic/mimic/config"
)

func trainedModel(t *testing.T) *TrainedModel {
	t.Helper()
	model, err := newTestTrainer().Train(context.Background(), recordedCorpus(t, 8))
	require.NoError(t, err)
	return model
}

func TestInferenceLoopStartRequiresModel(t *testing.T) {
	w, err := NewFeatureWindow(testWindow, testCoefficients)
	require.NoError(t, err)
	loop := NewInferenceLoop(w, nil, config.DegenerateSkip, nil, nil)

	assert.ErrorIs(t, loop.Start(nil), ErrNoModel)
	assert.False(t, loop.Active())
}

func TestInferenceLoopRejectsOtherShapes(t *testing.T) {
	w, err := NewFeatureWindow(testWindow+1, testCoefficients)
	require.NoError(t, err)
	loop := NewInferenceLoop(w, nil, config.DegenerateSkip, nil, nil)

	assert.ErrorIs(t, loop.Start(trainedModel(t)), ErrShapeMismatch)
}

func TestInferenceLoopSkipsUntilFullThenRenders(t *testing.T) {
	w, err := NewFeatureWindow(testWindow, testCoefficients)
	require.NoError(t, err)

	var got []Prediction
	loop := NewInferenceLoop(w, nil, config.DegenerateSkip, RendererFunc(func(p Prediction) {
		got = append(got, p)
	}), nil)

	assert.NoError(t, loop.Tick(time.Now()), "inactive loop ignores ticks")
	require.NoError(t, loop.Start(trainedModel(t)))

	fillWindow(t, w, testWindow-1)
	assert.ErrorIs(t, loop.Tick(time.Now()), ErrIncompleteWindow)
	assert.Empty(t, got)

	require.NoError(t, w.Push(vector(50, testCoefficients)))
	now := time.Now()
	require.NoError(t, loop.Tick(now))
	require.NoError(t, loop.Tick(now))

	require.Len(t, got, 2)
	assert.Len(t, got[0].Landmarks, testKeypoints)
	assert.Equal(t, now, got[0].At)
	assert.Equal(t, got[0].Landmarks, got[1].Landmarks, "same window, same prediction")
	assert.Equal(t, uint64(2), loop.Predictions())
	assert.Equal(t, uint64(1), loop.Skips().IncompleteWindow)

	loop.Stop()
	require.NoError(t, loop.Tick(now))
	assert.Len(t, got, 2)
}
