package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopulationMeanStd(t *testing.T) {
	mean, std := PopulationMeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 1e-12)
	assert.InDelta(t, 2.0, std, 1e-12)

	mean, std = PopulationMeanStd(nil)
	assert.Zero(t, mean)
	assert.Zero(t, std)
}

func TestRMS(t *testing.T) {
	assert.InDelta(t, 1.0, RMS([]float64{1, -1, 1, -1}), 1e-12)
	assert.InDelta(t, math.Sqrt(12.5), RMS([]float64{3, 4}), 1e-12)
	assert.Zero(t, RMS(nil))
}

func TestFlatten(t *testing.T) {
	got := Flatten([][]float64{{1, 2}, {3}, {}, {4, 5}})
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, got)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 2}, []float64{2, 4}), 1e-12)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 3}), 1e-12)
	assert.Zero(t, CosineSimilarity([]float64{0, 0}, []float64{1, 1}))
	assert.Zero(t, CosineSimilarity([]float64{1}, []float64{1, 1}))
}

func TestZScore(t *testing.T) {
	data := make([]float64, 260)
	for i := range data {
		data[i] = float64(i*i%17) + 0.25*float64(i)
	}

	out, stats, err := ZScore(data, ConstantFail)
	require.NoError(t, err)
	require.Len(t, out, len(data))
	assert.Greater(t, stats.Std, 0.0)

	mean, std := PopulationMeanStd(out)
	assert.InDelta(t, 0.0, mean, 1e-9)
	assert.InDelta(t, 1.0, std, 1e-9)
}

func TestZScoreConstantSignal(t *testing.T) {
	data := []float64{3, 3, 3, 3}

	_, _, err := ZScore(data, ConstantFail)
	assert.ErrorIs(t, err, ErrConstantSignal)

	out, stats, err := ZScore(data, ConstantCenter)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, out)
	assert.Equal(t, 1.0, stats.Std)
}

func TestZScoreEmpty(t *testing.T) {
	out, _, err := ZScore(nil, ConstantFail)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestAllFinite(t *testing.T) {
	assert.True(t, AllFinite([]float64{1, 2, -3}))
	assert.False(t, AllFinite([]float64{1, math.NaN()}))
	assert.False(t, AllFinite([]float64{math.Inf(-1)}))
}
