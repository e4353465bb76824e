package filters

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreEmphasis(t *testing.T) {
	_, err := NewPreEmphasis(1)
	require.Error(t, err)

	pe, err := NewPreEmphasis(0.5)
	require.NoError(t, err)

	out := make([]float64, 3)
	pe.ProcessTo(out, []float64{1, 1, 1})
	assert.Equal(t, []float64{1, 0.5, 0.5}, out)

	// State carries over between buffers.
	pe.ProcessTo(out[:1], []float64{0})
	assert.Equal(t, -0.5, out[0])

	pe.Reset()
	assert.Equal(t, 2.0, pe.Process(2))
}

func TestDCRemovalRemovesOffset(t *testing.T) {
	_, err := NewDCRemoval(44100, 0)
	require.Error(t, err)
	_, err = NewDCRemoval(0, 10)
	require.Error(t, err)

	dc, err := NewDCRemoval(44100, 10)
	require.NoError(t, err)
	assert.InDelta(t, 10, dc.CutoffFrequency(44100), 1e-9)

	signal := make([]float64, 44100)
	for i := range signal {
		signal[i] = 0.5 + 0.1*math.Sin(2*math.Pi*440*float64(i)/44100)
	}
	dc.ProcessTo(signal, signal)

	tail := signal[len(signal)-4410:]
	mean := 0.0
	for _, v := range tail {
		mean += v
	}
	mean /= float64(len(tail))
	assert.InDelta(t, 0, mean, 1e-3)
}
