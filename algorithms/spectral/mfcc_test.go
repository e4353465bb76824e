package spectral

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMelConversionRoundTrip(t *testing.T) {
	ms := NewMelScale()
	mel := ms.HzToMel(1000)
	assert.InDelta(t, 1000.0, mel, 1.0)
	assert.InDelta(t, 1000.0, ms.MelToHz(mel), 1e-9)
}

func TestCreateMelFilterBank(t *testing.T) {
	bank := NewMelScale().CreateMelFilterBank(26, 1024, 44100, 0, 22050)
	require.Len(t, bank, 26)
	for i, f := range bank {
		require.Len(t, f, 513)
		peak := 0.0
		for _, v := range f {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
			peak = math.Max(peak, v)
		}
		assert.Greater(t, peak, 0.0, "filter %d is empty", i)
	}

	assert.Nil(t, NewMelScale().CreateMelFilterBank(0, 1024, 44100, 0, 22050))
}

func sine(freq float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return out
}

func TestMFCCCompute(t *testing.T) {
	m, err := NewMFCC(44100, 1024, DefaultMFCCParams(44100, 20))
	require.NoError(t, err)
	assert.Equal(t, 20, m.NumCoefficients())

	spectrum := NewFFT().MagnitudeSpectrum(sine(440, 44100, 1024))
	require.Len(t, spectrum, 513)

	coeffs, err := m.Compute(spectrum)
	require.NoError(t, err)
	require.Len(t, coeffs, 20)
	for _, c := range coeffs {
		assert.False(t, math.IsNaN(c) || math.IsInf(c, 0))
	}

	// different tones give different cepstra
	other, err := m.Compute(NewFFT().MagnitudeSpectrum(sine(3000, 44100, 1024)))
	require.NoError(t, err)
	assert.NotEqual(t, coeffs, other)
}

func TestMFCCSilenceIsZero(t *testing.T) {
	m, err := NewMFCC(16000, 512, DefaultMFCCParams(16000, 13))
	require.NoError(t, err)

	coeffs, err := m.Compute(make([]float64, 257))
	require.NoError(t, err)
	for _, c := range coeffs {
		assert.InDelta(t, 0.0, c, 1e-12)
	}
}

func TestMFCCRejectsBadInput(t *testing.T) {
	_, err := NewMFCC(0, 1024, DefaultMFCCParams(44100, 20))
	assert.Error(t, err)

	_, err = NewMFCC(44100, 1024, MFCCParams{NumCoefficients: 40, NumMelFilters: 26})
	assert.Error(t, err)

	m, err := NewMFCC(44100, 1024, DefaultMFCCParams(44100, 20))
	require.NoError(t, err)
	_, err = m.Compute(make([]float64, 10))
	assert.Error(t, err)
}

func TestMagnitudeSpectrumPeak(t *testing.T) {
	// 8 cycles over 256 samples lands exactly on bin 8
	spectrum := NewFFT().MagnitudeSpectrum(sine(8*8000.0/256, 8000, 256))
	require.Len(t, spectrum, 129)
	peak := 0
	for k := range spectrum {
		if spectrum[k] > spectrum[peak] {
			peak = k
		}
	}
	assert.Equal(t, 8, peak)
	assert.Empty(t, NewFFT().MagnitudeSpectrum(nil))
}
