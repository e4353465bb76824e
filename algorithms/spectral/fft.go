package spectral

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// FFT wraps mjibson/go-dsp for real-valued analysis frames.
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the Fast Fourier Transform of a real signal.
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}

	// go-dsp handles all sizes, including non-power-of-2
	return fft.FFTReal(x)
}

// MagnitudeSpectrum returns |X[k]| for the non-negative frequencies
// k = 0..N/2 of a real frame of length N.
func (f *FFT) MagnitudeSpectrum(frame []float64) []float64 {
	spectrum := f.Compute(frame)
	if len(spectrum) == 0 {
		return []float64{}
	}

	bins := len(frame)/2 + 1
	magnitude := make([]float64, bins)
	for k := range bins {
		magnitude[k] = cmplx.Abs(spectrum[k])
	}
	return magnitude
}
