package spectral

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// MFCCParams contains parameters for MFCC computation
type MFCCParams struct {
	NumCoefficients int     `json:"num_coefficients"` // Number of MFCC coefficients (default: 20)
	NumMelFilters   int     `json:"num_mel_filters"`  // Number of mel filter bank filters (default: 26)
	LowFreq         float64 `json:"low_freq"`         // Low frequency bound (default: 0)
	HighFreq        float64 `json:"high_freq"`        // High frequency bound (default: sampleRate/2)
	UseLiftering    bool    `json:"use_liftering"`    // Apply sinusoidal liftering
	LifterCoeff     float64 `json:"lifter_coeff"`     // Liftering coefficient (default: 22)
}

// DefaultMFCCParams uses 26 mel bands over the full band and no liftering.
func DefaultMFCCParams(sampleRate, numCoefficients int) MFCCParams {
	return MFCCParams{
		NumCoefficients: numCoefficients,
		NumMelFilters:   26,
		LowFreq:         0.0,
		HighFreq:        float64(sampleRate) / 2.0,
		LifterCoeff:     22.0,
	}
}

// MFCC computes Mel-Frequency Cepstral Coefficients for frames of a fixed
// FFT size. The filter bank and DCT basis are built once at construction.
type MFCC struct {
	params     MFCCParams
	sampleRate int
	fftSize    int

	filterBank *mat.Dense // numMelFilters x (fftSize/2+1)
	dct        *mat.Dense // numCoefficients x numMelFilters
	lifter     []float64

	power  *mat.VecDense
	melLog *mat.VecDense
}

// NewMFCC creates an MFCC computer for frames of fftSize samples.
func NewMFCC(sampleRate, fftSize int, params MFCCParams) (*MFCC, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if fftSize < 2 {
		return nil, fmt.Errorf("invalid FFT size: %d", fftSize)
	}
	if params.NumCoefficients <= 0 {
		params.NumCoefficients = 20
	}
	if params.NumMelFilters <= 0 {
		params.NumMelFilters = 26
	}
	if params.HighFreq <= 0 {
		params.HighFreq = float64(sampleRate) / 2.0
	}
	if params.LifterCoeff <= 0 {
		params.LifterCoeff = 22.0
	}
	if params.NumCoefficients > params.NumMelFilters {
		return nil, fmt.Errorf("num coefficients (%d) exceeds mel filters (%d)",
			params.NumCoefficients, params.NumMelFilters)
	}

	bins := fftSize/2 + 1
	bank := NewMelScale().CreateMelFilterBank(params.NumMelFilters, fftSize, sampleRate, params.LowFreq, params.HighFreq)
	if len(bank) == 0 {
		return nil, fmt.Errorf("failed to create mel filter bank")
	}

	m := &MFCC{
		params:     params,
		sampleRate: sampleRate,
		fftSize:    fftSize,
		filterBank: mat.NewDense(params.NumMelFilters, bins, nil),
		dct:        dctBasis(params.NumCoefficients, params.NumMelFilters),
		power:      mat.NewVecDense(bins, nil),
		melLog:     mat.NewVecDense(params.NumMelFilters, nil),
	}
	for i, filter := range bank {
		m.filterBank.SetRow(i, filter)
	}
	if params.UseLiftering {
		m.lifter = lifterWeights(params.NumCoefficients, params.LifterCoeff)
	}

	return m, nil
}

// Compute returns the coefficients for one magnitude spectrum of
// fftSize/2+1 bins. MFCC is not safe for concurrent use.
func (m *MFCC) Compute(magnitudeSpectrum []float64) ([]float64, error) {
	bins := m.fftSize/2 + 1
	if len(magnitudeSpectrum) != bins {
		return nil, fmt.Errorf("spectrum has %d bins, want %d", len(magnitudeSpectrum), bins)
	}

	for i, mag := range magnitudeSpectrum {
		m.power.SetVec(i, mag*mag)
	}

	m.melLog.MulVec(m.filterBank, m.power)
	for i := range m.melLog.Len() {
		m.melLog.SetVec(i, math.Log1p(m.melLog.AtVec(i)))
	}

	coeffs := mat.NewVecDense(m.params.NumCoefficients, nil)
	coeffs.MulVec(m.dct, m.melLog)

	out := make([]float64, m.params.NumCoefficients)
	for i := range out {
		out[i] = coeffs.AtVec(i)
		if m.lifter != nil {
			out[i] *= m.lifter[i]
		}
	}
	return out, nil
}

// NumCoefficients returns the length of every vector Compute produces.
func (m *MFCC) NumCoefficients() int {
	return m.params.NumCoefficients
}

// GetParams returns the current MFCC parameters
func (m *MFCC) GetParams() MFCCParams {
	return m.params
}

// dctBasis builds an orthonormal DCT-II matrix.
func dctBasis(numCoefficients, numFilters int) *mat.Dense {
	basis := mat.NewDense(numCoefficients, numFilters, nil)
	for k := range numCoefficients {
		scale := math.Sqrt(2.0 / float64(numFilters))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(numFilters))
		}
		for n := range numFilters {
			basis.Set(k, n, scale*math.Cos(math.Pi*float64(k)*(float64(n)+0.5)/float64(numFilters)))
		}
	}
	return basis
}

// lifterWeights leaves C0 untouched and boosts higher-order coefficients.
func lifterWeights(numCoefficients int, coeff float64) []float64 {
	w := make([]float64, numCoefficients)
	w[0] = 1.0
	for i := 1; i < numCoefficients; i++ {
		w[i] = 1.0 + (coeff/2.0)*math.Sin(math.Pi*float64(i)/coeff)
	}
	return w
}
