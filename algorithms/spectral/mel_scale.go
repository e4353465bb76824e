package spectral

import (
	"math"
)

// MelScale provides HTK mel frequency conversion and triangular filter banks.
type MelScale struct{}

// NewMelScale creates a new mel scale converter
func NewMelScale() *MelScale {
	return &MelScale{}
}

// HzToMel converts frequency in Hz to mel scale
func (ms *MelScale) HzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// MelToHz converts mel scale to frequency in Hz
func (ms *MelScale) MelToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// CreateMelFilterBank returns numFilters triangular filters over the
// fftSize/2+1 non-negative FFT bins, spaced evenly on the mel scale between
// lowFreq and highFreq.
func (ms *MelScale) CreateMelFilterBank(numFilters int, fftSize int, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	if numFilters <= 0 || fftSize <= 0 || sampleRate <= 0 || highFreq <= lowFreq {
		return nil
	}

	bins := fftSize/2 + 1
	lowMel := ms.HzToMel(lowFreq)
	melStep := (ms.HzToMel(highFreq) - lowMel) / float64(numFilters+1)

	// numFilters+2 edges: every filter spans edges[m-1]..edges[m+1]
	edges := make([]int, numFilters+2)
	for i := range edges {
		hz := ms.MelToHz(lowMel + float64(i)*melStep)
		edges[i] = min(int(math.Floor((float64(fftSize)+1.0)*hz/float64(sampleRate))), bins-1)
	}

	bank := make([][]float64, numFilters)
	for m := range numFilters {
		filter := make([]float64, bins)
		left, center, right := edges[m], edges[m+1], edges[m+2]

		for k := left; k < center; k++ {
			filter[k] = float64(k-left) / float64(center-left)
		}
		for k := center; k < right; k++ {
			filter[k] = float64(right-k) / float64(right-center)
		}
		if right == center {
			// band narrower than one bin at low resolution: keep a unit tap
			filter[center] = 1.0
		}
		bank[m] = filter
	}

	return bank
}
