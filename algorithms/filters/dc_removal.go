package filters

import (
	"fmt"
	"math"
)

// DCRemoval is the classic DC blocker:
//
//	y[n] = x[n] - x[n-1] + R*y[n-1]
//
// with the pole R placed from the desired -3dB cutoff as R ≈ 1 - 2π·fc/fs.
//
// References:
//   - Julius O. Smith III, "Introduction to Digital Filters with Audio Applications"
//     https://ccrma.stanford.edu/~jos/filters/DC_Blocker.html
type DCRemoval struct {
	pole float64

	x1 float64 // x[n-1]
	y1 float64 // y[n-1]
}

// NewDCRemoval creates a blocker with the given cutoff for a stream at
// sampleRate.
func NewDCRemoval(sampleRate int, cutoffHz float64) (*DCRemoval, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if cutoffHz <= 0 || cutoffHz >= float64(sampleRate)/2 {
		return nil, fmt.Errorf("cutoff %g Hz outside (0, %d)", cutoffHz, sampleRate/2)
	}

	pole := 1.0 - 2.0*math.Pi*cutoffHz/float64(sampleRate)
	pole = min(max(pole, 0.001), 0.999)
	return &DCRemoval{pole: pole}, nil
}

func (dc *DCRemoval) Process(input float64) float64 {
	out := input - dc.x1 + dc.pole*dc.y1
	dc.x1 = input
	dc.y1 = out
	return out
}

// ProcessTo filters src into dst. dst and src may alias.
func (dc *DCRemoval) ProcessTo(dst, src []float64) {
	for i, x := range src {
		dst[i] = dc.Process(x)
	}
}

func (dc *DCRemoval) Reset() {
	dc.x1, dc.y1 = 0, 0
}

// CutoffFrequency inverts the pole placement for the given sample rate.
func (dc *DCRemoval) CutoffFrequency(sampleRate int) float64 {
	return (1.0 - dc.pole) * float64(sampleRate) / (2.0 * math.Pi)
}
