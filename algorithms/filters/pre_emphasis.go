package filters

import "fmt"

// PreEmphasis is a first-order high-pass used ahead of cepstral analysis:
//
//	y[n] = x[n] - α*x[n-1]
//
// State carries across buffers so consecutive calls filter one continuous
// stream.
type PreEmphasis struct {
	coefficient float64
	lastSample  float64
}

// NewPreEmphasis creates a filter with coefficient α in (0, 1). Speech work
// typically uses 0.95 to 0.97.
func NewPreEmphasis(coefficient float64) (*PreEmphasis, error) {
	if coefficient <= 0 || coefficient >= 1 {
		return nil, fmt.Errorf("pre-emphasis coefficient must be in (0, 1), got %g", coefficient)
	}
	return &PreEmphasis{coefficient: coefficient}, nil
}

func (pe *PreEmphasis) Process(input float64) float64 {
	out := input - pe.coefficient*pe.lastSample
	pe.lastSample = input
	return out
}

// ProcessTo filters src into dst. dst and src may alias.
func (pe *PreEmphasis) ProcessTo(dst, src []float64) {
	for i, x := range src {
		dst[i] = pe.Process(x)
	}
}

// Reset clears the filter state. Call it between discontinuous segments.
func (pe *PreEmphasis) Reset() {
	pe.lastSample = 0
}

func (pe *PreEmphasis) Coefficient() float64 {
	return pe.coefficient
}
