package windowing

import (
	"fmt"
	"math"
)

// Hann is a precomputed Hann window. Periodic windows (symmetric == false)
// are the usual choice for spectral analysis frames.
type Hann struct {
	size         int
	symmetric    bool
	coefficients []float64
}

// NewHann creates a new Hann window
func NewHann(size int, symmetric bool) *Hann {
	h := &Hann{
		size:      size,
		symmetric: symmetric,
	}
	h.generate()
	return h
}

func (h *Hann) generate() {
	h.coefficients = make([]float64, h.size)
	if h.size == 1 {
		h.coefficients[0] = 1.0
		return
	}

	denominator := float64(h.size)
	if h.symmetric {
		denominator = float64(h.size - 1)
	}

	for i := range h.size {
		h.coefficients[i] = 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/denominator))
	}
}

// ApplyTo writes signal*window into dst, which must have the window size.
func (h *Hann) ApplyTo(dst, signal []float64) error {
	if len(signal) != h.size || len(dst) != h.size {
		return fmt.Errorf("signal length (%d) or destination length (%d) doesn't match window size (%d)",
			len(signal), len(dst), h.size)
	}

	for i, c := range h.coefficients {
		dst[i] = signal[i] * c
	}
	return nil
}

// Apply returns a windowed copy of signal.
func (h *Hann) Apply(signal []float64) ([]float64, error) {
	windowed := make([]float64, h.size)
	if err := h.ApplyTo(windowed, signal); err != nil {
		return nil, err
	}
	return windowed, nil
}

// Size returns the window size
func (h *Hann) Size() int {
	return h.size
}
