package temporal

import (
	"math"
	"sync/atomic"

	"github.com/RyanBlaney/sonido-mimic/algorithms/common"
)

// DefaultSilenceThreshold is a workable RMS floor for 1024-sample analysis
// buffers of normalized PCM.
const DefaultSilenceThreshold = 0.002

// SilenceGate tracks the RMS of the most recent analysis buffer and reports
// whether it sits below a threshold. A zero threshold disables the gate.
// The gate is safe for one writer and many readers.
type SilenceGate struct {
	threshold float64
	lastRMS   atomic.Uint64 // math.Float64bits of the last level
	observed  atomic.Bool
}

// NewSilenceGate creates a gate for the given RMS threshold.
func NewSilenceGate(threshold float64) *SilenceGate {
	return &SilenceGate{threshold: max(threshold, 0)}
}

// ObserveSignal records the RMS of a raw sample buffer and returns it.
func (g *SilenceGate) ObserveSignal(buffer []float64) float64 {
	level := common.RMS(buffer)
	g.ObserveLevel(level)
	return level
}

// ObserveLevel records an RMS level computed elsewhere.
func (g *SilenceGate) ObserveLevel(level float64) {
	g.lastRMS.Store(math.Float64bits(level))
	g.observed.Store(true)
}

// Level returns the last observed RMS level.
func (g *SilenceGate) Level() float64 {
	return math.Float64frombits(g.lastRMS.Load())
}

// Enabled reports whether the gate filters anything.
func (g *SilenceGate) Enabled() bool {
	return g.threshold > 0
}

// Silent reports whether the last observed level is below the threshold.
// Nothing observed yet counts as silent when the gate is enabled.
func (g *SilenceGate) Silent() bool {
	if !g.Enabled() {
		return false
	}
	if !g.observed.Load() {
		return true
	}
	return g.Level() < g.threshold
}

// Threshold returns the configured RMS threshold.
func (g *SilenceGate) Threshold() float64 {
	return g.threshold
}
