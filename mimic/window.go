package mimic

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RyanBlaney/sonido-mimic/algorithms/common"
	"github.com/RyanBlaney/sonido-mimic/mimic/config"
)

// FeatureVector holds the spectral coefficients of one analysis tick.
type FeatureVector []float64

// FeatureFrame is what the feature extractor delivers per analysis tick.
type FeatureFrame struct {
	MFCC FeatureVector `json:"mfcc"`
	RMS  float64       `json:"rms"`
	At   time.Time     `json:"at"`
}

// NormalizedWindow is a row-major Rows x Cols z-scored copy of a window.
type NormalizedWindow struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`

	// Mean and Std are the statistics the data was normalized with.
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// Row returns row i; the slice aliases Data.
func (n NormalizedWindow) Row(i int) []float64 {
	return n.Data[i*n.Cols : (i+1)*n.Cols]
}

// Empty reports whether the window had no vectors.
func (n NormalizedWindow) Empty() bool {
	return n.Rows == 0
}

func (n NormalizedWindow) clone() NormalizedWindow {
	n.Data = append([]float64(nil), n.Data...)
	return n
}

// FeatureWindow is a fixed-capacity rolling buffer of feature vectors,
// oldest first. One goroutine pushes; any number may read.
type FeatureWindow struct {
	mu           sync.RWMutex
	ring         *common.Ring[FeatureVector]
	coefficients int
}

// NewFeatureWindow creates a window of capacity vectors of coefficients
// values each.
func NewFeatureWindow(capacity, coefficients int) (*FeatureWindow, error) {
	if capacity <= 0 || coefficients <= 0 {
		return nil, fmt.Errorf("window %dx%d: %w", capacity, coefficients, ErrShapeMismatch)
	}
	return &FeatureWindow{
		ring:         common.NewRing[FeatureVector](capacity),
		coefficients: coefficients,
	}, nil
}

// Push appends a copy of vec, evicting the oldest vector once the window is
// at capacity.
func (w *FeatureWindow) Push(vec FeatureVector) error {
	if len(vec) != w.coefficients {
		return fmt.Errorf("vector has %d coefficients, window expects %d: %w", len(vec), w.coefficients, ErrShapeMismatch)
	}
	cp := append(FeatureVector(nil), vec...)

	w.mu.Lock()
	w.ring.Push(cp)
	w.mu.Unlock()
	return nil
}

// Normalized z-scores the current contents over all scalars using the
// population standard deviation. An empty window yields an empty result.
func (w *FeatureWindow) Normalized(policy config.DegeneratePolicy) (NormalizedWindow, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.normalizeLocked(policy)
}

// ReadyNormalized is Normalized for a window that must be full. The fill
// check and the read see the same contents.
func (w *FeatureWindow) ReadyNormalized(policy config.DegeneratePolicy) (NormalizedWindow, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.ring.IsFull() {
		return NormalizedWindow{}, fmt.Errorf("%d of %d vectors: %w", w.ring.Len(), w.ring.Cap(), ErrIncompleteWindow)
	}
	return w.normalizeLocked(policy)
}

func (w *FeatureWindow) normalizeLocked(policy config.DegeneratePolicy) (NormalizedWindow, error) {
	rows := w.ring.Len()
	if rows == 0 {
		return NormalizedWindow{Cols: w.coefficients, Data: []float64{}}, nil
	}

	vectors := make([][]float64, rows)
	for i := range rows {
		vectors[i] = w.ring.At(i)
	}

	constant := common.ConstantFail
	if policy == config.DegenerateUnitStd {
		constant = common.ConstantCenter
	}

	data, stats, err := common.ZScore(common.Flatten(vectors), constant)
	if errors.Is(err, common.ErrConstantSignal) {
		return NormalizedWindow{}, fmt.Errorf("mean %g over %d vectors: %w", stats.Mean, rows, ErrDegenerateNormalization)
	}
	if err != nil {
		return NormalizedWindow{}, err
	}

	return NormalizedWindow{
		Rows: rows,
		Cols: w.coefficients,
		Data: data,
		Mean: stats.Mean,
		Std:  stats.Std,
	}, nil
}

func (w *FeatureWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ring.Len()
}

func (w *FeatureWindow) Capacity() int {
	return w.ring.Cap()
}

func (w *FeatureWindow) Coefficients() int {
	return w.coefficients
}

func (w *FeatureWindow) Full() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ring.IsFull()
}

// Vectors returns a deep copy of the contents, oldest first.
func (w *FeatureWindow) Vectors() []FeatureVector {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := w.ring.Slice()
	for i, v := range out {
		out[i] = append(FeatureVector(nil), v...)
	}
	return out
}

// Reset empties the window.
func (w *FeatureWindow) Reset() {
	w.mu.Lock()
	w.ring.Clear()
	w.mu.Unlock()
}
