package nn

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"text/tabwriter"
)

// ErrNonFiniteLoss is returned by Fit when the loss becomes NaN or Inf.
var ErrNonFiniteLoss = errors.New("loss is not finite")

// FitConfig controls one call to Fit.
type FitConfig struct {
	Epochs    int
	BatchSize int
	// Shuffle reorders the examples at the start of every epoch.
	Shuffle bool
	// OnEpochEnd, if set, is called synchronously after each epoch.
	OnEpochEnd func(EpochLog)
}

// History collects the per-epoch logs of a Fit call.
type History struct {
	Epochs []EpochLog `json:"epochs"`
}

// Last returns the final epoch log, zero if no epoch completed.
func (h History) Last() EpochLog {
	if len(h.Epochs) == 0 {
		return EpochLog{}
	}
	return h.Epochs[len(h.Epochs)-1]
}

// Model is an assembled, trainable network. Predict and Fit serialize on an
// internal lock because layers cache activations between passes.
type Model struct {
	mu sync.Mutex

	arch      Architecture
	layers    []Layer
	params    []*Param
	optimizer *Adam
	rng       *rand.Rand
}

func newModel(arch Architecture, layers []Layer, rng *rand.Rand) *Model {
	m := &Model{
		arch:      arch,
		layers:    layers,
		optimizer: NewAdam(arch.LearningRate),
		rng:       rng,
	}
	for _, l := range layers {
		m.params = append(m.params, l.Params()...)
	}
	return m
}

// InputShape returns the shape of one input example.
func (m *Model) InputShape() Shape {
	return m.arch.Input
}

// OutputShape returns the shape of one prediction.
func (m *Model) OutputShape() Shape {
	return m.layers[len(m.layers)-1].OutputShape()
}

// Architecture returns the descriptor the model was built from.
func (m *Model) Architecture() Architecture {
	return m.arch
}

// ParamCount returns the number of trainable scalars.
func (m *Model) ParamCount() int {
	n := 0
	for _, p := range m.params {
		n += len(p.Value)
	}
	return n
}

// Summary renders one line per layer with its output shape and parameter
// count.
func (m *Model) Summary() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Layer\tOutput shape\tParams")
	fmt.Fprintf(w, "input\t%v\t0\n", m.arch.Input)
	for _, l := range m.layers {
		n := 0
		for _, p := range l.Params() {
			n += len(p.Value)
		}
		fmt.Fprintf(w, "%s\t%v\t%d\n", l.Name(), l.OutputShape(), n)
	}
	fmt.Fprintf(w, "total\t\t%d\n", m.ParamCount())
	w.Flush()
	return b.String()
}

// Predict runs one example through the network in inference mode.
func (m *Model) Predict(input []float64) ([]float64, error) {
	if len(input) != m.arch.Input.Size() {
		return nil, fmt.Errorf("input has %d values, model expects %v: %w", len(input), m.arch.Input, ErrShape)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.forward(input, false)
	return append([]float64(nil), out.Data...), nil
}

// Fit trains on xs/ys with mini-batch Adam. Cancellation is checked between
// epochs only; an epoch in progress always completes.
func (m *Model) Fit(ctx context.Context, xs, ys *Batch, cfg FitConfig) (History, error) {
	var history History

	if xs == nil || ys == nil || xs.N == 0 {
		return history, fmt.Errorf("fit with no examples: %w", ErrShape)
	}
	if xs.N != ys.N {
		return history, fmt.Errorf("%d inputs but %d targets: %w", xs.N, ys.N, ErrShape)
	}
	if xs.Sample != m.arch.Input {
		return history, fmt.Errorf("input shape %v, model expects %v: %w", xs.Sample, m.arch.Input, ErrShape)
	}
	if ys.Sample.Size() != m.OutputShape().Size() {
		return history, fmt.Errorf("target size %d, model outputs %d: %w", ys.Sample.Size(), m.OutputShape().Size(), ErrShape)
	}
	if cfg.Epochs <= 0 || cfg.BatchSize <= 0 {
		return history, fmt.Errorf("epochs %d batch size %d must be positive", cfg.Epochs, cfg.BatchSize)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	order := make([]int, xs.N)
	for i := range order {
		order[i] = i
	}
	grad := make([]float64, m.OutputShape().Size())

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return history, fmt.Errorf("fit stopped before epoch %d: %w", epoch, err)
		}
		if cfg.Shuffle {
			m.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		var acc metricAccumulator
		for start := 0; start < xs.N; start += cfg.BatchSize {
			end := min(start+cfg.BatchSize, xs.N)
			for _, idx := range order[start:end] {
				target := ys.Row(idx)
				pred := m.forward(xs.Row(idx), true)
				loss := mseGrad(pred.Data, target, grad, end-start)
				if math.IsNaN(loss) || math.IsInf(loss, 0) {
					return history, fmt.Errorf("epoch %d: %w", epoch, ErrNonFiniteLoss)
				}
				acc.add(pred.Data, target, loss)
				m.backward(grad)
			}
			m.optimizer.Step(m.params)
		}

		log := acc.log(epoch)
		history.Epochs = append(history.Epochs, log)
		if cfg.OnEpochEnd != nil {
			cfg.OnEpochEnd(log)
		}
	}

	return history, nil
}

func (m *Model) forward(input []float64, training bool) *Tensor {
	t := &Tensor{Shape: m.arch.Input, Data: append([]float64(nil), input...)}
	for _, l := range m.layers {
		t = l.Forward(t, training)
	}
	return t
}

func (m *Model) backward(grad []float64) {
	t := &Tensor{Shape: m.OutputShape(), Data: append([]float64(nil), grad...)}
	for i := len(m.layers) - 1; i >= 0; i-- {
		t = m.layers[i].Backward(t)
	}
}
