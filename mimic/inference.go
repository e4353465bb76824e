package mimic

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RyanBlaney/sonido-mimic/algorithms/temporal"
	"github.com/RyanBlaney/sonido-mimic/logging"
	"github.com/RyanBlaney/sonido-mimic/mimic/config"
)

// Prediction is one model output in normalized coordinates.
type Prediction struct {
	Landmarks LandmarkSnapshot `json:"landmarks"`
	At        time.Time        `json:"at"`
}

// Renderer consumes predictions. Render is called on the scheduler goroutine
// and should return quickly.
type Renderer interface {
	Render(Prediction)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Prediction)

func (f RendererFunc) Render(p Prediction) { f(p) }

// InferenceLoop feeds the live window through a trained model once per tick.
type InferenceLoop struct {
	window   *FeatureWindow
	gate     *temporal.SilenceGate
	policy   config.DegeneratePolicy
	renderer Renderer
	logger   logging.Logger

	mu    sync.RWMutex
	model *TrainedModel

	active      atomic.Bool
	ticks       atomic.Uint64
	predictions atomic.Uint64
	skips       skipCounters
}

// NewInferenceLoop wires a loop. gate and renderer may be nil.
func NewInferenceLoop(window *FeatureWindow, gate *temporal.SilenceGate, policy config.DegeneratePolicy, renderer Renderer, logger logging.Logger) *InferenceLoop {
	if logger == nil {
		logger = logging.WithFields(logging.Fields{"component": "inference_loop"})
	}
	return &InferenceLoop{
		window:   window,
		gate:     gate,
		policy:   policy,
		renderer: renderer,
		logger:   logger,
	}
}

// Start begins predicting with model.
func (l *InferenceLoop) Start(model *TrainedModel) error {
	if model == nil {
		return ErrNoModel
	}
	if model.Window != l.window.Capacity() || model.Coefficients != l.window.Coefficients() {
		return fmt.Errorf("model expects %dx%d, window is %dx%d: %w",
			model.Window, model.Coefficients, l.window.Capacity(), l.window.Coefficients(), ErrShapeMismatch)
	}

	l.mu.Lock()
	l.model = model
	l.mu.Unlock()

	l.active.Store(true)
	l.logger.Info("Inference started", logging.Fields{"model_id": model.ID})
	return nil
}

func (l *InferenceLoop) Stop() {
	if l.active.Swap(false) {
		l.logger.Info("Inference stopped", logging.Fields{"predictions": l.predictions.Load()})
	}
}

func (l *InferenceLoop) Active() bool {
	return l.active.Load()
}

// Tick predicts once if active. Until the window is full ticks are skipped.
func (l *InferenceLoop) Tick(now time.Time) error {
	if !l.active.Load() {
		return nil
	}
	l.ticks.Add(1)

	pred, err := l.predict(now)
	if err != nil {
		l.skips.record(err)
		l.logger.Debug("Inference tick skipped", logging.Fields{"reason": err.Error()})
		return err
	}

	l.predictions.Add(1)
	if l.renderer != nil {
		l.renderer.Render(pred)
	}
	return nil
}

func (l *InferenceLoop) predict(now time.Time) (Prediction, error) {
	if l.gate != nil && l.gate.Silent() {
		return Prediction{}, fmt.Errorf("rms %g below %g: %w", l.gate.Level(), l.gate.Threshold(), ErrSilence)
	}

	input, err := l.window.ReadyNormalized(l.policy)
	if err != nil {
		return Prediction{}, err
	}

	l.mu.RLock()
	model := l.model
	l.mu.RUnlock()

	landmarks, err := model.Predict(input)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{Landmarks: landmarks, At: now}, nil
}

func (l *InferenceLoop) Ticks() uint64 {
	return l.ticks.Load()
}

func (l *InferenceLoop) Predictions() uint64 {
	return l.predictions.Load()
}

func (l *InferenceLoop) Skips() SkipCounts {
	return l.skips.snapshot()
}
