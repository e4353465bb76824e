package mimic

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/RyanBlaney/sonido-mimic/algorithms/temporal"
	"github.com/RyanBlaney/sonido-mimic/logging"
	"github.com/RyanBlaney/sonido-mimic/mimic/config"
)

// ExampleRecorder turns the live window and the latest landmarks into
// training examples, one per tick while active.
type ExampleRecorder struct {
	window *FeatureWindow
	poses  LandmarkSource
	gate   *temporal.SilenceGate
	corpus *Corpus
	policy config.DegeneratePolicy
	logger logging.Logger

	active   atomic.Bool
	ticks    atomic.Uint64
	recorded atomic.Uint64
	skips    skipCounters
}

// NewExampleRecorder wires a recorder. gate may be nil.
func NewExampleRecorder(window *FeatureWindow, poses LandmarkSource, corpus *Corpus, gate *temporal.SilenceGate, policy config.DegeneratePolicy, logger logging.Logger) *ExampleRecorder {
	if logger == nil {
		logger = logging.WithFields(logging.Fields{"component": "example_recorder"})
	}
	return &ExampleRecorder{
		window: window,
		poses:  poses,
		gate:   gate,
		corpus: corpus,
		policy: policy,
		logger: logger,
	}
}

// Start enables recording. Examples append to the same corpus across
// start/stop cycles.
func (r *ExampleRecorder) Start() {
	if !r.active.Swap(true) {
		r.logger.Info("Recording started", logging.Fields{"examples": r.corpus.Len()})
	}
}

func (r *ExampleRecorder) Stop() {
	if r.active.Swap(false) {
		r.logger.Info("Recording stopped", logging.Fields{
			"examples": r.corpus.Len(),
			"recorded": r.recorded.Load(),
		})
	}
}

func (r *ExampleRecorder) Active() bool {
	return r.active.Load()
}

// Tick records one example if recording is active and both signals are
// usable. A skipped tick is counted, returned and otherwise lost.
func (r *ExampleRecorder) Tick(now time.Time) error {
	if !r.active.Load() {
		return nil
	}
	r.ticks.Add(1)

	ex, err := r.capture(now)
	if err != nil {
		r.skips.record(err)
		r.logger.Debug("Recording tick skipped", logging.Fields{"reason": err.Error()})
		return err
	}

	r.corpus.Append(ex)
	r.recorded.Add(1)
	return nil
}

func (r *ExampleRecorder) capture(now time.Time) (TrainingExample, error) {
	if r.gate != nil && r.gate.Silent() {
		return TrainingExample{}, fmt.Errorf("rms %g below %g: %w", r.gate.Level(), r.gate.Threshold(), ErrSilence)
	}

	input, err := r.window.ReadyNormalized(r.policy)
	if err != nil {
		return TrainingExample{}, err
	}

	label, err := r.poses.Landmarks()
	if err != nil {
		return TrainingExample{}, err
	}

	return NewTrainingExample(input, label, now), nil
}

func (r *ExampleRecorder) Ticks() uint64 {
	return r.ticks.Load()
}

func (r *ExampleRecorder) Recorded() uint64 {
	return r.recorded.Load()
}

func (r *ExampleRecorder) Skips() SkipCounts {
	return r.skips.snapshot()
}
