package mimic

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-mimic/algorithms/temporal"
	"github.com/RyanBlaney/sonido-mimic/logging"
	"github.com/RyanBlaney/sonido-mimic/mimic/config"
	"github.com/RyanBlaney/sonido-mimic/nn"
)

// Mode is what a session is currently doing. Recording, training and
// inference exclude one another.
type Mode int

const (
	ModeIdle Mode = iota
	ModeRecording
	ModeTraining
	ModeInferring
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeRecording:
		return "recording"
	case ModeTraining:
		return "training"
	case ModeInferring:
		return "inferring"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Option customizes a Session.
type Option func(*sessionOptions)

type sessionOptions struct {
	logger       logging.Logger
	renderer     Renderer
	architecture ArchitectureFunc
	onEpochEnd   func(nn.EpochLog)
}

// WithLogger sets the base logger; the session adds its own fields.
func WithLogger(logger logging.Logger) Option {
	return func(o *sessionOptions) { o.logger = logger }
}

// WithRenderer sets the consumer of predictions.
func WithRenderer(r Renderer) Option {
	return func(o *sessionOptions) { o.renderer = r }
}

// WithArchitecture replaces DefaultArchitecture.
func WithArchitecture(fn ArchitectureFunc) Option {
	return func(o *sessionOptions) { o.architecture = fn }
}

// WithEpochCallback receives per-epoch training logs.
func WithEpochCallback(fn func(nn.EpochLog)) Option {
	return func(o *sessionOptions) { o.onEpochEnd = fn }
}

// Session owns all live state of one capture session: the feature window,
// the latest pose, the corpus and the current model. A single scheduler
// drives recording and inference.
type Session struct {
	id     string
	cfg    config.Config
	logger logging.Logger

	window    *FeatureWindow
	poses     *PoseTracker
	gate      *temporal.SilenceGate
	corpus    *Corpus
	recorder  *ExampleRecorder
	inference *InferenceLoop
	trainer   *ModelTrainer

	mu          sync.Mutex
	mode        Mode
	model       *TrainedModel
	cancelTrain context.CancelFunc // set while training
	closed      bool

	framesIngested atomic.Uint64
	framesRejected atomic.Uint64
	posesIngested  atomic.Uint64
}

// NewSession validates cfg and assembles a session in ModeIdle.
func NewSession(cfg config.Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o sessionOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.GetGlobalLogger()
	}

	id := uuid.NewString()
	logger := o.logger.WithFields(logging.Fields{"session_id": id})

	window, err := NewFeatureWindow(cfg.Session.WindowCapacity, cfg.Feature.Coefficients)
	if err != nil {
		return nil, fmt.Errorf("failed to create feature window: %w", err)
	}

	s := &Session{
		id:     id,
		cfg:    cfg,
		logger: logger.WithFields(logging.Fields{"component": "session"}),
		window: window,
		poses:  NewPoseTracker(cfg.Pose.Keypoints),
		gate:   temporal.NewSilenceGate(cfg.Feature.SilenceThreshold),
		corpus: NewCorpus(),
	}
	policy := cfg.Session.DegeneratePolicy

	s.recorder = NewExampleRecorder(s.window, s.poses, s.corpus, s.gate, policy,
		logger.WithFields(logging.Fields{"component": "example_recorder"}))
	s.inference = NewInferenceLoop(s.window, s.gate, policy, o.renderer,
		logger.WithFields(logging.Fields{"component": "inference_loop"}))
	s.trainer = NewModelTrainer(cfg.Training, o.architecture,
		logger.WithFields(logging.Fields{"component": "model_trainer"}))
	s.trainer.OnEpochEnd = o.onEpochEnd

	s.logger.Info("Session created", logging.Fields{
		"window":       cfg.Session.WindowCapacity,
		"coefficients": cfg.Feature.Coefficients,
		"keypoints":    cfg.Pose.Keypoints,
		"tick":         cfg.Session.TickInterval.String(),
	})
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Config() config.Config {
	return s.cfg
}

func (s *Session) Window() *FeatureWindow {
	return s.window
}

func (s *Session) Corpus() *Corpus {
	return s.corpus
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Model returns the current trained model, nil if none.
func (s *Session) Model() *TrainedModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// IngestFeatures pushes one extractor frame into the window and records its
// RMS level for the silence gate.
func (s *Session) IngestFeatures(frame FeatureFrame) error {
	if err := s.window.Push(frame.MFCC); err != nil {
		s.framesRejected.Add(1)
		return err
	}
	s.gate.ObserveLevel(frame.RMS)
	s.framesIngested.Add(1)
	return nil
}

// IngestPose replaces the latest pose estimate.
func (s *Session) IngestPose(pose *PoseResult) {
	s.poses.Update(pose)
	s.posesIngested.Add(1)
}

// ConsumeFeatures ingests frames until ch is closed or ctx is done.
// Rejected frames are logged and dropped.
func (s *Session) ConsumeFeatures(ctx context.Context, ch <-chan FeatureFrame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.IngestFeatures(frame); err != nil {
				s.logger.Warn("Feature frame rejected", logging.Fields{"error": err.Error()})
			}
		}
	}
}

// ConsumePoses ingests pose estimates until ch is closed or ctx is done.
func (s *Session) ConsumePoses(ctx context.Context, ch <-chan *PoseResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pose, ok := <-ch:
			if !ok {
				return nil
			}
			s.IngestPose(pose)
		}
	}
}

// StartRecording switches an idle session to recording. Calling it while
// already recording is a no-op.
func (s *Session) StartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enterLocked(ModeRecording); err != nil {
		return err
	}
	s.recorder.Start()
	return nil
}

// StopRecording returns to idle. It does nothing outside recording mode.
func (s *Session) StopRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == ModeRecording {
		s.recorder.Stop()
		s.mode = ModeIdle
	}
}

// Train fits a new model to the corpus, discarding the previous one first.
// It blocks the caller; the scheduler keeps running meanwhile. Close stops
// the fit at the next epoch boundary and Train returns ErrSessionClosed.
func (s *Session) Train(ctx context.Context) (*TrainedModel, error) {
	s.mu.Lock()
	if err := s.enterLocked(ModeTraining); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.model = nil
	s.cancelTrain = cancel
	s.mu.Unlock()

	model, err := s.trainer.Train(ctx, s.corpus)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTrain = nil
	s.mode = ModeIdle
	if s.closed {
		return nil, ErrSessionClosed
	}
	if err != nil {
		return nil, err
	}
	s.model = model
	return model, nil
}

// StartInference runs the current model on every tick. A model that does
// not fit the window leaves the session idle.
func (s *Session) StartInference() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeInferring && s.model == nil {
		return ErrNoModel
	}
	prev := s.mode
	if err := s.enterLocked(ModeInferring); err != nil {
		return err
	}
	if err := s.inference.Start(s.model); err != nil {
		s.mode = prev
		return err
	}
	return nil
}

func (s *Session) StopInference() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == ModeInferring {
		s.inference.Stop()
		s.mode = ModeIdle
	}
}

// enterLocked moves from idle (or the same mode) to target.
func (s *Session) enterLocked(target Mode) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.mode != ModeIdle && (s.mode != target || target == ModeTraining) {
		return fmt.Errorf("cannot start %s while %s: %w", target, s.mode, ErrSessionBusy)
	}
	s.mode = target
	return nil
}

// Step runs one scheduler tick. Skipped ticks are counted, not returned.
func (s *Session) Step(now time.Time) {
	_ = s.recorder.Tick(now)
	_ = s.inference.Tick(now)
}

// Run calls Step every tick interval until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Session.TickInterval)
	defer ticker.Stop()

	s.logger.Debug("Scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Scheduler stopped")
			return nil
		case now := <-ticker.C:
			s.Step(now)
		}
	}
}

// Stats returns the current counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	mode, hasModel := s.mode, s.model != nil
	s.mu.Unlock()

	return Stats{
		SessionID:      s.id,
		Mode:           mode.String(),
		Examples:       s.corpus.Len(),
		WindowFill:     s.window.Len(),
		WindowCapacity: s.window.Capacity(),
		LastRMS:        s.gate.Level(),
		FramesIngested: s.framesIngested.Load(),
		FramesRejected: s.framesRejected.Load(),
		PosesIngested:  s.posesIngested.Load(),
		RecordTicks:    s.recorder.Ticks(),
		Recorded:       s.recorder.Recorded(),
		RecordSkips:    s.recorder.Skips(),
		InferenceTicks: s.inference.Ticks(),
		Predictions:    s.inference.Predictions(),
		InferenceSkips: s.inference.Skips(),
		HasModel:       hasModel,
	}
}

// Close stops recording and inference and drops the session's state.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.recorder.Stop()
	s.inference.Stop()
	if s.cancelTrain != nil {
		s.cancelTrain()
	}
	s.closed = true
	s.mode = ModeIdle
	s.model = nil

	s.logger.Info("Session closed", logging.Fields{"examples": s.corpus.Len()})
	s.corpus.Reset()
	s.window.Reset()
	return nil
}
