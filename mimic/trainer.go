package mimic

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-mimic/logging"
	"github.com/RyanBlaney/sonido-mimic/mimic/config"
	"github.com/RyanBlaney/sonido-mimic/nn"
)

// ArchitectureFunc describes the network for windows of window x
// coefficients values predicting keypoints landmarks.
type ArchitectureFunc func(window, coefficients, keypoints int) nn.Architecture

// DefaultArchitecture is two depthwise convolution and max-pool stages
// followed by a linear 512-32-2K dense head with dropout after the first
// dense layer. Windows smaller than 18x18 are too small for its kernels.
func DefaultArchitecture(window, coefficients, keypoints int) nn.Architecture {
	return nn.Architecture{
		Input: nn.Shape{window, coefficients, 1},
		Layers: []nn.LayerSpec{
			nn.DepthwiseConv2D(10, 10, 20, nn.ReLU),
			nn.MaxPool2D(2, 2, 1, 1),
			nn.DepthwiseConv2D(7, 7, 10, nn.ReLU),
			nn.MaxPool2D(2, 2, 1, 1),
			nn.Flatten(),
			nn.Dense(512, nn.Linear),
			nn.Dropout(0.30),
			nn.Dense(32, nn.Linear),
			nn.Dense(2*keypoints, nn.Linear),
		},
		LearningRate: 0.01,
	}
}

// TrainedModel is a fitted network together with the shapes it accepts.
type TrainedModel struct {
	ID           string     `json:"id"`
	Window       int        `json:"window"`
	Coefficients int        `json:"coefficients"`
	Keypoints    int        `json:"keypoints"`
	Examples     int        `json:"examples"`
	Seed         uint64     `json:"seed"`
	History      nn.History `json:"history"`
	TrainedAt    time.Time  `json:"trained_at"`

	net *nn.Model
}

// Predict maps a full normalized window to keypoint landmarks.
func (m *TrainedModel) Predict(input NormalizedWindow) (LandmarkSnapshot, error) {
	if input.Rows != m.Window || input.Cols != m.Coefficients {
		return nil, fmt.Errorf("input %dx%d, model expects %dx%d: %w",
			input.Rows, input.Cols, m.Window, m.Coefficients, ErrShapeMismatch)
	}
	out, err := m.net.Predict(input.Data)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return LandmarksFromVector(out)
}

// Network exposes the underlying model, e.g. for its summary.
func (m *TrainedModel) Network() *nn.Model {
	return m.net
}

// ModelTrainer fits a fresh network to a corpus.
type ModelTrainer struct {
	cfg          config.TrainingConfig
	architecture ArchitectureFunc
	logger       logging.Logger

	// OnEpochEnd, if set, receives every epoch log after it is logged.
	OnEpochEnd func(nn.EpochLog)
}

// NewModelTrainer creates a trainer. A nil architecture selects
// DefaultArchitecture.
func NewModelTrainer(cfg config.TrainingConfig, architecture ArchitectureFunc, logger logging.Logger) *ModelTrainer {
	if architecture == nil {
		architecture = DefaultArchitecture
	}
	if logger == nil {
		logger = logging.WithFields(logging.Fields{"component": "model_trainer"})
	}
	return &ModelTrainer{
		cfg:          cfg,
		architecture: architecture,
		logger:       logger,
	}
}

// Train shuffles a copy of the corpus, stacks it into input and target
// batches and fits a new network. It blocks until every epoch has run; ctx
// is honoured between epochs.
func (t *ModelTrainer) Train(ctx context.Context, corpus *Corpus) (*TrainedModel, error) {
	examples := corpus.Snapshot()
	if len(examples) == 0 {
		return nil, ErrEmptyCorpus
	}

	window, coefficients, keypoints := examples[0].Input.Rows, examples[0].Input.Cols, len(examples[0].Label)
	for i, ex := range examples {
		if ex.Input.Rows != window || ex.Input.Cols != coefficients || len(ex.Input.Data) != window*coefficients {
			return nil, fmt.Errorf("example %d input is %dx%d, first is %dx%d: %w",
				i, ex.Input.Rows, ex.Input.Cols, window, coefficients, ErrShapeMismatch)
		}
		if len(ex.Label) != keypoints {
			return nil, fmt.Errorf("example %d has %d landmarks, first has %d: %w",
				i, len(ex.Label), keypoints, ErrShapeMismatch)
		}
	}

	seed := t.cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, ^seed))
	Shuffle(examples, rng)

	arch := t.architecture(window, coefficients, keypoints)
	arch.LearningRate = t.cfg.LearningRate
	net, err := nn.Build(arch, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to build model for %dx%d windows: %w", window, coefficients, err)
	}

	xs := nn.NewBatch(len(examples), arch.Input)
	ys := nn.NewBatch(len(examples), nn.Flat(2*keypoints))
	for i, ex := range examples {
		if err := xs.Set(i, ex.Input.Data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
		}
		if err := ys.Set(i, ex.Label.Flatten()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
		}
	}

	logger := t.logger.WithFields(logging.Fields{
		"function": "Train",
		"examples": len(examples),
		"params":   net.ParamCount(),
		"seed":     seed,
	})
	logger.Info("Training started", logging.Fields{
		"epochs":     t.cfg.Epochs,
		"batch_size": t.cfg.BatchSize,
	})
	logger.Debug("Model summary\n" + net.Summary())

	started := time.Now()
	history, err := net.Fit(ctx, xs, ys, nn.FitConfig{
		Epochs:    t.cfg.Epochs,
		BatchSize: t.cfg.BatchSize,
		Shuffle:   true,
		OnEpochEnd: func(l nn.EpochLog) {
			logger.Info("Epoch finished", logging.Fields{
				"epoch":  l.Epoch,
				"loss":   l.Loss,
				"mae":    l.MAE,
				"mape":   l.MAPE,
				"cosine": l.Cosine,
			})
			if t.OnEpochEnd != nil {
				t.OnEpochEnd(l)
			}
		},
	})
	if err != nil {
		logger.Error(err, "Training failed", logging.Fields{"epochs_done": len(history.Epochs)})
		return nil, fmt.Errorf("training stopped: %w", err)
	}

	logger.Info("Training finished", logging.Fields{
		"loss":     history.Last().Loss,
		"duration": time.Since(started).String(),
	})

	return &TrainedModel{
		ID:           uuid.NewString(),
		Window:       window,
		Coefficients: coefficients,
		Keypoints:    keypoints,
		Examples:     len(examples),
		Seed:         seed,
		History:      history,
		TrainedAt:    time.Now(),
		net:          net,
	}, nil
}
