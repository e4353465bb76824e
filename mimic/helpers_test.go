package mimic

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-mimic/logging"
	"github.com/RyanBlaney/sonido-mimic/mimic/config"
	"github.com/RyanBlaney/sonido-mimic/nn"
)

const (
	testWindow       = 6
	testCoefficients = 4
	testKeypoints    = 2
)

func init() {
	logging.SetGlobalLogger(nil)
}

// smallArchitecture keeps training fast on 6x4 windows.
func smallArchitecture(window, coefficients, keypoints int) nn.Architecture {
	return nn.Architecture{
		Input: nn.Shape{window, coefficients, 1},
		Layers: []nn.LayerSpec{
			nn.DepthwiseConv2D(3, 3, 2, nn.ReLU),
			nn.MaxPool2D(2, 2, 1, 1),
			nn.Flatten(),
			nn.Dense(8, nn.ReLU),
			nn.Dropout(0.3),
			nn.Dense(2*keypoints, nn.Linear),
		},
		LearningRate: 0.01,
	}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Feature.Coefficients = testCoefficients
	cfg.Session.WindowCapacity = testWindow
	cfg.Session.TickInterval = time.Millisecond
	cfg.Pose.Keypoints = testKeypoints
	cfg.Training.Epochs = 3
	cfg.Training.BatchSize = 4
	cfg.Training.Seed = 1
	return cfg
}

// vector returns a distinct vector for push number i.
func vector(i, coefficients int) FeatureVector {
	v := make(FeatureVector, coefficients)
	for j := range v {
		v[j] = float64(i*coefficients+j) * 0.1
	}
	return v
}

func fillWindow(t *testing.T, w *FeatureWindow, n int) {
	t.Helper()
	for i := range n {
		require.NoError(t, w.Push(vector(i, w.Coefficients())))
	}
}

func testPose() *PoseResult {
	return &PoseResult{
		Width:  600,
		Height: 480,
		Keypoints: []Keypoint{
			{Part: "nose", Score: 0.9, X: 300, Y: 120},
			{Part: "leftEye", Score: 0.8, X: 280, Y: 100},
			{Part: "rightEye", Score: 0.8, X: 320, Y: 100},
		},
	}
}

type staticPoses struct {
	snapshot LandmarkSnapshot
	err      error
}

func (s staticPoses) Landmarks() (LandmarkSnapshot, error) {
	return s.snapshot, s.err
}

// recordedCorpus returns a corpus of n examples over testWindow x
// testCoefficients windows.
func recordedCorpus(t *testing.T, n int) *Corpus {
	t.Helper()
	corpus := NewCorpus()
	for i := range n {
		w, err := NewFeatureWindow(testWindow, testCoefficients)
		require.NoError(t, err)
		for j := range testWindow {
			v := make(FeatureVector, testCoefficients)
			for k := range v {
				v[k] = math.Sin(float64(7*i + 3*j + k))
			}
			require.NoError(t, w.Push(v))
		}
		input, err := w.ReadyNormalized(config.DegenerateSkip)
		require.NoError(t, err)
		label := LandmarkSnapshot{{X: float64(i%5) / 5, Y: 0.5}, {X: 0.25, Y: float64(i%3) / 3}}
		corpus.Append(NewTrainingExample(input, label, time.Now()))
	}
	return corpus
}
