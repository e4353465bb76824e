package mimic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-mimic/nn"
)

func newTestTrainer() *ModelTrainer {
	return NewModelTrainer(testConfig().Training, smallArchitecture, nil)
}

func TestDefaultArchitectureShapes(t *testing.T) {
	m, err := nn.Build(DefaultArchitecture(20, 20, 5), 1)
	require.NoError(t, err)
	assert.Equal(t, nn.Flat(10), m.OutputShape())

	var dense []nn.LayerSpec
	for _, l := range DefaultArchitecture(20, 20, 5).Layers {
		if l.Kind == nn.KindDense {
			dense = append(dense, l)
		}
	}
	require.Len(t, dense, 3)
	for i, units := range []int{512, 32, 10} {
		assert.Equal(t, units, dense[i].Units)
		assert.Equal(t, nn.Linear, dense[i].Activation, "dense layer %d", i)
	}

	_, err = nn.Build(DefaultArchitecture(20, 13, 5), 1)
	assert.ErrorIs(t, err, nn.ErrInvalidArchitecture)
}

func TestTrainEmptyCorpus(t *testing.T) {
	_, err := newTestTrainer().Train(context.Background(), NewCorpus())
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestTrainInconsistentShapes(t *testing.T) {
	corpus := recordedCorpus(t, 3)
	corpus.Append(NewTrainingExample(
		NormalizedWindow{Rows: 3, Cols: testCoefficients, Data: make([]float64, 3*testCoefficients)},
		LandmarkSnapshot{{}, {}},
		time.Now(),
	))

	_, err := newTestTrainer().Train(context.Background(), corpus)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	corpus = recordedCorpus(t, 3)
	first := corpus.Snapshot()[0]
	corpus.Append(NewTrainingExample(first.Input, LandmarkSnapshot{{}}, time.Now()))
	_, err = newTestTrainer().Train(context.Background(), corpus)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestTrainProducesModel(t *testing.T) {
	corpus := recordedCorpus(t, 10)
	trainer := newTestTrainer()

	var epochs []int
	trainer.OnEpochEnd = func(l nn.EpochLog) { epochs = append(epochs, l.Epoch) }

	model, err := trainer.Train(context.Background(), corpus)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, epochs)
	assert.Len(t, model.History.Epochs, 3)
	assert.Equal(t, testWindow, model.Window)
	assert.Equal(t, testCoefficients, model.Coefficients)
	assert.Equal(t, testKeypoints, model.Keypoints)
	assert.Equal(t, 10, model.Examples)
	assert.NotEmpty(t, model.ID)

	got, err := model.Predict(corpus.Snapshot()[0].Input)
	require.NoError(t, err)
	assert.Len(t, got, testKeypoints)
	assert.Len(t, got.Flatten(), 2*testKeypoints)

	_, err = model.Predict(NormalizedWindow{Rows: 2, Cols: testCoefficients, Data: make([]float64, 8)})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestTrainIsReproducibleForSeed(t *testing.T) {
	corpus := recordedCorpus(t, 8)
	input := corpus.Snapshot()[0].Input

	a, err := newTestTrainer().Train(context.Background(), corpus)
	require.NoError(t, err)
	b, err := newTestTrainer().Train(context.Background(), corpus)
	require.NoError(t, err)

	pa, err := a.Predict(input)
	require.NoError(t, err)
	pb, err := b.Predict(input)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestTrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestTrainer().Train(ctx, recordedCorpus(t, 4))
	assert.ErrorIs(t, err, context.Canceled)
}
