package nn

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyArchitecture(act Activation) Architecture {
	return Architecture{
		Input: Shape{5, 4, 2},
		Layers: []LayerSpec{
			DepthwiseConv2D(2, 2, 2, act),
			MaxPool2D(2, 2, 1, 1),
			Flatten(),
			Dense(6, act),
			Dense(3, Linear),
		},
		LearningRate: 0.01,
	}
}

func randomInput(shape Shape, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	x := make([]float64, shape.Size())
	for i := range x {
		x[i] = rng.Float64()*2 - 1
	}
	return x
}

func TestBuildShapes(t *testing.T) {
	m, err := Build(tinyArchitecture(ReLU), 1)
	require.NoError(t, err)

	// conv 5x4x2 -> 4x3x4, pool -> 3x2x4, flatten -> 24
	assert.Equal(t, Shape{4, 3, 4}, m.layers[0].OutputShape())
	assert.Equal(t, Shape{3, 2, 4}, m.layers[1].OutputShape())
	assert.Equal(t, Flat(24), m.layers[2].OutputShape())
	assert.Equal(t, Flat(3), m.OutputShape())

	// conv 2*2*2*2+4, dense 24*6+6, dense 6*3+3
	assert.Equal(t, 20+150+21, m.ParamCount())
	assert.Contains(t, m.Summary(), "depthwise_conv2d_0")
}

func TestBuildRejectsInvalid(t *testing.T) {
	cases := map[string]Architecture{
		"empty input": {Input: Shape{0, 1, 1}, Layers: []LayerSpec{Flatten()}, LearningRate: 0.1},
		"no layers":   {Input: Shape{2, 2, 1}, LearningRate: 0.1},
		"zero lr":     {Input: Shape{2, 2, 1}, Layers: []LayerSpec{Flatten()}},
		"kernel too large": {
			Input:        Shape{4, 4, 1},
			Layers:       []LayerSpec{DepthwiseConv2D(5, 2, 1, ReLU)},
			LearningRate: 0.1,
		},
		"dense before flatten": {
			Input:        Shape{4, 4, 1},
			Layers:       []LayerSpec{Dense(3, ReLU)},
			LearningRate: 0.1,
		},
		"dropout rate": {
			Input:        Shape{1, 1, 4},
			Layers:       []LayerSpec{Dropout(1)},
			LearningRate: 0.1,
		},
		"unknown activation": {
			Input:        Shape{1, 1, 4},
			Layers:       []LayerSpec{Dense(2, "tanh")},
			LearningRate: 0.1,
		},
	}

	for name, arch := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Build(arch, 1)
			assert.ErrorIs(t, err, ErrInvalidArchitecture)
		})
	}
}

func TestBuildIsDeterministicPerSeed(t *testing.T) {
	x := randomInput(Shape{5, 4, 2}, 7)

	a, err := Build(tinyArchitecture(ReLU), 42)
	require.NoError(t, err)
	b, err := Build(tinyArchitecture(ReLU), 42)
	require.NoError(t, err)

	pa, err := a.Predict(x)
	require.NoError(t, err)
	pb, err := b.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestPredictShape(t *testing.T) {
	m, err := Build(tinyArchitecture(ReLU), 3)
	require.NoError(t, err)

	out, err := m.Predict(randomInput(m.InputShape(), 1))
	require.NoError(t, err)
	assert.Len(t, out, 3)

	_, err = m.Predict(make([]float64, 7))
	assert.ErrorIs(t, err, ErrShape)
}

// TestGradients compares backpropagated gradients with central differences.
// Linear activations keep the loss smooth away from pooling ties.
func TestGradients(t *testing.T) {
	m, err := Build(tinyArchitecture(Linear), 5)
	require.NoError(t, err)

	x := randomInput(m.InputShape(), 11)
	target := []float64{0.3, -0.2, 0.5}

	loss := func() float64 {
		pred := m.forward(x, false)
		return MeanSquaredError(pred.Data, target)
	}

	grad := make([]float64, 3)
	pred := m.forward(x, true)
	mseGrad(pred.Data, target, grad, 1)
	m.backward(grad)

	const h = 1e-5
	for _, p := range m.params {
		for i := range p.Value {
			orig := p.Value[i]
			p.Value[i] = orig + h
			up := loss()
			p.Value[i] = orig - h
			down := loss()
			p.Value[i] = orig

			numeric := (up - down) / (2 * h)
			assert.InDelta(t, numeric, p.Grad[i], 1e-6, "%s[%d]", p.Name, i)
		}
	}
}

func TestFitReducesLoss(t *testing.T) {
	arch := Architecture{
		Input: Shape{4, 4, 1},
		Layers: []LayerSpec{
			DepthwiseConv2D(2, 2, 2, ReLU),
			MaxPool2D(2, 2, 1, 1),
			Flatten(),
			Dense(8, ReLU),
			Dense(2, Linear),
		},
		LearningRate: 0.01,
	}
	m, err := Build(arch, 9)
	require.NoError(t, err)

	const n = 12
	xs := NewBatch(n, arch.Input)
	ys := NewBatch(n, Flat(2))
	for i := 0; i < n; i++ {
		x := randomInput(arch.Input, uint64(i))
		require.NoError(t, xs.Set(i, x))
		require.NoError(t, ys.Set(i, []float64{x[0] * 0.5, x[5] - x[10]}))
	}

	var seen []int
	history, err := m.Fit(context.Background(), xs, ys, FitConfig{
		Epochs:     60,
		BatchSize:  4,
		Shuffle:    true,
		OnEpochEnd: func(l EpochLog) { seen = append(seen, l.Epoch) },
	})
	require.NoError(t, err)
	require.Len(t, history.Epochs, 60)
	assert.Len(t, seen, 60)
	assert.Equal(t, 1, seen[0])

	first, last := history.Epochs[0], history.Last()
	assert.Less(t, last.Loss, first.Loss)
	assert.Equal(t, last.Loss, last.MSE)
	assert.False(t, math.IsNaN(last.MAPE))
	assert.Equal(t, 60*3, m.optimizer.Steps())
}

func TestFitValidatesShapes(t *testing.T) {
	m, err := Build(tinyArchitecture(ReLU), 1)
	require.NoError(t, err)
	ctx := context.Background()
	cfg := FitConfig{Epochs: 1, BatchSize: 2}

	_, err = m.Fit(ctx, NewBatch(0, m.InputShape()), NewBatch(0, Flat(3)), cfg)
	assert.ErrorIs(t, err, ErrShape)

	_, err = m.Fit(ctx, NewBatch(2, m.InputShape()), NewBatch(3, Flat(3)), cfg)
	assert.ErrorIs(t, err, ErrShape)

	_, err = m.Fit(ctx, NewBatch(2, Shape{1, 1, 3}), NewBatch(2, Flat(3)), cfg)
	assert.ErrorIs(t, err, ErrShape)

	_, err = m.Fit(ctx, NewBatch(2, m.InputShape()), NewBatch(2, Flat(4)), cfg)
	assert.ErrorIs(t, err, ErrShape)

	_, err = m.Fit(ctx, NewBatch(2, m.InputShape()), NewBatch(2, Flat(3)), FitConfig{})
	assert.Error(t, err)
}

func TestFitStopsBetweenEpochs(t *testing.T) {
	m, err := Build(tinyArchitecture(ReLU), 1)
	require.NoError(t, err)

	xs := NewBatch(4, m.InputShape())
	ys := NewBatch(4, Flat(3))
	ctx, cancel := context.WithCancel(context.Background())

	history, err := m.Fit(ctx, xs, ys, FitConfig{
		Epochs:    10,
		BatchSize: 2,
		OnEpochEnd: func(l EpochLog) {
			if l.Epoch == 2 {
				cancel()
			}
		},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, history.Epochs, 2)
}

func TestDropoutOnlyWhileTraining(t *testing.T) {
	d := &dropout{name: "d", shape: Flat(1000), rate: 0.5, rng: rand.New(rand.NewPCG(1, 2))}
	in := NewTensor(Flat(1000))
	for i := range in.Data {
		in.Data[i] = 1
	}

	assert.Equal(t, in.Data, d.Forward(in, false).Data)

	out := d.Forward(in, true)
	zeros := 0
	for _, v := range out.Data {
		if v == 0 {
			zeros++
		} else {
			assert.InDelta(t, 2.0, v, 1e-12)
		}
	}
	assert.InDelta(t, 500, zeros, 100)
}

func TestMetrics(t *testing.T) {
	pred := []float64{1, 2, 3}
	target := []float64{1, 0, 6}

	assert.InDelta(t, (0+4+9)/3.0, MeanSquaredError(pred, target), 1e-12)
	assert.InDelta(t, (0+2+3)/3.0, MeanAbsoluteError(pred, target), 1e-12)
	assert.InDelta(t, 100*(0+2/mapeEpsilon+0.5)/3, MeanAbsolutePercentageError(pred, target), 1e-3)
	assert.InDelta(t, 1, CosineSimilarity(pred, []float64{2, 4, 6}), 1e-12)
	assert.Equal(t, 0.0, CosineSimilarity(pred, []float64{0, 0, 0}))
}
