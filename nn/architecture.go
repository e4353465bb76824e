package nn

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var (
	// ErrInvalidArchitecture reports a layer list that cannot be assembled
	// for the declared input shape.
	ErrInvalidArchitecture = errors.New("invalid architecture")
	// ErrShape reports data whose shape does not match the model.
	ErrShape = errors.New("shape mismatch")
)

// LayerKind names a layer type in an architecture descriptor.
type LayerKind string

const (
	KindDepthwiseConv2D LayerKind = "depthwise_conv2d"
	KindMaxPool2D       LayerKind = "max_pool2d"
	KindFlatten         LayerKind = "flatten"
	KindDense           LayerKind = "dense"
	KindDropout         LayerKind = "dropout"
)

// Activation is applied elementwise after a layer's affine part.
type Activation string

const (
	Linear Activation = "linear"
	ReLU   Activation = "relu"
)

// LayerSpec declares one layer. Only the fields relevant to Kind are read.
type LayerSpec struct {
	Kind            LayerKind  `json:"kind"`
	Kernel          [2]int     `json:"kernel,omitempty"`
	DepthMultiplier int        `json:"depth_multiplier,omitempty"`
	Pool            [2]int     `json:"pool,omitempty"`
	Strides         [2]int     `json:"strides,omitempty"`
	Units           int        `json:"units,omitempty"`
	Rate            float64    `json:"rate,omitempty"`
	Activation      Activation `json:"activation,omitempty"`
}

// DepthwiseConv2D declares a valid-padded, stride-1 depthwise convolution.
func DepthwiseConv2D(kernelH, kernelW, depthMultiplier int, act Activation) LayerSpec {
	return LayerSpec{
		Kind:            KindDepthwiseConv2D,
		Kernel:          [2]int{kernelH, kernelW},
		DepthMultiplier: depthMultiplier,
		Activation:      act,
	}
}

// MaxPool2D declares a valid-padded max pooling stage.
func MaxPool2D(poolH, poolW, strideH, strideW int) LayerSpec {
	return LayerSpec{
		Kind:    KindMaxPool2D,
		Pool:    [2]int{poolH, poolW},
		Strides: [2]int{strideH, strideW},
	}
}

// Flatten declares a reshape to a flat vector.
func Flatten() LayerSpec {
	return LayerSpec{Kind: KindFlatten}
}

// Dense declares a fully connected layer.
func Dense(units int, act Activation) LayerSpec {
	return LayerSpec{Kind: KindDense, Units: units, Activation: act}
}

// Dropout declares inverted dropout, active only while fitting.
func Dropout(rate float64) LayerSpec {
	return LayerSpec{Kind: KindDropout, Rate: rate}
}

// Architecture is a declarative model description: what the network is,
// independent of how Build assembles it.
type Architecture struct {
	Input        Shape       `json:"input"`
	Layers       []LayerSpec `json:"layers"`
	LearningRate float64     `json:"learning_rate"`
}

// Build validates arch and allocates a model with Glorot-uniform weights
// drawn from seed.
func Build(arch Architecture, seed uint64) (*Model, error) {
	if !arch.Input.valid() {
		return nil, fmt.Errorf("input shape %v: %w", arch.Input, ErrInvalidArchitecture)
	}
	if len(arch.Layers) == 0 {
		return nil, fmt.Errorf("no layers: %w", ErrInvalidArchitecture)
	}
	if arch.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate %g: %w", arch.LearningRate, ErrInvalidArchitecture)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	shape := arch.Input
	layers := make([]Layer, 0, len(arch.Layers))

	for i, spec := range arch.Layers {
		layer, err := buildLayer(i, spec, shape, rng)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, spec.Kind, err)
		}
		layers = append(layers, layer)
		shape = layer.OutputShape()
	}

	return newModel(arch, layers, rng), nil
}

func buildLayer(i int, spec LayerSpec, in Shape, rng *rand.Rand) (Layer, error) {
	act := spec.Activation
	if act == "" {
		act = Linear
	}
	if act != Linear && act != ReLU {
		return nil, fmt.Errorf("activation %q: %w", act, ErrInvalidArchitecture)
	}

	switch spec.Kind {
	case KindDepthwiseConv2D:
		kh, kw := spec.Kernel[0], spec.Kernel[1]
		if kh <= 0 || kw <= 0 || spec.DepthMultiplier <= 0 {
			return nil, fmt.Errorf("kernel %v depth multiplier %d: %w", spec.Kernel, spec.DepthMultiplier, ErrInvalidArchitecture)
		}
		if kh > in[0] || kw > in[1] {
			return nil, fmt.Errorf("kernel %dx%d larger than input %v: %w", kh, kw, in, ErrInvalidArchitecture)
		}
		return newDepthwiseConv(fmt.Sprintf("depthwise_conv2d_%d", i), in, kh, kw, spec.DepthMultiplier, act, rng), nil

	case KindMaxPool2D:
		ph, pw := spec.Pool[0], spec.Pool[1]
		sh, sw := spec.Strides[0], spec.Strides[1]
		if sh == 0 && sw == 0 {
			sh, sw = ph, pw
		}
		if ph <= 0 || pw <= 0 || sh <= 0 || sw <= 0 {
			return nil, fmt.Errorf("pool %v strides %v: %w", spec.Pool, spec.Strides, ErrInvalidArchitecture)
		}
		if ph > in[0] || pw > in[1] {
			return nil, fmt.Errorf("pool %dx%d larger than input %v: %w", ph, pw, in, ErrInvalidArchitecture)
		}
		return newMaxPool(fmt.Sprintf("max_pooling2d_%d", i), in, ph, pw, sh, sw), nil

	case KindFlatten:
		return &flatten{name: fmt.Sprintf("flatten_%d", i), in: in}, nil

	case KindDense:
		if spec.Units <= 0 {
			return nil, fmt.Errorf("units %d: %w", spec.Units, ErrInvalidArchitecture)
		}
		if in[0] != 1 || in[1] != 1 {
			return nil, fmt.Errorf("dense input %v is not flat: %w", in, ErrInvalidArchitecture)
		}
		return newDense(fmt.Sprintf("dense_%d", i), in[2], spec.Units, act, rng), nil

	case KindDropout:
		if spec.Rate < 0 || spec.Rate >= 1 {
			return nil, fmt.Errorf("rate %g: %w", spec.Rate, ErrInvalidArchitecture)
		}
		return &dropout{name: fmt.Sprintf("dropout_%d", i), shape: in, rate: spec.Rate, rng: rng}, nil

	default:
		return nil, fmt.Errorf("unknown kind %q: %w", spec.Kind, ErrInvalidArchitecture)
	}
}
