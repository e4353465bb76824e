package nn

import "fmt"

// Shape is the [height, width, channels] shape of one example. Flat vectors
// use [1, 1, n].
type Shape [3]int

// Flat returns the shape of an n-element vector.
func Flat(n int) Shape {
	return Shape{1, 1, n}
}

// Size returns the number of scalars in the shape.
func (s Shape) Size() int {
	return s[0] * s[1] * s[2]
}

func (s Shape) valid() bool {
	return s[0] > 0 && s[1] > 0 && s[2] > 0
}

func (s Shape) String() string {
	return fmt.Sprintf("[%d,%d,%d]", s[0], s[1], s[2])
}

// Tensor is one example laid out row-major as height, width, channels.
type Tensor struct {
	Shape Shape
	Data  []float64
}

// NewTensor allocates a zeroed tensor.
func NewTensor(shape Shape) *Tensor {
	return &Tensor{Shape: shape, Data: make([]float64, shape.Size())}
}

func (t *Tensor) index(h, w, c int) int {
	return (h*t.Shape[1]+w)*t.Shape[2] + c
}

// Batch stacks N examples of identical shape into one contiguous buffer,
// the (N, H, W, C) layout the trainer feeds to Fit.
type Batch struct {
	N      int
	Sample Shape
	Data   []float64
}

// NewBatch allocates a zeroed batch of n examples.
func NewBatch(n int, sample Shape) *Batch {
	return &Batch{N: n, Sample: sample, Data: make([]float64, n*sample.Size())}
}

// Row returns the i-th example; the slice aliases the batch buffer.
func (b *Batch) Row(i int) []float64 {
	size := b.Sample.Size()
	return b.Data[i*size : (i+1)*size]
}

// Set copies example into slot i.
func (b *Batch) Set(i int, example []float64) error {
	if len(example) != b.Sample.Size() {
		return fmt.Errorf("example %d has %d values, want %d: %w", i, len(example), b.Sample.Size(), ErrShape)
	}
	copy(b.Row(i), example)
	return nil
}
