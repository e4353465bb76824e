package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Param is a trainable buffer with its accumulated gradient.
type Param struct {
	Name  string
	Value []float64
	Grad  []float64
}

func newParam(name string, n int) *Param {
	return &Param{Name: name, Value: make([]float64, n), Grad: make([]float64, n)}
}

// Layer is one assembled stage of a Model. Forward caches what Backward
// needs, so calls must alternate per example.
type Layer interface {
	Name() string
	OutputShape() Shape
	Forward(in *Tensor, training bool) *Tensor
	Backward(gradOut *Tensor) *Tensor
	Params() []*Param
}

// glorotUniform fills w from U(-l, l) with l = sqrt(6/(fanIn+fanOut)).
func glorotUniform(w []float64, fanIn, fanOut int, rng *rand.Rand) {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	dist := distuv.Uniform{Min: -limit, Max: limit, Src: rng}
	for i := range w {
		w[i] = dist.Rand()
	}
}

func activate(act Activation, preact, out []float64) {
	if act == ReLU {
		for i, v := range preact {
			out[i] = math.Max(v, 0)
		}
		return
	}
	copy(out, preact)
}

// activationGrad multiplies grad in place by the activation derivative.
func activationGrad(act Activation, preact, grad []float64) {
	if act != ReLU {
		return
	}
	for i, v := range preact {
		if v <= 0 {
			grad[i] = 0
		}
	}
}

type dense struct {
	name    string
	in, out int
	act     Activation

	w, b    *Param
	weights *mat.Dense // out x in view over w.Value

	input  []float64
	preact []float64
}

func newDense(name string, in, out int, act Activation, rng *rand.Rand) *dense {
	d := &dense{
		name: name,
		in:   in,
		out:  out,
		act:  act,
		w:    newParam(name+"/kernel", out*in),
		b:    newParam(name+"/bias", out),
	}
	glorotUniform(d.w.Value, in, out, rng)
	d.weights = mat.NewDense(out, in, d.w.Value)
	return d
}

func (d *dense) Name() string       { return d.name }
func (d *dense) OutputShape() Shape { return Flat(d.out) }
func (d *dense) Params() []*Param   { return []*Param{d.w, d.b} }

func (d *dense) Forward(in *Tensor, training bool) *Tensor {
	d.input = append(d.input[:0], in.Data...)

	y := mat.NewVecDense(d.out, nil)
	y.MulVec(d.weights, mat.NewVecDense(d.in, d.input))

	d.preact = append(d.preact[:0], y.RawVector().Data...)
	floats.Add(d.preact, d.b.Value)

	out := NewTensor(Flat(d.out))
	activate(d.act, d.preact, out.Data)
	return out
}

func (d *dense) Backward(gradOut *Tensor) *Tensor {
	g := append([]float64(nil), gradOut.Data...)
	activationGrad(d.act, d.preact, g)

	floats.Add(d.b.Grad, g)
	for o, gv := range g {
		if gv == 0 {
			continue
		}
		floats.AddScaled(d.w.Grad[o*d.in:(o+1)*d.in], gv, d.input)
	}

	gradIn := mat.NewVecDense(d.in, nil)
	gradIn.MulVec(d.weights.T(), mat.NewVecDense(d.out, g))
	return &Tensor{Shape: Flat(d.in), Data: gradIn.RawVector().Data}
}

type flatten struct {
	name string
	in   Shape
}

func (f *flatten) Name() string       { return f.name }
func (f *flatten) OutputShape() Shape { return Flat(f.in.Size()) }
func (f *flatten) Params() []*Param   { return nil }

// Forward keeps the row-major height, width, channel order.
func (f *flatten) Forward(in *Tensor, training bool) *Tensor {
	return &Tensor{Shape: f.OutputShape(), Data: in.Data}
}

func (f *flatten) Backward(gradOut *Tensor) *Tensor {
	return &Tensor{Shape: f.in, Data: gradOut.Data}
}

type dropout struct {
	name  string
	shape Shape
	rate  float64
	rng   *rand.Rand

	mask []float64
}

func (d *dropout) Name() string       { return d.name }
func (d *dropout) OutputShape() Shape { return d.shape }
func (d *dropout) Params() []*Param   { return nil }

func (d *dropout) Forward(in *Tensor, training bool) *Tensor {
	if !training || d.rate == 0 {
		d.mask = d.mask[:0]
		return in
	}

	keep := 1 - d.rate
	coin := distuv.Bernoulli{P: keep, Src: d.rng}
	if cap(d.mask) < len(in.Data) {
		d.mask = make([]float64, len(in.Data))
	}
	d.mask = d.mask[:len(in.Data)]

	out := NewTensor(in.Shape)
	for i, v := range in.Data {
		d.mask[i] = coin.Rand() / keep
		out.Data[i] = v * d.mask[i]
	}
	return out
}

func (d *dropout) Backward(gradOut *Tensor) *Tensor {
	if len(d.mask) == 0 {
		return gradOut
	}
	grad := NewTensor(gradOut.Shape)
	floats.MulTo(grad.Data, gradOut.Data, d.mask)
	return grad
}
