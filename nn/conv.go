package nn

import (
	"math"
	"math/rand/v2"
)

// depthwiseConv convolves every input channel with depthMultiplier kernels of
// its own (valid padding, stride 1). Output channel c*dm+m comes from input
// channel c and kernel m, matching the usual depthwise layout.
type depthwiseConv struct {
	name   string
	in     Shape
	out    Shape
	kh, kw int
	dm     int
	act    Activation

	kernel *Param // [kh][kw][inC][dm]
	bias   *Param // [inC*dm]

	input  *Tensor
	preact []float64
}

func newDepthwiseConv(name string, in Shape, kh, kw, dm int, act Activation, rng *rand.Rand) *depthwiseConv {
	c := &depthwiseConv{
		name:   name,
		in:     in,
		out:    Shape{in[0] - kh + 1, in[1] - kw + 1, in[2] * dm},
		kh:     kh,
		kw:     kw,
		dm:     dm,
		act:    act,
		kernel: newParam(name+"/depthwise_kernel", kh*kw*in[2]*dm),
		bias:   newParam(name+"/bias", in[2]*dm),
	}
	glorotUniform(c.kernel.Value, kh*kw*in[2], kh*kw*dm, rng)
	return c
}

func (c *depthwiseConv) Name() string       { return c.name }
func (c *depthwiseConv) OutputShape() Shape { return c.out }
func (c *depthwiseConv) Params() []*Param   { return []*Param{c.kernel, c.bias} }

func (c *depthwiseConv) kernelIndex(u, v, ch, m int) int {
	return ((u*c.kw+v)*c.in[2]+ch)*c.dm + m
}

func (c *depthwiseConv) Forward(in *Tensor, training bool) *Tensor {
	c.input = in
	out := NewTensor(c.out)
	if cap(c.preact) < len(out.Data) {
		c.preact = make([]float64, len(out.Data))
	}
	c.preact = c.preact[:len(out.Data)]

	inC := c.in[2]
	for i := range c.out[0] {
		for j := range c.out[1] {
			for ch := range inC {
				for m := range c.dm {
					sum := c.bias.Value[ch*c.dm+m]
					for u := range c.kh {
						for v := range c.kw {
							sum += in.Data[in.index(i+u, j+v, ch)] * c.kernel.Value[c.kernelIndex(u, v, ch, m)]
						}
					}
					c.preact[out.index(i, j, ch*c.dm+m)] = sum
				}
			}
		}
	}

	activate(c.act, c.preact, out.Data)
	return out
}

func (c *depthwiseConv) Backward(gradOut *Tensor) *Tensor {
	g := append([]float64(nil), gradOut.Data...)
	activationGrad(c.act, c.preact, g)

	gradIn := NewTensor(c.in)
	inC := c.in[2]
	for i := range c.out[0] {
		for j := range c.out[1] {
			for ch := range inC {
				for m := range c.dm {
					oc := ch*c.dm + m
					gv := g[gradOut.index(i, j, oc)]
					if gv == 0 {
						continue
					}
					c.bias.Grad[oc] += gv
					for u := range c.kh {
						for v := range c.kw {
							k := c.kernelIndex(u, v, ch, m)
							x := c.input.index(i+u, j+v, ch)
							c.kernel.Grad[k] += gv * c.input.Data[x]
							gradIn.Data[x] += gv * c.kernel.Value[k]
						}
					}
				}
			}
		}
	}
	return gradIn
}

// maxPool takes the maximum over each pool window (valid padding).
type maxPool struct {
	name   string
	in     Shape
	out    Shape
	ph, pw int
	sh, sw int

	argmax []int
}

func newMaxPool(name string, in Shape, ph, pw, sh, sw int) *maxPool {
	return &maxPool{
		name: name,
		in:   in,
		out:  Shape{(in[0]-ph)/sh + 1, (in[1]-pw)/sw + 1, in[2]},
		ph:   ph,
		pw:   pw,
		sh:   sh,
		sw:   sw,
	}
}

func (p *maxPool) Name() string       { return p.name }
func (p *maxPool) OutputShape() Shape { return p.out }
func (p *maxPool) Params() []*Param   { return nil }

func (p *maxPool) Forward(in *Tensor, training bool) *Tensor {
	out := NewTensor(p.out)
	if cap(p.argmax) < len(out.Data) {
		p.argmax = make([]int, len(out.Data))
	}
	p.argmax = p.argmax[:len(out.Data)]

	for i := range p.out[0] {
		for j := range p.out[1] {
			for ch := range p.out[2] {
				best := math.Inf(-1)
				bestIdx := -1
				for u := range p.ph {
					for v := range p.pw {
						idx := in.index(i*p.sh+u, j*p.sw+v, ch)
						if in.Data[idx] > best {
							best = in.Data[idx]
							bestIdx = idx
						}
					}
				}
				o := out.index(i, j, ch)
				out.Data[o] = best
				p.argmax[o] = bestIdx
			}
		}
	}
	return out
}

func (p *maxPool) Backward(gradOut *Tensor) *Tensor {
	gradIn := NewTensor(p.in)
	for o, idx := range p.argmax {
		if idx >= 0 {
			gradIn.Data[idx] += gradOut.Data[o]
		}
	}
	return gradIn
}
