// Package backbonetest provides an in-process Backbone for tests that cannot
// load ONNX Runtime.
package backbonetest

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/petalnet/backbone"
	"github.com/YuminosukeSato/petalnet/core/model"
	"github.com/YuminosukeSato/petalnet/core/tensor"
)

// Fake average-pools each sample's flattened pixels into Width buckets.
// Its one parameter exists so that freezing can be observed.
type Fake struct {
	Arch   backbone.Architecture
	Width  int
	Params []*model.Parameter
	Calls  int
	Closed bool
}

var _ backbone.Backbone = (*Fake)(nil)

// New returns a Fake with the given feature width.
func New(arch backbone.Architecture, width int) *Fake {
	return &Fake{
		Arch:   arch,
		Width:  width,
		Params: []*model.Parameter{model.NewParameter("conv1.weight", []int{1}, []float64{1})},
	}
}

// Factory returns a backbone.Factory that always yields a fresh Fake of the given width.
func Factory(width int) backbone.Factory {
	return func(arch backbone.Architecture, _ backbone.Options) (backbone.Backbone, error) {
		return New(arch, width), nil
	}
}

func (f *Fake) Architecture() backbone.Architecture { return f.Arch }
func (f *Fake) OutputSize() int                     { return f.Width }
func (f *Fake) Parameters() []*model.Parameter      { return f.Params }

func (f *Fake) Extract(batch *tensor.Tensor) (*mat.Dense, error) {
	f.Calls++
	x := batch.ToDense()
	n, cols := x.Dims()
	out := mat.NewDense(n, f.Width, nil)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		for j := 0; j < f.Width; j++ {
			lo, hi := j*cols/f.Width, (j+1)*cols/f.Width
			if hi <= lo {
				hi = lo + 1
			}
			var sum float64
			for _, v := range row[lo:min(hi, cols)] {
				sum += v
			}
			out.Set(i, j, sum/float64(hi-lo))
		}
	}
	return out, nil
}

func (f *Fake) Close() error {
	f.Closed = true
	return nil
}
