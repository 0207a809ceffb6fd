package neural

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/petalnet/core/model"
)

// LayerShape describes one named weight tensor of the head.
type LayerShape struct {
	Name  string
	Shape []int
}

// LayerName returns the name of the i-th (1-based) fully connected layer.
func LayerName(i int) string {
	return fmt.Sprintf("fc%d", i)
}

// LayerShapes lists every weight tensor of a head with the given sizes, in
// layer order: fc1.weight (h1, in), fc1.bias (h1), ..., fcN.weight (out, hN-1).
func LayerShapes(inputSize int, hiddenSizes []int, outputSize int) []LayerShape {
	sizes := layerSizes(inputSize, hiddenSizes, outputSize)
	shapes := make([]LayerShape, 0, 2*(len(sizes)-1))
	for i := 1; i < len(sizes); i++ {
		name := LayerName(i)
		shapes = append(shapes,
			LayerShape{Name: name + ".weight", Shape: []int{sizes[i], sizes[i-1]}},
			LayerShape{Name: name + ".bias", Shape: []int{sizes[i]}},
		)
	}
	return shapes
}

func layerSizes(inputSize int, hiddenSizes []int, outputSize int) []int {
	sizes := make([]int, 0, len(hiddenSizes)+2)
	sizes = append(sizes, inputSize)
	sizes = append(sizes, hiddenSizes...)
	return append(sizes, outputSize)
}

// Linear is a fully connected layer y = x W^T + b with W of shape (out, in).
type Linear struct {
	name   string
	in     int
	out    int
	weight *mat.Dense
	bias   []float64

	weightParam *model.Parameter
	biasParam   *model.Parameter

	input *mat.Dense
}

// NewLinear creates a layer initialized from U(-1/sqrt(in), 1/sqrt(in)).
func NewLinear(name string, in, out int, src rand.Source) *Linear {
	bound := 1 / math.Sqrt(float64(in))
	dist := distuv.Uniform{Min: -bound, Max: bound, Src: src}

	w := make([]float64, out*in)
	for i := range w {
		w[i] = dist.Rand()
	}
	b := make([]float64, out)
	for i := range b {
		b[i] = dist.Rand()
	}

	l := &Linear{
		name:   name,
		in:     in,
		out:    out,
		weight: mat.NewDense(out, in, w),
		bias:   b,
	}
	l.weightParam = model.NewParameter(name+".weight", []int{out, in}, w)
	l.biasParam = model.NewParameter(name+".bias", []int{out}, b)
	return l
}

// Forward computes x W^T + b and remembers x for Backward.
func (l *Linear) Forward(x *mat.Dense) *mat.Dense {
	n, _ := x.Dims()
	out := mat.NewDense(n, l.out, nil)
	out.Mul(x, l.weight.T())
	for i := 0; i < n; i++ {
		row := out.RawRowView(i)
		for j := range row {
			row[j] += l.bias[j]
		}
	}
	l.input = x
	return out
}

// Backward accumulates dW = dy^T x and db = sum(dy) and returns dx = dy W.
func (l *Linear) Backward(dy *mat.Dense) *mat.Dense {
	var dw mat.Dense
	dw.Mul(dy.T(), l.input)
	gw := mat.NewDense(l.out, l.in, l.weightParam.Grad)
	gw.Add(gw, &dw)

	n, _ := dy.Dims()
	for i := 0; i < n; i++ {
		for j, v := range dy.RawRowView(i) {
			l.biasParam.Grad[j] += v
		}
	}

	dx := mat.NewDense(n, l.in, nil)
	dx.Mul(dy, l.weight)
	return dx
}

// Parameters returns the weight and bias.
func (l *Linear) Parameters() []*model.Parameter {
	return []*model.Parameter{l.weightParam, l.biasParam}
}

// reluInPlace clamps negatives to zero and returns the mask of active units.
// NaN passes through unchanged.
func reluInPlace(x *mat.Dense) []bool {
	raw := x.RawMatrix()
	mask := make([]bool, raw.Rows*raw.Cols)
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for j, v := range row {
			if v > 0 || v != v {
				mask[i*raw.Cols+j] = true
			} else {
				row[j] = 0
			}
		}
	}
	return mask
}

// dropoutInPlace zeroes units with probability p and scales survivors by 1/(1-p).
func dropoutInPlace(x *mat.Dense, p float64, src rand.Source) []float64 {
	keep := distuv.Bernoulli{P: 1 - p, Src: src}
	scale := 1 / (1 - p)
	raw := x.RawMatrix()
	mask := make([]float64, raw.Rows*raw.Cols)
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for j := range row {
			m := keep.Rand() * scale
			mask[i*raw.Cols+j] = m
			row[j] *= m
		}
	}
	return mask
}

// LogSoftmax computes a row-wise, max-shifted log-softmax.
func LogSoftmax(x *mat.Dense) *mat.Dense {
	n, c := x.Dims()
	out := mat.NewDense(n, c, nil)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		maxV := math.Inf(-1)
		for _, v := range row {
			if v > maxV {
				maxV = v
			}
		}
		var sum float64
		for _, v := range row {
			sum += math.Exp(v - maxV)
		}
		logSum := maxV + math.Log(sum)
		dst := out.RawRowView(i)
		for j, v := range row {
			dst[j] = v - logSum
		}
	}
	return out
}
