// Package tensor provides the dense float32 image tensor exchanged between
// preprocessing, the backbone and the prediction decoder.
//
// Layout is row-major: a single image is CHW, a batch is NCHW.
package tensor

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// Tensor is a row-major float32 tensor.
type Tensor struct {
	Shape []int
	Data  []float32
}

// New allocates a zero tensor of the given shape.
func New(shape ...int) *Tensor {
	return &Tensor{Shape: slices.Clone(shape), Data: make([]float32, numel(shape))}
}

// FromData wraps data without copying. len(data) must match the shape.
func FromData(data []float32, shape ...int) (*Tensor, error) {
	if n := numel(shape); n != len(data) {
		return nil, errors.NewShapeMismatchError("tensor", shape, []int{len(data)})
	}
	return &Tensor{Shape: slices.Clone(shape), Data: data}, nil
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	return len(t.Data)
}

// Dims returns the number of dimensions.
func (t *Tensor) Dims() int {
	return len(t.Shape)
}

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("tensor: index rank %d does not match shape %v", len(idx), t.Shape))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.Shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.Shape))
		}
		off = off*t.Shape[i] + v
	}
	return off
}

// At returns the element at idx.
func (t *Tensor) At(idx ...int) float32 {
	return t.Data[t.offset(idx)]
}

// Set stores v at idx.
func (t *Tensor) Set(v float32, idx ...int) {
	t.Data[t.offset(idx)] = v
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

// Equal reports whether both tensors have the same shape and identical data.
func (t *Tensor) Equal(o *Tensor) bool {
	return slices.Equal(t.Shape, o.Shape) && slices.Equal(t.Data, o.Data)
}

// BatchSize returns the leading dimension of an NCHW tensor, or 1 for a CHW tensor.
func (t *Tensor) BatchSize() int {
	if len(t.Shape) == 4 {
		return t.Shape[0]
	}
	return 1
}

// Sample returns a view of the i-th element of a batch as a CHW tensor.
func (t *Tensor) Sample(i int) *Tensor {
	if len(t.Shape) != 4 {
		if i != 0 {
			panic(fmt.Sprintf("tensor: sample %d of unbatched tensor", i))
		}
		return t
	}
	size := numel(t.Shape[1:])
	return &Tensor{Shape: slices.Clone(t.Shape[1:]), Data: t.Data[i*size : (i+1)*size]}
}

// Batched returns t with a leading batch dimension, adding one of size 1 to a CHW tensor.
func (t *Tensor) Batched() *Tensor {
	if len(t.Shape) == 4 {
		return t
	}
	return &Tensor{Shape: append([]int{1}, t.Shape...), Data: t.Data}
}

// Stack joins CHW tensors of identical shape into one NCHW tensor.
func Stack(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, errors.ErrEmptyData
	}
	shape := ts[0].Shape
	out := New(append([]int{len(ts)}, shape...)...)
	size := numel(shape)
	for i, t := range ts {
		if !slices.Equal(t.Shape, shape) {
			return nil, errors.NewShapeMismatchError(fmt.Sprintf("tensor[%d]", i), shape, t.Shape)
		}
		copy(out.Data[i*size:], t.Data)
	}
	return out, nil
}

// ToDense flattens every sample into one row of a float64 matrix.
func (t *Tensor) ToDense() *mat.Dense {
	b := t.Batched()
	n := b.Shape[0]
	cols := numel(b.Shape[1:])
	data := make([]float64, len(b.Data))
	for i, v := range b.Data {
		data[i] = float64(v)
	}
	return mat.NewDense(n, cols, data)
}
