// Package neural implements the trainable classifier head: fully connected
// layers with ReLU and dropout, a log-softmax output, NLL loss and Adam.
package neural

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/petalnet/core"
	"github.com/YuminosukeSato/petalnet/core/model"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// DefaultDropout matches the dropout probability used between hidden layers.
const DefaultDropout = 0.2

// Head is input -> [fc -> relu -> dropout]* -> fc -> log_softmax.
type Head struct {
	core.BaseModule
	state *model.StateManager

	inputSize   int
	hiddenSizes []int
	outputSize  int
	dropout     float64
	src         rand.Source

	layers []*Linear

	// backward caches from the last Forward
	reluMasks    [][]bool
	dropoutMasks [][]float64
	logProbs     *mat.Dense
}

// HeadOption is a functional option for Head
type HeadOption func(*Head)

// WithDropout sets the dropout probability applied after each hidden ReLU.
func WithDropout(p float64) HeadOption {
	return func(h *Head) {
		h.dropout = p
	}
}

// WithSeed makes initialization and dropout reproducible.
func WithSeed(seed uint64) HeadOption {
	return func(h *Head) {
		h.src = rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	}
}

// NewHead builds a head with len(hiddenSizes)+1 linear layers.
func NewHead(inputSize int, hiddenSizes []int, outputSize int, opts ...HeadOption) (*Head, error) {
	if inputSize <= 0 {
		return nil, errors.NewConfigError("input_size", "must be positive", inputSize)
	}
	if outputSize <= 0 {
		return nil, errors.NewConfigError("output_size", "must be positive", outputSize)
	}
	if len(hiddenSizes) == 0 {
		return nil, errors.NewConfigError("hidden_sizes", "at least one hidden layer is required", hiddenSizes)
	}
	for _, hs := range hiddenSizes {
		if hs <= 0 {
			return nil, errors.NewConfigError("hidden_sizes", "every hidden size must be positive", hiddenSizes)
		}
	}

	h := &Head{
		state:       model.NewStateManager(),
		inputSize:   inputSize,
		hiddenSizes: append([]int(nil), hiddenSizes...),
		outputSize:  outputSize,
		dropout:     DefaultDropout,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.dropout < 0 || h.dropout >= 1 {
		return nil, errors.NewConfigError("dropout", "must be in [0, 1)", h.dropout)
	}
	if h.src == nil {
		h.src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}

	sizes := layerSizes(inputSize, hiddenSizes, outputSize)
	for i := 1; i < len(sizes); i++ {
		h.layers = append(h.layers, NewLinear(LayerName(i), sizes[i-1], sizes[i], h.src))
	}
	return h, nil
}

func (h *Head) InputSize() int     { return h.inputSize }
func (h *Head) HiddenSizes() []int { return append([]int(nil), h.hiddenSizes...) }
func (h *Head) OutputSize() int    { return h.outputSize }

// State exposes the trained flag.
func (h *Head) State() *model.StateManager { return h.state }

// Parameters returns all layer parameters in LayerShapes order.
func (h *Head) Parameters() []*model.Parameter {
	params := make([]*model.Parameter, 0, 2*len(h.layers))
	for _, l := range h.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

// Forward maps (N, inputSize) features to (N, outputSize) log-probabilities.
func (h *Head) Forward(x *mat.Dense) (out *mat.Dense, err error) {
	defer errors.Recover(&err, "Head.Forward")

	if _, c := x.Dims(); c != h.inputSize {
		return nil, errors.NewShapeMismatchError("fc1.input", []int{h.inputSize}, []int{c})
	}

	training := h.IsTraining() && h.dropout > 0
	h.reluMasks = h.reluMasks[:0]
	h.dropoutMasks = h.dropoutMasks[:0]

	a := x
	for i, l := range h.layers {
		a = l.Forward(a)
		if i == len(h.layers)-1 {
			break
		}
		h.reluMasks = append(h.reluMasks, reluInPlace(a))
		if training {
			h.dropoutMasks = append(h.dropoutMasks, dropoutInPlace(a, h.dropout, h.src))
		} else {
			h.dropoutMasks = append(h.dropoutMasks, nil)
		}
	}
	h.logProbs = LogSoftmax(a)
	return h.logProbs, nil
}

// Backward propagates the gradient of the loss w.r.t. the log-probabilities
// returned by the last Forward and accumulates parameter gradients.
func (h *Head) Backward(grad *mat.Dense) (err error) {
	defer errors.Recover(&err, "Head.Backward")

	if h.logProbs == nil {
		return errors.New("Backward called before Forward")
	}

	// log-softmax: dz = g - softmax * sum(g)
	n, c := grad.Dims()
	dz := mat.NewDense(n, c, nil)
	for i := 0; i < n; i++ {
		g := grad.RawRowView(i)
		lp := h.logProbs.RawRowView(i)
		var sum float64
		for _, v := range g {
			sum += v
		}
		row := dz.RawRowView(i)
		for j := range row {
			row[j] = g[j] - expClamped(lp[j])*sum
		}
	}

	d := dz
	for i := len(h.layers) - 1; i >= 0; i-- {
		d = h.layers[i].Backward(d)
		if i == 0 {
			break
		}
		mask := h.reluMasks[i-1]
		drop := h.dropoutMasks[i-1]
		raw := d.RawMatrix()
		for r := 0; r < raw.Rows; r++ {
			row := raw.Data[r*raw.Stride : r*raw.Stride+raw.Cols]
			for j := range row {
				k := r*raw.Cols + j
				if !mask[k] {
					row[j] = 0
					continue
				}
				if drop != nil {
					row[j] *= drop[k]
				}
			}
		}
	}
	return nil
}

// ZeroGrad clears accumulated gradients.
func (h *Head) ZeroGrad() {
	for _, p := range h.Parameters() {
		p.ZeroGrad()
	}
}

// LoadWeights copies named tensors into the head. Every layer tensor must be
// present with the exact element count; extra names are rejected.
func (h *Head) LoadWeights(weights map[string][]float64) error {
	params := h.Parameters()
	byName := make(map[string]*model.Parameter, len(params))
	for _, p := range params {
		byName[p.Name] = p
		data, ok := weights[p.Name]
		if !ok {
			return errors.NewShapeMismatchError(p.Name, p.Shape, nil)
		}
		if len(data) != len(p.Data) {
			return errors.NewShapeMismatchError(p.Name, p.Shape, []int{len(data)})
		}
	}
	for name, data := range weights {
		if _, ok := byName[name]; !ok {
			return errors.NewShapeMismatchError(name, nil, []int{len(data)})
		}
	}
	for _, p := range params {
		copy(p.Data, weights[p.Name])
	}
	return nil
}
