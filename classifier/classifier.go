// Package classifier assembles a frozen backbone and a trainable head into
// one model and converts it to and from a checkpoint.
package classifier

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/petalnet/backbone"
	"github.com/YuminosukeSato/petalnet/checkpoint"
	"github.com/YuminosukeSato/petalnet/core"
	"github.com/YuminosukeSato/petalnet/core/model"
	"github.com/YuminosukeSato/petalnet/core/tensor"
	"github.com/YuminosukeSato/petalnet/neural"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// HeadSpec sizes the head.
type HeadSpec struct {
	InputSize   int
	HiddenSizes []int
	OutputSize  int
}

// Model is a backbone followed by a classifier head. It implements model.Module.
type Model struct {
	Backbone backbone.Backbone
	Head     *neural.Head
}

var (
	_ model.Module      = (*Model)(nil)
	_ core.ModeSwitcher = (*Model)(nil)
)

// Assemble freezes every backbone parameter and attaches a fresh head.
// The backbone's feature width must equal hs.InputSize.
func Assemble(bb backbone.Backbone, hs HeadSpec, opts ...neural.HeadOption) (*Model, error) {
	if bb.OutputSize() != hs.InputSize {
		return nil, errors.NewShapeMismatchError("backbone.output", []int{hs.InputSize}, []int{bb.OutputSize()})
	}
	head, err := neural.NewHead(hs.InputSize, hs.HiddenSizes, hs.OutputSize, opts...)
	if err != nil {
		return nil, err
	}
	model.Freeze(bb.Parameters())
	return &Model{Backbone: bb, Head: head}, nil
}

// FromCheckpoint rebuilds the model described by ck on top of bb and loads its weights.
// The result is in eval mode.
func FromCheckpoint(ck *checkpoint.Checkpoint, bb backbone.Backbone) (*Model, error) {
	if bb.Architecture() != ck.Architecture {
		return nil, errors.NewSchemaError("checkpoint",
			"checkpoint was trained on "+ck.Architecture.String()+" but backbone is "+bb.Architecture().String())
	}
	m, err := Assemble(bb, HeadSpec{
		InputSize:   ck.InputSize,
		HiddenSizes: ck.HiddenSizes,
		OutputSize:  ck.OutputSize,
	}, neural.WithSeed(0))
	if err != nil {
		return nil, err
	}
	if err := m.Head.LoadWeights(ck.WeightData()); err != nil {
		return nil, err
	}
	m.Head.State().SetTrained(0, 0)
	m.Head.Eval()
	return m, nil
}

// Checkpoint captures the head's weights. The head must have been trained.
func (m *Model) Checkpoint(classToIndex map[string]int, metadata map[string]string) (*checkpoint.Checkpoint, error) {
	if err := m.Head.State().RequireTrained(); err != nil {
		return nil, err
	}
	weights := make(map[string]checkpoint.Tensor)
	for _, p := range m.Head.Parameters() {
		weights[p.Name] = checkpoint.Tensor{
			Shape: append([]int(nil), p.Shape...),
			Data:  append([]float64(nil), p.Data...),
		}
	}
	ck, err := checkpoint.New(m.Backbone.Architecture(), classToIndex,
		m.Head.InputSize(), m.Head.HiddenSizes(), m.Head.OutputSize(), weights)
	if err != nil {
		return nil, err
	}
	for k, v := range metadata {
		ck.SetMeta(k, v)
	}
	return ck, nil
}

// Forward runs the backbone then the head and returns log-probabilities.
func (m *Model) Forward(x *tensor.Tensor) (*mat.Dense, error) {
	features, err := m.Extract(x.Batched())
	if err != nil {
		return nil, err
	}
	return m.Head.Forward(features)
}

// Extract runs the backbone on an NCHW batch. NaN or Inf features are a
// NumericalInstabilityError.
func (m *Model) Extract(batch *tensor.Tensor) (*mat.Dense, error) {
	features, err := m.Backbone.Extract(batch)
	if err != nil {
		return nil, err
	}
	if err := errors.CheckValues("backbone.features", features.RawMatrix().Data, 0); err != nil {
		return nil, err
	}
	return features, nil
}

// ForwardFeatures runs only the head on precomputed backbone features.
func (m *Model) ForwardFeatures(features *mat.Dense) (*mat.Dense, error) {
	return m.Head.Forward(features)
}

// Parameters returns the backbone's frozen parameters followed by the head's.
func (m *Model) Parameters() []*model.Parameter {
	return append(append([]*model.Parameter(nil), m.Backbone.Parameters()...), m.Head.Parameters()...)
}

func (m *Model) Train()          { m.Head.Train() }
func (m *Model) Eval()           { m.Head.Eval() }
func (m *Model) Mode() core.Mode { return m.Head.Mode() }

// Close releases the backbone.
func (m *Model) Close() error {
	return m.Backbone.Close()
}
