// Package backbone wraps the frozen pretrained feature extractor that sits
// under the trainable classifier head.
package backbone

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/petalnet/core/model"
	"github.com/YuminosukeSato/petalnet/core/tensor"
)

// Input geometry expected by every backbone.
const (
	InputChannels = 3
	InputSize     = 224
)

// Backbone turns a batch of normalized images into feature vectors.
type Backbone interface {
	Architecture() Architecture
	// OutputSize is the feature width, the head's input size.
	OutputSize() int
	// Extract returns one row of features per sample of an NCHW batch.
	Extract(batch *tensor.Tensor) (*mat.Dense, error)
	// Parameters returns the backbone's own parameters, all of which are frozen by Assemble.
	Parameters() []*model.Parameter
	Close() error
}

// Options controls how a backbone is opened.
type Options struct {
	// ModelDir holds <arch>.onnx exports.
	ModelDir string
	// SharedLibraryPath points at the onnxruntime shared library. Empty uses the runtime default.
	SharedLibraryPath string
	// UseGPU appends the CUDA execution provider.
	UseGPU bool
}

// Factory opens a backbone. Pipelines take a Factory so tests can substitute a fake.
type Factory func(arch Architecture, opts Options) (Backbone, error)

// Device names the execution provider chosen by opts.
func (o Options) Device() string {
	if o.UseGPU {
		return "cuda"
	}
	return "cpu"
}
