// Package checkpoint defines the persisted form of a trained classifier and
// its binary codec.
//
// A checkpoint records which backbone the head was trained on, the class label
// to output index mapping, the head's layer sizes and its weights. It is
// created once at the end of training and never modified afterwards.
package checkpoint

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/YuminosukeSato/petalnet/backbone"
	"github.com/YuminosukeSato/petalnet/neural"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// DefaultFileName is the checkpoint name written by train and read by predict.
const DefaultFileName = "checkpoint_final.ckpt"

// Well-known metadata keys.
const (
	MetaRunID            = "run_id"
	MetaCreatedAt        = "created_at"
	MetaEpochs           = "epochs"
	MetaLearningRate     = "learning_rate"
	MetaValidAccuracy    = "valid_accuracy"
	MetaTestAccuracy     = "test_accuracy"
	MetaTestTopKAccuracy = "test_top_k_accuracy"
)

// Tensor is a named weight array with its shape.
type Tensor struct {
	Shape []int
	Data  []float64
}

// Checkpoint is everything needed to rebuild a trained classifier.
type Checkpoint struct {
	Architecture backbone.Architecture
	ClassToIndex map[string]int
	InputSize    int
	HiddenSizes  []int
	OutputSize   int
	Weights      map[string]Tensor
	// Metadata is optional provenance and is not validated.
	Metadata map[string]string
}

// New assembles a checkpoint and validates it.
func New(arch backbone.Architecture, classToIndex map[string]int, inputSize int, hiddenSizes []int, outputSize int, weights map[string]Tensor) (*Checkpoint, error) {
	ck := &Checkpoint{
		Architecture: arch,
		ClassToIndex: classToIndex,
		InputSize:    inputSize,
		HiddenSizes:  hiddenSizes,
		OutputSize:   outputSize,
		Weights:      weights,
	}
	if err := ck.Validate(); err != nil {
		return nil, err
	}
	return ck, nil
}

// Validate checks required fields, the class index table and that every
// weight tensor matches the layer sizes.
func (ck *Checkpoint) Validate() error {
	var missing []string
	if ck.Architecture == "" {
		missing = append(missing, "architecture")
	}
	if len(ck.ClassToIndex) == 0 {
		missing = append(missing, "class_to_index")
	}
	if ck.InputSize == 0 {
		missing = append(missing, "input_size")
	}
	if len(ck.HiddenSizes) == 0 {
		missing = append(missing, "hidden_sizes")
	}
	if ck.OutputSize == 0 {
		missing = append(missing, "output_size")
	}
	if len(ck.Weights) == 0 {
		missing = append(missing, "weights")
	}
	if len(missing) > 0 {
		return errors.NewMissingFieldsError("checkpoint", missing)
	}

	if !ck.Architecture.Valid() {
		return errors.NewSchemaError("checkpoint", fmt.Sprintf("unknown architecture %q", ck.Architecture))
	}
	if ck.InputSize < 0 || ck.OutputSize < 0 || slices.ContainsFunc(ck.HiddenSizes, func(h int) bool { return h <= 0 }) {
		return errors.NewSchemaError("checkpoint", "layer sizes must be positive")
	}
	if err := validateClassIndex(ck.ClassToIndex, ck.OutputSize); err != nil {
		return err
	}
	return ck.validateWeights()
}

func validateClassIndex(classToIndex map[string]int, outputSize int) error {
	seen := make(map[int]string, len(classToIndex))
	for _, class := range slices.Sorted(maps.Keys(classToIndex)) {
		idx := classToIndex[class]
		if idx < 0 || idx >= outputSize {
			return errors.NewSchemaError("checkpoint",
				fmt.Sprintf("class %q maps to index %d outside [0, %d)", class, idx, outputSize))
		}
		if other, dup := seen[idx]; dup {
			return errors.NewSchemaError("checkpoint",
				fmt.Sprintf("classes %q and %q share index %d", other, class, idx))
		}
		seen[idx] = class
	}
	return nil
}

func (ck *Checkpoint) validateWeights() error {
	shapes := neural.LayerShapes(ck.InputSize, ck.HiddenSizes, ck.OutputSize)
	expected := make(map[string]bool, len(shapes))
	for _, ls := range shapes {
		expected[ls.Name] = true
		t, ok := ck.Weights[ls.Name]
		if !ok {
			return errors.NewShapeMismatchError(ls.Name, ls.Shape, nil)
		}
		if !slices.Equal(t.Shape, ls.Shape) {
			return errors.NewShapeMismatchError(ls.Name, ls.Shape, t.Shape)
		}
		if len(t.Data) != numel(t.Shape) {
			return errors.NewShapeMismatchError(ls.Name, ls.Shape, []int{len(t.Data)})
		}
	}
	for _, name := range slices.Sorted(maps.Keys(ck.Weights)) {
		if !expected[name] {
			return errors.NewShapeMismatchError(name, nil, ck.Weights[name].Shape)
		}
	}
	return nil
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// IndexToClass inverts ClassToIndex.
func (ck *Checkpoint) IndexToClass() map[int]string {
	out := make(map[int]string, len(ck.ClassToIndex))
	for class, idx := range ck.ClassToIndex {
		out[idx] = class
	}
	return out
}

// WeightData returns the flat data of every weight tensor.
func (ck *Checkpoint) WeightData() map[string][]float64 {
	out := make(map[string][]float64, len(ck.Weights))
	for name, t := range ck.Weights {
		out[name] = t.Data
	}
	return out
}

// SetMeta records a metadata entry, allocating the map on first use.
func (ck *Checkpoint) SetMeta(key string, value any) {
	if ck.Metadata == nil {
		ck.Metadata = make(map[string]string)
	}
	switch v := value.(type) {
	case string:
		ck.Metadata[key] = v
	case int:
		ck.Metadata[key] = strconv.Itoa(v)
	case float64:
		ck.Metadata[key] = strconv.FormatFloat(v, 'g', -1, 64)
	default:
		ck.Metadata[key] = fmt.Sprint(v)
	}
}
