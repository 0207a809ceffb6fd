// Package prediction turns a model's log-probabilities for one image into
// ranked (class, species name, probability) triples.
package prediction

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/petalnet/core"
	"github.com/YuminosukeSato/petalnet/core/model"
	"github.com/YuminosukeSato/petalnet/core/tensor"
	"github.com/YuminosukeSato/petalnet/neural"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// Prediction is one ranked result.
type Prediction struct {
	Probability float64
	// Class is the dataset label, e.g. the folder name "21".
	Class string
	// Name is the species name from the category map.
	Name string
}

// Decoder maps output indices back to class labels and species names.
type Decoder struct {
	indexToClass map[int]string
	categories   CategoryMap
	outputSize   int
}

// NewDecoder builds a decoder. A nil categories map leaves Name equal to Class.
func NewDecoder(classToIndex map[string]int, categories CategoryMap, outputSize int) *Decoder {
	inv := make(map[int]string, len(classToIndex))
	for class, idx := range classToIndex {
		inv[idx] = class
	}
	return &Decoder{indexToClass: inv, categories: categories, outputSize: outputSize}
}

// Predict runs one forward pass in eval mode and returns the topK most likely
// classes, highest probability first. Ties keep ascending index order.
func (d *Decoder) Predict(x *tensor.Tensor, m model.Module, topK int) ([]Prediction, error) {
	if topK < 1 || topK > d.outputSize {
		return nil, errors.NewConfigError("top_k", fmt.Sprintf("must be in [1, %d]", d.outputSize), topK)
	}
	probs, err := d.Distribution(x, m)
	if err != nil {
		return nil, err
	}
	return d.Decode(probs, topK)
}

// Distribution returns the probability of every output index for a single image.
func (d *Decoder) Distribution(x *tensor.Tensor, m model.Module) ([]float64, error) {
	if x.BatchSize() != 1 {
		return nil, errors.NewShapeMismatchError("prediction.input", []int{1}, []int{x.BatchSize()})
	}
	if ms, ok := m.(core.ModeSwitcher); ok {
		ms.Eval()
	}

	logProbs, err := m.Forward(x)
	if err != nil {
		return nil, err
	}
	rows, cols := logProbs.Dims()
	if rows != 1 || cols != d.outputSize {
		return nil, errors.NewShapeMismatchError("prediction.output", []int{1, d.outputSize}, []int{rows, cols})
	}
	probs := neural.Probabilities(logProbs).RawRowView(0)
	if err := errors.CheckValues("prediction.probabilities", probs, 0); err != nil {
		return nil, err
	}
	return probs, nil
}

// Decode ranks a probability vector and resolves labels.
func (d *Decoder) Decode(probs []float64, topK int) ([]Prediction, error) {
	if topK < 1 || topK > len(probs) {
		return nil, errors.NewConfigError("top_k", fmt.Sprintf("must be in [1, %d]", len(probs)), topK)
	}
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case probs[a] > probs[b]:
			return -1
		case probs[a] < probs[b]:
			return 1
		default:
			return 0
		}
	})

	preds := make([]Prediction, 0, topK)
	for _, idx := range order[:topK] {
		class, ok := d.indexToClass[idx]
		if !ok {
			return nil, errors.NewLookupError("class_to_index", strconv.Itoa(idx))
		}
		name := class
		if d.categories != nil {
			if name, ok = d.categories[class]; !ok {
				return nil, errors.NewLookupError("category_names", class)
			}
		}
		preds = append(preds, Prediction{Probability: probs[idx], Class: class, Name: name})
	}
	return preds, nil
}

// Format renders one "class <name> - probability <p>" line per prediction.
func Format(preds []Prediction) string {
	var b strings.Builder
	for _, p := range preds {
		fmt.Fprintf(&b, "class %s - probability %.2f\n", p.Name, p.Probability)
	}
	return b.String()
}
