package preprocessing

import (
	"github.com/YuminosukeSato/petalnet/core/tensor"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// ImageNet のチャネル統計量。事前学習済みバックボーンはこの正規化を前提とする
var (
	ImageNetMean = []float64{0.485, 0.456, 0.406}
	ImageNetStd  = []float64{0.229, 0.224, 0.225}
)

// Normalizer はチャネルごとの標準化を行う
// CHW または NCHW テンソルの各チャネルを (x - mean) / std に変換する
type Normalizer struct {
	// Mean は各チャネルの平均値
	Mean []float64

	// Std は各チャネルの標準偏差
	Std []float64
}

// NewNormalizer は与えられた統計量でNormalizerを作成する
func NewNormalizer(mean, std []float64) (*Normalizer, error) {
	if len(mean) == 0 || len(mean) != len(std) {
		return nil, errors.NewConfigError("normalize", "mean and std must have the same non-zero length", [2]int{len(mean), len(std)})
	}
	for _, s := range std {
		if s <= 0 {
			return nil, errors.NewConfigError("normalize", "std must be positive", std)
		}
	}
	return &Normalizer{
		Mean: append([]float64(nil), mean...),
		Std:  append([]float64(nil), std...),
	}, nil
}

// NewImageNetNormalizer はImageNet統計量のNormalizerを作成する
func NewImageNetNormalizer() *Normalizer {
	n, _ := NewNormalizer(ImageNetMean, ImageNetStd)
	return n
}

func (n *Normalizer) check(t *tensor.Tensor) (channels, plane int, err error) {
	dims := t.Dims()
	if dims != 3 && dims != 4 {
		return 0, 0, errors.NewShapeMismatchError("normalize.input", []int{len(n.Mean), -1, -1}, t.Shape)
	}
	channels = t.Shape[dims-3]
	if channels != len(n.Mean) {
		return 0, 0, errors.NewShapeMismatchError("normalize.input", []int{len(n.Mean), t.Shape[dims-2], t.Shape[dims-1]}, t.Shape[dims-3:])
	}
	return channels, t.Shape[dims-2] * t.Shape[dims-1], nil
}

// Transform はテンソルを標準化した新しいテンソルを返す
func (n *Normalizer) Transform(t *tensor.Tensor) (*tensor.Tensor, error) {
	out := t.Clone()
	if err := n.TransformInPlace(out); err != nil {
		return nil, err
	}
	return out, nil
}

// TransformInPlace はテンソルをその場で標準化する
func (n *Normalizer) TransformInPlace(t *tensor.Tensor) error {
	channels, plane, err := n.check(t)
	if err != nil {
		return err
	}
	for off := 0; off < len(t.Data); off += channels * plane {
		for c := 0; c < channels; c++ {
			mean, std := float32(n.Mean[c]), float32(n.Std[c])
			seg := t.Data[off+c*plane : off+(c+1)*plane]
			for i, v := range seg {
				seg[i] = (v - mean) / std
			}
		}
	}
	return nil
}

// InverseTransform は標準化されたテンソルを元のスケールに戻す
func (n *Normalizer) InverseTransform(t *tensor.Tensor) (*tensor.Tensor, error) {
	channels, plane, err := n.check(t)
	if err != nil {
		return nil, err
	}
	out := t.Clone()
	for off := 0; off < len(out.Data); off += channels * plane {
		for c := 0; c < channels; c++ {
			mean, std := float32(n.Mean[c]), float32(n.Std[c])
			seg := out.Data[off+c*plane : off+(c+1)*plane]
			for i, v := range seg {
				seg[i] = v*std + mean
			}
		}
	}
	return out, nil
}
