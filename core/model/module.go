package model

import (
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/petalnet/core/tensor"
)

// Module は画像テンソルを受け取り、クラスごとの対数確率を返すモデルのインターフェース
// 予測デコーダとチェックポイントはこの抽象にのみ依存する
type Module interface {
	// Forward は NCHW (または CHW) のテンソルから (N, classes) の出力を計算する
	Forward(x *tensor.Tensor) (*mat.Dense, error)
	// Parameters はモジュールが持つ全パラメータを返す
	Parameters() []*Parameter
}

// Parameter は名前付きの重みテンソル
// Data は gonum 行列の backing slice を共有するため、更新はそのまま行列に反映される
type Parameter struct {
	Name      string
	Shape     []int
	Data      []float64
	Grad      []float64
	Trainable bool
}

// NewParameter は勾配バッファ付きのパラメータを作成する
func NewParameter(name string, shape []int, data []float64) *Parameter {
	return &Parameter{
		Name:      name,
		Shape:     slices.Clone(shape),
		Data:      data,
		Grad:      make([]float64, len(data)),
		Trainable: true,
	}
}

// ZeroGrad は勾配をゼロクリアする
func (p *Parameter) ZeroGrad() {
	clear(p.Grad)
}

// Freeze は全パラメータを学習対象外にする
func Freeze(params []*Parameter) {
	for _, p := range params {
		p.Trainable = false
	}
}

// TrainableParameters は学習対象のパラメータのみを返す
func TrainableParameters(params []*Parameter) []*Parameter {
	var out []*Parameter
	for _, p := range params {
		if p.Trainable {
			out = append(out, p)
		}
	}
	return out
}

// CountParameters はパラメータの総要素数と学習対象の要素数を返す
func CountParameters(params []*Parameter) (total, trainable int) {
	for _, p := range params {
		total += len(p.Data)
		if p.Trainable {
			trainable += len(p.Data)
		}
	}
	return total, trainable
}
