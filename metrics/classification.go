// Package metrics は分類モデルの評価指標と、学習実行のPrometheusメトリクスを提供する
package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// Argmax は各行で最大値を持つ列のインデックスを返す。同値の場合は小さい方
func Argmax(scores mat.Matrix) []int {
	r, c := scores.Dims()
	out := make([]int, r)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, scores)
		out[i] = floats.MaxIdx(row)
	}
	return out
}

// Accuracy は予測クラスが正解と一致した割合を計算する
func Accuracy(scores mat.Matrix, targets []int) (float64, error) {
	correct, err := CountCorrect(scores, targets)
	if err != nil {
		return 0, err
	}
	return float64(correct) / float64(len(targets)), nil
}

// CountCorrect はargmaxが正解と一致したサンプル数を返す
func CountCorrect(scores mat.Matrix, targets []int) (int, error) {
	if err := checkTargets("Accuracy", scores, targets); err != nil {
		return 0, err
	}
	var correct int
	for i, p := range Argmax(scores) {
		if p == targets[i] {
			correct++
		}
	}
	return correct, nil
}

// TopKAccuracy は正解クラスのスコアが上位k件に入った割合を計算する。
// 正解と同スコアのクラスは正解より上位とはみなさない
func TopKAccuracy(scores mat.Matrix, targets []int, k int) (float64, error) {
	if err := checkTargets("TopKAccuracy", scores, targets); err != nil {
		return 0, err
	}
	_, c := scores.Dims()
	if k < 1 || k > c {
		return 0, errors.NewConfigError("k", fmt.Sprintf("must be in [1, %d]", c), k)
	}
	return float64(countTopK(scores, targets, k)) / float64(len(targets)), nil
}

func countTopK(scores mat.Matrix, targets []int, k int) int {
	_, c := scores.Dims()
	var hits int
	for i, t := range targets {
		// 正解より厳密に大きいスコアの数を数える
		target := scores.At(i, t)
		var above int
		for j := 0; j < c; j++ {
			if scores.At(i, j) > target {
				above++
			}
		}
		if above < k {
			hits++
		}
	}
	return hits
}

// MeanNLL は対数確率行列に対する平均負対数尤度を計算する
func MeanNLL(logProbs mat.Matrix, targets []int) (float64, error) {
	if err := checkTargets("MeanNLL", logProbs, targets); err != nil {
		return 0, err
	}
	var sum float64
	for i, t := range targets {
		sum -= logProbs.At(i, t)
	}
	mean := sum / float64(len(targets))
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return 0, errors.NewNumericalInstabilityError("MeanNLL", []float64{mean}, 0)
	}
	return mean, nil
}

func checkTargets(op string, scores mat.Matrix, targets []int) error {
	r, c := scores.Dims()
	// 入力検証
	if len(targets) == 0 {
		return errors.Wrapf(errors.ErrEmptyData, "%s", op)
	}
	if r != len(targets) {
		return errors.NewShapeMismatchError(op, []int{len(targets)}, []int{r})
	}
	for i, t := range targets {
		if t < 0 || t >= c {
			return errors.Newf("%s: target %d of sample %d outside [0, %d)", op, t, i, c)
		}
	}
	return nil
}

// DefaultTopK は評価時に記録する top-k 正解率の k
const DefaultTopK = 5

// Tally はバッチをまたいで損失と正解数を集計する。
// K > 0 のときは top-K 正解数も数える（クラス数が K 未満なら全クラス）
type Tally struct {
	LossSum     float64
	Correct     int
	Total       int
	K           int
	TopKCorrect int
}

// Add はバッチの平均損失と予測結果を加算する
func (t *Tally) Add(scores mat.Matrix, targets []int, meanLoss float64) error {
	correct, err := CountCorrect(scores, targets)
	if err != nil {
		return err
	}
	if t.K > 0 {
		_, c := scores.Dims()
		t.TopKCorrect += countTopK(scores, targets, min(t.K, c))
	}
	t.Correct += correct
	t.Total += len(targets)
	t.LossSum += meanLoss * float64(len(targets))
	return nil
}

// Loss はサンプル平均の損失を返す
func (t *Tally) Loss() float64 {
	if t.Total == 0 {
		return 0
	}
	return t.LossSum / float64(t.Total)
}

// Accuracy は正解率を返す
func (t *Tally) Accuracy() float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(t.Correct) / float64(t.Total)
}

// TopKAccuracy は top-K 正解率を返す
func (t *Tally) TopKAccuracy() float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(t.TopKCorrect) / float64(t.Total)
}
