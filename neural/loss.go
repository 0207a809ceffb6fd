package neural

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// NLLLoss returns the mean negative log-likelihood of targets under logProbs
// and its gradient w.r.t. logProbs.
func NLLLoss(logProbs *mat.Dense, targets []int) (float64, *mat.Dense, error) {
	n, c := logProbs.Dims()
	if len(targets) != n {
		return 0, nil, errors.NewShapeMismatchError("targets", []int{n}, []int{len(targets)})
	}
	if n == 0 {
		return 0, nil, errors.ErrEmptyData
	}

	grad := mat.NewDense(n, c, nil)
	scale := 1 / float64(n)
	var loss float64
	for i, t := range targets {
		if t < 0 || t >= c {
			return 0, nil, errors.Newf("target %d of sample %d outside [0, %d)", t, i, c)
		}
		loss -= logProbs.At(i, t)
		grad.Set(i, t, -scale)
	}
	return loss * scale, grad, nil
}

// Probabilities exponentiates log-probabilities.
func Probabilities(logProbs *mat.Dense) *mat.Dense {
	var p mat.Dense
	p.Apply(func(_, _ int, v float64) float64 { return expClamped(v) }, logProbs)
	return &p
}

func expClamped(v float64) float64 {
	if v < -745 {
		return 0
	}
	return math.Exp(v)
}
