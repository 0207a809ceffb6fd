package neural

import (
	"math"

	"github.com/YuminosukeSato/petalnet/core/model"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// Adam implements the Adam optimizer over trainable parameters only.
type Adam struct {
	params []*model.Parameter
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64
	t      int

	m [][]float64
	v [][]float64
}

// AdamOption is a functional option for Adam
type AdamOption func(*Adam)

// WithBetas sets the moment decay rates.
func WithBetas(beta1, beta2 float64) AdamOption {
	return func(a *Adam) {
		a.beta1, a.beta2 = beta1, beta2
	}
}

// WithEpsilon sets the denominator epsilon.
func WithEpsilon(eps float64) AdamOption {
	return func(a *Adam) {
		a.eps = eps
	}
}

// NewAdam creates an optimizer over the trainable subset of params.
func NewAdam(params []*model.Parameter, lr float64, opts ...AdamOption) (*Adam, error) {
	if lr <= 0 || math.IsNaN(lr) || math.IsInf(lr, 0) {
		return nil, errors.NewConfigError("learn_rate", "must be a positive finite number", lr)
	}
	a := &Adam{
		params: model.TrainableParameters(params),
		lr:     lr,
		beta1:  0.9,
		beta2:  0.999,
		eps:    1e-8,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.m = make([][]float64, len(a.params))
	a.v = make([][]float64, len(a.params))
	for i, p := range a.params {
		a.m[i] = make([]float64, len(p.Data))
		a.v[i] = make([]float64, len(p.Data))
	}
	return a, nil
}

// Step applies one update from the accumulated gradients.
func (a *Adam) Step() {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i, p := range a.params {
		m, v := a.m[i], a.v[i]
		for j, g := range p.Grad {
			m[j] = a.beta1*m[j] + (1-a.beta1)*g
			v[j] = a.beta2*v[j] + (1-a.beta2)*g*g
			p.Data[j] -= a.lr * (m[j] / c1) / (math.Sqrt(v[j]/c2) + a.eps)
		}
	}
}

// ZeroGrad clears the gradients of the optimized parameters.
func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

// Steps returns the number of updates applied so far.
func (a *Adam) Steps() int {
	return a.t
}
