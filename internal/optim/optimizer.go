// Package optim implements the optimizers and learning-rate schedules used
// by the training loop. Optimizers own their parameter references; the
// trainer only drives Step and ZeroGrad through the strategy choke points.
package optim

import (
	"math"

	"github.com/openrmt/openrmt/internal/model"
	"github.com/openrmt/openrmt/pkg/errors"
)

// Optimizer applies accumulated gradients to its parameters.
type Optimizer interface {
	// Step applies one update from the current gradients.
	Step() error

	// ZeroGrad clears all gradient accumulators.
	ZeroGrad()

	// LR returns the current learning rate.
	LR() float64

	// SetLR replaces the learning rate. Schedulers call this.
	SetLR(lr float64)
}

// ============================================================================
// SGD
// ============================================================================

// SGD is stochastic gradient descent with optional momentum and decoupled
// weight decay.
type SGD struct {
	params      []*model.Parameter
	lr          float64
	momentum    float64
	weightDecay float64
	velocity    [][]float64
}

// SGDConfig configures an SGD optimizer.
type SGDConfig struct {
	LR          float64
	Momentum    float64
	WeightDecay float64
}

// NewSGD creates an SGD optimizer over the given parameters.
func NewSGD(params []*model.Parameter, cfg SGDConfig) (*SGD, error) {
	if cfg.LR <= 0 {
		return nil, errors.ValidationErrorf("sgd learning rate %v, want > 0", cfg.LR)
	}

	velocity := make([][]float64, len(params))
	if cfg.Momentum != 0 {
		for i, p := range params {
			velocity[i] = make([]float64, len(p.Data))
		}
	}

	return &SGD{
		params:      params,
		lr:          cfg.LR,
		momentum:    cfg.Momentum,
		weightDecay: cfg.WeightDecay,
		velocity:    velocity,
	}, nil
}

// Step applies one SGD update.
func (o *SGD) Step() error {
	for i, p := range o.params {
		for j := range p.Data {
			g := p.Grad[j]
			if o.weightDecay != 0 {
				g += o.weightDecay * p.Data[j]
			}
			if o.momentum != 0 {
				o.velocity[i][j] = o.momentum*o.velocity[i][j] + g
				g = o.velocity[i][j]
			}
			p.Data[j] -= o.lr * g
		}
	}
	return nil
}

// ZeroGrad clears all gradients.
func (o *SGD) ZeroGrad() {
	for _, p := range o.params {
		p.ZeroGrad()
	}
}

// LR returns the current learning rate.
func (o *SGD) LR() float64 { return o.lr }

// SetLR replaces the learning rate.
func (o *SGD) SetLR(lr float64) { o.lr = lr }

// ============================================================================
// Adam
// ============================================================================

// Adam implements the Adam optimizer with bias correction.
type Adam struct {
	params []*model.Parameter
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64
	t      int
	m      [][]float64
	v      [][]float64
}

// AdamConfig configures an Adam optimizer. Zero values take the customary
// defaults (0.9, 0.999, 1e-8).
type AdamConfig struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64
}

// NewAdam creates an Adam optimizer over the given parameters.
func NewAdam(params []*model.Parameter, cfg AdamConfig) (*Adam, error) {
	if cfg.LR <= 0 {
		return nil, errors.ValidationErrorf("adam learning rate %v, want > 0", cfg.LR)
	}
	if cfg.Beta1 == 0 {
		cfg.Beta1 = 0.9
	}
	if cfg.Beta2 == 0 {
		cfg.Beta2 = 0.999
	}
	if cfg.Eps == 0 {
		cfg.Eps = 1e-8
	}

	m := make([][]float64, len(params))
	v := make([][]float64, len(params))
	for i, p := range params {
		m[i] = make([]float64, len(p.Data))
		v[i] = make([]float64, len(p.Data))
	}

	return &Adam{
		params: params,
		lr:     cfg.LR,
		beta1:  cfg.Beta1,
		beta2:  cfg.Beta2,
		eps:    cfg.Eps,
		m:      m,
		v:      v,
	}, nil
}

// Step applies one Adam update.
func (o *Adam) Step() error {
	o.t++
	c1 := 1 - math.Pow(o.beta1, float64(o.t))
	c2 := 1 - math.Pow(o.beta2, float64(o.t))

	for i, p := range o.params {
		for j := range p.Data {
			g := p.Grad[j]
			o.m[i][j] = o.beta1*o.m[i][j] + (1-o.beta1)*g
			o.v[i][j] = o.beta2*o.v[i][j] + (1-o.beta2)*g*g

			mHat := o.m[i][j] / c1
			vHat := o.v[i][j] / c2
			p.Data[j] -= o.lr * mHat / (math.Sqrt(vHat) + o.eps)
		}
	}
	return nil
}

// ZeroGrad clears all gradients.
func (o *Adam) ZeroGrad() {
	for _, p := range o.params {
		p.ZeroGrad()
	}
}

// LR returns the current learning rate.
func (o *Adam) LR() float64 { return o.lr }

// SetLR replaces the learning rate.
func (o *Adam) SetLR(lr float64) { o.lr = lr }
