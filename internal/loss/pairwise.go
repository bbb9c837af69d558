// Package loss implements the pairwise ranking losses used for reward-model
// training. Each loss returns both the scalar value and the per-example
// gradient with respect to the chosen and rejected rewards, so the model can
// backpropagate without an autodiff engine.
package loss

import (
	"fmt"
	"math"

	"github.com/openrmt/openrmt/internal/tensor"
	"github.com/openrmt/openrmt/pkg/errors"
	"github.com/openrmt/openrmt/pkg/types"
)

// Computation is the result of one pairwise loss evaluation. Gradients are
// of the batch-mean loss, so the strategy can feed them straight into the
// model's backward pass.
type Computation struct {
	Value      float64
	ChosenGrad []float64
	RejectGrad []float64
}

// Pairwise scores a batch of (chosen, rejected) reward pairs.
type Pairwise interface {
	// Compute evaluates the loss over rank-1 reward tensors of equal length.
	Compute(chosen, rejected *tensor.Dense) (*Computation, error)

	// Name returns the loss identifier used in config and logs.
	Name() string
}

// New constructs the loss named by kind.
func New(kind types.LossType, hingeMargin float64) (Pairwise, error) {
	switch kind {
	case types.LossLogSigmoid:
		return &LogSigmoid{}, nil
	case types.LossLogExp:
		return &LogExp{}, nil
	case types.LossHinge:
		return &Hinge{Margin: hingeMargin}, nil
	default:
		return nil, errors.ValidationErrorf("unknown loss type %q", kind)
	}
}

func checkPair(chosen, rejected *tensor.Dense) (int, error) {
	if chosen.Rank() != 1 || rejected.Rank() != 1 {
		return 0, errors.DataError(errors.CodeBadBatchShape,
			fmt.Sprintf("loss inputs must be rank 1, got %v and %v", chosen.Shape(), rejected.Shape()))
	}
	if chosen.Len() != rejected.Len() {
		return 0, errors.DataError(errors.CodeBadBatchShape,
			fmt.Sprintf("chosen has %d rewards, rejected has %d", chosen.Len(), rejected.Len()))
	}
	if chosen.Len() == 0 {
		return 0, errors.DataError(errors.CodeBadBatchShape, "loss over empty batch")
	}
	return chosen.Len(), nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// ============================================================================
// Log-sigmoid loss
// ============================================================================

// LogSigmoid is -mean(log sigmoid(chosen - rejected)), the standard
// Bradley-Terry preference loss.
type LogSigmoid struct{}

// Name returns the loss identifier.
func (l *LogSigmoid) Name() string { return string(types.LossLogSigmoid) }

// Compute evaluates the loss and its reward gradients.
func (l *LogSigmoid) Compute(chosen, rejected *tensor.Dense) (*Computation, error) {
	n, err := checkPair(chosen, rejected)
	if err != nil {
		return nil, err
	}

	comp := &Computation{
		ChosenGrad: make([]float64, n),
		RejectGrad: make([]float64, n),
	}
	inv := 1.0 / float64(n)
	for i := 0; i < n; i++ {
		d := chosen.Data()[i] - rejected.Data()[i]
		// log(sigmoid(d)) = -softplus(-d), computed stably.
		comp.Value += softplus(-d) * inv

		g := (1.0 - sigmoid(d)) * inv
		comp.ChosenGrad[i] = -g
		comp.RejectGrad[i] = g
	}
	return comp, nil
}

// ============================================================================
// Log-exp loss
// ============================================================================

// LogExp is mean(log(1 + exp(rejected - chosen))).
type LogExp struct{}

// Name returns the loss identifier.
func (l *LogExp) Name() string { return string(types.LossLogExp) }

// Compute evaluates the loss and its reward gradients.
func (l *LogExp) Compute(chosen, rejected *tensor.Dense) (*Computation, error) {
	n, err := checkPair(chosen, rejected)
	if err != nil {
		return nil, err
	}

	comp := &Computation{
		ChosenGrad: make([]float64, n),
		RejectGrad: make([]float64, n),
	}
	inv := 1.0 / float64(n)
	for i := 0; i < n; i++ {
		d := rejected.Data()[i] - chosen.Data()[i]
		comp.Value += softplus(d) * inv

		g := sigmoid(d) * inv
		comp.ChosenGrad[i] = -g
		comp.RejectGrad[i] = g
	}
	return comp, nil
}

// ============================================================================
// Hinge loss
// ============================================================================

// Hinge is mean(max(0, margin - (chosen - rejected))).
type Hinge struct {
	Margin float64
}

// Name returns the loss identifier.
func (l *Hinge) Name() string { return string(types.LossHinge) }

// Compute evaluates the loss and its reward gradients.
func (l *Hinge) Compute(chosen, rejected *tensor.Dense) (*Computation, error) {
	n, err := checkPair(chosen, rejected)
	if err != nil {
		return nil, err
	}

	comp := &Computation{
		ChosenGrad: make([]float64, n),
		RejectGrad: make([]float64, n),
	}
	inv := 1.0 / float64(n)
	for i := 0; i < n; i++ {
		slack := l.Margin - (chosen.Data()[i] - rejected.Data()[i])
		if slack <= 0 {
			continue
		}
		comp.Value += slack * inv
		comp.ChosenGrad[i] = -inv
		comp.RejectGrad[i] = inv
	}
	return comp, nil
}

// softplus computes log(1 + exp(x)) without overflowing for large x.
func softplus(x float64) float64 {
	if x > 30 {
		return x
	}
	return math.Log1p(math.Exp(x))
}
