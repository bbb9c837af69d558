// Package strategy abstracts how gradients flow from a computed loss into
// an optimizer update. The trainer goes through exactly two choke points,
// Backward and OptimizerStep, so execution concerns like gradient
// accumulation never leak into the training loop itself.
package strategy

import (
	"context"

	"github.com/openrmt/openrmt/internal/loss"
	"github.com/openrmt/openrmt/internal/model"
	"github.com/openrmt/openrmt/internal/optim"
	"github.com/openrmt/openrmt/internal/tensor"
	"github.com/openrmt/openrmt/pkg/errors"
	"github.com/openrmt/openrmt/pkg/types"
)

// BackwardInput bundles one micro-batch's forward artifacts for the
// backward pass. IDs and masks are rank-2 [batch, seq] tensors.
type BackwardInput struct {
	ChosenIDs  *tensor.Dense
	ChosenMask *tensor.Dense
	RejectIDs  *tensor.Dense
	RejectMask *tensor.Dense
	Loss       *loss.Computation
}

// Strategy owns gradient propagation and update timing.
type Strategy interface {
	// Backward propagates the loss gradients into the model's parameter
	// gradients for one micro-batch.
	Backward(ctx context.Context, in BackwardInput, m model.RewardModel, opt optim.Optimizer) error

	// OptimizerStep applies a parameter update if one is due. It reports
	// whether an update happened so the caller knows when gradients were
	// consumed and may be cleared.
	OptimizerStep(ctx context.Context, opt optim.Optimizer) (stepped bool, err error)

	// Name returns the strategy identifier used in config and logs.
	Name() string
}

// New constructs the strategy named by kind.
func New(kind types.StrategyType, accumSteps int) (Strategy, error) {
	switch kind {
	case types.StrategyNaive:
		return &Naive{}, nil
	case types.StrategyGradAccum:
		return NewGradAccum(accumSteps)
	default:
		return nil, errors.ValidationErrorf("unknown strategy type %q", kind)
	}
}

func backprop(in BackwardInput, m model.RewardModel, scale float64) error {
	chosenGrad := in.Loss.ChosenGrad
	rejectGrad := in.Loss.RejectGrad
	if scale != 1 {
		chosenGrad = scaled(chosenGrad, scale)
		rejectGrad = scaled(rejectGrad, scale)
	}
	if err := m.Backward(in.ChosenIDs, in.ChosenMask, chosenGrad); err != nil {
		return errors.Wrap(err, errors.CodeBackwardFailed, "backward over chosen sequences failed")
	}
	if err := m.Backward(in.RejectIDs, in.RejectMask, rejectGrad); err != nil {
		return errors.Wrap(err, errors.CodeBackwardFailed, "backward over rejected sequences failed")
	}
	return nil
}

func scaled(g []float64, scale float64) []float64 {
	out := make([]float64, len(g))
	for i, v := range g {
		out[i] = v * scale
	}
	return out
}

// ============================================================================
// Naive strategy
// ============================================================================

// Naive updates parameters after every micro-batch.
type Naive struct{}

// Name returns the strategy identifier.
func (s *Naive) Name() string { return string(types.StrategyNaive) }

// Backward propagates loss gradients into the model.
func (s *Naive) Backward(ctx context.Context, in BackwardInput, m model.RewardModel, opt optim.Optimizer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return backprop(in, m, 1)
}

// OptimizerStep always applies an update.
func (s *Naive) OptimizerStep(ctx context.Context, opt optim.Optimizer) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := opt.Step(); err != nil {
		return false, errors.Wrap(err, errors.CodeOptimizerFailed, "optimizer step failed")
	}
	return true, nil
}

// ============================================================================
// Gradient accumulation strategy
// ============================================================================

// GradAccum accumulates gradients across accumSteps micro-batches and
// updates once per window. Per-batch gradients are scaled by 1/accumSteps
// so the accumulated update matches a single large-batch step.
type GradAccum struct {
	accumSteps int
	pending    int
}

// NewGradAccum creates a gradient accumulation strategy.
func NewGradAccum(accumSteps int) (*GradAccum, error) {
	if accumSteps < 1 {
		return nil, errors.ValidationErrorf("accumulation steps %d, want >= 1", accumSteps)
	}
	return &GradAccum{accumSteps: accumSteps}, nil
}

// Name returns the strategy identifier.
func (s *GradAccum) Name() string { return string(types.StrategyGradAccum) }

// Backward propagates scaled loss gradients into the model.
func (s *GradAccum) Backward(ctx context.Context, in BackwardInput, m model.RewardModel, opt optim.Optimizer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := backprop(in, m, 1.0/float64(s.accumSteps)); err != nil {
		return err
	}
	s.pending++
	return nil
}

// OptimizerStep applies an update once a full accumulation window has been
// propagated.
func (s *GradAccum) OptimizerStep(ctx context.Context, opt optim.Optimizer) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s.pending < s.accumSteps {
		return false, nil
	}
	if err := opt.Step(); err != nil {
		return false, errors.Wrap(err, errors.CodeOptimizerFailed, "optimizer step failed")
	}
	s.pending = 0
	return true, nil
}
