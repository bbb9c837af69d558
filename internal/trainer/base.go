// Package trainer implements the reward-model training loop: batch
// iteration, pairwise loss, strategy-mediated updates, periodic evaluation,
// and CSV metric logging.
package trainer

import (
	"context"

	"github.com/openrmt/openrmt/internal/strategy"
	"github.com/openrmt/openrmt/pkg/errors"
)

// base carries the bookkeeping shared by trainers: the execution strategy,
// the epoch budget, and callback fan-out. Concrete trainers embed it.
type base struct {
	strategy  strategy.Strategy
	maxEpochs int
	callbacks []Callback
}

func newBase(strat strategy.Strategy, maxEpochs int, callbacks []Callback) (base, error) {
	if strat == nil {
		return base{}, errors.ValidationError("trainer requires a strategy")
	}
	if maxEpochs < 1 {
		return base{}, errors.ValidationErrorf("max epochs %d, want >= 1", maxEpochs)
	}
	return base{strategy: strat, maxEpochs: maxEpochs, callbacks: callbacks}, nil
}

func (b *base) fireFitStart(ctx context.Context) error {
	for _, cb := range b.callbacks {
		if err := cb.OnFitStart(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *base) fireFitEnd(ctx context.Context) error {
	for _, cb := range b.callbacks {
		if err := cb.OnFitEnd(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *base) fireEpochStart(ctx context.Context, epoch int) error {
	for _, cb := range b.callbacks {
		if err := cb.OnEpochStart(ctx, epoch); err != nil {
			return err
		}
	}
	return nil
}

func (b *base) fireEpochEnd(ctx context.Context, epoch int, report EvalReport) error {
	for _, cb := range b.callbacks {
		if err := cb.OnEpochEnd(ctx, epoch, report); err != nil {
			return err
		}
	}
	return nil
}

func (b *base) fireBatchEnd(ctx context.Context, epoch, step int, loss float64) error {
	for _, cb := range b.callbacks {
		if err := cb.OnBatchEnd(ctx, epoch, step, loss); err != nil {
			return err
		}
	}
	return nil
}

func (b *base) fireEvalReport(ctx context.Context, report EvalReport) error {
	for _, cb := range b.callbacks {
		if err := cb.OnEvalReport(ctx, report); err != nil {
			return err
		}
	}
	return nil
}
