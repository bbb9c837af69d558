package trainer

import (
	"context"
	"time"

	"github.com/openrmt/openrmt/internal/data"
	"github.com/openrmt/openrmt/internal/distributed"
	"github.com/openrmt/openrmt/internal/loss"
	"github.com/openrmt/openrmt/internal/model"
	"github.com/openrmt/openrmt/internal/observability/logging"
	"github.com/openrmt/openrmt/internal/observability/metrics"
	"github.com/openrmt/openrmt/internal/optim"
	"github.com/openrmt/openrmt/internal/strategy"
	"github.com/openrmt/openrmt/internal/tensor"
	"github.com/openrmt/openrmt/pkg/errors"
)

// Config wires a RewardModelTrainer. Model, Strategy, Optimizer, Scheduler,
// Loss and TrainLoader are required; the rest have working defaults.
type Config struct {
	Model     model.RewardModel
	Strategy  strategy.Strategy
	Optimizer optim.Optimizer
	Scheduler optim.Scheduler
	Loss      loss.Pairwise

	TrainLoader data.Loader
	ValidLoader data.Loader
	EvalLoader  data.Loader

	Device tensor.Device
	Group  distributed.ProcessGroup

	MaxEpochs    int // default 1
	EvalInterval int // training steps between validation passes, default 100

	Callbacks []Callback
	MetricLog *MetricLog
	Logger    logging.Logger
	Metrics   *metrics.Collector
}

// RewardModelTrainer trains a scalar reward model on preference pairs:
// chosen sequences should score strictly higher than rejected ones.
type RewardModelTrainer struct {
	base

	model     model.RewardModel
	optimizer optim.Optimizer
	scheduler optim.Scheduler
	loss      loss.Pairwise

	trainLoader data.Loader
	validLoader data.Loader
	evalLoader  data.Loader

	device tensor.Device
	group  distributed.ProcessGroup

	evalInterval int

	metricLog *MetricLog
	logger    logging.Logger
	metrics   *metrics.Collector
}

// NewRewardModelTrainer validates the config and builds a trainer.
func NewRewardModelTrainer(cfg Config) (*RewardModelTrainer, error) {
	if cfg.Model == nil {
		return nil, errors.ValidationError("trainer requires a model")
	}
	if cfg.Optimizer == nil {
		return nil, errors.ValidationError("trainer requires an optimizer")
	}
	if cfg.Scheduler == nil {
		return nil, errors.ValidationError("trainer requires a scheduler")
	}
	if cfg.Loss == nil {
		return nil, errors.ValidationError("trainer requires a loss")
	}
	if cfg.TrainLoader == nil {
		return nil, errors.ValidationError("trainer requires a training loader")
	}

	if cfg.MaxEpochs == 0 {
		cfg.MaxEpochs = 1
	}
	if cfg.EvalInterval == 0 {
		cfg.EvalInterval = 100
	}
	if cfg.EvalInterval < 1 {
		return nil, errors.ValidationErrorf("eval interval %d, want >= 1", cfg.EvalInterval)
	}
	if cfg.Group.WorldSize == 0 {
		cfg.Group = distributed.Single()
	}
	if cfg.Device == (tensor.Device{}) {
		cfg.Device = tensor.CPU()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNoopLogger()
	}
	if cfg.MetricLog == nil {
		cfg.MetricLog = NewMetricLog(".", time.Now())
	}

	b, err := newBase(cfg.Strategy, cfg.MaxEpochs, cfg.Callbacks)
	if err != nil {
		return nil, err
	}

	return &RewardModelTrainer{
		base:         b,
		model:        cfg.Model,
		optimizer:    cfg.Optimizer,
		scheduler:    cfg.Scheduler,
		loss:         cfg.Loss,
		trainLoader:  cfg.TrainLoader,
		validLoader:  cfg.ValidLoader,
		evalLoader:   cfg.EvalLoader,
		device:       cfg.Device,
		group:        cfg.Group,
		evalInterval: cfg.EvalInterval,
		metricLog:    cfg.MetricLog,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}, nil
}

// prepare moves a batch to the compute device and strips the collator's
// singleton dimension, yielding the four rank-2 tensors the model consumes.
func (t *RewardModelTrainer) prepare(b *data.Batch) (cIDs, cMask, rIDs, rMask *tensor.Dense, err error) {
	if cIDs, err = b.ChosenIDs.To(t.device).Squeeze(1); err != nil {
		return nil, nil, nil, nil, err
	}
	if cMask, err = b.ChosenMask.To(t.device).Squeeze(1); err != nil {
		return nil, nil, nil, nil, err
	}
	if rIDs, err = b.RejectIDs.To(t.device).Squeeze(1); err != nil {
		return nil, nil, nil, nil, err
	}
	if rMask, err = b.RejectMask.To(t.device).Squeeze(1); err != nil {
		return nil, nil, nil, nil, err
	}
	return cIDs, cMask, rIDs, rMask, nil
}

// EvalAcc runs one pass over the loader and returns the mean reward gap and
// ranking accuracy. The gap is averaged over batches, not examples, so
// every batch weighs equally regardless of size. An empty loader yields
// NaN for both results through the 0/0 division; callers treat that as a
// dataset misconfiguration. The model is switched to evaluation mode for
// the pass and unconditionally restored to training mode before returning.
func (t *RewardModelTrainer) EvalAcc(ctx context.Context, loader data.Loader) (distMean, acc float64, err error) {
	t.model.Eval()
	defer t.model.Train()

	start := time.Now()

	var dist float64
	var on, cnt int
	numBatches := 0

	loader.Reset()
	for {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		batch, ok := loader.Next()
		if !ok {
			break
		}

		cIDs, cMask, rIDs, rMask, err := t.prepare(batch)
		if err != nil {
			return 0, 0, err
		}

		chosen, err := t.model.Forward(cIDs, cMask)
		if err != nil {
			return 0, 0, errors.Wrap(err, errors.CodeEvalFailed, "forward over chosen sequences failed")
		}
		rejected, err := t.model.Forward(rIDs, rMask)
		if err != nil {
			return 0, 0, errors.Wrap(err, errors.CodeEvalFailed, "forward over rejected sequences failed")
		}

		var gapSum float64
		for i := 0; i < chosen.Len(); i++ {
			cnt++
			if chosen.At(i) > rejected.At(i) {
				on++
			}
			gapSum += chosen.At(i) - rejected.At(i)
		}
		dist += gapSum / float64(chosen.Len())
		numBatches++
	}

	distMean = dist / float64(numBatches)
	acc = float64(on) / float64(cnt)

	t.observeGauge("eval_accuracy", acc)
	t.observeGauge("eval_reward_gap", distMean)
	t.incrCounter("eval_passes_total")
	t.observeHistogram("eval_duration_seconds", time.Since(start).Seconds())

	return distMean, acc, nil
}

// Fit runs the training loop for the configured number of epochs. Every
// evalInterval steps it advances the scheduler, refreshes validation
// metrics, and (on rank zero) appends a row to the per-run CSV; at the end
// of each epoch it evaluates the held-out split and appends a summary row.
func (t *RewardModelTrainer) Fit(ctx context.Context) error {
	if err := t.fireFitStart(ctx); err != nil {
		return err
	}

	for epoch := 0; epoch < t.maxEpochs; epoch++ {
		if err := t.fireEpochStart(ctx, epoch); err != nil {
			return err
		}

		// Metric accumulators start fresh each epoch; a mid-epoch row
		// logged before any validation pass reports zeros, not the
		// previous epoch's held-out results.
		var lastLoss, distMean, acc float64
		t.logger.Info("epoch started",
			logging.Int("epoch", epoch),
			logging.Int("batches", t.trainLoader.Len()),
			logging.String("rank", t.group.String()),
		)

		t.model.Train()
		cnt := 0
		batchID := 0

		t.trainLoader.Reset()
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch, ok := t.trainLoader.Next()
			if !ok {
				break
			}

			cIDs, cMask, rIDs, rMask, err := t.prepare(batch)
			if err != nil {
				return err
			}

			chosen, err := t.model.Forward(cIDs, cMask)
			if err != nil {
				return errors.Wrap(err, errors.CodeForwardFailed, "forward over chosen sequences failed")
			}
			rejected, err := t.model.Forward(rIDs, rMask)
			if err != nil {
				return errors.Wrap(err, errors.CodeForwardFailed, "forward over rejected sequences failed")
			}

			comp, err := t.loss.Compute(chosen, rejected)
			if err != nil {
				return err
			}
			lastLoss = comp.Value

			in := strategy.BackwardInput{
				ChosenIDs:  cIDs,
				ChosenMask: cMask,
				RejectIDs:  rIDs,
				RejectMask: rMask,
				Loss:       comp,
			}
			if err := t.strategy.Backward(ctx, in, t.model, t.optimizer); err != nil {
				return err
			}
			stepped, err := t.strategy.OptimizerStep(ctx, t.optimizer)
			if err != nil {
				return err
			}
			if stepped {
				t.optimizer.ZeroGrad()
			}

			t.incrCounter("train_steps_total")
			t.observeGauge("train_loss", lastLoss)
			t.observeGauge("train_learning_rate", t.optimizer.LR())

			if err := t.fireBatchEnd(ctx, epoch, batchID, lastLoss); err != nil {
				return err
			}

			cnt++
			if cnt == t.evalInterval {
				t.scheduler.Step()

				if t.validLoader != nil {
					distMean, acc, err = t.EvalAcc(ctx, t.validLoader)
					if err != nil {
						return err
					}
				}
				cnt = 0

				report := EvalReport{Epoch: epoch, Step: batchID, Loss: lastLoss, DistMean: distMean, Acc: acc}
				if err := t.fireEvalReport(ctx, report); err != nil {
					return err
				}
				t.logger.Info("validation checkpoint",
					logging.Int("epoch", epoch),
					logging.Int("step", batchID),
					logging.Float64("loss", lastLoss),
					logging.Float64("dist_mean", distMean),
					logging.Float64("acc", acc),
					logging.Float64("lr", t.optimizer.LR()),
				)

				if t.group.IsRankZero() {
					if err := t.appendRow(t.metricLog.AppendPeriodic(batchID, lastLoss, distMean, acc)); err != nil {
						return err
					}
				}
			}
			batchID++
		}

		if t.evalLoader != nil {
			var err error
			distMean, acc, err = t.EvalAcc(ctx, t.evalLoader)
			if err != nil {
				return err
			}
		}

		report := EvalReport{Epoch: epoch, Step: batchID, Loss: lastLoss, DistMean: distMean, Acc: acc}
		if t.group.IsRankZero() {
			if err := t.appendRow(t.metricLog.AppendSummary(batchID, lastLoss, distMean, acc)); err != nil {
				return err
			}
		}

		t.incrCounter("train_epochs_total")
		t.logger.Info("epoch finished",
			logging.Int("epoch", epoch),
			logging.Float64("loss", lastLoss),
			logging.Float64("dist_mean", distMean),
			logging.Float64("acc", acc),
		)
		if err := t.fireEpochEnd(ctx, epoch, report); err != nil {
			return err
		}
	}

	return t.fireFitEnd(ctx)
}

func (t *RewardModelTrainer) appendRow(err error) error {
	if err != nil {
		t.incrCounter("metric_log_errors_total")
		return err
	}
	t.incrCounter("metric_log_rows_total")
	return nil
}

func (t *RewardModelTrainer) incrCounter(name string) {
	if t.metrics != nil {
		t.metrics.IncrementCounter(name, nil)
	}
}

func (t *RewardModelTrainer) observeGauge(name string, v float64) {
	if t.metrics != nil {
		t.metrics.SetGauge(name, v, nil)
	}
}

func (t *RewardModelTrainer) observeHistogram(name string, v float64) {
	if t.metrics != nil {
		t.metrics.ObserveHistogram(name, v, nil)
	}
}
