// Package service orchestrates training runs: it persists run state,
// publishes lifecycle events, caches hot metrics, and uploads checkpoints
// by attaching callbacks to the trainer.
package service

import (
	"context"

	"github.com/openrmt/openrmt/internal/domain/run"
	"github.com/openrmt/openrmt/internal/infrastructure/message"
	redisrepo "github.com/openrmt/openrmt/internal/infrastructure/repository/redis"
	"github.com/openrmt/openrmt/internal/infrastructure/storage"
	"github.com/openrmt/openrmt/internal/model"
	"github.com/openrmt/openrmt/internal/observability/logging"
	"github.com/openrmt/openrmt/internal/observability/metrics"
	"github.com/openrmt/openrmt/internal/trainer"
	"github.com/openrmt/openrmt/pkg/errors"
	"github.com/openrmt/openrmt/pkg/types"
)

// RunService manages training run records and their side channels. The
// repository is required; cache, publisher, and checkpoint store are
// optional and skipped when absent.
type RunService struct {
	repo        run.Repository
	cache       *redisrepo.MetricsCache
	publisher   message.Publisher
	checkpoints storage.CheckpointStore
	logger      logging.Logger
	metrics     *metrics.Collector
}

// NewRunService builds the service.
func NewRunService(
	repo run.Repository,
	cache *redisrepo.MetricsCache,
	publisher message.Publisher,
	checkpoints storage.CheckpointStore,
	logger logging.Logger,
	collector *metrics.Collector,
) (*RunService, error) {
	if repo == nil {
		return nil, errors.ValidationError("run service requires a repository")
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &RunService{
		repo:        repo,
		cache:       cache,
		publisher:   publisher,
		checkpoints: checkpoints,
		logger:      logger,
		metrics:     collector,
	}, nil
}

// CreateRun registers a pending run.
func (s *RunService) CreateRun(ctx context.Context, name string, strat types.StrategyType, opt types.OptimizerType, lossKind types.LossType, maxEpochs, rank, worldSize int) (*run.TrainingRun, error) {
	tr, err := run.NewTrainingRun(name, strat, opt, lossKind, maxEpochs, rank, worldSize)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, tr); err != nil {
		return nil, err
	}
	s.incr("run_records_written_total")
	return tr, nil
}

// GetRun loads one run.
func (s *RunService) GetRun(ctx context.Context, id string) (*run.TrainingRun, error) {
	return s.repo.GetByID(ctx, id)
}

// ListRuns returns runs newest first.
func (s *RunService) ListRuns(ctx context.Context, limit, offset int) ([]*run.TrainingRun, int64, error) {
	if limit < 1 || limit > 200 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// ListMetrics returns a run's metric points.
func (s *RunService) ListMetrics(ctx context.Context, runID string, limit int) ([]*run.MetricPoint, error) {
	if limit < 1 || limit > 1000 {
		limit = 100
	}
	return s.repo.ListMetrics(ctx, runID, limit)
}

// Snapshot returns the cached latest evaluation state, or nil when the
// cache is disabled or cold.
func (s *RunService) Snapshot(ctx context.Context, runID string) (*redisrepo.Snapshot, error) {
	if s.cache == nil {
		return nil, nil
	}
	return s.cache.Get(ctx, runID)
}

// FailRun marks a run failed. Called when Fit returns an error.
func (s *RunService) FailRun(ctx context.Context, tr *run.TrainingRun, cause error) {
	tr.Fail(cause.Error())
	if err := s.repo.Update(ctx, tr); err != nil {
		s.logger.Error("failed to persist run failure",
			logging.String("run_id", tr.ID), logging.Error(err))
	}
	s.publish(ctx, types.EventFitEnd, tr.ID, map[string]interface{}{
		"status": string(tr.Status),
		"reason": tr.FailReason,
	})
}

// Callbacks returns the trainer callbacks that keep this run's record,
// cache, event stream, and checkpoints in sync with training progress.
func (s *RunService) Callbacks(tr *run.TrainingRun, m model.RewardModel) []trainer.Callback {
	return []trainer.Callback{&runCallback{svc: s, run: tr, model: m}}
}

func (s *RunService) publish(ctx context.Context, typ types.EventType, runID string, payload map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, &message.Event{Type: typ, RunID: runID, Payload: payload})
	if err != nil {
		// Event delivery is best effort; a broker outage must not abort
		// training.
		s.incr("events_failed_total")
		s.logger.Warn("failed to publish training event",
			logging.String("type", string(typ)), logging.Error(err))
		return
	}
	s.incr("events_published_total")
}

func (s *RunService) incr(name string) {
	if s.metrics != nil {
		s.metrics.IncrementCounter(name, nil)
	}
}

// ============================================================================
// Trainer callback
// ============================================================================

// runCallback threads training progress into the run record and its side
// channels.
type runCallback struct {
	trainer.BaseCallback

	svc   *RunService
	run   *run.TrainingRun
	model model.RewardModel
}

func (c *runCallback) OnFitStart(ctx context.Context) error {
	if err := c.run.Start(); err != nil {
		return err
	}
	if err := c.svc.repo.Update(ctx, c.run); err != nil {
		return err
	}
	c.svc.publish(ctx, types.EventFitStart, c.run.ID, map[string]interface{}{
		"max_epochs": c.run.MaxEpochs,
	})
	return nil
}

func (c *runCallback) OnFitEnd(ctx context.Context) error {
	if err := c.run.Complete(); err != nil {
		return err
	}
	if err := c.svc.repo.Update(ctx, c.run); err != nil {
		return err
	}
	c.svc.publish(ctx, types.EventFitEnd, c.run.ID, map[string]interface{}{
		"status": string(c.run.Status),
		"acc":    c.run.Acc,
	})
	return nil
}

func (c *runCallback) OnEpochStart(ctx context.Context, epoch int) error {
	c.svc.publish(ctx, types.EventEpochStart, c.run.ID, map[string]interface{}{
		"epoch": epoch,
	})
	return nil
}

func (c *runCallback) OnEvalReport(ctx context.Context, report trainer.EvalReport) error {
	c.run.RecordEval(report.Epoch, report.Loss, report.DistMean, report.Acc)
	if err := c.svc.repo.Update(ctx, c.run); err != nil {
		return err
	}
	p := run.NewMetricPoint(c.run.ID, report.Epoch, report.Step, report.Loss, report.DistMean, report.Acc, "valid")
	if err := c.svc.repo.AppendMetric(ctx, p); err != nil {
		return err
	}
	c.putSnapshot(ctx, report)
	c.svc.publish(ctx, types.EventEvalReport, c.run.ID, reportPayload(report))
	return nil
}

func (c *runCallback) OnEpochEnd(ctx context.Context, epoch int, report trainer.EvalReport) error {
	c.run.RecordEval(epoch, report.Loss, report.DistMean, report.Acc)
	if err := c.svc.repo.Update(ctx, c.run); err != nil {
		return err
	}
	p := run.NewMetricPoint(c.run.ID, epoch, report.Step, report.Loss, report.DistMean, report.Acc, "eval")
	if err := c.svc.repo.AppendMetric(ctx, p); err != nil {
		return err
	}
	c.putSnapshot(ctx, report)

	if c.svc.checkpoints != nil && c.model != nil {
		key, err := c.svc.checkpoints.Save(ctx, c.run.ID, epoch, c.model.State())
		if err != nil {
			return err
		}
		c.svc.incr("checkpoint_uploads_total")
		c.svc.logger.Info("epoch checkpoint uploaded",
			logging.String("run_id", c.run.ID), logging.String("key", key))
	}

	c.svc.publish(ctx, types.EventEpochEnd, c.run.ID, reportPayload(report))
	return nil
}

func (c *runCallback) putSnapshot(ctx context.Context, report trainer.EvalReport) {
	if c.svc.cache == nil {
		return
	}
	err := c.svc.cache.Put(ctx, &redisrepo.Snapshot{
		RunID:    c.run.ID,
		Epoch:    report.Epoch,
		Step:     report.Step,
		Loss:     report.Loss,
		DistMean: report.DistMean,
		Acc:      report.Acc,
	})
	if err != nil {
		// Same best-effort stance as events: the cache is a read
		// optimization, not the source of truth.
		c.svc.logger.Warn("failed to cache metrics snapshot",
			logging.String("run_id", c.run.ID), logging.Error(err))
		return
	}
	c.svc.incr("cache_writes_total")
}

func reportPayload(report trainer.EvalReport) map[string]interface{} {
	return map[string]interface{}{
		"epoch":     report.Epoch,
		"step":      report.Step,
		"loss":      report.Loss,
		"dist_mean": report.DistMean,
		"acc":       report.Acc,
	}
}
