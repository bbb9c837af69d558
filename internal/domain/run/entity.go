// Package run defines the training-run aggregate: the durable record of one
// reward-model training job and the metric points it emits.
package run

import (
	"time"

	"github.com/google/uuid"

	"github.com/openrmt/openrmt/pkg/errors"
	"github.com/openrmt/openrmt/pkg/types"
)

// TrainingRun is the persistent record of one fit() invocation.
type TrainingRun struct {
	ID   string
	Name string

	Status    types.RunStatus
	Strategy  types.StrategyType
	Optimizer types.OptimizerType
	Loss      types.LossType

	MaxEpochs    int
	CurrentEpoch int

	LastLoss float64
	DistMean float64
	Acc      float64

	Rank      int
	WorldSize int

	FailReason string

	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewTrainingRun creates a pending run record.
func NewTrainingRun(name string, strat types.StrategyType, opt types.OptimizerType, lossKind types.LossType, maxEpochs, rank, worldSize int) (*TrainingRun, error) {
	if name == "" {
		return nil, errors.ValidationError("run name is required")
	}
	if maxEpochs < 1 {
		return nil, errors.ValidationErrorf("max epochs %d, want >= 1", maxEpochs)
	}
	now := time.Now()
	return &TrainingRun{
		ID:        uuid.New().String(),
		Name:      name,
		Status:    types.RunStatusPending,
		Strategy:  strat,
		Optimizer: opt,
		Loss:      lossKind,
		MaxEpochs: maxEpochs,
		Rank:      rank,
		WorldSize: worldSize,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Start transitions the run to running.
func (r *TrainingRun) Start() error {
	if r.Status != types.RunStatusPending {
		return errors.ValidationErrorf("cannot start run in status %q", r.Status)
	}
	now := time.Now()
	r.Status = types.RunStatusRunning
	r.StartedAt = &now
	r.UpdatedAt = now
	return nil
}

// RecordEval updates the run's latest metrics.
func (r *TrainingRun) RecordEval(epoch int, loss, distMean, acc float64) {
	r.CurrentEpoch = epoch
	r.LastLoss = loss
	r.DistMean = distMean
	r.Acc = acc
	r.UpdatedAt = time.Now()
}

// Complete transitions the run to completed.
func (r *TrainingRun) Complete() error {
	if r.Status != types.RunStatusRunning {
		return errors.ValidationErrorf("cannot complete run in status %q", r.Status)
	}
	now := time.Now()
	r.Status = types.RunStatusCompleted
	r.FinishedAt = &now
	r.UpdatedAt = now
	return nil
}

// Fail transitions the run to failed with a reason.
func (r *TrainingRun) Fail(reason string) {
	now := time.Now()
	r.Status = types.RunStatusFailed
	r.FailReason = reason
	r.FinishedAt = &now
	r.UpdatedAt = now
}

// MetricPoint is one logged evaluation result, mirroring a CSV row with its
// provenance attached.
type MetricPoint struct {
	ID        string
	RunID     string
	Epoch     int
	Step      int
	Loss      float64
	DistMean  float64
	Acc       float64
	Split     string // "valid" for mid-epoch points, "eval" for summaries
	CreatedAt time.Time
}

// NewMetricPoint creates a metric point for a run.
func NewMetricPoint(runID string, epoch, step int, loss, distMean, acc float64, split string) *MetricPoint {
	return &MetricPoint{
		ID:        uuid.New().String(),
		RunID:     runID,
		Epoch:     epoch,
		Step:      step,
		Loss:      loss,
		DistMean:  distMean,
		Acc:       acc,
		Split:     split,
		CreatedAt: time.Now(),
	}
}
