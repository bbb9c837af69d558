// Package postgres implements the run repository on PostgreSQL via GORM.
package postgres

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/openrmt/openrmt/internal/domain/run"
	"github.com/openrmt/openrmt/internal/observability/logging"
	"github.com/openrmt/openrmt/pkg/errors"
	"github.com/openrmt/openrmt/pkg/types"
)

// trainingRunModel is the GORM mapping of run.TrainingRun.
type trainingRunModel struct {
	ID           string `gorm:"primaryKey;type:uuid"`
	Name         string `gorm:"index;not null"`
	Status       string `gorm:"index;not null"`
	Strategy     string `gorm:"not null"`
	Optimizer    string `gorm:"not null"`
	Loss         string `gorm:"not null"`
	MaxEpochs    int    `gorm:"not null"`
	CurrentEpoch int
	LastLoss     float64
	DistMean     float64
	Acc          float64
	Rank         int
	WorldSize    int
	FailReason   string
	StartedAt    *time.Time
	FinishedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (trainingRunModel) TableName() string { return "training_runs" }

// metricPointModel is the GORM mapping of run.MetricPoint.
type metricPointModel struct {
	ID        string `gorm:"primaryKey;type:uuid"`
	RunID     string `gorm:"index;not null"`
	Epoch     int
	Step      int
	Loss      float64
	DistMean  float64
	Acc       float64
	Split     string `gorm:"index"`
	CreatedAt time.Time
}

func (metricPointModel) TableName() string { return "metric_points" }

// RunRepository implements run.Repository on PostgreSQL.
type RunRepository struct {
	db     *gorm.DB
	logger logging.Logger
}

// Config holds the database connection settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewRunRepository opens the database, runs migrations, and returns the
// repository.
func NewRunRepository(cfg Config, logger logging.Logger) (*RunRepository, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseFailed, "failed to connect to postgres")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseFailed, "failed to access sql connection pool")
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&trainingRunModel{}, &metricPointModel{}); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseFailed, "failed to migrate run tables")
	}

	return &RunRepository{db: db, logger: logger}, nil
}

// Create inserts a new run record.
func (r *RunRepository) Create(ctx context.Context, tr *run.TrainingRun) error {
	if err := r.db.WithContext(ctx).Create(toModel(tr)).Error; err != nil {
		return errors.Wrap(err, errors.CodeDatabaseFailed, "failed to create training run")
	}
	r.logger.Debug("training run created", logging.String("run_id", tr.ID))
	return nil
}

// Update persists the current state of a run record.
func (r *RunRepository) Update(ctx context.Context, tr *run.TrainingRun) error {
	res := r.db.WithContext(ctx).Model(&trainingRunModel{}).
		Where("id = ?", tr.ID).
		Updates(toModel(tr))
	if res.Error != nil {
		return errors.Wrap(res.Error, errors.CodeDatabaseFailed, "failed to update training run")
	}
	if res.RowsAffected == 0 {
		return errors.NotFoundError("training run " + tr.ID)
	}
	return nil
}

// GetByID loads one run record.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*run.TrainingRun, error) {
	var m trainingRunModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.NotFoundError("training run " + id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseFailed, "failed to load training run")
	}
	return fromModel(&m), nil
}

// List returns runs ordered newest first, plus the total count.
func (r *RunRepository) List(ctx context.Context, limit, offset int) ([]*run.TrainingRun, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&trainingRunModel{}).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, errors.CodeDatabaseFailed, "failed to count training runs")
	}

	var models []trainingRunModel
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.CodeDatabaseFailed, "failed to list training runs")
	}

	out := make([]*run.TrainingRun, len(models))
	for i := range models {
		out[i] = fromModel(&models[i])
	}
	return out, total, nil
}

// AppendMetric inserts one metric point.
func (r *RunRepository) AppendMetric(ctx context.Context, p *run.MetricPoint) error {
	m := &metricPointModel{
		ID:        p.ID,
		RunID:     p.RunID,
		Epoch:     p.Epoch,
		Step:      p.Step,
		Loss:      p.Loss,
		DistMean:  p.DistMean,
		Acc:       p.Acc,
		Split:     p.Split,
		CreatedAt: p.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return errors.Wrap(err, errors.CodeDatabaseFailed, "failed to append metric point")
	}
	return nil
}

// ListMetrics returns a run's metric points ordered oldest first.
func (r *RunRepository) ListMetrics(ctx context.Context, runID string, limit int) ([]*run.MetricPoint, error) {
	var models []metricPointModel
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseFailed, "failed to list metric points")
	}

	out := make([]*run.MetricPoint, len(models))
	for i, m := range models {
		out[i] = &run.MetricPoint{
			ID:        m.ID,
			RunID:     m.RunID,
			Epoch:     m.Epoch,
			Step:      m.Step,
			Loss:      m.Loss,
			DistMean:  m.DistMean,
			Acc:       m.Acc,
			Split:     m.Split,
			CreatedAt: m.CreatedAt,
		}
	}
	return out, nil
}

// Close releases the connection pool.
func (r *RunRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toModel(tr *run.TrainingRun) *trainingRunModel {
	return &trainingRunModel{
		ID:           tr.ID,
		Name:         tr.Name,
		Status:       string(tr.Status),
		Strategy:     string(tr.Strategy),
		Optimizer:    string(tr.Optimizer),
		Loss:         string(tr.Loss),
		MaxEpochs:    tr.MaxEpochs,
		CurrentEpoch: tr.CurrentEpoch,
		LastLoss:     tr.LastLoss,
		DistMean:     tr.DistMean,
		Acc:          tr.Acc,
		Rank:         tr.Rank,
		WorldSize:    tr.WorldSize,
		FailReason:   tr.FailReason,
		StartedAt:    tr.StartedAt,
		FinishedAt:   tr.FinishedAt,
		CreatedAt:    tr.CreatedAt,
		UpdatedAt:    tr.UpdatedAt,
	}
}

func fromModel(m *trainingRunModel) *run.TrainingRun {
	return &run.TrainingRun{
		ID:           m.ID,
		Name:         m.Name,
		Status:       types.RunStatus(m.Status),
		Strategy:     types.StrategyType(m.Strategy),
		Optimizer:    types.OptimizerType(m.Optimizer),
		Loss:         types.LossType(m.Loss),
		MaxEpochs:    m.MaxEpochs,
		CurrentEpoch: m.CurrentEpoch,
		LastLoss:     m.LastLoss,
		DistMean:     m.DistMean,
		Acc:          m.Acc,
		Rank:         m.Rank,
		WorldSize:    m.WorldSize,
		FailReason:   m.FailReason,
		StartedAt:    m.StartedAt,
		FinishedAt:   m.FinishedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
