// Package bootstrap assembles the training stack from configuration: the
// observability plumbing, the optional infrastructure side channels, and
// the trainer itself.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/openrmt/openrmt/internal/app/service"
	"github.com/openrmt/openrmt/internal/data"
	"github.com/openrmt/openrmt/internal/distributed"
	"github.com/openrmt/openrmt/internal/domain/run"
	"github.com/openrmt/openrmt/internal/infrastructure/message"
	"github.com/openrmt/openrmt/internal/infrastructure/message/kafka"
	"github.com/openrmt/openrmt/internal/infrastructure/repository/postgres"
	redisrepo "github.com/openrmt/openrmt/internal/infrastructure/repository/redis"
	"github.com/openrmt/openrmt/internal/infrastructure/storage"
	miniostore "github.com/openrmt/openrmt/internal/infrastructure/storage/minio"
	"github.com/openrmt/openrmt/internal/loss"
	"github.com/openrmt/openrmt/internal/model"
	"github.com/openrmt/openrmt/internal/observability/logging"
	"github.com/openrmt/openrmt/internal/observability/metrics"
	"github.com/openrmt/openrmt/internal/optim"
	"github.com/openrmt/openrmt/internal/strategy"
	"github.com/openrmt/openrmt/internal/tensor"
	"github.com/openrmt/openrmt/internal/trainer"
	"github.com/openrmt/openrmt/pkg/config"
	"github.com/openrmt/openrmt/pkg/errors"
	"github.com/openrmt/openrmt/pkg/types"
)

// NewLogger builds the structured logger from config.
func NewLogger(cfg *config.Config) (logging.Logger, error) {
	lc := logging.LogConfig{
		Level:      cfg.Observability.Logging.Level,
		Format:     cfg.Observability.Logging.Format,
		Output:     cfg.Observability.Logging.Output,
		FilePath:   cfg.Observability.Logging.FilePath,
		MaxSize:    cfg.Observability.Logging.MaxSize,
		MaxBackups: cfg.Observability.Logging.MaxBackups,
		MaxAge:     cfg.Observability.Logging.MaxAge,
		Compress:   cfg.Observability.Logging.Compress,
	}
	if lc.Output == "file" {
		return logging.NewZapLoggerWithRotation(lc)
	}
	return logging.NewZapLogger(lc)
}

// NewCollector builds the Prometheus collector, or nil when metrics are
// disabled.
func NewCollector(cfg *config.Config) *metrics.Collector {
	if !cfg.Observability.Metrics.Enabled {
		return nil
	}
	return metrics.NewCollector(metrics.CollectorConfig{
		Namespace: cfg.Observability.Metrics.Namespace,
	})
}

// Infra bundles the optional side channels of a run.
type Infra struct {
	Repo        *postgres.RunRepository
	Cache       *redisrepo.MetricsCache
	Publisher   message.Publisher
	Checkpoints storage.CheckpointStore
}

// NewInfra connects whichever infrastructure components are enabled.
func NewInfra(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Infra, error) {
	infra := &Infra{}

	if cfg.Database.Enabled {
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.Username,
			cfg.Database.Password, cfg.Database.Database, cfg.Database.SSLMode)
		repo, err := postgres.NewRunRepository(postgres.Config{
			DSN:             dsn,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, err
		}
		infra.Repo = repo
	}

	if cfg.Redis.Enabled {
		cache, err := redisrepo.NewMetricsCache(ctx, redisrepo.Config{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.DefaultTTL,
		}, logger)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.Cache = cache
	}

	if cfg.Kafka.Enabled {
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, logger)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.Publisher = pub
	}

	if cfg.Storage.Enabled {
		store, err := miniostore.NewCheckpointStore(ctx, miniostore.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKeyID,
			SecretKey: cfg.Storage.SecretAccessKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		}, logger)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.Checkpoints = store
	}

	return infra, nil
}

// Close releases whatever was connected.
func (i *Infra) Close() {
	if i.Repo != nil {
		_ = i.Repo.Close()
	}
	if i.Cache != nil {
		_ = i.Cache.Close()
	}
	if i.Publisher != nil {
		_ = i.Publisher.Close()
	}
	if i.Checkpoints != nil {
		_ = i.Checkpoints.Close()
	}
}

// NewRunService builds the run service when persistence is enabled.
func (i *Infra) NewRunService(logger logging.Logger, collector *metrics.Collector) (*service.RunService, error) {
	if i.Repo == nil {
		return nil, nil
	}
	return service.NewRunService(i.Repo, i.Cache, i.Publisher, i.Checkpoints, logger, collector)
}

// loadSplit reads one dataset split into a loader, or returns nil when the
// split is not configured.
func loadSplit(ctx context.Context, pattern string, tok *data.HashTokenizer, batchSize, workers int) (data.Loader, error) {
	if pattern == "" {
		return nil, nil
	}
	pairs, err := data.LoadGlob(ctx, pattern, workers)
	if err != nil {
		return nil, err
	}
	set := data.NewPreferenceSet(pairs, tok)
	return set.Loader(batchSize)
}

// NewOptimizer builds the configured optimizer over the model parameters.
func NewOptimizer(cfg *config.Config, m model.RewardModel) (optim.Optimizer, error) {
	switch types.OptimizerType(cfg.Trainer.Optimizer) {
	case types.OptimizerSGD:
		return optim.NewSGD(m.Parameters(), optim.SGDConfig{LR: cfg.Trainer.LearningRate})
	case types.OptimizerAdam:
		return optim.NewAdam(m.Parameters(), optim.AdamConfig{LR: cfg.Trainer.LearningRate})
	default:
		return nil, errors.ValidationErrorf("unknown optimizer %q", cfg.Trainer.Optimizer)
	}
}

// NewScheduler builds the configured learning-rate schedule.
func NewScheduler(cfg *config.Config, opt optim.Optimizer) (optim.Scheduler, error) {
	switch types.SchedulerType(cfg.Trainer.Scheduler) {
	case types.SchedulerStep:
		return optim.NewStepDecay(opt, cfg.Trainer.SchedulerGamma), nil
	case types.SchedulerCosine:
		// One tick per eval interval; anneal over the epoch budget assuming
		// ten ticks per epoch, which is close enough for a schedule.
		return optim.NewCosineAnnealing(opt, cfg.Trainer.LearningRate/100, cfg.Trainer.MaxEpochs*10), nil
	default:
		return nil, errors.ValidationErrorf("unknown scheduler %q", cfg.Trainer.Scheduler)
	}
}

// TrainingJob is a fully assembled run: call Fit on the trainer, then
// settle the run record.
type TrainingJob struct {
	Trainer *trainer.RewardModelTrainer
	Model   model.RewardModel
	Run     *run.TrainingRun
	Service *service.RunService

	evalLoader data.Loader
}

// EvalLoader returns the held-out split loader, or nil when the split is
// not configured.
func (j *TrainingJob) EvalLoader() data.Loader {
	return j.evalLoader
}

// NewTrainingJob assembles the datasets, model, optimizer, loss, strategy,
// and trainer from config, registering a run record when persistence is on.
func NewTrainingJob(ctx context.Context, cfg *config.Config, infra *Infra, logger logging.Logger, collector *metrics.Collector) (*TrainingJob, error) {
	tok := data.NewHashTokenizer(cfg.Data.VocabSize, cfg.Data.SeqLen)

	trainLoader, err := loadSplit(ctx, cfg.Data.TrainPath, tok, cfg.Data.BatchSize, cfg.Data.LoadWorkers)
	if err != nil {
		return nil, err
	}
	if trainLoader == nil {
		return nil, errors.ValidationError("data.train_path is required for training")
	}
	validLoader, err := loadSplit(ctx, cfg.Data.ValidPath, tok, cfg.Data.BatchSize, cfg.Data.LoadWorkers)
	if err != nil {
		return nil, err
	}
	evalLoader, err := loadSplit(ctx, cfg.Data.EvalPath, tok, cfg.Data.BatchSize, cfg.Data.LoadWorkers)
	if err != nil {
		return nil, err
	}

	m := model.NewLinearReward(cfg.Data.VocabSize, cfg.Trainer.EmbeddingDim, 0)

	opt, err := NewOptimizer(cfg, m)
	if err != nil {
		return nil, err
	}
	sched, err := NewScheduler(cfg, opt)
	if err != nil {
		return nil, err
	}
	lossFn, err := loss.New(types.LossType(cfg.Trainer.Loss), cfg.Trainer.HingeMargin)
	if err != nil {
		return nil, err
	}
	strat, err := strategy.New(types.StrategyType(cfg.Trainer.Strategy), cfg.Trainer.AccumSteps)
	if err != nil {
		return nil, err
	}
	group, err := distributed.NewProcessGroup(cfg.Distributed.Rank, cfg.Distributed.WorldSize)
	if err != nil {
		return nil, err
	}

	job := &TrainingJob{Model: m, evalLoader: evalLoader}

	var callbacks []trainer.Callback
	svc, err := infra.NewRunService(logger, collector)
	if err != nil {
		return nil, err
	}
	if svc != nil {
		checkpointModel := model.RewardModel(nil)
		if cfg.Trainer.Checkpoint {
			checkpointModel = m
		}
		tr, err := svc.CreateRun(ctx, cfg.Trainer.RunName,
			types.StrategyType(cfg.Trainer.Strategy),
			types.OptimizerType(cfg.Trainer.Optimizer),
			types.LossType(cfg.Trainer.Loss),
			cfg.Trainer.MaxEpochs, cfg.Distributed.Rank, cfg.Distributed.WorldSize)
		if err != nil {
			return nil, err
		}
		callbacks = svc.Callbacks(tr, checkpointModel)
		job.Run = tr
		job.Service = svc
	}

	t, err := trainer.NewRewardModelTrainer(trainer.Config{
		Model:        m,
		Strategy:     strat,
		Optimizer:    opt,
		Scheduler:    sched,
		Loss:         lossFn,
		TrainLoader:  trainLoader,
		ValidLoader:  validLoader,
		EvalLoader:   evalLoader,
		Device:       tensor.ParseDevice(cfg.Distributed.Device, cfg.Distributed.DeviceIndex),
		Group:        group,
		MaxEpochs:    cfg.Trainer.MaxEpochs,
		EvalInterval: cfg.Trainer.EvalInterval,
		Callbacks:    callbacks,
		MetricLog:    trainer.NewMetricLog(cfg.Trainer.LogDir, time.Now()),
		Logger:       logger,
		Metrics:      collector,
	})
	if err != nil {
		return nil, err
	}
	job.Trainer = t
	return job, nil
}

// Execute runs Fit and settles the run record on failure.
func (j *TrainingJob) Execute(ctx context.Context) error {
	err := j.Trainer.Fit(ctx)
	if err != nil && j.Service != nil && j.Run != nil {
		j.Service.FailRun(context.WithoutCancel(ctx), j.Run, err)
	}
	return err
}
