// Package commands implements the openrmt subcommands.
package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openrmt/openrmt/internal/app/bootstrap"
	"github.com/openrmt/openrmt/internal/observability/logging"
	"github.com/openrmt/openrmt/pkg/config"
)

// ConfigFunc resolves the configuration for a command.
type ConfigFunc func() (*config.Config, error)

// NewTrainCmd creates the train command.
func NewTrainCmd(loadConfig ConfigFunc) *cobra.Command {
	var (
		runName   string
		maxEpochs int
		trainPath string
		validPath string
		evalPath  string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a reward model on preference pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if runName != "" {
				cfg.Trainer.RunName = runName
			}
			if maxEpochs > 0 {
				cfg.Trainer.MaxEpochs = maxEpochs
			}
			if trainPath != "" {
				cfg.Data.TrainPath = trainPath
			}
			if validPath != "" {
				cfg.Data.ValidPath = validPath
			}
			if evalPath != "" {
				cfg.Data.EvalPath = evalPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := bootstrap.NewLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			collector := bootstrap.NewCollector(cfg)

			infra, err := bootstrap.NewInfra(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer infra.Close()

			job, err := bootstrap.NewTrainingJob(ctx, cfg, infra, logger, collector)
			if err != nil {
				return err
			}

			logger.Info("training started",
				logging.String("run", cfg.Trainer.RunName),
				logging.Int("max_epochs", cfg.Trainer.MaxEpochs),
				logging.String("strategy", cfg.Trainer.Strategy),
				logging.String("loss", cfg.Trainer.Loss),
			)
			if err := job.Execute(ctx); err != nil {
				logger.Error("training failed", logging.Error(err))
				return err
			}
			logger.Info("training finished", logging.String("run", cfg.Trainer.RunName))
			return nil
		},
	}

	cmd.Flags().StringVar(&runName, "run-name", "", "override trainer.run_name")
	cmd.Flags().IntVar(&maxEpochs, "max-epochs", 0, "override trainer.max_epochs")
	cmd.Flags().StringVar(&trainPath, "train-path", "", "override data.train_path (JSONL glob)")
	cmd.Flags().StringVar(&validPath, "valid-path", "", "override data.valid_path (JSONL glob)")
	cmd.Flags().StringVar(&evalPath, "eval-path", "", "override data.eval_path (JSONL glob)")

	return cmd
}
