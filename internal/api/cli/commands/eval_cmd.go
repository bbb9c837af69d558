package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openrmt/openrmt/internal/app/bootstrap"
	"github.com/openrmt/openrmt/internal/observability/logging"
	"github.com/openrmt/openrmt/pkg/errors"
)

// NewEvalCmd creates the eval command: one ranking-accuracy pass over the
// held-out split, optionally restoring a stored checkpoint first.
func NewEvalCmd(loadConfig ConfigFunc) *cobra.Command {
	var checkpointKey string

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate ranking accuracy on the held-out split",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Data.EvalPath == "" {
				return errors.ValidationError("data.eval_path is required for eval")
			}
			// The job builder requires a training split; evaluating reuses
			// the eval split there since no training step runs.
			cfg.Data.TrainPath = cfg.Data.EvalPath
			cfg.Database.Enabled = false
			cfg.Redis.Enabled = false
			cfg.Kafka.Enabled = false
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

			infra, err := bootstrap.NewInfra(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer infra.Close()

			job, err := bootstrap.NewTrainingJob(ctx, cfg, infra, logger, nil)
			if err != nil {
				return err
			}

			if checkpointKey != "" {
				if infra.Checkpoints == nil {
					return errors.ValidationError("storage must be enabled to load a checkpoint")
				}
				state, err := infra.Checkpoints.Load(ctx, checkpointKey)
				if err != nil {
					return err
				}
				if err := job.Model.LoadState(state); err != nil {
					return err
				}
				logger.Info("checkpoint restored", logging.String("key", checkpointKey))
			}

			distMean, acc, err := job.Trainer.EvalAcc(ctx, job.EvalLoader())
			if err != nil {
				return err
			}

			fmt.Printf("dist_mean=%g acc=%g\n", distMean, acc)
			return nil
		},
	}

	cmd.Flags().StringVar(&checkpointKey, "checkpoint-key", "", "object key of a stored checkpoint to restore")
	return cmd
}
