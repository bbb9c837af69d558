// Package cli defines the openrmt command-line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openrmt/openrmt/internal/api/cli/commands"
	"github.com/openrmt/openrmt/pkg/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "openrmt",
	Short: "openrmt - reward model training toolkit",
	Long: `openrmt trains scalar reward models on human preference pairs for
RLHF pipelines: pairwise ranking losses, periodic held-out evaluation,
CSV metric logs, and optional run persistence, event publishing, and
checkpoint storage.`,
	Version:       commands.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	rootCmd.AddCommand(commands.NewTrainCmd(loadConfig))
	rootCmd.AddCommand(commands.NewEvalCmd(loadConfig))
	rootCmd.AddCommand(commands.NewVersionCmd())
}

// loadConfig resolves the configuration for a command invocation.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		cfg, err := config.LoadFile(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", cfgFile, err)
		}
		return cfg, nil
	}
	return config.LoadWithDefaults()
}
