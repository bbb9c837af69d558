package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrmt/openrmt/pkg/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, 1, cfg.Trainer.MaxEpochs)
	assert.Equal(t, 100, cfg.Trainer.EvalInterval)
	assert.Equal(t, "adam", cfg.Trainer.Optimizer)
	assert.Equal(t, "log_sigmoid", cfg.Trainer.Loss)
	assert.Equal(t, "naive", cfg.Trainer.Strategy)
	assert.Equal(t, 8, cfg.Data.BatchSize)
	assert.Equal(t, 1, cfg.Distributed.WorldSize)
	assert.Equal(t, "cpu", cfg.Distributed.Device)

	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Run("rank must fit the world size", func(t *testing.T) {
		cfg := config.Default()
		cfg.Distributed.Rank = 2
		cfg.Distributed.WorldSize = 2
		assert.Error(t, cfg.Validate())
	})

	t.Run("grad_accum needs accum steps", func(t *testing.T) {
		cfg := config.Default()
		cfg.Trainer.Strategy = "grad_accum"
		cfg.Trainer.AccumSteps = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown optimizer", func(t *testing.T) {
		cfg := config.Default()
		cfg.Trainer.Optimizer = "rmsprop"
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown loss", func(t *testing.T) {
		cfg := config.Default()
		cfg.Trainer.Loss = "mse"
		assert.Error(t, cfg.Validate())
	})

	t.Run("enabled database needs a host", func(t *testing.T) {
		cfg := config.Default()
		cfg.Database.Enabled = true
		assert.Error(t, cfg.Validate())
	})

	t.Run("enabled storage needs endpoint and bucket", func(t *testing.T) {
		cfg := config.Default()
		cfg.Storage.Enabled = true
		cfg.Storage.Endpoint = "localhost:9000"
		assert.Error(t, cfg.Validate())
	})

	t.Run("enabled kafka needs brokers", func(t *testing.T) {
		cfg := config.Default()
		cfg.Kafka.Enabled = true
		assert.Error(t, cfg.Validate())
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
trainer:
  run_name: weekly-rm
  max_epochs: 3
  learning_rate: 0.01
  optimizer: sgd
  loss: hinge
  hinge_margin: 0.5
data:
  batch_size: 16
  seq_len: 64
distributed:
  rank: 0
  world_size: 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "weekly-rm", cfg.Trainer.RunName)
	assert.Equal(t, 3, cfg.Trainer.MaxEpochs)
	assert.Equal(t, "sgd", cfg.Trainer.Optimizer)
	assert.Equal(t, "hinge", cfg.Trainer.Loss)
	assert.Equal(t, 0.5, cfg.Trainer.HingeMargin)
	assert.Equal(t, 16, cfg.Data.BatchSize)
	assert.Equal(t, 64, cfg.Data.SeqLen)

	// Untouched fields still get defaults.
	assert.Equal(t, 100, cfg.Trainer.EvalInterval)
	assert.Equal(t, "step", cfg.Trainer.Scheduler)
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
trainer:
  optimizer: rmsprop
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := config.LoadFile(path)
	assert.Error(t, err)
}
