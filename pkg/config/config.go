// Package config provides centralized configuration management for openrmt.
// It defines configuration structures for all components and supports
// validation, default values, and environment-based configuration loading.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ============================================================================
// Main Configuration Structure
// ============================================================================

// Config represents the complete application configuration
type Config struct {
	// Trainer configuration
	Trainer TrainerConfig `mapstructure:"trainer" yaml:"trainer" json:"trainer"`

	// Data pipeline configuration
	Data DataConfig `mapstructure:"data" yaml:"data" json:"data"`

	// Distributed execution configuration
	Distributed DistributedConfig `mapstructure:"distributed" yaml:"distributed" json:"distributed"`

	// Server configuration (status API)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Database configuration (run metadata)
	Database DatabaseConfig `mapstructure:"database" yaml:"database" json:"database"`

	// Redis configuration (metrics snapshot cache)
	Redis RedisConfig `mapstructure:"redis" yaml:"redis" json:"redis"`

	// Kafka configuration (training event bus)
	Kafka KafkaConfig `mapstructure:"kafka" yaml:"kafka" json:"kafka"`

	// Storage configuration (checkpoints)
	Storage StorageConfig `mapstructure:"storage" yaml:"storage" json:"storage"`

	// Observability configuration
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability" json:"observability"`
}

// ============================================================================
// Trainer Configuration
// ============================================================================

// TrainerConfig defines the reward-model training loop configuration
type TrainerConfig struct {
	// Run name (used in logs, events and checkpoint keys)
	RunName string `mapstructure:"run_name" yaml:"run_name" json:"run_name"`

	// Maximum number of epochs
	MaxEpochs int `mapstructure:"max_epochs" yaml:"max_epochs" json:"max_epochs" validate:"min=1"`

	// Training steps between scheduler advance + validation eval + log row
	EvalInterval int `mapstructure:"eval_interval" yaml:"eval_interval" json:"eval_interval" validate:"min=1"`

	// Initial learning rate
	LearningRate float64 `mapstructure:"learning_rate" yaml:"learning_rate" json:"learning_rate" validate:"gt=0"`

	// Optimizer (sgd, adam)
	Optimizer string `mapstructure:"optimizer" yaml:"optimizer" json:"optimizer" validate:"oneof=sgd adam"`

	// Scheduler (step, cosine)
	Scheduler string `mapstructure:"scheduler" yaml:"scheduler" json:"scheduler" validate:"oneof=step cosine"`

	// Scheduler decay factor (step schedule)
	SchedulerGamma float64 `mapstructure:"scheduler_gamma" yaml:"scheduler_gamma" json:"scheduler_gamma"`

	// Pairwise loss (log_sigmoid, log_exp, hinge)
	Loss string `mapstructure:"loss" yaml:"loss" json:"loss" validate:"oneof=log_sigmoid log_exp hinge"`

	// Hinge margin (hinge loss only)
	HingeMargin float64 `mapstructure:"hinge_margin" yaml:"hinge_margin" json:"hinge_margin"`

	// Strategy (naive, grad_accum)
	Strategy string `mapstructure:"strategy" yaml:"strategy" json:"strategy" validate:"oneof=naive grad_accum"`

	// Micro-batches per optimizer step (grad_accum strategy)
	AccumSteps int `mapstructure:"accum_steps" yaml:"accum_steps" json:"accum_steps"`

	// Directory for the CSV metric logs
	LogDir string `mapstructure:"log_dir" yaml:"log_dir" json:"log_dir"`

	// Embedding dimension of the built-in reward model
	EmbeddingDim int `mapstructure:"embedding_dim" yaml:"embedding_dim" json:"embedding_dim"`

	// Save a checkpoint after every epoch
	Checkpoint bool `mapstructure:"checkpoint" yaml:"checkpoint" json:"checkpoint"`
}

// ============================================================================
// Data Configuration
// ============================================================================

// DataConfig defines the preference dataset configuration
type DataConfig struct {
	// JSONL files with {prompt, chosen, rejected} records
	TrainPath string `mapstructure:"train_path" yaml:"train_path" json:"train_path"`
	ValidPath string `mapstructure:"valid_path" yaml:"valid_path" json:"valid_path"`
	EvalPath  string `mapstructure:"eval_path" yaml:"eval_path" json:"eval_path"`

	// Examples per batch
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size" json:"batch_size" validate:"min=1"`

	// Tokens per sequence (pad/truncate)
	SeqLen int `mapstructure:"seq_len" yaml:"seq_len" json:"seq_len" validate:"min=1"`

	// Hashing tokenizer vocabulary size
	VocabSize int `mapstructure:"vocab_size" yaml:"vocab_size" json:"vocab_size" validate:"min=2"`

	// Concurrent shard readers
	LoadWorkers int `mapstructure:"load_workers" yaml:"load_workers" json:"load_workers"`
}

// ============================================================================
// Distributed Configuration
// ============================================================================

// DistributedConfig identifies this process within a distributed run.
// Rank and world size are explicit inputs rather than ambient globals.
type DistributedConfig struct {
	// Rank of this process (rank 0 is the elected reporter)
	Rank int `mapstructure:"rank" yaml:"rank" json:"rank" validate:"min=0"`

	// Total number of processes
	WorldSize int `mapstructure:"world_size" yaml:"world_size" json:"world_size" validate:"min=1"`

	// Compute device (cpu, cuda)
	Device string `mapstructure:"device" yaml:"device" json:"device"`

	// Device index
	DeviceIndex int `mapstructure:"device_index" yaml:"device_index" json:"device_index"`
}

// ============================================================================
// Server Configuration
// ============================================================================

// ServerConfig defines the run status HTTP server configuration
type ServerConfig struct {
	// Host to bind to
	Host string `mapstructure:"host" yaml:"host" json:"host"`

	// Port to listen on
	Port int `mapstructure:"port" yaml:"port" json:"port"`

	// Environment (development, staging, production)
	Environment string `mapstructure:"environment" yaml:"environment" json:"environment"`

	// Read timeout
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`

	// Write timeout
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`

	// Enable CORS
	EnableCORS bool `mapstructure:"enable_cors" yaml:"enable_cors" json:"enable_cors"`

	// Enable pprof endpoints
	EnablePprof bool `mapstructure:"enable_pprof" yaml:"enable_pprof" json:"enable_pprof"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// ============================================================================
// Database Configuration
// ============================================================================

// DatabaseConfig defines PostgreSQL database configuration
type DatabaseConfig struct {
	// Enable run metadata persistence
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Host address
	Host string `mapstructure:"host" yaml:"host" json:"host"`

	// Port number
	Port int `mapstructure:"port" yaml:"port" json:"port"`

	// Database name
	Database string `mapstructure:"database" yaml:"database" json:"database"`

	// Username
	Username string `mapstructure:"username" yaml:"username" json:"username"`

	// Password
	Password string `mapstructure:"password" yaml:"password" json:"password"`

	// SSL mode (disable, require, verify-ca, verify-full)
	SSLMode string `mapstructure:"ssl_mode" yaml:"ssl_mode" json:"ssl_mode"`

	// Maximum open connections
	MaxOpenConns int `mapstructure:"max_open_conns" yaml:"max_open_conns" json:"max_open_conns"`

	// Maximum idle connections
	MaxIdleConns int `mapstructure:"max_idle_conns" yaml:"max_idle_conns" json:"max_idle_conns"`

	// Connection max lifetime
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime" json:"conn_max_lifetime"`

	// Enable auto migration
	AutoMigrate bool `mapstructure:"auto_migrate" yaml:"auto_migrate" json:"auto_migrate"`
}

// ============================================================================
// Redis Configuration
// ============================================================================

// RedisConfig defines the metrics snapshot cache configuration
type RedisConfig struct {
	// Enable the metrics snapshot cache
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Host address
	Host string `mapstructure:"host" yaml:"host" json:"host"`

	// Port number
	Port int `mapstructure:"port" yaml:"port" json:"port"`

	// Password
	Password string `mapstructure:"password" yaml:"password" json:"password"`

	// Database number
	DB int `mapstructure:"db" yaml:"db" json:"db"`

	// Pool size
	PoolSize int `mapstructure:"pool_size" yaml:"pool_size" json:"pool_size"`

	// Dial timeout
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" json:"dial_timeout"`

	// Default TTL for snapshot entries
	DefaultTTL time.Duration `mapstructure:"default_ttl" yaml:"default_ttl" json:"default_ttl"`
}

// ============================================================================
// Kafka Configuration
// ============================================================================

// KafkaConfig defines the training event bus configuration
type KafkaConfig struct {
	// Enable event publishing
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Broker addresses
	Brokers []string `mapstructure:"brokers" yaml:"brokers" json:"brokers"`

	// Client ID
	ClientID string `mapstructure:"client_id" yaml:"client_id" json:"client_id"`

	// Topic for training events
	Topic string `mapstructure:"topic" yaml:"topic" json:"topic"`

	// Required acks (-1, 0, 1)
	RequiredAcks int `mapstructure:"required_acks" yaml:"required_acks" json:"required_acks"`

	// Max retries for a publish
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
}

// ============================================================================
// Storage Configuration
// ============================================================================

// StorageConfig defines checkpoint object storage configuration
type StorageConfig struct {
	// Enable checkpoint uploads
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Endpoint (MinIO or S3-compatible)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`

	// Bucket name
	Bucket string `mapstructure:"bucket" yaml:"bucket" json:"bucket"`

	// Access key ID
	AccessKeyID string `mapstructure:"access_key_id" yaml:"access_key_id" json:"access_key_id"`

	// Secret access key
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key" json:"secret_access_key"`

	// Use SSL
	UseSSL bool `mapstructure:"use_ssl" yaml:"use_ssl" json:"use_ssl"`
}

// ============================================================================
// Observability Configuration
// ============================================================================

// ObservabilityConfig defines observability configuration
type ObservabilityConfig struct {
	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging" json:"logging"`

	// Metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Log level (debug, info, warn, error, fatal)
	Level string `mapstructure:"level" yaml:"level" json:"level"`

	// Log format (json, console)
	Format string `mapstructure:"format" yaml:"format" json:"format"`

	// Output (stdout, stderr, file)
	Output string `mapstructure:"output" yaml:"output" json:"output"`

	// Log file path (if output is file)
	FilePath string `mapstructure:"file_path" yaml:"file_path" json:"file_path"`

	// Max file size in MB
	MaxSize int `mapstructure:"max_size" yaml:"max_size" json:"max_size"`

	// Max backup files
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups" json:"max_backups"`

	// Max age in days
	MaxAge int `mapstructure:"max_age" yaml:"max_age" json:"max_age"`

	// Enable compression
	Compress bool `mapstructure:"compress" yaml:"compress" json:"compress"`
}

// MetricsConfig defines metrics configuration
type MetricsConfig struct {
	// Enable metrics collection
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Namespace for metrics
	Namespace string `mapstructure:"namespace" yaml:"namespace" json:"namespace"`

	// Metrics path on the status server
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// ============================================================================
// Configuration Validation
// ============================================================================

var validate = validator.New()

// Validate validates the entire configuration
func (c *Config) Validate() error {
	if err := validate.Struct(&c.Trainer); err != nil {
		return fmt.Errorf("trainer config: %w", err)
	}

	if err := validate.Struct(&c.Data); err != nil {
		return fmt.Errorf("data config: %w", err)
	}

	if err := validate.Struct(&c.Distributed); err != nil {
		return fmt.Errorf("distributed config: %w", err)
	}

	if c.Distributed.Rank >= c.Distributed.WorldSize {
		return fmt.Errorf("distributed config: rank %d out of range for world size %d",
			c.Distributed.Rank, c.Distributed.WorldSize)
	}

	if c.Trainer.Strategy == "grad_accum" && c.Trainer.AccumSteps < 1 {
		return fmt.Errorf("trainer config: accum_steps must be >= 1 for grad_accum strategy")
	}

	if c.Database.Enabled {
		if c.Database.Host == "" || c.Database.Database == "" {
			return fmt.Errorf("database config: host and database are required when enabled")
		}
	}

	if c.Storage.Enabled {
		if c.Storage.Endpoint == "" || c.Storage.Bucket == "" {
			return fmt.Errorf("storage config: endpoint and bucket are required when enabled")
		}
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka config: at least one broker is required when enabled")
	}

	return nil
}
