// Package config provides configuration loading and management for openrmt.
// It supports loading from YAML files, environment variables, and command-line
// arguments, with hot-reload capabilities using Viper.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ============================================================================
// Configuration Loader
// ============================================================================

// Loader manages configuration loading and reloading
type Loader struct {
	// Viper instance
	viper *viper.Viper

	// Current configuration
	config *Config
	mu     sync.RWMutex

	// Configuration file path
	configFile string

	// Watch for changes
	watchEnabled bool

	// Reload callbacks
	reloadCallbacks []ReloadCallback

	// Logger (optional, can be set after initialization)
	logger Logger
}

// ReloadCallback is called when configuration is reloaded
type ReloadCallback func(oldConfig, newConfig *Config) error

// Logger interface for configuration loader logging
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// LoaderOptions defines options for configuration loader
type LoaderOptions struct {
	// Configuration file path
	ConfigFile string

	// Enable watching for file changes
	EnableWatch bool

	// Environment variable prefix
	EnvPrefix string

	// Additional config paths to search
	ConfigPaths []string
}

// ============================================================================
// Loader Creation and Initialization
// ============================================================================

// NewLoader creates a new configuration loader
func NewLoader(opts LoaderOptions) (*Loader, error) {
	v := viper.New()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/openrmt")

		for _, path := range opts.ConfigPaths {
			v.AddConfigPath(path)
		}
	}

	envPrefix := opts.EnvPrefix
	if envPrefix == "" {
		envPrefix = "OPENRMT"
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	loader := &Loader{
		viper:        v,
		configFile:   opts.ConfigFile,
		watchEnabled: opts.EnableWatch,
	}

	return loader, nil
}

// Load loads configuration from all sources
func (l *Loader) Load() (*Config, error) {
	if err := l.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			l.logWarn("Configuration file not found, using defaults", "error", err)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{}
	if err := l.viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	l.mu.Lock()
	l.config = config
	l.mu.Unlock()

	l.logInfo("Configuration loaded successfully", "file", l.viper.ConfigFileUsed())

	if l.watchEnabled {
		l.startWatch()
	}

	return config, nil
}

// Get returns the current configuration
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// ============================================================================
// Configuration Defaults
// ============================================================================

// applyDefaults applies default values to configuration
func applyDefaults(config *Config) {
	// Trainer defaults
	if config.Trainer.RunName == "" {
		config.Trainer.RunName = "reward-model"
	}
	if config.Trainer.MaxEpochs == 0 {
		config.Trainer.MaxEpochs = 1
	}
	if config.Trainer.EvalInterval == 0 {
		config.Trainer.EvalInterval = 100
	}
	if config.Trainer.LearningRate == 0 {
		config.Trainer.LearningRate = 1e-3
	}
	if config.Trainer.Optimizer == "" {
		config.Trainer.Optimizer = "adam"
	}
	if config.Trainer.Scheduler == "" {
		config.Trainer.Scheduler = "step"
	}
	if config.Trainer.SchedulerGamma == 0 {
		config.Trainer.SchedulerGamma = 0.9
	}
	if config.Trainer.Loss == "" {
		config.Trainer.Loss = "log_sigmoid"
	}
	if config.Trainer.HingeMargin == 0 {
		config.Trainer.HingeMargin = 1.0
	}
	if config.Trainer.Strategy == "" {
		config.Trainer.Strategy = "naive"
	}
	if config.Trainer.AccumSteps == 0 {
		config.Trainer.AccumSteps = 1
	}
	if config.Trainer.LogDir == "" {
		config.Trainer.LogDir = "."
	}
	if config.Trainer.EmbeddingDim == 0 {
		config.Trainer.EmbeddingDim = 64
	}

	// Data defaults
	if config.Data.BatchSize == 0 {
		config.Data.BatchSize = 8
	}
	if config.Data.SeqLen == 0 {
		config.Data.SeqLen = 128
	}
	if config.Data.VocabSize == 0 {
		config.Data.VocabSize = 32768
	}
	if config.Data.LoadWorkers == 0 {
		config.Data.LoadWorkers = 4
	}

	// Distributed defaults
	if config.Distributed.WorldSize == 0 {
		config.Distributed.WorldSize = 1
	}
	if config.Distributed.Device == "" {
		config.Distributed.Device = "cpu"
	}

	// Server defaults
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.Environment == "" {
		config.Server.Environment = "development"
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 30 * time.Second
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 30 * time.Second
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 30 * time.Second
	}

	// Database defaults
	if config.Database.Port == 0 {
		config.Database.Port = 5432
	}
	if config.Database.SSLMode == "" {
		config.Database.SSLMode = "disable"
	}
	if config.Database.MaxOpenConns == 0 {
		config.Database.MaxOpenConns = 25
	}
	if config.Database.MaxIdleConns == 0 {
		config.Database.MaxIdleConns = 10
	}
	if config.Database.ConnMaxLifetime == 0 {
		config.Database.ConnMaxLifetime = 5 * time.Minute
	}

	// Redis defaults
	if config.Redis.Port == 0 {
		config.Redis.Port = 6379
	}
	if config.Redis.PoolSize == 0 {
		config.Redis.PoolSize = 10
	}
	if config.Redis.DialTimeout == 0 {
		config.Redis.DialTimeout = 5 * time.Second
	}
	if config.Redis.DefaultTTL == 0 {
		config.Redis.DefaultTTL = 1 * time.Hour
	}

	// Kafka defaults
	if config.Kafka.ClientID == "" {
		config.Kafka.ClientID = "openrmt"
	}
	if config.Kafka.Topic == "" {
		config.Kafka.Topic = "training.events"
	}
	if config.Kafka.RequiredAcks == 0 {
		config.Kafka.RequiredAcks = 1
	}
	if config.Kafka.MaxRetries == 0 {
		config.Kafka.MaxRetries = 3
	}

	// Observability defaults
	if config.Observability.Logging.Level == "" {
		config.Observability.Logging.Level = "info"
	}
	if config.Observability.Logging.Format == "" {
		config.Observability.Logging.Format = "json"
	}
	if config.Observability.Logging.Output == "" {
		config.Observability.Logging.Output = "stdout"
	}
	if config.Observability.Metrics.Namespace == "" {
		config.Observability.Metrics.Namespace = "openrmt"
	}
	if config.Observability.Metrics.Path == "" {
		config.Observability.Metrics.Path = "/metrics"
	}
}

// ============================================================================
// Hot Reload Support
// ============================================================================

// startWatch starts watching the configuration file for changes
func (l *Loader) startWatch() {
	l.viper.WatchConfig()
	l.viper.OnConfigChange(func(e fsnotify.Event) {
		l.logInfo("Configuration file changed, reloading", "file", e.Name)

		if err := l.reload(); err != nil {
			l.logError("Failed to reload configuration", "error", err)
		}
	})
}

// reload reloads the configuration
func (l *Loader) reload() error {
	l.mu.RLock()
	oldConfig := l.config
	l.mu.RUnlock()

	newConfig := &Config{}
	if err := l.viper.Unmarshal(newConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(newConfig)

	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("new configuration validation failed: %w", err)
	}

	for _, callback := range l.reloadCallbacks {
		if err := callback(oldConfig, newConfig); err != nil {
			return fmt.Errorf("reload callback failed: %w", err)
		}
	}

	l.mu.Lock()
	l.config = newConfig
	l.mu.Unlock()

	l.logInfo("Configuration reloaded successfully")

	return nil
}

// OnReload registers a callback to be called when configuration is reloaded
func (l *Loader) OnReload(callback ReloadCallback) {
	l.reloadCallbacks = append(l.reloadCallbacks, callback)
}

// ============================================================================
// Convenience Loading
// ============================================================================

// LoadFile loads configuration from a specific file
func LoadFile(path string) (*Config, error) {
	loader, err := NewLoader(LoaderOptions{ConfigFile: path})
	if err != nil {
		return nil, err
	}
	return loader.Load()
}

// LoadWithDefaults loads configuration from the default search paths
func LoadWithDefaults() (*Config, error) {
	loader, err := NewLoader(LoaderOptions{})
	if err != nil {
		return nil, err
	}
	return loader.Load()
}

// Default returns a configuration populated with defaults only
func Default() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

// ============================================================================
// Logger Methods
// ============================================================================

// SetLogger sets the logger for configuration loader
func (l *Loader) SetLogger(logger Logger) {
	l.logger = logger
}

func (l *Loader) logInfo(msg string, fields ...interface{}) {
	if l.logger != nil {
		l.logger.Info(msg, fields...)
	}
}

func (l *Loader) logWarn(msg string, fields ...interface{}) {
	if l.logger != nil {
		l.logger.Warn(msg, fields...)
	}
}

func (l *Loader) logError(msg string, fields ...interface{}) {
	if l.logger != nil {
		l.logger.Error(msg, fields...)
	}
}
