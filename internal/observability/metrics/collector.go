// Package metrics provides metrics collection and exposition for openrmt.
// It integrates the Prometheus SDK to define and collect core training
// metrics: step throughput, loss, ranking accuracy, reward gap, and
// infrastructure operation counters.
package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector manages Prometheus metrics collection
type Collector struct {
	// Prometheus registry
	registry *prometheus.Registry

	// Namespace for metrics
	namespace string

	// Registered metrics
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec

	mu sync.RWMutex
}

// CollectorConfig defines metrics collector configuration
type CollectorConfig struct {
	// Namespace for all metrics
	Namespace string

	// Enable default Go metrics
	EnableGoMetrics bool

	// Enable process metrics
	EnableProcessMetrics bool

	// Custom registry (optional)
	Registry *prometheus.Registry
}

// NewCollector creates a new metrics collector
func NewCollector(cfg CollectorConfig) *Collector {
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.EnableGoMetrics {
		registry.MustRegister(prometheus.NewGoCollector())
	}

	if cfg.EnableProcessMetrics {
		registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}

	collector := &Collector{
		registry:   registry,
		namespace:  cfg.Namespace,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}

	collector.registerCoreMetrics()

	return collector
}

// registerCoreMetrics registers all core training metrics
func (c *Collector) registerCoreMetrics() {
	// Training loop metrics
	c.RegisterCounter("train_steps_total", "Total number of training steps", []string{"run"})
	c.RegisterCounter("train_epochs_total", "Total number of completed epochs", []string{"run"})
	c.RegisterGauge("train_loss", "Loss of the most recent training batch", []string{"run"})
	c.RegisterGauge("train_learning_rate", "Current learning rate", []string{"run"})

	// Evaluation metrics
	c.RegisterGauge("eval_accuracy", "Fraction of examples where chosen outranks rejected", []string{"run", "split"})
	c.RegisterGauge("eval_reward_gap", "Mean per-batch chosen minus rejected reward gap", []string{"run", "split"})
	c.RegisterCounter("eval_passes_total", "Total evaluation passes", []string{"run", "split"})
	c.RegisterHistogram("eval_duration_seconds", "Evaluation pass duration in seconds", []string{"run", "split"}, prometheus.DefBuckets)

	// Metric log sink
	c.RegisterCounter("metric_log_rows_total", "Total CSV metric rows appended", []string{"run", "file"})
	c.RegisterCounter("metric_log_errors_total", "Total CSV append failures", []string{"run"})

	// Infrastructure metrics
	c.RegisterCounter("checkpoint_uploads_total", "Total checkpoint uploads", []string{"run", "status"})
	c.RegisterHistogram("checkpoint_upload_duration_seconds", "Checkpoint upload duration", []string{"run"}, prometheus.DefBuckets)
	c.RegisterCounter("run_records_written_total", "Total run metadata writes", []string{"run", "status"})
	c.RegisterCounter("events_published_total", "Total training events published", []string{"run", "type"})
	c.RegisterCounter("events_failed_total", "Total failed event publishes", []string{"run"})
	c.RegisterCounter("cache_writes_total", "Total metrics snapshot cache writes", []string{"run", "status"})
}

// ============================================================================
// Metric Registration
// ============================================================================

// RegisterCounter registers a counter metric
func (c *Collector) RegisterCounter(name, help string, labels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.counters[name]; exists {
		return
	}

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.namespace,
		Name:      name,
		Help:      help,
	}, labels)

	c.registry.MustRegister(counter)
	c.counters[name] = counter
}

// RegisterGauge registers a gauge metric
func (c *Collector) RegisterGauge(name, help string, labels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.gauges[name]; exists {
		return
	}

	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Name:      name,
		Help:      help,
	}, labels)

	c.registry.MustRegister(gauge)
	c.gauges[name] = gauge
}

// RegisterHistogram registers a histogram metric
func (c *Collector) RegisterHistogram(name, help string, labels []string, buckets []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.histograms[name]; exists {
		return
	}

	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.namespace,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)

	c.registry.MustRegister(histogram)
	c.histograms[name] = histogram
}

// ============================================================================
// Metric Updates
// ============================================================================

// IncrementCounter increments a counter by 1
func (c *Collector) IncrementCounter(name string, labels map[string]string) {
	c.mu.RLock()
	counter, ok := c.counters[name]
	c.mu.RUnlock()

	if ok {
		counter.With(labels).Inc()
	}
}

// AddCounter adds a value to a counter
func (c *Collector) AddCounter(name string, value float64, labels map[string]string) {
	c.mu.RLock()
	counter, ok := c.counters[name]
	c.mu.RUnlock()

	if ok {
		counter.With(labels).Add(value)
	}
}

// SetGauge sets a gauge value
func (c *Collector) SetGauge(name string, value float64, labels map[string]string) {
	c.mu.RLock()
	gauge, ok := c.gauges[name]
	c.mu.RUnlock()

	if ok {
		gauge.With(labels).Set(value)
	}
}

// ObserveHistogram records a histogram observation
func (c *Collector) ObserveHistogram(name string, value float64, labels map[string]string) {
	c.mu.RLock()
	histogram, ok := c.histograms[name]
	c.mu.RUnlock()

	if ok {
		histogram.With(labels).Observe(value)
	}
}

// ============================================================================
// Exposition
// ============================================================================

// Handler returns the HTTP handler exposing the registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Gather collects all metric families (used by tests)
func (c *Collector) Gather() (string, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d metric families", len(families)), nil
}
