// Package types defines shared enumerations and value types used across
// the openrmt training toolkit.
package types

// ============================================================================
// Run Status
// ============================================================================

// RunStatus represents the lifecycle state of a training run
type RunStatus string

const (
	// RunStatusPending indicates the run is created but not started
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the run is actively training
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted indicates the run finished all epochs
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed indicates the run aborted with an error
	RunStatusFailed RunStatus = "failed"
)

// IsTerminal reports whether the status is a final state
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Valid reports whether the status is a known value
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// ============================================================================
// Strategy Type
// ============================================================================

// StrategyType identifies a gradient execution strategy
type StrategyType string

const (
	// StrategyNaive applies gradients directly after every batch
	StrategyNaive StrategyType = "naive"

	// StrategyGradAccum accumulates gradients over several micro-batches
	// before applying a single optimizer step
	StrategyGradAccum StrategyType = "grad_accum"
)

// ============================================================================
// Optimizer / Scheduler / Loss Type
// ============================================================================

// OptimizerType identifies an optimizer implementation
type OptimizerType string

const (
	OptimizerSGD  OptimizerType = "sgd"
	OptimizerAdam OptimizerType = "adam"
)

// SchedulerType identifies a learning-rate schedule
type SchedulerType string

const (
	SchedulerStep   SchedulerType = "step"
	SchedulerCosine SchedulerType = "cosine"
)

// LossType identifies a pairwise ranking loss
type LossType string

const (
	// LossLogSigmoid is -mean(log sigmoid(chosen - rejected))
	LossLogSigmoid LossType = "log_sigmoid"

	// LossLogExp is mean(log(1 + exp(rejected - chosen)))
	LossLogExp LossType = "log_exp"

	// LossHinge is mean(max(0, margin - (chosen - rejected)))
	LossHinge LossType = "hinge"
)

// ============================================================================
// Training Events
// ============================================================================

// EventType identifies a training lifecycle event published to the bus
type EventType string

const (
	EventFitStart   EventType = "fit.start"
	EventFitEnd     EventType = "fit.end"
	EventEpochStart EventType = "epoch.start"
	EventEpochEnd   EventType = "epoch.end"
	EventEvalReport EventType = "eval.report"
)
