package trainer

import "context"

// EvalReport carries one evaluation's results to callbacks and sinks.
type EvalReport struct {
	Epoch    int
	Step     int
	Loss     float64
	DistMean float64
	Acc      float64
}

// Callback observes training lifecycle events. Callbacks run synchronously
// on the training goroutine; a slow callback slows the run.
type Callback interface {
	OnFitStart(ctx context.Context) error
	OnFitEnd(ctx context.Context) error
	OnEpochStart(ctx context.Context, epoch int) error
	OnEpochEnd(ctx context.Context, epoch int, report EvalReport) error
	OnBatchEnd(ctx context.Context, epoch, step int, loss float64) error
	OnEvalReport(ctx context.Context, report EvalReport) error
}

// BaseCallback is a no-op Callback for embedding, so implementations only
// override the hooks they care about.
type BaseCallback struct{}

func (BaseCallback) OnFitStart(ctx context.Context) error   { return nil }
func (BaseCallback) OnFitEnd(ctx context.Context) error     { return nil }
func (BaseCallback) OnEpochStart(ctx context.Context, epoch int) error { return nil }
func (BaseCallback) OnEpochEnd(ctx context.Context, epoch int, report EvalReport) error {
	return nil
}
func (BaseCallback) OnBatchEnd(ctx context.Context, epoch, step int, loss float64) error {
	return nil
}
func (BaseCallback) OnEvalReport(ctx context.Context, report EvalReport) error { return nil }
