package run

import "context"

// Repository persists training runs and their metric points.
type Repository interface {
	Create(ctx context.Context, r *TrainingRun) error
	Update(ctx context.Context, r *TrainingRun) error
	GetByID(ctx context.Context, id string) (*TrainingRun, error)
	List(ctx context.Context, limit, offset int) ([]*TrainingRun, int64, error)

	AppendMetric(ctx context.Context, p *MetricPoint) error
	ListMetrics(ctx context.Context, runID string, limit int) ([]*MetricPoint, error)
}
