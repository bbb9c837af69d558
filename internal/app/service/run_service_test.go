package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrmt/openrmt/internal/app/service"
	"github.com/openrmt/openrmt/internal/domain/run"
	"github.com/openrmt/openrmt/internal/infrastructure/message"
	"github.com/openrmt/openrmt/internal/infrastructure/storage"
	"github.com/openrmt/openrmt/internal/model"
	"github.com/openrmt/openrmt/internal/trainer"
	"github.com/openrmt/openrmt/pkg/types"
)

// memoryRepo is an in-memory run.Repository.
type memoryRepo struct {
	runs    map[string]*run.TrainingRun
	metrics []*run.MetricPoint
	updates int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{runs: map[string]*run.TrainingRun{}}
}

func (r *memoryRepo) Create(ctx context.Context, tr *run.TrainingRun) error {
	r.runs[tr.ID] = tr
	return nil
}

func (r *memoryRepo) Update(ctx context.Context, tr *run.TrainingRun) error {
	if _, ok := r.runs[tr.ID]; !ok {
		return fmt.Errorf("run %s not found", tr.ID)
	}
	r.runs[tr.ID] = tr
	r.updates++
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id string) (*run.TrainingRun, error) {
	tr, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return tr, nil
}

func (r *memoryRepo) List(ctx context.Context, limit, offset int) ([]*run.TrainingRun, int64, error) {
	out := make([]*run.TrainingRun, 0, len(r.runs))
	for _, tr := range r.runs {
		out = append(out, tr)
	}
	return out, int64(len(out)), nil
}

func (r *memoryRepo) AppendMetric(ctx context.Context, p *run.MetricPoint) error {
	r.metrics = append(r.metrics, p)
	return nil
}

func (r *memoryRepo) ListMetrics(ctx context.Context, runID string, limit int) ([]*run.MetricPoint, error) {
	var out []*run.MetricPoint
	for _, p := range r.metrics {
		if p.RunID == runID {
			out = append(out, p)
		}
	}
	return out, nil
}

var _ run.Repository = (*memoryRepo)(nil)

// memoryPublisher records published events, optionally failing every call.
type memoryPublisher struct {
	events []*message.Event
	fail   bool
}

func (p *memoryPublisher) Publish(ctx context.Context, e *message.Event) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, e)
	return nil
}

func (p *memoryPublisher) Close() error { return nil }

var _ message.Publisher = (*memoryPublisher)(nil)

// memoryCheckpoints stores checkpoints in a map.
type memoryCheckpoints struct {
	saved map[string]map[string][]float64
}

func newMemoryCheckpoints() *memoryCheckpoints {
	return &memoryCheckpoints{saved: map[string]map[string][]float64{}}
}

func (s *memoryCheckpoints) Save(ctx context.Context, runID string, epoch int, state map[string][]float64) (string, error) {
	key := fmt.Sprintf("checkpoints/%s/epoch-%d.ckpt", runID, epoch)
	s.saved[key] = state
	return key, nil
}

func (s *memoryCheckpoints) Load(ctx context.Context, key string) (map[string][]float64, error) {
	state, ok := s.saved[key]
	if !ok {
		return nil, fmt.Errorf("checkpoint %s not found", key)
	}
	return state, nil
}

func (s *memoryCheckpoints) List(ctx context.Context, runID string) ([]string, error) {
	var keys []string
	for k := range s.saved {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *memoryCheckpoints) Close() error { return nil }

var _ storage.CheckpointStore = (*memoryCheckpoints)(nil)

func newService(t *testing.T, repo run.Repository, pub message.Publisher, ckpt storage.CheckpointStore) *service.RunService {
	t.Helper()
	svc, err := service.NewRunService(repo, nil, pub, ckpt, nil, nil)
	require.NoError(t, err)
	return svc
}

func createRun(t *testing.T, svc *service.RunService) *run.TrainingRun {
	t.Helper()
	tr, err := svc.CreateRun(context.Background(), "nightly-rm",
		types.StrategyNaive, types.OptimizerSGD, types.LossLogSigmoid, 2, 0, 1)
	require.NoError(t, err)
	return tr
}

func TestNewRunServiceRequiresRepository(t *testing.T) {
	_, err := service.NewRunService(nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestCreateRun(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(t, repo, nil, nil)

	tr := createRun(t, svc)
	assert.Equal(t, types.RunStatusPending, tr.Status)

	got, err := svc.GetRun(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.ID, got.ID)
}

func TestCallbackLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	pub := &memoryPublisher{}
	ckpt := newMemoryCheckpoints()
	svc := newService(t, repo, pub, ckpt)

	tr := createRun(t, svc)
	m := model.NewLinearReward(8, 3, 1)
	cbs := svc.Callbacks(tr, m)
	require.Len(t, cbs, 1)
	cb := cbs[0]

	t.Run("fit start transitions to running", func(t *testing.T) {
		require.NoError(t, cb.OnFitStart(ctx))
		assert.Equal(t, types.RunStatusRunning, tr.Status)
		require.NotNil(t, tr.StartedAt)
	})

	t.Run("eval report appends a valid-split metric", func(t *testing.T) {
		report := trainer.EvalReport{Epoch: 0, Step: 99, Loss: 0.6, DistMean: 1.2, Acc: 0.8}
		require.NoError(t, cb.OnEvalReport(ctx, report))

		require.Len(t, repo.metrics, 1)
		p := repo.metrics[0]
		assert.Equal(t, "valid", p.Split)
		assert.Equal(t, 99, p.Step)
		assert.Equal(t, 0.8, tr.Acc)
	})

	t.Run("epoch end appends an eval-split metric and a checkpoint", func(t *testing.T) {
		report := trainer.EvalReport{Epoch: 0, Step: 100, Loss: 0.5, DistMean: 1.5, Acc: 0.9}
		require.NoError(t, cb.OnEpochEnd(ctx, 0, report))

		require.Len(t, repo.metrics, 2)
		assert.Equal(t, "eval", repo.metrics[1].Split)
		assert.Len(t, ckpt.saved, 1)
	})

	t.Run("fit end completes the run", func(t *testing.T) {
		require.NoError(t, cb.OnFitEnd(ctx))
		assert.Equal(t, types.RunStatusCompleted, tr.Status)
		require.NotNil(t, tr.FinishedAt)
	})

	t.Run("events were published in order", func(t *testing.T) {
		var kinds []types.EventType
		for _, e := range pub.events {
			kinds = append(kinds, e.Type)
		}
		assert.Equal(t, []types.EventType{
			types.EventFitStart,
			types.EventEvalReport,
			types.EventEpochEnd,
			types.EventFitEnd,
		}, kinds)
	})
}

func TestCallbackDoubleStartFails(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newService(t, repo, nil, nil)

	tr := createRun(t, svc)
	cb := svc.Callbacks(tr, nil)[0]

	require.NoError(t, cb.OnFitStart(ctx))
	assert.Error(t, cb.OnFitStart(ctx))
}

func TestPublishIsBestEffort(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	pub := &memoryPublisher{fail: true}
	svc := newService(t, repo, pub, nil)

	tr := createRun(t, svc)
	cb := svc.Callbacks(tr, nil)[0]

	// Broker failures must not surface as training errors.
	require.NoError(t, cb.OnFitStart(ctx))
	assert.Equal(t, types.RunStatusRunning, tr.Status)
}

func TestFailRun(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	pub := &memoryPublisher{}
	svc := newService(t, repo, pub, nil)

	tr := createRun(t, svc)
	require.NoError(t, tr.Start())

	svc.FailRun(ctx, tr, errors.New("forward over chosen sequences failed"))
	assert.Equal(t, types.RunStatusFailed, tr.Status)
	assert.Equal(t, "forward over chosen sequences failed", tr.FailReason)

	require.Len(t, pub.events, 1)
	assert.Equal(t, types.EventFitEnd, pub.events[0].Type)
}

func TestListLimitsAreClamped(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newService(t, repo, nil, nil)
	createRun(t, svc)

	runs, total, err := svc.ListRuns(ctx, -5, -1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Equal(t, int64(1), total)
}

func TestSnapshotWithoutCache(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(t, repo, nil, nil)

	snap, err := svc.Snapshot(context.Background(), "some-run")
	require.NoError(t, err)
	assert.Nil(t, snap)
}
