package trainer_test

import (
	"context"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrmt/openrmt/internal/data"
	"github.com/openrmt/openrmt/internal/distributed"
	"github.com/openrmt/openrmt/internal/loss"
	"github.com/openrmt/openrmt/internal/model"
	"github.com/openrmt/openrmt/internal/optim"
	"github.com/openrmt/openrmt/internal/strategy"
	"github.com/openrmt/openrmt/internal/tensor"
	"github.com/openrmt/openrmt/internal/trainer"
)

// scoreModel returns each example's first token id as its reward, so tests
// control rewards through the batch data.
type scoreModel struct {
	training  bool
	evalSeen  bool
	backwards int
}

func newScoreModel() *scoreModel { return &scoreModel{training: true} }

func (m *scoreModel) Forward(ids, mask *tensor.Dense) (*tensor.Dense, error) {
	out := make([]float64, ids.Dim(0))
	for i := range out {
		row, err := ids.Row(i)
		if err != nil {
			return nil, err
		}
		out[i] = row[0]
	}
	return tensor.FromSlice(out, ids.Dim(0))
}

func (m *scoreModel) Backward(ids, mask *tensor.Dense, upstream []float64) error {
	m.backwards++
	return nil
}

func (m *scoreModel) Parameters() []*model.Parameter       { return nil }
func (m *scoreModel) Train()                               { m.training = true }
func (m *scoreModel) Eval()                                { m.training = false; m.evalSeen = true }
func (m *scoreModel) Training() bool                       { return m.training }
func (m *scoreModel) State() map[string][]float64          { return nil }
func (m *scoreModel) LoadState(map[string][]float64) error { return nil }

var _ model.RewardModel = (*scoreModel)(nil)

// rewardBatch builds a [n, 1, 1] batch whose rewards under scoreModel are
// exactly the given chosen and rejected values.
func rewardBatch(t *testing.T, chosen, rejected []float64) *data.Batch {
	t.Helper()
	require.Equal(t, len(chosen), len(rejected))
	n := len(chosen)

	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	return &data.Batch{
		ChosenIDs:  tensor.MustFromSlice(append([]float64(nil), chosen...), n, 1, 1),
		ChosenMask: tensor.MustFromSlice(append([]float64(nil), ones...), n, 1, 1),
		RejectIDs:  tensor.MustFromSlice(append([]float64(nil), rejected...), n, 1, 1),
		RejectMask: tensor.MustFromSlice(ones, n, 1, 1),
	}
}

type trainerOpts struct {
	train        data.Loader
	valid        data.Loader
	eval         data.Loader
	maxEpochs    int
	evalInterval int
	group        distributed.ProcessGroup
	logDir       string
	callbacks    []trainer.Callback
	scheduler    optim.Scheduler
}

func newTestTrainer(t *testing.T, m model.RewardModel, opts trainerOpts) (*trainer.RewardModelTrainer, optim.Scheduler) {
	t.Helper()

	opt, err := optim.NewSGD(m.Parameters(), optim.SGDConfig{LR: 0.1})
	require.NoError(t, err)

	sched := opts.scheduler
	if sched == nil {
		sched = optim.NewStepDecay(opt, 0.9)
	}

	logDir := opts.logDir
	if logDir == "" {
		logDir = t.TempDir()
	}
	if opts.train == nil {
		opts.train = data.NewSliceLoader(nil)
	}

	tr, err := trainer.NewRewardModelTrainer(trainer.Config{
		Model:        m,
		Strategy:     &strategy.Naive{},
		Optimizer:    opt,
		Scheduler:    sched,
		Loss:         &loss.LogSigmoid{},
		TrainLoader:  opts.train,
		ValidLoader:  opts.valid,
		EvalLoader:   opts.eval,
		Group:        opts.group,
		MaxEpochs:    opts.maxEpochs,
		EvalInterval: opts.evalInterval,
		Callbacks:    opts.callbacks,
		MetricLog:    trainer.NewMetricLog(logDir, time.Now()),
	})
	require.NoError(t, err)
	return tr, sched
}

func TestEvalAcc(t *testing.T) {
	ctx := context.Background()

	t.Run("all chosen above rejected gives acc 1", func(t *testing.T) {
		m := newScoreModel()
		tr, _ := newTestTrainer(t, m, trainerOpts{})

		loader := data.NewSliceLoader([]*data.Batch{
			rewardBatch(t, []float64{5, 4}, []float64{1, 2}),
		})
		_, acc, err := tr.EvalAcc(ctx, loader)
		require.NoError(t, err)
		assert.Equal(t, 1.0, acc)
	})

	t.Run("all chosen below rejected gives acc 0", func(t *testing.T) {
		m := newScoreModel()
		tr, _ := newTestTrainer(t, m, trainerOpts{})

		loader := data.NewSliceLoader([]*data.Batch{
			rewardBatch(t, []float64{1, 2}, []float64{5, 4}),
		})
		_, acc, err := tr.EvalAcc(ctx, loader)
		require.NoError(t, err)
		assert.Equal(t, 0.0, acc)
	})

	t.Run("ties do not count as wins", func(t *testing.T) {
		m := newScoreModel()
		tr, _ := newTestTrainer(t, m, trainerOpts{})

		loader := data.NewSliceLoader([]*data.Batch{
			rewardBatch(t, []float64{3, 3}, []float64{3, 3}),
		})
		_, acc, err := tr.EvalAcc(ctx, loader)
		require.NoError(t, err)
		assert.Equal(t, 0.0, acc)
	})

	t.Run("gap is averaged over batches not examples", func(t *testing.T) {
		m := newScoreModel()
		tr, _ := newTestTrainer(t, m, trainerOpts{})

		// Batch gaps: mean(3,1)=2 and mean(6)=6; batch-weighted mean is 4
		// even though the example-weighted mean would be 10/3.
		loader := data.NewSliceLoader([]*data.Batch{
			rewardBatch(t, []float64{4, 2}, []float64{1, 1}),
			rewardBatch(t, []float64{7}, []float64{1}),
		})
		distMean, _, err := tr.EvalAcc(ctx, loader)
		require.NoError(t, err)
		assert.InDelta(t, 4.0, distMean, 1e-12)
	})

	t.Run("known scenario", func(t *testing.T) {
		m := newScoreModel()
		tr, _ := newTestTrainer(t, m, trainerOpts{})

		loader := data.NewSliceLoader([]*data.Batch{
			rewardBatch(t, []float64{2, 2}, []float64{1, 1}),
			rewardBatch(t, []float64{3, 1}, []float64{1, 1}),
		})
		distMean, acc, err := tr.EvalAcc(ctx, loader)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, distMean, 1e-12)
		assert.Equal(t, 1.0, acc)
	})

	t.Run("restores training mode unconditionally", func(t *testing.T) {
		m := newScoreModel()
		tr, _ := newTestTrainer(t, m, trainerOpts{})
		loader := data.NewSliceLoader([]*data.Batch{
			rewardBatch(t, []float64{2}, []float64{1}),
		})

		m.Train()
		_, _, err := tr.EvalAcc(ctx, loader)
		require.NoError(t, err)
		assert.True(t, m.Training())
		assert.True(t, m.evalSeen)

		// Even from eval mode the postcondition is training mode.
		m.Eval()
		loader.Reset()
		_, _, err = tr.EvalAcc(ctx, loader)
		require.NoError(t, err)
		assert.True(t, m.Training())
	})

	t.Run("empty loader yields NaN", func(t *testing.T) {
		m := newScoreModel()
		tr, _ := newTestTrainer(t, m, trainerOpts{})

		distMean, acc, err := tr.EvalAcc(ctx, data.NewSliceLoader(nil))
		require.NoError(t, err)
		assert.True(t, math.IsNaN(distMean))
		assert.True(t, math.IsNaN(acc))
	})
}

// countingCallback tallies lifecycle hook invocations.
type countingCallback struct {
	trainer.BaseCallback

	fitStarts, fitEnds     int
	epochStarts, epochEnds int
	batchEnds, evalReports int
}

func (c *countingCallback) OnFitStart(ctx context.Context) error { c.fitStarts++; return nil }
func (c *countingCallback) OnFitEnd(ctx context.Context) error   { c.fitEnds++; return nil }
func (c *countingCallback) OnEpochStart(ctx context.Context, epoch int) error {
	c.epochStarts++
	return nil
}
func (c *countingCallback) OnEpochEnd(ctx context.Context, epoch int, report trainer.EvalReport) error {
	c.epochEnds++
	return nil
}
func (c *countingCallback) OnBatchEnd(ctx context.Context, epoch, step int, loss float64) error {
	c.batchEnds++
	return nil
}
func (c *countingCallback) OnEvalReport(ctx context.Context, report trainer.EvalReport) error {
	c.evalReports++
	return nil
}

func trainBatches(t *testing.T, n int) []*data.Batch {
	t.Helper()
	batches := make([]*data.Batch, n)
	for i := range batches {
		batches[i] = rewardBatch(t, []float64{2}, []float64{1})
	}
	return batches
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(content), "\n"), "\n")
}

func TestFit(t *testing.T) {
	ctx := context.Background()

	t.Run("hundred batches trigger one scheduler step and one periodic row", func(t *testing.T) {
		m := newScoreModel()
		logDir := t.TempDir()
		cb := &countingCallback{}

		validLoader := data.NewSliceLoader([]*data.Batch{
			rewardBatch(t, []float64{2}, []float64{1}),
		})
		evalLoader := data.NewSliceLoader([]*data.Batch{
			rewardBatch(t, []float64{3}, []float64{1}),
		})

		tr, sched := newTestTrainer(t, m, trainerOpts{
			train:     data.NewSliceLoader(trainBatches(t, 100)),
			valid:     validLoader,
			eval:      evalLoader,
			maxEpochs: 1,
			logDir:    logDir,
			callbacks: []trainer.Callback{cb},
		})
		require.NoError(t, tr.Fit(ctx))

		assert.Equal(t, 1, sched.Ticks())

		entries, err := os.ReadDir(logDir)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		var periodic, summary string
		for _, e := range entries {
			if e.Name() == "log.csv" {
				summary = logDir + "/" + e.Name()
			} else {
				periodic = logDir + "/" + e.Name()
			}
		}

		periodicLines := readLines(t, periodic)
		require.Len(t, periodicLines, 1)
		// Step column is the batch index at the checkpoint.
		assert.True(t, strings.HasPrefix(periodicLines[0], "99,"))

		summaryLines := readLines(t, summary)
		require.Len(t, summaryLines, 1)
		// The summary step column counts the epoch's training steps.
		assert.True(t, strings.HasPrefix(summaryLines[0], "100,"))

		assert.Equal(t, 1, cb.fitStarts)
		assert.Equal(t, 1, cb.fitEnds)
		assert.Equal(t, 1, cb.epochStarts)
		assert.Equal(t, 1, cb.epochEnds)
		assert.Equal(t, 100, cb.batchEnds)
		assert.Equal(t, 1, cb.evalReports)
	})

	t.Run("summary step column counts completed steps", func(t *testing.T) {
		m := newScoreModel()
		logDir := t.TempDir()

		tr, _ := newTestTrainer(t, m, trainerOpts{
			train:     data.NewSliceLoader(trainBatches(t, 3)),
			eval:      data.NewSliceLoader([]*data.Batch{rewardBatch(t, []float64{2}, []float64{1})}),
			maxEpochs: 1,
			logDir:    logDir,
		})
		require.NoError(t, tr.Fit(ctx))

		// Three training steps, gap 1: loss is softplus(-1), dist 1, acc 1.
		lines := readLines(t, logDir+"/log.csv")
		require.Len(t, lines, 1)
		assert.Equal(t, "3,0.31326168751822286,1,1", lines[0])
	})

	t.Run("metric accumulators reset each epoch", func(t *testing.T) {
		m := newScoreModel()
		logDir := t.TempDir()

		// No validation loader: every mid-epoch row must report zero
		// dist and acc, including in the second epoch after the
		// held-out eval produced non-zero values.
		tr, _ := newTestTrainer(t, m, trainerOpts{
			train:        data.NewSliceLoader(trainBatches(t, 2)),
			eval:         data.NewSliceLoader([]*data.Batch{rewardBatch(t, []float64{2}, []float64{1})}),
			maxEpochs:    2,
			evalInterval: 2,
			logDir:       logDir,
		})
		require.NoError(t, tr.Fit(ctx))

		entries, err := os.ReadDir(logDir)
		require.NoError(t, err)

		var periodic string
		for _, e := range entries {
			if e.Name() != "log.csv" {
				periodic = logDir + "/" + e.Name()
			}
		}
		require.NotEmpty(t, periodic)

		lines := readLines(t, periodic)
		require.Len(t, lines, 2)
		for _, line := range lines {
			assert.True(t, strings.HasSuffix(line, ",0,0"), "line %q", line)
		}
	})

	t.Run("fewer batches than the interval log nothing mid-epoch", func(t *testing.T) {
		m := newScoreModel()
		logDir := t.TempDir()

		tr, sched := newTestTrainer(t, m, trainerOpts{
			train:     data.NewSliceLoader(trainBatches(t, 99)),
			eval:      data.NewSliceLoader([]*data.Batch{rewardBatch(t, []float64{2}, []float64{1})}),
			maxEpochs: 1,
			logDir:    logDir,
		})
		require.NoError(t, tr.Fit(ctx))

		assert.Equal(t, 0, sched.Ticks())

		entries, err := os.ReadDir(logDir)
		require.NoError(t, err)
		// Only the epoch summary file.
		require.Len(t, entries, 1)
		assert.Equal(t, "log.csv", entries[0].Name())
	})

	t.Run("interval counter is epoch local", func(t *testing.T) {
		m := newScoreModel()
		logDir := t.TempDir()

		tr, sched := newTestTrainer(t, m, trainerOpts{
			train:        data.NewSliceLoader(trainBatches(t, 3)),
			valid:        data.NewSliceLoader([]*data.Batch{rewardBatch(t, []float64{2}, []float64{1})}),
			eval:         data.NewSliceLoader([]*data.Batch{rewardBatch(t, []float64{2}, []float64{1})}),
			maxEpochs:    2,
			evalInterval: 2,
			logDir:       logDir,
		})
		require.NoError(t, tr.Fit(ctx))

		// Each epoch sees 3 batches: one full interval of 2, then a
		// leftover batch that must not carry into the next epoch.
		assert.Equal(t, 2, sched.Ticks())
	})

	t.Run("non-zero ranks write no metric files", func(t *testing.T) {
		m := newScoreModel()
		logDir := t.TempDir()
		group, err := distributed.NewProcessGroup(1, 2)
		require.NoError(t, err)

		tr, _ := newTestTrainer(t, m, trainerOpts{
			train:        data.NewSliceLoader(trainBatches(t, 4)),
			valid:        data.NewSliceLoader([]*data.Batch{rewardBatch(t, []float64{2}, []float64{1})}),
			eval:         data.NewSliceLoader([]*data.Batch{rewardBatch(t, []float64{2}, []float64{1})}),
			maxEpochs:    1,
			evalInterval: 2,
			group:        group,
			logDir:       logDir,
		})
		require.NoError(t, tr.Fit(ctx))

		entries, err := os.ReadDir(logDir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("backward runs once per side per batch", func(t *testing.T) {
		m := newScoreModel()
		tr, _ := newTestTrainer(t, m, trainerOpts{
			train:     data.NewSliceLoader(trainBatches(t, 5)),
			maxEpochs: 1,
		})
		require.NoError(t, tr.Fit(ctx))
		assert.Equal(t, 10, m.backwards)
	})

	t.Run("cancelled context aborts the loop", func(t *testing.T) {
		m := newScoreModel()
		tr, _ := newTestTrainer(t, m, trainerOpts{
			train:     data.NewSliceLoader(trainBatches(t, 5)),
			maxEpochs: 1,
		})

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := tr.Fit(cancelled)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewRewardModelTrainerValidation(t *testing.T) {
	m := newScoreModel()
	opt, err := optim.NewSGD(nil, optim.SGDConfig{LR: 0.1})
	require.NoError(t, err)

	_, err = trainer.NewRewardModelTrainer(trainer.Config{
		Strategy:    &strategy.Naive{},
		Optimizer:   opt,
		Scheduler:   optim.NewStepDecay(opt, 0.9),
		Loss:        &loss.LogSigmoid{},
		TrainLoader: data.NewSliceLoader(nil),
	})
	assert.Error(t, err, "missing model")

	_, err = trainer.NewRewardModelTrainer(trainer.Config{
		Model:        m,
		Strategy:     &strategy.Naive{},
		Optimizer:    opt,
		Scheduler:    optim.NewStepDecay(opt, 0.9),
		Loss:         &loss.LogSigmoid{},
		TrainLoader:  data.NewSliceLoader(nil),
		EvalInterval: -1,
	})
	assert.Error(t, err, "negative eval interval")
}
