package optim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrmt/openrmt/internal/optim"
)

func TestStepDecay(t *testing.T) {
	opt, err := optim.NewSGD(nil, optim.SGDConfig{LR: 1.0})
	require.NoError(t, err)

	sched := optim.NewStepDecay(opt, 0.9)
	assert.Equal(t, 0, sched.Ticks())

	sched.Step()
	assert.InDelta(t, 0.9, opt.LR(), 1e-12)

	sched.Step()
	assert.InDelta(t, 0.81, opt.LR(), 1e-12)
	assert.Equal(t, 2, sched.Ticks())
}

func TestCosineAnnealing(t *testing.T) {
	t.Run("anneals from base to min", func(t *testing.T) {
		opt, err := optim.NewSGD(nil, optim.SGDConfig{LR: 1.0})
		require.NoError(t, err)

		sched := optim.NewCosineAnnealing(opt, 0.1, 4)
		prev := opt.LR()
		for i := 0; i < 4; i++ {
			sched.Step()
			assert.Less(t, opt.LR(), prev)
			prev = opt.LR()
		}
		assert.InDelta(t, 0.1, opt.LR(), 1e-12)
	})

	t.Run("holds min past the horizon", func(t *testing.T) {
		opt, err := optim.NewSGD(nil, optim.SGDConfig{LR: 1.0})
		require.NoError(t, err)

		sched := optim.NewCosineAnnealing(opt, 0.2, 2)
		for i := 0; i < 5; i++ {
			sched.Step()
		}
		assert.InDelta(t, 0.2, opt.LR(), 1e-12)
	})
}
