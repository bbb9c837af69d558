package optim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrmt/openrmt/internal/model"
	"github.com/openrmt/openrmt/internal/optim"
)

func param(values ...float64) *model.Parameter {
	return &model.Parameter{
		Name: "p",
		Data: append([]float64(nil), values...),
		Grad: make([]float64, len(values)),
	}
}

func TestSGD(t *testing.T) {
	t.Run("plain step", func(t *testing.T) {
		p := param(1.0)
		p.Grad[0] = 0.5

		opt, err := optim.NewSGD([]*model.Parameter{p}, optim.SGDConfig{LR: 0.1})
		require.NoError(t, err)
		require.NoError(t, opt.Step())

		assert.InDelta(t, 0.95, p.Data[0], 1e-12)
	})

	t.Run("momentum accumulates velocity", func(t *testing.T) {
		p := param(0.0)
		opt, err := optim.NewSGD([]*model.Parameter{p}, optim.SGDConfig{LR: 1, Momentum: 0.9})
		require.NoError(t, err)

		p.Grad[0] = 1
		require.NoError(t, opt.Step())
		assert.InDelta(t, -1.0, p.Data[0], 1e-12)

		p.Grad[0] = 1
		require.NoError(t, opt.Step())
		// Velocity is 0.9*1 + 1 = 1.9 on the second step.
		assert.InDelta(t, -2.9, p.Data[0], 1e-12)
	})

	t.Run("weight decay adds to gradient", func(t *testing.T) {
		p := param(2.0)
		opt, err := optim.NewSGD([]*model.Parameter{p}, optim.SGDConfig{LR: 0.1, WeightDecay: 0.5})
		require.NoError(t, err)
		require.NoError(t, opt.Step())

		// Effective gradient is 0 + 0.5*2 = 1.
		assert.InDelta(t, 1.9, p.Data[0], 1e-12)
	})

	t.Run("rejects non-positive learning rate", func(t *testing.T) {
		_, err := optim.NewSGD(nil, optim.SGDConfig{LR: 0})
		assert.Error(t, err)
	})
}

func TestAdam(t *testing.T) {
	t.Run("first step moves by the learning rate", func(t *testing.T) {
		p := param(1.0)
		p.Grad[0] = 0.3

		opt, err := optim.NewAdam([]*model.Parameter{p}, optim.AdamConfig{LR: 0.01})
		require.NoError(t, err)
		require.NoError(t, opt.Step())

		// Bias correction makes the first update lr * g/|g| regardless of
		// gradient magnitude.
		assert.InDelta(t, 0.99, p.Data[0], 1e-6)
	})

	t.Run("descends the gradient direction", func(t *testing.T) {
		p := param(1.0)
		opt, err := optim.NewAdam([]*model.Parameter{p}, optim.AdamConfig{LR: 0.1})
		require.NoError(t, err)

		for i := 0; i < 10; i++ {
			p.Grad[0] = 2 * p.Data[0] // d/dx of x^2
			require.NoError(t, opt.Step())
		}
		assert.Less(t, p.Data[0], 1.0)
	})
}

func TestZeroGrad(t *testing.T) {
	p := param(1.0, 2.0)
	p.Grad[0] = 3
	p.Grad[1] = 4

	opt, err := optim.NewSGD([]*model.Parameter{p}, optim.SGDConfig{LR: 0.1})
	require.NoError(t, err)
	opt.ZeroGrad()

	assert.Equal(t, []float64{0, 0}, p.Grad)
}

func TestSetLR(t *testing.T) {
	opt, err := optim.NewAdam(nil, optim.AdamConfig{LR: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0.5, opt.LR())

	opt.SetLR(0.05)
	assert.Equal(t, 0.05, opt.LR())
}
