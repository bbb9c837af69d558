// Package model defines the reward-model contract used by the training
// loop, and a concrete pure-Go scorer so the toolkit trains end to end.
// Heavier backbones satisfy the same interface behind an RPC or FFI shim.
package model

import (
	"github.com/openrmt/openrmt/internal/tensor"
)

// Parameter is one named, flat parameter block with its gradient
// accumulator. Forward never touches Grad, so evaluation is gradient-free
// by construction; only Backward accumulates into it.
type Parameter struct {
	Name string
	Data []float64
	Grad []float64
}

// ZeroGrad clears the gradient accumulator.
func (p *Parameter) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// RewardModel scores token sequences with a single scalar reward.
type RewardModel interface {
	// Forward computes a [batch] reward tensor from [batch, seq] ids and
	// attention mask tensors.
	Forward(ids, mask *tensor.Dense) (*tensor.Dense, error)

	// Backward accumulates parameter gradients for the same inputs, given
	// the upstream gradient of the loss with respect to each example's
	// reward. Gradients add across calls until the optimizer clears them.
	Backward(ids, mask *tensor.Dense, upstream []float64) error

	// Parameters returns the trainable parameter blocks.
	Parameters() []*Parameter

	// Train switches the model into training mode.
	Train()

	// Eval switches the model into evaluation mode.
	Eval()

	// Training reports whether the model is in training mode.
	Training() bool

	// State exports the parameter blocks for checkpointing.
	State() map[string][]float64

	// LoadState restores exported parameter blocks.
	LoadState(state map[string][]float64) error
}
