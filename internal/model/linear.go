package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/openrmt/openrmt/internal/tensor"
	"github.com/openrmt/openrmt/pkg/errors"
)

// LinearReward scores a sequence by mean-pooling token embeddings under the
// attention mask and projecting the pooled vector to a scalar:
//
//	reward = w · (Σ_t mask_t · E[id_t] / Σ_t mask_t) + b
//
// Gradients are hand-derived, the way pairwise rankers like BPR compute
// them, so no autodiff engine is required.
type LinearReward struct {
	vocabSize int
	dim       int

	embedding *Parameter // [vocabSize * dim], row-major
	weight    *Parameter // [dim]
	bias      *Parameter // [1]

	training bool
}

// NewLinearReward creates a model with small random init. The seed is
// explicit so distributed replicas can start from identical weights.
func NewLinearReward(vocabSize, dim int, seed int64) *LinearReward {
	rng := rand.New(rand.NewSource(seed))
	scale := 1.0 / math.Sqrt(float64(dim))

	emb := make([]float64, vocabSize*dim)
	for i := range emb {
		emb[i] = rng.NormFloat64() * scale
	}
	w := make([]float64, dim)
	for i := range w {
		w[i] = rng.NormFloat64() * scale
	}

	return &LinearReward{
		vocabSize: vocabSize,
		dim:       dim,
		embedding: &Parameter{Name: "embedding", Data: emb, Grad: make([]float64, len(emb))},
		weight:    &Parameter{Name: "weight", Data: w, Grad: make([]float64, dim)},
		bias:      &Parameter{Name: "bias", Data: make([]float64, 1), Grad: make([]float64, 1)},
		training:  true,
	}
}

// Forward computes [batch] rewards from [batch, seq] ids and mask.
func (m *LinearReward) Forward(ids, mask *tensor.Dense) (*tensor.Dense, error) {
	batch, err := m.checkShapes(ids, mask)
	if err != nil {
		return nil, err
	}

	out := make([]float64, batch)
	for i := 0; i < batch; i++ {
		pooled, ok := m.pool(ids, mask, i)
		if !ok {
			// Fully-masked row pools to zero; reward is the bias.
			out[i] = m.bias.Data[0]
			continue
		}
		r := m.bias.Data[0]
		for d := 0; d < m.dim; d++ {
			r += m.weight.Data[d] * pooled[d]
		}
		out[i] = r
	}

	return tensor.FromSlice(out, batch)
}

// Backward accumulates gradients given dLoss/dReward per example.
func (m *LinearReward) Backward(ids, mask *tensor.Dense, upstream []float64) error {
	batch, err := m.checkShapes(ids, mask)
	if err != nil {
		return err
	}
	if len(upstream) != batch {
		return errors.TrainingError(errors.CodeBackwardFailed,
			fmt.Sprintf("upstream gradient has %d entries, batch is %d", len(upstream), batch))
	}

	seq := ids.Dim(1)
	for i := 0; i < batch; i++ {
		g := upstream[i]
		m.bias.Grad[0] += g

		pooled, ok := m.pool(ids, mask, i)
		if !ok {
			continue
		}
		for d := 0; d < m.dim; d++ {
			m.weight.Grad[d] += g * pooled[d]
		}

		idRow, _ := ids.Row(i)
		maskRow, _ := mask.Row(i)
		var maskSum float64
		for _, v := range maskRow {
			maskSum += v
		}
		for t := 0; t < seq; t++ {
			if maskRow[t] == 0 {
				continue
			}
			tok := int(idRow[t])
			base := tok * m.dim
			coeff := g * maskRow[t] / maskSum
			for d := 0; d < m.dim; d++ {
				m.embedding.Grad[base+d] += coeff * m.weight.Data[d]
			}
		}
	}

	return nil
}

// pool mean-pools the masked token embeddings of example i. ok is false
// when every position is masked out.
func (m *LinearReward) pool(ids, mask *tensor.Dense, i int) (pooled []float64, ok bool) {
	idRow, _ := ids.Row(i)
	maskRow, _ := mask.Row(i)

	var maskSum float64
	for _, v := range maskRow {
		maskSum += v
	}
	if maskSum == 0 {
		return nil, false
	}

	pooled = make([]float64, m.dim)
	for t, v := range maskRow {
		if v == 0 {
			continue
		}
		base := int(idRow[t]) * m.dim
		for d := 0; d < m.dim; d++ {
			pooled[d] += v * m.embedding.Data[base+d]
		}
	}
	for d := range pooled {
		pooled[d] /= maskSum
	}
	return pooled, true
}

func (m *LinearReward) checkShapes(ids, mask *tensor.Dense) (batch int, err error) {
	if ids.Rank() != 2 || mask.Rank() != 2 {
		return 0, errors.DataError(errors.CodeBadBatchShape,
			fmt.Sprintf("model inputs must be rank 2, got %v and %v", ids.Shape(), mask.Shape()))
	}
	if ids.Dim(0) != mask.Dim(0) || ids.Dim(1) != mask.Dim(1) {
		return 0, errors.DataError(errors.CodeBadBatchShape,
			fmt.Sprintf("ids shape %v does not match mask shape %v", ids.Shape(), mask.Shape()))
	}
	return ids.Dim(0), nil
}

// Parameters returns the trainable blocks.
func (m *LinearReward) Parameters() []*Parameter {
	return []*Parameter{m.embedding, m.weight, m.bias}
}

// Train switches to training mode.
func (m *LinearReward) Train() {
	m.training = true
}

// Eval switches to evaluation mode.
func (m *LinearReward) Eval() {
	m.training = false
}

// Training reports the current mode.
func (m *LinearReward) Training() bool {
	return m.training
}

// State exports parameters for checkpointing.
func (m *LinearReward) State() map[string][]float64 {
	state := make(map[string][]float64, 3)
	for _, p := range m.Parameters() {
		buf := make([]float64, len(p.Data))
		copy(buf, p.Data)
		state[p.Name] = buf
	}
	return state
}

// LoadState restores exported parameters.
func (m *LinearReward) LoadState(state map[string][]float64) error {
	for _, p := range m.Parameters() {
		src, ok := state[p.Name]
		if !ok {
			return errors.NotFoundError("checkpoint parameter " + p.Name)
		}
		if len(src) != len(p.Data) {
			return errors.ValidationErrorf("checkpoint parameter %s has %d values, want %d",
				p.Name, len(src), len(p.Data))
		}
		copy(p.Data, src)
	}
	return nil
}
