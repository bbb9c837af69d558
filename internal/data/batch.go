// Package data implements the preference-pair dataset pipeline: JSONL
// ingestion, tokenization, and the batch loaders consumed by the trainer.
package data

import (
	"fmt"

	"github.com/openrmt/openrmt/internal/tensor"
	"github.com/openrmt/openrmt/pkg/errors"
)

// Batch carries one training step worth of preference pairs. The four
// tensors are rank-3 [batch, 1, seq]; the singleton dimension mirrors the
// collator wire format and is squeezed by the trainer before use.
type Batch struct {
	ChosenIDs  *tensor.Dense
	ChosenMask *tensor.Dense
	RejectIDs  *tensor.Dense
	RejectMask *tensor.Dense
}

// Size returns the number of examples in the batch.
func (b *Batch) Size() int {
	return b.ChosenIDs.Dim(0)
}

// Validate checks that the four tensors agree on shape.
func (b *Batch) Validate() error {
	shapes := [][]int{
		b.ChosenIDs.Shape(), b.ChosenMask.Shape(),
		b.RejectIDs.Shape(), b.RejectMask.Shape(),
	}
	for _, s := range shapes {
		if len(s) != 3 || s[1] != 1 {
			return errors.DataError(errors.CodeBadBatchShape,
				fmt.Sprintf("batch tensor shape %v, want [batch 1 seq]", s))
		}
		if s[0] != shapes[0][0] || s[2] != shapes[0][2] {
			return errors.DataError(errors.CodeBadBatchShape,
				fmt.Sprintf("batch tensor shapes disagree: %v vs %v", shapes[0], s))
		}
	}
	return nil
}

// Loader yields batches for one pass over a dataset split. Loaders are
// single-consumer; the trainer resets them at the start of every pass.
type Loader interface {
	// Next returns the next batch, or ok=false at end of pass.
	Next() (batch *Batch, ok bool)

	// Reset rewinds the loader to the start of the split.
	Reset()

	// Len reports the number of batches in one full pass.
	Len() int
}

// SliceLoader serves a fixed slice of batches. It backs both the in-memory
// dataset path and the trainer tests.
type SliceLoader struct {
	batches []*Batch
	pos     int
}

// NewSliceLoader creates a loader over pre-built batches.
func NewSliceLoader(batches []*Batch) *SliceLoader {
	return &SliceLoader{batches: batches}
}

// Next returns the next batch in order.
func (l *SliceLoader) Next() (*Batch, bool) {
	if l.pos >= len(l.batches) {
		return nil, false
	}
	b := l.batches[l.pos]
	l.pos++
	return b, true
}

// Reset rewinds to the first batch.
func (l *SliceLoader) Reset() {
	l.pos = 0
}

// Len returns the number of batches.
func (l *SliceLoader) Len() int {
	return len(l.batches)
}
