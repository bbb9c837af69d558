package data

import (
	"github.com/openrmt/openrmt/internal/tensor"
	"github.com/openrmt/openrmt/pkg/errors"
)

// Pair is one human preference record: two responses to the same prompt,
// one chosen and one rejected by the annotator.
type Pair struct {
	Prompt   string
	Chosen   string
	Rejected string
}

// PreferenceSet is an in-memory split of preference pairs.
type PreferenceSet struct {
	pairs     []Pair
	tokenizer *HashTokenizer
}

// NewPreferenceSet wraps pairs with the tokenizer used to encode them.
func NewPreferenceSet(pairs []Pair, tokenizer *HashTokenizer) *PreferenceSet {
	return &PreferenceSet{pairs: pairs, tokenizer: tokenizer}
}

// Len returns the number of pairs.
func (s *PreferenceSet) Len() int {
	return len(s.pairs)
}

// Batches encodes the split into fixed-size batches of [batch, 1, seq]
// tensors. The final short batch is kept, so one pass sees every pair.
func (s *PreferenceSet) Batches(batchSize int) ([]*Batch, error) {
	if batchSize < 1 {
		return nil, errors.ValidationErrorf("batch size %d, want >= 1", batchSize)
	}

	seqLen := s.tokenizer.SeqLen()
	var batches []*Batch

	for start := 0; start < len(s.pairs); start += batchSize {
		end := start + batchSize
		if end > len(s.pairs) {
			end = len(s.pairs)
		}
		n := end - start

		chosenIDs := make([]float64, 0, n*seqLen)
		chosenMask := make([]float64, 0, n*seqLen)
		rejectIDs := make([]float64, 0, n*seqLen)
		rejectMask := make([]float64, 0, n*seqLen)

		for _, p := range s.pairs[start:end] {
			ids, mask := s.tokenizer.EncodePair(p.Prompt, p.Chosen)
			chosenIDs = append(chosenIDs, ids...)
			chosenMask = append(chosenMask, mask...)

			ids, mask = s.tokenizer.EncodePair(p.Prompt, p.Rejected)
			rejectIDs = append(rejectIDs, ids...)
			rejectMask = append(rejectMask, mask...)
		}

		batch := &Batch{
			ChosenIDs:  tensor.MustFromSlice(chosenIDs, n, 1, seqLen),
			ChosenMask: tensor.MustFromSlice(chosenMask, n, 1, seqLen),
			RejectIDs:  tensor.MustFromSlice(rejectIDs, n, 1, seqLen),
			RejectMask: tensor.MustFromSlice(rejectMask, n, 1, seqLen),
		}
		batches = append(batches, batch)
	}

	return batches, nil
}

// Loader encodes the split and returns a loader over it.
func (s *PreferenceSet) Loader(batchSize int) (Loader, error) {
	batches, err := s.Batches(batchSize)
	if err != nil {
		return nil, err
	}
	return NewSliceLoader(batches), nil
}
