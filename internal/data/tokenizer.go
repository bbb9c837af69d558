package data

import (
	"hash/fnv"
	"strings"
)

// padID is the reserved token id for padding positions.
const padID = 0

// HashTokenizer maps whitespace-separated tokens into a fixed vocabulary by
// hashing. It needs no vocabulary file, is deterministic across processes,
// and collisions are acceptable for a scoring model over short responses.
type HashTokenizer struct {
	vocabSize int
	seqLen    int
}

// NewHashTokenizer creates a tokenizer with the given vocabulary size and
// fixed sequence length. Ids 1..vocabSize-1 are used; 0 is padding.
func NewHashTokenizer(vocabSize, seqLen int) *HashTokenizer {
	return &HashTokenizer{vocabSize: vocabSize, seqLen: seqLen}
}

// SeqLen returns the fixed sequence length.
func (t *HashTokenizer) SeqLen() int {
	return t.seqLen
}

// Encode tokenizes text into padded id and attention-mask rows of length
// SeqLen. Texts longer than SeqLen are truncated from the right.
func (t *HashTokenizer) Encode(text string) (ids, mask []float64) {
	ids = make([]float64, t.seqLen)
	mask = make([]float64, t.seqLen)

	pos := 0
	for _, tok := range strings.Fields(text) {
		if pos >= t.seqLen {
			break
		}
		ids[pos] = float64(t.tokenID(tok))
		mask[pos] = 1
		pos++
	}
	// Remaining positions stay padID with mask 0.
	return ids, mask
}

// EncodePair encodes a prompt+response pair into a single sequence.
func (t *HashTokenizer) EncodePair(prompt, response string) (ids, mask []float64) {
	return t.Encode(prompt + " " + response)
}

func (t *HashTokenizer) tokenID(tok string) int {
	h := fnv.New32a()
	h.Write([]byte(tok))
	return 1 + int(h.Sum32())%(t.vocabSize-1)
}
