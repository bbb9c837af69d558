package data_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openrmt/openrmt/internal/data"
)

func TestHashTokenizerEncode(t *testing.T) {
	tok := data.NewHashTokenizer(1000, 8)

	t.Run("pads short text", func(t *testing.T) {
		ids, mask := tok.Encode("hello world")
		assert.Len(t, ids, 8)
		assert.Len(t, mask, 8)
		assert.Equal(t, []float64{1, 1, 0, 0, 0, 0, 0, 0}, mask)
		assert.NotZero(t, ids[0])
		assert.NotZero(t, ids[1])
		assert.Zero(t, ids[2])
	})

	t.Run("truncates long text", func(t *testing.T) {
		ids, mask := tok.Encode("a b c d e f g h i j k")
		assert.Len(t, ids, 8)
		for _, m := range mask {
			assert.Equal(t, 1.0, m)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		a, _ := tok.Encode("same input text")
		b, _ := tok.Encode("same input text")
		assert.Equal(t, a, b)
	})

	t.Run("ids stay inside the vocabulary", func(t *testing.T) {
		ids, _ := tok.Encode("alpha beta gamma delta")
		for _, id := range ids {
			assert.GreaterOrEqual(t, id, 0.0)
			assert.Less(t, id, 1000.0)
		}
	})
}

func TestEncodePair(t *testing.T) {
	tok := data.NewHashTokenizer(1000, 8)

	pairIDs, _ := tok.EncodePair("prompt", "response")
	joinedIDs, _ := tok.Encode("prompt response")
	assert.Equal(t, joinedIDs, pairIDs)
}
