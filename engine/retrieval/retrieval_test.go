package retrieval_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/relayforge/engine/retrieval"
)

func Test_BruteForce_Search(t *testing.T) {
	searcher := retrieval.BruteForce{Candidates: []retrieval.Candidate{
		{ID: "exact", Embedding: []float32{1, 0, 0}},
		{ID: "close", Embedding: []float32{0.9, 0.1, 0}},
		{ID: "far", Embedding: []float32{0, 0, 1}},
	}}

	t.Run("Should rank candidates by cosine similarity descending", func(t *testing.T) {
		matches, err := searcher.Search(context.Background(), []float32{1, 0, 0}, 0)

		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, "exact", matches[0].ID)
		assert.Equal(t, "close", matches[1].ID)
		assert.Equal(t, "far", matches[2].ID)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	})

	t.Run("Should truncate to the limit", func(t *testing.T) {
		matches, err := searcher.Search(context.Background(), []float32{1, 0, 0}, 2)

		require.NoError(t, err)
		assert.Len(t, matches, 2)
	})
}

func Test_CosineSimilarity(t *testing.T) {
	t.Run("Should be 1 for identical and 0 for orthogonal vectors", func(t *testing.T) {
		assert.InDelta(t, 1.0, retrieval.CosineSimilarity([]float32{3, 4}, []float32{3, 4}), 1e-9)
		assert.InDelta(t, 0.0, retrieval.CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	})

	t.Run("Should be 0 for mismatched lengths or zero vectors", func(t *testing.T) {
		assert.Zero(t, retrieval.CosineSimilarity([]float32{1, 0}, []float32{1}))
		assert.Zero(t, retrieval.CosineSimilarity(nil, nil))
		assert.Zero(t, retrieval.CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	})
}
