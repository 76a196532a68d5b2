// Package retrieval implements the vector-similarity abstraction shared by
// the catalog's node/intent search and the intent detector's semantic
// lookup: one Searcher interface, and an in-memory brute-force
// implementation that both the catalog's memory store and its tests use.
package retrieval

import (
	"context"
	"math"
	"sort"
)

// Match is one ranked result of a Searcher query.
type Match struct {
	ID    string
	Score float64
}

// Searcher performs a top-K nearest-neighbor search over a fixed set of
// embedded candidates.
type Searcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]Match, error)
}

// Candidate is one embedded item a BruteForce searcher ranks against.
type Candidate struct {
	ID        string
	Embedding []float32
}

// BruteForce ranks Candidates by cosine similarity to the query vector,
// computed in Go rather than delegated to an ANN index. Production vector
// stores (e.g. a Redis-backed vectordb.Store) implement the same Searcher
// interface against a real index instead.
type BruteForce struct {
	Candidates []Candidate
}

func (b BruteForce) Search(_ context.Context, vector []float32, limit int) ([]Match, error) {
	matches := make([]Match, 0, len(b.Candidates))
	for _, c := range b.Candidates {
		matches = append(matches, Match{ID: c.ID, Score: CosineSimilarity(vector, c.Embedding)})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// CosineSimilarity returns the cosine similarity of a and b, or 0 if either
// is the zero vector or their lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
