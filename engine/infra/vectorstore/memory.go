package vectorstore

import (
	"context"
	"sort"
	"sync"

	"github.com/relayforge/relayforge/engine/effector"
	"github.com/relayforge/relayforge/engine/retrieval"
)

type memoryRecord struct {
	document map[string]any
	vector   []float32
}

// Memory is a brute-force in-process VectorStore keyed by collection name.
// URI, database, and index on the query are ignored — there is only one
// process-local store.
type Memory struct {
	mu          sync.RWMutex
	collections map[string][]memoryRecord
}

// NewMemory builds an empty Memory store.
func NewMemory() *Memory {
	return &Memory{collections: map[string][]memoryRecord{}}
}

// Add seeds one document with its embedding into a collection.
func (m *Memory) Add(collection string, document map[string]any, vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = append(m.collections[collection], memoryRecord{
		document: document,
		vector:   vector,
	})
}

// Query ranks the collection's documents by cosine similarity to q.Vector,
// descending, keeping at most q.Limit results at or above
// q.SimilarityThreshold.
func (m *Memory) Query(_ context.Context, q effector.VectorQuery) ([]effector.VectorMatch, error) {
	m.mu.RLock()
	records := m.collections[q.Collection]
	m.mu.RUnlock()

	matches := make([]effector.VectorMatch, 0, len(records))
	for _, r := range records {
		score := retrieval.CosineSimilarity(q.Vector, r.vector)
		if q.SimilarityThreshold > 0 && score < q.SimilarityThreshold {
			continue
		}
		matches = append(matches, effector.VectorMatch{Document: r.document, Score: score})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
