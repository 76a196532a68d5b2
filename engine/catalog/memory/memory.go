// Package memory implements catalog.Catalog over process-local,
// mutex-guarded maps, with cosine similarity computed in Go for vector
// search. It is the default store for the reference cmd/ binary and for
// every other component's tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/relayforge/relayforge/engine/catalog"
	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/intent"
	"github.com/relayforge/relayforge/engine/nodemeta"
	"github.com/relayforge/relayforge/engine/retrieval"
	"github.com/relayforge/relayforge/engine/workflow"
)

// Store is an in-memory catalog.Catalog implementation.
type Store struct {
	mu        sync.RWMutex
	intents   map[core.ID]*intent.Metamodel
	nodes     map[core.ID]*nodemeta.Metamodel
	workflows map[core.ID]*workflow.Metamodel
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		intents:   make(map[core.ID]*intent.Metamodel),
		nodes:     make(map[core.ID]*nodemeta.Metamodel),
		workflows: make(map[core.ID]*workflow.Metamodel),
	}
}

var _ catalog.Catalog = (*Store)(nil)

func (s *Store) GetIntent(_ context.Context, id core.ID) (*intent.Metamodel, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.intents[id]
	return m, ok, nil
}

func (s *Store) ListIntents(_ context.Context) ([]*intent.Metamodel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*intent.Metamodel, 0, len(s.intents))
	for _, m := range s.intents {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) PutIntent(_ context.Context, m *intent.Metamodel) error {
	if err := m.Validate(); err != nil {
		return core.NewError(err, core.CodeValidation, map[string]any{"intent": m.Name})
	}
	if m.ID.IsZero() {
		id, err := core.NewID()
		if err != nil {
			return err
		}
		m.ID = id
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[m.ID] = m
	return nil
}

func (s *Store) SearchIntentsByVector(
	ctx context.Context,
	vector []float32,
	limit int,
) ([]retrieval.Match, error) {
	s.mu.RLock()
	candidates := make([]retrieval.Candidate, 0, len(s.intents))
	for id, m := range s.intents {
		candidates = append(candidates, retrieval.Candidate{ID: id.String(), Embedding: m.Embedding})
	}
	s.mu.RUnlock()
	return retrieval.BruteForce{Candidates: candidates}.Search(ctx, vector, limit)
}

func (s *Store) GetNode(_ context.Context, id core.ID) (*nodemeta.Metamodel, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.nodes[id]
	return m, ok, nil
}

func (s *Store) ListNodes(_ context.Context) ([]*nodemeta.Metamodel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*nodemeta.Metamodel, 0, len(s.nodes))
	for _, m := range s.nodes {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) PutNode(_ context.Context, m *nodemeta.Metamodel) error {
	if err := m.Validate(); err != nil {
		return core.NewError(err, core.CodeValidation, map[string]any{"node": m.Name})
	}
	if m.ID.IsZero() {
		id, err := core.NewID()
		if err != nil {
			return err
		}
		m.ID = id
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.IsLatest {
		for _, other := range s.nodes {
			if other.FamilyID == m.FamilyID && other.ID != m.ID {
				other.IsLatest = false
			}
		}
	}
	s.nodes[m.ID] = m
	return nil
}

func (s *Store) LatestByFamilyID(_ context.Context, familyID string) (*nodemeta.Metamodel, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.nodes {
		if m.FamilyID == familyID && m.IsLatest {
			return m, true, nil
		}
	}
	return nil, false, nil
}

func (s *Store) AllByFamilyOrderByVersionDesc(
	_ context.Context,
	familyID string,
) ([]*nodemeta.Metamodel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*nodemeta.Metamodel
	for _, m := range s.nodes {
		if m.FamilyID == familyID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return versionLess(out[j], out[i]) })
	return out, nil
}

func versionLess(a, b *nodemeta.Metamodel) bool {
	va, errA := nodemeta.ParseVersion(a.VersionString)
	vb, errB := nodemeta.ParseVersion(b.VersionString)
	if errA != nil || errB != nil {
		return a.VersionString < b.VersionString
	}
	if va.Major() != vb.Major() {
		return va.Major() < vb.Major()
	}
	if va.Minor() != vb.Minor() {
		return va.Minor() < vb.Minor()
	}
	return va.Patch() < vb.Patch()
}

func (s *Store) SearchNodes(
	ctx context.Context,
	query string,
	vector []float32,
	limit int,
) ([]retrieval.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(vector) > 0 {
		candidates := make([]retrieval.Candidate, 0, len(s.nodes))
		for id, m := range s.nodes {
			candidates = append(candidates, retrieval.Candidate{ID: id.String(), Embedding: m.Embedding})
		}
		return retrieval.BruteForce{Candidates: candidates}.Search(ctx, vector, limit)
	}
	return s.textSearch(query, limit), nil
}

// textSearch ranks nodes by a simple substring match over name,
// description, author, and tags, standing in for the GIN full-text index
// the Postgres implementation would use.
func (s *Store) textSearch(query string, limit int) []retrieval.Match {
	var matches []retrieval.Match
	for id, m := range s.nodes {
		score := 0.0
		if containsFold(m.Name, query) {
			score += 3
		}
		if containsFold(m.Description, query) {
			score += 2
		}
		if containsFold(m.Author, query) {
			score += 1
		}
		for _, tag := range m.Tags {
			if containsFold(tag, query) {
				score += 1
			}
		}
		if score > 0 {
			matches = append(matches, retrieval.Match{ID: id.String(), Score: score})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func (s *Store) GetWorkflow(_ context.Context, id core.ID) (*workflow.Metamodel, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.workflows[id]
	return m, ok, nil
}

func (s *Store) ListWorkflows(_ context.Context) ([]*workflow.Metamodel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*workflow.Metamodel, 0, len(s.workflows))
	for _, m := range s.workflows {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) PutWorkflow(_ context.Context, m *workflow.Metamodel) error {
	if m.ID.IsZero() {
		id, err := core.NewID()
		if err != nil {
			return err
		}
		m.ID = id
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[m.ID] = m
	return nil
}

func (s *Store) WorkflowsForIntent(_ context.Context, intentID core.ID) ([]*workflow.Metamodel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*workflow.Metamodel
	for _, m := range s.workflows {
		if !m.Enabled {
			continue
		}
		for _, h := range m.HandledIntents {
			if h.IntentID == intentID.String() {
				out = append(out, m)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return scoreFor(out[i], intentID) > scoreFor(out[j], intentID)
	})
	return out, nil
}

func scoreFor(m *workflow.Metamodel, intentID core.ID) float64 {
	for _, h := range m.HandledIntents {
		if h.IntentID == intentID.String() {
			return h.Score
		}
	}
	return 0
}

func (s *Store) SaveEdgeBindings(
	_ context.Context,
	workflowID core.ID,
	edgeID string,
	bindings map[string]string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.workflows[workflowID]
	if !ok {
		return fmt.Errorf("catalog: unknown workflow %s", workflowID)
	}
	for i, e := range m.Edges {
		if e.ID == edgeID {
			merged, err := core.OverlayBindings(e.Bindings, bindings)
			if err != nil {
				return fmt.Errorf("catalog: workflow %s edge %s: %w", workflowID, edgeID, err)
			}
			m.Edges[i].Bindings = merged
			return nil
		}
	}
	return fmt.Errorf("catalog: workflow %s has no edge %s", workflowID, edgeID)
}

func containsFold(s, substr string) bool {
	return substr != "" && strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
