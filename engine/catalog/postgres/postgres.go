// Package postgres implements catalog.Catalog against three JSONB-backed
// tables (intents, meta_nodes, meta_workflows), so the same metamodel
// structs this engine already uses in memory serialize directly into
// storage. Query building goes through Masterminds/squirrel and row
// scanning through georgysavva/scany's pgxscan, mirroring the teacher's
// own auth-store repository shape.
//
// Schema (expressed here, not as an executed migration — see DESIGN.md):
//
//	CREATE TABLE intents (
//	  id   text PRIMARY KEY,
//	  name text NOT NULL,
//	  data jsonb NOT NULL
//	);
//	CREATE INDEX intents_data_gin ON intents USING GIN (data);
//
//	CREATE TABLE meta_nodes (
//	  id         text PRIMARY KEY,
//	  family_id  text NOT NULL,
//	  is_latest  boolean NOT NULL DEFAULT false,
//	  name       text NOT NULL,
//	  data       jsonb NOT NULL
//	);
//	CREATE INDEX meta_nodes_data_gin ON meta_nodes USING GIN (data);
//	CREATE INDEX meta_nodes_family_latest ON meta_nodes (family_id, is_latest);
//
//	CREATE TABLE meta_workflows (
//	  id      text PRIMARY KEY,
//	  data    jsonb NOT NULL
//	);
//	CREATE INDEX meta_workflows_handled_intents ON meta_workflows
//	  USING GIN ((data -> 'handledIntents'));
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/relayforge/relayforge/engine/catalog"
	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/intent"
	"github.com/relayforge/relayforge/engine/nodemeta"
	"github.com/relayforge/relayforge/engine/retrieval"
	"github.com/relayforge/relayforge/engine/workflow"
)

// DBInterface is the minimal pgx surface the store needs, satisfied by a
// *pgxpool.Pool in production and by pgxmock in tests.
type DBInterface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements catalog.Catalog against a Postgres DBInterface.
type Store struct {
	db DBInterface
}

// New builds a Store over db.
func New(db DBInterface) *Store {
	return &Store{db: db}
}

var _ catalog.Catalog = (*Store)(nil)

func sq() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

type jsonRow struct {
	ID   string `db:"id"`
	Data []byte `db:"data"`
}

func (s *Store) GetIntent(ctx context.Context, id core.ID) (*intent.Metamodel, bool, error) {
	query, args, err := sq().Select("id", "data").From("intents").
		Where(squirrel.Eq{"id": id.String()}).ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("catalog/postgres: building intent select: %w", err)
	}
	var row jsonRow
	if err := pgxscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("catalog/postgres: fetching intent %s: %w", id, err)
	}
	m, err := decodeIntent(row)
	return m, true, err
}

func (s *Store) ListIntents(ctx context.Context) ([]*intent.Metamodel, error) {
	query, args, err := sq().Select("id", "data").From("intents").OrderBy("name").ToSql()
	if err != nil {
		return nil, fmt.Errorf("catalog/postgres: building intents list: %w", err)
	}
	var rows []jsonRow
	if err := pgxscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("catalog/postgres: listing intents: %w", err)
	}
	out := make([]*intent.Metamodel, 0, len(rows))
	for _, row := range rows {
		m, err := decodeIntent(row)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) PutIntent(ctx context.Context, m *intent.Metamodel) error {
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
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("catalog/postgres: marshaling intent %s: %w", m.Name, err)
	}
	query, args, err := sq().Insert("intents").
		Columns("id", "name", "data").
		Values(m.ID.String(), m.Name, string(data)).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, data = EXCLUDED.data").
		ToSql()
	if err != nil {
		return fmt.Errorf("catalog/postgres: building intent upsert: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("catalog/postgres: upserting intent %s: %w", m.Name, err)
	}
	return nil
}

// SearchIntentsByVector loads every intent and ranks in Go, matching the
// memory store: the GIN index declared above speeds up lookups by id/name,
// but ANN search over the embedding itself is not delegated to Postgres
// here (see DESIGN.md for why).
func (s *Store) SearchIntentsByVector(
	ctx context.Context,
	vector []float32,
	limit int,
) ([]retrieval.Match, error) {
	all, err := s.ListIntents(ctx)
	if err != nil {
		return nil, err
	}
	candidates := make([]retrieval.Candidate, 0, len(all))
	for _, m := range all {
		candidates = append(candidates, retrieval.Candidate{ID: m.ID.String(), Embedding: m.Embedding})
	}
	return retrieval.BruteForce{Candidates: candidates}.Search(ctx, vector, limit)
}

func decodeIntent(row jsonRow) (*intent.Metamodel, error) {
	var m intent.Metamodel
	if err := json.Unmarshal(row.Data, &m); err != nil {
		return nil, fmt.Errorf("catalog/postgres: decoding intent %s: %w", row.ID, err)
	}
	return &m, nil
}

type nodeRow struct {
	ID       string `db:"id"`
	FamilyID string `db:"family_id"`
	IsLatest bool   `db:"is_latest"`
	Data     []byte `db:"data"`
}

func (s *Store) GetNode(ctx context.Context, id core.ID) (*nodemeta.Metamodel, bool, error) {
	query, args, err := sq().Select("id", "family_id", "is_latest", "data").
		From("meta_nodes").Where(squirrel.Eq{"id": id.String()}).ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("catalog/postgres: building node select: %w", err)
	}
	var row nodeRow
	if err := pgxscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("catalog/postgres: fetching node %s: %w", id, err)
	}
	m, err := decodeNode(row)
	return m, true, err
}

func (s *Store) ListNodes(ctx context.Context) ([]*nodemeta.Metamodel, error) {
	query, args, err := sq().Select("id", "family_id", "is_latest", "data").
		From("meta_nodes").OrderBy("name").ToSql()
	if err != nil {
		return nil, fmt.Errorf("catalog/postgres: building nodes list: %w", err)
	}
	var rows []nodeRow
	if err := pgxscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("catalog/postgres: listing nodes: %w", err)
	}
	out := make([]*nodemeta.Metamodel, 0, len(rows))
	for _, row := range rows {
		m, err := decodeNode(row)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) PutNode(ctx context.Context, m *nodemeta.Metamodel) error {
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
	if m.IsLatest {
		demote, args, err := sq().Update("meta_nodes").
			Set("is_latest", false).
			Where(squirrel.Eq{"family_id": m.FamilyID}).
			Where(squirrel.NotEq{"id": m.ID.String()}).ToSql()
		if err != nil {
			return fmt.Errorf("catalog/postgres: building latest-demotion update: %w", err)
		}
		if _, err := s.db.Exec(ctx, demote, args...); err != nil {
			return fmt.Errorf("catalog/postgres: demoting prior latest for family %s: %w", m.FamilyID, err)
		}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("catalog/postgres: marshaling node %s: %w", m.Name, err)
	}
	query, args, err := sq().Insert("meta_nodes").
		Columns("id", "family_id", "is_latest", "name", "data").
		Values(m.ID.String(), m.FamilyID, m.IsLatest, m.Name, string(data)).
		Suffix("ON CONFLICT (id) DO UPDATE SET family_id = EXCLUDED.family_id, " +
			"is_latest = EXCLUDED.is_latest, name = EXCLUDED.name, data = EXCLUDED.data").
		ToSql()
	if err != nil {
		return fmt.Errorf("catalog/postgres: building node upsert: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("catalog/postgres: upserting node %s: %w", m.Name, err)
	}
	return nil
}

func (s *Store) LatestByFamilyID(ctx context.Context, familyID string) (*nodemeta.Metamodel, bool, error) {
	query, args, err := sq().Select("id", "family_id", "is_latest", "data").
		From("meta_nodes").
		Where(squirrel.Eq{"family_id": familyID, "is_latest": true}).ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("catalog/postgres: building latest-by-family select: %w", err)
	}
	var row nodeRow
	if err := pgxscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("catalog/postgres: fetching latest for family %s: %w", familyID, err)
	}
	m, err := decodeNode(row)
	return m, true, err
}

func (s *Store) AllByFamilyOrderByVersionDesc(
	ctx context.Context,
	familyID string,
) ([]*nodemeta.Metamodel, error) {
	query, args, err := sq().Select("id", "family_id", "is_latest", "data").
		From("meta_nodes").Where(squirrel.Eq{"family_id": familyID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("catalog/postgres: building family list: %w", err)
	}
	var rows []nodeRow
	if err := pgxscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("catalog/postgres: listing family %s: %w", familyID, err)
	}
	out := make([]*nodemeta.Metamodel, 0, len(rows))
	for _, row := range rows {
		m, err := decodeNode(row)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	sortNodesByVersionDesc(out)
	return out, nil
}

func sortNodesByVersionDesc(nodes []*nodemeta.Metamodel) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && versionLess(nodes[j-1], nodes[j]); j-- {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
		}
	}
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

// SearchNodes ranks nodes by cosine similarity when vector is supplied,
// else by a case-insensitive substring score over name/description/
// author/tags, computed in Go after loading every node (the same scoring
// as the memory store).
func (s *Store) SearchNodes(
	ctx context.Context,
	query string,
	vector []float32,
	limit int,
) ([]retrieval.Match, error) {
	all, err := s.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	if len(vector) > 0 {
		candidates := make([]retrieval.Candidate, 0, len(all))
		for _, m := range all {
			candidates = append(candidates, retrieval.Candidate{ID: m.ID.String(), Embedding: m.Embedding})
		}
		return retrieval.BruteForce{Candidates: candidates}.Search(ctx, vector, limit)
	}
	var matches []retrieval.Match
	for _, m := range all {
		if score := textScore(m, query); score > 0 {
			matches = append(matches, retrieval.Match{ID: m.ID.String(), Score: score})
		}
	}
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j-1].Score < matches[j].Score; j-- {
			matches[j-1], matches[j] = matches[j], matches[j-1]
		}
	}
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func textScore(m *nodemeta.Metamodel, query string) float64 {
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
	return score
}

func decodeNode(row nodeRow) (*nodemeta.Metamodel, error) {
	var m nodemeta.Metamodel
	if err := json.Unmarshal(row.Data, &m); err != nil {
		return nil, fmt.Errorf("catalog/postgres: decoding node %s: %w", row.ID, err)
	}
	return &m, nil
}

type workflowRow struct {
	ID   string `db:"id"`
	Data []byte `db:"data"`
}

func (s *Store) GetWorkflow(ctx context.Context, id core.ID) (*workflow.Metamodel, bool, error) {
	query, args, err := sq().Select("id", "data").From("meta_workflows").
		Where(squirrel.Eq{"id": id.String()}).ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("catalog/postgres: building workflow select: %w", err)
	}
	var row workflowRow
	if err := pgxscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("catalog/postgres: fetching workflow %s: %w", id, err)
	}
	m, err := decodeWorkflow(row)
	return m, true, err
}

func (s *Store) ListWorkflows(ctx context.Context) ([]*workflow.Metamodel, error) {
	query, args, err := sq().Select("id", "data").From("meta_workflows").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("catalog/postgres: building workflows list: %w", err)
	}
	var rows []workflowRow
	if err := pgxscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("catalog/postgres: listing workflows: %w", err)
	}
	out := make([]*workflow.Metamodel, 0, len(rows))
	for _, row := range rows {
		m, err := decodeWorkflow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) PutWorkflow(ctx context.Context, m *workflow.Metamodel) error {
	if m.ID.IsZero() {
		id, err := core.NewID()
		if err != nil {
			return err
		}
		m.ID = id
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("catalog/postgres: marshaling workflow %s: %w", m.ID, err)
	}
	query, args, err := sq().Insert("meta_workflows").
		Columns("id", "data").
		Values(m.ID.String(), string(data)).
		Suffix("ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data").
		ToSql()
	if err != nil {
		return fmt.Errorf("catalog/postgres: building workflow upsert: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("catalog/postgres: upserting workflow %s: %w", m.ID, err)
	}
	return nil
}

// WorkflowsForIntent loads every workflow and filters/sorts in Go: the
// handledIntents array lives inside the JSONB column, so the GIN index
// declared above accelerates containment lookups but the score-descending
// order is still easiest to apply after decoding, exactly as the memory
// store does.
func (s *Store) WorkflowsForIntent(ctx context.Context, intentID core.ID) ([]*workflow.Metamodel, error) {
	all, err := s.ListWorkflows(ctx)
	if err != nil {
		return nil, err
	}
	var out []*workflow.Metamodel
	for _, m := range all {
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
	sortWorkflowsByScoreDesc(out, intentID)
	return out, nil
}

func sortWorkflowsByScoreDesc(workflows []*workflow.Metamodel, intentID core.ID) {
	score := func(m *workflow.Metamodel) float64 {
		for _, h := range m.HandledIntents {
			if h.IntentID == intentID.String() {
				return h.Score
			}
		}
		return 0
	}
	for i := 1; i < len(workflows); i++ {
		for j := i; j > 0 && score(workflows[j-1]) < score(workflows[j]); j-- {
			workflows[j-1], workflows[j] = workflows[j], workflows[j-1]
		}
	}
}

func (s *Store) SaveEdgeBindings(
	ctx context.Context,
	workflowID core.ID,
	edgeID string,
	bindings map[string]string,
) error {
	m, ok, err := s.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("catalog/postgres: unknown workflow %s", workflowID)
	}
	found := false
	for i, e := range m.Edges {
		if e.ID == edgeID {
			merged, err := core.OverlayBindings(e.Bindings, bindings)
			if err != nil {
				return fmt.Errorf("catalog/postgres: workflow %s edge %s: %w", workflowID, edgeID, err)
			}
			m.Edges[i].Bindings = merged
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("catalog/postgres: workflow %s has no edge %s", workflowID, edgeID)
	}
	return s.PutWorkflow(ctx, m)
}

func decodeWorkflow(row workflowRow) (*workflow.Metamodel, error) {
	var m workflow.Metamodel
	if err := json.Unmarshal(row.Data, &m); err != nil {
		return nil, fmt.Errorf("catalog/postgres: decoding workflow %s: %w", row.ID, err)
	}
	return &m, nil
}

func containsFold(s, substr string) bool {
	return substr != "" && strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
