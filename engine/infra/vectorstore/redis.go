// Package vectorstore implements the engine's VectorStore contract: a
// Redis-backed ANN store using FT.SEARCH KNN queries over hash documents,
// and an in-memory brute-force store for tests and local development.
package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/relayforge/relayforge/engine/effector"
)

// scoreField is the alias the KNN clause assigns to the cosine distance.
const scoreField = "__vector_score"

const defaultLimit = 10

// Redis implements effector.VectorStore over go-redis. Clients are built
// lazily per URI and cached for the store's lifetime, so one store serves
// every vector-db node metamodel regardless of which server it points at.
type Redis struct {
	mu      sync.Mutex
	clients map[string]*redis.Client
}

// NewRedis builds an empty Redis store.
func NewRedis() *Redis {
	return &Redis{clients: map[string]*redis.Client{}}
}

// Close closes every cached client.
func (s *Redis) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for uri, c := range s.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("vectorstore: closing client for %s: %w", uri, err)
		}
		delete(s.clients, uri)
	}
	return firstErr
}

func (s *Redis) clientFor(uri string) (*redis.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[uri]; ok {
		return c, nil
	}
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, effector.Permanent(fmt.Errorf("vectorstore: invalid redis uri %q: %w", uri, err))
	}
	c := redis.NewClient(opts)
	s.clients[uri] = c
	return c, nil
}

// Query runs a KNN search against q.Index, returning matches ranked by
// similarity descending, filtered by q.SimilarityThreshold. The cosine
// distance Redis reports is converted to a similarity (1 - distance).
func (s *Redis) Query(ctx context.Context, q effector.VectorQuery) ([]effector.VectorMatch, error) {
	client, err := s.clientFor(q.URI)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	knn := fmt.Sprintf("*=>[KNN %d @%s $vec AS %s]", limit, q.VectorField, scoreField)
	res, err := client.FTSearchWithArgs(ctx, q.Index, knn, &redis.FTSearchOptions{
		Params:         map[string]any{"vec": string(EncodeVector(q.Vector))},
		SortBy:         []redis.FTSearchSortBy{{FieldName: scoreField, Asc: true}},
		Limit:          limit,
		DialectVersion: 2,
	}).Result()
	if err != nil {
		wrapped := fmt.Errorf("vectorstore: FT.SEARCH on %s: %w", q.Index, err)
		// A missing index is a catalog configuration problem, not a blip.
		if strings.Contains(err.Error(), "no such index") || strings.Contains(err.Error(), "Unknown index") {
			return nil, effector.Permanent(wrapped)
		}
		return nil, wrapped
	}

	matches := make([]effector.VectorMatch, 0, len(res.Docs))
	for _, doc := range res.Docs {
		distance, _ := strconv.ParseFloat(doc.Fields[scoreField], 64)
		similarity := 1 - distance
		if q.SimilarityThreshold > 0 && similarity < q.SimilarityThreshold {
			continue
		}
		matches = append(matches, effector.VectorMatch{
			Document: documentOf(doc.ID, doc.Fields, q.VectorField),
			Score:    similarity,
		})
	}
	return matches, nil
}

// Record is one document to upsert into a collection.
type Record struct {
	ID     string
	Fields map[string]any
	Vector []float32
}

// Upsert writes records as hashes under "<collection>:<id>", with the
// vector serialized into vectorField the way the FLOAT32 index expects.
func (s *Redis) Upsert(ctx context.Context, uri, collection, vectorField string, records []Record) error {
	client, err := s.clientFor(uri)
	if err != nil {
		return err
	}
	for _, r := range records {
		values := map[string]any{vectorField: string(EncodeVector(r.Vector))}
		for k, v := range r.Fields {
			values[k] = hashValue(v)
		}
		key := collection + ":" + r.ID
		if err := client.HSet(ctx, key, values).Err(); err != nil {
			return fmt.Errorf("vectorstore: HSET %s: %w", key, err)
		}
	}
	return nil
}

// EnsureIndex creates a FLAT FLOAT32 cosine index over the collection's
// hash prefix if it does not already exist.
func (s *Redis) EnsureIndex(ctx context.Context, uri, index, collection, vectorField string, dimensions int) error {
	client, err := s.clientFor(uri)
	if err != nil {
		return err
	}
	err = client.FTCreate(ctx, index,
		&redis.FTCreateOptions{OnHash: true, Prefix: []any{collection + ":"}},
		&redis.FieldSchema{
			FieldName: vectorField,
			FieldType: redis.SearchFieldTypeVector,
			VectorArgs: &redis.FTVectorArgs{
				FlatOptions: &redis.FTFlatOptions{
					Type:           "FLOAT32",
					Dim:            dimensions,
					DistanceMetric: "COSINE",
				},
			},
		},
	).Err()
	if err != nil && strings.Contains(err.Error(), "Index already exists") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("vectorstore: FT.CREATE %s: %w", index, err)
	}
	return nil
}

// documentOf rebuilds a match's document from its hash fields, dropping
// the serialized vector and the KNN score alias.
func documentOf(id string, fields map[string]string, vectorField string) map[string]any {
	doc := map[string]any{"_id": id}
	for k, v := range fields {
		if k == vectorField || k == scoreField {
			continue
		}
		doc[k] = decodeField(v)
	}
	return doc
}

func hashValue(v any) any {
	switch v.(type) {
	case string, int, int64, float64, bool, []byte:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// decodeField recovers numbers and booleans stored through hashValue;
// anything else stays a string.
func decodeField(v string) any {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}
