package effector

import (
	"context"
	"fmt"

	"github.com/relayforge/relayforge/engine/exectx"
	"github.com/relayforge/relayforge/engine/node"
	"github.com/relayforge/relayforge/engine/nodemeta"
	"github.com/relayforge/relayforge/engine/port"
)

// VectorDB dispatches TOOL{VECTOR_DB} nodes: ANN search over one
// (database, collection, index, vectorField), writing the ranked matches
// and, optionally, the single best match.
type VectorDB struct {
	Store VectorStore
}

func (e *VectorDB) Invoke(ctx context.Context, ectx *exectx.Context, nodeID string, meta *nodemeta.Metamodel) error {
	variant, ok := meta.Variant.(nodemeta.VectorDBVariant)
	if !ok {
		return fmt.Errorf("effector: node %s is not a vector-db node", nodeID)
	}
	inPort := findByRole(meta.InputPorts, port.VectorDBRoleInputVector)
	if inPort == nil {
		return fmt.Errorf("effector: vector-db node %s missing input_vector port", nodeID)
	}
	raw, _ := ectx.Get(node.InputPath(nodeID, inPort.Key)).([]any)
	vector := make([]float32, len(raw))
	for i, v := range raw {
		switch n := v.(type) {
		case float64:
			vector[i] = float32(n)
		case float32:
			vector[i] = n
		case int:
			vector[i] = float32(n)
		}
	}
	matches, err := e.Store.Query(ctx, VectorQuery{
		URI:                 variant.URI,
		Database:            variant.DatabaseName,
		Collection:          variant.CollectionName,
		Index:               variant.IndexName,
		VectorField:         variant.VectorField,
		Vector:              vector,
		Limit:               variant.Limit,
		SimilarityThreshold: variant.SimilarityThreshold,
	})
	if err != nil {
		return classifyProviderError(err, map[string]any{"node": nodeID})
	}
	if resultsPort := findByRole(meta.OutputPorts, port.VectorDBRoleResults); resultsPort != nil {
		results := make([]any, len(matches))
		for i, m := range matches {
			results[i] = m.Document
		}
		if err := ectx.Put(node.OutputPath(nodeID, resultsPort.Key), results); err != nil {
			return err
		}
	}
	if firstPort := findByRole(meta.OutputPorts, port.VectorDBRoleFirstResult); firstPort != nil {
		var first any
		if len(matches) > 0 {
			first = matches[0].Document
		}
		if err := ectx.Put(node.OutputPath(nodeID, firstPort.Key), first); err != nil {
			return err
		}
	}
	return nil
}
