package effector

import (
	"context"
	"fmt"

	"github.com/relayforge/relayforge/engine/exectx"
	"github.com/relayforge/relayforge/engine/node"
	"github.com/relayforge/relayforge/engine/nodemeta"
	"github.com/relayforge/relayforge/engine/port"
)

// Embeddings dispatches AI{EMBEDDINGS} nodes: a single text input port, a
// single vector output port.
type Embeddings struct {
	Client EmbedClient
}

func (e *Embeddings) Invoke(ctx context.Context, ectx *exectx.Context, nodeID string, meta *nodemeta.Metamodel) error {
	variant, ok := meta.Variant.(nodemeta.EmbeddingsVariant)
	if !ok {
		return fmt.Errorf("effector: node %s is not an embeddings node", nodeID)
	}
	inPort := findByRole(meta.InputPorts, port.EmbeddingsRoleInputText)
	outPort := findByRole(meta.OutputPorts, port.EmbeddingsRoleOutputVector)
	if inPort == nil || outPort == nil {
		return fmt.Errorf("effector: embeddings node %s missing input_text/output_vector ports", nodeID)
	}
	text, _ := ectx.Get(node.InputPath(nodeID, inPort.Key)).(string)
	vector, err := e.Client.Embed(ctx, variant.Provider, variant.ModelName, text)
	if err != nil {
		return classifyProviderError(err, map[string]any{"node": nodeID})
	}
	out := make([]any, len(vector))
	for i, f := range vector {
		out[i] = float64(f)
	}
	return ectx.Put(node.OutputPath(nodeID, outPort.Key), out)
}

func findByRole[R comparable](ports []*port.Port, want R) *port.Port {
	for _, p := range ports {
		if r, ok := p.Role.(R); ok && r == want {
			return p
		}
	}
	return nil
}
