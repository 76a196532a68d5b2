package effector

import (
	"fmt"

	"github.com/relayforge/relayforge/engine/node"
	"github.com/relayforge/relayforge/engine/nodemeta"
)

// Providers bundles the effector-layer clients a Factory dispatches
// through. Any of these may be nil if the corresponding node kind is not
// used by the catalog in a given deployment.
type Providers struct {
	Chat    ChatClient
	Embed   EmbedClient
	Vectors VectorStore
	HTTP    HTTPDoer
}

// Factory builds the node.Effector appropriate for a NodeMetamodel's kind.
type Factory struct {
	providers Providers
}

// NewFactory builds a Factory over the given provider clients.
func NewFactory(providers Providers) *Factory {
	return &Factory{providers: providers}
}

// For returns the effector that dispatches kind, or an error if the
// factory was not wired with the provider that kind requires.
func (f *Factory) For(kind nodemeta.Kind) (node.Effector, error) {
	switch kind {
	case nodemeta.KindAILLM:
		if f.providers.Chat == nil {
			return nil, fmt.Errorf("effector: no chat client configured for AI_LLM nodes")
		}
		return &LLM{Client: f.providers.Chat}, nil
	case nodemeta.KindAIEmbeddings:
		if f.providers.Embed == nil {
			return nil, fmt.Errorf("effector: no embed client configured for AI_EMBEDDINGS nodes")
		}
		return &Embeddings{Client: f.providers.Embed}, nil
	case nodemeta.KindToolVectorDB:
		if f.providers.Vectors == nil {
			return nil, fmt.Errorf("effector: no vector store configured for TOOL_VECTOR_DB nodes")
		}
		return &VectorDB{Store: f.providers.Vectors}, nil
	case nodemeta.KindToolREST:
		if f.providers.HTTP == nil {
			return nil, fmt.Errorf("effector: no HTTP client configured for TOOL_REST nodes")
		}
		return &REST{Client: f.providers.HTTP}, nil
	case nodemeta.KindFlowGateway:
		return Gateway{}, nil
	default:
		return nil, fmt.Errorf("effector: unknown node kind %q", kind)
	}
}
