// Package embedclient adapts tmc/langchaingo embedders to the engine's
// EmbedClient contract, for the embeddings node effector and the intent
// detector's semantic lookup. Embedders are built lazily per
// (provider, model) pair and cached for the client's lifetime.
package embedclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/relayforge/relayforge/engine/effector"
)

// ProviderName identifies an embedding backend.
type ProviderName string

const (
	ProviderOpenAI ProviderName = "openai"
	ProviderOllama ProviderName = "ollama"
)

// ProviderConfig carries one provider's connection settings.
type ProviderConfig struct {
	APIKey string
	APIURL string
}

// Options configures a Client's provider wiring, keyed by provider name.
type Options struct {
	Providers map[ProviderName]ProviderConfig
}

// Embedder is the slice of langchaingo's embedder surface this client
// needs; embeddings.Embedder satisfies it.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Client implements effector.EmbedClient over langchaingo embedders.
type Client struct {
	opts Options

	mu        sync.Mutex
	embedders map[string]Embedder
}

// New builds a Client. Providers missing from opts fail at first use.
func New(opts Options) *Client {
	return &Client{opts: opts, embedders: map[string]Embedder{}}
}

// Register installs a pre-built embedder for a (provider, model) pair,
// bypassing the factory. Used for test doubles.
func (c *Client) Register(provider, model string, e Embedder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.embedders[embedderKey(provider, model)] = e
}

// Embed returns the dense vector for text under the given provider/model.
func (c *Client) Embed(ctx context.Context, provider, model, text string) ([]float32, error) {
	embedder, err := c.embedderFor(provider, model)
	if err != nil {
		// Configuration failures (unknown provider, bad options) cannot be
		// retried away.
		return nil, effector.Permanent(err)
	}
	vector, err := embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedclient: %s/%s: %w", provider, model, effector.ClassifyHTTPStatus(err))
	}
	return vector, nil
}

func (c *Client) embedderFor(provider, model string) (Embedder, error) {
	key := embedderKey(provider, model)
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.embedders[key]; ok {
		return e, nil
	}
	cfg := c.opts.Providers[ProviderName(provider)]
	e, err := createEmbedder(ProviderName(provider), model, cfg)
	if err != nil {
		return nil, err
	}
	c.embedders[key] = e
	return e, nil
}

func embedderKey(provider, model string) string {
	return provider + "/" + model
}

func createEmbedder(provider ProviderName, model string, cfg ProviderConfig) (Embedder, error) {
	switch provider {
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithEmbeddingModel(model)}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		if cfg.APIURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.APIURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, err
		}
		return embeddings.NewEmbedder(llm)
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(model)}
		if cfg.APIURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.APIURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, err
		}
		return embeddings.NewEmbedder(llm)
	default:
		return nil, fmt.Errorf("embedclient: unsupported provider %q", provider)
	}
}
