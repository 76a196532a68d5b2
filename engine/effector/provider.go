// Package effector implements the per-node-kind dispatch logic: building an
// LLM chat prompt, invoking an embeddings/vector-db/REST provider, or
// passing data straight through a gateway. Each effector is generic over a
// small provider interface so the concrete wiring to tmc/langchaingo,
// redis/go-redis, and go-resty/resty stays outside this package.
package effector

import "context"

// ChatMessage is one turn of a chat-completion request.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest is what an LLM node asks its provider to answer.
// ResponseFormatHint, when non-nil, is the compact JSON-shape description
// (Schema.ToPromptShape) the caller should steer the model toward.
type ChatRequest struct {
	Provider           string
	Model              string
	SystemMessage      string
	UserMessage        string
	Temperature        float64
	MaxTokens          int
	ResponseFormatHint any
}

// ChatResponse is the provider's answer plus token accounting for the
// observability report.
type ChatResponse struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// ChatClient is the provider contract an LLM node effector dispatches
// through.
type ChatClient interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// EmbedClient embeds text into a dense vector for a given provider/model.
type EmbedClient interface {
	Embed(ctx context.Context, provider, model, text string) ([]float32, error)
}

// VectorQuery is an ANN search request against one collection/index.
type VectorQuery struct {
	URI                 string
	Database            string
	Collection          string
	Index               string
	VectorField         string
	Vector              []float32
	Limit               int
	SimilarityThreshold float64
}

// VectorMatch is one ranked result of a VectorStore query.
type VectorMatch struct {
	Document map[string]any
	Score    float64
}

// VectorStore performs ANN search over a vector collection.
type VectorStore interface {
	Query(ctx context.Context, q VectorQuery) ([]VectorMatch, error)
}

// HTTPRequest is an assembled REST call.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    map[string]any
}

// HTTPResponse is a REST call's result, with its body already decoded.
type HTTPResponse struct {
	StatusCode int
	Body       map[string]any
}

// HTTPDoer performs one REST call.
type HTTPDoer interface {
	Do(ctx context.Context, req HTTPRequest) (HTTPResponse, error)
}
