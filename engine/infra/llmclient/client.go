// Package llmclient adapts tmc/langchaingo chat models to the engine's
// ChatClient contract, so the LLM node effector, the Port Adapter, the
// intent detector, and the input mapper all dispatch through one provider
// surface. Models are built lazily per (provider, model) pair and cached
// for the client's lifetime.
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"github.com/relayforge/relayforge/engine/effector"
)

// Options configures a Client's provider wiring, keyed by provider name.
type Options struct {
	Providers map[ProviderName]ProviderConfig
}

// Client implements effector.ChatClient over langchaingo models.
type Client struct {
	opts Options

	mu     sync.Mutex
	models map[string]llms.Model
}

// New builds a Client. Providers missing from opts fail at first use, not
// at construction — a catalog that never declares an Anthropic node never
// needs an Anthropic key.
func New(opts Options) *Client {
	return &Client{opts: opts, models: map[string]llms.Model{}}
}

// Register installs a pre-built model for a (provider, model) pair,
// bypassing the factory. Used for test doubles and for backends
// constructed by the caller.
func (c *Client) Register(provider, model string, m llms.Model) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models[modelKey(provider, model)] = m
}

// Chat sends one system+user exchange and returns the model's text along
// with token accounting. When the request carries a response-format hint,
// it is appended to the system message as a JSON-shape instruction.
func (c *Client) Chat(ctx context.Context, req effector.ChatRequest) (effector.ChatResponse, error) {
	model, err := c.modelFor(req.Provider, req.Model)
	if err != nil {
		// Configuration failures (unknown provider, bad options) cannot be
		// retried away.
		return effector.ChatResponse{}, effector.Permanent(err)
	}

	systemMessage := req.SystemMessage
	if req.ResponseFormatHint != nil {
		systemMessage = appendFormatInstruction(systemMessage, req.ResponseFormatHint)
	}

	var messages []llms.MessageContent
	if systemMessage != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemMessage))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.UserMessage))

	callOpts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return effector.ChatResponse{}, fmt.Errorf("llmclient: %s/%s: %w",
			req.Provider, req.Model, effector.ClassifyHTTPStatus(err))
	}
	if len(resp.Choices) == 0 {
		return effector.ChatResponse{}, fmt.Errorf("llmclient: %s/%s returned no choices", req.Provider, req.Model)
	}
	choice := resp.Choices[0]

	prompt, completion := tokensFromGenerationInfo(choice.GenerationInfo)
	if prompt == 0 && completion == 0 {
		// Backend reported no usage (ollama, some proxies): estimate with
		// tiktoken so the observability report still carries counts.
		prompt = countTokens(req.Model, systemMessage) + countTokens(req.Model, req.UserMessage)
		completion = countTokens(req.Model, choice.Content)
	}

	return effector.ChatResponse{
		Text:             choice.Content,
		PromptTokens:     prompt,
		CompletionTokens: completion,
	}, nil
}

func (c *Client) modelFor(provider, model string) (llms.Model, error) {
	key := modelKey(provider, model)
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.models[key]; ok {
		return m, nil
	}
	cfg := c.opts.Providers[ProviderName(provider)]
	m, err := createModel(ProviderName(provider), model, cfg)
	if err != nil {
		return nil, err
	}
	c.models[key] = m
	return m, nil
}

func modelKey(provider, model string) string {
	return provider + "/" + model
}

// appendFormatInstruction renders the hint as compact JSON and appends the
// response-format instruction to the system message.
func appendFormatInstruction(systemMessage string, hint any) string {
	shape, err := json.Marshal(hint)
	if err != nil {
		return systemMessage
	}
	instruction := fmt.Sprintf(
		"Respond with only a JSON value matching this shape, no prose and no code fences: %s", shape)
	if systemMessage == "" {
		return instruction
	}
	return systemMessage + "\n\n" + instruction
}

// tokensFromGenerationInfo reads the usage counts langchaingo backends
// attach to a choice. Key casing varies per backend; ints may arrive as
// int or float64 depending on the decoding path.
func tokensFromGenerationInfo(info map[string]any) (prompt, completion int) {
	if info == nil {
		return 0, 0
	}
	read := func(keys ...string) int {
		for _, k := range keys {
			switch v := info[k].(type) {
			case int:
				return v
			case float64:
				return int(v)
			}
		}
		return 0
	}
	prompt = read("PromptTokens", "prompt_tokens", "input_tokens")
	completion = read("CompletionTokens", "completion_tokens", "output_tokens")
	return prompt, completion
}
