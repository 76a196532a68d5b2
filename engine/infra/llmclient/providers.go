package llmclient

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ProviderName identifies a chat-completion backend.
type ProviderName string

const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderGroq      ProviderName = "groq"
	ProviderOllama    ProviderName = "ollama"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// ProviderConfig carries one provider's connection settings: API key and,
// where the backend supports it, a base/server URL override.
type ProviderConfig struct {
	APIKey string
	APIURL string
}

// createModel builds the langchaingo model for one (provider, model) pair.
func createModel(provider ProviderName, model string, cfg ProviderConfig) (llms.Model, error) {
	switch provider {
	case ProviderOpenAI:
		return createOpenAI(model, cfg)
	case ProviderAnthropic:
		return createAnthropic(model, cfg)
	case ProviderGroq:
		if cfg.APIURL == "" {
			cfg.APIURL = groqBaseURL
		}
		return createOpenAI(model, cfg)
	case ProviderOllama:
		return createOllama(model, cfg)
	default:
		return nil, fmt.Errorf("llmclient: unsupported provider %q", provider)
	}
}

func createOpenAI(model string, cfg ProviderConfig) (llms.Model, error) {
	opts := []openai.Option{openai.WithModel(model)}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.APIURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.APIURL))
	}
	return openai.New(opts...)
}

func createAnthropic(model string, cfg ProviderConfig) (llms.Model, error) {
	opts := []anthropic.Option{anthropic.WithModel(model)}
	if cfg.APIKey != "" {
		opts = append(opts, anthropic.WithToken(cfg.APIKey))
	}
	return anthropic.New(opts...)
}

func createOllama(model string, cfg ProviderConfig) (llms.Model, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if cfg.APIURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.APIURL))
	}
	return ollama.New(opts...)
}
