package config

import (
	"errors"
	"fmt"
	"strings"

	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces every environment variable the engine reads.
const envPrefix = "RELAYFORGE_"

// configDefaults is the struct-literal baseline read through the structs
// provider; Observability is left at its zero value here and dropped from
// the baseline by Service.Load, since its default depends on Server.Env.
var configDefaults = Config{
	Server: ServerConfig{Port: 8080, Env: "development"},
	LLM: LLMConfig{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		Temperature: 0.2,
		MaxTokens:   1024,
	},
	Embeddings: EmbeddingsConfig{Provider: "openai", Model: "text-embedding-3-small"},
	VectorDB:   VectorDBConfig{URI: "redis://localhost:6379"},
	Router:     RouterConfig{ConfidenceThreshold: 0.4, Temperature: 1.0},
}

// mapProvider adapts a plain map to koanf.Provider, mirroring the
// confmap provider's Read-only shape without adding another dependency.
type mapProvider map[string]any

func (mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("config: mapProvider does not support ReadBytes")
}

func (m mapProvider) Read() (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

// Service owns the koanf instance and knows how to fold a set of
// Providers into a resolved Config.
type Service struct {
	k *koanf.Koanf
}

// NewService builds an empty Service.
func NewService() *Service {
	return &Service{k: koanf.New(".")}
}

// Load layers providers, in order, on top of the struct defaults and
// unmarshals the result into a Config. Later providers win on conflict.
//
// Observability's default is env-dependent: it is computed from the
// resolved server.env after every provider has merged, unless a provider
// set observability.enabled_by_default explicitly.
func (s *Service) Load(providers ...Provider) (*Config, error) {
	if err := s.k.Load(structs.Provider(configDefaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: failed to load defaults: %w", err)
	}
	s.k.Delete("observability")
	for _, p := range providers {
		if err := s.loadOne(p); err != nil {
			return nil, err
		}
	}
	if !s.k.Exists("observability.enabled_by_default") {
		computed := mapProvider{
			"observability": map[string]any{
				"enabled_by_default": s.k.String("server.env") != "production",
			},
		}
		if err := s.k.Load(computed, nil); err != nil {
			return nil, fmt.Errorf("config: failed to compute observability default: %w", err)
		}
	}
	cfg := &Config{}
	if err := s.k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Service) loadOne(p Provider) error {
	if p.Type() == SourceEnv {
		if err := s.k.Load(env.Provider(".", env.Opt{Prefix: envPrefix, TransformFunc: envTransform}), nil); err != nil {
			return fmt.Errorf("config: failed to load environment: %w", err)
		}
		return nil
	}
	data, err := p.Load()
	if err != nil {
		return fmt.Errorf("config: provider %s failed: %w", p.Type(), err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := s.k.Load(mapProvider(data), nil); err != nil {
		return fmt.Errorf("config: provider %s failed to merge: %w", p.Type(), err)
	}
	return nil
}

// envTransform maps RELAYFORGE_LLM__API_KEY -> llm.api_key: "__" delimits
// nesting levels (matching Config's koanf struct tags), a single "_"
// stays part of a field name.
func envTransform(key string, value string) (string, any) {
	trimmed := strings.TrimPrefix(key, envPrefix)
	segments := strings.Split(trimmed, "__")
	for i, seg := range segments {
		segments[i] = strings.ToLower(seg)
	}
	return strings.Join(segments, "."), value
}
