// Package config loads the engine's environment configuration: provider
// names, API keys, temperatures, per-service model names, the default
// port, and the observability default — layered defaults -> .env ->
// process environment, following the manager/service/provider split.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config is the engine's resolved runtime configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"        validate:"required"`
	LLM           LLMConfig           `koanf:"llm"           validate:"required"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"    validate:"required"`
	VectorDB      VectorDBConfig      `koanf:"vectordb"`
	Observability ObservabilityConfig `koanf:"observability"`
	Router        RouterConfig        `koanf:"router"        validate:"required"`
	Executor      ExecutorConfig      `koanf:"executor"`
}

// ServerConfig is the cmd/orchestrator HTTP listener configuration.
type ServerConfig struct {
	Port int    `koanf:"port" validate:"gt=0,lte=65535"`
	Env  string `koanf:"env"  validate:"oneof=development production"`
}

// LLMConfig carries the chat-completion provider's default wiring.
type LLMConfig struct {
	Provider    string  `koanf:"provider"    validate:"required"`
	Model       string  `koanf:"model"       validate:"required"`
	APIKey      string  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `koanf:"max_tokens"  validate:"gte=0"`
}

// EmbeddingsConfig carries the embedding provider's default wiring.
type EmbeddingsConfig struct {
	Provider string `koanf:"provider" validate:"required"`
	Model    string `koanf:"model"    validate:"required"`
	APIKey   string `koanf:"api_key"`
}

// VectorDBConfig carries the default vector-store connection.
type VectorDBConfig struct {
	URI string `koanf:"uri"`
}

// ObservabilityConfig toggles WorkflowObservabilityReport emission. It
// defaults on in development and off in production, per the engine's
// configuration contract, unless the caller explicitly requests it.
type ObservabilityConfig struct {
	EnabledByDefault bool `koanf:"enabled_by_default"`
}

// ExecutorConfig overrides the scheduler's per-kind effector timeouts.
// Values are human-readable durations ("45s", "2 minutes"); empty keeps
// the engine default for that kind. Parsing happens at wiring time so a
// typo fails startup, not a run.
type ExecutorConfig struct {
	LLMTimeout      string `koanf:"llm_timeout"`
	RESTTimeout     string `koanf:"rest_timeout"`
	VectorDBTimeout string `koanf:"vectordb_timeout"`
}

// RouterConfig carries the intent detector/router's tunables.
type RouterConfig struct {
	ConfidenceThreshold float64 `koanf:"confidence_threshold" validate:"gte=0,lte=1"`
	Temperature         float64 `koanf:"temperature"          validate:"gte=0"`
}

// Validate checks the resolved configuration against its declared
// constraints. Called by Service.Load after every layer has merged, so an
// out-of-range value is caught at startup rather than at first use.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: invalid configuration: %w", err)
	}
	return nil
}
