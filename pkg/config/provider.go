package config

import (
	"context"

	"github.com/joho/godotenv"
)

// Source names a configuration provider for diagnostics.
type Source string

const (
	SourceDefault Source = "default"
	SourceDotEnv  Source = "dotenv"
	SourceEnv     Source = "env"
)

// Provider contributes one layer of configuration. Load returns a nested
// map keyed the same way as Config's koanf tags; Watch lets a provider
// signal hot-reload (most providers are static and return nil).
type Provider interface {
	Load() (map[string]any, error)
	Type() Source
	Watch(ctx context.Context, onChange func()) error
}

type defaultProvider struct{}

// NewDefaultProvider is a marker provider for Source diagnostics: the
// struct-literal baseline itself is always loaded first by
// Service.Load, independent of the provider list, so this contributes
// no additional data.
func NewDefaultProvider() Provider { return defaultProvider{} }

func (defaultProvider) Load() (map[string]any, error)       { return map[string]any{}, nil }
func (defaultProvider) Type() Source                        { return SourceDefault }
func (defaultProvider) Watch(context.Context, func()) error { return nil }

type dotEnvProvider struct {
	path string
}

// NewDotEnvProvider reads key=value pairs from a .env-style file at path
// into the process environment; the env provider layer picks them up.
// A missing file is not an error — .env is optional in every environment.
func NewDotEnvProvider(path string) Provider { return dotEnvProvider{path: path} }

func (p dotEnvProvider) Load() (map[string]any, error) {
	if err := godotenv.Load(p.path); err != nil {
		return map[string]any{}, nil
	}
	return map[string]any{}, nil
}

func (dotEnvProvider) Type() Source                        { return SourceDotEnv }
func (dotEnvProvider) Watch(context.Context, func()) error { return nil }

type envProvider struct{}

// NewEnvProvider reads RELAYFORGE_-prefixed environment variables; actual
// reading is delegated to koanf's env provider inside Service.Load, so
// Load here returns an empty map (mirrors the teacher's own EnvProvider).
func NewEnvProvider() Provider { return envProvider{} }

func (envProvider) Load() (map[string]any, error)       { return map[string]any{}, nil }
func (envProvider) Type() Source                        { return SourceEnv }
func (envProvider) Watch(context.Context, func()) error { return nil }
