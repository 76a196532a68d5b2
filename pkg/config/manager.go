package config

import (
	"context"
	"sync/atomic"
)

// Manager owns the process's current Config behind an atomic pointer so
// concurrent readers never race with a reload.
type Manager struct {
	*Service
	current atomic.Pointer[Config]
}

// NewManager builds a Manager around service, or a fresh Service if nil.
func NewManager(service *Service) *Manager {
	if service == nil {
		service = NewService()
	}
	return &Manager{Service: service}
}

// Load resolves providers into a Config and stores it as current.
func (m *Manager) Load(_ context.Context, providers ...Provider) (*Config, error) {
	cfg, err := m.Service.Load(providers...)
	if err != nil {
		return nil, err
	}
	m.current.Store(cfg)
	return cfg, nil
}

// Get returns the most recently loaded Config, or nil before the first Load.
func (m *Manager) Get() *Config {
	return m.current.Load()
}

// Close releases any resources held by watched providers. No provider in
// this engine currently watches, so this is a no-op kept for symmetry
// with the Load/Get lifecycle.
func (m *Manager) Close(context.Context) error {
	return nil
}
