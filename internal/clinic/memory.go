package clinic

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Directory reads and writes clinic configurations.
type Directory interface {
	Get(ctx context.Context, clinicID string) (*Config, error)
	Set(ctx context.Context, cfg *Config) error
}

var (
	_ Directory = (*Store)(nil)
	_ Directory = (*MemoryStore)(nil)
	_ Resolver  = (*MemoryStore)(nil)
)

// MemoryStore keeps configurations in process for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[string][]byte
	numbers map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{configs: make(map[string][]byte), numbers: make(map[string]string)}
}

// Get returns a copy of the stored config, or the defaults when unknown.
func (m *MemoryStore) Get(_ context.Context, clinicID string) (*Config, error) {
	m.mu.RLock()
	data, ok := m.configs[clinicID]
	m.mu.RUnlock()
	if !ok {
		return DefaultConfig(clinicID), nil
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal config: %w", err)
	}
	return &cfg, nil
}

func (m *MemoryStore) Set(_ context.Context, cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("clinic: marshal config: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.ID] = data
	for _, number := range cfg.Numbers {
		if key := NumberKey(number); key != "" {
			m.numbers[key] = cfg.ID
		}
	}
	return nil
}

func (m *MemoryStore) ResolveClinicID(_ context.Context, number string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.numbers[NumberKey(number)]; ok && id != "" {
		return id, nil
	}
	return "", ErrClinicNotFound
}
