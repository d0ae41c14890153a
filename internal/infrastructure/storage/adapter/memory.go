package adapter

import (
	"context"
	"sync"

	"go-vitalchat/internal/infrastructure/storage/port"
)

// MemoryStore keeps state in process memory. It is the default for tests
// and for sessions that should not outlive the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

var _ port.Store = (*MemoryStore)(nil)

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", port.ErrMiss
	}
	return v, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Del(_ context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for _, k := range keys {
		if _, ok := m.values[k]; ok {
			delete(m.values, k)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Close() error { return nil }
