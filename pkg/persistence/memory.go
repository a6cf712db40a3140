package persistence

import (
	"context"
	"sync"
)

// MemoryBackend 内存实现（测试 / 临时演示）
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryBackend 创建内存存储
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string][]byte)}
}

// NewMemoryStore 创建基于内存的 Store
func NewMemoryStore() Store {
	return NewStore("memory", NewMemoryBackend())
}

func (m *MemoryBackend) GetBytes(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.items[key]
	if !ok {
		return nil, ErrNotExists
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (m *MemoryBackend) SetBytes(_ context.Context, key string, val []byte) error {
	b := make([]byte, len(val))
	copy(b, val)
	m.mu.Lock()
	m.items[key] = b
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) DeleteKey(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
