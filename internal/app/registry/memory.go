package registry

import (
	"context"
	"sync"
)

type memoryKey struct {
	pool   Pool
	userID int64
}

// Memory is a process-local Registry. It is only suitable for a single instance.
type Memory struct {
	mu      sync.RWMutex
	entries map[memoryKey]Entry
}

var _ Registry = (*Memory)(nil)

// NewMemory returns an empty in-process registry.
func NewMemory() *Memory {
	return &Memory{entries: make(map[memoryKey]Entry)}
}

func (m *Memory) Set(_ context.Context, pool Pool, userID int64, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[memoryKey{pool, userID}] = entry
	return nil
}

func (m *Memory) Get(_ context.Context, pool Pool, userID int64) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[memoryKey{pool, userID}]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (m *Memory) Delete(_ context.Context, pool Pool, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, memoryKey{pool, userID})
	return nil
}

func (m *Memory) DeleteOwned(_ context.Context, pool Pool, userID int64, connID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey{pool, userID}
	if entry, ok := m.entries[key]; !ok || entry.ConnID != connID {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}

func (m *Memory) SetStatus(_ context.Context, pool Pool, userID int64, connID string, status Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey{pool, userID}
	entry, ok := m.entries[key]
	if !ok || entry.ConnID != connID {
		return false, nil
	}
	entry.Status = status
	m.entries[key] = entry
	return true, nil
}
