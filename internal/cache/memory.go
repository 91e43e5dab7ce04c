package cache

import (
	"context"
	"sync"
)

// Memory is a process-local Backend.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory constructs an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[key]
	if !ok {
		return Entry{}, ErrMiss
	}
	entry.Payload = append([]byte(nil), entry.Payload...)
	return entry, nil
}

func (m *Memory) Set(_ context.Context, entry Entry) error {
	entry.Payload = append([]byte(nil), entry.Payload...)
	m.mu.Lock()
	m.entries[entry.Key] = entry
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

var _ Backend = (*Memory)(nil)
