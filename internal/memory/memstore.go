package memory

import (
	"context"
	"errors"
	"sync"
	"time"
)

var _ Store = (*MemStore)(nil)

// MemStore keeps memories in process.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string][]Entry)}
}

func (m *MemStore) Add(_ context.Context, e Entry) error {
	if e.Namespace == "" {
		return errors.New("memory: namespace is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Namespace] = append(m.entries[e.Namespace], e)
	return nil
}

func (m *MemStore) Search(_ context.Context, namespace, query string, limit int) ([]Hit, error) {
	m.mu.RLock()
	entries := append([]Entry(nil), m.entries[namespace]...)
	m.mu.RUnlock()
	return rank(entries, query, limit), nil
}

// Len returns the number of entries in namespace.
func (m *MemStore) Len(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries[namespace])
}

func (m *MemStore) Close() error { return nil }
