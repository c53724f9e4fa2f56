package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps artifacts in process memory. RWMutex lets concurrent
// readers (static downloads) proceed while uploads take the write lock.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[Namespace]map[string][]byte
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{objects: make(map[Namespace]map[string][]byte)}
	for _, ns := range Namespaces {
		m.objects[ns] = make(map[string][]byte)
	}
	return m
}

// Save stores a copy of data. Artifacts are write-once.
func (m *MemoryStore) Save(_ context.Context, ns Namespace, name string, data []byte) error {
	if err := Validate(ns, name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[ns][name]; ok {
		return ErrExists
	}
	m.objects[ns][name] = append([]byte(nil), data...)
	return nil
}

// Read returns a copy so callers cannot mutate stored bytes.
func (m *MemoryStore) Read(_ context.Context, ns Namespace, name string) ([]byte, error) {
	if err := Validate(ns, name); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[ns][name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Delete removes an artifact.
func (m *MemoryStore) Delete(_ context.Context, ns Namespace, name string) error {
	if err := Validate(ns, name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[ns][name]; !ok {
		return ErrNotFound
	}
	delete(m.objects[ns], name)
	return nil
}

// Len returns the number of artifacts held in ns.
func (m *MemoryStore) Len(ns Namespace) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects[ns])
}
