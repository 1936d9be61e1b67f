package store

import (
	"sort"
	"sync"

	"github.com/stevemurr/flatjson/document"
)

// MemoryStore keeps snapshots in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*document.Object
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]*document.Object),
	}
}

func (m *MemoryStore) Get(name string) (*document.Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries, ok := m.snapshots[name]
	if !ok {
		return nil, nil
	}
	return entries.Clone(), nil
}

func (m *MemoryStore) Put(name string, entries *document.Object) error {
	if err := validateName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[name] = entries.Clone()
	return nil
}

func (m *MemoryStore) Delete(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[name]; !ok {
		return false, nil
	}
	delete(m.snapshots, name)
	return true, nil
}

func (m *MemoryStore) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name := range m.snapshots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
