package store

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/stevemurr/flatjson/document"
	"github.com/stevemurr/flatjson/flat"
	"github.com/stevemurr/flatjson/match"
	"github.com/stevemurr/flatjson/search"
)

// Manager owns a flat key/value map built from nested documents and answers
// searches over it.
//
// The mutex keeps concurrent callers from corrupting the map; it does not
// make sequences of calls atomic. The lock flag is advisory: callers that
// want to serialize writers check it themselves, writes are never refused.
type Manager struct {
	mu     sync.RWMutex
	data   *document.Object
	locked bool
	engine *search.Engine
	logger *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used by the manager and its search engine.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager returns an empty Manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		data:   document.NewObject(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.engine = search.New(search.WithLogger(m.logger))
	return m
}

// Init replaces every entry with the flattened form of doc.
func (m *Manager) Init(doc document.Value) error {
	entries, err := flat.Flatten(doc.Clone())
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = entries
	return nil
}

// Update flattens doc and merges it into the map, overwriting existing keys.
func (m *Manager) Update(doc document.Value) error {
	entries, err := flat.Flatten(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Merge(entries)
	return nil
}

// Load merges already flat entries verbatim.
func (m *Manager) Load(entries *document.Object) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Merge(entries)
}

// Write stores value under key.
func (m *Manager) Write(key string, value document.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Set(key, value.Clone())
}

// Get returns the value stored under key.
func (m *Manager) Get(key string) (document.Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data.Get(key)
	if !ok {
		return document.Value{}, false
	}
	return v.Clone(), true
}

// HasKey reports whether key is present. A stored null, false, 0 or empty
// string still counts as present.
func (m *Manager) HasKey(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Has(key)
}

// Read returns the value under key. A missing key is created with a null
// value when createKey is set; otherwise ok is false.
func (m *Manager) Read(key string, createKey bool) (document.Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data.Get(key); ok {
		return v.Clone(), true
	}
	if !createKey {
		return document.Value{}, false
	}
	m.data.Set(key, document.Null())
	return document.Null(), true
}

// Delete removes key and reports whether it existed.
func (m *Manager) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.Delete(key)
}

// DeleteKeys removes every listed key and returns the ones that existed.
func (m *Manager) DeleteKeys(keys ...string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := []string{}
	for _, k := range keys {
		if m.data.Delete(k) {
			deleted = append(deleted, k)
		}
	}
	return deleted
}

// Len returns the number of entries.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Len()
}

// Dump returns a deep copy of the flat map.
func (m *Manager) Dump() *document.Object {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Clone()
}

// Document returns the map rebuilt as a nested document.
func (m *Manager) Document() (document.Value, error) {
	return flat.UnflattenObject(m.Dump())
}

// SearchKeys returns the entries whose key satisfies c.
func (m *Manager) SearchKeys(c match.Criteria, opts match.Options) []search.Result {
	return m.DumpKeys(c, opts, search.TargetKeys)
}

// SearchValues returns the entries whose value satisfies c.
func (m *Manager) SearchValues(c match.Criteria, opts match.Options) []search.Result {
	return m.DumpKeys(c, opts, search.TargetValues)
}

// SearchKeyValues returns the entries whose key or value satisfies c.
func (m *Manager) SearchKeyValues(c match.Criteria, opts match.Options) []search.Result {
	return m.DumpKeys(c, opts, search.TargetKeyValues)
}

// DumpKeys runs a search against target. Result values are copies.
func (m *Manager) DumpKeys(c match.Criteria, opts match.Options, target search.Target) []search.Result {
	m.mu.RLock()
	results := m.engine.Search(m.data, target, c, opts)
	for i := range results {
		results[i].Value = results[i].Value.Clone()
	}
	m.mu.RUnlock()
	return results
}

// Locked reports the advisory lock flag.
func (m *Manager) Locked() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.locked
}

// SetLock sets the advisory lock flag.
func (m *Manager) SetLock(locked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = locked
}

// DropLock clears the advisory lock flag.
func (m *Manager) DropLock() {
	m.SetLock(false)
}

// Persist saves a copy of the map to b under name.
func (m *Manager) Persist(b Backend, name string) error {
	entries := m.Dump()
	if err := b.Put(name, entries); err != nil {
		return fmt.Errorf("persist snapshot %q: %w", name, err)
	}
	m.logger.Info("snapshot saved", slog.String("snapshot", name), slog.Int("entries", entries.Len()))
	return nil
}

// Restore replaces the map with the snapshot saved under name.
func (m *Manager) Restore(b Backend, name string) error {
	entries, err := b.Get(name)
	if err != nil {
		return fmt.Errorf("restore snapshot %q: %w", name, err)
	}
	if entries == nil {
		return fmt.Errorf("restore snapshot %q: %w", name, ErrSnapshotNotFound)
	}
	m.mu.Lock()
	m.data = entries
	m.mu.Unlock()
	m.logger.Info("snapshot restored", slog.String("snapshot", name), slog.Int("entries", entries.Len()))
	return nil
}
