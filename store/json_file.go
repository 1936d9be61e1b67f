package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/stevemurr/flatjson/document"
)

// JsonFileStore stores each snapshot as a separate JSON file on disk.
// Files hold the flat entries as one object, keys in insertion order, so a
// snapshot reads back exactly as it was written.
//
// Layout:
//
//	data_dir/
//	  default.json    # "default" snapshot
//	  users.json      # "users" snapshot
type JsonFileStore struct {
	mu  sync.RWMutex
	dir string
}

func NewJsonFileStore(dir string) (*JsonFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &JsonFileStore{dir: abs}, nil
}

// snapshotPath resolves name inside the data directory.
func (s *JsonFileStore) snapshotPath(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, name+".json")
	if filepath.Dir(path) != s.dir {
		return "", fmt.Errorf("%w: %q escapes data directory", ErrInvalidName, name)
	}
	return path, nil
}

func (s *JsonFileStore) loadFile(path string) (*document.Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	v, err := document.ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if !v.IsObject() {
		return nil, fmt.Errorf("parse %s: snapshot holds %s, want object", filepath.Base(path), v.Kind())
	}
	return v.Object(), nil
}

func (s *JsonFileStore) saveFile(path string, entries *document.Object) error {
	raw, err := entries.MarshalJSON()
	if err != nil {
		return err
	}
	var b bytes.Buffer
	if err := json.Indent(&b, raw, "", "  "); err != nil {
		return err
	}
	b.WriteByte('\n')
	return os.WriteFile(path, b.Bytes(), 0o644)
}

func (s *JsonFileStore) Get(name string) (*document.Object, error) {
	path, err := s.snapshotPath(name)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadFile(path)
}

func (s *JsonFileStore) Put(name string, entries *document.Object) error {
	path, err := s.snapshotPath(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveFile(path, entries)
}

func (s *JsonFileStore) Delete(name string) (bool, error) {
	path, err := s.snapshotPath(name)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *JsonFileStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(names)
	return names, nil
}
