package store

import (
	"fmt"
	"path/filepath"
)

// New creates a snapshot Backend based on the backend name.
//
// Supported backends:
//
//	"json"      - one JSON file per snapshot in dataDir (default)
//	"sqlite"    - SQLite database at dataDir/flatjson.db (cgo driver)
//	"sqlite-go" - SQLite database at dataDir/flatjson.db (pure Go driver)
//	"memory"    - In-memory (ephemeral, for testing)
func New(backend, dataDir string) (Backend, error) {
	switch backend {
	case "json", "":
		return NewJsonFileStore(dataDir)
	case "sqlite":
		return NewSqliteStore(filepath.Join(dataDir, "flatjson.db"))
	case "sqlite-go":
		return NewPureGoSqliteStore(filepath.Join(dataDir, "flatjson.db"))
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: json, sqlite, sqlite-go, memory)", backend)
	}
}
