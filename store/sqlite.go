package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers "sqlite3"
	_ "modernc.org/sqlite"          // registers "sqlite"

	"github.com/stevemurr/flatjson/document"
)

const (
	// DriverCgo is the database/sql driver name of github.com/mattn/go-sqlite3.
	DriverCgo = "sqlite3"
	// DriverPureGo is the database/sql driver name of modernc.org/sqlite.
	DriverPureGo = "sqlite"
)

// SqliteStore stores all snapshots in a single SQLite database, one row per
// flat entry.
//
// Tables:
//
//	snapshots(name, updated_at)                   PRIMARY KEY (name)
//	snapshot_entries(name, position, key, value)  PRIMARY KEY (name, key)
//
// value holds the entry's JSON encoding; position keeps insertion order.
type SqliteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// NewSqliteStore opens dbPath with the cgo driver.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	return OpenSqliteStore(DriverCgo, dbPath)
}

// NewPureGoSqliteStore opens dbPath with the pure Go driver.
func NewPureGoSqliteStore(dbPath string) (*SqliteStore, error) {
	return OpenSqliteStore(DriverPureGo, dbPath)
}

// OpenSqliteStore opens dbPath with the named database/sql driver.
func OpenSqliteStore(driver, dbPath string) (*SqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open %s %q: %w", driver, dbPath, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		name TEXT PRIMARY KEY,
		updated_at TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshot_entries (
		name TEXT NOT NULL,
		position INTEGER NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (name, key)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) Get(name string) (*document.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var updatedAt string
	err := s.db.QueryRow("SELECT updated_at FROM snapshots WHERE name = ?", name).Scan(&updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		"SELECT key, value FROM snapshot_entries WHERE name = ? ORDER BY position",
		name,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := document.NewObject()
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		v, err := document.ParseJSON([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("snapshot %q key %q: %w", name, key, err)
		}
		entries.Set(key, v)
	}
	return entries, rows.Err()
}

func (s *SqliteStore) Put(name string, entries *document.Object) error {
	if err := validateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM snapshot_entries WHERE name = ?", name); err != nil {
		return err
	}
	stmt, err := tx.Prepare(
		"INSERT INTO snapshot_entries (name, position, key, value) VALUES (?, ?, ?, ?)",
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	pos := 0
	entries.Range(func(key string, v document.Value) bool {
		var b []byte
		if b, err = v.MarshalJSON(); err != nil {
			err = fmt.Errorf("key %q: %w", key, err)
			return false
		}
		if _, err = stmt.Exec(name, pos, key, string(b)); err != nil {
			return false
		}
		pos++
		return true
	})
	if err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO snapshots (name, updated_at) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET updated_at = excluded.updated_at`,
		name, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) Delete(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM snapshot_entries WHERE name = ?", name); err != nil {
		return false, err
	}
	res, err := s.db.Exec("DELETE FROM snapshots WHERE name = ?", name)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SqliteStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query("SELECT name FROM snapshots ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
