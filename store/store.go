// Package store holds the flat document map and the snapshot backends it can
// be saved to.
package store

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/stevemurr/flatjson/document"
)

var (
	// ErrSnapshotNotFound is returned when restoring a snapshot that does not exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrInvalidName is returned for snapshot names outside [A-Za-z0-9_.-].
	ErrInvalidName = errors.New("invalid snapshot name")
)

// Backend is the interface that all snapshot backends must implement.
// A snapshot is a named copy of a flat key/value map.
type Backend interface {
	// Get returns the entries of a snapshot, or nil if not found.
	Get(name string) (*document.Object, error)

	// Put inserts or replaces a snapshot.
	Put(name string, entries *document.Object) error

	// Delete removes a snapshot. Returns true if it existed.
	Delete(name string) (bool, error)

	// List returns the names of all snapshots, sorted.
	List() ([]string, error)
}

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-.]+$`)

func validateName(name string) error {
	if !namePattern.MatchString(name) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
