// Package flat converts between nested documents and flat maps whose keys
// are dot-joined paths.
//
// A literal '.' inside a key is escaped as `\.` so it cannot be mistaken for a
// path separator:
//
//	{"test": {"tester.makeup": {"makeup": 10}}}
//
// flattens to
//
//	{"test.tester\.makeup.makeup": 10}
//
// Keys that already contain `\.` or end with a backslash do not survive a
// round trip; callers must avoid that sequence in raw keys.
package flat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stevemurr/flatjson/document"
)

// ErrInvalidInput is returned when the root handed to Flatten or Unflatten is
// not an object.
var ErrInvalidInput = errors.New("input must be a non-null object")

const (
	separator = "."
	escaped   = `\.`
)

// Escape escapes every '.' in a single key segment.
func Escape(segment string) string {
	return strings.ReplaceAll(segment, separator, escaped)
}

// Unescape reverses Escape.
func Unescape(segment string) string {
	return strings.ReplaceAll(segment, escaped, separator)
}

// Join escapes each segment and joins them into a flat key.
func Join(segments ...string) string {
	parts := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = Escape(s)
	}
	return strings.Join(parts, separator)
}

// Split breaks a flat key at every '.' not preceded by a backslash and
// unescapes the resulting segments.
func Split(key string) []string {
	var segments []string
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] != '.' || (i > 0 && key[i-1] == '\\') {
			continue
		}
		segments = append(segments, Unescape(key[start:i]))
		start = i + 1
	}
	return append(segments, Unescape(key[start:]))
}

// Flatten walks doc and returns its leaves keyed by escaped dot paths.
// Objects are descended into; scalars, nulls and arrays are leaves. An empty
// nested object contributes no entry.
func Flatten(doc document.Value) (*document.Object, error) {
	return FlattenPrefix(doc, "")
}

// FlattenPrefix is Flatten with every key rooted at prefix. The prefix is used
// as given, without escaping.
func FlattenPrefix(doc document.Value, prefix string) (*document.Object, error) {
	if !doc.IsObject() {
		return nil, fmt.Errorf("flatten %s: %w", doc.Kind(), ErrInvalidInput)
	}
	out := document.NewObject()
	flatten(out, doc.Object(), prefix)
	return out, nil
}

func flatten(out *document.Object, node *document.Object, prefix string) {
	node.Range(func(key string, v document.Value) bool {
		path := Escape(key)
		if prefix != "" {
			path = prefix + separator + path
		}
		if v.IsObject() {
			flatten(out, v.Object(), path)
		} else {
			out.Set(path, v)
		}
		return true
	})
}

// Unflatten rebuilds a nested document from a flat map held in v.
func Unflatten(v document.Value) (document.Value, error) {
	if !v.IsObject() {
		return document.Value{}, fmt.Errorf("unflatten %s: %w", v.Kind(), ErrInvalidInput)
	}
	return UnflattenObject(v.Object())
}

// UnflattenObject rebuilds a nested document from entries. When a path runs
// through a key that already holds a non-object value, that value is replaced
// by a fresh object: the later key wins.
func UnflattenObject(entries *document.Object) (document.Value, error) {
	if entries == nil {
		return document.Value{}, fmt.Errorf("unflatten nil object: %w", ErrInvalidInput)
	}
	root := document.NewObject()
	entries.Range(func(key string, v document.Value) bool {
		segments := Split(key)
		cur := root
		for _, seg := range segments[:len(segments)-1] {
			next, ok := cur.Get(seg)
			if !ok || !next.IsObject() {
				next = document.ObjectValue(document.NewObject())
				cur.Set(seg, next)
			}
			cur = next.Object()
		}
		cur.Set(segments[len(segments)-1], v)
		return true
	})
	return document.ObjectValue(root), nil
}
