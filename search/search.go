// Package search runs match criteria over a flat key/value source.
//
// Keys tests only the key of each entry, Values only the value (any element
// of an array value is enough) and KeyValues either side. Results come back
// in the source's iteration order. A criterion that does not compile is
// logged and treated as matching nothing; searches never fail.
package search

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/stevemurr/flatjson/document"
	"github.com/stevemurr/flatjson/match"
)

// Source is a read-only view over flat entries.
type Source interface {
	Range(fn func(key string, value document.Value) bool)
}

// Result is a single matching entry.
type Result struct {
	Key   string         `json:"key"`
	Value document.Value `json:"value"`
}

// Target selects which side of an entry is tested.
type Target int

const (
	TargetKeys Target = iota
	TargetValues
	TargetKeyValues
)

func (t Target) String() string {
	switch t {
	case TargetKeys:
		return "keys"
	case TargetValues:
		return "values"
	case TargetKeyValues:
		return "keyvalues"
	default:
		return fmt.Sprintf("target(%d)", int(t))
	}
}

// ParseTarget accepts "search", "keys", "value", "values", "keyvalue" and
// "keyvalues". The empty string means keys.
func ParseTarget(s string) (Target, error) {
	switch s {
	case "", "search", "key", "keys":
		return TargetKeys, nil
	case "value", "values":
		return TargetValues, nil
	case "keyvalue", "keyvalues":
		return TargetKeyValues, nil
	}
	return 0, fmt.Errorf("unknown search target: %q", s)
}

// MarshalJSON writes the target name.
func (t Target) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts any name ParseTarget does.
func (t *Target) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTarget(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for diagnostics such as invalid patterns.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine runs searches. It holds no per-query state and is safe for
// concurrent use as long as the sources are.
type Engine struct {
	logger *slog.Logger
}

// New returns an Engine. Without WithLogger diagnostics are discarded.
func New(opts ...Option) *Engine {
	e := &Engine{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Keys returns the entries whose key satisfies c.
func (e *Engine) Keys(src Source, c match.Criteria, opts match.Options) []Result {
	return e.Search(src, TargetKeys, c, opts)
}

// Values returns the entries whose value, or any element of an array value,
// satisfies c.
func (e *Engine) Values(src Source, c match.Criteria, opts match.Options) []Result {
	return e.Search(src, TargetValues, c, opts)
}

// KeyValues returns the entries whose key or value satisfies c.
func (e *Engine) KeyValues(src Source, c match.Criteria, opts match.Options) []Result {
	return e.Search(src, TargetKeyValues, c, opts)
}

// Search dispatches on target. Set criteria ignore opts.
func (e *Engine) Search(src Source, target Target, c match.Criteria, opts match.Options) []Result {
	results := []Result{}
	mode := opts.Mode()
	m, err := match.Compile(c, mode)
	if err != nil {
		e.logger.Warn("search criterion matches nothing",
			slog.String("target", target.String()),
			slog.String("mode", mode.String()),
			slog.String("criteria", c.String()),
			slog.Any("error", err),
		)
		return results
	}
	src.Range(func(key string, value document.Value) bool {
		var hit bool
		switch target {
		case TargetKeys:
			hit = m.Key(key)
		case TargetValues:
			hit = m.Value(value)
		default:
			hit = m.Key(key) || m.Value(value)
		}
		if hit {
			results = append(results, Result{Key: key, Value: value})
		}
		return true
	})
	return results
}

var defaultEngine = New()

// Keys runs Engine.Keys on an engine that discards diagnostics.
func Keys(src Source, c match.Criteria, opts match.Options) []Result {
	return defaultEngine.Keys(src, c, opts)
}

// Values runs Engine.Values on an engine that discards diagnostics.
func Values(src Source, c match.Criteria, opts match.Options) []Result {
	return defaultEngine.Values(src, c, opts)
}

// KeyValues runs Engine.KeyValues on an engine that discards diagnostics.
func KeyValues(src Source, c match.Criteria, opts match.Options) []Result {
	return defaultEngine.KeyValues(src, c, opts)
}
