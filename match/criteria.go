package match

import (
	"errors"
	"regexp"
	"strings"

	"github.com/stevemurr/flatjson/document"
)

var errNilPattern = errors.New("nil pattern")

type criteriaKind int

const (
	kindTerm criteriaKind = iota
	kindPattern
	kindSet
)

// Criteria is the input of a search: a single term, a compiled pattern or a
// set of values. The zero Criteria is the term null.
type Criteria struct {
	kind    criteriaKind
	term    document.Value
	pattern *regexp.Regexp
	set     []document.Value
}

// Term builds a single-term criterion. An array term becomes a set, the same
// as AnyOf over its elements.
func Term(v document.Value) Criteria {
	if v.IsArray() {
		return AnyOf(v.Elements()...)
	}
	return Criteria{kind: kindTerm, term: v}
}

// Pattern builds a criterion from a compiled regular expression. It is applied
// as a pattern whatever the mode.
func Pattern(re *regexp.Regexp) Criteria {
	return Criteria{kind: kindPattern, pattern: re}
}

// AnyOf builds a set criterion. Sets always test exact membership; the like
// and regex flags are ignored.
func AnyOf(vs ...document.Value) Criteria {
	set := make([]document.Value, len(vs))
	copy(set, vs)
	return Criteria{kind: kindSet, set: set}
}

// AnyOfStrings is AnyOf over string values.
func AnyOfStrings(ss ...string) Criteria {
	set := make([]document.Value, len(ss))
	for i, s := range ss {
		set[i] = document.String(s)
	}
	return Criteria{kind: kindSet, set: set}
}

// IsSet reports whether c tests set membership.
func (c Criteria) IsSet() bool { return c.kind == kindSet }

func (c Criteria) String() string {
	switch c.kind {
	case kindPattern:
		if c.pattern == nil {
			return "//"
		}
		return "/" + c.pattern.String() + "/"
	case kindSet:
		return document.Array(c.set...).String()
	}
	return c.term.String()
}

// Matcher is a criterion prepared for repeated use over many entries.
type Matcher struct {
	kind   criteriaKind
	mode   Mode
	set    []document.Value
	term   document.Value
	needle string
	re     *regexp.Regexp
}

// Compile prepares c for the given mode. A term compiled in Regex mode that is
// not a valid expression yields a *PatternError.
func Compile(c Criteria, mode Mode) (*Matcher, error) {
	switch c.kind {
	case kindSet:
		return &Matcher{kind: kindSet, mode: Exact, set: c.set}, nil
	case kindPattern:
		if c.pattern == nil {
			return nil, &PatternError{Err: errNilPattern}
		}
		return &Matcher{kind: kindPattern, mode: Regex, re: c.pattern}, nil
	}
	m := &Matcher{kind: kindTerm, mode: mode, term: c.term}
	switch mode {
	case Like:
		m.needle = strings.ToLower(c.term.Text())
	case Regex:
		re, err := compileFold(c.term.Text())
		if err != nil {
			return nil, err
		}
		m.re = re
	}
	return m, nil
}

// Key tests a flat key.
func (m *Matcher) Key(key string) bool {
	return m.test(document.String(key))
}

// Value tests a value. For arrays any matching element is enough.
func (m *Matcher) Value(v document.Value) bool {
	if v.IsArray() {
		for _, e := range v.Elements() {
			if m.Value(e) {
				return true
			}
		}
		return false
	}
	return m.test(v)
}

func (m *Matcher) test(v document.Value) bool {
	switch {
	case m.kind == kindSet:
		for _, s := range m.set {
			if s.Equal(v) {
				return true
			}
		}
		return false
	case m.re != nil:
		return m.re.MatchString(v.Text())
	case m.mode == Like:
		return containsFold(v.Text(), m.needle)
	default:
		return v.Equal(m.term)
	}
}
