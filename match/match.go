// Package match decides whether a single value satisfies a search criterion.
//
// Three modes are supported: Exact (strict, type-sensitive equality), Like
// (case-insensitive substring over the string form of both sides) and Regex
// (a case-insensitive regular expression tested against the string form of
// the term). A set of values given with AnyOf ignores the mode and tests
// exact membership.
package match

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/stevemurr/flatjson/document"
)

// Mode selects how a single criterion is compared with a candidate.
type Mode int

const (
	Exact Mode = iota
	Like
	Regex
)

func (m Mode) String() string {
	switch m {
	case Exact:
		return "exact"
	case Like:
		return "like"
	case Regex:
		return "regex"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Options carries the like/regex flags callers pass with a query.
type Options struct {
	Like  bool `json:"like"`
	Regex bool `json:"regex"`
}

// Mode resolves the flags. Regex takes precedence over Like.
func (o Options) Mode() Mode {
	switch {
	case o.Regex:
		return Regex
	case o.Like:
		return Like
	default:
		return Exact
	}
}

// ErrInvalidPattern is matched by every *PatternError.
var ErrInvalidPattern = errors.New("invalid pattern")

// PatternError reports a criterion that does not compile as a regular
// expression.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrInvalidPattern) hold.
func (e *PatternError) Is(target error) bool { return target == ErrInvalidPattern }

// Match tests a single term against a single criterion value.
// Arrays are not descended into; see Matcher.Value for that.
func Match(term, criterion document.Value, mode Mode) (bool, error) {
	m, err := Compile(Criteria{kind: kindTerm, term: criterion}, mode)
	if err != nil {
		return false, err
	}
	return m.test(term), nil
}

// MatchPattern applies an already compiled pattern to the string form of term.
// The pattern's own flags decide case sensitivity.
func MatchPattern(term document.Value, re *regexp.Regexp) bool {
	return re.MatchString(term.Text())
}

func compileFold(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, &PatternError{Pattern: pattern, Err: err}
	}
	return re, nil
}

// containsFold reports whether lowerNeedle occurs in s, ignoring case.
func containsFold(s, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(s), lowerNeedle)
}
