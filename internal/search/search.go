// Package search compiles and executes queries across the content store.
//
// Queries run as literal or regex patterns with case and word-boundary
// options, fanned out one task per file over a bounded worker pool.
// Results for identical queries are served from a cache that is only
// invalidated by an explicit Clear; content mutation does not touch it,
// so callers that mutate the store must clear the cache themselves.
package search

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Common errors.
var (
	ErrInvalidQuery = errors.New("invalid search query")
)

// Options configures pattern compilation for search and replace.
type Options struct {
	// CaseSensitive disables the default case-insensitive matching.
	CaseSensitive bool

	// Regex treats the pattern as a regular expression instead of a
	// literal string.
	Regex bool

	// WholeWord wraps the pattern with word-boundary assertions.
	WholeWord bool

	// ContextSize is the number of runes of leading and trailing
	// context captured around each match, clipped at line boundaries.
	ContextSize int
}

// DefaultOptions returns the standard search options.
func DefaultOptions() Options {
	return Options{ContextSize: 30}
}

// Result is one match. Results are immutable once produced.
type Result struct {
	Path     string
	Line     int // 1-based
	StartCol int // 0-based rune offset
	EndCol   int // exclusive
	Text     string
	Before   string
	After    string
}

// QueryStats describes the most recent query for diagnostics.
type QueryStats struct {
	Pattern      string
	Elapsed      time.Duration
	Results      int
	FilesScanned int
	Options      Options
	// Invalid records that the pattern failed to compile. The search
	// itself still returns an empty result set, indistinguishable from
	// zero matches.
	Invalid bool
}

// HistoryEntry summarizes one cached query.
type HistoryEntry struct {
	Pattern string
	Results int
}

// Compile builds the regex for a pattern under the given options.
// Literal mode escapes metacharacters; WholeWord adds \b assertions;
// matching is case-insensitive unless CaseSensitive is set.
func Compile(pattern string, opts Options) (*regexp.Regexp, error) {
	p := pattern
	if !opts.Regex {
		p = regexp.QuoteMeta(p)
	}
	if opts.WholeWord {
		p = `\b` + p + `\b`
	}
	if !opts.CaseSensitive {
		p = "(?i)" + p
	}

	re, err := regexp.Compile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return re, nil
}

// cacheKey identifies a query for the result cache. Context size is
// excluded: repeating a query with a different context still hits.
func cacheKey(pattern string, opts Options) string {
	return fmt.Sprintf("%s|%t|%t|%t", pattern, opts.CaseSensitive, opts.Regex, opts.WholeWord)
}
