package search

import (
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/quire/internal/corpus"
)

// Default engine tuning.
const (
	DefaultWorkers    = 4
	DefaultCacheLimit = 64
)

// Engine executes queries against a content store. It holds a reference
// to the store injected at construction, never a copy, so store
// mutations are visible on the next scan.
type Engine struct {
	mu    sync.Mutex
	store *corpus.Store

	cache      map[string][]Result
	cacheOrder []string
	cacheLimit int

	lastStats QueryStats
	workers   int
}

// NewEngine creates a search engine over the given store. workers bounds
// the per-file scan pool; values <= 0 use DefaultWorkers.
func NewEngine(store *corpus.Store, workers int) *Engine {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Engine{
		store:      store,
		cache:      make(map[string][]Result),
		cacheLimit: DefaultCacheLimit,
		workers:    workers,
	}
}

// Search finds all non-overlapping matches of pattern across the corpus.
// An invalid pattern yields an empty result set. A repeated identical
// query (same pattern and options, context size aside) is served from
// the cache without rescanning; only Clear invalidates the cache.
func (e *Engine) Search(pattern string, opts Options) []Result {
	start := time.Now()
	key := cacheKey(pattern, opts)

	e.mu.Lock()
	if cached, ok := e.cache[key]; ok {
		e.lastStats = QueryStats{
			Pattern:      pattern,
			Results:      len(cached),
			FilesScanned: e.store.Len(),
			Options:      opts,
		}
		e.mu.Unlock()
		return cached
	}
	e.mu.Unlock()

	re, err := Compile(pattern, opts)
	if err != nil {
		e.mu.Lock()
		e.lastStats = QueryStats{Pattern: pattern, Options: opts, Invalid: true}
		e.mu.Unlock()
		return []Result{}
	}

	paths := e.store.Paths()
	perFile := make([][]Result, len(paths))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			// A failing file is excluded, never fails the search.
			defer func() { _ = recover() }()

			content, ok := e.store.Get(path)
			if !ok {
				return nil
			}
			perFile[i] = scanContent(path, content, re, opts.ContextSize)
			return nil
		})
	}
	_ = g.Wait()

	results := make([]Result, 0)
	for _, matches := range perFile {
		results = append(results, matches...)
	}

	e.mu.Lock()
	e.storeCached(key, results)
	e.lastStats = QueryStats{
		Pattern:      pattern,
		Elapsed:      time.Since(start),
		Results:      len(results),
		FilesScanned: len(paths),
		Options:      opts,
	}
	e.mu.Unlock()

	return results
}

// SetCacheLimit bounds the number of cached result sets. Values <= 0
// use DefaultCacheLimit. Takes effect on the next insertion.
func (e *Engine) SetCacheLimit(limit int) {
	if limit <= 0 {
		limit = DefaultCacheLimit
	}
	e.mu.Lock()
	e.cacheLimit = limit
	e.mu.Unlock()
}

// Clear drops all cached results. This is the only cache invalidation;
// callers must invoke it after store mutations that could change results.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cache = make(map[string][]Result)
	e.cacheOrder = nil
}

// LastQueryStats returns diagnostics for the most recent query.
func (e *Engine) LastQueryStats() QueryStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastStats
}

// History returns up to max summaries of cached queries, oldest first.
func (e *Engine) History(max int) []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := e.cacheOrder
	if max > 0 && len(keys) > max {
		keys = keys[len(keys)-max:]
	}
	entries := make([]HistoryEntry, 0, len(keys))
	for _, key := range keys {
		pattern := key
		if i := strings.Index(key, "|"); i >= 0 {
			pattern = key[:i]
		}
		entries = append(entries, HistoryEntry{Pattern: pattern, Results: len(e.cache[key])})
	}
	return entries
}

// storeCached inserts a result set, evicting everything when the cache
// has reached its limit. Caller holds the lock.
func (e *Engine) storeCached(key string, results []Result) {
	if len(e.cache) >= e.cacheLimit {
		e.cache = make(map[string][]Result)
		e.cacheOrder = nil
	}
	if _, ok := e.cache[key]; !ok {
		e.cacheOrder = append(e.cacheOrder, key)
	}
	e.cache[key] = results
}

// scanContent finds all matches in one file, line by line. Within a file
// results are line-then-column ordered. Context never crosses a line
// boundary.
func scanContent(path, content string, re *regexp.Regexp, contextSize int) []Result {
	var results []Result

	lines := strings.Split(content, "\n")
	for lineNo, line := range lines {
		locs := re.FindAllStringIndex(line, -1)
		if len(locs) == 0 {
			continue
		}

		runes := []rune(line)
		for _, loc := range locs {
			start := utf8.RuneCountInString(line[:loc[0]])
			end := start + utf8.RuneCountInString(line[loc[0]:loc[1]])

			ctxStart := start - contextSize
			if ctxStart < 0 {
				ctxStart = 0
			}
			ctxEnd := end + contextSize
			if ctxEnd > len(runes) {
				ctxEnd = len(runes)
			}

			results = append(results, Result{
				Path:     path,
				Line:     lineNo + 1,
				StartCol: start,
				EndCol:   end,
				Text:     string(runes[start:end]),
				Before:   string(runes[ctxStart:start]),
				After:    string(runes[end:ctxEnd]),
			})
		}
	}

	return results
}
