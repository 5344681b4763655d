// Package replace performs single-location and pattern-wide replacement
// against the content store, with a bounded undo history.
//
// All pattern-compile failures degrade to zero replacements; no error
// escapes the package boundary.
package replace

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dshills/quire/internal/corpus"
	"github.com/dshills/quire/internal/search"
)

// DefaultHistoryLimit caps the undo ring buffer.
const DefaultHistoryLimit = 50

// Stats summarizes a batch replace.
type Stats struct {
	TotalReplacements int
	FilesModified     int
	FailedFiles       int
	CharactersChanged int
}

// Record holds the full original line for single-step undo. This ring
// buffer is distinct from the store's per-path change history.
type Record struct {
	Path         string
	Line         int // 1-based
	OriginalLine string
}

// Engine applies replacements through an injected store reference.
// Batch operations are sequential loops, safe for one caller at a time.
type Engine struct {
	mu    sync.Mutex
	store *corpus.Store

	history      []Record
	historyLimit int
}

// NewEngine creates a replace engine over the given store. historyLimit
// bounds the undo buffer; values <= 0 use DefaultHistoryLimit.
func NewEngine(store *corpus.Store, historyLimit int) *Engine {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Engine{store: store, historyLimit: historyLimit}
}

// ReplaceAt splices newText into the given rune span of a line and
// commits through the store. line is 1-based; columns satisfy
// 0 <= startCol <= endCol <= line length. startCol == endCol inserts.
// Returns false on bad bounds or store rejection.
func (e *Engine) ReplaceAt(path string, line, startCol, endCol int, newText string) bool {
	content, ok := e.store.Get(path)
	if !ok {
		return false
	}

	lines := strings.Split(content, "\n")
	if line < 1 || line > len(lines) {
		return false
	}

	original := lines[line-1]
	runes := []rune(original)
	if startCol < 0 || startCol > endCol || endCol > len(runes) {
		return false
	}

	lines[line-1] = string(runes[:startCol]) + newText + string(runes[endCol:])
	if !e.store.Update(path, strings.Join(lines, "\n")) {
		return false
	}

	e.record(Record{Path: path, Line: line, OriginalLine: original})
	return true
}

// PatternReplace substitutes every match of pattern across the given
// files (nil means the whole corpus) in one pass per file, committing
// only when at least one substitution happened. A per-file store
// rejection counts as a failed file without aborting the batch. An
// invalid pattern yields zero stats.
func (e *Engine) PatternReplace(pattern, replacement string, opts search.Options, files []string) Stats {
	var stats Stats

	re, err := search.Compile(pattern, opts)
	if err != nil {
		return stats
	}

	if files == nil {
		files = e.store.Paths()
	}

	modified := make(map[string]struct{})
	for _, path := range files {
		content, ok := e.store.Get(path)
		if !ok {
			continue
		}

		count := len(re.FindAllStringIndex(content, -1))
		if count == 0 {
			continue
		}

		var updated string
		if opts.Regex {
			updated = re.ReplaceAllString(content, replacement)
		} else {
			updated = re.ReplaceAllLiteralString(content, replacement)
		}

		if e.store.Update(path, updated) {
			stats.TotalReplacements += count
			stats.CharactersChanged += utf8.RuneCountInString(updated) - utf8.RuneCountInString(content)
			modified[path] = struct{}{}
		} else {
			stats.FailedFiles++
		}
	}

	stats.FilesModified = len(modified)
	return stats
}

// ReplaceByResults applies newText over a captured result set. Within
// each file, results are applied in (line, startCol) descending order;
// applying earlier positions first would shift the columns of later
// same-line results before they are applied. Before each edit the live
// line must still contain the recorded text at the recorded span; drift
// skips that result silently, as expected concurrent-edit behavior.
func (e *Engine) ReplaceByResults(results []search.Result, newText string) Stats {
	var stats Stats

	byPath := make(map[string][]search.Result)
	for _, r := range results {
		byPath[r.Path] = append(byPath[r.Path], r)
	}

	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		group := byPath[path]
		sort.Slice(group, func(i, j int) bool {
			if group[i].Line != group[j].Line {
				return group[i].Line > group[j].Line
			}
			return group[i].StartCol > group[j].StartCol
		})

		applied := 0
		for _, r := range group {
			before, ok := e.liveText(r)
			if !ok || before != r.Text {
				continue // drift
			}
			if e.ReplaceAt(r.Path, r.Line, r.StartCol, r.EndCol, newText) {
				applied++
				stats.CharactersChanged += utf8.RuneCountInString(newText) - utf8.RuneCountInString(r.Text)
			}
		}
		if applied > 0 {
			stats.TotalReplacements += applied
			stats.FilesModified++
		}
	}

	return stats
}

// UndoLast pops the most recent record and restores its line. Returns
// false without store mutation when the history is empty or the line is
// out of range in the current content.
func (e *Engine) UndoLast() bool {
	e.mu.Lock()
	if len(e.history) == 0 {
		e.mu.Unlock()
		return false
	}
	last := e.history[len(e.history)-1]
	e.history = e.history[:len(e.history)-1]
	e.mu.Unlock()

	content, ok := e.store.Get(last.Path)
	if !ok {
		return false
	}

	lines := strings.Split(content, "\n")
	if last.Line < 1 || last.Line > len(lines) {
		return false
	}

	lines[last.Line-1] = last.OriginalLine
	return e.store.Update(last.Path, strings.Join(lines, "\n"))
}

// History returns up to max records, newest last.
func (e *Engine) History(max int) []Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	records := e.history
	if max > 0 && len(records) > max {
		records = records[len(records)-max:]
	}
	out := make([]Record, len(records))
	copy(out, records)
	return out
}

// record appends to the undo buffer, dropping the oldest beyond the cap.
func (e *Engine) record(r Record) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, r)
	if len(e.history) > e.historyLimit {
		excess := len(e.history) - e.historyLimit
		e.history = e.history[excess:]
	}
}

// liveText returns the current text at a result's recorded span.
func (e *Engine) liveText(r search.Result) (string, bool) {
	content, ok := e.store.Get(r.Path)
	if !ok {
		return "", false
	}

	lines := strings.Split(content, "\n")
	if r.Line < 1 || r.Line > len(lines) {
		return "", false
	}

	runes := []rune(lines[r.Line-1])
	if r.StartCol < 0 || r.StartCol > r.EndCol || r.EndCol > len(runes) {
		return "", false
	}
	return string(runes[r.StartCol:r.EndCol]), true
}
