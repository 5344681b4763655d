// Package corpus provides the content store for loaded package members.
//
// The Store owns the path-to-content mapping, the original snapshots taken
// at load time, a capped per-path change history, the inverted word index,
// and aggregate statistics. Search, replace, and save subsystems hold a
// reference to a Store; the Store itself depends on nothing.
package corpus

import (
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/zeebo/xxh3"
)

// DefaultHistoryLimit caps the number of change records kept per path.
const DefaultHistoryLimit = 100

// Change records a single content mutation for rollback.
type Change struct {
	Previous string
	Current  string
}

// Stats holds aggregate counters across the whole corpus.
type Stats struct {
	TotalFiles    int
	TotalWords    int
	TotalChars    int
	ModifiedCount int
}

// FileStats holds per-path counters.
type FileStats struct {
	Size          int
	Lines         int
	Words         int
	Modifications int
}

// Store is the content store. All mutation happens under its lock;
// a single logical writer is assumed, with concurrent readers.
type Store struct {
	mu sync.RWMutex

	content  map[string]string
	original map[string]string
	modified map[string]struct{}
	history  map[string][]Change
	index    map[string][]Posting

	historyLimit int
	stats        Stats
}

// NewStore creates an empty store. historyLimit bounds the change
// records kept per path; values <= 0 use DefaultHistoryLimit.
func NewStore(historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Store{
		content:      make(map[string]string),
		original:     make(map[string]string),
		modified:     make(map[string]struct{}),
		history:      make(map[string][]Change),
		index:        make(map[string][]Posting),
		historyLimit: historyLimit,
	}
}

// Add stores content as both the current value and the original snapshot.
// Content containing NUL bytes is rejected with no state change.
// Re-adding an existing path overwrites both snapshots and reindexes.
func (s *Store) Add(path, content string) bool {
	if !validContent(content) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.content[path]; ok {
		// Load-time reset of a single path: drop everything derived
		// from the previous content before storing the new one.
		s.deindexPath(path)
		s.stats.TotalFiles--
		s.stats.TotalChars -= charCount(old)
		s.stats.TotalWords -= wordCount(old)
		delete(s.modified, path)
		delete(s.history, path)
		s.stats.ModifiedCount = len(s.modified)
	}

	s.content[path] = content
	s.original[path] = content
	s.stats.TotalFiles++
	s.stats.TotalChars += charCount(content)
	s.stats.TotalWords += wordCount(content)
	s.indexContent(path, content)
	return true
}

// Get returns the current content for a path.
func (s *Store) Get(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.content[path]
	return content, ok
}

// Update replaces the current content for a known path. It returns false
// when the path is unknown, the content is invalid, or the content equals
// the current value (idempotent no-op). On success the path is marked
// modified, a change record is appended, the word index is repaired
// incrementally, and aggregate stats are adjusted by the delta.
func (s *Store) Update(path, newContent string) bool {
	if !validContent(newContent) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.content[path]
	if !ok || old == newContent {
		return false
	}

	s.content[path] = newContent
	s.modified[path] = struct{}{}
	s.stats.ModifiedCount = len(s.modified)

	s.history[path] = append(s.history[path], Change{Previous: old, Current: newContent})
	if len(s.history[path]) > s.historyLimit {
		excess := len(s.history[path]) - s.historyLimit
		s.history[path] = s.history[path][excess:]
	}

	s.applyReindex(path, old, newContent)
	return true
}

// Rollback pops up to steps change records for a path. The restored
// content is the previous value of the last popped record, or the
// original snapshot when the history is exhausted (the modified flag is
// cleared only in that case). Returns false when the path has no history
// or steps < 1.
func (s *Store) Rollback(path string, steps int) bool {
	if steps < 1 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.history[path]
	if len(records) == 0 {
		return false
	}

	current := s.content[path]

	if steps > len(records) {
		steps = len(records)
	}
	last := records[len(records)-steps]
	records = records[:len(records)-steps]
	s.history[path] = records

	restored := last.Previous
	if len(records) == 0 {
		restored = s.original[path]
		delete(s.modified, path)
		s.stats.ModifiedCount = len(s.modified)
	}

	s.content[path] = restored
	s.applyReindex(path, current, restored)
	return true
}

// ContentHash returns the hex xxh3-128 digest of the current content,
// or the digest of the empty string for unknown paths.
func (s *Store) ContentHash(path string) string {
	s.mu.RLock()
	content := s.content[path]
	s.mu.RUnlock()

	sum := xxh3.Hash128([]byte(content)).Bytes()
	return hex.EncodeToString(sum[:])
}

// FileStats returns counters for one path. Unknown paths yield zero
// values (a known empty file still counts one line).
func (s *Store) FileStats(path string) FileStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.content[path]
	if !ok {
		return FileStats{}
	}
	return FileStats{
		Size:          charCount(content),
		Lines:         strings.Count(content, "\n") + 1,
		Words:         wordCount(content),
		Modifications: len(s.history[path]),
	}
}

// Stats returns the aggregate counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// MemoryEstimate approximates the bytes held by contents, snapshots,
// and the word index.
func (s *Store) MemoryEstimate() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, c := range s.content {
		total += len(c)
	}
	for _, c := range s.original {
		total += len(c)
	}
	for token, postings := range s.index {
		total += len(token) + len(postings)*postingOverhead
	}
	return total
}

// ModifiedFiles returns the sorted paths with unsaved modifications.
func (s *Store) ModifiedFiles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.modified))
	for p := range s.modified {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// HasModifications reports whether any path carries unsaved changes.
func (s *Store) HasModifications() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.modified) > 0
}

// ClearModified drops all modified flags. Called after a successful
// in-place save.
func (s *Store) ClearModified() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.modified = make(map[string]struct{})
	s.stats.ModifiedCount = 0
}

// Paths returns all corpus paths in sorted order.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.content))
	for p := range s.content {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of paths in the corpus.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.content)
}

// Reset clears the store for the next load.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.content = make(map[string]string)
	s.original = make(map[string]string)
	s.modified = make(map[string]struct{})
	s.history = make(map[string][]Change)
	s.index = make(map[string][]Posting)
	s.stats = Stats{}
}

// applyReindex repairs the index and adjusts aggregate stats for one
// path's content change. Caller holds the write lock.
func (s *Store) applyReindex(path, old, now string) {
	s.repairIndex(path, old, now)
	s.stats.TotalChars += charCount(now) - charCount(old)
	s.stats.TotalWords += wordCount(now) - wordCount(old)
}

// validContent rejects content that would corrupt downstream string
// handling. NUL is the only byte refused.
func validContent(content string) bool {
	return !strings.ContainsRune(content, 0)
}
