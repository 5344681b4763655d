package replace

import (
	"testing"

	"github.com/dshills/quire/internal/corpus"
	"github.com/dshills/quire/internal/search"
)

func newTestEngine(t *testing.T, files map[string]string) (*Engine, *corpus.Store) {
	t.Helper()

	store := corpus.NewStore(0)
	for path, content := range files {
		if !store.Add(path, content) {
			t.Fatalf("Add(%q) failed", path)
		}
	}
	return NewEngine(store, 0), store
}

func TestReplaceAt_Basic(t *testing.T) {
	e, store := newTestEngine(t, map[string]string{
		"a.xhtml": "The cat sat.\nSecond line.",
	})

	if !e.ReplaceAt("a.xhtml", 1, 4, 7, "dog") {
		t.Fatal("ReplaceAt returned false")
	}
	got, _ := store.Get("a.xhtml")
	if got != "The dog sat.\nSecond line." {
		t.Errorf("content = %q", got)
	}
}

func TestReplaceAt_Insertion(t *testing.T) {
	e, store := newTestEngine(t, map[string]string{"a.xhtml": "ab"})

	// startCol == endCol is a pure insertion.
	if !e.ReplaceAt("a.xhtml", 1, 1, 1, "X") {
		t.Fatal("ReplaceAt returned false")
	}
	if got, _ := store.Get("a.xhtml"); got != "aXb" {
		t.Errorf("content = %q, want %q", got, "aXb")
	}
}

func TestReplaceAt_WholeLine(t *testing.T) {
	e, store := newTestEngine(t, map[string]string{"a.xhtml": "old line\nkeep"})

	if !e.ReplaceAt("a.xhtml", 1, 0, len("old line"), "new line") {
		t.Fatal("ReplaceAt returned false")
	}
	if got, _ := store.Get("a.xhtml"); got != "new line\nkeep" {
		t.Errorf("content = %q", got)
	}
}

func TestReplaceAt_Bounds(t *testing.T) {
	e, _ := newTestEngine(t, map[string]string{"a.xhtml": "short"})

	tests := []struct {
		name             string
		line, start, end int
	}{
		{"line zero", 0, 0, 1},
		{"line beyond end", 2, 0, 1},
		{"negative start", 1, -1, 2},
		{"start after end", 1, 3, 2},
		{"end beyond line", 1, 0, 6},
	}
	for _, tt := range tests {
		if e.ReplaceAt("a.xhtml", tt.line, tt.start, tt.end, "x") {
			t.Errorf("%s: ReplaceAt succeeded", tt.name)
		}
	}

	if e.ReplaceAt("missing.xhtml", 1, 0, 1, "x") {
		t.Error("ReplaceAt succeeded for unknown path")
	}
}

func TestPatternReplace_WholeWord(t *testing.T) {
	e, store := newTestEngine(t, map[string]string{
		"b.xhtml": "The cat sat. Category error.",
	})

	opts := search.Options{WholeWord: true}
	stats := e.PatternReplace("cat", "dog", opts, nil)

	if stats.TotalReplacements != 1 {
		t.Errorf("TotalReplacements = %d, want 1", stats.TotalReplacements)
	}
	if stats.FilesModified != 1 {
		t.Errorf("FilesModified = %d, want 1", stats.FilesModified)
	}
	got, _ := store.Get("b.xhtml")
	if got != "The dog sat. Category error." {
		t.Errorf("content = %q", got)
	}
}

func TestPatternReplace_MultipleFiles(t *testing.T) {
	e, _ := newTestEngine(t, map[string]string{
		"a.xhtml": "cat cat",
		"b.xhtml": "cat",
		"c.xhtml": "dog",
	})

	stats := e.PatternReplace("cat", "bird", search.Options{}, nil)
	if stats.TotalReplacements != 3 {
		t.Errorf("TotalReplacements = %d, want 3", stats.TotalReplacements)
	}
	if stats.FilesModified != 2 {
		t.Errorf("FilesModified = %d, want 2", stats.FilesModified)
	}
	if stats.CharactersChanged != 3 {
		t.Errorf("CharactersChanged = %d, want 3", stats.CharactersChanged)
	}
}

func TestPatternReplace_TargetedFiles(t *testing.T) {
	e, store := newTestEngine(t, map[string]string{
		"a.xhtml": "cat",
		"b.xhtml": "cat",
	})

	stats := e.PatternReplace("cat", "dog", search.Options{}, []string{"a.xhtml"})
	if stats.TotalReplacements != 1 {
		t.Errorf("TotalReplacements = %d, want 1", stats.TotalReplacements)
	}
	if got, _ := store.Get("b.xhtml"); got != "cat" {
		t.Errorf("untargeted file changed: %q", got)
	}
}

func TestPatternReplace_InvalidPattern(t *testing.T) {
	e, _ := newTestEngine(t, map[string]string{"a.xhtml": "cat"})

	stats := e.PatternReplace("[bad", "x", search.Options{Regex: true}, nil)
	if stats != (Stats{}) {
		t.Errorf("stats = %+v, want zero", stats)
	}
}

func TestPatternReplace_IdentityCountsFailed(t *testing.T) {
	e, _ := newTestEngine(t, map[string]string{"a.xhtml": "cat"})

	// Replacing a match with itself changes nothing; the store rejects
	// the no-op update and the file counts as failed.
	stats := e.PatternReplace("cat", "cat", search.Options{CaseSensitive: true}, nil)
	if stats.FailedFiles != 1 {
		t.Errorf("FailedFiles = %d, want 1", stats.FailedFiles)
	}
	if stats.TotalReplacements != 0 {
		t.Errorf("TotalReplacements = %d, want 0", stats.TotalReplacements)
	}
}

func TestPatternReplace_RegexGroups(t *testing.T) {
	e, store := newTestEngine(t, map[string]string{"a.xhtml": "ab12cd"})

	opts := search.Options{Regex: true, CaseSensitive: true}
	stats := e.PatternReplace(`(\d+)`, "[$1]", opts, nil)
	if stats.TotalReplacements != 1 {
		t.Errorf("TotalReplacements = %d, want 1", stats.TotalReplacements)
	}
	if got, _ := store.Get("a.xhtml"); got != "ab[12]cd" {
		t.Errorf("content = %q, want %q", got, "ab[12]cd")
	}
}

func TestReplaceByResults_ReverseOrderPreservesBoth(t *testing.T) {
	e, store := newTestEngine(t, map[string]string{
		"a.xhtml": "aaa bbb aaa",
	})

	results := []search.Result{
		{Path: "a.xhtml", Line: 1, StartCol: 0, EndCol: 3, Text: "aaa"},
		{Path: "a.xhtml", Line: 1, StartCol: 8, EndCol: 11, Text: "aaa"},
	}

	stats := e.ReplaceByResults(results, "12345")
	if stats.TotalReplacements != 2 {
		t.Errorf("TotalReplacements = %d, want 2", stats.TotalReplacements)
	}
	if got, _ := store.Get("a.xhtml"); got != "12345 bbb 12345" {
		t.Errorf("content = %q", got)
	}
}

func TestReplaceByResults_DriftSkipped(t *testing.T) {
	e, store := newTestEngine(t, map[string]string{
		"a.xhtml": "aaa bbb aaa",
	})

	stale := search.Result{Path: "a.xhtml", Line: 1, StartCol: 8, EndCol: 11, Text: "aaa"}

	// Applying the earlier-position edit first shifts the later span;
	// the stale result must be skipped, not misapplied.
	if !e.ReplaceAt("a.xhtml", 1, 0, 3, "12345") {
		t.Fatal("setup ReplaceAt failed")
	}

	stats := e.ReplaceByResults([]search.Result{stale}, "xxx")
	if stats.TotalReplacements != 0 {
		t.Errorf("TotalReplacements = %d, want 0 (drift)", stats.TotalReplacements)
	}
	if got, _ := store.Get("a.xhtml"); got != "12345 bbb aaa" {
		t.Errorf("drifted result was applied: %q", got)
	}
}

func TestReplaceByResults_MissingLineSkipped(t *testing.T) {
	e, _ := newTestEngine(t, map[string]string{"a.xhtml": "one line"})

	gone := search.Result{Path: "a.xhtml", Line: 5, StartCol: 0, EndCol: 3, Text: "one"}
	stats := e.ReplaceByResults([]search.Result{gone}, "x")
	if stats.TotalReplacements != 0 {
		t.Errorf("TotalReplacements = %d, want 0", stats.TotalReplacements)
	}
}

func TestUndoLast(t *testing.T) {
	e, store := newTestEngine(t, map[string]string{"a.xhtml": "The cat sat."})

	e.ReplaceAt("a.xhtml", 1, 4, 7, "dog")
	if !e.UndoLast() {
		t.Fatal("UndoLast returned false")
	}
	if got, _ := store.Get("a.xhtml"); got != "The cat sat." {
		t.Errorf("content = %q, want original line restored", got)
	}

	if e.UndoLast() {
		t.Error("UndoLast succeeded with empty history")
	}
}

func TestUndoLast_LineOutOfRange(t *testing.T) {
	e, store := newTestEngine(t, map[string]string{"a.xhtml": "one\ntwo"})

	e.ReplaceAt("a.xhtml", 2, 0, 3, "TWO")
	store.Update("a.xhtml", "single line now")

	if e.UndoLast() {
		t.Error("UndoLast succeeded for a vanished line")
	}
	if got, _ := store.Get("a.xhtml"); got != "single line now" {
		t.Errorf("content mutated on failed undo: %q", got)
	}
}

func TestHistory(t *testing.T) {
	e, _ := newTestEngine(t, map[string]string{"a.xhtml": "a b c d e"})

	e.ReplaceAt("a.xhtml", 1, 0, 1, "x")
	e.ReplaceAt("a.xhtml", 1, 2, 3, "y")
	e.ReplaceAt("a.xhtml", 1, 4, 5, "z")

	records := e.History(2)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[1].OriginalLine != "x y c d e" {
		t.Errorf("newest record = %+v", records[1])
	}
}

func TestHistoryCap(t *testing.T) {
	store := corpus.NewStore(0)
	store.Add("a.xhtml", "0123456789")
	e := NewEngine(store, 3)

	for i := 0; i < 5; i++ {
		if !e.ReplaceAt("a.xhtml", 1, i, i+1, "x") {
			t.Fatalf("ReplaceAt %d failed", i)
		}
	}

	if got := len(e.History(0)); got != 3 {
		t.Errorf("history length = %d, want 3", got)
	}
}
