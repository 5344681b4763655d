package corpus

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Posting records one occurrence of a word token.
type Posting struct {
	Path string `json:"path"`
	Line int    `json:"line"` // 1-based
	Col  int    `json:"col"`  // 0-based rune offset within the line
}

// Estimated bytes per posting held in the index (string header + ints).
const postingOverhead = 48

// A word token is a maximal run of letters, digits, or underscore.
var tokenRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// SearchIndex returns the recorded occurrences of a case-folded word.
// The word is folded before lookup; only exact token matches are found.
func (s *Store) SearchIndex(word string) []Posting {
	s.mu.RLock()
	defer s.mu.RUnlock()

	postings := s.index[strings.ToLower(word)]
	if len(postings) == 0 {
		return nil
	}
	out := make([]Posting, len(postings))
	copy(out, postings)
	return out
}

// indexContent appends postings for every token in content.
// Caller holds the write lock.
func (s *Store) indexContent(path, content string) {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		folded := strings.ToLower(line)
		for _, loc := range tokenRe.FindAllStringIndex(folded, -1) {
			token := folded[loc[0]:loc[1]]
			s.index[token] = append(s.index[token], Posting{
				Path: path,
				Line: i + 1,
				Col:  utf8.RuneCountInString(folded[:loc[0]]),
			})
		}
	}
}

// deindexPath removes every posting for a path. Caller holds the write lock.
func (s *Store) deindexPath(path string) {
	for token := range s.index {
		s.purgePath(token, path)
	}
}

// repairIndex updates the index after a content change using the
// symmetric difference of folded token sets. Tokens absent from the new
// content are purged for this path; tokens present in both sets have
// their postings for this path cleared and rebuilt fresh (never merged,
// which would duplicate or go stale); tokens only in the new content are
// inserted fresh. Other paths' postings are untouched.
// Caller holds the write lock.
func (s *Store) repairIndex(path, old, now string) {
	oldTokens := tokenSet(old)
	newTokens := tokenSet(now)

	for token := range oldTokens {
		if _, keep := newTokens[token]; !keep {
			s.purgePath(token, path)
		}
	}
	for token := range newTokens {
		if _, both := oldTokens[token]; both {
			s.purgePath(token, path)
		}
	}

	s.indexContent(path, now)
}

// purgePath drops a single token's postings for one path, deleting the
// token entirely when no postings remain. Caller holds the write lock.
func (s *Store) purgePath(token, path string) {
	postings, ok := s.index[token]
	if !ok {
		return
	}
	kept := postings[:0]
	for _, p := range postings {
		if p.Path != path {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		delete(s.index, token)
		return
	}
	s.index[token] = kept
}

// tokenSet returns the set of case-folded tokens in content.
func tokenSet(content string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range tokenRe.FindAllString(strings.ToLower(content), -1) {
		set[token] = struct{}{}
	}
	return set
}

// wordCount counts tokens in content.
func wordCount(content string) int {
	return len(tokenRe.FindAllString(content, -1))
}

// charCount counts characters (runes), matching how positions and
// statistics are expressed throughout the corpus.
func charCount(content string) int {
	return utf8.RuneCountInString(content)
}
