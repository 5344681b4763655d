package search

import (
	"strings"
	"unicode"
)

// FuzzySearch finds approximate matches of pattern with Levenshtein
// distance at most maxDist. Matching is always case-insensitive. Per
// line, a window of the pattern's length slides left to right; the
// first window within distance is accepted and the scan resumes past
// its end, so matches never overlap. Fuzzy results are not cached.
func (e *Engine) FuzzySearch(pattern string, maxDist, contextSize int) []Result {
	patternRunes := foldRunes(pattern)
	if len(patternRunes) == 0 {
		return nil
	}

	var results []Result
	for _, path := range e.store.Paths() {
		content, ok := e.store.Get(path)
		if !ok {
			continue
		}

		lines := strings.Split(content, "\n")
		for lineNo, line := range lines {
			runes := []rune(line)
			folded := foldRunes(line)

			pos := 0
			for pos+len(patternRunes) <= len(folded) {
				start := closestMatch(folded, patternRunes, pos, maxDist)
				if start < 0 {
					break
				}
				end := start + len(patternRunes)

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

				pos = end
			}
		}
	}

	return results
}

// closestMatch returns the first offset at or after start whose window
// of len(pattern) runes is within maxDist of pattern, or -1.
func closestMatch(text, pattern []rune, start, maxDist int) int {
	for i := start; i+len(pattern) <= len(text); i++ {
		if levenshtein(text[i:i+len(pattern)], pattern) <= maxDist {
			return i
		}
	}
	return -1
}

// levenshtein computes edit distance with unit insert, delete, and
// substitute costs, space-optimized to two rows.
func levenshtein(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i, ca := range a {
		curr[0] = i + 1
		for j, cb := range b {
			cost := 0
			if ca != cb {
				cost = 1
			}
			ins := prev[j+1] + 1
			del := curr[j] + 1
			sub := prev[j] + cost

			m := ins
			if del < m {
				m = del
			}
			if sub < m {
				m = sub
			}
			curr[j+1] = m
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// foldRunes lowercases rune by rune, preserving length so fuzzy offsets
// line up with the original text.
func foldRunes(s string) []rune {
	runes := []rune(s)
	for i, r := range runes {
		runes[i] = unicode.ToLower(r)
	}
	return runes
}
