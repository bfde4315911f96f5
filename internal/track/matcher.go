// Package track scores normalized entries against configured topic profiles.
package track

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"PaperTracker/internal/domain"
)

const (
	phraseWeight  = 3
	keywordWeight = 1
)

// Score matches title and summary against a track profile. Any exclusion
// phrase short-circuits to a zero score with no matched terms. Phrases match
// as substrings, keywords at word boundaries; matched terms are deduplicated
// in profile order. The function is pure: identical inputs yield identical
// results.
func Score(track domain.Track, title, summary string) (float64, []string) {
	text := normalize(title + " " + summary)

	for _, exclusion := range track.Exclusions {
		if ex := normalize(exclusion); ex != "" && strings.Contains(text, ex) {
			return 0, nil
		}
	}

	var score float64
	var terms []string
	seen := map[string]struct{}{}

	record := func(term string, weight float64) {
		score += weight
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}

	for _, phrase := range track.Phrases {
		if p := normalize(phrase); p != "" && strings.Contains(text, p) {
			record(p, phraseWeight)
		}
	}

	for _, keyword := range track.Keywords {
		if k := normalize(keyword); k != "" && containsWord(text, k) {
			record(k, keywordWeight)
		}
	}

	return score, terms
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// containsWord reports whether needle occurs in text delimited by
// non-alphanumeric runes on both sides.
func containsWord(text, needle string) bool {
	for start := 0; ; {
		idx := strings.Index(text[start:], needle)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(needle)
		if boundaryBefore(text, idx) && boundaryAfter(text, end) {
			return true
		}
		start = idx + 1
	}
}

func boundaryBefore(text string, idx int) bool {
	if idx == 0 {
		return true
	}
	// Decode the full rune so multi-byte neighbors classify correctly.
	r, _ := utf8.DecodeLastRuneInString(text[:idx])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[end:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
