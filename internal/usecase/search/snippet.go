package search

import (
	"slices"
	"unicode"

	"github.com/kailas-cloud/indexsync/internal/domain/search/result"
)

// Snippet window around a description match, in characters.
const (
	snippetLead  = 20
	snippetWidth = 60
)

// Snippet builds the one-line suggestion shown while typing: the name with
// instructor and category when the name matches, a window of the description
// around the match when only it matches, else name, category and instructor.
func Snippet(f result.Fields, q string) string {
	needle := lowerRunes(q)
	if len(needle) == 0 {
		return f.Name + " - " + f.Category + " - " + f.Instructor
	}

	if f.Name != "" && indexRunes(lowerRunes(f.Name), needle) >= 0 {
		return f.Name + " - " + f.Instructor + " (" + f.Category + ")"
	}

	if f.Description != "" {
		desc := []rune(f.Description)
		if i := indexRunes(lowerRunes(f.Description), needle); i >= 0 {
			start := max(0, i-snippetLead)
			end := min(len(desc), start+snippetWidth)
			return f.Name + " - ..." + string(desc[start:end]) + "..."
		}
	}

	return f.Name + " - " + f.Category + " - " + f.Instructor
}

// lowerRunes lower-cases rune by rune so indices line up with the original text.
func lowerRunes(s string) []rune {
	r := []rune(s)
	for i, c := range r {
		r[i] = unicode.ToLower(c)
	}
	return r
}

// indexRunes returns the rune index of needle in haystack, or -1.
func indexRunes(haystack, needle []rune) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if slices.Equal(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}
