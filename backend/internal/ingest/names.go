package ingest

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldName reduces a person's name to a comparison key: accents stripped,
// lowercased, punctuation dropped, tokens sorted. "Dela Cruz, José" and
// "jose dela cruz" fold to the same key.
func FoldName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	tokens := strings.FieldsFunc(strings.ToLower(folded), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// NamesMatch compares two names after folding.
func NamesMatch(a, b string) bool {
	return FoldName(a) == FoldName(b)
}

// HasAccent reports whether name contains any non-ASCII character.
func HasAccent(name string) bool {
	for _, r := range name {
		if r > unicode.MaxASCII {
			return true
		}
	}
	return false
}
