// Package textnorm provides the text folding used for location matching keys and path slugs.
// This is part of the platform layer and contains no business logic.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Apostrophes are removed outright so "d'Ajuda" folds to "dajuda" rather than "d ajuda".
var apostrophes = strings.NewReplacer("'", "", "’", "", "‘", "", "`", "")

// fold lowercases and strips combining marks after canonical decomposition.
// A fresh transformer is built per call because transform.Chain is not safe for concurrent use.
func fold(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	result, _, err := transform.String(t, text)
	if err != nil {
		result = text
	}
	return strings.ToLower(result)
}

// NormalizeKey returns the canonical matching key for text: diacritics removed, lowercase,
// apostrophes dropped, every run of characters outside [a-z0-9] collapsed to one space, trimmed.
func NormalizeKey(text string) string {
	return collapse(apostrophes.Replace(fold(text)), ' ')
}

// SlugKey returns a path-safe slug for text. Output matches ^[a-z0-9]+(-[a-z0-9]+)*$ or is empty.
func SlugKey(text string) string {
	return collapse(fold(text), '-')
}

// collapse keeps [a-z0-9] and replaces each run of anything else with sep, trimming sep at both ends.
func collapse(text string, sep byte) string {
	var b strings.Builder
	b.Grow(len(text))
	pending := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte(sep)
			}
			pending = false
			b.WriteByte(c)
			continue
		}
		pending = true
	}
	return b.String()
}
