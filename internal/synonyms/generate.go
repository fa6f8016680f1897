// Package synonyms derives the aliases a place is known by and indexes them against the
// canonical paths of a frozen taxonomy.
package synonyms

import (
	"regexp"
	"strings"

	"location_mapper/platform/textnorm"
)

// unionPrefixes match the official "union of parishes of" prefix on a normalized key, both in
// Portuguese ("uniao das freguesias de ...") and in its English rendering.
var unionPrefixes = []*regexp.Regexp{
	regexp.MustCompile(`^uniao (?:das|de) freguesias (?:de|da|do|das|dos) `),
	regexp.MustCompile(`^union of (?:the )?parishes (?:of )?(?:(?:de|da|do|das|dos) )?`),
}

// conjunctions join the names of parishes merged by the 2013 administrative reform.
var conjunctions = regexp.MustCompile(` (?:e|and) `)

// StripUnionPrefix removes a leading union-of-parishes prefix from a normalized key.
func StripUnionPrefix(key string) string {
	for _, re := range unionPrefixes {
		if loc := re.FindStringIndex(key); loc != nil && loc[1] < len(key) {
			return key[loc[1]:]
		}
	}
	return key
}

// SplitMerged splits a merged-parish key on its conjunctions. Keys without a conjunction
// yield nil.
func SplitMerged(key string) []string {
	if !conjunctions.MatchString(key) {
		return nil
	}
	var parts []string
	for _, part := range conjunctions.Split(key, -1) {
		if p := textnorm.NormalizeKey(part); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// Combos returns the normalized concatenations of names from the root down: for
// ["Lisboa", "Loures", "Frielas"] that is "lisboa", "lisboa loures", "lisboa loures frielas".
func Combos(names []string) []string {
	out := make([]string, 0, len(names))
	var prefix []string
	for _, name := range names {
		prefix = append(prefix, name)
		if key := textnorm.NormalizeKey(strings.Join(prefix, " ")); key != "" {
			out = append(out, key)
		}
	}
	return out
}

// Generate returns the deduplicated aliases of a place, in rule order: the normalized name,
// the name without a union-of-parishes prefix, each merged parish on its own, and, when
// ancestor names are given (root first), the root-down name combos ending at the place.
// The result never contains the empty string; it is empty only when name and ancestors all
// normalize to nothing.
func Generate(name string, ancestors ...string) []string {
	set := newOrderedSet()

	base := textnorm.NormalizeKey(name)
	set.add(base)

	stripped := StripUnionPrefix(base)
	if stripped != base {
		set.add(stripped)
	}
	for _, part := range SplitMerged(stripped) {
		set.add(part)
	}

	if len(ancestors) > 0 {
		names := make([]string, 0, len(ancestors)+1)
		names = append(names, ancestors...)
		names = append(names, name)
		for _, combo := range Combos(names) {
			set.add(combo)
		}
	}

	return set.items
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}
