package match

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// MatchType records which pass produced a match.
type MatchType string

const (
	MatchExact MatchType = "exact"
	MatchFuzzy MatchType = "fuzzy"
)

// Slug lower-cases s and drops everything outside [a-z0-9].
func Slug(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// SlugOverlap reports whether either slug contains the other.
func SlugOverlap(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// BestMatch picks the candidate whose title (or alternate title) best fits
// target, which must already be a slug.
//
// An exact slug match wins outright, first by input order. Otherwise every
// candidate whose slug contains target survives and the one with the shortest
// raw title is chosen, keeping input order among equal lengths. alt may be nil.
func BestMatch[T any](target string, candidates []T, title, alt func(T) string) (T, MatchType, bool) {
	var zero T
	if target == "" || len(candidates) == 0 {
		return zero, "", false
	}

	altOf := func(c T) string {
		if alt == nil {
			return ""
		}
		return alt(c)
	}

	for _, c := range candidates {
		if Slug(title(c)) == target {
			return c, MatchExact, true
		}
		if a := altOf(c); a != "" && Slug(a) == target {
			return c, MatchExact, true
		}
	}

	fuzzy := make([]T, 0, len(candidates))
	for _, c := range candidates {
		if strings.Contains(Slug(title(c)), target) {
			fuzzy = append(fuzzy, c)
			continue
		}
		if a := altOf(c); a != "" && strings.Contains(Slug(a), target) {
			fuzzy = append(fuzzy, c)
		}
	}
	if len(fuzzy) == 0 {
		return zero, "", false
	}

	sort.SliceStable(fuzzy, func(i, j int) bool {
		return utf8.RuneCountInString(title(fuzzy[i])) < utf8.RuneCountInString(title(fuzzy[j]))
	})
	return fuzzy[0], MatchFuzzy, true
}
