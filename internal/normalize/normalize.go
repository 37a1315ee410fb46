// Package normalize standardizes raw mix/track/artist text ahead of fuzzy
// matching. Both queries and candidates must pass through Text before any
// comparison; raw strings are never compared directly.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	bracketRe    = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|\{[^}]*\}`)
	featRe       = regexp.MustCompile(`\b(?:feat|ft)\.?\s`)
	featEndRe    = regexp.MustCompile(`\b(?:feat|ft)\.?$`)
	versusRe     = regexp.MustCompile(`\bvs\b\.?`)
	punctRe      = regexp.MustCompile(`[^\pL\pN ]+`)
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
)

// diacriticFold decomposes to NFD, strips combining marks, and recomposes,
// so "Tiësto" and "Tiesto" normalize identically.
var diacriticFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Text standardizes a title or artist name for matching by:
//  1. Trimming and lowercasing
//  2. Folding diacritics
//  3. Stripping bracketed and parenthetical asides
//  4. Canonicalizing feat./ft. -> featuring, vs. -> versus, & -> and
//  5. Stripping remaining punctuation
//  6. Collapsing whitespace
//
// Text is idempotent: Text(Text(s)) == Text(s).
func Text(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	if folded, _, err := transform.String(diacriticFold, s); err == nil {
		s = folded
	}

	s = bracketRe.ReplaceAllString(s, " ")

	s = featRe.ReplaceAllString(s, "featuring ")
	s = featEndRe.ReplaceAllString(s, "featuring")
	s = versusRe.ReplaceAllString(s, "versus")
	s = strings.ReplaceAll(s, "&", " and ")

	s = punctRe.ReplaceAllString(s, " ")
	s = multiSpaceRe.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}

// Tokens returns the whitespace-separated tokens of the normalized form.
func Tokens(s string) []string {
	n := Text(s)
	if n == "" {
		return nil
	}
	return strings.Fields(n)
}

// SplitArtistTitle splits a raw "Artist - Title" string on the first
// separator dash. Returns empty artist when no separator is present.
func SplitArtistTitle(raw string) (artist, title string) {
	for _, sep := range []string{" - ", " – ", " — ", " | "} {
		if a, t, ok := strings.Cut(raw, sep); ok {
			return strings.TrimSpace(a), strings.TrimSpace(t)
		}
	}
	return "", strings.TrimSpace(raw)
}
