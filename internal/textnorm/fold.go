// Package textnorm provides the one name-folding convention used across the
// registry: lowercase, accent marks stripped, whitespace collapsed. Both
// stored rows and incoming filters pass through Fold so that "Muñoz Pérez"
// and "munoz perez" compare equal.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold returns the canonical comparison form of s.
func Fold(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)
	return strings.Join(strings.Fields(out), " ")
}

// Contains reports whether the fold of haystack contains the fold of needle.
func Contains(haystack, needle string) bool {
	return strings.Contains(Fold(haystack), Fold(needle))
}

// Equal reports fold-equality.
func Equal(a, b string) bool {
	return Fold(a) == Fold(b)
}
