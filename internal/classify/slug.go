package classify

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldName lower-cases s, strips diacritics, and collapses whitespace.
func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// NameKey returns a normalised key for de-duplicating resorts by name, so
// "Mt. Bachelor" variants differing only by case, accents, or spacing collide.
func NameKey(name string) string {
	return foldName(name)
}

// Slug builds a stable identifier from free text: lower-case, accents
// stripped, whitespace replaced by hyphens.
func Slug(s string) string {
	return strings.ReplaceAll(foldName(s), " ", "-")
}
