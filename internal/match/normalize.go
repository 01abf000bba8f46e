// Package match implements the fuzzy string matching used to reconcile
// requested tracks and albums against library records: normalization,
// similarity scoring, title variation generation and confidence scores.
package match

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiFold maps letters that do not decompose into a base letter plus
// combining marks, so the NFD pass alone would leave them untouched.
var asciiFold = strings.NewReplacer(
	"ø", "o", "Ø", "o",
	"đ", "d", "Đ", "d",
	"ł", "l", "Ł", "l",
	"ß", "ss",
	"æ", "ae", "Æ", "ae",
	"œ", "oe", "Œ", "oe",
	"ð", "d", "Ð", "d",
	"þ", "th", "Þ", "th",
)

var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var (
	punctuationRe   = regexp.MustCompile(`[^\w\s]`)
	multipleSpaceRe = regexp.MustCompile(`\s+`)
)

// Normalize folds diacritics to their ASCII base letters, lowercases and
// trims surrounding whitespace. Idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	folded, _, err := transform.String(foldTransform, s)
	if err != nil {
		folded = s
	}
	folded = asciiFold.Replace(folded)
	return strings.TrimSpace(strings.ToLower(folded))
}

// NormalizeWords normalizes for word-level comparison: diacritics folded,
// punctuation replaced with spaces, whitespace collapsed.
func NormalizeWords(s string) string {
	s = Normalize(s)
	s = punctuationRe.ReplaceAllString(s, " ")
	s = multipleSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

var titleCaser = cases.Title(language.Und)

// ArtistVariations returns the aliases tried when searching for an artist:
// the original name, its normalized form and the normalized form re-cased.
// Duplicates are removed case-insensitively, preserving insertion order.
func ArtistVariations(name string) []string {
	variations := []string{name}
	if n := Normalize(name); n != "" {
		variations = append(variations, n, titleCaser.String(n))
	}
	return dedupFold(variations)
}

// dedupFold removes case-insensitive duplicates, keeping first occurrences.
func dedupFold(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		key := strings.ToLower(it)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}
