package match

import (
	"regexp"
	"strings"
)

// Edition suffixes are recognized in three shapes: parenthesized or
// bracketed ("Album (Deluxe Edition)"), dash-separated ("Album - 2011
// Remaster") and bare trailing words ("Album Deluxe Edition").
var editionStripPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*[(\[][^)\]]*(deluxe|expanded|platinum|special|anniversary|remaster(?:ed)?|edition|version)[^)\]]*[)\]]\s*$`),
	regexp.MustCompile(`(?i)\s*-\s*[^-]*(deluxe|expanded|platinum|special|anniversary|remaster(?:ed)?|edition|version)[^-]*$`),
	regexp.MustCompile(`(?i)\s+(deluxe|expanded|platinum|special|anniversary)(\s+(edition|version))?\s*$`),
	regexp.MustCompile(`(?i)\s+remaster(?:ed)?\s*$`),
}

var commonEditions = []string{"Deluxe Edition", "Deluxe", "Platinum Edition", "Special Edition"}

// StripEdition removes any recognized edition suffix from an album title.
func StripEdition(title string) string {
	base := title
	for _, re := range editionStripPatterns {
		base = strings.TrimSpace(re.ReplaceAllString(base, ""))
	}
	return base
}

// AlbumTitleVariations returns the original title, its edition-stripped
// base form, and the base re-decorated with common edition markers.
// Duplicates are removed case-insensitively, preserving insertion order.
func AlbumTitleVariations(title string) []string {
	variations := []string{title}
	base := StripEdition(title)
	if base != "" {
		variations = append(variations, base)
		for _, ed := range commonEditions {
			variations = append(variations, base+" ("+ed+")")
		}
	}
	return dedupFold(variations)
}

var (
	dashSplitRe   = regexp.MustCompile(`^(.*\S)\s+-\s+(\S.*)$`)
	parenSuffixRe = regexp.MustCompile(`^(.*\S)\s*\(([^)]+)\)\s*$`)
	explicitTagRe = regexp.MustCompile(`(?i)\s*[(\[]\s*(explicit|clean)\s*[)\]]`)
	featParenRe   = regexp.MustCompile(`(?i)\s*[(\[]\s*(feat|ft|featuring)\.?\s[^)\]]*[)\]]`)
	editSuffixRe  = regexp.MustCompile(`(?i)\s*[(\[\-]?\s*(radio|tv)\s+edit\s*[)\]]?\s*$`)
	bracketRe     = regexp.MustCompile(`[()\[\]]`)

	// Markers that denote a different recording of the same song. Titles
	// carrying one of these never shed it: a live cut is not the studio cut.
	recordingMarkerRe = regexp.MustCompile(`(?i)\b(live|remix|mix|acoustic|instrumental|demo|extended|unplugged|version)\b`)
)

// TrackTitleVariations returns the original title plus bracket/dash
// transforms and copies with explicit/clean tags, featured-artist credits
// and radio/tv edit suffixes removed. Parts naming a different recording
// (live, remix, acoustic, ...) are transformed but never dropped.
func TrackTitleVariations(title string) []string {
	variations := []string{title}

	if m := dashSplitRe.FindStringSubmatch(title); m != nil {
		variations = append(variations, m[1]+" ("+m[2]+")")
		if !recordingMarkerRe.MatchString(m[2]) {
			variations = append(variations, m[1])
		}
	}
	if m := parenSuffixRe.FindStringSubmatch(title); m != nil {
		variations = append(variations, m[1]+" - "+m[2])
		if !recordingMarkerRe.MatchString(m[2]) {
			variations = append(variations, m[1])
		}
	}
	for _, re := range []*regexp.Regexp{explicitTagRe, featParenRe, editSuffixRe} {
		if s := strings.TrimSpace(re.ReplaceAllString(title, "")); s != "" && !strings.EqualFold(s, title) {
			variations = append(variations, s)
		}
	}
	return dedupFold(variations)
}

// CleanTrackTitle prepares a track title for comparison: featured credits,
// explicit/clean tags and radio/tv edit suffixes removed, remaining
// brackets flattened to spaces, lowercased. Different-recording markers
// survive as plain words so "Song (Live)" still differs from "Song".
func CleanTrackTitle(title string) string {
	s := featParenRe.ReplaceAllString(title, "")
	s = explicitTagRe.ReplaceAllString(s, "")
	s = editSuffixRe.ReplaceAllString(s, "")
	s = bracketRe.ReplaceAllString(s, " ")
	s = multipleSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(strings.ToLower(s))
}

// CleanAlbumTitle prepares an album title for comparison: edition suffix
// stripped, brackets flattened, lowercased.
func CleanAlbumTitle(title string) string {
	s := StripEdition(title)
	s = bracketRe.ReplaceAllString(s, " ")
	s = multipleSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(strings.ToLower(s))
}
