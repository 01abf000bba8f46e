package match

import "strings"

// DownloadQuery builds a transfer-daemon search string from a track title
// and its primary artist. Noise markers are stripped from the title and
// both parts are accent-folded, since peer share names rarely carry
// diacritics or "(feat. ...)" suffixes.
func DownloadQuery(title, artist string) string {
	parts := []string{Normalize(artist), Normalize(CleanTrackTitle(title))}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
