package slskd

import (
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// audioExtensions are the only formats worth surfacing from peers.
var audioExtensions = map[string]Quality{
	"mp3":  QualityMP3,
	"flac": QualityFLAC,
	"ogg":  QualityOGG,
	"aac":  QualityAAC,
	"m4a":  QualityAAC,
	"wma":  QualityWMA,
	"wav":  QualityUnknown,
}

// Filename layouts peers commonly share, tried in order.
var (
	numArtistTitleRe = regexp.MustCompile(`^(\d+)\s*[-.]\s*(.+?)\s*[-–]\s*(.+)$`)
	artistTitleRe    = regexp.MustCompile(`^(.+?)\s*[-–]\s*(.+)$`)
	numTitleRe       = regexp.MustCompile(`^(\d+)\s*[-.]\s*(.+)$`)

	leadingTrackNumRe = regexp.MustCompile(`^\d+\s*[-.\s]+`)
	yearRe            = regexp.MustCompile(`[(\[\s-]((19|20)\d{2})[)\]]?\s*$`)
)

// fileQuality classifies a search result file by extension.
func fileQuality(f File) Quality {
	ext := strings.ToLower(strings.TrimPrefix(f.Extension, "."))
	if ext == "" {
		if i := strings.LastIndex(f.Filename, "."); i >= 0 {
			ext = strings.ToLower(f.Filename[i+1:])
		}
	}
	if q, ok := audioExtensions[ext]; ok {
		return q
	}
	return ""
}

// trackFromFile builds a TrackResult from one peer file, parsing whatever
// metadata the filename gives away.
func trackFromFile(resp SearchResponse, f File, q Quality) TrackResult {
	t := TrackResult{
		Username:    resp.Username,
		Filename:    f.Filename,
		Size:        f.Size,
		Bitrate:     f.BitRate,
		DurationMS:  f.Length * 1000,
		Quality:     q,
		FreeSlot:    resp.HasFreeSlot,
		UploadSpeed: resp.UploadSpeed,
		QueueLength: resp.QueueLength,
	}

	base := path.Base(strings.ReplaceAll(f.Filename, `\`, "/"))
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}

	switch {
	case numArtistTitleRe.MatchString(base):
		m := numArtistTitleRe.FindStringSubmatch(base)
		t.TrackNumber, _ = strconv.Atoi(m[1])
		t.Artist = strings.TrimSpace(m[2])
		t.Title = strings.TrimSpace(m[3])
	case artistTitleRe.MatchString(base):
		m := artistTitleRe.FindStringSubmatch(base)
		first := strings.TrimSpace(m[1])
		if n, err := strconv.Atoi(first); err == nil {
			t.TrackNumber = n
			t.Title = strings.TrimSpace(m[2])
		} else {
			t.Artist = first
			t.Title = strings.TrimSpace(m[2])
		}
	case numTitleRe.MatchString(base):
		m := numTitleRe.FindStringSubmatch(base)
		t.TrackNumber, _ = strconv.Atoi(m[1])
		t.Title = strings.TrimSpace(m[2])
	default:
		t.Title = strings.TrimSpace(base)
	}

	t.Album = albumTitleFromPath(f.Filename)
	t.QualityScore = trackScore(t)
	return t
}

// parentDirectory returns the directory portion of a remote path, which may
// use either separator depending on the peer's OS.
func parentDirectory(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[:i]
	}
	return ""
}

// albumTitleFromPath guesses an album title from the containing directory,
// skipping share-root noise like "@@abcde" and single-letter buckets.
func albumTitleFromPath(p string) string {
	parts := strings.FieldsFunc(parentDirectory(p), func(r rune) bool {
		return r == '/' || r == '\\'
	})
	for i := len(parts) - 1; i >= 0; i-- {
		dir := strings.TrimSpace(parts[i])
		if len(dir) < 2 || strings.HasPrefix(dir, "@") {
			continue
		}
		return cleanAlbumDir(dir)
	}
	return ""
}

func cleanAlbumDir(dir string) string {
	dir = leadingTrackNumRe.ReplaceAllString(dir, "")
	dir = yearRe.ReplaceAllString(dir, "")
	return strings.Trim(strings.TrimSpace(dir), "-_ ")
}

// yearFromText pulls a plausible release year (1900-2030) out of a
// directory name.
func yearFromText(s string) int {
	m := yearRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	year, _ := strconv.Atoi(m[1])
	if year < 1900 || year > 2030 {
		return 0
	}
	return year
}

// trackScore rates a candidate for download ordering. Format dominates,
// bitrate and peer health nudge.
func trackScore(t TrackResult) float64 {
	var score float64
	switch t.Quality {
	case QualityFLAC:
		score = 1.0
	case QualityMP3:
		score = 0.8
	case QualityOGG:
		score = 0.7
	case QualityAAC:
		score = 0.6
	case QualityWMA:
		score = 0.5
	default:
		score = 0.3
	}

	switch {
	case t.Bitrate >= 320:
		score += 0.2
	case t.Bitrate >= 256:
		score += 0.1
	case t.Bitrate > 0 && t.Bitrate < 128:
		score -= 0.2
	}

	if t.FreeSlot {
		score += 0.1
	}
	if t.UploadSpeed > 100 {
		score += 0.05
	}
	if t.QueueLength > 10 {
		score -= 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	if score < 0 {
		score = 0
	}
	return score
}

func albumScore(tracks []TrackResult) float64 {
	if len(tracks) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tracks {
		sum += t.QualityScore
	}
	score := sum / float64(len(tracks))

	switch n := len(tracks); {
	case n >= 8 && n <= 20:
		score += 0.1
	case n > 20:
		score += 0.05
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// groupAlbums partitions tracks into per-peer directory albums. Directories
// contributing at least two tracks become AlbumResults and their tracks
// leave the flat list.
func groupAlbums(all []TrackResult) ([]TrackResult, []AlbumResult) {
	type dirKey struct {
		username  string
		directory string
	}

	groups := make(map[dirKey][]TrackResult)
	order := make([]dirKey, 0)
	for _, t := range all {
		key := dirKey{t.Username, parentDirectory(t.Filename)}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], t)
	}

	var singles []TrackResult
	var albums []AlbumResult
	for _, key := range order {
		tracks := groups[key]
		if len(tracks) < 2 {
			singles = append(singles, tracks...)
			continue
		}

		sort.SliceStable(tracks, func(i, j int) bool {
			if tracks[i].TrackNumber != tracks[j].TrackNumber {
				return tracks[i].TrackNumber < tracks[j].TrackNumber
			}
			return tracks[i].Filename < tracks[j].Filename
		})

		album := AlbumResult{
			Username:    key.username,
			Directory:   key.directory,
			Title:       albumTitleFromPath(tracks[0].Filename),
			Artist:      dominantArtist(tracks),
			TrackCount:  len(tracks),
			Tracks:      tracks,
			Dominant:    dominantQuality(tracks),
			Year:        yearFromText(key.directory),
			FreeSlot:    tracks[0].FreeSlot,
			UploadSpeed: tracks[0].UploadSpeed,
			QueueLength: tracks[0].QueueLength,
		}
		for _, t := range tracks {
			album.TotalSize += t.Size
		}
		album.QualityScore = albumScore(tracks)
		albums = append(albums, album)
	}

	sort.SliceStable(singles, func(i, j int) bool {
		return singles[i].QualityScore > singles[j].QualityScore
	})
	sort.SliceStable(albums, func(i, j int) bool {
		return albums[i].QualityScore > albums[j].QualityScore
	})
	return singles, albums
}

func dominantQuality(tracks []TrackResult) Quality {
	counts := make(map[Quality]int)
	for _, t := range tracks {
		counts[t.Quality]++
	}
	var best Quality
	var bestCount int
	for q, n := range counts {
		if n > bestCount {
			best, bestCount = q, n
		}
	}
	return best
}

func dominantArtist(tracks []TrackResult) string {
	counts := make(map[string]int)
	for _, t := range tracks {
		if t.Artist != "" {
			counts[t.Artist]++
		}
	}
	var best string
	var bestCount int
	for a, n := range counts {
		if n > bestCount {
			best, bestCount = a, n
		}
	}
	return best
}
