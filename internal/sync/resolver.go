package sync

import (
	"context"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/dhowden/tag"

	"github.com/llehouerou/attune/internal/match"
	"github.com/llehouerou/attune/internal/mediaserver"
)

// Confidence per resolver tier. Server metadata hits are exact;
// filesystem hits are near-certain but not yet indexed; catalog hits
// carry their fuzzy-match score.
const (
	confidenceServer     = 1.0
	confidenceFilesystem = 0.95
)

// audioExtensions are the file types the transfer daemon lands.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".m4a":  true,
	".wav":  true,
	".ogg":  true,
	".aac":  true,
	".wma":  true,
}

// resolution couples a playlist request with the server track that
// satisfied it.
type resolution struct {
	request    PlaylistTrack
	track      *mediaserver.Track
	confidence float64
}

// resolve walks the three matching tiers for one playlist track: direct
// server metadata search, a filename probe over the transfer directory,
// then fuzzy catalog lookup above the configured threshold. Tiers one and
// three run once per artist credit, so collaborations match under any of
// their names.
func (e *Engine) resolve(ctx context.Context, track PlaylistTrack) (*mediaserver.Track, float64) {
	for _, artist := range track.Artists {
		if ctx.Err() != nil {
			return nil, 0
		}
		found, err := e.server.SearchTracks(ctx, track.Name, artist)
		if err != nil {
			e.log.Debug("server search failed", "track", track.Name, "artist", artist, "err", err)
			continue
		}
		if len(found) > 0 {
			return &found[0], confidenceServer
		}
	}

	if t := e.probeFilesystem(ctx, track); t != nil {
		return t, confidenceFilesystem
	}

	threshold := e.cfg.GetMatchingConfig().TrackThreshold
	for _, artist := range track.Artists {
		if ctx.Err() != nil {
			return nil, 0
		}
		m, confidence, err := e.catalog.CheckTrackExists(track.Name, artist, threshold, e.server.Source())
		if err != nil {
			e.log.Debug("catalog lookup failed", "track", track.Name, "artist", artist, "err", err)
			continue
		}
		if m == nil {
			continue
		}
		// Trade the catalog row for a live server object; a stale row
		// whose track has left the server is a miss.
		live, err := e.server.TrackByID(ctx, m.ID)
		if err != nil {
			e.log.Debug("catalog hit not on server", "track", m.Title, "id", m.ID, "err", err)
			continue
		}
		return live, confidence
	}
	return nil, 0
}

// probeFilesystem looks for an already-downloaded file the server has not
// indexed yet. Completed transfers usually land in a folder carrying the
// uploader's artist naming, so artist-named folders are walked before
// falling back to the whole transfer tree.
func (e *Engine) probeFilesystem(ctx context.Context, track PlaylistTrack) *mediaserver.Track {
	root := e.cfg.Soulseek.TransferPath
	if root == "" {
		return nil
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil
	}

	needle := fsNeedle(track.Name)
	if len(needle) < 3 {
		return nil
	}

	for _, dir := range probeRoots(root, track.Artists) {
		if ctx.Err() != nil {
			return nil
		}
		path := findAudioFile(ctx, dir, needle, track.Artists)
		if path == "" {
			continue
		}
		// Prefer the real library entry when the server has already
		// scanned the file.
		if known, err := e.server.TrackByFilename(ctx, filepath.Base(path)); err == nil && known != nil {
			return known
		}
		e.log.Info("matched on filesystem", "track", track.Name, "file", filepath.Base(path))
		return placeholderTrack(track, path)
	}
	return nil
}

// probeRoots orders the directories to search: folders whose name carries
// one of the artist credits when any exist, otherwise the transfer root.
func probeRoots(root string, artists []string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return []string{root}
	}

	var roots []string
	seen := make(map[string]bool)
	for _, artist := range artists {
		want := fsNeedle(artist)
		if len(want) < 3 {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || seen[entry.Name()] {
				continue
			}
			if strings.Contains(fsNeedle(entry.Name()), want) {
				seen[entry.Name()] = true
				roots = append(roots, filepath.Join(root, entry.Name()))
			}
		}
	}
	if len(roots) == 0 {
		return []string{root}
	}
	return roots
}

// findAudioFile walks dir for an audio file whose name carries needle.
// A readable tag naming a conflicting artist rejects the hit; unreadable
// tags and missing fields keep it, since fresh downloads are often
// untagged.
func findAudioFile(ctx context.Context, dir, needle string, artists []string) string {
	var found string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return filepath.SkipAll
		}
		if err != nil || d.IsDir() {
			return nil
		}
		if !audioExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if !strings.Contains(fsNeedle(d.Name()), needle) {
			return nil
		}
		if !tagArtistMatches(path, artists) {
			return nil
		}
		found = path
		return filepath.SkipAll
	})
	return found
}

// tagArtistMatches confirms a filename hit against embedded tags.
func tagArtistMatches(path string, artists []string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return true
	}
	tagged := match.Normalize(meta.Artist())
	if tagged == "" {
		return true
	}

	for _, artist := range artists {
		want := match.Normalize(artist)
		if want == "" {
			continue
		}
		if strings.Contains(tagged, want) || strings.Contains(want, tagged) {
			return true
		}
		if match.Similarity(tagged, want) >= 0.6 {
			return true
		}
	}
	return false
}

// fsNeedle reduces a name for filename containment checks: diacritics
// folded, lowercased, everything but letters, digits, spaces, hyphens and
// underscores dropped.
func fsNeedle(s string) string {
	var b strings.Builder
	for _, r := range match.Normalize(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// placeholderTrack stands in for a file the daemon delivered but the
// server has not scanned yet. The synthetic id is stable per path so
// repeated syncs resolve to the same placeholder.
func placeholderTrack(track PlaylistTrack, path string) *mediaserver.Track {
	h := fnv.New64a()
	h.Write([]byte(path))
	return &mediaserver.Track{
		ID:          fmt.Sprintf("fs_%x", h.Sum64()),
		Title:       track.Name,
		ArtistName:  track.PrimaryArtist(),
		AlbumTitle:  track.Album,
		DurationMS:  track.DurationMS,
		FilePath:    path,
		IsFileMatch: true,
	}
}
