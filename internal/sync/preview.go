package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/llehouerou/attune/internal/mediaserver"
)

// PreviewEntry is one track's resolution outcome in a dry run.
type PreviewEntry struct {
	Track      PlaylistTrack
	Matched    bool
	MatchTitle string
	Confidence float64
}

// PreviewResult summarizes what a sync would do without doing it.
type PreviewResult struct {
	PlaylistName string
	TotalTracks  int
	Matched      int
	Missing      int
	Entries      []PreviewEntry
	GeneratedAt  time.Time
}

// Preview resolves every playlist track without downloading, mirroring,
// or recording wishlist entries.
func (e *Engine) Preview(ctx context.Context, playlist Playlist) (PreviewResult, error) {
	if len(playlist.Tracks) == 0 {
		return PreviewResult{}, fmt.Errorf("playlist '%s' has no tracks", playlist.Name)
	}
	if err := e.server.Connect(ctx); err != nil {
		return PreviewResult{}, fmt.Errorf("connect: %w", err)
	}

	res := PreviewResult{
		PlaylistName: playlist.Name,
		TotalTracks:  len(playlist.Tracks),
		GeneratedAt:  time.Now(),
		Entries:      make([]PreviewEntry, 0, len(playlist.Tracks)),
	}
	for _, track := range playlist.Tracks {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		entry := PreviewEntry{Track: track}
		if found, confidence := e.resolve(ctx, track); found != nil {
			entry.Matched = true
			entry.MatchTitle = found.Title
			entry.Confidence = confidence
			res.Matched++
		} else {
			res.Missing++
		}
		res.Entries = append(res.Entries, entry)
	}
	return res, nil
}

// Comparison sets a remote playlist corpus against the server library.
type Comparison struct {
	RemotePlaylists int
	RemoteTracks    int
	ServerPlaylists int
	ServerStats     mediaserver.Stats

	// EstimatedMatches and PotentialDownloads are coarse bounds: a
	// library can match at most as many tracks as it holds.
	EstimatedMatches   int
	PotentialDownloads int
}

// LibraryComparison sizes up a batch of remote playlists against the
// server library without resolving individual tracks.
func (e *Engine) LibraryComparison(ctx context.Context, playlists []Playlist) (Comparison, error) {
	if err := e.server.Connect(ctx); err != nil {
		return Comparison{}, fmt.Errorf("connect: %w", err)
	}

	cmp := Comparison{RemotePlaylists: len(playlists)}
	for _, p := range playlists {
		cmp.RemoteTracks += len(p.Tracks)
	}

	serverLists, err := e.server.Playlists(ctx)
	if err != nil {
		return Comparison{}, fmt.Errorf("list playlists: %w", err)
	}
	cmp.ServerPlaylists = len(serverLists)

	stats, err := e.server.LibraryStats(ctx)
	if err != nil {
		return Comparison{}, fmt.Errorf("library stats: %w", err)
	}
	cmp.ServerStats = stats

	cmp.EstimatedMatches = min(cmp.RemoteTracks, stats.Tracks)
	cmp.PotentialDownloads = cmp.RemoteTracks - cmp.EstimatedMatches
	return cmp, nil
}
