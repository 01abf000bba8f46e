package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// Discover surfaces Last.fm data: similar artists for a name (or its top
// tracks with --tracks), pooled recommendations with no argument, or a
// full watchlist refresh with --refresh.
func (r *Runner) Discover(ctx context.Context, cmd *cli.Command) error {
	if r.discovery == nil {
		return fmt.Errorf("discovery not configured (set lastfm.api_key and lastfm.api_secret)")
	}
	limit := cmd.Int("limit")

	if cmd.Bool("refresh") {
		res, err := r.discovery.RefreshWatchlist(ctx)
		if err != nil {
			return err
		}
		r.writePlain("Scanned %d artists, %d similar found, %d tracks pooled.\n",
			res.ArtistsScanned, res.SimilarFound, res.TracksPooled)
		for _, msg := range res.Errors {
			r.writePlain("  error: %s\n", msg)
		}
		return nil
	}

	if artist := cmd.StringArg("artist"); artist != "" {
		if cmd.Bool("tracks") {
			tracks, err := r.discovery.TopTracks(artist, limit)
			if err != nil {
				return err
			}
			if len(tracks) == 0 {
				r.writePlain("No tracks known for %s.\n", artist)
				return nil
			}
			r.writePlain("Top tracks by %s:\n", artist)
			for i, t := range tracks {
				r.writePlain("  %2d. %s\n", i+1, t.Name)
			}
			return nil
		}

		similar, err := r.discovery.SimilarArtists(artist, limit)
		if err != nil {
			return err
		}
		if len(similar) == 0 {
			r.writePlain("No similar artists known for %s.\n", artist)
			return nil
		}
		r.writePlain("Similar to %s:\n", artist)
		for _, s := range similar {
			r.writePlain("  %.2f  %s\n", s.MatchScore, s.Name)
		}
		return nil
	}

	pooled, err := r.discovery.Recommendations(limit)
	if err != nil {
		return err
	}
	if len(pooled) == 0 {
		r.writePlain("Recommendation pool is empty. Add artists to the watchlist and run: attune discover --refresh\n")
		return nil
	}
	r.writePlain("Pooled recommendations:\n")
	for _, t := range pooled {
		r.writePlain("  %s - %s (via %s)\n", t.ArtistName, t.TrackName, t.SourceArtist)
	}
	return nil
}
