package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

// WatchlistAdd starts monitoring an artist. The artist id is resolved
// through the catalog unless given explicitly.
func (r *Runner) WatchlistAdd(ctx context.Context, cmd *cli.Command) error {
	name := cmd.StringArg("artist")
	if name == "" {
		return fmt.Errorf("artist name required")
	}

	id := cmd.String("id")
	if id == "" {
		matches, err := r.catalog.SearchArtists(name, 5)
		if err != nil {
			return err
		}
		for _, m := range matches {
			if strings.EqualFold(m.Name, name) {
				id, name = m.ID, m.Name
				break
			}
		}
		if id == "" && len(matches) == 1 {
			id, name = matches[0].ID, matches[0].Name
		}
		if id == "" {
			if len(matches) == 0 {
				return fmt.Errorf("artist %q not in catalog; scan first or pass --id", name)
			}
			r.writePlain("Ambiguous name, candidates:\n")
			for _, m := range matches {
				r.writePlain("  %s (%s)\n", m.Name, m.ID)
			}
			return fmt.Errorf("pass --id to pick one")
		}
	}

	if err := r.catalog.AddToWatchlist(id, name); err != nil {
		return err
	}
	r.writePlain("Watching %s.\n", name)
	return nil
}

// WatchlistRemove stops monitoring an artist, accepting a name or id.
func (r *Runner) WatchlistRemove(ctx context.Context, cmd *cli.Command) error {
	target := cmd.StringArg("artist")
	if target == "" {
		return fmt.Errorf("artist name or id required")
	}

	id := target
	artists, err := r.catalog.WatchlistArtists()
	if err != nil {
		return err
	}
	for _, a := range artists {
		if strings.EqualFold(a.ArtistName, target) {
			id = a.ArtistID
			break
		}
	}

	removed, err := r.catalog.RemoveFromWatchlist(id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%q is not on the watchlist", target)
	}
	r.writePlain("Stopped watching %s.\n", target)
	return nil
}

// WatchlistList shows monitored artists.
func (r *Runner) WatchlistList(ctx context.Context, cmd *cli.Command) error {
	artists, err := r.catalog.WatchlistArtists()
	if err != nil {
		return err
	}
	if len(artists) == 0 {
		r.writePlain("Watchlist is empty.\n")
		return nil
	}

	for _, a := range artists {
		scanned := "never scanned"
		if !a.LastScanned.IsZero() {
			scanned = "scanned " + humanize.Time(a.LastScanned)
		}
		r.writePlain("  %s (added %s, %s)\n",
			a.ArtistName, humanize.Time(a.DateAdded), scanned)
	}
	return nil
}

// WatchlistReleases shows releases spotted for monitored artists during
// catalog refreshes.
func (r *Runner) WatchlistReleases(ctx context.Context, cmd *cli.Command) error {
	releases, err := r.catalog.RecentReleases(cmd.Int("limit"))
	if err != nil {
		return err
	}
	if len(releases) == 0 {
		r.writePlain("No releases spotted yet (run: attune scan).\n")
		return nil
	}

	names := make(map[int64]string)
	if artists, err := r.catalog.WatchlistArtists(); err == nil {
		for _, a := range artists {
			names[a.ID] = a.ArtistName
		}
	}

	for _, rel := range releases {
		artist := names[rel.WatchlistArtistID]
		if artist == "" {
			artist = "(unwatched)"
		}
		line := fmt.Sprintf("  %s - %s", artist, rel.AlbumName)
		if rel.ReleaseDate != "" {
			line += fmt.Sprintf(" (%s)", rel.ReleaseDate)
		}
		if rel.TrackCount > 0 {
			line += fmt.Sprintf(", %d tracks", rel.TrackCount)
		}
		r.writePlain("%s, spotted %s\n", line, humanize.Time(rel.AddedAt))
	}
	return nil
}
