package main

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

// Status reports catalog, media server and transfer daemon health.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	r.writePlain("Catalog: %s\n", r.catalog.Path())

	if stats, err := r.catalog.Statistics(r.backendSource()); err == nil {
		r.writePlain("  %d artists, %d albums, %d tracks\n",
			stats.Artists, stats.Albums, stats.Tracks)
	} else {
		r.writePlain("  statistics unavailable: %v\n", err)
	}
	if last, err := r.catalog.LastFullRefresh(); err == nil {
		if last.IsZero() {
			r.writePlain("  never fully refreshed (run: attune scan --full)\n")
		} else {
			r.writePlain("  last full refresh %s\n", humanize.Time(last))
		}
	}
	if n, err := r.catalog.WishlistCount(); err == nil {
		r.writePlain("  wishlist: %d pending\n", n)
	}
	if n, err := r.catalog.WatchlistCount(); err == nil {
		r.writePlain("  watchlist: %d artists\n", n)
	}

	backend := r.config.MediaServer.Backend
	srv, err := r.mediaServer("")
	if err != nil {
		return err
	}
	if err := srv.Connect(ctx); err != nil {
		r.writePlain("Media server (%s): unreachable: %v\n", backend, err)
	} else if stats, err := srv.LibraryStats(ctx); err != nil {
		r.writePlain("Media server (%s): connected, stats unavailable: %v\n", backend, err)
	} else {
		r.writePlain("Media server (%s): connected, %d artists, %d albums, %d tracks\n",
			backend, stats.Artists, stats.Albums, stats.Tracks)
		if scanning, err := srv.IsScanning(ctx); err == nil && scanning {
			r.writePlain("  library scan in progress\n")
		}
	}

	if r.daemon == nil {
		r.writePlain("Transfer daemon: not configured\n")
		return nil
	}
	if err := r.daemon.CheckConnection(ctx); err != nil {
		r.writePlain("Transfer daemon: unreachable: %v\n", err)
		return nil
	}
	downloads, err := r.daemon.Downloads(ctx)
	if err != nil {
		r.writePlain("Transfer daemon: connected, transfers unavailable: %v\n", err)
		return nil
	}
	r.writePlain("Transfer daemon: connected, %d transfers\n", len(downloads))
	return nil
}
