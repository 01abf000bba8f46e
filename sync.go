package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/llehouerou/attune/internal/sync"
)

// SyncRun reads playlist descriptors and reconciles each against the
// media server.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("playlist file required (a path, or - for stdin)")
	}

	var in io.Reader
	if path == "-" {
		in = r.input
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open playlist file: %w", err)
		}
		defer f.Close()
		in = f
	}

	playlists, err := sync.ParsePlaylists(in)
	if err != nil {
		return err
	}

	engine, err := r.syncEngine(cmd.String("server"))
	if err != nil {
		return err
	}

	if cmd.Bool("compare") {
		return r.compare(ctx, engine, playlists)
	}
	if cmd.Bool("preview") {
		return r.preview(ctx, engine, playlists)
	}

	download := r.config.DownloadMissing()
	if cmd.Bool("no-download") {
		download = false
	} else if cmd.Bool("download") {
		download = true
	}

	engine.SetProgressFunc(func(name string, p sync.Progress) {
		if p.CurrentTrack != "" {
			r.writePlain("  [%3d%%] %s\n", p.Pct, p.CurrentTrack)
			return
		}
		r.writePlain("[%3d%%] %s: %s\n", p.Pct, name, p.Step)
	})

	results := engine.SyncMultiple(ctx, playlists, download)

	failed := 0
	cancelled := false
	for _, res := range results {
		r.printResult(res)
		switch err := res.Err(); {
		case err == nil:
		case errors.Is(err, sync.ErrSyncCancelled):
			cancelled = true
		default:
			failed++
		}
	}
	if cancelled {
		return sync.ErrSyncCancelled
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d playlists had errors", failed, len(results))
	}
	return nil
}

func (r *Runner) printResult(res sync.Result) {
	r.writePlain("\n%s\n", res.PlaylistName)
	r.writePlain("  matched %d/%d, synced %d, downloading %d, wishlisted %d, failed %d\n",
		res.MatchedTracks, res.TotalTracks, res.SyncedTracks,
		res.Downloaded, res.WishlistAdded, res.FailedTracks)
	r.writePlain("  success rate %.1f%%\n", res.SuccessRate())
	for _, msg := range res.Errors {
		r.writePlain("  error: %s\n", msg)
	}
}

func (r *Runner) preview(ctx context.Context, engine *sync.Engine, playlists []sync.Playlist) error {
	for _, p := range playlists {
		prev, err := engine.Preview(ctx, p)
		if err != nil {
			return err
		}
		r.writePlain("\n%s: %d of %d tracks available, %d missing\n",
			prev.PlaylistName, prev.Matched, prev.TotalTracks, prev.Missing)
		for _, entry := range prev.Entries {
			mark := "miss"
			if entry.Matched {
				mark = fmt.Sprintf("%.2f", entry.Confidence)
			}
			r.writePlain("  [%4s] %s - %s\n", mark, entry.Track.PrimaryArtist(), entry.Track.Name)
		}
	}
	return nil
}

func (r *Runner) compare(ctx context.Context, engine *sync.Engine, playlists []sync.Playlist) error {
	cmp, err := engine.LibraryComparison(ctx, playlists)
	if err != nil {
		return err
	}
	r.writePlain("Remote: %d playlists, %d tracks\n", cmp.RemotePlaylists, cmp.RemoteTracks)
	r.writePlain("Server: %d playlists, %d artists, %d albums, %d tracks\n",
		cmp.ServerPlaylists, cmp.ServerStats.Artists, cmp.ServerStats.Albums, cmp.ServerStats.Tracks)
	r.writePlain("At most %d tracks can match; up to %d would need downloading.\n",
		cmp.EstimatedMatches, cmp.PotentialDownloads)
	return nil
}

// Scan populates the catalog from the media server library.
func (r *Runner) Scan(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.syncEngine(cmd.String("server"))
	if err != nil {
		return err
	}

	if cmd.Bool("trigger") {
		if err := r.triggerServerScan(ctx, cmd.String("server")); err != nil {
			return err
		}
	}

	full := cmd.Bool("full")
	if full {
		r.writePlain("Rebuilding catalog from the media server...\n")
	} else {
		r.writePlain("Scanning recently added albums...\n")
	}

	started := time.Now()
	stats, err := engine.RefreshCatalog(ctx, sync.RefreshOptions{
		Full: full,
		Progress: func(stage string, done, total int) {
			r.writePlain("  [%d/%d] %s\n", done, total, stage)
		},
	})
	if err != nil {
		return err
	}

	r.writePlain("Catalog now holds %d artists, %d albums, %d tracks (took %s)\n",
		stats.Artists, stats.Albums, stats.Tracks, time.Since(started).Round(time.Second))
	return nil
}

// triggerServerScan asks the media server to index new files and waits,
// bounded, for the scan to settle so the catalog refresh sees them.
func (r *Runner) triggerServerScan(ctx context.Context, backend string) error {
	srv, err := r.mediaServer(backend)
	if err != nil {
		return err
	}
	if err := srv.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := srv.TriggerLibraryScan(ctx); err != nil {
		return fmt.Errorf("trigger library scan: %w", err)
	}
	r.writePlain("Server library scan triggered, waiting for it to settle...\n")

	deadline := time.Now().Add(2 * time.Minute)
	for time.Now().Before(deadline) {
		scanning, err := srv.IsScanning(ctx)
		if err != nil || !scanning {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	r.writePlain("Server still scanning; refreshing with what is indexed so far.\n")
	return nil
}
