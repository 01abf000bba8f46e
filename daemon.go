package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

// Search queries the peer network and prints the strongest results.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	if query == "" {
		return fmt.Errorf("search query required")
	}
	daemon, err := r.requireDaemon()
	if err != nil {
		return err
	}

	r.writePlain("Searching for %q...\n", query)
	results, err := daemon.Search(ctx, query, r.searchOptions())
	if err != nil {
		return err
	}
	if len(results.Tracks) == 0 {
		r.writePlain("No results (%d peers answered).\n", results.Responses)
		return nil
	}

	limit := cmd.Int("limit")
	if limit <= 0 || limit > len(results.Tracks) {
		limit = len(results.Tracks)
	}
	r.writePlain("%d results from %d peers, showing %d:\n",
		len(results.Tracks), results.Responses, limit)
	for _, t := range results.Tracks[:limit] {
		slot := " "
		if t.FreeSlot {
			slot = "*"
		}
		r.writePlain("  %s %-6s %9s  %s (%s)\n",
			slot, t.Quality, humanize.Bytes(uint64(t.Size)), t.Filename, t.Username)
	}
	return nil
}

// Downloads lists the daemon's transfers, optionally pruning finished
// ones first.
func (r *Runner) Downloads(ctx context.Context, cmd *cli.Command) error {
	daemon, err := r.requireDaemon()
	if err != nil {
		return err
	}

	if cmd.Bool("clear-completed") {
		if err := daemon.ClearCompleted(ctx); err != nil {
			return err
		}
		r.writePlain("Cleared completed transfers.\n")
	}

	downloads, err := daemon.Downloads(ctx)
	if err != nil {
		return err
	}
	if len(downloads) == 0 {
		r.writePlain("No transfers.\n")
		return nil
	}

	for _, d := range downloads {
		pct := 0.0
		if d.Size > 0 {
			pct = float64(d.BytesTransferred) / float64(d.Size) * 100
		}
		r.writePlain("  %-12s %5.1f%% %9s  %s (%s)\n",
			d.State, pct, humanize.Bytes(uint64(d.Size)), d.Filename, d.Username)
	}
	return nil
}
