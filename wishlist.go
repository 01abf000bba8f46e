package main

import (
	"context"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

// WishlistList shows pending entries, oldest first, with a backlog
// summary on top.
func (r *Runner) WishlistList(ctx context.Context, cmd *cli.Command) error {
	stats, err := r.wishes.Stats()
	if err != nil {
		return err
	}
	if stats.Pending == 0 {
		r.writePlain("Wishlist is empty.\n")
		return nil
	}

	r.writePlain("%d pending (%d never tried, %d retried, max %d retries)\n",
		stats.Pending, stats.NeverTried, stats.Retried, stats.MaxRetries)

	entries, err := r.wishes.Pending(cmd.Int("limit"))
	if err != nil {
		return err
	}
	for _, e := range entries {
		line := e.Name
		if len(e.Artists) > 0 {
			line = strings.Join(e.Artists, ", ") + " - " + e.Name
		}
		r.writePlain("  %s\n", line)
		r.writePlain("    added %s, %d retries", humanize.Time(e.DateAdded), e.RetryCount)
		if e.FailureReason != "" {
			r.writePlain(", last: %s", e.FailureReason)
		}
		r.writePlain("\n")
	}
	return nil
}

// WishlistProcess retries pending entries against the transfer daemon.
func (r *Runner) WishlistProcess(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireDaemon(); err != nil {
		return err
	}

	res, err := r.wishes.ProcessPending(ctx, cmd.Int("limit"))
	if err != nil {
		return err
	}
	if res.Attempted == 0 {
		r.writePlain("Nothing to process.\n")
		return nil
	}

	for _, o := range res.Outcomes {
		if o.Success {
			r.writePlain("  queued: %s\n", o.Track.Name)
		} else {
			r.writePlain("  failed: %s (%s)\n", o.Track.Name, o.Reason)
		}
	}
	r.writePlain("Attempted %d, queued %d, failed %d.\n",
		res.Attempted, res.Succeeded, res.Failed)
	return nil
}

// WishlistClear drops every entry.
func (r *Runner) WishlistClear(ctx context.Context, cmd *cli.Command) error {
	removed, err := r.wishes.Clear()
	if err != nil {
		return err
	}
	r.writePlain("Removed %d entries.\n", removed)
	return nil
}

// WishlistDedupe collapses duplicate entries.
func (r *Runner) WishlistDedupe(ctx context.Context, cmd *cli.Command) error {
	removed, err := r.wishes.RemoveDuplicates()
	if err != nil {
		return err
	}
	r.writePlain("Removed %d duplicates.\n", removed)
	return nil
}
