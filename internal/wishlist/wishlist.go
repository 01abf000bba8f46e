// Package wishlist works the backlog of tracks earlier syncs could not
// deliver: listing, retrying against the transfer daemon, and
// housekeeping. Entries are written by the sync engine; a successful
// retry is the only thing that removes one.
package wishlist

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/llehouerou/attune/internal/catalog"
	"github.com/llehouerou/attune/internal/config"
	"github.com/llehouerou/attune/internal/match"
	"github.com/llehouerou/attune/internal/quality"
	"github.com/llehouerou/attune/internal/slskd"
)

// Service provides wishlist operations over the catalog store and the
// transfer daemon.
type Service struct {
	store  *catalog.Store
	daemon *slskd.Client
	cfg    *config.Config
	log    *log.Logger
}

// New assembles a wishlist service. daemon may be nil; processing then
// fails fast while listing and housekeeping still work.
func New(store *catalog.Store, daemon *slskd.Client, cfg *config.Config, logger *log.Logger) *Service {
	return &Service{store: store, daemon: daemon, cfg: cfg, log: logger.With("component", "wishlist")}
}

// Pending lists entries oldest first. limit <= 0 means all.
func (s *Service) Pending(limit int) ([]catalog.WishlistTrack, error) {
	return s.store.WishlistTracks(limit)
}

// Count returns the number of pending entries.
func (s *Service) Count() (int, error) {
	return s.store.WishlistCount()
}

// Clear drops every entry and reports how many were removed.
func (s *Service) Clear() (int64, error) {
	return s.store.ClearWishlist()
}

// RemoveDuplicates collapses rows sharing (name, primary artist), keeping
// the oldest of each set.
func (s *Service) RemoveDuplicates() (int, error) {
	return s.store.RemoveWishlistDuplicates()
}

// Outcome reports one retry attempt.
type Outcome struct {
	Track   catalog.WishlistTrack
	Success bool
	Reason  string
}

// ProcessResult totals one processing run.
type ProcessResult struct {
	Attempted int
	Succeeded int
	Failed    int
	Outcomes  []Outcome
}

// ProcessPending retries up to limit entries, oldest first, pacing one
// daemon search per second. A successful enqueue drops the entry;
// failures bump its retry counter with the latest reason. Cancellation
// stops the run and returns what was done so far.
func (s *Service) ProcessPending(ctx context.Context, limit int) (ProcessResult, error) {
	var res ProcessResult
	if s.daemon == nil {
		return res, fmt.Errorf("transfer daemon not configured")
	}

	entries, err := s.store.WishlistTracks(limit)
	if err != nil {
		return res, fmt.Errorf("load wishlist: %w", err)
	}
	if len(entries) == 0 {
		return res, nil
	}

	profile, err := s.store.QualityProfile()
	if err != nil {
		s.log.Warn("quality profile unavailable, using default", "err", err)
		profile = quality.Default()
	}
	daemonCfg := s.cfg.GetSoulseekConfig()
	opts := slskd.SearchOptions{
		Timeout: time.Duration(daemonCfg.SearchTimeout) * time.Second,
		Buffer:  time.Duration(daemonCfg.SearchTimeoutBuffer) * time.Second,
	}
	pick := func(candidates []slskd.TrackResult) (slskd.TrackResult, bool) {
		return quality.Best(candidates, profile)
	}

	pacer := rate.NewLimiter(rate.Every(time.Second), 1)
	s.log.Info("processing wishlist", "entries", len(entries))

	for _, entry := range entries {
		if err := pacer.Wait(ctx); err != nil {
			return res, err
		}

		artist := ""
		if len(entry.Artists) > 0 {
			artist = entry.Artists[0]
		}
		query := match.DownloadQuery(entry.Name, artist)

		got, err := s.daemon.SearchAndDownloadBest(ctx, query, opts, pick)
		res.Attempted++

		success := err == nil && got != nil
		reason := ""
		switch {
		case err != nil:
			reason = err.Error()
		case got == nil:
			reason = "no acceptable source found"
		}

		if _, uerr := s.store.UpdateWishlistRetry(entry.TrackID, success, reason); uerr != nil {
			s.log.Warn("retry bookkeeping failed", "track", entry.Name, "err", uerr)
		}

		if success {
			res.Succeeded++
			s.log.Info("wishlist download queued", "track", entry.Name, "user", got.Username)
		} else {
			res.Failed++
			s.log.Debug("wishlist retry failed", "track", entry.Name, "reason", reason)
		}
		res.Outcomes = append(res.Outcomes, Outcome{Track: entry, Success: success, Reason: reason})

		if ctx.Err() != nil {
			break
		}
	}

	s.log.Info("wishlist run complete",
		"attempted", res.Attempted, "queued", res.Succeeded, "failed", res.Failed)
	return res, nil
}

// Stats summarizes the backlog.
type Stats struct {
	Pending      int
	NeverTried   int
	Retried      int
	MaxRetries   int
	OldestAdded  time.Time
	BySourceType map[string]int
}

// Stats walks the backlog and aggregates retry counts per source type.
func (s *Service) Stats() (Stats, error) {
	entries, err := s.store.WishlistTracks(0)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Pending: len(entries), BySourceType: make(map[string]int)}
	for _, e := range entries {
		if e.RetryCount == 0 {
			st.NeverTried++
		} else {
			st.Retried++
		}
		if e.RetryCount > st.MaxRetries {
			st.MaxRetries = e.RetryCount
		}
		if st.OldestAdded.IsZero() || e.DateAdded.Before(st.OldestAdded) {
			st.OldestAdded = e.DateAdded
		}
		st.BySourceType[e.SourceType]++
	}
	return st, nil
}
