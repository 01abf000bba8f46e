package slskd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"
)

const (
	pollInterval = time.Second

	// Soulseek rarely yields anything new past this many peers.
	responseCeiling = 30

	// Daemon search history is pruned when it grows past historyTrigger,
	// keeping the newest historyKeep entries.
	historyTrigger = 200
	historyKeep    = 50
)

// SearchOptions bound one search. Timeout is the daemon-side deadline;
// Buffer extends the client-side polling window past it.
type SearchOptions struct {
	Timeout  time.Duration
	Buffer   time.Duration
	Progress ProgressFunc
}

func (o *SearchOptions) normalize() {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Buffer <= 0 {
		o.Buffer = 10 * time.Second
	}
}

// SearchResults is the final outcome of one search: loose tracks (album
// groupings removed), grouped albums, and the raw peer response count.
type SearchResults struct {
	Tracks    []TrackResult
	Albums    []AlbumResult
	Responses int
}

type searchCreateRequest struct {
	SearchText               string `json:"searchText"`
	SearchTimeout            int    `json:"searchTimeout"`
	FilterResponses          bool   `json:"filterResponses"`
	MinimumResponseFileCount int    `json:"minimumResponseFileCount"`
	MinimumPeerUploadSpeed   int    `json:"minimumPeerUploadSpeed"`
}

// Search runs a full search round: pace through the rate limiter, start the
// search, poll responses every second streaming progress, stop at
// completion, deadline, cancellation or the response ceiling, then delete
// the search from daemon history.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResults, error) {
	opts.normalize()

	if err := c.limiter.wait(ctx); err != nil {
		return nil, err
	}
	c.maintainHistory(ctx)

	req := searchCreateRequest{
		SearchText:               query,
		SearchTimeout:            int(opts.Timeout / time.Millisecond),
		FilterResponses:          true,
		MinimumResponseFileCount: 1,
	}
	var created SearchRequest
	if err := c.do(ctx, http.MethodPost, "/searches", req, &created); err != nil {
		return nil, fmt.Errorf("start search: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("start search: daemon returned no search id")
	}

	c.registerSearch(created.ID)
	defer c.unregisterSearch(created.ID)

	results := c.poll(ctx, created.ID, opts)

	// Best effort cleanup so daemon history stays small.
	if err := c.DeleteSearch(context.WithoutCancel(ctx), created.ID); err != nil && !errors.Is(err, ErrNotFound) {
		c.log.Debug("could not delete search", "id", created.ID, "err", err)
	}
	return results, nil
}

// poll accumulates responses until the search completes or a stop condition
// fires. Responses already seen in a previous tick are not reprocessed.
func (c *Client) poll(ctx context.Context, id string, opts SearchOptions) *SearchResults {
	deadline := time.Now().Add(opts.Timeout + opts.Buffer)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var raw []TrackResult
	seen := 0

	finish := func() *SearchResults {
		tracks, albums := groupAlbums(raw)
		return &SearchResults{Tracks: tracks, Albums: albums, Responses: seen}
	}

	for {
		select {
		case <-ctx.Done():
			return finish()
		case <-ticker.C:
		}

		if !c.searchActive(id) || time.Now().After(deadline) {
			return finish()
		}

		var state SearchRequest
		if err := c.do(ctx, http.MethodGet, "/searches/"+url.PathEscape(id), nil, &state); err != nil {
			if errors.Is(err, ErrNotFound) {
				c.log.Debug("search vanished from daemon", "id", id)
				return finish()
			}
			if !errors.Is(err, errMalformed) {
				c.log.Warn("search status poll failed", "id", id, "err", err)
			}
			continue
		}

		if state.ResponseCount > seen {
			var responses []SearchResponse
			err := c.do(ctx, http.MethodGet, "/searches/"+url.PathEscape(id)+"/responses", nil, &responses)
			if err != nil && !errors.Is(err, errMalformed) {
				c.log.Warn("search responses poll failed", "id", id, "err", err)
				continue
			}
			if len(responses) > seen {
				for _, resp := range responses[seen:] {
					raw = append(raw, extractTracks(resp)...)
				}
				seen = len(responses)
				sort.SliceStable(raw, func(i, j int) bool {
					return raw[i].QualityScore > raw[j].QualityScore
				})
				if opts.Progress != nil {
					tracks, albums := groupAlbums(raw)
					opts.Progress(SearchProgress{
						Tracks:    len(tracks),
						Albums:    len(albums),
						Responses: seen,
					})
				}
			}
		}

		if seen >= responseCeiling {
			c.log.Debug("response ceiling reached", "id", id, "responses", seen)
			return finish()
		}
		if SearchState(state.State).IsComplete() {
			return finish()
		}
	}
}

func extractTracks(resp SearchResponse) []TrackResult {
	tracks := make([]TrackResult, 0, len(resp.Files))
	for _, f := range resp.Files {
		if f.IsLocked {
			continue
		}
		q := fileQuality(f)
		if q == "" {
			continue
		}
		tracks = append(tracks, trackFromFile(resp, f, q))
	}
	return tracks
}

// DeleteSearch removes a search from daemon history.
func (c *Client) DeleteSearch(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/searches/"+url.PathEscape(id), nil, nil)
}

// Searches lists the daemon's search history.
func (c *Client) Searches(ctx context.Context) ([]SearchRequest, error) {
	var searches []SearchRequest
	err := c.do(ctx, http.MethodGet, "/searches", nil, &searches)
	if errors.Is(err, errMalformed) {
		return nil, nil
	}
	return searches, err
}

// maintainHistory trims daemon search history once it grows past the
// trigger, deleting oldest-first down to the keep count. Live searches are
// never deleted.
func (c *Client) maintainHistory(ctx context.Context) {
	searches, err := c.Searches(ctx)
	if err != nil || len(searches) <= historyTrigger {
		return
	}

	sort.Slice(searches, func(i, j int) bool {
		return searches[i].StartedAt.Before(searches[j].StartedAt)
	})

	toDelete := len(searches) - historyKeep
	deleted := 0
	for _, s := range searches {
		if deleted >= toDelete {
			break
		}
		if c.searchActive(s.ID) {
			continue
		}
		if err := c.DeleteSearch(ctx, s.ID); err != nil && !errors.Is(err, ErrNotFound) {
			c.log.Debug("history prune failed", "id", s.ID, "err", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		c.log.Debug("pruned search history", "deleted", deleted, "had", len(searches))
	}
}

// PickFunc selects the candidate to download from a search's track results.
type PickFunc func([]TrackResult) (TrackResult, bool)

// SearchAndDownloadBest searches, lets pick choose a winner, and enqueues
// it. A nil result with nil error means nothing acceptable was found.
func (c *Client) SearchAndDownloadBest(ctx context.Context, query string, opts SearchOptions, pick PickFunc) (*TrackResult, error) {
	results, err := c.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	pool := results.Tracks
	for _, album := range results.Albums {
		pool = append(pool, album.Tracks...)
	}
	best, ok := pick(pool)
	if !ok {
		return nil, nil
	}

	err = c.EnqueueDownloads(ctx, best.Username, []TransferFile{{
		Filename: best.Filename,
		Size:     best.Size,
	}})
	if err != nil {
		return nil, fmt.Errorf("enqueue %q from %s: %w", best.Title, best.Username, err)
	}
	return &best, nil
}
