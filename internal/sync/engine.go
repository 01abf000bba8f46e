package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/llehouerou/attune/internal/catalog"
	"github.com/llehouerou/attune/internal/config"
	"github.com/llehouerou/attune/internal/errmsg"
	"github.com/llehouerou/attune/internal/match"
	"github.com/llehouerou/attune/internal/mediaserver"
	"github.com/llehouerou/attune/internal/quality"
	"github.com/llehouerou/attune/internal/slskd"
)

const totalSteps = 5

// Result error messages for the two canonical end states. Kept verbatim
// for display; Result.Err maps them back to sentinels.
const (
	msgCancelled        = "Sync cancelled"
	msgInProgressPrefix = "Sync already in progress for playlist: "
)

// Engine runs playlist syncs against one media-server backend. At most
// one sync per playlist name is in flight at a time; different playlists
// may sync concurrently.
type Engine struct {
	catalog *catalog.Store
	server  mediaserver.Server
	daemon  *slskd.Client
	cfg     *config.Config
	log     *log.Logger

	mu       sync.Mutex
	syncing  map[string]*session
	progress ProgressFunc
}

// session tracks one running sync.
type session struct {
	id     string
	cancel context.CancelFunc
}

// New assembles a sync engine. daemon may be nil when no transfer daemon
// is configured; downloads are skipped in that case.
func New(store *catalog.Store, server mediaserver.Server, daemon *slskd.Client, cfg *config.Config, logger *log.Logger) *Engine {
	return &Engine{
		catalog: store,
		server:  server,
		daemon:  daemon,
		cfg:     cfg,
		log:     logger.With("component", "sync"),
		syncing: make(map[string]*session),
	}
}

// SetProgressFunc registers the receiver for progress ticks of all syncs.
func (e *Engine) SetProgressFunc(fn ProgressFunc) {
	e.mu.Lock()
	e.progress = fn
	e.mu.Unlock()
}

func (e *Engine) report(playlist string, p Progress) {
	e.mu.Lock()
	fn := e.progress
	e.mu.Unlock()
	if fn != nil {
		fn(playlist, p)
	}
}

// SyncPlaylist reconciles one remote playlist against the media server:
// resolve every track, queue downloads for the misses, mirror the hits
// into a server-side playlist and record leftovers in the wishlist.
// A duplicate request for a playlist already syncing returns an error
// result immediately. Cancellation is honoured at step boundaries and
// yields a zero-count result.
func (e *Engine) SyncPlaylist(ctx context.Context, playlist Playlist, downloadMissing bool) Result {
	e.mu.Lock()
	if _, running := e.syncing[playlist.Name]; running {
		e.mu.Unlock()
		e.log.Warn("sync already in progress", "playlist", playlist.Name)
		return errorResult(playlist.Name, msgInProgressPrefix+playlist.Name)
	}
	ctx, cancel := context.WithCancel(ctx)
	sess := &session{id: uuid.NewString(), cancel: cancel}
	e.syncing[playlist.Name] = sess
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		delete(e.syncing, playlist.Name)
		e.mu.Unlock()
	}()

	return e.run(ctx, sess, playlist, downloadMissing)
}

// SyncMultiple syncs playlists sequentially with a short pause between
// them, so a batch doesn't hammer the server and the daemon.
func (e *Engine) SyncMultiple(ctx context.Context, playlists []Playlist, downloadMissing bool) []Result {
	results := make([]Result, 0, len(playlists))
	for i, p := range playlists {
		if i > 0 && ctx.Err() == nil {
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		results = append(results, e.SyncPlaylist(ctx, p, downloadMissing))
	}
	return results
}

// CancelSync requests cancellation of a running sync. The sync notices at
// its next step boundary; live daemon searches are withdrawn so a search
// mid-poll returns without waiting out its timeout. False means no sync
// was running for that name.
func (e *Engine) CancelSync(playlistName string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, ok := e.syncing[playlistName]
	if !ok {
		return false
	}
	e.log.Info("cancelling sync", "playlist", playlistName, "session", sess.id)
	sess.cancel()
	if e.daemon != nil {
		e.daemon.CancelSearches()
	}
	return true
}

// IsSyncing reports whether a sync is in flight for the playlist.
func (e *Engine) IsSyncing(playlistName string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.syncing[playlistName]
	return ok
}

// ActiveSyncs lists playlists with a sync in flight, sorted by name.
func (e *Engine) ActiveSyncs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.syncing))
	for name := range e.syncing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) run(ctx context.Context, sess *session, playlist Playlist, downloadMissing bool) Result {
	logger := e.log.With("playlist", playlist.Name, "session", sess.id)
	logger.Info("starting sync", "tracks", len(playlist.Tracks), "download_missing", downloadMissing)

	e.report(playlist.Name, Progress{Step: "Preparing playlist sync", Pct: 10, StepNumber: 1, TotalSteps: totalSteps})

	if len(playlist.Tracks) == 0 {
		return errorResult(playlist.Name, fmt.Sprintf("Playlist '%s' has no tracks", playlist.Name))
	}
	if err := e.server.Connect(ctx); err != nil {
		logger.Error("media server unavailable", "err", err)
		return errorResult(playlist.Name, errmsg.Format(errmsg.OpServerConnect, err))
	}
	if ctx.Err() != nil {
		logger.Info("sync cancelled")
		return cancelledResult(playlist.Name)
	}

	total := len(playlist.Tracks)
	e.report(playlist.Name, Progress{
		Step:       fmt.Sprintf("Matching tracks against %s library", e.backendLabel()),
		Pct:        20,
		StepNumber: 2,
		TotalSteps: totalSteps,
		Total:      total,
	})

	var matched []resolution
	var missing []PlaylistTrack
	for i, track := range playlist.Tracks {
		if ctx.Err() != nil {
			logger.Info("sync cancelled", "at_track", i)
			return cancelledResult(playlist.Name)
		}
		e.report(playlist.Name, Progress{
			Step:         "Matching tracks",
			CurrentTrack: trackLabel(track),
			Pct:          20 + 40*(i+1)/total,
			StepNumber:   2,
			TotalSteps:   totalSteps,
			Total:        total,
			Matched:      len(matched),
			Failed:       len(missing),
		})

		found, confidence := e.resolve(ctx, track)
		if found == nil {
			missing = append(missing, track)
			continue
		}
		if confidence < confidenceServer {
			logger.Debug("fuzzy match", "track", track.Name, "matched", found.Title, "confidence", confidence)
		}
		matched = append(matched, resolution{request: track, track: found, confidence: confidence})
	}

	logger.Info("matching complete", "matched", len(matched), "missing", len(missing))
	if ctx.Err() != nil {
		logger.Info("sync cancelled")
		return cancelledResult(playlist.Name)
	}
	e.report(playlist.Name, Progress{
		Step:       "Matching completed",
		Pct:        60,
		StepNumber: 3,
		TotalSteps: totalSteps,
		Total:      total,
		Matched:    len(matched),
		Failed:     len(missing),
	})

	downloaded := 0
	if downloadMissing && len(missing) > 0 {
		e.report(playlist.Name, Progress{
			Step:       "Downloading missing tracks",
			Pct:        70,
			StepNumber: 4,
			TotalSteps: totalSteps,
			Total:      total,
			Matched:    len(matched),
			Failed:     len(missing),
		})
		downloaded = e.downloadMissingTracks(ctx, missing)
		if ctx.Err() != nil {
			logger.Info("sync cancelled during downloads")
			return cancelledResult(playlist.Name)
		}
		logger.Info("download pass complete", "queued", downloaded, "missing", len(missing))
	}

	e.report(playlist.Name, Progress{
		Step:       "Creating/updating playlist",
		Pct:        80,
		StepNumber: 4,
		TotalSteps: totalSteps,
		Total:      total,
		Matched:    len(matched),
		Failed:     len(missing),
	})

	trackIDs := make([]string, 0, len(matched))
	for _, m := range matched {
		if m.track.IsFileMatch {
			// Placeholders have no server id yet; the next sync picks
			// them up after a library scan.
			continue
		}
		if !e.server.ValidTrackID(m.track.ID) {
			logger.Warn("skipping malformed track id", "id", m.track.ID, "track", m.track.Title)
			continue
		}
		trackIDs = append(trackIDs, m.track.ID)
	}

	synced := 0
	var errs []string
	if len(trackIDs) > 0 {
		if err := e.server.UpdatePlaylist(ctx, playlist.Name, trackIDs); err != nil {
			logger.Error("playlist update failed", "err", err)
			errs = append(errs, errmsg.FormatWith(errmsg.OpPlaylistUpdate, playlist.Name, err))
		} else {
			synced = len(trackIDs)
		}
	}

	wishlistAdded := e.addMissingToWishlist(playlist, missing)

	failed := total - synced - downloaded
	if failed < 0 {
		failed = 0
	}

	e.report(playlist.Name, Progress{
		Step:       "Sync completed",
		Pct:        100,
		StepNumber: 5,
		TotalSteps: totalSteps,
		Total:      total,
		Matched:    len(matched),
		Failed:     failed,
	})

	result := Result{
		PlaylistName:  playlist.Name,
		TotalTracks:   total,
		MatchedTracks: len(matched),
		SyncedTracks:  synced,
		Downloaded:    downloaded,
		FailedTracks:  failed,
		WishlistAdded: wishlistAdded,
		SyncTime:      time.Now(),
		Errors:        errs,
	}
	logger.Info("sync finished",
		"matched", result.MatchedTracks,
		"synced", result.SyncedTracks,
		"downloaded", result.Downloaded,
		"failed", result.FailedTracks,
		"wishlist_added", result.WishlistAdded,
		"success_rate", fmt.Sprintf("%.1f%%", result.SuccessRate()))
	return result
}

// downloadMissingTracks hands unmatched tracks to the transfer daemon,
// one per second, picking sources through the stored quality profile.
// Returns how many downloads were queued; per-track failures are logged
// and skipped.
func (e *Engine) downloadMissingTracks(ctx context.Context, missing []PlaylistTrack) int {
	if e.daemon == nil {
		e.log.Warn("transfer daemon not configured, skipping downloads")
		return 0
	}

	profile, err := e.catalog.QualityProfile()
	if err != nil {
		e.log.Warn("quality profile unavailable, using default", "err", err)
		profile = quality.Default()
	}

	daemonCfg := e.cfg.GetSoulseekConfig()
	opts := slskd.SearchOptions{
		Timeout: time.Duration(daemonCfg.SearchTimeout) * time.Second,
		Buffer:  time.Duration(daemonCfg.SearchTimeoutBuffer) * time.Second,
	}
	pick := func(candidates []slskd.TrackResult) (slskd.TrackResult, bool) {
		return quality.Best(candidates, profile)
	}

	// One enqueue per second keeps out of the daemon's own rate limits.
	pacer := rate.NewLimiter(rate.Every(time.Second), 1)

	downloaded := 0
	for _, track := range missing {
		if err := pacer.Wait(ctx); err != nil {
			return downloaded
		}
		query := match.DownloadQuery(track.Name, track.PrimaryArtist())
		if query == "" {
			continue
		}
		got, err := e.daemon.SearchAndDownloadBest(ctx, query, opts, pick)
		if err != nil {
			e.log.Warn("download failed", "track", track.Name, "err", err)
			continue
		}
		if got == nil {
			e.log.Info("no acceptable source", "track", track.Name, "query", query)
			continue
		}
		e.log.Info("queued download", "track", track.Name, "user", got.Username, "quality", got.Quality)
		downloaded++
	}
	return downloaded
}

// addMissingToWishlist records every unmatched track for later retries,
// downloads included: a queued transfer only helps once the server has
// scanned it, and the wishlist entry is cleared by the first successful
// re-download. Returns how many entries were new.
func (e *Engine) addMissingToWishlist(playlist Playlist, missing []PlaylistTrack) int {
	added := 0
	for _, track := range missing {
		payload, err := json.Marshal(track)
		if err != nil {
			payload = nil
		}
		fresh, err := e.catalog.AddToWishlist(catalog.WishlistTrack{
			TrackID:       track.ID,
			Name:          track.Name,
			Artists:       track.Artists,
			AlbumName:     track.Album,
			DurationMS:    track.DurationMS,
			TrackData:     string(payload),
			FailureReason: "Missing from media server after sync",
			SourceType:    "playlist",
			SourceContext: map[string]string{
				"playlist_name": playlist.Name,
				"playlist_id":   playlist.ID,
				"sync_type":     "automatic_sync",
				"timestamp":     time.Now().UTC().Format(time.RFC3339),
			},
		})
		if err != nil {
			e.log.Warn(errmsg.Format(errmsg.OpWishlistAdd, err), "track", track.Name)
			continue
		}
		if fresh {
			added++
		}
	}
	return added
}

// backendLabel names the active backend for progress display.
func (e *Engine) backendLabel() string {
	if e.cfg.MediaServer.Backend == config.BackendPlex {
		return "Plex"
	}
	return "Jellyfin"
}

// trackLabel is the "Artist - Title" form used in progress ticks.
func trackLabel(t PlaylistTrack) string {
	if a := t.PrimaryArtist(); a != "" {
		return a + " - " + t.Name
	}
	return t.Name
}

func errorResult(name, msg string) Result {
	return Result{PlaylistName: name, SyncTime: time.Now(), Errors: []string{msg}}
}

func cancelledResult(name string) Result {
	return errorResult(name, msgCancelled)
}
