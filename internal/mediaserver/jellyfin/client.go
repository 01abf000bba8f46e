// Package jellyfin adapts a Jellyfin server to the mediaserver interface.
// Item ids are GUIDs; playlist writes go through the batched create path;
// first use of the artist listing populates an all-library cache.
package jellyfin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/llehouerou/attune/internal/catalog"
	"github.com/llehouerou/attune/internal/mediaserver"
)

const (
	regularTimeout = 10 * time.Second
	bulkTimeout    = 30 * time.Second
)

// Config holds the Jellyfin connection settings.
type Config struct {
	URL          string
	APIKey       string
	MusicLibrary string // preferred library name; first music library when empty
	CreateBackup bool   // keep a transient backup while updating playlists
}

var _ mediaserver.Server = (*Client)(nil)

// Client talks to one Jellyfin server on behalf of one user.
type Client struct {
	baseURL string
	apiKey  string
	prefLib string
	backup  bool

	hc   *http.Client // regular calls
	bulk *http.Client // bulk pages, playlist batches, image uploads
	log  *log.Logger

	connMu    sync.Mutex
	connected bool
	userID    string
	libraryID string

	cache libraryCache
	popMu sync.Mutex // single-flights cache population

	metadataOnly atomic.Bool
	progress     mediaserver.ProgressFunc
}

// New creates a Jellyfin client. No connection is made until the first
// operation (or an explicit Connect).
func New(cfg Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		prefLib: cfg.MusicLibrary,
		backup:  cfg.CreateBackup,
		hc:      &http.Client{Timeout: regularTimeout},
		bulk:    &http.Client{Timeout: bulkTimeout},
		log:     logger.With("component", "jellyfin"),
	}
}

// SetProgressFunc installs a callback for cache-population progress
// messages. Set it before the first library operation.
func (c *Client) SetProgressFunc(fn mediaserver.ProgressFunc) {
	c.progress = fn
}

func (c *Client) progressf(format string, args ...any) {
	if c.progress != nil {
		c.progress(fmt.Sprintf(format, args...))
	}
}

// Source identifies rows this backend writes into the catalog.
func (c *Client) Source() catalog.ServerSource {
	return catalog.SourceSecondary
}

// Connect dials the server now instead of waiting for the first operation.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.connected {
		return nil
	}
	return c.connectLocked(ctx)
}

// session returns the connected user and library ids, dialing first if
// needed. The connection lock doubles as the single-flight guard: a second
// caller blocks until the in-flight attempt settles and never re-dials
// after success.
func (c *Client) session(ctx context.Context) (userID, libraryID string, err error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if !c.connected {
		if err := c.connectLocked(ctx); err != nil {
			return "", "", err
		}
	}
	return c.userID, c.libraryID, nil
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.baseURL == "" || c.apiKey == "" {
		return mediaserver.ErrNotConnected
	}

	var info systemInfo
	if err := c.get(ctx, "/System/Info", nil, &info); err != nil {
		return fmt.Errorf("probe server: %w", err)
	}
	c.log.Info("connected to Jellyfin server", "server", info.ServerName, "version", info.Version)

	var users []jfUser
	if err := c.get(ctx, "/Users", nil, &users); err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	// Find the first user that can see a music library. Individual user
	// failures (permissions) are logged and iteration continues.
	for _, user := range users {
		view, err := c.musicViewForUser(ctx, user.ID)
		if err != nil {
			c.log.Debug("skipping user", "user", user.Name, "err", err)
			continue
		}
		if view == nil {
			continue
		}
		c.userID = user.ID
		c.libraryID = view.ID
		c.connected = true
		c.log.Info("using user", "user", user.Name, "library", view.Name)
		return nil
	}
	return mediaserver.ErrNoLibrary
}

// musicViewForUser returns the user's music view, preferring the configured
// library name when it is present.
func (c *Client) musicViewForUser(ctx context.Context, userID string) (*jfItem, error) {
	var views itemsPage
	if err := c.get(ctx, "/Users/"+url.PathEscape(userID)+"/Views", nil, &views); err != nil {
		return nil, err
	}

	var first *jfItem
	for i := range views.Items {
		view := &views.Items[i]
		if !strings.EqualFold(view.CollectionType, "music") {
			continue
		}
		if c.prefLib != "" && strings.EqualFold(view.Name, c.prefLib) {
			return view, nil
		}
		if first == nil {
			first = view
		}
	}
	return first, nil
}

// MusicLibraries lists the music libraries visible to the connected user.
func (c *Client) MusicLibraries(ctx context.Context) ([]mediaserver.Library, error) {
	uid, _, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	var views itemsPage
	if err := c.get(ctx, "/Users/"+url.PathEscape(uid)+"/Views", nil, &views); err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}

	var libs []mediaserver.Library
	for _, view := range views.Items {
		if strings.EqualFold(view.CollectionType, "music") {
			libs = append(libs, mediaserver.Library{ID: view.ID, Name: view.Name})
		}
	}
	return libs, nil
}

// SelectLibrary switches the active music library by name and drops the
// item caches.
func (c *Client) SelectLibrary(ctx context.Context, name string) error {
	libs, err := c.MusicLibraries(ctx)
	if err != nil {
		return err
	}
	for _, lib := range libs {
		if strings.EqualFold(lib.Name, name) {
			c.connMu.Lock()
			c.libraryID = lib.ID
			c.connMu.Unlock()
			c.cache.clear()
			c.log.Info("music library selected", "library", name)
			return nil
		}
	}
	return fmt.Errorf("music library %q: %w", name, mediaserver.ErrNotFound)
}

// SetMetadataOnlyMode skips the expensive track-cache population for
// workloads that only touch artist/album metadata.
func (c *Client) SetMetadataOnlyMode(enabled bool) {
	c.metadataOnly.Store(enabled)
	c.log.Debug("metadata-only mode", "enabled", enabled)
}

// ValidTrackID reports whether id looks like a Jellyfin GUID: 32 or 36
// characters with every non-hyphen character hexadecimal.
func (c *Client) ValidTrackID(id string) bool {
	id = strings.TrimSpace(id)
	if len(id) != 32 && len(id) != 36 {
		return false
	}
	clean := strings.ReplaceAll(id, "-", "")
	if len(clean) != 32 {
		return false
	}
	for _, r := range clean {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// NeedsUpdateByAge always reports true: this backend keeps no update
// timestamps in artist summaries.
func (c *Client) NeedsUpdateByAge(_ mediaserver.Artist, _ time.Duration) bool {
	return true
}

// IsIgnored reports whether the artist is marked to be skipped by
// metadata refreshes.
func (c *Client) IsIgnored(artist mediaserver.Artist) bool {
	return strings.Contains(artist.Summary, mediaserver.IgnoreMarker)
}

// get performs a GET against the API, routing big pages through the bulk
// client.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	hc := c.hc
	if isBulkQuery(params) {
		hc = c.bulk
	}
	return c.send(ctx, hc, http.MethodGet, path, params, nil, out)
}

// post sends a JSON body (may be nil) with the bulk timeout; writes are
// never latency-critical here.
func (c *Client) post(ctx context.Context, path string, params url.Values, body, out any) error {
	return c.send(ctx, c.bulk, http.MethodPost, path, params, body, out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.send(ctx, c.hc, http.MethodDelete, path, nil, nil, nil)
}

func isBulkQuery(params url.Values) bool {
	limit := params.Get("Limit")
	if limit == "" {
		return false
	}
	n, err := strconv.Atoi(limit)
	return err == nil && n > 1000
}

func (c *Client) send(ctx context.Context, hc *http.Client, method, path string, params url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	return c.readResponse(resp, path, out)
}

// sendRaw posts a raw payload (image uploads).
func (c *Client) sendRaw(ctx context.Context, path, contentType string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.bulk.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	return c.readResponse(resp, path, nil)
}

func (c *Client) readResponse(resp *http.Response, path string, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return mediaserver.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.log.Warn("malformed server response", "path", path, "err", err)
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
