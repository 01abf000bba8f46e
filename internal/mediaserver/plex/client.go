// Package plex adapts a Plex Media Server to the mediaserver interface.
// Item ids are rating keys (decimal integers carried as opaque text);
// playlist writes ride the query string as server:// item uris; artist
// summaries store the update-tracking markers.
package plex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
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

// updatedAtPrefix precedes the last-refresh date in an artist summary,
// e.g. "-updatedAt2024-01-02".
const updatedAtPrefix = "-updatedAt"

// Config holds the Plex connection settings.
type Config struct {
	URL          string
	Token        string
	MusicLibrary string // preferred section name; first music section when empty
	CreateBackup bool   // keep a transient backup while updating playlists
}

var _ mediaserver.Server = (*Client)(nil)

// Client talks to one Plex Media Server.
type Client struct {
	baseURL string
	token   string
	prefLib string
	backup  bool

	hc   *http.Client // regular calls
	bulk *http.Client // paged listings, playlist writes, image uploads
	log  *log.Logger

	connMu    sync.Mutex
	connected bool
	machineID string
	sectionID string

	artistMu  sync.RWMutex
	artistsBy map[string]mediaserver.Artist

	metadataOnly atomic.Bool
	progress     mediaserver.ProgressFunc
}

// New creates a Plex client. No connection is made until the first
// operation (or an explicit Connect).
func New(cfg Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		token:   cfg.Token,
		prefLib: cfg.MusicLibrary,
		backup:  cfg.CreateBackup,
		hc:      &http.Client{Timeout: regularTimeout},
		bulk:    &http.Client{Timeout: bulkTimeout},
		log:     logger.With("component", "plex"),
	}
}

// SetProgressFunc installs a callback for long paged-listing progress
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
	return catalog.SourcePrimary
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

// session returns the machine identifier and active music section key,
// dialing first if needed. The connection lock doubles as the single-flight
// guard: a second caller blocks until the in-flight attempt settles and
// never re-dials after success.
func (c *Client) session(ctx context.Context) (machineID, sectionID string, err error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if !c.connected {
		if err := c.connectLocked(ctx); err != nil {
			return "", "", err
		}
	}
	return c.machineID, c.sectionID, nil
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.baseURL == "" || c.token == "" {
		return mediaserver.ErrNotConnected
	}

	var identity containerResponse
	if err := c.get(ctx, "/identity", nil, &identity); err != nil {
		return fmt.Errorf("probe server: %w", err)
	}
	if identity.MediaContainer.MachineIdentifier == "" {
		return fmt.Errorf("probe server: no machine identifier: %w", mediaserver.ErrNotConnected)
	}
	c.machineID = identity.MediaContainer.MachineIdentifier
	c.log.Info("connected to Plex server",
		"machine", c.machineID, "version", identity.MediaContainer.Version)

	section, err := c.musicSection(ctx)
	if err != nil {
		return err
	}
	if section == nil {
		return mediaserver.ErrNoLibrary
	}
	c.sectionID = section.Key
	c.connected = true
	c.log.Info("using music section", "section", section.Title, "key", section.Key)
	return nil
}

// musicSection returns the artist-typed section, preferring the configured
// library name when it is present.
func (c *Client) musicSection(ctx context.Context) (*pxDirectory, error) {
	var sections containerResponse
	if err := c.get(ctx, "/library/sections", nil, &sections); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}

	var first *pxDirectory
	for i := range sections.MediaContainer.Directory {
		section := &sections.MediaContainer.Directory[i]
		if !strings.EqualFold(section.Type, "artist") {
			continue
		}
		if c.prefLib != "" && strings.EqualFold(section.Title, c.prefLib) {
			return section, nil
		}
		if first == nil {
			first = section
		}
	}
	return first, nil
}

// MusicLibraries lists the music (artist-typed) sections on the server.
func (c *Client) MusicLibraries(ctx context.Context) ([]mediaserver.Library, error) {
	if _, _, err := c.session(ctx); err != nil {
		return nil, err
	}

	var sections containerResponse
	if err := c.get(ctx, "/library/sections", nil, &sections); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}

	var libs []mediaserver.Library
	for _, section := range sections.MediaContainer.Directory {
		if strings.EqualFold(section.Type, "artist") {
			libs = append(libs, mediaserver.Library{ID: section.Key, Name: section.Title})
		}
	}
	return libs, nil
}

// SelectLibrary switches the active music section by name and drops the
// artist cache.
func (c *Client) SelectLibrary(ctx context.Context, name string) error {
	libs, err := c.MusicLibraries(ctx)
	if err != nil {
		return err
	}
	for _, lib := range libs {
		if strings.EqualFold(lib.Name, name) {
			c.connMu.Lock()
			c.sectionID = lib.ID
			c.connMu.Unlock()
			c.artistMu.Lock()
			c.artistsBy = nil
			c.artistMu.Unlock()
			c.log.Info("music section selected", "section", name)
			return nil
		}
	}
	return fmt.Errorf("music section %q: %w", name, mediaserver.ErrNotFound)
}

// SetMetadataOnlyMode is recorded for interface parity. This backend runs
// targeted queries only and keeps no bulk track cache to skip.
func (c *Client) SetMetadataOnlyMode(enabled bool) {
	c.metadataOnly.Store(enabled)
	c.log.Debug("metadata-only mode", "enabled", enabled)
}

// ValidTrackID reports whether id looks like a Plex rating key: a
// non-empty decimal integer.
func (c *Client) ValidTrackID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NeedsUpdateByAge reports whether the artist's summary marker dates its
// last refresh beyond maxAge. Artists without a marker always need one.
func (c *Client) NeedsUpdateByAge(artist mediaserver.Artist, maxAge time.Duration) bool {
	updated, ok := parseUpdatedAt(artist.Summary)
	if !ok {
		return true
	}
	return time.Since(updated) > maxAge
}

// IsIgnored reports whether the artist is marked to be skipped by
// metadata refreshes.
func (c *Client) IsIgnored(artist mediaserver.Artist) bool {
	return strings.Contains(artist.Summary, mediaserver.IgnoreMarker)
}

// parseUpdatedAt extracts the date following the updatedAt marker.
func parseUpdatedAt(summary string) (time.Time, bool) {
	idx := strings.Index(summary, updatedAtPrefix)
	if idx < 0 {
		return time.Time{}, false
	}
	rest := summary[idx+len(updatedAtPrefix):]
	if len(rest) < len("2006-01-02") {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", rest[:len("2006-01-02")])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (c *Client) cacheArtist(artist mediaserver.Artist) {
	c.artistMu.Lock()
	defer c.artistMu.Unlock()
	if c.artistsBy == nil {
		c.artistsBy = make(map[string]mediaserver.Artist)
	}
	c.artistsBy[artist.ID] = artist
}

func (c *Client) cachedArtist(id string) (mediaserver.Artist, bool) {
	c.artistMu.RLock()
	defer c.artistMu.RUnlock()
	artist, ok := c.artistsBy[id]
	return artist, ok
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out *containerResponse) error {
	return c.send(ctx, c.hc, http.MethodGet, path, params, out)
}

// getBulk routes paged listings through the long-timeout client.
func (c *Client) getBulk(ctx context.Context, path string, params url.Values, out *containerResponse) error {
	return c.send(ctx, c.bulk, http.MethodGet, path, params, out)
}

func (c *Client) post(ctx context.Context, path string, params url.Values, out *containerResponse) error {
	return c.send(ctx, c.bulk, http.MethodPost, path, params, out)
}

func (c *Client) put(ctx context.Context, path string, params url.Values, out *containerResponse) error {
	return c.send(ctx, c.bulk, http.MethodPut, path, params, out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.send(ctx, c.hc, http.MethodDelete, path, nil, nil)
}

func (c *Client) send(ctx context.Context, hc *http.Client, method, path string, params url.Values, out *containerResponse) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("Accept", "application/json")

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
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.bulk.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	return c.readResponse(resp, path, nil)
}

func (c *Client) readResponse(resp *http.Response, path string, out *containerResponse) error {
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
