package jellyfin

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/llehouerou/attune/internal/mediaserver"
)

// Artists lists every album artist in the active library. The first call
// also populates the bulk cache unless metadata-only mode is on.
func (c *Client) Artists(ctx context.Context) ([]mediaserver.Artist, error) {
	uid, lib, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	if !c.metadataOnly.Load() {
		c.populateCache(ctx, lib)
	}

	params := url.Values{}
	params.Set("ParentId", lib)
	params.Set("UserId", uid)
	params.Set("Recursive", "true")
	params.Set("SortBy", "SortName")
	params.Set("SortOrder", "Ascending")

	var page itemsPage
	if err := c.get(ctx, "/Artists/AlbumArtists", params, &page); err != nil {
		return nil, fmt.Errorf("list artists: %w", err)
	}

	artists := make([]mediaserver.Artist, 0, len(page.Items))
	for _, it := range page.Items {
		artist := c.toArtist(it)
		c.cache.putArtist(artist)
		artists = append(artists, artist)
	}
	return artists, nil
}

// AlbumsForArtist returns the artist's albums, from the cache when it has
// them and by a targeted query otherwise.
func (c *Client) AlbumsForArtist(ctx context.Context, artistID string) ([]mediaserver.Album, error) {
	uid, _, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	if albums, ok := c.cache.albumsForArtist(artistID); ok {
		return albums, nil
	}

	params := url.Values{}
	params.Set("ArtistIds", artistID)
	params.Set("IncludeItemTypes", "MusicAlbum")
	params.Set("Recursive", "true")
	params.Set("Fields", "AlbumArtists,Artists,Genres")
	params.Set("SortBy", "ProductionYear,SortName")
	params.Set("SortOrder", "Ascending")
	params.Set("Limit", "200")

	var page itemsPage
	if err := c.get(ctx, "/Users/"+url.PathEscape(uid)+"/Items", params, &page); err != nil {
		return nil, fmt.Errorf("list albums for artist: %w", err)
	}

	albums := make([]mediaserver.Album, 0, len(page.Items))
	for _, it := range page.Items {
		albums = append(albums, c.toAlbum(it))
	}
	c.cache.putAlbums(artistID, albums)
	return albums, nil
}

// TracksForAlbum returns the album's tracks in index order.
func (c *Client) TracksForAlbum(ctx context.Context, albumID string) ([]mediaserver.Track, error) {
	uid, _, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	if tracks, ok := c.cache.tracksForAlbum(albumID); ok {
		return tracks, nil
	}

	params := url.Values{}
	params.Set("ParentId", albumID)
	params.Set("IncludeItemTypes", "Audio")
	params.Set("Fields", "AlbumId,ArtistItems,Path")
	params.Set("SortBy", "IndexNumber")
	params.Set("SortOrder", "Ascending")
	params.Set("Limit", "100")

	var page itemsPage
	if err := c.get(ctx, "/Users/"+url.PathEscape(uid)+"/Items", params, &page); err != nil {
		return nil, fmt.Errorf("list album tracks: %w", err)
	}

	tracks := make([]mediaserver.Track, 0, len(page.Items))
	for _, it := range page.Items {
		tracks = append(tracks, c.toTrack(it))
	}
	c.cache.putTracks(albumID, tracks)
	return tracks, nil
}

// ArtistByID fetches one artist, preferring the cache filled by Artists.
func (c *Client) ArtistByID(ctx context.Context, id string) (*mediaserver.Artist, error) {
	if artist, ok := c.cache.artist(id); ok {
		return &artist, nil
	}
	it, err := c.itemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	artist := c.toArtist(*it)
	c.cache.putArtist(artist)
	return &artist, nil
}

// AlbumByID fetches one album.
func (c *Client) AlbumByID(ctx context.Context, id string) (*mediaserver.Album, error) {
	if album, ok := c.cache.findAlbum(id); ok {
		return &album, nil
	}
	it, err := c.itemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	album := c.toAlbum(*it)
	return &album, nil
}

// TrackByID fetches one track.
func (c *Client) TrackByID(ctx context.Context, id string) (*mediaserver.Track, error) {
	it, err := c.itemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	track := c.toTrack(*it)
	return &track, nil
}

func (c *Client) itemByID(ctx context.Context, id string) (*jfItem, error) {
	uid, _, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	var it jfItem
	path := "/Users/" + url.PathEscape(uid) + "/Items/" + url.PathEscape(id)
	if err := c.get(ctx, path, nil, &it); err != nil {
		return nil, fmt.Errorf("fetch item %s: %w", id, err)
	}
	if it.ID == "" {
		return nil, mediaserver.ErrNotFound
	}
	return &it, nil
}

// RecentlyAddedAlbums returns the newest albums, most recent first.
func (c *Client) RecentlyAddedAlbums(ctx context.Context, limit int) ([]mediaserver.Album, error) {
	if limit <= 0 {
		limit = 400
	}
	items, err := c.sortedItems(ctx, "MusicAlbum", "AlbumArtists,Artists,Genres", "DateCreated", limit)
	if err != nil {
		return nil, fmt.Errorf("list recent albums: %w", err)
	}
	albums := make([]mediaserver.Album, 0, len(items))
	for _, it := range items {
		albums = append(albums, c.toAlbum(it))
	}
	return albums, nil
}

// RecentlyAddedTracks returns the newest tracks, most recent first.
func (c *Client) RecentlyAddedTracks(ctx context.Context, limit int) ([]mediaserver.Track, error) {
	if limit <= 0 {
		limit = 5000
	}
	items, err := c.sortedItems(ctx, "Audio", "AlbumId,ArtistItems,Path", "DateCreated", limit)
	if err != nil {
		return nil, fmt.Errorf("list recent tracks: %w", err)
	}
	tracks := make([]mediaserver.Track, 0, len(items))
	for _, it := range items {
		tracks = append(tracks, c.toTrack(it))
	}
	return tracks, nil
}

// RecentlyUpdatedArtists returns the distinct album artists of albums whose
// media changed since the given time, via the DateLastMediaAdded ordering.
func (c *Client) RecentlyUpdatedArtists(ctx context.Context, since time.Time) ([]mediaserver.Artist, error) {
	items, err := c.sortedItems(ctx, "MusicAlbum", "AlbumArtists,DateLastMediaAdded", "DateLastMediaAdded", 400)
	if err != nil {
		return nil, fmt.Errorf("list updated albums: %w", err)
	}

	seen := make(map[string]bool)
	var artists []mediaserver.Artist
	for _, it := range items {
		added := parseDate(it.DateCreated)
		if !since.IsZero() && !added.IsZero() && added.Before(since) {
			continue
		}
		for _, ref := range it.AlbumArtists {
			if ref.ID == "" || seen[ref.ID] {
				continue
			}
			seen[ref.ID] = true
			artist, err := c.ArtistByID(ctx, ref.ID)
			if err != nil {
				c.log.Debug("skipping updated artist", "artist", ref.Name, "err", err)
				continue
			}
			artists = append(artists, *artist)
		}
	}
	sort.Slice(artists, func(i, j int) bool { return artists[i].Name < artists[j].Name })
	return artists, nil
}

func (c *Client) sortedItems(ctx context.Context, itemType, fields, sortBy string, limit int) ([]jfItem, error) {
	uid, lib, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("ParentId", lib)
	params.Set("IncludeItemTypes", itemType)
	params.Set("Recursive", "true")
	params.Set("Fields", fields)
	params.Set("SortBy", sortBy)
	params.Set("SortOrder", "Descending")
	params.Set("Limit", strconv.Itoa(limit))

	var page itemsPage
	if err := c.get(ctx, "/Users/"+url.PathEscape(uid)+"/Items", params, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// LibraryStats counts artists, albums and tracks in the active library.
func (c *Client) LibraryStats(ctx context.Context) (mediaserver.Stats, error) {
	uid, lib, err := c.session(ctx)
	if err != nil {
		return mediaserver.Stats{}, err
	}

	count := func(itemType string) (int, error) {
		params := url.Values{}
		params.Set("ParentId", lib)
		params.Set("IncludeItemTypes", itemType)
		params.Set("Recursive", "true")
		params.Set("Limit", "1")

		var page itemsPage
		if err := c.get(ctx, "/Users/"+url.PathEscape(uid)+"/Items", params, &page); err != nil {
			return 0, err
		}
		return page.TotalRecordCount, nil
	}

	var stats mediaserver.Stats
	if stats.Artists, err = count("MusicArtist"); err != nil {
		return stats, fmt.Errorf("count artists: %w", err)
	}
	if stats.Albums, err = count("MusicAlbum"); err != nil {
		return stats, fmt.Errorf("count albums: %w", err)
	}
	if stats.Tracks, err = count("Audio"); err != nil {
		return stats, fmt.Errorf("count tracks: %w", err)
	}
	return stats, nil
}

// SearchTracks runs a server-side title search. Callers score the
// candidates themselves; no filtering happens here beyond the search term.
func (c *Client) SearchTracks(ctx context.Context, title, artist string) ([]mediaserver.Track, error) {
	uid, lib, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("ParentId", lib)
	params.Set("SearchTerm", title)
	params.Set("IncludeItemTypes", "Audio")
	params.Set("Recursive", "true")
	params.Set("Fields", "AlbumId,ArtistItems,Path")
	params.Set("Limit", "50")

	var page itemsPage
	if err := c.get(ctx, "/Users/"+url.PathEscape(uid)+"/Items", params, &page); err != nil {
		return nil, fmt.Errorf("search tracks: %w", err)
	}

	tracks := make([]mediaserver.Track, 0, len(page.Items))
	for _, it := range page.Items {
		track := c.toTrack(it)
		// When the caller named an artist, drop candidates that plainly
		// belong to someone else; ambiguous ones stay in for scoring.
		if artist != "" && track.ArtistName != "" &&
			!strings.Contains(strings.ToLower(track.ArtistName), strings.ToLower(artist)) &&
			!strings.Contains(strings.ToLower(artist), strings.ToLower(track.ArtistName)) {
			continue
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// TrackByFilename resolves a library track from a file name, as produced
// by a finished download. The search runs on the name without extension
// and the match requires the path basename to agree.
func (c *Client) TrackByFilename(ctx context.Context, filename string) (*mediaserver.Track, error) {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return nil, mediaserver.ErrNotFound
	}

	uid, lib, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("ParentId", lib)
	params.Set("SearchTerm", stem)
	params.Set("IncludeItemTypes", "Audio")
	params.Set("Recursive", "true")
	params.Set("Fields", "AlbumId,ArtistItems,Path")
	params.Set("Limit", "10")

	var page itemsPage
	if err := c.get(ctx, "/Users/"+url.PathEscape(uid)+"/Items", params, &page); err != nil {
		return nil, fmt.Errorf("search by filename: %w", err)
	}

	for _, it := range page.Items {
		if it.Path == "" {
			continue
		}
		if strings.EqualFold(filepath.Base(it.Path), base) {
			track := c.toTrack(it)
			return &track, nil
		}
	}
	return nil, mediaserver.ErrNotFound
}

// TriggerLibraryScan asks the server to refresh the active music library.
// Metadata and images are validated rather than re-fetched.
func (c *Client) TriggerLibraryScan(ctx context.Context) error {
	_, lib, err := c.session(ctx)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("Recursive", "true")
	params.Set("ImageRefreshMode", "ValidationOnly")
	params.Set("MetadataRefreshMode", "ValidationOnly")

	if err := c.post(ctx, "/Items/"+url.PathEscape(lib)+"/Refresh", params, nil, nil); err != nil {
		return fmt.Errorf("trigger scan: %w", err)
	}
	c.log.Info("library scan triggered")
	return nil
}

// IsScanning reports whether a library scan or refresh task is running.
func (c *Client) IsScanning(ctx context.Context) (bool, error) {
	if _, _, err := c.session(ctx); err != nil {
		return false, err
	}

	var tasks []scheduledTask
	if err := c.get(ctx, "/ScheduledTasks", nil, &tasks); err != nil {
		return false, fmt.Errorf("list scheduled tasks: %w", err)
	}

	for _, task := range tasks {
		name := strings.ToLower(task.Name)
		if !strings.Contains(name, "scan") && !strings.Contains(name, "refresh") && !strings.Contains(name, "library") {
			continue
		}
		if task.State == "Running" || task.State == "Cancelling" {
			return true, nil
		}
	}
	return false, nil
}

// UpdateArtistPoster replaces the artist's primary image. The server
// expects the raw bytes base64-encoded in the request body.
func (c *Client) UpdateArtistPoster(ctx context.Context, artistID string, image []byte) error {
	if _, _, err := c.session(ctx); err != nil {
		return err
	}
	if err := c.uploadPrimaryImage(ctx, artistID, image); err != nil {
		return fmt.Errorf("upload artist poster: %w", err)
	}
	c.log.Debug("artist poster updated", "artist", artistID)
	return nil
}

// UpdateAlbumPoster replaces the album's primary image.
func (c *Client) UpdateAlbumPoster(ctx context.Context, albumID string, image []byte) error {
	if _, _, err := c.session(ctx); err != nil {
		return err
	}
	if err := c.uploadPrimaryImage(ctx, albumID, image); err != nil {
		return fmt.Errorf("upload album poster: %w", err)
	}
	c.log.Debug("album poster updated", "album", albumID)
	return nil
}

func (c *Client) uploadPrimaryImage(ctx context.Context, itemID string, image []byte) error {
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(image)))
	base64.StdEncoding.Encode(encoded, image)

	err := c.sendRaw(ctx, "/Items/"+url.PathEscape(itemID)+"/Images/Primary/0", "image/jpeg", encoded)
	if err == nil {
		return nil
	}
	c.log.Debug("indexed image upload failed, retrying without index", "item", itemID, "err", err)
	return c.sendRaw(ctx, "/Items/"+url.PathEscape(itemID)+"/Images/Primary", "image/jpeg", encoded)
}
