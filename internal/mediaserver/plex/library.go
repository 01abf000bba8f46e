package plex

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/llehouerou/attune/internal/mediaserver"
)

// listPageSize bounds one page of the /all listing walk.
const listPageSize = 1000

// Artists lists every artist in the active section, walking the paged
// listing endpoint to the end.
func (c *Client) Artists(ctx context.Context) ([]mediaserver.Artist, error) {
	_, section, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	items, err := c.pageAll(ctx, section, typeArtist, url.Values{}, "artists")
	if err != nil {
		return nil, fmt.Errorf("list artists: %w", err)
	}

	artists := make([]mediaserver.Artist, 0, len(items))
	for _, it := range items {
		artist := c.toArtist(it)
		c.cacheArtist(artist)
		artists = append(artists, artist)
	}
	return artists, nil
}

// AlbumsForArtist returns the artist's albums by a filtered section query.
func (c *Client) AlbumsForArtist(ctx context.Context, artistID string) ([]mediaserver.Album, error) {
	_, section, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("artist.id", artistID)
	items, err := c.pageAll(ctx, section, typeAlbum, params, "albums")
	if err != nil {
		return nil, fmt.Errorf("list albums for artist: %w", err)
	}

	albums := make([]mediaserver.Album, 0, len(items))
	for _, it := range items {
		albums = append(albums, c.toAlbum(it))
	}
	return albums, nil
}

// TracksForAlbum returns the album's tracks in index order.
func (c *Client) TracksForAlbum(ctx context.Context, albumID string) ([]mediaserver.Track, error) {
	_, section, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("album.id", albumID)
	params.Set("sort", "index")
	items, err := c.pageAll(ctx, section, typeTrack, params, "tracks")
	if err != nil {
		return nil, fmt.Errorf("list album tracks: %w", err)
	}

	tracks := make([]mediaserver.Track, 0, len(items))
	for _, it := range items {
		tracks = append(tracks, c.toTrack(it))
	}
	return tracks, nil
}

// ArtistByID fetches one artist, preferring the cache filled by Artists.
func (c *Client) ArtistByID(ctx context.Context, id string) (*mediaserver.Artist, error) {
	if artist, ok := c.cachedArtist(id); ok {
		return &artist, nil
	}
	it, err := c.metadataByID(ctx, id)
	if err != nil {
		return nil, err
	}
	artist := c.toArtist(*it)
	c.cacheArtist(artist)
	return &artist, nil
}

// AlbumByID fetches one album.
func (c *Client) AlbumByID(ctx context.Context, id string) (*mediaserver.Album, error) {
	it, err := c.metadataByID(ctx, id)
	if err != nil {
		return nil, err
	}
	album := c.toAlbum(*it)
	return &album, nil
}

// TrackByID fetches one track.
func (c *Client) TrackByID(ctx context.Context, id string) (*mediaserver.Track, error) {
	it, err := c.metadataByID(ctx, id)
	if err != nil {
		return nil, err
	}
	track := c.toTrack(*it)
	return &track, nil
}

func (c *Client) metadataByID(ctx context.Context, id string) (*pxMetadata, error) {
	if _, _, err := c.session(ctx); err != nil {
		return nil, err
	}
	if !c.ValidTrackID(id) {
		return nil, fmt.Errorf("fetch item %s: %w", id, mediaserver.ErrNotFound)
	}

	var resp containerResponse
	if err := c.get(ctx, "/library/metadata/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch item %s: %w", id, err)
	}
	if len(resp.MediaContainer.Metadata) == 0 {
		return nil, mediaserver.ErrNotFound
	}
	return &resp.MediaContainer.Metadata[0], nil
}

// RecentlyAddedAlbums returns the newest albums, most recent first.
func (c *Client) RecentlyAddedAlbums(ctx context.Context, limit int) ([]mediaserver.Album, error) {
	if limit <= 0 {
		limit = 400
	}
	items, err := c.sortedItems(ctx, typeAlbum, "addedAt:desc", limit)
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
	items, err := c.sortedItems(ctx, typeTrack, "addedAt:desc", limit)
	if err != nil {
		return nil, fmt.Errorf("list recent tracks: %w", err)
	}
	tracks := make([]mediaserver.Track, 0, len(items))
	for _, it := range items {
		tracks = append(tracks, c.toTrack(it))
	}
	return tracks, nil
}

// RecentlyUpdatedArtists returns the distinct artists of albums added
// since the given time.
func (c *Client) RecentlyUpdatedArtists(ctx context.Context, since time.Time) ([]mediaserver.Artist, error) {
	items, err := c.sortedItems(ctx, typeAlbum, "addedAt:desc", 400)
	if err != nil {
		return nil, fmt.Errorf("list updated albums: %w", err)
	}

	seen := make(map[string]bool)
	var artists []mediaserver.Artist
	for _, it := range items {
		added := unixTime(it.AddedAt)
		if !since.IsZero() && !added.IsZero() && added.Before(since) {
			continue
		}
		if it.ParentRatingKey == "" || seen[it.ParentRatingKey] {
			continue
		}
		seen[it.ParentRatingKey] = true
		artist, err := c.ArtistByID(ctx, it.ParentRatingKey)
		if err != nil {
			c.log.Debug("skipping updated artist", "artist", it.ParentTitle, "err", err)
			continue
		}
		artists = append(artists, *artist)
	}
	sort.Slice(artists, func(i, j int) bool { return artists[i].Name < artists[j].Name })
	return artists, nil
}

func (c *Client) sortedItems(ctx context.Context, itemType, sortBy string, limit int) ([]pxMetadata, error) {
	_, section, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("type", itemType)
	params.Set("sort", sortBy)
	params.Set("X-Plex-Container-Start", "0")
	params.Set("X-Plex-Container-Size", strconv.Itoa(limit))

	var resp containerResponse
	if err := c.getBulk(ctx, "/library/sections/"+url.PathEscape(section)+"/all", params, &resp); err != nil {
		return nil, err
	}
	return resp.MediaContainer.Metadata, nil
}

// LibraryStats counts artists, albums and tracks in the active section via
// zero-sized container queries, which report the total without items.
func (c *Client) LibraryStats(ctx context.Context) (mediaserver.Stats, error) {
	_, section, err := c.session(ctx)
	if err != nil {
		return mediaserver.Stats{}, err
	}

	count := func(itemType string) (int, error) {
		params := url.Values{}
		params.Set("type", itemType)
		params.Set("X-Plex-Container-Start", "0")
		params.Set("X-Plex-Container-Size", "0")

		var resp containerResponse
		if err := c.get(ctx, "/library/sections/"+url.PathEscape(section)+"/all", params, &resp); err != nil {
			return 0, err
		}
		return resp.MediaContainer.TotalSize, nil
	}

	var stats mediaserver.Stats
	if stats.Artists, err = count(typeArtist); err != nil {
		return stats, fmt.Errorf("count artists: %w", err)
	}
	if stats.Albums, err = count(typeAlbum); err != nil {
		return stats, fmt.Errorf("count albums: %w", err)
	}
	if stats.Tracks, err = count(typeTrack); err != nil {
		return stats, fmt.Errorf("count tracks: %w", err)
	}
	return stats, nil
}

// SearchTracks runs a server-side title search. Callers score the
// candidates themselves; no filtering happens here beyond the search term.
func (c *Client) SearchTracks(ctx context.Context, title, artist string) ([]mediaserver.Track, error) {
	_, section, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("type", typeTrack)
	params.Set("title", title)
	params.Set("X-Plex-Container-Start", "0")
	params.Set("X-Plex-Container-Size", "50")

	var resp containerResponse
	if err := c.get(ctx, "/library/sections/"+url.PathEscape(section)+"/all", params, &resp); err != nil {
		return nil, fmt.Errorf("search tracks: %w", err)
	}

	tracks := make([]mediaserver.Track, 0, len(resp.MediaContainer.Metadata))
	for _, it := range resp.MediaContainer.Metadata {
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
// by a finished download. Plex indexes titles rather than file names, so
// the search runs on the name without extension or track-number prefix and
// the match requires the media part basename to agree.
func (c *Client) TrackByFilename(ctx context.Context, filename string) (*mediaserver.Track, error) {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = trimTrackPrefix(stem)
	if stem == "" {
		return nil, mediaserver.ErrNotFound
	}

	_, section, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("type", typeTrack)
	params.Set("title", stem)
	params.Set("X-Plex-Container-Start", "0")
	params.Set("X-Plex-Container-Size", "10")

	var resp containerResponse
	if err := c.get(ctx, "/library/sections/"+url.PathEscape(section)+"/all", params, &resp); err != nil {
		return nil, fmt.Errorf("search by filename: %w", err)
	}

	for _, it := range resp.MediaContainer.Metadata {
		track := c.toTrack(it)
		if track.FilePath == "" {
			continue
		}
		if strings.EqualFold(filepath.Base(track.FilePath), base) {
			return &track, nil
		}
	}
	return nil, mediaserver.ErrNotFound
}

// trimTrackPrefix strips a leading track number ("01 - ", "01.", "01 ")
// from a file stem.
func trimTrackPrefix(stem string) string {
	trimmed := strings.TrimLeft(stem, "0123456789")
	if trimmed == stem {
		return strings.TrimSpace(stem)
	}
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimLeft(trimmed, ".-")
	return strings.TrimSpace(trimmed)
}

// TriggerLibraryScan asks the server to scan the active music section for
// new and changed files.
func (c *Client) TriggerLibraryScan(ctx context.Context) error {
	_, section, err := c.session(ctx)
	if err != nil {
		return err
	}

	if err := c.get(ctx, "/library/sections/"+url.PathEscape(section)+"/refresh", nil, nil); err != nil {
		return fmt.Errorf("trigger scan: %w", err)
	}
	c.log.Info("library scan triggered", "section", section)
	return nil
}

// IsScanning reports whether the active section is mid-refresh.
func (c *Client) IsScanning(ctx context.Context) (bool, error) {
	_, section, err := c.session(ctx)
	if err != nil {
		return false, err
	}

	var sections containerResponse
	if err := c.get(ctx, "/library/sections", nil, &sections); err != nil {
		return false, fmt.Errorf("list sections: %w", err)
	}
	for _, dir := range sections.MediaContainer.Directory {
		if dir.Key == section {
			return dir.Refreshing, nil
		}
	}
	return false, nil
}

// UpdateArtistPoster replaces the artist's poster with the raw image bytes.
func (c *Client) UpdateArtistPoster(ctx context.Context, artistID string, image []byte) error {
	if _, _, err := c.session(ctx); err != nil {
		return err
	}
	if err := c.uploadPoster(ctx, artistID, image); err != nil {
		return fmt.Errorf("upload artist poster: %w", err)
	}
	c.log.Debug("artist poster updated", "artist", artistID)
	return nil
}

// UpdateAlbumPoster replaces the album's poster.
func (c *Client) UpdateAlbumPoster(ctx context.Context, albumID string, image []byte) error {
	if _, _, err := c.session(ctx); err != nil {
		return err
	}
	if err := c.uploadPoster(ctx, albumID, image); err != nil {
		return fmt.Errorf("upload album poster: %w", err)
	}
	c.log.Debug("album poster updated", "album", albumID)
	return nil
}

func (c *Client) uploadPoster(ctx context.Context, itemID string, image []byte) error {
	return c.sendRaw(ctx, "/library/metadata/"+url.PathEscape(itemID)+"/posters", "image/jpeg", image)
}

// pageAll walks one item type through the paged section listing and
// returns everything. Plex caps pages server-side, so the walk always uses
// explicit container windows.
func (c *Client) pageAll(ctx context.Context, section, itemType string, params url.Values, label string) ([]pxMetadata, error) {
	var all []pxMetadata
	start := 0
	for {
		page := url.Values{}
		for k, v := range params {
			page[k] = v
		}
		page.Set("type", itemType)
		page.Set("X-Plex-Container-Start", strconv.Itoa(start))
		page.Set("X-Plex-Container-Size", strconv.Itoa(listPageSize))

		var resp containerResponse
		if err := c.getBulk(ctx, "/library/sections/"+url.PathEscape(section)+"/all", page, &resp); err != nil {
			return all, err
		}

		items := resp.MediaContainer.Metadata
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
		if resp.MediaContainer.TotalSize > 0 && len(all) >= resp.MediaContainer.TotalSize {
			break
		}
		if len(items) < listPageSize {
			break
		}
		start += listPageSize
		c.progressf("Fetched %d %s so far...", len(all), label)
	}
	return all, nil
}
