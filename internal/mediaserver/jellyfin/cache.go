package jellyfin

import (
	"context"
	"net/url"
	"strconv"
	"sync"

	"github.com/llehouerou/attune/internal/mediaserver"
)

const (
	cachePageSize    = 10_000
	cachePageMinimum = 1_000
	cacheMaxFailures = 3
)

// libraryCache holds the whole library grouped for the two hot lookups:
// tracks by album and albums by artist. It is replaced wholesale by
// populate and read under the lock everywhere else.
type libraryCache struct {
	mu                  sync.RWMutex
	populated           bool
	tracksByAlbum       map[string][]mediaserver.Track
	albumsByAlbumArtist map[string][]mediaserver.Album
	artistsByID         map[string]mediaserver.Artist
}

func (lc *libraryCache) isPopulated() bool {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.populated
}

func (lc *libraryCache) swap(tracks map[string][]mediaserver.Track, albums map[string][]mediaserver.Album) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.tracksByAlbum = tracks
	lc.albumsByAlbumArtist = albums
	lc.populated = true
}

func (lc *libraryCache) clear() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.populated = false
	lc.tracksByAlbum = nil
	lc.albumsByAlbumArtist = nil
	lc.artistsByID = nil
}

func (lc *libraryCache) tracksForAlbum(albumID string) ([]mediaserver.Track, bool) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	tracks, ok := lc.tracksByAlbum[albumID]
	return tracks, ok
}

func (lc *libraryCache) albumsForArtist(artistID string) ([]mediaserver.Album, bool) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	albums, ok := lc.albumsByAlbumArtist[artistID]
	return albums, ok
}

func (lc *libraryCache) putAlbums(artistID string, albums []mediaserver.Album) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.albumsByAlbumArtist == nil {
		lc.albumsByAlbumArtist = make(map[string][]mediaserver.Album)
	}
	lc.albumsByAlbumArtist[artistID] = albums
}

func (lc *libraryCache) putTracks(albumID string, tracks []mediaserver.Track) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.tracksByAlbum == nil {
		lc.tracksByAlbum = make(map[string][]mediaserver.Track)
	}
	lc.tracksByAlbum[albumID] = tracks
}

func (lc *libraryCache) putArtist(artist mediaserver.Artist) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.artistsByID == nil {
		lc.artistsByID = make(map[string]mediaserver.Artist)
	}
	lc.artistsByID[artist.ID] = artist
}

func (lc *libraryCache) artist(artistID string) (mediaserver.Artist, bool) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	artist, ok := lc.artistsByID[artistID]
	return artist, ok
}

func (lc *libraryCache) findAlbum(albumID string) (mediaserver.Album, bool) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	for _, albums := range lc.albumsByAlbumArtist {
		for _, album := range albums {
			if album.ID == albumID {
				return album, true
			}
		}
	}
	return mediaserver.Album{}, false
}

// populateCache fetches the full library in two bulk passes (tracks, then
// albums) and installs the grouped result. Page failures halve the batch
// size down to a floor; three consecutive failures abandon the remainder
// and keep what was fetched so targeted lookups can fill the holes.
func (c *Client) populateCache(ctx context.Context, libraryID string) {
	c.popMu.Lock()
	defer c.popMu.Unlock()
	if c.cache.isPopulated() {
		return
	}

	c.log.Info("populating library cache")
	c.progressf("Fetching library contents...")

	trackItems := c.pageAll(ctx, libraryID, "Audio", "AlbumId,ArtistItems,Path", "AlbumId,IndexNumber", "tracks")
	tracks := make(map[string][]mediaserver.Track)
	for _, it := range trackItems {
		if it.AlbumID == "" {
			continue
		}
		tracks[it.AlbumID] = append(tracks[it.AlbumID], c.toTrack(it))
	}

	albumItems := c.pageAll(ctx, libraryID, "MusicAlbum", "AlbumArtists,Artists,Genres", "SortName", "albums")
	albums := make(map[string][]mediaserver.Album)
	for _, it := range albumItems {
		album := c.toAlbum(it)
		for _, artist := range it.AlbumArtists {
			if artist.ID == "" {
				continue
			}
			albums[artist.ID] = append(albums[artist.ID], album)
		}
	}

	c.cache.swap(tracks, albums)
	c.log.Info("library cache ready", "tracks", len(trackItems), "albums", len(albumItems))
	c.progressf("Library cache ready: %d tracks, %d albums", len(trackItems), len(albumItems))
}

// pageAll walks one item type through the paged listing endpoint and
// returns everything it managed to fetch.
func (c *Client) pageAll(ctx context.Context, libraryID, itemType, fields, sortBy, label string) []jfItem {
	uid := c.userID

	var all []jfItem
	start := 0
	limit := cachePageSize
	failures := 0
	for {
		params := url.Values{}
		params.Set("ParentId", libraryID)
		params.Set("IncludeItemTypes", itemType)
		params.Set("Recursive", "true")
		params.Set("Fields", fields)
		params.Set("SortBy", sortBy)
		params.Set("SortOrder", "Ascending")
		params.Set("StartIndex", strconv.Itoa(start))
		params.Set("Limit", strconv.Itoa(limit))

		var page itemsPage
		if err := c.get(ctx, "/Users/"+url.PathEscape(uid)+"/Items", params, &page); err != nil {
			failures++
			if failures >= cacheMaxFailures {
				c.log.Warn("giving up on remaining pages", "kind", label, "fetched", len(all), "err", err)
				break
			}
			if limit > cachePageMinimum {
				limit /= 2
				c.log.Warn("page fetch failed, halving batch size", "kind", label, "limit", limit, "err", err)
				continue
			}
			c.log.Warn("page fetch failed at minimum batch size", "kind", label, "fetched", len(all), "err", err)
			break
		}
		failures = 0

		if len(page.Items) == 0 {
			break
		}
		all = append(all, page.Items...)
		if len(page.Items) < limit {
			break
		}
		start += limit
		c.progressf("Fetched %d %s so far...", len(all), label)
	}
	return all
}
