package sync

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/llehouerou/attune/internal/catalog"
	"github.com/llehouerou/attune/internal/mediaserver"
)

// incrementalAlbumLimit bounds how many recently added albums an
// incremental refresh walks.
const incrementalAlbumLimit = 200

// RefreshOptions tune a catalog refresh.
type RefreshOptions struct {
	// Full drops this server's rows and walks the whole library;
	// otherwise only recently added albums are refreshed.
	Full bool
	// Progress, when set, receives a tick per processed artist (full
	// refresh) or album (incremental).
	Progress func(stage string, done, total int)
}

// RefreshCatalog mirrors the media server's library into the catalog, so
// the resolver's third tier has rows to match against. Per-item fetch
// failures are logged and skipped; the refresh only fails outright when
// the server cannot be enumerated at all. Returns post-refresh row counts
// for the active server.
func (e *Engine) RefreshCatalog(ctx context.Context, opts RefreshOptions) (catalog.Stats, error) {
	source := e.server.Source()
	logger := e.log.With("server", string(source))
	started := time.Now()

	if err := e.server.Connect(ctx); err != nil {
		return catalog.Stats{}, fmt.Errorf("connect: %w", err)
	}

	if opts.Full {
		if err := e.catalog.ClearServerData(source); err != nil {
			return catalog.Stats{}, fmt.Errorf("clear server data: %w", err)
		}
		if err := e.refreshFull(ctx, source, opts.Progress); err != nil {
			return catalog.Stats{}, err
		}
		if err := e.catalog.RecordFullRefresh(time.Now()); err != nil {
			logger.Warn("could not stamp refresh time", "err", err)
		}
	} else {
		if err := e.refreshIncremental(ctx, source, opts.Progress); err != nil {
			return catalog.Stats{}, err
		}
	}

	if _, _, err := e.catalog.CleanupOrphans(); err != nil {
		logger.Warn("orphan cleanup failed", "err", err)
	}

	stats, err := e.catalog.Statistics(source)
	if err != nil {
		return catalog.Stats{}, fmt.Errorf("load statistics: %w", err)
	}
	logger.Info("catalog refresh complete",
		"full", opts.Full,
		"artists", stats.Artists,
		"albums", stats.Albums,
		"tracks", stats.Tracks,
		"took", time.Since(started).Round(time.Second))
	return stats, nil
}

func (e *Engine) refreshFull(ctx context.Context, source catalog.ServerSource, progress func(string, int, int)) error {
	artists, err := e.server.Artists(ctx)
	if err != nil {
		return fmt.Errorf("list artists: %w", err)
	}

	for i, artist := range artists {
		if err := ctx.Err(); err != nil {
			return err
		}
		if progress != nil {
			progress(artist.Name, i+1, len(artists))
		}
		if err := e.catalog.UpsertArtist(toCatalogArtist(artist, source)); err != nil {
			e.log.Warn("artist upsert failed", "artist", artist.Name, "err", err)
			continue
		}

		albums, err := e.server.AlbumsForArtist(ctx, artist.ID)
		if err != nil {
			e.log.Warn("album listing failed", "artist", artist.Name, "err", err)
			continue
		}
		for _, album := range albums {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := e.refreshAlbum(ctx, album, source); err != nil {
				e.log.Warn("album refresh failed", "album", album.Title, "err", err)
			}
		}
	}
	return nil
}

// refreshIncremental walks recently added albums only. Artists are
// upserted from the album's own fields, so a brand-new artist still gets
// a row without enumerating the whole library. Albums by watched artists
// are also recorded as recent releases.
func (e *Engine) refreshIncremental(ctx context.Context, source catalog.ServerSource, progress func(string, int, int)) error {
	albums, err := e.server.RecentlyAddedAlbums(ctx, incrementalAlbumLimit)
	if err != nil {
		return fmt.Errorf("list recently added albums: %w", err)
	}

	watched := e.watchedArtists()

	for i, album := range albums {
		if err := ctx.Err(); err != nil {
			return err
		}
		if progress != nil {
			progress(album.Title, i+1, len(albums))
		}
		if album.ArtistID != "" {
			artist := mediaserver.Artist{ID: album.ArtistID, Name: album.ArtistName}
			if full, err := e.server.ArtistByID(ctx, album.ArtistID); err == nil && full != nil {
				artist = *full
			}
			if err := e.catalog.UpsertArtist(toCatalogArtist(artist, source)); err != nil {
				e.log.Warn("artist upsert failed", "artist", artist.Name, "err", err)
			}
		}
		if err := e.refreshAlbum(ctx, album, source); err != nil {
			e.log.Warn("album refresh failed", "album", album.Title, "err", err)
			continue
		}
		e.recordRelease(watched, album)
	}
	return nil
}

// watchedArtists indexes the watchlist by server artist id and lowercased
// name. Nil when the watchlist cannot be read; release spotting is
// best-effort and never fails a refresh.
func (e *Engine) watchedArtists() map[string]int64 {
	artists, err := e.catalog.WatchlistArtists()
	if err != nil {
		e.log.Warn("watchlist unavailable for release spotting", "err", err)
		return nil
	}
	if len(artists) == 0 {
		return nil
	}
	watched := make(map[string]int64, len(artists)*2)
	for _, a := range artists {
		if a.ArtistID != "" {
			watched[a.ArtistID] = a.ID
		}
		if a.ArtistName != "" {
			watched[strings.ToLower(a.ArtistName)] = a.ID
		}
	}
	return watched
}

// recordRelease notes a recently added album when its artist is watched.
func (e *Engine) recordRelease(watched map[string]int64, album mediaserver.Album) {
	if len(watched) == 0 {
		return
	}
	id, ok := watched[album.ArtistID]
	if !ok {
		id, ok = watched[strings.ToLower(album.ArtistName)]
	}
	if !ok {
		return
	}
	release := catalog.RecentRelease{
		WatchlistArtistID: id,
		AlbumName:         album.Title,
		TrackCount:        album.TrackCount,
	}
	if album.Year > 0 {
		release.ReleaseDate = strconv.Itoa(album.Year)
	}
	if err := e.catalog.UpsertRecentRelease(release); err != nil {
		e.log.Warn("release record failed", "album", album.Title, "err", err)
		return
	}
	e.log.Info("new release spotted", "artist", album.ArtistName, "album", album.Title)
}

func (e *Engine) refreshAlbum(ctx context.Context, album mediaserver.Album, source catalog.ServerSource) error {
	if err := e.catalog.UpsertAlbum(toCatalogAlbum(album, source)); err != nil {
		return err
	}
	tracks, err := e.server.TracksForAlbum(ctx, album.ID)
	if err != nil {
		return err
	}
	for _, track := range tracks {
		if track.ArtistID == "" {
			track.ArtistID = album.ArtistID
		}
		if err := e.catalog.UpsertTrack(toCatalogTrack(track, source)); err != nil {
			e.log.Warn("track upsert failed", "track", track.Title, "err", err)
		}
	}
	return nil
}

func toCatalogArtist(a mediaserver.Artist, source catalog.ServerSource) catalog.Artist {
	return catalog.Artist{
		ID:       a.ID,
		Name:     a.Name,
		ThumbURL: a.ThumbURL,
		Genres:   a.Genres,
		Summary:  a.Summary,
		Server:   source,
	}
}

func toCatalogAlbum(a mediaserver.Album, source catalog.ServerSource) catalog.Album {
	return catalog.Album{
		ID:         a.ID,
		ArtistID:   a.ArtistID,
		Title:      a.Title,
		Year:       a.Year,
		ThumbURL:   a.ThumbURL,
		Genres:     a.Genres,
		TrackCount: a.TrackCount,
		DurationMS: a.DurationMS,
		Server:     source,
	}
}

func toCatalogTrack(t mediaserver.Track, source catalog.ServerSource) catalog.Track {
	return catalog.Track{
		ID:          t.ID,
		AlbumID:     t.AlbumID,
		ArtistID:    t.ArtistID,
		Title:       t.Title,
		TrackNumber: t.TrackNumber,
		DurationMS:  t.DurationMS,
		FilePath:    t.FilePath,
		Bitrate:     t.Bitrate,
		Server:      source,
	}
}
