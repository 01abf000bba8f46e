package sync

import (
	"context"
	"sync"
	"time"

	"github.com/llehouerou/attune/internal/catalog"
	"github.com/llehouerou/attune/internal/mediaserver"
)

var _ mediaserver.Server = (*fakeServer)(nil)

// fakeServer implements mediaserver.Server with per-test hooks. Unset
// hooks return empty results, and every UpdatePlaylist call is recorded.
type fakeServer struct {
	source catalog.ServerSource

	connectErr      error
	searchTracks    func(title, artist string) []mediaserver.Track
	trackByID       func(id string) (*mediaserver.Track, error)
	trackByFilename func(filename string) (*mediaserver.Track, error)
	updateErr       error
	validTrackID    func(id string) bool
	artists         []mediaserver.Artist
	albumsForArtist func(artistID string) []mediaserver.Album
	tracksForAlbum  func(albumID string) []mediaserver.Track
	recentAlbums    []mediaserver.Album
	playlists       []mediaserver.Playlist
	stats           mediaserver.Stats

	mu      sync.Mutex
	updates []playlistUpdate
}

type playlistUpdate struct {
	name     string
	trackIDs []string
}

func (f *fakeServer) playlistUpdates() []playlistUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]playlistUpdate(nil), f.updates...)
}

func (f *fakeServer) Connect(ctx context.Context) error { return f.connectErr }

func (f *fakeServer) MusicLibraries(ctx context.Context) ([]mediaserver.Library, error) {
	return nil, nil
}

func (f *fakeServer) SelectLibrary(ctx context.Context, name string) error { return nil }

func (f *fakeServer) Artists(ctx context.Context) ([]mediaserver.Artist, error) {
	return f.artists, nil
}

func (f *fakeServer) AlbumsForArtist(ctx context.Context, artistID string) ([]mediaserver.Album, error) {
	if f.albumsForArtist == nil {
		return nil, nil
	}
	return f.albumsForArtist(artistID), nil
}

func (f *fakeServer) TracksForAlbum(ctx context.Context, albumID string) ([]mediaserver.Track, error) {
	if f.tracksForAlbum == nil {
		return nil, nil
	}
	return f.tracksForAlbum(albumID), nil
}

func (f *fakeServer) ArtistByID(ctx context.Context, id string) (*mediaserver.Artist, error) {
	return nil, mediaserver.ErrNotFound
}

func (f *fakeServer) AlbumByID(ctx context.Context, id string) (*mediaserver.Album, error) {
	return nil, mediaserver.ErrNotFound
}

func (f *fakeServer) TrackByID(ctx context.Context, id string) (*mediaserver.Track, error) {
	if f.trackByID == nil {
		return nil, mediaserver.ErrNotFound
	}
	return f.trackByID(id)
}

func (f *fakeServer) RecentlyAddedAlbums(ctx context.Context, limit int) ([]mediaserver.Album, error) {
	return f.recentAlbums, nil
}

func (f *fakeServer) RecentlyAddedTracks(ctx context.Context, limit int) ([]mediaserver.Track, error) {
	return nil, nil
}

func (f *fakeServer) RecentlyUpdatedArtists(ctx context.Context, since time.Time) ([]mediaserver.Artist, error) {
	return nil, nil
}

func (f *fakeServer) LibraryStats(ctx context.Context) (mediaserver.Stats, error) {
	return f.stats, nil
}

func (f *fakeServer) Playlists(ctx context.Context) ([]mediaserver.Playlist, error) {
	return f.playlists, nil
}

func (f *fakeServer) PlaylistByName(ctx context.Context, name string) (*mediaserver.Playlist, error) {
	return nil, mediaserver.ErrNotFound
}

func (f *fakeServer) PlaylistTracks(ctx context.Context, playlistID string) ([]mediaserver.Track, error) {
	return nil, nil
}

func (f *fakeServer) CreatePlaylist(ctx context.Context, name string, trackIDs []string) error {
	return f.UpdatePlaylist(ctx, name, trackIDs)
}

func (f *fakeServer) UpdatePlaylist(ctx context.Context, name string, trackIDs []string) error {
	f.mu.Lock()
	f.updates = append(f.updates, playlistUpdate{name: name, trackIDs: append([]string(nil), trackIDs...)})
	f.mu.Unlock()
	return f.updateErr
}

func (f *fakeServer) CopyPlaylist(ctx context.Context, srcName, dstName string) error { return nil }

func (f *fakeServer) SearchTracks(ctx context.Context, title, artist string) ([]mediaserver.Track, error) {
	if f.searchTracks == nil {
		return nil, nil
	}
	return f.searchTracks(title, artist), nil
}

func (f *fakeServer) TrackByFilename(ctx context.Context, filename string) (*mediaserver.Track, error) {
	if f.trackByFilename == nil {
		return nil, mediaserver.ErrNotFound
	}
	return f.trackByFilename(filename)
}

func (f *fakeServer) TriggerLibraryScan(ctx context.Context) error { return nil }

func (f *fakeServer) IsScanning(ctx context.Context) (bool, error) { return false, nil }

func (f *fakeServer) UpdateArtistPoster(ctx context.Context, artistID string, image []byte) error {
	return nil
}

func (f *fakeServer) UpdateAlbumPoster(ctx context.Context, albumID string, image []byte) error {
	return nil
}

func (f *fakeServer) NeedsUpdateByAge(artist mediaserver.Artist, maxAge time.Duration) bool {
	return true
}

func (f *fakeServer) IsIgnored(artist mediaserver.Artist) bool { return false }

func (f *fakeServer) SetMetadataOnlyMode(enabled bool) {}

func (f *fakeServer) ValidTrackID(id string) bool {
	if f.validTrackID == nil {
		return id != ""
	}
	return f.validTrackID(id)
}

func (f *fakeServer) Source() catalog.ServerSource {
	if f.source == "" {
		return catalog.SourceSecondary
	}
	return f.source
}
