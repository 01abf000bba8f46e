// Package mediaserver defines the uniform interface the sync engine uses to
// talk to a media server, together with the item types shared by the
// backend adapters.
package mediaserver

import (
	"context"
	"errors"
	"time"

	"github.com/llehouerou/attune/internal/catalog"
)

// Sentinel errors shared by the backend adapters.
var (
	// ErrNotConnected is returned when a connection attempt failed and the
	// operation cannot proceed.
	ErrNotConnected = errors.New("mediaserver: not connected")

	// ErrNoLibrary is returned when no user with access to a music library
	// could be found on the server.
	ErrNoLibrary = errors.New("mediaserver: no music library found")

	// ErrNotFound is returned for lookups of ids the server does not know.
	ErrNotFound = errors.New("mediaserver: not found")
)

// IgnoreMarker in an artist summary opts the artist out of automatic
// metadata refreshes.
const IgnoreMarker = "-IgnoreUpdate"

// Library is a music library (view or section) on the server.
type Library struct {
	ID   string
	Name string
}

// Artist is a library artist. Summary carries only tracking markers, never
// a biography.
type Artist struct {
	ID       string
	Name     string
	ThumbURL string
	Genres   []string
	Summary  string
	AddedAt  time.Time
}

// Album is a library album.
type Album struct {
	ID         string
	ArtistID   string
	ArtistName string
	Title      string
	Year       int
	ThumbURL   string
	Genres     []string
	TrackCount int
	DurationMS int
	AddedAt    time.Time
}

// Track is a library track.
type Track struct {
	ID          string
	AlbumID     string
	ArtistID    string
	ArtistName  string
	AlbumTitle  string
	Title       string
	TrackNumber int
	DurationMS  int
	Year        int
	FilePath    string
	Bitrate     int

	// IsFileMatch marks a synthetic placeholder built from a filesystem
	// hit before the server has scanned the file. Placeholders never enter
	// playlist writes but suppress re-downloads.
	IsFileMatch bool
}

// Playlist is a server-side playlist container.
type Playlist struct {
	ID         string
	Name       string
	DurationMS int
	TrackCount int
}

// Stats summarizes library size.
type Stats struct {
	Artists int
	Albums  int
	Tracks  int
}

// ProgressFunc receives human-readable progress messages during long
// cache-population runs.
type ProgressFunc func(message string)

// Server is the uniform surface over the two backend protocols. The sync
// engine and CLI touch only this interface; backend specifics (id formats,
// pagination, playlist write quirks) stay inside the adapters.
type Server interface {
	// Connect dials the server, enumerates users, and locks onto the first
	// user with a visible music library. Idempotent; concurrent callers
	// share one attempt.
	Connect(ctx context.Context) error

	MusicLibraries(ctx context.Context) ([]Library, error)
	SelectLibrary(ctx context.Context, name string) error

	Artists(ctx context.Context) ([]Artist, error)
	AlbumsForArtist(ctx context.Context, artistID string) ([]Album, error)
	TracksForAlbum(ctx context.Context, albumID string) ([]Track, error)
	ArtistByID(ctx context.Context, id string) (*Artist, error)
	AlbumByID(ctx context.Context, id string) (*Album, error)
	TrackByID(ctx context.Context, id string) (*Track, error)

	RecentlyAddedAlbums(ctx context.Context, limit int) ([]Album, error)
	RecentlyAddedTracks(ctx context.Context, limit int) ([]Track, error)
	RecentlyUpdatedArtists(ctx context.Context, since time.Time) ([]Artist, error)
	LibraryStats(ctx context.Context) (Stats, error)

	Playlists(ctx context.Context) ([]Playlist, error)
	PlaylistByName(ctx context.Context, name string) (*Playlist, error)
	PlaylistTracks(ctx context.Context, playlistID string) ([]Track, error)
	CreatePlaylist(ctx context.Context, name string, trackIDs []string) error
	UpdatePlaylist(ctx context.Context, name string, trackIDs []string) error
	CopyPlaylist(ctx context.Context, srcName, dstName string) error

	// SearchTracks is the resolver's first tier: a direct metadata search
	// on the server.
	SearchTracks(ctx context.Context, title, artist string) ([]Track, error)

	// TrackByFilename resolves a bare filename to a library track, used by
	// the filesystem tier to trade a placeholder for a real id.
	TrackByFilename(ctx context.Context, filename string) (*Track, error)

	TriggerLibraryScan(ctx context.Context) error
	IsScanning(ctx context.Context) (bool, error)

	UpdateArtistPoster(ctx context.Context, artistID string, image []byte) error
	UpdateAlbumPoster(ctx context.Context, albumID string, image []byte) error

	// NeedsUpdateByAge reports whether the artist's tracked metadata is
	// older than maxAge. Backends without timestamp tracking always
	// report true.
	NeedsUpdateByAge(artist Artist, maxAge time.Duration) bool
	IsIgnored(artist Artist) bool

	// SetMetadataOnlyMode skips expensive track-cache population for
	// metadata-only workloads.
	SetMetadataOnlyMode(enabled bool)

	// ValidTrackID reports whether id is well-formed for this backend.
	ValidTrackID(id string) bool

	Source() catalog.ServerSource
}
