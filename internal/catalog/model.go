package catalog

import "time"

// Artist is a mirrored media-server artist.
type Artist struct {
	ID        string
	Name      string
	ThumbURL  string
	Genres    []string
	Summary   string
	Server    ServerSource
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Album is a mirrored media-server album.
type Album struct {
	ID         string
	ArtistID   string
	Title      string
	Year       int
	ThumbURL   string
	Genres     []string
	TrackCount int
	DurationMS int
	Server     ServerSource
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Track is a mirrored media-server track.
type Track struct {
	ID          string
	AlbumID     string
	ArtistID    string
	Title       string
	TrackNumber int
	DurationMS  int
	FilePath    string
	Bitrate     int
	Server      ServerSource
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TrackMatch couples a track row with the joined artist and album names
// confidence scoring needs.
type TrackMatch struct {
	Track
	ArtistName string
	AlbumTitle string
}

// AlbumMatch couples an album row with its artist name.
type AlbumMatch struct {
	Album
	ArtistName string
}

// WishlistTrack is a track that could not be satisfied yet and is retried
// over time.
type WishlistTrack struct {
	ID            int64
	TrackID       string
	Name          string
	Artists       []string
	AlbumName     string
	DurationMS    int
	TrackData     string
	FailureReason string
	RetryCount    int
	SourceType    string
	SourceContext map[string]string
	DateAdded     time.Time
	LastAttempted time.Time
}

// WatchlistArtist is an artist monitored for new releases.
type WatchlistArtist struct {
	ID          int64
	ArtistID    string
	ArtistName  string
	DateAdded   time.Time
	LastScanned time.Time
	ImageURL    string
	Filters     ReleaseFilters
}

// ReleaseFilters select which release types of a watched artist matter.
type ReleaseFilters struct {
	Albums       bool
	EPs          bool
	Singles      bool
	Live         bool
	Remixes      bool
	Acoustic     bool
	Compilations bool
}

// DefaultReleaseFilters matches the schema defaults: studio output in,
// alternate versions out.
func DefaultReleaseFilters() ReleaseFilters {
	return ReleaseFilters{Albums: true, EPs: true, Singles: true}
}

// SimilarArtist is one cached similarity edge from the discovery provider.
type SimilarArtist struct {
	ID              int64
	SourceArtist    string
	Name            string
	MatchScore      float64
	Rank            int
	OccurrenceCount int
	FetchedAt       time.Time
}

// DiscoveryTrack is one rotating discovery-pool recommendation.
type DiscoveryTrack struct {
	ID           int64
	ArtistName   string
	TrackName    string
	AlbumName    string
	SourceArtist string
	MatchScore   float64
	AddedAt      time.Time
}

// RecentRelease records a new release spotted for a watchlist artist.
type RecentRelease struct {
	ID                int64
	WatchlistArtistID int64
	AlbumName         string
	ReleaseDate       string
	TrackCount        int
	AddedAt           time.Time
}

// Stats summarizes catalog contents, optionally per server.
type Stats struct {
	Artists int
	Albums  int
	Tracks  int
}

// CompletionStats aggregates album ownership across the library.
type CompletionStats struct {
	TotalAlbums    int
	CompleteAlbums int
	OwnedTracks    int
	ExpectedTracks int
}
