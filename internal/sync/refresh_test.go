package sync

import (
	"context"
	"testing"

	"github.com/llehouerou/attune/internal/mediaserver"
)

func libraryFixture() *fakeServer {
	return &fakeServer{
		artists: []mediaserver.Artist{{ID: "ar-1", Name: "Ride"}},
		albumsForArtist: func(artistID string) []mediaserver.Album {
			if artistID != "ar-1" {
				return nil
			}
			return []mediaserver.Album{{ID: "al-1", ArtistID: "ar-1", ArtistName: "Ride", Title: "Nowhere", TrackCount: 2}}
		},
		tracksForAlbum: func(albumID string) []mediaserver.Track {
			if albumID != "al-1" {
				return nil
			}
			return []mediaserver.Track{
				{ID: "t-1", AlbumID: "al-1", ArtistID: "ar-1", Title: "Seagull", TrackNumber: 1},
				{ID: "t-2", AlbumID: "al-1", ArtistID: "ar-1", Title: "Vapour Trail", TrackNumber: 4},
			}
		},
	}
}

func TestRefreshCatalogFull(t *testing.T) {
	srv := libraryFixture()
	eng, store := newTestEngine(t, srv, nil, nil)

	var lastStage string
	stats, err := eng.RefreshCatalog(context.Background(), RefreshOptions{
		Full: true,
		Progress: func(stage string, done, total int) {
			lastStage = stage
			if total != 1 {
				t.Errorf("progress total = %d, want 1 artist", total)
			}
		},
	})
	if err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}
	if stats.Artists != 1 || stats.Albums != 1 || stats.Tracks != 2 {
		t.Errorf("stats = %+v, want 1/1/2", stats)
	}
	if lastStage != "Ride" {
		t.Errorf("last progress stage = %q, want Ride", lastStage)
	}
	if at, err := store.LastFullRefresh(); err != nil || at.IsZero() {
		t.Errorf("LastFullRefresh = %v, %v; want stamped", at, err)
	}

	// The refreshed rows must be reachable by the resolver's catalog tier.
	m, confidence, err := store.CheckTrackExists("Vapour Trail", "Ride", 0.7, srv.Source())
	if err != nil {
		t.Fatalf("CheckTrackExists: %v", err)
	}
	if m == nil || m.ID != "t-2" || confidence != 1.0 {
		t.Errorf("catalog lookup after refresh = %+v (%.2f)", m, confidence)
	}
}

func TestRefreshCatalogIncremental(t *testing.T) {
	srv := libraryFixture()
	srv.recentAlbums = []mediaserver.Album{
		{ID: "al-1", ArtistID: "ar-1", ArtistName: "Ride", Title: "Nowhere", TrackCount: 2},
	}
	eng, store := newTestEngine(t, srv, nil, nil)

	stats, err := eng.RefreshCatalog(context.Background(), RefreshOptions{})
	if err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}
	if stats.Artists != 1 || stats.Albums != 1 || stats.Tracks != 2 {
		t.Errorf("stats = %+v, want 1/1/2", stats)
	}

	// Incremental runs leave the full-refresh stamp alone.
	if at, err := store.LastFullRefresh(); err != nil || !at.IsZero() {
		t.Errorf("LastFullRefresh = %v, %v; want zero", at, err)
	}
}

func TestRefreshIncrementalSpotsWatchedReleases(t *testing.T) {
	srv := libraryFixture()
	srv.recentAlbums = []mediaserver.Album{
		{ID: "al-1", ArtistID: "ar-1", ArtistName: "Ride", Title: "Nowhere", TrackCount: 2, Year: 1990},
		{ID: "al-9", ArtistID: "ar-9", ArtistName: "Lush", Title: "Spooky", TrackCount: 12},
	}
	srv.tracksForAlbum = func(albumID string) []mediaserver.Track {
		return []mediaserver.Track{{ID: "t-" + albumID, AlbumID: albumID, Title: "Opener"}}
	}
	eng, store := newTestEngine(t, srv, nil, nil)

	if err := store.AddToWatchlist("ar-1", "Ride"); err != nil {
		t.Fatalf("AddToWatchlist: %v", err)
	}

	if _, err := eng.RefreshCatalog(context.Background(), RefreshOptions{}); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	releases, err := store.RecentReleases(10)
	if err != nil {
		t.Fatalf("RecentReleases: %v", err)
	}
	if len(releases) != 1 {
		t.Fatalf("got %d releases, want 1 (only the watched artist)", len(releases))
	}
	rel := releases[0]
	if rel.AlbumName != "Nowhere" || rel.ReleaseDate != "1990" || rel.TrackCount != 2 {
		t.Errorf("release = %+v, want Nowhere/1990/2 tracks", rel)
	}

	// A second pass refreshes metadata without duplicating the row.
	if _, err := eng.RefreshCatalog(context.Background(), RefreshOptions{}); err != nil {
		t.Fatalf("second RefreshCatalog: %v", err)
	}
	releases, err = store.RecentReleases(10)
	if err != nil {
		t.Fatalf("RecentReleases: %v", err)
	}
	if len(releases) != 1 {
		t.Errorf("got %d releases after rescan, want 1", len(releases))
	}
}
