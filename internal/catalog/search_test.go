package catalog

import "testing"

func seedSearchLibrary(t *testing.T, s *Store) {
	t.Helper()

	artists := []Artist{
		{ID: "ar1", Name: "Radiohead", Server: SourcePrimary},
		{ID: "ar2", Name: "Sigur Ros", Server: SourcePrimary},
	}
	for _, a := range artists {
		if err := s.UpsertArtist(a); err != nil {
			t.Fatalf("upsert artist: %v", err)
		}
	}
	albums := []Album{
		{ID: "al1", ArtistID: "ar1", Title: "OK Computer", TrackCount: 12, Server: SourcePrimary},
		{ID: "al2", ArtistID: "ar2", Title: "Agaetis Byrjun", TrackCount: 10, Server: SourcePrimary},
	}
	for _, a := range albums {
		if err := s.UpsertAlbum(a); err != nil {
			t.Fatalf("upsert album: %v", err)
		}
	}
	tracks := []Track{
		{ID: "t1", AlbumID: "al1", ArtistID: "ar1", Title: "Paranoid Android", TrackNumber: 2, Server: SourcePrimary},
		{ID: "t2", AlbumID: "al1", ArtistID: "ar1", Title: "Karma Police", TrackNumber: 6, Server: SourcePrimary},
		{ID: "t3", AlbumID: "al2", ArtistID: "ar2", Title: "Svefn-g-englar", TrackNumber: 2, Server: SourcePrimary},
	}
	for _, tr := range tracks {
		if err := s.UpsertTrack(tr); err != nil {
			t.Fatalf("upsert track: %v", err)
		}
	}
}

func TestSearchTracksBasic(t *testing.T) {
	s := newTestStore(t)
	seedSearchLibrary(t, s)

	tracks, err := s.SearchTracks("karma", "", 10, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("got %d tracks, want 1", len(tracks))
	}
	if tracks[0].Title != "Karma Police" {
		t.Errorf("Title = %q", tracks[0].Title)
	}

	tracks, err = s.SearchTracks("", "radiohead", 10, "")
	if err != nil {
		t.Fatalf("search by artist: %v", err)
	}
	if len(tracks) != 2 {
		t.Errorf("got %d tracks by artist, want 2", len(tracks))
	}

	tracks, err = s.SearchTracks("", "", 10, "")
	if err != nil {
		t.Fatalf("empty search: %v", err)
	}
	if tracks != nil {
		t.Errorf("empty query returned %d tracks", len(tracks))
	}
}

// Accented input should still find the plain-ASCII rows the servers store.
func TestSearchTracksNormalizedFallback(t *testing.T) {
	s := newTestStore(t)
	seedSearchLibrary(t, s)

	tracks, err := s.SearchTracks("Svefn-g-englar", "Sigur Rós", 10, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("got %d tracks, want 1", len(tracks))
	}
	if tracks[0].ID != "t3" {
		t.Errorf("matched %q", tracks[0].ID)
	}
}

// A title with extra words has no LIKE or containment match and lands in
// the word-level strategy.
func TestSearchTracksFuzzyFallback(t *testing.T) {
	s := newTestStore(t)
	seedSearchLibrary(t, s)

	tracks, err := s.SearchTracks("Android Paranoid", "", 10, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(tracks) == 0 {
		t.Fatal("fuzzy search found nothing")
	}
	if tracks[0].Title != "Paranoid Android" {
		t.Errorf("top fuzzy result = %q", tracks[0].Title)
	}
}

func TestSearchTracksServerFilter(t *testing.T) {
	s := newTestStore(t)
	seedSearchLibrary(t, s)

	if err := s.UpsertArtist(Artist{ID: "jf1", Name: "Radiohead", Server: SourceSecondary}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertAlbum(Album{ID: "jf-al", ArtistID: "jf1", Title: "Kid A", Server: SourceSecondary}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertTrack(Track{ID: "jf-t", AlbumID: "jf-al", ArtistID: "jf1", Title: "Idioteque", Server: SourceSecondary}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	tracks, err := s.SearchTracks("Idioteque", "", 10, SourcePrimary)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(tracks) != 0 {
		t.Errorf("primary filter leaked %d secondary tracks", len(tracks))
	}

	tracks, err = s.SearchTracks("Idioteque", "", 10, SourceSecondary)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(tracks) != 1 {
		t.Errorf("secondary search got %d tracks, want 1", len(tracks))
	}
}

func TestSearchAlbums(t *testing.T) {
	s := newTestStore(t)
	seedSearchLibrary(t, s)

	albums, err := s.SearchAlbums("computer", "", 10, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(albums) != 1 {
		t.Fatalf("got %d albums, want 1", len(albums))
	}
	if albums[0].Title != "OK Computer" || albums[0].ArtistName != "Radiohead" {
		t.Errorf("album = %q by %q", albums[0].Title, albums[0].ArtistName)
	}

	albums, err = s.SearchAlbums("", "sigur", 10, "")
	if err != nil {
		t.Fatalf("search by artist: %v", err)
	}
	if len(albums) != 1 || albums[0].ID != "al2" {
		t.Errorf("artist search = %v", albums)
	}
}
