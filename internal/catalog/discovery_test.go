package catalog

import (
	"testing"
	"time"
)

func TestSaveSimilarArtistsBumpsOccurrence(t *testing.T) {
	s := newTestStore(t)

	edges := []SimilarArtist{
		{Name: "Aphex Twin", MatchScore: 0.95, Rank: 1},
		{Name: "Autechre", MatchScore: 0.82, Rank: 2},
	}
	if err := s.SaveSimilarArtists("Boards of Canada", edges); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveSimilarArtists("Boards of Canada", edges[:1]); err != nil {
		t.Fatalf("resave: %v", err)
	}

	got, err := s.SimilarArtistsFor("Boards of Canada")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d edges, want 2", len(got))
	}
	if got[0].Name != "Aphex Twin" || got[0].Rank != 1 {
		t.Errorf("first edge = %q rank %d", got[0].Name, got[0].Rank)
	}
	if got[0].OccurrenceCount != 2 {
		t.Errorf("OccurrenceCount = %d, want 2", got[0].OccurrenceCount)
	}
	if got[1].OccurrenceCount != 1 {
		t.Errorf("second OccurrenceCount = %d, want 1", got[1].OccurrenceCount)
	}
}

func TestHasFreshSimilarArtists(t *testing.T) {
	s := newTestStore(t)

	fresh, err := s.HasFreshSimilarArtists("Nobody", 7*24*time.Hour)
	if err != nil {
		t.Fatalf("check empty: %v", err)
	}
	if fresh {
		t.Error("empty cache reported fresh")
	}

	err = s.SaveSimilarArtists("Burial", []SimilarArtist{{Name: "Four Tet", MatchScore: 0.9, Rank: 1}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	fresh, err = s.HasFreshSimilarArtists("Burial", 7*24*time.Hour)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !fresh {
		t.Error("just-saved cache reported stale")
	}

	fresh, err = s.HasFreshSimilarArtists("Burial", -time.Second)
	if err != nil {
		t.Fatalf("check stale: %v", err)
	}
	if fresh {
		t.Error("negative max age reported fresh")
	}
}

// An artist recommended by two sources outranks a single stronger edge.
func TestTopSimilarArtistsMergesSources(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveSimilarArtists("Boards of Canada", []SimilarArtist{
		{Name: "Aphex Twin", MatchScore: 0.9, Rank: 1},
		{Name: "Plaid", MatchScore: 0.8, Rank: 2},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveSimilarArtists("Autechre", []SimilarArtist{
		{Name: "Plaid", MatchScore: 0.85, Rank: 1},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	top, err := s.TopSimilarArtists(10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("got %d artists, want 2", len(top))
	}
	if top[0].Name != "Plaid" {
		t.Errorf("top artist = %q, want Plaid", top[0].Name)
	}
	if top[0].OccurrenceCount != 2 {
		t.Errorf("merged OccurrenceCount = %d, want 2", top[0].OccurrenceCount)
	}
}

func TestDiscoveryPoolRotation(t *testing.T) {
	s := newTestStore(t)

	names := []string{"One", "Two", "Three", "Four", "Five"}
	for _, n := range names {
		added, err := s.AddToDiscoveryPool(DiscoveryTrack{
			ArtistName: "Various", TrackName: n, SourceArtist: "Seed", MatchScore: 0.5,
		})
		if err != nil {
			t.Fatalf("add %s: %v", n, err)
		}
		if !added {
			t.Fatalf("add %s rejected", n)
		}
	}

	// Exact repeat is ignored.
	added, err := s.AddToDiscoveryPool(DiscoveryTrack{ArtistName: "Various", TrackName: "One"})
	if err != nil {
		t.Fatalf("repeat add: %v", err)
	}
	if added {
		t.Error("repeat add accepted")
	}

	// Under the cap nothing happens.
	if err := s.RotateDiscoveryPool(10, 2); err != nil {
		t.Fatalf("rotate under cap: %v", err)
	}
	tracks, _ := s.DiscoveryPoolTracks(10)
	if len(tracks) != 5 {
		t.Fatalf("got %d tracks after no-op rotate", len(tracks))
	}

	if err := s.RotateDiscoveryPool(3, 2); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	tracks, err = s.DiscoveryPoolTracks(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tracks) != 3 {
		t.Errorf("got %d tracks after rotate, want 3", len(tracks))
	}
}

func TestUpsertRecentReleaseRefreshes(t *testing.T) {
	s := newTestStore(t)

	if err := s.AddToWatchlist("ar1", "Floating Points"); err != nil {
		t.Fatalf("watch: %v", err)
	}
	w, _ := s.WatchlistArtist("ar1")

	r := RecentRelease{WatchlistArtistID: w.ID, AlbumName: "Cascade", ReleaseDate: "2024-09-13", TrackCount: 9}
	if err := s.UpsertRecentRelease(r); err != nil {
		t.Fatalf("insert: %v", err)
	}
	r.TrackCount = 10
	if err := s.UpsertRecentRelease(r); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	releases, err := s.RecentReleases(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(releases) != 1 {
		t.Fatalf("got %d releases, want 1", len(releases))
	}
	if releases[0].TrackCount != 10 {
		t.Errorf("TrackCount = %d, want 10", releases[0].TrackCount)
	}
}
