package catalog

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/llehouerou/attune/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"), log.New(io.Discard))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

// seedLibrary inserts one artist with one album of two tracks on the
// primary server.
func seedLibrary(t *testing.T, s *Store) {
	t.Helper()

	err := s.UpsertArtist(Artist{ID: "ar1", Name: "Radiohead", Server: SourcePrimary})
	if err != nil {
		t.Fatalf("upsert artist: %v", err)
	}
	err = s.UpsertAlbum(Album{
		ID: "al1", ArtistID: "ar1", Title: "OK Computer",
		Year: 1997, TrackCount: 12, Server: SourcePrimary,
	})
	if err != nil {
		t.Fatalf("upsert album: %v", err)
	}
	tracks := []Track{
		{ID: "t1", AlbumID: "al1", ArtistID: "ar1", Title: "Karma Police", TrackNumber: 6, Server: SourcePrimary},
		{ID: "t2", AlbumID: "al1", ArtistID: "ar1", Title: "No Surprises", TrackNumber: 10, Server: SourcePrimary},
	}
	for _, tr := range tracks {
		if err := s.UpsertTrack(tr); err != nil {
			t.Fatalf("upsert track %s: %v", tr.ID, err)
		}
	}
}

func TestOpenTwiceIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.db")
	logger := log.New(io.Discard)

	if _, err := Open(path, logger); err != nil {
		t.Fatalf("first open: %v", err)
	}
	s, err := Open(path, logger)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}

	marker, err := s.Metadata(idColumnsMigratedKey)
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if marker != "true" {
		t.Errorf("migration marker = %q, want %q", marker, "true")
	}
}

func TestUpsertArtistUpdatesInPlace(t *testing.T) {
	s := newTestStore(t)

	a := Artist{ID: "ar1", Name: "Sigur Ros", Genres: []string{"post-rock"}, Server: SourcePrimary}
	if err := s.UpsertArtist(a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	a.Name = "Sigur Rós"
	a.Summary = "Icelandic band"
	if err := s.UpsertArtist(a); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.ArtistByID("ar1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("artist not found after upsert")
	}
	if got.Name != "Sigur Rós" {
		t.Errorf("Name = %q, want %q", got.Name, "Sigur Rós")
	}
	if got.Summary != "Icelandic band" {
		t.Errorf("Summary = %q, want %q", got.Summary, "Icelandic band")
	}
	if len(got.Genres) != 1 || got.Genres[0] != "post-rock" {
		t.Errorf("Genres = %v, want [post-rock]", got.Genres)
	}

	artists, err := s.SearchArtists("Sigur", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(artists) != 1 {
		t.Errorf("got %d artist rows, want 1", len(artists))
	}
}

func TestUpsertArtistNormalizesSmartQuotes(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertArtist(Artist{ID: "ar1", Name: "Don’t Panic", Server: SourcePrimary}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.ArtistByID("ar1")
	if err != nil || got == nil {
		t.Fatalf("get: %v (%v)", err, got)
	}
	if got.Name != "Don't Panic" {
		t.Errorf("Name = %q, want %q", got.Name, "Don't Panic")
	}
}

func TestTracksByAlbumOrder(t *testing.T) {
	s := newTestStore(t)
	seedLibrary(t, s)

	tracks, err := s.TracksByAlbum("al1")
	if err != nil {
		t.Fatalf("tracks: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("got %d tracks, want 2", len(tracks))
	}
	if tracks[0].Title != "Karma Police" || tracks[1].Title != "No Surprises" {
		t.Errorf("wrong order: %q, %q", tracks[0].Title, tracks[1].Title)
	}
	if tracks[0].ArtistName != "Radiohead" || tracks[0].AlbumTitle != "OK Computer" {
		t.Errorf("joined names = %q/%q", tracks[0].ArtistName, tracks[0].AlbumTitle)
	}
}

func TestDeleteAlbumCascadesToTracks(t *testing.T) {
	s := newTestStore(t)
	seedLibrary(t, s)

	conn, err := db.Open(s.Path())
	if err != nil {
		t.Fatalf("open conn: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Exec("DELETE FROM albums WHERE id = ?", "al1"); err != nil {
		t.Fatalf("delete album: %v", err)
	}

	exists, err := s.TrackExists("t1", "")
	if err != nil {
		t.Fatalf("track exists: %v", err)
	}
	if exists {
		t.Error("track survived album delete")
	}
}

func TestClearServerDataKeepsOtherServer(t *testing.T) {
	s := newTestStore(t)
	seedLibrary(t, s)

	if err := s.UpsertArtist(Artist{ID: "jf-ar1", Name: "Boards of Canada", Server: SourceSecondary}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertAlbum(Album{ID: "jf-al1", ArtistID: "jf-ar1", Title: "Geogaddi", Server: SourceSecondary}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertTrack(Track{ID: "jf-t1", AlbumID: "jf-al1", ArtistID: "jf-ar1", Title: "1969", Server: SourceSecondary}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.ClearServerData(SourceSecondary); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if exists, _ := s.TrackExists("jf-t1", ""); exists {
		t.Error("secondary track survived clear")
	}
	if exists, _ := s.TrackExists("t1", ""); !exists {
		t.Error("primary track removed by secondary clear")
	}

	stats, err := s.Statistics(SourceSecondary)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Artists != 0 || stats.Albums != 0 || stats.Tracks != 0 {
		t.Errorf("secondary stats after clear = %+v, want zeros", stats)
	}
}

func TestCleanupOrphans(t *testing.T) {
	s := newTestStore(t)
	seedLibrary(t, s)

	// Album with no tracks and an artist with nothing at all.
	if err := s.UpsertArtist(Artist{ID: "ar-empty", Name: "Ghost", Server: SourcePrimary}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertAlbum(Album{ID: "al-empty", ArtistID: "ar1", Title: "Unreleased", Server: SourcePrimary}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	albums, artists, err := s.CleanupOrphans()
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if albums != 1 {
		t.Errorf("albums removed = %d, want 1", albums)
	}
	if artists != 1 {
		t.Errorf("artists removed = %d, want 1", artists)
	}

	if got, _ := s.ArtistByID("ar1"); got == nil {
		t.Error("artist with tracks removed as orphan")
	}
	if got, _ := s.ArtistByID("ar-empty"); got != nil {
		t.Error("empty artist survived cleanup")
	}
}

func TestStatisticsCountsDistinctArtistNames(t *testing.T) {
	s := newTestStore(t)
	seedLibrary(t, s)

	// Same artist mirrored from the other server counts once.
	if err := s.UpsertArtist(Artist{ID: "jf-ar1", Name: "Radiohead", Server: SourceSecondary}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	stats, err := s.Statistics("")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Artists != 1 {
		t.Errorf("Artists = %d, want 1", stats.Artists)
	}
	if stats.Albums != 1 || stats.Tracks != 2 {
		t.Errorf("Albums/Tracks = %d/%d, want 1/2", stats.Albums, stats.Tracks)
	}

	primary, err := s.Statistics(SourcePrimary)
	if err != nil {
		t.Fatalf("primary stats: %v", err)
	}
	if primary.Artists != 1 || primary.Tracks != 2 {
		t.Errorf("primary stats = %+v", primary)
	}
}

// TestMigrateLegacyDatabase opens a database laid out like the first
// release: INTEGER ids, no server_source, no watchlist extensions. Open
// must rebuild it without losing rows.
func TestMigrateLegacyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	conn, err := db.Open(path)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	legacy := []string{
		`CREATE TABLE artists (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			thumb_url TEXT,
			genres TEXT,
			summary TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE albums (
			id INTEGER PRIMARY KEY,
			artist_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			year INTEGER,
			thumb_url TEXT,
			genres TEXT,
			track_count INTEGER,
			duration INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE tracks (
			id INTEGER PRIMARY KEY,
			album_id INTEGER,
			artist_id INTEGER,
			title TEXT NOT NULL,
			track_number INTEGER,
			duration INTEGER,
			file_path TEXT,
			bitrate INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL, updated_at INTEGER NOT NULL)`,
		`INSERT INTO artists VALUES (1, 'Radiohead', NULL, NULL, NULL, 1600000000, 1600000000)`,
		`INSERT INTO albums VALUES (7, 1, 'OK Computer', 1997, NULL, NULL, 12, NULL, 1600000000, 1600000000)`,
		`INSERT INTO tracks VALUES (42, 7, 1, 'Karma Police', 6, NULL, NULL, NULL, 1600000000, 1600000000)`,
	}
	for _, stmt := range legacy {
		if _, err := conn.Exec(stmt); err != nil {
			t.Fatalf("legacy setup: %v", err)
		}
	}
	conn.Close()

	s, err := Open(path, log.New(io.Discard))
	if err != nil {
		t.Fatalf("open over legacy: %v", err)
	}

	track, err := s.TrackByID("42")
	if err != nil {
		t.Fatalf("track by id: %v", err)
	}
	if track == nil {
		t.Fatal("legacy track lost in migration")
	}
	if track.Title != "Karma Police" || track.ArtistName != "Radiohead" || track.AlbumTitle != "OK Computer" {
		t.Errorf("migrated track = %q by %q on %q", track.Title, track.ArtistName, track.AlbumTitle)
	}
	if track.Server != SourcePrimary {
		t.Errorf("Server = %q, want %q", track.Server, SourcePrimary)
	}

	// New-style ids work alongside migrated ones.
	err = s.UpsertArtist(Artist{ID: "9f4e8c2a1b3d4e5f6a7b8c9d0e1f2a3b", Name: "Portishead", Server: SourceSecondary})
	if err != nil {
		t.Fatalf("upsert guid artist: %v", err)
	}

	// Reopening must not rebuild again.
	if _, err := Open(path, log.New(io.Discard)); err != nil {
		t.Fatalf("reopen: %v", err)
	}

	watched, err := s.WatchlistArtists()
	if err != nil {
		t.Fatalf("watchlist after migration: %v", err)
	}
	if len(watched) != 0 {
		t.Errorf("unexpected watchlist rows: %d", len(watched))
	}
}
