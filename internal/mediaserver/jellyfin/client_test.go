package jellyfin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/llehouerou/attune/internal/mediaserver"
)

func testClient(t *testing.T, mux *http.ServeMux, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	cfg.URL = srv.URL
	if cfg.APIKey == "" {
		cfg.APIKey = "test-key"
	}
	return New(cfg, log.New(io.Discard))
}

// addConnectRoutes wires the minimal connect handshake: one admin user with
// one music view.
func addConnectRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /System/Info", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(systemInfo{ID: "srv", ServerName: "test", Version: "10.9"})
	})
	mux.HandleFunc("GET /Users", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]jfUser{{ID: "u1", Name: "admin"}})
	})
	mux.HandleFunc("GET /Users/u1/Views", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(itemsPage{Items: []jfItem{
			{ID: "movies", Name: "Movies", CollectionType: "movies"},
			{ID: "lib1", Name: "Music", CollectionType: "music"},
		}})
	})
}

// guid fabricates a hyphen-free 32-char id that passes ValidTrackID.
func guid(n int) string {
	return fmt.Sprintf("%032d", n)
}

func TestConnectSkipsUsersWithoutMusic(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /System/Info", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Emby-Token") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(systemInfo{ServerName: "test"})
	})
	mux.HandleFunc("GET /Users", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]jfUser{
			{ID: "broken", Name: "broken"},
			{ID: "novideo", Name: "tvonly"},
			{ID: "u2", Name: "listener"},
		})
	})
	mux.HandleFunc("GET /Users/broken/Views", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("GET /Users/novideo/Views", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(itemsPage{Items: []jfItem{
			{ID: "tv", Name: "Shows", CollectionType: "tvshows"},
		}})
	})
	mux.HandleFunc("GET /Users/u2/Views", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(itemsPage{Items: []jfItem{
			{ID: "lib9", Name: "Tunes", CollectionType: "music"},
		}})
	})

	c := testClient(t, mux, Config{})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	uid, lib, err := c.session(context.Background())
	if err != nil {
		t.Fatalf("session() error: %v", err)
	}
	if uid != "u2" || lib != "lib9" {
		t.Errorf("session = (%q, %q), want (u2, lib9)", uid, lib)
	}
}

func TestConnectPrefersConfiguredLibrary(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /System/Info", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(systemInfo{ServerName: "test"})
	})
	mux.HandleFunc("GET /Users", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]jfUser{{ID: "u1", Name: "admin"}})
	})
	mux.HandleFunc("GET /Users/u1/Views", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(itemsPage{Items: []jfItem{
			{ID: "lib1", Name: "Music", CollectionType: "music"},
			{ID: "lib2", Name: "Vinyl Rips", CollectionType: "music"},
		}})
	})

	c := testClient(t, mux, Config{MusicLibrary: "vinyl rips"})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	_, lib, _ := c.session(context.Background())
	if lib != "lib2" {
		t.Errorf("library = %q, want lib2", lib)
	}
}

func TestConnectNoMusicLibrary(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /System/Info", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(systemInfo{})
	})
	mux.HandleFunc("GET /Users", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]jfUser{{ID: "u1", Name: "admin"}})
	})
	mux.HandleFunc("GET /Users/u1/Views", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(itemsPage{})
	})

	c := testClient(t, mux, Config{})
	if err := c.Connect(context.Background()); !errors.Is(err, mediaserver.ErrNoLibrary) {
		t.Fatalf("Connect() = %v, want ErrNoLibrary", err)
	}
}

func TestConnectDialsOnce(t *testing.T) {
	var probes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /System/Info", func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		time.Sleep(20 * time.Millisecond)
		json.NewEncoder(w).Encode(systemInfo{ServerName: "test"})
	})
	mux.HandleFunc("GET /Users", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]jfUser{{ID: "u1", Name: "admin"}})
	})
	mux.HandleFunc("GET /Users/u1/Views", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(itemsPage{Items: []jfItem{
			{ID: "movies", Name: "Movies", CollectionType: "movies"},
			{ID: "lib1", Name: "Music", CollectionType: "music"},
		}})
	})

	c := testClient(t, mux, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.session(context.Background()); err != nil {
				t.Errorf("session() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if probes.Load() != 1 {
		t.Errorf("server probed %d times, want 1", probes.Load())
	}
}

func TestValidTrackID(t *testing.T) {
	c := New(Config{URL: "http://example", APIKey: "k"}, log.New(io.Discard))

	tests := []struct {
		id   string
		want bool
	}{
		{"d3b07384d113edec49eaa6238ad5ff00", true},
		{"d3b07384-d113-edec-49ea-a6238ad5ff00", true},
		{"  d3b07384d113edec49eaa6238ad5ff00  ", true},
		{"D3B07384D113EDEC49EAA6238AD5FF00", true},
		{"", false},
		{"12345", false},
		{"g3b07384d113edec49eaa6238ad5ff00", false},
		{"d3b07384d113edec49eaa6238ad5ff001", false},
		{"d3b0-7384d113edec49eaa6238ad5ff00", false}, // 33 chars
		{"fs_1234567", false},
	}
	for _, tt := range tests {
		if got := c.ValidTrackID(tt.id); got != tt.want {
			t.Errorf("ValidTrackID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestTrackConversion(t *testing.T) {
	c := New(Config{URL: "http://example", APIKey: "k"}, log.New(io.Discard))

	it := jfItem{
		ID:           guid(7),
		Name:         "Only Shallow",
		Album:        "Loveless",
		AlbumID:      guid(8),
		IndexNumber:  1,
		RunTimeTicks: 2_530_000_000, // 4m13s
		Path:         "/music/mbv/loveless/01 - Only Shallow.flac",
		ArtistItems:  []nameID{{ID: guid(9), Name: "My Bloody Valentine"}},
	}
	track := c.toTrack(it)
	if track.DurationMS != 253_000 {
		t.Errorf("DurationMS = %d, want 253000", track.DurationMS)
	}
	if track.ArtistName != "My Bloody Valentine" || track.ArtistID != guid(9) {
		t.Errorf("artist = %q/%q", track.ArtistName, track.ArtistID)
	}
	if track.FilePath != it.Path {
		t.Errorf("FilePath = %q", track.FilePath)
	}
}

func TestIsIgnoredAndUpdateAge(t *testing.T) {
	c := New(Config{URL: "http://example", APIKey: "k"}, log.New(io.Discard))

	marked := mediaserver.Artist{Summary: "Shoegaze pioneers. -IgnoreUpdate"}
	if !c.IsIgnored(marked) {
		t.Error("marked artist not ignored")
	}
	if c.IsIgnored(mediaserver.Artist{Summary: "Shoegaze pioneers."}) {
		t.Error("unmarked artist ignored")
	}
	// No timestamps on this backend: everything is always due.
	if !c.NeedsUpdateByAge(marked, time.Hour) {
		t.Error("NeedsUpdateByAge() = false, want true")
	}
}

func TestLibraryCacheServesTracks(t *testing.T) {
	albumID := guid(1)
	var audioQueries, parentQueries atomic.Int32

	mux := http.NewServeMux()
	addConnectRoutes(mux)
	mux.HandleFunc("GET /Users/u1/Items", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("IncludeItemTypes") == "Audio" && q.Get("ParentId") == "lib1":
			audioQueries.Add(1)
			json.NewEncoder(w).Encode(itemsPage{Items: []jfItem{
				{ID: guid(2), Name: "Track One", AlbumID: albumID, IndexNumber: 1},
				{ID: guid(3), Name: "Track Two", AlbumID: albumID, IndexNumber: 2},
			}})
		case q.Get("IncludeItemTypes") == "MusicAlbum":
			json.NewEncoder(w).Encode(itemsPage{Items: []jfItem{
				{ID: albumID, Name: "Album", AlbumArtists: []nameID{{ID: guid(4), Name: "Artist"}}},
			}})
		case q.Get("ParentId") == albumID:
			parentQueries.Add(1)
			json.NewEncoder(w).Encode(itemsPage{})
		default:
			t.Errorf("unexpected Items query: %s", r.URL.RawQuery)
			json.NewEncoder(w).Encode(itemsPage{})
		}
	})
	mux.HandleFunc("GET /Artists/AlbumArtists", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(itemsPage{Items: []jfItem{
			{ID: guid(4), Name: "Artist"},
		}})
	})

	c := testClient(t, mux, Config{})
	if _, err := c.Artists(context.Background()); err != nil {
		t.Fatalf("Artists() error: %v", err)
	}

	tracks, err := c.TracksForAlbum(context.Background(), albumID)
	if err != nil {
		t.Fatalf("TracksForAlbum() error: %v", err)
	}
	if len(tracks) != 2 || tracks[0].Title != "Track One" {
		t.Fatalf("tracks = %+v", tracks)
	}
	if parentQueries.Load() != 0 {
		t.Errorf("album tracks hit the server %d times despite cache", parentQueries.Load())
	}
	if audioQueries.Load() != 1 {
		t.Errorf("library paged %d times, want 1", audioQueries.Load())
	}

	albums, err := c.AlbumsForArtist(context.Background(), guid(4))
	if err != nil {
		t.Fatalf("AlbumsForArtist() error: %v", err)
	}
	if len(albums) != 1 || albums[0].ID != albumID {
		t.Fatalf("albums = %+v", albums)
	}
}

func TestCachePageSizeHalvesOnFailure(t *testing.T) {
	var audioLimits []string
	mux := http.NewServeMux()
	addConnectRoutes(mux)
	mux.HandleFunc("GET /Users/u1/Items", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("IncludeItemTypes") == "Audio" {
			audioLimits = append(audioLimits, q.Get("Limit"))
			if len(audioLimits) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(itemsPage{Items: []jfItem{
				{ID: guid(2), Name: "Track", AlbumID: guid(1)},
			}})
			return
		}
		json.NewEncoder(w).Encode(itemsPage{})
	})
	mux.HandleFunc("GET /Artists/AlbumArtists", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(itemsPage{})
	})

	c := testClient(t, mux, Config{})
	if _, err := c.Artists(context.Background()); err != nil {
		t.Fatalf("Artists() error: %v", err)
	}

	want := []string{"10000", "5000"}
	if len(audioLimits) != len(want) || audioLimits[0] != want[0] || audioLimits[1] != want[1] {
		t.Errorf("audio page limits = %v, want %v", audioLimits, want)
	}
}

func TestCacheKeepsPartialAfterRepeatedFailures(t *testing.T) {
	albumID := guid(1)
	var audioAttempts, targeted atomic.Int32

	mux := http.NewServeMux()
	addConnectRoutes(mux)
	mux.HandleFunc("GET /Users/u1/Items", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("IncludeItemTypes") == "Audio" && q.Get("ParentId") == "lib1":
			audioAttempts.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		case q.Get("IncludeItemTypes") == "MusicAlbum":
			json.NewEncoder(w).Encode(itemsPage{Items: []jfItem{
				{ID: albumID, Name: "Album", AlbumArtists: []nameID{{ID: guid(4), Name: "Artist"}}},
			}})
		case q.Get("ParentId") == albumID:
			targeted.Add(1)
			json.NewEncoder(w).Encode(itemsPage{Items: []jfItem{
				{ID: guid(2), Name: "Track", AlbumID: albumID},
			}})
		default:
			json.NewEncoder(w).Encode(itemsPage{})
		}
	})
	mux.HandleFunc("GET /Artists/AlbumArtists", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(itemsPage{})
	})

	c := testClient(t, mux, Config{})
	if _, err := c.Artists(context.Background()); err != nil {
		t.Fatalf("Artists() error: %v", err)
	}
	if audioAttempts.Load() != 3 {
		t.Errorf("audio page attempts = %d, want 3 (then give up)", audioAttempts.Load())
	}

	// Track cache is empty for this album, so the lookup goes targeted.
	tracks, err := c.TracksForAlbum(context.Background(), albumID)
	if err != nil {
		t.Fatalf("TracksForAlbum() error: %v", err)
	}
	if len(tracks) != 1 || targeted.Load() != 1 {
		t.Errorf("tracks = %d targeted = %d, want 1/1", len(tracks), targeted.Load())
	}

	// Album grouping survived the aborted track pass.
	albums, err := c.AlbumsForArtist(context.Background(), guid(4))
	if err != nil {
		t.Fatalf("AlbumsForArtist() error: %v", err)
	}
	if len(albums) != 1 {
		t.Errorf("albums = %d, want 1 from partial cache", len(albums))
	}
}

func TestMetadataOnlySkipsCachePopulation(t *testing.T) {
	var itemQueries atomic.Int32
	mux := http.NewServeMux()
	addConnectRoutes(mux)
	mux.HandleFunc("GET /Users/u1/Items", func(w http.ResponseWriter, r *http.Request) {
		itemQueries.Add(1)
		json.NewEncoder(w).Encode(itemsPage{})
	})
	mux.HandleFunc("GET /Artists/AlbumArtists", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(itemsPage{})
	})

	c := testClient(t, mux, Config{})
	c.SetMetadataOnlyMode(true)
	if _, err := c.Artists(context.Background()); err != nil {
		t.Fatalf("Artists() error: %v", err)
	}
	if itemQueries.Load() != 0 {
		t.Errorf("bulk cache populated in metadata-only mode (%d queries)", itemQueries.Load())
	}
}

func newPlaylistServer(t *testing.T, failCreate map[string]bool) (*http.ServeMux, *playlistState) {
	t.Helper()
	state := &playlistState{
		names:      map[string]string{},
		trackIDs:   map[string][]string{},
		failCreate: failCreate,
	}

	mux := http.NewServeMux()
	addConnectRoutes(mux)
	mux.HandleFunc("GET /Users/u1/Items", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		state.mu.Lock()
		defer state.mu.Unlock()
		switch {
		case q.Get("IncludeItemTypes") == "Playlist":
			var page itemsPage
			for id, name := range state.names {
				page.Items = append(page.Items, jfItem{ID: id, Name: name, ChildCount: len(state.trackIDs[id])})
			}
			json.NewEncoder(w).Encode(page)
		case q.Get("ParentId") != "":
			var page itemsPage
			for _, id := range state.trackIDs[q.Get("ParentId")] {
				page.Items = append(page.Items, jfItem{ID: id, Name: "Track " + id[len(id)-2:]})
			}
			json.NewEncoder(w).Encode(page)
		default:
			json.NewEncoder(w).Encode(itemsPage{})
		}
	})
	mux.HandleFunc("POST /Playlists", func(w http.ResponseWriter, r *http.Request) {
		var req createPlaylistRequest
		json.NewDecoder(r.Body).Decode(&req)
		state.mu.Lock()
		defer state.mu.Unlock()
		if state.failCreate[req.Name] {
			state.ops = append(state.ops, "fail-create:"+req.Name)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if req.MediaType != "Audio" {
			t.Errorf("create MediaType = %q, want Audio", req.MediaType)
		}
		state.seq++
		id := fmt.Sprintf("pl%d", state.seq)
		state.names[id] = req.Name
		state.ops = append(state.ops, "create:"+req.Name)
		json.NewEncoder(w).Encode(createPlaylistResponse{ID: id})
	})
	mux.HandleFunc("POST /Playlists/{pid}/Items", func(w http.ResponseWriter, r *http.Request) {
		pid := r.PathValue("pid")
		ids := strings.Split(r.URL.Query().Get("Ids"), ",")
		state.mu.Lock()
		defer state.mu.Unlock()
		state.trackIDs[pid] = append(state.trackIDs[pid], ids...)
		state.ops = append(state.ops, fmt.Sprintf("append:%s:%d", state.names[pid], len(ids)))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /Items/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		state.mu.Lock()
		defer state.mu.Unlock()
		state.ops = append(state.ops, "delete:"+state.names[id])
		delete(state.names, id)
		delete(state.trackIDs, id)
		w.WriteHeader(http.StatusNoContent)
	})
	return mux, state
}

type playlistState struct {
	mu         sync.Mutex
	seq        int
	names      map[string]string   // playlist id -> name
	trackIDs   map[string][]string // playlist id -> track ids
	failCreate map[string]bool
	ops        []string
}

func (s *playlistState) byName(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range s.names {
		if n == name {
			return id, true
		}
	}
	return "", false
}

func (s *playlistState) operations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func TestCreatePlaylistBatchesAppends(t *testing.T) {
	mux, state := newPlaylistServer(t, nil)
	c := testClient(t, mux, Config{})

	ids := make([]string, 0, 252)
	for i := 0; i < 250; i++ {
		ids = append(ids, guid(i))
	}
	ids = append(ids, "not-a-guid", "")

	if err := c.CreatePlaylist(context.Background(), "Mega Mix", ids); err != nil {
		t.Fatalf("CreatePlaylist() error: %v", err)
	}

	pid, ok := state.byName("Mega Mix")
	if !ok {
		t.Fatal("playlist was not created")
	}
	state.mu.Lock()
	got := len(state.trackIDs[pid])
	state.mu.Unlock()
	if got != 250 {
		t.Errorf("playlist holds %d tracks, want 250 (invalid ids dropped)", got)
	}

	var appends []string
	for _, op := range state.operations() {
		if strings.HasPrefix(op, "append:") {
			appends = append(appends, op)
		}
	}
	want := []string{"append:Mega Mix:100", "append:Mega Mix:100", "append:Mega Mix:50"}
	if len(appends) != 3 || appends[0] != want[0] || appends[1] != want[1] || appends[2] != want[2] {
		t.Errorf("appends = %v, want %v", appends, want)
	}
}

func TestCreatePlaylistRejectsAllInvalid(t *testing.T) {
	mux, state := newPlaylistServer(t, nil)
	c := testClient(t, mux, Config{})

	err := c.CreatePlaylist(context.Background(), "Empty", []string{"nope", "fs_123", ""})
	if err == nil {
		t.Fatal("CreatePlaylist() with no valid ids succeeded")
	}
	if _, ok := state.byName("Empty"); ok {
		t.Error("playlist container was created anyway")
	}
}

func TestUpdatePlaylistBackupFlow(t *testing.T) {
	mux, state := newPlaylistServer(t, nil)
	state.seq = 100
	state.names["pl100"] = "Mix"
	state.trackIDs["pl100"] = []string{guid(1), guid(2)}

	c := testClient(t, mux, Config{CreateBackup: true})
	if err := c.UpdatePlaylist(context.Background(), "Mix", []string{guid(3), guid(4), guid(5)}); err != nil {
		t.Fatalf("UpdatePlaylist() error: %v", err)
	}

	pid, ok := state.byName("Mix")
	if !ok {
		t.Fatal("updated playlist missing")
	}
	state.mu.Lock()
	tracks := append([]string(nil), state.trackIDs[pid]...)
	state.mu.Unlock()
	if len(tracks) != 3 || tracks[0] != guid(3) {
		t.Errorf("updated tracks = %v", tracks)
	}
	if _, ok := state.byName("Mix Backup"); ok {
		t.Error("backup playlist survived a successful update")
	}

	ops := state.operations()
	wantOrder := []string{"create:Mix Backup", "delete:Mix", "create:Mix", "delete:Mix Backup"}
	idx := 0
	for _, op := range ops {
		if idx < len(wantOrder) && op == wantOrder[idx] {
			idx++
		}
	}
	if idx != len(wantOrder) {
		t.Errorf("operation order = %v, want subsequence %v", ops, wantOrder)
	}
}

func TestUpdatePlaylistKeepsBackupOnFailure(t *testing.T) {
	mux, state := newPlaylistServer(t, map[string]bool{"Mix": true})
	state.seq = 100
	state.names["pl100"] = "Mix"
	state.trackIDs["pl100"] = []string{guid(1), guid(2)}

	c := testClient(t, mux, Config{CreateBackup: true})
	err := c.UpdatePlaylist(context.Background(), "Mix", []string{guid(3)})
	if err == nil {
		t.Fatal("UpdatePlaylist() succeeded despite create failure")
	}

	if _, ok := state.byName("Mix Backup"); !ok {
		t.Error("backup playlist was not kept after failed rebuild")
	}
	if _, ok := state.byName("Mix"); ok {
		t.Error("original playlist should be gone (delete happened before rebuild)")
	}
}

func TestUpdatePlaylistWithoutBackup(t *testing.T) {
	mux, state := newPlaylistServer(t, nil)
	state.seq = 100
	state.names["pl100"] = "Mix"
	state.trackIDs["pl100"] = []string{guid(1)}

	c := testClient(t, mux, Config{CreateBackup: false})
	if err := c.UpdatePlaylist(context.Background(), "Mix", []string{guid(2)}); err != nil {
		t.Fatalf("UpdatePlaylist() error: %v", err)
	}
	for _, op := range state.operations() {
		if strings.Contains(op, "Backup") {
			t.Errorf("backup op %q with backups disabled", op)
		}
	}
}

func TestCopyPlaylistRejectsEmptySource(t *testing.T) {
	mux, state := newPlaylistServer(t, nil)
	state.seq = 100
	state.names["pl100"] = "Hollow"

	c := testClient(t, mux, Config{})
	if err := c.CopyPlaylist(context.Background(), "Hollow", "Hollow Copy"); err == nil {
		t.Fatal("CopyPlaylist() of empty playlist succeeded")
	}
	if _, ok := state.byName("Hollow Copy"); ok {
		t.Error("empty copy was created")
	}
}

func TestPlaylistByNameIsCaseInsensitive(t *testing.T) {
	mux, state := newPlaylistServer(t, nil)
	state.seq = 100
	state.names["pl100"] = "Discover Weekly"

	c := testClient(t, mux, Config{})
	pl, err := c.PlaylistByName(context.Background(), "discover weekly")
	if err != nil {
		t.Fatalf("PlaylistByName() error: %v", err)
	}
	if pl.ID != "pl100" {
		t.Errorf("playlist id = %q, want pl100", pl.ID)
	}

	if _, err := c.PlaylistByName(context.Background(), "Release Radar"); !errors.Is(err, mediaserver.ErrNotFound) {
		t.Errorf("missing playlist error = %v, want ErrNotFound", err)
	}
}

func TestIsScanning(t *testing.T) {
	tests := []struct {
		name  string
		tasks []scheduledTask
		want  bool
	}{
		{"library scan running", []scheduledTask{{Name: "Scan Media Library", State: "Running"}}, true},
		{"refresh cancelling", []scheduledTask{{Name: "Refresh Guide", State: "Cancelling"}}, true},
		{"scan idle", []scheduledTask{{Name: "Scan Media Library", State: "Idle"}}, false},
		{"unrelated task running", []scheduledTask{{Name: "Backup Database", State: "Running"}}, false},
		{"no tasks", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			addConnectRoutes(mux)
			mux.HandleFunc("GET /ScheduledTasks", func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(tt.tasks)
			})

			c := testClient(t, mux, Config{})
			got, err := c.IsScanning(context.Background())
			if err != nil {
				t.Fatalf("IsScanning() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsScanning() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTriggerLibraryScan(t *testing.T) {
	var refreshed atomic.Bool
	mux := http.NewServeMux()
	addConnectRoutes(mux)
	mux.HandleFunc("POST /Items/lib1/Refresh", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("MetadataRefreshMode") != "ValidationOnly" || q.Get("ImageRefreshMode") != "ValidationOnly" {
			t.Errorf("refresh modes = %s", r.URL.RawQuery)
		}
		refreshed.Store(true)
		w.WriteHeader(http.StatusNoContent)
	})

	c := testClient(t, mux, Config{})
	if err := c.TriggerLibraryScan(context.Background()); err != nil {
		t.Fatalf("TriggerLibraryScan() error: %v", err)
	}
	if !refreshed.Load() {
		t.Error("refresh endpoint not hit")
	}
}

func TestTrackByFilename(t *testing.T) {
	mux := http.NewServeMux()
	addConnectRoutes(mux)
	mux.HandleFunc("GET /Users/u1/Items", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("SearchTerm") != "01 - Only Shallow" {
			t.Errorf("SearchTerm = %q", q.Get("SearchTerm"))
		}
		json.NewEncoder(w).Encode(itemsPage{Items: []jfItem{
			{ID: guid(1), Name: "Only Shallow (live)", Path: "/music/live/only shallow.flac"},
			{ID: guid(2), Name: "Only Shallow", Path: "/music/mbv/01 - Only Shallow.flac"},
		}})
	})

	c := testClient(t, mux, Config{})
	track, err := c.TrackByFilename(context.Background(), "/downloads/01 - Only Shallow.flac")
	if err != nil {
		t.Fatalf("TrackByFilename() error: %v", err)
	}
	if track.ID != guid(2) {
		t.Errorf("track id = %q, want basename match", track.ID)
	}
}

func TestTrackByFilenameNoMatch(t *testing.T) {
	mux := http.NewServeMux()
	addConnectRoutes(mux)
	mux.HandleFunc("GET /Users/u1/Items", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(itemsPage{Items: []jfItem{
			{ID: guid(1), Name: "Something Else", Path: "/music/other.flac"},
		}})
	})

	c := testClient(t, mux, Config{})
	if _, err := c.TrackByFilename(context.Background(), "missing.flac"); !errors.Is(err, mediaserver.ErrNotFound) {
		t.Errorf("TrackByFilename() error = %v, want ErrNotFound", err)
	}
}

func TestSearchTracksFiltersForeignArtists(t *testing.T) {
	mux := http.NewServeMux()
	addConnectRoutes(mux)
	mux.HandleFunc("GET /Users/u1/Items", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(itemsPage{Items: []jfItem{
			{ID: guid(1), Name: "Dreams", ArtistItems: []nameID{{ID: guid(10), Name: "Fleetwood Mac"}}},
			{ID: guid(2), Name: "Dreams", ArtistItems: []nameID{{ID: guid(11), Name: "The Cranberries"}}},
			{ID: guid(3), Name: "Dreams"}, // unknown artist stays in
		}})
	})

	c := testClient(t, mux, Config{})
	tracks, err := c.SearchTracks(context.Background(), "Dreams", "Fleetwood Mac")
	if err != nil {
		t.Fatalf("SearchTracks() error: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("tracks = %d, want 2 (foreign artist dropped, unknown kept)", len(tracks))
	}
	if tracks[0].ID != guid(1) || tracks[1].ID != guid(3) {
		t.Errorf("kept = %q, %q", tracks[0].ID, tracks[1].ID)
	}
}

func TestLibraryStats(t *testing.T) {
	mux := http.NewServeMux()
	addConnectRoutes(mux)
	mux.HandleFunc("GET /Users/u1/Items", func(w http.ResponseWriter, r *http.Request) {
		counts := map[string]int{"MusicArtist": 12, "MusicAlbum": 48, "Audio": 530}
		kind := r.URL.Query().Get("IncludeItemTypes")
		json.NewEncoder(w).Encode(itemsPage{TotalRecordCount: counts[kind]})
	})

	c := testClient(t, mux, Config{})
	stats, err := c.LibraryStats(context.Background())
	if err != nil {
		t.Fatalf("LibraryStats() error: %v", err)
	}
	if stats.Artists != 12 || stats.Albums != 48 || stats.Tracks != 530 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSelectLibraryClearsCache(t *testing.T) {
	var audioQueries atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /System/Info", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(systemInfo{ServerName: "test"})
	})
	mux.HandleFunc("GET /Users", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]jfUser{{ID: "u1", Name: "admin"}})
	})
	mux.HandleFunc("GET /Users/u1/Views", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(itemsPage{Items: []jfItem{
			{ID: "lib1", Name: "Music", CollectionType: "music"},
			{ID: "lib2", Name: "Hi-Res", CollectionType: "music"},
		}})
	})
	mux.HandleFunc("GET /Users/u1/Items", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("IncludeItemTypes") == "Audio" {
			audioQueries.Add(1)
		}
		json.NewEncoder(w).Encode(itemsPage{})
	})
	mux.HandleFunc("GET /Artists/AlbumArtists", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(itemsPage{})
	})

	c := testClient(t, mux, Config{})
	if _, err := c.Artists(context.Background()); err != nil {
		t.Fatalf("Artists() error: %v", err)
	}
	if err := c.SelectLibrary(context.Background(), "Hi-Res"); err != nil {
		t.Fatalf("SelectLibrary() error: %v", err)
	}
	_, lib, _ := c.session(context.Background())
	if lib != "lib2" {
		t.Errorf("library = %q, want lib2", lib)
	}

	// Cache was dropped, so the next listing repopulates.
	before := audioQueries.Load()
	if _, err := c.Artists(context.Background()); err != nil {
		t.Fatalf("Artists() after switch error: %v", err)
	}
	if audioQueries.Load() == before {
		t.Error("cache not repopulated after library switch")
	}
}
