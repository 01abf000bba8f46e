package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/llehouerou/attune/internal/catalog"
)

type stubProvider struct {
	similarCalls int
	topCalls     int
	similarFn    func(artist string, limit int) ([]catalog.SimilarArtist, error)
	topFn        func(artist string, limit int) ([]TopTrack, error)
}

func (s *stubProvider) similar(artist string, limit int) ([]catalog.SimilarArtist, error) {
	s.similarCalls++
	if s.similarFn != nil {
		return s.similarFn(artist, limit)
	}
	return nil, nil
}

func (s *stubProvider) topTracks(artist string, limit int) ([]TopTrack, error) {
	s.topCalls++
	if s.topFn != nil {
		return s.topFn(artist, limit)
	}
	return nil, nil
}

func newTestService(t *testing.T, p provider) (*Service, *catalog.Store) {
	t.Helper()
	logger := log.New(io.Discard)
	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"), logger)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	return &Service{store: store, p: p, log: logger, ttl: cacheTTL}, store
}

func similarEdges(source string, names ...string) []catalog.SimilarArtist {
	out := make([]catalog.SimilarArtist, 0, len(names))
	for i, n := range names {
		out = append(out, catalog.SimilarArtist{
			SourceArtist: source,
			Name:         n,
			MatchScore:   1.0 - float64(i)*0.1,
			Rank:         i + 1,
		})
	}
	return out
}

func TestSimilarArtistsCachesFetch(t *testing.T) {
	stub := &stubProvider{
		similarFn: func(artist string, limit int) ([]catalog.SimilarArtist, error) {
			return similarEdges(artist, "Slowdive", "Lush"), nil
		},
	}
	svc, _ := newTestService(t, stub)

	first, err := svc.SimilarArtists("Ride", 10)
	if err != nil {
		t.Fatalf("SimilarArtists: %v", err)
	}
	if len(first) != 2 || first[0].Name != "Slowdive" {
		t.Fatalf("first fetch = %+v", first)
	}
	if stub.similarCalls != 1 {
		t.Fatalf("provider calls = %d, want 1", stub.similarCalls)
	}

	second, err := svc.SimilarArtists("Ride", 10)
	if err != nil {
		t.Fatalf("cached SimilarArtists: %v", err)
	}
	if stub.similarCalls != 1 {
		t.Errorf("provider calls after cached read = %d, want 1", stub.similarCalls)
	}
	if len(second) != 2 || second[0].Name != "Slowdive" {
		t.Errorf("cached read = %+v", second)
	}
}

func TestSimilarArtistsClipsCachedReads(t *testing.T) {
	stub := &stubProvider{
		similarFn: func(artist string, limit int) ([]catalog.SimilarArtist, error) {
			return similarEdges(artist, "A", "B", "C", "D"), nil
		},
	}
	svc, _ := newTestService(t, stub)

	if _, err := svc.SimilarArtists("Ride", 10); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	got, err := svc.SimilarArtists("Ride", 2)
	if err != nil {
		t.Fatalf("clipped read: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("clipped read = %d entries, want 2", len(got))
	}
}

func TestSimilarArtistsStaleFallback(t *testing.T) {
	calls := 0
	stub := &stubProvider{
		similarFn: func(artist string, limit int) ([]catalog.SimilarArtist, error) {
			calls++
			if calls == 1 {
				return similarEdges(artist, "Slowdive"), nil
			}
			return nil, errors.New("rate limited")
		},
	}
	svc, _ := newTestService(t, stub)
	svc.ttl = time.Nanosecond // every cache row counts as stale

	if _, err := svc.SimilarArtists("Ride", 10); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	got, err := svc.SimilarArtists("Ride", 10)
	if err != nil {
		t.Fatalf("stale fallback: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Slowdive" {
		t.Errorf("stale fallback = %+v", got)
	}
}

func TestSimilarArtistsProviderErrorWithoutCache(t *testing.T) {
	stub := &stubProvider{
		similarFn: func(artist string, limit int) ([]catalog.SimilarArtist, error) {
			return nil, errors.New("rate limited")
		},
	}
	svc, _ := newTestService(t, stub)

	if _, err := svc.SimilarArtists("Ride", 10); err == nil {
		t.Fatal("expected provider error to surface with no cache to fall back on")
	}
}

func TestTopTracksDefaultLimit(t *testing.T) {
	stub := &stubProvider{
		topFn: func(artist string, limit int) ([]TopTrack, error) {
			if limit != topTrackLimit {
				return nil, fmt.Errorf("limit = %d, want %d", limit, topTrackLimit)
			}
			return []TopTrack{{Name: "Vapour Trail", Rank: 1}}, nil
		},
	}
	svc, _ := newTestService(t, stub)

	tracks, err := svc.TopTracks("Ride", 0)
	if err != nil {
		t.Fatalf("TopTracks: %v", err)
	}
	if len(tracks) != 1 || tracks[0].Name != "Vapour Trail" {
		t.Errorf("tracks = %+v", tracks)
	}
}

func TestRefreshWatchlistPoolsTracks(t *testing.T) {
	stub := &stubProvider{
		similarFn: func(artist string, limit int) ([]catalog.SimilarArtist, error) {
			return similarEdges(artist, "Slowdive", "Lush"), nil
		},
		topFn: func(artist string, limit int) ([]TopTrack, error) {
			return []TopTrack{
				{Name: artist + " Song A", Rank: 1},
				{Name: artist + " Song B", Rank: 2},
			}, nil
		},
	}
	svc, store := newTestService(t, stub)

	if err := store.AddToWatchlist("ar-1", "Ride"); err != nil {
		t.Fatalf("seed watchlist: %v", err)
	}

	res, err := svc.RefreshWatchlist(context.Background())
	if err != nil {
		t.Fatalf("RefreshWatchlist: %v", err)
	}
	if res.ArtistsScanned != 1 || res.SimilarFound != 2 || res.TracksPooled != 4 {
		t.Errorf("scanned/similar/pooled = %d/%d/%d, want 1/2/4",
			res.ArtistsScanned, res.SimilarFound, res.TracksPooled)
	}
	if len(res.Errors) != 0 {
		t.Errorf("errors = %v", res.Errors)
	}

	pooled, err := svc.Recommendations(10)
	if err != nil {
		t.Fatalf("Recommendations: %v", err)
	}
	if len(pooled) != 4 {
		t.Fatalf("pool size = %d, want 4", len(pooled))
	}
	for _, p := range pooled {
		if p.SourceArtist != "Ride" {
			t.Errorf("pool entry source = %q, want Ride", p.SourceArtist)
		}
	}

	wa, err := store.WatchlistArtist("ar-1")
	if err != nil || wa == nil {
		t.Fatalf("WatchlistArtist: %v %v", wa, err)
	}
	if wa.LastScanned.IsZero() {
		t.Error("last scanned not stamped")
	}

	// A second pass finds everything already pooled.
	res, err = svc.RefreshWatchlist(context.Background())
	if err != nil {
		t.Fatalf("second RefreshWatchlist: %v", err)
	}
	if res.TracksPooled != 0 {
		t.Errorf("second run pooled = %d, want 0", res.TracksPooled)
	}
}

func TestRefreshWatchlistEmpty(t *testing.T) {
	stub := &stubProvider{}
	svc, _ := newTestService(t, stub)

	res, err := svc.RefreshWatchlist(context.Background())
	if err != nil {
		t.Fatalf("RefreshWatchlist: %v", err)
	}
	if res.ArtistsScanned != 0 || stub.similarCalls != 0 {
		t.Errorf("scanned = %d, provider calls = %d, want 0/0", res.ArtistsScanned, stub.similarCalls)
	}
}

func TestRefreshWatchlistKeepsFailedArtistsUnscanned(t *testing.T) {
	stub := &stubProvider{
		similarFn: func(artist string, limit int) ([]catalog.SimilarArtist, error) {
			return nil, fmt.Errorf("provider down")
		},
	}
	svc, store := newTestService(t, stub)

	if err := store.AddToWatchlist("ar-2", "Lush"); err != nil {
		t.Fatalf("seed watchlist: %v", err)
	}

	res, err := svc.RefreshWatchlist(context.Background())
	if err != nil {
		t.Fatalf("RefreshWatchlist: %v", err)
	}
	if res.ArtistsScanned != 0 {
		t.Errorf("scanned = %d, want 0", res.ArtistsScanned)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v, want one entry", res.Errors)
	}

	wa, err := store.WatchlistArtist("ar-2")
	if err != nil || wa == nil {
		t.Fatalf("WatchlistArtist: %v %v", wa, err)
	}
	if !wa.LastScanned.IsZero() {
		t.Error("failed artist should stay unscanned for the next run")
	}
}

func TestRefreshWatchlistHonorsCancel(t *testing.T) {
	stub := &stubProvider{
		similarFn: func(artist string, limit int) ([]catalog.SimilarArtist, error) {
			return similarEdges(artist, "Slowdive"), nil
		},
	}
	svc, store := newTestService(t, stub)
	if err := store.AddToWatchlist("ar-1", "Ride"); err != nil {
		t.Fatalf("seed watchlist: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.RefreshWatchlist(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
