// Package discovery feeds the catalog's recommendation tables from
// Last.fm similarity data: cached similar-artist lookups and a rotating
// pool of top tracks drawn from the watchlist's neighborhood.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shkh/lastfm-go/lastfm"

	"github.com/llehouerou/attune/internal/catalog"
)

const (
	cacheTTL      = 7 * 24 * time.Hour
	similarLimit  = 30
	topTrackLimit = 10

	// Pool rotation bounds: only the closest neighbours feed the pool,
	// and the oldest entries are dropped once it fills up.
	poolFeedArtists = 5
	poolMaxTracks   = 2000
	poolRotateCount = 500
)

// TopTrack is one provider-ranked track for an artist.
type TopTrack struct {
	Name      string
	Playcount int
	Rank      int
}

// provider abstracts the upstream similarity source so tests can stub it.
type provider interface {
	similar(artist string, limit int) ([]catalog.SimilarArtist, error)
	topTracks(artist string, limit int) ([]TopTrack, error)
}

type lastfmProvider struct {
	api *lastfm.Api
}

func (p *lastfmProvider) similar(artist string, limit int) ([]catalog.SimilarArtist, error) {
	result, err := p.api.Artist.GetSimilar(lastfm.P{"artist": artist, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("get similar artists: %w", err)
	}

	artists := make([]catalog.SimilarArtist, 0, len(result.Similars))
	for i, a := range result.Similars {
		score := 0.0
		if a.Match != "" {
			_, _ = fmt.Sscanf(a.Match, "%f", &score) //nolint:errcheck // parse failure means score stays 0
		}
		artists = append(artists, catalog.SimilarArtist{
			SourceArtist: artist,
			Name:         a.Name,
			MatchScore:   score,
			Rank:         i + 1,
		})
	}
	return artists, nil
}

func (p *lastfmProvider) topTracks(artist string, limit int) ([]TopTrack, error) {
	result, err := p.api.Artist.GetTopTracks(lastfm.P{"artist": artist, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("get artist top tracks: %w", err)
	}

	tracks := make([]TopTrack, 0, len(result.Tracks))
	for i, t := range result.Tracks {
		playcount := 0
		if t.PlayCount != "" {
			_, _ = fmt.Sscanf(t.PlayCount, "%d", &playcount) //nolint:errcheck // parse failure means count stays 0
		}
		tracks = append(tracks, TopTrack{Name: t.Name, Playcount: playcount, Rank: i + 1})
	}
	return tracks, nil
}

// Service answers similarity queries cache-first and keeps the discovery
// pool stocked from the watchlist.
type Service struct {
	store *catalog.Store
	p     provider
	log   *log.Logger
	ttl   time.Duration
}

// New builds a Last.fm-backed discovery service.
func New(store *catalog.Store, apiKey, apiSecret string, logger *log.Logger) *Service {
	return &Service{
		store: store,
		p:     &lastfmProvider{api: lastfm.New(apiKey, apiSecret)},
		log:   logger.With("component", "discovery"),
		ttl:   cacheTTL,
	}
}

// SimilarArtists returns similarity edges for one artist, best match
// first. The catalog cache is served while fresh; when the provider is
// unreachable, stale rows beat an empty answer.
func (s *Service) SimilarArtists(name string, limit int) ([]catalog.SimilarArtist, error) {
	if limit <= 0 {
		limit = similarLimit
	}

	fresh, err := s.store.HasFreshSimilarArtists(name, s.ttl)
	if err != nil {
		return nil, err
	}
	if fresh {
		cached, err := s.store.SimilarArtistsFor(name)
		if err != nil {
			return nil, err
		}
		return clip(cached, limit), nil
	}

	fetched, err := s.p.similar(name, limit)
	if err != nil {
		cached, cerr := s.store.SimilarArtistsFor(name)
		if cerr == nil && len(cached) > 0 {
			s.log.Warn("provider unreachable, serving stale cache", "artist", name, "err", err)
			return clip(cached, limit), nil
		}
		return nil, err
	}

	if len(fetched) > 0 {
		if err := s.store.SaveSimilarArtists(name, fetched); err != nil {
			s.log.Warn("similarity cache write failed", "artist", name, "err", err)
		}
	}
	return fetched, nil
}

func clip(artists []catalog.SimilarArtist, limit int) []catalog.SimilarArtist {
	if len(artists) > limit {
		return artists[:limit]
	}
	return artists
}

// TopTracks returns the provider's ranked tracks for one artist.
func (s *Service) TopTracks(name string, limit int) ([]TopTrack, error) {
	if limit <= 0 {
		limit = topTrackLimit
	}
	return s.p.topTracks(name, limit)
}

// Recommendations returns the newest pooled discovery tracks.
func (s *Service) Recommendations(limit int) ([]catalog.DiscoveryTrack, error) {
	return s.store.DiscoveryPoolTracks(limit)
}

// RefreshResult totals one watchlist refresh run.
type RefreshResult struct {
	ArtistsScanned int
	SimilarFound   int
	TracksPooled   int
	Errors         []string
}

// RefreshWatchlist walks every watched artist, refreshes its similarity
// edges, and pools top tracks of the closest neighbours. Artists whose
// similarity fetch fails stay unscanned so a later run retries them. The
// pool is rotated afterwards to keep recommendations moving.
func (s *Service) RefreshWatchlist(ctx context.Context) (RefreshResult, error) {
	var res RefreshResult

	watched, err := s.store.WatchlistArtists()
	if err != nil {
		return res, fmt.Errorf("load watchlist: %w", err)
	}
	if len(watched) == 0 {
		return res, nil
	}
	s.log.Info("refreshing watchlist", "artists", len(watched))

	for _, wa := range watched {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		similar, err := s.SimilarArtists(wa.ArtistName, similarLimit)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", wa.ArtistName, err))
			continue
		}
		res.SimilarFound += len(similar)

		for i, sim := range similar {
			if i >= poolFeedArtists {
				break
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}

			tracks, err := s.p.topTracks(sim.Name, topTrackLimit)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", sim.Name, err))
				continue
			}
			for _, t := range tracks {
				added, err := s.store.AddToDiscoveryPool(catalog.DiscoveryTrack{
					ArtistName:   sim.Name,
					TrackName:    t.Name,
					SourceArtist: wa.ArtistName,
					MatchScore:   sim.MatchScore,
				})
				if err != nil {
					res.Errors = append(res.Errors, fmt.Sprintf("pool %s - %s: %v", sim.Name, t.Name, err))
					continue
				}
				if added {
					res.TracksPooled++
				}
			}
		}

		if err := s.store.MarkWatchlistScanned(wa.ArtistID, time.Now()); err != nil {
			s.log.Warn("scan stamp failed", "artist", wa.ArtistName, "err", err)
		}
		res.ArtistsScanned++
	}

	if err := s.store.RotateDiscoveryPool(poolMaxTracks, poolRotateCount); err != nil {
		s.log.Warn("pool rotation failed", "err", err)
	}

	s.log.Info("watchlist refresh complete",
		"artists", res.ArtistsScanned, "pooled", res.TracksPooled, "errors", len(res.Errors))
	return res, nil
}
